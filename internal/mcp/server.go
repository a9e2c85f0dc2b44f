package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/joescharf/tracker/internal/issues"
	"github.com/joescharf/tracker/internal/models"
	"github.com/joescharf/tracker/internal/report"
	"github.com/joescharf/tracker/internal/store"
)

// Server wraps the issue view-model and exposes it as MCP tools.
type Server struct {
	model   *issues.Model
	store   store.Store
	version string
	now     func() time.Time
}

// NewServer creates the MCP server wrapper.
func NewServer(m *issues.Model, s store.Store, version string) *Server {
	if version == "" {
		version = "dev"
	}
	return &Server{model: m, store: s, version: version, now: time.Now}
}

// MCPServer returns a configured mcp-go server with all tools registered.
func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer("tracker", s.version, server.WithToolCapabilities(true))

	srv.AddTool(s.listIssuesTool())
	srv.AddTool(s.addIssueTool())
	srv.AddTool(s.updateIssueTool())
	srv.AddTool(s.deleteIssueTool())
	srv.AddTool(s.addCommentTool())
	srv.AddTool(s.addActionTool())
	srv.AddTool(s.updateActionTool())
	srv.AddTool(s.reportTool())

	return srv
}

// ServeStdio starts the stdio transport, blocking until ctx is cancelled.
func (s *Server) ServeStdio(ctx context.Context) error {
	srv := s.MCPServer()
	stdioServer := server.NewStdioServer(srv)
	return stdioServer.Listen(ctx, os.Stdin, os.Stdout)
}

// ---------------------------------------------------------------------------
// Tool definitions and handlers
// ---------------------------------------------------------------------------

// tracker_list_issues
func (s *Server) listIssuesTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("tracker_list_issues",
		mcp.WithDescription("List issues ordered by priority (1 = top) then creation time. Each issue has id, name, description, priority (1-5), status (current/parked/completed), comments and actions."),
		mcp.WithString("status", mcp.Description("Status filter: current, parked, completed")),
	)
	return tool, s.handleListIssues
}

func (s *Server) handleListIssues(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	status := models.IssueStatus(request.GetString("status", ""))
	if status != "" && !status.Valid() {
		return mcp.NewToolResultError(fmt.Sprintf("invalid status: %s", status)), nil
	}

	s.model.FetchIssues(ctx)
	st := s.model.State()
	if st.Error != "" {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list issues: %s", st.Error)), nil
	}

	out := make([]*models.Issue, 0, len(st.Issues))
	for _, issue := range st.Issues {
		if status == "" || issue.Status == status {
			out = append(out, issue)
		}
	}
	return jsonResult(out)
}

// tracker_add_issue
func (s *Server) addIssueTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("tracker_add_issue",
		mcp.WithDescription("Create a new issue. Priority is 1 (Top Priority) to 5 (Pending) and defaults to 3. Status defaults to current."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Issue name")),
		mcp.WithString("description", mcp.Required(), mcp.Description("Issue description")),
		mcp.WithString("priority", mcp.Description("Priority 1-5 (default: 3)")),
		mcp.WithString("status", mcp.Description("Status: current, parked, completed (default: current)")),
	)
	return tool, s.handleAddIssue
}

func (s *Server) handleAddIssue(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := request.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: name"), nil
	}
	desc, err := request.RequireString("description")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: description"), nil
	}

	in := issues.IssueInput{
		Name:        name,
		Description: desc,
		Priority:    request.GetArguments()["priority"],
		Status:      request.GetString("status", ""),
	}
	return resultOf(s.model.AddIssue(ctx, in))
}

// tracker_update_issue
func (s *Server) updateIssueTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("tracker_update_issue",
		mcp.WithDescription("Update an existing issue. Provide the issue ID (full or prefix) and the fields to change; omitted fields keep their current value."),
		mcp.WithString("issue_id", mcp.Required(), mcp.Description("Issue ID (full or unique prefix)")),
		mcp.WithString("name", mcp.Description("New name")),
		mcp.WithString("description", mcp.Description("New description")),
		mcp.WithString("priority", mcp.Description("New priority 1-5")),
		mcp.WithString("status", mcp.Description("New status: current, parked, completed")),
	)
	return tool, s.handleUpdateIssue
}

func (s *Server) handleUpdateIssue(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	issueID, err := request.RequireString("issue_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: issue_id"), nil
	}
	issue, err := store.FindIssue(ctx, s.store, issueID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	in := issues.IssueInput{
		Name:        request.GetString("name", issue.Name),
		Description: request.GetString("description", issue.Description),
		Priority:    issue.Priority,
		Status:      request.GetString("status", string(issue.Status)),
	}
	if p, ok := request.GetArguments()["priority"]; ok {
		in.Priority = p
	}
	return resultOf(s.model.UpdateIssue(ctx, issue.ID, in))
}

// tracker_delete_issue
func (s *Server) deleteIssueTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("tracker_delete_issue",
		mcp.WithDescription("Delete an issue together with its comments and actions."),
		mcp.WithString("issue_id", mcp.Required(), mcp.Description("Issue ID (full or unique prefix)")),
	)
	return tool, s.handleDeleteIssue
}

func (s *Server) handleDeleteIssue(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	issueID, err := request.RequireString("issue_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: issue_id"), nil
	}
	issue, err := store.FindIssue(ctx, s.store, issueID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return resultOf(s.model.DeleteIssue(ctx, issue.ID))
}

// tracker_add_comment
func (s *Server) addCommentTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("tracker_add_comment",
		mcp.WithDescription("Add a comment to an issue."),
		mcp.WithString("issue_id", mcp.Required(), mcp.Description("Issue ID (full or unique prefix)")),
		mcp.WithString("text", mcp.Required(), mcp.Description("Comment text")),
	)
	return tool, s.handleAddComment
}

func (s *Server) handleAddComment(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	issueID, err := request.RequireString("issue_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: issue_id"), nil
	}
	text, err := request.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: text"), nil
	}
	issue, err := store.FindIssue(ctx, s.store, issueID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return resultOf(s.model.AddComment(ctx, issue.ID, text))
}

// tracker_add_action
func (s *Server) addActionTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("tracker_add_action",
		mcp.WithDescription("Add a follow-up action to an issue."),
		mcp.WithString("issue_id", mcp.Required(), mcp.Description("Issue ID (full or unique prefix)")),
		mcp.WithString("text", mcp.Required(), mcp.Description("What needs to be done")),
		mcp.WithString("assignee", mcp.Description("Who is doing it")),
		mcp.WithString("deadline", mcp.Description("Deadline as YYYY-MM-DD")),
		mcp.WithString("status", mcp.Description("Status: pending, in-progress, completed (default: pending)")),
	)
	return tool, s.handleAddAction
}

func (s *Server) handleAddAction(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	issueID, err := request.RequireString("issue_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: issue_id"), nil
	}
	text, err := request.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: text"), nil
	}
	issue, err := store.FindIssue(ctx, s.store, issueID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	in := issues.ActionInput{
		Text:     text,
		Assignee: request.GetString("assignee", ""),
		Deadline: request.GetString("deadline", ""),
		Status:   request.GetString("status", ""),
	}
	return resultOf(s.model.AddAction(ctx, issue.ID, in))
}

// tracker_update_action
func (s *Server) updateActionTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("tracker_update_action",
		mcp.WithDescription("Update an action. Omitted fields keep their current value; pass deadline \"none\" to clear it."),
		mcp.WithString("action_id", mcp.Required(), mcp.Description("Action ID (full or unique prefix)")),
		mcp.WithString("text", mcp.Description("New text")),
		mcp.WithString("assignee", mcp.Description("New assignee")),
		mcp.WithString("deadline", mcp.Description("New deadline as YYYY-MM-DD, or none")),
		mcp.WithString("status", mcp.Description("New status: pending, in-progress, completed")),
	)
	return tool, s.handleUpdateAction
}

func (s *Server) handleUpdateAction(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	actionID, err := request.RequireString("action_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: action_id"), nil
	}
	action, err := store.FindAction(ctx, s.store, actionID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	deadline := ""
	if action.Deadline != nil {
		deadline = action.Deadline.Format("2006-01-02")
	}
	deadline = request.GetString("deadline", deadline)
	if deadline == "none" {
		deadline = ""
	}

	in := issues.ActionInput{
		Text:     request.GetString("text", action.Text),
		Assignee: request.GetString("assignee", action.Assignee),
		Deadline: deadline,
		Status:   request.GetString("status", string(action.Status)),
	}
	return resultOf(s.model.UpdateAction(ctx, action.ID, in))
}

// tracker_report
func (s *Server) reportTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("tracker_report",
		mcp.WithDescription("Build a status report: issues changed since a date, grouped into current, parked and completed, with outstanding actions."),
		mcp.WithString("since", mcp.Description("Only include issues changed on or after this date (YYYY-MM-DD)")),
		mcp.WithString("status", mcp.Description("Comma separated statuses to include (default: all)")),
		mcp.WithString("format", mcp.Description("Output format: markdown, json (default: markdown)")),
	)
	return tool, s.handleReport
}

func (s *Server) handleReport(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	opts, err := report.ParseOptions(request.GetString("since", ""), request.GetString("status", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	s.model.FetchIssues(ctx)
	st := s.model.State()
	if st.Error != "" {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list issues: %s", st.Error)), nil
	}

	var buf bytes.Buffer
	rep := report.Build(st.Issues, opts, s.now())
	if err := report.Write(&buf, rep, request.GetString("format", report.FormatMarkdown)); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(buf.String()), nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func resultOf(res issues.Result) (*mcp.CallToolResult, error) {
	if !res.Success {
		return mcp.NewToolResultError(res.Error), nil
	}
	return jsonResult(res)
}
