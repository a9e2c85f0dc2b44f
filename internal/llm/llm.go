package llm

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/joescharf/tracker/internal/report"
)

// Client wraps the Anthropic API for report summaries.
type Client struct {
	api   *anthropic.Client
	model anthropic.Model
}

// NewClient creates an LLM client with the given API key and model.
func NewClient(apiKey, model string) *Client {
	opts := []option.RequestOption{}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	client := anthropic.NewClient(opts...)
	return &Client{
		api:   &client,
		model: anthropic.Model(model),
	}
}

// buildPrompt constructs the system and user prompts for a report summary.
// The report is passed in its markdown rendering.
func buildPrompt(rep *report.Report) (system string, user string, err error) {
	system = `You write short status briefings for an issue tracker. Given a markdown issues report, reply with:

1. One paragraph (2-4 sentences) summarizing the overall state.
2. A bulleted list of the most urgent items: top priority issues and overdue actions first.
3. A bulleted list of outstanding actions grouped by assignee, if any are assigned.

Rules:
- Use plain markdown, no preamble or sign-off
- Refer to issues by name, never by ID
- Do not invent issues, actions, owners, or dates that are not in the report
- If the report contains no issues, say so in one sentence`

	var md bytes.Buffer
	if err := report.WriteMarkdown(&md, rep); err != nil {
		return "", "", fmt.Errorf("render report: %w", err)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Report date: %s\n", rep.Date)
	fmt.Fprintf(&sb, "Issues in report: %d\n\n", rep.Groups.Len())
	sb.WriteString("Summarize this report:\n\n")
	sb.WriteString(md.String())
	user = sb.String()
	return system, user, nil
}

// SummarizeReport asks the model for a briefing on rep and returns it as markdown.
func (c *Client) SummarizeReport(ctx context.Context, rep *report.Report) (string, error) {
	systemPrompt, userPrompt, err := buildPrompt(rep)
	if err != nil {
		return "", err
	}

	msg, err := c.api.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: 2048,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic API call: %w", err)
	}

	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text = block.Text
			break
		}
	}
	if text == "" {
		return "", fmt.Errorf("no text content in API response")
	}
	return stripFence(text), nil
}

// stripFence removes a surrounding ``` block if the model added one.
func stripFence(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	lines := strings.SplitN(text, "\n", 2)
	if len(lines) > 1 {
		text = lines[1]
	}
	if idx := strings.LastIndex(text, "```"); idx >= 0 {
		text = text[:idx]
	}
	return strings.TrimSpace(text)
}
