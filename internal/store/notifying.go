package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/joescharf/tracker/internal/models"
	"github.com/joescharf/tracker/internal/realtime"
)

// NotifyingStore publishes a change event after every successful write.
// It gives in-process subscribers realtime updates on backends that have no
// change feed of their own.
type NotifyingStore struct {
	Store
	pub realtime.Publisher
}

// Notifying wraps s so that writes are published to pub.
func Notifying(s Store, pub realtime.Publisher) *NotifyingStore {
	return &NotifyingStore{Store: s, pub: pub}
}

func (n *NotifyingStore) publish(table string, typ realtime.EventType, id string, record any) {
	ev := realtime.ChangeEvent{
		Table:      table,
		Type:       typ,
		ID:         id,
		CommitTime: time.Now().UTC(),
	}
	if record != nil {
		if data, err := json.Marshal(record); err == nil {
			ev.Record = data
		}
	}
	n.pub.Publish(ev)
}

func (n *NotifyingStore) CreateIssue(ctx context.Context, issue *models.Issue) error {
	if err := n.Store.CreateIssue(ctx, issue); err != nil {
		return err
	}
	n.publish(realtime.TableIssues, realtime.EventInsert, issue.ID, issue)
	return nil
}

func (n *NotifyingStore) UpdateIssue(ctx context.Context, issue *models.Issue) error {
	if err := n.Store.UpdateIssue(ctx, issue); err != nil {
		return err
	}
	n.publish(realtime.TableIssues, realtime.EventUpdate, issue.ID, issue)
	return nil
}

func (n *NotifyingStore) DeleteIssue(ctx context.Context, id string) error {
	if err := n.Store.DeleteIssue(ctx, id); err != nil {
		return err
	}
	n.publish(realtime.TableIssues, realtime.EventDelete, id, nil)
	return nil
}

func (n *NotifyingStore) CreateComment(ctx context.Context, c *models.Comment) error {
	if err := n.Store.CreateComment(ctx, c); err != nil {
		return err
	}
	n.publish(realtime.TableComments, realtime.EventInsert, c.ID, c)
	return nil
}

func (n *NotifyingStore) UpdateComment(ctx context.Context, id, text string) error {
	if err := n.Store.UpdateComment(ctx, id, text); err != nil {
		return err
	}
	n.publish(realtime.TableComments, realtime.EventUpdate, id, nil)
	return nil
}

func (n *NotifyingStore) DeleteComment(ctx context.Context, id string) error {
	if err := n.Store.DeleteComment(ctx, id); err != nil {
		return err
	}
	n.publish(realtime.TableComments, realtime.EventDelete, id, nil)
	return nil
}

func (n *NotifyingStore) CreateAction(ctx context.Context, a *models.Action) error {
	if err := n.Store.CreateAction(ctx, a); err != nil {
		return err
	}
	n.publish(realtime.TableActions, realtime.EventInsert, a.ID, a)
	return nil
}

func (n *NotifyingStore) UpdateAction(ctx context.Context, a *models.Action) error {
	if err := n.Store.UpdateAction(ctx, a); err != nil {
		return err
	}
	n.publish(realtime.TableActions, realtime.EventUpdate, a.ID, a)
	return nil
}

func (n *NotifyingStore) DeleteAction(ctx context.Context, id string) error {
	if err := n.Store.DeleteAction(ctx, id); err != nil {
		return err
	}
	n.publish(realtime.TableActions, realtime.EventDelete, id, nil)
	return nil
}
