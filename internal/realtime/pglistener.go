package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
)

// NotifyChannel is the Postgres NOTIFY channel the change triggers write to.
const NotifyChannel = "tracker_changes"

// PGListener forwards Postgres change notifications to a Publisher.
type PGListener struct {
	databaseURL    string
	pub            Publisher
	logger         *slog.Logger
	ReconnectDelay time.Duration
}

// NewPGListener creates a listener for the given database.
func NewPGListener(databaseURL string, pub Publisher, logger *slog.Logger) *PGListener {
	if logger == nil {
		logger = slog.Default()
	}
	return &PGListener{
		databaseURL:    databaseURL,
		pub:            pub,
		logger:         logger,
		ReconnectDelay: 2 * time.Second,
	}
}

// Run listens until ctx is cancelled, reconnecting after connection errors.
func (l *PGListener) Run(ctx context.Context) error {
	for {
		err := l.listen(ctx)
		if ctx.Err() != nil {
			return nil
		}
		l.logger.Warn("realtime listener disconnected", "error", err, "retry_in", l.ReconnectDelay)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(l.ReconnectDelay):
		}
	}
}

func (l *PGListener) listen(ctx context.Context) error {
	conn, err := pgx.Connect(ctx, l.databaseURL)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer func() { _ = conn.Close(context.Background()) }()

	if _, err := conn.Exec(ctx, "LISTEN "+NotifyChannel); err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	l.logger.Info("realtime listener subscribed", "channel", NotifyChannel)

	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			return err
		}
		ev, err := ParsePayload(n.Payload)
		if err != nil {
			l.logger.Warn("ignoring malformed change notification", "error", err)
			continue
		}
		l.pub.Publish(ev)
	}
}

type pgPayload struct {
	Table     string          `json:"table"`
	Type      string          `json:"type"`
	ID        string          `json:"id"`
	Record    json.RawMessage `json:"record"`
	OldRecord json.RawMessage `json:"old_record"`
	Timestamp time.Time       `json:"commit_timestamp"`
}

// ParsePayload decodes a notification written by the tracker_notify trigger.
func ParsePayload(payload string) (ChangeEvent, error) {
	var p pgPayload
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		return ChangeEvent{}, fmt.Errorf("decode payload: %w", err)
	}
	if p.Table == "" {
		return ChangeEvent{}, errors.New("payload has no table")
	}

	typ := EventType(strings.ToUpper(p.Type))
	switch typ {
	case EventInsert, EventUpdate, EventDelete:
	default:
		return ChangeEvent{}, fmt.Errorf("unknown event type %q", p.Type)
	}

	ev := ChangeEvent{
		Table:      p.Table,
		Type:       typ,
		ID:         p.ID,
		CommitTime: p.Timestamp,
	}
	if !isJSONNull(p.Record) {
		ev.Record = p.Record
	}
	if !isJSONNull(p.OldRecord) {
		ev.OldRecord = p.OldRecord
	}
	if ev.CommitTime.IsZero() {
		ev.CommitTime = time.Now().UTC()
	}
	return ev, nil
}

func isJSONNull(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}
