package realtime

import (
	"log/slog"
	"sync"
	"time"
)

// writeBurst coalesces database file writes into one wildcard change event,
// published once the file has been quiet for the configured period.
type writeBurst struct {
	quiet  time.Duration
	pub    Publisher
	logger *slog.Logger

	mu      sync.Mutex
	timer   *time.Timer
	writes  int
	last    time.Time
	stopped bool
}

func newWriteBurst(quiet time.Duration, pub Publisher, logger *slog.Logger) *writeBurst {
	return &writeBurst{quiet: quiet, pub: pub, logger: logger}
}

// note records one write and pushes the flush back by the quiet period.
func (b *writeBurst) note() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped {
		return
	}
	b.writes++
	b.last = time.Now()
	if b.timer == nil {
		b.timer = time.AfterFunc(b.quiet, b.flush)
		return
	}
	b.timer.Reset(b.quiet)
}

func (b *writeBurst) flush() {
	b.mu.Lock()
	if b.stopped || b.writes == 0 {
		b.mu.Unlock()
		return
	}
	// A write can land between the timer firing and the lock.
	if wait := b.quiet - time.Since(b.last); wait > 0 {
		b.timer.Reset(wait)
		b.mu.Unlock()
		return
	}
	writes, last := b.writes, b.last
	b.writes = 0
	b.mu.Unlock()

	b.logger.Debug("database file changed", "writes", writes)
	b.pub.Publish(ChangeEvent{Table: TableAll, Type: EventAll, CommitTime: last.UTC()})
}

// stop drops any pending event. Later writes are ignored.
func (b *writeBurst) stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stopped = true
	if b.timer != nil {
		b.timer.Stop()
	}
}
