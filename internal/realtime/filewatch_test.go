package realtime

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingPublisher struct {
	n atomic.Int32
}

func (c *countingPublisher) Publish(ChangeEvent) { c.n.Add(1) }

type recordingPublisher struct {
	mu     sync.Mutex
	events []ChangeEvent
}

func (r *recordingPublisher) Publish(ev ChangeEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordingPublisher) snapshot() []ChangeEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ChangeEvent(nil), r.events...)
}

func TestWriteBurst_CoalescesWrites(t *testing.T) {
	pub := &recordingPublisher{}
	b := newWriteBurst(20*time.Millisecond, pub, slog.Default())

	before := time.Now().UTC()
	for i := 0; i < 5; i++ {
		b.note()
	}
	require.Eventually(t, func() bool { return len(pub.snapshot()) == 1 }, time.Second, 5*time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	events := pub.snapshot()
	require.Len(t, events, 1)
	assert.Equal(t, TableAll, events[0].Table)
	assert.Equal(t, EventAll, events[0].Type)
	assert.False(t, events[0].CommitTime.Before(before))

	b.note()
	require.Eventually(t, func() bool { return len(pub.snapshot()) == 2 }, time.Second, 5*time.Millisecond)
}

func TestWriteBurst_StopDropsPending(t *testing.T) {
	pub := &recordingPublisher{}
	b := newWriteBurst(20*time.Millisecond, pub, slog.Default())
	b.note()
	b.stop()
	b.note()
	time.Sleep(60 * time.Millisecond)
	assert.Empty(t, pub.snapshot())
}

func TestFileWatcher_PublishesOnWrite(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "tracker.db")
	require.NoError(t, os.WriteFile(dbPath, []byte("x"), 0o644))

	pub := &countingPublisher{}
	fw := NewFileWatcher(dbPath, 10*time.Millisecond, pub, nil)
	require.NoError(t, fw.Start(context.Background()))
	t.Cleanup(func() { _ = fw.Close() })

	// Unrelated files are ignored.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.txt"), []byte("y"), 0o644))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(0), pub.n.Load())

	require.NoError(t, os.WriteFile(dbPath+"-wal", []byte("z"), 0o644))
	require.Eventually(t, func() bool { return pub.n.Load() >= 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, fw.Close())
	assert.NoError(t, fw.Close())
}
