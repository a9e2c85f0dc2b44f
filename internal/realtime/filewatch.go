package realtime

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// FileWatcher publishes a wildcard change event whenever a SQLite database
// file (or its -wal/-journal companions) is written by any process.
type FileWatcher struct {
	dbPath string
	logger *slog.Logger
	burst  *writeBurst

	watcher *fsnotify.Watcher
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewFileWatcher creates a watcher for dbPath. Bursts of writes within
// quiet are reported as one event.
func NewFileWatcher(dbPath string, quiet time.Duration, pub Publisher, logger *slog.Logger) *FileWatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileWatcher{
		dbPath: dbPath,
		logger: logger,
		burst:  newWriteBurst(quiet, pub, logger),
	}
}

// Start begins watching the database directory.
func (fw *FileWatcher) Start(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(fw.dbPath)); err != nil {
		_ = w.Close()
		return fmt.Errorf("watch %s: %w", filepath.Dir(fw.dbPath), err)
	}
	fw.watcher = w

	ctx, fw.cancel = context.WithCancel(ctx)
	fw.wg.Add(1)
	go fw.loop(ctx)
	fw.logger.Info("watching database file for changes", "path", fw.dbPath)
	return nil
}

func (fw *FileWatcher) loop(ctx context.Context) {
	defer fw.wg.Done()
	base := filepath.Base(fw.dbPath)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			if !strings.HasPrefix(filepath.Base(ev.Name), base) {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) {
				fw.burst.note()
			}
		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			fw.logger.Warn("file watcher error", "error", err)
		}
	}
}

// Close stops watching. It is safe to call more than once.
func (fw *FileWatcher) Close() error {
	if fw.cancel == nil {
		return nil
	}
	fw.cancel()
	fw.cancel = nil
	fw.burst.stop()
	err := fw.watcher.Close()
	fw.wg.Wait()
	return err
}
