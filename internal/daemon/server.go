// Package daemon tracks the background API server through a state file
// holding its PID, port and backend.
package daemon

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrNotRunning is returned by Stop when no live server is recorded.
var ErrNotRunning = errors.New("server is not running")

const pollInterval = 100 * time.Millisecond

// Record describes a running server.
type Record struct {
	PID       int       `yaml:"pid"`
	Port      int       `yaml:"port,omitempty"`
	Backend   string    `yaml:"backend,omitempty"`
	StartedAt time.Time `yaml:"started_at,omitempty"`
}

// ServerFile is the state file of the background server.
type ServerFile struct {
	Path string
}

// NewServerFile returns a ServerFile at path.
func NewServerFile(path string) *ServerFile {
	return &ServerFile{Path: path}
}

// Save writes rec, creating the parent directory if needed.
func (f *ServerFile) Save(rec Record) error {
	if rec.PID <= 0 {
		return fmt.Errorf("invalid PID %d", rec.PID)
	}
	if err := os.MkdirAll(filepath.Dir(f.Path), 0o755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}
	data, err := yaml.Marshal(rec)
	if err != nil {
		return err
	}
	tmp := f.Path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, f.Path)
}

// Load reads the record. A file holding only a PID is accepted.
func (f *ServerFile) Load() (Record, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return Record{}, err
	}
	if pid, err := strconv.Atoi(strings.TrimSpace(string(data))); err == nil {
		return Record{PID: pid}, nil
	}
	var rec Record
	if err := yaml.Unmarshal(data, &rec); err != nil || rec.PID <= 0 {
		return Record{}, fmt.Errorf("invalid server file %s", f.Path)
	}
	return rec, nil
}

// Remove deletes the file. A missing file is not an error.
func (f *ServerFile) Remove() error {
	if err := os.Remove(f.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Running returns the record and whether its process is alive.
func (f *ServerFile) Running() (Record, bool) {
	rec, err := f.Load()
	if err != nil {
		return rec, false
	}
	return rec, alive(rec.PID)
}

// Stop asks the recorded server to exit and kills it if it is still alive
// after timeout. forced reports whether it had to be killed. The file is
// removed once the process is gone, and also when it names a dead process.
func (f *ServerFile) Stop(timeout time.Duration) (forced bool, err error) {
	rec, running := f.Running()
	if !running {
		_ = f.Remove()
		return false, ErrNotRunning
	}

	if err := terminate(rec.PID); err != nil {
		return false, fmt.Errorf("stop server (PID %d): %w", rec.PID, err)
	}
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if !alive(rec.PID) {
			return false, f.Remove()
		}
		time.Sleep(pollInterval)
	}

	if err := kill(rec.PID); err != nil {
		return true, fmt.Errorf("kill server (PID %d): %w", rec.PID, err)
	}
	return true, f.Remove()
}
