package jobserver

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/CCSDForge/episciences-front-next-sub002/internal/rebuild"
)

// JobLog is the durable append-only record of job state transitions,
// one ISO-8601-stamped line per event, kept in addition to stdout.
type JobLog struct {
	mu   sync.Mutex
	file *os.File
	path string
}

// NewJobLog opens (or creates) the log file in append mode.
func NewJobLog(path string) (*JobLog, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open job log %s: %w", path, err)
	}
	return &JobLog{file: file, path: path}, nil
}

// Append writes one transition line.
func (l *JobLog) Append(jobID, journal, phase, message string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	line := fmt.Sprintf("%s job=%s journal=%s phase=%s %s\n",
		time.Now().UTC().Format(time.RFC3339), jobID, journal, phase, message)
	_, err := l.file.WriteString(line)
	return err
}

// Emitter adapts the log to the executor event stream. Raw build
// output lines are skipped; only state transitions are durable.
func (l *JobLog) Emitter() rebuild.Emitter {
	return rebuild.EmitterFunc(func(e rebuild.Event) {
		if e.Type == rebuild.TypeLog {
			return
		}
		msg := e.Message
		if msg == "" {
			msg = e.Type
		}
		_ = l.Append(e.JobID, e.Journal, string(e.Phase), msg)
	})
}

// Close flushes and closes the underlying file.
func (l *JobLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}
