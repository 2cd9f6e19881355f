package logsink

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/votryx/votryx/internal/domain"
)

// FileSink appends log records to a per-session plain text file under dir
type FileSink struct {
	file *os.File
	mu   sync.Mutex
}

// NewFileSink creates the logs directory if needed and opens a new
// timestamped log file in it.
func NewFileSink(dir string) (*FileSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating logs dir: %w", err)
	}

	name := fmt.Sprintf("votryx-%s.log", time.Now().Format("20060102-150405"))
	f, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}

	return &FileSink{file: f}, nil
}

// Write appends one formatted record
func (s *FileSink) Write(entry domain.LogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := fmt.Fprintf(s.file, "%s [%s] %s\n",
		entry.Timestamp.Format("2006-01-02 15:04:05"), entry.Level, entry.Message)
	return err
}

// Close flushes and closes the log file
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}

// Path returns the log file path
func (s *FileSink) Path() string {
	return s.file.Name()
}
