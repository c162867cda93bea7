package sink

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fuseid-project/fuseid/internal/core"
)

// FileSink appends alerts to a newline-delimited JSON log, one object per
// line, synced to disk per write so a crash never loses acknowledged alerts.
type FileSink struct {
	mu   sync.Mutex
	file *os.File
	path string
}

// NewFileSink opens (creating if needed) the alert log for appending.
func NewFileSink(cfg core.FileSinkConfig) (*FileSink, error) {
	if err := os.MkdirAll(cfg.Directory, 0755); err != nil {
		return nil, fmt.Errorf("creating alert log directory: %w", err)
	}

	path := filepath.Join(cfg.Directory, cfg.Filename)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening alert log: %w", err)
	}
	return &FileSink{file: f, path: path}, nil
}

func (s *FileSink) Name() string { return "file" }

func (s *FileSink) Write(alert *core.UnifiedAlert) error {
	data, err := alert.Marshal()
	if err != nil {
		return fmt.Errorf("marshaling alert: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("writing alert log: %w", err)
	}
	return s.file.Sync()
}

func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}

// Path returns the alert log path.
func (s *FileSink) Path() string { return s.path }
