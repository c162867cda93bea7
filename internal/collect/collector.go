package collect

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/fuseid-project/fuseid/internal/core"
)

// RawPublisher publishes raw sensor records onto a bus channel. Satisfied by
// *core.Bus.
type RawPublisher interface {
	PublishRaw(channel core.Channel, data []byte) error
}

// Manager runs one file collector per configured sensor source. Sensors that
// cannot speak NATS directly write NDJSON alert files; the collectors tail
// those files and forward each record onto the raw bus channel.
type Manager struct {
	mu         sync.Mutex
	collectors []*FileCollector
	logger     zerolog.Logger
}

// NewManager creates a collector manager.
func NewManager(logger zerolog.Logger) *Manager {
	return &Manager{
		logger: logger.With().Str("component", "collector_manager").Logger(),
	}
}

// StartAll creates and starts collectors from config. A source that fails to
// start is skipped with an error log; the rest keep running.
func (m *Manager) StartAll(ctx context.Context, cfg core.CollectorsConfig, bus RawPublisher) {
	for _, src := range cfg.Sources {
		channel := core.Channel(src.Channel)
		if !validChannel(channel) {
			m.logger.Warn().Str("channel", src.Channel).Str("path", src.Path).Msg("unknown collector channel, skipping")
			continue
		}

		c := NewFileCollector(channel, src.Path)
		if err := c.Start(ctx, bus, m.logger); err != nil {
			m.logger.Error().Err(err).Str("path", src.Path).Msg("failed to start collector")
			continue
		}

		m.mu.Lock()
		m.collectors = append(m.collectors, c)
		m.mu.Unlock()

		m.logger.Info().Str("channel", src.Channel).Str("path", src.Path).Msg("collector started")
	}
}

// StopAll stops all running collectors.
func (m *Manager) StopAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.collectors {
		c.Stop()
	}
	m.collectors = nil
}

// Count returns the number of running collectors.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.collectors)
}

func validChannel(ch core.Channel) bool {
	for _, known := range core.Channels() {
		if ch == known {
			return true
		}
	}
	return false
}

// FileCollector tails one NDJSON sensor file and publishes each valid JSON
// line to the raw bus channel. Non-JSON lines are counted and skipped.
type FileCollector struct {
	channel core.Channel
	path    string
	cancel  context.CancelFunc

	mu        sync.Mutex
	forwarded int64
	skipped   int64
}

// NewFileCollector creates a collector for one sensor file.
func NewFileCollector(channel core.Channel, path string) *FileCollector {
	return &FileCollector{channel: channel, path: path}
}

// Start begins tailing the file. It returns an error only when the file
// cannot be opened; tailing itself runs in the background.
func (c *FileCollector) Start(ctx context.Context, bus RawPublisher, logger zerolog.Logger) error {
	ctx, c.cancel = context.WithCancel(ctx)
	logger = logger.With().Str("collector", string(c.channel)).Str("path", c.path).Logger()

	return tailFile(ctx, c.path, func(line string) {
		if !json.Valid([]byte(line)) {
			c.mu.Lock()
			c.skipped++
			c.mu.Unlock()
			logger.Debug().Msg("skipping non-JSON line")
			return
		}
		if err := bus.PublishRaw(c.channel, []byte(line)); err != nil {
			logger.Error().Err(err).Msg("failed to forward sensor record")
			return
		}
		c.mu.Lock()
		c.forwarded++
		c.mu.Unlock()
	}, logger)
}

// Stop stops the collector.
func (c *FileCollector) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
}

// Forwarded returns how many records the collector has published.
func (c *FileCollector) Forwarded() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.forwarded
}

// tailFile seeks to the end of the file and follows new lines, reopening the
// file when rotation truncates or replaces it.
func tailFile(ctx context.Context, path string, handler func(line string), logger zerolog.Logger) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}

	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		f.Close()
		return fmt.Errorf("seeking to end of %s: %w", path, err)
	}

	go func() {
		defer f.Close()
		reader := bufio.NewReader(f)
		var lastSize int64
		if info, err := f.Stat(); err == nil {
			lastSize = info.Size()
		}

		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			line, err := reader.ReadString('\n')
			if err != nil {
				if err == io.EOF {
					if info, statErr := os.Stat(path); statErr == nil {
						if info.Size() < lastSize {
							logger.Info().Msg("sensor file rotated, reopening")
							f.Close()
							time.Sleep(100 * time.Millisecond)
							newF, openErr := os.Open(path)
							if openErr != nil {
								logger.Error().Err(openErr).Msg("failed to reopen after rotation")
								return
							}
							f = newF
							reader = bufio.NewReader(f)
							lastSize = 0
							continue
						}
						lastSize = info.Size()
					}
					time.Sleep(250 * time.Millisecond)
					continue
				}
				if ctx.Err() != nil {
					return
				}
				logger.Error().Err(err).Msg("read error")
				time.Sleep(time.Second)
				continue
			}

			if info, statErr := f.Stat(); statErr == nil {
				lastSize = info.Size()
			}

			if len(line) > 1 {
				handler(line[:len(line)-1])
			}
		}
	}()

	return nil
}
