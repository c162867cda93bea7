package sink

import (
	"github.com/rs/zerolog"

	"github.com/fuseid-project/fuseid/internal/core"
)

// Sink consumes processed unified alerts. Write failures are non-fatal: the
// manager logs them and keeps going, and the alert still counts as
// processed.
type Sink interface {
	Name() string
	Write(alert *core.UnifiedAlert) error
	Close() error
}

// Manager fans processed alerts out to the configured sinks.
type Manager struct {
	sinks  []Sink
	logger zerolog.Logger
}

// NewManager builds the sink set from config. A sink that fails to
// initialize is skipped with a warning rather than aborting startup.
func NewManager(cfg core.OutputsConfig, logger zerolog.Logger) *Manager {
	m := &Manager{
		logger: logger.With().Str("component", "sink_manager").Logger(),
	}

	if cfg.Console.Enabled {
		m.sinks = append(m.sinks, NewConsoleSink(cfg.Console))
	}

	if cfg.File.Enabled {
		fs, err := NewFileSink(cfg.File)
		if err != nil {
			m.logger.Warn().Err(err).Msg("file sink disabled")
		} else {
			m.sinks = append(m.sinks, fs)
		}
	}

	if cfg.OpenSearch.Enabled {
		os, err := NewOpenSearchSink(cfg.OpenSearch)
		if err != nil {
			m.logger.Warn().Err(err).Msg("opensearch sink disabled")
		} else {
			m.sinks = append(m.sinks, os)
		}
	}

	if cfg.Webhook.Enabled {
		wh, err := NewWebhookSink(cfg.Webhook, logger)
		if err != nil {
			m.logger.Warn().Err(err).Msg("webhook sink disabled")
		} else {
			m.sinks = append(m.sinks, wh)
		}
	}

	for _, s := range m.sinks {
		m.logger.Info().Str("sink", s.Name()).Msg("sink enabled")
	}
	return m
}

// Handler returns an AlertHandler that writes the alert to every sink.
func (m *Manager) Handler() core.AlertHandler {
	return func(alert *core.UnifiedAlert) {
		for _, s := range m.sinks {
			if err := s.Write(alert); err != nil {
				m.logger.Error().Err(err).Str("sink", s.Name()).Str("alert_id", alert.ID).Msg("sink write failed")
			}
		}
	}
}

// Close closes all sinks.
func (m *Manager) Close() {
	for _, s := range m.sinks {
		if err := s.Close(); err != nil {
			m.logger.Error().Err(err).Str("sink", s.Name()).Msg("error closing sink")
		}
	}
}
