package core

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
)

// Engine is the alert fusion engine: it owns the bus, the dedup cache, the
// correlator, and the dispatcher, and wires them into one pipeline.
type Engine struct {
	Config     *Config
	Bus        *Bus
	Dedup      *Deduplicator
	Correlator *Correlator
	Dispatcher *Dispatcher
	Recent     *AlertRing
	Logger     zerolog.Logger

	// ConfigPath is the file the config was loaded from, used for SIGHUP
	// reloads. Empty when running on pure defaults.
	ConfigPath string

	ctx    context.Context
	cancel context.CancelFunc
}

// NewEngine creates an engine from config: logger, rules, dedup cache,
// correlator, and dispatcher. The bus is connected in Start.
func NewEngine(cfg *Config) (*Engine, error) {
	var logger zerolog.Logger
	if cfg.Logging.Format == "json" {
		logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	} else {
		logger = zerolog.New(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}).With().Timestamp().Logger()
	}

	switch cfg.LogLevel() {
	case "debug":
		logger = logger.Level(zerolog.DebugLevel)
	case "warn":
		logger = logger.Level(zerolog.WarnLevel)
	case "error":
		logger = logger.Level(zerolog.ErrorLevel)
	default:
		logger = logger.Level(zerolog.InfoLevel)
	}

	rules, err := LoadRules(cfg.Correlation.RulesFile, logger)
	if err != nil {
		return nil, fmt.Errorf("loading correlation rules: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	dedup := NewDeduplicator(time.Duration(cfg.Dedup.WindowSeconds) * time.Second)
	correlator := NewCorrelator(cfg.Correlation, rules, logger)

	engine := &Engine{
		Config:     cfg,
		Dedup:      dedup,
		Correlator: correlator,
		Dispatcher: NewDispatcher(cfg.Pipeline, dedup, correlator, logger),
		Recent:     NewAlertRing(0),
		Logger:     logger.With().Str("component", "engine").Logger(),
		ctx:        ctx,
		cancel:     cancel,
	}
	engine.Dispatcher.AddHandler(engine.Recent.Add)
	return engine, nil
}

// Start connects the bus, starts workers and the cleanup loop, and
// subscribes the raw channels into the dispatcher queue.
func (e *Engine) Start() error {
	e.Logger.Info().Msg("starting fuseid engine")

	bus, err := NewBus(&e.Config.Bus, e.Logger)
	if err != nil {
		return fmt.Errorf("starting message bus: %w", err)
	}
	e.Bus = bus

	// Processed alerts go back out on the bus for downstream consumers.
	e.Dispatcher.AddHandler(func(alert *UnifiedAlert) {
		if err := e.Bus.PublishAlert(alert); err != nil {
			e.Logger.Error().Err(err).Str("alert_id", alert.ID).Msg("failed to publish alert to bus")
		}
	})

	e.Dispatcher.Run(e.ctx)
	e.Correlator.Start(e.ctx)

	for _, channel := range Channels() {
		ch := channel
		if err := e.Bus.SubscribeRaw(ch, func(data []byte) {
			e.Dispatcher.Submit(ch, data)
		}); err != nil {
			return fmt.Errorf("subscribing to %s channel: %w", ch, err)
		}
	}

	e.Logger.Info().
		Int("rules", len(e.Correlator.Rules())).
		Int("workers", e.Dispatcher.workers).
		Msg("fuseid engine started")

	return nil
}

// Run starts the engine and blocks until a shutdown signal is received,
// logging pipeline stats once a minute while running.
func (e *Engine) Run() error {
	if err := e.Start(); err != nil {
		return err
	}
	return e.Wait()
}

// Wait blocks until a shutdown signal arrives or the engine context is
// cancelled. SIGHUP triggers a config reload instead of shutting down.
func (e *Engine) Wait() error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	ticker := time.NewTicker(60 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case sig := <-sigCh:
			if sig == syscall.SIGHUP {
				if _, err := ReloadConfig(e, e.ConfigPath, e.Logger); err != nil {
					e.Logger.Error().Err(err).Msg("config reload failed")
				}
				continue
			}
			e.Logger.Info().Str("signal", sig.String()).Msg("shutdown signal received")
			return e.Shutdown()
		case <-e.ctx.Done():
			e.Logger.Info().Msg("context cancelled")
			return e.Shutdown()
		case <-ticker.C:
			stats := e.Dispatcher.Stats()
			e.Logger.Info().
				Int64("received", stats.TotalReceived).
				Int64("processed", stats.TotalProcessed).
				Int64("deduplicated", stats.TotalDeduplicated).
				Int64("dropped", stats.TotalDropped).
				Int64("correlations", stats.Correlations).
				Msg("pipeline stats")
		}
	}
}

// Shutdown gracefully stops the engine: cancel all loops, join workers with
// a bounded timeout, then close the bus.
func (e *Engine) Shutdown() error {
	e.Logger.Info().Msg("shutting down fuseid engine")
	e.cancel()

	if !e.Dispatcher.Wait(10 * time.Second) {
		e.Logger.Warn().Msg("workers did not drain within timeout, forcing shutdown")
	}

	if e.Bus != nil {
		if err := e.Bus.Close(); err != nil {
			e.Logger.Error().Err(err).Msg("error closing message bus")
		}
	}

	e.Logger.Info().Msg("fuseid engine stopped")
	return nil
}

// Context returns the engine's context.
func (e *Engine) Context() context.Context {
	return e.ctx
}
