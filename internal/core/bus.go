package core

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// Raw alert channels map to NATS subjects under ids.raw.; unified alerts go
// out on ids.alerts.<source>.<severity>.
const (
	subjectRawPrefix   = "ids.raw."
	subjectAlertPrefix = "ids.alerts."
)

// Bus wraps NATS JetStream for alert ingestion and publishing. With
// cfg.Embedded it runs an in-process NATS server so a single binary works
// without external infrastructure.
type Bus struct {
	nc     *nats.Conn
	js     nats.JetStreamContext
	ns     *server.Server
	logger zerolog.Logger
	mu     sync.RWMutex
	subs   []*nats.Subscription

	metrics *BusMetrics
}

// BusMetrics tracks bus performance counters.
type BusMetrics struct {
	mu              sync.Mutex
	RawReceived     int64 `json:"raw_received"`
	AlertsPublished int64 `json:"alerts_published"`
	PublishFailed   int64 `json:"publish_failed"`
}

// NewBus creates a Bus. If cfg.Embedded is true, it starts an embedded NATS
// server first and connects to it.
func NewBus(cfg *BusConfig, logger zerolog.Logger) (*Bus, error) {
	bus := &Bus{
		logger:  logger.With().Str("component", "bus").Logger(),
		subs:    make([]*nats.Subscription, 0),
		metrics: &BusMetrics{},
	}

	if cfg.Embedded {
		if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
			return nil, fmt.Errorf("creating NATS data dir: %w", err)
		}

		opts := &server.Options{
			Host:      "127.0.0.1",
			Port:      cfg.Port,
			JetStream: true,
			StoreDir:  cfg.DataDir,
			NoLog:     true,
			NoSigs:    true,
		}

		ns, err := server.NewServer(opts)
		if err != nil {
			return nil, fmt.Errorf("creating embedded NATS server: %w", err)
		}

		ns.Start()

		if !ns.ReadyForConnections(10 * time.Second) {
			return nil, fmt.Errorf("embedded NATS server failed to start within timeout")
		}

		bus.ns = ns
		bus.logger.Info().Int("port", cfg.Port).Msg("embedded NATS server started")
	}

	url := cfg.URL
	if cfg.Embedded {
		url = fmt.Sprintf("nats://127.0.0.1:%d", cfg.Port)
	}

	nc, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(60),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				bus.logger.Warn().Err(err).Msg("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			bus.logger.Info().Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS: %w", err)
	}
	bus.nc = nc

	js, err := nc.JetStream()
	if err != nil {
		return nil, fmt.Errorf("creating JetStream context: %w", err)
	}
	bus.js = js

	// Raw alert records published by the external sensors.
	rawStreamCfg := &nats.StreamConfig{
		Name:      "IDS_RAW",
		Subjects:  []string{"ids.raw.>"},
		Retention: nats.LimitsPolicy,
		MaxAge:    24 * time.Hour * 7,
		MaxBytes:  1024 * 1024 * 1024,
		Storage:   nats.FileStorage,
		Discard:   nats.DiscardOld,
	}
	if err := bus.ensureStream(rawStreamCfg); err != nil {
		return nil, err
	}

	// Normalized and correlated alerts for downstream consumers.
	alertsStreamCfg := &nats.StreamConfig{
		Name:      "IDS_ALERTS",
		Subjects:  []string{"ids.alerts.>"},
		Retention: nats.LimitsPolicy,
		MaxAge:    24 * time.Hour * 30,
		MaxBytes:  512 * 1024 * 1024,
		Storage:   nats.FileStorage,
		Discard:   nats.DiscardOld,
	}
	if err := bus.ensureStream(alertsStreamCfg); err != nil {
		return nil, err
	}

	bus.logger.Info().Str("url", url).Msg("connected to NATS JetStream")
	return bus, nil
}

// ensureStream creates the stream, updating it when it already exists with a
// different config from a previous version.
func (b *Bus) ensureStream(cfg *nats.StreamConfig) error {
	if _, err := b.js.AddStream(cfg); err != nil {
		if _, updateErr := b.js.UpdateStream(cfg); updateErr != nil {
			return fmt.Errorf("creating/updating stream %s: %w (original: %v)", cfg.Name, updateErr, err)
		}
	}
	return nil
}

// SubscribeRaw creates a durable subscription to one raw alert channel.
// The handler receives the raw JSON payload; acking happens here once the
// handler returns so a panicking handler surfaces instead of wedging the
// consumer.
func (b *Bus) SubscribeRaw(channel Channel, handler func(data []byte)) error {
	subject := subjectRawPrefix + string(channel)
	durable := "fuseid-raw-" + string(channel)

	sub, err := b.js.Subscribe(subject, func(msg *nats.Msg) {
		b.metrics.mu.Lock()
		b.metrics.RawReceived++
		b.metrics.mu.Unlock()
		handler(msg.Data)
		_ = msg.Ack()
	}, nats.DeliverNew(), nats.AckExplicit(), nats.Durable(durable))
	if err != nil {
		return fmt.Errorf("subscribing to %s: %w", subject, err)
	}

	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()

	b.logger.Debug().Str("subject", subject).Str("durable", durable).Msg("subscribed")
	return nil
}

// PublishAlert publishes a unified alert to the output stream.
func (b *Bus) PublishAlert(alert *UnifiedAlert) error {
	data, err := alert.Marshal()
	if err != nil {
		return fmt.Errorf("marshaling alert: %w", err)
	}

	subject := fmt.Sprintf("%s%s.%s", subjectAlertPrefix, alert.Source, alert.Severity)
	if _, err := b.js.Publish(subject, data); err != nil {
		b.metrics.mu.Lock()
		b.metrics.PublishFailed++
		b.metrics.mu.Unlock()
		return fmt.Errorf("publishing alert to %s: %w", subject, err)
	}

	b.metrics.mu.Lock()
	b.metrics.AlertsPublished++
	b.metrics.mu.Unlock()

	b.logger.Debug().
		Str("alert_id", alert.ID).
		Str("subject", subject).
		Str("severity", alert.Severity.String()).
		Msg("alert published")

	return nil
}

// PublishRaw publishes a raw alert record on a channel. Used by tests and
// by operators injecting synthetic alerts.
func (b *Bus) PublishRaw(channel Channel, data []byte) error {
	subject := subjectRawPrefix + string(channel)
	if _, err := b.js.Publish(subject, data); err != nil {
		return fmt.Errorf("publishing raw alert to %s: %w", subject, err)
	}
	return nil
}

// Close shuts down the bus, unsubscribing all consumers and stopping the
// embedded server if one is running.
func (b *Bus) Close() error {
	b.mu.Lock()
	for _, sub := range b.subs {
		_ = sub.Unsubscribe()
	}
	b.subs = nil
	b.mu.Unlock()

	if b.nc != nil {
		b.nc.Close()
	}

	if b.ns != nil {
		b.ns.Shutdown()
		b.ns.WaitForShutdown()
		b.logger.Info().Msg("embedded NATS server stopped")
	}

	return nil
}

// IsConnected returns true if the NATS connection is active.
func (b *Bus) IsConnected() bool {
	return b.nc != nil && b.nc.IsConnected()
}

// GetMetrics returns a snapshot of bus metrics.
func (b *Bus) GetMetrics() map[string]int64 {
	b.metrics.mu.Lock()
	defer b.metrics.mu.Unlock()
	return map[string]int64{
		"raw_received":     b.metrics.RawReceived,
		"alerts_published": b.metrics.AlertsPublished,
		"publish_failed":   b.metrics.PublishFailed,
	}
}
