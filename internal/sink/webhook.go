package sink

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/fuseid-project/fuseid/internal/core"
)

// webhookDelivery is one alert on its way to the webhook endpoint.
type webhookDelivery struct {
	alert    *core.UnifiedAlert
	attempts int
	lastErr  string
}

// DeadLetter is a delivery that exhausted its retries, kept for inspection.
type DeadLetter struct {
	AlertID   string    `json:"alert_id"`
	Title     string    `json:"title"`
	Attempts  int       `json:"attempts"`
	FailedAt  time.Time `json:"failed_at"`
	LastError string    `json:"last_error"`
}

// WebhookSink posts alerts to an HTTP endpoint. Delivery is asynchronous
// with exponential backoff; a transient 503 from the receiver must not drop
// a CRITICAL alert. After repeated failures a circuit breaker pauses
// delivery so a dead endpoint does not burn workers on timeouts.
type WebhookSink struct {
	cfg    core.WebhookSinkConfig
	logger zerolog.Logger
	queue  chan *webhookDelivery
	client *http.Client

	dlMu       sync.RWMutex
	deadLetter []DeadLetter

	cbMu       sync.Mutex
	cbFailures int
	cbOpenedAt time.Time

	minSeverity core.Severity

	// Retry tuning, fixed for production, shortened in tests.
	maxRetries     int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	circuitTrips   int
	circuitPause   time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

const webhookMaxDeadLetters = 500

// NewWebhookSink creates a webhook sink and starts its delivery workers.
func NewWebhookSink(cfg core.WebhookSinkConfig, logger zerolog.Logger) (*WebhookSink, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("webhook sink requires a url")
	}

	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 1000
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 2
	}

	minSev := core.SeverityInfo
	if cfg.MinSeverity != "" {
		minSev = core.ParseSeverity(cfg.MinSeverity)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &WebhookSink{
		cfg:            cfg,
		logger:         logger.With().Str("component", "webhook_sink").Logger(),
		queue:          make(chan *webhookDelivery, queueSize),
		client:         &http.Client{Timeout: 15 * time.Second},
		minSeverity:    minSev,
		maxRetries:     5,
		initialBackoff: time.Second,
		maxBackoff:     30 * time.Second,
		circuitTrips:   5,
		circuitPause:   60 * time.Second,
		ctx:            ctx,
		cancel:         cancel,
	}

	for i := 0; i < workers; i++ {
		s.wg.Add(1)
		go s.worker()
	}

	s.logger.Info().Str("url", cfg.URL).Int("workers", workers).Msg("webhook sink started")
	return s, nil
}

func (s *WebhookSink) Name() string { return "webhook" }

// Write enqueues the alert for asynchronous delivery. A full queue drops the
// alert into the dead letter buffer rather than blocking the pipeline.
func (s *WebhookSink) Write(alert *core.UnifiedAlert) error {
	if alert.Severity < s.minSeverity {
		return nil
	}

	d := &webhookDelivery{alert: alert}
	select {
	case s.queue <- d:
		return nil
	default:
		s.addDeadLetter(d, "delivery queue full")
		return fmt.Errorf("webhook queue full, alert %s dropped", alert.ID)
	}
}

// Close stops the workers. Queued deliveries that have not started are
// abandoned.
func (s *WebhookSink) Close() error {
	s.cancel()
	s.wg.Wait()
	return nil
}

// DeadLetters returns up to limit of the most recent failed deliveries.
func (s *WebhookSink) DeadLetters(limit int) []DeadLetter {
	s.dlMu.RLock()
	defer s.dlMu.RUnlock()

	if limit <= 0 || limit > len(s.deadLetter) {
		limit = len(s.deadLetter)
	}
	out := make([]DeadLetter, limit)
	copy(out, s.deadLetter[len(s.deadLetter)-limit:])
	return out
}

func (s *WebhookSink) worker() {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			return
		case d := <-s.queue:
			s.deliver(d)
		}
	}
}

func (s *WebhookSink) deliver(d *webhookDelivery) {
	if s.circuitOpen() {
		s.addDeadLetter(d, "circuit breaker open")
		return
	}

	data, err := d.alert.Marshal()
	if err != nil {
		s.addDeadLetter(d, fmt.Sprintf("marshal error: %v", err))
		return
	}

	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		d.attempts = attempt + 1

		req, err := http.NewRequestWithContext(s.ctx, http.MethodPost, s.cfg.URL, bytes.NewReader(data))
		if err != nil {
			s.addDeadLetter(d, fmt.Sprintf("building request: %v", err))
			return
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", "fuseid-webhook/1.0")
		req.Header.Set("X-FuseID-Alert-ID", d.alert.ID)
		req.Header.Set("X-FuseID-Attempt", fmt.Sprintf("%d", d.attempts))
		for k, v := range s.cfg.Headers {
			req.Header.Set(k, v)
		}

		resp, err := s.client.Do(req)
		if err != nil {
			d.lastErr = fmt.Sprintf("request failed: %v", err)
			s.recordFailure()
			if attempt < s.maxRetries {
				s.backoff(attempt)
				continue
			}
			s.addDeadLetter(d, d.lastErr)
			return
		}
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			s.recordSuccess()
			s.logger.Debug().
				Str("alert_id", d.alert.ID).
				Int("attempts", d.attempts).
				Msg("webhook delivered")
			return
		}

		// 4xx other than 429 will never succeed on retry.
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			s.addDeadLetter(d, fmt.Sprintf("client error: HTTP %d", resp.StatusCode))
			return
		}

		d.lastErr = fmt.Sprintf("server error: HTTP %d", resp.StatusCode)
		s.recordFailure()
		if attempt < s.maxRetries {
			s.backoff(attempt)
		}
	}

	s.addDeadLetter(d, d.lastErr)
}

func (s *WebhookSink) backoff(attempt int) {
	delay := time.Duration(float64(s.initialBackoff) * math.Pow(2, float64(attempt)))
	if delay > s.maxBackoff {
		delay = s.maxBackoff
	}
	select {
	case <-time.After(delay):
	case <-s.ctx.Done():
	}
}

func (s *WebhookSink) addDeadLetter(d *webhookDelivery, reason string) {
	s.dlMu.Lock()
	if len(s.deadLetter) >= webhookMaxDeadLetters {
		s.deadLetter = s.deadLetter[webhookMaxDeadLetters/10:]
	}
	s.deadLetter = append(s.deadLetter, DeadLetter{
		AlertID:   d.alert.ID,
		Title:     d.alert.Title,
		Attempts:  d.attempts,
		FailedAt:  time.Now().UTC(),
		LastError: reason,
	})
	s.dlMu.Unlock()

	s.logger.Warn().
		Str("alert_id", d.alert.ID).
		Int("attempts", d.attempts).
		Str("error", reason).
		Msg("webhook delivery moved to dead letter")
}

func (s *WebhookSink) circuitOpen() bool {
	s.cbMu.Lock()
	defer s.cbMu.Unlock()
	if s.cbOpenedAt.IsZero() {
		return false
	}
	if time.Since(s.cbOpenedAt) < s.circuitPause {
		return true
	}
	// Half-open, allow the next delivery through.
	s.cbOpenedAt = time.Time{}
	s.cbFailures = 0
	return false
}

func (s *WebhookSink) recordFailure() {
	s.cbMu.Lock()
	defer s.cbMu.Unlock()
	s.cbFailures++
	if s.cbFailures >= s.circuitTrips && s.cbOpenedAt.IsZero() {
		s.cbOpenedAt = time.Now()
		s.logger.Warn().Int("failures", s.cbFailures).Msg("webhook circuit breaker opened")
	}
}

func (s *WebhookSink) recordSuccess() {
	s.cbMu.Lock()
	defer s.cbMu.Unlock()
	s.cbFailures = 0
	s.cbOpenedAt = time.Time{}
}
