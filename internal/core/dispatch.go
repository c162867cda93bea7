package core

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// AlertHandler consumes a fully processed alert. Handlers run on worker
// goroutines after the correlator lock has been released, so they may block
// on I/O without stalling rule evaluation.
type AlertHandler func(alert *UnifiedAlert)

// queueItem is one unit of work: either a raw record from a bus channel or
// an already-canonical alert re-entering the pipeline (correlation feedback).
type queueItem struct {
	channel Channel
	data    []byte
	alert   *UnifiedAlert
}

// Dispatcher owns the bounded work queue and the worker pool that drives
// alerts through normalize → dedup → enrich → correlate → fan-out.
type Dispatcher struct {
	logger     zerolog.Logger
	queue      chan queueItem
	dedup      *Deduplicator
	correlator *Correlator
	handlers   []AlertHandler
	workers    int

	wg sync.WaitGroup

	statsMu sync.Mutex
	stats   pipelineCounters
}

type pipelineCounters struct {
	received     int64
	processed    int64
	deduplicated int64
	dropped      int64
	errors       int64
	correlations int64
	byChannel    map[Channel]int64
	bySeverity   map[Severity]int64
}

// NewDispatcher creates the pipeline dispatcher. Handlers are registered
// before Run and never mutated afterwards.
func NewDispatcher(cfg PipelineConfig, dedup *Deduplicator, correlator *Correlator, logger zerolog.Logger) *Dispatcher {
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 10000
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 2
	}
	return &Dispatcher{
		logger:     logger.With().Str("component", "dispatcher").Logger(),
		queue:      make(chan queueItem, queueSize),
		dedup:      dedup,
		correlator: correlator,
		workers:    workers,
		stats: pipelineCounters{
			byChannel:  make(map[Channel]int64),
			bySeverity: make(map[Severity]int64),
		},
	}
}

// AddHandler registers a fan-out handler for processed alerts. Not safe to
// call once Run has started.
func (d *Dispatcher) AddHandler(h AlertHandler) {
	d.handlers = append(d.handlers, h)
}

// Submit enqueues a raw record from a bus channel. A full queue is
// backpressure, not an error: the record is dropped and counted.
func (d *Dispatcher) Submit(channel Channel, data []byte) {
	d.statsMu.Lock()
	d.stats.received++
	d.stats.byChannel[channel]++
	d.statsMu.Unlock()

	select {
	case d.queue <- queueItem{channel: channel, data: data}:
	default:
		d.statsMu.Lock()
		d.stats.dropped++
		d.statsMu.Unlock()
		d.logger.Warn().Str("channel", string(channel)).Msg("work queue full, dropping alert")
	}
}

// submitDerived re-enters a correlation-derived alert into the pipeline.
func (d *Dispatcher) submitDerived(alert *UnifiedAlert) {
	select {
	case d.queue <- queueItem{alert: alert}:
	default:
		d.statsMu.Lock()
		d.stats.dropped++
		d.statsMu.Unlock()
		d.logger.Warn().Str("alert_id", alert.ID).Msg("work queue full, dropping derived alert")
	}
}

// Run starts the worker pool. Workers drain the queue until ctx is
// cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.worker(ctx)
	}
	d.logger.Info().Int("workers", d.workers).Int("queue_size", cap(d.queue)).Msg("dispatcher started")
}

func (d *Dispatcher) worker(ctx context.Context) {
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case item := <-d.queue:
			d.process(item)
		}
	}
}

// Wait blocks until all workers have exited or the timeout elapses.
func (d *Dispatcher) Wait(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

func (d *Dispatcher) process(item queueItem) {
	alert := item.alert
	if alert == nil {
		var raw map[string]interface{}
		if err := json.Unmarshal(item.data, &raw); err != nil {
			d.statsMu.Lock()
			d.stats.errors++
			d.statsMu.Unlock()
			d.logger.Warn().Err(err).Str("channel", string(item.channel)).Msg("dropping malformed raw alert")
			return
		}

		var err error
		alert, err = NormalizeAlert(raw, item.channel)
		if err != nil {
			d.statsMu.Lock()
			d.stats.errors++
			d.statsMu.Unlock()
			d.logger.Warn().Err(err).Msg("dropping alert from unknown channel")
			return
		}
	}

	if d.dedup.IsDuplicate(alert) {
		d.statsMu.Lock()
		d.stats.deduplicated++
		d.statsMu.Unlock()
		d.logger.Debug().Str("title", alert.Title).Msg("duplicate alert suppressed")
		return
	}

	EnrichAlert(alert)

	derived := d.correlator.Process(alert)
	for _, da := range derived {
		d.submitDerived(da)
	}

	d.statsMu.Lock()
	d.stats.processed++
	d.stats.bySeverity[alert.Severity]++
	d.stats.correlations += int64(len(derived))
	d.statsMu.Unlock()

	// Fan-out happens after the correlator lock is released; sink I/O is
	// slow and must never serialize rule evaluation.
	for _, h := range d.handlers {
		h(alert)
	}
}

// PipelineStats is a snapshot of pipeline counters.
type PipelineStats struct {
	TotalReceived     int64            `json:"total_received"`
	TotalProcessed    int64            `json:"total_processed"`
	TotalDeduplicated int64            `json:"total_deduplicated"`
	TotalDropped      int64            `json:"total_dropped"`
	TotalErrors       int64            `json:"total_errors"`
	Correlations      int64            `json:"correlations"`
	BySource          map[string]int64 `json:"by_source"`
	BySeverity        map[string]int64 `json:"by_severity"`
	QueueDepth        int              `json:"queue_depth"`
}

// Stats returns a snapshot of the pipeline counters.
func (d *Dispatcher) Stats() PipelineStats {
	d.statsMu.Lock()
	defer d.statsMu.Unlock()

	bySource := make(map[string]int64, len(d.stats.byChannel))
	for ch, n := range d.stats.byChannel {
		bySource[string(ch)] = n
	}
	bySeverity := make(map[string]int64, len(d.stats.bySeverity))
	for sev, n := range d.stats.bySeverity {
		bySeverity[sev.String()] = n
	}

	return PipelineStats{
		TotalReceived:     d.stats.received,
		TotalProcessed:    d.stats.processed,
		TotalDeduplicated: d.stats.deduplicated,
		TotalDropped:      d.stats.dropped,
		TotalErrors:       d.stats.errors,
		Correlations:      d.stats.correlations,
		BySource:          bySource,
		BySeverity:        bySeverity,
		QueueDepth:        len(d.queue),
	}
}
