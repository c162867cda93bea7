package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// indexedEvent wraps a UnifiedAlert held in the correlation window, with IPs
// and hostname precomputed so rule matching never re-parses metadata. Owned
// exclusively by the Correlator; never handed out.
type indexedEvent struct {
	alert     *UnifiedAlert
	timestamp time.Time
	ips       []string
	hostname  string
}

// Correlator detects multi-stage attacks by matching declarative rules
// against a sliding window of recent alerts from all sensors. All state
// (history plus the three lookup indices) lives under one mutex: rule
// evaluation reads several indices and must be atomic with respect to
// concurrent inserts and the periodic cleanup pass.
type Correlator struct {
	mu     sync.Mutex
	logger zerolog.Logger
	rules  []CorrelationRule

	history    []*indexedEvent
	maxHistory int
	byIP       map[string][]*indexedEvent
	byHost     map[string][]*indexedEvent
	bySource   map[Source][]*indexedEvent

	// maxWindow is the engine-wide lookback horizon: events older than this
	// are garbage to every rule and get removed by the cleanup pass.
	maxWindow       time.Duration
	cleanupInterval time.Duration

	processed    int64
	correlations int64
	byRule       map[string]int64

	// now is swappable for tests.
	now func() time.Time
}

// CorrelatorConfig holds correlation engine settings.
type CorrelatorConfig struct {
	WindowSeconds          int    `yaml:"window_seconds"`
	MaxHistory             int    `yaml:"max_history"`
	CleanupIntervalSeconds int    `yaml:"cleanup_interval_seconds"`
	RulesFile              string `yaml:"rules_file"`
}

// NewCorrelator creates a correlation engine with the given immutable rule set.
func NewCorrelator(cfg CorrelatorConfig, rules []CorrelationRule, logger zerolog.Logger) *Correlator {
	maxHistory := cfg.MaxHistory
	if maxHistory <= 0 {
		maxHistory = 10000
	}
	cleanup := time.Duration(cfg.CleanupIntervalSeconds) * time.Second
	if cleanup <= 0 {
		cleanup = 60 * time.Second
	}

	maxWindow := time.Duration(cfg.WindowSeconds) * time.Second
	for _, r := range rules {
		if w := r.window(); w > maxWindow {
			maxWindow = w
		}
	}
	if maxWindow <= 0 {
		maxWindow = 5 * time.Minute
	}

	return &Correlator{
		logger:          logger.With().Str("component", "correlator").Logger(),
		rules:           rules,
		maxHistory:      maxHistory,
		byIP:            make(map[string][]*indexedEvent),
		byHost:          make(map[string][]*indexedEvent),
		bySource:        make(map[Source][]*indexedEvent),
		maxWindow:       maxWindow,
		cleanupInterval: cleanup,
		byRule:          make(map[string]int64),
		now:             time.Now,
	}
}

// Process ingests an alert into the correlation window and evaluates every
// rule against it, returning any derived correlation alerts. Rules are
// independent: a fault in one rule is logged and skipped, never blocking the
// rest, and several rules may fire on the same trigger.
func (c *Correlator) Process(alert *UnifiedAlert) []*UnifiedAlert {
	c.mu.Lock()
	defer c.mu.Unlock()

	ev := newIndexedEvent(alert)
	c.insertLocked(ev)
	c.processed++

	var derived []*UnifiedAlert
	for i := range c.rules {
		rule := &c.rules[i]
		if out := c.evalRuleSafe(rule, ev); out != nil {
			derived = append(derived, out)
			c.correlations++
			c.byRule[rule.RuleID]++
			c.logger.Warn().
				Str("rule_id", rule.RuleID).
				Str("rule", rule.Name).
				Str("trigger_alert_id", alert.ID).
				Msg("correlation detected")
		}
	}
	return derived
}

func newIndexedEvent(alert *UnifiedAlert) *indexedEvent {
	ev := &indexedEvent{alert: alert, timestamp: alert.Timestamp}
	if ip := alert.MetaString(MetaSrcIP); ip != "" {
		ev.ips = append(ev.ips, ip)
	}
	if ip := alert.MetaString(MetaDstIP); ip != "" && !contains(ev.ips, ip) {
		ev.ips = append(ev.ips, ip)
	}
	ev.hostname = alert.MetaString(MetaHostname)
	return ev
}

// insertLocked appends the event to the bounded history and all indices,
// self-evicting the oldest entry when the history is at capacity. Eviction
// removes the entry from the indices too, so an index never references an
// event the history no longer holds.
func (c *Correlator) insertLocked(ev *indexedEvent) {
	if len(c.history) >= c.maxHistory {
		oldest := c.history[0]
		c.history = c.history[1:]
		c.unindexLocked(oldest)
	}
	c.history = append(c.history, ev)

	for _, ip := range ev.ips {
		c.byIP[ip] = append(c.byIP[ip], ev)
	}
	if ev.hostname != "" {
		c.byHost[ev.hostname] = append(c.byHost[ev.hostname], ev)
	}
	c.bySource[ev.alert.Source] = append(c.bySource[ev.alert.Source], ev)
}

func (c *Correlator) unindexLocked(ev *indexedEvent) {
	for _, ip := range ev.ips {
		c.byIP[ip] = removeEvent(c.byIP[ip], ev)
		if len(c.byIP[ip]) == 0 {
			delete(c.byIP, ip)
		}
	}
	if ev.hostname != "" {
		c.byHost[ev.hostname] = removeEvent(c.byHost[ev.hostname], ev)
		if len(c.byHost[ev.hostname]) == 0 {
			delete(c.byHost, ev.hostname)
		}
	}
	c.bySource[ev.alert.Source] = removeEvent(c.bySource[ev.alert.Source], ev)
	if len(c.bySource[ev.alert.Source]) == 0 {
		delete(c.bySource, ev.alert.Source)
	}
}

// evalRuleSafe evaluates one rule inside a recover so a faulty rule cannot
// take down evaluation of the remaining rules.
func (c *Correlator) evalRuleSafe(rule *CorrelationRule, trigger *indexedEvent) (derived *UnifiedAlert) {
	defer func() {
		if rec := recover(); rec != nil {
			c.logger.Error().
				Str("rule_id", rule.RuleID).
				Interface("panic", rec).
				Msg("rule evaluation panicked, skipping rule for this event")
			derived = nil
		}
	}()

	candidates := c.candidatesLocked(rule, trigger)
	if !c.ruleFires(rule, candidates) {
		return nil
	}
	return c.buildDerivedLocked(rule, trigger, candidates)
}

// candidatesLocked narrows the search space using the rule's constraints:
// the IP index buckets when same_ip applies, the hostname bucket when
// same_host applies, else the full history. Results are filtered to the
// rule's time window relative to the trigger event.
func (c *Correlator) candidatesLocked(rule *CorrelationRule, trigger *indexedEvent) []*indexedEvent {
	var pool []*indexedEvent
	switch {
	case rule.SameIP && len(trigger.ips) > 0:
		seen := make(map[*indexedEvent]bool)
		for _, ip := range trigger.ips {
			for _, ev := range c.byIP[ip] {
				if !seen[ev] {
					seen[ev] = true
					pool = append(pool, ev)
				}
			}
		}
	case rule.SameHost && trigger.hostname != "":
		pool = c.byHost[trigger.hostname]
	default:
		pool = c.history
	}

	cutoff := trigger.timestamp.Add(-rule.window())
	candidates := make([]*indexedEvent, 0, len(pool))
	for _, ev := range pool {
		if !ev.timestamp.Before(cutoff) {
			candidates = append(candidates, ev)
		}
	}
	return candidates
}

// ruleFires greedily assigns candidates to unfilled pattern slots in
// candidate iteration order. Each slot takes at most one event,
// first-match-wins. The rule fires when the number of satisfied distinct
// slots reaches the rule's requirement.
func (c *Correlator) ruleFires(rule *CorrelationRule, candidates []*indexedEvent) bool {
	matched := make(map[int]bool)
	for _, ev := range candidates {
		for i := range rule.Required {
			if matched[i] {
				continue
			}
			if rule.Required[i].Matches(ev) {
				matched[i] = true
				break
			}
		}
	}
	return len(matched) >= rule.requiredSlots()
}

// buildDerivedLocked constructs the derived correlation alert: rule
// severity, rule name as title, a description listing up to 5 contributing
// events, and metadata tying the alert back to the rule and its evidence.
func (c *Correlator) buildDerivedLocked(rule *CorrelationRule, trigger *indexedEvent, related []*indexedEvent) *UnifiedAlert {
	var sb strings.Builder
	sb.WriteString(rule.Description)
	sb.WriteString("\n\n")
	fmt.Fprintf(&sb, "Correlation triggered by: %s\n", trigger.alert.Title)
	fmt.Fprintf(&sb, "Related events in last %ds:\n", rule.TimeWindow)

	for i, ev := range related {
		if i == 5 {
			fmt.Fprintf(&sb, "  ... and %d more events\n", len(related)-5)
			break
		}
		fmt.Fprintf(&sb, "  - [%s] %s\n", ev.alert.Source, ev.alert.Title)
	}

	relatedIDs := make([]string, 0, len(related))
	for _, ev := range related {
		relatedIDs = append(relatedIDs, ev.alert.ID)
	}

	metadata := map[string]interface{}{
		"correlation_rule_id": rule.RuleID,
		"trigger_alert_id":    trigger.alert.ID,
		"related_alert_count": len(related),
		"related_alert_ids":   relatedIDs,
		"time_window_seconds": rule.TimeWindow,
	}
	if rule.SameIP && len(trigger.ips) > 0 {
		metadata["ip_addresses"] = append([]string(nil), trigger.ips...)
	}
	if rule.SameHost && trigger.hostname != "" {
		metadata[MetaHostname] = trigger.hostname
	}

	return NewUnifiedAlert(SourceCorrelation, rule.Severity, rule.Name, sb.String(), metadata)
}

// Start begins the periodic cleanup loop. It stops when ctx is cancelled.
func (c *Correlator) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(c.cleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.Cleanup()
			}
		}
	}()
	c.logger.Info().
		Int("rules", len(c.rules)).
		Dur("max_window", c.maxWindow).
		Msg("correlator started")
}

// Cleanup removes events older than the engine's maximum window from the
// history and all three indices.
func (c *Correlator) Cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	cutoff := c.now().Add(-c.maxWindow)
	kept := c.history[:0]
	for _, ev := range c.history {
		if ev.timestamp.Before(cutoff) {
			c.unindexLocked(ev)
		} else {
			kept = append(kept, ev)
		}
	}
	c.history = kept
}

// Rules returns the loaded rule set.
func (c *Correlator) Rules() []CorrelationRule {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rules
}

// ReplaceRules swaps in a new compiled rule set and recomputes the lookback
// horizon. Used by config reload; in-flight evaluation finishes against the
// old set.
func (c *Correlator) ReplaceRules(rules []CorrelationRule, windowSeconds int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	maxWindow := time.Duration(windowSeconds) * time.Second
	for _, r := range rules {
		if w := r.window(); w > maxWindow {
			maxWindow = w
		}
	}
	if maxWindow <= 0 {
		maxWindow = 5 * time.Minute
	}

	c.rules = rules
	c.maxWindow = maxWindow
}

// CorrelatorStats is a snapshot of correlation engine state.
type CorrelatorStats struct {
	EventsProcessed      int64            `json:"events_processed"`
	CorrelationsDetected int64            `json:"correlations_detected"`
	CorrelationsByRule   map[string]int64 `json:"correlations_by_rule"`
	EventHistorySize     int              `json:"event_history_size"`
	IndexedIPs           int              `json:"indexed_ips"`
	IndexedHosts         int              `json:"indexed_hosts"`
	ActiveRules          int              `json:"active_rules"`
	MaxWindowSeconds     int              `json:"max_window_seconds"`
}

// Stats returns a snapshot of the correlator's counters and window sizes.
func (c *Correlator) Stats() CorrelatorStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	byRule := make(map[string]int64, len(c.byRule))
	for k, v := range c.byRule {
		byRule[k] = v
	}
	return CorrelatorStats{
		EventsProcessed:      c.processed,
		CorrelationsDetected: c.correlations,
		CorrelationsByRule:   byRule,
		EventHistorySize:     len(c.history),
		IndexedIPs:           len(c.byIP),
		IndexedHosts:         len(c.byHost),
		ActiveRules:          len(c.rules),
		MaxWindowSeconds:     int(c.maxWindow / time.Second),
	}
}

func removeEvent(events []*indexedEvent, target *indexedEvent) []*indexedEvent {
	for i, ev := range events {
		if ev == target {
			return append(events[:i], events[i+1:]...)
		}
	}
	return events
}

func contains(values []string, v string) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}
