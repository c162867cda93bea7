package core

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func testCorrelator(t *testing.T, cfg CorrelatorConfig) *Correlator {
	t.Helper()
	rules, err := LoadRules("", zerolog.Nop())
	if err != nil {
		t.Fatalf("loading rules: %v", err)
	}
	return NewCorrelator(cfg, rules, zerolog.Nop())
}

func nidsAlert(title, srcIP string) *UnifiedAlert {
	return NewUnifiedAlert(SourceNIDSSignature, SeverityMedium, title, "", map[string]interface{}{
		MetaSrcIP: srcIP,
	})
}

func TestCorrelator_PortScanToExploitation_Fires(t *testing.T) {
	c := testCorrelator(t, CorrelatorConfig{WindowSeconds: 300})

	if derived := c.Process(nidsAlert("TCP Port Scan Detected", "192.168.1.100")); len(derived) != 0 {
		t.Fatalf("first alert alone produced %d correlations", len(derived))
	}

	derived := c.Process(nidsAlert("SQL Injection Attempt", "192.168.1.100"))
	if len(derived) != 1 {
		t.Fatalf("got %d derived alerts, want exactly 1", len(derived))
	}

	d := derived[0]
	if d.Source != SourceCorrelation {
		t.Errorf("derived source = %s, want correlation", d.Source)
	}
	if d.Severity != SeverityCritical {
		t.Errorf("derived severity = %s, want CRITICAL", d.Severity)
	}
	if d.Title != "Port Scan to Exploitation" {
		t.Errorf("derived title = %q", d.Title)
	}
	if d.Metadata["correlation_rule_id"] != "CR001" {
		t.Errorf("correlation_rule_id = %v, want CR001", d.Metadata["correlation_rule_id"])
	}
	if d.Metadata["trigger_alert_id"] == nil || d.Metadata["trigger_alert_id"] == "" {
		t.Error("trigger_alert_id not set")
	}
	if d.Metadata["time_window_seconds"] != 600 {
		t.Errorf("time_window_seconds = %v, want 600", d.Metadata["time_window_seconds"])
	}
	if n, ok := d.Metadata["related_alert_count"].(int); !ok || n != 2 {
		t.Errorf("related_alert_count = %v, want 2", d.Metadata["related_alert_count"])
	}
	if ips, ok := d.Metadata["ip_addresses"].([]string); !ok || len(ips) != 1 || ips[0] != "192.168.1.100" {
		t.Errorf("ip_addresses = %v, want [192.168.1.100]", d.Metadata["ip_addresses"])
	}
}

func TestCorrelator_IPMismatch_DoesNotFire(t *testing.T) {
	c := testCorrelator(t, CorrelatorConfig{WindowSeconds: 300})

	c.Process(nidsAlert("TCP Port Scan Detected", "192.168.1.100"))
	derived := c.Process(nidsAlert("SQL Injection Attempt", "192.168.1.200"))
	if len(derived) != 0 {
		t.Errorf("got %d derived alerts for mismatched IPs, want 0", len(derived))
	}
}

func TestCorrelator_WindowExpiry_DoesNotFire(t *testing.T) {
	c := testCorrelator(t, CorrelatorConfig{WindowSeconds: 300})

	a := nidsAlert("TCP Port Scan Detected", "192.168.1.100")
	a.Timestamp = time.Now().UTC().Add(-11 * time.Minute) // outside CR001's 10 minute window
	c.Process(a)

	derived := c.Process(nidsAlert("SQL Injection Attempt", "192.168.1.100"))
	if len(derived) != 0 {
		t.Errorf("got %d derived alerts outside the window, want 0", len(derived))
	}
}

func TestCorrelator_SameHostPrivilegeEscalation(t *testing.T) {
	c := testCorrelator(t, CorrelatorConfig{WindowSeconds: 300})

	net := NewUnifiedAlert(SourceNIDSSignature, SeverityHigh, "Exploit Attempt", "", map[string]interface{}{
		MetaHostname: "db01",
	})
	c.Process(net)

	log := NewUnifiedAlert(SourceHIDSLog, SeverityHigh, "Sudo Privilege Escalation", "user ran sudo su", map[string]interface{}{
		MetaHostname: "db01",
	})
	derived := c.Process(log)

	var fired bool
	for _, d := range derived {
		if d.Metadata["correlation_rule_id"] == "CR007" {
			fired = true
			if d.Metadata[MetaHostname] != "db01" {
				t.Errorf("derived hostname = %v, want db01", d.Metadata[MetaHostname])
			}
		}
	}
	if !fired {
		t.Errorf("CR007 did not fire for same-host privilege escalation chain, derived = %v", derived)
	}
}

func TestCorrelator_MultipleRulesFireOnOneTrigger(t *testing.T) {
	c := testCorrelator(t, CorrelatorConfig{WindowSeconds: 300})

	c.Process(nidsAlert("UDP Flood Detected", "10.1.1.1"))
	c.Process(nidsAlert("Port Scan Sweep", "10.1.1.1"))
	derived := c.Process(nidsAlert("Buffer Overflow Exploit", "10.1.1.1"))

	ids := make(map[interface{}]bool)
	for _, d := range derived {
		ids[d.Metadata["correlation_rule_id"]] = true
	}
	if !ids["CR001"] {
		t.Errorf("CR001 did not fire, derived rules = %v", ids)
	}
	if !ids["CR008"] {
		t.Errorf("CR008 did not fire, derived rules = %v", ids)
	}
}

func TestCorrelator_DerivedDescriptionListsEvents(t *testing.T) {
	c := testCorrelator(t, CorrelatorConfig{WindowSeconds: 300})

	c.Process(nidsAlert("TCP Port Scan Detected", "192.168.1.100"))
	derived := c.Process(nidsAlert("SQL Injection Attempt", "192.168.1.100"))
	if len(derived) != 1 {
		t.Fatalf("got %d derived alerts", len(derived))
	}

	desc := derived[0].Description
	for _, want := range []string{
		"Correlation triggered by: SQL Injection Attempt",
		"Related events in last 600s",
		"- [nids_signature] TCP Port Scan Detected",
	} {
		if !strings.Contains(desc, want) {
			t.Errorf("description missing %q:\n%s", want, desc)
		}
	}
}

func TestCorrelator_DerivedDescriptionTruncatesLongEventList(t *testing.T) {
	c := testCorrelator(t, CorrelatorConfig{WindowSeconds: 300})

	for i := 0; i < 8; i++ {
		c.Process(nidsAlert(fmt.Sprintf("Port Scan Probe %d", i), "172.16.0.1"))
	}
	derived := c.Process(nidsAlert("Remote Exploit Attempt", "172.16.0.1"))
	if len(derived) == 0 {
		t.Fatal("expected CR001 to fire")
	}

	desc := derived[0].Description
	if !strings.Contains(desc, "more events") {
		t.Errorf("long event list not truncated:\n%s", desc)
	}
	if got := strings.Count(desc, "- ["); got != 5 {
		t.Errorf("listed %d events, want 5", got)
	}
}

func TestCorrelator_CleanupEmptiesHistoryAndIndices(t *testing.T) {
	c := testCorrelator(t, CorrelatorConfig{WindowSeconds: 300})
	now := time.Now()
	c.now = func() time.Time { return now }

	for i := 0; i < 20; i++ {
		a := NewUnifiedAlert(SourceNIDSSignature, SeverityLow, fmt.Sprintf("event %d", i), "", map[string]interface{}{
			MetaSrcIP:    fmt.Sprintf("10.0.0.%d", i),
			MetaHostname: fmt.Sprintf("host%d", i),
		})
		c.Process(a)
	}

	stats := c.Stats()
	if stats.EventHistorySize != 20 || stats.IndexedIPs != 20 || stats.IndexedHosts != 20 {
		t.Fatalf("unexpected pre-cleanup stats: %+v", stats)
	}

	// Advance past every rule's window; the largest built-in window is 1h.
	c.now = func() time.Time { return now.Add(2 * time.Hour) }
	c.Cleanup()

	stats = c.Stats()
	if stats.EventHistorySize != 0 {
		t.Errorf("history size after cleanup = %d, want 0", stats.EventHistorySize)
	}
	if stats.IndexedIPs != 0 {
		t.Errorf("indexed IPs after cleanup = %d, want 0", stats.IndexedIPs)
	}
	if stats.IndexedHosts != 0 {
		t.Errorf("indexed hosts after cleanup = %d, want 0", stats.IndexedHosts)
	}
	if len(c.bySource) != 0 {
		t.Errorf("source index after cleanup has %d buckets, want 0", len(c.bySource))
	}
}

func TestCorrelator_CapacityEvictionRemovesFromIndices(t *testing.T) {
	c := testCorrelator(t, CorrelatorConfig{WindowSeconds: 300, MaxHistory: 5})

	first := NewUnifiedAlert(SourceHIDSFile, SeverityLow, "oldest", "", map[string]interface{}{
		MetaSrcIP: "10.9.9.9",
	})
	c.Process(first)
	for i := 0; i < 5; i++ {
		c.Process(NewUnifiedAlert(SourceHIDSFile, SeverityLow, fmt.Sprintf("filler %d", i), "", nil))
	}

	stats := c.Stats()
	if stats.EventHistorySize != 5 {
		t.Errorf("history size = %d, want 5 (bounded)", stats.EventHistorySize)
	}
	if _, ok := c.byIP["10.9.9.9"]; ok {
		t.Error("evicted event still present in IP index")
	}
}

func TestCorrelator_StatsCounters(t *testing.T) {
	c := testCorrelator(t, CorrelatorConfig{WindowSeconds: 300})

	c.Process(nidsAlert("TCP Port Scan Detected", "192.168.1.100"))
	c.Process(nidsAlert("SQL Injection Attempt", "192.168.1.100"))

	stats := c.Stats()
	if stats.EventsProcessed != 2 {
		t.Errorf("events processed = %d, want 2", stats.EventsProcessed)
	}
	if stats.CorrelationsDetected != 1 {
		t.Errorf("correlations detected = %d, want 1", stats.CorrelationsDetected)
	}
	if stats.CorrelationsByRule["CR001"] != 1 {
		t.Errorf("CR001 count = %d, want 1", stats.CorrelationsByRule["CR001"])
	}
	if stats.ActiveRules != 10 {
		t.Errorf("active rules = %d, want 10", stats.ActiveRules)
	}
	if stats.MaxWindowSeconds != 3600 {
		t.Errorf("max window = %ds, want 3600", stats.MaxWindowSeconds)
	}
}
