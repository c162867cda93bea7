package core

import (
	"testing"
	"time"
)

func TestNormalizeAlert_NIDSSignature(t *testing.T) {
	raw := map[string]interface{}{
		"timestamp": "2026-08-30T10:15:00Z",
		"severity":  "HIGH",
		"name":      "SQL Injection Attempt",
		"message":   "SQL injection detected in HTTP request",
		"src_ip":    "192.168.1.100",
		"dst_ip":    "10.0.0.50",
		"src_port":  float64(54321),
		"dst_port":  float64(80),
		"protocol":  "TCP",
	}

	a, err := NormalizeAlert(raw, ChannelNIDS)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if a.Source != SourceNIDSSignature {
		t.Errorf("source = %s, want nids_signature", a.Source)
	}
	if a.Severity != SeverityHigh {
		t.Errorf("severity = %s, want HIGH", a.Severity)
	}
	if a.Title != "SQL Injection Attempt" {
		t.Errorf("title = %q", a.Title)
	}
	if a.Description != "SQL injection detected in HTTP request" {
		t.Errorf("description = %q", a.Description)
	}
	if a.MetaString(MetaSrcIP) != "192.168.1.100" || a.MetaString(MetaDstIP) != "10.0.0.50" {
		t.Errorf("IPs not carried through: %v", a.Metadata)
	}
	want := time.Date(2026, 8, 30, 10, 15, 0, 0, time.UTC)
	if !a.Timestamp.Equal(want) {
		t.Errorf("timestamp = %v, want %v", a.Timestamp, want)
	}
	if a.RiskScore != 0 {
		t.Errorf("risk score set before enrichment: %d", a.RiskScore)
	}
	if a.Metadata[MetaRaw] == nil {
		t.Error("raw record not carried in metadata")
	}
}

func TestNormalizeAlert_NIDSAnomalyType(t *testing.T) {
	raw := map[string]interface{}{"type": "anomaly", "name": "Traffic Anomaly"}
	a, err := NormalizeAlert(raw, ChannelNIDS)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if a.Source != SourceNIDSAnomaly {
		t.Errorf("source = %s, want nids_anomaly", a.Source)
	}
}

func TestNormalizeAlert_HIDSComponents(t *testing.T) {
	cases := map[string]Source{
		"file_monitor":    SourceHIDSFile,
		"process_monitor": SourceHIDSProcess,
		"log_analyzer":    SourceHIDSLog,
		"something_else":  SourceHIDSProcess,
		"":                SourceHIDSProcess,
	}
	for component, want := range cases {
		raw := map[string]interface{}{
			"component":  component,
			"alert_type": "File Modified",
			"hostname":   "web01",
			"severity":   "low",
		}
		a, err := NormalizeAlert(raw, ChannelHIDS)
		if err != nil {
			t.Fatalf("normalize %q: %v", component, err)
		}
		if a.Source != want {
			t.Errorf("component %q mapped to %s, want %s", component, a.Source, want)
		}
		if a.MetaString(MetaHostname) != "web01" {
			t.Errorf("hostname not carried through for %q", component)
		}
		if a.Severity != SeverityLow {
			t.Errorf("lowercase severity not parsed for %q: %s", component, a.Severity)
		}
	}
}

func TestNormalizeAlert_AIChannel(t *testing.T) {
	raw := map[string]interface{}{
		"name":          "Model flagged flow",
		"anomaly_score": 0.97,
		"src_ip":        "172.16.0.9",
	}
	a, err := NormalizeAlert(raw, ChannelAI)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if a.Source != SourceNIDSAnomaly {
		t.Errorf("source = %s, want nids_anomaly", a.Source)
	}
	if a.Metadata["anomaly_score"] != 0.97 {
		t.Errorf("anomaly_score not carried: %v", a.Metadata["anomaly_score"])
	}
}

// Every recognized channel must map a minimal record to a fully populated
// alert: non-empty title, severity from the closed enumeration.
func TestNormalizeAlert_MinimalRecordCompleteness(t *testing.T) {
	for _, channel := range Channels() {
		a, err := NormalizeAlert(map[string]interface{}{}, channel)
		if err != nil {
			t.Fatalf("channel %s: %v", channel, err)
		}
		if a.Title == "" {
			t.Errorf("channel %s: empty title for minimal record", channel)
		}
		if a.Severity != SeverityMedium {
			t.Errorf("channel %s: default severity = %s, want MEDIUM", channel, a.Severity)
		}
		if a.Timestamp.IsZero() {
			t.Errorf("channel %s: zero timestamp", channel)
		}
	}
}

func TestNormalizeAlert_UnknownChannel(t *testing.T) {
	if _, err := NormalizeAlert(map[string]interface{}{}, Channel("smoke")); err == nil {
		t.Error("expected error for unknown channel")
	}
}

func TestNormalizeAlert_TitleFallbacks(t *testing.T) {
	a, _ := NormalizeAlert(map[string]interface{}{"rule_name": "ET SCAN Nmap"}, ChannelNIDS)
	if a.Title != "ET SCAN Nmap" {
		t.Errorf("rule_name fallback not used: %q", a.Title)
	}

	a, _ = NormalizeAlert(map[string]interface{}{"title": "Named"}, ChannelNIDS)
	if a.Title != "Named" {
		t.Errorf("title fallback not used: %q", a.Title)
	}
}

func TestRawTimestamp_Unparseable(t *testing.T) {
	before := time.Now().UTC()
	ts := rawTimestamp(map[string]interface{}{"timestamp": "not-a-time"})
	if ts.Before(before.Add(-time.Second)) {
		t.Errorf("unparseable timestamp did not fall back to now: %v", ts)
	}
}
