package core

import (
	"fmt"
	"time"
)

// Channel identifies the physical bus channel a raw alert arrived on.
type Channel string

const (
	ChannelNIDS Channel = "nids"
	ChannelHIDS Channel = "hids"
	ChannelAI   Channel = "ai"
)

// Channels lists the raw ingestion channels in subscription order.
func Channels() []Channel {
	return []Channel{ChannelNIDS, ChannelHIDS, ChannelAI}
}

// NormalizeAlert converts a raw, channel-tagged record into a UnifiedAlert.
// It is a pure function of (raw, channel): no counters, no shared state.
// Risk score is left at zero pending enrichment. An unknown channel is the
// only error condition; malformed fields fall back to documented defaults.
func NormalizeAlert(raw map[string]interface{}, channel Channel) (*UnifiedAlert, error) {
	switch channel {
	case ChannelNIDS:
		return normalizeNIDS(raw), nil
	case ChannelHIDS:
		return normalizeHIDS(raw), nil
	case ChannelAI:
		return normalizeAI(raw), nil
	default:
		return nil, fmt.Errorf("unknown alert channel %q", channel)
	}
}

func normalizeNIDS(raw map[string]interface{}) *UnifiedAlert {
	source := SourceNIDSSignature
	if rawString(raw, "type") == "anomaly" {
		source = SourceNIDSAnomaly
	}

	metadata := map[string]interface{}{
		MetaSrcIP:    rawString(raw, "src_ip"),
		MetaDstIP:    rawString(raw, "dst_ip"),
		"src_port":   rawInt(raw, "src_port"),
		"dst_port":   rawInt(raw, "dst_port"),
		"protocol":   rawString(raw, "protocol"),
		"rule_id":    rawString(raw, "rule_id"),
		"confidence": raw["confidence"],
		MetaRaw:      raw,
	}

	alert := NewUnifiedAlert(
		source,
		ParseSeverity(rawString(raw, "severity")),
		firstNonEmpty(rawString(raw, "name"), rawString(raw, "rule_name"), rawString(raw, "title"), "NIDS Alert"),
		firstNonEmpty(rawString(raw, "description"), rawString(raw, "message")),
		metadata,
	)
	alert.Timestamp = rawTimestamp(raw)
	return alert
}

func normalizeHIDS(raw map[string]interface{}) *UnifiedAlert {
	component := rawString(raw, "component")

	var source Source
	switch component {
	case "file_monitor":
		source = SourceHIDSFile
	case "process_monitor":
		source = SourceHIDSProcess
	case "log_analyzer":
		source = SourceHIDSLog
	default:
		// Best-guess default for unknown HIDS components.
		source = SourceHIDSProcess
	}

	metadata := map[string]interface{}{
		MetaHostname: rawString(raw, "hostname"),
		"component":  component,
		"details":    raw["details"],
		MetaRaw:      raw,
	}
	if ip := rawString(raw, "src_ip"); ip != "" {
		metadata[MetaSrcIP] = ip
	}

	alert := NewUnifiedAlert(
		source,
		ParseSeverity(rawString(raw, "severity")),
		firstNonEmpty(rawString(raw, "alert_type"), rawString(raw, "title"), "HIDS Alert"),
		firstNonEmpty(rawString(raw, "description"), rawString(raw, "message")),
		metadata,
	)
	alert.Timestamp = rawTimestamp(raw)
	return alert
}

// normalizeAI handles records from the ML anomaly scorer. They are always
// anomaly-sourced regardless of the "type" field.
func normalizeAI(raw map[string]interface{}) *UnifiedAlert {
	metadata := map[string]interface{}{
		MetaSrcIP:       rawString(raw, "src_ip"),
		MetaDstIP:       rawString(raw, "dst_ip"),
		"protocol":      rawString(raw, "protocol"),
		"anomaly_score": raw["anomaly_score"],
		"model":         rawString(raw, "model"),
		MetaRaw:         raw,
	}

	alert := NewUnifiedAlert(
		SourceNIDSAnomaly,
		ParseSeverity(rawString(raw, "severity")),
		firstNonEmpty(rawString(raw, "name"), rawString(raw, "title"), "ML Anomaly Detected"),
		firstNonEmpty(rawString(raw, "description"), rawString(raw, "message")),
		metadata,
	)
	alert.Timestamp = rawTimestamp(raw)
	return alert
}

func rawString(raw map[string]interface{}, key string) string {
	if v, ok := raw[key].(string); ok {
		return v
	}
	return ""
}

func rawInt(raw map[string]interface{}, key string) int {
	switch v := raw[key].(type) {
	case int:
		return v
	case float64:
		// JSON numbers decode as float64.
		return int(v)
	default:
		return 0
	}
}

// rawTimestamp parses the record's ISO-8601 timestamp, falling back to the
// current time when absent or unparseable.
func rawTimestamp(raw map[string]interface{}) time.Time {
	s := rawString(raw, "timestamp")
	if s == "" {
		return time.Now().UTC()
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05.999999"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Now().UTC()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
