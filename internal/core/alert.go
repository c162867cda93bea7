package core

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Severity represents the severity level of a unified alert.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityLow
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "INFO"
	case SeverityLow:
		return "LOW"
	case SeverityMedium:
		return "MEDIUM"
	case SeverityHigh:
		return "HIGH"
	case SeverityCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// ParseSeverity maps a severity string to the closed enumeration. Unknown
// values map to MEDIUM rather than being rejected.
func ParseSeverity(s string) Severity {
	switch s {
	case "INFO", "info":
		return SeverityInfo
	case "LOW", "low":
		return SeverityLow
	case "MEDIUM", "medium":
		return SeverityMedium
	case "HIGH", "high":
		return SeverityHigh
	case "CRITICAL", "critical":
		return SeverityCritical
	default:
		return SeverityMedium
	}
}

func (s Severity) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Severity) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	*s = ParseSeverity(str)
	return nil
}

func (s Severity) MarshalYAML() (interface{}, error) {
	return s.String(), nil
}

func (s *Severity) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var str string
	if err := unmarshal(&str); err != nil {
		return err
	}
	*s = ParseSeverity(str)
	return nil
}

// Source identifies which detection subsystem produced an alert.
type Source string

const (
	SourceNIDSSignature Source = "nids_signature"
	SourceNIDSAnomaly   Source = "nids_anomaly"
	SourceHIDSFile      Source = "hids_file"
	SourceHIDSProcess   Source = "hids_process"
	SourceHIDSLog       Source = "hids_log"
	SourceCorrelation   Source = "correlation"
)

// Sources lists every member of the closed source enumeration.
func Sources() []Source {
	return []Source{
		SourceNIDSSignature,
		SourceNIDSAnomaly,
		SourceHIDSFile,
		SourceHIDSProcess,
		SourceHIDSLog,
		SourceCorrelation,
	}
}

// Metadata keys recognized across all sources. Source-specific fields are
// carried through verbatim alongside these.
const (
	MetaSrcIP    = "src_ip"
	MetaDstIP    = "dst_ip"
	MetaHostname = "hostname"
	MetaRaw      = "raw"
)

// UnifiedAlert is the canonical, source-agnostic security event record that
// every raw alert is converted to before dedup, enrichment, and correlation.
type UnifiedAlert struct {
	ID          string                 `json:"alert_id"`
	Timestamp   time.Time              `json:"timestamp"`
	Source      Source                 `json:"source"`
	Severity    Severity               `json:"severity"`
	Title       string                 `json:"title"`
	Description string                 `json:"description"`
	Metadata    map[string]interface{} `json:"metadata"`
	RiskScore   int                    `json:"risk_score"`
}

// NewUnifiedAlert creates an alert with a generated ID, current UTC
// timestamp, and the standard version metadata stamped on.
func NewUnifiedAlert(source Source, severity Severity, title, description string, metadata map[string]interface{}) *UnifiedAlert {
	if metadata == nil {
		metadata = make(map[string]interface{})
	}
	metadata["alert_version"] = "1.0"
	metadata["ids_type"] = "hybrid"
	return &UnifiedAlert{
		ID:          uuid.New().String(),
		Timestamp:   time.Now().UTC(),
		Source:      source,
		Severity:    severity,
		Title:       title,
		Description: description,
		Metadata:    metadata,
	}
}

// Marshal serializes the alert to JSON.
func (a *UnifiedAlert) Marshal() ([]byte, error) {
	return json.Marshal(a)
}

// UnmarshalUnifiedAlert deserializes a UnifiedAlert from JSON.
func UnmarshalUnifiedAlert(data []byte) (*UnifiedAlert, error) {
	var alert UnifiedAlert
	if err := json.Unmarshal(data, &alert); err != nil {
		return nil, err
	}
	return &alert, nil
}

// MetaString returns a metadata value as a string, or "" when absent or not
// a string.
func (a *UnifiedAlert) MetaString(key string) string {
	if v, ok := a.Metadata[key].(string); ok {
		return v
	}
	return ""
}
