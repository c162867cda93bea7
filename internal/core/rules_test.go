package core

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

func TestLoadRules_Defaults(t *testing.T) {
	rules, err := LoadRules("", zerolog.Nop())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(rules) != 10 {
		t.Fatalf("loaded %d rules, want 10 built-ins", len(rules))
	}
	for _, r := range rules {
		for i, p := range r.Required {
			if p.Pattern != "" && p.re == nil {
				t.Errorf("rule %s pattern %d not compiled", r.RuleID, i)
			}
		}
	}
}

func TestCorrelationRule_CompileRejectsBadRegex(t *testing.T) {
	r := CorrelationRule{
		RuleID:     "X1",
		TimeWindow: 60,
		Required:   []EventPattern{{Pattern: "(unclosed"}},
	}
	if err := r.compile(); err == nil {
		t.Error("expected compile error for invalid regex")
	}
}

func TestCorrelationRule_CompileRejectsCorrelationSource(t *testing.T) {
	r := CorrelationRule{
		RuleID:     "X2",
		TimeWindow: 60,
		Required:   []EventPattern{{Source: SourceCorrelation}},
	}
	if err := r.compile(); err == nil {
		t.Error("pattern requiring correlation source must be rejected without allow_correlation")
	}

	r.AllowCorrelation = true
	if err := r.compile(); err != nil {
		t.Errorf("allow_correlation rule rejected: %v", err)
	}
}

func TestCorrelationRule_RequiredSlots(t *testing.T) {
	r := CorrelationRule{Required: make([]EventPattern, 3)}
	if got := r.requiredSlots(); got != 3 {
		t.Errorf("default requiredSlots = %d, want 3", got)
	}
	r.MinOccur = 2
	if got := r.requiredSlots(); got != 2 {
		t.Errorf("min_occurrences requiredSlots = %d, want 2", got)
	}
	r.MinOccur = 5
	if got := r.requiredSlots(); got != 3 {
		t.Errorf("min_occurrences above len = %d, want 3", got)
	}
}

func TestLoadRules_InvalidRuleDisabledOthersSurvive(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	content := `rules:
  - rule_id: OK1
    name: Custom Chain
    description: valid rule
    severity: HIGH
    time_window_seconds: 120
    required_events:
      - source: nids_signature
        pattern: "scan"
      - source: hids_log
        pattern: "sudo"
    same_host: true
  - rule_id: BAD1
    name: Broken
    severity: LOW
    time_window_seconds: 60
    required_events:
      - pattern: "(unclosed"
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	rules, err := LoadRules(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	var foundOK, foundBad bool
	for _, r := range rules {
		if r.RuleID == "OK1" {
			foundOK = true
			if r.Severity != SeverityHigh {
				t.Errorf("OK1 severity = %s, want HIGH", r.Severity)
			}
			if !r.SameHost {
				t.Error("OK1 same_host not parsed")
			}
		}
		if r.RuleID == "BAD1" {
			foundBad = true
		}
	}
	if !foundOK {
		t.Error("valid custom rule was not loaded")
	}
	if foundBad {
		t.Error("rule with invalid regex was not disabled")
	}
}

func TestLoadRules_MissingFile(t *testing.T) {
	if _, err := LoadRules("/nonexistent/rules.yaml", zerolog.Nop()); err == nil {
		t.Error("expected error for missing rules file")
	}
}

func TestEventPattern_Matches(t *testing.T) {
	ev := newIndexedEvent(NewUnifiedAlert(SourceNIDSSignature, SeverityHigh,
		"TCP Port Scan Detected", "scanning from outside", nil))

	p := EventPattern{Source: SourceNIDSSignature, Pattern: "port.*scan"}
	r := CorrelationRule{RuleID: "T", TimeWindow: 60, Required: []EventPattern{p}}
	if err := r.compile(); err != nil {
		t.Fatal(err)
	}

	if !r.Required[0].Matches(ev) {
		t.Error("case-insensitive pattern should match title")
	}

	other := newIndexedEvent(NewUnifiedAlert(SourceHIDSFile, SeverityHigh,
		"TCP Port Scan Detected", "", nil))
	if r.Required[0].Matches(other) {
		t.Error("source constraint should reject mismatched source")
	}
}
