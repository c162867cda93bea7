package core

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// EventPattern is one slot of a correlation rule's required events. Both
// constraints are optional: an empty pattern matches any event in the
// candidate set.
type EventPattern struct {
	Source  Source `yaml:"source,omitempty"`
	Pattern string `yaml:"pattern,omitempty"`

	// re is compiled once at rule load; nil when Pattern is empty.
	re *regexp.Regexp
}

// Matches reports whether an indexed event satisfies this pattern slot.
func (p *EventPattern) Matches(ev *indexedEvent) bool {
	if p.Source != "" && ev.alert.Source != p.Source {
		return false
	}
	if p.re != nil {
		text := ev.alert.Title + " " + ev.alert.Description
		if !p.re.MatchString(text) {
			return false
		}
	}
	return true
}

// CorrelationRule is a declarative pattern over multiple alerts within a
// time window indicating a multi-stage attack. A compiled rule is immutable;
// config reload swaps the whole set atomically.
type CorrelationRule struct {
	RuleID      string         `yaml:"rule_id"`
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Severity    Severity       `yaml:"severity"`
	TimeWindow  int            `yaml:"time_window_seconds"`
	Required    []EventPattern `yaml:"required_events"`
	MinOccur    int            `yaml:"min_occurrences,omitempty"`
	SameIP      bool           `yaml:"same_ip,omitempty"`
	SameHost    bool           `yaml:"same_host,omitempty"`

	// AllowCorrelation must be set explicitly for a rule to match
	// correlation-derived alerts. Without it, a pattern requiring the
	// correlation source disables the rule at load time, which keeps the
	// derived-alert feedback loop from chaining.
	AllowCorrelation bool `yaml:"allow_correlation,omitempty"`
}

// window returns the rule's lookback horizon as a duration.
func (r *CorrelationRule) window() time.Duration {
	return time.Duration(r.TimeWindow) * time.Second
}

// requiredSlots returns how many distinct pattern slots must be satisfied
// for the rule to fire.
func (r *CorrelationRule) requiredSlots() int {
	if r.MinOccur > 0 && r.MinOccur < len(r.Required) {
		return r.MinOccur
	}
	return len(r.Required)
}

// compile validates the rule and compiles its pattern regexes. A regex that
// fails to compile, or a pattern requiring the correlation source without
// AllowCorrelation, makes the whole rule unusable.
func (r *CorrelationRule) compile() error {
	if len(r.Required) == 0 {
		return fmt.Errorf("rule has no required_events")
	}
	if r.TimeWindow <= 0 {
		return fmt.Errorf("rule has no time_window_seconds")
	}
	for i := range r.Required {
		p := &r.Required[i]
		if p.Source == SourceCorrelation && !r.AllowCorrelation {
			return fmt.Errorf("pattern %d requires correlation source without allow_correlation", i)
		}
		if p.Pattern != "" {
			re, err := regexp.Compile("(?i)" + p.Pattern)
			if err != nil {
				return fmt.Errorf("pattern %d: %w", i, err)
			}
			p.re = re
		}
	}
	return nil
}

// DefaultRules returns the built-in correlation rule set covering the
// multi-stage attack patterns the platform ships with.
func DefaultRules() []CorrelationRule {
	return []CorrelationRule{
		{
			RuleID:      "CR001",
			Name:        "Port Scan to Exploitation",
			Description: "Port scanning activity followed by successful exploitation attempt",
			Severity:    SeverityCritical,
			TimeWindow:  600,
			Required: []EventPattern{
				{Source: SourceNIDSSignature, Pattern: `port.*scan`},
				{Source: SourceNIDSSignature, Pattern: `(exploit|injection|overflow)`},
			},
			SameIP: true,
		},
		{
			RuleID:      "CR002",
			Name:        "Network to Process Compromise",
			Description: "Network attack followed by suspicious process execution on host",
			Severity:    SeverityCritical,
			TimeWindow:  300,
			Required: []EventPattern{
				{Source: SourceNIDSSignature, Pattern: `(injection|exploit|shell)`},
				{Source: SourceHIDSProcess, Pattern: `suspicious`},
			},
			SameIP: true,
		},
		{
			RuleID:      "CR003",
			Name:        "Brute Force to Lateral Movement",
			Description: "Successful brute force attack followed by lateral movement attempts",
			Severity:    SeverityCritical,
			TimeWindow:  1800,
			Required: []EventPattern{
				{Source: SourceHIDSLog, Pattern: `brute.*force`},
				{Source: SourceNIDSSignature, Pattern: `(smb|rdp|ssh).*brute`},
			},
			SameIP: true,
		},
		{
			RuleID:      "CR004",
			Name:        "Network Attack to File Modification",
			Description: "Network attack followed by suspicious file modifications",
			Severity:    SeverityHigh,
			TimeWindow:  600,
			Required: []EventPattern{
				{Source: SourceNIDSSignature, Pattern: `(web.*attack|injection|upload)`},
				{Source: SourceHIDSFile, Pattern: `(modified|created|deleted)`},
			},
			SameIP: true,
		},
		{
			RuleID:      "CR005",
			Name:        "Multi-Vector Attack (APT Indicator)",
			Description: "Multiple attack types detected from same source - possible APT",
			Severity:    SeverityCritical,
			TimeWindow:  3600,
			Required: []EventPattern{
				{Source: SourceNIDSSignature},
				{Source: SourceHIDSProcess},
				{Source: SourceHIDSFile},
			},
			MinOccur: 3,
			SameIP:   true,
		},
		{
			RuleID:      "CR006",
			Name:        "DNS Tunneling and Exfiltration",
			Description: "DNS tunneling detected along with file access patterns",
			Severity:    SeverityCritical,
			TimeWindow:  900,
			Required: []EventPattern{
				{Source: SourceNIDSSignature, Pattern: `dns.*tunnel`},
				{Source: SourceHIDSFile, Pattern: `(access|read)`},
			},
			SameHost: true,
		},
		{
			RuleID:      "CR007",
			Name:        "Privilege Escalation Chain",
			Description: "Network compromise followed by privilege escalation attempts",
			Severity:    SeverityCritical,
			TimeWindow:  600,
			Required: []EventPattern{
				{Source: SourceNIDSSignature},
				{Source: SourceHIDSLog, Pattern: `(privilege|admin|root|sudo)`},
			},
			SameHost: true,
		},
		{
			RuleID:      "CR008",
			Name:        "DDoS Smokescreen Attack",
			Description: "DDoS attack used as smokescreen for internal reconnaissance",
			Severity:    SeverityHigh,
			TimeWindow:  1800,
			Required: []EventPattern{
				{Source: SourceNIDSSignature, Pattern: `(ddos|flood)`},
				{Source: SourceNIDSSignature, Pattern: `(scan|recon)`},
			},
		},
		{
			RuleID:      "CR009",
			Name:        "Malware Installation Chain",
			Description: "Network download followed by process execution and file modifications",
			Severity:    SeverityCritical,
			TimeWindow:  300,
			Required: []EventPattern{
				{Source: SourceNIDSSignature, Pattern: `(download|http)`},
				{Source: SourceHIDSProcess, Pattern: `suspicious`},
				{Source: SourceHIDSFile, Pattern: `created`},
			},
			SameHost: true,
		},
		{
			RuleID:      "CR010",
			Name:        "ML-Detected APT Pattern",
			Description: "Machine learning detected anomalies across both network and host",
			Severity:    SeverityCritical,
			TimeWindow:  1800,
			Required: []EventPattern{
				{Source: SourceNIDSAnomaly},
				{Source: SourceHIDSProcess, Pattern: `suspicious`},
			},
			MinOccur: 2,
			SameIP:   true,
		},
	}
}

// ruleFile is the YAML shape of an external rule file.
type ruleFile struct {
	Rules []CorrelationRule `yaml:"rules"`
}

// LoadRules compiles the built-in rule set plus any rules from the given
// YAML file. A rule that fails to compile is disabled with a warning; the
// remaining rules still load.
func LoadRules(path string, logger zerolog.Logger) ([]CorrelationRule, error) {
	rules := DefaultRules()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading rules file: %w", err)
		}
		var rf ruleFile
		if err := yaml.Unmarshal(data, &rf); err != nil {
			return nil, fmt.Errorf("parsing rules file: %w", err)
		}
		rules = append(rules, rf.Rules...)
	}

	loaded := make([]CorrelationRule, 0, len(rules))
	for _, r := range rules {
		if err := r.compile(); err != nil {
			logger.Warn().Err(err).Str("rule_id", r.RuleID).Str("name", r.Name).Msg("disabling invalid correlation rule")
			continue
		}
		loaded = append(loaded, r)
	}
	return loaded, nil
}
