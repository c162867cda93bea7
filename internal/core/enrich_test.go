package core

import "testing"

func TestRiskScore_BySeverity(t *testing.T) {
	cases := map[Severity]int{
		SeverityInfo:     10,
		SeverityLow:      25,
		SeverityMedium:   50,
		SeverityHigh:     75,
		SeverityCritical: 95,
	}
	for sev, want := range cases {
		if got := RiskScore(SourceNIDSSignature, sev); got != want {
			t.Errorf("RiskScore(nids_signature, %s) = %d, want %d", sev, got, want)
		}
	}
}

func TestRiskScore_AnomalyBoost(t *testing.T) {
	if got := RiskScore(SourceNIDSAnomaly, SeverityMedium); got != 55 {
		t.Errorf("anomaly MEDIUM = %d, want 55", got)
	}
}

func TestRiskScore_CappedAt100(t *testing.T) {
	if got := RiskScore(SourceNIDSAnomaly, SeverityCritical); got != 100 {
		t.Errorf("anomaly CRITICAL = %d, want 100", got)
	}
}

// Enrichment must be idempotent: the same (source, severity) pair always
// yields the same score.
func TestRiskScore_Deterministic(t *testing.T) {
	for _, source := range Sources() {
		for sev := SeverityInfo; sev <= SeverityCritical; sev++ {
			first := RiskScore(source, sev)
			for i := 0; i < 10; i++ {
				if got := RiskScore(source, sev); got != first {
					t.Fatalf("RiskScore(%s, %s) not deterministic: %d then %d", source, sev, first, got)
				}
			}
			if first < 0 || first > 100 {
				t.Errorf("RiskScore(%s, %s) = %d out of range", source, sev, first)
			}
		}
	}
}

func TestEnrichAlert(t *testing.T) {
	a := NewUnifiedAlert(SourceHIDSFile, SeverityHigh, "t", "", nil)
	EnrichAlert(a)
	if a.RiskScore != 75 {
		t.Errorf("risk score = %d, want 75", a.RiskScore)
	}
}
