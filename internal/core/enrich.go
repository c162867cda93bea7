package core

// riskBySeverity maps severity to a base risk score for operator triage.
var riskBySeverity = map[Severity]int{
	SeverityInfo:     10,
	SeverityLow:      25,
	SeverityMedium:   50,
	SeverityHigh:     75,
	SeverityCritical: 95,
}

// RiskScore derives the 0-100 risk score for a (source, severity) pair.
// ML-derived anomaly detections get a small boost since they flag novel
// activity signatures miss. Deterministic: the same pair always yields the
// same score.
func RiskScore(source Source, severity Severity) int {
	score, ok := riskBySeverity[severity]
	if !ok {
		score = riskBySeverity[SeverityMedium]
	}
	if source == SourceNIDSAnomaly {
		score += 5
	}
	if score > 100 {
		score = 100
	}
	return score
}

// EnrichAlert attaches the derived risk score to the alert. Pure function of
// the alert's source and severity; no side effects beyond the field write.
func EnrichAlert(alert *UnifiedAlert) {
	alert.RiskScore = RiskScore(alert.Source, alert.Severity)
}
