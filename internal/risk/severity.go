package risk

// Severity is the conventional band for a PHQ-style questionnaire total.
type Severity string

const (
	SeverityMinimal          Severity = "Minimal"
	SeverityMild             Severity = "Mild"
	SeverityModerate         Severity = "Moderate"
	SeverityModeratelySevere Severity = "Moderately Severe"
	SeveritySevere           Severity = "Severe"
)

// SeverityForScore buckets a questionnaire total.
func SeverityForScore(score int) Severity {
	switch {
	case score >= 20:
		return SeveritySevere
	case score >= 15:
		return SeverityModeratelySevere
	case score >= 10:
		return SeverityModerate
	case score >= 5:
		return SeverityMild
	default:
		return SeverityMinimal
	}
}
