package risk

// Score and behavior thresholds. Comparisons are strict, so NaN never
// triggers an indicator.
const (
	highRiskScoreAbove   = 20.0
	socialIsolationBelow = 0.3
	sleepDisruptionBelow = 0.4
)

// ComputeIndicators evaluates the six predicates with the default keyword list.
func ComputeIndicators(score *float64, b Behavior, text string) Indicators {
	return defaultClassifier.ComputeIndicators(score, b, text)
}

func computeIndicators(score *float64, b Behavior, keywordHit bool) Indicators {
	return Indicators{
		HighRiskScore:      score != nil && *score > highRiskScoreAbove,
		SuicidalKeywords:   keywordHit,
		SelfHarmIndicators: b.SelfHarmRisk == "high",
		SocialIsolation:    b.SocialEngagement != nil && *b.SocialEngagement < socialIsolationBelow,
		SleepDisruption:    b.SleepQuality != nil && *b.SleepQuality < sleepDisruptionBelow,
		SubstanceUse:       b.SubstanceUse == "increased",
	}
}

type tierRule struct {
	tier  Tier
	match func(Indicators) bool
}

// tierRules is evaluated top to bottom; the first match wins. A keyword hit
// is checked before the count thresholds and overrides them.
var tierRules = []tierRule{
	{TierCritical, func(i Indicators) bool { return i.SuicidalKeywords }},
	{TierCritical, func(i Indicators) bool { return i.Count() >= 3 }},
	{TierHigh, func(i Indicators) bool { return i.Count() >= 2 }},
	{TierMedium, func(i Indicators) bool { return i.Count() >= 1 }},
}

// Classify maps indicators to a tier.
func Classify(ind Indicators) Tier {
	for _, r := range tierRules {
		if r.match(ind) {
			return r.tier
		}
	}
	return TierLow
}

var tierActions = map[Tier][]string{
	TierCritical: {
		"Immediate intervention required",
		"Contact emergency services or a crisis line",
		"Stay with the person until help arrives",
		"Remove access to means of self-harm",
	},
	TierHigh: {
		"Schedule an urgent appointment within 24 hours",
		"Increase monitoring and check-ins",
		"Provide crisis hotline numbers",
		"Consider hospitalization if risk escalates",
	},
	TierMedium: {
		"Schedule an appointment within 24-48 hours",
		"Arrange regular check-ins",
		"Provide self-care resources",
		"Monitor for escalation",
	},
	TierLow: {
		"Continue routine monitoring",
		"Maintain the current support plan",
		"Reassess periodically",
	},
}

// ActionsFor returns a copy of the recommended actions for tier, or nil for a
// tier the classifier never produces.
func ActionsFor(tier Tier) []string {
	actions, ok := tierActions[tier]
	if !ok {
		return nil
	}
	out := make([]string, len(actions))
	copy(out, actions)
	return out
}

// UrgencyFor is immediate for critical and monitor otherwise.
func UrgencyFor(tier Tier) Urgency {
	if tier == TierCritical {
		return UrgencyImmediate
	}
	return UrgencyMonitor
}
