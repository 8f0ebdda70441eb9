package risk

// Tier is the discrete output of the classifier.
type Tier string

const (
	TierLow      Tier = "low"
	TierMedium   Tier = "medium"
	TierHigh     Tier = "high"
	TierCritical Tier = "critical"
)

// Tiers lists every tier from least to most severe.
func Tiers() []Tier {
	return []Tier{TierLow, TierMedium, TierHigh, TierCritical}
}

// Urgency tells a caller how quickly to respond to an assessment.
type Urgency string

const (
	UrgencyMonitor   Urgency = "monitor"
	UrgencyImmediate Urgency = "immediate"
)

// Behavior holds self-reported behavioral signals. Nil pointers and empty
// strings mean the signal was not supplied.
type Behavior struct {
	SelfHarmRisk     string   `json:"selfHarmRisk,omitempty"`
	SocialEngagement *float64 `json:"socialEngagement,omitempty"`
	SleepQuality     *float64 `json:"sleepQuality,omitempty"`
	SubstanceUse     string   `json:"substanceUse,omitempty"`
}

// SignalSnapshot is one request's worth of classifier input.
type SignalSnapshot struct {
	AssessmentScore *float64 `json:"assessmentScore,omitempty"`
	Behavior        Behavior `json:"behavior"`
	Text            string   `json:"text,omitempty"`
}

// Indicator names as reported to callers and stored with events.
const (
	IndicatorHighRiskScore      = "highRiskScore"
	IndicatorSuicidalKeywords   = "suicidalKeywords"
	IndicatorSelfHarmIndicators = "selfHarmIndicators"
	IndicatorSocialIsolation    = "socialIsolation"
	IndicatorSleepDisruption    = "sleepDisruption"
	IndicatorSubstanceUse       = "substanceUse"
)

// Indicators is the result of the six independent risk predicates.
type Indicators struct {
	HighRiskScore      bool `json:"highRiskScore"`
	SuicidalKeywords   bool `json:"suicidalKeywords"`
	SelfHarmIndicators bool `json:"selfHarmIndicators"`
	SocialIsolation    bool `json:"socialIsolation"`
	SleepDisruption    bool `json:"sleepDisruption"`
	SubstanceUse       bool `json:"substanceUse"`
}

func (i Indicators) values() [6]bool {
	return [6]bool{
		i.HighRiskScore,
		i.SuicidalKeywords,
		i.SelfHarmIndicators,
		i.SocialIsolation,
		i.SleepDisruption,
		i.SubstanceUse,
	}
}

var indicatorNames = [6]string{
	IndicatorHighRiskScore,
	IndicatorSuicidalKeywords,
	IndicatorSelfHarmIndicators,
	IndicatorSocialIsolation,
	IndicatorSleepDisruption,
	IndicatorSubstanceUse,
}

// Count returns the number of true indicators.
func (i Indicators) Count() int {
	n := 0
	for _, v := range i.values() {
		if v {
			n++
		}
	}
	return n
}

// Triggered returns the names of the true indicators in a fixed order.
func (i Indicators) Triggered() []string {
	var names []string
	for idx, v := range i.values() {
		if v {
			names = append(names, indicatorNames[idx])
		}
	}
	return names
}

// Map returns every indicator keyed by name.
func (i Indicators) Map() map[string]bool {
	m := make(map[string]bool, len(indicatorNames))
	for idx, v := range i.values() {
		m[indicatorNames[idx]] = v
	}
	return m
}

// Hotline is a crisis support contact.
type Hotline struct {
	Name        string `json:"name" yaml:"name"`
	Number      string `json:"number" yaml:"number"`
	Description string `json:"description,omitempty" yaml:"description"`
}

// Assessment is the full classifier output for one snapshot.
type Assessment struct {
	Tier             Tier       `json:"riskLevel"`
	Indicators       Indicators `json:"indicators"`
	Urgency          Urgency    `json:"urgency"`
	Actions          []string   `json:"recommendedActions"`
	FollowUpRequired bool       `json:"followUpRequired"`
	Hotlines         []Hotline  `json:"crisisResources"`
}
