package risk

import (
	"strings"
)

// defaultKeywords are matched as lowercase substrings.
var defaultKeywords = []string{
	"suicide",
	"suicidal",
	"kill myself",
	"end it all",
	"end my life",
	"not worth living",
	"no reason to live",
	"better off dead",
	"want to die",
	"self harm",
	"cut myself",
	"hurt myself",
}

var defaultHotlines = []Hotline{
	{Name: "Lifeline", Number: "13 11 14", Description: "24/7 crisis support"},
	{Name: "Kids Helpline", Number: "1800 55 1800", Description: "Ages 5-25"},
	{Name: "Beyond Blue", Number: "1300 22 4636", Description: "Depression and anxiety"},
	{Name: "Headspace", Number: "1800 650 890", Description: "Youth mental health"},
}

// Classifier carries the deployment-specific keyword list and hotline
// contacts. It is immutable after construction and safe for concurrent use.
type Classifier struct {
	keywords []string
	hotlines []Hotline
}

var defaultClassifier = DefaultClassifier()

// DefaultClassifier returns a Classifier with the built-in keywords and the
// Australian hotline set.
func DefaultClassifier() *Classifier {
	return NewClassifier(Resources{})
}

// NewClassifier extends the built-in keywords with res.Keywords. Hotlines in
// res replace the built-in set; an empty list keeps it.
func NewClassifier(res Resources) *Classifier {
	keywords := make([]string, 0, len(defaultKeywords)+len(res.Keywords))
	seen := make(map[string]struct{}, cap(keywords))
	for _, k := range append(append([]string{}, defaultKeywords...), res.Keywords...) {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		keywords = append(keywords, k)
	}

	hotlines := res.Hotlines
	if len(hotlines) == 0 {
		hotlines = defaultHotlines
	}

	return &Classifier{
		keywords: keywords,
		hotlines: append([]Hotline(nil), hotlines...),
	}
}

// Hotlines returns a copy of the configured crisis contacts.
func (c *Classifier) Hotlines() []Hotline {
	return append([]Hotline(nil), c.hotlines...)
}

// Keywords returns a copy of the configured keyword list.
func (c *Classifier) Keywords() []string {
	return append([]string(nil), c.keywords...)
}

// DetectSuicidalKeywords reports whether text contains any crisis keyword,
// ignoring case. Empty text never matches.
func (c *Classifier) DetectSuicidalKeywords(text string) bool {
	if text == "" {
		return false
	}
	lower := strings.ToLower(text)
	for _, k := range c.keywords {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}

// ComputeIndicators evaluates the six risk predicates. Missing signals are
// non-triggering.
func (c *Classifier) ComputeIndicators(score *float64, b Behavior, text string) Indicators {
	return computeIndicators(score, b, c.DetectSuicidalKeywords(text))
}

// Assess classifies a snapshot and attaches actions and hotlines.
func (c *Classifier) Assess(s SignalSnapshot) Assessment {
	ind := c.ComputeIndicators(s.AssessmentScore, s.Behavior, s.Text)
	tier := Classify(ind)

	return Assessment{
		Tier:             tier,
		Indicators:       ind,
		Urgency:          UrgencyFor(tier),
		Actions:          ActionsFor(tier),
		FollowUpRequired: tier != TierLow,
		Hotlines:         c.Hotlines(),
	}
}

// DetectSuicidalKeywords checks text against the built-in keyword list.
func DetectSuicidalKeywords(text string) bool {
	return defaultClassifier.DetectSuicidalKeywords(text)
}

// Assess runs the default classifier.
func Assess(s SignalSnapshot) Assessment {
	return defaultClassifier.Assess(s)
}
