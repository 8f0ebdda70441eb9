package storage

import (
	"crypto/sha256"
	"time"

	"github.com/xzc516/fit5032-youthwell-project/internal/contentguard"
	"github.com/xzc516/fit5032-youthwell-project/internal/risk"
)

// EventWriter persists guard events. Write must never block the caller.
type EventWriter interface {
	Write(event *GuardEvent)
	Close()
}

// Event kinds, one per guarded operation.
const (
	KindSanitize = "sanitize"
	KindValidate = "validate"
	KindAccount  = "account"
	KindPost     = "post"
	KindAssess   = "assess"
	KindChat     = "chat"
)

// Outcomes.
const (
	OutcomeAccepted = "accepted"
	OutcomeRejected = "rejected"
	OutcomeFallback = "fallback"
	OutcomeCrisis   = "crisis"
)

// GuardEvent records one Content Guard, risk or chat call.
type GuardEvent struct {
	RequestID        string
	ClientID         string
	Timestamp        time.Time
	Kind             string
	Outcome          string
	Reason           string
	Tier             string // assess only
	Indicators       []string
	SignatureTags    []string
	SignatureClasses []string
	UserID           string
	SessionID        string
	InputPreview     string // first PayloadPreviewLength runes
	InputHash        string // raw SHA-256 of the full input
	InputSize        uint32
	LatencyMs        float32
	Source           string // "http" or "grpc"
}

// PayloadPreviewLength is the max runes stored in input_preview.
const PayloadPreviewLength = 500

// SetInput records the preview, hash and size of the inspected text.
func (e *GuardEvent) SetInput(input string) {
	sum := sha256.Sum256([]byte(input))
	e.InputHash = string(sum[:])
	e.InputPreview = TruncatePayload(input, PayloadPreviewLength)
	e.InputSize = uint32(len(input))
}

// SetMatches records which signatures fired and marks the event rejected
// when any did.
func (e *GuardEvent) SetMatches(matches []contentguard.Match) {
	e.SignatureTags = make([]string, len(matches))
	e.SignatureClasses = make([]string, len(matches))
	for i, m := range matches {
		e.SignatureTags[i] = m.Tag
		e.SignatureClasses[i] = string(m.Class)
	}
	if len(matches) > 0 {
		e.Outcome = OutcomeRejected
		e.Reason = matches[0].Label
	}
}

// SetAssessment records a risk result.
func (e *GuardEvent) SetAssessment(a risk.Assessment) {
	e.Tier = string(a.Tier)
	e.Indicators = a.Indicators.Triggered()
}

// Finish stamps latency measured from start.
func (e *GuardEvent) Finish(start time.Time) {
	e.LatencyMs = float32(float64(time.Since(start)) / float64(time.Millisecond))
}

// TruncatePayload returns the first maxLen runes of payload. It never
// splits a multi-byte UTF-8 character.
func TruncatePayload(payload string, maxLen int) string {
	runes := []rune(payload)
	if len(runes) <= maxLen {
		return payload
	}
	return string(runes[:maxLen])
}
