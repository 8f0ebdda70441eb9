package storage

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xzc516/fit5032-youthwell-project/internal/contentguard"
	"github.com/xzc516/fit5032-youthwell-project/internal/risk"
)

func TestTruncatePayload(t *testing.T) {
	tests := []struct {
		name string
		in   string
		max  int
		want string
	}{
		{"short", "hello", 10, "hello"},
		{"exact", "hello", 5, "hello"},
		{"cut", "hello world", 5, "hello"},
		{"multibyte", "héllo wörld", 7, "héllo w"},
		{"empty", "", 3, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TruncatePayload(tt.in, tt.max); got != tt.want {
				t.Errorf("TruncatePayload(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
			}
		})
	}
}

func TestGuardEvent_SetInput(t *testing.T) {
	var e GuardEvent
	e.SetInput(strings.Repeat("x", 600))

	if len(e.InputHash) != 32 {
		t.Errorf("hash length = %d, want 32", len(e.InputHash))
	}
	if len([]rune(e.InputPreview)) != PayloadPreviewLength {
		t.Errorf("preview length = %d, want %d", len(e.InputPreview), PayloadPreviewLength)
	}
	if e.InputSize != 600 {
		t.Errorf("size = %d, want 600", e.InputSize)
	}
}

func TestGuardEvent_SetMatches(t *testing.T) {
	e := GuardEvent{Outcome: OutcomeAccepted}
	e.SetMatches(nil)
	if e.Outcome != OutcomeAccepted {
		t.Errorf("no matches should keep outcome, got %q", e.Outcome)
	}

	e.SetMatches(contentguard.Scan(`<script>alert(1)</script>`))
	if e.Outcome != OutcomeRejected {
		t.Errorf("outcome = %q, want rejected", e.Outcome)
	}
	if len(e.SignatureTags) == 0 || len(e.SignatureTags) != len(e.SignatureClasses) {
		t.Errorf("tags %v / classes %v", e.SignatureTags, e.SignatureClasses)
	}
	if e.Reason == "" {
		t.Error("expected a reason")
	}
}

func TestGuardEvent_SetAssessment(t *testing.T) {
	var e GuardEvent
	e.SetAssessment(risk.Assess(risk.SignalSnapshot{Text: "I want to die"}))
	if e.Tier != string(risk.TierCritical) {
		t.Errorf("tier = %q, want critical", e.Tier)
	}
	if len(e.Indicators) != 1 || e.Indicators[0] != "suicidalKeywords" {
		t.Errorf("indicators = %v", e.Indicators)
	}
}

type recordingInsert struct {
	mu      sync.Mutex
	batches [][]*GuardEvent
	err     error
}

func (r *recordingInsert) insert(_ context.Context, events []*GuardEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, append([]*GuardEvent(nil), events...))
	return r.err
}

func (r *recordingInsert) total() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, b := range r.batches {
		n += len(b)
	}
	return n
}

func TestClickHouseWriter_FlushesOnTick(t *testing.T) {
	rec := &recordingInsert{}
	w := newWriter(rec.insert, zap.NewNop())
	go w.flushLoop()
	defer w.Close()

	for i := 0; i < 3; i++ {
		w.Write(&GuardEvent{RequestID: "r"})
	}

	deadline := time.Now().Add(2 * time.Second)
	for rec.total() < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("flushed %d events, want 3", rec.total())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestClickHouseWriter_CloseDrains(t *testing.T) {
	rec := &recordingInsert{}
	w := newWriter(rec.insert, zap.NewNop())

	// Buffer before the loop starts so Close must drain.
	for i := 0; i < 5; i++ {
		w.Write(&GuardEvent{RequestID: "r"})
	}
	go w.flushLoop()
	w.Close()

	if got := rec.total(); got != 5 {
		t.Errorf("flushed %d events, want 5", got)
	}
}

func TestClickHouseWriter_DropsWhenFull(t *testing.T) {
	drops := 0
	w := newWriter(func(context.Context, []*GuardEvent) error { return nil }, zap.NewNop(),
		WithDropHook(func() { drops++ }))

	// No flush loop is running, so the buffer fills up.
	for i := 0; i < bufferSize+3; i++ {
		w.Write(&GuardEvent{})
	}
	if drops != 3 {
		t.Errorf("drops = %d, want 3", drops)
	}
}

func TestClickHouseWriter_InsertErrorIsLogged(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	rec := &recordingInsert{err: errors.New("table missing")}
	w := newWriter(rec.insert, zap.New(core))

	w.Write(&GuardEvent{})
	go w.flushLoop()
	w.Close()

	if logs.FilterMessage("clickhouse batch insert failed").Len() != 1 {
		t.Errorf("expected one insert failure log, got %v", logs.All())
	}
}

func TestLogWriter(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	w := NewLogWriter(zap.New(core))
	w.Write(&GuardEvent{RequestID: "req-1", Kind: KindAssess, Tier: "high"})
	w.Close()

	entries := logs.FilterMessage("guard_event").All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["request_id"] != "req-1" || fields["tier"] != "high" {
		t.Errorf("fields = %v", fields)
	}
}
