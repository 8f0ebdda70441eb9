package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xzc516/fit5032-youthwell-project/internal/risk"
)

type fakeCompleter struct {
	reply string
	err   error
	seen  []Message
}

func (f *fakeCompleter) Complete(_ context.Context, history []Message) (string, error) {
	f.seen = history
	return f.reply, f.err
}

func newTestService(c Completer) *Service {
	return NewService(c, risk.DefaultClassifier(), zap.NewNop())
}

func TestSend_Success(t *testing.T) {
	fc := &fakeCompleter{reply: "That sounds tough. What has helped before?"}
	svc := newTestService(fc)
	sess := NewSession("s1", time.Now())

	r := svc.Send(context.Background(), sess, "  I'm stressed about exams  ")

	assert.False(t, r.Crisis)
	assert.False(t, r.Fallback)
	assert.Equal(t, fc.reply, r.Text)
	require.Len(t, sess.History(), 2)
	assert.Equal(t, Message{Role: RoleUser, Text: "I'm stressed about exams"}, sess.History()[0])
}

func TestSend_PassesHistory(t *testing.T) {
	fc := &fakeCompleter{reply: "ok"}
	svc := newTestService(fc)
	sess := NewSession("s1", time.Now())

	svc.Send(context.Background(), sess, "first")
	svc.Send(context.Background(), sess, "second")

	require.Len(t, fc.seen, 3)
	assert.Equal(t, "first", fc.seen[0].Text)
	assert.Equal(t, RoleAssistant, fc.seen[1].Role)
	assert.Equal(t, "second", fc.seen[2].Text)
}

func TestSend_RejectsMalicious(t *testing.T) {
	fc := &fakeCompleter{reply: "should not be called"}
	svc := newTestService(fc)
	sess := NewSession("s1", time.Now())

	for _, msg := range []string{"<script>alert(1)</script>", "   "} {
		r := svc.Send(context.Background(), sess, msg)
		assert.True(t, r.Rejected, msg)
	}
	assert.Nil(t, fc.seen)
	assert.Empty(t, sess.History())
}

func TestSend_Crisis(t *testing.T) {
	fc := &fakeCompleter{reply: "I'm here with you."}
	svc := newTestService(fc)
	sess := NewSession("s1", time.Now())

	r := svc.Send(context.Background(), sess, "I want to die")

	assert.True(t, r.Crisis)
	assert.Contains(t, r.Text, "Lifeline: 13 11 14")
	assert.True(t, strings.HasSuffix(r.Text, fc.reply))
}

func TestSend_Fallbacks(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		message string
		want    string
		crisis  bool
	}{
		{"generic", errors.New("boom"), "hello", fallbackReply, false},
		{"quota", fmt.Errorf("call: %w", ErrQuota), "hello", highDemand, false},
		{"crisis wins", fmt.Errorf("call: %w", ErrQuota), "I might hurt myself", crisisPreamble, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestService(&fakeCompleter{err: tt.err})
			sess := NewSession("s1", time.Now())

			r := svc.Send(context.Background(), sess, tt.message)

			assert.True(t, r.Fallback)
			assert.Equal(t, tt.crisis, r.Crisis)
			assert.True(t, strings.HasPrefix(r.Text, tt.want), r.Text)
			assert.Contains(t, r.Text, "Kids Helpline: 1800 55 1800")
			assert.NotContains(t, r.Text, "boom")
			assert.Empty(t, sess.History())
		})
	}
}

func TestSend_EmptyCompletion(t *testing.T) {
	svc := newTestService(&fakeCompleter{reply: "  "})
	r := svc.Send(context.Background(), NewSession("s1", time.Now()), "hi")
	assert.Equal(t, emptyReply, r.Text)
}

func TestSession_BoundedHistory(t *testing.T) {
	sess := NewSession("s1", time.Now())
	for i := 0; i < 15; i++ {
		sess.Append(time.Now(),
			Message{Role: RoleUser, Text: fmt.Sprintf("u%d", i)},
			Message{Role: RoleAssistant, Text: fmt.Sprintf("a%d", i)},
		)
	}

	h := sess.History()
	require.Len(t, h, MaxHistory)
	assert.Equal(t, "u5", h[0].Text)
	assert.Equal(t, "a14", h[len(h)-1].Text)

	sess.Clear()
	assert.Empty(t, sess.History())
}

func TestSessionStore(t *testing.T) {
	clock := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	st := NewSessionStore(30 * time.Minute)
	st.now = func() time.Time { return clock }

	s := st.GetOrCreate("forum", "")
	require.NotEmpty(t, s.ID)
	assert.Equal(t, "forum", s.Owner)
	assert.Same(t, s, st.GetOrCreate("forum", s.ID))
	assert.NotSame(t, s, st.GetOrCreate("mobile", s.ID), "sessions are not shared across clients")
	require.Equal(t, 2, st.Len())

	clock = clock.Add(20 * time.Minute)
	_, ok := st.Get(s.ID)
	assert.True(t, ok, "lookup refreshes activity")

	clock = clock.Add(31 * time.Minute)
	_, ok = st.Get(s.ID)
	assert.False(t, ok)

	other := st.GetOrCreate("forum", "unknown-id")
	assert.NotEqual(t, "unknown-id", other.ID)

	clock = clock.Add(time.Hour)
	assert.Equal(t, 2, st.Sweep())
	assert.Equal(t, 0, st.Len())
}

func TestSuggestedPrompts(t *testing.T) {
	p := SuggestedPrompts()
	require.NotEmpty(t, p)
	p[0] = "changed"
	assert.NotEqual(t, "changed", SuggestedPrompts()[0])
}

func TestOpenAICompleter(t *testing.T) {
	var got struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"c1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"hello there"},"finish_reason":"stop"}]}`)
	}))
	defer srv.Close()

	c, err := NewOpenAICompleter(OpenAIConfig{APIKey: "test-key", BaseURL: srv.URL + "/v1", Model: "test-model"})
	require.NoError(t, err)

	text, err := c.Complete(context.Background(), []Message{{Role: RoleUser, Text: "hi"}})
	require.NoError(t, err)
	assert.Equal(t, "hello there", text)

	assert.Equal(t, "test-model", got.Model)
	require.Len(t, got.Messages, 3)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "user", got.Messages[2].Role)
	assert.Equal(t, "hi", got.Messages[2].Content)
}

func TestOpenAICompleter_Quota(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error":{"message":"quota exceeded","type":"rate_limit_error"}}`)
	}))
	defer srv.Close()

	c, err := NewOpenAICompleter(OpenAIConfig{APIKey: "k", BaseURL: srv.URL + "/v1"})
	require.NoError(t, err)

	_, err = c.Complete(context.Background(), []Message{{Role: RoleUser, Text: "hi"}})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrQuota)
}

func TestNewOpenAICompleter_RequiresKey(t *testing.T) {
	_, err := NewOpenAICompleter(OpenAIConfig{})
	assert.Error(t, err)
}
