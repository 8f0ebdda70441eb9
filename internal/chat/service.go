package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xzc516/fit5032-youthwell-project/internal/contentguard"
	"github.com/xzc516/fit5032-youthwell-project/internal/risk"
)

// ErrQuota marks a completion refused because the provider is over capacity.
var ErrQuota = errors.New("completion quota exceeded")

// Completer produces the assistant's next message for a conversation.
// history ends with the user's newest message.
type Completer interface {
	Complete(ctx context.Context, history []Message) (string, error)
}

// Reply is what the user sees for one message.
type Reply struct {
	Text     string `json:"reply"`
	Crisis   bool   `json:"crisis"`
	Rejected bool   `json:"rejected"`
	Fallback bool   `json:"fallback"`
}

// Service guards, screens and completes chat messages.
type Service struct {
	completer  Completer
	classifier *risk.Classifier
	logger     *zap.Logger
	now        func() time.Time
}

// NewService wires a Completer to the crisis classifier. A nil classifier
// uses the built-in keywords and hotlines.
func NewService(completer Completer, classifier *risk.Classifier, logger *zap.Logger) *Service {
	if classifier == nil {
		classifier = risk.DefaultClassifier()
	}
	return &Service{
		completer:  completer,
		classifier: classifier,
		logger:     logger,
		now:        time.Now,
	}
}

// Send processes one user message within sess. It never returns a provider
// error to the caller: failures become a fallback reply listing hotlines.
// Only successful exchanges are added to the session history.
func (s *Service) Send(ctx context.Context, sess *Session, message string) Reply {
	message = strings.TrimSpace(message)
	if message == "" || contentguard.DetectMaliciousContent(message) {
		return Reply{Text: rejectedReply, Rejected: true}
	}

	crisis := s.classifier.DetectSuicidalKeywords(message)

	history := append(sess.History(), Message{Role: RoleUser, Text: message})
	text, err := s.completer.Complete(ctx, history)
	if err != nil {
		s.logger.Warn("chat completion failed",
			zap.String("session_id", sess.ID),
			zap.Error(err),
		)
		return Reply{
			Text:     s.fallbackText(errors.Is(err, ErrQuota), crisis),
			Crisis:   crisis,
			Fallback: true,
		}
	}
	if strings.TrimSpace(text) == "" {
		text = emptyReply
	}

	sess.Append(s.now(),
		Message{Role: RoleUser, Text: message},
		Message{Role: RoleAssistant, Text: text},
	)

	if crisis {
		text = crisisPreamble + "\n\n" + s.hotlineBlock() + "\n\n" + text
	}
	return Reply{Text: text, Crisis: crisis}
}

func (s *Service) fallbackText(quota, crisis bool) string {
	lead := fallbackReply
	if quota {
		lead = highDemand
	}
	if crisis {
		lead = crisisPreamble
	}
	return lead + "\n\n" + s.hotlineBlock()
}

func (s *Service) hotlineBlock() string {
	var b strings.Builder
	for i, h := range s.classifier.Hotlines() {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "• %s: %s", h.Name, h.Number)
		if h.Description != "" {
			fmt.Fprintf(&b, " (%s)", h.Description)
		}
	}
	return b.String()
}
