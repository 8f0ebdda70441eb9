package api

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/xzc516/fit5032-youthwell-project/internal/contentguard"
	"github.com/xzc516/fit5032-youthwell-project/internal/risk"
)

// --- Content Guard ---

// SanitizeReq is the JSON body for POST /v1/content/sanitize.
type SanitizeReq struct {
	Text string `json:"text"`
	// UseAllowlist keeps the client's allowed tags (escaped) instead of
	// stripping every tag.
	UseAllowlist bool `json:"use_allowlist,omitempty"`
}

// SanitizeResp reports the sanitized value and any signatures that fired.
type SanitizeResp struct {
	contentguard.SanitizationResult
	Matches   []contentguard.Match `json:"matches"`
	RequestID string               `json:"request_id"`
}

// RuleReq is the JSON form of contentguard.Rule.
type RuleReq struct {
	Required       bool   `json:"required"`
	MinLength      int    `json:"min_length" validate:"gte=0,lte=100000"`
	MaxLength      int    `json:"max_length" validate:"gte=0,lte=100000"`
	Pattern        string `json:"pattern" validate:"max=512"`
	PatternMessage string `json:"pattern_message"`
}

// ValidateFormReq is the JSON body for POST /v1/content/validate.
type ValidateFormReq struct {
	Fields map[string]string  `json:"fields"`
	Rules  map[string]RuleReq `json:"rules" validate:"required,min=1,max=100,dive"`
}

// ValidateFormResp wraps contentguard.FormResult.
type ValidateFormResp struct {
	contentguard.FormResult
	RequestID string `json:"request_id"`
}

// AccountReq is the JSON body for POST /v1/accounts/validate.
type AccountReq struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

// AccountResp wraps contentguard.AccountResult.
type AccountResp struct {
	contentguard.AccountResult
	RequestID string `json:"request_id"`
}

// PostReq is the JSON body for POST /v1/posts/validate.
type PostReq struct {
	Title   string `json:"title"`
	Summary string `json:"summary"`
	Author  string `json:"author"`
	Rating  *int   `json:"rating"`
}

// PostResp wraps contentguard.PostResult.
type PostResp struct {
	contentguard.PostResult
	RequestID string `json:"request_id"`
}

// --- Risk ---

// AssessReq is the JSON body for POST /v1/risk/assess. The raw body is
// checked against risk_request.schema.json before decoding.
type AssessReq struct {
	UserID          string        `json:"userId"`
	AssessmentScore *float64      `json:"assessmentScore"`
	UserBehavior    risk.Behavior `json:"userBehavior"`
	ChatHistory     []ChatLine    `json:"chatHistory"`
}

// ChatLine is one chat history entry, given either as a bare string or as
// {"role": ..., "text": ...}.
type ChatLine struct {
	Role string `json:"role,omitempty"`
	Text string `json:"text"`
}

func (c *ChatLine) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		c.Text = s
		return nil
	}
	type plain ChatLine
	return json.Unmarshal(b, (*plain)(c))
}

// text joins the user's chat lines into one text signal.
func (r AssessReq) text() string {
	parts := make([]string, 0, len(r.ChatHistory))
	for _, l := range r.ChatHistory {
		if l.Role != "" && l.Role != "user" {
			continue
		}
		if t := strings.TrimSpace(l.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, "\n")
}

// AssessResp is the {success, data|error} envelope of the risk endpoint.
type AssessResp struct {
	Success   bool            `json:"success"`
	Data      *AssessmentData `json:"data,omitempty"`
	Error     string          `json:"error,omitempty"`
	RequestID string          `json:"request_id,omitempty"`
}

// AssessmentData is a risk.Assessment plus its request context.
type AssessmentData struct {
	risk.Assessment
	UserID    string    `json:"userId"`
	Severity  string    `json:"severity,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// --- Chat ---

// ChatReq is the JSON body for POST /v1/chat.
type ChatReq struct {
	SessionID string `json:"session_id,omitempty"`
	Message   string `json:"message"`
}

// ChatResp carries the reply and the session to continue with.
type ChatResp struct {
	SessionID string `json:"session_id"`
	Reply     string `json:"reply"`
	Crisis    bool   `json:"crisis"`
	Rejected  bool   `json:"rejected"`
	Fallback  bool   `json:"fallback"`
}

// --- Client admin ---

// CreateClientReq is the JSON body for POST /api/clients.
type CreateClientReq struct {
	Name string `json:"name" validate:"required,min=1,max=255"`
}

// UpdateClientReq is the JSON body for PATCH /api/clients/{id}.
type UpdateClientReq struct {
	Name string `json:"name" validate:"required,min=1,max=255"`
}

// CreateClientResp includes the plaintext API key (shown once).
type CreateClientResp struct {
	ClientResp
	APIKey string `json:"api_key"`
}

// ClientResp describes a client without its key.
type ClientResp struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	APIKeyPrefix string    `json:"api_key_prefix"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// RotateKeyResp includes the new plaintext API key (shown once).
type RotateKeyResp struct {
	APIKey       string `json:"api_key"`
	APIKeyPrefix string `json:"api_key_prefix"`
}

// PolicyResp is a client's stored policy.
type PolicyResp struct {
	ClientID  string          `json:"client_id"`
	Config    json.RawMessage `json:"config"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// --- Events ---

// GuardEventResp is one stored guard event.
type GuardEventResp struct {
	RequestID        string    `json:"request_id"`
	ClientID         string    `json:"client_id"`
	Kind             string    `json:"kind"`
	Outcome          string    `json:"outcome"`
	Reason           *string   `json:"reason"`
	Tier             *string   `json:"tier"`
	Indicators       []string  `json:"indicators"`
	SignatureTags    []string  `json:"signature_tags"`
	SignatureClasses []string  `json:"signature_classes"`
	UserID           *string   `json:"user_id"`
	SessionID        *string   `json:"session_id"`
	InputPreview     string    `json:"input_preview"`
	InputSize        uint32    `json:"input_size"`
	LatencyMs        float32   `json:"latency_ms"`
	Source           string    `json:"source"`
	Timestamp        time.Time `json:"timestamp"`
}

// EventListResp is one page of events.
type EventListResp struct {
	Events   []GuardEventResp `json:"events"`
	Total    int              `json:"total"`
	Page     int              `json:"page"`
	PageSize int              `json:"page_size"`
}

// ErrorResp is a standard error response body.
type ErrorResp struct {
	Detail string `json:"detail"`
}
