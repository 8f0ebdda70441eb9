// Package api serves the guard over HTTP.
package api

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/xzc516/fit5032-youthwell-project/internal/auth"
	"github.com/xzc516/fit5032-youthwell-project/internal/chat"
	"github.com/xzc516/fit5032-youthwell-project/internal/chread"
	"github.com/xzc516/fit5032-youthwell-project/internal/contentguard"
	"github.com/xzc516/fit5032-youthwell-project/internal/observability"
	"github.com/xzc516/fit5032-youthwell-project/internal/policy"
	"github.com/xzc516/fit5032-youthwell-project/internal/ratelimit"
	"github.com/xzc516/fit5032-youthwell-project/internal/risk"
	"github.com/xzc516/fit5032-youthwell-project/internal/storage"
	"github.com/xzc516/fit5032-youthwell-project/internal/store"
)

// ClientStore is the client and policy CRUD used by the admin routes.
// *store.Store implements it.
type ClientStore interface {
	CreateClient(ctx context.Context, name string) (*store.Client, *store.Policy, string, error)
	ListClients(ctx context.Context) ([]*store.Client, error)
	GetClient(ctx context.Context, id string) (*store.Client, error)
	RenameClient(ctx context.Context, id, name string) (*store.Client, error)
	DeleteClient(ctx context.Context, id string) error
	RotateAPIKey(ctx context.Context, id string) (*store.Client, string, error)
	GetPolicy(ctx context.Context, clientID string) (*store.Policy, error)
	ReplacePolicy(ctx context.Context, clientID string, cfg *policy.Config) (*store.Policy, error)
}

// EventReader answers event and analytics queries. *chread.Reader implements it.
type EventReader interface {
	ListEvents(ctx context.Context, params chread.ListEventsParams) ([]chread.EventRow, int, error)
	GetEvent(ctx context.Context, clientID, requestID string) (*chread.EventRow, error)
	GetAnalytics(ctx context.Context, clientID string, days int) (*chread.AnalyticsResult, error)
}

// Dependencies holds shared state injected into all HTTP handlers.
// Optional fields may be nil; the routes they back answer 503.
type Dependencies struct {
	Auth       auth.Authenticator
	Invalidate func(clientID string) // drops cached credentials after admin changes
	Clients    ClientStore           // nil without Postgres
	Reader     EventReader           // nil without ClickHouse
	Writer     storage.EventWriter
	Limiter    *ratelimit.Registry
	RateLimit  ratelimit.Config // server default
	PostLimits contentguard.PostLimits
	Classifier *risk.Classifier
	Chat       *chat.Service // nil when no LLM is configured
	Sessions   *chat.SessionStore
	Metrics    *observability.Metrics
	Logger     *zap.Logger
	AdminToken string   // admin routes require X-Admin-Token when set
	Origins    []string // CORS allowed origins; empty allows all
}

// NewRouter builds the HTTP mux with all routes wired up.
func NewRouter(deps *Dependencies) http.Handler {
	if deps.Classifier == nil {
		deps.Classifier = risk.DefaultClassifier()
	}
	if deps.PostLimits == (contentguard.PostLimits{}) {
		deps.PostLimits = contentguard.DefaultPostLimits()
	}
	if deps.RateLimit == (ratelimit.Config{}) {
		deps.RateLimit = ratelimit.DefaultConfig()
	}

	mux := http.NewServeMux()

	// Guard endpoints (Bearer ywk_ key, per-client rate limit)
	mux.HandleFunc("POST /v1/content/sanitize", deps.guarded(deps.handleSanitize))
	mux.HandleFunc("POST /v1/content/validate", deps.guarded(deps.handleValidateForm))
	mux.HandleFunc("POST /v1/accounts/validate", deps.guarded(deps.handleValidateAccount))
	mux.HandleFunc("POST /v1/posts/validate", deps.guarded(deps.handleValidatePost))
	mux.HandleFunc("POST /v1/risk/assess", deps.guarded(deps.handleAssessRisk))
	mux.HandleFunc("GET /v1/risk/resources", deps.guarded(deps.handleRiskResources))

	// Support chat
	mux.HandleFunc("POST /v1/chat", deps.guarded(deps.handleChat))
	mux.HandleFunc("GET /v1/chat/prompts", deps.guarded(deps.handleChatPrompts))
	mux.HandleFunc("DELETE /v1/chat/{session_id}", deps.guarded(deps.handleClearChat))

	// Client admin
	mux.HandleFunc("POST /api/clients", deps.admin(deps.handleCreateClient))
	mux.HandleFunc("GET /api/clients", deps.admin(deps.handleListClients))
	mux.HandleFunc("GET /api/clients/{client_id}", deps.admin(deps.handleGetClient))
	mux.HandleFunc("PATCH /api/clients/{client_id}", deps.admin(deps.handleUpdateClient))
	mux.HandleFunc("DELETE /api/clients/{client_id}", deps.admin(deps.handleDeleteClient))
	mux.HandleFunc("POST /api/clients/{client_id}/rotate-key", deps.admin(deps.handleRotateKey))
	mux.HandleFunc("GET /api/clients/{client_id}/policy", deps.admin(deps.handleGetPolicy))
	mux.HandleFunc("PUT /api/clients/{client_id}/policy", deps.admin(deps.handleReplacePolicy))

	// Events & analytics
	mux.HandleFunc("GET /api/events", deps.admin(deps.handleListEvents))
	mux.HandleFunc("GET /api/events/{request_id}", deps.admin(deps.handleGetEvent))
	mux.HandleFunc("GET /api/analytics", deps.admin(deps.handleGetAnalytics))

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.Handle("GET /metrics", deps.Metrics.Handler())

	return deps.cors().Handler(securityHeaders(deps.requestLogging(mux)))
}

func (d *Dependencies) guarded(next http.HandlerFunc) http.HandlerFunc {
	return d.authMiddleware(d.rateLimit(next))
}
