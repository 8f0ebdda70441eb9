// Package server exposes the Content Guard and Risk Classifier over gRPC.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/xzc516/fit5032-youthwell-project/internal/api"
	"github.com/xzc516/fit5032-youthwell-project/internal/auth"
	"github.com/xzc516/fit5032-youthwell-project/internal/contentguard"
	"github.com/xzc516/fit5032-youthwell-project/internal/observability"
	"github.com/xzc516/fit5032-youthwell-project/internal/ratelimit"
	"github.com/xzc516/fit5032-youthwell-project/internal/risk"
	"github.com/xzc516/fit5032-youthwell-project/internal/storage"
)

// Options holds the GuardServer's collaborators. Limiter and Metrics may be nil.
type Options struct {
	Auth       auth.Authenticator
	Limiter    *ratelimit.Registry
	RateLimit  ratelimit.Config
	Classifier *risk.Classifier
	Writer     storage.EventWriter
	Metrics    *observability.Metrics
	Logger     *zap.Logger
}

// GuardServer implements GuardServiceServer.
type GuardServer struct {
	opts Options
}

// NewGuardServer fills in default limits and classifier.
func NewGuardServer(opts Options) *GuardServer {
	if opts.Classifier == nil {
		opts.Classifier = risk.DefaultClassifier()
	}
	if opts.RateLimit == (ratelimit.Config{}) {
		opts.RateLimit = ratelimit.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &GuardServer{opts: opts}
}

// UnaryInterceptor authenticates and rate-limits calls to the guard service.
// Other services on the same server (health, reflection) pass through.
func (s *GuardServer) UnaryInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if !strings.HasPrefix(info.FullMethod, "/"+ServiceName+"/") {
			return handler(ctx, req)
		}

		creds, err := auth.CredentialsFromMetadata(ctx)
		if err != nil {
			return nil, status.Error(codes.Unauthenticated, "missing or invalid authorization metadata")
		}
		client, err := s.opts.Auth.Authenticate(ctx, creds)
		switch {
		case errors.Is(err, auth.ErrAuthUnavailable):
			s.opts.Logger.Error("auth backend unavailable", zap.Error(err))
			return nil, status.Error(codes.Unavailable, "authentication temporarily unavailable")
		case err != nil:
			return nil, status.Errorf(codes.Unauthenticated, "auth failed: %v", err)
		}

		if s.opts.Limiter != nil {
			cfg := client.Policy.EffectiveRateLimit(s.opts.RateLimit)
			ok, err := s.opts.Limiter.Allow(ctx, client.ClientID, cfg)
			if err != nil {
				s.opts.Logger.Warn("rate limiter unavailable, allowing request",
					zap.String("client_id", client.ClientID),
					zap.Error(err),
				)
			} else if !ok {
				s.opts.Metrics.ObserveRateLimited("grpc")
				return nil, status.Error(codes.ResourceExhausted, "too many requests, please try again later")
			}
		}

		return handler(auth.WithClient(ctx, client), req)
	}
}

// Sanitize takes {"text": string, "use_allowlist": bool} and returns the
// same body as POST /v1/content/sanitize.
func (s *GuardServer) Sanitize(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	start := time.Now()

	var req api.SanitizeReq
	if err := fromStruct(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, "invalid sanitize request")
	}

	matches := contentguard.Scan(req.Text)
	res := contentguard.SanitizeField(req.Text)
	if req.UseAllowlist && !res.Rejected {
		var tags []string
		if c := auth.FromContext(ctx); c != nil {
			tags = c.Policy.Tags()
		}
		res.Value = contentguard.SanitizeWithAllowlist(req.Text, tags...)
	}
	s.opts.Metrics.ObserveContent(storage.KindSanitize, res.Rejected, matches)

	event := s.newEvent(ctx, storage.KindSanitize)
	event.SetInput(req.Text)
	event.SetMatches(matches)
	s.emit(event, start)

	if matches == nil {
		matches = []contentguard.Match{}
	}
	return toStruct(api.SanitizeResp{
		SanitizationResult: res,
		Matches:            matches,
		RequestID:          event.RequestID,
	})
}

// AssessRisk takes the POST /v1/risk/assess body. Schema failures are
// InvalidArgument; everything else returns the {success, data} envelope.
func (s *GuardServer) AssessRisk(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	start := time.Now()

	body, err := protojson.Marshal(in)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, "invalid assessment request")
	}
	req, err := api.DecodeAssessRequest(body)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	snapshot := req.Snapshot()
	assessment := s.opts.Classifier.Assess(snapshot)
	s.opts.Metrics.ObserveAssessment(assessment.Tier)

	event := s.newEvent(ctx, storage.KindAssess)
	event.UserID = req.UserID
	event.SetInput(snapshot.Text)
	event.SetAssessment(assessment)
	if assessment.Tier == risk.TierCritical {
		event.Outcome = storage.OutcomeCrisis
		s.opts.Logger.Warn("critical risk assessment",
			zap.String("client_id", event.ClientID),
			zap.String("user_id", req.UserID),
			zap.Strings("indicators", event.Indicators),
		)
	}
	s.emit(event, start)

	return toStruct(api.AssessResp{
		Success:   true,
		Data:      api.NewAssessmentData(req, assessment, time.Now()),
		RequestID: event.RequestID,
	})
}

func (s *GuardServer) newEvent(ctx context.Context, kind string) *storage.GuardEvent {
	e := &storage.GuardEvent{
		RequestID: uuid.NewString(),
		Timestamp: time.Now(),
		Kind:      kind,
		Outcome:   storage.OutcomeAccepted,
		Source:    "grpc",
	}
	if c := auth.FromContext(ctx); c != nil {
		e.ClientID = c.ClientID
	}
	return e
}

func (s *GuardServer) emit(e *storage.GuardEvent, start time.Time) {
	e.Finish(start)
	if s.opts.Writer != nil {
		s.opts.Writer.Write(e)
	}
}

func fromStruct(in *structpb.Struct, v any) error {
	raw, err := protojson.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}

func toStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	out := new(structpb.Struct)
	if err := protojson.Unmarshal(raw, out); err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	return out, nil
}
