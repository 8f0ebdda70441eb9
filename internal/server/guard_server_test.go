package server

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/xzc516/fit5032-youthwell-project/internal/auth"
	"github.com/xzc516/fit5032-youthwell-project/internal/ratelimit"
	"github.com/xzc516/fit5032-youthwell-project/internal/storage"
)

type memWriter struct {
	mu     sync.Mutex
	events []*storage.GuardEvent
}

func (w *memWriter) Write(e *storage.GuardEvent) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.events = append(w.events, e)
}

func (w *memWriter) Close() {}

func (w *memWriter) snapshot() []*storage.GuardEvent {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]*storage.GuardEvent(nil), w.events...)
}

// testServer spins up an in-process gRPC server and returns a connection to it.
func testServer(t *testing.T, limit int) (*grpc.ClientConn, *memWriter) {
	t.Helper()

	writer := &memWriter{}
	gs := NewGuardServer(Options{
		Auth:      auth.NewStaticAuthenticator(),
		Limiter:   ratelimit.NewRegistry(ratelimit.MemoryFactory()),
		RateLimit: ratelimit.Config{MaxRequests: limit, Window: time.Minute},
		Writer:    writer,
		Logger:    zap.NewNop(),
	})

	grpcServer := grpc.NewServer(grpc.UnaryInterceptor(gs.UnaryInterceptor()))
	Register(grpcServer, gs)
	healthpb.RegisterHealthServer(grpcServer, health.NewServer())

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	go func() { _ = grpcServer.Serve(lis) }()

	conn, err := grpc.NewClient(
		lis.Addr().String(),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("failed to dial: %v", err)
	}
	t.Cleanup(func() {
		_ = conn.Close()
		grpcServer.Stop()
	})
	return conn, writer
}

func authedCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	md := metadata.Pairs(
		"authorization", "Bearer ywk_test_key",
		auth.ClientIDHeader, "client_integration_test",
	)
	return metadata.NewOutgoingContext(ctx, md)
}

func mustStruct(t *testing.T, m map[string]any) *structpb.Struct {
	t.Helper()
	s, err := structpb.NewStruct(m)
	if err != nil {
		t.Fatalf("NewStruct: %v", err)
	}
	return s
}

func TestIntegration_SanitizeClean(t *testing.T) {
	conn, writer := testServer(t, 100)

	out := new(structpb.Struct)
	in := mustStruct(t, map[string]any{"text": "<b>hello</b>"})
	if err := conn.Invoke(authedCtx(t), SanitizeMethod, in, out); err != nil {
		t.Fatalf("Sanitize: %v", err)
	}

	m := out.AsMap()
	if m["rejected"] != false {
		t.Errorf("rejected = %v, want false", m["rejected"])
	}
	if v, _ := m["value"].(string); v == "" || v == "<b>hello</b>" {
		t.Errorf("value = %q, want escaped text", v)
	}
	if m["request_id"] == "" {
		t.Error("missing request_id")
	}

	events := writer.snapshot()
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Source != "grpc" || events[0].ClientID != "client_integration_test" {
		t.Errorf("event = %+v", events[0])
	}
}

func TestIntegration_SanitizeRejectsScript(t *testing.T) {
	conn, writer := testServer(t, 100)

	out := new(structpb.Struct)
	in := mustStruct(t, map[string]any{"text": "<script>alert(1)</script>"})
	if err := conn.Invoke(authedCtx(t), SanitizeMethod, in, out); err != nil {
		t.Fatalf("Sanitize: %v", err)
	}

	m := out.AsMap()
	if m["rejected"] != true {
		t.Errorf("rejected = %v, want true", m["rejected"])
	}
	if matches, _ := m["matches"].([]any); len(matches) == 0 {
		t.Error("expected signature matches")
	}
	if got := writer.snapshot()[0].Outcome; got != storage.OutcomeRejected {
		t.Errorf("outcome = %s, want rejected", got)
	}
}

func TestIntegration_AssessRiskEndToEnd(t *testing.T) {
	conn, writer := testServer(t, 100)

	in := mustStruct(t, map[string]any{
		"userId":          "u-1",
		"assessmentScore": 25,
		"userBehavior": map[string]any{
			"selfHarmRisk":     "high",
			"socialEngagement": 0.9,
			"sleepQuality":     0.9,
			"substanceUse":     "none",
		},
	})
	out := new(structpb.Struct)
	if err := conn.Invoke(authedCtx(t), AssessRiskMethod, in, out); err != nil {
		t.Fatalf("AssessRisk: %v", err)
	}

	data, _ := out.AsMap()["data"].(map[string]any)
	if data["riskLevel"] != "high" {
		t.Errorf("riskLevel = %v, want high", data["riskLevel"])
	}
	if data["urgency"] != "monitor" {
		t.Errorf("urgency = %v, want monitor", data["urgency"])
	}
	if data["followUpRequired"] != true {
		t.Errorf("followUpRequired = %v", data["followUpRequired"])
	}
	ind, _ := data["indicators"].(map[string]any)
	if ind["highRiskScore"] != true || ind["selfHarmIndicators"] != true || ind["sleepDisruption"] != false {
		t.Errorf("indicators = %v", ind)
	}
	if got := writer.snapshot()[0].Tier; got != "high" {
		t.Errorf("event tier = %s, want high", got)
	}
}

func TestIntegration_AssessRiskInvalid(t *testing.T) {
	conn, _ := testServer(t, 100)

	in := mustStruct(t, map[string]any{"assessmentScore": 3})
	err := conn.Invoke(authedCtx(t), AssessRiskMethod, in, new(structpb.Struct))
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("code = %v, want InvalidArgument (err=%v)", status.Code(err), err)
	}
}

func TestIntegration_Unauthenticated(t *testing.T) {
	conn, _ := testServer(t, 100)
	in := mustStruct(t, map[string]any{"text": "hi"})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := conn.Invoke(ctx, SanitizeMethod, in, new(structpb.Struct))
	if status.Code(err) != codes.Unauthenticated {
		t.Errorf("no metadata: code = %v, want Unauthenticated", status.Code(err))
	}

	bad := metadata.NewOutgoingContext(ctx, metadata.Pairs(
		"authorization", "Bearer wrong_prefix",
		auth.ClientIDHeader, "c",
	))
	err = conn.Invoke(bad, SanitizeMethod, in, new(structpb.Struct))
	if status.Code(err) != codes.Unauthenticated {
		t.Errorf("bad key: code = %v, want Unauthenticated", status.Code(err))
	}
}

func TestIntegration_RateLimited(t *testing.T) {
	conn, _ := testServer(t, 2)
	in := mustStruct(t, map[string]any{"text": "hi"})
	ctx := authedCtx(t)

	for i := 0; i < 2; i++ {
		if err := conn.Invoke(ctx, SanitizeMethod, in, new(structpb.Struct)); err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
	}
	err := conn.Invoke(ctx, SanitizeMethod, in, new(structpb.Struct))
	if status.Code(err) != codes.ResourceExhausted {
		t.Errorf("code = %v, want ResourceExhausted", status.Code(err))
	}
}

func TestIntegration_HealthSkipsAuth(t *testing.T) {
	conn, _ := testServer(t, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{})
	if err != nil {
		t.Fatalf("health check: %v", err)
	}
	if resp.Status != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("status = %v, want SERVING", resp.Status)
	}
}
