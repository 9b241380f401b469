package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MarcoPoloResearchLab/atlacatl/backend/internal/abuse"
	"github.com/MarcoPoloResearchLab/atlacatl/backend/internal/assistant"
	"github.com/MarcoPoloResearchLab/atlacatl/backend/internal/cards"
	"github.com/MarcoPoloResearchLab/atlacatl/backend/internal/database"
	"github.com/MarcoPoloResearchLab/atlacatl/backend/internal/identity"
	"github.com/MarcoPoloResearchLab/atlacatl/backend/internal/metrics"
)

var databaseCounter atomic.Int64

func generousLimits() map[abuse.Class]abuse.Limit {
	return map[abuse.Class]abuse.Limit{
		abuse.ClassPost:    {Requests: 100, Window: time.Minute},
		abuse.ClassComment: {Requests: 100, Window: time.Minute},
		abuse.ClassLike:    {Requests: 100, Window: time.Minute},
	}
}

type testServerOptions struct {
	limits    map[abuse.Class]abuse.Limit
	guard     Guard
	assistant assistant.Generator
	service   CardsService
}

type testServer struct {
	handler http.Handler
	metrics *metrics.Metrics
}

func newTestServer(testContext *testing.T, options testServerOptions) *testServer {
	testContext.Helper()
	gin.SetMode(gin.TestMode)

	service := options.service
	if service == nil {
		dsn := fmt.Sprintf("file:atlacatl_server_%d?mode=memory&cache=shared", databaseCounter.Add(1))
		db, err := database.Open(database.Options{Driver: database.DriverSQLite, Path: dsn}, zap.NewNop())
		if err != nil {
			testContext.Fatalf("failed to open database: %v", err)
		}
		testContext.Cleanup(func() {
			if sqlDB, err := db.DB(); err == nil {
				_ = sqlDB.Close()
			}
		})
		cardsService, err := cards.NewService(cards.ServiceConfig{Database: db, Logger: zap.NewNop()})
		if err != nil {
			testContext.Fatalf("failed to create cards service: %v", err)
		}
		service = cardsService
	}

	registry := metrics.New()
	guard := options.guard
	if guard == nil {
		limits := options.limits
		if limits == nil {
			limits = generousLimits()
		}
		abuseGuard, err := abuse.NewGuard(abuse.GuardConfig{
			Store:    abuse.NewMemoryStore(nil),
			Limits:   limits,
			Observer: registry,
		})
		if err != nil {
			testContext.Fatalf("failed to create guard: %v", err)
		}
		guard = abuseGuard
	}

	handler, err := NewHTTPHandler(Dependencies{
		CardsService: service,
		Guard:        guard,
		Resolver:     identity.NewResolver(identity.ResolverConfig{TrustForwardedFor: true}),
		Assistant:    options.assistant,
		Metrics:      registry,
		Logger:       zap.NewNop(),
	})
	if err != nil {
		testContext.Fatalf("failed to build handler: %v", err)
	}
	return &testServer{handler: handler, metrics: registry}
}

type requestOption func(*http.Request)

func fromIP(ip string) requestOption {
	return func(request *http.Request) {
		request.Header.Set("CF-Connecting-IP", ip)
	}
}

func withDevice(deviceID string) requestOption {
	return func(request *http.Request) {
		request.AddCookie(&http.Cookie{Name: identity.DeviceCookieName, Value: deviceID})
	}
}

func (s *testServer) do(method, path, body string, options ...requestOption) *httptest.ResponseRecorder {
	var reader io.Reader = http.NoBody
	if body != "" {
		reader = strings.NewReader(body)
	}
	request := httptest.NewRequest(method, path, reader)
	if body != "" {
		request.Header.Set("Content-Type", "application/json")
	}
	for _, option := range options {
		option(request)
	}
	recorder := httptest.NewRecorder()
	s.handler.ServeHTTP(recorder, request)
	return recorder
}

func decodeObject(testContext *testing.T, recorder *httptest.ResponseRecorder) map[string]any {
	testContext.Helper()
	var payload map[string]any
	if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
		testContext.Fatalf("failed to decode response %q: %v", recorder.Body.String(), err)
	}
	return payload
}

func decodeArray(testContext *testing.T, recorder *httptest.ResponseRecorder) []map[string]any {
	testContext.Helper()
	var payload []map[string]any
	if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
		testContext.Fatalf("failed to decode response %q: %v", recorder.Body.String(), err)
	}
	return payload
}

func assertNoIdentityLeak(testContext *testing.T, recorder *httptest.ResponseRecorder) {
	testContext.Helper()
	body := recorder.Body.String()
	for _, key := range []string{"ip_address", "device_id"} {
		if strings.Contains(body, `"`+key+`"`) {
			testContext.Fatalf("response leaked %s: %s", key, body)
		}
	}
}

type stubGenerator struct {
	mu      sync.Mutex
	reply   string
	err     error
	prompts []assistant.Prompt
}

func (g *stubGenerator) GenerateReply(_ context.Context, prompt assistant.Prompt) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prompts = append(g.prompts, prompt)
	return g.reply, g.err
}

type stubGuard struct {
	err   error
	calls atomic.Int64
}

func (g *stubGuard) Allow(context.Context, abuse.Class, string) error {
	g.calls.Add(1)
	return g.err
}
