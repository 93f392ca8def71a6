package test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/troikatech/engage-api/internal/api"
	"github.com/troikatech/engage-api/internal/api/handlers"
	"github.com/troikatech/engage-api/internal/tracking"
	"github.com/troikatech/engage-api/pkg/auth"
	"github.com/troikatech/engage-api/pkg/env"
	"github.com/troikatech/engage-api/pkg/middleware"
)

const secret = "test-secret"

// sessionsAcceptAll treats every signed token as live.
type sessionsAcceptAll struct{}

func (sessionsAcceptAll) Save(context.Context, string, string, string) error { return nil }
func (sessionsAcceptAll) Valid(context.Context, string, string, string) (bool, error) {
	return true, nil
}
func (sessionsAcceptAll) Revoke(context.Context, string, string) error { return nil }

type memEvents struct {
	mu     sync.Mutex
	events []tracking.Event
}

func (m *memEvents) Insert(_ context.Context, e *tracking.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, *e)
	return nil
}

func (m *memEvents) List(_ context.Context, q tracking.Query) ([]tracking.Event, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []tracking.Event
	for _, e := range m.events {
		if q.AdminID == "" || e.AdminID == q.AdminID {
			out = append(out, e)
		}
	}
	return out, int64(len(out)), nil
}

func (m *memEvents) WorkflowSummary(_ context.Context, _, workflowID string) (*tracking.Summary, error) {
	return tracking.Summarise(workflowID, nil), nil
}

func (m *memEvents) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

type testServer struct {
	router *gin.Engine
	events *memEvents
}

// buildTestRouter mounts the real route table over a handler with no
// database and no external integrations.
func buildTestRouter(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	require.NoError(t, middleware.RegisterValidators())

	cfg := &env.Config{
		JWTSecret:           secret,
		WhatsAppVerifyToken: "verify-me",
		WhatsAppAppSecret:   "app-secret",
		ExotelWebhookSecret: "exotel-secret",
	}
	events := &memEvents{}
	h := handlers.NewHandler(handlers.Deps{
		Config:   cfg,
		Sessions: sessionsAcceptAll{},
		Tracking: tracking.NewService(events, nil, nil, zap.NewNop()),
	})

	router := gin.New()
	router.Use(middleware.ErrorTranslator(false, zap.NewNop()))
	api.Register(router, h, api.Guards{JWTSecret: secret, Sessions: sessionsAcceptAll{}})
	return &testServer{router: router, events: events}
}

func bearer(t *testing.T, role string) string {
	t.Helper()
	id := auth.Identity{ID: primitive.NewObjectID().Hex(), Role: role}
	if role == auth.RoleAgent || role == auth.RoleUser {
		id.AdminID = primitive.NewObjectID().Hex()
	}
	tok, _, err := auth.GenerateToken(id, secret, "test", time.Hour)
	require.NoError(t, err)
	return "Bearer " + tok
}

func (s *testServer) do(method, path, authz, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

var expectedRoutes = []struct {
	method string
	path   string
}{
	{"GET", "/health"},
	{"GET", "/metrics"},
	{"GET", "/ws/tracking"},

	{"GET", "/webhooks/whatsapp"},
	{"POST", "/webhooks/whatsapp"},
	{"POST", "/webhooks/exotel"},

	{"POST", "/auth/superadmin/login"},
	{"POST", "/auth/admin/login"},
	{"POST", "/auth/agent/login"},
	{"POST", "/auth/user/login"},
	{"POST", "/auth/user/register"},
	{"POST", "/api/auth/logout"},
	{"GET", "/api/auth/me"},

	{"POST", "/api/admins"},
	{"GET", "/api/admins"},
	{"GET", "/api/admins/:id"},
	{"PUT", "/api/admins/:id"},
	{"POST", "/api/admins/:id/activate"},
	{"POST", "/api/admins/:id/deactivate"},

	{"POST", "/api/agents"},
	{"GET", "/api/agents"},
	{"GET", "/api/agents/:id"},
	{"PUT", "/api/agents/:id"},
	{"DELETE", "/api/agents/:id"},

	{"GET", "/api/users"},
	{"GET", "/api/users/:id"},
	{"PUT", "/api/users/:id"},
	{"DELETE", "/api/users/:id"},

	{"POST", "/api/catalogs"},
	{"GET", "/api/catalogs"},
	{"GET", "/api/catalogs/:id"},
	{"PUT", "/api/catalogs/:id"},
	{"POST", "/api/catalogs/:id/default"},
	{"DELETE", "/api/catalogs/:id"},

	{"POST", "/api/products"},
	{"GET", "/api/products"},
	{"GET", "/api/products/:id"},
	{"PUT", "/api/products/:id"},
	{"DELETE", "/api/products/:id"},

	{"POST", "/api/whatsapp/templates"},
	{"GET", "/api/whatsapp/templates"},
	{"POST", "/api/whatsapp/templates/sync"},
	{"GET", "/api/whatsapp/templates/:id"},
	{"DELETE", "/api/whatsapp/templates/:id"},
	{"POST", "/api/whatsapp/messages/text"},
	{"POST", "/api/whatsapp/messages/template"},

	{"GET", "/api/notifications"},
	{"GET", "/api/notifications/unread-count"},
	{"PUT", "/api/notifications/read-all"},
	{"PUT", "/api/notifications/:id/read"},

	{"POST", "/api/calls"},
	{"GET", "/api/calls"},
	{"GET", "/api/calls/:id"},
	{"POST", "/api/calls/:id/refresh"},
	{"GET", "/api/calls/:id/recording"},
	{"GET", "/api/recordings/:file"},
	{"GET", "/api/analytics/calls"},

	{"GET", "/api/gtm/accounts"},
	{"GET", "/api/gtm/containers"},
	{"GET", "/api/gtm/workspaces"},
	{"GET", "/api/gtm/environments"},
	{"GET", "/api/gtm/tags"},
	{"POST", "/api/gtm/tags"},
	{"POST", "/api/gtm/tags/sync"},
	{"DELETE", "/api/gtm/tags/:tag_id"},
	{"GET", "/api/gtm/triggers"},
	{"POST", "/api/gtm/triggers"},
	{"GET", "/api/gtm/variables"},
	{"GET", "/api/gtm/folders"},
	{"POST", "/api/gtm/publish"},

	{"POST", "/api/workflows"},
	{"GET", "/api/workflows"},
	{"GET", "/api/workflows/:id"},
	{"PUT", "/api/workflows/:id"},
	{"DELETE", "/api/workflows/:id"},

	{"POST", "/api/orders"},
	{"GET", "/api/orders"},
	{"GET", "/api/orders/:id"},
	{"PUT", "/api/orders/:id/status"},

	{"GET", "/api/activity-logs"},

	{"POST", "/api/tracking/events"},
	{"POST", "/api/tracking/workflow/start"},
	{"POST", "/api/tracking/workflow/node"},
	{"POST", "/api/tracking/workflow/input"},
	{"POST", "/api/tracking/workflow/condition"},
	{"POST", "/api/tracking/workflow/completion"},
	{"POST", "/api/tracking/api-call"},
	{"POST", "/api/tracking/kyc/step"},
	{"POST", "/api/tracking/kyc/status"},
	{"GET", "/api/tracking/events"},
	{"GET", "/api/tracking/workflows/:id/summary"},
	{"GET", "/api/tracking/stream/stats"},

	{"POST", "/api/kyc/pan"},
	{"POST", "/api/kyc/pan/ocr"},
	{"POST", "/api/kyc/aadhaar/otp"},
	{"POST", "/api/kyc/aadhaar/verify"},
	{"POST", "/api/kyc/bank"},
	{"GET", "/api/kyc/status"},
}

func Test_Routes_Registered(t *testing.T) {
	s := buildTestRouter(t)

	registered := make(map[string]bool)
	for _, rt := range s.router.Routes() {
		registered[rt.Method+" "+rt.Path] = true
	}

	for _, expected := range expectedRoutes {
		key := expected.method + " " + expected.path
		if !registered[key] {
			t.Errorf("missing route: %s %s", expected.method, expected.path)
		}
	}
}

func Test_API_RequiresBearerToken(t *testing.T) {
	s := buildTestRouter(t)

	w := s.do(http.MethodGet, "/api/auth/me", "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(http.MethodGet, "/api/auth/me", "Bearer not-a-jwt", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func Test_Routes_EnforceRoles(t *testing.T) {
	s := buildTestRouter(t)

	tests := []struct {
		name   string
		role   string
		method string
		path   string
	}{
		{"user cannot manage admins", auth.RoleUser, http.MethodGet, "/api/admins"},
		{"admin cannot manage admins", auth.RoleAdmin, http.MethodGet, "/api/admins"},
		{"agent cannot manage agents", auth.RoleAgent, http.MethodGet, "/api/agents"},
		{"agent cannot create products", auth.RoleAgent, http.MethodPost, "/api/products"},
		{"user cannot reach gtm", auth.RoleUser, http.MethodGet, "/api/gtm/accounts"},
		{"user cannot read the event log", auth.RoleUser, http.MethodGet, "/api/tracking/events"},
		{"superadmin has no kyc subject", auth.RoleSuperAdmin, http.MethodGet, "/api/kyc/status"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(tt.method, tt.path, bearer(t, tt.role), "{}")
			assert.Equal(t, http.StatusForbidden, w.Code)
		})
	}
}

func Test_UnconfiguredIntegrations_Return503(t *testing.T) {
	s := buildTestRouter(t)

	tests := []struct {
		name   string
		role   string
		method string
		path   string
		body   string
	}{
		{"gtm", auth.RoleAdmin, http.MethodGet, "/api/gtm/accounts", ""},
		{"whatsapp send", auth.RoleAgent, http.MethodPost, "/api/whatsapp/messages/text", `{"to":"+919876543210","body":"hi"}`},
		{"whatsapp templates", auth.RoleAdmin, http.MethodPost, "/api/whatsapp/templates/sync", ""},
		{"exotel", auth.RoleAgent, http.MethodPost, "/api/calls", `{"from":"+919876543210","to":"+919876543211"}`},
		{"surepass", auth.RoleUser, http.MethodPost, "/api/kyc/pan", `{"pan_number":"ABCDE1234F"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(tt.method, tt.path, bearer(t, tt.role), tt.body)
			assert.Equal(t, http.StatusServiceUnavailable, w.Code)
			assert.Contains(t, w.Header().Get("Content-Type"), "application/problem+json")
		})
	}
}

func Test_TrackEvent_PersistsScopedToTenant(t *testing.T) {
	s := buildTestRouter(t)

	w := s.do(http.MethodPost, "/api/tracking/events", bearer(t, auth.RoleAdmin),
		`{"event_type":"node_execution","event_category":"workflow","workflow_id":"wf-1","node_id":"n1","success":true}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	require.Equal(t, 1, s.events.len())

	ev := s.events.events[0]
	assert.Equal(t, "node_execution", ev.EventType)
	assert.Equal(t, tracking.CategoryWorkflow, ev.EventCategory)
	assert.NotEmpty(t, ev.AdminID)
	assert.Equal(t, "n1", ev.NodeID)
}

func Test_TrackEvent_RejectsMissingCategory(t *testing.T) {
	s := buildTestRouter(t)

	w := s.do(http.MethodPost, "/api/tracking/events", bearer(t, auth.RoleAgent), `{"event_type":"node_execution"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 0, s.events.len())
}

func Test_TrackUserInput_ResponseIsRedacted(t *testing.T) {
	s := buildTestRouter(t)

	w := s.do(http.MethodPost, "/api/tracking/workflow/input", bearer(t, auth.RoleUser),
		`{"workflow_id":"wf-1","input_variable":"otp","input_value":"123456"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.NotContains(t, w.Body.String(), "123456")

	require.Equal(t, 1, s.events.len())
	assert.Equal(t, "123456", s.events.events[0].InputValue)
}

func Test_TrackWorkflowCompletion_ZeroTotal(t *testing.T) {
	s := buildTestRouter(t)

	w := s.do(http.MethodPost, "/api/tracking/workflow/completion", bearer(t, auth.RoleAgent),
		`{"workflow_id":"wf-1","completed_nodes":0,"total_nodes":0,"success":false}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var body struct {
		Event tracking.Event `json:"event"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.NotNil(t, body.Event.CompletionPercentage)
	assert.Equal(t, 0, *body.Event.CompletionPercentage)
}

func Test_WhatsAppWebhook_Handshake(t *testing.T) {
	s := buildTestRouter(t)

	w := s.do(http.MethodGet, "/webhooks/whatsapp?hub.mode=subscribe&hub.verify_token=verify-me&hub.challenge=42", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "42", w.Body.String())

	w = s.do(http.MethodGet, "/webhooks/whatsapp?hub.mode=subscribe&hub.verify_token=nope&hub.challenge=42", "", "")
	assert.Equal(t, http.StatusForbidden, w.Code)
}

// The handler has no database, so a webhook that got past the signature
// check would panic while being applied.
func Test_Webhooks_BadSignaturesAckedAndDropped(t *testing.T) {
	s := buildTestRouter(t)

	body := `{"object":"whatsapp_business_account","entry":[{"id":"1","changes":[{"field":"messages","value":{"statuses":[{"id":"wamid.1","status":"delivered"}]}}]}]}`
	req := httptest.NewRequest(http.MethodPost, "/webhooks/whatsapp", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Hub-Signature-256", "sha256=deadbeef")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"received":true}`, rec.Body.String())

	req = httptest.NewRequest(http.MethodPost, "/webhooks/exotel", strings.NewReader("CallSid=CA1&Status=completed"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-Exotel-Signature", "deadbeef")
	rec = httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"received":true}`, rec.Body.String())
}

func Test_Health_DegradedWithoutBackends(t *testing.T) {
	s := buildTestRouter(t)

	w := s.do(http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	var body handlers.HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "degraded", body.Status)
	assert.Equal(t, "disabled", body.Services["gtm"])
}
