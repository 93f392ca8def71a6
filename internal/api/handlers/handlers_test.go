package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/troikatech/engage-api/internal/tracking"
	"github.com/troikatech/engage-api/pkg/auth"
)

func TestPayloadFor(t *testing.T) {
	tests := []struct {
		name string
		req  TrackEventRequest
		want tracking.Payload
	}{
		{
			name: "workflow",
			req:  TrackEventRequest{EventCategory: "workflow", NodeID: "n1", NodeType: "message"},
			want: tracking.WorkflowPayload{NodeID: "n1", NodeType: "message"},
		},
		{
			name: "kyc step",
			req:  TrackEventRequest{EventCategory: "kyc", KycStep: "pan"},
			want: tracking.KycPayload{KycStep: "pan"},
		},
		{
			name: "kyc provider call",
			req:  TrackEventRequest{EventCategory: "kyc", Endpoint: "surepass/pan", StatusCode: 200},
			want: tracking.ApiPayload{Class: tracking.CategoryKYC, Endpoint: "surepass/pan", StatusCode: 200},
		},
		{
			name: "api",
			req:  TrackEventRequest{EventCategory: "api", Endpoint: "/orders", Method: "POST"},
			want: tracking.ApiPayload{Class: tracking.CategoryAPI, Endpoint: "/orders", Method: "POST"},
		},
		{
			name: "user interaction",
			req:  TrackEventRequest{EventCategory: "user_interaction", InputVariable: "name", InputValue: "Asha"},
			want: tracking.InteractionPayload{InputVariable: "name", InputValue: "Asha"},
		},
		{
			name: "unknown category",
			req:  TrackEventRequest{EventCategory: "billing"},
			want: nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, payloadFor(tt.req))
		})
	}
}

func TestTrackingUser(t *testing.T) {
	user := auth.Identity{ID: "u1", Role: auth.RoleUser, AdminID: "a1"}
	agent := auth.Identity{ID: "g1", Role: auth.RoleAgent, AdminID: "a1"}

	assert.Equal(t, "u1", trackingUser(user, "someone-else"))
	assert.Equal(t, "u2", trackingUser(agent, "u2"))
	assert.Empty(t, trackingUser(agent, ""))
}

func TestOwnedBy(t *testing.T) {
	owner := primitive.NewObjectID()
	other := primitive.NewObjectID()

	tests := []struct {
		name    string
		id      auth.Identity
		adminID primitive.ObjectID
		want    bool
	}{
		{"superadmin sees everything", auth.Identity{Role: auth.RoleSuperAdmin}, other, true},
		{"admin owns own records", auth.Identity{ID: owner.Hex(), Role: auth.RoleAdmin}, owner, true},
		{"admin denied other tenant", auth.Identity{ID: owner.Hex(), Role: auth.RoleAdmin}, other, false},
		{"agent inherits admin", auth.Identity{ID: "g1", Role: auth.RoleAgent, AdminID: owner.Hex()}, owner, true},
		{"unowned record", auth.Identity{ID: owner.Hex(), Role: auth.RoleAdmin}, primitive.NilObjectID, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ownedBy(tt.id, tt.adminID))
		})
	}
}

func TestCallUpdates(t *testing.T) {
	updates := callUpdates("Completed", " 42 ", "https://rec/1.mp3", "2024-03-01 10:00:00", "not a time")

	assert.Equal(t, "completed", updates["status"])
	assert.Equal(t, 42, updates["duration"])
	assert.Equal(t, "https://rec/1.mp3", updates["recording_url"])
	assert.Contains(t, updates, "start_time")
	assert.NotContains(t, updates, "end_time")
	assert.Contains(t, updates, "updated_at")

	bare := callUpdates("", "-3", "", "", "")
	assert.NotContains(t, bare, "status")
	assert.NotContains(t, bare, "duration")
}

func TestParseExotelTime(t *testing.T) {
	got, ok := parseExotelTime("2024-03-01T10:00:00Z")
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC), got)

	_, ok = parseExotelTime("2024-03-01 10:00:00")
	assert.True(t, ok)

	_, ok = parseExotelTime("")
	assert.False(t, ok)
}

func TestTemplateKey(t *testing.T) {
	assert.Equal(t, "order_update|en_US", templateKey("order_update", "en_US"))
}

func TestKycMetadata(t *testing.T) {
	in := map[string]interface{}{"provider": "surepass"}

	out := kycMetadata(auth.Identity{ID: "a1", Role: auth.RoleAdmin}, in)
	assert.Equal(t, "a1", out["admin_id"])
	assert.Equal(t, "surepass", out["provider"])
	assert.NotContains(t, in, "admin_id")

	out = kycMetadata(auth.Identity{ID: "s1", Role: auth.RoleSuperAdmin}, nil)
	assert.NotContains(t, out, "admin_id")
}

func TestParseDateRange(t *testing.T) {
	gin.SetMode(gin.TestMode)

	run := func(query string) (*httptest.ResponseRecorder, *time.Time, *time.Time, bool) {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest(http.MethodGet, "/?"+query, nil)
		from, to, ok := parseDateRange(c)
		return w, from, to, ok
	}

	_, from, to, ok := run("")
	assert.True(t, ok)
	assert.Nil(t, from)
	assert.Nil(t, to)

	_, from, to, ok = run("from_date=2024-03-01&to_date=2024-03-01")
	require.True(t, ok)
	assert.True(t, to.After(*from))
	assert.Equal(t, 23, to.Hour())

	w, _, _, ok := run("from_date=yesterday")
	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
