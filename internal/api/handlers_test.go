// Brewline - Coffee Chat Marketplace Messaging Engine
// Copyright 2026 Brewline Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/brewline/brewline

package api

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brewline/brewline/internal/chat"
	"github.com/brewline/brewline/internal/config"
	"github.com/brewline/brewline/internal/identity"
	"github.com/brewline/brewline/internal/store"
	"github.com/brewline/brewline/internal/websocket"
)

type testServer struct {
	srv      *httptest.Server
	resolver *identity.JWTResolver
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	cfg := &config.Config{
		Security: config.SecurityConfig{
			JWTSecret:         "test-secret-0123456789-0123456789",
			TokenTTL:          time.Hour,
			RateLimitDisabled: true,
			CORSOrigins:       []string{"*"},
		},
		Websocket: config.WebsocketConfig{
			WriteWait:      time.Second,
			PongWait:       time.Second,
			MaxMessageSize: 64 * 1024,
			SendBuffer:     8,
		},
		API: config.APIConfig{DefaultPageSize: 50, MaxPageSize: 200},
	}

	st, err := store.Open(config.DatabaseConfig{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	hub := websocket.NewHub(cfg.Websocket)
	coordinator := chat.NewCoordinator(st, identity.NewMemoryDirectory(), hub)
	reconciler := chat.NewReconciler(st, time.Minute)

	resolver, err := identity.NewJWTResolver(&cfg.Security)
	require.NoError(t, err)

	handler := NewHandler(coordinator, reconciler, hub, cfg)
	router := NewRouter(handler, resolver, cfg)

	srv := httptest.NewServer(router.Setup())
	t.Cleanup(srv.Close)

	return &testServer{srv: srv, resolver: resolver}
}

func (ts *testServer) token(t *testing.T, userID string, role identity.Role) string {
	t.Helper()
	tok, err := ts.resolver.GenerateToken(userID, role)
	require.NoError(t, err)
	return tok
}

func (ts *testServer) do(t *testing.T, method, path, token string, body interface{}) (*http.Response, APIResponse) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, ts.srv.URL+path, &buf)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := ts.srv.Client().Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	var envelope APIResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	return resp, envelope
}

func dataMap(t *testing.T, envelope APIResponse) map[string]interface{} {
	t.Helper()
	m, ok := envelope.Data.(map[string]interface{})
	require.True(t, ok, "expected object data, got %T", envelope.Data)
	return m
}

func TestUnauthenticatedRequestRejected(t *testing.T) {
	ts := newTestServer(t)

	resp, envelope := ts.do(t, http.MethodGet, "/api/v1/threads", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.False(t, envelope.Success)
	require.NotNil(t, envelope.Error)
	assert.Equal(t, ErrCodeUnauthorized, envelope.Error.Code)
}

func TestHealthEndpointsOpen(t *testing.T) {
	ts := newTestServer(t)

	resp, envelope := ts.do(t, http.MethodGet, "/api/v1/health/live", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, envelope.Success)

	resp, envelope = ts.do(t, http.MethodGet, "/api/v1/health/ready", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, envelope.Success)
}

func TestCreateThreadIsGetOrCreate(t *testing.T) {
	ts := newTestServer(t)
	alice := ts.token(t, "alice", identity.RoleSeeker)
	bob := ts.token(t, "bob", identity.RoleProfessional)

	resp, envelope := ts.do(t, http.MethodPost, "/api/v1/threads", alice,
		map[string]string{"otherUserId": "bob"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	first := dataMap(t, envelope)["_id"].(string)
	require.NotEmpty(t, first)

	// Same pair from the other side lands on the same thread.
	resp, envelope = ts.do(t, http.MethodPost, "/api/v1/threads", bob,
		map[string]string{"otherUserId": "alice"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, first, dataMap(t, envelope)["_id"].(string))
}

func TestCreateThreadWithSelfRejected(t *testing.T) {
	ts := newTestServer(t)
	alice := ts.token(t, "alice", identity.RoleSeeker)

	resp, envelope := ts.do(t, http.MethodPost, "/api/v1/threads", alice,
		map[string]string{"otherUserId": "alice"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, ErrCodeBadRequest, envelope.Error.Code)
}

func TestSendMessageLifecycle(t *testing.T) {
	ts := newTestServer(t)
	alice := ts.token(t, "alice", identity.RoleSeeker)
	bob := ts.token(t, "bob", identity.RoleProfessional)

	_, envelope := ts.do(t, http.MethodPost, "/api/v1/threads", alice,
		map[string]string{"otherUserId": "bob"})
	threadID := dataMap(t, envelope)["_id"].(string)

	resp, envelope := ts.do(t, http.MethodPost, "/api/v1/threads/"+threadID+"/messages", alice,
		map[string]string{"content": "hello", "messageType": "text"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	msg := dataMap(t, envelope)
	assert.Equal(t, "hello", msg["content"])
	assert.Equal(t, threadID, msg["threadId"])

	// Recipient lists the thread with one unread.
	resp, envelope = ts.do(t, http.MethodGet, "/api/v1/threads/"+threadID, bob, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1), dataMap(t, envelope)["unreadCount"])

	// Read acknowledgement is idempotent.
	for i := 0; i < 2; i++ {
		resp, _ = ts.do(t, http.MethodPost, "/api/v1/threads/"+threadID+"/read", bob, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}
	_, envelope = ts.do(t, http.MethodGet, "/api/v1/threads/"+threadID, bob, nil)
	assert.Equal(t, float64(0), dataMap(t, envelope)["unreadCount"])
}

func TestSendMessageToForeignThreadForbidden(t *testing.T) {
	ts := newTestServer(t)
	alice := ts.token(t, "alice", identity.RoleSeeker)
	mallory := ts.token(t, "mallory", identity.RoleSeeker)

	_, envelope := ts.do(t, http.MethodPost, "/api/v1/threads", alice,
		map[string]string{"otherUserId": "bob"})
	threadID := dataMap(t, envelope)["_id"].(string)

	resp, envelope := ts.do(t, http.MethodPost, "/api/v1/threads/"+threadID+"/messages", mallory,
		map[string]string{"content": "hi", "messageType": "text"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, ErrCodeForbidden, envelope.Error.Code)
}

func TestSendMessageUnknownThreadNotFound(t *testing.T) {
	ts := newTestServer(t)
	alice := ts.token(t, "alice", identity.RoleSeeker)

	resp, envelope := ts.do(t, http.MethodPost, "/api/v1/threads/nope/messages", alice,
		map[string]string{"content": "hi", "messageType": "text"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, ErrCodeNotFound, envelope.Error.Code)
}

func TestSendMessageReservedTypeRejected(t *testing.T) {
	ts := newTestServer(t)
	alice := ts.token(t, "alice", identity.RoleSeeker)

	_, envelope := ts.do(t, http.MethodPost, "/api/v1/threads", alice,
		map[string]string{"otherUserId": "bob"})
	threadID := dataMap(t, envelope)["_id"].(string)

	for _, reserved := range []string{"invite", "payment"} {
		resp, _ := ts.do(t, http.MethodPost, "/api/v1/threads/"+threadID+"/messages", alice,
			map[string]string{"content": "x", "messageType": reserved})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "type %s must be rejected", reserved)
	}
}

func TestValidationFailureDetails(t *testing.T) {
	ts := newTestServer(t)
	alice := ts.token(t, "alice", identity.RoleSeeker)

	// Missing content.
	resp, envelope := ts.do(t, http.MethodPost, "/api/v1/threads", alice,
		map[string]string{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, ErrCodeValidationFailed, envelope.Error.Code)
	assert.NotNil(t, envelope.Error.Details)
}

func TestInvitationWorkflowOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	alice := ts.token(t, "alice", identity.RoleSeeker)
	bob := ts.token(t, "bob", identity.RoleProfessional)

	proposed := time.Now().UTC().Add(72 * time.Hour).Format(time.RFC3339)
	resp, envelope := ts.do(t, http.MethodPost, "/api/v1/invitations", alice,
		map[string]interface{}{
			"receiverId": "bob",
			"sessionDetails": map[string]interface{}{
				"proposedDate": proposed,
				"duration":     30,
				"topic":        "Fintech careers",
			},
		})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	inv := dataMap(t, envelope)["invitation"].(map[string]interface{})
	invID := inv["_id"].(string)
	assert.Equal(t, "pending", inv["status"])

	// Sender cannot respond.
	resp, envelope = ts.do(t, http.MethodPost, "/api/v1/invitations/"+invID+"/respond", alice,
		map[string]string{"decision": "accepted"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	// Receiver accepts.
	resp, envelope = ts.do(t, http.MethodPost, "/api/v1/invitations/"+invID+"/respond", bob,
		map[string]string{"decision": "accepted"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "accepted", dataMap(t, envelope)["status"])

	// Second decision loses with 409.
	resp, envelope = ts.do(t, http.MethodPost, "/api/v1/invitations/"+invID+"/respond", bob,
		map[string]string{"decision": "declined"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, ErrCodeConflict, envelope.Error.Code)

	// Sender unlocks continued chat.
	resp, envelope = ts.do(t, http.MethodPost, "/api/v1/invitations/"+invID+"/unlock", alice, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, dataMap(t, envelope)["chatUnlocked"])
}

func TestInvitationValidationRejectsPastDate(t *testing.T) {
	ts := newTestServer(t)
	alice := ts.token(t, "alice", identity.RoleSeeker)

	past := time.Now().UTC().Add(-time.Hour).Format(time.RFC3339)
	resp, envelope := ts.do(t, http.MethodPost, "/api/v1/invitations", alice,
		map[string]interface{}{
			"receiverId": "bob",
			"sessionDetails": map[string]interface{}{
				"proposedDate": past,
				"duration":     30,
				"topic":        "History",
			},
		})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, ErrCodeValidationFailed, envelope.Error.Code)
}

func TestSystemMessagesRequireServiceRole(t *testing.T) {
	ts := newTestServer(t)
	alice := ts.token(t, "alice", identity.RoleSeeker)
	svc := ts.token(t, "payments-svc", identity.RoleService)

	_, envelope := ts.do(t, http.MethodPost, "/api/v1/threads", alice,
		map[string]string{"otherUserId": "bob"})
	threadID := dataMap(t, envelope)["_id"].(string)

	body := map[string]interface{}{
		"threadId": threadID,
		"content":  "Payment received",
		"metadata": map[string]interface{}{"paymentId": "pay_1", "amount": 25.0},
	}

	resp, _ := ts.do(t, http.MethodPost, "/api/v1/system-messages", alice, body)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, envelope = ts.do(t, http.MethodPost, "/api/v1/system-messages", svc, body)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "payment", dataMap(t, envelope)["messageType"])
}

func TestAdminReconcileRequiresAdminRole(t *testing.T) {
	ts := newTestServer(t)
	alice := ts.token(t, "alice", identity.RoleSeeker)
	admin := ts.token(t, "ops", identity.RoleAdmin)

	resp, _ := ts.do(t, http.MethodPost, "/api/v1/admin/reconcile", alice, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, envelope := ts.do(t, http.MethodPost, "/api/v1/admin/reconcile", admin, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	report := dataMap(t, envelope)
	assert.Contains(t, report, "threadsScanned")
	assert.Equal(t, float64(0), report["duplicatePairs"])
}

func TestMessagePaginationOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	alice := ts.token(t, "alice", identity.RoleSeeker)

	_, envelope := ts.do(t, http.MethodPost, "/api/v1/threads", alice,
		map[string]string{"otherUserId": "bob"})
	threadID := dataMap(t, envelope)["_id"].(string)

	for i := 0; i < 5; i++ {
		resp, _ := ts.do(t, http.MethodPost, "/api/v1/threads/"+threadID+"/messages", alice,
			map[string]string{"content": fmt.Sprintf("msg %d", i), "messageType": "text"})
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		time.Sleep(time.Millisecond)
	}

	resp, envelope := ts.do(t, http.MethodGet,
		"/api/v1/threads/"+threadID+"/messages?limit=2", alice, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	page, ok := envelope.Data.([]interface{})
	require.True(t, ok)
	require.Len(t, page, 2)
	require.NotNil(t, envelope.Meta.Pagination)
	assert.True(t, envelope.Meta.Pagination.HasMore)
	assert.NotEmpty(t, envelope.Meta.Pagination.NextCursor)

	// Follow the cursor to the older page.
	resp, envelope = ts.do(t, http.MethodGet,
		"/api/v1/threads/"+threadID+"/messages?limit=2&before="+envelope.Meta.Pagination.NextCursor, alice, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	older, ok := envelope.Data.([]interface{})
	require.True(t, ok)
	require.Len(t, older, 2)
}

func TestMalformedTokenRejected(t *testing.T) {
	ts := newTestServer(t)

	resp, envelope := ts.do(t, http.MethodGet, "/api/v1/threads", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, ErrCodeUnauthorized, envelope.Error.Code)
}
