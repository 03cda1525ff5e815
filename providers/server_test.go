package providers

import (
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/orchestra-mcp/chatsync/config"
	"github.com/orchestra-mcp/chatsync/src/auth"
	"github.com/orchestra-mcp/chatsync/src/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"
)

const testSecret = "test-secret"

func testConfig(t *testing.T, anonymous bool) config.AppConfig {
	t.Helper()
	return config.AppConfig{
		HTTPAddress:       "127.0.0.1:0",
		DatabasePath:      filepath.Join(t.TempDir(), "chat.db"),
		LogLevel:          "disabled",
		AuthSigningSecret: testSecret,
		AuthIssuer:        "chatsync",
		AuthTokenTTL:      time.Hour,
		AllowAnonymous:    anonymous,
		Socket:            *config.DefaultConfig(),
	}
}

func startServer(t *testing.T, cfg config.AppConfig) *ChatServer {
	t.Helper()
	s := NewChatServer(cfg, zerolog.Nop())
	require.NoError(t, s.Activate())
	t.Cleanup(func() { _ = s.Deactivate() })
	return s
}

func doJSON(t *testing.T, s *ChatServer, method, path, userID, body string) (int, map[string]any) {
	t.Helper()
	var headers map[string]string
	if userID != "" {
		headers = map[string]string{"X-User-ID": userID}
	}
	return doRequest(t, s, method, path, headers, body)
}

func doRequest(t *testing.T, s *ChatServer, method, path string, headers map[string]string, body string) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := s.App().Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]any{}
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &out))
	}
	return resp.StatusCode, out
}

func TestActivateTwiceFails(t *testing.T) {
	s := startServer(t, testConfig(t, true))
	assert.True(t, s.IsActive())
	assert.Error(t, s.Activate())
}

func TestHealthAndInfo(t *testing.T) {
	s := startServer(t, testConfig(t, true))

	status, body := doJSON(t, s, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["status"])

	status, body = doJSON(t, s, http.MethodGet, "/ws/info", "", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "/ws", body["endpoint"])
	assert.Equal(t, false, body["bridge"])
}

func TestSendAndReact(t *testing.T) {
	s := startServer(t, testConfig(t, true))

	status, body := doJSON(t, s, http.MethodPost, "/api/messages/send/B", "A", `{"text":"hi"}`)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, false, body["delivered"])
	msg := body["message"].(map[string]any)
	id := msg["_id"].(string)
	require.NotEmpty(t, id)

	status, body = doJSON(t, s, http.MethodPost, "/api/messages/reaction/"+id, "B", `{"emoji":"❤️"}`)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, []any{map[string]any{"userId": "B", "emoji": "❤️"}}, body["reactions"])

	status, body = doJSON(t, s, http.MethodPost, "/api/messages/reaction/"+id, "B", `{"remove":true}`)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, []any{}, body["reactions"])
}

func TestReactionNullOrAbsentEmojiRemoves(t *testing.T) {
	s := startServer(t, testConfig(t, true))

	_, body := doJSON(t, s, http.MethodPost, "/api/messages/send/B", "A", `{"text":"hi"}`)
	id := body["message"].(map[string]any)["_id"].(string)

	for _, removal := range []string{`{"emoji":null}`, `{}`} {
		status, body := doJSON(t, s, http.MethodPost, "/api/messages/reaction/"+id, "B", `{"emoji":"👍"}`)
		require.Equal(t, http.StatusOK, status)
		require.Len(t, body["reactions"], 1)

		status, body = doJSON(t, s, http.MethodPost, "/api/messages/reaction/"+id, "B", removal)
		require.Equal(t, http.StatusOK, status, removal)
		assert.Equal(t, []any{}, body["reactions"], removal)
	}
}

func TestErrorStatuses(t *testing.T) {
	s := startServer(t, testConfig(t, true))

	tests := []struct {
		name   string
		method string
		path   string
		user   string
		body   string
		status int
		code   string
	}{
		{"no identity", http.MethodPost, "/api/messages/send/B", "", `{"text":"hi"}`, http.StatusUnauthorized, "unauthorized"},
		{"empty message", http.MethodPost, "/api/messages/send/B", "A", `{}`, http.StatusBadRequest, types.CodeValidation},
		{"malformed body", http.MethodPost, "/api/messages/send/B", "A", `{`, http.StatusBadRequest, types.CodeValidation},
		{"empty emoji", http.MethodPost, "/api/messages/reaction/x", "A", `{"emoji":""}`, http.StatusBadRequest, types.CodeValidation},
		{"unknown message", http.MethodPost, "/api/messages/reaction/ghost", "A", `{"emoji":"👍"}`, http.StatusNotFound, types.CodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := doJSON(t, s, tt.method, tt.path, tt.user, tt.body)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, body["error"])
		})
	}
}

func TestTokenRequiredWithoutAnonymous(t *testing.T) {
	s := startServer(t, testConfig(t, false))

	status, _ := doJSON(t, s, http.MethodPost, "/api/messages/send/B", "A", `{"text":"hi"}`)
	assert.Equal(t, http.StatusUnauthorized, status)

	issuer, err := auth.NewTokenIssuer(auth.Config{SigningSecret: []byte(testSecret), Issuer: "chatsync"})
	require.NoError(t, err)
	token, _, err := issuer.Issue("A")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/messages/send/B", strings.NewReader(`{"text":"hi"}`))
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := s.App().Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
}

func TestConversationRoute(t *testing.T) {
	s := startServer(t, testConfig(t, true))
	doJSON(t, s, http.MethodPost, "/api/messages/send/B", "A", `{"text":"one"}`)
	doJSON(t, s, http.MethodPost, "/api/messages/send/A", "B", `{"text":"two"}`)
	doJSON(t, s, http.MethodPost, "/api/messages/send/C", "A", `{"text":"other"}`)

	req := httptest.NewRequest(http.MethodGet, "/api/messages/B", nil)
	req.Header.Set("X-User-ID", "A")
	resp, err := s.App().Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var messages []types.ChatMessage
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&messages))
	require.Len(t, messages, 2)
}

func TestAdminRoutes(t *testing.T) {
	cfg := testConfig(t, false)
	cfg.AdminToken = "ops-secret"
	s := startServer(t, cfg)
	admin := map[string]string{"X-Admin-Token": "ops-secret"}

	status, body := doRequest(t, s, http.MethodGet, "/api/admin/clients", nil, "")
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "unauthorized", body["error"])

	// A valid chat user token is not an operator credential.
	issuer, err := auth.NewTokenIssuer(auth.Config{SigningSecret: []byte(testSecret), Issuer: "chatsync"})
	require.NoError(t, err)
	token, _, err := issuer.Issue("A")
	require.NoError(t, err)
	status, _ = doRequest(t, s, http.MethodGet, "/api/admin/clients", map[string]string{"Authorization": "Bearer " + token}, "")
	assert.Equal(t, http.StatusUnauthorized, status)

	status, body = doRequest(t, s, http.MethodGet, "/api/admin/clients", map[string]string{"X-Admin-Token": token}, "")
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "forbidden", body["error"])

	status, body = doRequest(t, s, http.MethodGet, "/api/admin/clients", admin, "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(0), body["count"])

	status, body = doRequest(t, s, http.MethodGet, "/api/admin/rooms", admin, "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(0), body["count"])

	status, body = doRequest(t, s, http.MethodPost, "/api/admin/users/ghost/notify", admin, `{"event":"notice"}`)
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, types.CodeTransport, body["error"])
}

func TestAdminRoutesForbiddenForAnonymousUsers(t *testing.T) {
	cfg := testConfig(t, true)
	cfg.AdminToken = "ops-secret"
	s := startServer(t, cfg)

	status, _ := doJSON(t, s, http.MethodPost, "/api/admin/users/B/notify", "ops", `{"event":"newMessage"}`)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = doRequest(t, s, http.MethodGet, "/api/admin/rooms", map[string]string{"X-Admin-Token": "guess", "X-User-ID": "ops"}, "")
	assert.Equal(t, http.StatusForbidden, status)
}

func TestAdminRoutesAbsentWithoutToken(t *testing.T) {
	s := startServer(t, testConfig(t, true))

	status, _ := doRequest(t, s, http.MethodGet, "/api/admin/clients", map[string]string{"X-Admin-Token": "", "X-User-ID": "ops"}, "")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestUpgradeRejections(t *testing.T) {
	cfg := testConfig(t, false)
	s := startServer(t, cfg)
	handler := s.Handler()

	var plain fasthttp.RequestCtx
	plain.Request.SetRequestURI("/ws")
	handler(&plain)
	assert.Equal(t, fasthttp.StatusUpgradeRequired, plain.Response.StatusCode())

	var anonymous fasthttp.RequestCtx
	anonymous.Request.SetRequestURI("/ws?userId=A")
	anonymous.Request.Header.Set("Upgrade", "websocket")
	handler(&anonymous)
	assert.Equal(t, fasthttp.StatusUnauthorized, anonymous.Response.StatusCode())

	var health fasthttp.RequestCtx
	health.Request.SetRequestURI("/health")
	handler(&health)
	assert.Equal(t, fasthttp.StatusOK, health.Response.StatusCode())
}

func dialer(ln *fasthttputil.InmemoryListener) *websocket.Dialer {
	return &websocket.Dialer{
		NetDial:          func(string, string) (net.Conn, error) { return ln.Dial() },
		HandshakeTimeout: time.Second,
	}
}

func readEvent(t *testing.T, conn *websocket.Conn, event string) types.Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		var msg types.Message
		require.NoError(t, conn.ReadJSON(&msg))
		if msg.Event == event {
			return msg
		}
	}
}

func TestWebSocketPresenceAndPlayback(t *testing.T) {
	s := startServer(t, testConfig(t, true))

	ln := fasthttputil.NewInmemoryListener()
	srv := &fasthttp.Server{Handler: s.Handler()}
	go func() { _ = srv.Serve(ln) }()
	t.Cleanup(func() { _ = ln.Close() })

	connA, _, err := dialer(ln).Dial("ws://chat.local/ws?userId=A", nil)
	require.NoError(t, err)
	defer connA.Close()
	readEvent(t, connA, types.EventOnlineUsers)

	connB, _, err := dialer(ln).Dial("ws://chat.local/ws?userId=B", nil)
	require.NoError(t, err)
	defer connB.Close()

	var presence types.PresenceUpdate
	require.NoError(t, readEvent(t, connA, types.EventOnlineUsers).Decode(&presence))
	assert.Equal(t, []string{"A", "B"}, presence.OnlineUserIDs)

	room := `{"roomId":"A-B"}`
	require.NoError(t, connA.WriteJSON(map[string]any{"event": types.EventJoinRoom, "data": json.RawMessage(room)}))
	require.NoError(t, connB.WriteJSON(map[string]any{"event": types.EventJoinRoom, "data": json.RawMessage(room)}))
	require.Eventually(t, func() bool { return s.hub.Rooms()["A-B"] == 2 }, 2*time.Second, 10*time.Millisecond)

	play := `{"roomId":"A-B","action":"play","songUrl":"u","songName":"n","currentTime":12.5}`
	require.NoError(t, connA.WriteJSON(map[string]any{"event": types.EventMusicSync, "data": json.RawMessage(play)}))

	var got types.PlaybackBroadcast
	require.NoError(t, readEvent(t, connB, types.EventMusicSync).Decode(&got))
	assert.Equal(t, types.ActionPlay, got.Action)
	assert.Equal(t, 12.5, got.CurrentTime)
}
