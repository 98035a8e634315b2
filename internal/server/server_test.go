package server_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/relaychat/internal/account"
	"github.com/Tyrowin/relaychat/internal/server"
)

const testOrigin = "http://localhost:8080"

func startServer(t *testing.T, opts ...server.Option) (*server.Server, *httptest.Server) {
	t.Helper()
	return startServerWithConfig(t, server.DefaultConfig(), opts...)
}

func startServerWithConfig(t *testing.T, cfg server.Config, opts ...server.Option) (*server.Server, *httptest.Server) {
	t.Helper()
	cfg.ShutdownTimeout = 2 * time.Second

	srv := server.New(cfg, zerolog.Nop(), opts...)
	srv.StartHub()
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		_ = srv.Hub().Shutdown(cfg.ShutdownTimeout)
	})
	return srv, ts
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	headers := http.Header{}
	headers.Set("Origin", testOrigin)

	conn, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", headers)
	if resp != nil {
		_ = resp.Body.Close()
	}
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func write(t *testing.T, conn *websocket.Conn, frame map[string]any) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(frame))
}

func read(t *testing.T, conn *websocket.Conn) server.OutboundFrame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var frame server.OutboundFrame
	require.NoError(t, conn.ReadJSON(&frame))
	return frame
}

func requireSilent(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(150*time.Millisecond)))
	_, raw, err := conn.ReadMessage()
	require.Error(t, err, "unexpected frame: %s", raw)
}

func register(t *testing.T, ts *httptest.Server, username string) *websocket.Conn {
	t.Helper()
	conn := dial(t, ts)
	write(t, conn, map[string]any{"type": server.EventRegister, "username": username})
	ack := read(t, conn)
	require.Equal(t, server.EventRegistered, ack.Type)
	return conn
}

func TestServer_DirectMessage(t *testing.T) {
	_, ts := startServer(t)
	a := register(t, ts, "A")
	b := register(t, ts, "B")

	write(t, a, map[string]any{"type": server.EventSendMessage, "to": "B", "body": "hi"})

	frame := read(t, b)
	require.Equal(t, server.EventMessage, frame.Type)
	require.Equal(t, "A", frame.From)
	require.Equal(t, "hi", frame.Body)
	requireSilent(t, a)
}

func TestServer_GroupLifecycle(t *testing.T) {
	req := require.New(t)
	srv, ts := startServer(t)
	a := register(t, ts, "A")
	b := register(t, ts, "B")

	write(t, a, map[string]any{
		"type":  server.EventCreateGroup,
		"group": map[string]any{"name": "team", "members": []string{"A", "B", "C"}},
	})
	for _, conn := range []*websocket.Conn{a, b} {
		frame := read(t, conn)
		req.Equal(server.EventGroupCreated, frame.Type)
		req.Equal("team", frame.Group.Name)
	}
	_, ok := srv.Groups().Get("team")
	req.True(ok)

	c := register(t, ts, "C")
	write(t, a, map[string]any{
		"type":       server.EventSendGroupMessage,
		"group_name": "team",
		"body":       "status?",
		"members":    []string{"A", "B", "C"},
	})
	for _, conn := range []*websocket.Conn{b, c} {
		frame := read(t, conn)
		req.Equal("team [A]", frame.From)
		req.Equal("status?", frame.Body)
		req.Equal(server.SourceGroup, frame.Source.Kind)
	}
	requireSilent(t, a)
}

func TestServer_DisconnectTakesUserOffline(t *testing.T) {
	srv, ts := startServer(t)
	a := register(t, ts, "A")
	require.Eventually(t, func() bool { return srv.Registry().Len() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, a.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	_ = a.Close()

	require.Eventually(t, func() bool {
		_, online := srv.Registry().Lookup("A")
		return !online && srv.Hub().Count() == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestServer_ErrorFrame(t *testing.T) {
	_, ts := startServer(t)
	conn := dial(t, ts)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))

	frame := read(t, conn)
	require.Equal(t, server.EventError, frame.Type)
	require.Equal(t, "invalid_frame", frame.Error.Code)
}

func TestServer_RejectsDisallowedOrigin(t *testing.T) {
	_, ts := startServer(t)
	headers := http.Header{}
	headers.Set("Origin", "http://evil.example")

	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", headers)
	require.Error(t, err)
	require.NotNil(t, resp)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestServer_HTTPEndpoints(t *testing.T) {
	_, ts := startServer(t)
	register(t, ts, "A")

	resp, err := http.Get(ts.URL + "/")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/plain", resp.Header.Get("Content-Type"))
	_ = resp.Body.Close()

	resp, err = http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var health struct {
		Status      string   `json:"status"`
		Connections int      `json:"connections"`
		Online      []string `json:"online"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	require.Equal(t, "ok", health.Status)
	require.Equal(t, 1, health.Connections)
	require.Equal(t, []string{"A"}, health.Online)

	resp, err = http.Post(ts.URL+"/ws", "text/plain", nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestServer_AccountTokenFlow(t *testing.T) {
	req := require.New(t)
	store, err := account.OpenBadgerStore("", zerolog.Nop())
	req.NoError(err)
	t.Cleanup(func() { _ = store.Close() })

	tokens := account.NewTokenIssuer([]byte("test-secret"), time.Hour)
	svc := account.NewService(store, tokens, zerolog.Nop())
	_, ts := startServer(t,
		server.WithAccounts(account.NewHandler(svc, zerolog.Nop())),
		server.WithTokenVerifier(tokens),
	)

	creds := []byte(`{"username":"alice","password":"s3cret"}`)
	resp, err := http.Post(ts.URL+"/api/register", "application/json", bytes.NewReader(creds))
	req.NoError(err)
	_ = resp.Body.Close()
	req.Equal(http.StatusOK, resp.StatusCode)

	resp, err = http.Post(ts.URL+"/api/login", "application/json", bytes.NewReader(creds))
	req.NoError(err)
	var login struct {
		Success bool   `json:"success"`
		Token   string `json:"token"`
	}
	req.NoError(json.NewDecoder(resp.Body).Decode(&login))
	_ = resp.Body.Close()
	req.True(login.Success)
	req.NotEmpty(login.Token)

	conn := dial(t, ts)
	write(t, conn, map[string]any{"type": server.EventRegister, "username": "alice"})
	frame := read(t, conn)
	req.Equal(server.EventError, frame.Type)
	req.Equal("invalid_token", frame.Error.Code)

	write(t, conn, map[string]any{"type": server.EventRegister, "username": "alice", "token": login.Token})
	frame = read(t, conn)
	req.Equal(server.EventRegistered, frame.Type)
	req.Equal("alice", frame.Username)
}

func TestServer_ShutdownClosesConnections(t *testing.T) {
	cfg := server.DefaultConfig()
	srv := server.New(cfg, zerolog.Nop())
	srv.StartHub()
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	conns := []*websocket.Conn{register(t, ts, "A"), register(t, ts, "B")}
	require.NoError(t, srv.Hub().Shutdown(2*time.Second))

	for _, conn := range conns {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		_, _, err := conn.ReadMessage()
		require.Error(t, err)
	}
	require.Zero(t, srv.Registry().Len())
}

func TestServer_MessageSizeLimit(t *testing.T) {
	cfg := server.DefaultConfig()
	cfg.MaxMessageSize = 128
	srv, ts := startServerWithConfig(t, cfg)
	conn := register(t, ts, "A")

	big := map[string]any{"type": server.EventSendMessage, "to": "B", "body": strings.Repeat("x", 512)}
	write(t, conn, big)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	require.Eventually(t, func() bool { return srv.Registry().Len() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestServer_RateLimiting(t *testing.T) {
	cfg := server.DefaultConfig()
	cfg.RateLimit = server.RateLimitConfig{Burst: 3, RefillInterval: time.Minute}
	_, ts := startServerWithConfig(t, cfg)
	b := register(t, ts, "B")
	// The register frame spends one of A's three tokens.
	a := register(t, ts, "A")

	for i := 0; i < 5; i++ {
		write(t, a, map[string]any{"type": server.EventSendMessage, "to": "B", "body": fmt.Sprintf("m%d", i)})
	}

	require.Equal(t, "m0", read(t, b).Body)
	require.Equal(t, "m1", read(t, b).Body)
	requireSilent(t, b)
}

func TestServer_ManyClients(t *testing.T) {
	const n = 20
	srv, ts := startServer(t)

	conns := make([]*websocket.Conn, n)
	for i := range conns {
		conns[i] = register(t, ts, fmt.Sprintf("user-%02d", i))
	}
	require.Equal(t, n, srv.Hub().Count())

	for i, conn := range conns {
		to := fmt.Sprintf("user-%02d", (i+1)%n)
		write(t, conn, map[string]any{"type": server.EventSendMessage, "to": to, "body": fmt.Sprintf("from %d", i)})
	}

	for i, conn := range conns {
		frame := read(t, conn)
		require.Equal(t, fmt.Sprintf("user-%02d", (i+n-1)%n), frame.From)
		require.Equal(t, fmt.Sprintf("from %d", (i+n-1)%n), frame.Body)
	}
}

func TestServer_WebSocketRequiresUpgrade(t *testing.T) {
	_, ts := startServer(t)

	resp, err := http.Get(ts.URL + "/ws")
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
