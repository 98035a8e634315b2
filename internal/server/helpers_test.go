package server

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const frameTimeout = 200 * time.Millisecond

// relay is the core wired the way Server wires it, without HTTP.
type relay struct {
	hub      *Hub
	registry *Registry
	router   *Router
	groups   *GroupDirectory
	gateway  *Gateway
}

func newRelay(t *testing.T) *relay {
	t.Helper()
	return newRelayWithConfig(t, DefaultConfig(), nil)
}

func newRelayWithConfig(t *testing.T, cfg Config, tokens TokenVerifier) *relay {
	t.Helper()
	log := zerolog.Nop()
	r := &relay{registry: NewRegistry()}
	r.router = NewRouter(r.registry, log)
	r.groups = NewGroupDirectory(r.router, log)
	r.gateway = NewGateway(r.registry, r.router, r.groups, tokens, log)
	r.hub = NewHub(cfg, r.gateway, log)
	return r
}

// client returns a connection-less client for the relay's hub.
func (r *relay) client() *Client {
	return NewClient(nil, r.hub, "127.0.0.1:0")
}

// online registers a fresh client as username and drains the ack.
func (r *relay) online(t *testing.T, username string) *Client {
	t.Helper()
	c := r.client()
	sendFrame(t, r.gateway, c, map[string]any{"type": EventRegister, "username": username})
	ack := readFrame(t, c)
	require.Equal(t, EventRegistered, ack.Type)
	require.Equal(t, username, ack.Username)
	return c
}

func sendFrame(t *testing.T, g *Gateway, c *Client, frame map[string]any) {
	t.Helper()
	raw, err := json.Marshal(frame)
	require.NoError(t, err)
	g.HandleFrame(c, raw)
}

func readFrame(t *testing.T, c *Client) OutboundFrame {
	t.Helper()
	select {
	case raw, ok := <-c.GetSendChan():
		require.True(t, ok, "send channel closed")
		var frame OutboundFrame
		require.NoError(t, json.Unmarshal(raw, &frame))
		return frame
	case <-time.After(frameTimeout):
		t.Fatal("timed out waiting for a frame")
		return OutboundFrame{}
	}
}

func requireNoFrame(t *testing.T, c *Client) {
	t.Helper()
	select {
	case raw, ok := <-c.GetSendChan():
		if ok {
			t.Fatalf("unexpected frame: %s", raw)
		}
	default:
	}
}
