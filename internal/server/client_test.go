package server

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestClient_TrySend(t *testing.T) {
	req := require.New(t)
	cfg := DefaultConfig()
	cfg.SendBufferSize = 2
	r := newRelayWithConfig(t, cfg, nil)
	c := r.client()

	req.True(c.trySend([]byte("1")))
	req.True(c.trySend([]byte("2")))
	req.False(c.trySend([]byte("3")), "buffer full")

	req.Equal([]byte("1"), <-c.GetSendChan())
	req.True(c.trySend([]byte("3")))
}

func TestClient_CloseIsIdempotent(t *testing.T) {
	req := require.New(t)
	c := newRelay(t).client()

	req.True(c.close())
	req.False(c.close())
	req.True(c.isClosed())
	req.False(c.trySend([]byte("late")))

	_, ok := <-c.GetSendChan()
	req.False(ok)
}

func TestClient_IdentityIsUnique(t *testing.T) {
	r := newRelay(t)
	a, b := r.client(), r.client()

	require.NotEmpty(t, a.ID())
	require.NotEqual(t, a.ID(), b.ID())
	require.Equal(t, "127.0.0.1:0", a.Addr())
	require.Empty(t, a.Username())
}

type panickingHandler struct{ recordingHandler }

func (*panickingHandler) HandleFrame(*Client, []byte) { panic("boom") }

func TestClient_DispatchRecoversFromPanic(t *testing.T) {
	hub := NewHub(DefaultConfig(), &panickingHandler{}, zerolog.Nop())
	c := NewClient(nil, hub, "127.0.0.1:0")

	require.NotPanics(t, func() { c.dispatch([]byte(`{}`)) })
}
