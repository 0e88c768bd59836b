package wssink

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestBroadcast(t *testing.T) {
	t.Parallel()

	hub := NewHub()
	srv := httptest.NewServer(hub)
	defer srv.Close()

	a, b := dial(t, srv), dial(t, srv)
	require.Eventually(t, func() bool { return hub.Clients() == 2 }, 5*time.Second, 5*time.Millisecond)

	require.NoError(t, hub.Send(context.Background(), []byte{0x8D, 0x40}))
	require.NoError(t, hub.Send(context.Background(), []byte{0x5D}))

	for _, c := range []*websocket.Conn{a, b} {
		c.SetReadDeadline(time.Now().Add(5 * time.Second))
		typ, msg, err := c.ReadMessage()
		require.NoError(t, err)
		assert.Equal(t, websocket.BinaryMessage, typ)
		assert.Equal(t, []byte{0x8D, 0x40}, msg)
		_, msg, err = c.ReadMessage()
		require.NoError(t, err)
		assert.Equal(t, []byte{0x5D}, msg)
	}

	a.Close()
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, 5*time.Second, 5*time.Millisecond)

	require.NoError(t, hub.Close())
	b.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err := b.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
}

func TestSendWithoutClients(t *testing.T) {
	t.Parallel()

	hub := NewHub()
	assert.NoError(t, hub.Send(context.Background(), []byte{1}))
	assert.Zero(t, hub.Dropped())
	assert.Equal(t, "websocket", hub.Name())
}
