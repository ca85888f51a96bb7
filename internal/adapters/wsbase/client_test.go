package wsbase

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func echoServer(t *testing.T) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			mt, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if err := conn.WriteMessage(mt, data); err != nil {
				return
			}
		}
	}))
}

func TestDialReadWrite_TalliesBytes(t *testing.T) {
	server := echoServer(t)
	defer server.Close()

	c := New(Config{Venue: "test", URL: wsURL(server)})
	require.NoError(t, c.Dial(context.Background()))
	defer c.Close()

	msg := []byte(`{"ping":1}`)
	require.NoError(t, c.WriteMessage(websocket.TextMessage, msg))

	_, data, err := c.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, msg, data)

	recv, sent := c.NetworkStats()
	assert.Equal(t, int64(len(msg)), recv)
	assert.Equal(t, int64(len(msg)), sent)
}

func TestDial_UnreachableEndpointErrors(t *testing.T) {
	c := New(Config{Venue: "test", URL: "ws://127.0.0.1:1", ReconnectDelay: 10 * time.Millisecond})
	assert.Error(t, c.Dial(context.Background()))
}

func TestReadWrite_NilConnectionErrors(t *testing.T) {
	c := New(Config{Venue: "test", URL: "ws://unused"})
	_, _, err := c.ReadMessage()
	assert.Error(t, err)
	assert.Error(t, c.WriteMessage(websocket.TextMessage, nil))
}

func TestRunWithReconnect_GivesUpAfterMaxAttempts(t *testing.T) {
	c := New(Config{
		Venue:                "test",
		URL:                  "ws://127.0.0.1:1",
		ReconnectDelay:       time.Millisecond,
		MaxReconnectAttempts: 2,
	})
	err := c.RunWithReconnect(context.Background(), func([]byte) {})
	require.Error(t, err)
	assert.Equal(t, int64(2), c.ReconnectCount())
}

func TestRunWithReconnect_StopsOnContextCancel(t *testing.T) {
	server := echoServer(t)
	defer server.Close()

	c := New(Config{Venue: "test", URL: wsURL(server), ReconnectDelay: 10 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- c.RunWithReconnect(ctx, func([]byte) {})
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()
	c.Close()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(3 * time.Second):
		t.Fatal("RunWithReconnect did not stop after context cancel")
	}
}
