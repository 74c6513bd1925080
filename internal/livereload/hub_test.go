package livereload

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dial(t *testing.T, server *httptest.Server, header http.Header) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(server.URL, "http")
	return websocket.Dial(ctx, url, &websocket.DialOptions{HTTPHeader: header})
}

func readMessage(t *testing.T, conn *websocket.Conn) UpdateMessage {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	require.NoError(t, err)

	var msg UpdateMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func TestHubBroadcastsReload(t *testing.T) {
	hub := NewHub(nil, nil)
	defer hub.Shutdown(context.Background())

	server := httptest.NewServer(hub)
	defer server.Close()

	conn, _, err := dial(t, server, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	assert.Equal(t, MessageConnected, readMessage(t, conn).Type)
	assert.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	hub.Broadcast(UpdateMessage{Type: MessageFullReload, Target: "src/entry-server.gohtml"})

	msg := readMessage(t, conn)
	assert.Equal(t, MessageFullReload, msg.Type)
	assert.Equal(t, "src/entry-server.gohtml", msg.Target)
	assert.False(t, msg.Timestamp.IsZero())
}

func TestHubRejectsForeignOrigin(t *testing.T) {
	hub := NewHub([]string{"localhost:5173"}, nil)
	defer hub.Shutdown(context.Background())

	server := httptest.NewServer(hub)
	defer server.Close()

	_, resp, err := dial(t, server, http.Header{"Origin": {"http://evil.example"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	conn, _, err := dial(t, server, http.Header{"Origin": {"http://localhost:5173"}})
	require.NoError(t, err)
	conn.Close(websocket.StatusNormalClosure, "")
}

func TestHubAcceptsSameOrigin(t *testing.T) {
	hub := NewHub(nil, nil)
	defer hub.Shutdown(context.Background())

	server := httptest.NewServer(hub)
	defer server.Close()

	conn, _, err := dial(t, server, http.Header{"Origin": {server.URL}})
	require.NoError(t, err)
	conn.Close(websocket.StatusNormalClosure, "")
}

func TestHubUnregistersOnDisconnect(t *testing.T) {
	hub := NewHub(nil, nil)
	defer hub.Shutdown(context.Background())

	server := httptest.NewServer(hub)
	defer server.Close()

	conn, _, err := dial(t, server, nil)
	require.NoError(t, err)
	assert.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, conn.Close(websocket.StatusNormalClosure, "bye"))
	assert.Eventually(t, func() bool { return hub.ClientCount() == 0 }, time.Second, 5*time.Millisecond)
}

func TestHubShutdown(t *testing.T) {
	hub := NewHub(nil, nil)
	server := httptest.NewServer(hub)
	defer server.Close()

	conn, _, err := dial(t, server, nil)
	require.NoError(t, err)
	assert.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, hub.Shutdown(context.Background()))
	require.NoError(t, hub.Shutdown(context.Background()))
	assert.Equal(t, 0, hub.ClientCount())

	// Broadcasting after shutdown is a no-op.
	hub.Broadcast(UpdateMessage{Type: MessageFullReload})

	w := httptest.NewRecorder()
	hub.ServeHTTP(w, httptest.NewRequest(http.MethodGet, SocketPath, nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	conn.CloseNow()
}

func TestServeClientScript(t *testing.T) {
	w := httptest.NewRecorder()
	ServeClientScript(w, httptest.NewRequest(http.MethodGet, ScriptPath, nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/javascript; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), SocketPath)
	assert.Contains(t, w.Body.String(), MessageFullReload)
	assert.Contains(t, w.Body.String(), URLAttribute)
}
