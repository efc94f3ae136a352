package ws

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/GriffinCanCode/envtrace/internal/infrastructure/monitoring"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dial(t *testing.T, hub *Hub) *websocket.Conn {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/ws/audit", hub.HandleConnection)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/audit"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func read(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func waitClients(t *testing.T, hub *Hub, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return hub.Clients() == n }, 2*time.Second, 10*time.Millisecond)
}

func TestHubStreamsLines(t *testing.T) {
	metrics := monitoring.NewMetrics()
	hub := NewHub(nil, metrics)
	conn := dial(t, hub)

	assert.Equal(t, "system", read(t, conn).Type)
	waitClients(t, hub, 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.WSConnections))

	// Lines may arrive split across writes.
	_, err := hub.Write([]byte("[GET] navigator -> platform"))
	require.NoError(t, err)
	_, err = hub.Write([]byte(" = \"Win32\"\n[HAS] window -> chrome = false\r\n"))
	require.NoError(t, err)

	first := read(t, conn)
	assert.Equal(t, "audit", first.Type)
	assert.Equal(t, `[GET] navigator -> platform = "Win32"`, first.Line)
	assert.Equal(t, "[HAS] window -> chrome = false", read(t, conn).Line)
}

func TestHubPingAndUnknown(t *testing.T) {
	hub := NewHub(nil, nil)
	conn := dial(t, hub)
	read(t, conn)

	require.NoError(t, conn.WriteJSON(Message{Type: "ping"}))
	assert.Equal(t, "pong", read(t, conn).Type)

	require.NoError(t, conn.WriteJSON(Message{Type: "subscribe"}))
	msg := read(t, conn)
	assert.Equal(t, "error", msg.Type)
	assert.Equal(t, "unknown message type", msg.Message)
}

func TestHubUnregistersOnClose(t *testing.T) {
	hub := NewHub(nil, nil)
	conn := dial(t, hub)
	read(t, conn)
	waitClients(t, hub, 1)

	require.NoError(t, conn.Close())
	waitClients(t, hub, 0)

	// Writing with no subscribers is fine.
	n, err := hub.Write([]byte("line\n"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)
}
