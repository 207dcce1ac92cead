package ws

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/AgentOS/chatsync/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/chatsync/internal/shared/types"
)

func newServer(t *testing.T, opts ...Option) (*Hub, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	hub := NewHub(append([]Option{WithMetrics(monitoring.NewMetrics())}, opts...)...)
	router := gin.New()
	router.GET("/stream", hub.HandleConnection)

	srv := httptest.NewServer(router)
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http") + "/stream"
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func read(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var out map[string]interface{}
	require.NoError(t, sonic.Unmarshal(data, &out))
	return out
}

func TestWelcomeAndPing(t *testing.T) {
	hub, url := newServer(t)
	conn := dial(t, url)

	welcome := read(t, conn)
	assert.Equal(t, "system", welcome["type"])
	assert.NotEmpty(t, welcome["client_id"])
	assert.Eventually(t, func() bool { return hub.Count() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping"}`)))
	assert.Equal(t, "pong", read(t, conn)["type"])

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"dance"}`)))
	assert.Equal(t, "error", read(t, conn)["type"])

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`not json`)))
	assert.Equal(t, "malformed frame", read(t, conn)["message"])
}

func TestPublishReachesEveryClient(t *testing.T) {
	hub, url := newServer(t)
	a := dial(t, url)
	b := dial(t, url)
	read(t, a)
	read(t, b)
	require.Eventually(t, func() bool { return hub.Count() == 2 }, time.Second, 10*time.Millisecond)

	msg := types.Message{ID: "m1", Role: types.RoleAssistant, Kind: types.KindText, Content: "hello"}
	hub.Publish(types.Event{Type: types.EventMessage, SessionID: "s1", Message: &msg})

	for _, conn := range []*websocket.Conn{a, b} {
		got := read(t, conn)
		assert.Equal(t, "message", got["type"])
		assert.Equal(t, "s1", got["session_id"])
		assert.Equal(t, "hello", got["message"].(map[string]interface{})["content"])
	}
}

func TestNotify(t *testing.T) {
	hub, url := newServer(t)
	conn := dial(t, url)
	read(t, conn)
	require.Eventually(t, func() bool { return hub.Count() == 1 }, time.Second, 10*time.Millisecond)

	hub.Notify(types.Notification{Level: types.LevelError, Title: "Generation failed", SessionID: "s1"})

	got := read(t, conn)
	assert.Equal(t, "notification", got["type"])
	note := got["notification"].(map[string]interface{})
	assert.Equal(t, "error", note["level"])
	assert.Equal(t, "Generation failed", note["title"])
}

func TestDisconnectUnregisters(t *testing.T) {
	hub, url := newServer(t)
	conn := dial(t, url)
	read(t, conn)
	require.Eventually(t, func() bool { return hub.Count() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return hub.Count() == 0 }, 2*time.Second, 10*time.Millisecond)

	// Publishing with no clients is a no-op
	hub.Publish(types.Event{Type: types.EventSession, SessionID: "s1"})
}

func TestOriginAllowList(t *testing.T) {
	_, url := newServer(t, WithOrigins([]string{"https://app.example.com"}))

	header := map[string][]string{"Origin": {"https://evil.example.com"}}
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 403, resp.StatusCode)

	header = map[string][]string{"Origin": {"https://app.example.com"}}
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	conn.Close()
}
