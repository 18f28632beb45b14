package realtime

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dial(t *testing.T, h *Hub, conversationID int64) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = h.Serve(w, r, conversationID, 7)
	}))
	t.Cleanup(srv.Close)

	ws, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })

	var hello Frame
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, ws.ReadJSON(&hello))
	assert.Equal(t, "connected", hello.Type)
	return ws
}

func TestPublishReachesRoomOnly(t *testing.T) {
	h := NewHub()
	defer h.Close()
	a := dial(t, h, 1)
	b := dial(t, h, 2)

	require.Eventually(t, func() bool { return h.Subscribers(1) == 1 && h.Subscribers(2) == 1 }, time.Second, 10*time.Millisecond)

	assert.Equal(t, 1, h.Publish(1, "message", map[string]string{"content": "hi"}))

	var got struct {
		Type           string            `json:"type"`
		ConversationID int64             `json:"conversation_id"`
		Data           map[string]string `json:"data"`
	}
	require.NoError(t, a.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, a.ReadJSON(&got))
	assert.Equal(t, "message", got.Type)
	assert.Equal(t, int64(1), got.ConversationID)
	assert.Equal(t, "hi", got.Data["content"])

	require.NoError(t, b.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
	_, _, err := b.ReadMessage()
	assert.Error(t, err, "other rooms get nothing")
}

func TestDisconnectLeavesRoom(t *testing.T) {
	h := NewHub()
	ws := dial(t, h, 3)
	require.Eventually(t, func() bool { return h.Subscribers(3) == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	require.Eventually(t, func() bool { return h.Subscribers(3) == 0 }, 2*time.Second, 10*time.Millisecond)
	assert.Zero(t, h.Publish(3, "message", nil))
}
