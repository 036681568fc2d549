package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/damoang/angple-chat/internal/events"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestServer upgrades /ws?uid=N and registers the connection for user N
func newTestServer(t *testing.T, hub *Hub) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		uid, err := strconv.ParseUint(r.URL.Query().Get("uid"), 10, 64)
		if err != nil {
			http.Error(w, "bad uid", http.StatusBadRequest)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		client := NewClient(hub, conn, uid, nil)
		hub.Register(client)
		go client.WritePump()
		go client.ReadPump()
	}))
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server, uid uint64) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?uid=" + strconv.FormatUint(uid, 10)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	return conn
}

func waitConnected(t *testing.T, hub *Hub, uid uint64) {
	t.Helper()
	require.Eventually(t, func() bool { return hub.Connected(uid) }, 2*time.Second, 10*time.Millisecond)
}

func TestHub_PublishReachesRecipientsOnly(t *testing.T) {
	hub := NewHub(nil)
	go hub.Run()
	t.Cleanup(hub.Stop)
	srv := newTestServer(t, hub)

	alice := dial(t, srv, 1)
	defer alice.Close()
	bob := dial(t, srv, 2)
	defer bob.Close()
	waitConnected(t, hub, 1)
	waitConnected(t, hub, 2)

	err := hub.Publish(context.Background(), []uint64{1}, &events.Event{
		Type:           events.TypeMessageCreated,
		ConversationID: 10,
	})
	require.NoError(t, err)

	require.NoError(t, alice.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := alice.ReadMessage()
	require.NoError(t, err)

	var evt events.Event
	require.NoError(t, json.Unmarshal(data, &evt))
	assert.Equal(t, events.TypeMessageCreated, evt.Type)
	assert.Equal(t, uint64(10), evt.ConversationID)

	// bob은 수신자가 아니다
	require.NoError(t, bob.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, _, err = bob.ReadMessage()
	assert.Error(t, err)
}

func TestHub_DisconnectHookAfterLastConnection(t *testing.T) {
	hub := NewHub(nil)
	disconnected := make(chan uint64, 1)
	hub.OnDisconnect(func(userID uint64) { disconnected <- userID })
	go hub.Run()
	t.Cleanup(hub.Stop)
	srv := newTestServer(t, hub)

	first := dial(t, srv, 5)
	second := dial(t, srv, 5)
	require.Eventually(t, func() bool {
		hub.mu.RLock()
		defer hub.mu.RUnlock()
		return len(hub.clients[5]) == 2
	}, 2*time.Second, 10*time.Millisecond)

	first.Close()
	select {
	case <-disconnected:
		t.Fatal("hook must wait for the last connection")
	case <-time.After(200 * time.Millisecond):
	}

	second.Close()
	select {
	case uid := <-disconnected:
		assert.Equal(t, uint64(5), uid)
	case <-time.After(2 * time.Second):
		t.Fatal("disconnect hook not called")
	}
	assert.False(t, hub.Connected(5))
}

func TestHub_SlowClientEvictionRunsDisconnectHook(t *testing.T) {
	hub := NewHub(nil)
	disconnected := make(chan uint64, 2)
	hub.OnDisconnect(func(userID uint64) { disconnected <- userID })
	go hub.Run()
	t.Cleanup(hub.Stop)

	// 아무도 읽지 않는 unbuffered 채널 = 밀린 클라이언트
	slow := &Client{hub: hub, send: make(chan []byte), userID: 9}
	hub.Register(slow)
	waitConnected(t, hub, 9)

	require.NoError(t, hub.Publish(context.Background(), []uint64{9}, &events.Event{Type: events.TypeTyping}))

	select {
	case uid := <-disconnected:
		assert.Equal(t, uint64(9), uid)
	case <-time.After(2 * time.Second):
		t.Fatal("disconnect hook not called after eviction")
	}
	assert.False(t, hub.Connected(9))

	// 뒤늦은 unregister는 훅을 다시 부르지 않는다
	hub.unregister <- slow
	select {
	case <-disconnected:
		t.Fatal("hook called twice for one connection")
	case <-time.After(200 * time.Millisecond):
	}
}
