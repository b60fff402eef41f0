package live

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dial(t *testing.T, srv *httptest.Server, gameID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?game=" + gameID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestHubDeliversOnlyToGameRoom(t *testing.T) {
	hub := NewHub(nil)
	go hub.Run()
	defer hub.Close()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.Serve(w, r, r.URL.Query().Get("game"))
	}))
	defer srv.Close()

	a := dial(t, srv, "game-a")
	b := dial(t, srv, "game-b")
	require.Eventually(t, func() bool {
		return hub.ClientCount("game-a") == 1 && hub.ClientCount("game-b") == 1
	}, 2*time.Second, 10*time.Millisecond)

	hub.Publish(Event{Type: "order", GameID: "game-a", PlayerID: "p1", Ticker: "AAPL", OrderType: "BUY"})

	a.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := a.ReadMessage()
	require.NoError(t, err)
	var got Event
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "AAPL", got.Ticker)
	assert.Equal(t, "game-a", got.GameID)

	b.SetReadDeadline(time.Now().Add(150 * time.Millisecond))
	_, _, err = b.ReadMessage()
	assert.Error(t, err, "other rooms receive nothing")
}

func TestHubUnregistersOnDisconnect(t *testing.T) {
	hub := NewHub(nil)
	go hub.Run()
	defer hub.Close()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.Serve(w, r, "g")
	}))
	defer srv.Close()

	conn := dial(t, srv, "g")
	require.Eventually(t, func() bool { return hub.ClientCount("g") == 1 }, 2*time.Second, 10*time.Millisecond)
	conn.Close()
	require.Eventually(t, func() bool { return hub.ClientCount("g") == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestPublishWithoutClientsDoesNotBlock(t *testing.T) {
	hub := NewHub(nil)
	for i := 0; i < 1000; i++ {
		hub.Publish(Event{Type: "order", GameID: "g"})
	}
}
