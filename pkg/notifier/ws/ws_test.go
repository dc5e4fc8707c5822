package ws

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

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

// Drives real ping/pong round trips while Heartbeat scans the registry, so
// the pong handler's activity writes run concurrently with the heartbeat's
// idle checks the way they do in production.
func TestHeartbeatWithConcurrentPongUpdates(t *testing.T) {
	m := NewManager()
	connCh := make(chan *Connection, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		c := m.Add("u-1", conn)
		connCh <- c
		conn.SetPongHandler(func(string) error {
			c.Touch()
			return nil
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
		m.Remove(c)
	}))
	defer srv.Close()

	go m.Heartbeat(10 * time.Millisecond)

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer client.Close()

	// The client reader must keep running so gorilla's default ping handler
	// answers the server's pings with pongs.
	go func() {
		for {
			if _, _, err := client.ReadMessage(); err != nil {
				return
			}
		}
	}()

	c := <-connCh
	before := c.LastSeen()

	// Several heartbeat intervals pass; pongs must keep the connection past
	// the 2*interval idle cutoff.
	time.Sleep(100 * time.Millisecond)

	assert.Equal(t, 1, m.ConnectionCount("u-1"))
	assert.True(t, c.LastSeen().After(before))
}
