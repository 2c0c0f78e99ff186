package ws

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func newHubServer(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub(nil)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		up := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		hub.Register(conn)
	}))
	return hub, srv
}

func dialHub(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	u, _ := url.Parse(srv.URL)
	u.Scheme = "ws"
	dialer := websocket.Dialer{HandshakeTimeout: 2 * time.Second}
	conn, _, err := dialer.Dial(u.String(), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func TestHub_EmitReachesAllClients(t *testing.T) {
	hub, srv := newHubServer(t)
	defer srv.Close()

	c1 := dialHub(t, srv)
	defer c1.Close()
	c2 := dialHub(t, srv)
	defer c2.Close()

	// Registration happens inside the server handler
	waitFor(t, func() bool { return hub.ClientCount() == 2 })

	hub.Emit("hardware_status", map[string]any{"connected": true, "port": "/dev/ttyUSB0"})

	for _, conn := range []*websocket.Conn{c1, c2} {
		_ = conn.SetReadDeadline(time.Now().Add(time.Second))
		var env struct {
			Type string          `json:"type"`
			Data json.RawMessage `json:"data"`
		}
		if err := conn.ReadJSON(&env); err != nil {
			t.Fatalf("read envelope: %v", err)
		}
		if env.Type != "hardware_status" {
			t.Fatalf("type=%q", env.Type)
		}
		var data struct {
			Connected bool   `json:"connected"`
			Port      string `json:"port"`
		}
		if err := json.Unmarshal(env.Data, &data); err != nil {
			t.Fatalf("unmarshal data: %v", err)
		}
		if !data.Connected || data.Port != "/dev/ttyUSB0" {
			t.Fatalf("unexpected data: %+v", data)
		}
	}
}

func TestHub_ClientDisconnectUnregisters(t *testing.T) {
	hub, srv := newHubServer(t)
	defer srv.Close()

	conn := dialHub(t, srv)
	waitFor(t, func() bool { return hub.ClientCount() == 1 })

	conn.Close()
	waitFor(t, func() bool { return hub.ClientCount() == 0 })

	// Emitting with no clients must not panic or block
	hub.Emit("countdown_update", map[string]any{"remaining_seconds": 120})
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met within deadline")
}
