package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/chartvoice/chartvoice/pkg/core"
	"github.com/chartvoice/chartvoice/pkg/realtime/protocol"
)

// newProviderTestServer runs a fake realtime provider. It upgrades the
// request, performs the session_init handshake, then hands the connection to
// script. dials counts completed upgrades.
func newProviderTestServer(t *testing.T, dials *atomic.Int64, script func(t *testing.T, conn *websocket.Conn)) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		defer conn.Close()
		if dials != nil {
			dials.Add(1)
		}

		var init protocol.SessionInit
		if err := conn.ReadJSON(&init); err != nil {
			t.Errorf("read session_init: %v", err)
			return
		}
		if init.Type != "session_init" {
			t.Errorf("first frame type = %q, want session_init", init.Type)
			return
		}
		if err := conn.WriteJSON(map[string]any{
			"type":       "session_established",
			"session_id": "sess-test-1",
		}); err != nil {
			t.Errorf("write session_established: %v", err)
			return
		}
		if script != nil {
			script(t, conn)
		}
	}))
}

func newTestManager(t *testing.T, endpoint string) *Manager {
	t.Helper()
	m, err := NewManager(StaticURL(endpoint), Config{
		Provider:       "test",
		Agent:          "chart-assistant",
		ConnectTimeout: 2 * time.Second,
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return m
}

func TestManager_GetConnection_SharesInFlightAttempt(t *testing.T) {
	var dials atomic.Int64
	release := make(chan struct{})
	srv := newProviderTestServer(t, &dials, func(t *testing.T, conn *websocket.Conn) {
		<-release
	})
	defer srv.Close()
	defer close(release)

	m := newTestManager(t, srv.URL)
	defer m.CloseConnection()

	const callers = 8
	sessions := make([]*Session, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sessions[i], errs[i] = m.GetConnection(context.Background())
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d: %v", i, errs[i])
		}
		if sessions[i] != sessions[0] {
			t.Fatalf("caller %d got a different session", i)
		}
	}
	if got := dials.Load(); got != 1 {
		t.Fatalf("dials = %d, want 1", got)
	}
	if sessions[0].ID() != "sess-test-1" {
		t.Fatalf("session id = %q, want sess-test-1", sessions[0].ID())
	}
	if m.State() != StateConnected {
		t.Fatalf("state = %v, want CONNECTED", m.State())
	}
}

func TestManager_ListenerFanOutInRegistrationOrder(t *testing.T) {
	release := make(chan struct{})
	srv := newProviderTestServer(t, nil, func(t *testing.T, conn *websocket.Conn) {
		err := conn.WriteJSON(map[string]any{
			"type":    "transcript_delta",
			"item_id": "item-1",
			"role":    "assistant",
			"text":    "TSLA looks strong",
		})
		if err != nil {
			t.Errorf("write transcript_delta: %v", err)
		}
		<-release
	})
	defer srv.Close()
	defer close(release)

	m := newTestManager(t, srv.URL)
	defer m.CloseConnection()

	var mu sync.Mutex
	var seen []string
	got := make(chan struct{}, 2)
	record := func(name string) func(protocol.TranscriptDelta) {
		return func(d protocol.TranscriptDelta) {
			mu.Lock()
			seen = append(seen, name+":"+d.Text)
			mu.Unlock()
			got <- struct{}{}
		}
	}
	m.AddListener("first", Listener{OnTranscript: record("first")})
	m.AddListener("second", Listener{OnTranscript: record("second")})

	if _, err := m.GetConnection(context.Background()); err != nil {
		t.Fatalf("GetConnection: %v", err)
	}
	for i := 0; i < 2; i++ {
		select {
		case <-got:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for transcript fan-out")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	want := []string{"first:TSLA looks strong", "second:TSLA looks strong"}
	if len(seen) != len(want) {
		t.Fatalf("seen = %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("seen[%d] = %q, want %q", i, seen[i], want[i])
		}
	}
}

func TestManager_HandshakeTimeoutThenRetry(t *testing.T) {
	var stall atomic.Bool
	stall.Store(true)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		var init protocol.SessionInit
		if err := conn.ReadJSON(&init); err != nil {
			return
		}
		if stall.Load() {
			// Never confirm the session; the client must time out.
			time.Sleep(500 * time.Millisecond)
			return
		}
		_ = conn.WriteJSON(map[string]any{"type": "session_established", "session_id": "sess-retry"})
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	m, err := NewManager(StaticURL(srv.URL), Config{
		Provider:       "test",
		Agent:          "chart-assistant",
		ConnectTimeout: 150 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	defer m.CloseConnection()

	var mu sync.Mutex
	var changes []bool
	m.AddListener("watcher", Listener{OnConnectionChange: func(connected bool) {
		mu.Lock()
		changes = append(changes, connected)
		mu.Unlock()
	}})

	if _, err := m.GetConnection(context.Background()); err == nil {
		t.Fatal("expected handshake timeout error")
	}
	if m.State() != StateDisconnected {
		t.Fatalf("state = %v, want DISCONNECTED", m.State())
	}

	mu.Lock()
	// Registration reports the initial state, then the failed attempt
	// reports disconnection exactly once.
	want := []bool{false, false}
	if len(changes) != len(want) {
		mu.Unlock()
		t.Fatalf("changes = %v, want %v", changes, want)
	}
	mu.Unlock()

	stall.Store(false)
	session, err := m.GetConnection(context.Background())
	if err != nil {
		t.Fatalf("retry GetConnection: %v", err)
	}
	if session.ID() != "sess-retry" {
		t.Fatalf("session id = %q, want sess-retry", session.ID())
	}

	mu.Lock()
	defer mu.Unlock()
	if len(changes) != 3 || !changes[2] {
		t.Fatalf("changes = %v, want trailing true", changes)
	}
}

func TestManager_SendWhenNotOpenIsNoOp(t *testing.T) {
	m := newTestManager(t, "http://127.0.0.1:0")
	if err := m.SendText("hello"); err != nil {
		t.Fatalf("SendText while disconnected: %v", err)
	}
	if err := m.SendAudioChunk([]byte{0x01, 0x02}); err != nil {
		t.Fatalf("SendAudioChunk while disconnected: %v", err)
	}
}

func TestManager_AddListenerAfterConnectSeesConnectedState(t *testing.T) {
	release := make(chan struct{})
	srv := newProviderTestServer(t, nil, func(t *testing.T, conn *websocket.Conn) {
		<-release
	})
	defer srv.Close()
	defer close(release)

	m := newTestManager(t, srv.URL)
	defer m.CloseConnection()
	if _, err := m.GetConnection(context.Background()); err != nil {
		t.Fatalf("GetConnection: %v", err)
	}

	notified := make(chan bool, 1)
	m.AddListener("late", Listener{OnConnectionChange: func(connected bool) {
		notified <- connected
	}})
	select {
	case connected := <-notified:
		if !connected {
			t.Fatal("late listener told disconnected, want connected")
		}
	default:
		t.Fatal("late listener was not told the current state")
	}
}

func TestManager_AutoPong(t *testing.T) {
	pong := make(chan string, 1)
	srv := newProviderTestServer(t, nil, func(t *testing.T, conn *websocket.Conn) {
		err := conn.WriteJSON(map[string]any{
			"type":          "ping",
			"event_id":      "ping-7",
			"respond_by_ms": 1000,
		})
		if err != nil {
			t.Errorf("write ping: %v", err)
			return
		}
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var frame struct {
			Type    string `json:"type"`
			EventID string `json:"event_id"`
		}
		if err := json.Unmarshal(payload, &frame); err != nil {
			t.Errorf("decode pong: %v", err)
			return
		}
		if frame.Type == "pong" {
			pong <- frame.EventID
		}
	})
	defer srv.Close()

	m := newTestManager(t, srv.URL)
	defer m.CloseConnection()
	if _, err := m.GetConnection(context.Background()); err != nil {
		t.Fatalf("GetConnection: %v", err)
	}

	select {
	case id := <-pong:
		if id != "ping-7" {
			t.Fatalf("pong event_id = %q, want ping-7", id)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for pong")
	}
}

func TestManager_CloseConnectionIsIdempotent(t *testing.T) {
	srv := newProviderTestServer(t, nil, func(t *testing.T, conn *websocket.Conn) {
		// Keep reading until the client closes.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer srv.Close()

	m := newTestManager(t, srv.URL)
	if _, err := m.GetConnection(context.Background()); err != nil {
		t.Fatalf("GetConnection: %v", err)
	}

	disconnected := make(chan struct{}, 2)
	m.AddListener("watcher", Listener{OnConnectionChange: func(connected bool) {
		if !connected {
			disconnected <- struct{}{}
		}
	}})

	m.CloseConnection()
	if m.State() != StateDisconnected {
		t.Fatalf("state = %v, want DISCONNECTED", m.State())
	}
	select {
	case <-disconnected:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for disconnection notice")
	}

	m.CloseConnection()
	if m.SessionID() != "" {
		t.Fatalf("session id = %q after close, want empty", m.SessionID())
	}
}

func TestManager_ServerErrorWithCloseTearsDownSession(t *testing.T) {
	srv := newProviderTestServer(t, nil, func(t *testing.T, conn *websocket.Conn) {
		err := conn.WriteJSON(map[string]any{
			"type":      "error",
			"code":      "session_expired",
			"message":   "session expired",
			"retryable": true,
			"close":     true,
		})
		if err != nil {
			t.Errorf("write error frame: %v", err)
			return
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer srv.Close()

	m := newTestManager(t, srv.URL)

	errs := make(chan error, 2)
	down := make(chan struct{}, 2)
	m.AddListener("watcher", Listener{
		OnError: func(err error) { errs <- err },
		OnConnectionChange: func(connected bool) {
			if !connected {
				down <- struct{}{}
			}
		},
	})
	<-down // registration notice

	if _, err := m.GetConnection(context.Background()); err != nil {
		t.Fatalf("GetConnection: %v", err)
	}

	select {
	case err := <-errs:
		var coreErr *core.Error
		if !errors.As(err, &coreErr) || coreErr.Type != core.ErrTransport {
			t.Fatalf("error = %v, want transport error", err)
		}
		if coreErr.Code != "session_expired" {
			t.Fatalf("error code = %q, want session_expired", coreErr.Code)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for error fan-out")
	}
	select {
	case <-down:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for teardown")
	}
	if m.State() != StateDisconnected {
		t.Fatalf("state = %v, want DISCONNECTED", m.State())
	}
}
