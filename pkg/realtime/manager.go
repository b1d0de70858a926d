// Package realtime owns the single live websocket session to a realtime
// speech provider and fans provider events out to registered listeners.
package realtime

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/chartvoice/chartvoice/pkg/core"
	"github.com/chartvoice/chartvoice/pkg/realtime/protocol"
)

const defaultConnectTimeout = 10 * time.Second

// State is the transport lifecycle of the managed session.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateClosing
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateClosing:
		return "CLOSING"
	default:
		return "UNKNOWN"
	}
}

// Listener is a callback bundle registered with the Manager. Nil callbacks
// are skipped. Callbacks for one wire event are invoked in listener
// registration order, and events are dispatched in wire receipt order.
type Listener struct {
	OnTranscript       func(protocol.TranscriptDelta)
	OnCorrection       func(protocol.TranscriptCorrection)
	OnAudio            func(protocol.AudioDelta)
	OnToolCall         func(protocol.ToolCallRequest)
	OnConnectionChange func(connected bool)
	OnError            func(err error)
}

// Config configures a Manager.
type Config struct {
	// Provider names the realtime backend (for logs and Session metadata).
	Provider string
	// Agent and Instructions seed the session_init frame.
	Agent        string
	Instructions string
	// APIKey is sent as a bearer token on the dial request when set.
	APIKey string
	// ConnectTimeout bounds the dial plus handshake. Default 10s.
	ConnectTimeout time.Duration
	// SignedURLTTL bounds reuse of a fetched signed URL. Default 5m.
	SignedURLTTL time.Duration
	// AudioIn and AudioOut override the negotiated PCM shapes.
	AudioIn  protocol.AudioFormat
	AudioOut protocol.AudioFormat

	Logger *slog.Logger
}

type connectAttempt struct {
	done    chan struct{}
	session *Session
	err     error
}

// Manager guarantees at most one live session per provider target and
// multiplexes its events to all registered listeners. It is constructed once
// and passed by reference to every consumer; there is no package-level
// instance.
type Manager struct {
	cfg  Config
	urls *urlCache
	log  *slog.Logger

	mu        sync.Mutex
	state     State
	session   *Session
	pending   *connectAttempt
	listeners map[string]Listener
	order     []string

	audioSeq atomic.Int64
}

// NewManager creates a connection manager for one provider target.
func NewManager(source URLSource, cfg Config) (*Manager, error) {
	if source == nil {
		return nil, core.NewInvalidRequestError("URL source must not be nil")
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	if cfg.AudioIn.Encoding == "" {
		cfg.AudioIn = protocol.AudioFormat{Encoding: "pcm_s16le", SampleRateHz: 16000, Channels: 1}
	}
	if cfg.AudioOut.Encoding == "" {
		cfg.AudioOut = protocol.AudioFormat{Encoding: "pcm_s16le", SampleRateHz: 24000, Channels: 1}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		cfg:       cfg,
		urls:      newURLCache(source, cfg.SignedURLTTL),
		log:       logger.With("component", "realtime", "provider", cfg.Provider),
		listeners: make(map[string]Listener),
	}, nil
}

// State returns the current transport state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// SessionID returns the id of the live session, or "" when disconnected.
func (m *Manager) SessionID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session.ID()
}

// AddListener registers a callback bundle under id, replacing any existing
// bundle with the same id. The listener is told the current connection state
// immediately so late registration never misses it.
func (m *Manager) AddListener(id string, l Listener) {
	m.mu.Lock()
	if _, exists := m.listeners[id]; !exists {
		m.order = append(m.order, id)
	}
	m.listeners[id] = l
	connected := m.state == StateConnected
	m.mu.Unlock()

	if l.OnConnectionChange != nil {
		l.OnConnectionChange(connected)
	}
}

// RemoveListener unregisters id. Removing an unknown id is a no-op.
func (m *Manager) RemoveListener(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.listeners[id]; !exists {
		return
	}
	delete(m.listeners, id)
	for i, existing := range m.order {
		if existing == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}

// GetConnection returns the live session, joining an in-flight attempt if one
// is underway, or dialing a fresh transport otherwise. Concurrent callers
// share a single handshake. On failure the in-flight state is cleared so a
// later call starts over.
func (m *Manager) GetConnection(ctx context.Context) (*Session, error) {
	m.mu.Lock()
	if m.state == StateConnected && m.session != nil {
		session := m.session
		m.mu.Unlock()
		return session, nil
	}
	if m.pending != nil {
		attempt := m.pending
		m.mu.Unlock()
		select {
		case <-attempt.done:
			return attempt.session, attempt.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	attempt := &connectAttempt{done: make(chan struct{})}
	m.pending = attempt
	m.state = StateConnecting
	m.mu.Unlock()

	session, err := m.dial(ctx)

	m.mu.Lock()
	m.pending = nil
	if err != nil {
		m.state = StateDisconnected
		m.mu.Unlock()
		m.notifyConnectionChange(false)
		attempt.err = err
		close(attempt.done)
		return nil, err
	}
	m.session = session
	m.state = StateConnected
	m.mu.Unlock()

	go m.readLoop(session)
	m.notifyConnectionChange(true)

	attempt.session = session
	close(attempt.done)
	return session, nil
}

func (m *Manager) dial(ctx context.Context) (*Session, error) {
	endpoint, err := m.urls.get(ctx)
	if err != nil {
		return nil, err
	}
	wsURL, err := websocketEndpoint(endpoint)
	if err != nil {
		return nil, err
	}

	headers := make(http.Header)
	if strings.TrimSpace(m.cfg.APIKey) != "" {
		headers.Set("Authorization", "Bearer "+m.cfg.APIKey)
	}

	dialCtx := ctx
	var cancel context.CancelFunc
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		dialCtx, cancel = context.WithTimeout(ctx, m.cfg.ConnectTimeout)
		defer cancel()
	}

	dialer := websocket.DefaultDialer
	if dialer == nil {
		dialer = &websocket.Dialer{}
	}
	conn, resp, err := dialer.DialContext(dialCtx, wsURL, headers)
	if err != nil {
		m.urls.invalidate()
		if resp != nil {
			return nil, core.NewTransportError(fmt.Sprintf("websocket dial failed (status %d)", resp.StatusCode), err)
		}
		return nil, core.NewTransportError("websocket dial failed", err)
	}

	init := protocol.SessionInit{
		Type:            "session_init",
		ProtocolVersion: protocol.ProtocolVersion1,
		Agent:           m.cfg.Agent,
		Instructions:    m.cfg.Instructions,
		AudioIn:         m.cfg.AudioIn,
		AudioOut:        m.cfg.AudioOut,
	}
	if err := protocol.ValidateSessionInit(init); err != nil {
		_ = conn.Close()
		return nil, err
	}
	if err := conn.WriteJSON(init); err != nil {
		_ = conn.Close()
		m.urls.invalidate()
		return nil, core.NewTransportError("send session_init", err)
	}

	// The handshake is not complete until the provider confirms the session.
	_ = conn.SetReadDeadline(time.Now().Add(m.cfg.ConnectTimeout))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		_ = conn.Close()
		m.urls.invalidate()
		return nil, core.NewTransportError("read session_established", err)
	}
	_ = conn.SetReadDeadline(time.Time{})

	first, err := protocol.DecodeServerEvent(payload)
	if err != nil {
		_ = conn.Close()
		return nil, core.NewTransportError("decode first frame", err)
	}
	switch e := first.(type) {
	case protocol.SessionEstablished:
		session := &Session{
			id:       e.SessionID,
			provider: m.cfg.Provider,
			conn:     conn,
			done:     make(chan struct{}),
		}
		m.log.Info("session established", "session_id", e.SessionID)
		return session, nil
	case protocol.ServerError:
		_ = conn.Close()
		m.urls.invalidate()
		return nil, &core.Error{Type: core.ErrTransport, Message: strings.TrimSpace(e.Message), Code: strings.TrimSpace(e.Code)}
	default:
		_ = conn.Close()
		return nil, core.NewTransportError(fmt.Sprintf("unexpected first frame type %T", first), nil)
	}
}

// SendText forwards a typed user message and requests an assistant turn.
// When the transport is not open the message is dropped with a warning; that
// is not an error condition.
func (m *Manager) SendText(text string) error {
	session := m.openSession()
	if session == nil {
		m.log.Warn("dropping text message, transport is not open")
		return nil
	}
	if err := session.sendText(text); err != nil {
		return core.NewTransportError("send text message", err)
	}
	if err := session.sendResponseTrigger(); err != nil {
		return core.NewTransportError("send response trigger", err)
	}
	return nil
}

// SendAudioChunk forwards one captured PCM frame. Dropped with a warning when
// the transport is not open.
func (m *Manager) SendAudioChunk(pcm []byte) error {
	if len(pcm) == 0 {
		return nil
	}
	session := m.openSession()
	if session == nil {
		m.log.Warn("dropping audio chunk, transport is not open")
		return nil
	}
	if err := session.sendAudioChunk(pcm, m.audioSeq.Add(1)); err != nil {
		return core.NewTransportError("send audio chunk", err)
	}
	return nil
}

func (m *Manager) openSession() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateConnected {
		return nil
	}
	return m.session
}

// CloseConnection closes the live transport if one exists and notifies all
// listeners of the disconnection. Calling it without a live session is a
// no-op.
func (m *Manager) CloseConnection() {
	m.mu.Lock()
	session := m.session
	if session == nil {
		m.mu.Unlock()
		return
	}
	m.state = StateClosing
	m.mu.Unlock()

	session.close()
	<-session.Done()
}

func (m *Manager) readLoop(s *Session) {
	var loopErr error
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				loopErr = err
				s.setErr(err)
			}
			break
		}
		event, err := protocol.DecodeServerEvent(data)
		if err != nil {
			// A single malformed frame is contained to that frame.
			m.log.Warn("skipping malformed frame", "error", err)
			continue
		}
		m.dispatch(s, event)
	}
	close(s.done)
	m.handleDisconnect(s, loopErr)
}

func (m *Manager) dispatch(s *Session, event protocol.ServerEvent) {
	switch e := event.(type) {
	case protocol.Ping:
		if err := s.sendPong(e.EventID); err != nil {
			m.log.Warn("pong failed", "error", err)
		}
	case protocol.AudioDelta:
		for _, l := range m.snapshotListeners() {
			if l.OnAudio != nil {
				l.OnAudio(e)
			}
		}
	case protocol.TranscriptDelta:
		for _, l := range m.snapshotListeners() {
			if l.OnTranscript != nil {
				l.OnTranscript(e)
			}
		}
	case protocol.TranscriptCorrection:
		for _, l := range m.snapshotListeners() {
			if l.OnCorrection != nil {
				l.OnCorrection(e)
			}
		}
	case protocol.ToolCallRequest:
		for _, l := range m.snapshotListeners() {
			if l.OnToolCall != nil {
				l.OnToolCall(e)
			}
		}
	case protocol.ToolCallResult:
		// Server-side tool outcomes are informational only.
		m.log.Debug("tool result", "call_id", e.CallID, "is_error", e.IsError)
	case protocol.ServerError:
		err := &core.Error{Type: core.ErrTransport, Message: strings.TrimSpace(e.Message), Code: strings.TrimSpace(e.Code)}
		m.notifyError(err)
		if e.Close {
			s.close()
		}
	case protocol.SessionEstablished:
		// Already consumed during the handshake; a repeat is ignored.
	case protocol.UnknownEvent:
		m.log.Debug("ignoring unknown event", "type", e.Type)
	}
}

func (m *Manager) handleDisconnect(s *Session, err error) {
	m.mu.Lock()
	active := m.session == s
	if active {
		m.session = nil
		m.state = StateDisconnected
	}
	m.mu.Unlock()
	if !active {
		return
	}
	m.log.Info("session closed", "session_id", s.ID(), "error", err)
	m.notifyConnectionChange(false)
	if err != nil {
		m.notifyError(core.NewTransportError("session closed", err))
	}
}

func (m *Manager) snapshotListeners() []Listener {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Listener, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.listeners[id])
	}
	return out
}

func (m *Manager) notifyConnectionChange(connected bool) {
	for _, l := range m.snapshotListeners() {
		if l.OnConnectionChange != nil {
			l.OnConnectionChange(connected)
		}
	}
}

func (m *Manager) notifyError(err error) {
	for _, l := range m.snapshotListeners() {
		if l.OnError != nil {
			l.OnError(err)
		}
	}
}

func websocketEndpoint(endpoint string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(endpoint))
	if err != nil {
		return "", core.NewInvalidRequestError("invalid endpoint URL")
	}
	switch strings.ToLower(strings.TrimSpace(u.Scheme)) {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
		// already websocket scheme.
	default:
		return "", core.NewInvalidRequestError("endpoint URL must use http(s) or ws(s)")
	}
	return u.String(), nil
}
