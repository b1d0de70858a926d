package realtime

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/chartvoice/chartvoice/pkg/realtime/protocol"
)

// Session is one live websocket transport to a realtime provider. It is owned
// by the Manager; callers interact with it through the Manager's operations.
type Session struct {
	id       string
	provider string
	conn     *websocket.Conn

	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    atomic.Bool
	done      chan struct{}

	errMu sync.Mutex
	err   error
}

// ID returns the provider-assigned session id.
func (s *Session) ID() string {
	if s == nil {
		return ""
	}
	return s.id
}

// Provider returns the realtime backend this session talks to.
func (s *Session) Provider() string {
	if s == nil {
		return ""
	}
	return s.provider
}

// Done is closed when the read loop exits.
func (s *Session) Done() <-chan struct{} {
	if s == nil {
		return nil
	}
	return s.done
}

// Err returns the terminal session error, if any. Blocks until the read loop
// has exited.
func (s *Session) Err() error {
	if s == nil {
		return nil
	}
	<-s.done
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

func (s *Session) setErr(err error) {
	if err == nil {
		return
	}
	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

func (s *Session) sendJSON(v any) error {
	if s == nil {
		return fmt.Errorf("session must not be nil")
	}
	if s.closed.Load() {
		return fmt.Errorf("session is closed")
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(v)
}

func (s *Session) sendText(text string) error {
	return s.sendJSON(protocol.UserTextMessage{Type: "user_text_message", Text: text})
}

func (s *Session) sendAudioChunk(pcm []byte, seq int64) error {
	return s.sendJSON(protocol.UserAudioChunk{
		Type:    "user_audio_chunk",
		Seq:     seq,
		DataB64: protocol.EncodePCM(pcm),
	})
}

func (s *Session) sendPong(eventID string) error {
	return s.sendJSON(protocol.Pong{Type: "pong", EventID: eventID})
}

func (s *Session) sendResponseTrigger() error {
	return s.sendJSON(protocol.ResponseTrigger{Type: "response_trigger"})
}

func (s *Session) close() {
	if s == nil {
		return
	}
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.writeMu.Lock()
		_ = s.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(2*time.Second))
		s.writeMu.Unlock()
		_ = s.conn.Close()
	})
}
