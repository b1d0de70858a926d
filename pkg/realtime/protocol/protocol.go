// Package protocol defines the wire vocabulary for a realtime voice session.
//
// Frames are JSON objects tagged by a "type" discriminant. The inbound side is
// decoded into one struct per known type; unknown types decode into
// UnknownEvent so a provider adding vocabulary never breaks the read loop.
package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	ProtocolVersion1 = "1"

	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type DecodeError struct {
	Code    string
	Message string
	Param   string
}

func (e *DecodeError) Error() string {
	if e == nil {
		return ""
	}
	if strings.TrimSpace(e.Param) == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Param)
}

func badFrame(message, param string) *DecodeError {
	return &DecodeError{Code: "bad_frame", Message: message, Param: param}
}

// AudioFormat describes the negotiated PCM shape.
type AudioFormat struct {
	Encoding     string `json:"encoding"`
	SampleRateHz int    `json:"sample_rate_hz"`
	Channels     int    `json:"channels"`
}

// SessionInit is the first outbound frame on a fresh transport.
type SessionInit struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	SessionID       string      `json:"session_id,omitempty"`
	Agent           string      `json:"agent,omitempty"`
	Instructions    string      `json:"instructions,omitempty"`
	AudioIn         AudioFormat `json:"audio_in"`
	AudioOut        AudioFormat `json:"audio_out"`
}

// UserAudioChunk carries one captured PCM frame, base64 encoded.
type UserAudioChunk struct {
	Type        string `json:"type"`
	Seq         int64  `json:"seq,omitempty"`
	TimestampMS *int64 `json:"timestamp_ms,omitempty"`
	DataB64     string `json:"data_b64"`
}

// UserTextMessage injects a typed user turn into the conversation.
type UserTextMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ResponseTrigger requests an assistant turn on providers with explicit
// turn-taking.
type ResponseTrigger struct {
	Type string `json:"type"`
}

// Pong answers a server ping.
type Pong struct {
	Type    string `json:"type"`
	EventID string `json:"event_id,omitempty"`
}

// ValidateSessionInit checks the frame before it is sent.
func ValidateSessionInit(msg SessionInit) error {
	if strings.TrimSpace(msg.ProtocolVersion) == "" {
		return badFrame("session_init.protocol_version is required", "protocol_version")
	}
	if strings.TrimSpace(msg.AudioIn.Encoding) == "" {
		return badFrame("session_init.audio_in.encoding is required", "audio_in.encoding")
	}
	if msg.AudioIn.SampleRateHz <= 0 {
		return badFrame("session_init.audio_in.sample_rate_hz must be > 0", "audio_in.sample_rate_hz")
	}
	if msg.AudioIn.Channels <= 0 {
		return badFrame("session_init.audio_in.channels must be > 0", "audio_in.channels")
	}
	if strings.TrimSpace(msg.AudioOut.Encoding) == "" {
		return badFrame("session_init.audio_out.encoding is required", "audio_out.encoding")
	}
	if msg.AudioOut.SampleRateHz <= 0 {
		return badFrame("session_init.audio_out.sample_rate_hz must be > 0", "audio_out.sample_rate_hz")
	}
	if msg.AudioOut.Channels <= 0 {
		return badFrame("session_init.audio_out.channels must be > 0", "audio_out.channels")
	}
	return nil
}

// ServerEvent is an inbound frame decoded into its typed variant.
type ServerEvent interface {
	serverEventType() string
}

// SessionEstablished confirms the handshake and assigns the session id.
type SessionEstablished struct {
	SessionID string      `json:"session_id"`
	AudioIn   AudioFormat `json:"audio_in"`
	AudioOut  AudioFormat `json:"audio_out"`
}

func (e SessionEstablished) serverEventType() string { return "session_established" }

// Ping asks the client to answer within an optional delay.
type Ping struct {
	EventID      string `json:"event_id,omitempty"`
	RespondByMS  int64  `json:"respond_by_ms,omitempty"`
	ServerTimeMS int64  `json:"server_time_ms,omitempty"`
}

func (e Ping) serverEventType() string { return "ping" }

// AudioDelta carries one streamed chunk of assistant speech.
type AudioDelta struct {
	ItemID  string `json:"item_id,omitempty"`
	Seq     int64  `json:"seq,omitempty"`
	Data    []byte `json:"-"`
	DataB64 string `json:"data_b64"`
}

func (e AudioDelta) serverEventType() string { return "audio_delta" }

// TranscriptDelta is one incremental fragment of a user or assistant turn.
type TranscriptDelta struct {
	ItemID      string `json:"item_id"`
	Role        string `json:"role"`
	Text        string `json:"text"`
	IsFinal     bool   `json:"is_final"`
	TimestampMS int64  `json:"timestamp_ms,omitempty"`
}

func (e TranscriptDelta) serverEventType() string { return "transcript_delta" }

// TranscriptCorrection replaces the content of the most recent assistant turn.
type TranscriptCorrection struct {
	ItemID string `json:"item_id,omitempty"`
	Text   string `json:"text"`
}

func (e TranscriptCorrection) serverEventType() string { return "transcript_correction" }

// ToolCallRequest asks the client to run a tool and report the result.
type ToolCallRequest struct {
	CallID string         `json:"call_id"`
	Name   string         `json:"name"`
	Input  map[string]any `json:"input,omitempty"`
}

func (e ToolCallRequest) serverEventType() string { return "tool_call" }

// ToolCallResult reports a server-side tool outcome.
type ToolCallResult struct {
	CallID  string          `json:"call_id"`
	Name    string          `json:"name,omitempty"`
	Output  json.RawMessage `json:"output,omitempty"`
	IsError bool            `json:"is_error,omitempty"`
}

func (e ToolCallResult) serverEventType() string { return "tool_result" }

// ServerError is a provider-reported failure. Close=true means the transport
// is about to drop.
type ServerError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable,omitempty"`
	Close     bool   `json:"close,omitempty"`
}

func (e ServerError) serverEventType() string { return "error" }

// UnknownEvent preserves frames with an unrecognized type. Callers log and
// ignore it.
type UnknownEvent struct {
	Type string
	Raw  json.RawMessage
}

func (e UnknownEvent) serverEventType() string { return e.Type }

// DecodeServerEvent decodes one inbound text frame into its typed variant.
func DecodeServerEvent(data []byte) (ServerEvent, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, badFrame("invalid json frame", "")
	}
	typ := strings.TrimSpace(envelope.Type)
	if typ == "" {
		return nil, badFrame("frame missing type", "type")
	}

	switch typ {
	case "session_established":
		var event SessionEstablished
		if err := json.Unmarshal(data, &event); err != nil {
			return nil, badFrame("invalid session_established frame", "")
		}
		if strings.TrimSpace(event.SessionID) == "" {
			return nil, badFrame("session_established.session_id is required", "session_id")
		}
		return event, nil
	case "ping":
		var event Ping
		if err := json.Unmarshal(data, &event); err != nil {
			return nil, badFrame("invalid ping frame", "")
		}
		return event, nil
	case "audio_delta":
		var event AudioDelta
		if err := json.Unmarshal(data, &event); err != nil {
			return nil, badFrame("invalid audio_delta frame", "")
		}
		if strings.TrimSpace(event.DataB64) == "" {
			return nil, badFrame("audio_delta.data_b64 is required", "data_b64")
		}
		decoded, err := decodeBase64(event.DataB64)
		if err != nil {
			return nil, badFrame("audio_delta.data_b64 is not valid base64", "data_b64")
		}
		event.Data = decoded
		return event, nil
	case "transcript_delta":
		var event TranscriptDelta
		if err := json.Unmarshal(data, &event); err != nil {
			return nil, badFrame("invalid transcript_delta frame", "")
		}
		if strings.TrimSpace(event.ItemID) == "" {
			return nil, badFrame("transcript_delta.item_id is required", "item_id")
		}
		switch event.Role {
		case RoleUser, RoleAssistant:
		default:
			return nil, badFrame("transcript_delta.role must be user or assistant", "role")
		}
		return event, nil
	case "transcript_correction":
		var event TranscriptCorrection
		if err := json.Unmarshal(data, &event); err != nil {
			return nil, badFrame("invalid transcript_correction frame", "")
		}
		return event, nil
	case "tool_call":
		var event ToolCallRequest
		if err := json.Unmarshal(data, &event); err != nil {
			return nil, badFrame("invalid tool_call frame", "")
		}
		if strings.TrimSpace(event.CallID) == "" {
			return nil, badFrame("tool_call.call_id is required", "call_id")
		}
		return event, nil
	case "tool_result":
		var event ToolCallResult
		if err := json.Unmarshal(data, &event); err != nil {
			return nil, badFrame("invalid tool_result frame", "")
		}
		return event, nil
	case "error":
		var event ServerError
		if err := json.Unmarshal(data, &event); err != nil {
			return nil, badFrame("invalid error frame", "")
		}
		return event, nil
	default:
		return UnknownEvent{
			Type: typ,
			Raw:  append(json.RawMessage(nil), data...),
		}, nil
	}
}
