// Package agent provides clients for the trading-assistant query endpoint.
//
// The endpoint accepts a user query plus conversation history and returns
// free-form assistant text, the market-data tools it used, opaque tool data,
// and optionally a list of pre-structured chart command tokens. Callers feed
// the text to the chart command parser and the explicit tokens straight to
// structured parsing.
package agent

import (
	"context"
	"encoding/json"
)

// Role values for conversation history turns.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one prior exchange in the conversation history.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is a single agent query.
type Request struct {
	Query               string `json:"query"`
	ConversationHistory []Turn `json:"conversation_history,omitempty"`
	SessionID           string `json:"session_id,omitempty"`
}

// Response is the agent's answer. Data is opaque tool output and is passed
// through without interpretation.
type Response struct {
	Text          string          `json:"text"`
	ToolsUsed     []string        `json:"tools_used,omitempty"`
	Data          json.RawMessage `json:"data,omitempty"`
	ChartCommands []string        `json:"chart_commands,omitempty"`
}

// Querier answers agent queries. Implementations include the HTTP gateway
// client and the local Gemini and OpenAI backends.
type Querier interface {
	Query(ctx context.Context, req Request) (*Response, error)
}
