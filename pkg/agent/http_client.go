package agent

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/chartvoice/chartvoice/pkg/core"
)

// HTTPConfig configures the gateway client.
type HTTPConfig struct {
	// Endpoint is the full URL of the agent query endpoint.
	Endpoint string
	// APIKey, when set, is sent as a bearer token.
	APIKey string
	// Timeout bounds a single query. Defaults to 30s.
	Timeout time.Duration
	// HTTPClient overrides the default client, mainly for tests.
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// HTTPClient queries an agent gateway over HTTP. The gateway may answer with
// a plain JSON response or stream it as server-sent events; both are handled
// transparently and the caller always receives a complete Response.
type HTTPClient struct {
	endpoint string
	apiKey   string
	httpc    *http.Client
	log      *slog.Logger
}

// NewHTTPClient validates cfg and returns a gateway client.
func NewHTTPClient(cfg HTTPConfig) (*HTTPClient, error) {
	if cfg.Endpoint == "" {
		return nil, core.NewInvalidRequestErrorWithParam("agent endpoint is required", "endpoint")
	}
	httpc := cfg.HTTPClient
	if httpc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpc = &http.Client{Timeout: timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPClient{
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		httpc:    httpc,
		log:      logger.With("component", "agent_http"),
	}, nil
}

// Query posts req to the gateway and decodes the answer.
func (c *HTTPClient) Query(ctx context.Context, req Request) (*Response, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, core.NewInvalidRequestErrorWithParam("query must not be empty", "query")
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, core.NewInvalidRequestError(fmt.Sprintf("encode agent request: %v", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, core.NewInvalidRequestError(fmt.Sprintf("build agent request: %v", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json, text/event-stream")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	c.log.Debug("agent query", "session_id", req.SessionID, "query_length", len(req.Query))
	resp, err := c.httpc.Do(httpReq)
	if err != nil {
		return nil, core.NewTransportError("agent query failed", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, core.NewAPIError(fmt.Sprintf("agent endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet))))
	}

	if strings.HasPrefix(resp.Header.Get("Content-Type"), "text/event-stream") {
		return c.readStream(resp.Body)
	}

	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, core.NewAPIError(fmt.Sprintf("decode agent response: %v", err))
	}
	return &out, nil
}

// streamEvent is one SSE payload from the gateway. "delta" events carry
// incremental text; a "response" event carries the complete final Response.
type streamEvent struct {
	Type          string          `json:"type"`
	Text          string          `json:"text,omitempty"`
	ToolsUsed     []string        `json:"tools_used,omitempty"`
	Data          json.RawMessage `json:"data,omitempty"`
	ChartCommands []string        `json:"chart_commands,omitempty"`
}

func (c *HTTPClient) readStream(body io.Reader) (*Response, error) {
	var text strings.Builder
	out := &Response{}

	events := newEventReader(body)
	for {
		payload, err := events.next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, core.NewTransportError("agent stream interrupted", err)
		}

		var ev streamEvent
		if err := json.Unmarshal(payload, &ev); err != nil {
			c.log.Warn("skipping malformed stream event", "error", err)
			continue
		}
		switch ev.Type {
		case "delta":
			text.WriteString(ev.Text)
		case "response":
			out.ToolsUsed = ev.ToolsUsed
			out.Data = ev.Data
			out.ChartCommands = ev.ChartCommands
			if ev.Text != "" {
				text.Reset()
				text.WriteString(ev.Text)
			}
		default:
			c.log.Debug("ignoring stream event", "type", ev.Type)
		}
	}

	out.Text = text.String()
	return out, nil
}

// eventReader parses a server-sent event stream, yielding one data payload
// per event. Multi-line data fields are joined with newlines; a [DONE]
// sentinel ends the stream.
type eventReader struct {
	scanner *bufio.Scanner
}

func newEventReader(body io.Reader) *eventReader {
	sc := bufio.NewScanner(body)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	return &eventReader{scanner: sc}
}

func (r *eventReader) next() ([]byte, error) {
	var data bytes.Buffer
	for r.scanner.Scan() {
		line := strings.TrimRight(r.scanner.Text(), "\r")
		if line == "" {
			if data.Len() == 0 {
				continue
			}
			return r.finish(data.Bytes())
		}
		if rest, ok := strings.CutPrefix(line, "data:"); ok {
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimSpace(rest))
		}
		// event: and id: fields are not used by the gateway protocol.
	}
	if err := r.scanner.Err(); err != nil {
		return nil, err
	}
	if data.Len() > 0 {
		return r.finish(data.Bytes())
	}
	return nil, io.EOF
}

func (r *eventReader) finish(payload []byte) ([]byte, error) {
	if strings.TrimSpace(string(payload)) == "[DONE]" {
		return nil, io.EOF
	}
	return payload, nil
}
