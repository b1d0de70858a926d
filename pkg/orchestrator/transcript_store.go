package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/chartvoice/chartvoice/pkg/core"
	"github.com/chartvoice/chartvoice/pkg/transcript"
)

// HTTPTranscriptStore posts finalized turns to a transcript collection
// endpoint. It is best-effort by contract; the orchestrator swallows its
// errors after logging them.
type HTTPTranscriptStore struct {
	endpoint string
	apiKey   string
	httpc    *http.Client
}

// NewHTTPTranscriptStore returns a store posting to endpoint. apiKey may be
// empty.
func NewHTTPTranscriptStore(endpoint, apiKey string) (*HTTPTranscriptStore, error) {
	if endpoint == "" {
		return nil, core.NewInvalidRequestErrorWithParam("transcript endpoint is required", "endpoint")
	}
	return &HTTPTranscriptStore{
		endpoint: endpoint,
		apiKey:   apiKey,
		httpc:    &http.Client{Timeout: 5 * time.Second},
	}, nil
}

type transcriptRecord struct {
	SessionID string `json:"session_id"`
	MessageID string `json:"message_id"`
	Role      string `json:"role"`
	Text      string `json:"text"`
	Corrected bool   `json:"corrected,omitempty"`
	StartedAt int64  `json:"started_at,omitempty"`
}

// SaveMessage implements TranscriptStore.
func (s *HTTPTranscriptStore) SaveMessage(ctx context.Context, sessionID string, msg transcript.Message) error {
	record := transcriptRecord{
		SessionID: sessionID,
		MessageID: msg.ID,
		Role:      msg.Role,
		Text:      msg.Text,
		Corrected: msg.Corrected,
	}
	if !msg.StartedAt.IsZero() {
		record.StartedAt = msg.StartedAt.Unix()
	}
	body, err := json.Marshal(record)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.httpc.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 256))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("transcript endpoint returned %d", resp.StatusCode)
	}
	return nil
}
