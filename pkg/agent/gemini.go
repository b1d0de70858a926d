package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"google.golang.org/genai"

	"github.com/chartvoice/chartvoice/pkg/core"
)

const defaultGeminiModel = "gemini-2.0-flash"

// GeminiBackend answers agent queries with the Gemini API directly, for
// running without a gateway. The genai client is created on first use.
type GeminiBackend struct {
	apiKey       string
	model        string
	instructions string
	log          *slog.Logger

	mu     sync.Mutex
	client *genai.Client
}

// GeminiConfig configures the local Gemini backend.
type GeminiConfig struct {
	APIKey string
	// Model defaults to gemini-2.0-flash.
	Model string
	// Instructions is the system prompt. Defaults to the trading-assistant
	// prompt, which teaches the model the chart command token grammar.
	Instructions string
	Logger       *slog.Logger
}

// NewGeminiBackend returns a lazily initialized Gemini backend.
func NewGeminiBackend(cfg GeminiConfig) *GeminiBackend {
	model := cfg.Model
	if model == "" {
		model = defaultGeminiModel
	}
	instructions := cfg.Instructions
	if instructions == "" {
		instructions = DefaultInstructions
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &GeminiBackend{
		apiKey:       cfg.APIKey,
		model:        model,
		instructions: instructions,
		log:          logger.With("component", "agent_gemini"),
	}
}

// IsConfigured reports whether an API key is present.
func (b *GeminiBackend) IsConfigured() bool {
	return b.apiKey != ""
}

func (b *GeminiBackend) clientLocked(ctx context.Context) (*genai.Client, error) {
	if b.client != nil {
		return b.client, nil
	}
	if b.apiKey == "" {
		return nil, core.NewInvalidRequestErrorWithParam("gemini API key not configured", "api_key")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: b.apiKey})
	if err != nil {
		return nil, core.NewAPIError(fmt.Sprintf("create gemini client: %v", err))
	}
	b.client = client
	return client, nil
}

// Query sends the conversation to Gemini and returns its text answer.
func (b *GeminiBackend) Query(ctx context.Context, req Request) (*Response, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, core.NewInvalidRequestErrorWithParam("query must not be empty", "query")
	}

	b.mu.Lock()
	client, err := b.clientLocked(ctx)
	b.mu.Unlock()
	if err != nil {
		return nil, err
	}

	contents := geminiContents(req)
	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(b.instructions, genai.RoleUser),
	}

	b.log.Debug("gemini query", "model", b.model, "history_turns", len(req.ConversationHistory))
	result, err := client.Models.GenerateContent(ctx, b.model, contents, config)
	if err != nil {
		return nil, core.NewAPIError(fmt.Sprintf("gemini request failed: %v", err))
	}

	text := geminiText(result)
	if text == "" {
		return nil, core.NewAPIError("gemini returned no text content")
	}
	return &Response{Text: text}, nil
}

// geminiContents maps the history plus the current query onto genai contents.
// Gemini names the assistant role "model"; unknown roles are dropped.
func geminiContents(req Request) []*genai.Content {
	contents := make([]*genai.Content, 0, len(req.ConversationHistory)+1)
	for _, turn := range req.ConversationHistory {
		var role genai.Role
		switch turn.Role {
		case RoleUser:
			role = genai.RoleUser
		case RoleAssistant:
			role = genai.RoleModel
		default:
			continue
		}
		contents = append(contents, genai.NewContentFromText(turn.Content, role))
	}
	contents = append(contents, genai.NewContentFromText(req.Query, genai.RoleUser))
	return contents
}

// geminiText concatenates the non-thought text parts of a response.
func geminiText(result *genai.GenerateContentResponse) string {
	var sb strings.Builder
	for _, candidate := range result.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part.Text == "" || part.Thought {
				continue
			}
			sb.WriteString(part.Text)
		}
	}
	return sb.String()
}
