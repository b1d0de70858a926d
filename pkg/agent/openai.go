package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/chartvoice/chartvoice/pkg/core"
)

const defaultOpenAIModel = openai.ChatModelGPT4o

// OpenAIBackend answers agent queries with the OpenAI chat API directly.
// The client is created on first use.
type OpenAIBackend struct {
	apiKey       string
	model        openai.ChatModel
	instructions string
	log          *slog.Logger

	mu     sync.Mutex
	client *openai.Client
}

// OpenAIConfig configures the local OpenAI backend.
type OpenAIConfig struct {
	APIKey string
	// Model defaults to gpt-4o.
	Model string
	// Instructions is the system prompt. Defaults to DefaultInstructions.
	Instructions string
	Logger       *slog.Logger
}

// NewOpenAIBackend returns a lazily initialized OpenAI backend.
func NewOpenAIBackend(cfg OpenAIConfig) *OpenAIBackend {
	model := defaultOpenAIModel
	if cfg.Model != "" {
		model = openai.ChatModel(cfg.Model)
	}
	instructions := cfg.Instructions
	if instructions == "" {
		instructions = DefaultInstructions
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &OpenAIBackend{
		apiKey:       cfg.APIKey,
		model:        model,
		instructions: instructions,
		log:          logger.With("component", "agent_openai"),
	}
}

// IsConfigured reports whether an API key is present.
func (b *OpenAIBackend) IsConfigured() bool {
	return b.apiKey != ""
}

func (b *OpenAIBackend) clientLocked() (*openai.Client, error) {
	if b.client != nil {
		return b.client, nil
	}
	if b.apiKey == "" {
		return nil, core.NewInvalidRequestErrorWithParam("openai API key not configured", "api_key")
	}
	client := openai.NewClient(option.WithAPIKey(b.apiKey))
	b.client = &client
	return b.client, nil
}

// Query sends the conversation to OpenAI and returns its text answer.
func (b *OpenAIBackend) Query(ctx context.Context, req Request) (*Response, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, core.NewInvalidRequestErrorWithParam("query must not be empty", "query")
	}

	b.mu.Lock()
	client, err := b.clientLocked()
	b.mu.Unlock()
	if err != nil {
		return nil, err
	}

	params := openai.ChatCompletionNewParams{
		Model:    b.model,
		Messages: openaiMessages(b.instructions, req),
	}

	b.log.Debug("openai query", "model", b.model, "history_turns", len(req.ConversationHistory))
	completion, err := client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, core.NewAPIError(fmt.Sprintf("openai request failed: %v", err))
	}
	if len(completion.Choices) == 0 {
		return nil, core.NewAPIError("openai returned no choices")
	}
	text := completion.Choices[0].Message.Content
	if text == "" {
		return nil, core.NewAPIError("openai returned empty content")
	}
	return &Response{Text: text}, nil
}

// openaiMessages maps the instructions, history and current query onto chat
// completion messages. Unknown roles are dropped.
func openaiMessages(instructions string, req Request) []openai.ChatCompletionMessageParamUnion {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.ConversationHistory)+2)
	if instructions != "" {
		messages = append(messages, openai.SystemMessage(instructions))
	}
	for _, turn := range req.ConversationHistory {
		switch turn.Role {
		case RoleUser:
			messages = append(messages, openai.UserMessage(turn.Content))
		case RoleAssistant:
			messages = append(messages, openai.AssistantMessage(turn.Content))
		}
	}
	messages = append(messages, openai.UserMessage(req.Query))
	return messages
}
