package agent

import (
	"context"
	"errors"
	"testing"

	"google.golang.org/genai"

	"github.com/chartvoice/chartvoice/pkg/core"
)

func TestGeminiBackend_QueryWithoutKeyFails(t *testing.T) {
	backend := NewGeminiBackend(GeminiConfig{})
	if backend.IsConfigured() {
		t.Error("IsConfigured = true without key")
	}

	_, err := backend.Query(context.Background(), Request{Query: "show me tesla"})
	if err == nil {
		t.Fatal("expected error without API key")
	}
	var coreErr *core.Error
	if !errors.As(err, &coreErr) || coreErr.Type != core.ErrInvalidRequest {
		t.Errorf("error = %v, want invalid request", err)
	}
}

func TestOpenAIBackend_QueryWithoutKeyFails(t *testing.T) {
	backend := NewOpenAIBackend(OpenAIConfig{})
	if backend.IsConfigured() {
		t.Error("IsConfigured = true without key")
	}
	if _, err := backend.Query(context.Background(), Request{Query: "show me tesla"}); err == nil {
		t.Fatal("expected error without API key")
	}
}

func TestGeminiContents_RoleMapping(t *testing.T) {
	contents := geminiContents(Request{
		Query: "and now apple",
		ConversationHistory: []Turn{
			{Role: RoleUser, Content: "show me tesla"},
			{Role: RoleAssistant, Content: "here is TSLA"},
			{Role: "tool", Content: "dropped"},
		},
	})

	if len(contents) != 3 {
		t.Fatalf("len(contents) = %d, want 3", len(contents))
	}
	if contents[0].Role != genai.RoleUser {
		t.Errorf("contents[0].Role = %q", contents[0].Role)
	}
	if contents[1].Role != genai.RoleModel {
		t.Errorf("contents[1].Role = %q", contents[1].Role)
	}
	if contents[2].Role != genai.RoleUser || contents[2].Parts[0].Text != "and now apple" {
		t.Errorf("query turn = %+v", contents[2])
	}
}

func TestOpenAIMessages_IncludesInstructionsAndHistory(t *testing.T) {
	messages := openaiMessages("be brief", Request{
		Query: "and now apple",
		ConversationHistory: []Turn{
			{Role: RoleUser, Content: "show me tesla"},
			{Role: RoleAssistant, Content: "here is TSLA"},
			{Role: "tool", Content: "dropped"},
		},
	})

	// system + two history turns + current query
	if len(messages) != 4 {
		t.Fatalf("len(messages) = %d, want 4", len(messages))
	}
}

func TestBackend_BlankQueryRejected(t *testing.T) {
	gemini := NewGeminiBackend(GeminiConfig{APIKey: "k"})
	if _, err := gemini.Query(context.Background(), Request{Query: " "}); err == nil {
		t.Error("gemini accepted blank query")
	}
	oai := NewOpenAIBackend(OpenAIConfig{APIKey: "k"})
	if _, err := oai.Query(context.Background(), Request{Query: " "}); err == nil {
		t.Error("openai accepted blank query")
	}
}
