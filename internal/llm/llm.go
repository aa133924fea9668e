// Package llm wraps text-generation providers behind a single request/response shape.
package llm

import (
	"context"
	"fmt"
)

// Role is the speaker of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one message of a conversation sent to the model.
type Message struct {
	Role    Role
	Content string
}

// Request is a single completion request. The last message is the one being answered.
type Request struct {
	System      string
	Messages    []Message
	Temperature float64
	MaxTokens   int
	// JSON asks the provider to return a single JSON object.
	JSON bool
}

// Response is a completion result.
type Response struct {
	Content      string
	Model        string
	FinishReason string
	InputTokens  int
	OutputTokens int
}

// Generator produces text from a request.
type Generator interface {
	Generate(ctx context.Context, req Request) (*Response, error)
	Close() error
}

// Provider names accepted by New.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
	ProviderMock   = "mock"
)

// ProviderConfig selects and configures a generation provider.
type ProviderConfig struct {
	Provider string
	Model    string
	APIKey   string
	BaseURL  string
}

// New builds the generator for cfg.Provider.
func New(ctx context.Context, cfg ProviderConfig) (Generator, error) {
	switch cfg.Provider {
	case ProviderOpenAI, "":
		return NewOpenAIGenerator(cfg.APIKey, cfg.BaseURL, cfg.Model), nil
	case ProviderGemini:
		return NewGeminiGenerator(ctx, cfg.APIKey, cfg.Model)
	case ProviderMock:
		return NewScriptedGenerator(offlineAnswer), nil
	default:
		return nil, fmt.Errorf("unknown generation provider %q", cfg.Provider)
	}
}

const offlineAnswer = `{"answer": "Generation is running in offline mode; review the cited passages directly.", "confidence": "low", "drawings_referenced": []}`
