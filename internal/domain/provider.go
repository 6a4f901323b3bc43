package domain

import "context"

// LLMProvider is the interface for any LLM backend.
type LLMProvider interface {
	// Chat sends a request and returns a complete response.
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
	// Name returns the provider's identifier (e.g., "openai", "groq").
	Name() string
}

// ProviderResolver looks up the LLMProvider serving a provider identifier.
type ProviderResolver interface {
	Get(name string) (LLMProvider, error)
}

// Prompt is the new user turn of a send. Images are base64 payloads.
type Prompt struct {
	Text   string
	Images []string
}

// TextPrompt is a Prompt without images.
func TextPrompt(text string) Prompt { return Prompt{Text: text} }

// Sender is the core's single view of the model vendors. Send never returns
// a Go error: ordinary failures are reported in ProviderResponse.Error.
// Cancellation of ctx is reported the same way and the caller is expected
// to check ctx itself.
type Sender interface {
	Send(ctx context.Context, agent Agent, prompt Prompt, history []Message, systemPrompt string) ProviderResponse
}
