package domain

import "time"

// Role constants for message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single entry of the conversation history. Images carry
// base64-encoded payloads; the media type is sniffed by the adapters.
type Message struct {
	ID        string    `json:"id,omitempty"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Images    []string  `json:"images,omitempty"`
	AgentID   string    `json:"agent_id,omitempty"`
	Thinking  string    `json:"thinking,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ChatRequest is sent to an LLM provider.
type ChatRequest struct {
	Model          string    `json:"model"`
	Messages       []Message `json:"messages"`
	MaxTokens      int       `json:"max_tokens,omitempty"`
	Temperature    float64   `json:"temperature,omitempty"`
	ThinkingBudget int       `json:"thinking_budget,omitempty"`
}

// ChatResponse is returned from an LLM provider.
type ChatResponse struct {
	ID        string    `json:"id"`
	Model     string    `json:"model"`
	Message   Message   `json:"message"`
	Usage     Usage     `json:"usage"`
	CreatedAt time.Time `json:"created_at"`
}

// Usage tracks token consumption.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ProviderResponse is the outcome of one send to one agent. Send never
// returns a Go error; failures land in Error.
type ProviderResponse struct {
	AgentID   string `json:"agent_id"`
	AgentName string `json:"agent_name,omitempty"`
	Model     string `json:"model"`
	Text      string `json:"text"`
	Reasoning string `json:"reasoning,omitempty"`
	Error     string `json:"error,omitempty"`
	Usage     Usage  `json:"usage"`
}

// Failed reports whether the call produced an error instead of an answer.
func (r ProviderResponse) Failed() bool {
	return r.Error != ""
}

// MergeConsecutive folds adjacent messages with the same role into one,
// joining their text with a blank line and concatenating images. Some
// vendors reject two user turns in a row.
func MergeConsecutive(msgs []Message) []Message {
	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		if n := len(out); n > 0 && out[n-1].Role == m.Role && m.Role != RoleSystem {
			prev := &out[n-1]
			switch {
			case prev.Content == "":
				prev.Content = m.Content
			case m.Content != "":
				prev.Content += "\n\n" + m.Content
			}
			if len(m.Images) > 0 {
				prev.Images = append(append([]string(nil), prev.Images...), m.Images...)
			}
			continue
		}
		out = append(out, m)
	}
	return out
}
