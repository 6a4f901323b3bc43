package llm

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/aws/smithy-go"

	"council-ai/internal/domain"
)

// --- Mock Bedrock client ---

type mockBedrockClient struct {
	converseFunc func(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

func (m *mockBedrockClient) Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
	if m.converseFunc != nil {
		return m.converseFunc(ctx, params, optFns...)
	}
	return nil, fmt.Errorf("not implemented")
}

type mockAPIError struct {
	code    string
	message string
}

func (e *mockAPIError) Error() string                 { return e.message }
func (e *mockAPIError) ErrorCode() string             { return e.code }
func (e *mockAPIError) ErrorMessage() string          { return e.message }
func (e *mockAPIError) ErrorFault() smithy.ErrorFault { return smithy.FaultServer }

// --- Tests ---

func TestBedrockChat(t *testing.T) {
	var receivedInput *bedrockruntime.ConverseInput

	mock := &mockBedrockClient{
		converseFunc: func(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
			receivedInput = params
			return &bedrockruntime.ConverseOutput{
				Output: &types.ConverseOutputMemberMessage{
					Value: types.Message{
						Role: types.ConversationRoleAssistant,
						Content: []types.ContentBlock{
							&types.ContentBlockMemberReasoningContent{
								Value: &types.ReasoningContentBlockMemberReasoningText{
									Value: types.ReasoningTextBlock{Text: aws.String("consider the regions")},
								},
							},
							&types.ContentBlockMemberText{Value: "Hello from Bedrock!"},
						},
					},
				},
				Usage: &types.TokenUsage{
					InputTokens:  aws.Int32(10),
					OutputTokens: aws.Int32(5),
				},
			}, nil
		},
	}

	p := newBedrockProviderWithClient("bedrock", mock, newTestLogger())
	resp, err := p.Chat(context.Background(), domain.ChatRequest{
		Model: "anthropic.claude-sonnet-4",
		Messages: []domain.Message{
			{Role: domain.RoleSystem, Content: "You are helpful."},
			{Role: domain.RoleUser, Content: "Hello"},
		},
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}

	if resp.Message.Content != "Hello from Bedrock!" {
		t.Errorf("content = %q", resp.Message.Content)
	}
	if resp.Message.Thinking != "consider the regions" {
		t.Errorf("thinking = %q", resp.Message.Thinking)
	}
	if resp.Usage.TotalTokens != 15 {
		t.Errorf("total tokens = %d", resp.Usage.TotalTokens)
	}
	if resp.Model != "anthropic.claude-sonnet-4" {
		t.Errorf("model = %q", resp.Model)
	}

	if aws.ToString(receivedInput.ModelId) != "anthropic.claude-sonnet-4" {
		t.Errorf("model id = %q", aws.ToString(receivedInput.ModelId))
	}
	if len(receivedInput.System) != 1 {
		t.Fatalf("expected 1 system block, got %d", len(receivedInput.System))
	}
	if sys, ok := receivedInput.System[0].(*types.SystemContentBlockMemberText); !ok || sys.Value != "You are helpful." {
		t.Errorf("system = %#v", receivedInput.System[0])
	}
	if len(receivedInput.Messages) != 1 {
		t.Errorf("expected 1 message, got %d", len(receivedInput.Messages))
	}
	if got := aws.ToInt32(receivedInput.InferenceConfig.MaxTokens); got != defaultAnthropicMaxTokens {
		t.Errorf("max tokens = %d", got)
	}
}

func TestBedrockRequestWithImage(t *testing.T) {
	input, err := toBedrockConverseInput(domain.ChatRequest{
		Model: "m",
		Messages: []domain.Message{
			{Role: domain.RoleUser, Content: "what is this?", Images: []string{pngImage}},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	content := input.Messages[0].Content
	if len(content) != 2 {
		t.Fatalf("expected image + text, got %d blocks", len(content))
	}
	img, ok := content[0].(*types.ContentBlockMemberImage)
	if !ok {
		t.Fatalf("first block is %T", content[0])
	}
	if img.Value.Format != types.ImageFormatPng {
		t.Errorf("format = %q", img.Value.Format)
	}
	src, ok := img.Value.Source.(*types.ImageSourceMemberBytes)
	if !ok || len(src.Value) == 0 {
		t.Errorf("source = %#v", img.Value.Source)
	}
}

func TestBedrockRequestRejectsBadImage(t *testing.T) {
	_, err := toBedrockConverseInput(domain.ChatRequest{
		Messages: []domain.Message{{Role: domain.RoleUser, Images: []string{"%%%"}}},
	})
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestBedrockRequestThinking(t *testing.T) {
	input, err := toBedrockConverseInput(domain.ChatRequest{
		Model:          "m",
		MaxTokens:      1000,
		Temperature:    0.5,
		ThinkingBudget: 4000,
		Messages:       []domain.Message{{Role: domain.RoleUser, Content: "q"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if input.AdditionalModelRequestFields == nil {
		t.Error("expected thinking fields")
	}
	if input.InferenceConfig.Temperature != nil {
		t.Error("temperature must be unset with thinking")
	}
	if got := aws.ToInt32(input.InferenceConfig.MaxTokens); got <= 4000 {
		t.Errorf("max tokens %d must exceed the budget", got)
	}
}

func TestBedrockErrorMapping(t *testing.T) {
	tests := []struct {
		code    string
		message string
		want    error
	}{
		{"ThrottlingException", "slow down", domain.ErrRateLimit},
		{"AccessDeniedException", "denied", domain.ErrAuthInvalid},
		{"ValidationException", "input is too long", domain.ErrContextOverflow},
		{"ServiceUnavailableException", "unavailable", domain.ErrServerError},
		{"ModelNotReadyException", "loading", domain.ErrServerError},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			mock := &mockBedrockClient{
				converseFunc: func(context.Context, *bedrockruntime.ConverseInput, ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
					return nil, &mockAPIError{code: tt.code, message: tt.message}
				},
			}
			p := newBedrockProviderWithClient("bedrock", mock, newTestLogger())
			_, err := p.Chat(context.Background(), domain.ChatRequest{Model: "m"})
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestBedrockErrorMappingUnknown(t *testing.T) {
	err := mapBedrockError(errors.New("network down"))
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.Is(err, domain.ErrServerError) || errors.Is(err, domain.ErrRateLimit) {
		t.Errorf("unexpected sentinel in %v", err)
	}
	if mapBedrockError(nil) != nil {
		t.Error("nil should map to nil")
	}
}

func TestBedrockImageFormat(t *testing.T) {
	if bedrockImageFormat("image/jpeg") != types.ImageFormatJpeg {
		t.Error("jpeg")
	}
	if bedrockImageFormat("image/webp") != types.ImageFormatWebp {
		t.Error("webp")
	}
	if bedrockImageFormat("application/octet-stream") != types.ImageFormatPng {
		t.Error("fallback")
	}
}
