package llm

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/aws/smithy-go"
	"go.opentelemetry.io/otel/trace"

	"council-ai/internal/domain"
	"council-ai/internal/infra/config"
	"council-ai/internal/infra/tracer"
)

// bedrockConverseAPI abstracts the Bedrock runtime for testability.
type bedrockConverseAPI interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// BedrockProvider implements domain.LLMProvider via the AWS Bedrock Converse API.
type BedrockProvider struct {
	name           string
	client         bedrockConverseAPI
	logger         *slog.Logger
	thinkingBudget int
}

// NewBedrockProvider creates a Bedrock provider using the default AWS credential chain.
func NewBedrockProvider(ctx context.Context, cfg config.ProviderConfig, logger *slog.Logger) (*BedrockProvider, error) {
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithHTTPClient(NewHTTPClient(cfg)),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	p := newBedrockProviderWithClient(cfg.Name, bedrockruntime.NewFromConfig(awsCfg), logger)
	p.thinkingBudget = cfg.ThinkingBudget
	return p, nil
}

// newBedrockProviderWithClient creates a BedrockProvider with an injected client (for testing).
func newBedrockProviderWithClient(name string, client bedrockConverseAPI, logger *slog.Logger) *BedrockProvider {
	return &BedrockProvider{
		name:   name,
		client: client,
		logger: logger,
	}
}

// Chat implements domain.LLMProvider.
func (p *BedrockProvider) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	ctx, span := tracer.StartSpan(ctx, "llm.chat",
		trace.WithAttributes(
			tracer.StringAttr("llm.provider", p.name),
			tracer.StringAttr("llm.model", req.Model),
		),
	)
	defer span.End()

	if req.ThinkingBudget == 0 {
		req.ThinkingBudget = p.thinkingBudget
	}

	input, err := toBedrockConverseInput(req)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}

	output, err := p.client.Converse(ctx, input)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, mapBedrockError(err)
	}

	result := fromBedrockConverseOutput(output, req.Model)
	setUsageAttrs(span, result.Usage)
	tracer.SetOK(span)
	logChatCompleted(p.logger, p.name, result)

	return result, nil
}

// Name implements domain.LLMProvider.
func (p *BedrockProvider) Name() string { return p.name }

// --- Bedrock request/response conversion ---

func toBedrockConverseInput(req domain.ChatRequest) (*bedrockruntime.ConverseInput, error) {
	system, turns := conversation(req.Messages)
	input := &bedrockruntime.ConverseInput{
		ModelId: aws.String(req.Model),
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}
	if req.ThinkingBudget > 0 && maxTokens <= req.ThinkingBudget {
		maxTokens = req.ThinkingBudget + defaultAnthropicMaxTokens
	}
	input.InferenceConfig = &types.InferenceConfiguration{
		MaxTokens: aws.Int32(int32(maxTokens)),
	}

	if req.ThinkingBudget > 0 {
		input.AdditionalModelRequestFields = document.NewLazyDocument(map[string]any{
			"thinking": map[string]any{"type": "enabled", "budget_tokens": req.ThinkingBudget},
		})
	} else if req.Temperature > 0 {
		input.InferenceConfig.Temperature = aws.Float32(float32(req.Temperature))
	}

	if system != "" {
		input.System = []types.SystemContentBlock{
			&types.SystemContentBlockMemberText{Value: system},
		}
	}

	for _, m := range turns {
		msg, err := toBedrockMessage(m)
		if err != nil {
			return nil, err
		}
		input.Messages = append(input.Messages, msg)
	}

	return input, nil
}

func toBedrockMessage(m domain.Message) (types.Message, error) {
	msg := types.Message{Role: types.ConversationRoleUser}
	if m.Role == domain.RoleAssistant {
		msg.Role = types.ConversationRoleAssistant
	}

	for i, img := range m.Images {
		raw, err := base64.StdEncoding.DecodeString(img)
		if err != nil {
			return types.Message{}, domain.NewDomainError("bedrock", domain.ErrInvalidInput,
				fmt.Sprintf("image %d is not valid base64", i+1))
		}
		msg.Content = append(msg.Content, &types.ContentBlockMemberImage{
			Value: types.ImageBlock{
				Format: bedrockImageFormat(imageMediaType(img)),
				Source: &types.ImageSourceMemberBytes{Value: raw},
			},
		})
	}
	if m.Content != "" || len(msg.Content) == 0 {
		msg.Content = append(msg.Content, &types.ContentBlockMemberText{Value: m.Content})
	}
	return msg, nil
}

func bedrockImageFormat(mediaType string) types.ImageFormat {
	switch mediaType {
	case "image/jpeg":
		return types.ImageFormatJpeg
	case "image/gif":
		return types.ImageFormatGif
	case "image/webp":
		return types.ImageFormatWebp
	default:
		return types.ImageFormatPng
	}
}

func fromBedrockConverseOutput(output *bedrockruntime.ConverseOutput, model string) *domain.ChatResponse {
	now := time.Now()
	result := &domain.ChatResponse{
		Model:     model,
		CreatedAt: now,
	}

	if output.Usage != nil {
		in := int(aws.ToInt32(output.Usage.InputTokens))
		out := int(aws.ToInt32(output.Usage.OutputTokens))
		result.Usage = domain.Usage{
			PromptTokens:     in,
			CompletionTokens: out,
			TotalTokens:      in + out,
		}
	}

	msg := domain.Message{
		Role:      domain.RoleAssistant,
		Timestamp: now,
	}

	if outMsg, ok := output.Output.(*types.ConverseOutputMemberMessage); ok {
		var text, thinking []string
		for _, block := range outMsg.Value.Content {
			switch b := block.(type) {
			case *types.ContentBlockMemberText:
				text = append(text, b.Value)
			case *types.ContentBlockMemberReasoningContent:
				if rt, ok := b.Value.(*types.ReasoningContentBlockMemberReasoningText); ok {
					thinking = append(thinking, aws.ToString(rt.Value.Text))
				}
			}
		}
		msg.Content = strings.Join(text, "")
		msg.Thinking = strings.Join(thinking, "\n\n")
	}

	result.Message = msg
	return result
}

// --- Error mapping ---

func mapBedrockError(err error) error {
	if err == nil {
		return nil
	}

	msg := err.Error()

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		switch {
		case code == "ThrottlingException" || code == "TooManyRequestsException":
			return fmt.Errorf("%w: %s", domain.ErrRateLimit, msg)
		case code == "AccessDeniedException" || code == "UnrecognizedClientException":
			return fmt.Errorf("%w: %s", domain.ErrAuthInvalid, msg)
		case code == "ValidationException" && strings.Contains(msg, "too long"):
			return fmt.Errorf("%w: %s", domain.ErrContextOverflow, msg)
		case code == "ModelNotReadyException" || code == "ServiceUnavailableException" ||
			code == "InternalServerException" || code == "ModelErrorException":
			return fmt.Errorf("%w: %s", domain.ErrServerError, msg)
		}
	}

	return domain.WrapOp("bedrock", err)
}
