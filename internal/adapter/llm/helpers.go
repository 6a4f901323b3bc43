package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"council-ai/internal/domain"
	"council-ai/internal/infra/tracer"
)

// maxResponseBody is the maximum response body size we read from LLM APIs.
const maxResponseBody = 10 * 1024 * 1024 // 10 MB

// doJSONRequest performs a JSON POST request and returns the response body.
// It handles: create request, set headers, execute, read body (with limit),
// and check HTTP status code. Returns a domain error for non-200 responses.
func doJSONRequest(ctx context.Context, client *http.Client, url string, body []byte, headers map[string]string) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}

	httpResp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, mapHTTPError(httpResp.StatusCode, respBody)
	}

	return respBody, nil
}

// logChatCompleted logs the standard debug message after a successful LLM chat.
func logChatCompleted(logger *slog.Logger, providerName string, result *domain.ChatResponse) {
	logger.Debug("llm: chat completed",
		"provider", providerName,
		"model", result.Model,
		"tokens", result.Usage.TotalTokens,
	)
}

// setUsageAttrs adds token usage attributes to a trace span.
func setUsageAttrs(span trace.Span, usage domain.Usage) {
	span.SetAttributes(
		tracer.IntAttr("llm.prompt_tokens", usage.PromptTokens),
		tracer.IntAttr("llm.completion_tokens", usage.CompletionTokens),
	)
}

// mapHTTPError maps an HTTP status code + response body to a domain error.
// The "API error <code>:" text is kept so that the caller's classifier can
// still read the status from a wrapped error.
func mapHTTPError(statusCode int, body []byte) error {
	bodyStr := strings.TrimSpace(string(body))
	if len(bodyStr) > 2000 {
		bodyStr = bodyStr[:2000] + "..."
	}
	detail := fmt.Sprintf("API error %d: %s", statusCode, bodyStr)

	switch {
	case statusCode == http.StatusTooManyRequests: // 429
		return fmt.Errorf("%w: %s", domain.ErrRateLimit, detail)
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden: // 401, 403
		return fmt.Errorf("%w: %s", domain.ErrAuthInvalid, detail)
	case statusCode == http.StatusRequestEntityTooLarge: // 413
		return fmt.Errorf("%w: %s", domain.ErrContextOverflow, detail)
	case statusCode >= 500: // 500, 502, 503, etc.
		return fmt.Errorf("%w: %s", domain.ErrServerError, detail)
	default:
		return fmt.Errorf("%s", detail)
	}
}

// imageMediaType sniffs the media type of a base64 image payload. Unknown
// payloads are reported as PNG, which every vendor accepts.
func imageMediaType(b64 string) string {
	head := b64
	if len(head) > 64 {
		head = head[:64]
	}
	raw, err := base64.StdEncoding.DecodeString(head[:len(head)/4*4])
	if err != nil || len(raw) == 0 {
		return "image/png"
	}
	switch ct := http.DetectContentType(raw); ct {
	case "image/png", "image/jpeg", "image/gif", "image/webp":
		return ct
	}
	return "image/png"
}

// dataURL renders a base64 image as a data: URL.
func dataURL(b64 string) string {
	return "data:" + imageMediaType(b64) + ";base64," + b64
}

// thinkTagRe matches <think> blocks some open models inline in their text.
var thinkTagRe = regexp.MustCompile(`(?s)<think>(.*?)</think>`)

// splitThinking moves inline <think> blocks out of content.
func splitThinking(content string) (text, thinking string) {
	matches := thinkTagRe.FindAllStringSubmatch(content, -1)
	if len(matches) == 0 {
		return content, ""
	}
	parts := make([]string, 0, len(matches))
	for _, m := range matches {
		if s := strings.TrimSpace(m[1]); s != "" {
			parts = append(parts, s)
		}
	}
	text = strings.TrimSpace(thinkTagRe.ReplaceAllString(content, ""))
	return text, strings.Join(parts, "\n\n")
}

// conversation drops leading assistant turns and folds same-role runs, as
// the Anthropic, Gemini and Bedrock APIs require alternating turns that start
// with the user.
func conversation(msgs []domain.Message) (system string, turns []domain.Message) {
	var rest []domain.Message
	var sys []string
	for _, m := range msgs {
		if m.Role == domain.RoleSystem {
			sys = append(sys, m.Content)
			continue
		}
		if len(rest) == 0 && m.Role == domain.RoleAssistant {
			continue
		}
		rest = append(rest, m)
	}
	return strings.Join(sys, "\n\n"), domain.MergeConsecutive(rest)
}
