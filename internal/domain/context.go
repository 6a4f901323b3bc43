package domain

import "context"

type ctxKey string

const askCtxKey ctxKey = "ask_id"

// ContextWithAskID returns a new context carrying the ask ID (ULID).
func ContextWithAskID(ctx context.Context, askID string) context.Context {
	return context.WithValue(ctx, askCtxKey, askID)
}

// AskIDFromContext extracts the ask ID from the context.
// Returns empty string if not set.
func AskIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(askCtxKey).(string); ok {
		return v
	}
	return ""
}
