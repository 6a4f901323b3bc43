package usecase

import (
	"context"
	"encoding/json"
	"time"

	"council-ai/internal/domain"
)

// publishEvent emits one progress event. A nil bus drops it. The ask id is
// taken from ctx.
func publishEvent(bus domain.EventBus, ctx context.Context, eventType domain.EventType, agentID, text string, payload any) {
	if bus == nil {
		return
	}
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err == nil {
			raw = data
		}
	}
	bus.Publish(ctx, domain.Event{
		Type:      eventType,
		Timestamp: time.Now(),
		AskID:     domain.AskIDFromContext(ctx),
		AgentID:   agentID,
		Text:      text,
		Payload:   raw,
	})
}
