package messaging

import (
	"context"

	"github.com/docverify/docverify-backend/pkg/logger"
)

// NewDetachedConsumer creates a consumer with no broker behind it.
func NewDetachedConsumer(log *logger.Logger) *Consumer {
	return &Consumer{handlers: make(map[string]MessageHandler), logger: log}
}

// Dispatch exposes dispatch.
func (c *Consumer) Dispatch(ctx context.Context, body []byte) (*Event, error) {
	return c.dispatch(ctx, body)
}
