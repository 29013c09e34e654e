package mq

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/vitrine-app/apiserver/types"
)

const contentTypeJSON = "application/json"

// AccountEvents publishes and consumes account lifecycle events on one
// channel.
type AccountEvents struct {
	backend Backend
	channel string
}

func NewAccountEvents(backend Backend, channel string) *AccountEvents {
	return &AccountEvents{backend: backend, channel: channel}
}

// Publish encodes event as JSON and sends it with its type as an attribute.
func (a *AccountEvents) Publish(ctx context.Context, event types.AccountEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode account event: %w", err)
	}
	attrs := map[string]string{
		"content-type": contentTypeJSON,
		"event-type":   event.Type,
	}
	if _, err := a.backend.Publish(ctx, a.channel, data, attrs); err != nil {
		return fmt.Errorf("publish %s: %w", event.Type, err)
	}
	return nil
}

// Consume delivers decoded events to fn until ctx is cancelled. Messages that
// do not decode are acknowledged and skipped.
func (a *AccountEvents) Consume(ctx context.Context, fn func(context.Context, types.AccountEvent) error) error {
	return a.backend.Subscribe(ctx, a.channel, func(ctx context.Context, msg Message) error {
		var event types.AccountEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			return nil
		}
		return fn(ctx, event)
	})
}

// Channel returns the channel events travel on.
func (a *AccountEvents) Channel() string {
	return a.channel
}
