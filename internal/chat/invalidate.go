package chat

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"chathistory/internal/redis"
)

const invalidateChannel = "chat:invalidate"

const (
	ScopeHistory = "history"
	ScopeCleared = "cleared"
)

// InvalidateMessage tells peer instances that a client's session changed.
type InvalidateMessage struct {
	ClientID string `json:"client_id"`
	Scope    string `json:"scope"`
	Origin   string `json:"origin"`
}

// Invalidator broadcasts session changes over redis pub/sub.
type Invalidator struct {
	client *redis.Client
	origin string
}

func NewInvalidator(client *redis.Client) *Invalidator {
	if client == nil {
		return nil
	}
	return &Invalidator{client: client, origin: uuid.NewString()}
}

// Publish broadcasts an invalidation for clientID.
func (i *Invalidator) Publish(ctx context.Context, clientID, scope string) {
	if i == nil {
		return
	}
	payload, err := json.Marshal(InvalidateMessage{ClientID: clientID, Scope: scope, Origin: i.origin})
	if err != nil {
		log.Error().Err(err).Msg("chat invalidation marshal failed")
		return
	}
	if err := i.client.Publish(ctx, invalidateChannel, payload); err != nil {
		log.Warn().Err(err).Str("client_id", clientID).Msg("chat publish invalidation failed")
	}
}

// Listen delivers invalidations from other instances to handler until ctx
// is done. Messages published by this instance are skipped.
func (i *Invalidator) Listen(ctx context.Context, handler func(InvalidateMessage)) error {
	pubsub, err := i.client.Subscribe(ctx, invalidateChannel)
	if err != nil {
		return errors.Wrap(err, "subscribe chat invalidation")
	}
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var inv InvalidateMessage
			if err := json.Unmarshal([]byte(msg.Payload), &inv); err != nil {
				log.Warn().Err(err).Msg("chat invalidation decode failed")
				continue
			}
			if inv.Origin == i.origin || inv.ClientID == "" {
				continue
			}
			handler(inv)
		}
	}
}
