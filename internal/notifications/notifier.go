// Package notifications publishes request lifecycle events to Redis channels
// so assignment queues and dashboards can react without polling.
package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"runtime/debug"
	"time"

	"github.com/redis/go-redis/v9"
)

// Event kinds published on the request channels.
const (
	EventAssigned      = "assigned"
	EventStatusChanged = "status_changed"
	EventEscalated     = "escalated"
	EventLowStock      = "low_stock"
)

// RequestEventPayload is the wire shape of a lifecycle notification.
type RequestEventPayload struct {
	Kind        string    `json:"kind"`
	RequestID   string    `json:"request_id,omitempty"`
	ItemID      string    `json:"item_id,omitempty"`
	RequestType string    `json:"request_type"`
	FromStatus  string    `json:"from_status,omitempty"`
	ToStatus    string    `json:"to_status,omitempty"`
	Actor       string    `json:"actor,omitempty"`
	Role        string    `json:"role,omitempty"`
	Principal   string    `json:"principal,omitempty"`
	At          time.Time `json:"at"`
}

// Notifier provides helpers to publish lifecycle events into Redis channels
type Notifier struct {
	rdb *redis.Client
}

// NewNotifier creates a new Notifier instance using the provided Redis client.
func NewNotifier(rdb *redis.Client) *Notifier {
	return &Notifier{rdb: rdb}
}

// PublishRequestEvent sends a lifecycle event to the shared requests channel
// and, when the event carries an assignee, to that principal's own channel.
func (n *Notifier) PublishRequestEvent(ctx context.Context, payload RequestEventPayload) error {
	if n.rdb == nil {
		return nil
	}
	if payload.At.IsZero() {
		payload.At = time.Now().UTC()
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	if err := n.rdb.Publish(ctx, "requests:events", raw).Err(); err != nil {
		return err
	}
	if payload.Principal != "" {
		if err := n.rdb.Publish(ctx, PrincipalChannel(payload.Principal), raw).Err(); err != nil {
			return err
		}
	}
	if payload.Role != "" {
		if err := n.rdb.Publish(ctx, RoleChannel(payload.Role), raw).Err(); err != nil {
			return err
		}
	}
	return nil
}

// PublishBroadcast sends a raw payload to every subscriber of the shared channel.
func (n *Notifier) PublishBroadcast(ctx context.Context, payload string) error {
	if n.rdb == nil {
		return nil
	}
	return n.rdb.Publish(ctx, "requests:events", payload).Err()
}

// StartPatternSubscriber subscribes to the request event channels and calls
// onMessage for each incoming message. onMessage receives channel and payload.
func (n *Notifier) StartPatternSubscriber(
	ctx context.Context, onMessage func(channel string, payload string),
) error {
	if n.rdb == nil {
		return nil
	}
	sub := n.rdb.PSubscribe(ctx, "requests:events", "requests:principal:*", "requests:role:*")
	ch := sub.Channel()

	go func() {
		defer func() { _ = sub.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				func() {
					defer func() {
						if r := recover(); r != nil {
							log.Printf("PANIC in PatternSubscriber: %v\n%s", r, debug.Stack())
						}
					}()
					onMessage(msg.Channel, msg.Payload)
				}()
			}
		}
	}()

	return nil
}

// PrincipalChannel derives the Redis channel name for an assignee.
func PrincipalChannel(principal string) string {
	return "requests:principal:" + principal
}

// RoleChannel derives the Redis channel name for a role queue.
func RoleChannel(role string) string {
	return "requests:role:" + role
}
