package notifications

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotifier_NilClientIsNoop(t *testing.T) {
	// Notifier with nil Redis should return nil error (fail-open/noop)
	n := NewNotifier(nil)
	err := n.PublishRequestEvent(context.Background(), RequestEventPayload{
		Kind:      EventStatusChanged,
		RequestID: "req-1",
	})
	assert.NoError(t, err)
	assert.NoError(t, n.PublishBroadcast(context.Background(), "payload"))
}

func TestChannelNames(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "requests:principal:maria", PrincipalChannel("maria"))
	assert.Equal(t, "requests:role:facilities_manager", RoleChannel("facilities_manager"))
}

func TestNotifier_PublishRequestEvent_FansOut(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = rdb.Close() }()

	n := NewNotifier(rdb)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var received int32
	payloads := make(chan string, 4)
	require.NoError(t, n.StartPatternSubscriber(ctx, func(_ string, payload string) {
		atomic.AddInt32(&received, 1)
		payloads <- payload
	}))

	require.NoError(t, n.PublishRequestEvent(context.Background(), RequestEventPayload{
		Kind:        EventAssigned,
		RequestID:   "req-7",
		RequestType: "supply-order",
		Principal:   "maria",
		Role:        "facilities_manager",
	}))

	// Shared channel plus principal and role channels.
	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&received) >= 3
	}, time.Second, 10*time.Millisecond)

	var decoded RequestEventPayload
	require.NoError(t, json.Unmarshal([]byte(<-payloads), &decoded))
	assert.Equal(t, EventAssigned, decoded.Kind)
	assert.Equal(t, "req-7", decoded.RequestID)
	assert.False(t, decoded.At.IsZero())
}

func TestNotifier_SubscriberStopsOnCancel(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = rdb.Close() }()

	n := NewNotifier(rdb)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var received int32
	payloads := make(chan string, 2)
	require.NoError(t, n.StartPatternSubscriber(ctx, func(_ string, payload string) {
		atomic.AddInt32(&received, 1)
		payloads <- payload
	}))

	require.NoError(t, n.PublishBroadcast(context.Background(), "before-cancel"))
	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&received) >= 1
	}, time.Second, 10*time.Millisecond)

	cancel()
	time.Sleep(20 * time.Millisecond)

	// Drain the pre-cancel message to avoid false positives.
	select {
	case <-payloads:
	default:
	}

	require.NoError(t, n.PublishBroadcast(context.Background(), "after-cancel"))
	assert.Never(t, func() bool {
		select {
		case payload := <-payloads:
			return payload == "after-cancel"
		default:
			return false
		}
	}, 200*time.Millisecond, 10*time.Millisecond)
}
