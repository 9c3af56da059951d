package cache

import (
	"context"
	"fmt"
	"time"
)

const (
	ItemQuantityKeyPrefix = "item:%s:quantity"
	RequestKeyPrefix      = "request:%s"
	ActiveRulesKey        = "rules:active"
)

const (
	ItemQuantityTTL = 2 * time.Minute
	RequestTTL      = 5 * time.Minute
	ActiveRulesTTL  = 10 * time.Minute
)

func ItemQuantityKey(itemID string) string {
	return fmt.Sprintf(ItemQuantityKeyPrefix, itemID)
}

func RequestKey(requestID string) string {
	return fmt.Sprintf(RequestKeyPrefix, requestID)
}

func Invalidate(ctx context.Context, key string) {
	if client != nil {
		client.Del(ctx, key)
	}
}

func InvalidateItemQuantity(ctx context.Context, itemID string) {
	Invalidate(ctx, ItemQuantityKey(itemID))
}

func InvalidateRequest(ctx context.Context, requestID string) {
	Invalidate(ctx, RequestKey(requestID))
}

func InvalidateActiveRules(ctx context.Context) {
	Invalidate(ctx, ActiveRulesKey)
}
