package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const WebhookTTL = 24 * time.Hour

// MarkWebhookProcessed records a payment/status pair and reports whether it
// was seen for the first time.
func MarkWebhookProcessed(ctx context.Context, rdb *redis.Client, paymentID, status string) (bool, error) {
	key := fmt.Sprintf("webhook:%s:%s", paymentID, status)
	return rdb.SetNX(ctx, key, time.Now().Unix(), WebhookTTL).Result()
}

// ForgetWebhook drops the marker so a failed delivery can be retried.
func ForgetWebhook(ctx context.Context, rdb *redis.Client, paymentID, status string) error {
	key := fmt.Sprintf("webhook:%s:%s", paymentID, status)
	return rdb.Del(ctx, key).Err()
}
