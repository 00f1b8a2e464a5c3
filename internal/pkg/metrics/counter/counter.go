package counter

import (
	"context"
	"strconv"
	"strings"
	"time"

	"fmt"

	"github.com/ManuelReschke/CreditFox/app/repository"
	"github.com/ManuelReschke/CreditFox/internal/pkg/cache"
)

const (
	creditsGrantedKey    = "credits:counters:granted"
	creditsConsumedKey   = "credits:counters:consumed"
	creditsExpiredKey    = "credits:counters:expired"
	webhooksProcessedKey = "webhooks:counters:processed"
	webhooksSkippedKey   = "webhooks:counters:skipped"
	webhooksFailedKey    = "webhooks:counters:failed"
)

// statDateField returns today's hash field. One field per day keeps the
// hashes tiny and maps 1:1 onto the daily stats rows.
func statDateField() string {
	return time.Now().UTC().Format("2006-01-02")
}

// AddCreditsGranted increments the pending granted-credits counter in Redis
func AddCreditsGranted(amount int64) error {
	ctx := context.Background()
	return cache.GetClient().HIncrBy(ctx, creditsGrantedKey, statDateField(), amount).Err()
}

// AddCreditsConsumed increments the pending consumed-credits counter in Redis
func AddCreditsConsumed(amount int64) error {
	ctx := context.Background()
	return cache.GetClient().HIncrBy(ctx, creditsConsumedKey, statDateField(), amount).Err()
}

// AddCreditsExpired increments the pending expired-credits counter in Redis
func AddCreditsExpired(amount int64) error {
	ctx := context.Background()
	return cache.GetClient().HIncrBy(ctx, creditsExpiredKey, statDateField(), amount).Err()
}

// AddWebhookProcessed increments the pending processed-webhook counter
func AddWebhookProcessed() error {
	ctx := context.Background()
	return cache.GetClient().HIncrBy(ctx, webhooksProcessedKey, statDateField(), 1).Err()
}

// AddWebhookSkipped increments the pending skipped-webhook counter
func AddWebhookSkipped() error {
	ctx := context.Background()
	return cache.GetClient().HIncrBy(ctx, webhooksSkippedKey, statDateField(), 1).Err()
}

// AddWebhookFailed increments the pending failed-webhook counter
func AddWebhookFailed() error {
	ctx := context.Background()
	return cache.GetClient().HIncrBy(ctx, webhooksFailedKey, statDateField(), 1).Err()
}

// FlushAll flushes all pending counters to the credit_daily_stats table
func FlushAll() error {
	stats := repository.GetGlobalRepositories().Stats
	flushes := []struct {
		redisKey string
		column   string
	}{
		{creditsGrantedKey, "credits_granted"},
		{creditsConsumedKey, "credits_consumed"},
		{creditsExpiredKey, "credits_expired"},
		{webhooksProcessedKey, "webhooks_processed"},
		{webhooksSkippedKey, "webhooks_skipped"},
		{webhooksFailedKey, "webhooks_failed"},
	}
	for _, f := range flushes {
		if err := flushHashToStats(f.redisKey, f.column, stats); err != nil {
			return err
		}
	}
	return nil
}

// flushHashToStats drains a Redis hash atomically and applies batched increments
// to the daily stats table. Uses RENAME to a temporary key for atomic drain
// without losing in-flight increments.
func flushHashToStats(redisKey, column string, stats repository.StatsRepository) error {
	ctx := context.Background()
	rdb := cache.GetClient()

	// Atomically move the hash to a temp key for draining
	tmpKey := fmt.Sprintf("%s:tmp:%d", redisKey, time.Now().UnixNano())
	if err := rdb.Do(ctx, "RENAME", redisKey, tmpKey).Err(); err != nil {
		// If key does not exist, nothing to flush
		if strings.Contains(strings.ToLower(err.Error()), "no such key") {
			return nil
		}
		// Some Redis libs return redis.Nil; treat as empty
		if err.Error() == "redis: nil" {
			return nil
		}
		return err
	}

	// Ensure cleanup of tmpKey even if later steps fail
	defer rdb.Del(ctx, tmpKey)

	data, err := rdb.HGetAll(ctx, tmpKey).Result()
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}

	for field, value := range data {
		day, perr := time.Parse("2006-01-02", field)
		if perr != nil {
			continue
		}
		inc, ierr := strconv.ParseInt(value, 10, 64)
		if ierr != nil || inc == 0 {
			continue
		}
		if err := stats.IncrementDaily(day, column, inc); err != nil {
			return err
		}
	}
	return nil
}
