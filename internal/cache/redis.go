// Package cache publishes budget-updated events for cache-invalidation
// consumers. Topics form a static fanout declared once at startup; one event
// fires per budget per mutation boundary.
package cache

import (
	"context"
	"fmt"
	"log"

	"prodbudget-backend/internal/config"

	"github.com/redis/go-redis/v9"
)

var Client *redis.Client

func Init(cfg *config.Config) {
	Client = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := Client.Ping(context.Background()).Err(); err != nil {
		log.Printf("[WARN] redis unreachable at %s, invalidation events are off: %v", cfg.RedisAddr, err)
	}
}

func channel(budgetID uint) string {
	return fmt.Sprintf("budget.updated.%d", budgetID)
}

// PublishBudgetUpdated emits the per-boundary invalidation event. The engine
// calls this through its updated hook after a boundary commits.
func PublishBudgetUpdated(budgetID uint) {
	if Client == nil {
		return
	}
	if err := Client.Publish(context.Background(), channel(budgetID), "updated").Err(); err != nil {
		log.Printf("[WARN] publish budget.updated.%d: %v", budgetID, err)
	}
}

// SubscribeBudgetUpdated invokes handler once per committed boundary on the
// budget until ctx is cancelled.
func SubscribeBudgetUpdated(ctx context.Context, budgetID uint, handler func()) error {
	if Client == nil {
		return fmt.Errorf("redis client not initialized")
	}
	sub := Client.Subscribe(ctx, channel(budgetID))
	defer sub.Close()
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-ch:
			if !ok {
				return nil
			}
			handler()
		}
	}
}
