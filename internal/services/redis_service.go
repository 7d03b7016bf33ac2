package services

import (
	"context"
	"fmt"
	"time"

	"chat-sync/internal/changefeed"
	"chat-sync/internal/database"
	"chat-sync/pkg/logger"

	"github.com/redis/go-redis/v9"
)

type RedisService struct {
	client *database.RedisClient
	log    *logger.Logger
}

func NewRedisService(client *database.RedisClient, log *logger.Logger) *RedisService {
	return &RedisService{
		client: client,
		log:    log.With("component", "redis"),
	}
}

// =============================================================================
// Presence
// =============================================================================

func userStatusKey(userID string) string { return fmt.Sprintf("user:%s:status", userID) }

func (r *RedisService) SetUserOnline(ctx context.Context, userID string) error {
	pipe := r.client.GetClient().Pipeline()

	pipe.SAdd(ctx, "online_users", userID)
	pipe.HSet(ctx, userStatusKey(userID), map[string]interface{}{
		"status":     "online",
		"last_seen":  time.Now().Unix(),
		"updated_at": time.Now().Unix(),
	})
	pipe.Expire(ctx, userStatusKey(userID), 5*time.Minute)

	if _, err := pipe.Exec(ctx); err != nil {
		r.log.Error("Failed to set user online", "userID", userID, "error", err)
		return err
	}

	r.log.Debug("User set to online", "userID", userID)
	return nil
}

func (r *RedisService) SetUserOffline(ctx context.Context, userID string) error {
	pipe := r.client.GetClient().Pipeline()

	pipe.SRem(ctx, "online_users", userID)
	pipe.HSet(ctx, userStatusKey(userID), map[string]interface{}{
		"status":     "offline",
		"last_seen":  time.Now().Unix(),
		"updated_at": time.Now().Unix(),
	})
	pipe.Expire(ctx, userStatusKey(userID), 24*time.Hour)

	if _, err := pipe.Exec(ctx); err != nil {
		r.log.Error("Failed to set user offline", "userID", userID, "error", err)
		return err
	}

	r.log.Debug("User set to offline", "userID", userID)
	return nil
}

func (r *RedisService) GetOnlineUsers(ctx context.Context) ([]string, error) {
	return r.client.GetClient().SMembers(ctx, "online_users").Result()
}

// =============================================================================
// Change notifications
// =============================================================================

// Publish implements changefeed.Publisher on the "changes:<table>" channels.
func (r *RedisService) Publish(ctx context.Context, table changefeed.Table) error {
	data, err := changefeed.Encode(changefeed.NewEvent(table))
	if err != nil {
		return err
	}

	if err := r.client.GetClient().Publish(ctx, changefeed.Channel(table), data).Err(); err != nil {
		r.log.Error("Failed to publish change", "table", table, "error", err)
		return fmt.Errorf("failed to publish change: %w", err)
	}

	r.log.Debug("Published change", "table", table)
	return nil
}

// SubscribeChanges pattern-subscribes to every table channel.
func (r *RedisService) SubscribeChanges(ctx context.Context) *redis.PubSub {
	pubsub := r.client.GetClient().PSubscribe(ctx, changefeed.ChannelPattern)
	r.log.Debug("Pattern subscribed to channels", "pattern", changefeed.ChannelPattern)
	return pubsub
}

// =============================================================================
// Rate Limiting
// =============================================================================

// CheckRateLimit is a sliding-window limiter over a sorted set.
func (r *RedisService) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	now := time.Now()
	windowStart := now.Add(-window).UnixNano()

	pipe := r.client.GetClient().Pipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", fmt.Sprintf("%d", windowStart))
	count := pipe.ZCard(ctx, key)
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(now.UnixNano()), Member: now.UnixNano()})
	pipe.Expire(ctx, key, window)

	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}

	return count.Val() < int64(limit), nil
}
