// Package events is an optional notification bus for the dashboard and
// monitor tools: when Redis is configured it publishes game lifecycle
// events so external consumers don't have to poll the database or the
// monitor snapshot file. The core server never depends on it, and a Bus
// with no Redis client configured is a silent no-op.
package events

import (
	"context"
	"encoding/json"
	"log"

	"github.com/redis/go-redis/v9"
)

// Channel names published on.
const (
	ChannelGameStarted   = "comprl:game_started"
	ChannelGameEnded     = "comprl:game_ended"
	ChannelRatingUpdated = "comprl:rating_updated"
)

// Bus publishes lifecycle events to Redis. A nil *redis.Client makes
// every publish a no-op, so callers can always hold a *Bus regardless
// of whether Redis is configured.
type Bus struct {
	client *redis.Client
}

// Connect establishes a connection to Redis.
func Connect(redisURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opt)

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, err
	}

	return client, nil
}

// New wraps a (possibly nil) Redis client as a Bus.
func New(client *redis.Client) *Bus {
	return &Bus{client: client}
}

// GameStarted publishes that a game has begun.
func (b *Bus) GameStarted(gameID string, user1, user2 int) {
	b.publish(ChannelGameStarted, map[string]interface{}{
		"game_id": gameID, "user1": user1, "user2": user2,
	})
}

// GameEnded publishes a finished game's outcome.
func (b *Bus) GameEnded(gameID string, endState int, winnerID *int) {
	b.publish(ChannelGameEnded, map[string]interface{}{
		"game_id": gameID, "end_state": endState, "winner_id": winnerID,
	})
}

// RatingUpdated publishes a user's new rating.
func (b *Bus) RatingUpdated(userID int, mu, sigma float64) {
	b.publish(ChannelRatingUpdated, map[string]interface{}{
		"user_id": userID, "mu": mu, "sigma": sigma,
	})
}

func (b *Bus) publish(channel string, payload interface{}) {
	if b == nil || b.client == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("[events] marshal payload for %s: %v", channel, err)
		return
	}
	if err := b.client.Publish(context.Background(), channel, data).Err(); err != nil {
		log.Printf("[events] publish to %s failed: %v", channel, err)
	}
}
