package presence

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/campuskit/meeting-signaling/config"
)

// Keys expire a day after the last join so abandoned rooms do not
// accumulate in Redis.
const roomTTL = 24 * time.Hour

// Tracker mirrors live room membership into Redis sets so other
// services (and the meeting API) can read participant counts without
// touching relay memory.
type Tracker struct {
	client *redis.Client
}

// Connect dials Redis and verifies the connection.
func Connect(ctx context.Context, cfg config.RedisConfig) (*Tracker, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return &Tracker{client: client}, nil
}

func (t *Tracker) Joined(ctx context.Context, room, connID string) error {
	key := roomKey(room)
	if err := t.client.SAdd(ctx, key, connID).Err(); err != nil {
		return fmt.Errorf("failed to add %s to %s: %w", connID, key, err)
	}
	return t.client.Expire(ctx, key, roomTTL).Err()
}

func (t *Tracker) Left(ctx context.Context, room, connID string) error {
	return t.client.SRem(ctx, roomKey(room), connID).Err()
}

// Count returns the number of connections currently present in a room.
func (t *Tracker) Count(ctx context.Context, room string) (int, error) {
	n, err := t.client.SCard(ctx, roomKey(room)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count members of %s: %w", room, err)
	}
	return int(n), nil
}

func (t *Tracker) Close() error {
	return t.client.Close()
}

func roomKey(room string) string {
	return "meeting:" + room + ":peers"
}
