package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Tomlord1122/kanban-backend/internal/config"
	"github.com/Tomlord1122/kanban-backend/internal/domain"
)

const (
	keyGeneration = "board:gen:"
	keyBoard      = "board:"
)

// BoardCache caches assembled boards in Redis. Each owner has a generation
// counter; boards are stored under the generation they were built for, so
// bumping the counter makes every older entry unreachable at once.
type BoardCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewBoardCache returns a new BoardCache.
func NewBoardCache(rdb *redis.Client, ttl time.Duration) *BoardCache {
	return &BoardCache{rdb: rdb, ttl: ttl}
}

// NewClient connects to Redis and pings it.
func NewClient(cfg config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

// Generation returns the owner's current generation, 0 if none was recorded.
func (c *BoardCache) Generation(ctx context.Context, ownerID string) (int64, error) {
	gen, err := c.rdb.Get(ctx, keyGeneration+ownerID).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

// Get returns the cached board or nil on a miss.
func (c *BoardCache) Get(ctx context.Context, ownerID string, generation int64) (*domain.Board, error) {
	b, err := c.rdb.Get(ctx, boardKey(ownerID, generation)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var board domain.Board
	if err := json.Unmarshal(b, &board); err != nil {
		return nil, err
	}
	return &board, nil
}

// Set stores the board for the given generation.
func (c *BoardCache) Set(ctx context.Context, ownerID string, generation int64, board *domain.Board) error {
	b, err := json.Marshal(board)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, boardKey(ownerID, generation), b, c.ttl).Err()
}

// Delete removes the board stored for one generation.
func (c *BoardCache) Delete(ctx context.Context, ownerID string, generation int64) error {
	return c.rdb.Del(ctx, boardKey(ownerID, generation)).Err()
}

// Invalidate bumps the owner's generation.
func (c *BoardCache) Invalidate(ctx context.Context, ownerID string) error {
	return c.rdb.Incr(ctx, keyGeneration+ownerID).Err()
}

func boardKey(ownerID string, generation int64) string {
	return keyBoard + ownerID + ":" + strconv.FormatInt(generation, 10)
}
