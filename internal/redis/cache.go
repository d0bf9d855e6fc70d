package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/quest-league/internal/config"
	"github.com/quest-league/internal/domain"
	"github.com/redis/go-redis/v9"
)

// Cache provides Redis-backed hot-path caches: agent lookups by credential
// and ranked leaderboard snapshots. Postgres stays authoritative; every
// cache miss or Redis failure falls back to the store.
type Cache struct {
	client      *redis.Client
	agentTTL    time.Duration
	snapshotTTL time.Duration
	logger      *slog.Logger
}

// New creates a new Redis cache.
func New(cfg *config.RedisConfig, logger *slog.Logger) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return &Cache{
		client:      client,
		agentTTL:    cfg.AgentTTL,
		snapshotTTL: cfg.SnapshotTTL,
		logger:      logger,
	}, nil
}

// Close closes the Redis connection
func (c *Cache) Close() error {
	return c.client.Close()
}

// Client returns the underlying Redis client
func (c *Cache) Client() *redis.Client {
	return c.client
}

func agentKey(apiKey string) string {
	return fmt.Sprintf("agent:%s:auth", apiKey)
}

func leaderboardKey(seasonID string) string {
	return fmt.Sprintf("leaderboard:%s:top", seasonID)
}

// GetAgent returns the cached agent for a credential, or nil on a miss.
func (c *Cache) GetAgent(ctx context.Context, apiKey string) (*domain.Agent, error) {
	data, err := c.client.Get(ctx, agentKey(apiKey)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("getting cached agent: %w", err)
	}

	var cached cachedAgent
	if err := json.Unmarshal(data, &cached); err != nil {
		return nil, fmt.Errorf("decoding cached agent: %w", err)
	}
	return &domain.Agent{
		Name:          cached.Name,
		MoltbookName:  cached.MoltbookName,
		Description:   cached.Description,
		PayoutAddress: cached.PayoutAddress,
		APIKey:        cached.APIKey,
		CreatedAt:     cached.CreatedAt,
		UpdatedAt:     cached.UpdatedAt,
	}, nil
}

// SetAgent caches an agent under its credential.
func (c *Cache) SetAgent(ctx context.Context, agent *domain.Agent) error {
	// APIKey is json:"-" on the wire type, so marshal an internal shape
	// that keeps it.
	data, err := json.Marshal(cachedAgent{
		Name:          agent.Name,
		MoltbookName:  agent.MoltbookName,
		Description:   agent.Description,
		PayoutAddress: agent.PayoutAddress,
		APIKey:        agent.APIKey,
		CreatedAt:     agent.CreatedAt,
		UpdatedAt:     agent.UpdatedAt,
	})
	if err != nil {
		return fmt.Errorf("encoding agent: %w", err)
	}
	if err := c.client.Set(ctx, agentKey(agent.APIKey), data, c.agentTTL).Err(); err != nil {
		return fmt.Errorf("caching agent: %w", err)
	}
	return nil
}

type cachedAgent struct {
	Name          string    `json:"agent_name"`
	MoltbookName  string    `json:"moltbook_name"`
	Description   string    `json:"description,omitempty"`
	PayoutAddress string    `json:"payout_address,omitempty"`
	APIKey        string    `json:"api_key"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// InvalidateAgent drops the cached agent for a credential. Called after
// profile updates so stale profile data never outlives the TTL.
func (c *Cache) InvalidateAgent(ctx context.Context, apiKey string) error {
	if err := c.client.Del(ctx, agentKey(apiKey)).Err(); err != nil {
		return fmt.Errorf("invalidating cached agent: %w", err)
	}
	return nil
}

// GetLeaderboardSnapshot returns the cached ranked page for a season, or
// nil on a miss.
func (c *Cache) GetLeaderboardSnapshot(ctx context.Context, seasonID string) ([]domain.LeaderboardEntry, error) {
	data, err := c.client.Get(ctx, leaderboardKey(seasonID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("getting leaderboard snapshot: %w", err)
	}

	var entries []domain.LeaderboardEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decoding leaderboard snapshot: %w", err)
	}
	return entries, nil
}

// SetLeaderboardSnapshot caches a ranked page for a season with a short TTL.
func (c *Cache) SetLeaderboardSnapshot(ctx context.Context, seasonID string, entries []domain.LeaderboardEntry) error {
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("encoding leaderboard snapshot: %w", err)
	}
	if err := c.client.Set(ctx, leaderboardKey(seasonID), data, c.snapshotTTL).Err(); err != nil {
		return fmt.Errorf("caching leaderboard snapshot: %w", err)
	}
	return nil
}

// InvalidateLeaderboard drops the cached page for a season. Called by the
// cache maintainer after every recompute.
func (c *Cache) InvalidateLeaderboard(ctx context.Context, seasonID string) error {
	if err := c.client.Del(ctx, leaderboardKey(seasonID)).Err(); err != nil {
		return fmt.Errorf("invalidating leaderboard snapshot: %w", err)
	}
	return nil
}
