// Package registry implements a Redis-backed directory of live netvid
// streams, adapted from the peer/session cache in the teacher's
// pkg/persistence.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/trylle/netvid/pkg/logging"
)

const streamKeyPrefix = "netvid:stream:"

// StreamInfo describes one advertised stream endpoint.
type StreamInfo struct {
	StreamID string    `json:"stream_id"`
	Endpoint string    `json:"endpoint"`
	Mode     string    `json:"mode"` // e.g. "1920x1080x32"
	LastSeen time.Time `json:"last_seen"`
}

// Config holds Redis connection settings for the registry.
type Config struct {
	Host     string
	Port     int
	Password string
	DB       int
	// TTL is how long a registered stream survives without a refresh.
	TTL time.Duration
}

// Registry is a directory of advertised netvid streams backed by Redis.
type Registry struct {
	client *redis.Client
	ttl    time.Duration
	log    *logging.Logger
}

// New connects to Redis and returns a Registry.
func New(cfg Config, log *logging.Logger) (*Registry, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("connect to registry redis: %w", err)
	}

	ttl := cfg.TTL
	if ttl == 0 {
		ttl = 30 * time.Second
	}

	if log != nil {
		log.Info("registry connected", logging.Fields{"addr": cfg.Host})
	}

	return &Registry{client: client, ttl: ttl, log: log}, nil
}

// Register advertises a stream, refreshing its TTL if already present.
func (r *Registry) Register(ctx context.Context, info StreamInfo) error {
	info.LastSeen = time.Now()

	data, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("marshal stream info: %w", err)
	}

	key := streamKeyPrefix + info.StreamID
	if err := r.client.Set(ctx, key, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("register stream %s: %w", info.StreamID, err)
	}

	return r.client.SAdd(ctx, streamKeyPrefix+"index", info.StreamID).Err()
}

// Lookup retrieves one advertised stream by ID.
func (r *Registry) Lookup(ctx context.Context, streamID string) (*StreamInfo, error) {
	data, err := r.client.Get(ctx, streamKeyPrefix+streamID).Result()
	if err == redis.Nil {
		return nil, fmt.Errorf("stream %s not registered", streamID)
	}
	if err != nil {
		return nil, err
	}

	var info StreamInfo
	if err := json.Unmarshal([]byte(data), &info); err != nil {
		return nil, fmt.Errorf("unmarshal stream info: %w", err)
	}

	return &info, nil
}

// Deregister removes a stream from the directory immediately.
func (r *Registry) Deregister(ctx context.Context, streamID string) error {
	if err := r.client.Del(ctx, streamKeyPrefix+streamID).Err(); err != nil {
		return err
	}
	return r.client.SRem(ctx, streamKeyPrefix+"index", streamID).Err()
}

// List returns every currently-registered stream, pruning index entries
// whose key has since expired.
func (r *Registry) List(ctx context.Context) ([]StreamInfo, error) {
	ids, err := r.client.SMembers(ctx, streamKeyPrefix+"index").Result()
	if err != nil {
		return nil, err
	}

	streams := make([]StreamInfo, 0, len(ids))
	for _, id := range ids {
		info, err := r.Lookup(ctx, id)
		if err != nil {
			r.client.SRem(ctx, streamKeyPrefix+"index", id)
			continue
		}
		streams = append(streams, *info)
	}

	return streams, nil
}

// Health reports whether the Redis connection is usable.
func (r *Registry) Health(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (r *Registry) Close() error {
	if r.log != nil {
		r.log.Info("registry connection closing", nil)
	}
	return r.client.Close()
}
