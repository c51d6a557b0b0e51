package embedder

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "modality:emb:"

// RedisConfig configures the shared embedding cache
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// RedisCache shares embeddings between router processes.
// Values are the provider/model header followed by little-endian float32s.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedisCache connects to Redis and verifies the connection with a ping
func NewRedisCache(ctx context.Context, cfg RedisConfig, logger *slog.Logger) (*RedisCache, error) {
	if logger == nil {
		logger = slog.Default()
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	return &RedisCache{client: client, ttl: cfg.TTL, logger: logger}, nil
}

func (r *RedisCache) Get(ctx context.Context, hash string) (*Embedding, bool) {
	data, err := r.client.Get(ctx, redisKeyPrefix+hash).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.logger.Debug("redis cache read failed", "error", err)
		}
		return nil, false
	}
	emb, err := decodeCachedEmbedding(data)
	if err != nil {
		r.logger.Debug("redis cache entry corrupt", "hash", hash, "error", err)
		return nil, false
	}
	emb.Hash = hash
	return emb, true
}

func (r *RedisCache) Set(ctx context.Context, hash string, emb *Embedding) {
	if emb == nil || emb.Degraded {
		return
	}
	if err := r.client.Set(ctx, redisKeyPrefix+hash, encodeCachedEmbedding(emb), r.ttl).Err(); err != nil {
		r.logger.Debug("redis cache write failed", "error", err)
	}
}

// Close closes the Redis client
func (r *RedisCache) Close() error {
	return r.client.Close()
}

// Layout: u16 len(provider) | provider | u16 len(model) | model | float32...
func encodeCachedEmbedding(emb *Embedding) []byte {
	buf := make([]byte, 0, 4+len(emb.Provider)+len(emb.Model)+4*len(emb.Vector))
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(emb.Provider)))
	buf = append(buf, emb.Provider...)
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(emb.Model)))
	buf = append(buf, emb.Model...)
	for _, v := range emb.Vector {
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(v))
	}
	return buf
}

func decodeCachedEmbedding(data []byte) (*Embedding, error) {
	readString := func() (string, error) {
		if len(data) < 2 {
			return "", errors.New("short header")
		}
		n := int(binary.LittleEndian.Uint16(data))
		if len(data) < 2+n {
			return "", errors.New("short string")
		}
		s := string(data[2 : 2+n])
		data = data[2+n:]
		return s, nil
	}
	provider, err := readString()
	if err != nil {
		return nil, err
	}
	model, err := readString()
	if err != nil {
		return nil, err
	}
	if len(data)%4 != 0 {
		return nil, errors.New("vector length not a multiple of 4")
	}
	vector := make([]float32, len(data)/4)
	for i := range vector {
		vector[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return &Embedding{
		Vector:    vector,
		Dimension: len(vector),
		Provider:  provider,
		Model:     model,
	}, nil
}
