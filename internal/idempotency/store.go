package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ayo6706/wallet-ledger/internal/repository"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var (
	ErrNotFound     = errors.New("idempotency key not found")
	ErrHashMismatch = errors.New("idempotency key body mismatch")
	ErrInProgress   = errors.New("idempotency key in progress")
)

// Where a replayed record was read from.
const (
	ServedByCache = "cache"
	ServedByStore = "store"
)

const (
	redisKeyPrefix = "wallet:idempotency"
	pollInterval   = 50 * time.Millisecond
)

// KeyStore is the durable side of the store. repository.Querier satisfies it
// for both the Postgres and the in-memory driver.
type KeyStore interface {
	GetIdempotencyKey(ctx context.Context, key string) (repository.IdempotencyKey, error)
	ReserveIdempotencyKey(ctx context.Context, arg repository.ReserveIdempotencyKeyParams) (repository.IdempotencyKey, error)
	FinalizeIdempotencyKey(ctx context.Context, arg repository.FinalizeIdempotencyKeyParams) (repository.IdempotencyKey, error)
}

// Record is a stored response for one key.
type Record struct {
	Key         string `json:"key"`
	RequestHash string `json:"hash"`
	Status      int    `json:"status"`
	Body        []byte `json:"body"`
	ContentType string `json:"content_type"`
	ServedBy    string `json:"-"`
}

func (r Record) matches(hash string) error {
	if r.RequestHash != hash {
		return ErrHashMismatch
	}
	return nil
}

func fromRow(row repository.IdempotencyKey) Record {
	return Record{
		Key:         row.IdempotencyKey,
		RequestHash: row.RequestHash,
		Status:      int(row.ResponseStatus),
		Body:        row.ResponseBody,
		ContentType: row.ContentType,
		ServedBy:    ServedByStore,
	}
}

// Store keeps finished responses for Idempotency-Key replays. The key table
// is authoritative and also serializes concurrent first attempts through
// Reserve; Redis, when configured, is a read-through cache of finished
// records only.
type Store struct {
	redis redis.Cmdable
	keys  KeyStore
	ttl   time.Duration
}

// NewStore builds a store. redis may be nil.
func NewStore(redis redis.Cmdable, keys KeyStore, ttl time.Duration) *Store {
	return &Store{redis: redis, keys: keys, ttl: ttl}
}

// Lookup returns the finished record for key. A record reserved but not yet
// finalized yields ErrInProgress; a different request body under the same key
// yields ErrHashMismatch.
func (s *Store) Lookup(ctx context.Context, key, requestHash string) (*Record, error) {
	if rec, ok := s.cached(ctx, key); ok {
		if err := rec.matches(requestHash); err != nil {
			return nil, err
		}
		return &rec, nil
	}

	row, err := s.keys.GetIdempotencyKey(ctx, key)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("lookup idempotency key: %w", err)
	}
	rec := fromRow(row)
	if err := rec.matches(requestHash); err != nil {
		return nil, err
	}
	if row.InProgress {
		return nil, ErrInProgress
	}
	s.cache(ctx, rec)
	return &rec, nil
}

// Reserve claims key for the caller. It reports false when another request
// already holds it.
func (s *Store) Reserve(ctx context.Context, key, requestHash, method, path string) (bool, error) {
	_, err := s.keys.ReserveIdempotencyKey(ctx, repository.ReserveIdempotencyKeyParams{
		IdempotencyKey: key,
		RequestHash:    requestHash,
		Method:         method,
		Path:           path,
	})
	switch {
	case err == nil:
		return true, nil
	case repository.IsNotFound(err):
		return false, nil
	default:
		return false, fmt.Errorf("reserve idempotency key: %w", err)
	}
}

// Finalize stores the response of the reserving request.
func (s *Store) Finalize(ctx context.Context, key, requestHash string, status int, body []byte, contentType string) (*Record, error) {
	row, err := s.keys.FinalizeIdempotencyKey(ctx, repository.FinalizeIdempotencyKeyParams{
		ResponseStatus: int32(status),
		ResponseBody:   body,
		ContentType:    contentType,
		IdempotencyKey: key,
		RequestHash:    requestHash,
	})
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("finalize idempotency key: %w", err)
	}
	rec := fromRow(row)
	s.cache(ctx, rec)
	return &rec, nil
}

// WaitForCompletion polls until the reserving request finalizes or ctx ends.
func (s *Store) WaitForCompletion(ctx context.Context, key, requestHash string) (*Record, error) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		rec, err := s.Lookup(ctx, key, requestHash)
		if !errors.Is(err, ErrInProgress) {
			return rec, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *Store) cached(ctx context.Context, key string) (Record, bool) {
	if s.redis == nil {
		return Record{}, false
	}
	val, err := s.redis.Get(ctx, redisKey(key)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			zap.L().Warn("redis idempotency lookup failed", zap.Error(err))
		}
		return Record{}, false
	}
	var rec Record
	if err := json.Unmarshal(val, &rec); err != nil {
		return Record{}, false
	}
	rec.ServedBy = ServedByCache
	return rec, true
}

func (s *Store) cache(ctx context.Context, rec Record) {
	if s.redis == nil {
		return
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		zap.L().Warn("marshal idempotency cache", zap.Error(err))
		return
	}
	if err := s.redis.Set(ctx, redisKey(rec.Key), payload, s.ttl).Err(); err != nil {
		zap.L().Warn("redis idempotency cache set failed", zap.Error(err))
	}
}

// ScopedKey namespaces a client key by caller so keys never collide across
// users.
func ScopedKey(owner, key string) string {
	if owner == "" {
		return key
	}
	return owner + ":" + key
}

func redisKey(key string) string {
	return redisKeyPrefix + ":" + key
}
