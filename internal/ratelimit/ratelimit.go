// Copyright (c) 2026 Lettervault Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package ratelimit gates the forwarded-import entry point with a per-user
// hourly counter in an eventually-consistent cache. The cache contract is
// plain get/put with TTL — no compare-and-swap, no atomic increment — so the
// limit is enforced softly: the check threshold sits a buffer below the hard
// limit to absorb read-after-write staleness, trading a slightly lower
// effective ceiling for a much lower chance of overshoot.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// DefaultHardLimit is the nominal imports-per-window ceiling.
	DefaultHardLimit = 50
	// DefaultSoftBuffer is subtracted from the hard limit before the
	// check, absorbing counter staleness.
	DefaultSoftBuffer = 5
	// DefaultWindow is the counting window; counter keys expire with it.
	DefaultWindow = time.Hour

	keyPrefix = "import:rate:"
)

// Cache is the minimal key-value surface the limiter needs.
type Cache interface {
	// Get returns the value for key and whether it existed.
	Get(ctx context.Context, key string) (string, bool, error)
	// Put stores value under key with the given TTL.
	Put(ctx context.Context, key, value string, ttl time.Duration) error
}

// RedisCache implements Cache on go-redis.
type RedisCache struct {
	rdb *redis.Client
}

// NewRedisCache wraps a Redis client as a limiter cache.
func NewRedisCache(rdb *redis.Client) *RedisCache {
	return &RedisCache{rdb: rdb}
}

func (c *RedisCache) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := c.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("rate cache GET: %w", err)
	}
	return val, true, nil
}

func (c *RedisCache) Put(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := c.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("rate cache SET: %w", err)
	}
	return nil
}

// Limiter is the hourly per-user import gate.
type Limiter struct {
	cache      Cache
	hardLimit  int
	softBuffer int
	window     time.Duration
	now        func() time.Time
}

// Option customizes a Limiter.
type Option func(*Limiter)

// WithLimits overrides the hard limit and soft buffer.
func WithLimits(hardLimit, softBuffer int) Option {
	return func(l *Limiter) {
		l.hardLimit = hardLimit
		l.softBuffer = softBuffer
	}
}

// WithWindow overrides the counting window.
func WithWindow(window time.Duration) Option {
	return func(l *Limiter) { l.window = window }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// NewLimiter creates an import rate limiter over the given cache.
func NewLimiter(cache Cache, opts ...Option) *Limiter {
	l := &Limiter{
		cache:      cache,
		hardLimit:  DefaultHardLimit,
		softBuffer: DefaultSoftBuffer,
		window:     DefaultWindow,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Allow reports whether the user may import right now. Limited means the
// counter has reached hardLimit - softBuffer for the current window.
// A cache read failure fails open: email import must not stop because the
// counter store hiccuped.
func (l *Limiter) Allow(ctx context.Context, userID string) (bool, error) {
	count, err := l.currentCount(ctx, userID)
	if err != nil {
		slog.Warn("rate-limit read failed, allowing import", "user", userID, "error", err)
		return true, nil
	}
	return count < l.hardLimit-l.softBuffer, nil
}

// Record bumps the user's counter for the current window. Called only after
// a successful, non-duplicate import — duplicates and plan-cap rejections
// never consume rate budget. Read-then-write without CAS: concurrent
// imports can lose increments, which the soft buffer already accounts for.
func (l *Limiter) Record(ctx context.Context, userID string) error {
	count, err := l.currentCount(ctx, userID)
	if err != nil {
		return err
	}
	key := l.key(userID)
	if err := l.cache.Put(ctx, key, strconv.Itoa(count+1), l.window); err != nil {
		return fmt.Errorf("record import: %w", err)
	}
	return nil
}

func (l *Limiter) currentCount(ctx context.Context, userID string) (int, error) {
	val, ok, err := l.cache.Get(ctx, l.key(userID))
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	count, err := strconv.Atoi(val)
	if err != nil {
		// Garbage in the counter key; start the window over.
		return 0, nil
	}
	return count, nil
}

// key buckets the counter by user and wall-clock hour, so a fresh window
// starts on the hour boundary and stale keys expire on their own.
func (l *Limiter) key(userID string) string {
	bucket := l.now().UTC().Truncate(l.window).Format("2006010215")
	return keyPrefix + userID + ":" + bucket
}
