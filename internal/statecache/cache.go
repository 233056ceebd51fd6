/*
Copyright 2026 Altaira Labs.

SPDX-License-Identifier: Apache-2.0

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package statecache is a JSON key-value cache over Redis holding job status
// records and counters.
//
// Every data operation is best effort: backend failures are logged and
// collapsed to a sentinel (false, zero or "no value"). The Lookup, Store,
// Remove, Contains and Increment variants return a backend.Result so callers
// can tell a miss from a failed backend.
package statecache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/redis/go-redis/extra/redisotel/v9"
	goredis "github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker/v2"

	"github.com/altairalabs/docproc/internal/backend"
	"github.com/altairalabs/docproc/pkg/logctx"
	"github.com/altairalabs/docproc/pkg/metrics"
)

// Cache is safe for concurrent use once Connect has returned. Connect and
// Close must not race with each other.
type Cache struct {
	cfg     Config
	log     logr.Logger
	metrics metrics.Recorder
	breaker *gobreaker.CircuitBreaker[any]

	mu         sync.RWMutex
	state      backend.State
	client     goredis.UniversalClient
	ownsClient bool
	stopHealth context.CancelFunc
	healthDone chan struct{}
}

// New creates an unconnected Cache that will build and own its client.
func New(cfg Config, log logr.Logger, rec metrics.Recorder) *Cache {
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}
	c := &Cache{
		cfg:     cfg.withDefaults(),
		log:     log.WithName("statecache"),
		metrics: rec,
	}
	c.breaker = c.newBreaker()
	return c
}

// NewFromClient wraps an existing client. Connect still verifies it and
// starts the health checker, but Close leaves the client open because the
// caller retains ownership.
func NewFromClient(client goredis.UniversalClient, cfg Config, log logr.Logger, rec metrics.Recorder) *Cache {
	c := New(cfg, log, rec)
	c.client = client
	return c
}

func (c *Cache) newBreaker() *gobreaker.CircuitBreaker[any] {
	if c.cfg.BreakerFailures == 0 {
		return nil
	}
	threshold := c.cfg.BreakerFailures
	return gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:    "statecache",
		Timeout: c.cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		// A missing key is an answer, not a failure.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, goredis.Nil)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.log.Info("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
}

// State returns the current connection state.
func (c *Cache) State() backend.State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Connect builds the pooled client (unless one was supplied), verifies it
// with a PING and starts the background health checker.
func (c *Cache) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case backend.StateConnected:
		return nil
	case backend.StateDisconnected:
		return &ConnectError{Addr: c.cfg.addr(), Err: backend.ErrClosed}
	}

	client := c.client
	owned := false
	if client == nil {
		if err := c.cfg.Validate(); err != nil {
			return c.connectFailed(err)
		}
		opts, err := c.cfg.universalOptions()
		if err != nil {
			return c.connectFailed(err)
		}
		client = goredis.NewUniversalClient(opts)
		owned = true
	}

	abort := func(err error) error {
		if owned {
			_ = client.Close()
		}
		return c.connectFailed(err)
	}

	if c.cfg.Tracing {
		if err := redisotel.InstrumentTracing(client); err != nil {
			return abort(fmt.Errorf("instrument tracing: %w", err))
		}
	}

	pingCtx, cancel := context.WithTimeout(ctx, c.cfg.DialTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return abort(err)
	}

	c.client = client
	c.ownsClient = owned
	c.state = backend.StateConnected
	c.metrics.SetBackendUp(metrics.ComponentStateCache, true)
	c.startHealthCheck(client)
	c.log.Info("state cache connected", "addr", c.cfg.addr(), "poolSize", c.cfg.PoolSize)
	return nil
}

func (c *Cache) connectFailed(err error) error {
	c.metrics.SetBackendUp(metrics.ComponentStateCache, false)
	c.log.Error(err, "state cache connection failed", "addr", c.cfg.addr())
	return &ConnectError{Addr: c.cfg.addr(), Err: err}
}

// Close stops the health checker and closes the client if the cache owns
// it. Data operations fail afterwards.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == backend.StateDisconnected {
		return nil
	}
	c.stopHealthCheck()
	c.state = backend.StateDisconnected
	c.metrics.SetBackendUp(metrics.ComponentStateCache, false)

	var err error
	if c.ownsClient && c.client != nil {
		err = c.client.Close()
	}
	c.client = nil
	return err
}

// Ping checks the backend directly, bypassing the circuit breaker.
func (c *Cache) Ping(ctx context.Context) error {
	client, err := c.conn()
	if err != nil {
		return err
	}
	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("statecache: ping: %w", err)
	}
	return nil
}

func (c *Cache) conn() (goredis.UniversalClient, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if err := c.state.Err(); err != nil {
		return nil, err
	}
	return c.client, nil
}

// execute runs fn against the connected client through the circuit breaker.
func execute[T any](c *Cache, fn func(client goredis.UniversalClient) (T, error)) (T, error) {
	var zero T
	client, err := c.conn()
	if err != nil {
		return zero, err
	}
	if c.breaker == nil {
		return fn(client)
	}
	v, err := c.breaker.Execute(func() (any, error) {
		return fn(client)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return zero, fmt.Errorf("%w: %w", ErrCircuitOpen, err)
	}
	if err != nil {
		return zero, err
	}
	return v.(T), nil
}

// --- Result variants ------------------------------------------------------

// Lookup returns the raw JSON stored under key.
func (c *Cache) Lookup(ctx context.Context, key string) backend.Result[json.RawMessage] {
	const op = "get"
	start := time.Now()

	data, err := execute(c, func(client goredis.UniversalClient) ([]byte, error) {
		return client.Get(ctx, key).Bytes()
	})
	var res backend.Result[json.RawMessage]
	switch {
	case err == nil:
		res = backend.Hit(json.RawMessage(data))
	case errors.Is(err, goredis.Nil):
		res = backend.Miss[json.RawMessage]()
	default:
		res = backend.Fail[json.RawMessage](err)
	}
	return finish(ctx, c, op, key, res, start)
}

// Store JSON-encodes value and writes it under key with the given TTL.
// A TTL of zero or less selects DefaultTTL.
func (c *Cache) Store(ctx context.Context, key string, value any, ttl time.Duration) backend.Result[struct{}] {
	const op = "set"
	start := time.Now()
	if ttl <= 0 {
		ttl = c.cfg.DefaultTTL
	}

	data, err := json.Marshal(value)
	if err != nil {
		return finish(ctx, c, op, key, backend.Fail[struct{}](fmt.Errorf("encode value: %w", err)), start)
	}
	_, err = execute(c, func(client goredis.UniversalClient) (string, error) {
		return client.Set(ctx, key, data, ttl).Result()
	})
	if err != nil {
		return finish(ctx, c, op, key, backend.Fail[struct{}](err), start)
	}
	return finish(ctx, c, op, key, backend.Hit(struct{}{}), start)
}

// Remove deletes key. Outcome is Miss when the key did not exist.
func (c *Cache) Remove(ctx context.Context, key string) backend.Result[struct{}] {
	const op = "delete"
	start := time.Now()

	n, err := execute(c, func(client goredis.UniversalClient) (int64, error) {
		return client.Del(ctx, key).Result()
	})
	var res backend.Result[struct{}]
	switch {
	case err != nil:
		res = backend.Fail[struct{}](err)
	case n == 0:
		res = backend.Miss[struct{}]()
	default:
		res = backend.Hit(struct{}{})
	}
	return finish(ctx, c, op, key, res, start)
}

// Contains reports whether key exists. Outcome is Miss when it does not.
func (c *Cache) Contains(ctx context.Context, key string) backend.Result[bool] {
	const op = "exists"
	start := time.Now()

	n, err := execute(c, func(client goredis.UniversalClient) (int64, error) {
		return client.Exists(ctx, key).Result()
	})
	var res backend.Result[bool]
	switch {
	case err != nil:
		res = backend.Fail[bool](err)
	case n == 0:
		res = backend.Miss[bool]()
	default:
		res = backend.Hit(true)
	}
	return finish(ctx, c, op, key, res, start)
}

// Increment atomically adds one to the integer under key, creating it at 1.
// The key does not expire.
func (c *Cache) Increment(ctx context.Context, key string) backend.Result[int64] {
	const op = "incr"
	start := time.Now()

	n, err := execute(c, func(client goredis.UniversalClient) (int64, error) {
		return client.Incr(ctx, key).Result()
	})
	if err != nil {
		return finish(ctx, c, op, key, backend.Fail[int64](err), start)
	}
	return finish(ctx, c, op, key, backend.Hit(n), start)
}

func finish[T any](ctx context.Context, c *Cache, op, key string, res backend.Result[T], start time.Time) backend.Result[T] {
	c.metrics.RecordOperation(metrics.ComponentStateCache, op, res.Outcome.MetricLabel(), time.Since(start).Seconds())
	if res.Outcome == backend.OutcomeError {
		logctx.LoggerWithContext(c.log, ctx).Error(res.Err, "state cache operation failed", "op", op, "key", key)
	}
	return res
}

// --- best-effort API ------------------------------------------------------

// Get decodes the JSON value under key into dst. It returns false for a
// missing key, a backend failure or a value that does not decode into dst.
func (c *Cache) Get(ctx context.Context, key string, dst any) bool {
	res := c.Lookup(ctx, key)
	if !res.Ok() {
		return false
	}
	if err := json.Unmarshal(res.Value, dst); err != nil {
		logctx.LoggerWithContext(c.log, ctx).Error(err, "state cache value undecodable", "op", "get", "key", key)
		return false
	}
	return true
}

// Set stores value under key. A TTL of zero or less selects DefaultTTL.
func (c *Cache) Set(ctx context.Context, key string, value any, ttl time.Duration) bool {
	return c.Store(ctx, key, value, ttl).Ok()
}

// Delete removes key. It returns true unless the backend failed; deleting a
// missing key succeeds.
func (c *Cache) Delete(ctx context.Context, key string) bool {
	return c.Remove(ctx, key).Outcome != backend.OutcomeError
}

// Exists reports whether key is present.
func (c *Cache) Exists(ctx context.Context, key string) bool {
	return c.Contains(ctx, key).Ok()
}

// SetJobStatus stores status under "job:status:<jobID>". A TTL of zero or
// less selects JobStatusTTL.
func (c *Cache) SetJobStatus(ctx context.Context, jobID string, status any, ttl time.Duration) bool {
	return c.StoreJobStatus(ctx, jobID, status, ttl).Ok()
}

// GetJobStatus decodes the status stored for jobID into dst.
func (c *Cache) GetJobStatus(ctx context.Context, jobID string, dst any) bool {
	return c.Get(logctx.WithJobID(ctx, jobID), jobStatusKey(jobID), dst)
}

// StoreJobStatus is SetJobStatus with the outcome preserved.
func (c *Cache) StoreJobStatus(ctx context.Context, jobID string, status any, ttl time.Duration) backend.Result[struct{}] {
	if ttl <= 0 {
		ttl = c.cfg.JobStatusTTL
	}
	return c.Store(logctx.WithJobID(ctx, jobID), jobStatusKey(jobID), status, ttl)
}

// LookupJobStatus returns the raw status record stored for jobID.
func (c *Cache) LookupJobStatus(ctx context.Context, jobID string) backend.Result[json.RawMessage] {
	return c.Lookup(logctx.WithJobID(ctx, jobID), jobStatusKey(jobID))
}

// IncrementCounter increments the counter under key and returns the new
// value, or 0 when the backend failed.
func (c *Cache) IncrementCounter(ctx context.Context, key string) int64 {
	return c.Increment(ctx, key).Or(0)
}
