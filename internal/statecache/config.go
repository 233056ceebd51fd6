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

package statecache

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const (
	defaultURL                 = "redis://localhost:6379/0"
	defaultPoolSize            = 50
	defaultMaxRetries          = 3
	defaultHealthCheckInterval = 30 * time.Second
	defaultKeepAlive           = 30 * time.Second
	defaultDialTimeout         = 5 * time.Second
	defaultDefaultTTL          = time.Hour
	defaultJobStatusTTL        = 24 * time.Hour
	defaultBreakerFailures     = 5
	defaultBreakerTimeout      = 10 * time.Second

	jobStatusKeyPrefix = "job:status:"
)

// Config holds connection and behaviour settings for the state cache.
type Config struct {
	// URL is a redis:// or rediss:// connection URL. It takes precedence over
	// Addrs, Password and DB. Default: "redis://localhost:6379/0".
	URL string
	// Addrs lists Redis server addresses, used when URL is empty. Multiple
	// addresses create a cluster client.
	Addrs []string
	// Password is used for Redis AUTH when URL is empty.
	Password string
	// DB selects the database number when URL is empty.
	DB int
	// PoolSize is the maximum number of pooled connections. Default: 50.
	PoolSize int
	// MaxRetries is the number of transport retries per command. Default: 3.
	MaxRetries int
	// DialTimeout bounds connection establishment and health-check pings.
	DialTimeout time.Duration
	// ReadTimeout is the timeout for socket reads.
	ReadTimeout time.Duration
	// WriteTimeout is the timeout for socket writes.
	WriteTimeout time.Duration
	// KeepAlive is the TCP keepalive period of pooled connections.
	KeepAlive time.Duration
	// HealthCheckInterval is the period of the background PING. Zero disables
	// the health checker.
	HealthCheckInterval time.Duration
	// DefaultTTL applies to Set calls without an explicit TTL. Default: 1h.
	DefaultTTL time.Duration
	// JobStatusTTL applies to SetJobStatus calls without an explicit TTL.
	// Default: 24h.
	JobStatusTTL time.Duration
	// Tracing attaches OpenTelemetry instrumentation to the client.
	Tracing bool
	// BreakerFailures is the number of consecutive backend failures that
	// opens the circuit breaker. Zero disables the breaker.
	BreakerFailures uint32
	// BreakerTimeout is how long the breaker stays open before probing.
	BreakerTimeout time.Duration
	// TLS enables TLS for Addrs-based connections when non-nil.
	TLS *tls.Config
}

// DefaultConfig returns a Config pointing at a local Redis.
func DefaultConfig() Config {
	return Config{
		URL:                 defaultURL,
		PoolSize:            defaultPoolSize,
		MaxRetries:          defaultMaxRetries,
		DialTimeout:         defaultDialTimeout,
		KeepAlive:           defaultKeepAlive,
		HealthCheckInterval: defaultHealthCheckInterval,
		DefaultTTL:          defaultDefaultTTL,
		JobStatusTTL:        defaultJobStatusTTL,
		BreakerFailures:     defaultBreakerFailures,
		BreakerTimeout:      defaultBreakerTimeout,
	}
}

// Validate checks that the configuration names a reachable backend.
func (c Config) Validate() error {
	if c.URL == "" && len(c.Addrs) == 0 {
		return errors.New("either a URL or at least one address is required")
	}
	if c.URL != "" {
		if _, err := goredis.ParseURL(c.URL); err != nil {
			return fmt.Errorf("invalid URL: %w", err)
		}
	}
	if c.PoolSize < 0 {
		return errors.New("pool size must not be negative")
	}
	return nil
}

func (c Config) withDefaults() Config {
	if c.DefaultTTL <= 0 {
		c.DefaultTTL = defaultDefaultTTL
	}
	if c.JobStatusTTL <= 0 {
		c.JobStatusTTL = defaultJobStatusTTL
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = defaultDialTimeout
	}
	if c.BreakerTimeout <= 0 {
		c.BreakerTimeout = defaultBreakerTimeout
	}
	return c
}

// universalOptions translates the config into go-redis client options.
func (c Config) universalOptions() (*goredis.UniversalOptions, error) {
	opts := &goredis.UniversalOptions{
		Addrs:        c.Addrs,
		Password:     c.Password,
		DB:           c.DB,
		TLSConfig:    c.TLS,
		MaxRetries:   c.MaxRetries,
		DialTimeout:  c.DialTimeout,
		ReadTimeout:  c.ReadTimeout,
		WriteTimeout: c.WriteTimeout,
	}
	if c.URL != "" {
		parsed, err := goredis.ParseURL(c.URL)
		if err != nil {
			return nil, fmt.Errorf("invalid URL: %w", err)
		}
		opts.Addrs = []string{parsed.Addr}
		opts.Username = parsed.Username
		opts.Password = parsed.Password
		opts.DB = parsed.DB
		opts.TLSConfig = parsed.TLSConfig
	}
	if c.PoolSize > 0 {
		opts.PoolSize = c.PoolSize
	}
	opts.Dialer = c.dialer(opts.TLSConfig)
	return opts, nil
}

// dialer returns a TCP dialer with keepalive enabled on every pooled
// connection.
func (c Config) dialer(tlsCfg *tls.Config) func(ctx context.Context, network, addr string) (net.Conn, error) {
	nd := &net.Dialer{Timeout: c.DialTimeout, KeepAlive: c.KeepAlive}
	if tlsCfg == nil {
		return nd.DialContext
	}
	td := &tls.Dialer{NetDialer: nd, Config: tlsCfg}
	return td.DialContext
}

func jobStatusKey(jobID string) string {
	return jobStatusKeyPrefix + jobID
}

// addr names the configured endpoint in logs and errors.
func (c Config) addr() string {
	if c.URL != "" {
		if opts, err := goredis.ParseURL(c.URL); err == nil {
			return opts.Addr
		}
		return "<invalid url>"
	}
	return strings.Join(c.Addrs, ",")
}
