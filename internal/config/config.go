/*
Copyright 2025.

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

// Package config loads the processor configuration from an optional YAML
// file overlaid with environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/altairalabs/docproc/internal/blobstore"
	"github.com/altairalabs/docproc/internal/jobs"
	"github.com/altairalabs/docproc/internal/statecache"
	"github.com/altairalabs/docproc/internal/tracing"
	"github.com/altairalabs/docproc/pkg/logging"
)

// Options holds all configuration options for the processor.
type Options struct {
	Service ServiceOptions `mapstructure:"service"`
	Blob    BlobOptions    `mapstructure:"blob"`
	Cache   CacheOptions   `mapstructure:"cache"`
	Jobs    JobOptions     `mapstructure:"jobs"`
	Log     LogOptions     `mapstructure:"log"`
	Tracing TracingOptions `mapstructure:"tracing"`
}

// ServiceOptions configures the process itself.
type ServiceOptions struct {
	// Name identifies the service in logs and traces.
	Name string `mapstructure:"name"`
	// HealthAddr is the address the health probe server binds to.
	HealthAddr string `mapstructure:"health_addr"`
	// MetricsAddr is the address the metrics server binds to.
	MetricsAddr string `mapstructure:"metrics_addr"`
	// ConnectTimeout bounds backend connection at startup.
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// BlobOptions configures the S3-compatible artifact store.
type BlobOptions struct {
	Endpoint       string        `mapstructure:"endpoint"`
	Region         string        `mapstructure:"region"`
	AccessKey      string        `mapstructure:"access_key"`
	SecretKey      string        `mapstructure:"secret_key"`
	Bucket         string        `mapstructure:"bucket"`
	Secure         bool          `mapstructure:"secure"`
	PathStyle      bool          `mapstructure:"path_style"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	PresignExpiry  time.Duration `mapstructure:"presign_expiry"`
}

// CacheOptions configures the Redis state cache.
type CacheOptions struct {
	URL                 string        `mapstructure:"url"`
	PoolSize            int           `mapstructure:"pool_size"`
	MaxRetries          int           `mapstructure:"max_retries"`
	DialTimeout         time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout         time.Duration `mapstructure:"read_timeout"`
	WriteTimeout        time.Duration `mapstructure:"write_timeout"`
	KeepAlive           time.Duration `mapstructure:"keep_alive"`
	HealthCheckInterval time.Duration `mapstructure:"health_check_interval"`
	DefaultTTL          time.Duration `mapstructure:"default_ttl"`
	JobStatusTTL        time.Duration `mapstructure:"job_status_ttl"`
	BreakerFailures     uint32        `mapstructure:"breaker_failures"`
	BreakerTimeout      time.Duration `mapstructure:"breaker_timeout"`
}

// JobOptions restricts accepted uploads.
type JobOptions struct {
	MaxFileSize      int64    `mapstructure:"max_file_size"`
	SupportedFormats []string `mapstructure:"supported_formats"`
}

// LogOptions selects logger level and encoding.
type LogOptions struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// TracingOptions configures OTLP trace export.
type TracingOptions struct {
	Enabled     bool    `mapstructure:"enabled"`
	Endpoint    string  `mapstructure:"endpoint"`
	Insecure    bool    `mapstructure:"insecure"`
	SampleRate  float64 `mapstructure:"sample_rate"`
	Environment string  `mapstructure:"environment"`
}

// DefaultOptions returns Options matching the docker-compose deployment.
func DefaultOptions() Options {
	blob := blobstore.DefaultConfig()
	cache := statecache.DefaultConfig()
	limits := jobs.DefaultLimits()

	return Options{
		Service: ServiceOptions{
			Name:            "processor-service",
			HealthAddr:      ":8002",
			MetricsAddr:     ":9090",
			ConnectTimeout:  30 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Blob: BlobOptions{
			Endpoint:       "minio:9000",
			Region:         blob.Region,
			AccessKey:      "minioadmin",
			SecretKey:      "minioadmin",
			Bucket:         blob.Bucket,
			Secure:         false,
			PathStyle:      blob.UsePathStyle,
			RequestTimeout: blob.RequestTimeout,
			PresignExpiry:  blob.PresignExpiry,
		},
		Cache: CacheOptions{
			URL:                 "redis://redis:6379/0",
			PoolSize:            cache.PoolSize,
			MaxRetries:          cache.MaxRetries,
			DialTimeout:         cache.DialTimeout,
			KeepAlive:           cache.KeepAlive,
			HealthCheckInterval: cache.HealthCheckInterval,
			DefaultTTL:          cache.DefaultTTL,
			JobStatusTTL:        cache.JobStatusTTL,
			BreakerFailures:     cache.BreakerFailures,
			BreakerTimeout:      cache.BreakerTimeout,
		},
		Jobs: JobOptions{
			MaxFileSize:      limits.MaxFileSize,
			SupportedFormats: limits.SupportedFormats,
		},
		Log: LogOptions{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingOptions{
			Endpoint:   "localhost:4317",
			Insecure:   true,
			SampleRate: 1.0,
		},
	}
}

// Load reads the YAML file at path (skipped when empty), overlays environment
// variables and returns the validated Options. Nested keys map to upper-case
// variables with "." replaced by "_", e.g. blob.endpoint -> BLOB_ENDPOINT.
func Load(path string) (*Options, error) {
	v := viper.New()
	setDefaults(v, DefaultOptions())

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	opts := &Options{}
	if err := v.Unmarshal(opts); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return opts, nil
}

// setDefaults registers every key so AutomaticEnv can resolve it.
func setDefaults(v *viper.Viper, d Options) {
	v.SetDefault("service.name", d.Service.Name)
	v.SetDefault("service.health_addr", d.Service.HealthAddr)
	v.SetDefault("service.metrics_addr", d.Service.MetricsAddr)
	v.SetDefault("service.connect_timeout", d.Service.ConnectTimeout)
	v.SetDefault("service.shutdown_timeout", d.Service.ShutdownTimeout)

	v.SetDefault("blob.endpoint", d.Blob.Endpoint)
	v.SetDefault("blob.region", d.Blob.Region)
	v.SetDefault("blob.access_key", d.Blob.AccessKey)
	v.SetDefault("blob.secret_key", d.Blob.SecretKey)
	v.SetDefault("blob.bucket", d.Blob.Bucket)
	v.SetDefault("blob.secure", d.Blob.Secure)
	v.SetDefault("blob.path_style", d.Blob.PathStyle)
	v.SetDefault("blob.request_timeout", d.Blob.RequestTimeout)
	v.SetDefault("blob.presign_expiry", d.Blob.PresignExpiry)

	v.SetDefault("cache.url", d.Cache.URL)
	v.SetDefault("cache.pool_size", d.Cache.PoolSize)
	v.SetDefault("cache.max_retries", d.Cache.MaxRetries)
	v.SetDefault("cache.dial_timeout", d.Cache.DialTimeout)
	v.SetDefault("cache.read_timeout", d.Cache.ReadTimeout)
	v.SetDefault("cache.write_timeout", d.Cache.WriteTimeout)
	v.SetDefault("cache.keep_alive", d.Cache.KeepAlive)
	v.SetDefault("cache.health_check_interval", d.Cache.HealthCheckInterval)
	v.SetDefault("cache.default_ttl", d.Cache.DefaultTTL)
	v.SetDefault("cache.job_status_ttl", d.Cache.JobStatusTTL)
	v.SetDefault("cache.breaker_failures", d.Cache.BreakerFailures)
	v.SetDefault("cache.breaker_timeout", d.Cache.BreakerTimeout)

	v.SetDefault("jobs.max_file_size", d.Jobs.MaxFileSize)
	v.SetDefault("jobs.supported_formats", d.Jobs.SupportedFormats)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)

	v.SetDefault("tracing.enabled", d.Tracing.Enabled)
	v.SetDefault("tracing.endpoint", d.Tracing.Endpoint)
	v.SetDefault("tracing.insecure", d.Tracing.Insecure)
	v.SetDefault("tracing.sample_rate", d.Tracing.SampleRate)
	v.SetDefault("tracing.environment", d.Tracing.Environment)
}

// Validate checks if the Options are valid.
func (o *Options) Validate() error {
	var errs []error
	if o.Service.HealthAddr == "" {
		errs = append(errs, errors.New("service.health_addr is required"))
	}
	if o.Service.MetricsAddr == "" {
		errs = append(errs, errors.New("service.metrics_addr is required"))
	}
	if err := o.BlobConfig().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("blob: %w", err))
	}
	if err := o.CacheConfig().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("cache: %w", err))
	}
	if o.Jobs.MaxFileSize < 0 {
		errs = append(errs, errors.New("jobs.max_file_size must not be negative"))
	}
	switch strings.ToLower(o.Log.Format) {
	case "", "json", "console":
	default:
		errs = append(errs, fmt.Errorf("log.format %q must be json or console", o.Log.Format))
	}
	switch {
	case o.Tracing.SampleRate < 0 || o.Tracing.SampleRate > 1:
		errs = append(errs, errors.New("tracing.sample_rate must be between 0 and 1"))
	case o.Tracing.Enabled && o.Tracing.SampleRate == 0:
		errs = append(errs, errors.New("tracing.sample_rate must be greater than 0 when tracing is enabled"))
	}
	return errors.Join(errs...)
}

// BlobConfig returns the blob store settings.
func (o *Options) BlobConfig() blobstore.Config {
	return blobstore.Config{
		Endpoint:        o.Blob.Endpoint,
		Region:          o.Blob.Region,
		AccessKeyID:     o.Blob.AccessKey,
		SecretAccessKey: o.Blob.SecretKey,
		Bucket:          o.Blob.Bucket,
		UseTLS:          o.Blob.Secure,
		UsePathStyle:    o.Blob.PathStyle,
		RequestTimeout:  o.Blob.RequestTimeout,
		PresignExpiry:   o.Blob.PresignExpiry,
	}
}

// CacheConfig returns the state cache settings. Redis tracing follows the
// tracing switch.
func (o *Options) CacheConfig() statecache.Config {
	return statecache.Config{
		URL:                 o.Cache.URL,
		PoolSize:            o.Cache.PoolSize,
		MaxRetries:          o.Cache.MaxRetries,
		DialTimeout:         o.Cache.DialTimeout,
		ReadTimeout:         o.Cache.ReadTimeout,
		WriteTimeout:        o.Cache.WriteTimeout,
		KeepAlive:           o.Cache.KeepAlive,
		HealthCheckInterval: o.Cache.HealthCheckInterval,
		DefaultTTL:          o.Cache.DefaultTTL,
		JobStatusTTL:        o.Cache.JobStatusTTL,
		Tracing:             o.Tracing.Enabled,
		BreakerFailures:     o.Cache.BreakerFailures,
		BreakerTimeout:      o.Cache.BreakerTimeout,
	}
}

// JobLimits returns the upload restrictions.
func (o *Options) JobLimits() jobs.Limits {
	return jobs.Limits{
		MaxFileSize:      o.Jobs.MaxFileSize,
		SupportedFormats: o.Jobs.SupportedFormats,
	}
}

// LoggingOptions returns the logger settings.
func (o *Options) LoggingOptions() logging.Options {
	return logging.Options{Level: o.Log.Level, Format: o.Log.Format}
}

// TracingConfig returns the tracing settings.
func (o *Options) TracingConfig() tracing.Config {
	return tracing.Config{
		Enabled:     o.Tracing.Enabled,
		Endpoint:    o.Tracing.Endpoint,
		ServiceName: o.Service.Name,
		Environment: o.Tracing.Environment,
		SampleRate:  o.Tracing.SampleRate,
		Insecure:    o.Tracing.Insecure,
	}
}
