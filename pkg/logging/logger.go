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

// Package logging provides shared logger initialization for docproc binaries.
package logging

import (
	"os"
	"strings"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options selects the level and encoding of a logger.
type Options struct {
	// Level is one of "trace", "debug", "info", "warn", "error".
	// Empty means "info".
	Level string
	// Format is "json" or "console". Empty picks console for debug levels
	// and json otherwise.
	Format string
}

// OptionsFromEnv reads LOG_LEVEL and LOG_FORMAT.
func OptionsFromEnv() Options {
	return Options{
		Level:  os.Getenv("LOG_LEVEL"),
		Format: os.Getenv("LOG_FORMAT"),
	}
}

// NewLogger creates a logr.Logger backed by Zap using LOG_LEVEL and
// LOG_FORMAT from the environment.
// Returns the logger and a sync function the caller should defer.
func NewLogger() (logr.Logger, func(), error) {
	return NewLoggerWithOptions(OptionsFromEnv())
}

// NewLoggerWithOptions creates a logr.Logger backed by Zap.
func NewLoggerWithOptions(opts Options) (logr.Logger, func(), error) {
	zapLog, err := newZapLogger(opts)
	if err != nil {
		return logr.Logger{}, nil, err
	}
	sync := func() { _ = zapLog.Sync() }
	return zapr.NewLogger(zapLog), sync, nil
}

// isVerbose reports whether the level enables V(1) logging.
func isVerbose(level string) bool {
	l := strings.ToLower(level)
	return l == "debug" || l == "trace"
}

func newZapLogger(opts Options) (*zap.Logger, error) {
	level := strings.ToLower(opts.Level)

	var cfg zap.Config
	format := strings.ToLower(opts.Format)
	if format == "console" || (format == "" && isVerbose(level)) {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}

	switch level {
	case "trace":
		// logr V(2) maps to zap level -2.
		cfg.Level = zap.NewAtomicLevelAt(zapcore.Level(-2))
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	return cfg.Build()
}
