// Copyright 2023-2025 Buf Technologies, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package mlog builds the process logger from configuration.
package mlog

import (
	"fmt"

	"go.uber.org/zap"
)

// Config configures the process logger.
type Config struct {
	// Level is the minimum level logged: "debug", "info", "warn" or "error".
	// Defaults to "debug" in development mode and "info" in production.
	Level string `yaml:"level"`
	// File, if set, is the file that logs are written to instead of stderr.
	File string `yaml:"file"`
	// Production selects JSON output and sampling.
	Production bool `yaml:"production"`
}

// NewLogger builds a logger for cfg.
func NewLogger(cfg Config) (*zap.Logger, error) {
	zapConfig := zap.NewDevelopmentConfig()
	if cfg.Production {
		zapConfig = zap.NewProductionConfig()
	}
	if cfg.Level != "" {
		level, err := zap.ParseAtomicLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q, %w", cfg.Level, err)
		}
		zapConfig.Level = level
	}
	if cfg.File != "" {
		zapConfig.OutputPaths = []string{cfg.File}
	}
	logger, err := zapConfig.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger, %w", err)
	}
	return logger, nil
}
