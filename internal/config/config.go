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

// Package config loads configuration from config.yaml and environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// StorageConfig selects and parameterizes the object-storage backend.
type StorageConfig struct {
	// Bucket is the GCS bucket for newsletter content. Empty means use
	// LocalDir instead.
	Bucket string
	// LocalDir stores content on the filesystem, for development.
	LocalDir string
	// CredentialsFile is an optional service-account key for the GCS
	// client. Empty means application default credentials.
	CredentialsFile string
	// SharedContent keys objects by content fingerprint instead of
	// per-user random keys.
	SharedContent bool
}

// EntitlementsConfig points at the billing service. When BaseURL is empty
// the service falls back to the static tier below (development mode).
type EntitlementsConfig struct {
	BaseURL      string
	TokenURL     string
	ClientID     string
	ClientSecret string

	// Static tier used when no billing service is configured.
	StaticUnrestricted bool
	StaticHardCap      int
	StaticUnlockedCap  int
}

// RateLimitConfig tunes the hourly forwarded-import gate.
type RateLimitConfig struct {
	HardLimit  int
	SoftBuffer int
	Window     time.Duration
}

// Config holds all configuration for the import service.
type Config struct {
	DatabaseURL string
	RedisURL    string
	EventsQueue string

	// InboundPort serves the mail provider's webhook; Port serves health.
	InboundPort   int
	Port          int
	MaxEmailBytes int64

	Storage      StorageConfig
	Entitlements EntitlementsConfig
	RateLimit    RateLimitConfig
}

// rawConfig mirrors the YAML structure for unmarshalling.
type rawConfig struct {
	Database struct {
		URL string `yaml:"url"`
	} `yaml:"database"`
	Redis struct {
		URL    string `yaml:"url"`
		Queues struct {
			Events string `yaml:"events"`
		} `yaml:"queues"`
	} `yaml:"redis"`
	Storage struct {
		Bucket          string `yaml:"bucket"`
		LocalDir        string `yaml:"local_dir"`
		CredentialsFile string `yaml:"credentials_file"`
		SharedContent   bool   `yaml:"shared_content"`
	} `yaml:"storage"`
	Entitlements struct {
		BaseURL      string `yaml:"base_url"`
		TokenURL     string `yaml:"token_url"`
		ClientID     string `yaml:"client_id"`
		ClientSecret string `yaml:"client_secret"`
		Static       struct {
			Unrestricted bool `yaml:"unrestricted"`
			HardCap      int  `yaml:"hard_cap"`
			UnlockedCap  int  `yaml:"unlocked_cap"`
		} `yaml:"static"`
	} `yaml:"entitlements"`
	RateLimit struct {
		HardLimit  int    `yaml:"hard_limit"`
		SoftBuffer int    `yaml:"soft_buffer"`
		Window     string `yaml:"window"`
	} `yaml:"rate_limit"`
}

// Load reads configuration from config.yaml (with env var expansion) and
// environment variables for non-YAML settings.
func Load() (*Config, error) {
	configPath := envOrDefault("CONFIG_PATH", "/app/config/config.yaml")

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("read config file %s: %w", configPath, err)
	}

	// Expand ${VAR} references in the YAML
	expanded := os.ExpandEnv(string(data))

	var raw rawConfig
	if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
		return nil, fmt.Errorf("parse config YAML: %w", err)
	}

	cfg := &Config{
		DatabaseURL:   firstNonEmpty(raw.Database.URL, envOrDefault("DATABASE_URL", "")),
		RedisURL:      firstNonEmpty(raw.Redis.URL, envOrDefault("REDIS_URL", "redis://localhost:6379/0")),
		EventsQueue:   firstNonEmpty(raw.Redis.Queues.Events, envOrDefault("EVENTS_QUEUE", "newsletter-events")),
		InboundPort:   envOrDefaultInt("INBOUND_PORT", 8081),
		Port:          envOrDefaultInt("PORT", 8080),
		MaxEmailBytes: envOrDefaultInt64("MAX_EMAIL_BYTES", 25<<20),
		Storage: StorageConfig{
			Bucket:          raw.Storage.Bucket,
			LocalDir:        firstNonEmpty(raw.Storage.LocalDir, envOrDefault("STORAGE_LOCAL_DIR", "")),
			CredentialsFile: raw.Storage.CredentialsFile,
			SharedContent:   raw.Storage.SharedContent,
		},
		Entitlements: EntitlementsConfig{
			BaseURL:            raw.Entitlements.BaseURL,
			TokenURL:           raw.Entitlements.TokenURL,
			ClientID:           raw.Entitlements.ClientID,
			ClientSecret:       raw.Entitlements.ClientSecret,
			StaticUnrestricted: raw.Entitlements.Static.Unrestricted,
			StaticHardCap:      raw.Entitlements.Static.HardCap,
			StaticUnlockedCap:  raw.Entitlements.Static.UnlockedCap,
		},
		RateLimit: RateLimitConfig{
			HardLimit:  raw.RateLimit.HardLimit,
			SoftBuffer: raw.RateLimit.SoftBuffer,
			Window:     time.Hour,
		},
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("database URL is required — set database.url or DATABASE_URL")
	}

	if raw.RateLimit.Window != "" {
		window, err := time.ParseDuration(raw.RateLimit.Window)
		if err != nil {
			return nil, fmt.Errorf("invalid rate_limit.window %q: %w", raw.RateLimit.Window, err)
		}
		cfg.RateLimit.Window = window
	}
	if cfg.RateLimit.HardLimit == 0 {
		cfg.RateLimit.HardLimit = 50
	}
	if cfg.RateLimit.SoftBuffer == 0 {
		cfg.RateLimit.SoftBuffer = 5
	}

	// Free-tier defaults for development deployments with no billing
	// service configured.
	if cfg.Entitlements.BaseURL == "" {
		if cfg.Entitlements.StaticHardCap == 0 {
			cfg.Entitlements.StaticHardCap = 100
		}
		if cfg.Entitlements.StaticUnlockedCap == 0 {
			cfg.Entitlements.StaticUnlockedCap = 25
		}
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envOrDefaultInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
