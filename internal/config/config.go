// Copyright 2025 Alexander Alten (novatechflow), NovaTechflow (novatechflow.com).
// This project is supported and financed by Scalytics, Inc. (www.scalytics.io).
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

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config defines the cdx server configuration schema.
type Config struct {
	Index     IndexConfig     `yaml:"index"`
	Directory DirectoryConfig `yaml:"directory"`
	Auth      AuthConfig      `yaml:"auth"`
	HTTP      HTTPConfig      `yaml:"http"`
	S3        S3Config        `yaml:"s3"`
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
}

type IndexConfig struct {
	SummaryPath           string `yaml:"summary_path"`
	LocationOverride      string `yaml:"location_override"`
	MaxBlocksPerPlan      int    `yaml:"max_blocks_per_plan"`
	ReloadIntervalMinutes int    `yaml:"reload_interval_minutes"`
	Compression           string `yaml:"compression"`
	ReadAhead             bool   `yaml:"read_ahead"`
	CacheBytes            int    `yaml:"cache_bytes"`
}

type DirectoryConfig struct {
	Backend string     `yaml:"backend"`
	Etcd    EtcdConfig `yaml:"etcd"`
}

type EtcdConfig struct {
	Endpoints []string `yaml:"endpoints"`
	Key       string   `yaml:"key"`
	Username  string   `yaml:"username"`
	Password  string   `yaml:"password"`
	Watch     bool     `yaml:"watch"`
}

type AuthConfig struct {
	CookieName string `yaml:"cookie_name"`
	Token      string `yaml:"token"`
}

type HTTPConfig struct {
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

type S3Config struct {
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	PathStyle       bool   `yaml:"path_style"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	SessionToken    string `yaml:"session_token"`
}

type ServerConfig struct {
	Listen     string `yaml:"listen"`
	GRPCListen string `yaml:"grpc_listen"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// ReloadInterval returns the directory reload interval.
func (c IndexConfig) ReloadInterval() time.Duration {
	return time.Duration(c.ReloadIntervalMinutes) * time.Minute
}

// Timeout returns the remote block load timeout.
func (c HTTPConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Load reads the YAML file at path, applies defaults and then ZIPNUM_*
// environment overrides. An empty path configures from the environment alone.
func Load(path string) (Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}

	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)

	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Index.MaxBlocksPerPlan == 0 {
		cfg.Index.MaxBlocksPerPlan = 50
	}
	if cfg.Index.ReloadIntervalMinutes == 0 {
		cfg.Index.ReloadIntervalMinutes = 10
	}
	if cfg.Index.Compression == "" {
		cfg.Index.Compression = "gzip"
	}
	if cfg.Directory.Backend == "" {
		cfg.Directory.Backend = "file"
	}
	if cfg.Directory.Etcd.Key == "" {
		cfg.Directory.Etcd.Key = "/zipnum/directory"
	}
	if cfg.Auth.CookieName == "" {
		cfg.Auth.CookieName = "auth"
	}
	if cfg.HTTP.TimeoutSeconds == 0 {
		cfg.HTTP.TimeoutSeconds = 30
	}
	if cfg.Server.Listen == "" {
		cfg.Server.Listen = ":8080"
	}
	if cfg.Server.GRPCListen == "" {
		cfg.Server.GRPCListen = ":9091"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}

func applyEnvOverrides(cfg *Config) {
	setString(&cfg.Index.SummaryPath, "ZIPNUM_SUMMARY_PATH")
	setString(&cfg.Index.LocationOverride, "ZIPNUM_LOCATION_OVERRIDE")
	setInt(&cfg.Index.MaxBlocksPerPlan, "ZIPNUM_MAX_BLOCKS")
	setInt(&cfg.Index.ReloadIntervalMinutes, "ZIPNUM_RELOAD_INTERVAL_MINUTES")
	setString(&cfg.Index.Compression, "ZIPNUM_COMPRESSION")
	setBool(&cfg.Index.ReadAhead, "ZIPNUM_READ_AHEAD")
	setInt(&cfg.Index.CacheBytes, "ZIPNUM_CACHE_BYTES")

	setString(&cfg.Directory.Backend, "ZIPNUM_DIRECTORY_BACKEND")
	setCSV(&cfg.Directory.Etcd.Endpoints, "ZIPNUM_ETCD_ENDPOINTS")
	setString(&cfg.Directory.Etcd.Key, "ZIPNUM_ETCD_KEY")
	setString(&cfg.Directory.Etcd.Username, "ZIPNUM_ETCD_USERNAME")
	setString(&cfg.Directory.Etcd.Password, "ZIPNUM_ETCD_PASSWORD")
	setBool(&cfg.Directory.Etcd.Watch, "ZIPNUM_ETCD_WATCH")

	setString(&cfg.Auth.CookieName, "ZIPNUM_AUTH_COOKIE")
	setString(&cfg.Auth.Token, "ZIPNUM_AUTH_TOKEN")
	setInt(&cfg.HTTP.TimeoutSeconds, "ZIPNUM_HTTP_TIMEOUT_SECONDS")

	setString(&cfg.S3.Region, "ZIPNUM_S3_REGION")
	setString(&cfg.S3.Endpoint, "ZIPNUM_S3_ENDPOINT")
	setBool(&cfg.S3.PathStyle, "ZIPNUM_S3_PATH_STYLE")
	setString(&cfg.S3.AccessKeyID, "ZIPNUM_S3_ACCESS_KEY")
	setString(&cfg.S3.SecretAccessKey, "ZIPNUM_S3_SECRET_KEY")
	setString(&cfg.S3.SessionToken, "ZIPNUM_S3_SESSION_TOKEN")

	setString(&cfg.Server.Listen, "ZIPNUM_LISTEN")
	setString(&cfg.Server.GRPCListen, "ZIPNUM_GRPC_LISTEN")
	setString(&cfg.Log.Level, "ZIPNUM_LOG_LEVEL")
}

func validate(cfg Config) error {
	if cfg.Index.SummaryPath == "" {
		return fmt.Errorf("index.summary_path is required")
	}
	if cfg.Index.MaxBlocksPerPlan < 1 {
		return fmt.Errorf("index.max_blocks_per_plan must be positive")
	}
	if cfg.Index.ReloadIntervalMinutes < 1 {
		return fmt.Errorf("index.reload_interval_minutes must be positive")
	}
	switch strings.ToLower(cfg.Index.Compression) {
	case "gzip", "gz", "zstd", "zst":
	default:
		return fmt.Errorf("unsupported index.compression %q", cfg.Index.Compression)
	}
	switch cfg.Directory.Backend {
	case "file":
	case "etcd":
		if len(cfg.Directory.Etcd.Endpoints) == 0 {
			return fmt.Errorf("directory.etcd.endpoints is required for the etcd backend")
		}
	default:
		return fmt.Errorf("unsupported directory.backend %q", cfg.Directory.Backend)
	}
	return nil
}

func setString(target *string, envKey string) {
	if val, ok := os.LookupEnv(envKey); ok {
		*target = val
	}
}

func setInt(target *int, envKey string) {
	if val, ok := os.LookupEnv(envKey); ok {
		parsed, err := strconv.Atoi(val)
		if err == nil {
			*target = parsed
		}
	}
}

func setBool(target *bool, envKey string) {
	if val, ok := os.LookupEnv(envKey); ok {
		parsed, err := strconv.ParseBool(val)
		if err == nil {
			*target = parsed
		}
	}
}

func setCSV(target *[]string, envKey string) {
	if val, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(val, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			trimmed := strings.TrimSpace(p)
			if trimmed != "" {
				out = append(out, trimmed)
			}
		}
		if len(out) > 0 {
			*target = out
		}
	}
}
