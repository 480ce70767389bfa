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

package zipnum

import (
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/novatechflow/zipnum/pkg/cache"
	"github.com/novatechflow/zipnum/pkg/storage"
)

const (
	DefaultMaxBlocksPerPlan = 50
	DefaultReloadInterval   = 10 * time.Minute
	// DirectoryExt replaces the summary file extension to locate the directory file.
	DirectoryExt = ".loc"
)

// Config controls a Cluster. Zero values select defaults.
type Config struct {
	// LocationOverride is an explicit directory file path.
	LocationOverride string
	MaxBlocksPerPlan int
	ReloadInterval   time.Duration
	// AuthTokenSupplier is attached to remote loads of the default loader.
	AuthTokenSupplier storage.AuthTokenSupplier
	// Compression names the unit codec: "gzip" (default) or "zstd".
	Compression string
	// ReadAhead fetches the next plan while the current one is consumed.
	ReadAhead bool
	// CacheBytes enables an LRU of fetched plans when positive.
	CacheBytes int

	// Loader overrides the default file/http(s) loader.
	Loader storage.BlockLoader
	// DirectorySource overrides the directory file derived from the summary path.
	DirectorySource DirectorySource
	Logger          *slog.Logger
	Clock           func() time.Time
	// OnFetch observes every location attempt.
	OnFetch func(location string, latency time.Duration, err error)
}

func (c *Config) applyDefaults(summaryPath string) {
	if c.MaxBlocksPerPlan <= 0 {
		c.MaxBlocksPerPlan = DefaultMaxBlocksPerPlan
	}
	if c.ReloadInterval <= 0 {
		c.ReloadInterval = DefaultReloadInterval
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
	if c.Loader == nil {
		c.Loader = DefaultLoader(c.AuthTokenSupplier)
	}
	if c.DirectorySource == nil {
		c.DirectorySource = FileDirectorySource{Path: DirectoryPath(summaryPath, c.LocationOverride)}
	}
}

func (c *Config) blockCache() *cache.BlockCache {
	if c.CacheBytes <= 0 {
		return nil
	}
	return cache.NewBlockCache(c.CacheBytes)
}

// DirectoryPath returns override when set, otherwise summaryPath with its
// extension replaced by DirectoryExt.
func DirectoryPath(summaryPath, override string) string {
	if override != "" {
		return override
	}
	return strings.TrimSuffix(summaryPath, filepath.Ext(summaryPath)) + DirectoryExt
}

// DefaultLoader reads local paths and http(s) locations, attaching auth to remote loads.
func DefaultLoader(auth storage.AuthTokenSupplier) *storage.MultiLoader {
	return storage.NewMultiLoader().
		Register(storage.NewFileLoader(), "file").
		Register(storage.NewHTTPLoader(storage.HTTPLoaderConfig{Auth: auth}), "http", "https")
}
