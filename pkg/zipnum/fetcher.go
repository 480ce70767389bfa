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
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/novatechflow/zipnum/pkg/cache"
	"github.com/novatechflow/zipnum/pkg/metrics"
	"github.com/novatechflow/zipnum/pkg/storage"
)

// Resolver maps a partition to its ordered locations.
type Resolver interface {
	Resolve(partition string) ([]string, error)
}

// BlockFetcher loads a plan's bytes, trying each replica location in order.
type BlockFetcher struct {
	resolver Resolver
	loader   storage.BlockLoader
	cache    *cache.BlockCache
	onFetch  func(location string, latency time.Duration, err error)
	logger   *slog.Logger
	clock    func() time.Time
}

// FetcherOptions holds the optional parts of a BlockFetcher.
type FetcherOptions struct {
	Cache   *cache.BlockCache
	OnFetch func(location string, latency time.Duration, err error)
	Logger  *slog.Logger
	Clock   func() time.Time
}

// NewBlockFetcher builds a fetcher over resolver and loader.
func NewBlockFetcher(resolver Resolver, loader storage.BlockLoader, opts FetcherOptions) *BlockFetcher {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &BlockFetcher{
		resolver: resolver,
		loader:   loader,
		cache:    opts.Cache,
		onFetch:  opts.OnFetch,
		logger:   opts.Logger,
		clock:    opts.Clock,
	}
}

// Fetch returns exactly plan.Length bytes from the first location that serves
// them. Locations are tried one at a time in listed order; a failed or short
// read moves on to the next one.
func (f *BlockFetcher) Fetch(ctx context.Context, plan FetchPlan) ([]byte, error) {
	if f.cache != nil {
		if data, ok := f.cache.Get(plan.Partition, plan.Offset, plan.Length); ok {
			metrics.CacheRequests.WithLabelValues("hit").Inc()
			return data, nil
		}
		metrics.CacheRequests.WithLabelValues("miss").Inc()
	}
	locations, err := f.resolver.Resolve(plan.Partition)
	if err != nil {
		return nil, err
	}
	if len(locations) == 0 {
		return nil, &PartitionError{Kind: ErrNoLocationsFound, Partition: plan.Partition}
	}

	var last error
	attempts := 0
	for _, location := range locations {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		attempts++
		f.logger.Debug("loading blocks", "count", plan.Count(), "location", location, "offset", plan.Offset, "length", plan.Length)
		start := f.clock()
		data, err := f.loader.Load(ctx, location, plan.Offset, plan.Length)
		if err == nil && int64(len(data)) != plan.Length {
			err = storage.ErrShortRead
		}
		f.observe(location, f.clock().Sub(start), err)
		if err == nil {
			metrics.FetchBytes.Add(float64(len(data)))
			if f.cache != nil {
				f.cache.Set(plan.Partition, plan.Offset, plan.Length, data)
			}
			return data, nil
		}
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		f.logger.Warn("block load failed", "location", location, "plan", plan.String(), "error", err)
		last = err
	}
	return nil, &BlockUnavailableError{Plan: plan, Attempts: attempts, Last: last}
}

func (f *BlockFetcher) observe(location string, latency time.Duration, err error) {
	scheme := storage.Scheme(location)
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.FetchAttempts.WithLabelValues(scheme, status).Inc()
	metrics.FetchDuration.WithLabelValues(scheme).Observe(latency.Seconds())
	if f.onFetch != nil {
		f.onFetch(location, latency, err)
	}
}
