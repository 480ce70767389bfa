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
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/novatechflow/zipnum/pkg/metrics"
)

// Cluster answers key-range queries over one summary index and its partitions.
type Cluster struct {
	summary   *SummaryIndex
	directory *LocationDirectory
	fetcher   *BlockFetcher
	decoder   *RecordDecoder
	maxBlocks int
	readAhead bool
	logger    *slog.Logger
	clock     func() time.Time
}

// NewCluster opens the cluster rooted at summaryPath. The location directory is
// loaded here; a missing or malformed directory fails construction.
func NewCluster(ctx context.Context, summaryPath string, cfg Config) (*Cluster, error) {
	if summaryPath == "" {
		return nil, errors.New("summary path required")
	}
	cfg.applyDefaults(summaryPath)
	decompressor, err := NewDecompressor(cfg.Compression)
	if err != nil {
		return nil, err
	}
	directory, err := NewLocationDirectory(ctx, cfg.DirectorySource, cfg.ReloadInterval, cfg.Clock, cfg.Logger)
	if err != nil {
		return nil, err
	}
	fetcher := NewBlockFetcher(directory, cfg.Loader, FetcherOptions{
		Cache:   cfg.blockCache(),
		OnFetch: cfg.OnFetch,
		Logger:  cfg.Logger,
		Clock:   cfg.Clock,
	})
	cfg.Logger.Info("zipnum cluster opened",
		"summary", summaryPath,
		"directory", cfg.DirectorySource.Name(),
		"partitions", directory.Len(),
		"max_blocks", cfg.MaxBlocksPerPlan,
		"read_ahead", cfg.ReadAhead)
	return &Cluster{
		summary:   NewSummaryIndex(summaryPath),
		directory: directory,
		fetcher:   fetcher,
		decoder:   NewRecordDecoder(decompressor),
		maxBlocks: cfg.MaxBlocksPerPlan,
		readAhead: cfg.ReadAhead,
		logger:    cfg.Logger,
		clock:     cfg.Clock,
	}, nil
}

// Directory exposes the location directory.
func (c *Cluster) Directory() *LocationDirectory {
	return c.directory
}

// Descriptors returns the summary descriptors covering [start, end).
func (c *Cluster) Descriptors(ctx context.Context, start, end string) (DescriptorReader, error) {
	return c.summary.Scan(ctx, start, end)
}

// Query returns the records with q.StartKey <= key < q.EndKey in ascending
// order, or the covering summary lines when q.PagedIndex is set. Nothing is
// fetched until the first Next. ctx governs the whole life of the stream.
func (c *Cluster) Query(ctx context.Context, q Query) (RecordReader, error) {
	mode := q.mode()
	if err := q.validate(); err != nil {
		metrics.QueriesTotal.WithLabelValues(mode, "invalid").Inc()
		return nil, err
	}
	if _, err := c.directory.RefreshIfDue(ctx); err != nil {
		// The previous map stays usable.
		c.logger.Warn("location directory reload failed", "error", err)
	}
	descriptors, err := c.summary.Scan(ctx, q.StartKey, q.EndKey)
	if err != nil {
		metrics.QueriesTotal.WithLabelValues(mode, "error").Inc()
		return nil, err
	}
	var out RecordReader
	if q.PagedIndex {
		out = &pagedReader{src: descriptors}
	} else {
		plans := NewPlanner(descriptors, c.maxBlocks)
		out = Trim(newPlanRecords(ctx, plans, c.fetcher, c.decoder, c.readAhead), q.StartKey, q.EndKey)
	}
	metrics.ActiveQueries.Inc()
	return &trackedReader{
		src:     out,
		mode:    mode,
		query:   q,
		started: c.clock(),
		clock:   c.clock,
		logger:  c.logger,
	}, nil
}

type fetchResult struct {
	plan FetchPlan
	data []byte
	err  error
}

// planRecords fetches each plan and streams its decoded records. With
// read-ahead, a single goroutine owns the planner and fetcher and stays one
// plan ahead of the consumer.
type planRecords struct {
	ctx     context.Context
	plans   PlanReader
	fetcher *BlockFetcher
	decoder *RecordDecoder
	cur     RecordReader
	err     error

	results chan fetchResult
	cancel  context.CancelFunc
	done    chan struct{}
}

func newPlanRecords(ctx context.Context, plans PlanReader, fetcher *BlockFetcher, decoder *RecordDecoder, readAhead bool) *planRecords {
	p := &planRecords{ctx: ctx, plans: plans, fetcher: fetcher, decoder: decoder}
	if readAhead {
		var prefetchCtx context.Context
		prefetchCtx, p.cancel = context.WithCancel(ctx)
		p.results = make(chan fetchResult)
		p.done = make(chan struct{})
		go p.prefetch(prefetchCtx)
	}
	return p
}

func (p *planRecords) Next() ([]byte, error) {
	if p.err != nil {
		return nil, p.err
	}
	for {
		if p.cur != nil {
			rec, err := p.cur.Next()
			if err == nil {
				return rec, nil
			}
			_ = p.cur.Close()
			p.cur = nil
			if !errors.Is(err, io.EOF) {
				p.err = err
				return nil, err
			}
		}
		res := p.nextPlan()
		if res.err != nil {
			p.err = res.err
			return nil, res.err
		}
		p.cur = p.decoder.Decode(res.plan, res.data)
	}
}

func (p *planRecords) nextPlan() fetchResult {
	if p.results != nil {
		res, ok := <-p.results
		if !ok {
			if err := p.ctx.Err(); err != nil {
				return fetchResult{err: err}
			}
			return fetchResult{err: io.EOF}
		}
		return res
	}
	return p.fetchNext(p.ctx)
}

func (p *planRecords) fetchNext(ctx context.Context) fetchResult {
	if err := ctx.Err(); err != nil {
		return fetchResult{err: err}
	}
	plan, err := p.plans.Next()
	if err != nil {
		return fetchResult{err: err}
	}
	metrics.PlansFetched.Inc()
	metrics.BlocksPerPlan.Observe(float64(plan.Count()))
	data, err := p.fetcher.Fetch(ctx, plan)
	if err != nil {
		return fetchResult{err: err}
	}
	return fetchResult{plan: plan, data: data}
}

func (p *planRecords) prefetch(ctx context.Context) {
	defer close(p.done)
	defer close(p.results)
	for {
		res := p.fetchNext(ctx)
		select {
		case p.results <- res:
		case <-ctx.Done():
			return
		}
		if res.err != nil {
			return
		}
	}
}

func (p *planRecords) Close() error {
	if p.err == nil {
		p.err = io.EOF
	}
	if p.cur != nil {
		_ = p.cur.Close()
		p.cur = nil
	}
	if p.cancel != nil {
		p.cancel()
		<-p.done
		p.cancel = nil
	}
	return p.plans.Close()
}

// trackedReader records query outcome metrics when the stream is closed.
type trackedReader struct {
	src     RecordReader
	mode    string
	query   Query
	started time.Time
	clock   func() time.Time
	logger  *slog.Logger

	records int
	failed  error
	closed  bool
}

func (t *trackedReader) Next() ([]byte, error) {
	rec, err := t.src.Next()
	if err != nil {
		if !errors.Is(err, io.EOF) && t.failed == nil {
			t.failed = err
		}
		return nil, err
	}
	t.records++
	return rec, nil
}

func (t *trackedReader) Close() error {
	if t.closed {
		return nil
	}
	t.closed = true
	err := t.src.Close()
	elapsed := t.clock().Sub(t.started)
	status := "ok"
	if t.failed != nil {
		status = "error"
	}
	metrics.ActiveQueries.Dec()
	metrics.QueriesTotal.WithLabelValues(t.mode, status).Inc()
	metrics.QueryDuration.WithLabelValues(t.mode).Observe(elapsed.Seconds())
	metrics.RecordsReturned.Add(float64(t.records))
	t.logger.Debug("query finished",
		"start", t.query.StartKey,
		"end", t.query.EndKey,
		"mode", t.mode,
		"records", t.records,
		"status", status,
		"elapsed", elapsed.String())
	if err != nil {
		return fmt.Errorf("close query stream: %w", err)
	}
	return nil
}
