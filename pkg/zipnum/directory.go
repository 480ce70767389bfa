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
	"bufio"
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/novatechflow/zipnum/pkg/metrics"
)

const reloadTimeout = 30 * time.Second

// DirectorySource supplies the raw directory text.
type DirectorySource interface {
	Load(ctx context.Context) ([]byte, error)
	Name() string
}

// FileDirectorySource reads the directory from a local file.
type FileDirectorySource struct {
	Path string
}

// Load implements DirectorySource.
func (s FileDirectorySource) Load(ctx context.Context) ([]byte, error) {
	return os.ReadFile(s.Path)
}

// Name implements DirectorySource.
func (s FileDirectorySource) Name() string {
	return s.Path
}

// ParseDirectory parses partition<TAB>location... lines. Blank lines are
// skipped; a later line for the same partition replaces an earlier one.
func ParseDirectory(data []byte) (map[string][]string, error) {
	out := make(map[string][]string)
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), " \t\r")
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if fields[0] == "" {
			return nil, fmt.Errorf("line %d: empty partition", lineNo)
		}
		locations := make([]string, 0, len(fields)-1)
		for _, loc := range fields[1:] {
			if loc = strings.TrimSpace(loc); loc != "" {
				locations = append(locations, loc)
			}
		}
		out[fields[0]] = locations
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

type directorySnapshot struct {
	locations map[string][]string
	loadedAt  time.Time
}

// LocationDirectory maps partitions to their ordered replica locations. The
// map is replaced wholesale on reload; readers never see a partial map.
type LocationDirectory struct {
	source   DirectorySource
	interval time.Duration
	clock    func() time.Time
	logger   *slog.Logger

	snap  atomic.Pointer[directorySnapshot]
	group singleflight.Group
}

// NewLocationDirectory loads the directory once; failure is fatal here.
func NewLocationDirectory(ctx context.Context, source DirectorySource, interval time.Duration, clock func() time.Time, logger *slog.Logger) (*LocationDirectory, error) {
	if interval <= 0 {
		interval = DefaultReloadInterval
	}
	if clock == nil {
		clock = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	d := &LocationDirectory{
		source:   source,
		interval: interval,
		clock:    clock,
		logger:   logger,
	}
	if err := d.reload(ctx); err != nil {
		return nil, err
	}
	return d, nil
}

// Resolve returns the ordered locations of a partition.
func (d *LocationDirectory) Resolve(partition string) ([]string, error) {
	locations, ok := d.snap.Load().locations[partition]
	if !ok {
		return nil, &PartitionError{Kind: ErrUnknownPartition, Partition: partition}
	}
	return locations, nil
}

// IsReloadDue reports whether the reload interval has elapsed at now.
func (d *LocationDirectory) IsReloadDue(now time.Time) bool {
	return now.Sub(d.snap.Load().loadedAt) >= d.interval
}

// LoadedAt returns when the current map was loaded.
func (d *LocationDirectory) LoadedAt() time.Time {
	return d.snap.Load().loadedAt
}

// Expire marks the current map as due, so the next RefreshIfDue reloads it.
func (d *LocationDirectory) Expire() {
	cur := d.snap.Load()
	// A concurrent reload already installed a fresh map; nothing to expire.
	d.snap.CompareAndSwap(cur, &directorySnapshot{locations: cur.locations})
}

// Len returns the number of partitions in the current map.
func (d *LocationDirectory) Len() int {
	return len(d.snap.Load().locations)
}

// RefreshIfDue reloads the directory when the interval has elapsed. Concurrent
// callers share one load, which runs detached from the cancellation of ctx but
// keeps its values. A failed reload returns a *DirectoryReloadError and
// leaves the previous map (and its timestamp) in place, so the next call retries.
func (d *LocationDirectory) RefreshIfDue(ctx context.Context) (bool, error) {
	if !d.IsReloadDue(d.clock()) {
		return false, nil
	}
	v, err, _ := d.group.Do("reload", func() (interface{}, error) {
		// Another caller may have finished a reload while we waited.
		if !d.IsReloadDue(d.clock()) {
			return false, nil
		}
		// Shared by every waiting caller, so one caller going away must not
		// abort it.
		reloadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), reloadTimeout)
		defer cancel()
		if err := d.reload(reloadCtx); err != nil {
			return false, err
		}
		return true, nil
	})
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

func (d *LocationDirectory) reload(ctx context.Context) error {
	d.logger.Debug("loading location directory", "source", d.source.Name())
	data, err := d.source.Load(ctx)
	if err == nil {
		var locations map[string][]string
		locations, err = ParseDirectory(data)
		if err == nil {
			d.snap.Store(&directorySnapshot{locations: locations, loadedAt: d.clock()})
			metrics.DirectoryReloads.WithLabelValues("ok").Inc()
			metrics.DirectoryPartitions.Set(float64(len(locations)))
			return nil
		}
	}
	metrics.DirectoryReloads.WithLabelValues("error").Inc()
	return &DirectoryReloadError{Source: d.source.Name(), Err: err}
}
