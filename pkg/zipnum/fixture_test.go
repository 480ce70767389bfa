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
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
)

type unitSpec struct {
	partition string
	records   []string
}

func gzipUnit(t *testing.T, records []string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	for _, rec := range records {
		if _, err := zw.Write([]byte(rec + "\n")); err != nil {
			t.Fatalf("gzip write: %v", err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	return buf.Bytes()
}

type clusterFixture struct {
	dir       string
	summary   string
	directory string
	blobs     map[string][]byte
}

// buildFixture writes each partition as a concatenation of gzip units, the
// summary index and a directory pointing at the partition files.
func buildFixture(t *testing.T, units []unitSpec) clusterFixture {
	t.Helper()
	dir := t.TempDir()
	fx := clusterFixture{
		dir:       dir,
		summary:   filepath.Join(dir, "index.summary"),
		directory: filepath.Join(dir, "index.loc"),
		blobs:     make(map[string][]byte),
	}
	var summary strings.Builder
	var order []string
	for _, u := range units {
		blob, ok := fx.blobs[u.partition]
		if !ok {
			order = append(order, u.partition)
		}
		unit := gzipUnit(t, u.records)
		fmt.Fprintf(&summary, "%s\t%s\t%d\t%d\n", u.records[0], u.partition, len(blob), len(unit))
		fx.blobs[u.partition] = append(blob, unit...)
	}
	var loc strings.Builder
	for _, partition := range order {
		path := filepath.Join(dir, partition+".gz")
		if err := os.WriteFile(path, fx.blobs[partition], 0o600); err != nil {
			t.Fatalf("write partition: %v", err)
		}
		fmt.Fprintf(&loc, "%s\t%s\n", partition, path)
	}
	if err := os.WriteFile(fx.summary, []byte(summary.String()), 0o600); err != nil {
		t.Fatalf("write summary: %v", err)
	}
	if err := os.WriteFile(fx.directory, []byte(loc.String()), 0o600); err != nil {
		t.Fatalf("write directory: %v", err)
	}
	return fx
}

// nineUnits spreads keys a..i over three partitions, three units each, two
// records per unit.
func nineUnits() []unitSpec {
	var units []unitSpec
	for i, key := range []string{"a", "b", "c", "d", "e", "f", "g", "h", "i"} {
		units = append(units, unitSpec{
			partition: fmt.Sprintf("part-%d", i/3),
			records:   []string{key + " 001", key + " 002"},
		})
	}
	return units
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type staticDirectory struct {
	mu    sync.Mutex
	data  []byte
	err   error
	loads int
}

func (s *staticDirectory) Load(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loads++
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.err != nil {
		return nil, s.err
	}
	return append([]byte(nil), s.data...), nil
}

func (s *staticDirectory) Name() string { return "static" }

func (s *staticDirectory) set(data string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = []byte(data)
	s.err = err
}

type sliceDescriptors struct {
	items  []IndexDescriptor
	err    error
	closed bool
}

func (s *sliceDescriptors) Next() (IndexDescriptor, error) {
	if len(s.items) == 0 {
		if s.err != nil {
			return IndexDescriptor{}, s.err
		}
		return IndexDescriptor{}, io.EOF
	}
	d := s.items[0]
	s.items = s.items[1:]
	return d, nil
}

func (s *sliceDescriptors) Close() error {
	s.closed = true
	return nil
}

type sliceRecords struct {
	items []string
	reads int
}

func (s *sliceRecords) Next() ([]byte, error) {
	if len(s.items) == 0 {
		return nil, io.EOF
	}
	s.reads++
	rec := s.items[0]
	s.items = s.items[1:]
	return []byte(rec), nil
}

func (s *sliceRecords) Close() error { return nil }

func readStrings(t *testing.T, r RecordReader) []string {
	t.Helper()
	recs, err := ReadAll(r)
	if err != nil {
		t.Fatalf("read stream: %v", err)
	}
	var out []string
	for _, rec := range recs {
		out = append(out, string(rec))
	}
	return out
}

func drainPlans(t *testing.T, r PlanReader) ([]FetchPlan, error) {
	t.Helper()
	var out []FetchPlan
	for {
		p, err := r.Next()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, p)
	}
}
