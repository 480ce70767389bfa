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

// Package zipnum reads a clustered, compressed CDX index: a sorted summary
// index points at independently compressed blocks spread over partitions,
// each partition replicated across one or more storage locations.
package zipnum

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// MaxUnitLength bounds the compressed size of a single unit. Real units are a
// few kilobytes; anything near this is a damaged summary line.
const MaxUnitLength = 1 << 30

// IndexDescriptor is one parsed summary index line.
type IndexDescriptor struct {
	Key       string
	Partition string
	Offset    int64
	Length    int64
	// Line is the optional line number column, 0 when absent.
	Line int64
	// Raw is the unparsed summary line.
	Raw string
}

// End returns the offset just past the descriptor's byte range.
func (d IndexDescriptor) End() int64 {
	return d.Offset + d.Length
}

// ParseDescriptor parses key<TAB>partition<TAB>offset<TAB>length[<TAB>line].
func ParseDescriptor(line string) (IndexDescriptor, error) {
	fields := strings.Split(line, "\t")
	if len(fields) < 4 {
		return IndexDescriptor{}, fmt.Errorf("expected at least 4 fields, got %d", len(fields))
	}
	if fields[0] == "" || fields[1] == "" {
		return IndexDescriptor{}, fmt.Errorf("empty key or partition")
	}
	offset, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil || offset < 0 {
		return IndexDescriptor{}, fmt.Errorf("invalid offset %q", fields[2])
	}
	length, err := strconv.ParseInt(fields[3], 10, 64)
	if err != nil || length <= 0 {
		return IndexDescriptor{}, fmt.Errorf("invalid length %q", fields[3])
	}
	if length > MaxUnitLength {
		return IndexDescriptor{}, fmt.Errorf("length %d exceeds unit limit %d", length, MaxUnitLength)
	}
	if offset > math.MaxInt64-length {
		return IndexDescriptor{}, fmt.Errorf("range %d+%d overflows", offset, length)
	}
	d := IndexDescriptor{
		Key:       fields[0],
		Partition: fields[1],
		Offset:    offset,
		Length:    length,
		Raw:       line,
	}
	if len(fields) > 4 && fields[4] != "" {
		n, err := strconv.ParseInt(fields[4], 10, 64)
		if err != nil {
			return IndexDescriptor{}, fmt.Errorf("invalid line number %q", fields[4])
		}
		d.Line = n
	}
	return d, nil
}

// FetchPlan is a run of contiguous descriptors in one partition, read with a
// single ranged load. UnitLengths holds the compressed size of every unit in order.
type FetchPlan struct {
	Partition   string
	Offset      int64
	Length      int64
	UnitLengths []int64
}

func newPlan(d IndexDescriptor) *FetchPlan {
	return &FetchPlan{
		Partition:   d.Partition,
		Offset:      d.Offset,
		Length:      d.Length,
		UnitLengths: []int64{d.Length},
	}
}

// Count returns the number of merged descriptors.
func (p FetchPlan) Count() int {
	return len(p.UnitLengths)
}

// End returns the offset just past the plan's byte range.
func (p FetchPlan) End() int64 {
	return p.Offset + p.Length
}

func (p FetchPlan) String() string {
	return fmt.Sprintf("%s:%d+%d(%d blocks)", p.Partition, p.Offset, p.Length, p.Count())
}

// Query selects records with StartKey <= key < EndKey. An empty EndKey means
// no upper bound. PagedIndex returns the raw summary lines instead of records.
type Query struct {
	StartKey   string
	EndKey     string
	PagedIndex bool
}

func (q Query) validate() error {
	if q.EndKey != "" && q.StartKey >= q.EndKey {
		return fmt.Errorf("%w: start %q >= end %q", ErrInvalidRange, q.StartKey, q.EndKey)
	}
	return nil
}

func (q Query) mode() string {
	if q.PagedIndex {
		return "paged"
	}
	return "records"
}
