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
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"github.com/novatechflow/zipnum/pkg/metrics"
)

// Decompressor inflates one self-contained compressed unit.
type Decompressor interface {
	Decompress(unit []byte) ([]byte, error)
}

// GzipDecompressor inflates a single gzip member.
type GzipDecompressor struct {
	pool sync.Pool
}

// Decompress implements Decompressor.
func (g *GzipDecompressor) Decompress(unit []byte) ([]byte, error) {
	var zr *gzip.Reader
	if pooled, ok := g.pool.Get().(*gzip.Reader); ok {
		zr = pooled
		if err := zr.Reset(bytes.NewReader(unit)); err != nil {
			return nil, err
		}
	} else {
		var err error
		if zr, err = gzip.NewReader(bytes.NewReader(unit)); err != nil {
			return nil, err
		}
	}
	defer g.pool.Put(zr)
	zr.Multistream(false)
	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ZstdDecompressor inflates a single zstd frame.
type ZstdDecompressor struct {
	once sync.Once
	dec  *zstd.Decoder
	err  error
}

// Decompress implements Decompressor.
func (z *ZstdDecompressor) Decompress(unit []byte) ([]byte, error) {
	z.once.Do(func() {
		z.dec, z.err = zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	})
	if z.err != nil {
		return nil, z.err
	}
	return z.dec.DecodeAll(unit, nil)
}

// NewDecompressor returns the codec for name ("gzip" when empty).
func NewDecompressor(name string) (Decompressor, error) {
	switch strings.ToLower(name) {
	case "", "gzip", "gz":
		return &GzipDecompressor{}, nil
	case "zstd", "zst":
		return &ZstdDecompressor{}, nil
	default:
		return nil, fmt.Errorf("unsupported compression %q", name)
	}
}

// RecordDecoder turns a fetched plan back into CDX lines.
type RecordDecoder struct {
	decompressor Decompressor
}

// NewRecordDecoder builds a decoder over d.
func NewRecordDecoder(d Decompressor) *RecordDecoder {
	return &RecordDecoder{decompressor: d}
}

// Decode returns the lines of every unit in plan order. Each unit is inflated
// on its own, only once the previous unit's lines are consumed.
func (d *RecordDecoder) Decode(plan FetchPlan, raw []byte) RecordReader {
	return &unitReader{decompressor: d.decompressor, plan: plan, raw: raw}
}

type unitReader struct {
	decompressor Decompressor
	plan         FetchPlan
	raw          []byte
	unit         int
	pos          int64
	lines        [][]byte
	err          error
}

func (u *unitReader) Next() ([]byte, error) {
	if u.err != nil {
		return nil, u.err
	}
	for len(u.lines) == 0 {
		if u.unit == 0 && u.pos == 0 && int64(len(u.raw)) != u.plan.Length {
			u.err = &BlockCorruptError{Plan: u.plan, Unit: 0, Err: fmt.Errorf("fetched %d bytes, expected %d", len(u.raw), u.plan.Length)}
			return nil, u.err
		}
		if u.unit >= len(u.plan.UnitLengths) {
			u.err = io.EOF
			return nil, io.EOF
		}
		length := u.plan.UnitLengths[u.unit]
		if length <= 0 || u.pos+length > int64(len(u.raw)) {
			u.err = &BlockCorruptError{Plan: u.plan, Unit: u.unit, Err: fmt.Errorf("unit length %d exceeds fetched bytes", length)}
			return nil, u.err
		}
		inflated, err := u.decompressor.Decompress(u.raw[u.pos : u.pos+length])
		if err != nil {
			metrics.DecodeErrors.Inc()
			u.err = &BlockCorruptError{Plan: u.plan, Unit: u.unit, Err: err}
			return nil, u.err
		}
		u.lines = splitLines(inflated)
		u.pos += length
		u.unit++
	}
	line := u.lines[0]
	u.lines = u.lines[1:]
	return line, nil
}

func (u *unitReader) Close() error {
	u.raw = nil
	u.lines = nil
	if u.err == nil {
		u.err = io.EOF
	}
	return nil
}

// splitLines splits on newlines, dropping empty lines and carriage returns.
func splitLines(data []byte) [][]byte {
	out := make([][]byte, 0, bytes.Count(data, []byte{'\n'})+1)
	for len(data) > 0 {
		var line []byte
		if idx := bytes.IndexByte(data, '\n'); idx >= 0 {
			line, data = data[:idx], data[idx+1:]
		} else {
			line, data = data, nil
		}
		line = bytes.TrimSuffix(line, []byte{'\r'})
		if len(line) > 0 {
			out = append(out, line)
		}
	}
	return out
}
