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
	"errors"
	"io"
)

// RecordReader is a one-pass stream of CDX lines. Next returns io.EOF once the
// stream is exhausted; any other error is terminal and is returned again by
// later calls. Close releases the stream's resources and may be called at any
// point, including before exhaustion.
type RecordReader interface {
	Next() ([]byte, error)
	Close() error
}

// DescriptorReader is a one-pass stream of summary index descriptors with the
// same contract as RecordReader.
type DescriptorReader interface {
	Next() (IndexDescriptor, error)
	Close() error
}

// PlanReader is a one-pass stream of fetch plans with the same contract as
// RecordReader.
type PlanReader interface {
	Next() (FetchPlan, error)
	Close() error
}

// ReadAll drains r and closes it.
func ReadAll(r RecordReader) ([][]byte, error) {
	var out [][]byte
	for {
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			return out, r.Close()
		}
		if err != nil {
			_ = r.Close()
			return out, err
		}
		out = append(out, rec)
	}
}

// pagedReader exposes the raw summary lines of a descriptor stream.
type pagedReader struct {
	src DescriptorReader
}

func (p *pagedReader) Next() ([]byte, error) {
	d, err := p.src.Next()
	if err != nil {
		return nil, err
	}
	return []byte(d.Raw), nil
}

func (p *pagedReader) Close() error {
	return p.src.Close()
}
