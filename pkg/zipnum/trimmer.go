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
	"io"
)

// Trim narrows src to records in [start, end). Records below start are
// discarded; the first record at or after end stops the stream without
// reading further from src. An empty end means no upper bound.
func Trim(src RecordReader, start, end string) RecordReader {
	return &trimmer{src: src, start: []byte(start), end: []byte(end)}
}

type trimmer struct {
	src        RecordReader
	start, end []byte
	started    bool
	err        error
}

func (t *trimmer) Next() ([]byte, error) {
	if t.err != nil {
		return nil, t.err
	}
	for {
		rec, err := t.src.Next()
		if err != nil {
			t.err = err
			return nil, err
		}
		if !t.started {
			if bytes.Compare(rec, t.start) < 0 {
				continue
			}
			t.started = true
		}
		if len(t.end) > 0 && bytes.Compare(rec, t.end) >= 0 {
			t.err = io.EOF
			return nil, io.EOF
		}
		return rec, nil
	}
}

func (t *trimmer) Close() error {
	if t.err == nil {
		t.err = io.EOF
	}
	return t.src.Close()
}
