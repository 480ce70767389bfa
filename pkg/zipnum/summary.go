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
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

const defaultSearchBlockSize = 8192

// SummaryIndex is a sorted text file of descriptor lines, searched in place.
type SummaryIndex struct {
	path      string
	blockSize int64
}

// NewSummaryIndex opens nothing; each Scan opens the file anew.
func NewSummaryIndex(path string) *SummaryIndex {
	return &SummaryIndex{path: path, blockSize: defaultSearchBlockSize}
}

// Path returns the summary file path.
func (s *SummaryIndex) Path() string {
	return s.path
}

// Scan returns the descriptors covering [start, end). The stream begins one
// line before the first line >= start, since the unit that line points at may
// hold records at start. Lines are compared as whole strings against the keys.
func (s *SummaryIndex) Scan(ctx context.Context, start, end string) (DescriptorReader, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("open summary index: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat summary index: %w", err)
	}
	offset, err := searchOffset(f, info.Size(), start, s.blockSize)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("search summary index: %w", err)
	}
	r := bufio.NewReader(io.NewSectionReader(f, offset, info.Size()-offset))
	if offset > 0 {
		// Skip the partial line.
		if _, err := r.ReadString('\n'); err != nil && !errors.Is(err, io.EOF) {
			f.Close()
			return nil, fmt.Errorf("read summary index: %w", err)
		}
	}
	return &summaryScanner{ctx: ctx, f: f, r: r, start: start, end: end}, nil
}

// searchOffset binary searches over fixed-size blocks for a block start that
// lies before the first line >= key. The line starting in that block may be
// partial and must be skipped when the result is non-zero.
func searchOffset(f io.ReaderAt, size int64, key string, blockSize int64) (int64, error) {
	lo, hi := int64(0), size/blockSize
	for hi-lo > 1 {
		mid := lo + (hi-lo)/2
		r := bufio.NewReader(io.NewSectionReader(f, mid*blockSize, size-mid*blockSize))
		if _, err := r.ReadString('\n'); err != nil {
			if errors.Is(err, io.EOF) {
				hi = mid
				continue
			}
			return 0, err
		}
		line, err := readLine(r)
		if err != nil && !errors.Is(err, io.EOF) {
			return 0, err
		}
		if line != "" && line < key {
			lo = mid
		} else {
			hi = mid
		}
	}
	return lo * blockSize, nil
}

// readLine returns the next line without its terminator; io.EOF only when no
// bytes remain.
func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

type summaryScanner struct {
	ctx        context.Context
	f          *os.File
	r          *bufio.Reader
	start, end string

	primed  bool
	pending []string
	done    bool
	err     error
}

func (s *summaryScanner) Next() (IndexDescriptor, error) {
	if s.err != nil {
		return IndexDescriptor{}, s.err
	}
	if err := s.ctx.Err(); err != nil {
		s.err = err
		return IndexDescriptor{}, err
	}
	if !s.primed {
		s.primed = true
		if err := s.seekStart(); err != nil {
			s.err = err
			return IndexDescriptor{}, err
		}
	}
	line, err := s.nextLine()
	if err != nil {
		s.err = err
		return IndexDescriptor{}, err
	}
	if s.end != "" && line >= s.end {
		s.err = io.EOF
		return IndexDescriptor{}, io.EOF
	}
	d, err := ParseDescriptor(line)
	if err != nil {
		s.err = &IndexCorruptError{Line: line, Err: err}
		return IndexDescriptor{}, s.err
	}
	return d, nil
}

// seekStart scans forward to the first line >= start and queues it together
// with the line before it. If every line is below start, the last line is
// queued alone.
func (s *summaryScanner) seekStart() error {
	var prev string
	havePrev := false
	for {
		line, err := s.readNonEmpty()
		if errors.Is(err, io.EOF) {
			if havePrev {
				s.pending = append(s.pending, prev)
			}
			s.done = true
			return nil
		}
		if err != nil {
			return err
		}
		if line >= s.start {
			if havePrev {
				s.pending = append(s.pending, prev)
			}
			s.pending = append(s.pending, line)
			return nil
		}
		prev, havePrev = line, true
	}
}

func (s *summaryScanner) nextLine() (string, error) {
	if len(s.pending) > 0 {
		line := s.pending[0]
		s.pending = s.pending[1:]
		return line, nil
	}
	if s.done {
		return "", io.EOF
	}
	line, err := s.readNonEmpty()
	if errors.Is(err, io.EOF) {
		s.done = true
	}
	return line, err
}

func (s *summaryScanner) readNonEmpty() (string, error) {
	for {
		line, err := readLine(s.r)
		if err != nil {
			return "", err
		}
		if line != "" {
			return line, nil
		}
	}
}

func (s *summaryScanner) Close() error {
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	if s.err == nil {
		s.err = errors.New("summary scan closed")
	}
	return err
}
