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

package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// FileLoader reads ranges from local files. Locations are plain paths or file:// URIs.
type FileLoader struct{}

// NewFileLoader returns a local file loader.
func NewFileLoader() *FileLoader {
	return &FileLoader{}
}

// Load implements BlockLoader.
func (FileLoader) Load(ctx context.Context, location string, offset, length int64) ([]byte, error) {
	if err := validRange(location, offset, length); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := strings.TrimPrefix(location, "file://")
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if offset >= info.Size() || length > info.Size()-offset {
		// Never allocate for a range the file cannot hold.
		return nil, fmt.Errorf("%s: range %d+%d beyond size %d: %w", location, offset, length, info.Size(), ErrShortRead)
	}

	buf := make([]byte, length)
	n, err := io.ReadFull(io.NewSectionReader(f, offset, length), buf)
	if err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return nil, checkLength(location, buf[:n], length)
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return buf, nil
}
