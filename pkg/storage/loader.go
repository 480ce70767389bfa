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
	"strings"
)

var (
	// ErrShortRead is returned when a location returns fewer bytes than requested.
	ErrShortRead = errors.New("short read")
	// ErrUnsupportedScheme is returned when no loader is registered for a location scheme.
	ErrUnsupportedScheme = errors.New("unsupported location scheme")
)

// ByteRange represents an inclusive byte range for reads.
type ByteRange struct {
	Start int64
	End   int64
}

// NewByteRange returns the inclusive range covering length bytes from offset.
func NewByteRange(offset, length int64) *ByteRange {
	return &ByteRange{Start: offset, End: offset + length - 1}
}

func (br *ByteRange) headerValue() *string {
	if br == nil {
		return nil
	}
	val := fmt.Sprintf("bytes=%d-%d", br.Start, br.End)
	return &val
}

// BlockLoader reads a byte range from a storage location.
type BlockLoader interface {
	// Load returns exactly length bytes starting at offset, or an error.
	Load(ctx context.Context, location string, offset, length int64) ([]byte, error)
}

// AuthTokenSupplier yields a credential for a location. Remote loaders attach
// it to their requests (as a cookie for HTTP locations).
type AuthTokenSupplier interface {
	Token(ctx context.Context, location string) (string, error)
}

// StaticToken supplies the same token for every location.
type StaticToken string

// Token implements AuthTokenSupplier.
func (s StaticToken) Token(ctx context.Context, location string) (string, error) {
	return string(s), nil
}

// MultiLoader dispatches to a BlockLoader by location scheme. Locations without
// a scheme are treated as "file".
type MultiLoader struct {
	loaders map[string]BlockLoader
}

// NewMultiLoader creates an empty dispatcher.
func NewMultiLoader() *MultiLoader {
	return &MultiLoader{loaders: make(map[string]BlockLoader)}
}

// Register binds loader to the given schemes.
func (m *MultiLoader) Register(loader BlockLoader, schemes ...string) *MultiLoader {
	for _, scheme := range schemes {
		m.loaders[strings.ToLower(scheme)] = loader
	}
	return m
}

// Load implements BlockLoader.
func (m *MultiLoader) Load(ctx context.Context, location string, offset, length int64) ([]byte, error) {
	scheme := Scheme(location)
	loader, ok := m.loaders[scheme]
	if !ok {
		return nil, fmt.Errorf("%w %q for %s", ErrUnsupportedScheme, scheme, location)
	}
	return loader.Load(ctx, location, offset, length)
}

// Scheme returns the lowercase URI scheme of location, or "file" when absent.
func Scheme(location string) string {
	idx := strings.Index(location, "://")
	if idx <= 0 {
		return "file"
	}
	return strings.ToLower(location[:idx])
}

func checkLength(location string, data []byte, length int64) error {
	if int64(len(data)) != length {
		return fmt.Errorf("%s: got %d of %d bytes: %w", location, len(data), length, ErrShortRead)
	}
	return nil
}

func validRange(location string, offset, length int64) error {
	if offset < 0 || length <= 0 {
		return fmt.Errorf("%s: invalid range offset=%d length=%d", location, offset, length)
	}
	return nil
}
