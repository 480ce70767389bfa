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
	"fmt"
	"sync"
)

// MemoryLoader is an in-memory BlockLoader for development/testing. Locations
// are arbitrary strings, conventionally mem://name.
type MemoryLoader struct {
	mu    sync.Mutex
	data  map[string][]byte
	fails map[string]error
	calls []string
}

// NewMemoryLoader initializes the in-memory loader.
func NewMemoryLoader() *MemoryLoader {
	return &MemoryLoader{
		data:  make(map[string][]byte),
		fails: make(map[string]error),
	}
}

// Put stores a copy of body under location.
func (m *MemoryLoader) Put(location string, body []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[location] = append([]byte(nil), body...)
}

// Fail makes every load from location return err until cleared with a nil err.
func (m *MemoryLoader) Fail(location string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.fails, location)
		return
	}
	m.fails[location] = err
}

// Calls returns the locations loaded so far, in call order.
func (m *MemoryLoader) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// Load implements BlockLoader.
func (m *MemoryLoader) Load(ctx context.Context, location string, offset, length int64) ([]byte, error) {
	if err := validRange(location, offset, length); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, location)
	if err := m.fails[location]; err != nil {
		return nil, err
	}
	data, ok := m.data[location]
	if !ok {
		return nil, fmt.Errorf("location %s not found", location)
	}
	if offset >= int64(len(data)) {
		return nil, fmt.Errorf("location %s range %d+%d invalid", location, offset, length)
	}
	end := offset + length
	if end > int64(len(data)) {
		end = int64(len(data))
	}
	out := append([]byte(nil), data[offset:end]...)
	if err := checkLength(location, out, length); err != nil {
		return nil, err
	}
	return out, nil
}
