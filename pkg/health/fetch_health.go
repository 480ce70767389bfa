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

package health

import (
	"sort"
	"sync"
	"time"
)

// State models the reader's view of block storage availability.
type State string

const (
	StateHealthy     State = "healthy"
	StateDegraded    State = "degraded"
	StateUnavailable State = "unavailable"
)

// Config defines thresholds for transitioning between states.
type Config struct {
	Window      time.Duration
	LatencyWarn time.Duration
	LatencyCrit time.Duration
	ErrorWarn   float64
	ErrorCrit   float64
	MaxSamples  int
	// Clock defaults to time.Now.
	Clock func() time.Time
}

// Monitor aggregates recent block fetch attempts to determine a health state.
type Monitor struct {
	cfg Config

	mu         sync.Mutex
	samples    []sample
	state      State
	stateSince time.Time
	avgLatency time.Duration
	errorRate  float64
	failing    map[string]int
}

type sample struct {
	ts       time.Time
	location string
	latency  time.Duration
	err      bool
}

// Snapshot captures the monitor's public metrics.
type Snapshot struct {
	State      State
	Since      time.Time
	AvgLatency time.Duration
	ErrorRate  float64
	// Failing counts failed attempts per location inside the window.
	Failing map[string]int
}

// FailingLocations returns the locations with failed attempts inside the
// window, most failures first, ties by location.
func (s Snapshot) FailingLocations() []string {
	out := make([]string, 0, len(s.Failing))
	for loc := range s.Failing {
		out = append(out, loc)
	}
	sort.Slice(out, func(i, j int) bool {
		if s.Failing[out[i]] != s.Failing[out[j]] {
			return s.Failing[out[i]] > s.Failing[out[j]]
		}
		return out[i] < out[j]
	})
	return out
}

// NewMonitor builds a health monitor with sane defaults.
func NewMonitor(cfg Config) *Monitor {
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	if cfg.LatencyWarn <= 0 {
		cfg.LatencyWarn = 500 * time.Millisecond
	}
	if cfg.LatencyCrit <= 0 {
		cfg.LatencyCrit = 3 * time.Second
	}
	if cfg.ErrorWarn <= 0 {
		cfg.ErrorWarn = 0.2
	}
	if cfg.ErrorCrit <= 0 {
		cfg.ErrorCrit = 0.6
	}
	if cfg.MaxSamples <= 0 {
		cfg.MaxSamples = 512
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Monitor{
		cfg:        cfg,
		state:      StateHealthy,
		stateSince: cfg.Clock(),
		failing:    make(map[string]int),
	}
}

// RecordFetch records one block fetch attempt against a location. Its
// signature matches the fetcher's per-attempt hook.
func (m *Monitor) RecordFetch(location string, latency time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.cfg.Clock()
	m.samples = append(m.samples, sample{
		ts:       now,
		location: location,
		latency:  latency,
		err:      err != nil,
	})
	if len(m.samples) > m.cfg.MaxSamples {
		m.samples = m.samples[len(m.samples)-m.cfg.MaxSamples:]
	}
	m.truncateLocked(now)
	m.recomputeLocked(now)
}

// Snapshot returns the current state and key aggregates.
func (m *Monitor) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	failing := make(map[string]int, len(m.failing))
	for loc, n := range m.failing {
		failing[loc] = n
	}
	return Snapshot{
		State:      m.state,
		Since:      m.stateSince,
		AvgLatency: m.avgLatency,
		ErrorRate:  m.errorRate,
		Failing:    failing,
	}
}

// State returns just the current health state.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Monitor) truncateLocked(now time.Time) {
	cutoff := now.Add(-m.cfg.Window)
	idx := 0
	for _, s := range m.samples {
		if s.ts.After(cutoff) {
			break
		}
		idx++
	}
	if idx > 0 && idx < len(m.samples) {
		m.samples = append([]sample(nil), m.samples[idx:]...)
	} else if idx >= len(m.samples) {
		m.samples = nil
	}
}

func (m *Monitor) recomputeLocked(now time.Time) {
	clear(m.failing)
	if len(m.samples) == 0 {
		m.avgLatency = 0
		m.errorRate = 0
		m.setStateLocked(now, StateHealthy)
		return
	}
	var (
		totalLatency time.Duration
		errorCount   int
	)
	for _, s := range m.samples {
		totalLatency += s.latency
		if s.err {
			errorCount++
			m.failing[s.location]++
		}
	}
	m.avgLatency = totalLatency / time.Duration(len(m.samples))
	m.errorRate = float64(errorCount) / float64(len(m.samples))

	next := StateHealthy
	if m.avgLatency >= m.cfg.LatencyCrit || m.errorRate >= m.cfg.ErrorCrit {
		next = StateUnavailable
	} else if m.avgLatency >= m.cfg.LatencyWarn || m.errorRate >= m.cfg.ErrorWarn {
		next = StateDegraded
	}
	m.setStateLocked(now, next)
}

func (m *Monitor) setStateLocked(now time.Time, next State) {
	if next == m.state {
		return
	}
	m.state = next
	m.stateSince = now
}
