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

// Package metadata keeps the partition location directory in etcd, so a fleet
// of servers can share one directory and pick up edits without a file push.
package metadata

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
)

// DefaultDirectoryKey is the etcd key holding the directory text.
const DefaultDirectoryKey = "/zipnum/directory"

// ErrDirectoryMissing is returned when the directory key does not exist.
var ErrDirectoryMissing = errors.New("directory key missing")

// EtcdDirectoryConfig defines how we connect to etcd for the directory.
type EtcdDirectoryConfig struct {
	Endpoints   []string
	Username    string
	Password    string
	DialTimeout time.Duration
	Key         string
	// RetryDelay is the pause before a dropped watch is re-established.
	RetryDelay time.Duration
	Logger     *slog.Logger
}

// EtcdDirectorySource loads the directory text from a single etcd key. The
// value uses the same partition<TAB>location... format as the directory file.
type EtcdDirectorySource struct {
	client *clientv3.Client
	key    string
	retry  time.Duration
	logger *slog.Logger
	// loadedRev is the store revision of the last successful Load.
	loadedRev atomic.Int64

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewEtcdDirectorySource connects to etcd.
func NewEtcdDirectorySource(cfg EtcdDirectoryConfig) (*EtcdDirectorySource, error) {
	if len(cfg.Endpoints) == 0 {
		return nil, errors.New("etcd endpoints required")
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = 5 * time.Second
	}
	if cfg.Key == "" {
		cfg.Key = DefaultDirectoryKey
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   cfg.Endpoints,
		Username:    cfg.Username,
		Password:    cfg.Password,
		DialTimeout: cfg.DialTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("connect etcd: %w", err)
	}
	return &EtcdDirectorySource{
		client: cli,
		key:    cfg.Key,
		retry:  cfg.RetryDelay,
		logger: cfg.Logger,
	}, nil
}

// Load returns the current directory text.
func (s *EtcdDirectorySource) Load(ctx context.Context) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	resp, err := s.client.Get(ctx, s.key)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", s.key, err)
	}
	if resp.Header != nil {
		s.loadedRev.Store(resp.Header.Revision)
	}
	if len(resp.Kvs) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrDirectoryMissing, s.key)
	}
	return resp.Kvs[0].Value, nil
}

// Name identifies the source in logs and errors.
func (s *EtcdDirectorySource) Name() string {
	return "etcd:" + s.key
}

// Publish replaces the directory text.
func (s *EtcdDirectorySource) Publish(ctx context.Context, data []byte) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := s.client.Put(ctx, s.key, string(data)); err != nil {
		return fmt.Errorf("put %s: %w", s.key, err)
	}
	return nil
}

// Watch calls onChange after every write or delete of the directory key until
// ctx is done or the source is closed. Only one watch runs at a time. The
// watch starts just after the revision of the last Load, so edits made between
// a load and the watch are not lost. A dropped watch is re-established; when
// the history it needs was compacted, onChange fires once since edits may have
// been missed.
func (s *EtcdDirectorySource) Watch(ctx context.Context, onChange func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.watch(ctx, onChange)
}

func (s *EtcdDirectorySource) watch(ctx context.Context, onChange func()) {
	defer close(s.done)
	// next is the first revision to deliver; zero means the current one.
	var next int64
	if rev := s.loadedRev.Load(); rev > 0 {
		next = rev + 1
	}
	for {
		var opts []clientv3.OpOption
		if next > 0 {
			opts = append(opts, clientv3.WithRev(next))
		}
		for resp := range s.client.Watch(clientv3.WithRequireLeader(ctx), s.key, opts...) {
			if resp.CompactRevision != 0 {
				s.logger.Warn("directory watch compacted", "key", s.key, "from", next, "compact_revision", resp.CompactRevision)
				next = resp.CompactRevision
				onChange()
				continue
			}
			if err := resp.Err(); err != nil {
				s.logger.Warn("directory watch error", "key", s.key, "err", err)
				continue
			}
			if resp.Header.Revision > 0 {
				next = resp.Header.Revision + 1
			}
			if len(resp.Events) > 0 {
				onChange()
			}
		}
		if ctx.Err() != nil {
			return
		}
		s.logger.Info("resubscribing directory watch", "key", s.key, "from", next)
		timer := time.NewTimer(s.retry)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// Close stops the watch and the client.
func (s *EtcdDirectorySource) Close() error {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
		<-s.done
		s.cancel = nil
	}
	s.mu.Unlock()
	return s.client.Close()
}
