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
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"
)

func TestParseDirectory(t *testing.T) {
	got, err := ParseDirectory([]byte("part-0\t/a/0\thttp://b/0\n\npart-1\n\npart-0\t/c/0\r\n"))
	if err != nil {
		t.Fatalf("ParseDirectory: %v", err)
	}
	want := map[string][]string{
		"part-0": {"/c/0"},
		"part-1": {},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	if _, err := ParseDirectory([]byte("\t/a/0\n")); err == nil {
		t.Fatalf("expected error for empty partition")
	}
}

func TestDirectoryPath(t *testing.T) {
	if got := DirectoryPath("/data/cdx/index.summary", ""); got != "/data/cdx/index.loc" {
		t.Fatalf("unexpected derived path %q", got)
	}
	if got := DirectoryPath("/data/cdx/index", ""); got != "/data/cdx/index.loc" {
		t.Fatalf("unexpected derived path %q", got)
	}
	if got := DirectoryPath("/data/cdx/index.summary", "/etc/zipnum.loc"); got != "/etc/zipnum.loc" {
		t.Fatalf("override ignored: %q", got)
	}
}

func TestLocationDirectoryReload(t *testing.T) {
	clock := newFakeClock()
	src := &staticDirectory{data: []byte("part-0\t/old\n")}
	dir, err := NewLocationDirectory(context.Background(), src, 10*time.Minute, clock.Now, nil)
	if err != nil {
		t.Fatalf("NewLocationDirectory: %v", err)
	}
	if locs, err := dir.Resolve("part-0"); err != nil || !reflect.DeepEqual(locs, []string{"/old"}) {
		t.Fatalf("Resolve: %v %v", locs, err)
	}

	clock.Advance(9 * time.Minute)
	src.set("part-0\t/new\n", nil)
	if dir.IsReloadDue(clock.Now()) {
		t.Fatalf("reload must not be due before the interval")
	}
	if reloaded, err := dir.RefreshIfDue(context.Background()); err != nil || reloaded {
		t.Fatalf("unexpected reload %v %v", reloaded, err)
	}
	if locs, _ := dir.Resolve("part-0"); locs[0] != "/old" {
		t.Fatalf("map changed before the interval: %v", locs)
	}

	clock.Advance(time.Minute)
	if !dir.IsReloadDue(clock.Now()) {
		t.Fatalf("reload must be due once the interval elapsed")
	}
	if reloaded, err := dir.RefreshIfDue(context.Background()); err != nil || !reloaded {
		t.Fatalf("expected reload, got %v %v", reloaded, err)
	}
	if locs, _ := dir.Resolve("part-0"); locs[0] != "/new" {
		t.Fatalf("expected new map, got %v", locs)
	}
	if !dir.LoadedAt().Equal(clock.Now()) {
		t.Fatalf("unexpected load time %v", dir.LoadedAt())
	}
}

func TestLocationDirectoryReloadFailureKeepsMap(t *testing.T) {
	clock := newFakeClock()
	src := &staticDirectory{data: []byte("part-0\t/a\n")}
	dir, err := NewLocationDirectory(context.Background(), src, time.Minute, clock.Now, nil)
	if err != nil {
		t.Fatalf("NewLocationDirectory: %v", err)
	}
	loadedAt := dir.LoadedAt()

	clock.Advance(2 * time.Minute)
	src.set("", os.ErrNotExist)
	_, err = dir.RefreshIfDue(context.Background())
	var reloadErr *DirectoryReloadError
	if !errors.Is(err, ErrDirectoryReload) || !errors.Is(err, os.ErrNotExist) || !errors.As(err, &reloadErr) || reloadErr.Source != "static" {
		t.Fatalf("expected reload error, got %v", err)
	}
	if locs, err := dir.Resolve("part-0"); err != nil || locs[0] != "/a" {
		t.Fatalf("previous map must survive: %v %v", locs, err)
	}
	if !dir.LoadedAt().Equal(loadedAt) || !dir.IsReloadDue(clock.Now()) {
		t.Fatalf("failed reload must not advance the load time")
	}

	src.set("part-0\t/b\n", nil)
	if reloaded, err := dir.RefreshIfDue(context.Background()); err != nil || !reloaded {
		t.Fatalf("expected retry to succeed, got %v %v", reloaded, err)
	}
	if src.loads != 3 {
		t.Fatalf("expected 3 loads, got %d", src.loads)
	}
}

func TestLocationDirectoryExpire(t *testing.T) {
	clock := newFakeClock()
	src := &staticDirectory{data: []byte("part-0\t/a\n")}
	dir, err := NewLocationDirectory(context.Background(), src, time.Hour, clock.Now, nil)
	if err != nil {
		t.Fatalf("NewLocationDirectory: %v", err)
	}
	dir.Expire()
	if !dir.IsReloadDue(clock.Now()) {
		t.Fatalf("expired map must be due")
	}
	if locs, err := dir.Resolve("part-0"); err != nil || locs[0] != "/a" {
		t.Fatalf("expired map must still resolve: %v %v", locs, err)
	}
	src.set("part-0\t/b\n", nil)
	if reloaded, err := dir.RefreshIfDue(context.Background()); err != nil || !reloaded {
		t.Fatalf("expected reload, got %v %v", reloaded, err)
	}
	if dir.IsReloadDue(clock.Now()) {
		t.Fatalf("fresh map must not be due")
	}
}

func TestLocationDirectoryReloadOutlivesCallerCancel(t *testing.T) {
	clock := newFakeClock()
	src := &staticDirectory{data: []byte("part-0\t/a\n")}
	dir, err := NewLocationDirectory(context.Background(), src, time.Minute, clock.Now, nil)
	if err != nil {
		t.Fatalf("NewLocationDirectory: %v", err)
	}
	clock.Advance(time.Minute)
	src.set("part-0\t/b\n", nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if reloaded, err := dir.RefreshIfDue(ctx); err != nil || !reloaded {
		t.Fatalf("shared reload must not inherit caller cancellation: %v %v", reloaded, err)
	}
	if locs, _ := dir.Resolve("part-0"); locs[0] != "/b" {
		t.Fatalf("expected new map, got %v", locs)
	}
}

func TestLocationDirectoryConcurrentRefresh(t *testing.T) {
	clock := newFakeClock()
	src := &staticDirectory{data: []byte("part-0\t/a\n")}
	dir, err := NewLocationDirectory(context.Background(), src, time.Minute, clock.Now, nil)
	if err != nil {
		t.Fatalf("NewLocationDirectory: %v", err)
	}
	clock.Advance(time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := dir.RefreshIfDue(context.Background()); err != nil {
				t.Errorf("RefreshIfDue: %v", err)
			}
			if _, err := dir.Resolve("part-0"); err != nil {
				t.Errorf("Resolve: %v", err)
			}
		}()
	}
	wg.Wait()
	if src.loads != 2 {
		t.Fatalf("expected one initial load and one reload, got %d", src.loads)
	}
}

func TestLocationDirectoryErrors(t *testing.T) {
	_, err := NewLocationDirectory(context.Background(), FileDirectorySource{Path: filepath.Join(t.TempDir(), "absent.loc")}, 0, nil, nil)
	if !errors.Is(err, ErrDirectoryReload) || !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected initial load failure, got %v", err)
	}

	dir, err := NewLocationDirectory(context.Background(), &staticDirectory{data: []byte("part-0\t/a\n")}, 0, nil, nil)
	if err != nil {
		t.Fatalf("NewLocationDirectory: %v", err)
	}
	var perr *PartitionError
	if _, err := dir.Resolve("part-9"); !errors.Is(err, ErrUnknownPartition) || !errors.As(err, &perr) || perr.Partition != "part-9" {
		t.Fatalf("expected unknown partition, got %v", err)
	}
	if dir.Len() != 1 {
		t.Fatalf("expected one partition, got %d", dir.Len())
	}
}
