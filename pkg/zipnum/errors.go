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
	"fmt"
)

var (
	// ErrUnknownPartition indicates the location directory has no entry for a partition.
	ErrUnknownPartition = errors.New("unknown partition")
	// ErrNoLocationsFound indicates a directory entry without any locations.
	ErrNoLocationsFound = errors.New("no locations found")
	// ErrBlockUnavailable indicates every candidate location failed.
	ErrBlockUnavailable = errors.New("block unavailable")
	// ErrIndexCorrupt indicates a malformed summary index line.
	ErrIndexCorrupt = errors.New("index corrupt")
	// ErrBlockCorrupt indicates a unit that failed to decompress or split.
	ErrBlockCorrupt = errors.New("block corrupt")
	// ErrDirectoryReload marks an advisory reload failure; the previous map stays in use.
	ErrDirectoryReload = errors.New("location directory reload failed")
	// ErrInvalidRange indicates a query whose start key is not below its end key.
	ErrInvalidRange = errors.New("invalid key range")
)

// PartitionError reports a directory lookup failure for a partition.
type PartitionError struct {
	Kind      error
	Partition string
}

func (e *PartitionError) Error() string {
	return fmt.Sprintf("%v: %s", e.Kind, e.Partition)
}

func (e *PartitionError) Unwrap() error {
	return e.Kind
}

// BlockUnavailableError carries the last failure after all locations were tried.
type BlockUnavailableError struct {
	Plan     FetchPlan
	Attempts int
	Last     error
}

func (e *BlockUnavailableError) Error() string {
	return fmt.Sprintf("%v: %s after %d attempts: %v", ErrBlockUnavailable, e.Plan, e.Attempts, e.Last)
}

func (e *BlockUnavailableError) Unwrap() []error {
	return []error{ErrBlockUnavailable, e.Last}
}

// IndexCorruptError names the summary line that failed to parse.
type IndexCorruptError struct {
	Line string
	Err  error
}

func (e *IndexCorruptError) Error() string {
	return fmt.Sprintf("%v: %q: %v", ErrIndexCorrupt, e.Line, e.Err)
}

func (e *IndexCorruptError) Unwrap() []error {
	return []error{ErrIndexCorrupt, e.Err}
}

// BlockCorruptError names the plan and unit that failed to decode.
type BlockCorruptError struct {
	Plan FetchPlan
	Unit int
	Err  error
}

func (e *BlockCorruptError) Error() string {
	return fmt.Sprintf("%v: %s unit %d: %v", ErrBlockCorrupt, e.Plan, e.Unit, e.Err)
}

func (e *BlockCorruptError) Unwrap() []error {
	return []error{ErrBlockCorrupt, e.Err}
}

// DirectoryReloadError is returned by RefreshIfDue when the source could not be
// loaded or parsed.
type DirectoryReloadError struct {
	Source string
	Err    error
}

func (e *DirectoryReloadError) Error() string {
	return fmt.Sprintf("%v from %s: %v", ErrDirectoryReload, e.Source, e.Err)
}

func (e *DirectoryReloadError) Unwrap() []error {
	return []error{ErrDirectoryReload, e.Err}
}
