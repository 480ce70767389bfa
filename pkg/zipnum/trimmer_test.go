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
	"reflect"
	"testing"
)

func TestTrimBounds(t *testing.T) {
	src := &sliceRecords{items: []string{"a 1", "b 1", "b 2", "c 1", "d 1", "e 1"}}
	got := readStrings(t, Trim(src, "b", "d"))
	want := []string{"b 1", "b 2", "c 1"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	if src.reads != 5 {
		t.Fatalf("trim must stop at the first record past the end, read %d", src.reads)
	}
}

func TestTrimUnbounded(t *testing.T) {
	got := readStrings(t, Trim(&sliceRecords{items: []string{"a", "b", "c"}}, "b", ""))
	if !reflect.DeepEqual(got, []string{"b", "c"}) {
		t.Fatalf("unexpected records %v", got)
	}
}

func TestTrimEmptyRange(t *testing.T) {
	got := readStrings(t, Trim(&sliceRecords{items: []string{"a", "b"}}, "x", "z"))
	if len(got) != 0 {
		t.Fatalf("expected no records, got %v", got)
	}
}
