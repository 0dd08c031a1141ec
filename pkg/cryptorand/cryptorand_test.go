// Copyright 2020 Presidenza del Consiglio dei Ministri
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cryptorand

import (
	"math/rand"
	"testing"
)

func TestSeedIsIgnored(t *testing.T) {
	t.Parallel()

	src := NewSource()
	src.Seed(42)
	other := NewSource()
	other.Seed(42)

	if src.Int63() == other.Int63() && src.Int63() == other.Int63() {
		t.Error("identically seeded sources should not produce the same stream")
	}
}

func TestInt63(t *testing.T) {
	t.Parallel()

	src := NewSource()
	seen := make(map[int64]struct{})
	for i := 0; i < 50; i++ {
		v := src.Int63()
		if v < 0 {
			t.Fatalf("Int63 returned negative value %d", v)
		}
		if _, ok := seen[v]; ok {
			t.Fatalf("value %d repeated", v)
		}
		seen[v] = struct{}{}
	}
}

func TestUint64(t *testing.T) {
	t.Parallel()

	src, ok := NewSource().(rand.Source64)
	if !ok {
		t.Fatal("source does not implement rand.Source64")
	}
	seen := make(map[uint64]struct{})
	for i := 0; i < 50; i++ {
		v := src.Uint64()
		if _, ok := seen[v]; ok {
			t.Fatalf("value %d repeated", v)
		}
		seen[v] = struct{}{}
	}
}
