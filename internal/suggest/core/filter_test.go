// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
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

package core

import "testing"

func TestFilter_AddRemove(t *testing.T) {
	f := NewFilter()
	if f.IsFiltered("badword") {
		t.Fatal("empty filter reports membership")
	}
	f.Add("badword")
	if !f.IsFiltered("badword") {
		t.Fatal("added phrase not filtered")
	}
	if f.Len() != 1 {
		t.Errorf("Len = %d, want 1", f.Len())
	}
	if !f.Remove("badword") {
		t.Fatal("Remove of present phrase reported false")
	}
	if f.Remove("badword") {
		t.Fatal("Remove of absent phrase reported true")
	}
	if f.IsFiltered("badword") {
		t.Fatal("removed phrase still filtered")
	}
}

func TestFilter_Replace(t *testing.T) {
	f := NewFilter()
	f.Add("old")
	f.Replace([]string{"a", "b"})
	if f.IsFiltered("old") {
		t.Error("Replace kept prior membership")
	}
	if !f.IsFiltered("a") || !f.IsFiltered("b") {
		t.Error("Replace dropped new membership")
	}
	if f.Len() != 2 {
		t.Errorf("Len = %d, want 2", f.Len())
	}
}

func TestUserBucket(t *testing.T) {
	if UserBucket("") != 0 {
		t.Error("anonymous bucket must be 0")
	}
	b := UserBucket("user-123")
	if b < 0 || b >= UserBucketCount {
		t.Fatalf("bucket %d out of range", b)
	}
	if UserBucket("user-123") != b {
		t.Error("bucket not stable for same user")
	}
}
