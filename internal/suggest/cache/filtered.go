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

package cache

import (
	"context"
	"fmt"

	redis "github.com/redis/go-redis/v9"

	"typeahead/internal/suggest/core"
)

const filteredMirrorKey = "filtered:mirror"

// FilteredMirror is the shared-cache copy of the moderation set, so
// sibling processes can refresh their in-memory filters without a
// persistence read.
type FilteredMirror struct {
	rdb redis.UniversalClient
}

// NewFilteredMirror wraps the Redis set.
func NewFilteredMirror(rdb redis.UniversalClient) *FilteredMirror {
	return &FilteredMirror{rdb: rdb}
}

// Add inserts a phrase into the mirror.
func (m *FilteredMirror) Add(ctx context.Context, phrase string) error {
	if err := m.rdb.SAdd(ctx, filteredMirrorKey, phrase).Err(); err != nil {
		return fmt.Errorf("%w: filtered mirror add: %v", core.ErrCacheUnavailable, err)
	}
	return nil
}

// Remove deletes a phrase from the mirror.
func (m *FilteredMirror) Remove(ctx context.Context, phrase string) error {
	if err := m.rdb.SRem(ctx, filteredMirrorKey, phrase).Err(); err != nil {
		return fmt.Errorf("%w: filtered mirror remove: %v", core.ErrCacheUnavailable, err)
	}
	return nil
}

// Replace rewrites the whole mirror, used at bootstrap.
func (m *FilteredMirror) Replace(ctx context.Context, phrases []string) error {
	pipe := m.rdb.TxPipeline()
	pipe.Del(ctx, filteredMirrorKey)
	if len(phrases) > 0 {
		members := make([]interface{}, len(phrases))
		for i, p := range phrases {
			members[i] = p
		}
		pipe.SAdd(ctx, filteredMirrorKey, members...)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: filtered mirror replace: %v", core.ErrCacheUnavailable, err)
	}
	return nil
}

// Members returns the mirrored set, for sibling-process refreshes.
func (m *FilteredMirror) Members(ctx context.Context) ([]string, error) {
	members, err := m.rdb.SMembers(ctx, filteredMirrorKey).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: filtered mirror read: %v", core.ErrCacheUnavailable, err)
	}
	return members, nil
}
