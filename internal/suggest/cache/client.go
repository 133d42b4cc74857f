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

// Package cache implements the shared-cache collaborators on Redis:
// the suggestion cache, the trending window, per-user history and the
// filtered-set mirror. Key names are the cross-process interface
// contract:
//
//	sugg:{prefix}:{limit}:{fuzzy}:{userBucket}  JSON result list, TTL 60s
//	trending / trending:ts                      decayed sorted set + last-bump index
//	history:{userID} / history:{userID}:counts  bounded recency zset + counts hash
//	filtered:mirror                             moderation set
package cache

import (
	"strings"

	redis "github.com/redis/go-redis/v9"
)

// NewClient returns a Redis client for the given address, e.g.
// "127.0.0.1:6379".
func NewClient(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{Addr: addr})
}

// escapeGlob neutralizes glob metacharacters so a phrase can be used
// inside a SCAN MATCH pattern verbatim.
func escapeGlob(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)
	return r.Replace(s)
}
