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

// Package core provides the core business logic for the autocomplete
// service: text normalization, the prefix index, scoring, ingestion and
// the rebuild path.
package core

import "errors"

// Error taxonomy shared across the service. Callers match with
// errors.Is; adapters wrap the transient sentinels around the
// underlying cause.
var (
	// ErrInvalidInput marks client input that fails normalization or
	// violates a request bound. Never retried.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound marks an unknown admin target (phrase not present).
	ErrNotFound = errors.New("not found")

	// ErrRebuildInProgress is returned when a rebuild is requested while
	// another one is still running.
	ErrRebuildInProgress = errors.New("rebuild in progress")

	// ErrPersistenceUnavailable wraps transient storage failures. The
	// flusher retries these; admin operations surface them.
	ErrPersistenceUnavailable = errors.New("persistence unavailable")

	// ErrCacheUnavailable wraps shared-cache failures. The query path
	// degrades by bypassing the cache instead of failing.
	ErrCacheUnavailable = errors.New("cache unavailable")

	// ErrFatalInvariant marks an internal invariant breach in the index.
	// The service responds by forcing a rebuild.
	ErrFatalInvariant = errors.New("fatal invariant violation")
)
