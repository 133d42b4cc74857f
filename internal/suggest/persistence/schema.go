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

// Package persistence implements the durable phrase store on
// database/sql. The normalized phrase is the primary key; counts are
// monotonically non-decreasing except by explicit admin action.
// Batches carry an idempotency id so a retried flush is a no-op.
package persistence

// schema creates the phrase store. Timestamps are unix seconds.
const schema = `
CREATE TABLE IF NOT EXISTS phrases (
  phrase       TEXT PRIMARY KEY,
  count        INTEGER NOT NULL DEFAULT 0 CHECK (count >= 0),
  last_updated INTEGER NOT NULL,
  filtered     INTEGER NOT NULL DEFAULT 0
);

-- Offline top-phrases queries page by count.
CREATE INDEX IF NOT EXISTS idx_phrases_count ON phrases(count DESC);

CREATE TABLE IF NOT EXISTS filtered_phrases (
  phrase   TEXT PRIMARY KEY,
  reason   TEXT NOT NULL DEFAULT '',
  added_at INTEGER NOT NULL
);

-- Idempotency markers: one row per applied flush batch.
CREATE TABLE IF NOT EXISTS applied_batches (
  batch_id   TEXT PRIMARY KEY,
  applied_at INTEGER NOT NULL
);
`
