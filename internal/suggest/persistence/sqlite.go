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

package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"typeahead/internal/suggest/core"
)

// SQLStore implements core.Store on database/sql. It is written against
// SQLite's upsert dialect; any engine with per-row atomic upserts and
// transactions would do.
type SQLStore struct {
	db *sql.DB
	// Per-call timeout fallback when the caller's ctx has no deadline.
	defaultTimeout time.Duration
}

// Open opens (or creates) the store at path and ensures the schema.
// Use ":memory:" for tests.
func Open(path string) (*SQLStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", core.ErrPersistenceUnavailable, path, err)
	}
	// SQLite handles one writer; a single pooled connection also keeps
	// ":memory:" databases coherent across calls.
	db.SetMaxOpenConns(1)
	s := NewSQLStore(db)
	if err := s.EnsureSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLStore wraps an existing handle.
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db, defaultTimeout: 2 * time.Second}
}

// EnsureSchema creates tables and indexes if missing.
func (s *SQLStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("%w: ensure schema: %w", core.ErrPersistenceUnavailable, err)
	}
	return nil
}

// Close releases the handle.
func (s *SQLStore) Close() error { return s.db.Close() }

func (s *SQLStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); !ok && s.defaultTimeout > 0 {
		return context.WithTimeout(ctx, s.defaultTimeout)
	}
	return ctx, func() {}
}

// LoadAll pages over non-filtered phrases in phrase order.
func (s *SQLStore) LoadAll(ctx context.Context, afterPhrase string, batch int) ([]core.PhraseRow, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if batch <= 0 {
		batch = 1000
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT phrase, count, last_updated, filtered
		   FROM phrases
		  WHERE filtered = 0 AND phrase > ?
		  ORDER BY phrase
		  LIMIT ?`, afterPhrase, batch)
	if err != nil {
		return nil, fmt.Errorf("%w: load all: %w", core.ErrPersistenceUnavailable, err)
	}
	defer rows.Close()

	var out []core.PhraseRow
	for rows.Next() {
		var r core.PhraseRow
		var updated int64
		var filtered int
		if err := rows.Scan(&r.Phrase, &r.Count, &updated, &filtered); err != nil {
			return nil, fmt.Errorf("%w: load all scan: %w", core.ErrPersistenceUnavailable, err)
		}
		r.LastUpdated = time.Unix(updated, 0)
		r.Filtered = filtered != 0
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: load all rows: %w", core.ErrPersistenceUnavailable, err)
	}
	return out, nil
}

// UpsertBatch applies all deltas in one transaction, guarded by the
// batch idempotency marker: a batch_id seen before commits nothing.
func (s *SQLStore) UpsertBatch(ctx context.Context, batchID string, ups []core.Upsert) error {
	if len(ups) == 0 {
		return nil
	}
	if batchID == "" {
		return fmt.Errorf("batch id must be set")
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %w", core.ErrPersistenceUnavailable, err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO applied_batches(batch_id, applied_at) VALUES (?, ?)
		 ON CONFLICT(batch_id) DO NOTHING`,
		batchID, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("%w: batch marker: %w", core.ErrPersistenceUnavailable, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// Batch already applied; retry is a no-op.
		return tx.Commit()
	}

	for _, up := range ups {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO phrases(phrase, count, last_updated) VALUES (?, ?, ?)
			 ON CONFLICT(phrase) DO UPDATE SET
			   count = count + excluded.count,
			   last_updated = excluded.last_updated`,
			up.Phrase, up.Delta, up.At.Unix()); err != nil {
			return fmt.Errorf("%w: upsert %q: %w", core.ErrPersistenceUnavailable, up.Phrase, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %w", core.ErrPersistenceUnavailable, err)
	}
	return nil
}

// SeedPhrase adds count to a phrase outside the batch path (admin).
func (s *SQLStore) SeedPhrase(ctx context.Context, phrase string, count int64, at time.Time) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO phrases(phrase, count, last_updated) VALUES (?, ?, ?)
		 ON CONFLICT(phrase) DO UPDATE SET
		   count = count + excluded.count,
		   last_updated = excluded.last_updated`,
		phrase, count, at.Unix()); err != nil {
		return fmt.Errorf("%w: seed %q: %w", core.ErrPersistenceUnavailable, phrase, err)
	}
	return nil
}

// AddFiltered records a moderation entry and flags the phrase row if
// present.
func (s *SQLStore) AddFiltered(ctx context.Context, phrase, reason string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %w", core.ErrPersistenceUnavailable, err)
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO filtered_phrases(phrase, reason, added_at) VALUES (?, ?, ?)
		 ON CONFLICT(phrase) DO UPDATE SET reason = excluded.reason`,
		phrase, reason, time.Now().Unix()); err != nil {
		return fmt.Errorf("%w: add filtered: %w", core.ErrPersistenceUnavailable, err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE phrases SET filtered = 1 WHERE phrase = ?`, phrase); err != nil {
		return fmt.Errorf("%w: flag filtered: %w", core.ErrPersistenceUnavailable, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %w", core.ErrPersistenceUnavailable, err)
	}
	return nil
}

// RemoveFiltered clears a moderation entry; reports whether it existed.
func (s *SQLStore) RemoveFiltered(ctx context.Context, phrase string) (bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("%w: begin: %w", core.ErrPersistenceUnavailable, err)
	}
	defer func() { _ = tx.Rollback() }()
	res, err := tx.ExecContext(ctx,
		`DELETE FROM filtered_phrases WHERE phrase = ?`, phrase)
	if err != nil {
		return false, fmt.Errorf("%w: remove filtered: %w", core.ErrPersistenceUnavailable, err)
	}
	n, _ := res.RowsAffected()
	if _, err := tx.ExecContext(ctx,
		`UPDATE phrases SET filtered = 0 WHERE phrase = ?`, phrase); err != nil {
		return false, fmt.Errorf("%w: unflag filtered: %w", core.ErrPersistenceUnavailable, err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("%w: commit: %w", core.ErrPersistenceUnavailable, err)
	}
	return n > 0, nil
}

// ListFiltered returns all moderation entries.
func (s *SQLStore) ListFiltered(ctx context.Context) ([]core.FilteredPhrase, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	rows, err := s.db.QueryContext(ctx,
		`SELECT phrase, reason, added_at FROM filtered_phrases ORDER BY phrase`)
	if err != nil {
		return nil, fmt.Errorf("%w: list filtered: %w", core.ErrPersistenceUnavailable, err)
	}
	defer rows.Close()
	var out []core.FilteredPhrase
	for rows.Next() {
		var fp core.FilteredPhrase
		var added int64
		if err := rows.Scan(&fp.Phrase, &fp.Reason, &added); err != nil {
			return nil, fmt.Errorf("%w: list filtered scan: %w", core.ErrPersistenceUnavailable, err)
		}
		fp.AddedAt = time.Unix(added, 0)
		out = append(out, fp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list filtered rows: %w", core.ErrPersistenceUnavailable, err)
	}
	return out, nil
}

// Count returns a phrase's persisted count, for tests and admin
// inspection. ErrNotFound when the phrase is unknown.
func (s *SQLStore) Count(ctx context.Context, phrase string) (int64, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	var n int64
	err := s.db.QueryRowContext(ctx,
		`SELECT count FROM phrases WHERE phrase = ?`, phrase).Scan(&n)
	if err == sql.ErrNoRows {
		return 0, fmt.Errorf("%w: %q", core.ErrNotFound, phrase)
	}
	if err != nil {
		return 0, fmt.Errorf("%w: count %q: %w", core.ErrPersistenceUnavailable, phrase, err)
	}
	return n, nil
}
