package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/gqlc/internal/backend"
)

// ErrCorrupt is wrapped by Get when a stored result no longer matches its
// fingerprint.
var ErrCorrupt = errors.New("cached result does not match its fingerprint")

// Get returns the result stored under key. ok is false on a miss. A hit
// increments the entry's hit counter.
func (s *Store) Get(ctx context.Context, key string) (*backend.CompilationResult, bool, error) {
	var fingerprint, data string
	err := s.db.QueryRowContext(ctx, `
		SELECT fingerprint, result FROM results WHERE key = ?
	`, key).Scan(&fingerprint, &data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get result: %w", err)
	}

	res, err := unmarshalResult(data)
	if err != nil {
		return nil, false, fmt.Errorf("get result %s: %w", key, err)
	}
	if err := verify(res, fingerprint); err != nil {
		return nil, false, fmt.Errorf("get result %s: %w", key, err)
	}

	if _, err := s.db.ExecContext(ctx, `UPDATE results SET hits = hits + 1 WHERE key = ?`, key); err != nil {
		return nil, false, fmt.Errorf("get result: %w", err)
	}
	return res, true, nil
}

// verify recomputes the fingerprint of res.
func verify(res *backend.CompilationResult, fingerprint string) error {
	if res.Fingerprint != fingerprint {
		return ErrCorrupt
	}
	again, err := backend.NewResult(res.Backend, res.Query, res.Parameters, res.Outputs)
	if err != nil {
		return err
	}
	if again.Fingerprint != fingerprint {
		return ErrCorrupt
	}
	return nil
}

// Entry describes one cached result.
type Entry struct {
	Key         string     `json:"key"`
	Backend     backend.ID `json:"backend"`
	Fingerprint string     `json:"fingerprint"`
	Hits        int64      `json:"hits"`
}

// Stats summarizes the cache.
type Stats struct {
	Entries   int64                `json:"entries"`
	Hits      int64                `json:"hits"`
	ByBackend map[backend.ID]int64 `json:"by_backend"`
}

// Entries lists every entry ordered by backend, then key.
func (s *Store) Entries(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT key, backend, fingerprint, hits
		FROM results
		ORDER BY backend ASC, key COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var e Entry
		var id string
		if err := rows.Scan(&e.Key, &id, &e.Fingerprint, &e.Hits); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		e.Backend = backend.ID(id)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	return entries, nil
}

// Stats returns entry and hit totals.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	entries, err := s.Entries(ctx)
	if err != nil {
		return Stats{}, err
	}
	st := Stats{ByBackend: make(map[backend.ID]int64)}
	for _, e := range entries {
		st.Entries++
		st.Hits += e.Hits
		st.ByBackend[e.Backend]++
	}
	return st, nil
}
