package store

import (
	"context"
	"fmt"

	"github.com/roach88/gqlc/internal/backend"
)

// Put stores res under key. Uses ON CONFLICT(key) DO NOTHING: keys are
// content addresses, so an existing entry already holds the same result.
func (s *Store) Put(ctx context.Context, key string, res *backend.CompilationResult) error {
	if key == "" {
		return fmt.Errorf("put result: empty key")
	}
	data, err := marshalResult(res)
	if err != nil {
		return fmt.Errorf("put result: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO results (key, backend, fingerprint, result)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO NOTHING
	`, key, string(res.Backend), res.Fingerprint, data)
	if err != nil {
		return fmt.Errorf("put result: %w", err)
	}
	return nil
}
