// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// CacheLookup returns the cached payload for a query digest. The second
// return value reports a hit. Presence implies validity: the cache
// carries no TTL, and invalidation is the caller's job (bypass and
// repopulate after the corpus changes materially).
func (s *Store) CacheLookup(ctx context.Context, queryHash string) ([]byte, bool, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM query_cache WHERE query_hash = ?`, queryHash,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("querying cache: %w", err)
	}
	return payload, true, nil
}

// CacheStore upserts (digest, original text, payload, now). Last writer
// wins; there is no versioning.
func (s *Store) CacheStore(ctx context.Context, queryHash, originalText string, payload []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO query_cache (query_hash, original_text, payload, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(query_hash) DO UPDATE SET
			payload       = excluded.payload,
			original_text = excluded.original_text,
			updated_at    = excluded.updated_at`,
		queryHash, originalText, payload, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("storing cache entry: %w", err)
	}
	return nil
}
