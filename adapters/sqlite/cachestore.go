package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/artpar/apiward/domain/govern"
	"github.com/artpar/apiward/ports"
)

// CacheStore is a SQLite implementation of ports.CacheStore.
// Stored copies survive process restarts, which is the whole point of
// offline tolerance: the cache must outlive the connection that filled it.
type CacheStore struct {
	db *DB
}

// NewCacheStore creates a new SQLite-backed cache store.
func NewCacheStore(db *DB) *CacheStore {
	return &CacheStore{db: db}
}

// Get retrieves a usable stored copy, or nil.
func (s *CacheStore) Get(ctx context.Context, key string, now time.Time, maxStale time.Duration) (*govern.CachedResponse, error) {
	var (
		status      int
		headersJSON string
		body        []byte
		storedAt    int64
		expiresAt   int64
	)

	row := s.db.QueryRowContext(ctx, `
		SELECT status, headers, body, stored_at, expires_at
		FROM response_cache
		WHERE key = ? AND expires_at + ? > ?
	`, key, int64(maxStale.Seconds()), now.UTC().Unix())

	if err := row.Scan(&status, &headersJSON, &body, &storedAt, &expiresAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch cached response: %w", err)
	}

	var headers map[string]string
	if headersJSON != "" {
		if err := json.Unmarshal([]byte(headersJSON), &headers); err != nil {
			return nil, fmt.Errorf("decode cached headers: %w", err)
		}
	}

	stored := time.Unix(storedAt, 0).UTC()
	return &govern.CachedResponse{
		Status:   status,
		Headers:  headers,
		Body:     body,
		StoredAt: stored,
		MaxAge:   time.Duration(expiresAt-storedAt) * time.Second,
	}, nil
}

// Put stores a response copy, replacing any previous one for the key.
func (s *CacheStore) Put(ctx context.Context, key string, resp govern.CachedResponse) error {
	if key == "" {
		return errors.New("cache key is required")
	}

	headersJSON, err := json.Marshal(resp.Headers)
	if err != nil {
		return fmt.Errorf("encode cached headers: %w", err)
	}

	stored := resp.StoredAt.UTC()
	expires := stored.Add(resp.MaxAge)

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO response_cache (key, status, headers, body, stored_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			status = excluded.status,
			headers = excluded.headers,
			body = excluded.body,
			stored_at = excluded.stored_at,
			expires_at = excluded.expires_at
	`, key, resp.Status, string(headersJSON), resp.Body, stored.Unix(), expires.Unix())
	if err != nil {
		return fmt.Errorf("store cached response: %w", err)
	}

	return nil
}

// Purge removes copies whose freshness window ended before cutoff.
func (s *CacheStore) Purge(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM response_cache WHERE expires_at < ?
	`, cutoff.UTC().Unix())
	if err != nil {
		return 0, fmt.Errorf("purge cached responses: %w", err)
	}
	return res.RowsAffected()
}

// Ensure interface compliance.
var _ ports.CacheStore = (*CacheStore)(nil)
