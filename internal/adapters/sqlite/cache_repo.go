package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/Guilhem-Bonnet/auvio-podcast/internal/ports"
)

// CacheRepository implémente ports.Cache sur la table cache_entries.
// Une entrée expirée est invisible pour Get; Purge la supprime physiquement.
type CacheRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewCacheRepository(db *sql.DB) *CacheRepository {
	return &CacheRepository{db: db, now: time.Now}
}

func (r *CacheRepository) WithClock(now func() time.Time) *CacheRepository {
	if now != nil {
		r.now = now
	}
	return r
}

func (r *CacheRepository) Get(ctx context.Context, namespace, key string) ([]byte, error) {
	var b []byte
	err := r.db.QueryRowContext(ctx, `
		SELECT value_json FROM cache_entries
		WHERE namespace = ? AND key = ? AND (expires_at = 0 OR expires_at > ?)
	`, namespace, key, r.now().UnixMilli()).Scan(&b)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ports.ErrNotFound
		}
		return nil, err
	}
	return b, nil
}

// Put remplace l'entrée. ttl <= 0 : pas d'expiration.
func (r *CacheRepository) Put(ctx context.Context, namespace, key string, value []byte, ttl time.Duration) error {
	now := r.now()
	var expiresAt int64
	if ttl > 0 {
		expiresAt = now.Add(ttl).UnixMilli()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO cache_entries(namespace, key, value_json, expires_at, updated_at)
		VALUES(?, ?, ?, ?, ?)
		ON CONFLICT(namespace, key) DO UPDATE SET
			value_json = excluded.value_json,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at
	`, namespace, key, value, expiresAt, now.UTC().Format(time.RFC3339))
	return err
}

func (r *CacheRepository) Delete(ctx context.Context, namespace, key string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE namespace = ? AND key = ?`, namespace, key)
	return err
}

// Purge supprime les entrées expirées et renvoie leur nombre.
func (r *CacheRepository) Purge(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE expires_at > 0 AND expires_at <= ?`, r.now().UnixMilli())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Stats compte les entrées vivantes par namespace.
func (r *CacheRepository) Stats(ctx context.Context) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT namespace, COUNT(*) FROM cache_entries
		WHERE expires_at = 0 OR expires_at > ?
		GROUP BY namespace
	`, r.now().UnixMilli())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]int{}
	for rows.Next() {
		var ns string
		var n int
		if err := rows.Scan(&ns, &n); err != nil {
			return nil, err
		}
		out[ns] = n
	}
	return out, rows.Err()
}
