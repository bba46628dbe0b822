// Package userdir resolves user display data from the task-management
// application database. The realtime server never writes to that database;
// it only reads the users table to decorate call invitations.
package userdir

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/loopboard/realtime/internal/slogging"
)

// UserInfo is the display data resolved for one user.
type UserInfo struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Directory looks up users with a small TTL cache in front of the pool.
// Call signaling hits the directory on every invitation, and user display
// data changes rarely enough that short staleness is invisible.
type Directory struct {
	pool   *pgxpool.Pool
	ttl    time.Duration
	logger *slogging.Logger

	mu    sync.RWMutex
	cache map[string]cacheEntry
}

type cacheEntry struct {
	info      UserInfo
	expiresAt time.Time
}

// New connects a directory to the application database and verifies the
// connection before returning.
func New(ctx context.Context, connString string, cacheTTL time.Duration) (*Directory, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	return &Directory{
		pool:   pool,
		ttl:    cacheTTL,
		logger: slogging.Get(),
		cache:  make(map[string]cacheEntry),
	}, nil
}

// Lookup resolves display data for a batch of users. Unknown IDs are simply
// absent from the result map. A partial result plus an error is possible
// when the database fails after some IDs were answered from cache.
func (d *Directory) Lookup(ctx context.Context, userIDs []string) (map[string]UserInfo, error) {
	result, missing := d.fromCache(userIDs)
	if len(missing) == 0 {
		return result, nil
	}

	rows, err := d.pool.Query(ctx, "SELECT id, name, email FROM users WHERE id = ANY($1)", missing)
	if err != nil {
		return result, fmt.Errorf("user lookup query failed: %w", err)
	}
	defer rows.Close()

	fetched := make([]UserInfo, 0, len(missing))
	for rows.Next() {
		var info UserInfo
		if err := rows.Scan(&info.ID, &info.Name, &info.Email); err != nil {
			return result, fmt.Errorf("user lookup scan failed: %w", err)
		}
		result[info.ID] = info
		fetched = append(fetched, info)
	}
	if err := rows.Err(); err != nil {
		return result, fmt.Errorf("user lookup rows failed: %w", err)
	}

	d.storeCache(fetched)
	d.logger.Debug("[userdir] resolved %d of %d users from database", len(fetched), len(missing))
	return result, nil
}

// fromCache answers what it can and reports the IDs that need the database.
func (d *Directory) fromCache(userIDs []string) (map[string]UserInfo, []string) {
	result := make(map[string]UserInfo, len(userIDs))
	var missing []string

	now := time.Now()
	d.mu.RLock()
	for _, userID := range userIDs {
		if entry, ok := d.cache[userID]; ok && now.Before(entry.expiresAt) {
			result[userID] = entry.info
		} else {
			missing = append(missing, userID)
		}
	}
	d.mu.RUnlock()
	return result, missing
}

func (d *Directory) storeCache(infos []UserInfo) {
	d.mu.Lock()
	expiresAt := time.Now().Add(d.ttl)
	for _, info := range infos {
		d.cache[info.ID] = cacheEntry{info: info, expiresAt: expiresAt}
	}
	d.mu.Unlock()
}

// Ping reports whether the database is reachable.
func (d *Directory) Ping(ctx context.Context) error {
	return d.pool.Ping(ctx)
}

// Close releases the connection pool.
func (d *Directory) Close() {
	d.pool.Close()
}
