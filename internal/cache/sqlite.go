package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/sells-group/company-research/internal/config"
)

// Store is the sqlite-backed research cache. A connection that goes bad
// mid-run is reconnected and re-provisioned on the next operation, which then
// retries once.
type Store struct {
	mu   sync.Mutex
	db   *sql.DB
	path string
	ttls map[Namespace]time.Duration
	hot  *gocache.Cache
}

// Open opens (or creates) the cache database. A corrupt database file is
// backed up alongside the original and a fresh one is created in its place,
// so a damaged cache can never stop a run.
func Open(cfg config.CacheConfig) (*Store, error) {
	db, err := openAndMigrate(cfg.Path)
	if err != nil {
		zap.L().Warn("cache: database unusable, recreating",
			zap.String("path", cfg.Path),
			zap.Error(err),
		)
		if healErr := quarantine(cfg.Path); healErr != nil {
			return nil, eris.Wrap(healErr, "cache: quarantine corrupt db")
		}
		db, err = openAndMigrate(cfg.Path)
		if err != nil {
			return nil, eris.Wrap(err, "cache: reopen after quarantine")
		}
	}

	hotTTL := time.Duration(cfg.HotTTLMinutes) * time.Minute
	if hotTTL <= 0 {
		hotTTL = 30 * time.Minute
	}

	return &Store{
		db:   db,
		path: cfg.Path,
		ttls: map[Namespace]time.Duration{
			NamespaceSearch:  cfg.SearchTTL(),
			NamespaceScrape:  cfg.ScrapeTTL(),
			NamespaceCompany: cfg.CompanyTTL(),
			NamespacePerson:  cfg.PersonTTL(),
		},
		hot: gocache.New(hotTTL, 2*hotTTL),
	}, nil
}

func openAndMigrate(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrap(err, "cache: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "cache: exec %s", pragma)
		}
	}
	if _, err := db.Exec(migration); err != nil {
		db.Close()
		return nil, eris.Wrap(err, "cache: migrate")
	}
	return db, nil
}

const migration = `
CREATE TABLE IF NOT EXISTS entries (
	namespace  TEXT NOT NULL,
	key        TEXT NOT NULL,
	payload    TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	expires_at DATETIME NOT NULL,
	PRIMARY KEY (namespace, key)
);

CREATE INDEX IF NOT EXISTS idx_entries_expires_at ON entries(expires_at);
`

func quarantine(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	backup := fmt.Sprintf("%s.corrupt.%d", path, time.Now().Unix())
	if err := os.Rename(path, backup); err != nil {
		return eris.Wrap(err, "cache: rename corrupt db")
	}
	for _, sidecar := range []string{path + "-wal", path + "-shm"} {
		os.Remove(sidecar)
	}
	zap.L().Info("cache: corrupt database quarantined", zap.String("backup", backup))
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

func (s *Store) conn() *sql.DB {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db
}

// heal recovers the database after a failed operation and reports whether the
// caller should retry. A live connection gets its schema re-provisioned; a
// dead one is reopened from the path. Misses and context errors never heal.
func (s *Store) heal(ctx context.Context, cause error) bool {
	if cause == nil || errors.Is(cause, sql.ErrNoRows) ||
		errors.Is(cause, context.Canceled) || errors.Is(cause, context.DeadlineExceeded) {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.db.PingContext(ctx); err == nil {
		if _, err := s.db.ExecContext(ctx, migration); err == nil {
			return true
		}
	}

	db, err := openAndMigrate(s.path)
	if err != nil {
		zap.L().Warn("cache: reconnect failed", zap.String("path", s.path), zap.Error(err))
		return false
	}
	s.db.Close()
	s.db = db
	zap.L().Info("cache: reconnected", zap.String("path", s.path), zap.Error(cause))
	return true
}

func (s *Store) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	res, err := s.conn().ExecContext(ctx, query, args...)
	if err != nil && s.heal(ctx, err) {
		res, err = s.conn().ExecContext(ctx, query, args...)
	}
	return res, err
}

// Get loads the entry into v. It returns false on a miss, an expired entry, or
// any read/decode failure. Errors are logged and swallowed.
func (s *Store) Get(ctx context.Context, ns Namespace, key string, v any) bool {
	if !ns.Valid() {
		return false
	}

	if ns == NamespaceSearch {
		if raw, ok := s.hot.Get(hotKey(ns, key)); ok {
			if err := json.Unmarshal(raw.([]byte), v); err == nil {
				return true
			}
		}
	}

	payload, err := s.readPayload(ctx, ns, key)
	if err != nil && s.heal(ctx, err) {
		payload, err = s.readPayload(ctx, ns, key)
	}
	switch {
	case err == sql.ErrNoRows:
		return false
	case err != nil:
		zap.L().Warn("cache: read failed, treating as miss",
			zap.String("namespace", string(ns)),
			zap.Error(err),
		)
		return false
	}

	if err := json.Unmarshal([]byte(payload), v); err != nil {
		zap.L().Warn("cache: undecodable entry, treating as miss",
			zap.String("namespace", string(ns)),
			zap.Error(err),
		)
		return false
	}

	if ns == NamespaceSearch {
		s.hot.SetDefault(hotKey(ns, key), []byte(payload))
	}
	return true
}

func (s *Store) readPayload(ctx context.Context, ns Namespace, key string) (string, error) {
	var payload string
	err := s.conn().QueryRowContext(ctx,
		`SELECT payload FROM entries WHERE namespace = ? AND key = ? AND expires_at > ?`,
		string(ns), key, time.Now().UTC(),
	).Scan(&payload)
	return payload, err
}

// Set stores v under the namespace TTL. Failures are logged and swallowed so
// a broken cache degrades to pass-through.
func (s *Store) Set(ctx context.Context, ns Namespace, key string, v any) {
	if !ns.Valid() {
		return
	}

	payload, err := json.Marshal(v)
	if err != nil {
		zap.L().Warn("cache: marshal failed, skipping write",
			zap.String("namespace", string(ns)),
			zap.Error(err),
		)
		return
	}

	now := time.Now().UTC()
	_, err = s.exec(ctx,
		`INSERT INTO entries (namespace, key, payload, created_at, expires_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(namespace, key) DO UPDATE SET
		   payload = excluded.payload,
		   created_at = excluded.created_at,
		   expires_at = excluded.expires_at`,
		string(ns), key, string(payload), now, now.Add(s.ttls[ns]),
	)
	if err != nil {
		zap.L().Warn("cache: write failed, continuing",
			zap.String("namespace", string(ns)),
			zap.Error(err),
		)
		return
	}

	if ns == NamespaceSearch {
		s.hot.SetDefault(hotKey(ns, key), []byte(payload))
	}
}

// Delete removes one entry.
func (s *Store) Delete(ctx context.Context, ns Namespace, key string) error {
	if !ns.Valid() {
		return eris.Errorf("cache: unknown namespace %q", ns)
	}
	s.hot.Delete(hotKey(ns, key))
	_, err := s.exec(ctx,
		`DELETE FROM entries WHERE namespace = ? AND key = ?`, string(ns), key)
	return eris.Wrap(err, "cache: delete")
}

// Clear drops every entry in a namespace and returns the number removed.
func (s *Store) Clear(ctx context.Context, ns Namespace) (int, error) {
	if !ns.Valid() {
		return 0, eris.Errorf("cache: unknown namespace %q", ns)
	}
	s.hot.Flush()
	res, err := s.exec(ctx, `DELETE FROM entries WHERE namespace = ?`, string(ns))
	if err != nil {
		return 0, eris.Wrapf(err, "cache: clear %s", ns)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// Cleanup purges expired entries across all namespaces.
func (s *Store) Cleanup(ctx context.Context) (int, error) {
	res, err := s.exec(ctx, `DELETE FROM entries WHERE expires_at <= ?`, time.Now().UTC())
	if err != nil {
		return 0, eris.Wrap(err, "cache: cleanup")
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// NamespaceStats describes one namespace's contents.
type NamespaceStats struct {
	Entries int `json:"entries"`
	Expired int `json:"expired"`
}

// Stats describes the whole cache.
type Stats struct {
	Path       string                       `json:"path"`
	Total      int                          `json:"total"`
	Expired    int                          `json:"expired"`
	Namespaces map[Namespace]NamespaceStats `json:"namespaces"`
}

// Stats reports per-namespace entry counts.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	stats := Stats{Path: s.path, Namespaces: make(map[Namespace]NamespaceStats)}

	statsQuery := `SELECT namespace,
	        COUNT(*),
	        SUM(CASE WHEN expires_at <= ? THEN 1 ELSE 0 END)
	 FROM entries GROUP BY namespace`
	rows, err := s.conn().QueryContext(ctx, statsQuery, time.Now().UTC())
	if err != nil && s.heal(ctx, err) {
		rows, err = s.conn().QueryContext(ctx, statsQuery, time.Now().UTC())
	}
	if err != nil {
		return stats, eris.Wrap(err, "cache: stats query")
	}
	defer rows.Close()

	for rows.Next() {
		var ns string
		var count int
		var expired sql.NullInt64
		if err := rows.Scan(&ns, &count, &expired); err != nil {
			return stats, eris.Wrap(err, "cache: stats scan")
		}
		nsStats := NamespaceStats{Entries: count, Expired: int(expired.Int64)}
		stats.Namespaces[Namespace(ns)] = nsStats
		stats.Total += count
		stats.Expired += nsStats.Expired
	}
	return stats, eris.Wrap(rows.Err(), "cache: stats rows")
}

func hotKey(ns Namespace, key string) string {
	return string(ns) + ":" + key
}
