package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"jomra/internal/domain"
)

// Store implements domain.PersistentStore and domain.PreferenceStore on a
// single SQLite file. Embeddings are stored as little-endian float32 blobs and
// loaded lazily: row queries skip the blob column, then attachEmbeddings fills
// vectors from the decoded cache or one batched lookup.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
	dbPath string
	cache  *embeddingCache
}

// Option configures a Store.
type Option func(*options)

type options struct {
	cacheSize int
}

// WithEmbeddingCache bounds the decoded-embedding cache. 0 disables it.
func WithEmbeddingCache(n int) Option {
	return func(o *options) { o.cacheSize = n }
}

// New opens (or creates) a SQLite database at dbPath and runs migrations.
func New(dbPath string, logger *slog.Logger, opts ...Option) (*Store, error) {
	o := options{cacheSize: 1000}
	for _, fn := range opts {
		fn(&o)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("%w: open db: %v", domain.ErrMemoryStore, err)
	}

	// SQLite write safety: single writer.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%w: pragma: %v", domain.ErrMemoryStore, err)
		}
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: migrate: %v", domain.ErrMemoryStore, err)
	}

	cache, err := newEmbeddingCache(o.cacheSize)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", domain.ErrMemoryStore, err)
	}

	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger, dbPath: dbPath, cache: cache}, nil
}

// Close closes the database and releases the cache.
func (s *Store) Close() error {
	s.cache.close()
	return s.db.Close()
}

// Insert writes item, replacing any row with the same id.
func (s *Store) Insert(ctx context.Context, item domain.MemoryItem) error {
	if item.ID == "" {
		return fmt.Errorf("%w: insert: empty id", domain.ErrInvalidInput)
	}
	meta, err := json.Marshal(item.Metadata)
	if err != nil {
		return fmt.Errorf("%w: marshal metadata: %v", domain.ErrMemoryStore, err)
	}
	ts := item.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO memories (id, user_text, agent_text, ts_ms, importance, metadata, embedding)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		item.ID, item.UserText, item.AgentText, ts.UnixMilli(), item.Importance(), string(meta), float32ToBytes(item.Embedding),
	)
	if err != nil {
		return fmt.Errorf("%w: insert: %v", domain.ErrMemoryStore, err)
	}
	s.cache.put(item.ID, item.Embedding)
	return nil
}

// QueryRecent returns up to limit items, newest first.
func (s *Store) QueryRecent(ctx context.Context, limit int) ([]domain.MemoryItem, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_text, agent_text, ts_ms, importance, metadata
		 FROM memories ORDER BY ts_ms DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: query recent: %v", domain.ErrMemoryStore, err)
	}
	items, err := scanItems(rows)
	if err != nil {
		return nil, err
	}
	return items, s.attachEmbeddings(ctx, items)
}

// QueryPrioritized returns up to limit items that are newer than since or
// more important than minImportance.
func (s *Store) QueryPrioritized(ctx context.Context, since time.Time, minImportance float64, limit int) ([]domain.MemoryItem, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_text, agent_text, ts_ms, importance, metadata
		 FROM memories
		 WHERE ts_ms > ? OR importance > ?
		 ORDER BY importance DESC, ts_ms DESC
		 LIMIT ?`, since.UnixMilli(), minImportance, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: query prioritized: %v", domain.ErrMemoryStore, err)
	}
	items, err := scanItems(rows)
	if err != nil {
		return nil, err
	}
	return items, s.attachEmbeddings(ctx, items)
}

// DeleteAll removes every memory row. Preferences are left alone.
func (s *Store) DeleteAll(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM memories`); err != nil {
		return fmt.Errorf("%w: delete all: %v", domain.ErrMemoryStore, err)
	}
	s.cache.clear()
	return nil
}

// DeleteOlderThan removes rows older than cutoff with importance below
// importanceBelow.
func (s *Store) DeleteOlderThan(ctx context.Context, cutoff time.Time, importanceBelow float64) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM memories WHERE ts_ms < ? AND importance < ?`,
		cutoff.UnixMilli(), importanceBelow)
	if err != nil {
		return 0, fmt.Errorf("%w: prune: %v", domain.ErrMemoryStore, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: prune rows: %v", domain.ErrMemoryStore, err)
	}
	if n > 0 {
		s.logger.Debug("pruned memories", "count", n, "cutoff", cutoff)
	}
	return n, nil
}

// GetPreference reads a preference weight. ok is false when unset.
func (s *Store) GetPreference(ctx context.Context, key string) (float64, bool, error) {
	var v float64
	err := s.db.QueryRowContext(ctx, `SELECT value FROM preferences WHERE key = ?`, key).Scan(&v)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("%w: get preference: %v", domain.ErrMemoryStore, err)
	}
	return v, true, nil
}

// SetPreference upserts a preference weight.
func (s *Store) SetPreference(ctx context.Context, key string, value float64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO preferences (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("%w: set preference: %v", domain.ErrMemoryStore, err)
	}
	return nil
}

// DeletePreferences removes all preference weights.
func (s *Store) DeletePreferences(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM preferences`); err != nil {
		return fmt.Errorf("%w: delete preferences: %v", domain.ErrMemoryStore, err)
	}
	return nil
}

// attachEmbeddings fills item embeddings from the cache, then loads the
// misses in a single query.
func (s *Store) attachEmbeddings(ctx context.Context, items []domain.MemoryItem) error {
	missing := make(map[string]int)
	for i := range items {
		if vec, ok := s.cache.get(items[i].ID); ok {
			items[i].Embedding = vec
			continue
		}
		missing[items[i].ID] = i
	}
	if len(missing) == 0 {
		return nil
	}

	placeholders := make([]string, 0, len(missing))
	args := make([]any, 0, len(missing))
	for id := range missing {
		placeholders = append(placeholders, "?")
		args = append(args, id)
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, embedding FROM memories WHERE embedding IS NOT NULL AND id IN (`+strings.Join(placeholders, ",")+`)`,
		args...)
	if err != nil {
		return fmt.Errorf("%w: fetch embeddings: %v", domain.ErrMemoryStore, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id   string
			blob []byte
		)
		if err := rows.Scan(&id, &blob); err != nil {
			return fmt.Errorf("%w: scan embedding: %v", domain.ErrMemoryStore, err)
		}
		vec := bytesToFloat32(blob)
		if vec == nil {
			s.logger.Warn("skipping malformed embedding", "id", id, "bytes", len(blob))
			continue
		}
		items[missing[id]].Embedding = vec
		s.cache.put(id, vec)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("%w: iterate embeddings: %v", domain.ErrMemoryStore, err)
	}
	return nil
}

func scanItems(rows *sql.Rows) ([]domain.MemoryItem, error) {
	defer rows.Close()

	var items []domain.MemoryItem
	for rows.Next() {
		var (
			id, user, agent, metaJSON string
			tsMS                      int64
			importance                float64
		)
		if err := rows.Scan(&id, &user, &agent, &tsMS, &importance, &metaJSON); err != nil {
			return nil, fmt.Errorf("%w: scan: %v", domain.ErrMemoryStore, err)
		}
		var meta map[string]any
		if metaJSON != "" {
			if err := json.Unmarshal([]byte(metaJSON), &meta); err != nil {
				return nil, fmt.Errorf("%w: unmarshal metadata: %v", domain.ErrMemoryStore, err)
			}
		}
		items = append(items, domain.NewMemoryItem(id, user, agent, time.UnixMilli(tsMS), importance, meta))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate: %v", domain.ErrMemoryStore, err)
	}
	return items, nil
}

var (
	_ domain.PersistentStore = (*Store)(nil)
	_ domain.PreferenceStore = (*Store)(nil)
)
