package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/deusflow/threatwatch/internal/logger"
	"github.com/deusflow/threatwatch/internal/news"
)

const (
	keyFeedPrefix = "feeds/"
	keyAttacks    = "attacks"
	keyThreat     = "threat_level"
	keySummary    = "executive_summary"
)

// PostgresStore keeps every document as a JSONB row keyed by its file name
// counterpart, plus a table of archived summaries.
type PostgresStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewPostgresStore connects to dsn and creates the tables when missing.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	if dsn == "" {
		return nil, errors.New("DATABASE_URL is required for the postgres store")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Test connection
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store, err := newPostgresStore(ctx, db)
	if err != nil {
		db.Close()
		return nil, err
	}
	logger.Info("PostgreSQL store connected")
	return store, nil
}

func newPostgresStore(ctx context.Context, db *sql.DB) (*PostgresStore, error) {
	s := &PostgresStore{db: db, now: time.Now}
	if err := s.initSchema(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	key TEXT PRIMARY KEY,
	body JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS summary_archive (
	name TEXT PRIMARY KEY,
	generated_at TEXT NOT NULL,
	body JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

func (s *PostgresStore) initSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// get decodes the document at key into v and reports whether it existed.
func (s *PostgresStore) get(ctx context.Context, key string, v any) (bool, error) {
	var body []byte
	err := s.db.QueryRowContext(ctx, `SELECT body FROM documents WHERE key = $1`, key).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to load %s: %w", key, err)
	}
	if err := json.Unmarshal(body, v); err != nil {
		logger.Warn("Ignoring corrupt document", "key", key, "error", err)
		return false, nil
	}
	return true, nil
}

func (s *PostgresStore) put(ctx context.Context, key string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO documents (key, body, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET body = EXCLUDED.body, updated_at = NOW()
	`, key, body)
	if err != nil {
		return fmt.Errorf("failed to save %s: %w", key, err)
	}
	return nil
}

func (s *PostgresStore) Regions(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key FROM documents WHERE key LIKE 'feeds/%' ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("failed to list regions: %w", err)
	}
	defer rows.Close()

	var regions []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("failed to scan region: %w", err)
		}
		regions = append(regions, strings.TrimPrefix(key, keyFeedPrefix))
	}
	return regions, rows.Err()
}

func (s *PostgresStore) LoadArticles(ctx context.Context, region string) ([]news.Article, error) {
	var articles []news.Article
	if _, err := s.get(ctx, keyFeedPrefix+region, &articles); err != nil {
		return nil, err
	}
	return articles, nil
}

func (s *PostgresStore) SaveArticles(ctx context.Context, region string, articles []news.Article) error {
	list := news.DedupByID(articles)
	if list == nil {
		list = []news.Article{}
	}
	return s.put(ctx, keyFeedPrefix+region, list)
}

func (s *PostgresStore) LoadAttacks(ctx context.Context) ([]news.Article, error) {
	var attacks []news.Article
	if _, err := s.get(ctx, keyAttacks, &attacks); err != nil {
		return nil, err
	}
	return attacks, nil
}

func (s *PostgresStore) SaveAttacks(ctx context.Context, attacks []news.Article) error {
	list := news.DedupByID(attacks)
	if list == nil {
		list = []news.Article{}
	}
	return s.put(ctx, keyAttacks, list)
}

func (s *PostgresStore) LoadThreatReport(ctx context.Context) (*news.ThreatReport, error) {
	var r news.ThreatReport
	ok, err := s.get(ctx, keyThreat, &r)
	if err != nil || !ok {
		return nil, err
	}
	return &r, nil
}

func (s *PostgresStore) SaveThreatReport(ctx context.Context, r *news.ThreatReport) error {
	return s.put(ctx, keyThreat, r)
}

func (s *PostgresStore) LoadSummary(ctx context.Context) (*news.ExecutiveSummary, error) {
	var sum news.ExecutiveSummary
	ok, err := s.get(ctx, keySummary, &sum)
	if err != nil || !ok {
		return nil, err
	}
	return &sum, nil
}

func (s *PostgresStore) SaveSummary(ctx context.Context, sum *news.ExecutiveSummary) error {
	return s.put(ctx, keySummary, sum)
}

func (s *PostgresStore) ArchiveSummary(ctx context.Context, sum *news.ExecutiveSummary, keep int) (string, error) {
	if sum == nil {
		return "", nil
	}
	if keep <= 0 {
		keep = DefaultArchiveKeep
	}
	name := archiveNameFor(sum, s.now())
	body, err := json.Marshal(sum)
	if err != nil {
		return "", fmt.Errorf("failed to marshal archive: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO summary_archive (name, generated_at, body)
		VALUES ($1, $2, $3)
		ON CONFLICT (name) DO NOTHING
	`, name, sum.GeneratedAt, body)
	if err != nil {
		return "", fmt.Errorf("failed to archive summary: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		logger.Debug("Archive already exists", "name", name)
		return name, nil
	}

	res, err = s.db.ExecContext(ctx, `
		DELETE FROM summary_archive
		WHERE name NOT IN (SELECT name FROM summary_archive ORDER BY name DESC LIMIT $1)
	`, keep)
	if err != nil {
		return name, fmt.Errorf("failed to prune archive: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		logger.Info("Pruned old archives", "count", n)
	}
	logger.Info("Archived previous summary", "name", name)
	return name, nil
}

func (s *PostgresStore) ArchiveIndex(ctx context.Context) ([]news.ArchiveEntry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, body FROM summary_archive ORDER BY name DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list archive: %w", err)
	}
	defer rows.Close()

	index := []news.ArchiveEntry{}
	for rows.Next() {
		var (
			name string
			body []byte
		)
		if err := rows.Scan(&name, &body); err != nil {
			return nil, fmt.Errorf("failed to scan archive row: %w", err)
		}
		var sum news.ExecutiveSummary
		if err := json.Unmarshal(body, &sum); err != nil {
			continue
		}
		index = append(index, news.NewArchiveEntry(name, &sum))
	}
	return index, rows.Err()
}

// Close closes the database connection
func (s *PostgresStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
