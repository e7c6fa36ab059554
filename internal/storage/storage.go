// Package storage persists the pipeline documents: per-region feeds, the
// attacks list, the threat report and the executive summary with its
// archive. Callers depend on Store; the file and Postgres backends are
// interchangeable.
package storage

import (
	"context"
	"fmt"

	"github.com/deusflow/threatwatch/internal/news"
)

// Driver names accepted by Open.
const (
	DriverFile     = "file"
	DriverPostgres = "postgres"
)

// DefaultArchiveKeep is how many archived summaries are retained.
const DefaultArchiveKeep = 100

// Store reads and writes the pipeline documents. Load methods return an
// empty value, not an error, when a document does not exist yet.
type Store interface {
	Regions(ctx context.Context) ([]string, error)
	LoadArticles(ctx context.Context, region string) ([]news.Article, error)
	// SaveArticles replaces the region feed; duplicate ids keep the first.
	SaveArticles(ctx context.Context, region string, articles []news.Article) error

	LoadAttacks(ctx context.Context) ([]news.Article, error)
	SaveAttacks(ctx context.Context, attacks []news.Article) error

	// LoadThreatReport returns nil, nil when no report was saved yet.
	LoadThreatReport(ctx context.Context) (*news.ThreatReport, error)
	SaveThreatReport(ctx context.Context, r *news.ThreatReport) error

	// LoadSummary returns nil, nil when no summary was saved yet.
	LoadSummary(ctx context.Context) (*news.ExecutiveSummary, error)
	SaveSummary(ctx context.Context, s *news.ExecutiveSummary) error

	// ArchiveSummary stores s under its archive name unless that name already
	// exists, prunes the oldest archives beyond keep and refreshes the index.
	ArchiveSummary(ctx context.Context, s *news.ExecutiveSummary, keep int) (string, error)
	// ArchiveIndex lists archived summaries, newest first.
	ArchiveIndex(ctx context.Context) ([]news.ArchiveEntry, error)

	Close() error
}

// Open returns the Store selected by driver.
func Open(ctx context.Context, driver, dataDir, databaseURL string) (Store, error) {
	switch driver {
	case "", DriverFile:
		return NewFileStore(dataDir)
	case DriverPostgres:
		return NewPostgresStore(ctx, databaseURL)
	default:
		return nil, fmt.Errorf("unknown store driver %q", driver)
	}
}

// AllArticles loads every region feed into one slice.
func AllArticles(ctx context.Context, s Store) ([]news.Article, error) {
	regions, err := s.Regions(ctx)
	if err != nil {
		return nil, err
	}
	var all []news.Article
	for _, r := range regions {
		list, err := s.LoadArticles(ctx, r)
		if err != nil {
			return nil, fmt.Errorf("load %s feed: %w", r, err)
		}
		all = append(all, list...)
	}
	return all, nil
}
