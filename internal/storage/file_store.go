package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/deusflow/threatwatch/internal/logger"
	"github.com/deusflow/threatwatch/internal/news"
)

const (
	feedsDir      = "feeds"
	archiveDir    = "summary_archive"
	attacksFile   = "attacks.json"
	threatFile    = "threat_level.json"
	summaryFile   = "executive_summary.json"
	indexFile     = "index.json"
	jsonExtension = ".json"
)

// FileStore keeps each document as an indented JSON file under a data
// directory, the layout the frontend reads directly.
type FileStore struct {
	dir string
	mu  sync.RWMutex
	now func() time.Time
}

// NewFileStore creates dir and its feeds directory when missing.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		dir = "data"
	}
	if err := os.MkdirAll(filepath.Join(dir, feedsDir), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}
	return &FileStore{dir: dir, now: time.Now}, nil
}

// Dir returns the data directory.
func (fs *FileStore) Dir() string { return fs.dir }

func (fs *FileStore) feedPath(region string) string {
	return filepath.Join(fs.dir, feedsDir, region+jsonExtension)
}

// readJSON decodes path into v. A missing, empty or corrupt file leaves v
// untouched and reports false.
func readJSON(path string, v any) (bool, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		logger.Warn("Ignoring corrupt document", "path", path, "error", err)
		return false, nil
	}
	return true, nil
}

// writeJSON writes v to path through a temp file and rename so readers never
// see a partial document.
func writeJSON(path string, v any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to marshal %s: %w", filepath.Base(path), err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("failed to chmod %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func (fs *FileStore) Regions(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(fs.dir, feedsDir))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list feeds: %w", err)
	}
	var regions []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, jsonExtension) || strings.HasPrefix(name, ".") {
			continue
		}
		regions = append(regions, strings.TrimSuffix(name, jsonExtension))
	}
	sort.Strings(regions)
	return regions, nil
}

func (fs *FileStore) LoadArticles(_ context.Context, region string) ([]news.Article, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	var articles []news.Article
	if _, err := readJSON(fs.feedPath(region), &articles); err != nil {
		return nil, err
	}
	return articles, nil
}

func (fs *FileStore) SaveArticles(_ context.Context, region string, articles []news.Article) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	list := news.DedupByID(articles)
	if list == nil {
		list = []news.Article{}
	}
	return writeJSON(fs.feedPath(region), list)
}

func (fs *FileStore) LoadAttacks(_ context.Context) ([]news.Article, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	var attacks []news.Article
	if _, err := readJSON(filepath.Join(fs.dir, attacksFile), &attacks); err != nil {
		return nil, err
	}
	return attacks, nil
}

func (fs *FileStore) SaveAttacks(_ context.Context, attacks []news.Article) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	list := news.DedupByID(attacks)
	if list == nil {
		list = []news.Article{}
	}
	return writeJSON(filepath.Join(fs.dir, attacksFile), list)
}

func (fs *FileStore) LoadThreatReport(_ context.Context) (*news.ThreatReport, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	var r news.ThreatReport
	ok, err := readJSON(filepath.Join(fs.dir, threatFile), &r)
	if err != nil || !ok {
		return nil, err
	}
	return &r, nil
}

func (fs *FileStore) SaveThreatReport(_ context.Context, r *news.ThreatReport) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return writeJSON(filepath.Join(fs.dir, threatFile), r)
}

func (fs *FileStore) LoadSummary(_ context.Context) (*news.ExecutiveSummary, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	var s news.ExecutiveSummary
	ok, err := readJSON(filepath.Join(fs.dir, summaryFile), &s)
	if err != nil || !ok {
		return nil, err
	}
	return &s, nil
}

// SaveSummary writes the current summary and rebuilds the archive index,
// whether or not anything was archived before it.
func (fs *FileStore) SaveSummary(_ context.Context, s *news.ExecutiveSummary) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if err := writeJSON(filepath.Join(fs.dir, summaryFile), s); err != nil {
		return err
	}

	names, err := fs.archiveNames()
	if err != nil {
		return err
	}
	if _, err := fs.rebuildIndex(names); err != nil {
		return fmt.Errorf("failed to rebuild archive index: %w", err)
	}
	return nil
}

func (fs *FileStore) archiveNames() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(fs.dir, archiveDir))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list archive: %w", err)
	}
	var names []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || name == indexFile || !strings.HasSuffix(name, jsonExtension) || strings.HasPrefix(name, ".") {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (fs *FileStore) ArchiveSummary(_ context.Context, s *news.ExecutiveSummary, keep int) (string, error) {
	if s == nil {
		return "", nil
	}
	if keep <= 0 {
		keep = DefaultArchiveKeep
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()

	name := archiveNameFor(s, fs.now())
	dest := filepath.Join(fs.dir, archiveDir, name)
	if _, err := os.Stat(dest); err == nil {
		logger.Debug("Archive already exists", "name", name)
		return name, nil
	}
	if err := writeJSON(dest, s); err != nil {
		return "", err
	}
	logger.Info("Archived previous summary", "name", name)

	names, err := fs.archiveNames()
	if err != nil {
		return name, err
	}
	for len(names) > keep {
		old := names[0]
		names = names[1:]
		if err := os.Remove(filepath.Join(fs.dir, archiveDir, old)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return name, fmt.Errorf("failed to prune %s: %w", old, err)
		}
		logger.Info("Pruned old archive", "name", old)
	}

	if _, err := fs.rebuildIndex(names); err != nil {
		return name, err
	}
	return name, nil
}

func (fs *FileStore) rebuildIndex(names []string) ([]news.ArchiveEntry, error) {
	index := make([]news.ArchiveEntry, 0, len(names))
	for i := len(names) - 1; i >= 0; i-- {
		var s news.ExecutiveSummary
		ok, err := readJSON(filepath.Join(fs.dir, archiveDir, names[i]), &s)
		if err != nil || !ok {
			continue
		}
		index = append(index, news.NewArchiveEntry(names[i], &s))
	}
	if err := writeJSON(filepath.Join(fs.dir, archiveDir, indexFile), index); err != nil {
		return nil, err
	}
	return index, nil
}

func (fs *FileStore) ArchiveIndex(_ context.Context) ([]news.ArchiveEntry, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	names, err := fs.archiveNames()
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return []news.ArchiveEntry{}, nil
	}
	return fs.rebuildIndex(names)
}

func (fs *FileStore) Close() error { return nil }

func archiveNameFor(s *news.ExecutiveSummary, now time.Time) string {
	if s.GeneratedAt != "" {
		return news.ArchiveName(s.GeneratedAt)
	}
	return now.UTC().Format("2006-01-02T15-04-05") + jsonExtension
}
