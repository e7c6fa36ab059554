package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deusflow/threatwatch/internal/news"
)

func newFileStore(t *testing.T) *FileStore {
	t.Helper()
	fs, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	return fs
}

func TestFileStore_ArticlesRoundTrip(t *testing.T) {
	fs := newFileStore(t)
	ctx := context.Background()

	list, err := fs.LoadArticles(ctx, "iran")
	require.NoError(t, err)
	assert.Empty(t, list)

	in := []news.Article{
		{ID: "a", TitleOriginal: "صواريخ & <b>", Region: "iran"},
		{ID: "b", TitleOriginal: "second", Region: "iran"},
		{ID: "a", TitleOriginal: "dup", Region: "iran"},
	}
	require.NoError(t, fs.SaveArticles(ctx, "iran", in))
	require.NoError(t, fs.SaveArticles(ctx, "gulf", nil))

	got, err := fs.LoadArticles(ctx, "iran")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "صواريخ & <b>", got[0].TitleOriginal)

	raw, err := os.ReadFile(filepath.Join(fs.Dir(), "feeds", "iran.json"))
	require.NoError(t, err)
	assert.Contains(t, string(raw), "صواريخ & <b>", "non-ASCII and HTML kept verbatim")
	assert.Contains(t, string(raw), "\n  {\n    \"id\": \"a\"")

	regions, err := fs.Regions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"gulf", "iran"}, regions)

	all, err := AllArticles(ctx, fs)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestFileStore_CorruptDocumentLoadsEmpty(t *testing.T) {
	fs := newFileStore(t)
	ctx := context.Background()

	require.NoError(t, os.WriteFile(filepath.Join(fs.Dir(), "attacks.json"), []byte("{not json"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(fs.Dir(), "threat_level.json"), []byte(""), 0o644))

	attacks, err := fs.LoadAttacks(ctx)
	require.NoError(t, err)
	assert.Empty(t, attacks)

	r, err := fs.LoadThreatReport(ctx)
	require.NoError(t, err)
	assert.Nil(t, r)
}

func TestFileStore_ThreatAndSummary(t *testing.T) {
	fs := newFileStore(t)
	ctx := context.Background()

	s, err := fs.LoadSummary(ctx)
	require.NoError(t, err)
	assert.Nil(t, s)

	report := &news.ThreatReport{Trend: "stable", Current: news.WindowScore{Score: 8, Label: "ELEVATED", Level: 3}}
	require.NoError(t, fs.SaveThreatReport(ctx, report))
	got, err := fs.LoadThreatReport(ctx)
	require.NoError(t, err)
	assert.Equal(t, report, got)

	sum := &news.ExecutiveSummary{GeneratedAt: "2026-03-01T12:00:00Z"}
	sum.ExecutiveSummary = "All quiet."
	require.NoError(t, fs.SaveSummary(ctx, sum))
	gotSum, err := fs.LoadSummary(ctx)
	require.NoError(t, err)
	assert.Equal(t, "All quiet.", gotSum.ExecutiveSummary)

	leftovers, err := filepath.Glob(filepath.Join(fs.Dir(), ".*.tmp"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func summaryAt(ts time.Time, label string) *news.ExecutiveSummary {
	s := &news.ExecutiveSummary{GeneratedAt: ts.Format(time.RFC3339)}
	s.ThreatSnapshot.Label = label
	s.ExecutiveSummary = strings.Repeat("x", 250)
	return s
}

func TestFileStore_ArchiveSummary(t *testing.T) {
	fs := newFileStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		name, err := fs.ArchiveSummary(ctx, summaryAt(base.Add(time.Duration(i)*time.Hour), fmt.Sprint("L", i)), 3)
		require.NoError(t, err)
		assert.Equal(t, news.ArchiveName(base.Add(time.Duration(i)*time.Hour).Format(time.RFC3339)), name)
	}

	// same generated_at again is a no-op
	_, err := fs.ArchiveSummary(ctx, summaryAt(base.Add(4*time.Hour), "changed"), 3)
	require.NoError(t, err)

	names, err := fs.archiveNames()
	require.NoError(t, err)
	assert.Equal(t, []string{"2026-03-01T02-00-00Z.json", "2026-03-01T03-00-00Z.json", "2026-03-01T04-00-00Z.json"}, names)

	index, err := fs.ArchiveIndex(ctx)
	require.NoError(t, err)
	require.Len(t, index, 3)
	assert.Equal(t, "2026-03-01T04-00-00Z.json", index[0].Filename)
	assert.Equal(t, "L4", index[0].ThreatLabel)
	assert.Len(t, index[0].SummaryPreview, 200)

	_, err = os.Stat(filepath.Join(fs.Dir(), "summary_archive", "index.json"))
	assert.NoError(t, err)
}

func TestFileStore_SaveSummaryRebuildsIndex(t *testing.T) {
	fs := newFileStore(t)
	ctx := context.Background()
	indexPath := filepath.Join(fs.Dir(), "summary_archive", "index.json")

	require.NoError(t, fs.SaveSummary(ctx, summaryAt(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), "L0")))
	data, err := os.ReadFile(indexPath)
	require.NoError(t, err)
	assert.Equal(t, "[]", strings.TrimSpace(string(data)))

	prev := summaryAt(time.Date(2026, 3, 1, 1, 0, 0, 0, time.UTC), "L1")
	_, err = fs.ArchiveSummary(ctx, prev, 3)
	require.NoError(t, err)
	require.NoError(t, os.Remove(indexPath))

	// archiving the same summary again writes nothing, the save still restores the index
	_, err = fs.ArchiveSummary(ctx, prev, 3)
	require.NoError(t, err)
	require.NoError(t, fs.SaveSummary(ctx, summaryAt(time.Date(2026, 3, 1, 2, 0, 0, 0, time.UTC), "L2")))

	data, err = os.ReadFile(indexPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "2026-03-01T01-00-00Z.json")
}

func TestOpen(t *testing.T) {
	s, err := Open(context.Background(), "", t.TempDir(), "")
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, s)

	_, err = Open(context.Background(), "mongo", t.TempDir(), "")
	assert.Error(t, err)

	_, err = Open(context.Background(), DriverPostgres, "", "")
	assert.Error(t, err)
}
