package main

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deusflow/threatwatch/internal/sources"
	"github.com/deusflow/threatwatch/internal/storage"
)

const testRegistry = `regions:
  iran:
    label: Iran
    color: "#16a34a"
    sources:
      - name: IRNA
        type: rss
        url: https://irna.example/rss
        language: fa
`

const testFeed = `<?xml version="1.0"?>
<rss version="2.0"><channel><title>t</title>
<item><title>One</title><link>https://example.com/1</link></item>
</channel></rss>`

func setupRegistry(t *testing.T) (string, *sources.Registry, *storage.FileStore) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "sources.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testRegistry), 0o644))
	reg, err := sources.Load(path)
	require.NoError(t, err)
	store, err := storage.NewFileStore(filepath.Join(dir, "data"))
	require.NoError(t, err)
	return path, reg, store
}

func TestAddSource_NewRegion(t *testing.T) {
	ctx := context.Background()
	path, reg, store := setupRegistry(t)

	opts := &sourceOptions{
		file:     path,
		region:   "north_africa",
		name:     "Libya Observer",
		typ:      sources.TypeRSS,
		url:      "https://www.libyaobserver.ly/rss.xml",
		language: "en",
		category: "independent",
	}
	var out bytes.Buffer
	require.NoError(t, addSource(ctx, &out, reg, store, opts, http.DefaultClient))
	assert.Contains(t, out.String(), "north_africa (NEW)")
	assert.Contains(t, out.String(), "Label:   North Africa")

	saved, err := sources.Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"iran", "north_africa"}, saved.Keys())
	region := saved.Region("north_africa")
	require.NotNil(t, region)
	assert.Equal(t, sources.DefaultRegionColor, region.Color)
	require.Len(t, region.Sources, 1)
	assert.Equal(t, "Libya Observer", region.Sources[0].Name)

	regions, err := store.Regions(ctx)
	require.NoError(t, err)
	assert.Contains(t, regions, "north_africa")
}

func TestAddSource_DryRunWritesNothing(t *testing.T) {
	ctx := context.Background()
	path, reg, store := setupRegistry(t)

	opts := &sourceOptions{
		file:    path,
		region:  "iran",
		name:    "Channel",
		typ:     sources.TypeTelegram,
		channel: "@somechannel",
		dryRun:  true,
	}
	var out bytes.Buffer
	require.NoError(t, addSource(ctx, &out, reg, store, opts, http.DefaultClient))
	assert.Contains(t, out.String(), "DRY RUN")
	assert.Contains(t, out.String(), "somechannel")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, testRegistry, string(data))
}

func TestAddSource_Duplicate(t *testing.T) {
	path, reg, store := setupRegistry(t)
	opts := &sourceOptions{file: path, region: "gulf", name: "Copy", typ: sources.TypeRSS, url: "https://irna.example/rss"}

	err := addSource(context.Background(), io.Discard, reg, store, opts, http.DefaultClient)
	assert.ErrorIs(t, err, sources.ErrDuplicate)
}

func TestAddSource_Validate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/broken" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(testFeed))
	}))
	defer srv.Close()

	ctx := context.Background()

	path, reg, store := setupRegistry(t)
	ok := &sourceOptions{file: path, region: "iran", name: "Good", typ: sources.TypeRSS, url: srv.URL + "/feed", validate: true}
	require.NoError(t, addSource(ctx, io.Discard, reg, store, ok, srv.Client()))

	path, reg, store = setupRegistry(t)
	bad := &sourceOptions{file: path, region: "iran", name: "Bad", typ: sources.TypeRSS, url: srv.URL + "/broken", validate: true}
	err := addSource(ctx, io.Discard, reg, store, bad, srv.Client())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--force")

	path, reg, store = setupRegistry(t)
	bad.file = path
	bad.force = true
	require.NoError(t, addSource(ctx, io.Discard, reg, store, bad, srv.Client()))
}

func TestPrompter_Fill(t *testing.T) {
	_, reg, _ := setupRegistry(t)
	input := strings.Join([]string{
		"North Africa", // region
		"",             // label default
		"#f472b6",      // color
		"1",            // rss
		"",             // name required, asked again
		"Libya Observer",
		"https://www.libyaobserver.ly/rss.xml",
		"",      // language default en
		"state", // category
		"",      // skip translation default yes for en
	}, "\n") + "\n"

	var out bytes.Buffer
	opts := &sourceOptions{}
	require.NoError(t, newPrompter(strings.NewReader(input), &out).fill(opts, reg))

	assert.Equal(t, "north_africa", opts.region)
	assert.Equal(t, "North Africa", opts.regionLabel)
	assert.Equal(t, "#f472b6", opts.regionColor)
	assert.Equal(t, sources.TypeRSS, opts.typ)
	assert.Equal(t, "Libya Observer", opts.name)
	assert.Equal(t, "https://www.libyaobserver.ly/rss.xml", opts.url)
	assert.Equal(t, "en", opts.language)
	assert.Equal(t, "state", opts.category)
	assert.True(t, opts.skipTranslation)
	assert.Contains(t, out.String(), "Value required.")
}

func TestPrompter_EOF(t *testing.T) {
	_, reg, _ := setupRegistry(t)
	err := newPrompter(strings.NewReader(""), io.Discard).fill(&sourceOptions{}, reg)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}
