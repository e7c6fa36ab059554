package scraper

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deusflow/threatwatch/internal/sources"
)

const listingHTML = `<html><body>
<div class="item">
  <h3>Drone intercepted over Dubai</h3>
  <a href="/news/1">more</a>
  <time datetime="2026-03-01T10:30:00Z">10:30</time>
  <p class="lead">Air defences engaged a drone.</p>
</div>
<div class="item">
  <h3>Hi</h3>
  <a href="/news/2">more</a>
</div>
<div class="item">
  <h3>No link here at all</h3>
</div>
<div class="item">
  <h3>Port closure in Fujairah</h3>
  <a href="https://other.example/abs">more</a>
</div>
</body></html>`

const articleHTML = `<html><head><title>Port closure</title></head><body>
<article><h1>Port closure in Fujairah</h1>
<p>The port of Fujairah was closed on Sunday after a drone strike hit an oil storage facility near the terminal.</p>
<p>Officials said shipping traffic would resume once damage assessments were completed by the authorities.</p>
<p>Tanker operators reported diversions to alternative anchorages along the coast of the Gulf of Oman.</p>
<p>Insurance brokers said war risk premiums for vessels calling at Gulf ports had risen sharply over the past week, with several underwriters suspending cover entirely.</p>
<p>Regional governments urged calm and said emergency crews had contained the fire at the storage facility by late afternoon, with no casualties reported among port staff.</p>
</article></body></html>`

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/listing", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(listingHTML))
	})
	mux.HandleFunc("/fallback", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<ul><li><a href="/x">Sirens sounded in Haifa</a></li></ul>`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchSource_Selectors(t *testing.T) {
	srv := newServer(t)
	f := NewFetcher(srv.Client())
	f.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }

	e := sources.Entry{Region: "gulf", Source: sources.Source{
		Name: "Gulf Portal", Type: sources.TypeScrape, URL: srv.URL + "/listing", Language: "ar",
		Selectors: &sources.Selectors{Article: ".item", Title: "h3", Content: ".lead"},
	}}

	articles, err := f.FetchSource(context.Background(), e)
	require.NoError(t, err)
	require.Len(t, articles, 2)

	first := articles[0]
	assert.Equal(t, "Drone intercepted over Dubai", first.TitleOriginal)
	assert.Equal(t, srv.URL+"/news/1", first.URL)
	assert.Equal(t, "2026-03-01T10:30:00Z", first.Published)
	assert.Equal(t, "Air defences engaged a drone.", first.ContentOriginal)
	assert.Equal(t, "unknown", first.SourceCategory)

	second := articles[1]
	assert.Equal(t, "https://other.example/abs", second.URL)
	assert.Equal(t, "Port closure in Fujairah", second.ContentOriginal, "title stands in for missing content")
	assert.Equal(t, "2026-03-01T12:00:00Z", second.Published)
}

func TestFetchSource_FallbackSelectors(t *testing.T) {
	srv := newServer(t)
	f := NewFetcher(srv.Client())

	e := sources.Entry{Region: "israel", Source: sources.Source{
		Name: "List", Type: sources.TypeScrape, URL: srv.URL + "/fallback",
	}}

	articles, err := f.FetchSource(context.Background(), e)
	require.NoError(t, err)
	require.Len(t, articles, 1)
	assert.Equal(t, "Sirens sounded in Haifa", articles[0].TitleOriginal)
	assert.True(t, strings.HasSuffix(articles[0].URL, "/x"))
}

func TestFetchAll_SkipsPlaywright(t *testing.T) {
	srv := newServer(t)
	f := NewFetcher(srv.Client())

	out := f.FetchAll(context.Background(), []sources.Entry{{
		Region: "gulf",
		Source: sources.Source{Name: "JS site", Type: sources.TypeScrape, URL: srv.URL + "/listing", Engine: "playwright"},
	}})
	assert.Empty(t, out)
}

func TestFetchSource_FullText(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/listing", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<article><h2>Port closure in Fujairah</h2><a href="/story">read</a></article>`))
	})
	mux.HandleFunc("/story", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(articleHTML))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	f := NewFetcher(srv.Client())
	f.pause = 0

	e := sources.Entry{Region: "gulf", Source: sources.Source{
		Name: "Gulf", Type: sources.TypeScrape, URL: srv.URL + "/listing", FullText: true,
	}}
	articles, err := f.FetchSource(context.Background(), e)
	require.NoError(t, err)
	require.Len(t, articles, 1)
	assert.Contains(t, articles[0].ContentOriginal, "oil storage facility")
}
