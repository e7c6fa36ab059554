package rss

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/deusflow/threatwatch/internal/httpclient"
	"github.com/deusflow/threatwatch/internal/logger"
	"github.com/deusflow/threatwatch/internal/news"
	"github.com/deusflow/threatwatch/internal/sources"
)

const (
	maxEntriesPerFeed = 50
	maxContentChars   = 1000
)

var feedHeaders = map[string]string{
	"Accept": "application/rss+xml, application/xml, text/xml, */*",
}

// Fetcher downloads RSS/Atom feeds and turns entries into articles.
type Fetcher struct {
	client *http.Client
	maxAge time.Duration
	now    func() time.Time
}

// NewFetcher skips entries older than maxAge. maxAge <= 0 keeps everything.
func NewFetcher(client *http.Client, maxAge time.Duration) *Fetcher {
	return &Fetcher{client: client, maxAge: maxAge, now: time.Now}
}

// FetchAll fetches every rss entry and groups the articles by region. A feed
// that fails contributes nothing.
func (f *Fetcher) FetchAll(ctx context.Context, entries []sources.Entry) map[string][]news.Article {
	byRegion := make(map[string][]news.Article)
	ok := 0
	for _, e := range entries {
		if e.Source.Type != sources.TypeRSS {
			continue
		}
		articles, err := f.FetchSource(ctx, e)
		if err != nil {
			logger.Warn("rss feed failed", "source", e.Source.Name, "url", e.Source.URL, "error", err)
			continue
		}
		ok++
		byRegion[e.Region] = append(byRegion[e.Region], articles...)
		logger.Info("rss feed fetched", "source", e.Source.Name, "articles", len(articles))
	}
	logger.Info("rss feeds processed", "ok", ok, "total", len(entries))
	return byRegion
}

// FetchSource fetches and parses one feed.
func (f *Fetcher) FetchSource(ctx context.Context, e sources.Entry) ([]news.Article, error) {
	body, err := httpclient.Get(ctx, f.client, e.Source.URL, feedHeaders)
	if err != nil {
		return nil, err
	}

	feed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	now := f.now().UTC()
	var out []news.Article
	for i, item := range feed.Items {
		if i >= maxEntriesPerFeed {
			break
		}
		a, ok := f.toArticle(item, e, now)
		if !ok {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func (f *Fetcher) toArticle(item *gofeed.Item, e sources.Entry, now time.Time) (news.Article, bool) {
	link := strings.TrimSpace(item.Link)
	title := strings.TrimSpace(item.Title)
	if link == "" || title == "" {
		return news.Article{}, false
	}

	content := item.Content
	if content == "" {
		content = item.Description
	}
	content = news.CleanContent(content, maxContentChars)
	if content == "" {
		content = title
	}

	published := now
	switch {
	case item.PublishedParsed != nil:
		published = item.PublishedParsed.UTC()
	case item.UpdatedParsed != nil:
		published = item.UpdatedParsed.UTC()
	}
	if f.maxAge > 0 && published.Before(now.Add(-f.maxAge)) {
		return news.Article{}, false
	}

	return news.Article{
		ID:              news.ArticleID(link),
		TitleOriginal:   title,
		ContentOriginal: content,
		URL:             link,
		Published:       news.FormatTime(published),
		FetchedAt:       news.FormatTime(now),
		SourceName:      e.Source.Name,
		SourceCategory:  orDefault(e.Source.Category, news.CategoryUnknown),
		Language:        orDefault(e.Source.Language, "unknown"),
		Region:          e.Region,
		SkipTranslation: e.Source.SkipTranslation,
	}, true
}

// Probe checks that url serves a parseable feed and returns its entry count.
func Probe(ctx context.Context, client *http.Client, url string) (int, error) {
	body, err := httpclient.Get(ctx, client, url, feedHeaders)
	if err != nil {
		return 0, err
	}
	feed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("parse feed: %w", err)
	}
	return len(feed.Items), nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
