package scraper

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"

	"github.com/deusflow/threatwatch/internal/httpclient"
	"github.com/deusflow/threatwatch/internal/logger"
	"github.com/deusflow/threatwatch/internal/news"
	"github.com/deusflow/threatwatch/internal/sources"
)

const (
	maxElements     = 30
	minTitleChars   = 5
	maxContentChars = 1000
	fullTextPause   = 500 * time.Millisecond
)

// Listing pages are fetched with a browser-like agent; several Gulf sites
// reject bot agents outright.
var pageHeaders = map[string]string{
	"User-Agent":      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
	"Accept-Language": "ar,en;q=0.5",
}

var fallbackArticleSelectors = []string{"article", ".post", ".news-item", ".card", "li"}

var defaultSelectors = sources.Selectors{
	Article: "article",
	Title:   "h2, h3",
	Link:    "a",
	Date:    ".date, time",
	Content: "p",
}

// Fetcher scrapes listing pages of sources without a feed.
type Fetcher struct {
	client *http.Client
	now    func() time.Time
	pause  time.Duration
}

func NewFetcher(client *http.Client) *Fetcher {
	return &Fetcher{client: client, now: time.Now, pause: fullTextPause}
}

// FetchAll scrapes every scrape entry and groups articles by region.
func (f *Fetcher) FetchAll(ctx context.Context, entries []sources.Entry) map[string][]news.Article {
	byRegion := make(map[string][]news.Article)
	for _, e := range entries {
		if e.Source.Type != sources.TypeScrape {
			continue
		}
		if e.Source.Engine == "playwright" {
			logger.Warn("scrape engine not supported, skipping source", "source", e.Source.Name, "engine", e.Source.Engine)
			continue
		}
		articles, err := f.FetchSource(ctx, e)
		if err != nil {
			logger.Warn("scrape failed", "source", e.Source.Name, "url", e.Source.URL, "error", err)
			continue
		}
		byRegion[e.Region] = append(byRegion[e.Region], articles...)
		logger.Info("scraped source", "source", e.Source.Name, "articles", len(articles))
	}
	return byRegion
}

// FetchSource scrapes one listing page.
func (f *Fetcher) FetchSource(ctx context.Context, e sources.Entry) ([]news.Article, error) {
	body, err := httpclient.Get(ctx, f.client, e.Source.URL, pageHeaders)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("error parsing HTML: %w", err)
	}

	base, err := url.Parse(e.Source.URL)
	if err != nil {
		return nil, fmt.Errorf("bad source url: %w", err)
	}

	sel := mergeSelectors(e.Source.Selectors)
	now := f.now().UTC()

	var out []news.Article
	for _, el := range articleElements(doc, sel.Article) {
		a, ok := extractArticle(el, sel, base, e, now)
		if !ok {
			continue
		}
		if e.Source.FullText && a.ContentOriginal == a.TitleOriginal {
			if text, err := f.extractFullText(ctx, a.URL); err == nil && text != "" {
				a.ContentOriginal = news.TruncateEllipsis(text, maxContentChars)
			} else if err != nil {
				logger.Debug("full text extraction failed", "url", a.URL, "error", err)
			}
		}
		out = append(out, a)
	}
	return out, nil
}

func mergeSelectors(s *sources.Selectors) sources.Selectors {
	out := defaultSelectors
	if s == nil {
		return out
	}
	if s.Article != "" {
		out.Article = s.Article
	}
	if s.Title != "" {
		out.Title = s.Title
	}
	if s.Link != "" {
		out.Link = s.Link
	}
	if s.Date != "" {
		out.Date = s.Date
	}
	if s.Content != "" {
		out.Content = s.Content
	}
	return out
}

func splitSelectors(list string) []string {
	var out []string
	for _, s := range strings.Split(list, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// articleElements applies every configured selector, then the fallbacks
// until one matches, and caps the result.
func articleElements(doc *goquery.Document, articleSel string) []*goquery.Selection {
	var els []*goquery.Selection
	for _, s := range splitSelectors(articleSel) {
		doc.Find(s).Each(func(_ int, el *goquery.Selection) {
			els = append(els, el)
		})
	}
	if len(els) == 0 {
		for _, s := range fallbackArticleSelectors {
			doc.Find(s).Each(func(_ int, el *goquery.Selection) {
				els = append(els, el)
			})
			if len(els) > 0 {
				break
			}
		}
	}
	if len(els) > maxElements {
		els = els[:maxElements]
	}
	return els
}

// firstMatch returns the first element matched by the selector list.
func firstMatch(el *goquery.Selection, list string) *goquery.Selection {
	for _, s := range splitSelectors(list) {
		if m := el.Find(s).First(); m.Length() > 0 {
			return m
		}
	}
	return nil
}

func extractArticle(el *goquery.Selection, sel sources.Selectors, base *url.URL, e sources.Entry, now time.Time) (news.Article, bool) {
	titleEl := firstMatch(el, sel.Title)
	if titleEl == nil {
		titleEl = firstMatch(el, "h2, h3, a")
	}
	if titleEl == nil {
		return news.Article{}, false
	}
	title := news.CollapseSpaces(titleEl.Text())
	if len([]rune(title)) < minTitleChars {
		return news.Article{}, false
	}

	linkEl := firstMatch(el, sel.Link)
	if linkEl == nil {
		linkEl = firstMatch(el, "a")
	}
	// The element itself may be the anchor.
	if linkEl == nil && goquery.NodeName(el) == "a" {
		linkEl = el
	}
	if linkEl == nil {
		return news.Article{}, false
	}
	href, _ := linkEl.Attr("href")
	href = strings.TrimSpace(href)
	if href == "" {
		return news.Article{}, false
	}
	ref, err := url.Parse(href)
	if err != nil {
		return news.Article{}, false
	}
	link := base.ResolveReference(ref).String()

	published := now
	if dateEl := firstMatch(el, sel.Date); dateEl != nil {
		raw, ok := dateEl.Attr("datetime")
		if !ok || raw == "" {
			raw = dateEl.Text()
		}
		if t, ok := news.ParseTime(raw); ok {
			published = t
		}
	}

	content := ""
	if contentEl := firstMatch(el, sel.Content); contentEl != nil {
		content = news.CollapseSpaces(contentEl.Text())
	}
	if content == "" {
		var parts []string
		el.Find("p").EachWithBreak(func(i int, p *goquery.Selection) bool {
			parts = append(parts, news.CollapseSpaces(p.Text()))
			return i < 2
		})
		content = strings.TrimSpace(strings.Join(parts, " "))
	}
	content = news.TruncateEllipsis(content, maxContentChars)
	if content == "" {
		content = title
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

// extractFullText downloads an article page and runs readability over it.
func (f *Fetcher) extractFullText(ctx context.Context, pageURL string) (string, error) {
	if f.pause > 0 {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(f.pause):
		}
	}

	body, err := httpclient.Get(ctx, f.client, pageURL, pageHeaders)
	if err != nil {
		return "", err
	}
	parsed, err := url.Parse(pageURL)
	if err != nil {
		return "", err
	}
	article, err := readability.FromReader(bytes.NewReader(body), parsed)
	if err != nil {
		return "", fmt.Errorf("readability: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(article.Content))
	if err != nil {
		return "", err
	}
	doc.Find("figure, aside, script, style").Remove()
	return news.CollapseSpaces(doc.Text()), nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
