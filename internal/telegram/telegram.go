// Package telegram reads public channels through the t.me/s/<channel>
// preview pages, which need no bot token.
package telegram

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/deusflow/threatwatch/internal/httpclient"
	"github.com/deusflow/threatwatch/internal/logger"
	"github.com/deusflow/threatwatch/internal/news"
	"github.com/deusflow/threatwatch/internal/sources"
)

const (
	DefaultBaseURL  = "https://t.me/s/"
	maxTitleChars   = 120
	maxContentChars = 1000
)

var previewHeaders = map[string]string{
	"User-Agent":      "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Accept-Language": "en-US,en;q=0.9",
}

// Fetcher reads channel previews.
type Fetcher struct {
	client  *http.Client
	baseURL string
	maxAge  time.Duration
	now     func() time.Time
}

func NewFetcher(client *http.Client, maxAge time.Duration) *Fetcher {
	return &Fetcher{client: client, baseURL: DefaultBaseURL, maxAge: maxAge, now: time.Now}
}

// FetchAll reads every telegram entry and groups messages by region.
func (f *Fetcher) FetchAll(ctx context.Context, entries []sources.Entry) map[string][]news.Article {
	byRegion := make(map[string][]news.Article)
	for _, e := range entries {
		if e.Source.Type != sources.TypeTelegram {
			continue
		}
		articles, err := f.FetchChannel(ctx, e)
		if err != nil {
			logger.Warn("telegram channel failed", "channel", e.Source.Channel, "error", err)
			continue
		}
		if len(articles) > 0 {
			byRegion[e.Region] = append(byRegion[e.Region], articles...)
		}
		logger.Info("telegram channel fetched", "channel", e.Source.Channel, "messages", len(articles))
	}
	return byRegion
}

// FetchChannel parses the preview page of one channel.
func (f *Fetcher) FetchChannel(ctx context.Context, e sources.Entry) ([]news.Article, error) {
	channel := strings.TrimPrefix(strings.TrimSpace(e.Source.Channel), "@")
	if channel == "" {
		return nil, fmt.Errorf("empty channel for source %q", e.Source.Name)
	}

	body, err := httpclient.Get(ctx, f.client, f.baseURL+channel, previewHeaders)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse preview: %w", err)
	}

	messages := doc.Find(".tgme_widget_message_wrap")
	if messages.Length() == 0 {
		messages = doc.Find(".tgme_widget_message")
	}

	now := f.now().UTC()
	var out []news.Article
	messages.Each(func(_ int, msg *goquery.Selection) {
		if a, ok := f.parseMessage(msg, e, now); ok {
			out = append(out, a)
		}
	})
	return out, nil
}

func (f *Fetcher) parseMessage(msg *goquery.Selection, e sources.Entry, now time.Time) (news.Article, bool) {
	href, ok := msg.Find(".tgme_widget_message_date").First().Attr("href")
	if !ok || href == "" {
		return news.Article{}, false
	}

	text := messageText(msg.Find(".tgme_widget_message_text").First())
	if text == "" {
		fwd := strings.TrimSpace(msg.Find(".tgme_widget_message_forwarded_from_name").First().Text())
		if fwd == "" {
			// media-only post
			return news.Article{}, false
		}
		text = "[Forwarded from " + fwd + "]"
	}

	published := news.FormatTime(now)
	if dt, ok := msg.Find("time[datetime]").First().Attr("datetime"); ok && dt != "" {
		published = dt
		if t, ok := news.ParseTime(dt); ok && f.maxAge > 0 && t.Before(now.Add(-f.maxAge)) {
			return news.Article{}, false
		}
	}

	title := strings.TrimSpace(strings.SplitN(text, "\n", 2)[0])
	if len([]rune(title)) > maxTitleChars {
		title = news.Truncate(title, maxTitleChars-3) + "..."
	}
	if title == "" {
		title = news.Truncate(text, maxTitleChars)
	}

	content := news.TruncateEllipsis(news.CollapseSpaces(text), maxContentChars)
	if content == "" {
		content = title
	}

	category := e.Source.Category
	if category == "" {
		category = news.CategoryProxy
	}
	language := e.Source.Language
	if language == "" {
		language = "ar"
	}

	return news.Article{
		ID:              news.ArticleID(href),
		TitleOriginal:   title,
		ContentOriginal: content,
		URL:             href,
		Published:       published,
		FetchedAt:       news.FormatTime(now),
		SourceName:      e.Source.Name,
		SourceCategory:  category,
		Language:        language,
		Region:          e.Region,
		SkipTranslation: e.Source.SkipTranslation,
	}, true
}

// messageText keeps <br> as line breaks so the first line can serve as title.
func messageText(sel *goquery.Selection) string {
	if sel.Length() == 0 {
		return ""
	}
	sel.Find("br").ReplaceWithHtml("\n")
	lines := strings.Split(sel.Text(), "\n")
	var kept []string
	for _, l := range lines {
		if l = strings.TrimSpace(l); l != "" {
			kept = append(kept, l)
		}
	}
	return strings.Join(kept, "\n")
}
