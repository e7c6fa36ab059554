package news

import (
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode/utf8"
)

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	time.RFC1123Z,
	time.RFC1123,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseTime parses the timestamp formats seen in feeds and stored documents.
// Timestamps without a zone are taken as UTC.
func ParseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// FormatTime renders t the way every document stores timestamps.
func FormatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// PublishedAt parses the article's published field.
func (a *Article) PublishedAt() (time.Time, bool) {
	return ParseTime(a.Published)
}

var (
	tagRe   = regexp.MustCompile(`(?s)<[^>]*>`)
	spaceRe = regexp.MustCompile(`\s+`)
)

// StripHTML drops tags and unescapes the handful of entities feeds commonly carry.
func StripHTML(s string) string {
	s = tagRe.ReplaceAllString(s, " ")
	r := strings.NewReplacer("&nbsp;", " ", "&amp;", "&", "&lt;", "<", "&gt;", ">", "&quot;", `"`, "&#39;", "'")
	return r.Replace(s)
}

// CollapseSpaces trims and folds every whitespace run into one space.
func CollapseSpaces(s string) string {
	return strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))
}

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// TruncateEllipsis cuts s to n runes and appends "..." when it was longer.
func TruncateEllipsis(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return Truncate(s, n) + "..."
}

// CleanContent is the content normalisation shared by all fetchers.
func CleanContent(raw string, max int) string {
	return TruncateEllipsis(CollapseSpaces(StripHTML(raw)), max)
}

// DedupByID keeps the first article for every id.
func DedupByID(articles []Article) []Article {
	seen := make(map[string]bool, len(articles))
	out := make([]Article, 0, len(articles))
	for _, a := range articles {
		if seen[a.ID] {
			continue
		}
		seen[a.ID] = true
		out = append(out, a)
	}
	return out
}

// SortByPublishedDesc orders newest first. Articles whose date does not parse
// go last, in their original order.
func SortByPublishedDesc(articles []Article) {
	sort.SliceStable(articles, func(i, j int) bool {
		ti, oki := articles[i].PublishedAt()
		tj, okj := articles[j].PublishedAt()
		switch {
		case oki && okj:
			return ti.After(tj)
		case oki:
			return true
		default:
			return false
		}
	})
}

// PruneOlderThan drops articles published before cutoff. Undated articles stay.
func PruneOlderThan(articles []Article, cutoff time.Time) []Article {
	out := articles[:0:0]
	for _, a := range articles {
		if t, ok := a.PublishedAt(); ok && t.Before(cutoff) {
			continue
		}
		out = append(out, a)
	}
	return out
}

// FilterFresh keeps articles published within maxAge of now, plus undated ones.
func FilterFresh(articles []Article, maxAge time.Duration, now time.Time) []Article {
	return PruneOlderThan(articles, now.Add(-maxAge))
}

// MergeByID overlays updates onto base, matching by id. Records in updates
// replace same-id records in base; new ids are appended.
func MergeByID(base, updates []Article) []Article {
	idx := make(map[string]int, len(base))
	out := make([]Article, len(base))
	copy(out, base)
	for i, a := range out {
		idx[a.ID] = i
	}
	for _, u := range updates {
		if i, ok := idx[u.ID]; ok {
			out[i] = u
			continue
		}
		idx[u.ID] = len(out)
		out = append(out, u)
	}
	return out
}
