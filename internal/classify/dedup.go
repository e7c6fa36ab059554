package classify

import (
	"regexp"
	"sort"
	"strings"

	"github.com/deusflow/threatwatch/internal/logger"
	"github.com/deusflow/threatwatch/internal/news"
)

var (
	fillerWords = []string{"international", "airport", "military", "base", "region", "province", "area"}
	spaceRun    = regexp.MustCompile(`\s+`)
)

var severityRank = map[string]int{
	news.SeverityMajor:  4,
	news.SeverityHigh:   3,
	news.SeverityMedium: 2,
	news.SeverityLow:    1,
}

// NormalizeLocation lowercases loc, drops filler words and collapses spaces.
func NormalizeLocation(loc string) string {
	loc = strings.ToLower(strings.TrimSpace(loc))
	for _, w := range fillerWords {
		loc = strings.ReplaceAll(loc, w, "")
	}
	return strings.TrimSpace(spaceRun.ReplaceAllString(loc, " "))
}

// TimeBucket returns the 12-hour UTC window of published as YYYY-MM-DD-AM|PM,
// or "unknown".
func TimeBucket(published string) string {
	t, ok := news.ParseTime(published)
	if !ok {
		return "unknown"
	}
	half := "AM"
	if t.Hour() >= 12 {
		half = "PM"
	}
	return t.Format("2006-01-02-") + half
}

// EventKey fingerprints the real-world event an attack article reports: its
// primary location token and publication half-day.
func EventKey(a *news.Article) string {
	loc := "unknown"
	if a.Classification != nil && strings.TrimSpace(a.Classification.Location) != "" {
		loc = a.Classification.Location
	}
	primary := strings.SplitN(loc, ",", 2)[0]
	return NormalizeLocation(primary) + "|" + TimeBucket(a.Published)
}

// DedupEvents collapses attacks sharing an EventKey to one representative:
// highest severity, then most keyword matches, then most recent. The kept
// record carries merged_source_count. Groups keep the order of their first
// member.
func DedupEvents(attacks []news.Article) []news.Article {
	var order []string
	groups := map[string][]news.Article{}
	for _, a := range attacks {
		key := EventKey(&a)
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], a)
	}

	out := make([]news.Article, 0, len(order))
	for _, key := range order {
		group := groups[key]
		if len(group) == 1 {
			out = append(out, group[0])
			continue
		}
		sort.SliceStable(group, func(i, j int) bool { return better(&group[i], &group[j]) })
		best := group[0]
		best.MergedSourceCount = len(group)
		out = append(out, best)
		logger.Debug("Merged duplicate event", "key", key, "count", len(group), "kept", news.Truncate(best.TitleEN, 60))
	}
	return out
}

func better(a, b *news.Article) bool {
	ra, rb := severityRank[a.Severity()], severityRank[b.Severity()]
	if ra != rb {
		return ra > rb
	}
	if a.KeywordMatches != b.KeywordMatches {
		return a.KeywordMatches > b.KeywordMatches
	}
	ta, okA := a.PublishedAt()
	tb, okB := b.PublishedAt()
	switch {
	case okA && okB:
		return ta.After(tb)
	case okA:
		return true
	default:
		return false
	}
}
