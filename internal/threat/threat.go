// Package threat turns classified attacks into a DEFCON-style threat level
// over sliding windows and tracks its trend.
package threat

import (
	"time"

	"github.com/deusflow/threatwatch/internal/news"
)

// Trend labels.
const (
	TrendEscalating   = "escalating"
	TrendDeEscalating = "de-escalating"
	TrendStable       = "stable"
)

const (
	// HistoryRetention is how far back history entries are kept.
	HistoryRetention = 7 * 24 * time.Hour
	// MaxHistory is one entry per 15 minutes over HistoryRetention.
	MaxHistory = 672
)

// Level is one row of the threshold table.
type Level struct {
	Level    int
	Label    string
	Color    string
	MinScore int
}

// Levels is ordered from most to least severe; the first row whose MinScore
// the score reaches wins.
var Levels = []Level{
	{Level: 1, Label: "MAJOR", Color: "#DC2626", MinScore: 30},
	{Level: 2, Label: "HIGH", Color: "#EA580C", MinScore: 15},
	{Level: 3, Label: "ELEVATED", Color: "#CA8A04", MinScore: 6},
	{Level: 4, Label: "GUARDED", Color: "#2563EB", MinScore: 2},
	{Level: 5, Label: "LOW", Color: "#16A34A", MinScore: 0},
}

var weights = map[string]int{
	"major":    10,
	"critical": 10,
	"high":     5,
	"medium":   2,
	"low":      1,
	"unknown":  1,
}

// Weight returns the score contribution of one incident of severity.
func Weight(severity string) int {
	if w, ok := weights[severity]; ok {
		return w
	}
	return 1
}

// LevelFor maps a score to its level.
func LevelFor(score int) Level {
	for _, l := range Levels {
		if score >= l.MinScore {
			return l
		}
	}
	return Levels[len(Levels)-1]
}

// Score sums incident weights over attacks published within the last hours.
// Attacks without a parseable published time are counted as recent.
func Score(attacks []news.Article, hours int, now time.Time) news.WindowScore {
	cutoff := now.Add(-time.Duration(hours) * time.Hour)

	total := 0
	count := 0
	var breakdown news.SeverityBreakdown
	for i := range attacks {
		a := &attacks[i]
		if t, ok := a.PublishedAt(); ok && t.Before(cutoff) {
			continue
		}
		count++
		sev := a.Severity()
		total += Weight(sev)
		switch sev {
		case "major", "critical":
			breakdown.Major++
		case "high":
			breakdown.High++
		case "medium":
			breakdown.Medium++
		case "low":
			breakdown.Low++
		default:
			breakdown.Unknown++
		}
	}

	l := LevelFor(total)
	return news.WindowScore{
		Score:             total,
		Level:             l.Level,
		Label:             l.Label,
		Color:             l.Color,
		IncidentCount:     count,
		SeverityBreakdown: &breakdown,
		WindowHours:       hours,
	}
}

func brief(w news.WindowScore) news.WindowScore {
	return news.WindowScore{
		Score:         w.Score,
		Level:         w.Level,
		Label:         w.Label,
		IncidentCount: w.IncidentCount,
	}
}

// Compute builds the threat report for now: 24h current window, 6h and 48h
// context windows, history extended by one entry then pruned, and the trend.
// previous may be nil.
func Compute(attacks []news.Article, previous *news.ThreatReport, now time.Time) *news.ThreatReport {
	now = now.UTC()
	stamp := news.FormatTime(now)

	current := Score(attacks, 24, now)
	current.ComputedAt = stamp

	var history []news.HistoryEntry
	if previous != nil {
		history = append(history, previous.History...)
	}
	history = append(history, news.HistoryEntry{
		Timestamp:     stamp,
		Level:         current.Level,
		Label:         current.Label,
		Score:         current.Score,
		IncidentCount: current.IncidentCount,
	})
	history = PruneHistory(history, now)

	return &news.ThreatReport{
		Current:       current,
		ShortTerm6h:   brief(Score(attacks, 6, now)),
		MediumTerm48h: brief(Score(attacks, 48, now)),
		Trend:         Trend(history),
		History:       history,
		UpdatedAt:     stamp,
	}
}

// PruneHistory drops entries older than HistoryRetention (and those whose
// timestamp does not parse), then keeps the newest MaxHistory.
func PruneHistory(history []news.HistoryEntry, now time.Time) []news.HistoryEntry {
	cutoff := now.Add(-HistoryRetention)
	out := make([]news.HistoryEntry, 0, len(history))
	for _, h := range history {
		t, ok := news.ParseTime(h.Timestamp)
		if !ok || t.Before(cutoff) {
			continue
		}
		out = append(out, h)
	}
	if len(out) > MaxHistory {
		out = out[len(out)-MaxHistory:]
	}
	return out
}

// Trend compares the mean of the last four scores with the four before.
// With fewer than four entries the trend is stable; with fewer than eight
// the older mean is zero.
func Trend(history []news.HistoryEntry) string {
	n := len(history)
	if n < 4 {
		return TrendStable
	}
	avgRecent := mean(history[n-4:])
	avgOlder := 0.0
	if n >= 8 {
		avgOlder = mean(history[n-8 : n-4])
	}
	switch {
	case avgRecent > avgOlder*1.5:
		return TrendEscalating
	case avgRecent < avgOlder*0.5:
		return TrendDeEscalating
	default:
		return TrendStable
	}
}

func mean(h []news.HistoryEntry) float64 {
	sum := 0
	for _, e := range h {
		sum += e.Score
	}
	return float64(sum) / float64(len(h))
}
