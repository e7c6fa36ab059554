package threat

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deusflow/threatwatch/internal/news"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func incident(severity string, ago time.Duration) news.Article {
	return news.Article{
		Published:      news.FormatTime(now.Add(-ago)),
		Classification: &news.Classification{IsAttack: true, Severity: severity},
	}
}

func TestLevelFor(t *testing.T) {
	cases := []struct {
		score int
		label string
		level int
	}{
		{0, "LOW", 5},
		{1, "LOW", 5},
		{2, "GUARDED", 4},
		{5, "GUARDED", 4},
		{6, "ELEVATED", 3},
		{14, "ELEVATED", 3},
		{15, "HIGH", 2},
		{29, "HIGH", 2},
		{30, "MAJOR", 1},
		{300, "MAJOR", 1},
	}
	for _, c := range cases {
		t.Run(fmt.Sprint(c.score), func(t *testing.T) {
			l := LevelFor(c.score)
			assert.Equal(t, c.label, l.Label)
			assert.Equal(t, c.level, l.Level)
		})
	}
}

func TestScore_ThreeLowOneHighIsElevated(t *testing.T) {
	attacks := []news.Article{
		incident("low", time.Hour),
		incident("low", 2*time.Hour),
		incident("low", 3*time.Hour),
		incident("high", 4*time.Hour),
	}
	w := Score(attacks, 24, now)
	assert.Equal(t, 8, w.Score)
	assert.Equal(t, "ELEVATED", w.Label)
	assert.Equal(t, 3, w.Level)
	assert.Equal(t, "#CA8A04", w.Color)
	assert.Equal(t, 4, w.IncidentCount)
	assert.Equal(t, news.SeverityBreakdown{High: 1, Low: 3}, *w.SeverityBreakdown)
}

func TestScore_UnrecognisedSeverityHasOwnBucket(t *testing.T) {
	attacks := []news.Article{
		incident("low", time.Hour),
		incident("severe", time.Hour),
		incident("", time.Hour),
	}
	w := Score(attacks, 24, now)
	assert.Equal(t, 3, w.Score, "unrecognised severities weigh 1")
	assert.Equal(t, news.SeverityBreakdown{Low: 2, Unknown: 1}, *w.SeverityBreakdown)
}

func TestScore_Windows(t *testing.T) {
	undated := news.Article{Classification: &news.Classification{Severity: "critical"}}
	attacks := []news.Article{
		incident("medium", 2*time.Hour),
		incident("high", 10*time.Hour),
		incident("major", 30*time.Hour),
		incident("low", 72*time.Hour),
		undated,
	}

	short := Score(attacks, 6, now)
	assert.Equal(t, 12, short.Score)
	assert.Equal(t, 2, short.IncidentCount)

	day := Score(attacks, 24, now)
	assert.Equal(t, 17, day.Score)
	assert.Equal(t, 1, day.SeverityBreakdown.Major)

	two := Score(attacks, 48, now)
	assert.Equal(t, 27, two.Score)
	assert.Equal(t, "HIGH", two.Label)
}

func history(scores ...int) []news.HistoryEntry {
	h := make([]news.HistoryEntry, len(scores))
	for i, s := range scores {
		h[i] = news.HistoryEntry{Timestamp: news.FormatTime(now.Add(time.Duration(i-len(scores)) * 15 * time.Minute)), Score: s}
	}
	return h
}

func TestTrend(t *testing.T) {
	assert.Equal(t, TrendStable, Trend(history(1, 50, 50)))
	assert.Equal(t, TrendEscalating, Trend(history(1, 1, 1, 1)))
	assert.Equal(t, TrendStable, Trend(history(0, 0, 0, 0)))
	assert.Equal(t, TrendEscalating, Trend(history(2, 2, 2, 2, 4, 4, 4, 4)))
	assert.Equal(t, TrendDeEscalating, Trend(history(10, 10, 10, 10, 4, 4, 4, 4)))
	assert.Equal(t, TrendStable, Trend(history(10, 10, 10, 10, 8, 8, 8, 8)))
}

func TestPruneHistory(t *testing.T) {
	h := []news.HistoryEntry{
		{Timestamp: news.FormatTime(now.Add(-8 * 24 * time.Hour)), Score: 1},
		{Timestamp: "garbage", Score: 2},
		{Timestamp: news.FormatTime(now.Add(-time.Hour)), Score: 3},
	}
	out := PruneHistory(h, now)
	require.Len(t, out, 1)
	assert.Equal(t, 3, out[0].Score)

	long := make([]news.HistoryEntry, MaxHistory+10)
	for i := range long {
		long[i] = news.HistoryEntry{Timestamp: news.FormatTime(now.Add(-time.Duration(len(long)-i) * time.Minute)), Score: i}
	}
	out = PruneHistory(long, now)
	require.Len(t, out, MaxHistory)
	assert.Equal(t, 10, out[0].Score)
}

func TestCompute(t *testing.T) {
	prev := &news.ThreatReport{History: history(1, 1, 1)}
	attacks := []news.Article{incident("major", time.Hour), incident("high", 5*time.Hour)}

	r := Compute(attacks, prev, now)
	assert.Equal(t, 15, r.Current.Score)
	assert.Equal(t, "HIGH", r.Current.Label)
	assert.Equal(t, 24, r.Current.WindowHours)
	assert.Equal(t, "2026-03-01T12:00:00Z", r.Current.ComputedAt)
	assert.Equal(t, 15, r.ShortTerm6h.Score)
	assert.Nil(t, r.ShortTerm6h.SeverityBreakdown)
	require.Len(t, r.History, 4)
	assert.Equal(t, 15, r.History[3].Score)
	assert.Equal(t, TrendEscalating, r.Trend)
	assert.Len(t, prev.History, 3, "previous report must not be modified")

	first := Compute(nil, nil, now)
	assert.Equal(t, "LOW", first.Current.Label)
	assert.Equal(t, TrendStable, first.Trend)
	assert.Len(t, first.History, 1)
}
