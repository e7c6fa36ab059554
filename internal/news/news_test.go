package news

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArticleID_StableAndShort(t *testing.T) {
	a := ArticleID("https://example.com/a")
	b := ArticleID("https://example.com/a")
	c := ArticleID("https://example.com/b")

	assert.Len(t, a, 16)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestParseTime_Formats(t *testing.T) {
	cases := []string{
		"2026-03-01T10:00:00Z",
		"2026-03-01T12:00:00+02:00",
		"2026-03-01T10:00:00",
		"2026-03-01 10:00:00",
		"Sun, 01 Mar 2026 10:00:00 +0000",
	}
	want := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for _, in := range cases {
		got, ok := ParseTime(in)
		require.True(t, ok, in)
		assert.True(t, got.Equal(want), "%s parsed as %s", in, got)
	}

	_, ok := ParseTime("yesterday")
	assert.False(t, ok)
	_, ok = ParseTime("")
	assert.False(t, ok)
}

func TestFilterFresh_DropsOldKeepsUndated(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	in := []Article{
		{ID: "old", Published: "2026-03-01T11:00:00Z"},
		{ID: "fresh", Published: "2026-03-01T11:45:00Z"},
		{ID: "undated", Published: ""},
		{ID: "garbage", Published: "not a date"},
	}

	out := FilterFresh(in, 30*time.Minute, now)

	var ids []string
	for _, a := range out {
		ids = append(ids, a.ID)
	}
	assert.Equal(t, []string{"fresh", "undated", "garbage"}, ids)
}

func TestDedupByID_KeepsFirst(t *testing.T) {
	in := []Article{
		{ID: "a", TitleOriginal: "first"},
		{ID: "b"},
		{ID: "a", TitleOriginal: "second"},
	}
	out := DedupByID(in)
	require.Len(t, out, 2)
	assert.Equal(t, "first", out[0].TitleOriginal)
}

func TestSortByPublishedDesc(t *testing.T) {
	in := []Article{
		{ID: "undated"},
		{ID: "older", Published: "2026-03-01T08:00:00Z"},
		{ID: "newer", Published: "2026-03-01T09:00:00Z"},
	}
	SortByPublishedDesc(in)
	assert.Equal(t, "newer", in[0].ID)
	assert.Equal(t, "older", in[1].ID)
	assert.Equal(t, "undated", in[2].ID)
}

func TestMergeByID_ReplacesAndAppends(t *testing.T) {
	base := []Article{{ID: "a", TitleEN: "old"}, {ID: "b"}}
	updates := []Article{{ID: "a", TitleEN: "new"}, {ID: "c"}}

	out := MergeByID(base, updates)

	require.Len(t, out, 3)
	assert.Equal(t, "new", out[0].TitleEN)
	assert.Equal(t, "c", out[2].ID)
	assert.Equal(t, "old", base[0].TitleEN, "base must not be mutated")
}

func TestCleanContent(t *testing.T) {
	raw := "<p>Hello   <b>world</b></p>\n\n<p>again</p>"
	assert.Equal(t, "Hello world again", CleanContent(raw, 1000))
	assert.Equal(t, "Hello...", CleanContent(raw, 5))
}

func TestNormalizeSeverity(t *testing.T) {
	assert.Equal(t, SeverityMajor, NormalizeSeverity("Critical"))
	assert.Equal(t, SeverityHigh, NormalizeSeverity("high"))
	assert.Equal(t, SeverityLow, NormalizeSeverity("catastrophic"))
}

func TestArticleJSON_OptionalFields(t *testing.T) {
	a := Article{ID: "x", Translated: true, SummaryEN: StringPtr("s"), Relevant: BoolPtr(false)}
	a.SetCoordinates(35.7, 51.4)

	data, err := json.Marshal(a)
	require.NoError(t, err)

	var back map[string]any
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, false, back["relevant"])
	assert.Equal(t, 35.7, back["lat"])
	assert.NotContains(t, back, "classification")
}

func TestArchiveName(t *testing.T) {
	assert.Equal(t, "2026-03-01T10-00-00_plus_00-00.json", ArchiveName("2026-03-01T10:00:00+00:00"))
}
