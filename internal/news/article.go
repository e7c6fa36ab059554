// Package news holds the records the pipeline passes between stages and
// persists: articles, their attack classification, the threat report and the
// executive summary.
package news

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Severity values accepted in a Classification.
const (
	SeverityLow    = "low"
	SeverityMedium = "medium"
	SeverityHigh   = "high"
	SeverityMajor  = "major"
)

// Source categories.
const (
	CategoryState        = "state"
	CategoryStateAligned = "state-aligned"
	CategoryProxy        = "proxy"
	CategoryIndependent  = "independent"
	CategoryUnknown      = "unknown"
)

// AttackCategories lists the categories a classifier may assign.
var AttackCategories = []string{
	"us_strike_on_iran",
	"iran_strike_on_us",
	"ballistic_missile",
	"drone_strike",
	"airstrike",
	"naval_incident",
	"houthi_attack",
	"hezbollah_action",
	"proxy_operation",
	"nuclear_development",
	"irgc_action",
	"cyber_attack",
	"threat_statement",
	"escalation",
	"military_deployment",
	"sanctions",
	"ceasefire_violation",
	"other",
}

// Article is one fetched item. The same record travels from the fetchers to
// the per-region feed documents and, when classified as an attack, to the
// attacks document.
type Article struct {
	ID              string `json:"id"`
	TitleOriginal   string `json:"title_original"`
	ContentOriginal string `json:"content_original"`
	URL             string `json:"url"`
	Published       string `json:"published"`
	FetchedAt       string `json:"fetched_at"`
	SourceName      string `json:"source_name"`
	SourceCategory  string `json:"source_category"`
	Language        string `json:"language"`
	Region          string `json:"region"`
	SkipTranslation bool   `json:"skip_translation,omitempty"`

	TitleEN    string  `json:"title_en,omitempty"`
	SummaryEN  *string `json:"summary_en,omitempty"`
	Relevant   *bool   `json:"relevant,omitempty"`
	Translated bool    `json:"translated"`

	Classification    *Classification `json:"classification,omitempty"`
	KeywordMatches    int             `json:"keyword_matches,omitempty"`
	MatchedKeywords   []string        `json:"matched_keywords,omitempty"`
	MergedSourceCount int             `json:"merged_source_count,omitempty"`

	Lat *float64 `json:"lat,omitempty"`
	Lng *float64 `json:"lng,omitempty"`
}

// Classification is the attack verdict attached to an Article.
type Classification struct {
	IsAttack        bool     `json:"is_attack"`
	Category        string   `json:"category"`
	Severity        string   `json:"severity"`
	PartiesInvolved []string `json:"parties_involved"`
	Location        string   `json:"location"`
	Brief           string   `json:"brief"`
}

// ArticleID is the stable dedup key of an article: the first 16 hex chars of
// sha256(url).
func ArticleID(url string) string {
	sum := sha256.Sum256([]byte(url))
	return hex.EncodeToString(sum[:])[:16]
}

// IsRelevant reports whether the article was explicitly marked relevant.
func (a *Article) IsRelevant() bool {
	return a.Relevant != nil && *a.Relevant
}

// Summary returns summary_en or "" when unset.
func (a *Article) Summary() string {
	if a.SummaryEN == nil {
		return ""
	}
	return *a.SummaryEN
}

// HasCoordinates reports whether both lat and lng are set.
func (a *Article) HasCoordinates() bool {
	return a.Lat != nil && a.Lng != nil
}

// SetCoordinates stores a geocoding result on the article.
func (a *Article) SetCoordinates(lat, lng float64) {
	a.Lat = &lat
	a.Lng = &lng
}

// Severity returns the classification severity, "low" when unclassified.
func (a *Article) Severity() string {
	if a.Classification == nil || a.Classification.Severity == "" {
		return SeverityLow
	}
	return a.Classification.Severity
}

// NormalizeSeverity maps provider output onto the fixed severity enum.
// "critical" is folded into "major"; anything unrecognised becomes "low".
func NormalizeSeverity(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "critical", SeverityMajor:
		return SeverityMajor
	case SeverityHigh:
		return SeverityHigh
	case SeverityMedium:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// NormalizeCategory returns c when it is a known attack category, "other" otherwise.
func NormalizeCategory(c string) string {
	c = strings.ToLower(strings.TrimSpace(c))
	for _, known := range AttackCategories {
		if c == known {
			return c
		}
	}
	return "other"
}

// StringPtr and BoolPtr build the optional fields of an Article.
func StringPtr(s string) *string { return &s }

func BoolPtr(b bool) *bool { return &b }
