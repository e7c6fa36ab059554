package news

import (
	"strings"
)

// SeverityBreakdown counts incidents per severity inside a window.
type SeverityBreakdown struct {
	Major   int `json:"major"`
	High    int `json:"high"`
	Medium  int `json:"medium"`
	Low     int `json:"low"`
	Unknown int `json:"unknown,omitempty"`
}

// WindowScore is the threat score of one time window.
type WindowScore struct {
	Score             int                `json:"score"`
	Level             int                `json:"level"`
	Label             string             `json:"label"`
	Color             string             `json:"color,omitempty"`
	IncidentCount     int                `json:"incident_count"`
	SeverityBreakdown *SeverityBreakdown `json:"severity_breakdown,omitempty"`
	WindowHours       int                `json:"window_hours,omitempty"`
	ComputedAt        string             `json:"computed_at,omitempty"`
}

// HistoryEntry is one sample of the 24h score kept for trend computation.
type HistoryEntry struct {
	Timestamp     string `json:"timestamp"`
	Level         int    `json:"level"`
	Label         string `json:"label"`
	Score         int    `json:"score"`
	IncidentCount int    `json:"incident_count"`
}

// ThreatReport is the threat_level document.
type ThreatReport struct {
	Current       WindowScore    `json:"current"`
	ShortTerm6h   WindowScore    `json:"short_term_6h"`
	MediumTerm48h WindowScore    `json:"medium_term_48h"`
	Trend         string         `json:"trend"`
	History       []HistoryEntry `json:"history"`
	UpdatedAt     string         `json:"updated_at"`
}

// OperationalImpacts groups impact bullets of an executive summary.
type OperationalImpacts struct {
	PeopleTravel []string `json:"people_travel"`
	SupplyChain  []string `json:"supply_chain"`
	MarketMacro  []string `json:"market_macro"`
}

// Outlook is the 24-72h forecast section of an executive summary.
type Outlook struct {
	BaseCase             string   `json:"base_case"`
	EscalationRisks      []string `json:"escalation_risks"`
	DeEscalationPathways string   `json:"de_escalation_pathways"`
}

// Briefing is the analytical body of an executive summary, as produced by the
// LLM or by the deterministic fallback.
type Briefing struct {
	ExecutiveSummary   string             `json:"executive_summary"`
	WhatsNew           []string           `json:"whats_new"`
	ConfirmedEvents    []string           `json:"confirmed_events"`
	UnverifiedEmerging []string           `json:"unverified_emerging"`
	OperationalImpacts OperationalImpacts `json:"operational_impacts"`
	Outlook            Outlook            `json:"outlook_24_72h"`
}

// ThreatSnapshot copies the threat report fields shown next to a summary.
type ThreatSnapshot struct {
	Level             int               `json:"level"`
	Label             string            `json:"label"`
	Color             string            `json:"color"`
	Trend             string            `json:"trend"`
	IncidentCount24h  int               `json:"incident_count_24h"`
	IncidentCount6h   int               `json:"incident_count_6h"`
	SeverityBreakdown SeverityBreakdown `json:"severity_breakdown"`
}

// SourceCount describes the input a summary was built from.
type SourceCount struct {
	AttacksAnalyzed  int      `json:"attacks_analyzed"`
	ArticlesAnalyzed int      `json:"articles_analyzed"`
	RegionsCovered   []string `json:"regions_covered"`
}

// ExecutiveSummary is the executive_summary document.
type ExecutiveSummary struct {
	GeneratedAt    string         `json:"generated_at"`
	ThreatSnapshot ThreatSnapshot `json:"threat_snapshot"`
	SourceCount    SourceCount    `json:"source_count"`
	Briefing
}

// ArchiveEntry is one line of the summary archive index.
type ArchiveEntry struct {
	Filename         string `json:"filename"`
	GeneratedAt      string `json:"generated_at"`
	ThreatLabel      string `json:"threat_label"`
	ThreatLevel      int    `json:"threat_level"`
	Trend            string `json:"trend"`
	IncidentCount24h int    `json:"incident_count_24h"`
	SummaryPreview   string `json:"summary_preview"`
}

// ArchiveName derives the archive document name from a generated_at timestamp.
func ArchiveName(generatedAt string) string {
	r := strings.NewReplacer(":", "-", "+", "_plus_")
	return r.Replace(generatedAt) + ".json"
}

// NewArchiveEntry builds the index line for an archived summary.
func NewArchiveEntry(name string, s *ExecutiveSummary) ArchiveEntry {
	return ArchiveEntry{
		Filename:         name,
		GeneratedAt:      s.GeneratedAt,
		ThreatLabel:      s.ThreatSnapshot.Label,
		ThreatLevel:      s.ThreatSnapshot.Level,
		Trend:            s.ThreatSnapshot.Trend,
		IncidentCount24h: s.ThreatSnapshot.IncidentCount24h,
		SummaryPreview:   Truncate(s.ExecutiveSummary, 200),
	}
}
