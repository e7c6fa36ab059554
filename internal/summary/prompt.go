package summary

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/deusflow/threatwatch/internal/news"
)

const (
	maxAttacksInPrompt    = 30
	maxArticlesPerRegion  = 5
	maxConfirmedFallbacks = 8
)

const systemPrompt = `You are a senior intelligence analyst producing an executive briefing on the Iran-United States armed conflict and all connected fronts (Israel, Houthis, Hezbollah, IRGC proxies, Gulf states).

Your audience is a crisis management team that needs an actionable, factual, concise situational overview. Write in a professional, analytical tone, like a NATO SITREP or a corporate security briefing.

CRITICAL RULES:
- Base your analysis STRICTLY on the data provided. Do not invent events or details.
- Distinguish clearly between confirmed events and unverified claims.
- When sources disagree or claims are unverified, say so explicitly.
- MULTI-SOURCE CORROBORATION: when the same event is reported by 2 or more independent sources, note it explicitly ("Confirmed by multiple sources: ..."). Multi-source events are elevated in priority regardless of source category.
- Prioritize military/security events by severity (major > high > medium > low).
- Keep each bullet to 1-2 sentences.
- Use 24h clock and CET timezone for all times.
- Do NOT include company-specific or organizational recommendations.

UNVERIFIED/EMERGING SECTION: include all of the following if present in the data, even from a single source, flagging the source:
- Deaths or incapacitation of heads of state, military commanders or senior officials
- New explosions, strikes or attacks not yet corroborated
- Terror attacks or assassinations
- Major supply chain disruptions (port closures, pipeline shutdowns, shipping route blocks)
- Nuclear/WMD escalation signals
- Any single-source claim that, if true, would materially change the situation

Respond with ONLY valid JSON matching the schema described in the user prompt. No markdown wrapping, no extra text.`

const outputSchema = `Respond with ONLY this JSON structure:
{
  "executive_summary": "2-4 sentence top-line overview: what is happening, what changed, and the trajectory",
  "whats_new": ["bullet 1", "bullet 2"],
  "confirmed_events": ["bullet 1", "bullet 2"],
  "unverified_emerging": ["bullet 1", "bullet 2"],
  "operational_impacts": {
    "people_travel": ["bullet 1"],
    "supply_chain": ["bullet 1"],
    "market_macro": ["bullet 1"]
  },
  "outlook_24_72h": {
    "base_case": "paragraph describing the most likely trajectory",
    "escalation_risks": ["risk 1", "risk 2"],
    "de_escalation_pathways": "paragraph on possible de-escalation routes"
  }
}`

var severityOrder = map[string]int{"major": 0, "critical": 0, "high": 1, "medium": 2, "low": 3}

func severityIndex(a *news.Article) int {
	if i, ok := severityOrder[a.Severity()]; ok {
		return i
	}
	return 3
}

// ThreatBlock renders the threat report for the prompt.
func ThreatBlock(r *news.ThreatReport) string {
	if r == nil {
		return "Threat level data unavailable."
	}
	var b news.SeverityBreakdown
	if r.Current.SeverityBreakdown != nil {
		b = *r.Current.SeverityBreakdown
	}
	label := r.Current.Label
	if label == "" {
		label = "UNKNOWN"
	}
	return fmt.Sprintf("Current threat level: %s (Level %d/5, Score %d)\n"+
		"24h window: %d incidents (Major: %d, High: %d, Medium: %d, Low: %d)\n"+
		"6h window: %d incidents, Level %s\n"+
		"48h window: %d incidents, Level %s\n"+
		"Trend: %s\n"+
		"Last updated: %s",
		label, r.Current.Level, r.Current.Score,
		r.Current.IncidentCount, b.Major, b.High, b.Medium, b.Low,
		r.ShortTerm6h.IncidentCount, orUnknown(r.ShortTerm6h.Label, "?"),
		r.MediumTerm48h.IncidentCount, orUnknown(r.MediumTerm48h.Label, "?"),
		orUnknown(r.Trend, "unknown"),
		orUnknown(r.UpdatedAt, "unknown"))
}

// SortForPrompt orders attacks by severity, newest first within a severity.
func SortForPrompt(attacks []news.Article) []news.Article {
	out := make([]news.Article, len(attacks))
	copy(out, attacks)
	news.SortByPublishedDesc(out)
	sort.SliceStable(out, func(i, j int) bool { return severityIndex(&out[i]) < severityIndex(&out[j]) })
	return out
}

// AttacksBlock renders up to 30 attacks, most severe first.
func AttacksBlock(attacks []news.Article) string {
	if len(attacks) == 0 {
		return "No attack events recorded."
	}
	selected := SortForPrompt(attacks)
	if len(selected) > maxAttacksInPrompt {
		selected = selected[:maxAttacksInPrompt]
	}

	lines := make([]string, 0, len(selected))
	for i := range selected {
		a := &selected[i]
		c := a.Classification
		if c == nil {
			c = &news.Classification{}
		}
		lines = append(lines, fmt.Sprintf("%d. [%s] (%s) %s - Category: %s; Location: %s; Parties: %s; Brief: %s",
			i+1,
			strings.ToUpper(orUnknown(c.Severity, "unknown")),
			orUnknown(a.Published, "unknown time"),
			orUnknown(a.TitleEN, "No title"),
			orUnknown(c.Category, "unknown"),
			orUnknown(c.Location, "unknown"),
			strings.Join(c.PartiesInvolved, ", "),
			orUnknown(c.Brief, "N/A")))
	}
	return strings.Join(lines, "\n")
}

// ArticlesBlock renders up to five articles per region, regions in order of
// first appearance.
func ArticlesBlock(articles []news.Article) string {
	if len(articles) == 0 {
		return "No recent feed articles available."
	}
	var order []string
	byRegion := map[string][]news.Article{}
	for _, a := range articles {
		region := orUnknown(a.Region, "unknown")
		if _, ok := byRegion[region]; !ok {
			order = append(order, region)
		}
		byRegion[region] = append(byRegion[region], a)
	}

	var lines []string
	for _, region := range order {
		top := byRegion[region]
		if len(top) > maxArticlesPerRegion {
			top = top[:maxArticlesPerRegion]
		}
		lines = append(lines, "\n--- "+strings.ToUpper(region)+" ---")
		for _, a := range top {
			lines = append(lines, fmt.Sprintf("• [%s] %s: %s",
				orUnknown(a.SourceName, "?"), orUnknown(a.TitleEN, "No title"), orUnknown(a.Summary(), "No summary")))
		}
	}
	return strings.Join(lines, "\n")
}

// UserPrompt assembles the full briefing request.
func UserPrompt(attacks []news.Article, r *news.ThreatReport, articles []news.Article, now time.Time) string {
	return fmt.Sprintf(`Generate an executive briefing for the Iran-US conflict situation as of %s.

=== THREAT LEVEL ===
%s

=== CLASSIFIED ATTACK EVENTS (ordered by severity, then recency) ===
%s

=== RECENT INTELLIGENCE FEED ARTICLES (by region) ===
%s

=== INSTRUCTIONS ===
Based STRICTLY on the data above, produce a structured executive summary.
- "whats_new": the most recent developments (last 1-2 hours if timestamps allow, otherwise last 6h).
- "confirmed_events": events reported by multiple sources or with clear evidence of occurrence.
- "unverified_emerging": claims from single sources, state propaganda figures or unconfirmed reports. Always flag the source.
- "operational_impacts": near-term impacts on civilian travel/aviation, maritime/supply chains and energy markets.
- "outlook_24_72h": analytical forecast based on the pattern of events, trend and severity trajectory.

%s`, now.UTC().Format("2006-01-02 15:04 UTC"), ThreatBlock(r), AttacksBlock(attacks), ArticlesBlock(articles), outputSchema)
}

func orUnknown(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}
