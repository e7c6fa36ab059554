// Package summary writes the executive briefing: an LLM synthesis of the
// threat report, the classified attacks and the latest relevant articles,
// with a deterministic fallback when the LLM is unavailable.
package summary

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/deusflow/threatwatch/internal/llm"
	"github.com/deusflow/threatwatch/internal/logger"
	"github.com/deusflow/threatwatch/internal/metrics"
	"github.com/deusflow/threatwatch/internal/news"
	"github.com/deusflow/threatwatch/internal/retry"
	"github.com/deusflow/threatwatch/internal/storage"
)

var errParse = errors.New("summary reply is not valid JSON")

// Generator produces executive summaries. A nil client always yields the
// fallback briefing.
type Generator struct {
	client llm.Client
	policy retry.Policy
	now    func() time.Time
}

// New returns a Generator retrying rate limits, network errors and bad JSON
// five times with a linearly growing 5s delay.
func New(client llm.Client) *Generator {
	return &Generator{
		client: client,
		policy: retry.Policy{
			MaxAttempts:  5,
			InitialDelay: 5 * time.Second,
			Linear:       true,
			IsRetryable:  retry.Either(retry.Any(llm.ErrRateLimited, errParse), retry.IsTransient),
			OnRetry: func(attempt int, delay time.Duration, err error) {
				logger.Warn("Summary attempt failed, retrying", "attempt", attempt, "wait", delay, "error", err)
			},
		},
		now: time.Now,
	}
}

// FeedArticles keeps the relevant, translated articles, newest first.
func FeedArticles(articles []news.Article) []news.Article {
	var out []news.Article
	for _, a := range articles {
		if a.Translated && a.IsRelevant() {
			out = append(out, a)
		}
	}
	news.SortByPublishedDesc(out)
	return out
}

func (g *Generator) briefing(ctx context.Context, prompt string) (*news.Briefing, error) {
	var result news.Briefing
	err := g.policy.Do(ctx, func(ctx context.Context) error {
		text, err := g.client.Complete(ctx, llm.Request{
			System:      systemPrompt,
			User:        prompt,
			Temperature: 0.3,
			MaxTokens:   2000,
		})
		if err != nil {
			return err
		}
		var b news.Briefing
		if err := json.Unmarshal([]byte(llm.ExtractJSON(text)), &b); err != nil {
			return fmt.Errorf("%w: %v", errParse, err)
		}
		result = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// Generate builds a summary from the given inputs. LLM failures fall back to
// the deterministic briefing; Generate itself never fails.
func (g *Generator) Generate(ctx context.Context, attacks []news.Article, report *news.ThreatReport, articles []news.Article) *news.ExecutiveSummary {
	now := g.now().UTC()
	logger.Info("Generating executive summary", "attacks", len(attacks), "articles", len(articles))

	var b *news.Briefing
	if g.client != nil {
		var err error
		b, err = g.briefing(ctx, UserPrompt(attacks, report, articles, now))
		if err != nil {
			logger.Error("All summary attempts failed", "error", err)
			metrics.Global.LLMCalls.WithLabelValues("summary", "error").Inc()
		} else {
			metrics.Global.LLMCalls.WithLabelValues("summary", "ok").Inc()
			logger.Info("Executive summary generated via LLM")
		}
	}
	if b == nil {
		logger.Warn("Using fallback deterministic summary")
		fb := Fallback(attacks, report)
		b = &fb
	}
	normalize(b)

	return &news.ExecutiveSummary{
		GeneratedAt:    news.FormatTime(now),
		ThreatSnapshot: Snapshot(report),
		SourceCount: news.SourceCount{
			AttacksAnalyzed:  len(attacks),
			ArticlesAnalyzed: len(articles),
			RegionsCovered:   regionsCovered(attacks, articles),
		},
		Briefing: *b,
	}
}

// GenerateAndSave archives the current summary, generates a new one and
// stores it.
func (g *Generator) GenerateAndSave(ctx context.Context, store storage.Store, attacks []news.Article, report *news.ThreatReport, articles []news.Article) (*news.ExecutiveSummary, error) {
	prev, err := store.LoadSummary(ctx)
	if err != nil {
		return nil, fmt.Errorf("load current summary: %w", err)
	}
	if prev != nil {
		if _, err := store.ArchiveSummary(ctx, prev, storage.DefaultArchiveKeep); err != nil {
			logger.Warn("Failed to archive previous summary", "error", err)
		}
	}

	s := g.Generate(ctx, attacks, report, articles)
	if err := store.SaveSummary(ctx, s); err != nil {
		return nil, fmt.Errorf("save summary: %w", err)
	}
	logger.Info("Executive summary saved", "generated_at", s.GeneratedAt)
	return s, nil
}

// Snapshot copies the threat figures shown alongside a summary. A missing
// report yields level 5, UNKNOWN, stable.
func Snapshot(r *news.ThreatReport) news.ThreatSnapshot {
	if r == nil {
		return news.ThreatSnapshot{Level: 5, Label: "UNKNOWN", Color: "#16a34a", Trend: "stable"}
	}
	s := news.ThreatSnapshot{
		Level:            r.Current.Level,
		Label:            orUnknown(r.Current.Label, "UNKNOWN"),
		Color:            orUnknown(r.Current.Color, "#16a34a"),
		Trend:            orUnknown(r.Trend, "stable"),
		IncidentCount24h: r.Current.IncidentCount,
		IncidentCount6h:  r.ShortTerm6h.IncidentCount,
	}
	if s.Level == 0 {
		s.Level = 5
	}
	if r.Current.SeverityBreakdown != nil {
		s.SeverityBreakdown = *r.Current.SeverityBreakdown
	}
	return s
}

func regionsCovered(attacks, articles []news.Article) []string {
	seen := map[string]bool{}
	for _, list := range [][]news.Article{attacks, articles} {
		for _, a := range list {
			seen[orUnknown(a.Region, "unknown")] = true
		}
	}
	out := make([]string, 0, len(seen))
	for r := range seen {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}

// Fallback builds the briefing from counts alone.
func Fallback(attacks []news.Article, r *news.ThreatReport) news.Briefing {
	label, level, trend := "UNKNOWN", "?", "stable"
	var total int
	var bd news.SeverityBreakdown
	if r != nil {
		label = orUnknown(r.Current.Label, label)
		level = fmt.Sprint(r.Current.Level)
		trend = orUnknown(r.Trend, trend)
		total = r.Current.IncidentCount
		if r.Current.SeverityBreakdown != nil {
			bd = *r.Current.SeverityBreakdown
		}
	}

	limit := attacks
	if len(limit) > maxAttacksInPrompt {
		limit = limit[:maxAttacksInPrompt]
	}
	counts := map[string]int{}
	var order []string
	for _, a := range limit {
		cat := "unknown"
		if a.Classification != nil && a.Classification.Category != "" {
			cat = a.Classification.Category
		}
		if counts[cat] == 0 {
			order = append(order, cat)
		}
		counts[cat]++
	}
	sort.SliceStable(order, func(i, j int) bool { return counts[order[i]] > counts[order[j]] })
	if len(order) > 5 {
		order = order[:5]
	}
	cats := make([]string, len(order))
	for i, c := range order {
		cats[i] = fmt.Sprintf("%s (%d)", c, counts[c])
	}

	confirmed := []string{}
	head := attacks
	if len(head) > maxConfirmedFallbacks {
		head = head[:maxConfirmedFallbacks]
	}
	for _, a := range head {
		sev := a.Severity()
		if sev != news.SeverityMajor && sev != news.SeverityHigh {
			continue
		}
		brief := ""
		if a.Classification != nil {
			brief = a.Classification.Brief
		}
		confirmed = append(confirmed, fmt.Sprintf("%s - %s", orUnknown(a.TitleEN, "Unknown event"), brief))
	}

	return news.Briefing{
		ExecutiveSummary: fmt.Sprintf("Threat level is %s (Level %s) with %d incidents in the last 24 hours (%d major, %d high). Trend: %s. Top event categories: %s.",
			label, level, total, bd.Major, bd.High, trend, strings.Join(cats, "; ")),
		WhatsNew: []string{
			fmt.Sprintf("%d classified incidents in the last 24 hours", total),
			"Threat trend: " + trend,
		},
		ConfirmedEvents: confirmed,
		UnverifiedEmerging: []string{
			"Automated fallback - LLM summary unavailable. Review individual attack cards for source-level detail.",
		},
		OperationalImpacts: news.OperationalImpacts{
			PeopleTravel: []string{"Check regional advisories for Gulf states and Israel."},
			SupplyChain:  []string{"Monitor Gulf maritime and Red Sea corridor disruptions."},
			MarketMacro:  []string{"Expect heightened oil and shipping volatility."},
		},
		Outlook: news.Outlook{
			BaseCase: fmt.Sprintf("With %d incidents and a %s trend, continued exchange of strikes and interceptions is the base expectation.", total, trend),
			EscalationRisks: []string{
				"Proxy expansion targeting shipping and allied interests.",
				"Civilian harm incidents intensifying diplomatic backlash.",
			},
			DeEscalationPathways: "Emergency diplomatic efforts via back-channels remain possible but no concrete signals observed in current data.",
		},
	}
}

// normalize replaces missing lists with empty ones so the frontend never
// sees null.
func normalize(b *news.Briefing) {
	for _, p := range []*[]string{
		&b.WhatsNew, &b.ConfirmedEvents, &b.UnverifiedEmerging,
		&b.OperationalImpacts.PeopleTravel, &b.OperationalImpacts.SupplyChain, &b.OperationalImpacts.MarketMacro,
		&b.Outlook.EscalationRisks,
	} {
		if *p == nil {
			*p = []string{}
		}
	}
}
