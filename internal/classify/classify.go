// Package classify decides which relevant articles describe attacks or other
// security events and attaches a severity, category and location to them.
package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/deusflow/threatwatch/internal/llm"
	"github.com/deusflow/threatwatch/internal/logger"
	"github.com/deusflow/threatwatch/internal/metrics"
	"github.com/deusflow/threatwatch/internal/news"
	"github.com/deusflow/threatwatch/internal/ratelimit"
	"github.com/deusflow/threatwatch/internal/retry"
)

// DefaultMaxClassify caps LLM calls per run.
const DefaultMaxClassify = 30

const systemPrompt = "You are a military intelligence analyst specializing in the Iran-United States armed conflict " +
	"and its connected fronts: Israeli operations, Houthi/Ansar Allah attacks on the US Navy, Hezbollah activity, " +
	"IRGC proxy operations in Iraq/Syria, and Iranian nuclear/missile developments. Classify news articles with precision. " +
	"Assess severity based on scale, direct US or Iranian involvement, escalation potential and strategic impact."

const promptTemplate = `Classify this news article in the context of the Iran-US war.

HEADLINE: %s
SUMMARY: %s
SOURCE: %s (%s)

Respond with ONLY valid JSON (no markdown, no extra text):
{
  "is_attack": true or false,
  "category": "%s",
  "severity": "major|high|medium|low",
  "parties_involved": ["countries, commands or groups directly involved"],
  "location": "specific location, base or region",
  "brief": "One sentence on military/strategic significance"
}

Severity guidelines:
- major: direct US-Iran state engagement, ballistic missile attack, nuclear escalation, carrier group threatened, mass casualties
- high: significant strikes with confirmed casualties or damage, major IRGC/US operations, direct threats by heads of state or CENTCOM
- medium: proxy clashes, drone/rocket attacks without major casualties, official threat statements, military mobilization
- low: sanctions, minor incidents, routine deployments, diplomatic posturing, unconfirmed reports`

// Classifier sends prefiltered articles to the LLM.
type Classifier struct {
	client      llm.Client
	policy      retry.Policy
	pacer       *ratelimit.Pacer
	maxClassify int
}

// New returns a Classifier making at most maxClassify calls per batch, half a
// second apart, with a single retry after 5s when rate limited.
func New(client llm.Client, maxClassify int) *Classifier {
	if maxClassify <= 0 {
		maxClassify = DefaultMaxClassify
	}
	return &Classifier{
		client: client,
		policy: retry.Policy{
			MaxAttempts:  2,
			InitialDelay: 5 * time.Second,
			IsRetryable:  retry.Any(llm.ErrRateLimited),
		},
		pacer:       ratelimit.NewPacer(500*time.Millisecond, 0),
		maxClassify: maxClassify,
	}
}

// llmClassification tolerates a location or party list given in the wrong
// shape.
type llmClassification struct {
	IsAttack        bool            `json:"is_attack"`
	Category        string          `json:"category"`
	Severity        string          `json:"severity"`
	PartiesInvolved json.RawMessage `json:"parties_involved"`
	Location        json.RawMessage `json:"location"`
	Brief           string          `json:"brief"`
}

func (c llmClassification) normalize() *news.Classification {
	return &news.Classification{
		IsAttack:        c.IsAttack,
		Category:        news.NormalizeCategory(c.Category),
		Severity:        news.NormalizeSeverity(c.Severity),
		PartiesInvolved: stringList(c.PartiesInvolved),
		Location:        firstString(c.Location, "Unknown"),
		Brief:           strings.TrimSpace(c.Brief),
	}
}

func stringList(raw json.RawMessage) []string {
	out := []string{}
	if len(raw) == 0 {
		return out
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		for _, s := range list {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil && strings.TrimSpace(s) != "" {
		out = append(out, strings.TrimSpace(s))
	}
	return out
}

func firstString(raw json.RawMessage, fallback string) string {
	if list := stringList(raw); len(list) > 0 {
		return list[0]
	}
	return fallback
}

// Classify asks the LLM for a verdict on a, falling back to
// DefaultClassification on any failure.
func (c *Classifier) Classify(ctx context.Context, a *news.Article) *news.Classification {
	prompt := fmt.Sprintf(promptTemplate, a.TitleEN, a.Summary(), a.SourceName, a.Region,
		strings.Join(news.AttackCategories, "|"))

	var raw string
	err := c.policy.Do(ctx, func(ctx context.Context) error {
		out, err := c.client.Complete(ctx, llm.Request{
			System:      systemPrompt,
			User:        prompt,
			Temperature: 0.2,
			MaxTokens:   400,
		})
		raw = out
		return err
	})
	if err != nil {
		logger.Warn("LLM classification failed", "id", a.ID, "error", err)
		metrics.Global.LLMCalls.WithLabelValues("classify", "error").Inc()
		metrics.Global.Classifications.WithLabelValues("fallback").Inc()
		return DefaultClassification(a)
	}
	metrics.Global.LLMCalls.WithLabelValues("classify", "ok").Inc()

	var parsed llmClassification
	if err := json.Unmarshal([]byte(llm.ExtractJSON(raw)), &parsed); err != nil {
		logger.Warn("Classification JSON parse error", "id", a.ID, "error", err)
		metrics.Global.Classifications.WithLabelValues("fallback").Inc()
		return DefaultClassification(a)
	}
	metrics.Global.Classifications.WithLabelValues("llm").Inc()
	return parsed.normalize()
}

// Stats summarises one ClassifyBatch call.
type Stats struct {
	Candidates int
	Classified int
	Attacks    int
	Merged     int
}

// ClassifyBatch runs the keyword prefilter over relevant, translated
// articles, classifies up to maxClassify unclassified candidates (highest
// keyword count first) and returns the attack articles after event dedup.
// Candidates classified in an earlier run are carried through unchanged.
func (c *Classifier) ClassifyBatch(ctx context.Context, articles []news.Article) ([]news.Article, Stats) {
	var pool []news.Article
	for _, a := range articles {
		if a.Translated && a.IsRelevant() {
			pool = append(pool, a)
		}
	}

	var stats Stats
	idx := Prefilter(pool)
	stats.Candidates = len(idx)
	logger.Info("Keyword pre-filter", "matched", len(idx), "of", len(pool))
	if len(idx) == 0 {
		return nil, stats
	}

	var todo []int
	for _, i := range idx {
		if pool[i].Classification == nil {
			todo = append(todo, i)
		}
	}
	if len(todo) > c.maxClassify {
		sort.SliceStable(todo, func(x, y int) bool {
			return pool[todo[x]].KeywordMatches > pool[todo[y]].KeywordMatches
		})
		todo = todo[:c.maxClassify]
	}

	for n, i := range todo {
		if n > 0 {
			if err := c.pacer.Wait(ctx); err != nil {
				break
			}
		}
		a := &pool[i]
		logger.Debug("Classifying", "n", n+1, "of", len(todo), "title", news.Truncate(a.TitleEN, 60))
		a.Classification = c.Classify(ctx, a)
		stats.Classified++
	}

	var attacks []news.Article
	for _, i := range idx {
		if cl := pool[i].Classification; cl != nil && cl.IsAttack {
			attacks = append(attacks, pool[i])
		}
	}
	before := len(attacks)
	attacks = DedupEvents(attacks)
	stats.Attacks = len(attacks)
	stats.Merged = before - len(attacks)

	logger.Info("Classification complete", "attacks", stats.Attacks, "candidates", stats.Candidates, "merged", stats.Merged)
	return attacks, stats
}
