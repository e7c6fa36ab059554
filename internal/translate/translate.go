// Package translate turns fetched articles into English headlines with a
// relevance verdict and, for relevant items, a short English summary. One LLM
// call per article.
package translate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/deusflow/threatwatch/internal/llm"
	"github.com/deusflow/threatwatch/internal/logger"
	"github.com/deusflow/threatwatch/internal/metrics"
	"github.com/deusflow/threatwatch/internal/news"
	"github.com/deusflow/threatwatch/internal/ratelimit"
	"github.com/deusflow/threatwatch/internal/retry"
)

const (
	// NotRelevantMarker is stored as summary_en for articles judged off-topic.
	NotRelevantMarker = "[Not relevant to Iran-US war monitor]"

	maxTitleChars   = 200
	maxContentChars = 700
	batchDelay      = 2500 * time.Millisecond
	checkpointEvery = 10
)

var languageNames = map[string]string{
	"fa": "Persian (Farsi)",
	"ru": "Russian",
	"ar": "Arabic",
	"he": "Hebrew",
	"en": "English",
}

// staleMarkers are summary prefixes written by failed or off-topic passes.
var staleMarkers = []string{"[API unavailable", "[Translation failed", "[Parse error", "[Not relevant"}

const systemPrompt = `You are an intelligence analyst running a real-time war monitor for the ongoing Iran-United States armed conflict and all its connected fronts.

CONFLICT CONTEXT:
- Iran and the US are in active armed conflict. Iran has launched ballistic missiles and drones at US bases and carrier groups. The US has struck IRGC assets, nuclear facilities and Iranian territory.
- Active fronts: US strikes on Iran; Iranian retaliation on US bases in Iraq/Syria/Gulf; Houthi attacks on US Navy in the Red Sea; Hezbollah activity on Israel's northern border; IRGC proxy operations across Iraq, Syria, Lebanon, Yemen; Israeli operations in Gaza and against Iran-linked targets.
- Priority entities: IRGC, Quds Force, Houthis/Ansar Allah, Hezbollah, Hamas, PMF (Iraq), US CENTCOM, US Navy/5th Fleet, IDF, Russian and Chinese positions on the conflict.

YOUR TASK for each article:
1. Translate the headline to concise English: field "h".
2. Decide RELEVANT (field "r": true/false).
   TRUE for military strikes/attacks/casualties, US forces in the region, Iran (military, nuclear, leadership, IRGC), Israeli operations, Houthi/Hezbollah/Hamas/PMF actions, US bases in the Gulf, naval incidents in Gulf/Red Sea/Arabian Sea, missile/drone launches, air-defense intercepts, nuclear developments, escalation/de-escalation signals, oil infrastructure attacks, war-linked sanctions.
   FALSE for domestic politics unrelated to the war, sports, entertainment, weather, local crime, economy (unless oil/sanctions), culture, health.
3. If r=true: write a 2-3 sentence English summary in field "s" covering WHO did WHAT to WHOM, WHERE, and the military significance.
4. If r=false: set "s" to null.

Respond with ONLY valid JSON: {"h": "...", "r": true or false, "s": "..." or null}`

// Translator runs the translate+relevance prompt.
type Translator struct {
	client llm.Client
	policy retry.Policy
	pacer  *ratelimit.Pacer
}

// New returns a Translator that retries rate-limited and transient network
// failures five times with doubling delays and spaces successive articles by
// 2.5s.
func New(client llm.Client) *Translator {
	return &Translator{
		client: client,
		policy: retry.Policy{
			MaxAttempts:  5,
			InitialDelay: 5 * time.Second,
			Multiplier:   2,
			IsRetryable:  retry.Either(retry.Any(llm.ErrRateLimited), retry.IsTransient),
			OnRetry: func(attempt int, delay time.Duration, err error) {
				logger.Warn("Translation call failed, backing off", "attempt", attempt, "wait", delay, "error", err)
			},
		},
		pacer: ratelimit.NewPacer(batchDelay, 0),
	}
}

// LanguageName returns the prompt name of an ISO code, or the code itself.
func LanguageName(code string) string {
	if n, ok := languageNames[code]; ok {
		return n
	}
	return code
}

// NeedsTranslation reports whether the article still waits for an LLM pass.
// skip_translation articles count as pending until relevance is known.
func NeedsTranslation(a *news.Article) bool {
	if !a.Translated {
		return true
	}
	return a.SkipTranslation && a.Relevant == nil
}

type verdict struct {
	Headline string  `json:"h"`
	Relevant bool    `json:"r"`
	Summary  *string `json:"s"`
}

func buildPrompt(a *news.Article) string {
	title := news.Truncate(a.TitleOriginal, maxTitleChars)
	content := news.Truncate(a.ContentOriginal, maxContentChars)
	if a.Language == "en" || a.Language == "" {
		return fmt.Sprintf("[English] %s\n---\n%s\n---\nJSON only: {\"h\":\"headline\",\"r\":true/false,\"s\":\"summary or null\"}", title, content)
	}
	return fmt.Sprintf("[%s] %s\n---\n%s\n---\nJSON only: {\"h\":\"English headline\",\"r\":true/false,\"s\":\"summary or null\"}",
		LanguageName(a.Language), title, content)
}

// Translate fills title_en, summary_en, relevant and translated on a. LLM
// failures never return an error; they leave the article untranslated so the
// next run picks it up again.
func (t *Translator) Translate(ctx context.Context, a *news.Article) {
	lang := LanguageName(a.Language)
	title := news.Truncate(a.TitleOriginal, maxTitleChars)

	var raw string
	err := t.policy.Do(ctx, func(ctx context.Context) error {
		out, err := t.client.Complete(ctx, llm.Request{
			System:      systemPrompt,
			User:        buildPrompt(a),
			Temperature: 0.1,
			MaxTokens:   350,
		})
		raw = out
		return err
	})
	if err != nil || strings.TrimSpace(raw) == "" {
		if err != nil && !errors.Is(err, llm.ErrEmptyResponse) {
			logger.Warn("Translation call failed", "id", a.ID, "error", err)
		}
		metrics.Global.LLMCalls.WithLabelValues("translate", "error").Inc()
		metrics.Global.ArticlesTranslated.WithLabelValues("unavailable").Inc()
		a.TitleEN = title
		a.SummaryEN = news.StringPtr(fmt.Sprintf("[API unavailable - %s source]", lang))
		a.Translated = false
		return
	}
	metrics.Global.LLMCalls.WithLabelValues("translate", "ok").Inc()

	var v verdict
	if err := json.Unmarshal([]byte(llm.ExtractJSON(raw)), &v); err != nil {
		logger.Warn("Translation JSON parse error", "id", a.ID, "raw", news.Truncate(raw, 120))
		a.TitleEN = title
		raw = strings.TrimSpace(raw)
		if len(raw) > 10 {
			a.SummaryEN = news.StringPtr(news.Truncate(raw, 400))
			a.Relevant = news.BoolPtr(true)
			a.Translated = true
			metrics.Global.ArticlesTranslated.WithLabelValues("raw").Inc()
			return
		}
		a.SummaryEN = news.StringPtr(fmt.Sprintf("[Parse error - %s source]", lang))
		a.Translated = false
		metrics.Global.ArticlesTranslated.WithLabelValues("parse_error").Inc()
		return
	}

	a.TitleEN = strings.TrimSpace(v.Headline)
	if a.TitleEN == "" {
		a.TitleEN = title
	}
	a.Relevant = news.BoolPtr(v.Relevant)
	if v.Relevant && v.Summary != nil && strings.TrimSpace(*v.Summary) != "" {
		a.SummaryEN = news.StringPtr(strings.TrimSpace(*v.Summary))
		metrics.Global.ArticlesTranslated.WithLabelValues("relevant").Inc()
	} else {
		a.SummaryEN = news.StringPtr(NotRelevantMarker)
		metrics.Global.ArticlesTranslated.WithLabelValues("not_relevant").Inc()
	}
	a.Translated = true
}

// BatchStats summarises one TranslateBatch call.
type BatchStats struct {
	Processed   int
	Relevant    int
	NotRelevant int
	Failed      int
	Deferred    int
}

// TranslateBatch processes up to max pending articles in order and returns
// every input article: done ones untouched, processed ones updated and the
// overflow still pending for the next run. checkpoint, when set, receives the
// full list every ten processed articles.
func (t *Translator) TranslateBatch(ctx context.Context, articles []news.Article, max int, checkpoint func([]news.Article)) ([]news.Article, BatchStats) {
	out := make([]news.Article, len(articles))
	copy(out, articles)

	for i := range out {
		a := &out[i]
		if !a.Translated && a.SkipTranslation {
			a.TitleEN = a.TitleOriginal
			a.Translated = true
		}
	}

	// relevance-only items first, then untranslated ones
	var pending []int
	for i := range out {
		if out[i].Translated && NeedsTranslation(&out[i]) {
			pending = append(pending, i)
		}
	}
	for i := range out {
		if !out[i].Translated {
			pending = append(pending, i)
		}
	}

	var stats BatchStats
	if len(pending) == 0 {
		logger.Info("No new articles to translate")
		return out, stats
	}
	if max > 0 && len(pending) > max {
		logger.Info("Capping translation batch", "pending", len(pending), "max", max)
		stats.Deferred = len(pending) - max
		pending = pending[:max]
	}

	logger.Info("Translating articles", "count", len(pending))
	for n, idx := range pending {
		if ctx.Err() != nil {
			stats.Deferred += len(pending) - n
			break
		}
		if n > 0 {
			if err := t.pacer.Wait(ctx); err != nil {
				stats.Deferred += len(pending) - n
				break
			}
		}

		a := &out[idx]
		logger.Debug("Translating", "n", n+1, "of", len(pending), "source", a.SourceName, "title", news.Truncate(a.TitleOriginal, 60))

		skip := a.SkipTranslation
		t.Translate(ctx, a)
		if skip && a.Translated {
			a.TitleEN = a.TitleOriginal
		}
		if skip && !a.Translated {
			// keep it out of the untranslated queue; relevance stays unknown
			a.Translated = true
			a.TitleEN = a.TitleOriginal
			a.Relevant = nil
		}

		stats.Processed++
		switch {
		case !a.Translated || a.Relevant == nil:
			stats.Failed++
		case a.IsRelevant():
			stats.Relevant++
		default:
			stats.NotRelevant++
		}

		if checkpoint != nil && (n+1)%checkpointEvery == 0 {
			checkpoint(out)
			logger.Info("Translation checkpoint saved", "processed", n+1)
		}
	}

	logger.Info("Translation batch done",
		"relevant", stats.Relevant,
		"not_relevant", stats.NotRelevant,
		"failed", stats.Failed,
		"deferred", stats.Deferred)
	return out, stats
}

// ResetStale clears the LLM output of articles that failed or were judged
// off-topic so they go through translation again. It returns the number of
// articles reset.
func ResetStale(articles []news.Article) int {
	n := 0
	for i := range articles {
		a := &articles[i]
		if a.Translated && !hasStaleMarker(a.Summary()) {
			continue
		}
		a.Translated = false
		a.TitleEN = ""
		a.SummaryEN = nil
		a.Relevant = nil
		n++
	}
	return n
}

func hasStaleMarker(summary string) bool {
	for _, m := range staleMarkers {
		if strings.HasPrefix(summary, m) {
			return true
		}
	}
	return false
}
