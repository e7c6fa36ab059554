// Package app wires the fetchers, the LLM stages and the store into the
// monitoring pipeline and the maintenance commands built on it.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/deusflow/threatwatch/internal/classify"
	"github.com/deusflow/threatwatch/internal/config"
	"github.com/deusflow/threatwatch/internal/logger"
	"github.com/deusflow/threatwatch/internal/metrics"
	"github.com/deusflow/threatwatch/internal/news"
	"github.com/deusflow/threatwatch/internal/ratelimit"
	"github.com/deusflow/threatwatch/internal/sources"
	"github.com/deusflow/threatwatch/internal/storage"
	"github.com/deusflow/threatwatch/internal/summary"
	"github.com/deusflow/threatwatch/internal/threat"
	"github.com/deusflow/threatwatch/internal/translate"
)

// Fetcher pulls the sources of one type and groups articles by region.
type Fetcher interface {
	FetchAll(ctx context.Context, entries []sources.Entry) map[string][]news.Article
}

type Translator interface {
	TranslateBatch(ctx context.Context, articles []news.Article, max int, checkpoint func([]news.Article)) ([]news.Article, translate.BatchStats)
}

type Classifier interface {
	ClassifyBatch(ctx context.Context, articles []news.Article) ([]news.Article, classify.Stats)
}

type Geocoder interface {
	GeocodeAttacks(ctx context.Context, attacks []news.Article) int
}

type Summarizer interface {
	GenerateAndSave(ctx context.Context, store storage.Store, attacks []news.Article, report *news.ThreatReport, articles []news.Article) (*news.ExecutiveSummary, error)
}

// fetchOrder is the order source types are fetched and merged in.
var fetchOrder = []string{sources.TypeRSS, sources.TypeScrape, sources.TypeTelegram}

// Deps are the collaborators of a Pipeline. Fetchers is keyed by source type;
// a missing type is skipped. LLMPacer, when set, is the pacer shared by the
// LLM stages and is only read for the run summary.
type Deps struct {
	Store      storage.Store
	Fetchers   map[string]Fetcher
	Translator Translator
	Classifier Classifier
	Geocoder   Geocoder
	Summarizer Summarizer
	LLMPacer   *ratelimit.Pacer
}

type Pipeline struct {
	cfg      *config.Config
	registry *sources.Registry
	deps     Deps
	now      func() time.Time
}

func New(cfg *config.Config, registry *sources.Registry, deps Deps) *Pipeline {
	return &Pipeline{cfg: cfg, registry: registry, deps: deps, now: time.Now}
}

// RunResult reports what one run did.
type RunResult struct {
	RunID                  string
	Fetched                int
	Fresh                  int
	New                    int
	PreviouslyUntranslated int
	Translation            translate.BatchStats
	Articles               int
	Classification         classify.Stats
	NewAttacks             int
	Attacks                int
	Geocoded               int
	LLMCalls               int
	Threat                 *news.ThreatReport
	Summary                *news.ExecutiveSummary
	Duration               time.Duration
}

// FilterSinceLastFetch drops fetched articles published at or before the
// newest parseable published time in existing. Fetched articles without a
// parseable date are kept.
func FilterSinceLastFetch(existing, fetched []news.Article) []news.Article {
	var newest time.Time
	found := false
	for i := range existing {
		if t, ok := existing[i].PublishedAt(); ok && (!found || t.After(newest)) {
			newest, found = t, true
		}
	}
	if !found {
		return fetched
	}

	out := make([]news.Article, 0, len(fetched))
	for i := range fetched {
		if t, ok := fetched[i].PublishedAt(); ok && !t.After(newest) {
			continue
		}
		out = append(out, fetched[i])
	}
	if skipped := len(fetched) - len(out); skipped > 0 {
		logger.Info("Skipped articles older than newest existing", "skipped", skipped, "newest", news.FormatTime(newest))
	}
	return out
}

// unseen returns the articles of fetched whose id is neither in existing nor
// earlier in fetched.
func unseen(existing, fetched []news.Article) []news.Article {
	ids := make(map[string]bool, len(existing))
	for _, a := range existing {
		ids[a.ID] = true
	}
	var out []news.Article
	for _, a := range fetched {
		if ids[a.ID] {
			continue
		}
		ids[a.ID] = true
		out = append(out, a)
	}
	return out
}

func (p *Pipeline) settle(articles []news.Article) []news.Article {
	out := news.PruneOlderThan(articles, p.now().Add(-p.cfg.MaxArticleAge))
	news.SortByPublishedDesc(out)
	return out
}

type regionWork struct {
	existing []news.Article
	fresh    []news.Article
}

// Run executes one full pass: fetch, dedup, translate, classify, geocode,
// score and summarise. Fetch and LLM failures degrade; store failures abort.
func (p *Pipeline) Run(ctx context.Context) (*RunResult, error) {
	start := p.now()
	res := &RunResult{RunID: uuid.NewString()}
	log := logger.With("run_id", res.RunID)
	log.Info("Starting news pipeline")

	callsBefore := 0
	if p.deps.LLMPacer != nil {
		callsBefore = p.deps.LLMPacer.Used()
	}
	err := p.run(ctx, res)
	res.Duration = time.Since(start)
	if p.deps.LLMPacer != nil {
		res.LLMCalls = p.deps.LLMPacer.Used() - callsBefore
	}
	if err != nil {
		metrics.Global.SetError(err.Error())
		log.Error("Pipeline failed", "error", err)
		return res, err
	}
	metrics.Global.RecordRun(res.Duration)

	args := []any{
		"articles", res.Articles,
		"new", res.New,
		"previously_untranslated", res.PreviouslyUntranslated,
		"attacks", res.Attacks,
		"llm_calls", res.LLMCalls,
		"duration", res.Duration.Round(time.Millisecond),
	}
	if res.Threat != nil {
		args = append(args, "threat", res.Threat.Current.Label, "level", res.Threat.Current.Level)
	}
	log.Info("Pipeline complete", args...)
	if p.deps.LLMPacer != nil {
		log.Debug("LLM pacer", "stats", p.deps.LLMPacer.Stats())
	}
	return res, nil
}

func (p *Pipeline) run(ctx context.Context, res *RunResult) error {
	reg := p.registry
	if p.cfg.TestMode {
		logger.Info("TEST MODE: one region, one source")
		reg = reg.TestSubset()
	}
	regions := reg.Keys()
	now := p.now()

	// Step 1: fetch and freshness filter
	fetched := make(map[string][]news.Article, len(regions))
	for _, t := range fetchOrder {
		f, ok := p.deps.Fetchers[t]
		if !ok || f == nil {
			continue
		}
		n := 0
		for region, list := range f.FetchAll(ctx, reg.ByType(t)) {
			fetched[region] = append(fetched[region], list...)
			n += len(list)
		}
		metrics.Global.ArticlesFetched.WithLabelValues(t).Add(float64(n))
		res.Fetched += n
	}
	for region, list := range fetched {
		fetched[region] = news.FilterFresh(list, p.cfg.NewArticleAge, now)
		res.Fresh += len(fetched[region])
	}
	logger.Info("Fetch complete", "fetched", res.Fetched, "fresh", res.Fresh, "regions", len(regions))

	// Step 2: dedup against the stored feeds
	work := make(map[string]regionWork, len(regions))
	for _, region := range regions {
		existing, err := p.deps.Store.LoadArticles(ctx, region)
		if err != nil {
			return fmt.Errorf("load %s feed: %w", region, err)
		}
		fresh := unseen(existing, FilterSinceLastFetch(existing, fetched[region]))
		work[region] = regionWork{existing: existing, fresh: fresh}
		res.New += len(fresh)
		for i := range existing {
			if translate.NeedsTranslation(&existing[i]) {
				res.PreviouslyUntranslated++
			}
		}
	}
	logger.Info("Dedup complete", "new", res.New, "existing_untranslated", res.PreviouslyUntranslated)

	if res.New == 0 && res.PreviouslyUntranslated == 0 {
		logger.Info("No new or untranslated articles, updating threat level only")
		attacks, err := p.deps.Store.LoadAttacks(ctx)
		if err != nil {
			return fmt.Errorf("load attacks: %w", err)
		}
		res.Attacks = len(attacks)
		res.Threat, err = p.computeThreat(ctx, attacks)
		return err
	}

	// Step 3: translate and save per region
	var all, fresh []news.Article
	for _, region := range regions {
		w := work[region]
		var done, pending []news.Article
		for _, a := range w.existing {
			if translate.NeedsTranslation(&a) {
				pending = append(pending, a)
			} else {
				done = append(done, a)
			}
		}
		pending = append(pending, w.fresh...)

		translated := pending
		if len(pending) > 0 {
			checkpoint := func(batch []news.Article) {
				merged := p.settle(news.MergeByID(done, batch))
				if err := p.deps.Store.SaveArticles(ctx, region, merged); err != nil {
					logger.Warn("Checkpoint save failed", "region", region, "error", err)
				}
			}
			var stats translate.BatchStats
			translated, stats = p.deps.Translator.TranslateBatch(ctx, pending, p.cfg.MaxPerRegion, checkpoint)
			res.Translation.Processed += stats.Processed
			res.Translation.Relevant += stats.Relevant
			res.Translation.NotRelevant += stats.NotRelevant
			res.Translation.Failed += stats.Failed
			res.Translation.Deferred += stats.Deferred
		}

		merged := p.settle(news.MergeByID(done, translated))
		if err := p.deps.Store.SaveArticles(ctx, region, merged); err != nil {
			return fmt.Errorf("save %s feed: %w", region, err)
		}
		logger.Info("Region saved", "region", region, "articles", len(merged))
		all = append(all, merged...)

		for _, a := range translated {
			if a.Translated && a.IsRelevant() {
				fresh = append(fresh, a)
			}
		}
	}
	res.Articles = len(all)

	// Step 4: classify, merge and geocode attacks
	newAttacks, cstats := p.deps.Classifier.ClassifyBatch(ctx, fresh)
	res.Classification = cstats

	attacks, err := p.deps.Store.LoadAttacks(ctx)
	if err != nil {
		return fmt.Errorf("load attacks: %w", err)
	}
	ids := make(map[string]bool, len(attacks))
	for _, a := range attacks {
		ids[a.ID] = true
	}
	for _, a := range newAttacks {
		if ids[a.ID] {
			continue
		}
		ids[a.ID] = true
		attacks = append(attacks, a)
		res.NewAttacks++
	}
	attacks = p.settle(attacks)
	res.Geocoded = p.deps.Geocoder.GeocodeAttacks(ctx, attacks)
	if err := p.deps.Store.SaveAttacks(ctx, attacks); err != nil {
		return fmt.Errorf("save attacks: %w", err)
	}
	res.Attacks = len(attacks)
	metrics.Global.AttacksStored.Set(float64(len(attacks)))

	// Step 5: threat level
	res.Threat, err = p.computeThreat(ctx, attacks)
	if err != nil {
		return err
	}

	// Step 6: executive summary, soft failure
	s, err := p.deps.Summarizer.GenerateAndSave(ctx, p.deps.Store, attacks, res.Threat, summary.FeedArticles(all))
	if err != nil {
		logger.Warn("Executive summary generation failed", "error", err)
	} else {
		res.Summary = s
	}
	return nil
}

func (p *Pipeline) computeThreat(ctx context.Context, attacks []news.Article) (*news.ThreatReport, error) {
	prev, err := p.deps.Store.LoadThreatReport(ctx)
	if err != nil {
		return nil, fmt.Errorf("load threat level: %w", err)
	}
	report := threat.Compute(attacks, prev, p.now())
	if err := p.deps.Store.SaveThreatReport(ctx, report); err != nil {
		return nil, fmt.Errorf("save threat level: %w", err)
	}

	metrics.Global.ThreatScore.WithLabelValues("24h").Set(float64(report.Current.Score))
	metrics.Global.ThreatScore.WithLabelValues("6h").Set(float64(report.ShortTerm6h.Score))
	metrics.Global.ThreatScore.WithLabelValues("48h").Set(float64(report.MediumTerm48h.Score))
	logger.Info("Threat level computed",
		"label", report.Current.Label,
		"level", report.Current.Level,
		"score", report.Current.Score,
		"incidents", report.Current.IncidentCount,
		"trend", report.Trend)
	return report, nil
}

// RecomputeThreat rescores the stored attacks without fetching.
func (p *Pipeline) RecomputeThreat(ctx context.Context) (*news.ThreatReport, error) {
	attacks, err := p.deps.Store.LoadAttacks(ctx)
	if err != nil {
		return nil, fmt.Errorf("load attacks: %w", err)
	}
	return p.computeThreat(ctx, attacks)
}

// RegenerateSummary rebuilds the executive summary from stored documents.
// A missing threat report is computed first.
func (p *Pipeline) RegenerateSummary(ctx context.Context) (*news.ExecutiveSummary, error) {
	attacks, err := p.deps.Store.LoadAttacks(ctx)
	if err != nil {
		return nil, fmt.Errorf("load attacks: %w", err)
	}
	report, err := p.deps.Store.LoadThreatReport(ctx)
	if err != nil {
		return nil, fmt.Errorf("load threat level: %w", err)
	}
	if report == nil {
		if report, err = p.computeThreat(ctx, attacks); err != nil {
			return nil, err
		}
	}
	articles, err := storage.AllArticles(ctx, p.deps.Store)
	if err != nil {
		return nil, err
	}
	return p.deps.Summarizer.GenerateAndSave(ctx, p.deps.Store, attacks, report, summary.FeedArticles(articles))
}

// BackfillGeocode geocodes stored attacks that still lack coordinates.
func (p *Pipeline) BackfillGeocode(ctx context.Context) (int, error) {
	attacks, err := p.deps.Store.LoadAttacks(ctx)
	if err != nil {
		return 0, fmt.Errorf("load attacks: %w", err)
	}
	n := p.deps.Geocoder.GeocodeAttacks(ctx, attacks)
	if n == 0 {
		return 0, nil
	}
	if err := p.deps.Store.SaveAttacks(ctx, attacks); err != nil {
		return n, fmt.Errorf("save attacks: %w", err)
	}
	return n, nil
}

// Reset marks failed and off-topic articles of every stored region for
// reprocessing and returns how many were reset.
func (p *Pipeline) Reset(ctx context.Context) (int, error) {
	regions, err := p.deps.Store.Regions(ctx)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, region := range regions {
		articles, err := p.deps.Store.LoadArticles(ctx, region)
		if err != nil {
			return total, fmt.Errorf("load %s feed: %w", region, err)
		}
		n := translate.ResetStale(articles)
		logger.Info("Region reset", "region", region, "reset", n, "kept", len(articles)-n)
		if n == 0 {
			continue
		}
		if err := p.deps.Store.SaveArticles(ctx, region, articles); err != nil {
			return total, fmt.Errorf("save %s feed: %w", region, err)
		}
		total += n
	}
	return total, nil
}
