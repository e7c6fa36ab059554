// Package geocode places attack locations on the map: a built-in table for
// the common places, then Nominatim for everything else.
package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/deusflow/threatwatch/internal/cache"
	"github.com/deusflow/threatwatch/internal/httpclient"
	"github.com/deusflow/threatwatch/internal/logger"
	"github.com/deusflow/threatwatch/internal/metrics"
	"github.com/deusflow/threatwatch/internal/news"
	"github.com/deusflow/threatwatch/internal/ratelimit"
	"github.com/deusflow/threatwatch/internal/retry"
)

const (
	DefaultNominatimURL = "https://nominatim.openstreetmap.org"
	userAgent           = "NewFeedsApp/1.0 (geocoder)"
	queryInterval       = 1100 * time.Millisecond

	hitTTL  = 30 * 24 * time.Hour
	missTTL = 24 * time.Hour
	missVal = "miss"
)

var stripPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(over|around|near|approximately|at least|more than)\s+\d+\s+\w+`),
	regexp.MustCompile(`(?i)\(.*?\)`),
	regexp.MustCompile(`(?i)\b(near|outskirts of|off the|coast of)\b`),
	regexp.MustCompile(`(?i)\b(occupied|central|eastern|western|northern|southern)\b`),
	regexp.MustCompile(`(?i)\b(airspace|borders|region|area|coast|provinces?|governorate|city|military bases?)\b`),
	regexp.MustCompile(`(?i)\b(and surrounding|and the Gulf)\b`),
	regexp.MustCompile(`(?i)US (military )?bases? in\s+`),
	regexp.MustCompile(`(?i)American bases? in\s+`),
	regexp.MustCompile(`(?i)IRGC\s+`),
	regexp.MustCompile(`(?i)^\s*the\s+`),
}

var (
	partSplit = regexp.MustCompile(`[,;/]|\band\b`)
	spaces    = regexp.MustCompile(`\s+`)
)

// Clean strips qualifiers ("near", "northern", "province", parenthesised
// notes, ...) from a location string.
func Clean(loc string) string {
	cleaned := loc
	for _, re := range stripPatterns {
		cleaned = re.ReplaceAllString(cleaned, " ")
	}
	cleaned = spaces.ReplaceAllString(cleaned, " ")
	return strings.Trim(cleaned, " ,;-")
}

// Candidates lists lookup queries for loc, best first: the original, its
// cleaned form, then each separated part raw and cleaned. Duplicates (case
// insensitive) and unplaceable values are dropped.
func Candidates(loc string) []string {
	loc = strings.TrimSpace(loc)
	list := []string{loc}
	if c := Clean(loc); c != "" && c != loc {
		list = append(list, c)
	}
	for _, part := range partSplit.Split(loc, -1) {
		p := strings.TrimSpace(part)
		if len([]rune(p)) <= 2 {
			continue
		}
		list = append(list, p)
		if cp := Clean(p); cp != "" && cp != p {
			list = append(list, cp)
		}
	}

	seen := map[string]bool{}
	out := make([]string, 0, len(list))
	for _, c := range list {
		key := strings.ToLower(c)
		if seen[key] || skip[key] {
			continue
		}
		seen[key] = true
		out = append(out, c)
	}
	return out
}

// Fallback resolves loc from the built-in table only.
func Fallback(loc string) (float64, float64, bool) {
	if c, ok := fallback[strings.ToLower(strings.TrimSpace(loc))]; ok {
		return c.lat, c.lng, true
	}
	if c, ok := fallback[strings.ToLower(Clean(loc))]; ok {
		return c.lat, c.lng, true
	}
	for _, cand := range Candidates(loc) {
		if c, ok := fallback[strings.ToLower(cand)]; ok {
			return c.lat, c.lng, true
		}
	}
	return 0, 0, false
}

// Geocoder resolves location strings to coordinates.
type Geocoder struct {
	client  *http.Client
	baseURL string
	cache   cache.Store
	pacer   *ratelimit.Pacer
	policy  retry.Policy
}

// New returns a Geocoder querying baseURL (Nominatim) at most once every
// 1.1s. store may be nil to disable caching.
func New(client *http.Client, baseURL string, store cache.Store) *Geocoder {
	if baseURL == "" {
		baseURL = DefaultNominatimURL
	}
	return &Geocoder{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		cache:   store,
		pacer:   ratelimit.NewPacer(queryInterval, 0),
		policy: retry.Policy{
			MaxAttempts:  2,
			InitialDelay: 2 * time.Second,
			IsRetryable:  retry.IsTransient,
		},
	}
}

type place struct {
	Lat string `json:"lat"`
	Lon string `json:"lon"`
}

func (g *Geocoder) nominatim(ctx context.Context, query string) (float64, float64, bool, error) {
	if err := g.pacer.Wait(ctx); err != nil {
		return 0, 0, false, err
	}
	u := g.baseURL + "/search?" + url.Values{"q": {query}, "format": {"json"}, "limit": {"1"}}.Encode()

	var body []byte
	err := g.policy.Do(ctx, func(ctx context.Context) error {
		b, err := httpclient.Get(ctx, g.client, u, map[string]string{"User-Agent": userAgent})
		body = b
		return err
	})
	if err != nil {
		return 0, 0, false, err
	}

	var results []place
	if err := json.Unmarshal(body, &results); err != nil {
		return 0, 0, false, fmt.Errorf("decode nominatim reply: %w", err)
	}
	if len(results) == 0 {
		return 0, 0, false, nil
	}
	lat, err1 := strconv.ParseFloat(results[0].Lat, 64)
	lng, err2 := strconv.ParseFloat(results[0].Lon, 64)
	if err1 != nil || err2 != nil {
		return 0, 0, false, fmt.Errorf("bad coordinates %q,%q", results[0].Lat, results[0].Lon)
	}
	return lat, lng, true, nil
}

func (g *Geocoder) cached(ctx context.Context, query string) (lat, lng float64, hit, found bool) {
	if g.cache == nil {
		return 0, 0, false, false
	}
	v, ok, err := g.cache.Get(ctx, "geocode:"+strings.ToLower(query))
	if err != nil || !ok {
		return 0, 0, false, false
	}
	if v == missVal {
		return 0, 0, false, true
	}
	parts := strings.SplitN(v, ",", 2)
	if len(parts) != 2 {
		return 0, 0, false, false
	}
	lat, err1 := strconv.ParseFloat(parts[0], 64)
	lng, err2 := strconv.ParseFloat(parts[1], 64)
	if err1 != nil || err2 != nil {
		return 0, 0, false, false
	}
	return lat, lng, true, true
}

func (g *Geocoder) remember(ctx context.Context, query string, lat, lng float64, hit bool) {
	if g.cache == nil {
		return
	}
	val, ttl := missVal, missTTL
	if hit {
		val, ttl = strconv.FormatFloat(lat, 'f', 6, 64)+","+strconv.FormatFloat(lng, 'f', 6, 64), hitTTL
	}
	if err := g.cache.Set(ctx, "geocode:"+strings.ToLower(query), val, ttl); err != nil {
		logger.Debug("Geocode cache write failed", "query", query, "error", err)
	}
}

// Lookup resolves loc: built-in table first, then each candidate through the
// cache and Nominatim. Misses are cached too.
func (g *Geocoder) Lookup(ctx context.Context, loc string) (float64, float64, bool) {
	if skip[strings.ToLower(strings.TrimSpace(loc))] {
		return 0, 0, false
	}
	if lat, lng, ok := Fallback(loc); ok {
		metrics.Global.GeocodeLookups.WithLabelValues("table").Inc()
		return lat, lng, true
	}

	for _, cand := range Candidates(loc) {
		if lat, lng, hit, found := g.cached(ctx, cand); found {
			if hit {
				metrics.Global.GeocodeLookups.WithLabelValues("cache").Inc()
				return lat, lng, true
			}
			continue
		}

		lat, lng, ok, err := g.nominatim(ctx, cand)
		if err != nil {
			logger.Warn("Nominatim query failed", "query", cand, "error", err)
			if ctx.Err() != nil {
				break
			}
			continue
		}
		g.remember(ctx, cand, lat, lng, ok)
		if ok {
			metrics.Global.GeocodeLookups.WithLabelValues("nominatim").Inc()
			return lat, lng, true
		}
	}

	metrics.Global.GeocodeLookups.WithLabelValues("miss").Inc()
	return 0, 0, false
}

// GeocodeAttacks fills lat/lng on attacks that have a location and no
// coordinates yet. It returns how many were geocoded.
func (g *Geocoder) GeocodeAttacks(ctx context.Context, attacks []news.Article) int {
	already := 0
	for i := range attacks {
		if attacks[i].HasCoordinates() {
			already++
		}
	}
	logger.Info("Geocoder starting", "attacks", len(attacks), "with_coords", already)

	geocoded := 0
	var missing []string
	for i := range attacks {
		a := &attacks[i]
		if a.HasCoordinates() {
			continue
		}
		loc := ""
		if a.Classification != nil {
			loc = strings.TrimSpace(a.Classification.Location)
		}
		if skip[strings.ToLower(loc)] {
			missing = append(missing, "(no location)")
			continue
		}

		lat, lng, ok := g.Lookup(ctx, loc)
		if !ok {
			logger.Warn("Geocode miss", "location", loc)
			missing = append(missing, loc)
			continue
		}
		a.SetCoordinates(lat, lng)
		geocoded++
		logger.Debug("Geocoded", "location", loc, "lat", lat, "lng", lng)
	}

	logger.Info("Geocoder done", "geocoded", geocoded, "with_coords", already+geocoded, "total", len(attacks), "missing", len(missing))
	return geocoded
}
