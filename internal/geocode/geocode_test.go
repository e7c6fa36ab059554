package geocode

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deusflow/threatwatch/internal/cache"
	"github.com/deusflow/threatwatch/internal/news"
	"github.com/deusflow/threatwatch/internal/ratelimit"
)

func TestClean(t *testing.T) {
	assert.Equal(t, "Isfahan , Iran", Clean("Near Isfahan (nuclear site), Iran"))
	assert.Equal(t, "Lebanon", Clean("Southern Lebanon"))
	assert.Equal(t, "Qatar", Clean("American bases in Qatar"))
	assert.Equal(t, "Khuzestan", Clean("Khuzestan Province"))
}

func TestCandidates(t *testing.T) {
	got := Candidates("Northern Israel and Golan Heights")
	assert.Equal(t, []string{"Northern Israel and Golan Heights", "Israel and Golan Heights", "Northern Israel", "Israel", "Golan Heights"}, got)

	assert.Empty(t, Candidates("Unknown"))
}

func TestFallback(t *testing.T) {
	lat, lng, ok := Fallback("Near Isfahan (nuclear site), Iran")
	require.True(t, ok)
	assert.Equal(t, 32.65, lat)
	assert.Equal(t, 51.68, lng)

	lat, _, ok = Fallback("TEHRAN")
	require.True(t, ok)
	assert.Equal(t, 35.69, lat)

	_, _, ok = Fallback("Kharg Island")
	assert.False(t, ok)
}

func nominatimServer(t *testing.T, hits *int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "json", r.URL.Query().Get("format"))
		assert.Equal(t, "1", r.URL.Query().Get("limit"))
		assert.Equal(t, userAgent, r.Header.Get("User-Agent"))

		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("q") == "Kharg Island" {
			_, _ = w.Write([]byte(`[{"lat":"29.2500","lon":"50.3200","display_name":"Kharg"}]`))
			return
		}
		_, _ = w.Write([]byte(`[]`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestGeocoder(srv *httptest.Server, store cache.Store) *Geocoder {
	g := New(srv.Client(), srv.URL+"/", store)
	g.pacer = ratelimit.NewPacer(0, 0)
	g.policy.InitialDelay = 0
	return g
}

func TestLookup_NominatimAndCache(t *testing.T) {
	var hits int32
	srv := nominatimServer(t, &hits)
	store := cache.NewMemory()
	defer store.Close()
	g := newTestGeocoder(srv, store)
	ctx := context.Background()

	lat, lng, ok := g.Lookup(ctx, "Kharg Island")
	require.True(t, ok)
	assert.Equal(t, 29.25, lat)
	assert.Equal(t, 50.32, lng)
	assert.EqualValues(t, 1, atomic.LoadInt32(&hits))

	_, _, ok = g.Lookup(ctx, "Kharg Island")
	require.True(t, ok)
	assert.EqualValues(t, 1, atomic.LoadInt32(&hits))

	_, _, ok = g.Lookup(ctx, "Nowhere Land")
	assert.False(t, ok)
	assert.EqualValues(t, 2, atomic.LoadInt32(&hits))

	_, _, ok = g.Lookup(ctx, "Nowhere Land")
	assert.False(t, ok)
	assert.EqualValues(t, 2, atomic.LoadInt32(&hits), "misses are cached")
}

func TestLookup_TableSkipsNetwork(t *testing.T) {
	var hits int32
	srv := nominatimServer(t, &hits)
	g := newTestGeocoder(srv, nil)

	_, _, ok := g.Lookup(context.Background(), "Haifa, Israel")
	assert.True(t, ok)
	assert.Zero(t, atomic.LoadInt32(&hits))
}

func TestGeocodeAttacks(t *testing.T) {
	var hits int32
	srv := nominatimServer(t, &hits)
	g := newTestGeocoder(srv, cache.NewMemory())

	placed := news.Article{ID: "placed", Classification: &news.Classification{Location: "Tehran"}}
	placed.SetCoordinates(1, 2)

	attacks := []news.Article{
		placed,
		{ID: "tehran", Classification: &news.Classification{Location: "Tehran, Iran"}},
		{ID: "unknown", Classification: &news.Classification{Location: "Unknown"}},
		{ID: "bare"},
	}

	n := g.GeocodeAttacks(context.Background(), attacks)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1.0, *attacks[0].Lat)
	require.True(t, attacks[1].HasCoordinates())
	assert.Equal(t, 35.69, *attacks[1].Lat)
	assert.False(t, attacks[2].HasCoordinates())
	assert.False(t, attacks[3].HasCoordinates())
	assert.Zero(t, atomic.LoadInt32(&hits))
}
