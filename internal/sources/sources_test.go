package sources

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
regions:
  iran:
    label: Iran
    sources:
      - name: IRNA English
        type: rss
        url: https://en.irna.ir/rss
        language: en
        category: state
        skip_translation: true
      - name: Tasnim TG
        type: telegram
        channel: tasnimnews
        language: fa
        category: state-aligned
  gulf:
    label: Gulf
    sources:
      - name: Gulf Portal
        type: scrape
        url: https://gulf.example/news
        language: ar
        selectors:
          article: .item
          title: h3
`

func TestParse_KeepsOrderAndFields(t *testing.T) {
	reg, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)
	require.Len(t, reg.Regions, 2)

	assert.Equal(t, "iran", reg.Regions[0].Key)
	assert.Equal(t, "gulf", reg.Regions[1].Key)
	assert.True(t, reg.Regions[0].Sources[0].SkipTranslation)
	require.NotNil(t, reg.Regions[1].Sources[0].Selectors)
	assert.Equal(t, ".item", reg.Regions[1].Sources[0].Selectors.Article)

	tg := reg.ByType(TypeTelegram)
	require.Len(t, tg, 1)
	assert.Equal(t, "iran", tg[0].Region)
	assert.Equal(t, "tasnimnews", tg[0].Source.Channel)
}

func TestTestSubset(t *testing.T) {
	reg, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)

	sub := reg.TestSubset()
	require.Len(t, sub.Regions, 1)
	assert.Equal(t, "iran", sub.Regions[0].Key)
	assert.Len(t, sub.Regions[0].Sources, 1)
	assert.Len(t, reg.Regions[0].Sources, 2, "original registry untouched")
}

func TestAdd_ExistingRegion(t *testing.T) {
	reg, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)

	created, err := reg.Add("iran", NewRegion{}, Source{
		Name: "Press TV", Type: TypeRSS, URL: "https://presstv.example/rss", Language: "en", Category: "state",
	})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Len(t, reg.Region("iran").Sources, 3)
}

func TestAdd_NewRegionDefaults(t *testing.T) {
	reg, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)

	created, err := reg.Add("north_africa", NewRegion{}, Source{
		Name: "Libya Observer", Type: TypeRSS, URL: "https://libya.example/rss", Language: "en", Category: "independent",
	})
	require.NoError(t, err)
	assert.True(t, created)

	region := reg.Region("north_africa")
	require.NotNil(t, region)
	assert.Equal(t, "North Africa", region.Label)
	assert.Equal(t, DefaultRegionColor, region.Color)
}

func TestAdd_Rejects(t *testing.T) {
	reg, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)

	_, err = reg.Add("iran", NewRegion{}, Source{Name: "IRNA English", Type: TypeRSS, URL: "https://other.example/rss"})
	assert.ErrorIs(t, err, ErrDuplicate)

	_, err = reg.Add("gulf", NewRegion{}, Source{Name: "Copy", Type: TypeTelegram, Channel: "tasnimnews"})
	assert.ErrorIs(t, err, ErrDuplicate)

	_, err = reg.Add("Bad Key", NewRegion{}, Source{Name: "x", Type: TypeRSS, URL: "https://x.example"})
	assert.ErrorIs(t, err, ErrInvalid)

	_, err = reg.Add("iran", NewRegion{}, Source{Name: "x", Type: TypeTelegram})
	assert.ErrorIs(t, err, ErrInvalid)

	_, err = reg.Add("iran", NewRegion{}, Source{Name: "x", Type: TypeRSS, URL: "https://y.example", Language: "klingon"})
	assert.ErrorIs(t, err, ErrInvalid)

	_, err = reg.Add("levant", NewRegion{Color: "pink"}, Source{Name: "x", Type: TypeRSS, URL: "https://z.example"})
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	reg, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)
	_, err = reg.Add("levant", NewRegion{Label: "Levant", Color: "#f472b6"}, Source{
		Name: "Naharnet", Type: TypeRSS, URL: "https://naharnet.example/rss", Language: "en",
	})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "sources.yaml")
	require.NoError(t, reg.Save(path))

	back, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"iran", "gulf", "levant"}, back.Keys())
	assert.Equal(t, "iran", back.Regions[0].Key, "file order preserved")
	assert.Equal(t, "#f472b6", back.Region("levant").Color)
}

func TestKeys_FileOrder(t *testing.T) {
	reg, err := Parse([]byte(`regions:
  usa:
    sources: []
  iran:
    sources: []
  gulf:
    sources: []
`))
	require.NoError(t, err)
	assert.Equal(t, []string{"usa", "iran", "gulf"}, reg.Keys())
}
