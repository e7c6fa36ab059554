// Package sources loads and edits the YAML registry of monitored sources.
//
//	regions:
//	  iran:
//	    label: Iran
//	    sources:
//	      - name: IRNA English
//	        type: rss
//	        url: https://en.irna.ir/rss
//	        language: en
//	        category: state
//	        skip_translation: true
package sources

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Source types.
const (
	TypeRSS      = "rss"
	TypeScrape   = "scrape"
	TypeTelegram = "telegram"
)

// DefaultRegionColor is used for regions added without an explicit color.
const DefaultRegionColor = "#6b7280"

var (
	ErrInvalid   = errors.New("invalid source")
	ErrDuplicate = errors.New("duplicate source")
)

var (
	ValidTypes      = []string{TypeRSS, TypeScrape, TypeTelegram}
	ValidCategories = []string{"state", "state-aligned", "proxy", "independent", "unknown"}
	ValidLanguages  = []string{"en", "ar", "fa", "ru", "he", "zh", "tr", "ur", "hi", "fr", "de", "es", "pt"}

	regionKeyRe = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)
	hexColorRe  = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)
)

// Selectors are comma separated CSS selector lists used by scrape sources.
type Selectors struct {
	Article string `yaml:"article,omitempty"`
	Title   string `yaml:"title,omitempty"`
	Link    string `yaml:"link,omitempty"`
	Date    string `yaml:"date,omitempty"`
	Content string `yaml:"content,omitempty"`
}

// Source is one feed, page or channel.
type Source struct {
	Name            string     `yaml:"name"`
	Type            string     `yaml:"type"`
	URL             string     `yaml:"url,omitempty"`
	Channel         string     `yaml:"channel,omitempty"`
	Language        string     `yaml:"language,omitempty"`
	Category        string     `yaml:"category,omitempty"`
	SkipTranslation bool       `yaml:"skip_translation,omitempty"`
	Engine          string     `yaml:"engine,omitempty"`
	FullText        bool       `yaml:"full_text,omitempty"`
	Selectors       *Selectors `yaml:"selectors,omitempty"`
}

// Region groups sources under a key such as "iran" or "gulf".
type Region struct {
	Key     string   `yaml:"-"`
	Label   string   `yaml:"label,omitempty"`
	Color   string   `yaml:"color,omitempty"`
	Sources []Source `yaml:"sources"`
}

// Registry keeps regions in file order.
type Registry struct {
	Regions []*Region
}

// Entry pairs a source with the region it belongs to.
type Entry struct {
	Region string
	Source Source
}

type registryFile struct {
	Regions yaml.Node `yaml:"regions"`
}

// Load reads the registry from path.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sources %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes registry YAML, keeping region order.
func Parse(data []byte) (*Registry, error) {
	var f registryFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse sources: %w", err)
	}

	reg := &Registry{}
	if f.Regions.Kind == 0 {
		return reg, nil
	}
	if f.Regions.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("parse sources: regions must be a mapping")
	}
	for i := 0; i+1 < len(f.Regions.Content); i += 2 {
		var r Region
		if err := f.Regions.Content[i+1].Decode(&r); err != nil {
			return nil, fmt.Errorf("parse region %q: %w", f.Regions.Content[i].Value, err)
		}
		r.Key = f.Regions.Content[i].Value
		reg.Regions = append(reg.Regions, &r)
	}
	return reg, nil
}

// Marshal encodes the registry with two-space indentation.
func (r *Registry) Marshal() ([]byte, error) {
	regions := &yaml.Node{Kind: yaml.MappingNode}
	for _, region := range r.Regions {
		var value yaml.Node
		if err := value.Encode(region); err != nil {
			return nil, err
		}
		regions.Content = append(regions.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: region.Key},
			&value,
		)
	}
	root := &yaml.Node{Kind: yaml.MappingNode, Content: []*yaml.Node{
		{Kind: yaml.ScalarNode, Value: "regions"},
		regions,
	}}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(root); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Save writes the registry back to path.
func (r *Registry) Save(path string) error {
	data, err := r.Marshal()
	if err != nil {
		return fmt.Errorf("encode sources: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write sources %s: %w", path, err)
	}
	return nil
}

// Region returns the region with key, or nil.
func (r *Registry) Region(key string) *Region {
	for _, region := range r.Regions {
		if region.Key == key {
			return region
		}
	}
	return nil
}

// Keys returns region keys in file order.
func (r *Registry) Keys() []string {
	keys := make([]string, 0, len(r.Regions))
	for _, region := range r.Regions {
		keys = append(keys, region.Key)
	}
	return keys
}

// ByType lists every source of the given type with its region.
func (r *Registry) ByType(sourceType string) []Entry {
	var out []Entry
	for _, region := range r.Regions {
		for _, s := range region.Sources {
			if s.Type == sourceType {
				out = append(out, Entry{Region: region.Key, Source: s})
			}
		}
	}
	return out
}

// TestSubset keeps only the first region with its first source.
func (r *Registry) TestSubset() *Registry {
	for _, region := range r.Regions {
		if len(region.Sources) == 0 {
			continue
		}
		return &Registry{Regions: []*Region{{
			Key:     region.Key,
			Label:   region.Label,
			Color:   region.Color,
			Sources: region.Sources[:1],
		}}}
	}
	return &Registry{}
}

// NewRegion describes the region to create when Add targets an unknown key.
type NewRegion struct {
	Label string
	Color string
}

// Add validates s and appends it under regionKey. It reports whether the
// region was created.
func (r *Registry) Add(regionKey string, nr NewRegion, s Source) (bool, error) {
	if err := ValidateRegionKey(regionKey); err != nil {
		return false, err
	}
	if err := Validate(s); err != nil {
		return false, err
	}

	region := r.Region(regionKey)
	for _, existing := range r.allSources() {
		key := s.URL
		if key == "" {
			key = s.Channel
		}
		if key != "" && (existing.URL == key || existing.Channel == key) {
			return false, fmt.Errorf("%w: url/channel %q already registered", ErrDuplicate, key)
		}
	}
	if region != nil {
		for _, existing := range region.Sources {
			if existing.Name == s.Name {
				return false, fmt.Errorf("%w: %q already exists in region %q", ErrDuplicate, s.Name, regionKey)
			}
		}
		region.Sources = append(region.Sources, s)
		return false, nil
	}

	if nr.Label == "" {
		nr.Label = DefaultLabel(regionKey)
	}
	if nr.Color == "" {
		nr.Color = DefaultRegionColor
	}
	if !hexColorRe.MatchString(nr.Color) {
		return false, fmt.Errorf("%w: region color must be a hex color like #f472b6 (got %q)", ErrInvalid, nr.Color)
	}
	r.Regions = append(r.Regions, &Region{
		Key:     regionKey,
		Label:   nr.Label,
		Color:   nr.Color,
		Sources: []Source{s},
	})
	return true, nil
}

func (r *Registry) allSources() []Source {
	var out []Source
	for _, region := range r.Regions {
		out = append(out, region.Sources...)
	}
	return out
}

// DefaultLabel turns "north_africa" into "North Africa".
func DefaultLabel(key string) string {
	words := strings.Fields(strings.ReplaceAll(key, "_", " "))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// ValidateRegionKey checks the key format.
func ValidateRegionKey(key string) error {
	if !regionKeyRe.MatchString(key) {
		return fmt.Errorf("%w: region key must match %s (got %q)", ErrInvalid, regionKeyRe.String(), key)
	}
	return nil
}

// Validate checks a source definition and returns every problem found.
func Validate(s Source) error {
	var problems []string
	if s.Name == "" {
		problems = append(problems, "name is required")
	}
	if !contains(ValidTypes, s.Type) {
		problems = append(problems, fmt.Sprintf("type must be one of %v", ValidTypes))
	}
	if (s.Type == TypeRSS || s.Type == TypeScrape) && s.URL == "" {
		problems = append(problems, "url is required for rss/scrape sources")
	}
	if s.Type == TypeTelegram && s.Channel == "" {
		problems = append(problems, "channel is required for telegram sources")
	}
	if s.Language != "" && !contains(ValidLanguages, s.Language) {
		problems = append(problems, fmt.Sprintf("language must be one of %v", ValidLanguages))
	}
	if s.Category != "" && !contains(ValidCategories, s.Category) {
		problems = append(problems, fmt.Sprintf("category must be one of %v", ValidCategories))
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
