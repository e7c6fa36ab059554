package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/deusflow/threatwatch/internal/config"
	"github.com/deusflow/threatwatch/internal/httpclient"
	"github.com/deusflow/threatwatch/internal/logger"
	"github.com/deusflow/threatwatch/internal/news"
	"github.com/deusflow/threatwatch/internal/rss"
	"github.com/deusflow/threatwatch/internal/sources"
	"github.com/deusflow/threatwatch/internal/storage"
)

type sourceOptions struct {
	file string

	region      string
	regionLabel string
	regionColor string

	name            string
	typ             string
	url             string
	channel         string
	language        string
	category        string
	engine          string
	skipTranslation bool

	dryRun   bool
	validate bool
	force    bool
}

func (o *sourceOptions) source() sources.Source {
	s := sources.Source{
		Name:            o.name,
		Type:            o.typ,
		Language:        o.language,
		Category:        o.category,
		SkipTranslation: o.skipTranslation,
	}
	switch o.typ {
	case sources.TypeRSS:
		s.URL = o.url
	case sources.TypeScrape:
		s.URL = o.url
		s.Engine = o.engine
	case sources.TypeTelegram:
		s.Channel = strings.TrimPrefix(o.channel, "@")
	}
	return s
}

func newSourceCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "source",
		Short: "Manage the source registry",
	}
	cmd.AddCommand(newSourceAddCommand())
	return cmd
}

func newSourceAddCommand() *cobra.Command {
	opts := &sourceOptions{}
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a source, and its region when new, to the registry",
		Long:  "Adds a source to the registry. Without --region, --name and --type the command asks for every field interactively.",
		Example: `  threatwatch source add
  threatwatch source add --region russia --name "Meduza EN" --type rss \
    --url https://meduza.io/rss/en/all --language en --category independent --skip-translation --validate
  threatwatch source add --region north_africa --region-label "North Africa" --region-color "#f472b6" \
    --name "Libya Observer" --type rss --url https://www.libyaobserver.ly/rss.xml --language en`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("configuration: %w", err)
			}
			initLogging(cfg)
			if opts.file == "" {
				opts.file = cfg.SourcesFile
			}
			reg, err := sources.Load(opts.file)
			if err != nil {
				return err
			}

			if opts.region == "" || opts.name == "" || opts.typ == "" {
				p := newPrompter(cmd.InOrStdin(), cmd.OutOrStdout())
				if err := p.fill(opts, reg); err != nil {
					return err
				}
			}

			store, err := storage.Open(ctx, cfg.StoreDriver, cfg.DataDir, cfg.DatabaseURL)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer store.Close()

			return addSource(ctx, cmd.OutOrStdout(), reg, store, opts, httpclient.New(cfg.RequestTimeout))
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.file, "file", "", "sources file (default $SOURCES_FILE)")
	f.StringVar(&opts.region, "region", "", "region key, e.g. iran or north_africa")
	f.StringVar(&opts.regionLabel, "region-label", "", "display label for a new region")
	f.StringVar(&opts.regionColor, "region-color", "", "hex color for a new region")
	f.StringVar(&opts.name, "name", "", "source display name")
	f.StringVar(&opts.typ, "type", "", "rss, scrape or telegram")
	f.StringVar(&opts.url, "url", "", "feed or page URL (rss, scrape)")
	f.StringVar(&opts.channel, "channel", "", "channel username without @ (telegram)")
	f.StringVar(&opts.language, "language", "en", "content language")
	f.StringVar(&opts.category, "category", "independent", "source category")
	f.StringVar(&opts.engine, "engine", "", "scrape engine")
	f.BoolVar(&opts.skipTranslation, "skip-translation", false, "source is already in English")
	f.BoolVar(&opts.dryRun, "dry-run", false, "show the changes without writing them")
	f.BoolVar(&opts.validate, "validate", false, "check that the URL is reachable first")
	f.BoolVar(&opts.force, "force", false, "add the source even when validation fails")
	return cmd
}

// addSource registers the source, saves the registry and creates an empty
// feed document for a new region.
func addSource(ctx context.Context, w io.Writer, reg *sources.Registry, store storage.Store, opts *sourceOptions, client *http.Client) error {
	src := opts.source()
	created, err := reg.Add(opts.region, sources.NewRegion{Label: opts.regionLabel, Color: opts.regionColor}, src)
	if err != nil {
		return err
	}

	if opts.validate && (src.Type == sources.TypeRSS || src.Type == sources.TypeScrape) {
		if err := checkReachable(ctx, client, src); err != nil {
			if !opts.force {
				return fmt.Errorf("validation failed (use --force to add anyway): %w", err)
			}
			logger.Warn("Proceeding despite failed validation", "url", src.URL, "error", err)
		}
	}

	region := reg.Region(opts.region)
	state := "existing"
	if created {
		state = "NEW"
	}
	fmt.Fprintf(w, "Region:  %s (%s)\n", region.Key, state)
	if created {
		fmt.Fprintf(w, "Label:   %s\nColor:   %s\n", region.Label, region.Color)
	}
	fmt.Fprintf(w, "Source:  %s [%s] %s%s (language %s, category %s)\n",
		src.Name, src.Type, src.URL, src.Channel, orDash(src.Language), orDash(src.Category))

	if opts.dryRun {
		fmt.Fprintln(w, "DRY RUN - nothing written.")
		return nil
	}

	if err := reg.Save(opts.file); err != nil {
		return err
	}
	fmt.Fprintf(w, "Updated %s\n", opts.file)

	if created {
		existing, err := store.LoadArticles(ctx, region.Key)
		if err != nil {
			return fmt.Errorf("load %s feed: %w", region.Key, err)
		}
		if len(existing) == 0 {
			if err := store.SaveArticles(ctx, region.Key, []news.Article{}); err != nil {
				return fmt.Errorf("create %s feed: %w", region.Key, err)
			}
			fmt.Fprintf(w, "Created empty feed for %s\n", region.Key)
		}
	}
	return nil
}

func checkReachable(ctx context.Context, client *http.Client, src sources.Source) error {
	if src.Type == sources.TypeScrape {
		_, err := httpclient.Get(ctx, client, src.URL, nil)
		return err
	}
	n, err := rss.Probe(ctx, client, src.URL)
	if err != nil {
		return err
	}
	if n == 0 {
		logger.Warn("Feed parsed but has no entries", "url", src.URL)
	} else {
		logger.Info("Feed OK", "url", src.URL, "entries", n)
	}
	return nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// prompter asks for source fields on a line-oriented terminal.
type prompter struct {
	in  *bufio.Reader
	out io.Writer
}

func newPrompter(in io.Reader, out io.Writer) *prompter {
	return &prompter{in: bufio.NewReader(in), out: out}
}

func (p *prompter) line() (string, error) {
	s, err := p.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && s != "") {
		if errors.Is(err, io.EOF) {
			return "", io.ErrUnexpectedEOF
		}
		return "", err
	}
	return strings.TrimSpace(s), nil
}

func (p *prompter) text(msg, def string) (string, error) {
	hint := ""
	if def != "" {
		hint = " [" + def + "]"
	}
	for {
		fmt.Fprintf(p.out, "%s%s: ", msg, hint)
		s, err := p.line()
		if err != nil {
			return "", err
		}
		if s == "" {
			s = def
		}
		if s != "" {
			return s, nil
		}
		fmt.Fprintln(p.out, "  Value required.")
	}
}

func (p *prompter) choice(msg string, choices []string, def string) (string, error) {
	for {
		fmt.Fprintln(p.out, msg)
		for i, c := range choices {
			marker := ""
			if c == def {
				marker = " (default)"
			}
			fmt.Fprintf(p.out, "  %d. %s%s\n", i+1, c, marker)
		}
		fmt.Fprint(p.out, "> ")
		s, err := p.line()
		if err != nil {
			return "", err
		}
		if s == "" && def != "" {
			return def, nil
		}
		if n, err := strconv.Atoi(s); err == nil && n >= 1 && n <= len(choices) {
			return choices[n-1], nil
		}
		for _, c := range choices {
			if s == c {
				return c, nil
			}
		}
		fmt.Fprintf(p.out, "  Invalid. Choose 1-%d or type a value.\n", len(choices))
	}
}

func (p *prompter) confirm(msg string, def bool) (bool, error) {
	hint := " [y/N]"
	if def {
		hint = " [Y/n]"
	}
	fmt.Fprintf(p.out, "%s%s: ", msg, hint)
	s, err := p.line()
	if err != nil {
		return false, err
	}
	switch strings.ToLower(s) {
	case "":
		return def, nil
	case "y", "yes", "1", "true":
		return true, nil
	default:
		return false, nil
	}
}

func sorted(list []string) []string {
	out := append([]string(nil), list...)
	sort.Strings(out)
	return out
}

// fill asks for every source field, offering the registry's regions.
func (p *prompter) fill(o *sourceOptions, reg *sources.Registry) error {
	fmt.Fprintf(p.out, "Existing regions: %s\n", strings.Join(sorted(reg.Keys()), ", "))

	region, err := p.text("Region key (existing or new)", "")
	if err != nil {
		return err
	}
	o.region = strings.ReplaceAll(strings.ToLower(region), " ", "_")

	if reg.Region(o.region) == nil {
		fmt.Fprintf(p.out, "Region %q is new.\n", o.region)
		if o.regionLabel, err = p.text("Region display label", sources.DefaultLabel(o.region)); err != nil {
			return err
		}
		if o.regionColor, err = p.text("Region hex color", sources.DefaultRegionColor); err != nil {
			return err
		}
	}

	if o.typ, err = p.choice("Source type:", sources.ValidTypes, sources.TypeRSS); err != nil {
		return err
	}
	if o.name, err = p.text("Source display name", ""); err != nil {
		return err
	}
	if o.typ == sources.TypeTelegram {
		if o.channel, err = p.text("Telegram channel username (without @)", ""); err != nil {
			return err
		}
	} else if o.url, err = p.text("Feed URL", ""); err != nil {
		return err
	}

	if o.language, err = p.choice("Content language:", sorted(sources.ValidLanguages), "en"); err != nil {
		return err
	}
	if o.category, err = p.choice("Source category:", sorted(sources.ValidCategories), "independent"); err != nil {
		return err
	}
	if o.skipTranslation, err = p.confirm("Skip translation?", o.language == "en"); err != nil {
		return err
	}
	if o.typ == sources.TypeScrape {
		if o.engine, err = p.choice("Scrape engine:", []string{"goquery", "playwright"}, "goquery"); err != nil {
			return err
		}
	}
	return nil
}
