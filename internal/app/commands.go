package app

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/spadilla89/proxy-universe/internal/app/version"
	"github.com/spadilla89/proxy-universe/internal/domain"
	"github.com/spadilla89/proxy-universe/internal/export"
	"github.com/spadilla89/proxy-universe/internal/geolite"
	"github.com/spadilla89/proxy-universe/internal/jobs/checker"
	"github.com/spadilla89/proxy-universe/internal/jobs/scraper"
	"github.com/spadilla89/proxy-universe/internal/state"
	"github.com/spadilla89/proxy-universe/internal/support"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
)

/* ─────────────────────────────  fetch  ──────────────────────────────────── */

type fetchOptions struct {
	protocol  string
	countries []string
	anonymity []string
	validate  bool
	search    string
	output    string
	format    string
	exportDir string
}

func (c *cli) newFetchCommand() *cobra.Command {
	opts := fetchOptions{}

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Gather proxies of one protocol from every enabled source",
		Example: `  proxyuniverse fetch --protocol socks5 --country US --country DE
  proxyuniverse fetch -p https --anonymity elite --validate --export ./out`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.runFetch(cmd, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.protocol, "protocol", "p", "http", "http, https, socks4 or socks5")
	flags.StringSliceVarP(&opts.countries, "country", "c", nil, "keep only these ISO country codes")
	flags.StringSliceVarP(&opts.anonymity, "anonymity", "a", nil, "keep only these anonymity levels (elite, anonymous, transparent)")
	flags.BoolVar(&opts.validate, "validate", false, "probe every proxy after fetching")
	flags.StringVarP(&opts.search, "search", "s", "", "substring to match against ip, port or country")
	flags.StringVarP(&opts.output, "output", "o", "text", "text, json or yaml")
	flags.StringVar(&opts.format, "format", "", "text template, e.g. \"protocol://ip:port country\"")
	flags.StringVar(&opts.exportDir, "export", "", "also write an export file into this directory")
	addValidatorFlags(cmd)
	flags.String("country-db", "", "GeoLite2-Country.mmdb used to fill missing countries")
	flags.Bool("browser", false, "fetch scraped pages through headless Chrome")
	flags.Bool("respect-robots", false, "skip pages disallowed by robots.txt")
	return cmd
}

func (c *cli) runFetch(cmd *cobra.Command, opts fetchOptions) error {
	ctx := cmd.Context()

	protocol, err := domain.ParseProtocol(opts.protocol)
	if err != nil {
		return err
	}
	levels, err := parseAnonymityLevels(opts.anonymity)
	if err != nil {
		return err
	}
	if err := checkCountryCodes(opts.countries); err != nil {
		return err
	}
	if err := checkOutput(opts.output); err != nil {
		return err
	}

	all, closeSources := c.deps.newSources(c.cfg)
	defer func() {
		if err := closeSources(); err != nil {
			log.Warn("error closing sources", "error", err)
		}
	}()

	aggregatorOpts := []scraper.Option{scraper.WithTimeouts(c.cfg.Sources.APITimeout, c.cfg.Sources.ScraperTimeout)}
	if locator := c.openLocator(); locator != nil {
		defer locator.Close()
		aggregatorOpts = append(aggregatorOpts, scraper.WithEnricher(locator))
	}

	store := state.New(scraper.NewAggregator(all, aggregatorOpts...), c.newValidator())
	store.SelectCountries(opts.countries...)
	store.SetAnonymity(levels)
	store.SetSearchQuery(opts.search)

	unsubscribe := store.Subscribe(progressLogger())
	defer unsubscribe()

	err = store.Fetch(ctx, protocol)
	reportMessages(store)
	if err != nil {
		return err
	}

	if opts.validate {
		err = store.ValidateAll(ctx)
		reportMessages(store)
		if err != nil {
			return err
		}
	}

	proxies := store.Filtered()
	if opts.exportDir != "" {
		if _, err := export.WriteFile(opts.exportDir, proxies, protocol, time.Now()); err != nil {
			return err
		}
	}
	return writeProxies(cmd.OutOrStdout(), proxies, opts.output, opts.format)
}

func parseAnonymityLevels(values []string) ([]domain.AnonymityLevel, error) {
	var levels []domain.AnonymityLevel
	for _, value := range values {
		level, ok := domain.ParseAnonymity(value)
		if !ok || !level.Known() {
			return nil, fmt.Errorf("unknown anonymity level %q", value)
		}
		levels = append(levels, level)
	}
	return levels, nil
}

// checkCountryCodes rejects codes outside the reference list; an unknown code
// would otherwise select nothing and disable the country filter.
func checkCountryCodes(codes []string) error {
	var errs []error
	for _, code := range codes {
		trimmed := strings.TrimSpace(code)
		if name := domain.CountryName(trimmed); strings.EqualFold(name, trimmed) {
			errs = append(errs, fmt.Errorf("unknown country code %q", code))
		}
	}
	return errors.Join(errs...)
}

func reportMessages(store *state.Store) {
	message, errMessage := store.ConsumeMessages()
	if message != "" {
		log.Info(message)
	}
	if errMessage != "" {
		log.Error(errMessage)
	}
}

// progressLogger logs validation progress in steps of ten percent.
func progressLogger() func(state.Snapshot) {
	var mu sync.Mutex
	lastStep := -1
	return func(snapshot state.Snapshot) {
		if !snapshot.Validating || snapshot.Progress.Total == 0 {
			return
		}
		step := snapshot.Progress.Completed * 10 / snapshot.Progress.Total

		mu.Lock()
		defer mu.Unlock()
		if step == lastStep {
			return
		}
		lastStep = step
		log.Info("Validating proxies", "completed", snapshot.Progress.Completed, "total", snapshot.Progress.Total)
	}
}

/* ─────────────────────────────  check  ──────────────────────────────────── */

func (c *cli) newCheckCommand() *cobra.Command {
	var protocolName, output, format string

	cmd := &cobra.Command{
		Use:   "check [ip:port ...]",
		Short: "Probe proxies given as arguments or one per line on stdin",
		RunE: func(cmd *cobra.Command, args []string) error {
			protocol, err := domain.ParseProtocol(protocolName)
			if err != nil {
				return err
			}
			if err := checkOutput(output); err != nil {
				return err
			}

			text := strings.Join(args, "\n")
			if len(args) == 0 {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("read stdin: %w", err)
				}
				text = string(data)
			}

			proxies := scraper.Dedupe(support.ParseTextToProxies(text, protocol, domain.Metadata{Source: "Input"}))
			if len(proxies) == 0 {
				return errors.New("no valid ip:port entries in input")
			}

			var mu sync.Mutex
			lastStep := -1
			checked := c.newValidator().ValidateMany(cmd.Context(), proxies, func(completed, total int) {
				mu.Lock()
				defer mu.Unlock()
				if step := completed * 10 / total; step != lastStep {
					lastStep = step
					log.Debug("Validating proxies", "completed", completed, "total", total)
				}
			})
			if err := cmd.Context().Err(); err != nil {
				return err
			}

			working, failed := checker.Summarize(checked)
			log.Info(fmt.Sprintf("Validation complete: %d working, %d failed", working, failed))
			return writeProxies(cmd.OutOrStdout(), checked, output, format)
		},
	}

	cmd.Flags().StringVarP(&protocolName, "protocol", "p", "http", "protocol recorded on the checked proxies")
	cmd.Flags().StringVarP(&output, "output", "o", "text", "text, json or yaml")
	cmd.Flags().StringVar(&format, "format", "ip:port alive time", "text template")
	addValidatorFlags(cmd)
	return cmd
}

func addValidatorFlags(cmd *cobra.Command) {
	cmd.Flags().Duration("timeout", 0, "per-proxy connect timeout (default from config)")
	cmd.Flags().Int("concurrency", 0, "proxies probed at once (default from config)")
	cmd.Flags().Int("retries", 0, "extra attempts for a failed probe")
}

/* ─────────────────────────────  listings  ───────────────────────────────── */

type sourceInfo struct {
	Name string `json:"name" yaml:"name"`
	Kind string `json:"kind" yaml:"kind"`
	URL  string `json:"url,omitempty" yaml:"url,omitempty"`
}

func (c *cli) newSourcesCommand() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "sources",
		Short: "List the enabled proxy sources",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			all, closeSources := c.deps.newSources(c.cfg)
			defer closeSources()

			infos := make([]sourceInfo, 0, len(all))
			for _, src := range all {
				info := sourceInfo{Name: src.Name(), Kind: src.Kind().String()}
				if page, ok := src.(interface{ URL() string }); ok {
					info.URL = page.URL()
				}
				infos = append(infos, info)
			}

			if output != "text" {
				return encode(cmd.OutOrStdout(), output, infos)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "KIND\tNAME\tURL")
			for _, info := range infos {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", info.Kind, info.Name, info.URL)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "text", "text, json or yaml")
	return cmd
}

func (c *cli) newCountriesCommand() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "countries",
		Short: "List the country codes accepted by --country",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			countries := domain.Countries()
			if output != "text" {
				return encode(cmd.OutOrStdout(), output, countries)
			}
			for _, country := range countries {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %s\n", country.Code, country.Name)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "text", "text, json or yaml")
	return cmd
}

/* ─────────────────────────────  geolite  ────────────────────────────────── */

func (c *cli) newGeoLiteCommand() *cobra.Command {
	geo := &cobra.Command{
		Use:   "geolite",
		Short: "Manage the GeoLite2 country database",
	}

	update := &cobra.Command{
		Use:   "update",
		Short: "Download the latest GeoLite2-Country database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dest := c.cfg.GeoLite.CountryDB
			if dest == "" {
				return errors.New("geolite.country_db is not set; pass --country-db or configure it")
			}
			return geolite.UpdateCountryDatabase(cmd.Context(), c.cfg.GeoLite.LicenseKey, dest)
		},
	}
	update.Flags().String("country-db", "", "destination of GeoLite2-Country.mmdb")

	geo.AddCommand(update)
	return geo
}

/* ─────────────────────────────  version  ────────────────────────────────── */

func (c *cli) newVersionCommand() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			info := version.Get()
			if output != "text" {
				return encode(cmd.OutOrStdout(), output, info)
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "proxyuniverse %s (built %s)\n", info.BuildVersion, info.BuiltAt)
			return err
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "text", "text, json or yaml")
	return cmd
}
