package app

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spadilla89/proxy-universe/internal/config"
	"github.com/spadilla89/proxy-universe/internal/geolite"
	"github.com/spadilla89/proxy-universe/internal/jobs/checker"
	"github.com/spadilla89/proxy-universe/internal/sources"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// configFlags maps command flags onto the config keys they override.
var configFlags = map[string]string{
	"timeout":        "validator.timeout",
	"concurrency":    "validator.concurrency",
	"retries":        "validator.retries",
	"country-db":     "geolite.country_db",
	"browser":        "sources.use_browser",
	"respect-robots": "sources.respect_robots",
	"log-level":      "log_level",
}

// deps are the collaborators tests swap out.
type deps struct {
	newSources func(cfg config.Config) ([]sources.Source, func() error)
	dialer     checker.Dialer
}

func defaultDeps() deps {
	return deps{newSources: defaultSources}
}

func defaultSources(cfg config.Config) ([]sources.Source, func() error) {
	registry := sources.NewRegistry(cfg)
	return registry.Sources, registry.Close
}

type cli struct {
	deps    deps
	viper   *viper.Viper
	cfgFile string
	verbose bool
	cfg     config.Config
}

func Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return newRootCommand(defaultDeps()).ExecuteContext(ctx)
}

func newRootCommand(d deps) *cobra.Command {
	c := &cli{deps: d, viper: config.NewViper()}

	root := &cobra.Command{
		Use:           "proxyuniverse",
		Short:         "Collect public proxies from free lists and check which ones answer",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.loadConfig(cmd)
		},
	}

	root.PersistentFlags().StringVar(&c.cfgFile, "config", "", "settings file (json, yaml or toml)")
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "enable debug logging")
	root.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")

	root.AddCommand(
		c.newFetchCommand(),
		c.newCheckCommand(),
		c.newSourcesCommand(),
		c.newCountriesCommand(),
		c.newGeoLiteCommand(),
		c.newVersionCommand(),
	)
	return root
}

func (c *cli) loadConfig(cmd *cobra.Command) error {
	for name, key := range configFlags {
		if flag := cmd.Flags().Lookup(name); flag != nil {
			if err := c.viper.BindPFlag(key, flag); err != nil {
				return err
			}
		}
	}

	cfg, err := config.Load(c.viper, c.cfgFile)
	if err != nil {
		return err
	}
	c.cfg = cfg

	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = log.InfoLevel
	}
	if c.verbose {
		level = log.DebugLevel
	}
	log.SetLevel(level)
	return nil
}

func (c *cli) newValidator() *checker.Validator {
	opts := []checker.Option{checker.WithRetries(c.cfg.Validator.Retries)}
	if c.deps.dialer != nil {
		opts = append(opts, checker.WithDialer(c.deps.dialer))
	}
	return checker.NewValidator(c.cfg.Validator.Timeout, c.cfg.Validator.Concurrency, opts...)
}

// openLocator returns nil when no country database is configured or it
// cannot be opened; enrichment is optional.
func (c *cli) openLocator() *geolite.Locator {
	path := c.cfg.GeoLite.CountryDB
	if path == "" {
		return nil
	}
	locator, err := geolite.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.Warn("GeoLite country database missing, run `proxyuniverse geolite update`", "path", path)
		} else {
			log.Warn("GeoLite country database unusable", "path", path, "error", err)
		}
		return nil
	}
	return locator
}
