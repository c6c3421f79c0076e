// Package cli implements the agenttrace command line.
package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/shreyachakravarty07/AgentTrace/internal/backend"
	"github.com/shreyachakravarty07/AgentTrace/internal/config"
	"github.com/shreyachakravarty07/AgentTrace/internal/log"
	internal_storage "github.com/shreyachakravarty07/AgentTrace/internal/storage"
	"github.com/shreyachakravarty07/AgentTrace/pkg/generation"
	"github.com/shreyachakravarty07/AgentTrace/pkg/storage"
	"github.com/spf13/cobra"
)

// App holds what the commands share: the loaded configuration and the
// factories for the generation backend and the run store.
type App struct {
	loader *config.Loader
	cfg    *config.Config
	in     io.Reader
	out    io.Writer

	// NewGenerator returns the generation backend and a function releasing it.
	NewGenerator func(cfg *config.Config) (generation.Generator, func(), error)
	NewStore     func(cfg *config.Config) (storage.Store, error)
}

func NewApp() *App {
	return &App{
		loader:       config.NewLoader(),
		in:           os.Stdin,
		out:          os.Stdout,
		NewGenerator: newGenerator,
		NewStore:     newStore,
	}
}

// WithIO replaces stdin and stdout.
func (a *App) WithIO(in io.Reader, out io.Writer) *App {
	a.in = in
	a.out = out
	return a
}

// Execute runs the agenttrace command line.
func Execute() error {
	return NewApp().RootCmd().Execute()
}

func (a *App) RootCmd() *cobra.Command {
	var configFile string
	rootCmd := &cobra.Command{
		Use:           "agenttrace",
		Short:         "Build, run and inspect multi-agent LLM workflows",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if configFile != "" {
				a.loader.WithConfigFile(configFile)
			}
			cfg, err := a.loader.Load()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := log.Configure(cfg.Log.Level, cfg.Log.Format); err != nil {
				return err
			}
			a.cfg = cfg
			log.GetLogger().Debugf("Loaded config from %q", a.loader.ConfigFile())
			return nil
		},
	}
	rootCmd.SetIn(a.in)
	rootCmd.SetOut(a.out)
	rootCmd.SetErr(a.out)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "Config file (default .agenttrace.yaml or ~/.config/agenttrace/config.yaml)")
	flags.String("log-level", "", "Log level (debug, info, warn, error)")
	flags.String("store-driver", "", "Run store driver (memory, sqlite, postgres)")
	flags.String("store-dsn", "", "Run store data source name")
	flags.String("generator-url", "", "Base URL of the OpenAI-compatible generation service")
	a.bindFlag(rootCmd, "log.level", "log-level")
	a.bindFlag(rootCmd, "store.driver", "store-driver")
	a.bindFlag(rootCmd, "store.dsn", "store-dsn")
	a.bindFlag(rootCmd, "generator.base_url", "generator-url")

	rootCmd.AddCommand(
		a.runCmd(),
		a.validateCmd(),
		a.graphCmd(),
		a.chatCmd(),
		a.traceCmd(),
		a.compareCmd(),
		a.analyzeCmd(),
		a.runsCmd(),
		a.serveCmd(),
	)
	return rootCmd
}

func (a *App) bindFlag(cmd *cobra.Command, key, flag string) {
	f := cmd.PersistentFlags().Lookup(flag)
	if f == nil {
		f = cmd.Flags().Lookup(flag)
	}
	if err := a.loader.Viper().BindPFlag(key, f); err != nil {
		log.GetLogger().Errorf("Failed to bind flag --%s: %v", flag, err)
	}
}

func (a *App) printf(format string, args ...interface{}) {
	fmt.Fprintf(a.out, format, args...)
}

// openStore opens the configured store; the caller closes it.
func (a *App) openStore() (storage.Store, error) {
	store, err := a.NewStore(a.cfg)
	if err != nil {
		log.GetLogger().Errorf("Failed to initialize store: %v", err)
		return nil, errors.WithMessage(err, "failed to initialize store")
	}
	return store, nil
}

func (a *App) openGenerator() (generation.Generator, func(), error) {
	gen, release, err := a.NewGenerator(a.cfg)
	if err != nil {
		log.GetLogger().Errorf("Failed to initialize generator: %v", err)
		return nil, nil, errors.WithMessage(err, "failed to initialize generator")
	}
	return gen, release, nil
}

func newStore(cfg *config.Config) (storage.Store, error) {
	return internal_storage.InitStore(cfg.Store.Driver, cfg.Store.DSN)
}

func newGenerator(cfg *config.Config) (generation.Generator, func(), error) {
	opts := backend.Options{
		Config: backend.Config{
			BaseURL:    cfg.Generator.BaseURL,
			APIKey:     cfg.Generator.APIKey,
			Timeout:    cfg.Generator.Timeout,
			MaxRetries: cfg.Generator.MaxRetries,
		},
		RequestsPerSecond: cfg.Generator.RequestsPerSecond,
		Burst:             cfg.Generator.Burst,
		CacheTTL:          cfg.Cache.TTL,
	}
	var redisCache *backend.RedisCache
	if cfg.Cache.RedisAddr != "" {
		c, err := backend.NewRedisCache(cfg.Cache.RedisAddr, cfg.Cache.RedisPassword, cfg.Cache.RedisDB)
		if err != nil {
			return nil, nil, err
		}
		redisCache = c
		opts.Cache = c
	}
	gen := backend.New(opts, log.GetLogger())
	release := func() {
		gen.Stop()
		if redisCache != nil {
			if err := redisCache.Close(); err != nil {
				log.GetLogger().Errorf("Failed to close redis cache: %v", err)
			}
		}
	}
	return gen, release, nil
}
