/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Seednode/topdrop/internal/generate"
	"github.com/Seednode/topdrop/internal/match"
	"github.com/Seednode/topdrop/internal/snapshot"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	storeMemory = "memory"
	storeBadger = "badger"
	storeSQLite = "sqlite"
)

type Config struct {
	bind           string
	dataDir        string
	fuzzyThreshold float64
	generateRate   int
	itemCount      int
	metrics        bool
	mock           bool
	openaiKey      string
	openaiModel    string
	openaiURL      string
	playerTimeout  time.Duration
	port           int
	prefix         string
	profile        bool
	sessionTimeout time.Duration
	store          string
	tlsCert        string
	tlsKey         string
	verbose        bool
	version        bool

	logger *log.Logger
}

func (c *Config) validate() error {
	if (c.tlsCert == "") != (c.tlsKey == "") {
		return errors.New("both --tls-cert and --tls-key must be provided together")
	}

	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}

	if !snapshot.ValidSize(c.itemCount) {
		return fmt.Errorf("invalid item count (must be 30, 50, or 100): %d", c.itemCount)
	}

	if c.fuzzyThreshold <= 0 || c.fuzzyThreshold >= 1 {
		return fmt.Errorf("invalid fuzzy threshold (must be between 0 and 1 exclusive): %g", c.fuzzyThreshold)
	}

	if c.generateRate < 0 {
		return fmt.Errorf("invalid generate rate (must be 0 or greater): %d", c.generateRate)
	}

	switch c.store {
	case storeMemory, storeBadger:
	case storeSQLite:
		if c.dataDir == "" {
			return errors.New("--data-dir is required when --store is sqlite")
		}
	default:
		return fmt.Errorf("invalid store (must be memory, badger, or sqlite): %q", c.store)
	}

	return nil
}

func (c *Config) scheme() string {
	if c.tlsCert != "" && c.tlsKey != "" {
		return "https"
	}

	return "http"
}

// useMock reports whether rounds are generated locally.
func (c *Config) useMock() bool {
	return c.mock || c.openaiKey == ""
}

func (c *Config) matchOptions() []match.Option {
	return []match.Option{match.WithThreshold(c.fuzzyThreshold)}
}

func newCmd(cfg *Config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("TOPDROP")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "topdrop",
		Short:         "A party trivia game: guess the items on a generated top-100 list.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		Version:       releaseVersion,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.openaiKey == "" {
				cfg.openaiKey = os.Getenv("OPENAI_API_KEY")
			}

			if err := cfg.validate(); err != nil {
				return err
			}

			cfg.logger = newLogger(cfg)

			return ServePage(cmd.Context(), cfg, args)
		},
	}

	fs := cmd.Flags()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: TOPDROP_BIND)")
	fs.StringVar(&cfg.dataDir, "data-dir", "", "directory for persistent snapshot storage (env: TOPDROP_DATA_DIR)")
	fs.Float64Var(&cfg.fuzzyThreshold, "fuzzy-threshold", match.DefaultThreshold, "edit distance ratio below which a misspelled guess still counts (env: TOPDROP_FUZZY_THRESHOLD)")
	fs.IntVar(&cfg.generateRate, "generate-rate", 6, "list generations allowed per minute per client, or 0 for unlimited (env: TOPDROP_GENERATE_RATE)")
	fs.IntVar(&cfg.itemCount, "item-count", snapshot.DefaultSize, "default number of items per list: 30, 50, or 100 (env: TOPDROP_ITEM_COUNT)")
	fs.BoolVar(&cfg.metrics, "metrics", false, "expose prometheus metrics at /metrics (env: TOPDROP_METRICS)")
	fs.BoolVar(&cfg.mock, "mock", false, "generate placeholder lists instead of calling the model (env: TOPDROP_MOCK)")
	fs.StringVar(&cfg.openaiKey, "openai-key", "", "API key for list generation, defaults to $OPENAI_API_KEY (env: TOPDROP_OPENAI_KEY)")
	fs.StringVar(&cfg.openaiModel, "openai-model", generate.DefaultOpenAIModel, "model used for list generation (env: TOPDROP_OPENAI_MODEL)")
	fs.StringVar(&cfg.openaiURL, "openai-url", generate.DefaultOpenAIURL, "chat completions endpoint (env: TOPDROP_OPENAI_URL)")
	fs.DurationVar(&cfg.playerTimeout, "player-timeout", 10*time.Minute, "time before idle players are kicked (env: TOPDROP_PLAYER_TIMEOUT)")
	fs.IntVarP(&cfg.port, "port", "p", 8080, "port to listen on (env: TOPDROP_PORT)")
	fs.StringVar(&cfg.prefix, "prefix", "", "path to prepend to all URLs, for use behind reverse proxy (env: TOPDROP_PREFIX)")
	fs.BoolVar(&cfg.profile, "profile", false, "register net/http/pprof handlers (env: TOPDROP_PROFILE)")
	fs.DurationVar(&cfg.sessionTimeout, "session-timeout", 60*time.Minute, "time before idle game sessions are ended (env: TOPDROP_SESSION_TIMEOUT)")
	fs.StringVar(&cfg.store, "store", storeMemory, "snapshot storage backend: memory, badger, or sqlite (env: TOPDROP_STORE)")
	fs.StringVar(&cfg.tlsCert, "tls-cert", "", "path to tls certificate (env: TOPDROP_TLS_CERT)")
	fs.StringVar(&cfg.tlsKey, "tls-key", "", "path to tls keyfile (env: TOPDROP_TLS_KEY)")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "display additional output (env: TOPDROP_VERBOSE)")
	fs.BoolVarP(&cfg.version, "version", "V", false, "display version and exit (env: TOPDROP_VERSION)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("topdrop v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}
