package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/Seednode/songquiz/games/quiz"
)

type Config struct {
	bind           string
	collections    string
	defaultMode    string
	fetchTimeout   time.Duration
	logFormat      string
	mediaPrefix    string
	modesFile      string
	playerTimeout  time.Duration
	port           int
	prefix         string
	profile        bool
	sessionTimeout time.Duration
	tlsCert        string
	tlsKey         string
	verbose        bool
	version        bool

	csp   string
	log   zerolog.Logger
	modes map[string]quiz.Mode
}

func (c *Config) validate() error {
	if (c.tlsCert == "") != (c.tlsKey == "") {
		return errors.New("both --tls-cert and --tls-key must be provided together")
	}
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}
	if c.collections == "" {
		return errors.New("--collections must point at a catalog directory or URL")
	}
	if c.fetchTimeout <= 0 {
		return fmt.Errorf("invalid fetch timeout (must be positive): %s", c.fetchTimeout)
	}
	switch c.logFormat {
	case "pretty", "json":
	default:
		return fmt.Errorf("invalid log format (must be pretty or json): %q", c.logFormat)
	}

	modes, err := quiz.LoadModes(c.modesFile)
	if err != nil {
		return err
	}
	if _, ok := modes[c.defaultMode]; !ok {
		return fmt.Errorf("unknown default mode %q", c.defaultMode)
	}
	c.modes = modes

	return nil
}

func (c *Config) scheme() string {
	if c.tlsCert != "" && c.tlsKey != "" {
		return "https"
	}
	return "http"
}

// mode resolves a mode name, falling back to the default mode.
func (c *Config) mode(name string) quiz.Mode {
	if m, ok := c.modes[name]; ok {
		return m
	}
	return c.modes[c.defaultMode]
}

func newCmd(cfg *Config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("SONGQUIZ")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "songquiz",
		Short:         "A music guessing game, served as a single webapp.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		Version:       releaseVersion,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validate(); err != nil {
				return err
			}
			return ServePage(cmd.Context(), cfg, args)
		},
	}

	fs := cmd.Flags()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: SONGQUIZ_BIND)")
	fs.StringVarP(&cfg.collections, "collections", "c", "", "catalog directory or base URL holding collections and audio (env: SONGQUIZ_COLLECTIONS)")
	fs.StringVar(&cfg.defaultMode, "default-mode", "default", "mode used when a game does not ask for one (env: SONGQUIZ_DEFAULT_MODE)")
	fs.DurationVar(&cfg.fetchTimeout, "fetch-timeout", 30*time.Second, "time allowed for loading a collection (env: SONGQUIZ_FETCH_TIMEOUT)")
	fs.StringVar(&cfg.logFormat, "log-format", "pretty", "log output format, pretty or json (env: SONGQUIZ_LOG_FORMAT)")
	fs.StringVar(&cfg.mediaPrefix, "media-prefix", "/media", "path local catalogs are served under (env: SONGQUIZ_MEDIA_PREFIX)")
	fs.StringVar(&cfg.modesFile, "modes", "", "yaml file of additional or overridden modes (env: SONGQUIZ_MODES)")
	fs.DurationVar(&cfg.playerTimeout, "player-timeout", 10*time.Minute, "time a game keeps running with nobody connected (env: SONGQUIZ_PLAYER_TIMEOUT)")
	fs.IntVarP(&cfg.port, "port", "p", 8080, "port to listen on (env: SONGQUIZ_PORT)")
	fs.StringVar(&cfg.prefix, "prefix", "", "path to prepend to all URLs, for use behind reverse proxy (env: SONGQUIZ_PREFIX)")
	fs.BoolVar(&cfg.profile, "profile", false, "register net/http/pprof handlers (env: SONGQUIZ_PROFILE)")
	fs.DurationVar(&cfg.sessionTimeout, "session-timeout", 60*time.Minute, "time before idle game sessions are ended (env: SONGQUIZ_SESSION_TIMEOUT)")
	fs.StringVar(&cfg.tlsCert, "tls-cert", "", "path to tls certificate (env: SONGQUIZ_TLS_CERT)")
	fs.StringVar(&cfg.tlsKey, "tls-key", "", "path to tls keyfile (env: SONGQUIZ_TLS_KEY)")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "display additional output (env: SONGQUIZ_VERBOSE)")
	fs.BoolVarP(&cfg.version, "version", "V", false, "display version and exit (env: SONGQUIZ_VERSION)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("songquiz v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}
