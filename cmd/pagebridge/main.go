package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/pagebridge/internal/app"
)

func main() {
	// Logging goes to stderr; stdout carries the bridge protocol.
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	cfg, err := parseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Error().Err(err).Msg("invalid configuration")
		os.Exit(1)
	}
	if cfg == nil {
		return
	}

	if cfg.Verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, *cfg, os.Stdin, os.Stdout); err != nil {
		log.Error().Err(err).Msg("run failed")
		stop()
		os.Exit(1)
	}
}

// parseConfig layers configuration: defaults, dotenv files, the config file,
// PAGEBRIDGE_* environment, then explicitly set flags. It returns nil when
// only the version was requested.
func parseConfig(fs *flag.FlagSet, args []string) (*app.Config, error) {
	cfg := app.DefaultConfig()
	var (
		configPath  string
		envFiles    string
		showVersion bool
	)
	fs.StringVar(&configPath, "config", os.Getenv("PAGEBRIDGE_CONFIG"), "Path to YAML or JSON config file")
	fs.StringVar(&envFiles, "env", ".env", "Comma-separated dotenv files to load before reading the environment")
	fs.BoolVar(&showVersion, "version", false, "Print version and exit")

	fs.StringVar(&cfg.PageFile, "page.file", cfg.PageFile, "Local HTML file to serve (static backend)")
	fs.StringVar(&cfg.PageURL, "page.url", cfg.PageURL, "Page URL to fetch (static) or open (rod)")
	fs.StringVar(&cfg.PageBase, "page.base", cfg.PageBase, "Override the document URI used to resolve relative links")
	fs.StringVar(&cfg.Backend, "backend", cfg.Backend, "Document backend: static or rod")
	fs.StringVar(&cfg.RodControlURL, "rod.controlURL", cfg.RodControlURL, "DevTools WebSocket URL of a running Chrome; empty launches one")
	fs.StringVar(&cfg.LayoutAttr, "layout.attr", cfg.LayoutAttr, "Attribute holding static element boxes as left,top,width,height")
	fs.Float64Var(&cfg.Viewport.DPR, "viewport.dpr", cfg.Viewport.DPR, "Device pixel ratio reported by the static backend")
	fs.Float64Var(&cfg.Viewport.InnerWidth, "viewport.innerWidth", cfg.Viewport.InnerWidth, "Window inner width")
	fs.Float64Var(&cfg.Viewport.OuterWidth, "viewport.outerWidth", cfg.Viewport.OuterWidth, "Window outer width")
	fs.Float64Var(&cfg.Viewport.InnerHeight, "viewport.innerHeight", cfg.Viewport.InnerHeight, "Window inner height")
	fs.Float64Var(&cfg.Viewport.OuterHeight, "viewport.outerHeight", cfg.Viewport.OuterHeight, "Window outer height")
	fs.DurationVar(&cfg.GestureDelay, "gesture.delay", cfg.GestureDelay, "Long-press delay; 0 uses 800ms")
	fs.Float64Var(&cfg.GestureThreshold, "gesture.threshold", cfg.GestureThreshold, "Movement in pixels that cancels a press; 0 uses 3")
	fs.StringVar(&cfg.SanitizePolicy, "sanitize.policy", cfg.SanitizePolicy, "Snapshot HTML policy: scripts or ugc")
	fs.StringVar(&cfg.FetchUserAgent, "fetch.userAgent", cfg.FetchUserAgent, "User-Agent for page fetches")
	fs.DurationVar(&cfg.FetchTimeout, "fetch.timeout", cfg.FetchTimeout, "Timeout per fetch attempt")
	fs.IntVar(&cfg.FetchAttempts, "fetch.attempts", cfg.FetchAttempts, "Fetch attempts including the first")
	fs.StringVar(&cfg.CacheDir, "cache.dir", cfg.CacheDir, "Page cache directory; empty disables caching")
	fs.DurationVar(&cfg.CacheMaxAge, "cache.maxAge", cfg.CacheMaxAge, "Purge cache entries older than this; 0 disables")
	fs.BoolVar(&cfg.CacheClear, "cache.clear", cfg.CacheClear, "Clear the cache directory before fetching")
	fs.BoolVar(&cfg.CacheStrictPerms, "cache.strictPerms", cfg.CacheStrictPerms, "Restrict cache permissions (0700 dirs, 0600 files)")
	fs.BoolVar(&cfg.Verbose, "v", cfg.Verbose, "Verbose logging")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if showVersion {
		fmt.Fprintf(fs.Output(), "pagebridge %s (%s, %s)\n", app.BuildVersion, app.BuildCommit, app.BuildDate)
		return nil, nil
	}

	flags := cfg
	if err := app.LoadEnvFiles(splitList(envFiles)...); err != nil {
		return nil, fmt.Errorf("load env files: %w", err)
	}
	if configPath != "" {
		fc, err := app.LoadConfigFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("load config %s: %w", configPath, err)
		}
		app.ApplyFileConfig(&cfg, fc)
	}
	app.ApplyEnvOverrides(&cfg)

	// Explicit flags are highest precedence.
	reapply := map[string]func(){
		"page.file":            func() { cfg.PageFile = flags.PageFile },
		"page.url":             func() { cfg.PageURL = flags.PageURL },
		"page.base":            func() { cfg.PageBase = flags.PageBase },
		"backend":              func() { cfg.Backend = flags.Backend },
		"rod.controlURL":       func() { cfg.RodControlURL = flags.RodControlURL },
		"layout.attr":          func() { cfg.LayoutAttr = flags.LayoutAttr },
		"viewport.dpr":         func() { cfg.Viewport.DPR = flags.Viewport.DPR },
		"viewport.innerWidth":  func() { cfg.Viewport.InnerWidth = flags.Viewport.InnerWidth },
		"viewport.outerWidth":  func() { cfg.Viewport.OuterWidth = flags.Viewport.OuterWidth },
		"viewport.innerHeight": func() { cfg.Viewport.InnerHeight = flags.Viewport.InnerHeight },
		"viewport.outerHeight": func() { cfg.Viewport.OuterHeight = flags.Viewport.OuterHeight },
		"gesture.delay":        func() { cfg.GestureDelay = flags.GestureDelay },
		"gesture.threshold":    func() { cfg.GestureThreshold = flags.GestureThreshold },
		"sanitize.policy":      func() { cfg.SanitizePolicy = flags.SanitizePolicy },
		"fetch.userAgent":      func() { cfg.FetchUserAgent = flags.FetchUserAgent },
		"fetch.timeout":        func() { cfg.FetchTimeout = flags.FetchTimeout },
		"fetch.attempts":       func() { cfg.FetchAttempts = flags.FetchAttempts },
		"cache.dir":            func() { cfg.CacheDir = flags.CacheDir },
		"cache.maxAge":         func() { cfg.CacheMaxAge = flags.CacheMaxAge },
		"cache.clear":          func() { cfg.CacheClear = flags.CacheClear },
		"cache.strictPerms":    func() { cfg.CacheStrictPerms = flags.CacheStrictPerms },
		"v":                    func() { cfg.Verbose = flags.Verbose },
	}
	fs.Visit(func(f *flag.Flag) {
		if set, ok := reapply[f.Name]; ok {
			set()
		}
	})

	if err := app.ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if v := strings.TrimSpace(p); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func run(ctx context.Context, cfg app.Config, in io.Reader, out io.Writer) error {
	a, err := app.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("init app: %w", err)
	}
	defer a.Close()

	return a.Run(ctx, in, out)
}
