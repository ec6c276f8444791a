// Command syncsmoke checks end to end that contact synchronization works
// against the hosted backend: sign-in, table access, RPC sync and read-back.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/qualitool/buildtools/internal/app"
	"github.com/qualitool/buildtools/internal/smoke"
	"github.com/qualitool/buildtools/internal/supabase"
)

func main() {
	// Logging setup
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout))
}

// options holds the parsed command line.
type options struct {
	configPath  string
	envFile     string
	showVersion bool
	cfg         app.Config
}

func newFlagSet(out io.Writer) (*flag.FlagSet, *options) {
	opts := &options{}
	fs := flag.NewFlagSet("syncsmoke", flag.ContinueOnError)
	fs.SetOutput(out)
	fs.StringVar(&opts.configPath, "config", "", "Path to YAML or JSON config file")
	fs.StringVar(&opts.envFile, "env-file", "", "Additional dotenv file loaded after .env")
	fs.BoolVar(&opts.showVersion, "version", false, "Print version information and exit")
	fs.StringVar(&opts.cfg.BackendURL, "url", "", "Backend project URL (SUPABASE_URL)")
	fs.StringVar(&opts.cfg.APIKey, "key", "", "Backend anon key (SUPABASE_ANON_KEY)")
	fs.StringVar(&opts.cfg.Email, "email", "", "Test account email (SMOKE_EMAIL)")
	fs.StringVar(&opts.cfg.Password, "password", "", "Test account password (SMOKE_PASSWORD)")
	fs.StringVar(&opts.cfg.ExpectedUserID, "expect-user", "", "Expected user id of the test account (SMOKE_EXPECTED_USER_ID)")
	fs.StringVar(&opts.cfg.Table, "table", "", "Contacts table")
	fs.StringVar(&opts.cfg.RPCFunction, "rpc", "", "Contact upsert RPC function")
	fs.DurationVar(&opts.cfg.Wait, "wait", 0, "Delay between sync and verification (SMOKE_WAIT)")
	fs.DurationVar(&opts.cfg.RequestTimeout, "timeout", 0, "Per-request timeout (SMOKE_TIMEOUT)")
	fs.BoolVar(&opts.cfg.Verbose, "v", false, "Verbose logging")
	return fs, opts
}

// run parses flags, resolves configuration and executes the checklist. It
// returns the process exit code: 0 only when every check passed.
func run(ctx context.Context, args []string, stdout io.Writer) int {
	fs, opts := newFlagSet(stdout)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}
	if opts.showVersion {
		fmt.Fprintf(stdout, "syncsmoke %s (commit %s, built %s)\n", app.BuildVersion, app.BuildCommit, app.BuildDate)
		return 0
	}

	cfg, err := resolveConfig(fs, opts)
	if err != nil {
		log.Error().Err(err).Msg("invalid configuration")
		return 1
	}
	if cfg.Verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	client := supabase.New(cfg.BackendURL, cfg.APIKey, app.NewHTTPClient(cfg.RequestTimeout))
	client.UserAgent = "syncsmoke/" + app.BuildVersion
	tester := &smoke.Tester{
		Client: client,
		Out:    stdout,
		Config: smoke.Config{
			Table:          cfg.Table,
			RPCFunction:    cfg.RPCFunction,
			Email:          cfg.Email,
			Password:       cfg.Password,
			ExpectedUserID: cfg.ExpectedUserID,
			Wait:           cfg.Wait,
			Contact: smoke.Contact{
				Street:      cfg.ContactStreet,
				HouseNumber: cfg.ContactHouseNumber,
				City:        cfg.ContactCity,
				Units:       cfg.ContactUnits,
				Status:      cfg.ContactStatus,
			},
		},
	}
	sum, err := tester.Run(ctx)
	if err != nil {
		log.Error().Err(err).Msg("smoke run failed")
		return 1
	}
	if !sum.OK() {
		return 1
	}
	return 0
}

// resolveConfig layers defaults, config file, environment (after dotenv
// files) and explicitly set flags, in increasing precedence.
func resolveConfig(fs *flag.FlagSet, opts *options) (app.Config, error) {
	if err := app.LoadEnvFiles(".env", opts.envFile); err != nil {
		return app.Config{}, fmt.Errorf("load env files: %w", err)
	}
	cfg := app.DefaultConfig()
	if opts.configPath != "" {
		fc, err := app.LoadConfigFile(opts.configPath)
		if err != nil {
			return app.Config{}, fmt.Errorf("load config %s: %w", opts.configPath, err)
		}
		app.ApplyFileConfig(&cfg, fc)
	}
	app.ApplyEnvOverrides(&cfg)

	flagCfg := opts.cfg
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "url":
			cfg.BackendURL = flagCfg.BackendURL
		case "key":
			cfg.APIKey = flagCfg.APIKey
		case "email":
			cfg.Email = flagCfg.Email
		case "password":
			cfg.Password = flagCfg.Password
		case "expect-user":
			cfg.ExpectedUserID = flagCfg.ExpectedUserID
		case "table":
			cfg.Table = flagCfg.Table
		case "rpc":
			cfg.RPCFunction = flagCfg.RPCFunction
		case "wait":
			cfg.Wait = flagCfg.Wait
		case "timeout":
			cfg.RequestTimeout = flagCfg.RequestTimeout
		case "v":
			cfg.Verbose = flagCfg.Verbose
		}
	})
	return cfg, app.ValidateConfig(cfg)
}
