// Command configure-buildgradle stamps an Android build.gradle with the
// version from package.json, a minute-precision versionCode and release
// signing configuration.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/qualitool/buildtools/internal/app"
	"github.com/qualitool/buildtools/internal/gradle"
	"github.com/qualitool/buildtools/internal/manifest"
)

const usage = "Usage: configure-buildgradle [-v] [-dry-run] <package.json path> <build.gradle path>"

// errUsage is returned for a bad invocation, before any file is touched.
var errUsage = errors.New("usage")

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	os.Exit(run(os.Args[1:], os.Stdout, time.Now))
}

func run(args []string, stdout io.Writer, now func() time.Time) int {
	fs := flag.NewFlagSet("configure-buildgradle", flag.ContinueOnError)
	fs.SetOutput(stdout)
	var (
		verbose     bool
		dryRun      bool
		showVersion bool
	)
	fs.BoolVar(&verbose, "v", false, "Verbose logging")
	fs.BoolVar(&dryRun, "dry-run", false, "Print the computed values without writing build.gradle")
	fs.BoolVar(&showVersion, "version", false, "Print version information and exit")
	fs.Usage = func() {
		fmt.Fprintln(stdout, usage)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}

	if showVersion {
		fmt.Fprintf(stdout, "configure-buildgradle %s (commit %s, built %s)\n", app.BuildVersion, app.BuildCommit, app.BuildDate)
		return 0
	}
	if verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	if err := configure(fs.Args(), stdout, now, dryRun); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprintln(stdout, usage)
			return 1
		}
		log.Error().Err(err).Str("kind", errorKind(err)).Msg("configure failed")
		return 1
	}
	return 0
}

func configure(paths []string, stdout io.Writer, now func() time.Time, dryRun bool) error {
	if len(paths) != 2 {
		return errUsage
	}
	p := &gradle.Patcher{Now: now, Out: stdout, DryRun: dryRun}
	_, err := p.Run(paths[0], paths[1])
	return err
}

func errorKind(err error) string {
	var merr *manifest.Error
	var ioerr *gradle.IOError
	switch {
	case errors.As(err, &merr):
		return "manifest"
	case errors.As(err, &ioerr):
		return "io"
	default:
		return "unknown"
	}
}
