// Command js-test-tool runs browser-hosted JavaScript test suites and
// reports the results.
//
// Usage:
//
//	js-test-tool init suite.yml                 # scaffold a suite description
//	js-test-tool run suite.yml --use-chrome     # run suites, exit 0 iff all pass
//	js-test-tool dev suite.yml                  # serve one suite with live results
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "modernc.org/sqlite"

	"github.com/edx/js-test-tool/report"
	"github.com/edx/js-test-tool/runner"
)

const usage = `usage: js-test-tool <command> [options]

commands:
  init <path>              write a template suite description
  run  <descriptor>...     run test suites and report results
  dev  <descriptor>        serve one suite with live in-browser results
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var err error
	exitCode := 0
	switch os.Args[1] {
	case "init":
		err = runInit(os.Args[2:])
	case "run":
		exitCode, err = runRun(ctx, os.Args[2:])
	case "dev":
		err = runDev(ctx, os.Args[2:])
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "js-test-tool: %v\n", err)
		os.Exit(2)
	}
	os.Exit(exitCode)
}

func newLogger(level string) *slog.Logger {
	var l slog.Level
	switch level {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
}

const descriptorTemplate = `# JavaScript test suite description.
test_suite_name: my_suite

# In-page test runner. Only jasmine is supported.
test_runner: jasmine

# Paths are relative to this file. Directories are searched
# recursively for *.js files in alphabetical order.
lib_paths:
    - lib
src_paths:
    - src
spec_paths:
    - spec
#fixture_paths:
#    - fixtures

# Patterns controlling which files the runner page loads.
# include_in_page overrides exclude_from_page.
#exclude_from_page:
#    - "*.min.js"
#include_in_page:
#    - src/needed.min.js

# Path prepended to src files in coverage reports.
#prepend_path: static/js
`

func runInit(args []string) error {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	fs.Parse(args)
	if fs.NArg() != 1 {
		return fmt.Errorf("init expects exactly one output path")
	}

	path := fs.Arg(0)
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	}
	if err := os.WriteFile(path, []byte(descriptorTemplate), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	fmt.Printf("Wrote template suite description to %s\n", path)
	return nil
}

func runRun(ctx context.Context, args []string) (int, error) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	useChrome := fs.Bool("use-chrome", false, "run suites under Chrome")
	useFirefox := fs.Bool("use-firefox", false, "run suites under Firefox")
	usePhantom := fs.Bool("use-phantomjs", false, "run suites under PhantomJS")
	timeoutSec := fs.Int("timeout-sec", 300, "per-suite browser timeout in seconds")
	coverageXML := fs.String("coverage-xml", "", "write a Cobertura-style coverage XML report")
	coverageHTML := fs.String("coverage-html", "", "write an HTML coverage report")
	xunitReport := fs.String("xunit-report", "", "write a JUnit-style XML results report")
	historyDB := fs.String("history-db", "", "record the run summary to this SQLite file")
	logLevel := fs.String("log-level", "info", "log level: debug, info, warn, error")
	fs.Parse(args)

	if fs.NArg() == 0 {
		return 0, fmt.Errorf("run expects at least one suite description")
	}

	var browsers []string
	if *useChrome {
		browsers = append(browsers, "chrome")
	}
	if *useFirefox {
		browsers = append(browsers, "firefox")
	}
	if *usePhantom {
		browsers = append(browsers, "phantomjs")
	}
	if len(browsers) == 0 {
		browsers = []string{"chrome"}
	}

	logger := newLogger(*logLevel)

	r := runner.New(runner.Options{
		DescriptorPaths: fs.Args(),
		Browsers:        browsers,
		Timeout:         time.Duration(*timeoutSec) * time.Second,
		CoverageXML:     *coverageXML,
		CoverageHTML:    *coverageHTML,
		XUnitReport:     *xunitReport,
		HistoryDB:       *historyDB,
		Logger:          logger,
	})

	results, err := r.Run(ctx)
	if err != nil {
		return 0, err
	}

	if err := report.WriteConsole(os.Stdout, results); err != nil {
		logger.Warn("console report not written", "error", err)
	}

	if results.AllPassed() {
		return 0, nil
	}
	return 1, nil
}

func runDev(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("dev", flag.ExitOnError)
	logLevel := fs.String("log-level", "info", "log level: debug, info, warn, error")
	fs.Parse(args)

	if fs.NArg() != 1 {
		return fmt.Errorf("dev expects exactly one suite description")
	}
	return runner.RunDev(ctx, fs.Arg(0), newLogger(*logLevel))
}
