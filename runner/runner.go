// Package runner orchestrates a full invocation: resolve suite
// descriptions, stand up the coverage coordinator and dependency
// server, drive browser sessions, and aggregate results into the
// report model.
//
// Startup order is strict: suite configuration is validated first, the
// coverage process comes up and is health-checked next, and only then
// does the suite server start serving (pointing at the live
// coordinator); teardown runs in reverse. Failures scoped to one
// browser or suite never abort siblings. Only description and server
// startup failures abort the invocation.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/edx/js-test-tool/browser"
	"github.com/edx/js-test-tool/coverage"
	"github.com/edx/js-test-tool/history"
	"github.com/edx/js-test-tool/report"
	"github.com/edx/js-test-tool/server"
	"github.com/edx/js-test-tool/suite"
)

// CoverageAwaitDeadline bounds how long the aggregation path waits for
// a suite's coverage submission after its sessions completed.
const CoverageAwaitDeadline = 10 * time.Second

// Options configures one invocation.
type Options struct {
	DescriptorPaths []string

	// Browsers to run every suite under, in declaration order.
	Browsers []string

	// Timeout per (suite, browser) session. Default: browser.DefaultTimeout.
	Timeout time.Duration

	// Report destinations; empty disables the report.
	CoverageXML  string
	CoverageHTML string
	XUnitReport  string

	// HistoryDB, when set, records the run summary to this SQLite file.
	HistoryDB string

	// Factory acquires browser capabilities. Default: browser.Launch.
	// Injected so tests can run the whole pipeline against fakes.
	Factory browser.Factory

	Logger *slog.Logger
}

func (o *Options) defaults() {
	if o.Timeout <= 0 {
		o.Timeout = browser.DefaultTimeout
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Factory == nil {
		logger := o.Logger
		o.Factory = func(ctx context.Context, name string) (browser.Capability, error) {
			return browser.Launch(ctx, name, logger)
		}
	}
}

// Runner executes test suites and produces the aggregated report model.
type Runner struct {
	opts Options
}

func New(opts Options) *Runner {
	opts.defaults()
	return &Runner{opts: opts}
}

// Run executes every (browser, suite) pair and returns the aggregated
// results. The error is non-nil only for invocation-fatal failures
// (bad description, server startup, interruption); everything else
// surfaces inside the report model.
func (r *Runner) Run(ctx context.Context) (*report.ResultData, error) {
	log := r.opts.Logger
	startedAt := time.Now()

	descs, err := loadDescriptions(r.opts.DescriptorPaths)
	if err != nil {
		return nil, err
	}

	// Configuration is rejected before any child process or port
	// activity, so the coverage child is only spawned for runnable
	// invocations.
	srv, err := server.New(descs, server.Config{Logger: log})
	if err != nil {
		return nil, err
	}

	coordinator := r.startCoverage(ctx, descs)
	if coordinator != nil {
		defer coordinator.Stop()
		srv.SetInstrumenter(coordinator)
	}

	if err := srv.Start(); err != nil {
		return nil, err
	}
	defer srv.Stop(context.WithoutCancel(ctx))

	results := report.NewResultData()
	var entries []history.Entry

	for _, browserName := range r.opts.Browsers {
		for _, desc := range descs {
			session := &browser.Session{
				Browser: browserName,
				Suite:   desc.Name,
				PageURL: srv.SuiteURL(desc.Name),
				Timeout: r.opts.Timeout,
				Logger:  log,
			}
			sessionResults, state := session.Run(ctx, r.opts.Factory)
			log.Info("runner: session finished",
				"browser", browserName, "suite", desc.Name, "state", state.String())

			results.AddResults(browserName, sessionResults)
			entries = append(entries, history.Entry{
				Browser: browserName,
				Suite:   desc.Name,
				Stats:   report.StatsFor(sessionResults),
			})
		}
	}

	// An interrupted invocation discards its partial state: no reports,
	// no history, no result model.
	if err := ctx.Err(); err != nil {
		log.Warn("runner: interrupted, discarding partial results")
		return nil, fmt.Errorf("runner: interrupted: %w", err)
	}

	if coordinator != nil {
		for _, desc := range descs {
			if err := coordinator.AwaitSuite(ctx, desc.Name, CoverageAwaitDeadline); err != nil {
				log.Warn("runner: coverage missing for suite",
					"suite", desc.Name, "error", err)
			}
		}
		r.writeCoverageReports(coordinator)
	}

	r.recordHistory(ctx, history.Run{
		ID:        uuid.NewString(),
		StartedAt: startedAt,
		Passed:    results.AllPassed(),
		Entries:   entries,
	})

	if r.opts.XUnitReport != "" {
		if err := writeFileReport(r.opts.XUnitReport, func(f *os.File) error {
			return report.WriteXUnit(f, results)
		}); err != nil {
			log.Warn("runner: xunit report not written", "path", r.opts.XUnitReport, "error", err)
		}
	}

	return results, nil
}

func loadDescriptions(paths []string) ([]*suite.Description, error) {
	if len(paths) == 0 {
		return nil, &suite.ConfigError{Msg: "no suite descriptions given"}
	}
	descs := make([]*suite.Description, 0, len(paths))
	for _, p := range paths {
		d, err := suite.Load(p)
		if err != nil {
			return nil, err
		}
		descs = append(descs, d)
	}
	return descs, nil
}

// startCoverage brings up the coordinator when coverage output was
// requested and the instrumentation jar is available. Any failure here
// degrades to a coverage-disabled run with a warning; it never stops
// the tests.
func (r *Runner) startCoverage(ctx context.Context, descs []*suite.Description) *coverage.Coordinator {
	log := r.opts.Logger
	if r.opts.CoverageXML == "" && r.opts.CoverageHTML == "" {
		return nil
	}

	coordinator, err := coverage.NewCoordinator(log)
	if err != nil {
		if errors.Is(err, coverage.ErrUnavailable) {
			log.Warn("runner: coverage disabled", "error", err)
			return nil
		}
		log.Warn("runner: coverage disabled", "error", err)
		return nil
	}

	for _, desc := range descs {
		coordinator.AddSuite(desc)
	}
	if err := coordinator.Start(ctx); err != nil {
		log.Warn("runner: coverage disabled, instrumenter failed to start", "error", err)
		return nil
	}
	return coordinator
}

func (r *Runner) writeCoverageReports(coordinator *coverage.Coordinator) {
	log := r.opts.Logger
	if r.opts.CoverageXML != "" {
		if err := writeFileReport(r.opts.CoverageXML, func(f *os.File) error {
			return coverage.WriteXML(f, coordinator.Data())
		}); err != nil {
			log.Warn("runner: coverage xml not written", "path", r.opts.CoverageXML, "error", err)
		}
	}
	if r.opts.CoverageHTML != "" {
		if err := writeFileReport(r.opts.CoverageHTML, func(f *os.File) error {
			return coverage.WriteHTML(f, coordinator.Data())
		}); err != nil {
			log.Warn("runner: coverage html not written", "path", r.opts.CoverageHTML, "error", err)
		}
	}
}

func (r *Runner) recordHistory(ctx context.Context, run history.Run) {
	if r.opts.HistoryDB == "" {
		return
	}
	store, err := history.Open(r.opts.HistoryDB)
	if err != nil {
		r.opts.Logger.Warn("runner: history not recorded", "error", err)
		return
	}
	defer store.Close()
	if err := store.RecordRun(ctx, run); err != nil {
		r.opts.Logger.Warn("runner: history not recorded", "error", err)
	}
}

func writeFileReport(path string, write func(*os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
