// Package report aggregates per-browser test results into one report
// model and renders it for console and CI consumers.
package report

import (
	"github.com/edx/js-test-tool/browser"
)

// Stats summarizes a browser's results by status.
type Stats struct {
	NumTests   int
	NumFailed  int
	NumError   int
	NumSkipped int
}

// ResultData is the aggregated report model: one ordered result list
// per browser, across every suite of the invocation. Owned by the
// aggregation path; renderers read it only.
type ResultData struct {
	order     []string
	byBrowser map[string][]browser.TestResult
}

func NewResultData() *ResultData {
	return &ResultData{byBrowser: make(map[string][]browser.TestResult)}
}

// AddResults appends results for browserName. Browsers appear in the
// report in first-add order; within a browser, results keep the order
// suites were processed and specs executed.
func (d *ResultData) AddResults(browserName string, results []browser.TestResult) {
	if _, ok := d.byBrowser[browserName]; !ok {
		d.order = append(d.order, browserName)
	}
	d.byBrowser[browserName] = append(d.byBrowser[browserName], results...)
}

// Browsers returns the browser names in report order.
func (d *ResultData) Browsers() []string {
	return append([]string(nil), d.order...)
}

// Results returns the ordered result list for a browser.
func (d *ResultData) Results(browserName string) []browser.TestResult {
	return d.byBrowser[browserName]
}

// Stats counts results by status for one browser.
func (d *ResultData) Stats(browserName string) Stats {
	return StatsFor(d.byBrowser[browserName])
}

// StatsFor counts a result list by status.
func StatsFor(results []browser.TestResult) Stats {
	var s Stats
	for _, r := range results {
		s.NumTests++
		switch r.Status {
		case browser.StatusFail:
			s.NumFailed++
		case browser.StatusError:
			s.NumError++
		case browser.StatusSkip:
			s.NumSkipped++
		}
	}
	return s
}

// AllPassed computes the invocation verdict: true iff no result in any
// browser failed or errored. Skipped tests do not affect the verdict,
// and an empty report passes.
func (d *ResultData) AllPassed() bool {
	for _, name := range d.order {
		s := d.Stats(name)
		if s.NumFailed+s.NumError > 0 {
			return false
		}
	}
	return true
}
