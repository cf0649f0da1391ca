package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/edx/js-test-tool/browser"
)

// WriteConsole renders a plain-text summary: one section per browser
// with failure details, then the aggregate counts.
func WriteConsole(w io.Writer, d *ResultData) error {
	for _, name := range d.Browsers() {
		header := fmt.Sprintf("Browser: %s", name)
		if _, err := fmt.Fprintf(w, "%s\n%s\n", header, strings.Repeat("=", len(header))); err != nil {
			return fmt.Errorf("report: write console report: %w", err)
		}

		for _, r := range d.Results(name) {
			if r.Status == browser.StatusPass {
				continue
			}
			fmt.Fprintf(w, "[%s] %s: %s\n", r.Status, r.Group, r.Name)
			if r.Detail != "" {
				fmt.Fprintf(w, "    %s\n", strings.ReplaceAll(r.Detail, "\n", "\n    "))
			}
		}

		s := d.Stats(name)
		fmt.Fprintf(w, "%d tests: %d passed, %d failed, %d errors, %d skipped\n\n",
			s.NumTests, s.NumTests-s.NumFailed-s.NumError-s.NumSkipped,
			s.NumFailed, s.NumError, s.NumSkipped)
	}

	if d.AllPassed() {
		_, err := io.WriteString(w, "All tests passed.\n")
		return err
	}
	_, err := io.WriteString(w, "Some tests FAILED.\n")
	return err
}
