package report

import (
	"encoding/xml"
	"fmt"
	"io"

	"github.com/edx/js-test-tool/browser"
)

// JUnit-style XML document: one testsuite for the invocation, one
// testcase per (browser, group, name) triple.
type xunitSuite struct {
	XMLName  xml.Name    `xml:"testsuite"`
	Name     string      `xml:"name,attr"`
	Tests    int         `xml:"tests,attr"`
	Failures int         `xml:"failures,attr"`
	Errors   int         `xml:"errors,attr"`
	Skipped  int         `xml:"skipped,attr"`
	Cases    []xunitCase `xml:"testcase"`
}

type xunitCase struct {
	ClassName string        `xml:"classname,attr"`
	Name      string        `xml:"name,attr"`
	Failure   *xunitDetail  `xml:"failure,omitempty"`
	Error     *xunitDetail  `xml:"error,omitempty"`
	Skipped   *xunitSkipped `xml:"skipped,omitempty"`
}

type xunitDetail struct {
	Message string `xml:"message,attr"`
	Body    string `xml:",chardata"`
}

type xunitSkipped struct{}

// WriteXUnit renders the aggregated results as JUnit-style XML for CI
// consumers.
func WriteXUnit(w io.Writer, d *ResultData) error {
	doc := xunitSuite{Name: "javascript"}

	for _, browserName := range d.Browsers() {
		s := d.Stats(browserName)
		doc.Tests += s.NumTests
		doc.Failures += s.NumFailed
		doc.Errors += s.NumError
		doc.Skipped += s.NumSkipped

		for _, r := range d.Results(browserName) {
			c := xunitCase{
				ClassName: fmt.Sprintf("%s.%s", browserName, r.Group),
				Name:      r.Name,
			}
			switch r.Status {
			case browser.StatusFail:
				c.Failure = &xunitDetail{Message: "test failed", Body: r.Detail}
			case browser.StatusError:
				c.Error = &xunitDetail{Message: "test error", Body: r.Detail}
			case browser.StatusSkip:
				c.Skipped = &xunitSkipped{}
			}
			doc.Cases = append(doc.Cases, c)
		}
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return fmt.Errorf("report: write xunit report: %w", err)
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("report: write xunit report: %w", err)
	}
	return nil
}
