// Package coverage coordinates the external JSCover instrumentation
// process and accumulates line coverage posted back by browsers.
//
// The instrumentation tool is a black box located through the
// JSCOVER_JAR environment variable. When it is missing, coverage is
// disabled for the invocation with a warning; test execution is never
// affected.
package coverage

import (
	"encoding/json"
	"fmt"
	"sync"
)

// NotExecutable marks a line with no executable statement (or no
// information). Any recorded hit count wins over it in a merge.
const NotExecutable = -1

// Data accumulates line coverage across suites and browsers. All
// methods are safe for concurrent use; submission handlers from
// multiple browser sessions write to one Data instance.
type Data struct {
	mu       sync.Mutex
	reported map[string]bool
	files    map[string][]int
}

func NewData() *Data {
	return &Data{
		reported: make(map[string]bool),
		files:    make(map[string][]int),
	}
}

// AddExpectedSrc registers a source file so it appears in reports as
// uncovered even if no submission ever mentions it.
func (d *Data) AddExpectedSrc(displayPath string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.files[displayPath]; !ok {
		d.files[displayPath] = nil
	}
}

// Merge folds one submission fragment into the running totals and
// records that suiteName has reported. The merge is a pointwise
// maximum, so it is commutative, associative and idempotent: a line
// covered by any browser stays covered, and replaying a submission
// changes nothing.
func (d *Data) Merge(suiteName string, fragment map[string][]int) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.reported[suiteName] = true
	for p, lines := range fragment {
		d.files[p] = mergeLines(d.files[p], lines)
	}
}

// HasSuite reports whether a submission for suiteName has arrived.
func (d *Data) HasSuite(suiteName string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.reported[suiteName]
}

// Files returns a copy of the accumulated map, keyed by display path.
// Line slices are indexed from line 1 at position 0; NotExecutable
// entries carry no information.
func (d *Data) Files() map[string][]int {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make(map[string][]int, len(d.files))
	for p, lines := range d.files {
		cp := make([]int, len(lines))
		copy(cp, lines)
		out[p] = cp
	}
	return out
}

func mergeLines(a, b []int) []int {
	// Newly grown entries start unknown, not zero-hit.
	for len(a) < len(b) {
		a = append(a, NotExecutable)
	}
	for i := range b {
		if b[i] > a[i] {
			a[i] = b[i]
		}
	}
	return a
}

// jscoverFile mirrors one entry of JSCover's native JSON report.
// lineData is 1-indexed: position 0 is unused, null marks a line with
// no executable statement.
type jscoverFile struct {
	LineData []*int `json:"lineData"`
}

// ParseSubmission decodes the body of a jscoverage-store POST into a
// fragment keyed by the URL path of each instrumented file.
func ParseSubmission(body []byte) (map[string][]int, error) {
	var raw map[string]jscoverFile
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("coverage: parse submission: %w", err)
	}

	fragment := make(map[string][]int, len(raw))
	for p, f := range raw {
		if len(f.LineData) < 2 {
			fragment[p] = nil
			continue
		}
		lines := make([]int, len(f.LineData)-1)
		for i, hit := range f.LineData[1:] {
			if hit == nil {
				lines[i] = NotExecutable
			} else {
				lines[i] = *hit
			}
		}
		fragment[p] = lines
	}
	return fragment, nil
}
