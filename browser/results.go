package browser

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

// Test statuses reported by the in-page runner.
const (
	StatusPass  = "pass"
	StatusFail  = "fail"
	StatusError = "error"
	StatusSkip  = "skip"
)

// TestResult is one spec outcome. Immutable once decoded.
type TestResult struct {
	Group  string
	Name   string
	Status string
	Detail string
}

// wireResult mirrors the JSON payload produced by the in-page reporter.
// Every field is percent-escaped at production time. Pointers
// distinguish a missing key from an empty value.
type wireResult struct {
	TestGroup  *string `json:"testGroup"`
	TestName   *string `json:"testName"`
	TestStatus *string `json:"testStatus"`
	TestDetail *string `json:"testDetail"`
}

// DecodeResults parses the payload extracted from the results container
// and unescapes every field. A missing key or malformed JSON is an
// error; callers synthesize an error result rather than crash.
func DecodeResults(payload string) ([]TestResult, error) {
	var wire []wireResult
	if err := json.Unmarshal([]byte(payload), &wire); err != nil {
		return nil, fmt.Errorf("browser: decode results payload: %w", err)
	}

	results := make([]TestResult, 0, len(wire))
	for i, w := range wire {
		if w.TestGroup == nil || w.TestName == nil || w.TestStatus == nil || w.TestDetail == nil {
			return nil, fmt.Errorf("browser: result %d is missing a required key", i)
		}
		r := TestResult{}
		var err error
		if r.Group, err = url.PathUnescape(*w.TestGroup); err != nil {
			return nil, fmt.Errorf("browser: unescape testGroup: %w", err)
		}
		if r.Name, err = url.PathUnescape(*w.TestName); err != nil {
			return nil, fmt.Errorf("browser: unescape testName: %w", err)
		}
		if r.Status, err = url.PathUnescape(*w.TestStatus); err != nil {
			return nil, fmt.Errorf("browser: unescape testStatus: %w", err)
		}
		if r.Detail, err = url.PathUnescape(*w.TestDetail); err != nil {
			return nil, fmt.Errorf("browser: unescape testDetail: %w", err)
		}
		results = append(results, r)
	}
	return results, nil
}

// EncodeResults produces the wire payload for a result list, escaping
// fields the same way the in-page reporter does. Used by tests and by
// tooling that replays stored results.
func EncodeResults(results []TestResult) (string, error) {
	wire := make([]map[string]string, len(results))
	for i, r := range results {
		wire[i] = map[string]string{
			"testGroup":  escapeField(r.Group),
			"testName":   escapeField(r.Name),
			"testStatus": escapeField(r.Status),
			"testDetail": escapeField(r.Detail),
		}
	}
	data, err := json.Marshal(wire)
	if err != nil {
		return "", fmt.Errorf("browser: encode results: %w", err)
	}
	return string(data), nil
}

// escapeField matches encodeURIComponent: unreserved characters pass
// through, everything else is percent-encoded.
func escapeField(s string) string {
	const unreserved = "-_.!~*'()"
	var b strings.Builder
	for _, c := range []byte(s) {
		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9':
			b.WriteByte(c)
		case strings.IndexByte(unreserved, c) >= 0:
			b.WriteByte(c)
		default:
			fmt.Fprintf(&b, "%%%02X", c)
		}
	}
	return b.String()
}
