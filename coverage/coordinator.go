package coverage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/edx/js-test-tool/suite"
)

// EnvJSCoverJar names the environment variable locating the JSCover
// jar. When unset, coverage collection is disabled for the invocation.
const EnvJSCoverJar = "JSCOVER_JAR"

// ErrUnavailable means the instrumentation dependency could not be
// located. Non-fatal: the run proceeds without coverage.
var ErrUnavailable = errors.New("coverage: instrumentation unavailable")

// ErrTimeout means no coverage submission arrived for a suite within
// the deadline. Reported as a warning; the run verdict is unaffected.
var ErrTimeout = errors.New("coverage: timed out waiting for submission")

// awaitPollInterval is the sleep between submission checks in
// AwaitSuite.
const awaitPollInterval = 100 * time.Millisecond

// Coordinator owns the JSCover child process for one invocation. It is
// started before the suite server (which proxies src requests through
// it) and stopped after, in strict reverse order.
type Coordinator struct {
	jarPath string
	logger  *slog.Logger

	cmd     *exec.Cmd
	baseURL string
	client  *http.Client
	data    *Data

	// suites maps suite names to descriptions, for key normalization
	// of submissions and expected-src registration.
	suites map[string]*suite.Description
}

// NewCoordinator locates the instrumentation jar through EnvJSCoverJar.
// A missing variable or jar file yields ErrUnavailable; callers degrade
// to a coverage-disabled run with a warning.
func NewCoordinator(logger *slog.Logger) (*Coordinator, error) {
	if logger == nil {
		logger = slog.Default()
	}

	jarPath := os.Getenv(EnvJSCoverJar)
	if jarPath == "" {
		return nil, fmt.Errorf("%w: %s is not set", ErrUnavailable, EnvJSCoverJar)
	}
	if _, err := os.Stat(jarPath); err != nil {
		return nil, fmt.Errorf("%w: jar %q: %v", ErrUnavailable, jarPath, err)
	}

	return &Coordinator{
		jarPath: jarPath,
		logger:  logger,
		client:  &http.Client{Timeout: 10 * time.Second},
		data:    NewData(),
		suites:  make(map[string]*suite.Description),
	}, nil
}

// AddSuite registers a suite whose src files will be instrumented.
// Every src file is recorded as expected so it shows up in reports as
// uncovered when no submission mentions it.
func (c *Coordinator) AddSuite(desc *suite.Description) {
	c.suites[desc.Name] = desc
	for _, rel := range desc.PathsByCategory(suite.CategorySrc) {
		c.data.AddExpectedSrc(displayPath(desc, rel))
	}
}

// Start launches the JSCover child in server mode on an ephemeral port
// and blocks until its HTTP interface answers. The process lives for
// the whole invocation.
func (c *Coordinator) Start(ctx context.Context) error {
	port, err := freePort()
	if err != nil {
		return fmt.Errorf("coverage: pick port: %w", err)
	}

	// Document root is the filesystem root: instrumentation requests
	// address files by absolute path, so one process serves every
	// suite in the invocation.
	cmd := exec.CommandContext(ctx, "java", "-jar", c.jarPath,
		"-ws",
		fmt.Sprintf("--port=%d", port),
		"--document-root=/")
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("coverage: start jscover: %w", err)
	}
	c.cmd = cmd
	c.baseURL = fmt.Sprintf("http://127.0.0.1:%d", port)

	if err := c.waitHealthy(ctx); err != nil {
		c.Stop()
		return fmt.Errorf("coverage: jscover did not come up: %w", err)
	}

	c.logger.Info("coverage: instrumenter started", "jar", c.jarPath, "url", c.baseURL)
	return nil
}

// waitHealthy polls the child's HTTP interface until it answers or the
// attempts are exhausted.
func (c *Coordinator) waitHealthy(ctx context.Context) error {
	const maxAttempts = 50
	var lastErr error
	for i := 0; i < maxAttempts; i++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", nil)
		if err != nil {
			return err
		}
		resp, err := c.client.Do(req)
		if err == nil {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			return nil
		}
		lastErr = err

		t := time.NewTimer(100 * time.Millisecond)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
	return lastErr
}

// Stop terminates the child process. Called after the suite server has
// shut down.
func (c *Coordinator) Stop() {
	if c.cmd == nil || c.cmd.Process == nil {
		return
	}
	if err := c.cmd.Process.Kill(); err != nil {
		c.logger.Warn("coverage: kill instrumenter", "error", err)
	}
	c.cmd.Wait()
	c.cmd = nil
	c.logger.Info("coverage: instrumenter stopped")
}

// Instrument proxies the src file at rel (relative to the named suite's
// root) through the child and returns the instrumented body
// byte-for-byte as received.
func (c *Coordinator) Instrument(suiteName, rel string) ([]byte, error) {
	desc, ok := c.suites[suiteName]
	if !ok {
		return nil, fmt.Errorf("coverage: unknown suite %q", suiteName)
	}

	full := filepath.Join(desc.RootDir, filepath.FromSlash(rel))
	resp, err := c.client.Get(c.baseURL + filepath.ToSlash(full))
	if err != nil {
		return nil, fmt.Errorf("coverage: instrument %s: %w", rel, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("coverage: instrument %s: status %d", rel, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("coverage: instrument %s: %w", rel, err)
	}
	return body, nil
}

// Store parses a coverage submission POSTed by a browser for suiteName
// and merges it into the running totals.
func (c *Coordinator) Store(suiteName string, body []byte) error {
	desc, ok := c.suites[suiteName]
	if !ok {
		return fmt.Errorf("coverage: submission for unknown suite %q", suiteName)
	}

	fragment, err := ParseSubmission(body)
	if err != nil {
		return err
	}

	normalized := make(map[string][]int, len(fragment))
	for key, lines := range fragment {
		normalized[normalizeKey(desc, key)] = lines
	}
	c.data.Merge(suiteName, normalized)

	c.logger.Debug("coverage: submission stored",
		"suite", suiteName, "files", len(normalized))
	return nil
}

// AwaitSuite blocks until a submission for suiteName has been received
// or the deadline elapses, in which case it fails with ErrTimeout.
// Coverage for a suite may arrive after its browser session has already
// completed, so this runs on the aggregation path, not the polling
// path.
func (c *Coordinator) AwaitSuite(ctx context.Context, suiteName string, deadline time.Duration) error {
	limit := time.Now().Add(deadline)
	for {
		if c.data.HasSuite(suiteName) {
			return nil
		}
		if time.Now().After(limit) {
			return fmt.Errorf("%w: suite %q after %s", ErrTimeout, suiteName, deadline)
		}
		t := time.NewTimer(awaitPollInterval)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

// Data exposes the accumulated coverage for report generation.
func (c *Coordinator) Data() *Data { return c.data }

// normalizeKey maps a submission key back to the suite-relative display
// path. Instrumented code embeds the URI path the instrumenter fetched,
// which is the absolute filesystem path of the src file; older runner
// pages submit the /suite/<name>/include/ URL path instead. Both forms
// collapse to the same display path.
func normalizeKey(desc *suite.Description, key string) string {
	prefix := "/suite/" + desc.Name + "/include/"
	if rel, ok := strings.CutPrefix(key, prefix); ok {
		return displayPath(desc, rel)
	}
	root := filepath.ToSlash(desc.RootDir)
	if !strings.HasSuffix(root, "/") {
		root += "/"
	}
	if rel, ok := strings.CutPrefix(key, root); ok {
		return displayPath(desc, rel)
	}
	return displayPath(desc, strings.TrimPrefix(key, "/"))
}

// displayPath is the report-facing path of a src file: the suite
// relative path with prepend_path applied.
func displayPath(desc *suite.Description, rel string) string {
	if desc.PrependPath == "" {
		return path.Clean(rel)
	}
	return path.Join(desc.PrependPath, rel)
}

func freePort() (int, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port, nil
}
