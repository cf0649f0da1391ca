// Package browser drives browser sessions against runner pages and
// extracts the reported test results.
//
// The automation protocol is abstracted behind Capability so the
// session state machine can be exercised without a real browser. The
// shipped implementation speaks the Chrome DevTools protocol via Rod.
package browser

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// LaunchError reports that a browser capability could not be acquired.
// Fatal for that browser only; other browsers in the invocation
// continue.
type LaunchError struct {
	Browser string
	Err     error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("browser: launch %s: %v", e.Browser, e.Err)
}

func (e *LaunchError) Unwrap() error { return e.Err }

// Capability is a launched browser able to load a runner page and
// report on its results container.
type Capability interface {
	// Navigate loads the runner page URL.
	Navigate(ctx context.Context, pageURL string) error

	// ReadResults inspects the results container. done is true once the
	// completion marker is set, in which case payload holds the encoded
	// result list. An error means the browser process is gone.
	ReadResults(ctx context.Context) (payload string, done bool, err error)

	// Close terminates the browser. Safe to call on every exit path.
	Close() error
}

// Factory acquires a Capability for a named browser. Injected into
// sessions so tests can substitute fakes.
type Factory func(ctx context.Context, browserName string) (Capability, error)

// Launch acquires a real browser capability. Only DevTools-protocol
// browsers can be driven; chrome resolves through the Rod launcher,
// other names fail with LaunchError and leave sibling browsers
// untouched.
func Launch(ctx context.Context, browserName string, logger *slog.Logger) (Capability, error) {
	if logger == nil {
		logger = slog.Default()
	}

	switch browserName {
	case "chrome":
	default:
		return nil, &LaunchError{
			Browser: browserName,
			Err:     fmt.Errorf("%q does not speak the DevTools protocol", browserName),
		}
	}

	l := launcher.New().Headless(true)
	controlURL, err := l.Launch()
	if err != nil {
		return nil, &LaunchError{Browser: browserName, Err: err}
	}

	b := rod.New().ControlURL(controlURL).Context(ctx)
	if err := b.Connect(); err != nil {
		l.Cleanup()
		return nil, &LaunchError{Browser: browserName, Err: err}
	}

	page, err := b.Page(proto.TargetCreateTarget{URL: ""})
	if err != nil {
		b.Close()
		l.Cleanup()
		return nil, &LaunchError{Browser: browserName, Err: err}
	}

	logger.Info("browser: launched", "browser", browserName, "control_url", controlURL)
	return &rodCapability{name: browserName, browser: b, lnch: l, page: page}, nil
}

type rodCapability struct {
	name    string
	browser *rod.Browser
	lnch    *launcher.Launcher
	page    *rod.Page
}

func (c *rodCapability) Navigate(ctx context.Context, pageURL string) error {
	if err := c.page.Context(ctx).Navigate(pageURL); err != nil {
		return fmt.Errorf("browser: navigate %s: %w", pageURL, err)
	}
	return nil
}

// readResultsJS returns "" until the completion marker is set, then the
// container's text payload.
const readResultsJS = `() => {
	const el = document.getElementById("js_test_tool_results");
	if (!el || el.getAttribute("data-status") !== "complete") {
		return "";
	}
	return el.textContent;
}`

func (c *rodCapability) ReadResults(ctx context.Context) (string, bool, error) {
	res, err := c.page.Context(ctx).Eval(readResultsJS)
	if err != nil {
		return "", false, fmt.Errorf("browser: inspect results container: %w", err)
	}
	payload := res.Value.Str()
	return payload, payload != "", nil
}

func (c *rodCapability) Close() error {
	if c.page != nil {
		c.page.Close()
	}
	if c.browser != nil {
		c.browser.Close()
	}
	if c.lnch != nil {
		c.lnch.Cleanup()
	}
	return nil
}
