package runner

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"runtime"

	"github.com/edx/js-test-tool/server"
	"github.com/edx/js-test-tool/suite"
)

// RunDev serves a single suite in dev mode: the runner page renders
// live results in the browser, the server stays up until ctx is
// cancelled (user interrupt), and no results are extracted. Coverage
// is never collected in dev mode.
func RunDev(ctx context.Context, descriptorPath string, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	desc, err := suite.Load(descriptorPath)
	if err != nil {
		return err
	}

	srv, err := server.New([]*suite.Description{desc}, server.Config{
		Renderer: &suite.Renderer{DevMode: true},
		Logger:   logger,
	})
	if err != nil {
		return err
	}
	if err := srv.Start(); err != nil {
		return err
	}
	defer srv.Stop(context.WithoutCancel(ctx))

	pageURL := srv.SuiteURL(desc.Name)
	fmt.Printf("Serving JavaScript test suite at: %s\n", pageURL)
	fmt.Println("Use Ctrl-C to quit.")

	if err := openInBrowser(pageURL); err != nil {
		logger.Warn("runner: could not open browser, visit the URL manually",
			"url", pageURL, "error", err)
	}

	<-ctx.Done()
	fmt.Println("\nStopping JavaScript test suite server...")
	return nil
}

// openInBrowser opens url in the user's default browser.
func openInBrowser(url string) error {
	switch runtime.GOOS {
	case "darwin":
		return exec.Command("open", url).Start()
	case "windows":
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", url).Start()
	default:
		if _, err := exec.LookPath("xdg-open"); err != nil {
			return fmt.Errorf("xdg-open not found: %w", err)
		}
		return exec.Command("xdg-open", url).Start()
	}
}
