package browser

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// State of a run session. One session covers one (suite, browser) pair.
type State int

const (
	StateLaunching State = iota
	StateNavigated
	StatePolling
	StateDone
	StateTimedOut
	StateCrashed
)

func (s State) String() string {
	switch s {
	case StateLaunching:
		return "launching"
	case StateNavigated:
		return "navigated"
	case StatePolling:
		return "polling"
	case StateDone:
		return "done"
	case StateTimedOut:
		return "timed_out"
	case StateCrashed:
		return "crashed"
	default:
		return "unknown"
	}
}

// DefaultTimeout bounds how long a session waits for the completion
// marker before synthesizing a timeout result.
const DefaultTimeout = 5 * time.Minute

// DefaultPollInterval is the sleep between completion checks.
const DefaultPollInterval = 250 * time.Millisecond

// Session drives one (suite, browser) execution.
type Session struct {
	Browser      string
	Suite        string
	PageURL      string
	Timeout      time.Duration
	PollInterval time.Duration
	Logger       *slog.Logger
}

func (s *Session) defaults() {
	if s.Timeout <= 0 {
		s.Timeout = DefaultTimeout
	}
	if s.PollInterval <= 0 {
		s.PollInterval = DefaultPollInterval
	}
	if s.Logger == nil {
		s.Logger = slog.Default()
	}
}

// Run launches a capability through factory, navigates to the runner
// page and polls the completion marker under the session deadline. The
// browser is terminated on every exit path.
//
// Run never returns an empty result list for a session that started:
// timeouts, crashes and malformed payloads all synthesize a single
// result with status "error" so the suite is never silently dropped
// from the report. The returned state is the terminal state reached.
func (s *Session) Run(ctx context.Context, factory Factory) ([]TestResult, State) {
	s.defaults()
	log := s.Logger

	capability, err := factory(ctx, s.Browser)
	if err != nil {
		log.Error("browser: session launch failed",
			"browser", s.Browser, "suite", s.Suite, "error", err)
		return s.synthesize(fmt.Sprintf("could not launch browser %q: %v", s.Browser, err)), StateCrashed
	}
	defer capability.Close()

	if err := capability.Navigate(ctx, s.PageURL); err != nil {
		log.Error("browser: session navigation failed",
			"browser", s.Browser, "suite", s.Suite, "url", s.PageURL, "error", err)
		return s.synthesize(fmt.Sprintf("could not load runner page %q: %v", s.PageURL, err)), StateCrashed
	}
	log.Debug("browser: session navigated",
		"browser", s.Browser, "suite", s.Suite, "url", s.PageURL)

	deadline := time.Now().Add(s.Timeout)
	ticker := time.NewTicker(s.PollInterval)
	defer ticker.Stop()

	for {
		payload, done, err := capability.ReadResults(ctx)
		if err != nil {
			log.Error("browser: session crashed",
				"browser", s.Browser, "suite", s.Suite, "error", err)
			return s.synthesize(fmt.Sprintf("browser %q crashed while running suite %q: %v",
				s.Browser, s.Suite, err)), StateCrashed
		}
		if done {
			results, err := DecodeResults(payload)
			if err != nil {
				log.Error("browser: malformed results payload",
					"browser", s.Browser, "suite", s.Suite, "error", err)
				return s.synthesize(fmt.Sprintf("malformed results payload from suite %q: %v",
					s.Suite, err)), StateDone
			}
			log.Info("browser: session complete",
				"browser", s.Browser, "suite", s.Suite, "num_results", len(results))
			return results, StateDone
		}

		if time.Now().After(deadline) {
			log.Error("browser: session timed out",
				"browser", s.Browser, "suite", s.Suite, "timeout", s.Timeout)
			return s.synthesize(fmt.Sprintf("timed out after %s waiting for suite %q to complete",
				s.Timeout, s.Suite)), StateTimedOut
		}

		select {
		case <-ctx.Done():
			return s.synthesize(fmt.Sprintf("run interrupted while waiting for suite %q", s.Suite)), StateCrashed
		case <-ticker.C:
		}
	}
}

func (s *Session) synthesize(detail string) []TestResult {
	return []TestResult{{
		Group:  s.Suite,
		Name:   "suite execution",
		Status: StatusError,
		Detail: detail,
	}}
}
