// Package server serves runner pages and suite dependencies over HTTP.
//
// One server instance carries every suite of the invocation. Requests
// are read-only against the immutable manifests, so concurrent browser
// sessions can share the instance freely; coverage submissions are the
// only writes and are forwarded to the coordinator, which guards its
// own state.
package server

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/edx/js-test-tool/suite"
)

// ServerError reports a startup failure, typically an unavailable bind
// port. Fatal for the whole invocation: no suite can run without a
// server.
type ServerError struct {
	Addr string
	Err  error
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server: listen on %s: %v", e.Addr, e.Err)
}

func (e *ServerError) Unwrap() error { return e.Err }

// Instrumenter is the coverage coordinator surface the server needs:
// src files are proxied through it and coverage submissions handed to
// it. Nil disables both.
type Instrumenter interface {
	Instrument(suiteName, relPath string) ([]byte, error)
	Store(suiteName string, body []byte) error
}

// Config configures a suite page server.
type Config struct {
	// Addr to bind. Default: 127.0.0.1:0 (ephemeral port).
	Addr string

	// Renderer generates runner pages. Default: zero Renderer
	// (automated JSON-reporting pages).
	Renderer *suite.Renderer

	// Instrumenter, when non-nil, intercepts src file requests and
	// receives coverage submissions.
	Instrumenter Instrumenter

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.Addr == "" {
		c.Addr = "127.0.0.1:0"
	}
	if c.Renderer == nil {
		c.Renderer = &suite.Renderer{}
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Server serves the runner pages and dependencies of a set of suites.
type Server struct {
	cfg    Config
	suites map[string]*suite.Description
	names  []string

	ln      net.Listener
	httpSrv *http.Server
}

// New builds a Server for descs. Two descriptions sharing a name is a
// configuration error: silently overwriting one suite with another
// would make the report lie about what ran.
func New(descs []*suite.Description, cfg Config) (*Server, error) {
	cfg.defaults()

	suites := make(map[string]*suite.Description, len(descs))
	names := make([]string, 0, len(descs))
	for _, d := range descs {
		if _, dup := suites[d.Name]; dup {
			return nil, &suite.ConfigError{Msg: fmt.Sprintf("duplicate suite name %q", d.Name)}
		}
		suites[d.Name] = d
		names = append(names, d.Name)
	}

	return &Server{cfg: cfg, suites: suites, names: names}, nil
}

// SetInstrumenter attaches the coverage instrumenter. Must be called
// before Start.
func (s *Server) SetInstrumenter(i Instrumenter) {
	s.cfg.Instrumenter = i
}

// Handler builds the route table. Exposed for handler-level tests.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/suite/{suite}", s.handleSuitePage)
	r.Get("/suite/{suite}/include/*", s.handleInclude)
	r.Post("/jscoverage-store/{suite}", s.handleCoverageStore)
	r.Get("/runner/*", s.handleRunnerAsset)
	return r
}

// Start binds the port and begins serving. A bind failure is a
// ServerError and aborts the invocation.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return &ServerError{Addr: s.cfg.Addr, Err: err}
	}
	s.ln = ln
	s.httpSrv = &http.Server{Handler: s.Handler()}

	go func() {
		if err := s.httpSrv.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.cfg.Logger.Error("server: serve", "error", err)
		}
	}()

	s.cfg.Logger.Info("server: serving suites", "url", s.RootURL(), "suites", s.names)
	return nil
}

// Stop shuts the server down and releases the port.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.httpSrv.Shutdown(shutdownCtx)
}

// RootURL returns the server base URL, valid after Start.
func (s *Server) RootURL() string {
	return fmt.Sprintf("http://%s", s.ln.Addr())
}

// SuiteURL returns the runner page URL for a suite.
func (s *Server) SuiteURL(name string) string {
	return s.RootURL() + "/suite/" + name
}

// SuiteNames returns the mounted suites in registration order.
func (s *Server) SuiteNames() []string {
	return append([]string(nil), s.names...)
}

func (s *Server) handleSuitePage(w http.ResponseWriter, r *http.Request) {
	desc, ok := s.suites[chi.URLParam(r, "suite")]
	if !ok {
		http.NotFound(w, r)
		return
	}

	page, err := s.cfg.Renderer.RenderPage(desc)
	if err != nil {
		s.cfg.Logger.Error("server: render suite page", "suite", desc.Name, "error", err)
		http.Error(w, "could not render runner page", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(page)
}

func (s *Server) handleInclude(w http.ResponseWriter, r *http.Request) {
	desc, ok := s.suites[chi.URLParam(r, "suite")]
	if !ok {
		http.NotFound(w, r)
		return
	}

	rel := chi.URLParam(r, "*")
	full, category, ok := desc.Lookup(rel)
	if !ok {
		// Only manifest entries are served; anything else 404s even
		// if the file exists on disk.
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", contentType(rel))

	// src files go through the instrumenter when coverage is on; on
	// instrumentation failure the raw file is served so the tests can
	// still run, at the cost of a coverage gap.
	if s.cfg.Instrumenter != nil && category == suite.CategorySrc {
		body, err := s.cfg.Instrumenter.Instrument(desc.Name, rel)
		if err == nil {
			w.Write(body)
			return
		}
		s.cfg.Logger.Warn("server: instrument failed, serving raw source",
			"suite", desc.Name, "path", rel, "error", err)
	}

	f, err := os.Open(full)
	if err != nil {
		s.cfg.Logger.Warn("server: dependency unreadable", "path", full, "error", err)
		http.NotFound(w, r)
		return
	}
	defer f.Close()
	io.Copy(w, f)
}

func (s *Server) handleCoverageStore(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "suite")
	if _, ok := s.suites[name]; !ok {
		http.NotFound(w, r)
		return
	}
	if s.cfg.Instrumenter == nil {
		http.Error(w, "coverage collection is disabled", http.StatusNotFound)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 64<<20))
	if err != nil {
		http.Error(w, "could not read submission", http.StatusBadRequest)
		return
	}
	if err := s.cfg.Instrumenter.Store(name, body); err != nil {
		s.cfg.Logger.Warn("server: coverage submission rejected",
			"suite", name, "error", err)
		http.Error(w, "could not interpret coverage data", http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	io.WriteString(w, "Success: coverage data received")
}

// handleRunnerAsset serves the embedded in-page reporter scripts.
func (s *Server) handleRunnerAsset(w http.ResponseWriter, r *http.Request) {
	rel := chi.URLParam(r, "*")
	body, err := fs.ReadFile(suite.RunnerAssets, "runner/"+rel)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", contentType(rel))
	w.Write(body)
}

func contentType(rel string) string {
	if t := mime.TypeByExtension(filepath.Ext(rel)); t != "" {
		return t
	}
	return "text/plain; charset=utf-8"
}
