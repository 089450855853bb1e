// Package server exposes program execution over Connect. Messages are
// CBOR encoded; each run gets a fresh VM and runs are serialized through
// one worker goroutine.
package server

import (
	"net/http"
	"time"

	"connectrpc.com/connect"
	"github.com/tliron/commonlog"

	"github.com/chazu/quadra/image"
	"github.com/chazu/quadra/imagestore"
)

var log = commonlog.GetLogger("quadra.server")

// Server hosts the exec service.
type Server struct {
	worker *Worker
	runs   *RunStore
	exec   *ExecService
	mux    *http.ServeMux

	stopSweeper func()
}

// Option configures a Server.
type Option func(*config)

type config struct {
	store    *imagestore.Store
	policy   *image.NativePolicy
	maxSteps uint64
	runTTL   time.Duration
}

// WithStore lets clients run stored images by hash and keep new ones.
func WithStore(store *imagestore.Store) Option {
	return func(c *config) { c.store = store }
}

// WithPolicy restricts the natives that submitted images may call.
// If not set, a permissive policy (allow all) is used.
func WithPolicy(policy *image.NativePolicy) Option {
	return func(c *config) { c.policy = policy }
}

// WithMaxSteps caps the instructions a single run may execute.
func WithMaxSteps(n uint64) Option {
	return func(c *config) { c.maxSteps = n }
}

// WithRunTTL sets how long finished run records are kept.
func WithRunTTL(ttl time.Duration) Option {
	return func(c *config) { c.runTTL = ttl }
}

// New creates a Server.
func New(opts ...Option) *Server {
	cfg := &config{
		policy: image.NewPermissivePolicy(),
		runTTL: 30 * time.Minute,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	worker := NewWorker()
	runs := NewRunStore()
	s := &Server{
		worker: worker,
		runs:   runs,
		exec:   NewExecService(worker, runs, cfg.store, cfg.policy, cfg.maxSteps),
		mux:    http.NewServeMux(),
	}

	path, handler := NewHandler(s.exec)
	s.mux.Handle(path, handler)

	// Sweep every 5 minutes
	s.stopSweeper = runs.StartSweeper(5*time.Minute, cfg.runTTL)
	return s
}

// NewHandler builds the HTTP handler for an ExecService. The returned path
// is the prefix to mount it under.
func NewHandler(svc *ExecService, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(cborCodec{})}, opts...)
	mux := http.NewServeMux()
	mux.Handle(RunProcedure, connect.NewUnaryHandler(RunProcedure, svc.Run, opts...))
	mux.Handle(GetRunProcedure, connect.NewUnaryHandler(GetRunProcedure, svc.GetRun, opts...))
	return "/quadra.v1.ExecService/", mux
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.mux }

// Runs exposes the run records.
func (s *Server) Runs() *RunStore { return s.runs }

// ListenAndServe starts the HTTP server on the given address.
// The address should be in the form "host:port" or ":port".
func (s *Server) ListenAndServe(addr string) error {
	log.Noticef("quadra exec server listening on %s", addr)
	log.Noticef("  Connect (CBOR): http://%s%s", addr, RunProcedure)
	return http.ListenAndServe(addr, s.mux)
}

// Stop shuts down the server.
func (s *Server) Stop() {
	if s.stopSweeper != nil {
		s.stopSweeper()
	}
	s.worker.Stop()
}
