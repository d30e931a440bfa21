package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/aryangodara/admission_control"
	"github.com/aryangodara/admission_control/stats"
	"github.com/rs/zerolog"
)

// Options wires the admission control middleware in front of the application.
type Options struct {
	Limiter   *admission_control.RateLimiter
	Extractor admission_control.Extractor
	Recorder  stats.Recorder
	// Reader exposes GET /stats outside of admission control when set.
	Reader stats.Reader
	Logger zerolog.Logger
}

// NewHandler builds the application handler.
func NewHandler(opts Options) http.Handler {
	app := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("success"))
	})

	mux := http.NewServeMux()
	if opts.Reader != nil {
		mux.Handle("/stats", statsHandler(opts.Reader, opts.Logger))
	}
	mux.Handle("/", admission_control.NewHTTPRateLimiterHandler(app, &admission_control.RateLimiterConfig{
		Extractor: opts.Extractor,
		Weight:    admission_control.MethodWeight,
		Limiter:   opts.Limiter,
		Stats:     opts.Recorder,
		Logger:    opts.Logger,
	}))
	return mux
}

func statsHandler(reader stats.Reader, log zerolog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
			return
		}
		totals, err := reader.Totals(r.Context())
		if err != nil {
			log.Error().Err(err).Msg("failed to read stats")
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(totals)
	})
}

// Server is a running HTTP listener.
type Server struct {
	srv  *http.Server
	ln   net.Listener
	done chan error
	log  zerolog.Logger
}

// Start listens on addr and serves handler in the background.
func Start(addr string, handler http.Handler, log zerolog.Logger) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %v: %w", addr, err)
	}

	s := &Server{
		srv: &http.Server{
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       90 * time.Second,
		},
		ln:   ln,
		done: make(chan error, 1),
		log:  log,
	}

	go func() {
		err := s.srv.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		s.done <- err
	}()

	log.Info().Str("addr", s.Addr()).Msg("starting server")
	return s, nil
}

// Addr returns the address the server listens on.
func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

// Done receives the serve error once the server stops, nil after a graceful Close.
func (s *Server) Done() <-chan error {
	return s.done
}

// Close gracefully shuts the server down, waiting for in-flight requests until ctx ends.
func (s *Server) Close(ctx context.Context) error {
	s.log.Info().Msg("stopping server")
	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	return nil
}
