// Package doubles provides the HTTP test doubles the harness points the
// browser at: a permissive collector for tracker beacons and a static content
// server for the generated test page.
package doubles

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Server is a running test double. It is bound and accepting connections
// once the constructor returns, and owns exactly one serve goroutine.
type Server struct {
	name string
	srv  *http.Server
	ln   net.Listener
	log  *zap.Logger
	g    errgroup.Group

	closeOnce sync.Once
	closeErr  error
}

func start(name, addr string, handler http.Handler, log *zap.Logger) (*Server, error) {
	if log == nil {
		log = zap.NewNop()
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%s double: listen on %s: %w", name, addr, err)
	}

	s := &Server{
		name: name,
		ln:   ln,
		log:  log,
		srv: &http.Server{
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
	s.g.Go(func() error {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("%s double: serve: %w", name, err)
		}
		return nil
	})

	log.Info("test double listening", zap.String("double", name), zap.String("addr", ln.Addr().String()))
	return s, nil
}

// Port returns the bound TCP port.
func (s *Server) Port() int {
	return s.ln.Addr().(*net.TCPAddr).Port
}

// URL returns the base URL browsers should use, e.g. http://localhost:9090.
func (s *Server) URL() string {
	return fmt.Sprintf("http://localhost:%d", s.Port())
}

// Close shuts the server down and blocks until the serve goroutine has
// returned and the port is released. It is safe to call more than once.
func (s *Server) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		shutdownErr := s.srv.Shutdown(ctx)
		if shutdownErr != nil {
			// Active connections outlived ctx; drop them.
			shutdownErr = errors.Join(shutdownErr, s.srv.Close())
		}
		s.closeErr = errors.Join(shutdownErr, s.g.Wait())
		s.log.Info("test double closed", zap.String("double", s.name), zap.Error(s.closeErr))
	})
	return s.closeErr
}

// requestLogger logs every request at debug level.
func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			log.Debug("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("origin", r.Header.Get("Origin")),
				zap.Duration("elapsed", time.Since(start)),
			)
		})
	}
}
