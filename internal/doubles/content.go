package doubles

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// StartContent serves the files under root on addr. root is expected to be a
// fresh per-test directory.
func StartContent(_ context.Context, addr, root string, log *zap.Logger) (*Server, error) {
	if log == nil {
		log = zap.NewNop()
	}
	h, err := ContentHandler(root, log)
	if err != nil {
		return nil, err
	}
	return start("content", addr, h, log)
}

// ContentHandler is a static file server rooted at root. Responses are marked
// uncacheable so a page regenerated for the next test is never served stale.
func ContentHandler(root string, log *zap.Logger) (http.Handler, error) {
	fi, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("content root: %w", err)
	}
	if !fi.IsDir() {
		return nil, fmt.Errorf("content root %s is not a directory", root)
	}

	r := chi.NewRouter()
	r.Use(requestLogger(log))
	r.Use(middleware.NoCache)
	r.Handle("/*", http.FileServer(http.Dir(root)))
	return r, nil
}
