package doubles

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// collectorBody is what every beacon gets back.
const collectorBody = "ok"

// StartCollector starts the collector double on addr (":9090", or ":0" for
// an ephemeral port). It accepts any method on any path.
func StartCollector(_ context.Context, addr string, log *zap.Logger) (*Server, error) {
	if log == nil {
		log = zap.NewNop()
	}
	return start("collector", addr, CollectorHandler(log), log)
}

// CollectorHandler answers like a collector that only cares about passing
// CORS, so beacons complete and show up in DevTools' network log. Missing
// request headers are echoed as empty values.
func CollectorHandler(log *zap.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(requestLogger(log))
	r.Options("/*", handlePreflight)
	r.Get("/*", handleBeacon)
	r.Post("/*", handleBeacon)
	r.MethodNotAllowed(handleBeacon)
	r.NotFound(handleBeacon)
	return r
}

func allowOrigin(w http.ResponseWriter, r *http.Request) {
	h := w.Header()
	h.Set("Access-Control-Allow-Origin", r.Header.Get("Origin"))
	h.Set("Access-Control-Allow-Credentials", "true")
}

func handlePreflight(w http.ResponseWriter, r *http.Request) {
	allowOrigin(w, r)
	w.Header().Set("Access-Control-Allow-Headers", r.Header.Get("Access-Control-Request-Headers"))
	w.WriteHeader(http.StatusOK)
}

func handleBeacon(w http.ResponseWriter, r *http.Request) {
	h := w.Header()
	h.Set("Content-Type", "text/plain")
	h.Set("Content-Length", strconv.Itoa(len(collectorBody)))
	allowOrigin(w, r)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(collectorBody))
}
