// Package web serves a node's live status over HTTP: an HTML page for people,
// a JSON document for scripts and, when a registry is supplied, Prometheus
// metrics.
package web

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sweeney/caresync/internal/status"
)

// Server is an http.Server whose handler renders tracker snapshots.
// ListenAndServe, Serve and Shutdown come from the embedded server.
type Server struct {
	*http.Server
	tracker *status.Tracker
}

// New builds a Server bound to addr. A nil gatherer leaves /metrics unrouted.
func New(addr string, tracker *status.Tracker, gatherer prometheus.Gatherer) *Server {
	s := &Server{tracker: tracker}

	routes := http.NewServeMux()
	routes.HandleFunc("GET /{$}", s.page)
	routes.HandleFunc("GET /index.html", s.page)
	routes.HandleFunc("GET /index.json", s.document)
	if gatherer != nil {
		routes.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	s.Server = &http.Server{Addr: addr, Handler: routes}
	return s
}

func (s *Server) page(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if err := render(w, s.tracker.Snapshot()); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (s *Server) document(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(status.FormatJSON(s.tracker.Snapshot()))
}
