package main

import (
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"github.com/nao1215/dqmon/internal/alert"
	"github.com/nao1215/dqmon/internal/model"
)

// latestReports keeps the most recent run report per dataset.
type latestReports struct {
	mu      sync.RWMutex
	reports map[string]*model.RunReport
}

func newLatestReports() *latestReports {
	return &latestReports{reports: make(map[string]*model.RunReport)}
}

func (l *latestReports) set(r *model.RunReport) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.reports[r.DatasetName] = r
}

func (l *latestReports) get(name string) (*model.RunReport, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	r, ok := l.reports[name]
	return r, ok
}

// all returns the reports sorted by dataset name.
func (l *latestReports) all() []*model.RunReport {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]*model.RunReport, 0, len(l.reports))
	for _, r := range l.reports {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DatasetName < out[j].DatasetName })
	return out
}

// statusResponse is the /healthz body.
type statusResponse struct {
	Status   string    `json:"status"`
	Started  time.Time `json:"started"`
	Version  string    `json:"version"`
	Datasets int       `json:"datasets"`
}

// serverDeps are the read-only views the HTTP endpoints serve.
type serverDeps struct {
	metrics http.Handler
	latest  *latestReports
	stats   func() alert.Summary
	started time.Time
}

// newRouter builds the watch HTTP API:
//
//	GET /metrics               Prometheus exposition
//	GET /healthz               liveness
//	GET /api/latest            latest report of every dataset
//	GET /api/latest/{dataset}  latest report of one dataset
//	GET /api/alerts/stats      alert history summary
func newRouter(deps serverDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Handle("/metrics", deps.metrics)

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		render.JSON(w, req, statusResponse{
			Status:   "ok",
			Started:  deps.started,
			Version:  getVersion(),
			Datasets: len(deps.latest.all()),
		})
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/latest", func(w http.ResponseWriter, req *http.Request) {
			render.JSON(w, req, deps.latest.all())
		})
		r.Get("/latest/{dataset}", func(w http.ResponseWriter, req *http.Request) {
			rep, ok := deps.latest.get(chi.URLParam(req, "dataset"))
			if !ok {
				render.Status(req, http.StatusNotFound)
				render.JSON(w, req, map[string]string{"error": "no run recorded for this dataset"})
				return
			}
			render.JSON(w, req, rep)
		})
		r.Get("/alerts/stats", func(w http.ResponseWriter, req *http.Request) {
			render.JSON(w, req, deps.stats())
		})
	})

	return r
}
