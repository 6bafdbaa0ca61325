// Package server exposes results, run history and metrics over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Geo-Karpushin/postgresql-vs-neo4j-benchmark/internal/history"
	"github.com/Geo-Karpushin/postgresql-vs-neo4j-benchmark/internal/results"
	"github.com/Geo-Karpushin/postgresql-vs-neo4j-benchmark/internal/taskrunner"
)

// HistoryReader is the read side of the run history.
type HistoryReader interface {
	List(ctx context.Context, f history.Filter) ([]history.Entry, error)
}

// Handler serves the benchctl HTTP API.
type Handler struct {
	ResultsDir string
	History    HistoryReader
	Registry   *taskrunner.Registry
	Gatherer   prometheus.Gatherer
	Logger     *zap.Logger
	// Draining is closed once shutdown starts; /healthz then reports 503.
	Draining <-chan struct{}
}

// RegisterRoutes registers all HTTP routes
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/results", h.GetResults).Methods("GET")
	r.HandleFunc("/history", h.ListHistory).Methods("GET")
	r.HandleFunc("/tasks", h.ListTasks).Methods("GET")
	r.HandleFunc("/tasks/{name}", h.GetTask).Methods("GET")
	r.HandleFunc("/healthz", h.Health).Methods("GET")
	if h.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(h.Gatherer, promhttp.HandlerOpts{})).Methods("GET")
	}
}

// NewRouter returns a router with every route registered.
func (h *Handler) NewRouter() *mux.Router {
	r := mux.NewRouter()
	h.RegisterRoutes(r)
	return r
}

// New wraps the handler in an http.Server listening on addr.
func New(addr string, h *Handler) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      h.NewRouter(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// GetResults aggregates the newest result files. ?n= defaults to 1; 0 means all.
func (h *Handler) GetResults(w http.ResponseWriter, r *http.Request) {
	n, ok := intQuery(w, r, "n", 1)
	if !ok {
		return
	}

	summary, skipped, err := results.Summarize(h.ResultsDir, n)
	if err != nil {
		if errors.Is(err, results.ErrNoResults) || errors.Is(err, os.ErrNotExist) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		h.logger().Error("failed to summarize results", zap.Error(err))
		http.Error(w, "failed to read results", http.StatusInternalServerError)
		return
	}
	if len(skipped) > 0 {
		w.Header().Set("X-Skipped-Files", strconv.Itoa(len(skipped)))
	}
	writeJSON(w, http.StatusOK, summary)
}

// ListHistory returns stored runs, newest first. Supports ?limit= and ?task=.
func (h *Handler) ListHistory(w http.ResponseWriter, r *http.Request) {
	if h.History == nil {
		http.Error(w, "history is disabled", http.StatusServiceUnavailable)
		return
	}
	limit, ok := intQuery(w, r, "limit", 50)
	if !ok {
		return
	}

	entries, err := h.History.List(r.Context(), history.Filter{
		Task:  r.URL.Query().Get("task"),
		Limit: limit,
	})
	if err != nil {
		h.logger().Error("failed to list history", zap.Error(err))
		http.Error(w, "failed to list history", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []history.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"runs":  entries,
		"count": len(entries),
	})
}

type taskInfo struct {
	Name     string   `json:"name"`
	Usage    string   `json:"usage"`
	Summary  string   `json:"summary"`
	Commands []string `json:"commands,omitempty"`
}

func describe(t *taskrunner.Task) taskInfo {
	return taskInfo{Name: t.Name, Usage: t.Usage(), Summary: t.Summary, Commands: t.CommandLines()}
}

// ListTasks returns the registered tasks in help order.
func (h *Handler) ListTasks(w http.ResponseWriter, r *http.Request) {
	tasks := h.Registry.Tasks()
	out := make([]taskInfo, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, describe(t))
	}
	writeJSON(w, http.StatusOK, out)
}

// GetTask returns one task by name.
func (h *Handler) GetTask(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	t, ok := h.Registry.Lookup(name)
	if !ok {
		http.Error(w, "unknown task: "+name, http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, describe(t))
}

// Health reports liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	select {
	case <-h.Draining:
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "shutting down"})
	default:
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func (h *Handler) logger() *zap.Logger {
	if h.Logger == nil {
		return zap.NewNop()
	}
	return h.Logger
}

func intQuery(w http.ResponseWriter, r *http.Request, key string, def int) (int, bool) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		http.Error(w, "invalid "+key+": must be a non-negative integer", http.StatusBadRequest)
		return 0, false
	}
	return v, true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
