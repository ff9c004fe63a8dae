// Package health serves the liveness and readiness endpoints of the
// assistant daemon.
//
//   - /healthz reports whether the process is alive: every liveness
//     [Checker] (typically the voice controller loop) must pass.
//   - /readyz additionally requires every readiness [Checker] to pass:
//     credentials configured, journal reachable, providers not all tripped.
//
// Responses are JSON objects with a top-level "status" field ("ok" or "fail")
// and a "checks" map holding the result of each named checker.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// checkTimeout bounds a single check.
const checkTimeout = 5 * time.Second

// Checker is a named health check.
type Checker struct {
	// Name keys the check in the JSON response.
	Name string

	// Liveness marks a check that /healthz evaluates too. A failing liveness
	// check means the process should be restarted, not merely drained.
	Liveness bool

	// Check returns nil when healthy. It must respect ctx.
	Check func(ctx context.Context) error
}

type result struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler serves /healthz and /readyz. The checker list is fixed at
// construction; the handler is safe for concurrent use.
type Handler struct {
	checkers []Checker
}

// New creates a [Handler]. Checkers run sequentially in the order given.
func New(checkers ...Checker) *Handler {
	c := make([]Checker, len(checkers))
	copy(c, checkers)
	return &Handler{checkers: c}
}

// Healthz evaluates the liveness checkers only.
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, true)
}

// Readyz evaluates every checker.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, false)
}

func (h *Handler) serve(w http.ResponseWriter, r *http.Request, livenessOnly bool) {
	checks := make(map[string]string, len(h.checkers))
	allOK := true

	for _, c := range h.checkers {
		if livenessOnly && !c.Liveness {
			continue
		}
		ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
		err := c.Check(ctx)
		cancel()

		if err != nil {
			checks[c.Name] = "fail: " + err.Error()
			allOK = false
		} else {
			checks[c.Name] = "ok"
		}
	}

	res := result{Status: "ok", Checks: checks}
	status := http.StatusOK
	if !allOK {
		res.Status = "fail"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, res)
}

// Register adds the /healthz and /readyz routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
