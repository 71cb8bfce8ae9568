// Package httpapi serves a read-only JSON view of a dispatcher.
package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/blockberries/facetroute"
	"github.com/blockberries/facetroute/dispatcher"
	"github.com/blockberries/facetroute/types"
)

// Server exposes a facetroute.Reader over HTTP.
type Server struct {
	reader  facetroute.Reader
	metrics http.Handler
	log     zerolog.Logger
}

// New returns a server reading from r. A nil metrics handler leaves
// /metrics unrouted.
func New(r facetroute.Reader, metrics http.Handler, log zerolog.Logger) *Server {
	return &Server{reader: r, metrics: metrics, log: log}
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(s.logRequests)
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/v1/state", s.handleState).Methods(http.MethodGet)
	r.HandleFunc("/v1/routes", s.handleRoutes).Methods(http.MethodGet)
	r.HandleFunc("/v1/routes/{callId}", s.handleRoute).Methods(http.MethodGet)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics).Methods(http.MethodGet)
	}
	return r
}

// =============================================================================
// Views
// =============================================================================

type healthView struct {
	Status string `json:"status"`
	Phase  string `json:"phase"`
}

type stateView struct {
	ActiveRoot    string     `json:"activeRoot,omitempty"`
	ActiveEpoch   uint64     `json:"activeEpoch"`
	PendingRoot   string     `json:"pendingRoot,omitempty"`
	PendingEpoch  uint64     `json:"pendingEpoch,omitempty"`
	ActivatableAt *time.Time `json:"activatableAt,omitempty"`
	MinDelay      string     `json:"minDelay"`
	Hasher        string     `json:"hasher,omitempty"`
	Frozen        bool       `json:"frozen"`
	Phase         string     `json:"phase"`
	LiveRoutes    int        `json:"liveRoutes"`
}

type routeView struct {
	CallID   string `json:"callId"`
	Module   string `json:"module"`
	Codehash string `json:"codehash"`
	Epoch    uint64 `json:"epoch"`
}

type errorView struct {
	Error string `json:"error"`
}

func newStateView(st types.State) stateView {
	v := stateView{
		ActiveEpoch: st.ActiveEpoch,
		MinDelay:    st.MinDelay.ToGo().String(),
		Hasher:      st.Hasher,
		Frozen:      st.Frozen,
		Phase:       dispatcher.PhaseOf(st).String(),
		LiveRoutes:  len(st.Routes),
	}
	if !st.ActiveRoot.IsZero() {
		v.ActiveRoot = st.ActiveRoot.Hex()
	}
	if st.HasPending() {
		v.PendingRoot = st.PendingRoot.Hex()
		v.PendingEpoch = st.PendingEpoch
		at := st.ActivatableAt().UTC()
		v.ActivatableAt = &at
	}
	return v
}

func newRouteView(id types.CallID, t types.Target, epoch uint64) routeView {
	return routeView{
		CallID:   id.Hex(),
		Module:   t.Module.Hex(),
		Codehash: t.Codehash.Hex(),
		Epoch:    epoch,
	}
}

// =============================================================================
// Handlers
// =============================================================================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	st, err := s.reader.State(r.Context())
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, errorView{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, healthView{Status: "ok", Phase: dispatcher.PhaseOf(st).String()})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	st, err := s.reader.State(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorView{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, newStateView(st))
}

func (s *Server) handleRoutes(w http.ResponseWriter, r *http.Request) {
	st, err := s.reader.State(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorView{Error: err.Error()})
		return
	}
	out := make([]routeView, 0, len(st.Routes))
	for _, lr := range st.Routes {
		out = append(out, newRouteView(lr.CallID, lr.Target, lr.Epoch))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleRoute(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseCallID(mux.Vars(r)["callId"])
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorView{Error: err.Error()})
		return
	}
	res, err := s.reader.Resolve(r.Context(), id)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorView{Error: err.Error()})
		return
	}
	if !res.Found {
		writeJSON(w, http.StatusNotFound, errorView{Error: "no route for " + id.Hex()})
		return
	}
	writeJSON(w, http.StatusOK, newRouteView(id, res.Target, res.Epoch))
}

// =============================================================================
// Helpers
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		path := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tmpl, err := route.GetPathTemplate(); err == nil {
				path = tmpl
			}
		}
		s.log.Debug().
			Str("method", r.Method).
			Str("path", path).
			Int("status", sw.status).
			Dur("elapsed", time.Since(start)).
			Msg("http")
	})
}
