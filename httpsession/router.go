package httpsession

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hupe1980/sessionmesh/session"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// maxPayloadBytes bounds PUT bodies.
const maxPayloadBytes = 1 << 20

// RouterOptions configures NewRouter.
type RouterOptions struct {
	// Gatherer, when set, is served on GET /metrics.
	Gatherer prometheus.Gatherer
	// Timeout bounds every request (defaults to 30s).
	Timeout time.Duration
}

// Response is the JSON body of every admin API reply.
type Response struct {
	Status string `json:"status"`
	ID     string `json:"id,omitempty"`
	Data   string `json:"data,omitempty"`
	Error  string `json:"error,omitempty"`
}

// NewRouter creates the admin API over the Backend installed on rt.
//
// Routes:
//   - GET /health - Liveness check
//   - GET /session - The caller's own session, issued via cookie on first use
//   - GET /sessions/{id} - Read a session
//   - PUT /sessions/{id} - Write a session (raw body is the payload)
//   - DELETE /sessions/{id} - Destroy a session
//   - POST /gc?max_lifetime=<seconds> - Collect expired sessions
//   - GET /metrics - Prometheus metrics (when a Gatherer is configured)
func NewRouter(rt *Runtime, optFns ...func(o *RouterOptions)) http.Handler {
	opts := RouterOptions{Timeout: 30 * time.Second}
	for _, fn := range optFns {
		fn(&opts)
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(rt.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(opts.Timeout))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		if rt.Backend() == nil {
			writeJSON(w, http.StatusServiceUnavailable, Response{Status: "unhealthy", Error: ErrNoBackend.Error()})
			return
		}
		writeJSON(w, http.StatusOK, Response{Status: "healthy"})
	})

	r.With(rt.requireBackend, rt.Middleware).Get("/session", func(w http.ResponseWriter, r *http.Request) {
		s, _ := FromContext(r.Context())
		writeJSON(w, http.StatusOK, Response{Status: "ok", ID: s.ID(), Data: s.Data()})
	})

	r.Route("/sessions/{id}", func(r chi.Router) {
		r.Use(rt.requireBackend, validID)
		r.Get("/", rt.getSession)
		r.Put("/", rt.putSession)
		r.Delete("/", rt.deleteSession)
	})

	r.With(rt.requireBackend).Post("/gc", rt.collect)

	if opts.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}

	return r
}

func writeJSON(w http.ResponseWriter, status int, v Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, Response{Status: "error", Error: msg})
}

func (rt *Runtime) requireBackend(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rt.Backend() == nil {
			writeError(w, http.StatusServiceUnavailable, ErrNoBackend.Error())
			return
		}
		next.ServeHTTP(w, r)
	})
}

func validID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !session.ValidID(chi.URLParam(r, "id")) {
			writeError(w, http.StatusBadRequest, session.ErrInvalidID.Error())
			return
		}
		next.ServeHTTP(w, r)
	})
}

// getSession handles GET /sessions/{id}.
func (rt *Runtime) getSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	data := rt.Backend().Read(id)
	if data == "" {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, Response{Status: "ok", ID: id, Data: data})
}

// putSession handles PUT /sessions/{id}.
func (rt *Runtime) putSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPayloadBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "payload too large")
		return
	}
	if !rt.Backend().Write(id, string(body)) {
		writeError(w, http.StatusInternalServerError, "failed to write session")
		return
	}
	writeJSON(w, http.StatusOK, Response{Status: "ok", ID: id})
}

// deleteSession handles DELETE /sessions/{id}.
func (rt *Runtime) deleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !rt.Backend().Destroy(id) {
		writeError(w, http.StatusInternalServerError, "failed to destroy session")
		return
	}
	writeJSON(w, http.StatusOK, Response{Status: "ok", ID: id})
}

// collect handles POST /gc.
func (rt *Runtime) collect(w http.ResponseWriter, r *http.Request) {
	maxLifetime := rt.maxLifetimeSeconds()
	if v := r.URL.Query().Get("max_lifetime"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "max_lifetime must be a non-negative number of seconds")
			return
		}
		maxLifetime = n
	}
	if !rt.Backend().GC(maxLifetime) {
		writeError(w, http.StatusInternalServerError, "session gc failed")
		return
	}
	writeJSON(w, http.StatusOK, Response{Status: "ok"})
}

// requestLogger logs every admin API request.
func (rt *Runtime) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		rt.logger.Info("API request completed",
			"request_id", middleware.GetReqID(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start).String(),
		)
	})
}
