package httpsession

import (
	"context"
	"net/http"
	"sync"

	"github.com/hupe1980/sessionmesh/session"
)

// Session is the request-scoped view of one stored session.
type Session struct {
	mu        sync.Mutex
	id        string
	data      string
	isNew     bool
	dirty     bool
	destroyed bool
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// IsNew reports whether the id was issued by this request.
func (s *Session) IsNew() bool { return s.isNew }

// Data returns the serialized session payload.
func (s *Session) Data() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data
}

// Set replaces the payload; it is written back after the handler returns.
func (s *Session) Set(data string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = data
	s.dirty = true
	s.destroyed = false
}

// Destroy removes the session from the store after the handler returns.
func (s *Session) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = ""
	s.dirty = false
	s.destroyed = true
}

type contextKey struct{}

// FromContext returns the Session attached by Middleware.
func FromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(contextKey{}).(*Session)
	return s, ok
}

// Middleware loads the session named by the request cookie (issuing a new
// id when the cookie is missing or malformed), runs GC with the
// configured probability, and after next returns writes a modified session
// back or destroys it.
func (rt *Runtime) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b := rt.Backend()
		if b == nil {
			http.Error(w, ErrNoBackend.Error(), http.StatusServiceUnavailable)
			return
		}

		s := &Session{}
		if c, err := r.Cookie(rt.opts.CookieName); err == nil && session.ValidID(c.Value) {
			s.id = c.Value
			s.data = b.Read(s.id)
		} else {
			s.id = rt.opts.NewID()
			s.isNew = true
			http.SetCookie(w, &http.Cookie{
				Name:     rt.opts.CookieName,
				Value:    s.id,
				Path:     "/",
				HttpOnly: true,
				SameSite: http.SameSiteLaxMode,
			})
		}

		log := rt.sessionLogger(s.id)
		log.Debug("session loaded", "new", s.isNew, "bytes", len(s.data))

		rt.maybeGC(b)

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), contextKey{}, s)))

		s.mu.Lock()
		defer s.mu.Unlock()
		switch {
		case s.destroyed:
			if !b.Destroy(s.id) {
				log.Error("failed to destroy session")
				return
			}
			log.Debug("session destroyed")
		case s.dirty:
			if !b.Write(s.id, s.data) {
				log.Error("failed to write session")
				return
			}
			log.Debug("session saved", "bytes", len(s.data))
		}
	})
}
