package httpsession

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hupe1980/sessionmesh"
	"github.com/hupe1980/sessionmesh/core"
	"github.com/hupe1980/sessionmesh/handler"
	"github.com/hupe1980/sessionmesh/internal/testutil"
	"github.com/hupe1980/sessionmesh/logging"
	"github.com/hupe1980/sessionmesh/session"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newRuntime installs a fresh Manager backed by an in-memory store and a
// delegating spy on a Runtime.
func newRuntime(t *testing.T, optFns ...func(o *Options)) (*Runtime, *session.InMemoryStore, *testutil.Recorder) {
	t.Helper()
	store := session.NewInMemoryStore()
	spy := testutil.NewRecorder("spy", nil).Delegating()
	rt := NewRuntime(optFns...)
	m := sessionmesh.Initialize(rt)
	require.NoError(t, m.AddHandler(store, spy))
	return rt, store, spy
}

func TestRuntime_StartAndStop(t *testing.T) {
	rt, _, spy := newRuntime(t, func(o *Options) {
		o.SavePath = "/var/lib/sessions"
		o.Name = "APP"
	})

	require.NoError(t, rt.Start())
	assert.Equal(t, []any{"/var/lib/sessions", "APP"}, spy.LastArgs(core.OpCreate))

	require.NoError(t, rt.Stop())
	assert.Equal(t, 1, spy.Closed())
}

func TestRuntime_WithoutBackend(t *testing.T) {
	rt := NewRuntime()
	assert.ErrorIs(t, rt.Start(), ErrNoBackend)
	assert.ErrorIs(t, rt.Stop(), ErrNoBackend)

	rec := httptest.NewRecorder()
	rt.Middleware(http.NotFoundHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRuntime_StartFailsWhenOpenFails(t *testing.T) {
	rt := NewRuntime()
	m := sessionmesh.New()
	require.NoError(t, m.AddHandler(testutil.NewRecorder("refuse", nil).Returns(false)))
	rt.SetSaveHandler(m)

	assert.ErrorIs(t, rt.Start(), ErrOpen)
}

func TestMiddleware_NewSession(t *testing.T) {
	rt, store, _ := newRuntime(t, func(o *Options) { o.NewID = func() string { return "fresh-id" } })

	h := rt.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, ok := FromContext(r.Context())
		require.True(t, ok)
		assert.True(t, s.IsNew())
		assert.Equal(t, "", s.Data())
		s.Set("counter=1")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "SESSIONMESHID", cookies[0].Name)
	assert.Equal(t, "fresh-id", cookies[0].Value)
	assert.True(t, cookies[0].HttpOnly)
	assert.Equal(t, "counter=1", store.Read("fresh-id", core.ReadNext{}))
}

func TestMiddleware_ExistingSession(t *testing.T) {
	rt, store, spy := newRuntime(t)
	store.Write("known", "counter=1", core.WriteNext{})

	h := rt.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, _ := FromContext(r.Context())
		assert.False(t, s.IsNew())
		assert.Equal(t, "known", s.ID())
		assert.Equal(t, "counter=1", s.Data())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "SESSIONMESHID", Value: "known"})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Empty(t, rec.Result().Cookies())
	// Unmodified sessions are not written back.
	assert.Equal(t, 0, spy.Count(core.OpWrite))
}

func TestMiddleware_MalformedCookieGetsNewID(t *testing.T) {
	rt, _, spy := newRuntime(t, func(o *Options) { o.NewID = func() string { return "fresh-id" } })

	var id string
	h := rt.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, _ := FromContext(r.Context())
		id = s.ID()
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "SESSIONMESHID", Value: "../../etc/passwd"})
	h.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "fresh-id", id)
	assert.Equal(t, 0, spy.Count(core.OpRead))
}

func TestMiddleware_Destroy(t *testing.T) {
	rt, store, _ := newRuntime(t)
	store.Write("known", "data", core.WriteNext{})

	h := rt.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, _ := FromContext(r.Context())
		s.Destroy()
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "SESSIONMESHID", Value: "known"})
	h.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, 0, store.Len())
}

func TestMiddleware_ProbabilisticGC(t *testing.T) {
	draw := 0.5
	rt, _, spy := newRuntime(t, func(o *Options) {
		o.GCProbability = 0.1
		o.Rand = func() float64 { return draw }
	})
	h := rt.Middleware(http.NotFoundHandler())

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, 0, spy.Count(core.OpClean))

	draw = 0.05
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, 1, spy.Count(core.OpClean))
	assert.Equal(t, []any{1440}, spy.LastArgs(core.OpClean))
}

func TestMiddleware_EncryptedAtRest(t *testing.T) {
	key, err := handler.KeyFromSecret("secret", "salt")
	require.NoError(t, err)
	c, err := handler.NewAEADCipher(key)
	require.NoError(t, err)

	store := session.NewInMemoryStore()
	rt := NewRuntime(func(o *Options) { o.NewID = func() string { return "sid1" } })
	m := sessionmesh.Initialize(rt)
	require.NoError(t, m.AddHandler(store, handler.NewEncryptingHandler(c, nil)))

	rt.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, _ := FromContext(r.Context())
		s.Set("secret payload")
	})).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.NotContains(t, store.Read("sid1", core.ReadNext{}), "secret payload")
	assert.Equal(t, "secret payload", m.Read("sid1"))
}

func decode(t *testing.T, body io.Reader) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.NewDecoder(body).Decode(&resp))
	return resp
}

func TestRouter_SessionCRUD(t *testing.T) {
	rt, _, _ := newRuntime(t)
	srv := httptest.NewServer(NewRouter(rt))
	defer srv.Close()

	req, err := http.NewRequest(http.MethodPut, srv.URL+"/sessions/sid1", strings.NewReader("payload"))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	_ = resp.Body.Close()

	resp, err = http.Get(srv.URL + "/sessions/sid1")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode(t, resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, Response{Status: "ok", ID: "sid1", Data: "payload"}, got)

	req, err = http.NewRequest(http.MethodDelete, srv.URL+"/sessions/sid1", nil)
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	_ = resp.Body.Close()

	resp, err = http.Get(srv.URL + "/sessions/sid1")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestRouter_InvalidID(t *testing.T) {
	rt, _, spy := newRuntime(t)
	rec := httptest.NewRecorder()
	NewRouter(rt).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sessions/bad%20id", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 0, spy.Count(core.OpRead))
}

func TestRouter_GC(t *testing.T) {
	rt, _, spy := newRuntime(t)
	router := NewRouter(rt)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/gc?max_lifetime=60", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{60}, spy.LastArgs(core.OpClean))

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/gc", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{1440}, spy.LastArgs(core.OpClean))

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/gc?max_lifetime=soon", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 2, spy.Count(core.OpClean))
}

func TestRouter_HealthAndMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	rt := NewRuntime()
	m := sessionmesh.New()
	require.NoError(t, m.AddHandler(session.NewInMemoryStore(), handler.NewMetricsHandler(reg)))

	router := NewRouter(rt, func(o *RouterOptions) { o.Gatherer = reg })

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rt.SetSaveHandler(m)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decode(t, rec.Body).Status)

	m.Write("sid1", "x")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `sessionmesh_operations_total{operation="write",result="ok"} 1`)
}

func TestRouter_OwnSession(t *testing.T) {
	rt, store, _ := newRuntime(t, func(o *Options) { o.NewID = func() string { return "mine" } })
	store.Write("mine", "cart=2", core.WriteNext{})
	router := NewRouter(rt)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/session", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, rec.Result().Cookies(), 1)
	// A fresh id carries no payload even if the store knows it.
	assert.Equal(t, Response{Status: "ok", ID: "mine"}, decode(t, rec.Body))

	req := httptest.NewRequest(http.MethodGet, "/session", nil)
	req.AddCookie(rec.Result().Cookies()[0])
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, Response{Status: "ok", ID: "mine", Data: "cart=2"}, decode(t, rec.Body))
}

func TestMiddleware_LogsWithSessionID(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewLogger(&logging.LoggerConfig{Level: logging.LogLevelDebug, Format: "json", Output: &buf})
	rt, _, _ := newRuntime(t, func(o *Options) {
		o.NewID = func() string { return "sid-log" }
		o.Logger = logger
	})

	rt.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, _ := FromContext(r.Context())
		s.Set("x=1")
	})).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	var msgs []string
	dec := json.NewDecoder(&buf)
	for dec.More() {
		var rec map[string]any
		require.NoError(t, dec.Decode(&rec))
		assert.Equal(t, "sid-log", rec["session_id"])
		msgs = append(msgs, rec["msg"].(string))
	}
	assert.Equal(t, []string{"session loaded", "session saved"}, msgs)
}

func TestMiddleware_PlainLoggerGetsIDAttribute(t *testing.T) {
	logger := &testutil.CaptureLogger{}
	rt := NewRuntime(func(o *Options) { o.Logger = logger })
	m := sessionmesh.Initialize(rt)
	require.NoError(t, m.AddHandler(testutil.NewRecorder("refuse", nil).Returns(false)))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "SESSIONMESHID", Value: "known"})
	rt.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, _ := FromContext(r.Context())
		s.Set("x=1")
	})).ServeHTTP(httptest.NewRecorder(), req)

	failed := logger.Find("failed to write session")
	require.Len(t, failed, 1)
	assert.Equal(t, "known", failed[0].Attr("id"))
}

func TestMiddleware_SubSecondLifetimeNeverPurgesEverything(t *testing.T) {
	rt, _, spy := newRuntime(t, func(o *Options) {
		o.MaxLifetime = 1440 * time.Nanosecond
		o.GCProbability = 1
		o.Rand = func() float64 { return 0 }
	})

	rt.Middleware(http.NotFoundHandler()).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, []any{1}, spy.LastArgs(core.OpClean))
}
