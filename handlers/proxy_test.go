package handlers

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/oktotrack/console/internal/config"
	"github.com/oktotrack/console/pkg/metrics"
	"github.com/oktotrack/console/pkg/middleware"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

type upstreamCall struct {
	method, path, query, auth, contentType, requestID, body string
}

// upstream records the last call and answers with status/body.
func upstream(t *testing.T, status int, contentType, body string) (*httptest.Server, *upstreamCall) {
	t.Helper()
	got := &upstreamCall{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		*got = upstreamCall{
			method:      r.Method,
			path:        r.URL.Path,
			query:       r.URL.RawQuery,
			auth:        r.Header.Get("Authorization"),
			contentType: r.Header.Get("Content-Type"),
			requestID:   r.Header.Get("X-Request-ID"),
			body:        string(b),
		}
		if contentType != "" {
			w.Header().Set("Content-Type", contentType)
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, got
}

func newRouter(backend config.BackendConfig, verify gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	paths := config.AuthPathsConfig{Login: "/auth/get-token", Refresh: "/auth/refresh", Check: "/auth/check-jwt-token"}
	RegisterProxyRoutes(r, NewProxy(nil), backend, paths, RouteOptions{Verify: verify})
	return r
}

func TestProxy_ForwardsVerbatim(t *testing.T) {
	srv, got := upstream(t, http.StatusOK, "application/json", `{"id":"c-1","name":"Acme"}`)
	r := newRouter(config.BackendConfig{CompaniesURL: srv.URL}, nil)

	req := httptest.NewRequest(http.MethodPut, "/api/v1/companies/c-1?dry_run=true", strings.NewReader(`{"name":"Acme"}`))
	req.Header.Set("Authorization", "Bearer abc.def.ghi")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", "rid-1")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, `{"id":"c-1","name":"Acme"}`, w.Body.String())
	require.Equal(t, "application/json", w.Header().Get("Content-Type"))

	require.Equal(t, http.MethodPut, got.method)
	require.Equal(t, "/api/v1/companies/c-1", got.path)
	require.Equal(t, "dry_run=true", got.query)
	require.Equal(t, "Bearer abc.def.ghi", got.auth)
	require.Equal(t, "rid-1", got.requestID)
	require.Equal(t, `{"name":"Acme"}`, got.body)
}

func TestProxy_RelaysErrorStatusAndBody(t *testing.T) {
	srv, _ := upstream(t, http.StatusNotFound, "text/plain", "batch not found")
	r := newRouter(config.BackendConfig{VetisURL: srv.URL}, nil)
	before := testutil.ToFloat64(metrics.ProxyRequests.WithLabelValues("vetis_batch_send", "404"))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/vetis/batches/b-7/send", nil))

	require.Equal(t, http.StatusNotFound, w.Code)
	require.Equal(t, "batch not found", w.Body.String())
	require.Equal(t, "text/plain", w.Header().Get("Content-Type"))
	require.Equal(t, before+1, testutil.ToFloat64(metrics.ProxyRequests.WithLabelValues("vetis_batch_send", "404")))
}

func TestProxy_BatchesMapToBackendPath(t *testing.T) {
	srv, got := upstream(t, http.StatusCreated, "application/json", `{"id":"b-1"}`)
	r := newRouter(config.BackendConfig{VetisURL: srv.URL}, nil)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/vetis/batches", strings.NewReader(`{"product_id":"p-1"}`)))

	require.Equal(t, http.StatusCreated, w.Code)
	require.Equal(t, "/api/v1/batches", got.path)
	require.Equal(t, "application/json", got.contentType, "defaults to JSON when the caller sent none")
	require.Equal(t, `{"product_id":"p-1"}`, got.body)
}

func TestProxy_AuthPassthroughs(t *testing.T) {
	srv, got := upstream(t, http.StatusUnauthorized, "application/json", `{"error":"bad credentials"}`)
	r := newRouter(config.BackendConfig{AuthURL: srv.URL}, func(c *gin.Context) {
		c.AbortWithStatus(http.StatusTeapot)
	})

	cases := map[string]string{
		"/auth/get-token":         "/auth/get-token",
		"/api/v1/auth/refresh":    "/auth/refresh",
		"/api/v1/check-jwt-token": "/auth/check-jwt-token",
	}
	for route, backendPath := range cases {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, route, strings.NewReader(`{}`)))
		require.Equal(t, http.StatusUnauthorized, w.Code, route)
		require.Equal(t, `{"error":"bad credentials"}`, w.Body.String())
		require.Equal(t, backendPath, got.path)
	}
}

func TestProxy_GuardRunsFirst(t *testing.T) {
	srv, got := upstream(t, http.StatusOK, "", "")
	r := newRouter(config.BackendConfig{CompaniesURL: srv.URL}, func(c *gin.Context) {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing Authorization header"})
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/companies/c-1", nil))
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Empty(t, got.method, "backend must not be called")
}

func TestProxy_RateLimitSeesVerifiedClaims(t *testing.T) {
	srv, _ := upstream(t, http.StatusOK, "application/json", `{}`)
	gin.SetMode(gin.TestMode)
	r := gin.New()
	var seen []string
	RegisterProxyRoutes(r, NewProxy(nil), config.BackendConfig{CompaniesURL: srv.URL, AuthURL: srv.URL}, config.AuthPathsConfig{Login: "/login"}, RouteOptions{
		Verify: func(c *gin.Context) {
			c.Set(middleware.ClaimsKey, map[string]interface{}{"company_id": "c-1"})
			c.Next()
		},
		RateLimit: func(c *gin.Context) {
			_, ok := c.Get(middleware.ClaimsKey)
			seen = append(seen, c.FullPath()+":"+strconv.FormatBool(ok))
			c.Next()
		},
	})

	for _, target := range []string{"/api/v1/companies/c-1", "/auth/get-token"} {
		method := http.MethodGet
		if strings.HasPrefix(target, "/auth") {
			method = http.MethodPost
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(method, target, nil))
		require.Equal(t, http.StatusOK, w.Code)
	}
	require.Equal(t, []string{"/api/v1/companies/:id:true", "/auth/get-token:false"}, seen)
}

func TestProxy_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()
	r := newRouter(config.BackendConfig{CompaniesURL: base}, nil)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/companies/c-1", nil))
	require.Equal(t, http.StatusInternalServerError, w.Code)
	require.JSONEq(t, `{"error":"Failed to connect to backend"}`, w.Body.String())
}
