package handlers

import (
	"bytes"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/oktotrack/console/internal/config"
	"github.com/oktotrack/console/pkg/logger"
	"github.com/oktotrack/console/pkg/metrics"
	"github.com/oktotrack/console/pkg/middleware"
)

// forwardedHeaders are copied verbatim from the browser request.
var forwardedHeaders = []string{"Authorization", "Content-Type", "Accept", middleware.RequestIDHeader}

// Proxy relays console API calls to the backend services.
type Proxy struct {
	client *http.Client
}

// NewProxy returns a Proxy using client; nil means a plain http.Client.
func NewProxy(client *http.Client) *Proxy {
	if client == nil {
		client = &http.Client{}
	}
	return &Proxy{client: client}
}

// Forward relays the request to base+target(c) and copies the backend's
// status, content type and body back unchanged. Only a transport failure is
// replaced, by a 500.
func (p *Proxy) Forward(route, base string, target func(c *gin.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
			return
		}
		dest := base + target(c)
		if q := c.Request.URL.RawQuery; q != "" {
			dest += "?" + q
		}
		req, err := http.NewRequestWithContext(c.Request.Context(), c.Request.Method, dest, bytes.NewReader(body))
		if err != nil {
			logger.Errorf("proxy %s: build request: %v", route, err)
			p.fail(c, route)
			return
		}
		for _, h := range forwardedHeaders {
			if v := c.GetHeader(h); v != "" {
				req.Header.Set(h, v)
			}
		}
		if req.Header.Get("Content-Type") == "" {
			req.Header.Set("Content-Type", "application/json")
		}

		start := time.Now()
		resp, err := p.client.Do(req)
		metrics.ProxyUpstreamDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
		if err != nil {
			logger.Errorf("proxy %s %s: %v", c.Request.Method, route, err)
			p.fail(c, route)
			return
		}
		defer resp.Body.Close()
		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			logger.Errorf("proxy %s %s: read response: %v", c.Request.Method, route, err)
			p.fail(c, route)
			return
		}
		metrics.ProxyRequests.WithLabelValues(route, strconv.Itoa(resp.StatusCode)).Inc()
		ct := resp.Header.Get("Content-Type")
		if ct == "" {
			ct = "application/octet-stream"
		}
		c.Data(resp.StatusCode, ct, respBody)
	}
}

func (p *Proxy) fail(c *gin.Context, route string) {
	metrics.ProxyRequests.WithLabelValues(route, "transport_error").Inc()
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to connect to backend"})
}

// RouteOptions holds the optional middleware of the proxy routes.
type RouteOptions struct {
	// Verify runs first on the company and batch routes.
	Verify gin.HandlerFunc
	// RateLimit runs on every proxy route, after Verify so verified claims
	// can pick the bucket.
	RateLimit gin.HandlerFunc
}

func (o RouteOptions) chain(protected bool, h gin.HandlerFunc) []gin.HandlerFunc {
	var out []gin.HandlerFunc
	if protected && o.Verify != nil {
		out = append(out, o.Verify)
	}
	if o.RateLimit != nil {
		out = append(out, o.RateLimit)
	}
	return append(out, h)
}

// Console routes of the auth passthroughs.
const (
	LoginRoute   = "/auth/get-token"
	RefreshRoute = "/api/v1/auth/refresh"
	CheckRoute   = "/api/v1/check-jwt-token"
)

// RegisterProxyRoutes mounts the backend passthrough routes.
func RegisterProxyRoutes(r gin.IRouter, p *Proxy, backend config.BackendConfig, paths config.AuthPathsConfig, opts RouteOptions) {
	fixed := func(path string) func(*gin.Context) string {
		return func(*gin.Context) string { return path }
	}

	company := p.Forward("companies", backend.CompaniesURL, func(c *gin.Context) string {
		return "/api/v1/companies/" + url.PathEscape(c.Param("id"))
	})
	r.GET("/api/v1/companies/:id", opts.chain(true, company)...)
	r.PUT("/api/v1/companies/:id", opts.chain(true, company)...)

	r.POST("/api/vetis/batches", opts.chain(true, p.Forward("vetis_batches", backend.VetisURL, fixed("/api/v1/batches")))...)
	r.POST("/api/vetis/batches/:id/send", opts.chain(true, p.Forward("vetis_batch_send", backend.VetisURL, func(c *gin.Context) string {
		return "/api/v1/batches/" + url.PathEscape(c.Param("id")) + "/send"
	}))...)

	// auth passthroughs are reachable without a token
	r.POST(LoginRoute, opts.chain(false, p.Forward("auth_login", backend.AuthURL, fixed(paths.Login)))...)
	r.POST(RefreshRoute, opts.chain(false, p.Forward("auth_refresh", backend.AuthURL, fixed(paths.Refresh)))...)
	r.POST(CheckRoute, opts.chain(false, p.Forward("auth_check", backend.AuthURL, fixed(paths.Check)))...)
}
