package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterSwagger registers minimal Swagger/OpenAPI endpoints for the console.
// - GET /swagger/index.html  -> a small HTML page that loads the OpenAPI JSON
// - GET /swagger/doc.json    -> machine-readable OpenAPI JSON
func RegisterSwagger(rg gin.IRouter) {
	rg.GET("/swagger/index.html", func(c *gin.Context) {
		c.Header("Content-Type", "text/html; charset=utf-8")
		c.String(http.StatusOK, swaggerHTML)
	})

	rg.GET("/swagger/doc.json", func(c *gin.Context) {
		c.Data(http.StatusOK, "application/json", []byte(swaggerJSON))
	})
}

const swaggerHTML = `<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <title>oktotrack console API</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@4/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@4/swagger-ui-bundle.js"></script>
    <script>
      window.ui = SwaggerUIBundle({
        url: '/swagger/doc.json',
        dom_id: '#swagger-ui',
      })
    </script>
  </body>
</html>`

// Minimal OpenAPI document describing the console's passthrough routes.
const swaggerJSON = `{
  "openapi": "3.0.0",
  "info": { "title": "oktotrack-console", "version": "v0.1.0" },
  "components": { "securitySchemes": { "bearer": { "type": "http", "scheme": "bearer" } } },
  "paths": {
    "/auth/get-token": {
      "post": { "summary": "Exchange credentials for a token", "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"email":{"type":"string"},"password":{"type":"string"}}}}}}, "responses": { "200": { "description": "auth_token returned" }, "401": { "description": "error returned" } } }
    },
    "/api/v1/auth/refresh": {
      "post": { "summary": "Renew the access token", "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"refresh_token":{"type":"string"}}}}}}, "responses": { "200": { "description": "new auth_token" }, "401": { "description": "invalid refresh" } } }
    },
    "/api/v1/check-jwt-token": {
      "post": { "summary": "Check a token against a company", "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"jwt":{"type":"string"},"company_id":{"type":"string"}}}}}}, "responses": { "200": { "description": "valid" } } }
    },
    "/api/v1/companies/{id}": {
      "get": { "summary": "Get a company", "security": [{"bearer": []}], "responses": { "200": { "description": "company" }, "500": { "description": "backend unreachable" } } },
      "put": { "summary": "Update a company", "security": [{"bearer": []}], "responses": { "200": { "description": "company" }, "500": { "description": "backend unreachable" } } }
    },
    "/api/vetis/batches": {
      "post": { "summary": "Create a batch", "security": [{"bearer": []}], "responses": { "200": { "description": "batch" }, "500": { "description": "backend unreachable" } } }
    },
    "/api/vetis/batches/{id}/send": {
      "post": { "summary": "Send a batch to VetIS", "security": [{"bearer": []}], "responses": { "200": { "description": "sent" }, "500": { "description": "backend unreachable" } } }
    },
    "/health": { "get": { "summary": "Liveness check", "responses": { "200": { "description": "healthy" } } } },
    "/ready": { "get": { "summary": "Readiness check", "responses": { "200": { "description": "ready" }, "503": { "description": "not ready" } } } },
    "/metrics": { "get": { "summary": "Prometheus metrics", "responses": { "200": { "description": "metrics" } } } }
  }
}`
