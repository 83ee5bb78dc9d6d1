// Package api hosts the HTTP server, middleware, and REST handlers. Routes:
//   - POST /v1/preview lists the pages a crawl would produce.
//   - POST /v1/generate?format=combined|zip crawls and returns a bundle.
//   - POST /v1/download returns a bundle for pages picked from a preview.
//   - POST /v1/bulk returns a bundle for an ad hoc URL list.
//   - GET /v1/diagnostics reports the most recent run.
//   - GET /healthz, /readyz, /version and /metrics for operators.
package api
