// Package api hosts the read-only catalog server over harvested papers.
// Notable routes:
//   - GET /healthz for liveness probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/years and /v1/papers?year=&title= for browsing the CSV catalog.
//   - GET /v1/papers/{year}/pdf?title= for downloading a stored PDF.
package api
