// Package api hosts the HTTP server and REST handlers. Notable routes:
//   - GET /healthz and /readyz for probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/sessions and GET /v1/sessions/{id} for research sessions.
//   - POST /v1/sessions/{id}/research and GET /v1/jobs/{id} for background jobs.
//   - POST /v1/search and POST /v1/ingest for direct, fail-fast access to the
//     search client and ingest pipeline.
//   - GET /media/* serves locally stored infographics when configured.
package api
