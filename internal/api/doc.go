// Package api hosts the HTTP server, middleware, and REST handlers for
// operator access. Notable routes:
//   - GET /healthz and /readyz for probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/jobs for job submission.
//   - GET /v1/jobs/{job_id} and /v1/jobs/{job_id}/progress for status.
//   - POST /v1/jobs/{job_id}/cancel for cooperative cancellation.
package api
