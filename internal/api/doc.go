// Package api hosts the HTTP server for the ingestion service. Routes:
//   - POST /api/highergov runs one ingestion and replies "Saved <n> records".
//     GET with a JSON body is accepted for older schedulers.
//   - GET /healthz and /readyz for probes.
//   - GET /metrics for Prometheus scraping.
package api
