// Package api hosts the debug HTTP surface of a running scope. Notable
// routes:
//   - GET /healthz and /readyz for probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/decide to run the decision chain and robots check on a URI.
//   - POST /v1/seeds and /v1/robots to feed seeds and robots.txt bodies.
//   - GET /v1/surts and POST /v1/surts/dump for the SURT prefix sets.
//   - GET /v1/servers/{key} for a cached server record and GET
//     /v1/snapshots for the persisted ones.
package api
