// Package main is the crawlscope executable.
//
// Architecture overview:
//   - Scope: internal/scope wires the decision rule sequence (internal/decide), the server and host cache
//     (internal/server) and robots policies (internal/robots) behind one type a frontier calls into.
//   - Configuration: Viper reads a config file plus CRAWLSCOPE_* environment overrides into internal/config, which
//     validates rule specs and per-SURT overrides before anything is built.
//   - Persistence: server records can be checkpointed to Postgres (internal/storage/postgres); SURT prefix dumps go
//     to the configured blob backend (memory/local/GCS).
//   - Observability: zap logs carry a run id and the command; Prometheus counters track decisions, robots outcomes
//     and HTTP traffic, exported at /metrics by the serve command.
//
// Quick checklist:
//   - go run ./cmd/crawlscope --config crawlscope.yaml decide http://example.com/
//   - go run ./cmd/crawlscope --config crawlscope.yaml surts
//   - go run ./cmd/crawlscope --config crawlscope.yaml serve (SIGTERM drains and checkpoints)
package main

import "github.com/JakeFAU/crawlscope/cmd"

func main() {
	cmd.Execute()
}
