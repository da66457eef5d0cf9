// Package sinks implements concrete progress consumers: structured logging,
// Prometheus, repository persistence, Pub/Sub notification and blob
// archiving. Each sink satisfies the progress.Sink interface and is safe for
// repeated Consume/Close cycles.
package sinks
