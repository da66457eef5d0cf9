// Package extract defines the core types shared across the harvester: the
// query, raw and canonical records, session snapshots, and the interfaces the
// orchestration core consumes (collectors, caches, clocks, stores).
package extract
