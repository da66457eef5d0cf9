// Package progress carries session lifecycle events from the coordinator to
// pluggable sinks. The Hub batches events on a background goroutine so the
// coordinator never blocks on persistence, metrics or the live feed.
package progress
