// Package collector builds extract.Collector implementations from
// declarative specs and registers them under their platform identifiers.
// Transport-specific collectors live in the colly, headless and static
// subpackages; page holds the shared listing parser.
package collector
