// Package metrics defines Prometheus metrics for ractl, covering API
// requests, login attempts and token cache lookups. The CLI can dump them in
// the textfile exposition format for a node exporter to pick up.
package metrics
