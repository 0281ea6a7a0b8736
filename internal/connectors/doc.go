// Package connectors holds the structured trip data sources that feed the
// aggregator. Each subpackage reads one kind of backing system (YAML
// snapshots on disk, Google Calendar) and implements one or more of the
// source ports in internal/core/ports/driven.
package connectors
