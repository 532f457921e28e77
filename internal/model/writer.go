package model

import "context"

// Exporter defines a generic interface for shipping the result of a run to an
// external store or file.
type Exporter interface {
	// Name identifies the exporter in logs.
	Name() string

	// Export persists the run. The tree in result is read-only.
	Export(ctx context.Context, result *RunResult) error

	// Close releases any connection held by the exporter.
	Close() error
}
