// Package exporter ships the result of a run to files, databases and message
// buses. Every exporter registers itself with the factory under the type name
// used in the config file.
package exporter

import (
	"Go2TraceSpectra/internal/model"
	"path/filepath"
	"strconv"
	"strings"
)

// timestampLayout names the per-run directories of file based exporters.
const timestampLayout = "2006-01-02_15-04-05"

// runDir returns <root>/<timestamp>/<run id>.
func runDir(root string, res *model.RunResult) string {
	return filepath.Join(root, res.StartedAt.UTC().Format(timestampLayout), res.RunID)
}

func joinRanks(ranks []int) string {
	parts := make([]string, len(ranks))
	for i, r := range ranks {
		parts[i] = strconv.Itoa(r)
	}
	return strings.Join(parts, ",")
}
