package exporter

import (
	"Go2TraceSpectra/internal/config"
	"Go2TraceSpectra/internal/factory"
	"Go2TraceSpectra/internal/model"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/renameio/v2"
)

// SummaryFile is the file name the json exporter writes inside a run directory.
const SummaryFile = "summary.json"

func init() {
	factory.RegisterExporter("json", func(_ *config.Config, def config.ExporterDef) (model.Exporter, error) {
		if def.JSON.RootPath == "" {
			return nil, errors.New("json.root_path is required")
		}
		return NewJSONExporter(def.JSON.RootPath), nil
	})
}

// GroupSummary holds the per-group figures of a run.
type GroupSummary struct {
	Group    string   `json:"group"`
	Leaves   int      `json:"leaves"`
	MeanRate float64  `json:"mean_rate_gbps"`
	MinRate  *float64 `json:"min_rate_gbps,omitempty"`
}

// SummaryData is the document written to summary.json.
type SummaryData struct {
	RunID          string         `json:"run_id"`
	Source         string         `json:"source"`
	Timestamp      string         `json:"timestamp"`
	Stats          model.RunStats `json:"stats"`
	TotalLeaves    int            `json:"total_leaves"`
	TotalCycles    int            `json:"total_cycles"`
	GlobalMeanRate float64        `json:"global_mean_rate_gbps"`
	GlobalMinRate  *float64       `json:"global_min_rate_gbps,omitempty"`
	GlobalMinKey   string         `json:"global_min_key,omitempty"`
	Groups         []GroupSummary `json:"groups"`
}

// NewSummary condenses a run into its summary document.
func NewSummary(res *model.RunResult) SummaryData {
	s := SummaryData{
		RunID:          res.RunID,
		Source:         res.Source,
		Timestamp:      res.StartedAt.UTC().Format(time.RFC3339),
		Stats:          res.Stats,
		TotalLeaves:    res.Rates.LeafCount,
		TotalCycles:    len(res.Cycles),
		GlobalMeanRate: res.Rates.Mean,
		Groups:         make([]GroupSummary, 0, len(res.Rates.Groups)),
	}
	if res.Rates.Min != nil {
		v := res.Rates.Min.Rate
		s.GlobalMinRate = &v
		s.GlobalMinKey = res.Rates.Min.Key.String()
	}
	for _, g := range res.Rates.Groups {
		gs := GroupSummary{Group: g.Group, Leaves: len(g.Leaves), MeanRate: g.Mean}
		if g.Min != nil {
			v := g.Min.Rate
			gs.MinRate = &v
		}
		s.Groups = append(s.Groups, gs)
	}
	return s
}

// JSONExporter writes a summary.json per run.
type JSONExporter struct {
	rootPath string
}

// NewJSONExporter creates a new summary exporter.
func NewJSONExporter(rootPath string) *JSONExporter {
	return &JSONExporter{rootPath: rootPath}
}

func (w *JSONExporter) Name() string { return "json" }

func (w *JSONExporter) Export(_ context.Context, res *model.RunResult) error {
	dir := runDir(w.rootPath, res)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create summary directory: %w", err)
	}

	data, err := json.MarshalIndent(NewSummary(res), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode summary to json: %w", err)
	}
	data = append(data, '\n')

	path := filepath.Join(dir, SummaryFile)
	if err := renameio.WriteFile(path, data, 0644, renameio.WithTempDir(dir)); err != nil {
		return fmt.Errorf("failed to write summary file: %w", err)
	}
	return nil
}

func (w *JSONExporter) Close() error { return nil }
