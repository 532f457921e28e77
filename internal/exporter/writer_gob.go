package exporter

import (
	"Go2TraceSpectra/internal/config"
	"Go2TraceSpectra/internal/factory"
	"Go2TraceSpectra/internal/model"
	"bufio"
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"
)

// SnapshotFile is the file name the gob exporter writes inside a run directory.
const SnapshotFile = "snapshot.gob"

func init() {
	factory.RegisterExporter("gob", func(_ *config.Config, def config.ExporterDef) (model.Exporter, error) {
		if def.Gob.RootPath == "" {
			return nil, errors.New("gob.root_path is required")
		}
		return NewGobExporter(def.Gob.RootPath), nil
	})
}

// GobExporter writes the aggregation tree to disk so reports can be rebuilt later.
type GobExporter struct {
	rootPath string
}

// NewGobExporter creates a new gob snapshot exporter.
func NewGobExporter(rootPath string) *GobExporter {
	return &GobExporter{rootPath: rootPath}
}

func (w *GobExporter) Name() string { return "gob" }

// Export writes <root>/<timestamp>/<run id>/snapshot.gob.
func (w *GobExporter) Export(_ context.Context, res *model.RunResult) error {
	if res.Tree == nil {
		return errors.New("gob exporter: run has no aggregation tree")
	}
	snap := res.Tree.Snapshot()
	snap.RunID = res.RunID
	snap.Source = res.Source
	return SaveSnapshot(filepath.Join(runDir(w.rootPath, res), SnapshotFile), snap)
}

func (w *GobExporter) Close() error { return nil }

// SaveSnapshot gob-encodes s to path, replacing any previous file atomically.
func SaveSnapshot(path string, s model.Snapshot) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	pf, err := renameio.NewPendingFile(path, renameio.WithTempDir(dir), renameio.WithPermissions(0644))
	if err != nil {
		return fmt.Errorf("failed to create snapshot file '%s': %w", path, err)
	}
	defer pf.Cleanup()

	bw := bufio.NewWriter(pf)
	if err := gob.NewEncoder(bw).Encode(s); err != nil {
		return fmt.Errorf("failed to encode snapshot to gob for file '%s': %w", path, err)
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("failed to write snapshot file '%s': %w", path, err)
	}
	return pf.CloseAtomicallyReplace()
}

// LoadSnapshot decodes a snapshot written by SaveSnapshot.
func LoadSnapshot(path string) (model.Snapshot, error) {
	var s model.Snapshot
	file, err := os.Open(path)
	if err != nil {
		return s, fmt.Errorf("failed to open snapshot file: %w", err)
	}
	defer file.Close()

	if err := gob.NewDecoder(bufio.NewReader(file)).Decode(&s); err != nil {
		return s, fmt.Errorf("failed to decode snapshot '%s': %w", path, err)
	}
	return s, nil
}
