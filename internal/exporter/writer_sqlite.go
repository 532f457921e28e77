package exporter

import (
	"Go2TraceSpectra/internal/config"
	"Go2TraceSpectra/internal/factory"
	"Go2TraceSpectra/internal/model"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS leaf_rates (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT,
    started_at INTEGER,
    group_id TEXT,
    func TEXT,
    func_times TEXT,
    channel TEXT,
    src_rank TEXT,
    dst_rank TEXT,
    src_ip TEXT,
    dst_ip TEXT,
    samples INTEGER,
    total_bytes INTEGER,
    total_time INTEGER,
    rate REAL
);
CREATE TABLE IF NOT EXISTS flow_cycles (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT,
    started_at INTEGER,
    group_id TEXT,
    func TEXT,
    func_times TEXT,
    channel TEXT,
    ranks TEXT
);
`

func init() {
	factory.RegisterExporter("sqlite", func(_ *config.Config, def config.ExporterDef) (model.Exporter, error) {
		if def.SQLite.Path == "" {
			return nil, errors.New("sqlite.path is required")
		}
		return NewSQLiteExporter(def.SQLite.Path)
	})
}

// SQLiteExporter stores leaf rates and cycles in a local SQLite file.
type SQLiteExporter struct {
	db *sql.DB
}

// NewSQLiteExporter opens (or creates) the database at path and applies the schema.
func NewSQLiteExporter(path string) (*SQLiteExporter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}
	return &SQLiteExporter{db: db}, nil
}

func (w *SQLiteExporter) Name() string { return "sqlite" }

// Export writes the run in a single transaction.
func (w *SQLiteExporter) Export(ctx context.Context, res *model.RunResult) error {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	if err := insertLeafRates(ctx, tx, res); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := insertCycles(ctx, tx, res); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func insertLeafRates(ctx context.Context, tx *sql.Tx, res *model.RunResult) error {
	stmt, err := tx.PrepareContext(ctx, `
        INSERT INTO leaf_rates (
            run_id, started_at,
            group_id, func, func_times, channel,
            src_rank, dst_rank, src_ip, dst_ip,
            samples, total_bytes, total_time, rate
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    `)
	if err != nil {
		return err
	}
	defer stmt.Close()

	started := res.StartedAt.Unix()
	for _, g := range res.Rates.Groups {
		for _, lr := range g.Leaves {
			k := lr.Key
			_, err = stmt.ExecContext(ctx,
				res.RunID, started,
				k.Group, k.Func, k.FuncTimes, k.Channel,
				k.Flow.Src, k.Flow.Dst, k.IPFlow.Src, k.IPFlow.Dst,
				lr.Samples, clampInt64(lr.TotalBytes), clampInt64(lr.TotalTime), lr.Rate,
			)
			if err != nil {
				return fmt.Errorf("insert leaf rate %s: %w", k, err)
			}
		}
	}
	return nil
}

func insertCycles(ctx context.Context, tx *sql.Tx, res *model.RunResult) error {
	stmt, err := tx.PrepareContext(ctx, `
        INSERT INTO flow_cycles (
            run_id, started_at,
            group_id, func, func_times, channel,
            ranks
        ) VALUES (?, ?, ?, ?, ?, ?, ?)
    `)
	if err != nil {
		return err
	}
	defer stmt.Close()

	started := res.StartedAt.Unix()
	for _, c := range res.Cycles {
		_, err = stmt.ExecContext(ctx,
			res.RunID, started,
			c.Bucket.Group, c.Bucket.Func, c.Bucket.FuncTimes, c.Bucket.Channel,
			joinRanks(c.Ranks),
		)
		if err != nil {
			return fmt.Errorf("insert cycle: %w", err)
		}
	}
	return nil
}

// clampInt64 keeps saturated totals positive in SQLite's signed INTEGER.
func clampInt64(v uint64) int64 {
	if v > math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(v)
}

func (w *SQLiteExporter) Close() error {
	return w.db.Close()
}
