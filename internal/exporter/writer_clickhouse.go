package exporter

import (
	"Go2TraceSpectra/internal/config"
	"Go2TraceSpectra/internal/factory"
	"Go2TraceSpectra/internal/model"
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

const createLeafRatesStatement = `
CREATE TABLE IF NOT EXISTS leaf_rates (
    Timestamp  DateTime,
    RunID      String,
    GroupID    String,
    Func       String,
    FuncTimes  String,
    Channel    String,
    SrcRank    String,
    DstRank    String,
    SrcIP      String,
    DstIP      String,
    Samples    UInt32,
    TotalBytes UInt64,
    TotalTime  UInt64,
    Rate       Float64
) ENGINE = MergeTree()
PARTITION BY toYYYYMM(Timestamp)
ORDER BY (RunID, GroupID, Timestamp);
`

const createFlowCyclesStatement = `
CREATE TABLE IF NOT EXISTS flow_cycles (
    Timestamp DateTime,
    RunID     String,
    GroupID   String,
    Func      String,
    FuncTimes String,
    Channel   String,
    Ranks     Array(Int32)
) ENGINE = MergeTree()
PARTITION BY toYYYYMM(Timestamp)
ORDER BY (RunID, GroupID, Timestamp);
`

func init() {
	factory.RegisterExporter("clickhouse", func(_ *config.Config, def config.ExporterDef) (model.Exporter, error) {
		return NewClickHouseExporter(def.ClickHouse)
	})
}

// ClickHouseExporter batch-inserts leaf rates and cycles into ClickHouse.
type ClickHouseExporter struct {
	conn driver.Conn
}

// NewClickHouseExporter connects to ClickHouse and ensures both tables exist.
func NewClickHouseExporter(cfg config.ClickHouseConfig) (*ClickHouseExporter, error) {
	conn, err := connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to clickhouse: %w", err)
	}

	for _, stmt := range []string{createLeafRatesStatement, createFlowCyclesStatement} {
		if err := conn.Exec(context.Background(), stmt); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to create table: %w", err)
		}
	}

	return &ClickHouseExporter{conn: conn}, nil
}

func connect(cfg config.ClickHouseConfig) (driver.Conn, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, err
	}

	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping clickhouse: %w", err)
	}

	return conn, nil
}

func (w *ClickHouseExporter) Name() string { return "clickhouse" }

// Export inserts one row per leaf into leaf_rates and one row per cycle into flow_cycles.
func (w *ClickHouseExporter) Export(ctx context.Context, res *model.RunResult) error {
	if err := w.writeLeafRates(ctx, res); err != nil {
		return err
	}
	return w.writeCycles(ctx, res)
}

func (w *ClickHouseExporter) writeLeafRates(ctx context.Context, res *model.RunResult) error {
	if res.Rates.LeafCount == 0 {
		return nil
	}

	batch, err := w.conn.PrepareBatch(ctx, "INSERT INTO leaf_rates")
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}

	for _, g := range res.Rates.Groups {
		for _, lr := range g.Leaves {
			k := lr.Key
			err = batch.Append(
				res.StartedAt,
				res.RunID,
				k.Group,
				k.Func,
				k.FuncTimes,
				k.Channel,
				k.Flow.Src,
				k.Flow.Dst,
				k.IPFlow.Src,
				k.IPFlow.Dst,
				uint32(lr.Samples),
				lr.TotalBytes,
				lr.TotalTime,
				lr.Rate,
			)
			if err != nil {
				return fmt.Errorf("failed to append leaf rate to batch: %w", err)
			}
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}
	return nil
}

func (w *ClickHouseExporter) writeCycles(ctx context.Context, res *model.RunResult) error {
	if len(res.Cycles) == 0 {
		return nil
	}

	batch, err := w.conn.PrepareBatch(ctx, "INSERT INTO flow_cycles")
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}

	for _, c := range res.Cycles {
		ranks := make([]int32, len(c.Ranks))
		for i, r := range c.Ranks {
			ranks[i] = int32(r)
		}
		err = batch.Append(
			res.StartedAt,
			res.RunID,
			c.Bucket.Group,
			c.Bucket.Func,
			c.Bucket.FuncTimes,
			c.Bucket.Channel,
			ranks,
		)
		if err != nil {
			return fmt.Errorf("failed to append cycle to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}
	return nil
}

func (w *ClickHouseExporter) Close() error {
	return w.conn.Close()
}
