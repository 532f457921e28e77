package exporter

import (
	"Go2TraceSpectra/internal/config"
	"Go2TraceSpectra/internal/factory"
	"Go2TraceSpectra/internal/model"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

func init() {
	factory.RegisterExporter("nats", func(_ *config.Config, def config.ExporterDef) (model.Exporter, error) {
		return NewNATSExporter(def.NATS)
	})
}

// NATSExporter publishes every detected cycle and a run summary as protobuf
// encoded structpb.Struct messages.
type NATSExporter struct {
	nc             *nats.Conn
	cycleSubject   string
	summarySubject string
}

// NewNATSExporter connects to the configured NATS server.
func NewNATSExporter(cfg config.NATSConfig) (*NATSExporter, error) {
	if cfg.CycleSubject == "" && cfg.SummarySubject == "" {
		return nil, errors.New("nats exporter needs cycle_subject or summary_subject")
	}
	nc, err := nats.Connect(cfg.URL)
	if err != nil {
		return nil, err
	}
	return &NATSExporter{nc: nc, cycleSubject: cfg.CycleSubject, summarySubject: cfg.SummarySubject}, nil
}

func (p *NATSExporter) Name() string { return "nats" }

// Export publishes one message per cycle, then the summary, and waits for the
// server to acknowledge the flush.
func (p *NATSExporter) Export(ctx context.Context, res *model.RunResult) error {
	if p.cycleSubject != "" {
		for _, c := range res.Cycles {
			msg, err := CycleMessage(res, c)
			if err != nil {
				return err
			}
			if err := p.publish(p.cycleSubject, msg); err != nil {
				return err
			}
		}
	}

	if p.summarySubject != "" {
		msg, err := SummaryMessage(res)
		if err != nil {
			return err
		}
		if err := p.publish(p.summarySubject, msg); err != nil {
			return err
		}
	}

	return p.nc.FlushWithContext(ctx)
}

func (p *NATSExporter) publish(subject string, msg *structpb.Struct) error {
	data, err := proto.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message for %s: %w", subject, err)
	}
	return p.nc.Publish(subject, data)
}

// Close drains and closes the NATS connection.
func (p *NATSExporter) Close() error {
	if p.nc == nil {
		return nil
	}
	return p.nc.Drain()
}

// CycleMessage builds the message published for one detected cycle.
func CycleMessage(res *model.RunResult, c model.Cycle) (*structpb.Struct, error) {
	ranks := make([]any, len(c.Ranks))
	for i, r := range c.Ranks {
		ranks[i] = r
	}
	return structpb.NewStruct(map[string]any{
		"run_id":     res.RunID,
		"group":      c.Bucket.Group,
		"func":       c.Bucket.Func,
		"func_times": c.Bucket.FuncTimes,
		"channel":    c.Bucket.Channel,
		"ranks":      ranks,
	})
}

// SummaryMessage builds the message published once per run.
func SummaryMessage(res *model.RunResult) (*structpb.Struct, error) {
	fields := map[string]any{
		"run_id":                res.RunID,
		"source":                res.Source,
		"started_at":            res.StartedAt.UTC().Format(time.RFC3339),
		"leaves":                res.Rates.LeafCount,
		"cycles":                len(res.Cycles),
		"global_mean_rate_gbps": res.Rates.Mean,
		"files_read":            res.Stats.FilesRead,
		"files_skipped":         res.Stats.FilesSkipped,
		"lines_parsed":          res.Stats.LinesParsed,
		"lines_skipped":         res.Stats.LinesSkipped,
	}
	if res.Rates.Min != nil {
		fields["global_min_rate_gbps"] = res.Rates.Min.Rate
		fields["global_min_key"] = res.Rates.Min.Key.String()
	}
	return structpb.NewStruct(fields)
}
