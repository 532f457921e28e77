package manager

import (
	"Go2TraceSpectra/internal/alerter"
	"Go2TraceSpectra/internal/config"
	"Go2TraceSpectra/internal/diagnostics"
	"Go2TraceSpectra/internal/engine/aggregator"
	"Go2TraceSpectra/internal/engine/cycle"
	"Go2TraceSpectra/internal/engine/rate"
	"Go2TraceSpectra/internal/exporter" // Registers every exporter type
	"Go2TraceSpectra/internal/factory"
	"Go2TraceSpectra/internal/model"
	"Go2TraceSpectra/internal/notification"
	"Go2TraceSpectra/internal/report"
	"Go2TraceSpectra/pkg/logscan"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Outputs names the files one run writes. Snapshot is optional.
type Outputs struct {
	RateReport  string
	CycleReport string
	Snapshot    string
}

// Manager orchestrates one analysis run: discovery, ingestion, rate and cycle
// computation, reports, exporters and alerts.
type Manager struct {
	cfg       *config.Config
	collector *diagnostics.Collector
	logger    *slog.Logger
	exporters []model.Exporter
	alerter   *alerter.Alerter
}

// NewManager creates a new Manager. Exporters that cannot be created are logged
// and left out; they never prevent the reports from being written.
func NewManager(cfg *config.Config, collector *diagnostics.Collector) *Manager {
	if collector == nil {
		collector = diagnostics.NewCollector(nil)
	}
	logger := collector.Logger()

	exporters, err := factory.Create(cfg, logger)
	if err != nil {
		logger.Error("Some exporters could not be created", "error", err)
	}

	var alertr *alerter.Alerter
	if cfg.Alerter.Enabled {
		var notifier model.Notifier
		if cfg.SMTP.Host != "" { // Simple check to see if email is configured
			notifier = notification.NewEmailNotifier(cfg.SMTP)
		} else {
			logger.Warn("Alerter is enabled in config, but no notifiers are configured. Alerts will only be logged.")
		}
		alertr = alerter.NewAlerter(&cfg.Alerter, notifier, logger)
	}

	return &Manager{
		cfg:       cfg,
		collector: collector,
		logger:    logger,
		exporters: exporters,
		alerter:   alertr,
	}
}

// Run analyzes logDir and writes the reports. Exporter, alert and metrics
// failures are logged; only ingestion and report errors are returned.
func (m *Manager) Run(ctx context.Context, logDir string, out Outputs) (*model.RunResult, error) {
	res, err := m.Analyze(ctx, logDir)
	if err != nil {
		return nil, err
	}

	if out.Snapshot != "" {
		snap := res.Tree.Snapshot()
		snap.RunID, snap.Source = res.RunID, res.Source
		if err := exporter.SaveSnapshot(out.Snapshot, snap); err != nil {
			m.logger.Error("Failed to write snapshot", "path", out.Snapshot, "error", err)
		}
	}

	reportErr := m.WriteReports(res, out)
	m.Publish(ctx, res)
	return res, reportErr
}

// Analyze discovers and ingests every log file under logDir and computes the
// rate summary and cycles. The only errors are an unusable root and cancellation.
func (m *Manager) Analyze(ctx context.Context, logDir string) (*model.RunResult, error) {
	started := time.Now()

	paths, err := logscan.Discover(logDir, m.cfg.Analyzer.FileSuffix, m.collector.FileSkipped)
	if err != nil {
		return nil, fmt.Errorf("failed to discover log files: %w", err)
	}
	m.logger.Info("Discovered log files", "root", logDir, "files", len(paths))

	agg := aggregator.New(m.collector, m.cfg.Analyzer.NumWorkers, m.cfg.Analyzer.MaxLineBytes)
	if err := agg.ProcessFiles(ctx, paths); err != nil {
		return nil, fmt.Errorf("ingestion interrupted: %w", err)
	}

	stats := m.collector.Summary()
	m.logger.Info("Ingestion finished",
		"files_read", stats.FilesRead, "files_skipped", stats.FilesSkipped,
		"lines_parsed", stats.LinesParsed, "lines_skipped", stats.LinesSkipped,
		"inconsistencies", stats.Inconsistencies)

	res := m.compute(uuid.NewString(), logDir, agg.Tree())
	res.StartedAt = started
	res.Stats = stats
	return res, nil
}

// Replay rebuilds a run from a gob snapshot. Ingestion stats are not part of a
// snapshot and stay zero.
func (m *Manager) Replay(snapshotPath string) (*model.RunResult, error) {
	snap, err := exporter.LoadSnapshot(snapshotPath)
	if err != nil {
		return nil, err
	}
	runID := snap.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	m.logger.Info("Loaded snapshot", "path", snapshotPath, "run_id", runID, "leaves", len(snap.Entries))

	res := m.compute(runID, snap.Source, model.TreeFromSnapshot(snap))
	res.StartedAt = time.Now()
	return res, nil
}

func (m *Manager) compute(runID, source string, tree *model.Tree) *model.RunResult {
	rates := rate.Compute(tree)
	m.logger.Info("Rates computed", "groups", len(rates.Groups), "leaves", rates.LeafCount)
	for _, g := range rates.Groups {
		for _, lr := range g.Leaves {
			if lr.Overflow {
				m.logger.Warn("Leaf totals exceed uint64, stored totals are saturated", "key", lr.Key.String(), "rate_gbps", lr.Rate)
			}
		}
	}

	cycles := cycle.Detect(tree)
	m.logger.Info("Cycle detection finished", "cycles", len(cycles))

	return &model.RunResult{
		RunID:  runID,
		Source: source,
		Rates:  rates,
		Cycles: cycles,
		Tree:   tree,
	}
}

// WriteReports writes both reports. A failure of one does not stop the other.
func (m *Manager) WriteReports(res *model.RunResult, out Outputs) error {
	var errs []error
	if err := report.WriteRateReport(out.RateReport, res.Rates); err != nil {
		m.logger.Error("Failed to write rate report", "error", err)
		errs = append(errs, err)
	} else {
		m.logger.Info("Rate report written", "path", out.RateReport)
	}
	if err := report.WriteCycleReport(out.CycleReport, res.Cycles); err != nil {
		m.logger.Error("Failed to write cycle report", "error", err)
		errs = append(errs, err)
	} else {
		m.logger.Info("Cycle report written", "path", out.CycleReport, "cycles", len(res.Cycles))
	}
	return errors.Join(errs...)
}

// Publish runs every exporter, the alerter and the metrics textfile.
func (m *Manager) Publish(ctx context.Context, res *model.RunResult) {
	for _, exp := range m.exporters {
		if err := exp.Export(ctx, res); err != nil {
			m.logger.Error("Exporter failed", "exporter", exp.Name(), "error", err)
			continue
		}
		m.logger.Info("Exporter finished", "exporter", exp.Name())
	}

	if m.alerter != nil {
		if _, err := m.alerter.Notify(res); err != nil {
			m.logger.Error("Alert notification failed", "error", err)
		}
	}

	if path := m.cfg.Metrics.Textfile; path != "" {
		if err := m.collector.WriteTextfile(path); err != nil {
			m.logger.Error("Failed to write metrics textfile", "path", path, "error", err)
		}
	}
}

// Close releases the exporters.
func (m *Manager) Close() error {
	var errs []error
	for _, exp := range m.exporters {
		if err := exp.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing %s exporter: %w", exp.Name(), err))
		}
	}
	return errors.Join(errs...)
}
