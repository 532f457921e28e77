// Package diagnostics collects the recoverable problems found during a run and
// exposes them as structured log entries, counters and a skip summary.
package diagnostics

import (
	"Go2TraceSpectra/internal/model"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// maxLoggedLine truncates skipped lines in log entries.
const maxLoggedLine = 256

// Collector implements model.Sink.
type Collector struct {
	logger *slog.Logger

	mu      sync.Mutex
	stats   model.RunStats
	skipped map[string]int // lines skipped per file

	registry        *prometheus.Registry
	linesParsed     prometheus.Counter
	linesSkipped    prometheus.Counter
	filesRead       prometheus.Counter
	filesSkipped    prometheus.Counter
	inconsistencies prometheus.Counter
}

// NewCollector creates a collector that logs through logger. A nil logger discards.
func NewCollector(logger *slog.Logger) *Collector {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	c := &Collector{
		logger:   logger,
		skipped:  make(map[string]int),
		registry: prometheus.NewRegistry(),
		linesParsed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tracespectra",
			Name:      "lines_parsed_total",
			Help:      "Trace lines that matched the schema and were aggregated.",
		}),
		linesSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tracespectra",
			Name:      "lines_skipped_total",
			Help:      "Trace lines rejected by the parser.",
		}),
		filesRead: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tracespectra",
			Name:      "files_read_total",
			Help:      "Log files read to completion.",
		}),
		filesSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tracespectra",
			Name:      "files_skipped_total",
			Help:      "Log files skipped because they could not be read.",
		}),
		inconsistencies: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tracespectra",
			Name:      "structural_inconsistencies_total",
			Help:      "Records dropped because the aggregation path was incomplete after insertion.",
		}),
	}
	c.registry.MustRegister(c.linesParsed, c.linesSkipped, c.filesRead, c.filesSkipped, c.inconsistencies)
	return c
}

// Logger returns the logger the collector writes to.
func (c *Collector) Logger() *slog.Logger {
	return c.logger
}

// Registry returns the per-run metrics registry. Exporters may register more collectors on it.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func (c *Collector) LineSkipped(path string, lineNo int, line string, err error) {
	c.mu.Lock()
	c.stats.LinesSkipped++
	c.skipped[path]++
	c.mu.Unlock()
	c.linesSkipped.Inc()

	if len(line) > maxLoggedLine {
		line = line[:maxLoggedLine] + "..."
	}
	c.logger.Warn("Skipping line", "file", path, "line_no", lineNo, "line", line, "error", err)
}

func (c *Collector) FileSkipped(path string, err error) {
	c.mu.Lock()
	c.stats.FilesSkipped++
	c.mu.Unlock()
	c.filesSkipped.Inc()
	c.logger.Error("Cannot read file", "file", path, "error", err)
}

func (c *Collector) Inconsistency(key model.AggregationKey, err error) {
	c.mu.Lock()
	c.stats.Inconsistencies++
	c.mu.Unlock()
	c.inconsistencies.Inc()
	c.logger.Error("Missing keys in data structure", "key", key.String(), "error", err)
}

func (c *Collector) FileRead(path string, parsed int) {
	c.mu.Lock()
	c.stats.FilesRead++
	c.stats.LinesParsed += parsed
	skipped := c.skipped[path]
	c.mu.Unlock()
	c.filesRead.Inc()
	c.linesParsed.Add(float64(parsed))
	c.logger.Debug("Processed file", "file", path, "parsed", parsed, "skipped", skipped)
}

// Summary returns the skip/parse counts so far.
func (c *Collector) Summary() model.RunStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// SkippedByFile returns the number of skipped lines per file.
func (c *Collector) SkippedByFile() map[string]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]int, len(c.skipped))
	for k, v := range c.skipped {
		out[k] = v
	}
	return out
}

// WriteTextfile writes the registry in the node_exporter textfile format.
func (c *Collector) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, c.registry)
}
