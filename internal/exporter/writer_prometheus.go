package exporter

import (
	"Go2TraceSpectra/internal/config"
	"Go2TraceSpectra/internal/factory"
	"Go2TraceSpectra/internal/model"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
)

// TextfileName is the file the prometheus exporter writes for the node_exporter
// textfile collector.
const TextfileName = "tracespectra.prom"

func init() {
	factory.RegisterExporter("prometheus", func(_ *config.Config, def config.ExporterDef) (model.Exporter, error) {
		if def.Prometheus.RootPath == "" {
			return nil, errors.New("prometheus.root_path is required")
		}
		return NewPrometheusExporter(def.Prometheus.RootPath), nil
	})
}

// PrometheusExporter writes the rate figures of the last run as gauges.
type PrometheusExporter struct {
	rootPath string
}

// NewPrometheusExporter creates an exporter writing into the textfile collector directory.
func NewPrometheusExporter(rootPath string) *PrometheusExporter {
	return &PrometheusExporter{rootPath: rootPath}
}

func (w *PrometheusExporter) Name() string { return "prometheus" }

func (w *PrometheusExporter) Export(_ context.Context, res *model.RunResult) error {
	if err := os.MkdirAll(w.rootPath, 0755); err != nil {
		return fmt.Errorf("failed to create textfile directory: %w", err)
	}
	reg := NewRateRegistry(res)
	return prometheus.WriteToTextfile(filepath.Join(w.rootPath, TextfileName), reg)
}

func (w *PrometheusExporter) Close() error { return nil }

// NewRateRegistry returns a registry holding the gauges of one run.
// Minimum gauges are omitted when no rate is available.
func NewRateRegistry(res *model.RunResult) *prometheus.Registry {
	reg := prometheus.NewRegistry()

	groupMean := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "tracespectra",
		Name:      "group_mean_rate_gbps",
		Help:      "Mean leaf rate of a communication group in Gb/s.",
	}, []string{"group"})
	groupMin := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "tracespectra",
		Name:      "group_min_rate_gbps",
		Help:      "Minimum leaf rate of a communication group in Gb/s.",
	}, []string{"group"})
	globalMean := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "tracespectra",
		Name:      "global_mean_rate_gbps",
		Help:      "Mean of all leaf rates in Gb/s.",
	})
	leaves := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "tracespectra",
		Name:      "leaves",
		Help:      "Number of aggregation leaves.",
	})
	cycles := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "tracespectra",
		Name:      "cycles",
		Help:      "Number of flow cycles detected.",
	})
	reg.MustRegister(groupMean, groupMin, globalMean, leaves, cycles)

	for _, g := range res.Rates.Groups {
		label := g.Group
		groupMean.WithLabelValues(label).Set(g.Mean)
		if g.Min != nil {
			groupMin.WithLabelValues(label).Set(g.Min.Rate)
		}
	}
	globalMean.Set(res.Rates.Mean)
	leaves.Set(float64(res.Rates.LeafCount))
	cycles.Set(float64(len(res.Cycles)))

	if res.Rates.Min != nil {
		globalMin := prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "tracespectra",
			Name:      "global_min_rate_gbps",
			Help:      "Minimum of all leaf rates in Gb/s.",
		})
		globalMin.Set(res.Rates.Min.Rate)
		reg.MustRegister(globalMin)
	}
	return reg
}
