package factory

import (
	"Go2TraceSpectra/internal/config"
	"Go2TraceSpectra/internal/model"
	"errors"
	"fmt"
	"log/slog"
	"sort"
)

// ExporterFactory builds one exporter from its definition in the config file.
type ExporterFactory func(cfg *config.Config, def config.ExporterDef) (model.Exporter, error)

// registry holds the mapping of exporter types to their factory functions.
var registry = make(map[string]ExporterFactory)

// RegisterExporter registers a new exporter type with its factory function.
func RegisterExporter(name string, factory ExporterFactory) {
	if _, exists := registry[name]; exists {
		panic(fmt.Sprintf("exporter type '%s' already registered", name))
	}
	registry[name] = factory
}

// Registered returns the known exporter types in sorted order.
func Registered() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Create builds every enabled exporter in the config. Exporters that fail to
// build are left out and their errors are joined in the returned error; the
// ones that succeeded are still returned.
func Create(cfg *config.Config, logger *slog.Logger) ([]model.Exporter, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	var exporters []model.Exporter
	var errs []error
	for _, def := range cfg.Exporters {
		if !def.Enabled {
			continue
		}
		logger.Info("Creating exporter", "type", def.Type)

		factory, ok := registry[def.Type]
		if !ok {
			errs = append(errs, fmt.Errorf("unknown exporter type: '%s'", def.Type))
			continue
		}

		exp, err := factory(cfg, def)
		if err != nil {
			errs = append(errs, fmt.Errorf("error creating exporter type '%s': %w", def.Type, err))
			continue
		}
		exporters = append(exporters, exp)
	}

	return exporters, errors.Join(errs...)
}
