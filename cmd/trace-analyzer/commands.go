package main

import (
	"Go2TraceSpectra/internal/config"
	"Go2TraceSpectra/internal/diagnostics"
	"Go2TraceSpectra/internal/engine/manager"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"
)

const defaultConfigPath = "configs/config.yaml"

type globalOptions struct {
	configPath string
	debugLog   string
}

type analyzeOptions struct {
	workers         int
	snapshot        string
	metricsTextfile string
}

func newRootCmd() *cobra.Command {
	var global globalOptions

	rootCmd := &cobra.Command{
		Use:   "trace-analyzer",
		Short: "Rate and cycle analysis for collective-communication trace logs",
		Long: `trace-analyzer reads the per-transfer trace lines written by the
communication library, computes per-flow transmission rates and reports
cyclic dependencies between ranks.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&global.configPath, "config", defaultConfigPath, "path to the YAML config file")
	rootCmd.PersistentFlags().StringVar(&global.debugLog, "debug-log", "", "diagnostic log file (overrides logging.debug_log)")

	rootCmd.AddCommand(newAnalyzeCmd(&global), newReportCmd(&global))
	return rootCmd
}

func newAnalyzeCmd(global *globalOptions) *cobra.Command {
	var opts analyzeOptions

	cmd := &cobra.Command{
		Use:   "analyze <log_dir> <rate_out> <cycle_out>",
		Short: "Ingest every .log file under log_dir and write the rate and cycle reports",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			logDir, rateOut, cycleOut := args[0], args[1], args[2]
			if err := checkLogDir(logDir); err != nil {
				return err
			}
			if err := checkWritable(rateOut); err != nil {
				return err
			}

			cfg, err := loadConfig(cmd, global)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("workers") {
				cfg.Analyzer.NumWorkers = opts.workers
			}
			if opts.metricsTextfile != "" {
				cfg.Metrics.Textfile = opts.metricsTextfile
			}

			logger, closer := diagnostics.NewLogger(cfg.Logging)
			defer closer.Close()
			collector := diagnostics.NewCollector(logger)

			m := manager.NewManager(cfg, collector)
			defer func() {
				if err := m.Close(); err != nil {
					logger.Error("Failed to close exporters", "error", err)
				}
			}()

			res, err := m.Run(cmd.Context(), logDir, manager.Outputs{
				RateReport:  rateOut,
				CycleReport: cycleOut,
				Snapshot:    opts.snapshot,
			})
			if err != nil {
				return err
			}

			stats := res.Stats
			fmt.Fprintf(cmd.OutOrStdout(), "Processed %d files (%d skipped), %d lines parsed, %d lines skipped, %d cycles detected.\n",
				stats.FilesRead, stats.FilesSkipped, stats.LinesParsed, stats.LinesSkipped, len(res.Cycles))
			return nil
		},
	}
	cmd.Flags().IntVar(&opts.workers, "workers", 0, "parallel parse workers (overrides analyzer.num_workers, 0 = GOMAXPROCS)")
	cmd.Flags().StringVar(&opts.snapshot, "snapshot", "", "also write the aggregation tree as a gob snapshot")
	cmd.Flags().StringVar(&opts.metricsTextfile, "metrics-textfile", "", "write run counters in the Prometheus textfile format")
	return cmd
}

func newReportCmd(global *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "report <snapshot.gob> <rate_out> <cycle_out>",
		Short: "Regenerate both reports from a gob snapshot",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			snapshot, rateOut, cycleOut := args[0], args[1], args[2]
			if err := checkWritable(rateOut); err != nil {
				return err
			}

			cfg, err := loadConfig(cmd, global)
			if err != nil {
				return err
			}
			// Replays never publish.
			cfg.Exporters = nil
			cfg.Alerter.Enabled = false

			logger, closer := diagnostics.NewLogger(cfg.Logging)
			defer closer.Close()

			m := manager.NewManager(cfg, diagnostics.NewCollector(logger))
			res, err := m.Replay(snapshot)
			if err != nil {
				return err
			}
			if err := m.WriteReports(res, manager.Outputs{RateReport: rateOut, CycleReport: cycleOut}); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Rebuilt reports for run %s: %d leaves, %d cycles.\n",
				res.RunID, res.Rates.LeafCount, len(res.Cycles))
			return nil
		},
	}
}

// loadConfig reads the config file. The default path is optional; an explicit
// --config must exist.
func loadConfig(cmd *cobra.Command, global *globalOptions) (*config.Config, error) {
	var cfg *config.Config
	_, statErr := os.Stat(global.configPath)
	switch {
	case statErr == nil:
		loaded, err := config.LoadConfig(global.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	case errors.Is(statErr, fs.ErrNotExist) && !cmd.Flags().Changed("config"):
		cfg = config.Default()
	default:
		return nil, fmt.Errorf("failed to read config file: %w", statErr)
	}

	if global.debugLog != "" {
		cfg.Logging.DebugLog = global.debugLog
	}
	return cfg, nil
}

// checkLogDir fails unless path is an existing directory.
func checkLogDir(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("log directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", path)
	}
	return nil
}

// checkWritable fails when path exists but cannot be opened for writing.
// A missing file is fine; it is created by the report writer.
func checkWritable(path string) error {
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err == nil {
		return f.Close()
	}
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("output %s is not writable: %w", path, err)
}
