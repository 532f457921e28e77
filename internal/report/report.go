// Package report renders rate and cycle results as the text reports consumed by operators.
package report

import (
	"Go2TraceSpectra/internal/model"
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/renameio/v2"
)

// WriteError reports a failure to produce a report file. The previous file, if
// any, is left untouched.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("failed to write report %s: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// WriteRateReport renders the rate summary to path atomically.
func WriteRateReport(path string, s model.RateSummary) error {
	return writeAtomic(path, func(w io.Writer) error { return RenderRates(w, s) })
}

// WriteCycleReport renders the detected cycles to path atomically.
func WriteCycleReport(path string, cycles []model.Cycle) error {
	return writeAtomic(path, func(w io.Writer) error { return RenderCycles(w, cycles) })
}

func writeAtomic(path string, render func(io.Writer) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return &WriteError{Path: path, Err: err}
	}

	pf, err := renameio.NewPendingFile(path, renameio.WithTempDir(dir), renameio.WithPermissions(0644))
	if err != nil {
		return &WriteError{Path: path, Err: err}
	}
	defer pf.Cleanup()

	bw := bufio.NewWriter(pf)
	if err := render(bw); err != nil {
		return &WriteError{Path: path, Err: err}
	}
	if err := bw.Flush(); err != nil {
		return &WriteError{Path: path, Err: err}
	}
	if err := pf.CloseAtomicallyReplace(); err != nil {
		return &WriteError{Path: path, Err: err}
	}
	return nil
}

// RenderRates writes the per-group summary, the network-wide summary and the
// per-leaf detail dump.
func RenderRates(w io.Writer, s model.RateSummary) error {
	ew := &errWriter{w: w}

	for _, g := range s.Groups {
		ew.printf("Group: %s\n", g.Group)
		ew.printf("  Average Transmission Rate:\n")
		ew.printf("    Average Rate: %.9f Gb/s\n", g.Mean)
		if g.Min != nil {
			ew.printf("  Lowest Transmission Rate:\n")
			ew.printf("    Func: %s, Func_times: %s, Channel: %s, Flow: %s, IP Flow: %s, Transmission Rate: %.9f Gb/s\n",
				g.Min.Key.Func, g.Min.Key.FuncTimes, g.Min.Key.Channel, g.Min.Key.Flow, g.Min.Key.IPFlow, g.Min.Rate)
		} else {
			ew.printf("  Lowest Transmission Rate: Not available\n")
		}
		ew.printf("\n")
	}

	ew.printf("Average Transmission Rate across the Network: %.9f Gb/s\n", s.Mean)
	ew.printf("Overall Lowest Transmission Rate across the Network:\n")
	if s.Min != nil {
		ew.printf("  Group: %s, Func: %s, Func_times: %s, Channel: %s, Flow: %s, IP Flow: %s, Transmission Rate: %.9f Gb/s\n",
			s.Min.Key.Group, s.Min.Key.Func, s.Min.Key.FuncTimes, s.Min.Key.Channel, s.Min.Key.Flow, s.Min.Key.IPFlow, s.Min.Rate)
	} else {
		ew.printf("  Not available\n")
	}

	ew.printf("\nDetailed Data Structure:\n")
	for _, g := range s.Groups {
		ew.printf("Group: %s\n", g.Group)
		for _, lr := range g.Leaves {
			ew.printf("    Func: %s, Func_times: %s, Channel: %s, Flow: %s, IP Flow: %s\n",
				lr.Key.Func, lr.Key.FuncTimes, lr.Key.Channel, lr.Key.Flow, lr.Key.IPFlow)
			ew.printf("      Average Bytes Sent: %s\n", formatAverage(lr.AvgBytes))
			ew.printf("      Average Time Used: %s\n", formatAverage(lr.AvgTime))
			ew.printf("      Average Transmission Rate: %.9f Gb/s\n", lr.AvgRate)
		}
	}
	return ew.err
}

// RenderCycles writes one line per detected cycle.
func RenderCycles(w io.Writer, cycles []model.Cycle) error {
	ew := &errWriter{w: w}
	for _, c := range cycles {
		ew.printf("%s\n", CycleLine(c))
	}
	return ew.err
}

// CycleLine formats a single cycle, e.g.
// "Detected cycle in group 0, func ncclFuncAllReduce, func_time 3, channel 1: 2 -> 1 -> 0".
func CycleLine(c model.Cycle) string {
	ranks := make([]string, len(c.Ranks))
	for i, r := range c.Ranks {
		ranks[i] = strconv.Itoa(r)
	}
	return fmt.Sprintf("Detected cycle in group %s, func %s, func_time %s, channel %s: %s",
		c.Bucket.Group, c.Bucket.Func, c.Bucket.FuncTimes, c.Bucket.Channel, strings.Join(ranks, " -> "))
}

// formatAverage prints whole numbers with one decimal and everything else in shortest form.
func formatAverage(v float64) string {
	if v == math.Trunc(v) && math.Abs(v) < 1e15 {
		return strconv.FormatFloat(v, 'f', 1, 64)
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// errWriter remembers the first write error and turns later writes into no-ops.
type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) printf(format string, args ...any) {
	if e.err != nil {
		return
	}
	_, e.err = fmt.Fprintf(e.w, format, args...)
}
