package alerter

import (
	"Go2TraceSpectra/internal/config"
	"Go2TraceSpectra/internal/model"
	"fmt"
	"log/slog"
	"strings"
)

// Metric names accepted in alerter rules.
const (
	MetricGlobalMeanRate = "global_mean_rate"
	MetricGlobalMinRate  = "global_min_rate"
	MetricCycleCount     = "cycle_count"
	MetricSkippedLines   = "skipped_lines"
	MetricSkippedFiles   = "skipped_files"
)

// Alerter evaluates the result of a run against predefined rules and triggers
// a notification if any rule is violated.
type Alerter struct {
	rules    []config.AlerterRule
	notifier model.Notifier
	logger   *slog.Logger
}

// NewAlerter creates a new Alerter instance.
func NewAlerter(cfg *config.AlerterConfig, notifier model.Notifier, logger *slog.Logger) *Alerter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Alerter{rules: cfg.Rules, notifier: notifier, logger: logger}
}

// Evaluate returns one message per triggered rule, in rule order.
// Rules whose metric has no value for this run (no leaves, unknown name) are skipped.
func (a *Alerter) Evaluate(res *model.RunResult) []string {
	var triggered []string
	for _, rule := range a.rules {
		value, unit, ok := metricValue(rule.Metric, res)
		if !ok {
			a.logger.Debug("Alert rule not evaluated", "rule", rule.Name, "metric", rule.Metric)
			continue
		}
		if !check(value, rule.Threshold, rule.Operator) {
			continue
		}

		msg := fmt.Sprintf("<h3>Alert: %s</h3>"+
			"<ul>"+
			"<li><b>Source:</b> <code>%s</code></li>"+
			"<li><b>Metric:</b> <code>%s</code></li>"+
			"<li><b>Condition:</b> <code>%s %.2f</code></li>"+
			"<li><b>Observed Value:</b> <code>%.2f %s</code></li>"+
			"</ul>",
			rule.Name, res.Source, rule.Metric, rule.Operator, rule.Threshold, value, unit)
		if rule.Metric == MetricCycleCount && len(res.Cycles) > 0 {
			msg += cycleList(res.Cycles)
		}
		triggered = append(triggered, msg)
	}
	return triggered
}

// Notify evaluates the rules and sends one consolidated notification if any fired.
// It returns the number of triggered alerts.
func (a *Alerter) Notify(res *model.RunResult) (int, error) {
	messages := a.Evaluate(res)
	if len(messages) == 0 {
		return 0, nil
	}
	a.logger.Info("Alerter evaluation completed", "triggered", len(messages))

	if a.notifier == nil {
		a.logger.Warn("Alerts triggered but no notifier is configured")
		return len(messages), nil
	}

	body := "<h1>Go2TraceSpectra Alert Summary</h1>" +
		fmt.Sprintf("<p>The following alerts were triggered by run <code>%s</code>:</p><hr>", res.RunID) +
		strings.Join(messages, "<hr>")
	subject := fmt.Sprintf("Go2TraceSpectra Alert Summary (%d Triggered)", len(messages))
	if err := a.notifier.Send(subject, body); err != nil {
		return len(messages), fmt.Errorf("failed to send consolidated alert notification: %w", err)
	}
	a.logger.Info("Consolidated alert notification sent")
	return len(messages), nil
}

func metricValue(metric string, res *model.RunResult) (float64, string, bool) {
	switch metric {
	case MetricGlobalMeanRate:
		if res.Rates.LeafCount == 0 {
			return 0, "", false
		}
		return res.Rates.Mean, "Gb/s", true
	case MetricGlobalMinRate:
		if res.Rates.Min == nil {
			return 0, "", false
		}
		return res.Rates.Min.Rate, "Gb/s", true
	case MetricCycleCount:
		return float64(len(res.Cycles)), "cycles", true
	case MetricSkippedLines:
		return float64(res.Stats.LinesSkipped), "lines", true
	case MetricSkippedFiles:
		return float64(res.Stats.FilesSkipped), "files", true
	}
	return 0, "", false
}

func cycleList(cycles []model.Cycle) string {
	var b strings.Builder
	b.WriteString("<ul>")
	for _, c := range cycles {
		fmt.Fprintf(&b, "<li>group %s, %s, func_time %s, channel %s: <code>",
			c.Bucket.Group, c.Bucket.Func, c.Bucket.FuncTimes, c.Bucket.Channel)
		for i, r := range c.Ranks {
			if i > 0 {
				b.WriteString(" -&gt; ")
			}
			fmt.Fprintf(&b, "%d", r)
		}
		b.WriteString("</code></li>")
	}
	b.WriteString("</ul>")
	return b.String()
}

// check compares a value against a threshold based on an operator.
func check(value, threshold float64, operator string) bool {
	switch operator {
	case ">":
		return value > threshold
	case "<":
		return value < threshold
	case "=":
		return value == threshold
	case ">=":
		return value >= threshold
	case "<=":
		return value <= threshold
	default:
		return false
	}
}
