package service

import (
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/ktngoykalolo/WingtipTicketsSaaS-DbPerTenant/internal/metrics"
)

// Reporter accepts progress updates for display. The scheduler emits one
// update after every state change; sinks impose no cadence of their own.
type Reporter interface {
	Report(label string, percentage float64, completed, total int)
}

// Progress derives a monotonic completion percentage from the scheduler's
// counters. It holds no independent state and can be recomputed at any time.
type Progress struct {
	label     string
	total     int
	completed int
}

// NewProgress creates a progress tracker for a batch of the given size
func NewProgress(label string, total int) *Progress {
	return &Progress{label: label, total: total}
}

// Advance increments the completed counter
func (p *Progress) Advance() {
	p.completed++
}

// Discard removes a faulted resource from the batch total. Faulted resources
// never complete within this run, so keeping them in the denominator would
// leave a fully drained batch below 100 percent.
func (p *Progress) Discard() {
	if p.total > 0 {
		p.total--
	}
}

// Completed returns the completed counter
func (p *Progress) Completed() int {
	return p.completed
}

// Total returns the current batch total
func (p *Progress) Total() int {
	return p.total
}

// Percentage returns round(completed/total, 2) * 100. An empty batch is
// vacuously complete.
func (p *Progress) Percentage() float64 {
	if p.total == 0 {
		return 100
	}
	ratio := float64(p.completed) / float64(p.total)
	return math.Round(ratio * 100)
}

// String renders the progress line, e.g. "67% (2 of 3)"
func (p *Progress) String() string {
	return fmt.Sprintf("%.0f%% (%d of %d)", p.Percentage(), p.completed, p.total)
}

// Emit pushes the current counters to a reporter sink
func (p *Progress) Emit(r Reporter) {
	r.Report(p.label, p.Percentage(), p.completed, p.total)
}

// LogReporter writes progress updates to the structured log
type LogReporter struct {
	logger *zap.Logger
}

// NewLogReporter creates a log-backed progress sink
func NewLogReporter(logger *zap.Logger) *LogReporter {
	return &LogReporter{logger: logger}
}

// Report logs one progress line
func (r *LogReporter) Report(label string, percentage float64, completed, total int) {
	r.logger.Info("Migration progress",
		zap.String("batch", label),
		zap.Float64("percentage", percentage),
		zap.Int("completed", completed),
		zap.Int("total", total))
}

// MetricsReporter pushes progress updates to the Prometheus gauge
type MetricsReporter struct {
	metrics *metrics.Metrics
}

// NewMetricsReporter creates a metrics-backed progress sink
func NewMetricsReporter(m *metrics.Metrics) *MetricsReporter {
	return &MetricsReporter{metrics: m}
}

// Report updates the batch progress gauge
func (r *MetricsReporter) Report(label string, percentage float64, completed, total int) {
	r.metrics.UpdateBatchProgress(label, percentage)
}

// MultiReporter fans one update out to several sinks
type MultiReporter []Reporter

// Report forwards the update to every sink
func (m MultiReporter) Report(label string, percentage float64, completed, total int) {
	for _, r := range m {
		r.Report(label, percentage, completed, total)
	}
}
