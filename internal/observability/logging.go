// Package observability provides metrics, tracing and job logging.
package observability

import (
	"context"
	"log/slog"
	"time"
)

// JobLogger writes structured start/item/finish records for batch jobs.
type JobLogger struct {
	job    string
	logger *slog.Logger
	start  time.Time
}

// NewJobLogger creates a JobLogger for the named job.
func NewJobLogger(logger *slog.Logger, job string) *JobLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &JobLogger{job: job, logger: logger.With(slog.String("job", job))}
}

// Start logs the beginning of a run.
func (l *JobLogger) Start(ctx context.Context, fields ...any) {
	l.start = time.Now()
	l.logger.InfoContext(ctx, "job started", fields...)
}

// ItemFailed logs a single failed record and counts it.
func (l *JobLogger) ItemFailed(ctx context.Context, id string, err error) {
	MaintenanceItems.WithLabelValues(l.job, "failed").Inc()
	l.logger.WarnContext(ctx, "job item failed",
		slog.String("item_id", id),
		slog.String("error", err.Error()),
	)
}

// ItemDone counts a successfully processed record.
func (l *JobLogger) ItemDone() {
	MaintenanceItems.WithLabelValues(l.job, "processed").Inc()
}

// Finish logs the summary of a run.
func (l *JobLogger) Finish(ctx context.Context, processed, failed int, err error) {
	attrs := []any{
		slog.Int("processed", processed),
		slog.Int("failed", failed),
		slog.Duration("duration", time.Since(l.start)),
	}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
		l.logger.ErrorContext(ctx, "job aborted", attrs...)
		return
	}
	l.logger.InfoContext(ctx, "job finished", attrs...)
}
