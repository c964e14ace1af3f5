package warehouse

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"

	"github.com/vberdnik/marketetl/internal/models"
)

// Recorder appends audit entries and quality metrics to the warehouse. It is
// append-only by construction: inserts only, no updates or deletes.
type Recorder struct {
	db  Conn
	log *slog.Logger
}

// NewRecorder builds a Recorder.
func NewRecorder(db Conn, log *slog.Logger) *Recorder {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Recorder{db: db, log: log}
}

// RecordAudit writes one audit entry. It must stay callable from failure
// paths: the audit log is how stage failures become observable.
func (r *Recorder) RecordAudit(ctx context.Context, e models.AuditEntry) error {
	var errorDetail any
	if e.ErrorDetail != "" {
		errorDetail = e.ErrorDetail
	}

	_, err := r.db.Exec(ctx,
		`INSERT INTO etl_audit (run_id, stage, status, records_processed, duration_seconds, error_detail)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		e.RunID, e.Stage, e.Status, e.RecordsProcessed, e.DurationSeconds, errorDetail,
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}

	r.log.Info("audit entry recorded",
		slog.String("run_id", e.RunID),
		slog.String("stage", e.Stage),
		slog.String("status", e.Status),
		slog.Int("records", e.RecordsProcessed),
	)

	return nil
}

// RecordMetrics writes one data_quality_metrics row per metric, in metric
// name order so runs produce comparable sequences.
func (r *Recorder) RecordMetrics(ctx context.Context, runID string, metrics map[string]float64) error {
	names := make([]string, 0, len(metrics))
	for name := range metrics {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		_, err := r.db.Exec(ctx,
			`INSERT INTO data_quality_metrics (run_id, metric_name, metric_value) VALUES ($1, $2, $3)`,
			runID, name, metrics[name],
		)
		if err != nil {
			return fmt.Errorf("insert metric %s: %w", name, err)
		}
	}

	return nil
}
