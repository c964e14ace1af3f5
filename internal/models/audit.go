package models

// Pipeline stage names as recorded in the audit table.
const (
	StageExtract = "extract"
	StageClean   = "clean"
	StageLoad    = "load"
)

// Audit entry statuses.
const (
	AuditSuccess = "success"
	AuditPartial = "partial"
	AuditFailed  = "failed"
)

// AuditEntry describes the outcome of one pipeline stage for one run.
// Entries are append-only: written once at stage completion, never updated.
type AuditEntry struct {
	RunID            string
	Stage            string
	Status           string
	RecordsProcessed int
	DurationSeconds  float64
	ErrorDetail      string
}

// LoadResult summarizes a warehouse load, including partial loads that
// stopped after some batches were already committed.
type LoadResult struct {
	RowsLoaded     int
	BatchesWritten int
}
