package pipeline

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/vberdnik/marketetl/internal/cleaning"
	"github.com/vberdnik/marketetl/internal/dedupe"
	"github.com/vberdnik/marketetl/internal/extract"
	"github.com/vberdnik/marketetl/internal/models"
)

// Extractor drives the paginated source.
type Extractor interface {
	ExtractAll(ctx context.Context, runID string) *extract.Result
	ExtractNews(ctx context.Context, runID string, symbols []string) ([]models.NewsArticle, map[string]models.NewsStats)
}

// Cleaner normalizes, scores, and deduplicates raw records.
type Cleaner interface {
	Clean(ctx context.Context, raws []models.RawRecord, news map[string]models.NewsStats) *cleaning.Result
}

// Loader writes cleaned records to the warehouse.
type Loader interface {
	EnsureTables(ctx context.Context) error
	Load(ctx context.Context, runID string, records []models.CleanedRecord) (*models.LoadResult, error)
}

// AuditRecorder appends stage outcomes to the audit log.
type AuditRecorder interface {
	RecordAudit(ctx context.Context, e models.AuditEntry) error
}

// MetricsRecorder appends data quality metrics for a run.
type MetricsRecorder interface {
	RecordMetrics(ctx context.Context, runID string, metrics map[string]float64) error
}

// ArticleIndexer stores extracted news articles in the search index.
type ArticleIndexer interface {
	EnsureIndex(ctx context.Context) error
	IndexArticle(ctx context.Context, article models.NewsArticle) error
}

// Runner wires the three stages into one run. Stages execute strictly in
// sequence, each consuming its predecessor's full output. Every stage
// completion, successful or not, records exactly one audit entry before
// control returns.
type Runner struct {
	extractor Extractor
	cleaner   Cleaner
	loader    Loader
	audit     AuditRecorder
	metrics   MetricsRecorder // optional
	indexer   ArticleIndexer  // optional
	articles  *dedupe.Cache   // optional, guards duplicate article writes
	log       *slog.Logger
}

// Deps collects the Runner's collaborators. Metrics, Indexer, and Articles
// may be nil.
type Deps struct {
	Extractor Extractor
	Cleaner   Cleaner
	Loader    Loader
	Audit     AuditRecorder
	Metrics   MetricsRecorder
	Indexer   ArticleIndexer
	Articles  *dedupe.Cache
	Log       *slog.Logger
}

// NewRunner builds a Runner.
func NewRunner(deps Deps) *Runner {
	log := deps.Log
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Runner{
		extractor: deps.Extractor,
		cleaner:   deps.Cleaner,
		loader:    deps.Loader,
		audit:     deps.Audit,
		metrics:   deps.Metrics,
		indexer:   deps.Indexer,
		articles:  deps.Articles,
		log:       log,
	}
}

// Run executes the pipeline up to and including the named stage
// (models.StageExtract, StageClean, or StageLoad) and returns the worst
// stage status.
func (r *Runner) Run(ctx context.Context, run *RunContext, through string) Status {
	raws, news, status := r.RunExtract(ctx, run)
	if through == models.StageExtract {
		return status
	}

	cleaned, cleanStatus := r.RunClean(ctx, run, raws, news)
	status = worse(status, cleanStatus)
	if through == models.StageClean {
		return status
	}

	_, loadStatus := r.RunLoad(ctx, run, cleaned)
	return worse(status, loadStatus)
}

// RunExtract pulls all pages from the source. On a fatal fetch failure the
// partial record sequence is still returned so downstream stages can operate
// on whatever was collected; the failure itself lands in the audit log, not
// in a propagated error.
func (r *Runner) RunExtract(ctx context.Context, run *RunContext) ([]models.RawRecord, map[string]models.NewsStats, Status) {
	started := time.Now()

	res := r.extractor.ExtractAll(ctx, run.RunID)
	run.Pages += res.Pages

	if res.Err != nil {
		r.recordAudit(ctx, models.AuditEntry{
			RunID:            run.RunID,
			Stage:            models.StageExtract,
			Status:           models.AuditFailed,
			RecordsProcessed: len(res.Records),
			DurationSeconds:  time.Since(started).Seconds(),
			ErrorDetail:      res.Err.Error(),
		})
		status := StatusFailed
		if len(res.Records) > 0 {
			status = StatusPartial
		}
		return res.Records, nil, status
	}

	articles, news := r.extractor.ExtractNews(ctx, run.RunID, distinctSymbols(res.Records))
	r.indexArticles(ctx, articles)

	r.recordAudit(ctx, models.AuditEntry{
		RunID:            run.RunID,
		Stage:            models.StageExtract,
		Status:           models.AuditSuccess,
		RecordsProcessed: len(res.Records),
		DurationSeconds:  time.Since(started).Seconds(),
	})

	return res.Records, news, StatusSuccess
}

// RunClean normalizes and deduplicates the raw records. Cleaning contains
// per-record failures, so the stage itself always completes.
func (r *Runner) RunClean(ctx context.Context, run *RunContext, raws []models.RawRecord, news map[string]models.NewsStats) ([]models.CleanedRecord, Status) {
	started := time.Now()

	res := r.cleaner.Clean(ctx, raws, news)

	r.recordAudit(ctx, models.AuditEntry{
		RunID:            run.RunID,
		Stage:            models.StageClean,
		Status:           models.AuditSuccess,
		RecordsProcessed: len(res.Records),
		DurationSeconds:  time.Since(started).Seconds(),
	})

	if r.metrics != nil {
		metrics := map[string]float64{
			"clean_input_records":  float64(res.Input),
			"clean_output_records": float64(len(res.Records)),
			"clean_dropped":        float64(res.Dropped),
			"clean_duplicates":     float64(res.Duplicates),
			"avg_quality_score":    res.AvgQuality,
			"distinct_countries":   float64(distinctCountries(res.Records)),
		}
		if len(res.Records) > 0 {
			metrics["complete_pct"] = float64(completeCount(res.Records)) / float64(len(res.Records))
		}
		if err := r.metrics.RecordMetrics(ctx, run.RunID, metrics); err != nil {
			r.log.Warn("record quality metrics", slog.Any("err", err))
		}
	}

	return res.Records, StatusSuccess
}

// RunLoad writes the cleaned records to the warehouse. Partial success,
// where some batches committed before a failure, is a terminal state of its
// own and audited as such.
func (r *Runner) RunLoad(ctx context.Context, run *RunContext, records []models.CleanedRecord) (*models.LoadResult, Status) {
	started := time.Now()

	if err := r.loader.EnsureTables(ctx); err != nil {
		r.recordAudit(ctx, models.AuditEntry{
			RunID:           run.RunID,
			Stage:           models.StageLoad,
			Status:          models.AuditFailed,
			DurationSeconds: time.Since(started).Seconds(),
			ErrorDetail:     err.Error(),
		})
		return nil, StatusFailed
	}

	res, err := r.loader.Load(ctx, run.RunID, records)
	if err != nil {
		auditStatus := models.AuditFailed
		status := StatusFailed
		if res != nil && res.RowsLoaded > 0 {
			auditStatus = models.AuditPartial
			status = StatusPartial
		}
		rows := 0
		if res != nil {
			rows = res.RowsLoaded
		}
		r.recordAudit(ctx, models.AuditEntry{
			RunID:            run.RunID,
			Stage:            models.StageLoad,
			Status:           auditStatus,
			RecordsProcessed: rows,
			DurationSeconds:  time.Since(started).Seconds(),
			ErrorDetail:      err.Error(),
		})
		return res, status
	}

	r.recordAudit(ctx, models.AuditEntry{
		RunID:            run.RunID,
		Stage:            models.StageLoad,
		Status:           models.AuditSuccess,
		RecordsProcessed: res.RowsLoaded,
		DurationSeconds:  time.Since(started).Seconds(),
	})

	return res, StatusSuccess
}

// indexArticles writes articles to the search index, skipping IDs already
// seen. Indexing is supplementary: failures are logged per article and never
// affect the stage outcome.
func (r *Runner) indexArticles(ctx context.Context, articles []models.NewsArticle) {
	if r.indexer == nil || len(articles) == 0 {
		return
	}

	if err := r.indexer.EnsureIndex(ctx); err != nil {
		r.log.Warn("ensure article index", slog.Any("err", err))
		return
	}

	for _, article := range articles {
		if r.articles != nil && !r.articles.Remember(article.ID) {
			r.log.Debug("duplicate article", slog.String("id", article.ID))
			continue
		}
		if err := r.indexer.IndexArticle(ctx, article); err != nil {
			r.log.Warn("index article", slog.Any("err", err), slog.String("id", article.ID))
		}
	}
}

func (r *Runner) recordAudit(ctx context.Context, e models.AuditEntry) {
	if err := r.audit.RecordAudit(ctx, e); err != nil {
		r.log.Error("record audit entry",
			slog.Any("err", err),
			slog.String("stage", e.Stage),
			slog.String("status", e.Status),
		)
	}
}

func completeCount(records []models.CleanedRecord) int {
	n := 0
	for _, rec := range records {
		if rec.IsComplete {
			n++
		}
	}
	return n
}

func distinctCountries(records []models.CleanedRecord) int {
	seen := make(map[string]struct{})
	for _, rec := range records {
		if rec.Country != "" {
			seen[rec.Country] = struct{}{}
		}
	}
	return len(seen)
}

func distinctSymbols(records []models.RawRecord) []string {
	seen := make(map[string]struct{}, len(records))
	symbols := make([]string, 0, len(records))
	for _, rec := range records {
		if rec.Symbol == "" {
			continue
		}
		if _, ok := seen[rec.Symbol]; ok {
			continue
		}
		seen[rec.Symbol] = struct{}{}
		symbols = append(symbols, rec.Symbol)
	}
	return symbols
}
