package pipeline_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/vberdnik/marketetl/internal/cleaning"
	"github.com/vberdnik/marketetl/internal/dedupe"
	"github.com/vberdnik/marketetl/internal/extract"
	"github.com/vberdnik/marketetl/internal/models"
	"github.com/vberdnik/marketetl/internal/pipeline"
)

type stubExtractor struct {
	result   *extract.Result
	articles []models.NewsArticle
	stats    map[string]models.NewsStats
	symbols  []string
}

func (s *stubExtractor) ExtractAll(context.Context, string) *extract.Result {
	return s.result
}

func (s *stubExtractor) ExtractNews(_ context.Context, _ string, symbols []string) ([]models.NewsArticle, map[string]models.NewsStats) {
	s.symbols = symbols
	return s.articles, s.stats
}

type stubCleaner struct {
	result *cleaning.Result
	news   map[string]models.NewsStats
}

func (s *stubCleaner) Clean(_ context.Context, _ []models.RawRecord, news map[string]models.NewsStats) *cleaning.Result {
	s.news = news
	return s.result
}

type stubLoader struct {
	ensureErr error
	result    *models.LoadResult
	loadErr   error
	loaded    []models.CleanedRecord
}

func (s *stubLoader) EnsureTables(context.Context) error { return s.ensureErr }

func (s *stubLoader) Load(_ context.Context, _ string, records []models.CleanedRecord) (*models.LoadResult, error) {
	s.loaded = records
	return s.result, s.loadErr
}

type stubAudit struct {
	entries []models.AuditEntry
}

func (s *stubAudit) RecordAudit(_ context.Context, e models.AuditEntry) error {
	s.entries = append(s.entries, e)
	return nil
}

type stubMetrics struct {
	metrics map[string]float64
}

func (s *stubMetrics) RecordMetrics(_ context.Context, _ string, metrics map[string]float64) error {
	s.metrics = metrics
	return nil
}

type stubIndexer struct {
	ensureErr error
	indexed   []string
	indexErr  map[string]error
}

func (s *stubIndexer) EnsureIndex(context.Context) error { return s.ensureErr }

func (s *stubIndexer) IndexArticle(_ context.Context, article models.NewsArticle) error {
	if err, ok := s.indexErr[article.ID]; ok {
		return err
	}
	s.indexed = append(s.indexed, article.ID)
	return nil
}

func rawRecords(symbols ...string) []models.RawRecord {
	records := make([]models.RawRecord, 0, len(symbols))
	for _, symbol := range symbols {
		records = append(records, models.RawRecord{
			Symbol:   symbol,
			Name:     symbol + " Corp",
			Country:  "US",
			Industry: "Technology",
		})
	}
	return records
}

func cleanedRecords(symbols ...string) []models.CleanedRecord {
	records := make([]models.CleanedRecord, 0, len(symbols))
	for _, symbol := range symbols {
		records = append(records, models.CleanedRecord{Symbol: symbol, QualityScore: 1.0})
	}
	return records
}

func happyDeps() (pipeline.Deps, *stubExtractor, *stubCleaner, *stubLoader, *stubAudit) {
	extractor := &stubExtractor{
		result: &extract.Result{Records: rawRecords("AAPL", "MSFT"), Pages: 1},
		stats:  map[string]models.NewsStats{"AAPL": {ArticleCount: 2}},
	}
	cleaner := &stubCleaner{
		result: &cleaning.Result{Records: cleanedRecords("AAPL", "MSFT"), Input: 2},
	}
	loader := &stubLoader{
		result: &models.LoadResult{RowsLoaded: 2, BatchesWritten: 1},
	}
	audit := &stubAudit{}

	return pipeline.Deps{
		Extractor: extractor,
		Cleaner:   cleaner,
		Loader:    loader,
		Audit:     audit,
	}, extractor, cleaner, loader, audit
}

func TestRunFullPipelineSuccess(t *testing.T) {
	deps, extractor, cleaner, loader, audit := happyDeps()
	metrics := &stubMetrics{}
	deps.Metrics = metrics

	r := pipeline.NewRunner(deps)
	run := pipeline.NewRunContext()

	status := r.Run(context.Background(), run, models.StageLoad)
	require.Equal(t, pipeline.StatusSuccess, status)

	require.Equal(t, []string{"AAPL", "MSFT"}, extractor.symbols)
	require.Equal(t, map[string]models.NewsStats{"AAPL": {ArticleCount: 2}}, cleaner.news)
	require.Len(t, loader.loaded, 2)

	require.Len(t, audit.entries, 3)
	require.Equal(t, models.StageExtract, audit.entries[0].Stage)
	require.Equal(t, models.StageClean, audit.entries[1].Stage)
	require.Equal(t, models.StageLoad, audit.entries[2].Stage)
	for _, e := range audit.entries {
		require.Equal(t, run.RunID, e.RunID)
		require.Equal(t, models.AuditSuccess, e.Status)
	}
	require.Equal(t, 2, audit.entries[0].RecordsProcessed)
	require.Equal(t, 2, audit.entries[2].RecordsProcessed)

	require.InDelta(t, 2, metrics.metrics["clean_input_records"], 1e-9)
	require.Equal(t, 1, run.Pages)
}

func TestRunStopsAtRequestedStage(t *testing.T) {
	deps, _, _, loader, audit := happyDeps()

	r := pipeline.NewRunner(deps)
	status := r.Run(context.Background(), pipeline.NewRunContext(), models.StageExtract)

	require.Equal(t, pipeline.StatusSuccess, status)
	require.Len(t, audit.entries, 1)
	require.Nil(t, loader.loaded)
}

func TestRunExtractFailureWithPartialRecords(t *testing.T) {
	deps, extractor, _, _, audit := happyDeps()
	extractor.result = &extract.Result{
		Records: rawRecords("AAPL"),
		Pages:   2,
		Err:     fmt.Errorf("HTTP 401 from source"),
	}

	r := pipeline.NewRunner(deps)
	status := r.Run(context.Background(), pipeline.NewRunContext(), models.StageExtract)

	require.Equal(t, pipeline.StatusPartial, status)
	require.Len(t, audit.entries, 1)
	require.Equal(t, models.AuditFailed, audit.entries[0].Status)
	require.Equal(t, 1, audit.entries[0].RecordsProcessed)
	require.Contains(t, audit.entries[0].ErrorDetail, "401")

	// News never runs after a failed extraction.
	require.Nil(t, extractor.symbols)
}

func TestRunExtractFailureNoRecords(t *testing.T) {
	deps, extractor, _, _, _ := happyDeps()
	extractor.result = &extract.Result{Err: fmt.Errorf("boom")}

	r := pipeline.NewRunner(deps)
	status := r.Run(context.Background(), pipeline.NewRunContext(), models.StageExtract)

	require.Equal(t, pipeline.StatusFailed, status)
}

func TestRunExtractFailurePropagatesThroughFullRun(t *testing.T) {
	deps, extractor, cleaner, loader, audit := happyDeps()
	extractor.result = &extract.Result{
		Records: rawRecords("AAPL"),
		Err:     fmt.Errorf("boom"),
	}
	cleaner.result = &cleaning.Result{Records: cleanedRecords("AAPL"), Input: 1}
	loader.result = &models.LoadResult{RowsLoaded: 1, BatchesWritten: 1}

	r := pipeline.NewRunner(deps)
	status := r.Run(context.Background(), pipeline.NewRunContext(), models.StageLoad)

	// Later stages still process the partial records; the run stays partial.
	require.Equal(t, pipeline.StatusPartial, status)
	require.Len(t, loader.loaded, 1)
	require.Len(t, audit.entries, 3)
}

func TestRunLoadEnsureTablesFailure(t *testing.T) {
	deps, _, _, loader, audit := happyDeps()
	loader.ensureErr = fmt.Errorf("permission denied")

	r := pipeline.NewRunner(deps)
	status := r.Run(context.Background(), pipeline.NewRunContext(), models.StageLoad)

	require.Equal(t, pipeline.StatusFailed, status)
	require.Len(t, audit.entries, 3)
	require.Equal(t, models.AuditFailed, audit.entries[2].Status)
	require.Nil(t, loader.loaded)
}

func TestRunLoadPartialFailure(t *testing.T) {
	deps, _, _, loader, audit := happyDeps()
	loader.result = &models.LoadResult{RowsLoaded: 500, BatchesWritten: 1}
	loader.loadErr = fmt.Errorf("batch 2 of 2: connection reset")

	r := pipeline.NewRunner(deps)
	status := r.Run(context.Background(), pipeline.NewRunContext(), models.StageLoad)

	require.Equal(t, pipeline.StatusPartial, status)
	require.Equal(t, models.AuditPartial, audit.entries[2].Status)
	require.Equal(t, 500, audit.entries[2].RecordsProcessed)
}

func TestRunLoadTotalFailure(t *testing.T) {
	deps, _, _, loader, audit := happyDeps()
	loader.result = &models.LoadResult{}
	loader.loadErr = fmt.Errorf("connection reset")

	r := pipeline.NewRunner(deps)
	status := r.Run(context.Background(), pipeline.NewRunContext(), models.StageLoad)

	require.Equal(t, pipeline.StatusFailed, status)
	require.Equal(t, models.AuditFailed, audit.entries[2].Status)
}

func TestRunIndexesArticlesOnce(t *testing.T) {
	deps, extractor, _, _, _ := happyDeps()
	extractor.articles = []models.NewsArticle{
		{ID: "a-1", Title: "first"},
		{ID: "a-2", Title: "second"},
		{ID: "a-1", Title: "first again"},
	}

	indexer := &stubIndexer{}
	deps.Indexer = indexer
	deps.Articles = dedupe.NewCache(10, time.Hour)

	r := pipeline.NewRunner(deps)
	status := r.Run(context.Background(), pipeline.NewRunContext(), models.StageExtract)

	require.Equal(t, pipeline.StatusSuccess, status)
	require.Equal(t, []string{"a-1", "a-2"}, indexer.indexed)
}

func TestRunIndexingFailureDoesNotAffectStatus(t *testing.T) {
	deps, extractor, _, _, _ := happyDeps()
	extractor.articles = []models.NewsArticle{{ID: "a-1"}, {ID: "a-2"}}

	indexer := &stubIndexer{indexErr: map[string]error{"a-1": fmt.Errorf("index down")}}
	deps.Indexer = indexer

	r := pipeline.NewRunner(deps)
	status := r.Run(context.Background(), pipeline.NewRunContext(), models.StageExtract)

	require.Equal(t, pipeline.StatusSuccess, status)
	require.Equal(t, []string{"a-2"}, indexer.indexed)
}

func TestNewRunContext(t *testing.T) {
	first := pipeline.NewRunContext()
	second := pipeline.NewRunContext()

	require.NotEmpty(t, first.RunID)
	require.NotEqual(t, first.RunID, second.RunID)
	require.Contains(t, first.RunID, "etl_")
	require.False(t, first.StartedAt.IsZero())
}

func TestStatusString(t *testing.T) {
	require.Equal(t, "success", pipeline.StatusSuccess.String())
	require.Equal(t, "partial", pipeline.StatusPartial.String())
	require.Equal(t, "failed", pipeline.StatusFailed.String())
}
