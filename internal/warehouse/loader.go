package warehouse

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vberdnik/marketetl/internal/models"
)

// Conn is the slice of pgxpool.Pool the loader uses, so tests can substitute
// a fake without a running database.
type Conn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

// Connect opens a warehouse connection pool and verifies it with a ping.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open warehouse pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping warehouse: %w", err)
	}
	return pool, nil
}

// Loader writes cleaned records to the warehouse in fixed-size batches. Each
// batch is staged with a bulk copy and merged into the target table with an
// upsert keyed by symbol, so re-running a load is idempotent.
type Loader struct {
	db           Conn
	batchSize    int
	batchRetries int
	log          *slog.Logger

	// retryDelay is the base pause between batch retries; tests shrink it.
	retryDelay time.Duration
}

// NewLoader builds a Loader.
func NewLoader(db Conn, batchSize, batchRetries int, log *slog.Logger) *Loader {
	if batchSize <= 0 {
		batchSize = 500
	}
	if batchRetries <= 0 {
		batchRetries = 3
	}
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Loader{
		db:           db,
		batchSize:    batchSize,
		batchRetries: batchRetries,
		log:          log,
		retryDelay:   500 * time.Millisecond,
	}
}

// EnsureTables creates the destination tables when absent and verifies that
// an existing tech_companies table still has the expected column shape. It
// never alters an existing table; a shape mismatch fails with ErrSchema.
func (l *Loader) EnsureTables(ctx context.Context) error {
	for _, ddl := range []string{companiesDDL, stagingDDL, auditDDL, metricsDDL} {
		if _, err := l.db.Exec(ctx, ddl); err != nil {
			if schemaClass(err) {
				return fmt.Errorf("%w: create tables: %v", ErrSchema, err)
			}
			return fmt.Errorf("%w: create tables: %v", ErrConnection, err)
		}
	}

	var present int
	err := l.db.QueryRow(ctx,
		`SELECT count(*) FROM information_schema.columns
		 WHERE table_name = 'tech_companies' AND column_name = ANY($1)`,
		loadColumns,
	).Scan(&present)
	if err != nil {
		return fmt.Errorf("%w: inspect table shape: %v", ErrConnection, err)
	}
	if present != len(loadColumns) {
		return fmt.Errorf("%w: tech_companies has %d of %d expected columns", ErrSchema, present, len(loadColumns))
	}

	return nil
}

// Load writes the records batch by batch, in input order. Batches already
// committed stay committed when a later batch fails; the partial LoadResult
// is returned alongside the error in that case.
func (l *Loader) Load(ctx context.Context, runID string, records []models.CleanedRecord) (*models.LoadResult, error) {
	res := &models.LoadResult{}
	batches := chunk(records, l.batchSize)

	for i, batch := range batches {
		if err := l.writeBatch(ctx, batch); err != nil {
			return res, fmt.Errorf("batch %d of %d: %w", i+1, len(batches), err)
		}
		res.RowsLoaded += len(batch)
		res.BatchesWritten++

		l.log.Info("batch committed",
			slog.Int("batch", i+1),
			slog.Int("batches", len(batches)),
			slog.Int("rows", len(batch)),
		)
	}

	l.verify(ctx, runID, res.RowsLoaded)
	return res, nil
}

// writeBatch stages and merges one batch, retrying connection failures with
// a bounded linear backoff. Schema and constraint failures are not retried.
func (l *Loader) writeBatch(ctx context.Context, batch []models.CleanedRecord) error {
	var lastErr error
	for attempt := 0; attempt <= l.batchRetries; attempt++ {
		err := l.writeBatchOnce(ctx, batch)
		if err == nil {
			return nil
		}
		if schemaClass(err) {
			return fmt.Errorf("%w: %v", ErrSchema, err)
		}
		lastErr = err

		if attempt == l.batchRetries {
			break
		}

		delay := l.retryDelay * time.Duration(attempt+1)
		l.log.Warn("batch write failed, retrying",
			slog.Any("err", err),
			slog.Int("attempt", attempt+1),
			slog.Duration("backoff", delay),
		)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", ErrConnection, ctx.Err())
		}
	}
	return fmt.Errorf("%w: retries exhausted: %v", ErrConnection, lastErr)
}

func (l *Loader) writeBatchOnce(ctx context.Context, batch []models.CleanedRecord) error {
	if _, err := l.db.Exec(ctx, `TRUNCATE TABLE tech_companies_staging`); err != nil {
		return fmt.Errorf("truncate staging: %w", err)
	}

	rows := make([][]any, 0, len(batch))
	for _, rec := range batch {
		rows = append(rows, []any{
			rec.Symbol, rec.Name, rec.Industry,
			rec.Country, rec.CountryName, rec.Region,
			rec.ExchangeCode, rec.Ticker, rec.ExchangeName,
			rec.Category, rec.ArticleCount, rec.AvgSentiment,
			rec.QualityScore, rec.IsComplete, rec.RecordHash,
			rec.SourcePage, rec.RunID, rec.ETLTimestamp,
		})
	}

	copied, err := l.db.CopyFrom(ctx,
		pgx.Identifier{"tech_companies_staging"},
		loadColumns,
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("copy to staging: %w", err)
	}
	if copied != int64(len(batch)) {
		return fmt.Errorf("copy to staging: wrote %d of %d rows", copied, len(batch))
	}

	if _, err := l.db.Exec(ctx, mergeSQL); err != nil {
		return fmt.Errorf("merge staging into target: %w", err)
	}

	return nil
}

// verify counts the rows carrying this run's ID. Records whose content did
// not change since the previous run keep their old run ID, so a shortfall is
// reported, not treated as a failure.
func (l *Loader) verify(ctx context.Context, runID string, expected int) {
	var landed int
	err := l.db.QueryRow(ctx,
		`SELECT count(*) FROM tech_companies WHERE etl_run_id = $1`, runID,
	).Scan(&landed)
	if err != nil {
		l.log.Warn("post-load row count check failed", slog.Any("err", err))
		return
	}

	if landed != expected {
		l.log.Warn("post-load row count mismatch",
			slog.Int("expected", expected),
			slog.Int("landed", landed),
		)
		return
	}

	l.log.Info("post-load row count verified", slog.Int("rows", landed))
}

func chunk(records []models.CleanedRecord, size int) [][]models.CleanedRecord {
	if len(records) == 0 {
		return nil
	}
	batches := make([][]models.CleanedRecord, 0, (len(records)+size-1)/size)
	for start := 0; start < len(records); start += size {
		end := min(start+size, len(records))
		batches = append(batches, records[start:end])
	}
	return batches
}
