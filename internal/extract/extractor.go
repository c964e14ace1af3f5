package extract

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/vberdnik/marketetl/internal/models"
	"github.com/vberdnik/marketetl/internal/source"
)

// PageFetcher is the narrow view of the source client the extractor needs,
// so tests can drive it with a stub.
type PageFetcher interface {
	FetchPage(ctx context.Context, cursor string) (*source.Page, error)
	FetchNews(ctx context.Context, symbols []string, publishedAfter time.Time) ([]models.NewsArticle, error)
}

// Config bounds the extraction loop.
type Config struct {
	// MaxPages is a safety bound against runaway pagination.
	MaxPages int
	// NewsWindow limits how far back article fetches reach.
	NewsWindow time.Duration
	// NewsSymbolBatch symbols are requested per news call; NewsSymbolLimit
	// caps how many symbols get news coverage at all.
	NewsSymbolBatch int
	NewsSymbolLimit int
}

// Extractor walks the paginated source and stamps every record with its
// extraction metadata.
type Extractor struct {
	fetcher PageFetcher
	cfg     Config
	log     *slog.Logger
	now     func() time.Time
}

// Result is the extraction outcome. Err is set when pagination stopped on a
// fatal fetch failure; Records then holds the partial sequence collected up
// to that point.
type Result struct {
	Records []models.RawRecord
	Pages   int
	Err     error
}

// New builds an Extractor.
func New(fetcher PageFetcher, cfg Config, log *slog.Logger) *Extractor {
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 200
	}
	if cfg.NewsWindow <= 0 {
		cfg.NewsWindow = 7 * 24 * time.Hour
	}
	if cfg.NewsSymbolBatch <= 0 {
		cfg.NewsSymbolBatch = 5
	}
	if cfg.NewsSymbolLimit <= 0 {
		cfg.NewsSymbolLimit = 20
	}
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Extractor{fetcher: fetcher, cfg: cfg, log: log, now: time.Now}
}

// ExtractAll fetches pages sequentially until the end-of-data marker or the
// page bound. A fatal fetch failure stops the walk and is reported through
// Result.Err together with everything collected before it; records keep
// source page order.
func (e *Extractor) ExtractAll(ctx context.Context, runID string) *Result {
	res := &Result{}
	cursor := source.StartCursor

	for res.Pages < e.cfg.MaxPages {
		page, err := e.fetcher.FetchPage(ctx, cursor)
		if err != nil {
			e.log.Error("page fetch failed, stopping extraction",
				slog.Any("err", err),
				slog.Int("pages_fetched", res.Pages),
				slog.Int("records_collected", len(res.Records)),
			)
			res.Err = err
			return res
		}

		res.Pages++
		fetchedAt := e.now().UTC()
		for _, rec := range page.Records {
			rec.SourcePage = page.Number
			rec.FetchedAt = fetchedAt
			rec.RunID = runID
			res.Records = append(res.Records, rec)
		}

		e.log.Debug("page fetched",
			slog.Int("page", page.Number),
			slog.Int("records", len(page.Records)),
			slog.Int("total", len(res.Records)),
		)

		if page.Done {
			break
		}
		cursor = page.NextCursor
	}

	e.log.Info("extraction complete",
		slog.Int("pages", res.Pages),
		slog.Int("records", len(res.Records)),
	)

	return res
}

// ExtractNews fetches recent articles for a sample of the extracted symbols,
// a few symbols per request, and aggregates per-symbol coverage. A failed
// batch is logged and skipped; news is supplementary and never fails the
// extract stage.
func (e *Extractor) ExtractNews(ctx context.Context, runID string, symbols []string) ([]models.NewsArticle, map[string]models.NewsStats) {
	if len(symbols) > e.cfg.NewsSymbolLimit {
		symbols = symbols[:e.cfg.NewsSymbolLimit]
	}

	publishedAfter := e.now().Add(-e.cfg.NewsWindow)
	var articles []models.NewsArticle

	sums := make(map[string]*newsAccumulator)

	for start := 0; start < len(symbols); start += e.cfg.NewsSymbolBatch {
		end := min(start+e.cfg.NewsSymbolBatch, len(symbols))
		batch := symbols[start:end]

		fetched, err := e.fetcher.FetchNews(ctx, batch, publishedAfter)
		if err != nil {
			e.log.Warn("news fetch failed, skipping batch",
				slog.Any("err", err),
				slog.Any("symbols", batch),
			)
			continue
		}

		for _, article := range fetched {
			article.RunID = runID
			articles = append(articles, article)

			for _, entity := range article.Entities {
				acc, ok := sums[entity.Symbol]
				if !ok {
					acc = &newsAccumulator{headline: article.Title}
					sums[entity.Symbol] = acc
				}
				acc.count++
				acc.sentiment += entity.SentimentScore
				acc.match += entity.MatchScore
			}
		}
	}

	stats := make(map[string]models.NewsStats, len(sums))
	for symbol, acc := range sums {
		stats[symbol] = models.NewsStats{
			ArticleCount:   acc.count,
			AvgSentiment:   acc.sentiment / float64(acc.count),
			AvgMatch:       acc.match / float64(acc.count),
			RecentHeadline: acc.headline,
		}
	}

	e.log.Info("news extraction complete",
		slog.Int("articles", len(articles)),
		slog.Int("symbols_covered", len(stats)),
	)

	return articles, stats
}

type newsAccumulator struct {
	count     int
	sentiment float64
	match     float64
	headline  string
}
