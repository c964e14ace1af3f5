package cleaning

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/vberdnik/marketetl/internal/models"
	"github.com/vberdnik/marketetl/internal/quality"
)

var whitespace = regexp.MustCompile(`\s+`)

// RejectRecorder receives records that the cleaner drops, with the reason,
// so they can be reconciled later. Implementations must be best-effort: a
// failing sink never fails the stage. A nil recorder disables recording.
type RejectRecorder interface {
	Record(ctx context.Context, r models.RawRecord, reason string)
}

// Reject reasons.
const (
	ReasonMalformed = "malformed"
	ReasonDuplicate = "duplicate"
)

// Cleaner normalizes raw records, resolves lookups, scores quality, and
// deduplicates by symbol. It never fails on a single bad record.
type Cleaner struct {
	scorer  *quality.Scorer
	rejects RejectRecorder
	log     *slog.Logger
	now     func() time.Time
}

// Result summarizes one cleaning pass.
type Result struct {
	Records    []models.CleanedRecord
	Input      int
	Dropped    int
	Duplicates int
	AvgQuality float64
}

// New builds a Cleaner. rejects may be nil.
func New(rejects RejectRecorder, log *slog.Logger) *Cleaner {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Cleaner{
		scorer:  quality.NewScorer(KnownCountryCodes()),
		rejects: rejects,
		log:     log,
		now:     time.Now,
	}
}

type candidate struct {
	record   models.CleanedRecord
	raw      models.RawRecord
	position int
}

// Clean transforms raw records into cleaned ones. news carries per-symbol
// coverage aggregates merged into the output; pass nil when news was not
// extracted. Output order follows the first appearance of each symbol.
func (c *Cleaner) Clean(ctx context.Context, raws []models.RawRecord, news map[string]models.NewsStats) *Result {
	res := &Result{Input: len(raws)}

	best := make(map[string]candidate, len(raws))
	order := make([]string, 0, len(raws))

	for i, raw := range raws {
		norm := c.normalize(raw)
		if strings.TrimSpace(norm.Symbol) == "" {
			res.Dropped++
			c.reject(ctx, raw, ReasonMalformed)
			continue
		}

		score, complete := c.scorer.Score(norm)
		rec := c.build(norm, score, complete)

		prev, seen := best[rec.Symbol]
		if !seen {
			best[rec.Symbol] = candidate{record: rec, raw: raw, position: i}
			order = append(order, rec.Symbol)
			continue
		}

		res.Duplicates++
		if betterThan(rec, i, prev) {
			c.reject(ctx, prev.raw, ReasonDuplicate)
			best[rec.Symbol] = candidate{record: rec, raw: raw, position: i}
		} else {
			c.reject(ctx, raw, ReasonDuplicate)
		}
	}

	total := 0.0
	res.Records = make([]models.CleanedRecord, 0, len(order))
	for _, symbol := range order {
		rec := best[symbol].record
		if stats, ok := news[symbol]; ok {
			rec.ArticleCount = stats.ArticleCount
			rec.AvgSentiment = stats.AvgSentiment
		}
		res.Records = append(res.Records, rec)
		total += rec.QualityScore
	}
	if len(res.Records) > 0 {
		res.AvgQuality = total / float64(len(res.Records))
	}

	c.log.Info("cleaning complete",
		slog.Int("input", res.Input),
		slog.Int("output", len(res.Records)),
		slog.Int("dropped", res.Dropped),
		slog.Int("duplicates", res.Duplicates),
		slog.Float64("avg_quality", res.AvgQuality),
	)

	return res
}

// normalize returns a copy of the record with canonical casing, collapsed
// whitespace, and country alias fixes applied. Extraction metadata is
// carried over untouched.
func (c *Cleaner) normalize(raw models.RawRecord) models.RawRecord {
	out := raw
	out.Symbol = strings.ToUpper(strings.TrimSpace(raw.Symbol))
	out.Name = normalizeName(raw.Name)
	out.Industry = strings.TrimSpace(raw.Industry)
	out.Exchange = strings.TrimSpace(raw.Exchange)

	country := strings.ToUpper(strings.TrimSpace(raw.Country))
	if fixed, ok := countryFixes[country]; ok {
		country = fixed
	}
	out.Country = country
	return out
}

func (c *Cleaner) build(norm models.RawRecord, score float64, complete bool) models.CleanedRecord {
	countryName, region := lookupCountry(norm.Country)
	ticker, exchangeCode := splitSymbol(norm.Symbol)

	exchangeName, ok := exchangeNames[exchangeCode]
	if !ok {
		exchangeName = "Other Exchange"
	}
	if exchangeCode == "" {
		exchangeCode = "UNKNOWN"
	}

	return models.CleanedRecord{
		Symbol:       norm.Symbol,
		Name:         norm.Name,
		Industry:     norm.Industry,
		Country:      norm.Country,
		CountryName:  countryName,
		Region:       region,
		ExchangeCode: exchangeCode,
		Ticker:       ticker,
		ExchangeName: exchangeName,
		Category:     classifySector(norm.Name),
		QualityScore: score,
		IsComplete:   complete,
		RecordHash:   recordHash(norm),
		SourcePage:   norm.SourcePage,
		RunID:        norm.RunID,
		ETLTimestamp: c.now().UTC(),
	}
}

func (c *Cleaner) reject(ctx context.Context, raw models.RawRecord, reason string) {
	if c.rejects != nil {
		c.rejects.Record(ctx, raw, reason)
	}
}

// betterThan reports whether the new candidate should replace the previous
// one: higher score wins, ties go to the earliest page and then the earliest
// position in the input sequence.
func betterThan(rec models.CleanedRecord, position int, prev candidate) bool {
	if rec.QualityScore != prev.record.QualityScore {
		return rec.QualityScore > prev.record.QualityScore
	}
	if rec.SourcePage != prev.record.SourcePage {
		return rec.SourcePage < prev.record.SourcePage
	}
	return position < prev.position
}

func normalizeName(name string) string {
	name = strings.TrimSpace(name)
	name = strings.Trim(name, `"'`)
	name = whitespace.ReplaceAllString(name, " ")
	for _, r := range nameReplacements {
		name = strings.ReplaceAll(name, r.old, r.new)
	}
	return strings.TrimSpace(name)
}

// splitSymbol separates a ticker from its exchange suffix: AAPL -> (AAPL, ""),
// 0700.HK -> (0700, HK).
func splitSymbol(symbol string) (ticker, exchange string) {
	idx := strings.LastIndex(symbol, ".")
	if idx < 0 {
		return symbol, ""
	}
	return symbol[:idx], symbol[idx+1:]
}

func recordHash(r models.RawRecord) string {
	sum := sha256.Sum256(fmt.Appendf(nil, "%s_%s_%s_%s", r.Symbol, r.Name, r.Country, r.Industry))
	return hex.EncodeToString(sum[:])
}
