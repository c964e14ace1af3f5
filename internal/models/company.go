package models

import "time"

// RawRecord is one company entity as returned by the source API, stamped with
// extraction metadata. Immutable once produced by the extractor.
type RawRecord struct {
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	Industry string `json:"industry"`
	Exchange string `json:"exchange"`
	Country  string `json:"country"`

	SourcePage int       `json:"source_page"`
	FetchedAt  time.Time `json:"fetched_at"`
	RunID      string    `json:"run_id"`
}

// CleanedRecord is the normalized, scored form of a RawRecord, ready for the
// warehouse. Read-only once constructed by the cleaner.
type CleanedRecord struct {
	Symbol       string
	Name         string
	Industry     string
	Country      string
	CountryName  string
	Region       string
	ExchangeCode string
	Ticker       string
	ExchangeName string
	Category     string

	ArticleCount int
	AvgSentiment float64

	QualityScore float64
	IsComplete   bool
	RecordHash   string

	SourcePage   int
	RunID        string
	ETLTimestamp time.Time
}
