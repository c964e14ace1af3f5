package models

import "time"

// NewsEntity ties an article to one mentioned company symbol.
type NewsEntity struct {
	Symbol         string  `json:"symbol"`
	SentimentScore float64 `json:"sentiment_score"`
	MatchScore     float64 `json:"match_score"`
}

// NewsArticle is one article returned by the source news endpoint.
type NewsArticle struct {
	ID          string       `json:"id"`
	Title       string       `json:"title"`
	Description string       `json:"description"`
	URL         string       `json:"url"`
	Source      string       `json:"source"`
	PublishedAt time.Time    `json:"published_at"`
	Entities    []NewsEntity `json:"entities"`
	RunID       string       `json:"run_id"`
}

// NewsStats aggregates news coverage for a single symbol over the fetch window.
type NewsStats struct {
	ArticleCount   int
	AvgSentiment   float64
	AvgMatch       float64
	RecentHeadline string
}
