package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/vberdnik/marketetl/internal/models"
)

// StartCursor begins pagination at the first page.
const StartCursor = "start"

// Config tunes the rate-limited source client.
type Config struct {
	BaseURL   string
	APIToken  string
	PageLimit int

	// RequestTimeout bounds a single HTTP request; MaxElapsed bounds one
	// FetchPage call including all retries and backoff sleeps.
	RequestTimeout time.Duration
	MaxElapsed     time.Duration

	RatePerSecond       float64
	BackoffBase         time.Duration
	MaxRateLimitRetries int
	MaxTransientRetries int

	// Transport allows injecting a custom HTTP transport in tests.
	Transport http.RoundTripper
}

// Client issues paginated requests against the source API, pacing them with
// a token-bucket limiter and retrying throttled or transient failures with
// bounded backoff.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	log     *slog.Logger
}

// Page is one page of company records plus the position of the next one.
type Page struct {
	Records    []models.RawRecord
	Number     int
	NextCursor string
	Done       bool
}

// New builds a Client, filling zero config fields with defaults.
func New(cfg Config, log *slog.Logger) *Client {
	if cfg.PageLimit <= 0 {
		cfg.PageLimit = 50
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.MaxElapsed <= 0 {
		cfg.MaxElapsed = 2 * time.Minute
	}
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = 2
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 500 * time.Millisecond
	}
	if cfg.MaxRateLimitRetries <= 0 {
		cfg.MaxRateLimitRetries = 5
	}
	if cfg.MaxTransientRetries <= 0 {
		cfg.MaxTransientRetries = 3
	}
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Client{
		cfg: cfg,
		http: &http.Client{
			Timeout:   cfg.RequestTimeout,
			Transport: cfg.Transport,
		},
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSecond), 1),
		log:     log,
	}
}

type entityPayload struct {
	Data []struct {
		Symbol   string `json:"symbol"`
		Name     string `json:"name"`
		Type     string `json:"type"`
		Industry string `json:"industry"`
		Exchange string `json:"exchange"`
		Country  string `json:"country"`
	} `json:"data"`
}

// FetchPage retrieves one page of company entities. The cursor is opaque to
// callers: pass StartCursor first and then the NextCursor of the previous
// page. A page holding fewer than PageLimit records is the last one.
func (c *Client) FetchPage(ctx context.Context, cursor string) (*Page, error) {
	page, err := parseCursor(cursor)
	if err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("api_token", c.cfg.APIToken)
	q.Set("industries", "Technology")
	q.Set("types", "equity")
	q.Set("page", strconv.Itoa(page))

	body, err := c.doGet(ctx, "/entity/search", q)
	if err != nil {
		return nil, fmt.Errorf("fetch page %d: %w", page, err)
	}

	var payload entityPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &RequestError{StatusCode: http.StatusOK, Message: fmt.Sprintf("malformed page payload: %v", err)}
	}

	records := make([]models.RawRecord, 0, len(payload.Data))
	for _, e := range payload.Data {
		records = append(records, models.RawRecord{
			Symbol:   e.Symbol,
			Name:     e.Name,
			Type:     e.Type,
			Industry: e.Industry,
			Exchange: e.Exchange,
			Country:  e.Country,
		})
	}

	return &Page{
		Records:    records,
		Number:     page,
		NextCursor: strconv.Itoa(page + 1),
		Done:       len(records) < c.cfg.PageLimit,
	}, nil
}

type newsPayload struct {
	Data []struct {
		UUID        string `json:"uuid"`
		Title       string `json:"title"`
		Description string `json:"description"`
		URL         string `json:"url"`
		Source      string `json:"source"`
		PublishedAt string `json:"published_at"`
		Entities    []struct {
			Symbol         string  `json:"symbol"`
			SentimentScore float64 `json:"sentiment_score"`
			MatchScore     float64 `json:"match_score"`
		} `json:"entities"`
	} `json:"data"`
}

// FetchNews retrieves recent articles mentioning the given symbols, using the
// same retry policy as FetchPage.
func (c *Client) FetchNews(ctx context.Context, symbols []string, publishedAfter time.Time) ([]models.NewsArticle, error) {
	q := url.Values{}
	q.Set("api_token", c.cfg.APIToken)
	q.Set("symbols", strings.Join(symbols, ","))
	q.Set("filter_entities", "true")
	q.Set("limit", "10")
	q.Set("published_after", publishedAfter.UTC().Format("2006-01-02"))

	body, err := c.doGet(ctx, "/news/all", q)
	if err != nil {
		return nil, fmt.Errorf("fetch news for %s: %w", strings.Join(symbols, ","), err)
	}

	var payload newsPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &RequestError{StatusCode: http.StatusOK, Message: fmt.Sprintf("malformed news payload: %v", err)}
	}

	articles := make([]models.NewsArticle, 0, len(payload.Data))
	for _, a := range payload.Data {
		art := models.NewsArticle{
			ID:          a.UUID,
			Title:       a.Title,
			Description: a.Description,
			URL:         a.URL,
			Source:      a.Source,
			PublishedAt: parseTimestamp(a.PublishedAt),
		}
		for _, e := range a.Entities {
			art.Entities = append(art.Entities, models.NewsEntity{
				Symbol:         e.Symbol,
				SentimentScore: e.SentimentScore,
				MatchScore:     e.MatchScore,
			})
		}
		articles = append(articles, art)
	}

	return articles, nil
}

// doGet performs a GET with rate pacing and the retry taxonomy: 429 backs
// off exponentially, 5xx and transport errors back off linearly, any other
// 4xx fails immediately. Attempt counters are local to the call.
func (c *Client) doGet(ctx context.Context, path string, query url.Values) ([]byte, error) {
	deadline := time.Now().Add(c.cfg.MaxElapsed)
	rateLimitAttempts := 0
	transientAttempts := 0
	var lastErr error

	for {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}

		body, status, err := c.doOnce(ctx, path, query)
		switch {
		case err != nil:
			lastErr = err
		case status == http.StatusTooManyRequests:
			lastErr = fmt.Errorf("HTTP 429 from source")
		case status >= http.StatusInternalServerError:
			lastErr = fmt.Errorf("HTTP %d from source", status)
		case status >= http.StatusBadRequest:
			return nil, &RequestError{StatusCode: status, Message: strings.TrimSpace(truncate(string(body), 200))}
		default:
			return body, nil
		}

		var delay time.Duration
		if err == nil && status == http.StatusTooManyRequests {
			if rateLimitAttempts >= c.cfg.MaxRateLimitRetries {
				return nil, fmt.Errorf("%w after %d attempts: %v", ErrRateLimited, rateLimitAttempts, lastErr)
			}
			delay = c.cfg.BackoffBase << uint(rateLimitAttempts)
			rateLimitAttempts++
		} else {
			if transientAttempts >= c.cfg.MaxTransientRetries {
				return nil, fmt.Errorf("%w after %d attempts: %v", ErrTransient, transientAttempts, lastErr)
			}
			delay = c.cfg.BackoffBase * time.Duration(transientAttempts+1)
			transientAttempts++
		}

		if time.Now().Add(delay).After(deadline) {
			return nil, fmt.Errorf("%w: elapsed ceiling %s reached: %v", ErrTransient, c.cfg.MaxElapsed, lastErr)
		}

		c.log.Warn("source request failed, retrying",
			slog.Any("err", lastErr),
			slog.String("path", path),
			slog.Duration("backoff", delay),
		)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (c *Client) doOnce(ctx context.Context, path string, query url.Values) ([]byte, int, error) {
	fullURL := strings.TrimSuffix(c.cfg.BaseURL, "/") + "/" + strings.TrimPrefix(path, "/")
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("read body: %w", err)
	}

	return body, resp.StatusCode, nil
}

func parseCursor(cursor string) (int, error) {
	if cursor == "" || cursor == StartCursor {
		return 1, nil
	}
	page, err := strconv.Atoi(cursor)
	if err != nil || page < 1 {
		return 0, fmt.Errorf("invalid cursor %q", cursor)
	}
	return page, nil
}

func parseTimestamp(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}
	}

	formats := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05",
	}

	for _, f := range formats {
		if ts, err := time.Parse(f, raw); err == nil {
			return ts
		}
	}

	return time.Time{}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
