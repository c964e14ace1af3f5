package source_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/vberdnik/marketetl/internal/source"
)

func testConfig(baseURL string) source.Config {
	return source.Config{
		BaseURL:             baseURL,
		APIToken:            "test-token",
		PageLimit:           2,
		RequestTimeout:      2 * time.Second,
		MaxElapsed:          5 * time.Second,
		RatePerSecond:       1000,
		BackoffBase:         time.Millisecond,
		MaxRateLimitRetries: 3,
		MaxTransientRetries: 2,
	}
}

func TestFetchPagePagination(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/entity/search", r.URL.Path)
		require.Equal(t, "test-token", r.URL.Query().Get("api_token"))
		require.Equal(t, "Technology", r.URL.Query().Get("industries"))
		require.Equal(t, "equity", r.URL.Query().Get("types"))

		switch r.URL.Query().Get("page") {
		case "1":
			fmt.Fprint(w, `{"data":[
				{"symbol":"AAPL","name":"Apple Inc","type":"equity","industry":"Technology","exchange":"NASDAQ","country":"us"},
				{"symbol":"MSFT","name":"Microsoft","type":"equity","industry":"Technology","exchange":"NASDAQ","country":"us"}
			]}`)
		case "2":
			fmt.Fprint(w, `{"data":[
				{"symbol":"0700.HK","name":"Tencent","type":"equity","industry":"Technology","exchange":"HKEX","country":"hk"}
			]}`)
		default:
			t.Fatalf("unexpected page %q", r.URL.Query().Get("page"))
		}
	}))
	defer srv.Close()

	c := source.New(testConfig(srv.URL), nil)

	first, err := c.FetchPage(context.Background(), source.StartCursor)
	require.NoError(t, err)
	require.Len(t, first.Records, 2)
	require.Equal(t, 1, first.Number)
	require.Equal(t, "2", first.NextCursor)
	require.False(t, first.Done)
	require.Equal(t, "AAPL", first.Records[0].Symbol)
	require.Equal(t, "Apple Inc", first.Records[0].Name)

	second, err := c.FetchPage(context.Background(), first.NextCursor)
	require.NoError(t, err)
	require.Len(t, second.Records, 1)
	require.Equal(t, 2, second.Number)
	require.True(t, second.Done)
}

func TestFetchPageInvalidCursor(t *testing.T) {
	c := source.New(testConfig("http://localhost:1"), nil)

	_, err := c.FetchPage(context.Background(), "not-a-page")
	require.Error(t, err)

	_, err = c.FetchPage(context.Background(), "0")
	require.Error(t, err)
}

func TestFetchPageRateLimitedThenRecovers(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, `{"data":[{"symbol":"AAPL","name":"Apple Inc","type":"equity","industry":"Technology","exchange":"NASDAQ","country":"us"}]}`)
	}))
	defer srv.Close()

	c := source.New(testConfig(srv.URL), nil)

	page, err := c.FetchPage(context.Background(), source.StartCursor)
	require.NoError(t, err)
	require.Len(t, page.Records, 1)
	require.Equal(t, int32(3), calls.Load())
}

func TestFetchPageRateLimitExhausted(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := source.New(testConfig(srv.URL), nil)

	_, err := c.FetchPage(context.Background(), source.StartCursor)
	require.ErrorIs(t, err, source.ErrRateLimited)
	require.Equal(t, int32(4), calls.Load())
}

func TestFetchPageBackoffNonDecreasing(t *testing.T) {
	var times []time.Time
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		times = append(times, time.Now())
		if len(times) <= 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, `{"data":[]}`)
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.BackoffBase = 20 * time.Millisecond

	c := source.New(cfg, nil)
	_, err := c.FetchPage(context.Background(), source.StartCursor)
	require.NoError(t, err)
	require.Len(t, times, 4)

	var gaps []time.Duration
	for i := 1; i < len(times); i++ {
		gaps = append(gaps, times[i].Sub(times[i-1]))
	}
	for i := 1; i < len(gaps); i++ {
		require.GreaterOrEqual(t, gaps[i], gaps[i-1])
	}
}

func TestFetchPageServerErrorExhausted(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := source.New(testConfig(srv.URL), nil)

	_, err := c.FetchPage(context.Background(), source.StartCursor)
	require.ErrorIs(t, err, source.ErrTransient)
	require.Equal(t, int32(3), calls.Load())
}

func TestFetchPageClientErrorFailsImmediately(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":{"code":"invalid_api_token"}}`)
	}))
	defer srv.Close()

	c := source.New(testConfig(srv.URL), nil)

	_, err := c.FetchPage(context.Background(), source.StartCursor)
	require.Error(t, err)
	require.NotErrorIs(t, err, source.ErrRateLimited)
	require.NotErrorIs(t, err, source.ErrTransient)

	var reqErr *source.RequestError
	require.True(t, errors.As(err, &reqErr))
	require.Equal(t, http.StatusUnauthorized, reqErr.StatusCode)
	require.Equal(t, int32(1), calls.Load())
}

func TestFetchPageContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.BackoffBase = time.Second

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	c := source.New(cfg, nil)
	_, err := c.FetchPage(ctx, source.StartCursor)
	require.ErrorIs(t, err, context.Canceled)
}

func TestFetchNews(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/news/all", r.URL.Path)
		require.Equal(t, "AAPL,MSFT", r.URL.Query().Get("symbols"))
		require.Equal(t, "true", r.URL.Query().Get("filter_entities"))
		require.NotEmpty(t, r.URL.Query().Get("published_after"))

		fmt.Fprint(w, `{"data":[{
			"uuid":"a-1",
			"title":"Apple ships new chip",
			"description":"Details inside",
			"url":"https://example.com/a-1",
			"source":"example.com",
			"published_at":"2026-08-20T10:30:00.000000Z",
			"entities":[{"symbol":"AAPL","sentiment_score":0.61,"match_score":0.9}]
		}]}`)
	}))
	defer srv.Close()

	c := source.New(testConfig(srv.URL), nil)

	articles, err := c.FetchNews(context.Background(), []string{"AAPL", "MSFT"}, time.Now().Add(-7*24*time.Hour))
	require.NoError(t, err)
	require.Len(t, articles, 1)

	art := articles[0]
	require.Equal(t, "a-1", art.ID)
	require.Equal(t, "Apple ships new chip", art.Title)
	require.Equal(t, 2026, art.PublishedAt.Year())
	require.Len(t, art.Entities, 1)
	require.Equal(t, "AAPL", art.Entities[0].Symbol)
	require.InDelta(t, 0.61, art.Entities[0].SentimentScore, 1e-9)
}

func TestFetchPageMalformedPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data": "not-an-array"`)
	}))
	defer srv.Close()

	c := source.New(testConfig(srv.URL), nil)

	_, err := c.FetchPage(context.Background(), source.StartCursor)
	var reqErr *source.RequestError
	require.True(t, errors.As(err, &reqErr))
}
