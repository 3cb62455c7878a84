package services

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
)

// fakeAlpacaData is a hand-written alpacaDataClient
type fakeAlpacaData struct {
	snapshot *marketdata.Snapshot
	bars     []marketdata.Bar
	news     []marketdata.News
	err      error

	barsReq marketdata.GetBarsRequest
	newsReq marketdata.GetNewsRequest
}

func (f *fakeAlpacaData) GetSnapshot(symbol string, req marketdata.GetSnapshotRequest) (*marketdata.Snapshot, error) {
	return f.snapshot, f.err
}

func (f *fakeAlpacaData) GetBars(symbol string, req marketdata.GetBarsRequest) ([]marketdata.Bar, error) {
	f.barsReq = req
	return f.bars, f.err
}

func (f *fakeAlpacaData) GetNews(req marketdata.GetNewsRequest) ([]marketdata.News, error) {
	f.newsReq = req
	return f.news, f.err
}

func TestAlpaca_GetQuote(t *testing.T) {
	useTestRegistry(t)
	day := time.Date(2024, 5, 10, 4, 0, 0, 0, time.UTC)
	service := newAlpacaServiceWithClient(&fakeAlpacaData{snapshot: &marketdata.Snapshot{
		LatestTrade:  &marketdata.Trade{Price: 110},
		DailyBar:     &marketdata.Bar{Open: 101, High: 111, Low: 99, Close: 109, Volume: 1200, Timestamp: day},
		PrevDailyBar: &marketdata.Bar{Close: 100},
	}})

	res := service.GetQuote(context.Background(), "AAPL")
	if !res.OK() {
		t.Fatalf("expected quote, got %v", res.Status())
	}
	q := res.Value()
	if q.CurrentPrice != 110 || q.PreviousClose != 100 || q.Change != 10 {
		t.Errorf("unexpected quote %+v", q)
	}
	if q.ChangePercent != "10.0000%" {
		t.Errorf("ChangePercent = %q", q.ChangePercent)
	}
	if q.Volume != 1200 || q.LatestTradingDay != "2024-05-10" {
		t.Errorf("unexpected volume or day %+v", q)
	}
}

func TestAlpaca_GetQuote_Misses(t *testing.T) {
	useTestRegistry(t)

	service := newAlpacaServiceWithClient(&fakeAlpacaData{snapshot: &marketdata.Snapshot{}})
	if res := service.GetQuote(context.Background(), "NOPE"); res.Status() != StatusNotFound {
		t.Errorf("expected not found, got %v", res.Status())
	}

	service = newAlpacaServiceWithClient(&fakeAlpacaData{err: errors.New("dial tcp: connection refused")})
	if res := service.GetQuote(context.Background(), "AAPL"); res.Status() != StatusTransportError {
		t.Errorf("expected transport error, got %v", res.Status())
	}

	service = newAlpacaServiceWithClient(&fakeAlpacaData{err: errors.New("status code 429: too many requests")})
	if res := service.GetQuote(context.Background(), "AAPL"); res.Status() != StatusRateLimited {
		t.Errorf("expected rate limited, got %v", res.Status())
	}
}

func TestAlpaca_GetTimeSeries(t *testing.T) {
	useTestRegistry(t)
	data := &fakeAlpacaData{bars: []marketdata.Bar{
		{Close: 185.64, Timestamp: time.Date(2024, 1, 2, 5, 0, 0, 0, time.UTC)},
		{Close: 184.25, Timestamp: time.Date(2024, 1, 3, 5, 0, 0, 0, time.UTC)},
	}}
	service := newAlpacaServiceWithClient(data)
	now := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)
	service.now = func() time.Time { return now }

	res := service.GetTimeSeries(context.Background(), "AAPL", OutputCompact)
	if !res.OK() {
		t.Fatalf("expected series, got %v", res.Status())
	}
	ts := res.Value()
	if ts.Len() != 2 || ts.Dates[0] != "2024-01-02" || ts.Prices[1] != 184.25 {
		t.Errorf("unexpected series %+v", ts)
	}
	if data.barsReq.TimeFrame != marketdata.OneDay {
		t.Errorf("unexpected timeframe %v", data.barsReq.TimeFrame)
	}
	if !data.barsReq.Start.Equal(now.AddDate(0, 0, -145)) {
		t.Errorf("compact start = %v", data.barsReq.Start)
	}
}

func TestAlpaca_GetTimeSeries_Empty(t *testing.T) {
	useTestRegistry(t)
	service := newAlpacaServiceWithClient(&fakeAlpacaData{})
	if res := service.GetTimeSeries(context.Background(), "AAPL", OutputFull); res.Status() != StatusNotFound {
		t.Errorf("expected not found, got %v", res.Status())
	}
}

func TestAlpaca_Unsupported(t *testing.T) {
	service := newAlpacaServiceWithClient(&fakeAlpacaData{})
	if res := service.GetOverview(context.Background(), "AAPL"); res.Status() != StatusNotFound || res.Value() != nil {
		t.Errorf("overview should be not found, got %v", res.Status())
	}
	if res := service.Search(context.Background(), "apple"); res.Status() != StatusNotFound || res.Value() != nil {
		t.Errorf("search should be not found, got %v", res.Status())
	}
}

func TestAlpaca_GetNews(t *testing.T) {
	useTestRegistry(t)
	data := &fakeAlpacaData{news: []marketdata.News{{
		Headline:  "Apple unveils new iPad",
		Summary:   "Tablet refresh",
		URL:       "https://example.com/ipad",
		Author:    "Benzinga Newsdesk",
		CreatedAt: time.Date(2024, 5, 7, 14, 30, 0, 0, time.UTC),
	}}}
	service := newAlpacaServiceWithClient(data)

	res := service.GetNews(context.Background(), NewsQuery{Tickers: []string{"AAPL"}})
	if !res.OK() || len(res.Value()) != 1 {
		t.Fatalf("expected 1 article, got %v", res.Status())
	}
	item := res.Value()[0]
	if item.Title != "Apple unveils new iPad" || item.TimePublished != "20240507T143000" || item.Source != "Benzinga" {
		t.Errorf("unexpected article %+v", item)
	}
	if data.newsReq.TotalLimit != DefaultNewsFetchLimit || len(data.newsReq.Symbols) != 1 {
		t.Errorf("unexpected news request %+v", data.newsReq)
	}
}

func TestAlpaca_GetNews_FromServer(t *testing.T) {
	useTestRegistry(t)
	var gotPath, gotSymbols, gotKey string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotSymbols = r.URL.Query().Get("symbols")
		gotKey = r.Header.Get("APCA-API-KEY-ID")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"news": [{
			"id": 38781032,
			"author": "Benzinga Newsdesk",
			"created_at": "2024-05-07T14:30:00Z",
			"updated_at": "2024-05-07T14:31:00Z",
			"headline": "Apple unveils new iPad",
			"summary": "Tablet refresh",
			"content": "",
			"images": [],
			"url": "https://example.com/ipad",
			"symbols": ["AAPL"]
		}], "next_page_token": null}`))
	}))
	defer server.Close()

	service := NewAlpacaService("key-id", "secret", WithAlpacaBaseURL(server.URL), WithAlpacaTimeout(5*time.Second))
	res := service.GetNews(context.Background(), NewsQuery{Tickers: []string{"AAPL"}, Limit: 3})
	if !res.OK() || len(res.Value()) != 1 {
		t.Fatalf("expected 1 article, got %v %v", res.Status(), res.Detail())
	}
	item := res.Value()[0]
	if item.Title != "Apple unveils new iPad" || item.Source != "Benzinga" || item.TimePublished != "20240507T143000" {
		t.Errorf("unexpected article %+v", item)
	}
	if !strings.HasSuffix(gotPath, "/news") || gotSymbols != "AAPL" || gotKey != "key-id" {
		t.Errorf("unexpected request path=%q symbols=%q key=%q", gotPath, gotSymbols, gotKey)
	}
}

func TestAlpaca_TimeoutApplied(t *testing.T) {
	useTestRegistry(t)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	service := NewAlpacaService("key-id", "secret", WithAlpacaBaseURL(server.URL), WithAlpacaTimeout(50*time.Millisecond))
	start := time.Now()
	res := service.GetQuote(context.Background(), "AAPL")
	if res.Status() != StatusTransportError {
		t.Errorf("status = %v, want transport error", res.Status())
	}
	if elapsed := time.Since(start); elapsed > 250*time.Millisecond {
		t.Errorf("request took %v, timeout not applied", elapsed)
	}
}
