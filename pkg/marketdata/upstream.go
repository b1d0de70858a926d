// Package marketdata serves quotes, daily history and symbol search for the
// voice assistant, backed by a Yahoo-chart-style upstream with an in-memory
// TTL cache in front of it.
package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/chartvoice/chartvoice/pkg/core"
)

const defaultBaseURL = "https://query1.finance.yahoo.com"

// Quote is the latest price snapshot for one symbol.
type Quote struct {
	Symbol        string  `json:"symbol"`
	Price         float64 `json:"price"`
	PreviousClose float64 `json:"previous_close"`
	Currency      string  `json:"currency"`
	Exchange      string  `json:"exchange"`
	Time          int64   `json:"time"`
}

// Candle is one OHLCV bar. Time is unix seconds.
type Candle struct {
	Time   int64   `json:"time"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

// Match is one symbol search hit.
type Match struct {
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Exchange string `json:"exchange,omitempty"`
	Type     string `json:"type,omitempty"`
}

// UpstreamConfig configures the upstream client.
type UpstreamConfig struct {
	// BaseURL defaults to the public Yahoo chart host. Tests inject an
	// httptest server here.
	BaseURL string
	// CacheTTL bounds how long quotes, history and search results are
	// reused. Defaults to 30s.
	CacheTTL time.Duration
	// Timeout bounds one upstream request. Defaults to 10s.
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Upstream fetches market data from a Yahoo-chart-style JSON API. All fetches
// go through a TTL cache so a chatty agent does not hammer the upstream.
type Upstream struct {
	baseURL string
	httpc   *http.Client
	ttl     time.Duration
	log     *slog.Logger

	now func() time.Time

	mu    sync.Mutex
	cache map[string]cacheEntry
}

type cacheEntry struct {
	value   any
	expires time.Time
}

// NewUpstream returns an upstream client with defaults applied.
func NewUpstream(cfg UpstreamConfig) *Upstream {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	httpc := cfg.HTTPClient
	if httpc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpc = &http.Client{Timeout: timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Upstream{
		baseURL: baseURL,
		httpc:   httpc,
		ttl:     ttl,
		log:     logger.With("component", "marketdata_upstream"),
		now:     time.Now,
		cache:   make(map[string]cacheEntry),
	}
}

func (u *Upstream) cached(key string) (any, bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	entry, ok := u.cache[key]
	if !ok || u.now().After(entry.expires) {
		return nil, false
	}
	return entry.value, true
}

func (u *Upstream) store(key string, value any) {
	u.mu.Lock()
	u.cache[key] = cacheEntry{value: value, expires: u.now().Add(u.ttl)}
	u.mu.Unlock()
}

// chartResponse is the subset of the upstream chart payload this service
// reads. Quote arrays use pointers because the upstream emits nulls for
// missing bars.
type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Currency           string  `json:"currency"`
				Symbol             string  `json:"symbol"`
				ExchangeName       string  `json:"exchangeName"`
				RegularMarketTime  int64   `json:"regularMarketTime"`
				RegularMarketPrice float64 `json:"regularMarketPrice"`
				ChartPreviousClose float64 `json:"chartPreviousClose"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []*float64 `json:"open"`
					High   []*float64 `json:"high"`
					Low    []*float64 `json:"low"`
					Close  []*float64 `json:"close"`
					Volume []*float64 `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

type searchResponse struct {
	Quotes []struct {
		Symbol    string `json:"symbol"`
		ShortName string `json:"shortname"`
		LongName  string `json:"longname"`
		Exchange  string `json:"exchange"`
		QuoteType string `json:"quoteType"`
	} `json:"quotes"`
}

func (u *Upstream) getJSON(ctx context.Context, path string, params url.Values, out any) error {
	reqURL := u.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return core.NewInvalidRequestError(fmt.Sprintf("build upstream request: %v", err))
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "chartvoice/1.0")

	resp, err := u.httpc.Do(req)
	if err != nil {
		return core.NewTransportError("upstream fetch failed", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return core.NewAPIError(fmt.Sprintf("upstream returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet))))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return core.NewAPIError(fmt.Sprintf("decode upstream response: %v", err))
	}
	return nil
}

func (u *Upstream) fetchChart(ctx context.Context, symbol, rangeStr, interval string) (*chartResponse, error) {
	params := url.Values{}
	params.Set("interval", interval)
	params.Set("range", rangeStr)
	params.Set("includePrePost", "false")

	var resp chartResponse
	if err := u.getJSON(ctx, "/v8/finance/chart/"+url.PathEscape(symbol), params, &resp); err != nil {
		return nil, err
	}
	if resp.Chart.Error != nil {
		return nil, core.NewAPIError(fmt.Sprintf("upstream chart error: %s: %s", resp.Chart.Error.Code, resp.Chart.Error.Description))
	}
	if len(resp.Chart.Result) == 0 {
		return nil, core.NewNotFoundError(fmt.Sprintf("no chart data for %s", symbol))
	}
	return &resp, nil
}

// Quote returns the latest price snapshot for symbol.
func (u *Upstream) Quote(ctx context.Context, symbol string) (*Quote, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, core.NewInvalidRequestErrorWithParam("symbol is required", "symbol")
	}

	key := "quote|" + symbol
	if v, ok := u.cached(key); ok {
		return v.(*Quote), nil
	}

	resp, err := u.fetchChart(ctx, symbol, "1d", "5m")
	if err != nil {
		return nil, err
	}
	meta := resp.Chart.Result[0].Meta
	quote := &Quote{
		Symbol:        meta.Symbol,
		Price:         meta.RegularMarketPrice,
		PreviousClose: meta.ChartPreviousClose,
		Currency:      meta.Currency,
		Exchange:      meta.ExchangeName,
		Time:          meta.RegularMarketTime,
	}
	u.store(key, quote)
	return quote, nil
}

// History returns OHLCV bars for symbol. rangeStr and interval use upstream
// notation ("3mo", "1d"); blank values default to three months of daily bars.
// Bars with missing price fields are dropped.
func (u *Upstream) History(ctx context.Context, symbol, rangeStr, interval string) ([]Candle, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, core.NewInvalidRequestErrorWithParam("symbol is required", "symbol")
	}
	if rangeStr == "" {
		rangeStr = "3mo"
	}
	if interval == "" {
		interval = "1d"
	}

	key := fmt.Sprintf("history|%s|%s|%s", symbol, rangeStr, interval)
	if v, ok := u.cached(key); ok {
		return v.([]Candle), nil
	}

	resp, err := u.fetchChart(ctx, symbol, rangeStr, interval)
	if err != nil {
		return nil, err
	}
	result := resp.Chart.Result[0]
	if len(result.Indicators.Quote) == 0 {
		return nil, core.NewNotFoundError(fmt.Sprintf("no quote indicators for %s", symbol))
	}
	bars := result.Indicators.Quote[0]

	candles := make([]Candle, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		if i >= len(bars.Open) || i >= len(bars.High) || i >= len(bars.Low) || i >= len(bars.Close) {
			break
		}
		if bars.Open[i] == nil || bars.High[i] == nil || bars.Low[i] == nil || bars.Close[i] == nil {
			continue
		}
		candle := Candle{
			Time:  ts,
			Open:  *bars.Open[i],
			High:  *bars.High[i],
			Low:   *bars.Low[i],
			Close: *bars.Close[i],
		}
		if i < len(bars.Volume) && bars.Volume[i] != nil {
			candle.Volume = *bars.Volume[i]
		}
		candles = append(candles, candle)
	}
	u.store(key, candles)
	return candles, nil
}

// Search finds tradable symbols matching the free-form query.
func (u *Upstream) Search(ctx context.Context, query string) ([]Match, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, core.NewInvalidRequestErrorWithParam("query is required", "q")
	}

	key := "search|" + strings.ToLower(query)
	if v, ok := u.cached(key); ok {
		return v.([]Match), nil
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("quotesCount", "8")
	params.Set("newsCount", "0")

	var resp searchResponse
	if err := u.getJSON(ctx, "/v1/finance/search", params, &resp); err != nil {
		return nil, err
	}

	matches := make([]Match, 0, len(resp.Quotes))
	for _, q := range resp.Quotes {
		if q.Symbol == "" {
			continue
		}
		name := q.ShortName
		if name == "" {
			name = q.LongName
		}
		matches = append(matches, Match{
			Symbol:   q.Symbol,
			Name:     name,
			Exchange: q.Exchange,
			Type:     q.QuoteType,
		})
	}
	u.store(key, matches)
	return matches, nil
}
