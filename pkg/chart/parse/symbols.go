package parse

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/chartvoice/chartvoice/pkg/chart"
)

// SymbolMatch is one ranked result from the live symbol-search capability.
type SymbolMatch struct {
	Symbol string `json:"symbol"`
	Name   string `json:"name"`
}

// Searcher is the live symbol-search capability. It must accept a context so
// a superseding parse can cancel a stale lookup.
type Searcher interface {
	Search(ctx context.Context, query string) ([]SymbolMatch, error)
}

// Resolution is the ephemeral result of resolving a raw token to a tradable
// symbol.
type Resolution struct {
	Symbol      string
	Asset       chart.AssetType
	DisplayName string
}

// companySymbols maps lowercase company names to tickers. Consulted after
// live search, before the crypto map.
var companySymbols = map[string]string{
	"apple":              "AAPL",
	"tesla":              "TSLA",
	"microsoft":          "MSFT",
	"google":             "GOOGL",
	"alphabet":           "GOOGL",
	"amazon":             "AMZN",
	"nvidia":             "NVDA",
	"meta":               "META",
	"facebook":           "META",
	"netflix":            "NFLX",
	"amd":                "AMD",
	"intel":              "INTC",
	"coinbase":           "COIN",
	"palantir":           "PLTR",
	"berkshire":          "BRK.B",
	"berkshire hathaway": "BRK.B",
	"disney":             "DIS",
	"boeing":             "BA",
	"jpmorgan":           "JPM",
	"visa":               "V",
	"walmart":            "WMT",
	"exxon":              "XOM",
	"ford":               "F",
	"gamestop":           "GME",
	"robinhood":          "HOOD",
	"spy":                "SPY",
	"s&p 500":            "SPY",
	"nasdaq":             "QQQ",
}

// cryptoSymbols maps lowercase coin names to their base tickers. The traded
// pair appends a quote suffix, USD unless the utterance names another.
var cryptoSymbols = map[string]string{
	"bitcoin":  "BTC",
	"ethereum": "ETH",
	"ether":    "ETH",
	"solana":   "SOL",
	"dogecoin": "DOGE",
	"cardano":  "ADA",
	"ripple":   "XRP",
	"xrp":      "XRP",
	"uniswap":  "UNI",
	"polkadot": "DOT",
	"litecoin": "LTC",
	"chainlink": "LINK",
	"avalanche": "AVAX",
	"polygon":  "MATIC",
	"shiba":    "SHIB",
}

// cryptoBases is the set of base tickers that also look like stock symbols.
var cryptoBases = map[string]bool{}

func init() {
	for _, base := range cryptoSymbols {
		cryptoBases[base] = true
	}
}

// cryptoContextWords indicate the speaker means a coin, not a stock, when a
// token exists in both vocabularies.
var cryptoContextWords = []string{
	"crypto", "coin", "token", "blockchain", "defi", "bitcoin", "ethereum",
	"btc", "eth", "altcoin", "binance", "staking",
}

var quoteCurrencies = []string{"USDT", "USDC", "BUSD", "EUR", "GBP"}

var (
	stockTickerRe = regexp.MustCompile(`^[A-Z]{1,5}$`)
	cryptoPairRe  = regexp.MustCompile(`^[A-Z]{2,6}-[A-Z]{3,4}$`)
	// Tickers with embedded punctuation that the plain pattern rejects.
	specialTickers = map[string]bool{"BRK.A": true, "BRK.B": true, "BF.A": true, "BF.B": true}
)

// HasCryptoContext reports whether the utterance carries crypto vocabulary.
func HasCryptoContext(utterance string) bool {
	lower := strings.ToLower(utterance)
	for _, word := range cryptoContextWords {
		if strings.Contains(lower, word) {
			return true
		}
	}
	return false
}

func quoteSuffix(utterance string) string {
	upper := strings.ToUpper(utterance)
	for _, quote := range quoteCurrencies {
		if strings.Contains(upper, quote) {
			return quote
		}
	}
	return "USD"
}

type cachedResolution struct {
	res Resolution
	ok  bool
	at  time.Time
}

// Resolver turns raw candidate tokens into tradable symbols. Resolution
// order: live search, company map, crypto map, direct validation. A token
// matching none of these resolves to nothing; the caller emits no command.
type Resolver struct {
	searcher Searcher
	ttl      time.Duration
	now      func() time.Time
	log      *slog.Logger

	mu    sync.Mutex
	cache map[string]cachedResolution
}

// NewResolver creates a resolver. searcher may be nil; resolution then
// starts at the static maps. ttl bounds the resolution cache, default 5m.
func NewResolver(searcher Searcher, ttl time.Duration, logger *slog.Logger) *Resolver {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		searcher: searcher,
		ttl:      ttl,
		now:      time.Now,
		log:      logger.With("component", "symbols"),
		cache:    make(map[string]cachedResolution),
	}
}

// Resolve maps raw to a symbol. utterance supplies context for the
// stock/crypto ambiguity default and quote-currency selection. The second
// return is false when the token resolves to nothing; resolution never
// guesses.
func (r *Resolver) Resolve(ctx context.Context, raw, utterance string) (Resolution, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Resolution{}, false
	}
	cryptoCtx := HasCryptoContext(utterance)
	key := strings.ToLower(raw)
	if cryptoCtx {
		key += "|crypto"
	}

	r.mu.Lock()
	if cached, ok := r.cache[key]; ok && r.now().Sub(cached.at) < r.ttl {
		r.mu.Unlock()
		return cached.res, cached.ok
	}
	r.mu.Unlock()

	res, ok := r.resolve(ctx, raw, utterance, cryptoCtx)

	r.mu.Lock()
	r.cache[key] = cachedResolution{res: res, ok: ok, at: r.now()}
	r.mu.Unlock()
	return res, ok
}

func (r *Resolver) resolve(ctx context.Context, raw, utterance string, cryptoCtx bool) (Resolution, bool) {
	lower := strings.ToLower(raw)

	if r.searcher != nil {
		matches, err := r.searcher.Search(ctx, raw)
		if err != nil {
			r.log.Debug("symbol search unavailable", "query", raw, "error", err)
		} else if len(matches) > 0 && matches[0].Symbol != "" {
			return Resolution{
				Symbol:      strings.ToUpper(matches[0].Symbol),
				Asset:       chart.AssetStock,
				DisplayName: matches[0].Name,
			}, true
		}
	}

	if symbol, ok := companySymbols[lower]; ok && !cryptoCtx {
		return Resolution{Symbol: symbol, Asset: chart.AssetStock, DisplayName: raw}, true
	}
	if base, ok := cryptoSymbols[lower]; ok {
		return Resolution{
			Symbol:      base + "-" + quoteSuffix(utterance),
			Asset:       chart.AssetCrypto,
			DisplayName: raw,
		}, true
	}
	// Company map again for crypto-context utterances naming a company
	// outright; the name is unambiguous even with crypto vocabulary around.
	if symbol, ok := companySymbols[lower]; ok {
		return Resolution{Symbol: symbol, Asset: chart.AssetStock, DisplayName: raw}, true
	}

	upper := strings.ToUpper(raw)
	if specialTickers[upper] {
		return Resolution{Symbol: upper, Asset: chart.AssetStock}, true
	}
	if cryptoPairRe.MatchString(upper) {
		return Resolution{Symbol: upper, Asset: chart.AssetCrypto}, true
	}
	if stockTickerRe.MatchString(upper) {
		// A bare ticker in both vocabularies defaults to stock unless the
		// utterance carries crypto context.
		if cryptoCtx && cryptoBases[upper] {
			return Resolution{Symbol: upper + "-" + quoteSuffix(utterance), Asset: chart.AssetCrypto}, true
		}
		return Resolution{Symbol: upper, Asset: chart.AssetStock}, true
	}
	return Resolution{}, false
}
