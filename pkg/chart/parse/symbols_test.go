package parse

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/chartvoice/chartvoice/pkg/chart"
)

type fakeSearcher struct {
	calls   int
	matches []SymbolMatch
	err     error
}

func (s *fakeSearcher) Search(ctx context.Context, query string) ([]SymbolMatch, error) {
	s.calls++
	return s.matches, s.err
}

func TestResolver_LiveSearchIsAuthoritative(t *testing.T) {
	searcher := &fakeSearcher{matches: []SymbolMatch{{Symbol: "tsla", Name: "Tesla, Inc."}}}
	r := NewResolver(searcher, 0, nil)

	res, ok := r.Resolve(context.Background(), "tesla", "show me tesla")
	if !ok {
		t.Fatal("expected resolution")
	}
	if res.Symbol != "TSLA" || res.Asset != chart.AssetStock || res.DisplayName != "Tesla, Inc." {
		t.Fatalf("res = %+v", res)
	}
}

func TestResolver_SearchFailureFallsBackToCompanyMap(t *testing.T) {
	searcher := &fakeSearcher{err: errors.New("search down")}
	r := NewResolver(searcher, 0, nil)

	res, ok := r.Resolve(context.Background(), "tesla", "show me tesla")
	if !ok || res.Symbol != "TSLA" {
		t.Fatalf("res = %+v, ok = %t", res, ok)
	}
}

func TestResolver_CompanyMapWithoutSearcher(t *testing.T) {
	r := NewResolver(nil, 0, nil)
	res, ok := r.Resolve(context.Background(), "Nvidia", "pull up nvidia")
	if !ok || res.Symbol != "NVDA" || res.Asset != chart.AssetStock {
		t.Fatalf("res = %+v, ok = %t", res, ok)
	}
}

func TestResolver_CryptoNameGetsUSDSuffix(t *testing.T) {
	r := NewResolver(nil, 0, nil)
	res, ok := r.Resolve(context.Background(), "bitcoin", "show me bitcoin")
	if !ok || res.Symbol != "BTC-USD" || res.Asset != chart.AssetCrypto {
		t.Fatalf("res = %+v, ok = %t", res, ok)
	}
}

func TestResolver_QuoteCurrencySubstitution(t *testing.T) {
	r := NewResolver(nil, 0, nil)
	res, ok := r.Resolve(context.Background(), "ethereum", "show me ethereum against USDT")
	if !ok || res.Symbol != "ETH-USDT" {
		t.Fatalf("res = %+v, ok = %t", res, ok)
	}
}

func TestResolver_AmbiguousTickerDefaultsToStock(t *testing.T) {
	r := NewResolver(nil, 0, nil)

	// UNI exists in both vocabularies; no crypto context means stock.
	res, ok := r.Resolve(context.Background(), "UNI", "show me UNI")
	if !ok || res.Symbol != "UNI" || res.Asset != chart.AssetStock {
		t.Fatalf("res = %+v, ok = %t", res, ok)
	}
}

func TestResolver_AmbiguousTickerWithCryptoContext(t *testing.T) {
	r := NewResolver(nil, 0, nil)

	res, ok := r.Resolve(context.Background(), "UNI", "show me the UNI token on the crypto market")
	if !ok || res.Symbol != "UNI-USD" || res.Asset != chart.AssetCrypto {
		t.Fatalf("res = %+v, ok = %t", res, ok)
	}
}

func TestResolver_DirectTickerForms(t *testing.T) {
	r := NewResolver(nil, 0, nil)
	tests := []struct {
		raw   string
		want  string
		asset chart.AssetType
	}{
		{"AAPL", "AAPL", chart.AssetStock},
		{"msft", "MSFT", chart.AssetStock},
		{"BTC-USD", "BTC-USD", chart.AssetCrypto},
		{"sol-usdt", "SOL-USDT", chart.AssetCrypto},
		{"BRK.B", "BRK.B", chart.AssetStock},
	}
	for _, tt := range tests {
		res, ok := r.Resolve(context.Background(), tt.raw, tt.raw)
		if !ok || res.Symbol != tt.want || res.Asset != tt.asset {
			t.Fatalf("%q -> %+v, ok = %t", tt.raw, res, ok)
		}
	}
}

func TestResolver_UnresolvableTokenNeverGuesses(t *testing.T) {
	r := NewResolver(nil, 0, nil)
	for _, raw := range []string{"floopiness", "TOOLONGTICKER", "123", ""} {
		if res, ok := r.Resolve(context.Background(), raw, raw); ok {
			t.Fatalf("%q resolved to %+v, want drop", raw, res)
		}
	}
}

func TestResolver_CachesWithinTTL(t *testing.T) {
	searcher := &fakeSearcher{matches: []SymbolMatch{{Symbol: "TSLA", Name: "Tesla"}}}
	r := NewResolver(searcher, time.Minute, nil)

	base := time.Unix(1_700_000_000, 0)
	now := base
	r.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		if _, ok := r.Resolve(context.Background(), "tesla", "tesla"); !ok {
			t.Fatalf("resolve %d failed", i)
		}
	}
	if searcher.calls != 1 {
		t.Fatalf("search calls = %d, want 1", searcher.calls)
	}

	now = base.Add(2 * time.Minute)
	if _, ok := r.Resolve(context.Background(), "tesla", "tesla"); !ok {
		t.Fatal("resolve after expiry failed")
	}
	if searcher.calls != 2 {
		t.Fatalf("search calls = %d, want 2", searcher.calls)
	}
}

func TestHasCryptoContext(t *testing.T) {
	if HasCryptoContext("show me apple stock") {
		t.Fatal("false positive")
	}
	if !HasCryptoContext("how is the defi market doing") {
		t.Fatal("false negative")
	}
}
