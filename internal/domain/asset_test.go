package domain_test

import (
	"errors"
	"testing"

	"github.com/evrimko/synthd/internal/domain"
)

func TestParseRegistry(t *testing.T) {
	reg, err := domain.ParseRegistry("WETH=ETH-USD,WBTC=BTC-USD")
	if err != nil {
		t.Fatalf("ParseRegistry: %v", err)
	}
	if reg.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", reg.Len())
	}

	weth, err := reg.Lookup("WETH")
	if err != nil {
		t.Fatalf("Lookup(WETH): %v", err)
	}
	if weth.FeedID != "ETH-USD" {
		t.Errorf("WETH feed = %q, want ETH-USD", weth.FeedID)
	}
}

func TestRegistry_LookupUnknown(t *testing.T) {
	reg, err := domain.ParseRegistry("WETH=ETH-USD")
	if err != nil {
		t.Fatalf("ParseRegistry: %v", err)
	}
	if _, err := reg.Lookup("DOGE"); !errors.Is(err, domain.ErrInvalidAsset) {
		t.Errorf("Lookup(DOGE) err = %v, want ErrInvalidAsset", err)
	}
	if reg.Has("DOGE") {
		t.Error("Has(DOGE) should be false")
	}
}

func TestRegistry_LookupIsCaseInsensitive(t *testing.T) {
	reg, err := domain.ParseRegistry("weth=ETH-USD")
	if err != nil {
		t.Fatalf("ParseRegistry: %v", err)
	}
	if _, err := reg.Lookup("weth"); err != nil {
		t.Errorf("lowercase lookup should resolve: %v", err)
	}
}

func TestParseRegistry_Invalid(t *testing.T) {
	cases := []string{
		"",
		"WETH",               // missing feed
		"WETH=",              // empty feed
		"=ETH-USD",           // empty symbol
		"WETH=E,WETH=E2",     // duplicate symbol
		"SUSD=SELF",          // cannot collateralise the issued unit itself
	}
	for _, in := range cases {
		if _, err := domain.ParseRegistry(in); err == nil {
			t.Errorf("ParseRegistry(%q) should fail", in)
		}
	}
}
