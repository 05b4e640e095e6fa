package market

import (
	"testing"

	"github.com/holiman/uint256"

	"github.com/uhyunpark/matchbook/pkg/app/core/orderbook"
)

func TestNewMarketSeedsBook(t *testing.T) {
	m, err := NewMarket("BTC-USDT", Params{ReferencePrice: *uint256.NewInt(100)})
	if err != nil {
		t.Fatalf("NewMarket() error = %v", err)
	}
	if lp := m.Book.LastPrice(); !lp.Eq(uint256.NewInt(100)) {
		t.Errorf("LastPrice() = %s, want 100", lp.Dec())
	}
	if _, err := NewMarket("", Params{}); err == nil {
		t.Error("empty symbol accepted")
	}
	bad := Params{MinOrderSize: *uint256.NewInt(10), MaxOrderSize: *uint256.NewInt(5)}
	if _, err := NewMarket("X", bad); err == nil {
		t.Error("min > max accepted")
	}
}

func TestValidateOrder(t *testing.T) {
	m, _ := NewMarket("BTC-USDT", Params{
		ReferencePrice: *uint256.NewInt(100),
		MinOrderSize:   *uint256.NewInt(2),
		MaxOrderSize:   *uint256.NewInt(1000),
	})

	tests := []struct {
		name    string
		qty     uint64
		status  MarketStatus
		wantErr bool
	}{
		{"valid order", 10, Active, false},
		{"zero quantity", 0, Active, true},
		{"below min order size", 1, Active, true},
		{"above max order size", 1001, Active, true},
		{"market not active (paused)", 10, Paused, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m.setStatus(tt.status)
			o := &orderbook.Order{Side: orderbook.Bid, Quantity: *uint256.NewInt(tt.qty)}
			err := m.ValidateOrder(o)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateOrder() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRegistry(t *testing.T) {
	r := NewMarketRegistry()
	for _, sym := range []string{"ETH-USDT", "BTC-USDT"} {
		m, _ := NewMarket(sym, Params{})
		if err := r.RegisterMarket(m); err != nil {
			t.Fatalf("RegisterMarket(%s) error = %v", sym, err)
		}
	}
	dup, _ := NewMarket("BTC-USDT", Params{})
	if err := r.RegisterMarket(dup); err == nil {
		t.Error("duplicate symbol accepted")
	}
	if err := r.RegisterMarket(nil); err == nil {
		t.Error("nil market accepted")
	}

	list := r.ListMarkets()
	if len(list) != 2 || list[0].Symbol != "BTC-USDT" {
		t.Errorf("ListMarkets() = %v, want sorted by symbol", list)
	}

	// books are independent
	a, _ := r.GetMarket("BTC-USDT")
	b, _ := r.GetMarket("ETH-USDT")
	if a.Book == b.Book {
		t.Fatal("markets share a book")
	}

	if err := r.RemoveMarket("BTC-USDT"); err == nil {
		t.Error("removed an active market")
	}
	if err := r.SetStatus("BTC-USDT", Settled); err != nil {
		t.Fatalf("SetStatus() error = %v", err)
	}
	if err := r.SetStatus("BTC-USDT", Active); err == nil {
		t.Error("left terminal Settled state")
	}
	if err := r.RemoveMarket("BTC-USDT"); err != nil {
		t.Fatalf("RemoveMarket() error = %v", err)
	}
	if _, err := r.GetMarket("BTC-USDT"); err == nil {
		t.Error("removed market still found")
	}
	if r.Count() != 1 {
		t.Errorf("Count() = %d, want 1", r.Count())
	}
	if syms := r.Symbols(); len(syms) != 1 || syms[0] != "ETH-USDT" {
		t.Errorf("Symbols() = %v after removal", syms)
	}
}

func TestRegistryKeepsSymbolOrder(t *testing.T) {
	r := NewMarketRegistry()
	for _, sym := range []string{"SOL-USDT", "BTC-USDT", "XRP-USDT", "ETH-USDT", "ADA-USDT"} {
		m, _ := NewMarket(sym, Params{})
		if err := r.RegisterMarket(m); err != nil {
			t.Fatal(err)
		}
	}
	want := []string{"ADA-USDT", "BTC-USDT", "ETH-USDT", "SOL-USDT", "XRP-USDT"}
	for i, m := range r.ListMarkets() {
		if m.Symbol != want[i] {
			t.Fatalf("ListMarkets()[%d] = %s, want %s", i, m.Symbol, want[i])
		}
	}
}

func TestSetStatusTransitions(t *testing.T) {
	tests := []struct {
		name    string
		path    []MarketStatus
		wantErr bool
	}{
		{"pause", []MarketStatus{Paused}, false},
		{"pause and resume", []MarketStatus{Paused, Active}, false},
		{"same status", []MarketStatus{Active}, false},
		{"settle from paused", []MarketStatus{Paused, Settled}, false},
		{"resume settled", []MarketStatus{Settled, Active}, true},
		{"pause settled", []MarketStatus{Settled, Paused}, true},
		{"unknown status", []MarketStatus{MarketStatus(9)}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewMarketRegistry()
			m, _ := NewMarket("BTC-USDT", Params{})
			_ = r.RegisterMarket(m)

			var err error
			for _, st := range tt.path {
				if err = r.SetStatus("BTC-USDT", st); err != nil {
					break
				}
			}
			if (err != nil) != tt.wantErr {
				t.Fatalf("SetStatus(%v) error = %v, wantErr %v", tt.path, err, tt.wantErr)
			}
			if !tt.wantErr && m.Status() != tt.path[len(tt.path)-1] {
				t.Errorf("Status() = %s, want %s", m.Status(), tt.path[len(tt.path)-1])
			}
		})
	}
	if err := NewMarketRegistry().SetStatus("NOPE", Paused); err == nil {
		t.Error("SetStatus() on unknown market succeeded")
	}
}

func TestValidSymbol(t *testing.T) {
	tests := []struct {
		symbol  string
		wantErr bool
	}{
		{"BTC-USDT", false},
		{"eth_usdc.perp", false},
		{"BTC/USD", false},
		{"", true},
		{"A:1", true},
		{"BTC USDT", true},
		{"ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456", true},
	}
	for _, tt := range tests {
		t.Run(tt.symbol, func(t *testing.T) {
			_, err := NewMarket(tt.symbol, Params{})
			if (err != nil) != tt.wantErr {
				t.Errorf("NewMarket(%q) error = %v, wantErr %v", tt.symbol, err, tt.wantErr)
			}
		})
	}
	if err := NewMarketRegistry().RegisterMarket(&Market{Symbol: "A:1"}); err == nil {
		t.Error("RegisterMarket() accepted a symbol containing ':'")
	}
}
