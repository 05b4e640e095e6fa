package exchange

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/uhyunpark/matchbook/pkg/app/core/mempool"
	"github.com/uhyunpark/matchbook/pkg/app/core/orderbook"
	"github.com/uhyunpark/matchbook/pkg/app/core/transaction"
	"github.com/uhyunpark/matchbook/pkg/storage"
)

func TestReadFeed(t *testing.T) {
	app := newTestApp(t, storage.NewMemTradeStore(), DefaultConfig())

	feed := strings.Join([]string{
		"# resting liquidity",
		string(orderTx(transaction.OrderPayload{Owner: "m", Nonce: "1", Side: "ask", Quantity: "2", LimitPrice: "101"})),
		"",
		"   " + string(orderTx(transaction.OrderPayload{Owner: "t", Nonce: "1", Side: "bid", Quantity: "2"})) + "  ",
	}, "\n")

	n, err := ReadFeed(context.Background(), strings.NewReader(feed), app, zap.NewNop().Sugar())
	if err != nil {
		t.Fatalf("ReadFeed() error = %v", err)
	}
	if n != 2 || app.Pending() != 2 {
		t.Fatalf("pushed %d, pending %d, want 2/2", n, app.Pending())
	}
	if res := finalize(t, app, 1, 0); len(res.Trades) != 1 || res.Rejected != 0 {
		t.Errorf("trades = %d rejected = %d, want 1/0", len(res.Trades), res.Rejected)
	}
}

func TestReadFeedCancelled(t *testing.T) {
	app := newTestApp(t, storage.NewMemTradeStore(), DefaultConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := ReadFeed(ctx, strings.NewReader("a\nb\n"), app, zap.NewNop().Sugar()); err == nil {
		t.Error("ReadFeed() on cancelled context returned nil error")
	}
}

func TestTxGeneratorProducesValidTxs(t *testing.T) {
	gen := NewTxGenerator(5, []string{sym}, 100, 42)

	seen := map[orderbook.OrderType]int{}
	for i, raw := range gen.GenerateBatch(500) {
		tx, err := transaction.ParseTransaction(raw)
		if err != nil {
			t.Fatalf("tx[%d] %s: %v", i, raw, err)
		}
		if tx.Type != transaction.TxTypeOrder {
			if got := mempool.ClassifyRaw(raw); got != mempool.TxCancel {
				t.Errorf("tx[%d] classified %v, want cancel", i, got)
			}
			continue
		}
		o, err := tx.Order.ToOrder()
		if err != nil {
			t.Fatalf("tx[%d] ToOrder: %v", i, err)
		}
		typ, err := orderbook.Classify(&o)
		if err != nil {
			t.Fatalf("tx[%d] Classify: %v", i, err)
		}
		seen[typ]++
		if o.Quantity.IsZero() {
			t.Errorf("tx[%d] has zero quantity", i)
		}
	}
	for _, typ := range []orderbook.OrderType{orderbook.Market, orderbook.Limit, orderbook.Stop, orderbook.StopLimit} {
		if seen[typ] == 0 {
			t.Errorf("no %v orders generated", typ)
		}
	}
}

func TestTxGeneratorLoad(t *testing.T) {
	app := newTestApp(t, storage.NewMemTradeStore(), DefaultConfig())
	gen := NewTxGenerator(20, []string{sym}, 100, 7)

	for h := int64(1); h <= 20; h++ {
		for _, tx := range gen.GenerateBatch(50) {
			app.PushTx(tx)
		}
		res := finalize(t, app, h, h)
		for _, tr := range res.Trades {
			if tr.Quantity == "0" {
				t.Fatalf("height %d: zero-quantity trade %+v", h, tr)
			}
		}
	}
	if app.Pending() != 0 {
		t.Errorf("pending = %d after finalize", app.Pending())
	}
}

func TestStartTxFeeder(t *testing.T) {
	app := newTestApp(t, storage.NewMemTradeStore(), DefaultConfig())
	cfg := DefaultFeederConfig()
	cfg.BatchSize = 5
	cfg.Interval = time.Millisecond

	cancel := StartTxFeeder(context.Background(), app, cfg, zap.NewNop().Sugar())
	deadline := time.Now().Add(2 * time.Second)
	for app.Pending() < 10 && time.Now().Before(deadline) {
		time.Sleep(2 * time.Millisecond)
	}
	cancel()
	if app.Pending() < 10 {
		t.Fatalf("pending = %d after feeding, want >= 10", app.Pending())
	}
	if res := finalize(t, app, 1, 1); res.Txs < 10 {
		t.Errorf("batch applied %d txs", res.Txs)
	}
}

func TestFeederMid(t *testing.T) {
	huge := new(uint256.Int).Lsh(uint256.NewInt(1), 64)
	tests := []struct {
		name        string
		ref         uint256.Int
		want        uint64
		wantClamped bool
	}{
		{"small", *uint256.NewInt(100), 100, false},
		{"at bound", *uint256.NewInt(MaxFeederMid), MaxFeederMid, false},
		{"above bound", *uint256.NewInt(MaxFeederMid + 1), MaxFeederMid, true},
		{"beyond 64 bits", *huge, MaxFeederMid, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, clamped := FeederMid(tt.ref)
			if got != tt.want || clamped != tt.wantClamped {
				t.Errorf("FeederMid(%s) = %d, %v, want %d, %v", tt.ref.Dec(), got, clamped, tt.want, tt.wantClamped)
			}
		})
	}
}

func TestTxGeneratorPriceBandAtMaxMid(t *testing.T) {
	gen := NewTxGenerator(3, []string{sym}, MaxFeederMid, 1)
	lo := uint256.NewInt(MaxFeederMid - MaxFeederMid/20)
	hi := uint256.NewInt(MaxFeederMid + MaxFeederMid/20)

	for i := 0; i < 200; i++ {
		tx, err := transaction.ParseTransaction(gen.GenerateOrder())
		if err != nil {
			t.Fatal(err)
		}
		o, err := tx.Order.ToOrder()
		if err != nil {
			t.Fatal(err)
		}
		for _, p := range []uint256.Int{o.LimitPrice, o.StopPrice} {
			noLimit, noStop := orderbook.NoLimit(o.Side), orderbook.NoStop(o.Side)
			if p.Eq(&noLimit) || p.Eq(&noStop) {
				continue
			}
			if p.Lt(lo) || p.Gt(hi) {
				t.Fatalf("order %d price %s outside [%s, %s]", i, p.Dec(), lo.Dec(), hi.Dec())
			}
		}
	}
}
