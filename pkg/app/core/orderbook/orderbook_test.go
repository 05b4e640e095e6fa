package orderbook

import (
	"errors"
	"testing"

	"github.com/holiman/uint256"
)

func u(n uint64) uint256.Int { return *uint256.NewInt(n) }

func limitOrder(owner string, nonce uint64, side Side, price, qty uint64) Order {
	return Order{
		Owner:      owner,
		Nonce:      u(nonce),
		Quantity:   u(qty),
		LimitPrice: u(price),
		StopPrice:  NoStop(side),
		Side:       side,
	}
}

func marketOrder(owner string, nonce uint64, side Side, qty uint64) Order {
	return Order{
		Owner:      owner,
		Nonce:      u(nonce),
		Quantity:   u(qty),
		LimitPrice: NoLimit(side),
		StopPrice:  NoStop(side),
		Side:       side,
	}
}

func stopOrder(owner string, nonce uint64, side Side, stop, qty uint64) Order {
	o := marketOrder(owner, nonce, side, qty)
	o.StopPrice = u(stop)
	return o
}

func stopLimitOrder(owner string, nonce uint64, side Side, stop, limit, qty uint64) Order {
	o := stopOrder(owner, nonce, side, stop, qty)
	o.LimitPrice = u(limit)
	return o
}

func mustSubmit(t *testing.T, ob *OrderBook, o Order) {
	t.Helper()
	if err := ob.Submit(o); err != nil {
		t.Fatalf("Submit(%v) error = %v", o, err)
	}
}

// checkInvariants asserts 0 <= filled <= quantity for every held order.
func checkInvariants(t *testing.T, ob *OrderBook) {
	t.Helper()
	ob.forEach(func(o *Order) {
		if o.FilledQuantity.Gt(&o.Quantity) {
			t.Errorf("order %v has filled > quantity", *o)
		}
	})
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name  string
		order Order
		want  OrderType
	}{
		{"bid market", marketOrder("a", 1, Bid, 1), Market},
		{"bid limit", limitOrder("a", 1, Bid, 100, 1), Limit},
		{"bid stop", stopOrder("a", 1, Bid, 105, 1), Stop},
		{"bid stop limit", stopLimitOrder("a", 1, Bid, 105, 106, 1), StopLimit},
		{"ask market", marketOrder("a", 1, Ask, 1), Market},
		{"ask limit", limitOrder("a", 1, Ask, 100, 1), Limit},
		{"ask stop", stopOrder("a", 1, Ask, 95, 1), Stop},
		{"ask stop limit", stopLimitOrder("a", 1, Ask, 95, 94, 1), StopLimit},
		{"bid limit at zero is a real price", limitOrder("a", 1, Bid, 0, 1), Limit},
		{"ask stop at zero is a real trigger", stopOrder("a", 1, Ask, 0, 1), Stop},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Classify(&tt.order)
			if err != nil {
				t.Fatalf("Classify() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Classify() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestClassifyUnknownSide(t *testing.T) {
	o := marketOrder("a", 1, Bid, 1)
	o.Side = 0
	if _, err := Classify(&o); !errors.Is(err, ErrInvalidOrder) {
		t.Fatalf("Classify() error = %v, want ErrInvalidOrder", err)
	}
}

func TestSubmitRouting(t *testing.T) {
	ob := NewOrderBook(u(100))

	mustSubmit(t, ob, marketOrder("m1", 1, Bid, 5))
	mustSubmit(t, ob, marketOrder("m2", 1, Ask, 5))
	mustSubmit(t, ob, limitOrder("l1", 1, Bid, 99, 5))
	mustSubmit(t, ob, limitOrder("l2", 1, Ask, 101, 5))
	mustSubmit(t, ob, stopOrder("s1", 1, Bid, 105, 5))
	mustSubmit(t, ob, stopLimitOrder("s2", 1, Ask, 95, 94, 5))

	if got := len(ob.MarketQueue(Bid)); got != 1 {
		t.Errorf("market bids = %d, want 1", got)
	}
	if got := len(ob.MarketQueue(Ask)); got != 1 {
		t.Errorf("market asks = %d, want 1", got)
	}
	if bids := ob.Bids(); len(bids) != 1 || !bids[0].Price.Eq(uint256.NewInt(99)) {
		t.Errorf("bids = %v, want one level at 99", bids)
	}
	if asks := ob.Asks(); len(asks) != 1 || !asks[0].Price.Eq(uint256.NewInt(101)) {
		t.Errorf("asks = %v, want one level at 101", asks)
	}
	if stops := ob.StopBids(); len(stops) != 1 || !stops[0].Price.Eq(uint256.NewInt(105)) {
		t.Errorf("stop bids = %v, want one level at 105", stops)
	}
	if stops := ob.StopAsks(); len(stops) != 1 || !stops[0].Price.Eq(uint256.NewInt(95)) {
		t.Errorf("stop asks = %v, want one level at 95", stops)
	}
	if ob.Len() != 6 {
		t.Errorf("Len() = %d, want 6", ob.Len())
	}
}

func TestSubmitRejects(t *testing.T) {
	ob := NewOrderBook(u(100))
	mustSubmit(t, ob, limitOrder("a", 1, Ask, 101, 5))

	tests := []struct {
		name  string
		order Order
		want  error
	}{
		{"unknown side", Order{Owner: "b", Side: 3}, ErrInvalidOrder},
		{"filled above quantity", func() Order {
			o := limitOrder("b", 1, Ask, 101, 5)
			o.FilledQuantity = u(6)
			return o
		}(), ErrInvalidOrder},
		{"same owner and nonce", limitOrder("a", 1, Bid, 99, 1), ErrDuplicateOrder},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := ob.Submit(tt.order); !errors.Is(err, tt.want) {
				t.Errorf("Submit() error = %v, want %v", err, tt.want)
			}
		})
	}
	if ob.Len() != 1 {
		t.Errorf("rejected orders were stored: Len() = %d", ob.Len())
	}
}

func TestSubmitCopiesOrder(t *testing.T) {
	ob := NewOrderBook(u(100))
	o := limitOrder("a", 1, Ask, 101, 5)
	mustSubmit(t, ob, o)
	o.Quantity = u(1)

	got, ok := ob.Get("a", u(1))
	if !ok {
		t.Fatal("order not found")
	}
	if !got.Quantity.Eq(uint256.NewInt(5)) {
		t.Errorf("book observed caller mutation: qty = %s", got.Quantity.Dec())
	}
}

func TestLevelFIFOAndOrdering(t *testing.T) {
	ob := NewOrderBook(u(100))
	mustSubmit(t, ob, limitOrder("a", 1, Ask, 103, 1))
	mustSubmit(t, ob, limitOrder("b", 1, Ask, 101, 2))
	mustSubmit(t, ob, limitOrder("c", 1, Ask, 101, 3))
	mustSubmit(t, ob, limitOrder("d", 1, Bid, 97, 1))
	mustSubmit(t, ob, limitOrder("e", 1, Bid, 99, 1))

	asks := ob.Asks()
	if len(asks) != 2 || !asks[0].Price.Eq(uint256.NewInt(101)) || !asks[1].Price.Eq(uint256.NewInt(103)) {
		t.Fatalf("asks not ascending: %v", asks)
	}
	if !asks[0].Quantity.Eq(uint256.NewInt(5)) || asks[0].Orders != 2 {
		t.Errorf("level 101 = %+v, want qty 5 over 2 orders", asks[0])
	}
	bids := ob.Bids()
	if len(bids) != 2 || !bids[0].Price.Eq(uint256.NewInt(99)) {
		t.Fatalf("bids not descending: %v", bids)
	}

	at := ob.OrdersAt(Ask, u(101))
	if len(at) != 2 || at[0].Owner != "b" || at[1].Owner != "c" {
		t.Errorf("level 101 order = %v, want b then c", at)
	}

	best, ok := ob.BestAsk()
	if !ok || !best.Eq(uint256.NewInt(101)) {
		t.Errorf("BestAsk() = %s, %v", best.Dec(), ok)
	}
	best, ok = ob.BestBid()
	if !ok || !best.Eq(uint256.NewInt(99)) {
		t.Errorf("BestBid() = %s, %v", best.Dec(), ok)
	}
}

func TestRemove(t *testing.T) {
	ob := NewOrderBook(u(100))
	mustSubmit(t, ob, limitOrder("a", 1, Ask, 101, 1))
	mustSubmit(t, ob, limitOrder("b", 1, Ask, 101, 1))
	mustSubmit(t, ob, marketOrder("c", 1, Bid, 1))
	mustSubmit(t, ob, stopOrder("d", 1, Bid, 110, 1))

	if _, ok := ob.Remove("a", u(1)); !ok {
		t.Fatal("Remove(a) missed")
	}
	if at := ob.OrdersAt(Ask, u(101)); len(at) != 1 || at[0].Owner != "b" {
		t.Errorf("level 101 after remove = %v", at)
	}
	if _, ok := ob.Remove("b", u(1)); !ok {
		t.Fatal("Remove(b) missed")
	}
	if len(ob.Asks()) != 0 {
		t.Errorf("emptied level still present: %v", ob.Asks())
	}
	if _, ok := ob.Remove("c", u(1)); !ok || len(ob.MarketQueue(Bid)) != 0 {
		t.Errorf("market order not removed")
	}
	if _, ok := ob.Remove("d", u(1)); !ok || len(ob.StopBids()) != 0 {
		t.Errorf("stop order not removed")
	}
	if _, ok := ob.Remove("d", u(1)); ok {
		t.Error("second Remove reported success")
	}
	if ob.Len() != 0 {
		t.Errorf("Len() = %d, want 0", ob.Len())
	}

	// a removed key can be reused
	mustSubmit(t, ob, limitOrder("a", 1, Bid, 90, 1))
}

func TestExpired(t *testing.T) {
	ob := NewOrderBook(u(100))
	o1 := limitOrder("a", 1, Ask, 101, 1)
	o1.ExpireTimestamp = 50
	o2 := limitOrder("b", 1, Ask, 101, 1)
	o2.ExpireTimestamp = 150
	o3 := stopOrder("c", 1, Bid, 110, 1)
	o3.ExpireTimestamp = 10
	mustSubmit(t, ob, o1)
	mustSubmit(t, ob, o2)
	mustSubmit(t, ob, o3)
	mustSubmit(t, ob, limitOrder("never", 1, Ask, 101, 1))

	got := ob.Expired(100)
	if len(got) != 2 {
		t.Fatalf("Expired(100) = %v, want 2 orders", got)
	}
	if ob.Len() != 4 {
		t.Errorf("Expired must not remove orders")
	}
}

func TestStateHashDeterministic(t *testing.T) {
	build := func() *OrderBook {
		ob := NewOrderBook(u(100))
		mustSubmit(t, ob, limitOrder("a", 1, Ask, 101, 4))
		mustSubmit(t, ob, limitOrder("b", 1, Bid, 99, 4))
		mustSubmit(t, ob, stopOrder("c", 1, Bid, 110, 1))
		return ob
	}
	a, b := build(), build()
	if a.StateHash() != b.StateHash() {
		t.Fatal("identical books hash differently")
	}
	mustSubmit(t, b, marketOrder("d", 1, Bid, 1))
	if a.StateHash() == b.StateHash() {
		t.Fatal("different books hash the same")
	}
}
