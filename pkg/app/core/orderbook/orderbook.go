package orderbook

import (
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

// slot records where a live order is held, so removal does not scan the book.
type slot struct {
	kind  OrderType
	side  Side
	price uint256.Int
	order *Order
}

// OrderBook is the matching kernel for one instrument. It is not safe for
// concurrent use; callers serialize access.
type OrderBook struct {
	bids *limitSide
	asks *limitSide

	// pending stop and stop-limit orders keyed by trigger price
	stopBids *stopSide
	stopAsks *stopSide

	// arrival-ordered market orders awaiting execution
	marketBids []*Order
	marketAsks []*Order

	index map[orderKey]slot

	lastPrice uint256.Int // most recent traded price
}

// NewOrderBook creates an empty book whose last traded price is seeded with reference.
func NewOrderBook(reference uint256.Int) *OrderBook {
	return &OrderBook{
		bids:      newLimitSide(),
		asks:      newLimitSide(),
		stopBids:  newStopSide(&MinPriceHeap{}),
		stopAsks:  newStopSide(&MaxPriceHeap{}),
		index:     make(map[orderKey]slot),
		lastPrice: reference,
	}
}

func (ob *OrderBook) limitSide(s Side) *limitSide {
	if s == Bid {
		return ob.bids
	}
	return ob.asks
}

func (ob *OrderBook) stopSide(s Side) *stopSide {
	if s == Bid {
		return ob.stopBids
	}
	return ob.stopAsks
}

func (ob *OrderBook) marketQueue(s Side) *[]*Order {
	if s == Bid {
		return &ob.marketBids
	}
	return &ob.marketAsks
}

// Submit classifies o and stores a copy in the container for its type.
// Only the encoding of the order type is validated; business limits are the caller's.
func (ob *OrderBook) Submit(o Order) error {
	kind, err := Classify(&o)
	if err != nil {
		return err
	}
	if o.FilledQuantity.Gt(&o.Quantity) {
		return fmt.Errorf("%w: filled %s exceeds quantity %s", ErrInvalidOrder,
			o.FilledQuantity.Dec(), o.Quantity.Dec())
	}
	if _, dup := ob.index[o.key()]; dup {
		return fmt.Errorf("%w: owner %s nonce %s", ErrDuplicateOrder, o.Owner, o.Nonce.Dec())
	}

	held := &o
	sl := slot{kind: kind, side: o.Side, order: held}
	switch kind {
	case Market:
		q := ob.marketQueue(o.Side)
		*q = append(*q, held)
	case Limit:
		sl.price = o.LimitPrice
		ob.limitSide(o.Side).push(o.LimitPrice, held)
	case Stop, StopLimit:
		sl.price = o.StopPrice
		ob.stopSide(o.Side).push(o.StopPrice, held)
	}
	ob.index[o.key()] = sl
	return nil
}

// Remove takes the order identified by (owner, nonce) out of whichever container
// holds it and returns its last state. Cancellation and expiry go through here.
func (ob *OrderBook) Remove(owner string, nonce uint256.Int) (Order, bool) {
	k := orderKey{owner: owner, nonce: nonce}
	sl, ok := ob.index[k]
	if !ok {
		return Order{}, false
	}

	switch sl.kind {
	case Market:
		q := ob.marketQueue(sl.side)
		for i, o := range *q {
			if o == sl.order {
				*q = append((*q)[:i], (*q)[i+1:]...)
				break
			}
		}
	case Limit:
		ob.limitSide(sl.side).remove(sl.price, sl.order)
	default:
		ob.stopSide(sl.side).remove(sl.price, sl.order)
	}
	delete(ob.index, k)
	return *sl.order, true
}

// Get returns a snapshot of a live order.
func (ob *OrderBook) Get(owner string, nonce uint256.Int) (Order, bool) {
	sl, ok := ob.index[orderKey{owner: owner, nonce: nonce}]
	if !ok {
		return Order{}, false
	}
	return *sl.order, true
}

// Expired returns snapshots of orders whose nonzero expire timestamp is <= now.
// The book does not remove them; the caller decides and uses Remove.
func (ob *OrderBook) Expired(now uint64) []Order {
	var out []Order
	ob.forEach(func(o *Order) {
		if o.ExpireTimestamp != 0 && o.ExpireTimestamp <= now {
			out = append(out, *o)
		}
	})
	return out
}

// forEach visits every held order in a deterministic order:
// asks, bids, stop asks, stop bids, market asks, market bids.
func (ob *OrderBook) forEach(fn func(*Order)) {
	visit := func(lv *level) bool {
		for _, o := range lv.orders {
			fn(o)
		}
		return true
	}
	ob.asks.walk(false, visit)
	ob.bids.walk(true, visit)
	for _, lv := range ob.stopAsks.sorted() {
		visit(lv)
	}
	for _, lv := range ob.stopBids.sorted() {
		visit(lv)
	}
	for _, o := range ob.marketAsks {
		fn(o)
	}
	for _, o := range ob.marketBids {
		fn(o)
	}
}

// Len returns the number of live orders held by the book.
func (ob *OrderBook) Len() int { return len(ob.index) }

// LastPrice returns the most recent traded price, or the reference price before any trade.
func (ob *OrderBook) LastPrice() uint256.Int { return ob.lastPrice }

// BestBid returns the highest resting bid price.
func (ob *OrderBook) BestBid() (uint256.Int, bool) { return ob.bids.best(true) }

// BestAsk returns the lowest resting ask price.
func (ob *OrderBook) BestAsk() (uint256.Int, bool) { return ob.asks.best(false) }

// Bids returns bid levels sorted high to low (best bid first).
func (ob *OrderBook) Bids() []PriceLevel { return ob.bids.levels(true) }

// Asks returns ask levels sorted low to high (best ask first).
func (ob *OrderBook) Asks() []PriceLevel { return ob.asks.levels(false) }

// StopBids returns buy-stop levels in trigger order (lowest trigger first).
func (ob *OrderBook) StopBids() []PriceLevel { return stopViews(ob.stopBids) }

// StopAsks returns sell-stop levels in trigger order (highest trigger first).
func (ob *OrderBook) StopAsks() []PriceLevel { return stopViews(ob.stopAsks) }

func stopViews(s *stopSide) []PriceLevel {
	lvs := s.sorted()
	out := make([]PriceLevel, 0, len(lvs))
	for _, lv := range lvs {
		out = append(out, lv.view())
	}
	return out
}

// MarketQueue returns snapshots of the pending market orders of side, oldest first.
func (ob *OrderBook) MarketQueue(side Side) []Order {
	q := *ob.marketQueue(side)
	out := make([]Order, len(q))
	for i, o := range q {
		out[i] = *o
	}
	return out
}

// OrdersAt returns snapshots of the resting limit orders at price, oldest first.
func (ob *OrderBook) OrdersAt(side Side, price uint256.Int) []Order {
	lv, ok := ob.limitSide(side).get(price)
	if !ok {
		return nil
	}
	out := make([]Order, len(lv.orders))
	for i, o := range lv.orders {
		out[i] = *o
	}
	return out
}

// StateHash is a Keccak256 digest over the last price and every held order in
// container order. Two books fed the same sequence have the same hash.
func (ob *OrderBook) StateHash() common.Hash {
	buf := make([]byte, 0, 32+len(ob.index)*192)
	lp := ob.lastPrice.Bytes32()
	buf = append(buf, lp[:]...)
	ob.forEach(func(o *Order) {
		buf = binary.BigEndian.AppendUint32(buf, uint32(len(o.Owner)))
		buf = append(buf, o.Owner...)
		for _, v := range []*uint256.Int{&o.Nonce, &o.Quantity, &o.FilledQuantity, &o.LimitPrice, &o.StopPrice} {
			b := v.Bytes32()
			buf = append(buf, b[:]...)
		}
		buf = append(buf, byte(o.Side))
		if o.OnlyFullFill {
			buf = append(buf, 1)
		} else {
			buf = append(buf, 0)
		}
	})
	return crypto.Keccak256Hash(buf)
}
