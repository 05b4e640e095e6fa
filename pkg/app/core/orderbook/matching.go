package orderbook

import "github.com/holiman/uint256"

// Fill is one trade against a resting maker. Maker is a snapshot taken after the fill.
type Fill struct {
	Maker    Order
	Price    uint256.Int
	Quantity uint256.Int
}

// Match is the outcome of one matching step: the taker's state after the step
// and the fills it produced, in execution order.
type Match struct {
	Taker Order
	Fills []Fill
}

// Filled returns the total quantity traded in the step.
func (m *Match) Filled() uint256.Int {
	var sum uint256.Int
	for i := range m.Fills {
		sum.Add(&sum, &m.Fills[i].Quantity)
	}
	return sum
}

// step is a planned, not yet applied, fill.
type step struct {
	lvl   *level
	maker *Order
	qty   uint256.Int
}

type sweep struct {
	steps []step
	need  uint256.Int // taker need left after all steps
	empty []*level    // levels found empty on first probe
	spent []step      // makers with nothing left, dropped without a fill
}

// plan walks the opposing side in price-time priority without mutating anything.
// A Bid taker walks asks ascending; an Ask taker walks bids descending.
func (ob *OrderBook) plan(taker *Order) sweep {
	sw := sweep{need: taker.Remaining()}
	if sw.need.IsZero() {
		return sw
	}

	book := ob.limitSide(taker.Side.Opposite())
	book.walk(taker.Side == Ask, func(lv *level) bool {
		if len(lv.orders) == 0 {
			sw.empty = append(sw.empty, lv)
			return true
		}
		for _, maker := range lv.orders {
			avail := maker.Remaining()
			if avail.IsZero() {
				sw.spent = append(sw.spent, step{lvl: lv, maker: maker})
				continue
			}
			if avail.Gt(&sw.need) {
				if maker.OnlyFullFill {
					// would be left partially filled: skip untouched
					continue
				}
				sw.steps = append(sw.steps, step{lvl: lv, maker: maker, qty: sw.need})
				sw.need.Clear()
				return false
			}
			sw.steps = append(sw.steps, step{lvl: lv, maker: maker, qty: avail})
			sw.need.Sub(&sw.need, &avail)
			if sw.need.IsZero() {
				return false
			}
		}
		return true
	})
	return sw
}

// commit applies a planned sweep: maker fills, removal of fully consumed makers,
// deletion of emptied levels, and the last traded price.
func (ob *OrderBook) commit(opposing Side, sw sweep) []Fill {
	book := ob.limitSide(opposing)
	fills := make([]Fill, 0, len(sw.steps))
	var touched []*level

	for _, st := range sw.steps {
		st.maker.FilledQuantity.Add(&st.maker.FilledQuantity, &st.qty)
		fills = append(fills, Fill{Maker: *st.maker, Price: st.lvl.price, Quantity: st.qty})
		if st.maker.IsFilled() {
			delete(ob.index, st.maker.key())
		}
		if len(touched) == 0 || touched[len(touched)-1] != st.lvl {
			touched = append(touched, st.lvl)
		}
		ob.lastPrice = st.lvl.price
	}

	for _, lv := range touched {
		kept := lv.orders[:0]
		for _, o := range lv.orders {
			if o.IsFilled() {
				delete(ob.index, o.key())
				continue
			}
			kept = append(kept, o)
		}
		for i := len(kept); i < len(lv.orders); i++ {
			lv.orders[i] = nil
		}
		lv.orders = kept
		if len(lv.orders) == 0 {
			book.deleteLevel(lv)
		}
	}
	ob.prune(opposing, sw)
	return fills
}

// MatchNext attempts one matching step for the market orders of side. Takers are
// tried in arrival order; an all-or-nothing taker that cannot be filled in full
// is passed over, untouched and without touching any maker, so a later taker may
// go first. It returns nil when there is nothing to do.
func (ob *OrderBook) MatchNext(side Side) *Match {
	q := ob.marketQueue(side)
	for cursor := 0; cursor < len(*q); cursor++ {
		taker := (*q)[cursor]
		before := taker.Remaining()
		sw := ob.plan(taker)

		switch {
		case before.IsZero():
			// nothing left to trade: drop it and let the next taker go
			*q = append((*q)[:cursor], (*q)[cursor+1:]...)
			delete(ob.index, taker.key())
			cursor--
			continue
		case sw.need.IsZero():
			fills := ob.commit(side.Opposite(), sw)
			taker.FilledQuantity = taker.Quantity
			*q = append((*q)[:cursor], (*q)[cursor+1:]...)
			delete(ob.index, taker.key())
			return &Match{Taker: *taker, Fills: fills}
		case taker.OnlyFullFill:
			ob.prune(side.Opposite(), sw)
			continue
		case len(sw.steps) == 0:
			ob.prune(side.Opposite(), sw)
			return nil
		default:
			fills := ob.commit(side.Opposite(), sw)
			var traded uint256.Int
			traded.Sub(&before, &sw.need)
			taker.FilledQuantity.Add(&taker.FilledQuantity, &traded)
			return &Match{Taker: *taker, Fills: fills}
		}
	}
	return nil
}

// prune drops the spent makers and empty levels a sweep found. It runs after
// the walk so the tree is never mutated during it.
func (ob *OrderBook) prune(s Side, sw sweep) {
	book := ob.limitSide(s)
	for _, st := range sw.spent {
		delete(ob.index, st.maker.key())
		if st.lvl.remove(st.maker) && len(st.lvl.orders) == 0 {
			book.deleteLevel(st.lvl)
		}
	}
	for _, lv := range sw.empty {
		book.deleteLevel(lv)
	}
}
