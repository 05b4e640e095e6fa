package orderbook

// ActivateStops promotes pending stop orders whose trigger has been crossed by the
// last traded price. Buy stops fire when last >= trigger, lowest trigger first;
// sell stops fire when last <= trigger, highest trigger first. Bids are activated
// before asks and orders sharing a trigger keep their arrival order.
//
// A Stop is re-admitted as a Market order and a StopLimit as a Limit order; owner,
// nonce, filled quantity, expiry and the all-or-nothing flag carry over. The
// returned snapshots are the re-admitted orders.
//
// Activation is a separate phase: callers run it after MatchNext returns nil for
// both sides and match again if anything was activated.
func (ob *OrderBook) ActivateStops() []Order {
	var out []Order
	out = ob.activate(Bid, out)
	out = ob.activate(Ask, out)
	return out
}

func (ob *OrderBook) activate(side Side, out []Order) []Order {
	stops := ob.stopSide(side)
	for {
		lv, ok := stops.top()
		if !ok || !ob.crossed(side, lv) {
			return out
		}
		stops.popTop()
		for _, o := range lv.orders {
			delete(ob.index, o.key())
			promoted := *o
			promoted.StopPrice = NoStop(side)
			// structurally valid by construction: the limit field is untouched
			if err := ob.Submit(promoted); err == nil {
				out = append(out, promoted)
			}
		}
	}
}

func (ob *OrderBook) crossed(side Side, lv *level) bool {
	if side == Bid {
		return !ob.lastPrice.Lt(&lv.price)
	}
	return !ob.lastPrice.Gt(&lv.price)
}
