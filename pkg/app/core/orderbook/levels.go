package orderbook

import (
	"container/heap"
	"sort"

	"github.com/google/btree"
	"github.com/holiman/uint256"
)

const btreeDegree = 32

// level is the FIFO queue of resting orders sharing one exact price.
type level struct {
	price  uint256.Int
	orders []*Order
}

func levelLess(a, b *level) bool { return a.price.Lt(&b.price) }

// PriceLevel is an aggregated, read-only view of one level.
type PriceLevel struct {
	Price    uint256.Int
	Quantity uint256.Int // total remaining qty at this price level
	Orders   int
}

func (l *level) view() PriceLevel {
	pl := PriceLevel{Price: l.price, Orders: len(l.orders)}
	for _, o := range l.orders {
		rem := o.Remaining()
		pl.Quantity.Add(&pl.Quantity, &rem)
	}
	return pl
}

// remove drops o from the queue, keeping the relative order of the others.
func (l *level) remove(o *Order) bool {
	for i, cur := range l.orders {
		if cur == o {
			l.orders = append(l.orders[:i], l.orders[i+1:]...)
			return true
		}
	}
	return false
}

// limitSide holds resting limit orders of one side, keyed by limit price.
// The tree is ordered ascending; bids are walked with Descend.
type limitSide struct {
	tree *btree.BTreeG[*level]
}

func newLimitSide() *limitSide {
	return &limitSide{tree: btree.NewG(btreeDegree, levelLess)}
}

func (s *limitSide) get(p uint256.Int) (*level, bool) {
	return s.tree.Get(&level{price: p})
}

func (s *limitSide) push(p uint256.Int, o *Order) {
	lv, ok := s.get(p)
	if !ok {
		lv = &level{price: p}
		s.tree.ReplaceOrInsert(lv)
	}
	lv.orders = append(lv.orders, o)
}

func (s *limitSide) remove(p uint256.Int, o *Order) bool {
	lv, ok := s.get(p)
	if !ok || !lv.remove(o) {
		return false
	}
	if len(lv.orders) == 0 {
		s.tree.Delete(lv)
	}
	return true
}

func (s *limitSide) deleteLevel(lv *level) { s.tree.Delete(lv) }

func (s *limitSide) len() int { return s.tree.Len() }

// walk visits levels ascending or descending until fn returns false.
func (s *limitSide) walk(descending bool, fn func(*level) bool) {
	if descending {
		s.tree.Descend(fn)
		return
	}
	s.tree.Ascend(fn)
}

func (s *limitSide) best(descending bool) (uint256.Int, bool) {
	var (
		lv *level
		ok bool
	)
	if descending {
		lv, ok = s.tree.Max()
	} else {
		lv, ok = s.tree.Min()
	}
	if !ok {
		return uint256.Int{}, false
	}
	return lv.price, true
}

func (s *limitSide) levels(descending bool) []PriceLevel {
	var out []PriceLevel
	s.walk(descending, func(lv *level) bool {
		if len(lv.orders) > 0 {
			out = append(out, lv.view())
		}
		return true
	})
	return out
}

type priceHeap interface {
	heap.Interface
	Peek() uint256.Int
	At(i int) uint256.Int
}

func (h MinPriceHeap) At(i int) uint256.Int { return h[i] }
func (h MaxPriceHeap) At(i int) uint256.Int { return h[i] }

// stopSide holds pending stop and stop-limit orders of one side, keyed by trigger
// price. The heap keeps the first trigger to fire on top.
type stopSide struct {
	heap   priceHeap
	levels map[uint256.Int]*level
}

func newStopSide(h priceHeap) *stopSide {
	heap.Init(h)
	return &stopSide{heap: h, levels: make(map[uint256.Int]*level)}
}

func (s *stopSide) push(p uint256.Int, o *Order) {
	lv, ok := s.levels[p]
	if !ok {
		// New price level - add to heap
		lv = &level{price: p}
		s.levels[p] = lv
		heap.Push(s.heap, p)
	}
	lv.orders = append(lv.orders, o)
}

func (s *stopSide) remove(p uint256.Int, o *Order) bool {
	lv, ok := s.levels[p]
	if !ok || !lv.remove(o) {
		return false
	}
	if len(lv.orders) == 0 {
		s.dropLevel(p)
	}
	return true
}

// dropLevel removes a price from the map and the heap (O(N) heap scan, rare).
func (s *stopSide) dropLevel(p uint256.Int) {
	delete(s.levels, p)
	for i := 0; i < s.heap.Len(); i++ {
		if at := s.heap.At(i); at.Eq(&p) {
			heap.Remove(s.heap, i)
			return
		}
	}
}

// top returns the next level to trigger.
func (s *stopSide) top() (*level, bool) {
	if s.heap.Len() == 0 {
		return nil, false
	}
	lv, ok := s.levels[s.heap.Peek()]
	return lv, ok
}

// popTop removes and returns the top level.
func (s *stopSide) popTop() *level {
	p := heap.Pop(s.heap).(uint256.Int)
	lv := s.levels[p]
	delete(s.levels, p)
	return lv
}

func (s *stopSide) len() int { return len(s.levels) }

// sorted returns levels in trigger order: the heap's Less defines it.
func (s *stopSide) sorted() []*level {
	out := make([]*level, 0, len(s.levels))
	for _, lv := range s.levels {
		out = append(out, lv)
	}
	_, descending := s.heap.(*MaxPriceHeap)
	sort.Slice(out, func(i, j int) bool {
		if descending {
			return out[i].price.Gt(&out[j].price)
		}
		return out[i].price.Lt(&out[j].price)
	})
	return out
}
