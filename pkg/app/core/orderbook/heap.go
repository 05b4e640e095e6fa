package orderbook

import "github.com/holiman/uint256"

// MinPriceHeap implements heap.Interface for buy-stop trigger prices (lowest on top).
// Use container/heap to manipulate it (Init, Push, Pop, Remove).
type MinPriceHeap []uint256.Int

func (h MinPriceHeap) Len() int           { return len(h) }
func (h MinPriceHeap) Less(i, j int) bool { return h[i].Lt(&h[j]) }
func (h MinPriceHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *MinPriceHeap) Push(x interface{}) {
	*h = append(*h, x.(uint256.Int))
}

func (h *MinPriceHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[0 : n-1]
	return x
}

// Peek returns the top element without removing it
func (h MinPriceHeap) Peek() uint256.Int {
	if len(h) == 0 {
		return uint256.Int{}
	}
	return h[0]
}

// MaxPriceHeap implements heap.Interface for sell-stop trigger prices (highest on top).
type MaxPriceHeap []uint256.Int

func (h MaxPriceHeap) Len() int           { return len(h) }
func (h MaxPriceHeap) Less(i, j int) bool { return h[i].Gt(&h[j]) }
func (h MaxPriceHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *MaxPriceHeap) Push(x interface{}) {
	*h = append(*h, x.(uint256.Int))
}

func (h *MaxPriceHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[0 : n-1]
	return x
}

// Peek returns the top element without removing it
func (h MaxPriceHeap) Peek() uint256.Int {
	if len(h) == 0 {
		return uint256.Int{}
	}
	return h[0]
}
