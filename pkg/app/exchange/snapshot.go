package exchange

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/uhyunpark/matchbook/pkg/app/core/orderbook"
)

// BookSnapshot is a consistent copy of one book taken between batches.
type BookSnapshot struct {
	Symbol     string
	Status     string
	Height     int64
	LastPrice  uint256.Int
	Orders     int
	Bids       []orderbook.PriceLevel
	Asks       []orderbook.PriceLevel
	StopBids   []orderbook.PriceLevel
	StopAsks   []orderbook.PriceLevel
	MarketBids int
	MarketAsks int
	StateHash  common.Hash
}

// Snapshot copies the book for symbol. It waits for an in-flight batch.
func (a *App) Snapshot(symbol string) (BookSnapshot, error) {
	m, err := a.registry.GetMarket(symbol)
	if err != nil {
		return BookSnapshot{}, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	b := m.Book
	return BookSnapshot{
		Symbol:     m.Symbol,
		Status:     m.Status().String(),
		Height:     a.height,
		LastPrice:  b.LastPrice(),
		Orders:     b.Len(),
		Bids:       b.Bids(),
		Asks:       b.Asks(),
		StopBids:   b.StopBids(),
		StopAsks:   b.StopAsks(),
		MarketBids: len(b.MarketQueue(orderbook.Bid)),
		MarketAsks: len(b.MarketQueue(orderbook.Ask)),
		StateHash:  b.StateHash(),
	}, nil
}

// Height returns the last finalized batch height.
func (a *App) Height() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.height
}
