package market

import (
	"fmt"
	"sync/atomic"

	"github.com/holiman/uint256"

	"github.com/uhyunpark/matchbook/pkg/app/core/orderbook"
)

// MarketStatus defines the trading status of a market
type MarketStatus int8

const (
	Active  MarketStatus = iota // Trading enabled
	Paused                      // Trading halted (emergency)
	Settled                     // Market closed
)

func (ms MarketStatus) String() string {
	switch ms {
	case Active:
		return "Active"
	case Paused:
		return "Paused"
	case Settled:
		return "Settled"
	default:
		return "Unknown"
	}
}

// Params are the business limits checked before an order reaches the book.
// The book itself only checks the order type encoding.
type Params struct {
	ReferencePrice uint256.Int // seeds the book's last traded price
	MinOrderSize   uint256.Int // 0 = no minimum beyond > 0
	MaxOrderSize   uint256.Int // 0 = unbounded
}

const maxSymbolLen = 32

// Market is one traded instrument and the book that owns its orders.
// Status may be read while a batch runs; it is changed through the registry.
type Market struct {
	Symbol string
	Params Params

	Book *orderbook.OrderBook

	status atomic.Int32
}

// Status returns the current trading status.
func (m *Market) Status() MarketStatus { return MarketStatus(m.status.Load()) }

func (m *Market) setStatus(s MarketStatus) { m.status.Store(int32(s)) }

// ValidSymbol returns an error unless symbol can name a market: 1 to 32 characters
// from A-Z, a-z, 0-9 and "-_./". Symbols are embedded in journal keys, so the
// ':' separator is never allowed.
func ValidSymbol(symbol string) error {
	if symbol == "" {
		return fmt.Errorf("symbol cannot be empty")
	}
	if len(symbol) > maxSymbolLen {
		return fmt.Errorf("symbol %q longer than %d characters", symbol, maxSymbolLen)
	}
	for _, c := range symbol {
		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9':
		case c == '-', c == '_', c == '.', c == '/':
		default:
			return fmt.Errorf("symbol %q has invalid character %q", symbol, c)
		}
	}
	return nil
}

// NewMarket creates an active market with a fresh book seeded at the reference price.
func NewMarket(symbol string, params Params) (*Market, error) {
	if err := ValidSymbol(symbol); err != nil {
		return nil, err
	}
	if !params.MaxOrderSize.IsZero() && params.MinOrderSize.Gt(&params.MaxOrderSize) {
		return nil, fmt.Errorf("min order size cannot exceed max order size")
	}
	m := &Market{
		Symbol: symbol,
		Params: params,
		Book:   orderbook.NewOrderBook(params.ReferencePrice),
	}
	m.setStatus(Active)
	return m, nil
}

// ValidateOrder performs the pre-admission business checks.
func (m *Market) ValidateOrder(o *orderbook.Order) error {
	if st := m.Status(); st != Active {
		return fmt.Errorf("market %s is not active (status: %s)", m.Symbol, st)
	}
	if o.Quantity.IsZero() {
		return fmt.Errorf("quantity must be positive")
	}
	if o.Quantity.Lt(&m.Params.MinOrderSize) {
		return fmt.Errorf("order size %s below minimum %s", o.Quantity.Dec(), m.Params.MinOrderSize.Dec())
	}
	if !m.Params.MaxOrderSize.IsZero() && o.Quantity.Gt(&m.Params.MaxOrderSize) {
		return fmt.Errorf("order size %s exceeds maximum %s", o.Quantity.Dec(), m.Params.MaxOrderSize.Dec())
	}
	return nil
}
