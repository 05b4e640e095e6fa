package orderbook

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"
)

var (
	// ErrInvalidOrder is returned when side and price fields do not encode a known order type.
	ErrInvalidOrder = errors.New("invalid order")
	// ErrDuplicateOrder is returned when (owner, nonce) already identifies a live order.
	ErrDuplicateOrder = errors.New("duplicate order")
)

type Side int8

const (
	Bid Side = 1
	Ask Side = -1
)

func (s Side) String() string {
	switch s {
	case Bid:
		return "Bid"
	case Ask:
		return "Ask"
	default:
		return "Unknown"
	}
}

// Opposite returns the counter side.
func (s Side) Opposite() Side {
	if s == Bid {
		return Ask
	}
	return Bid
}

// OrderType is derived from (side, limit price, stop price), never stored.
type OrderType int8

const (
	Market OrderType = iota
	Limit
	Stop
	StopLimit
)

func (t OrderType) String() string {
	switch t {
	case Market:
		return "Market"
	case Limit:
		return "Limit"
	case Stop:
		return "Stop"
	case StopLimit:
		return "StopLimit"
	default:
		return "Unknown"
	}
}

var (
	zeroPrice = uint256.Int{}
	maxPrice  = *new(uint256.Int).SetAllOne()
)

// MaxPrice is the largest representable price. It is the Bid "no limit" and the Ask "no stop" sentinel.
func MaxPrice() uint256.Int { return maxPrice }

// NoLimit returns the limit price sentinel meaning "accept the worst price" for side.
func NoLimit(side Side) uint256.Int {
	if side == Ask {
		return zeroPrice
	}
	return maxPrice
}

// NoStop returns the stop price sentinel meaning "no activation condition" for side.
func NoStop(side Side) uint256.Int {
	if side == Ask {
		return maxPrice
	}
	return zeroPrice
}

// Order is one order record. Price and quantity fields are values, so copying an
// Order yields an independent snapshot.
type Order struct {
	Owner           string
	Nonce           uint256.Int
	Quantity        uint256.Int
	FilledQuantity  uint256.Int
	LimitPrice      uint256.Int
	StopPrice       uint256.Int
	ExpireTimestamp uint64 // advisory, 0 = never
	Side            Side
	OnlyFullFill    bool
}

// Remaining returns Quantity - FilledQuantity.
func (o Order) Remaining() uint256.Int {
	var r uint256.Int
	r.Sub(&o.Quantity, &o.FilledQuantity)
	return r
}

// IsFilled reports whether nothing remains to be matched.
func (o Order) IsFilled() bool {
	return !o.FilledQuantity.Lt(&o.Quantity)
}

func (o Order) key() orderKey {
	return orderKey{owner: o.Owner, nonce: o.Nonce}
}

func (o Order) String() string {
	return fmt.Sprintf("%s/%s %s qty=%s filled=%s limit=%s stop=%s",
		o.Owner, o.Nonce.Dec(), o.Side, o.Quantity.Dec(), o.FilledQuantity.Dec(),
		o.LimitPrice.Dec(), o.StopPrice.Dec())
}

type orderKey struct {
	owner string
	nonce uint256.Int
}

// Classify maps an order's side and price fields to its type.
//
//	Bid: limit == max && stop == 0 -> Market, limit < max && stop == 0 -> Limit,
//	     limit == max && stop > 0  -> Stop,   limit < max && stop > 0  -> StopLimit.
//
// Ask is the mirror image with the two sentinels swapped.
func Classify(o *Order) (OrderType, error) {
	var noLimit, noStop bool
	switch o.Side {
	case Bid:
		noLimit = o.LimitPrice.Eq(&maxPrice)
		noStop = o.StopPrice.IsZero()
	case Ask:
		noLimit = o.LimitPrice.IsZero()
		noStop = o.StopPrice.Eq(&maxPrice)
	default:
		return 0, fmt.Errorf("%w: unknown side %d", ErrInvalidOrder, o.Side)
	}

	switch {
	case noLimit && noStop:
		return Market, nil
	case !noLimit && noStop:
		return Limit, nil
	case noLimit && !noStop:
		return Stop, nil
	default:
		return StopLimit, nil
	}
}
