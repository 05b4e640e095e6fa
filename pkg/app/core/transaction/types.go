package transaction

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/uhyunpark/matchbook/pkg/app/core/orderbook"
)

// TxType represents the type of transaction
type TxType string

const (
	TxTypeOrder  TxType = "order"  // Submit order
	TxTypeCancel TxType = "cancel" // Remove a live order
)

// Transaction is the intake envelope. Authentication happens before intake.
type Transaction struct {
	Type   TxType         `json:"type"`
	Order  *OrderPayload  `json:"order,omitempty"`
	Cancel *CancelPayload `json:"cancel,omitempty"`
}

// OrderPayload carries one order. Numbers are 256-bit unsigned integers as
// decimal or 0x-hex strings. An empty price means "no constraint" on that
// dimension and maps to the side's sentinel.
type OrderPayload struct {
	Symbol          string `json:"symbol"`
	Owner           string `json:"owner"`
	Nonce           string `json:"nonce"`
	Side            string `json:"side"` // "bid"/"buy" or "ask"/"sell"
	Quantity        string `json:"quantity"`
	LimitPrice      string `json:"limit_price,omitempty"`
	StopPrice       string `json:"stop_price,omitempty"`
	ExpireTimestamp uint64 `json:"expire_timestamp,omitempty"`
	OnlyFullFill    bool   `json:"only_full_fill,omitempty"`
}

// CancelPayload identifies a live order by (owner, nonce).
type CancelPayload struct {
	Symbol string `json:"symbol"`
	Owner  string `json:"owner"`
	Nonce  string `json:"nonce"`
}

// ParseSide accepts bid/buy and ask/sell, case-insensitively.
func ParseSide(s string) (orderbook.Side, error) {
	switch strings.ToLower(s) {
	case "bid", "buy":
		return orderbook.Bid, nil
	case "ask", "sell":
		return orderbook.Ask, nil
	default:
		return 0, fmt.Errorf("invalid side: %q", s)
	}
}

func sideString(s orderbook.Side) string {
	if s == orderbook.Ask {
		return "ask"
	}
	return "bid"
}

// ParseUint256 parses a decimal or 0x-prefixed hex string.
func ParseUint256(s string) (uint256.Int, error) {
	var (
		v   *uint256.Int
		err error
	)
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		v, err = uint256.FromHex(s)
	} else {
		v, err = uint256.FromDecimal(s)
	}
	if err != nil {
		return uint256.Int{}, fmt.Errorf("invalid uint256 %q: %w", s, err)
	}
	return *v, nil
}

// NormalizeOwner returns Ethereum addresses in checksum form so the same wallet
// always maps to the same key. Other identifiers pass through unchanged.
func NormalizeOwner(owner string) string {
	if common.IsHexAddress(owner) {
		return common.HexToAddress(owner).Hex()
	}
	return owner
}

// ToOrder converts the payload into a book order.
func (p *OrderPayload) ToOrder() (orderbook.Order, error) {
	side, err := ParseSide(p.Side)
	if err != nil {
		return orderbook.Order{}, err
	}
	nonce, err := ParseUint256(p.Nonce)
	if err != nil {
		return orderbook.Order{}, fmt.Errorf("nonce: %w", err)
	}
	qty, err := ParseUint256(p.Quantity)
	if err != nil {
		return orderbook.Order{}, fmt.Errorf("quantity: %w", err)
	}

	limit := orderbook.NoLimit(side)
	if p.LimitPrice != "" {
		if limit, err = ParseUint256(p.LimitPrice); err != nil {
			return orderbook.Order{}, fmt.Errorf("limit_price: %w", err)
		}
	}
	stop := orderbook.NoStop(side)
	if p.StopPrice != "" {
		if stop, err = ParseUint256(p.StopPrice); err != nil {
			return orderbook.Order{}, fmt.Errorf("stop_price: %w", err)
		}
	}

	return orderbook.Order{
		Owner:           NormalizeOwner(p.Owner),
		Nonce:           nonce,
		Quantity:        qty,
		LimitPrice:      limit,
		StopPrice:       stop,
		ExpireTimestamp: p.ExpireTimestamp,
		Side:            side,
		OnlyFullFill:    p.OnlyFullFill,
	}, nil
}

// FromOrder builds a payload for symbol. Sentinel prices are written as empty strings.
func FromOrder(symbol string, o orderbook.Order) *OrderPayload {
	p := &OrderPayload{
		Symbol:          symbol,
		Owner:           o.Owner,
		Nonce:           o.Nonce.Dec(),
		Side:            sideString(o.Side),
		Quantity:        o.Quantity.Dec(),
		ExpireTimestamp: o.ExpireTimestamp,
		OnlyFullFill:    o.OnlyFullFill,
	}
	if noLimit := orderbook.NoLimit(o.Side); !o.LimitPrice.Eq(&noLimit) {
		p.LimitPrice = o.LimitPrice.Dec()
	}
	if noStop := orderbook.NoStop(o.Side); !o.StopPrice.Eq(&noStop) {
		p.StopPrice = o.StopPrice.Dec()
	}
	return p
}

// Key returns the normalized (owner, nonce) of the order to cancel.
func (c *CancelPayload) Key() (string, uint256.Int, error) {
	nonce, err := ParseUint256(c.Nonce)
	if err != nil {
		return "", uint256.Int{}, fmt.Errorf("nonce: %w", err)
	}
	return NormalizeOwner(c.Owner), nonce, nil
}

// Serialize converts Transaction to JSON bytes
func (tx *Transaction) Serialize() ([]byte, error) {
	return json.Marshal(tx)
}

// Validate performs basic validation on transaction structure
func (tx *Transaction) Validate() error {
	switch tx.Type {
	case TxTypeOrder:
		if tx.Order == nil {
			return fmt.Errorf("order type requires order payload")
		}
		if tx.Order.Symbol == "" {
			return fmt.Errorf("missing order symbol")
		}
		if tx.Order.Owner == "" {
			return fmt.Errorf("missing order owner")
		}
	case TxTypeCancel:
		if tx.Cancel == nil {
			return fmt.Errorf("cancel type requires cancel payload")
		}
		if tx.Cancel.Symbol == "" {
			return fmt.Errorf("missing cancel symbol")
		}
		if tx.Cancel.Owner == "" {
			return fmt.Errorf("missing cancel owner")
		}
	case "":
		return fmt.Errorf("missing transaction type")
	default:
		return fmt.Errorf("unknown transaction type: %s", tx.Type)
	}
	return nil
}

// ParseTransaction decodes and validates one JSON transaction.
func ParseTransaction(data []byte) (*Transaction, error) {
	var tx Transaction
	if err := json.Unmarshal(data, &tx); err != nil {
		return nil, fmt.Errorf("failed to unmarshal transaction: %w", err)
	}
	if err := tx.Validate(); err != nil {
		return nil, fmt.Errorf("invalid transaction: %w", err)
	}
	return &tx, nil
}

// Example formats for reference:
//
//	{"type":"order","order":{"symbol":"BTC-USDT","owner":"alice","nonce":"1",
//	  "side":"ask","quantity":"10","limit_price":"101"}}
//	{"type":"order","order":{"symbol":"BTC-USDT","owner":"bob","nonce":"7",
//	  "side":"bid","quantity":"10","only_full_fill":true}}
//	{"type":"cancel","cancel":{"symbol":"BTC-USDT","owner":"alice","nonce":"1"}}
