package storage

// Trade is one persisted fill. Numeric fields are decimal strings so records
// stay readable and carry the full 256-bit range.
type Trade struct {
	Symbol     string `json:"symbol"`
	Seq        uint64 `json:"seq"`
	Height     int64  `json:"height"`
	Timestamp  int64  `json:"timestamp"`
	TakerSide  string `json:"taker_side"`
	TakerOwner string `json:"taker_owner"`
	TakerNonce string `json:"taker_nonce"`
	MakerOwner string `json:"maker_owner"`
	MakerNonce string `json:"maker_nonce"`
	Price      string `json:"price"`
	Quantity   string `json:"quantity"`
}

// TradeStore is the trade journal the host writes matches to.
type TradeStore interface {
	// SaveTrades writes a batch atomically.
	SaveTrades(trades []Trade) error
	// LoadRecentTrades returns up to limit trades for symbol, newest first.
	LoadRecentTrades(symbol string, limit int) ([]Trade, error)
	// LastSeq returns the highest stored sequence for symbol, 0 when none.
	LastSeq(symbol string) (uint64, error)
	// GetTrade returns the trade at (symbol, seq); ok is false when absent.
	GetTrade(symbol string, seq uint64) (trade Trade, ok bool, err error)
	Close() error
}
