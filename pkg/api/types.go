package api

// API response types for REST endpoints and WebSocket messages.
// Prices and quantities are decimal strings; they are 256-bit.

// MarketInfo represents a hosted market
type MarketInfo struct {
	Symbol         string `json:"symbol"`
	Status         string `json:"status"` // "Active", "Paused", "Settled"
	ReferencePrice string `json:"referencePrice"`
	MinOrderSize   string `json:"minOrderSize"`
	MaxOrderSize   string `json:"maxOrderSize"` // "0" = unbounded
}

// PriceLevel represents one aggregated level
type PriceLevel struct {
	Price  string `json:"price"`
	Size   string `json:"size"` // remaining quantity
	Orders int    `json:"orders"`
}

// OrderbookSnapshot represents current book state
type OrderbookSnapshot struct {
	Symbol     string       `json:"symbol"`
	Height     int64        `json:"height"`
	LastPrice  string       `json:"lastPrice"`
	Orders     int          `json:"orders"`
	Bids       []PriceLevel `json:"bids"`     // Sorted high to low
	Asks       []PriceLevel `json:"asks"`     // Sorted low to high
	StopBids   []PriceLevel `json:"stopBids"` // Nearest trigger first
	StopAsks   []PriceLevel `json:"stopAsks"`
	MarketBids int          `json:"marketBids"` // queued market takers
	MarketAsks int          `json:"marketAsks"`
	StateHash  string       `json:"stateHash"`
}

// TradeInfo represents a persisted trade
type TradeInfo struct {
	Symbol     string `json:"symbol"`
	Seq        uint64 `json:"seq"`
	Height     int64  `json:"height"`
	Price      string `json:"price"`
	Size       string `json:"size"`
	Side       string `json:"side"` // taker side
	TakerOwner string `json:"taker"`
	MakerOwner string `json:"maker"`
	Timestamp  int64  `json:"timestamp"`
}

// NodeStatus represents the batch loop state
type NodeStatus struct {
	Height      int64 `json:"height"`
	MempoolSize int   `json:"mempoolSize"`
	Markets     int   `json:"markets"`
}

// ErrorResponse represents an API error
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// ==============================
// WebSocket Message Types
// ==============================

// WSSubscribeRequest represents a subscription request
// Channels: "trades:{symbol}", "batches"
type WSSubscribeRequest struct {
	Op       string   `json:"op"` // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"`
}

// TradeUpdate is pushed on "trades:{symbol}"
type TradeUpdate struct {
	Type  string    `json:"type"` // "trade"
	Trade TradeInfo `json:"trade"`
}

// BatchUpdate is pushed on "batches"
type BatchUpdate struct {
	Type     string `json:"type"` // "batch"
	Height   int64  `json:"height"`
	Txs      int    `json:"txs"`
	Rejected int    `json:"rejected"`
	Trades   int    `json:"trades"`
	AppHash  string `json:"appHash"`
}
