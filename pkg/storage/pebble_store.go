package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/cockroachdb/pebble"
)

type PebbleTradeStore struct {
	db *pebble.DB
}

// NewPebbleTradeStore opens (or creates) the journal at path. opts may be nil.
func NewPebbleTradeStore(path string, opts *pebble.Options) (*PebbleTradeStore, error) {
	if opts == nil {
		opts = &pebble.Options{}
	}
	db, err := pebble.Open(path, opts)
	if err != nil {
		return nil, fmt.Errorf("open pebble at %s: %w", path, err)
	}
	return &PebbleTradeStore{db: db}, nil
}

func (s *PebbleTradeStore) Close() error { return s.db.Close() }

// SaveTrades persists a batch of trades in one synced write.
func (s *PebbleTradeStore) SaveTrades(trades []Trade) error {
	if len(trades) == 0 {
		return nil
	}
	b := s.db.NewBatch()
	defer b.Close()

	for i := range trades {
		data, err := json.Marshal(&trades[i])
		if err != nil {
			return fmt.Errorf("failed to marshal trade: %w", err)
		}
		if err := b.Set(tradeKey(trades[i].Symbol, trades[i].Seq), data, nil); err != nil {
			return fmt.Errorf("failed to stage trade: %w", err)
		}
	}
	if err := b.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("failed to save trades: %w", err)
	}
	return nil
}

// LoadRecentTrades loads the most recent N trades for a symbol
func (s *PebbleTradeStore) LoadRecentTrades(symbol string, limit int) ([]Trade, error) {
	prefix := tradePrefix(symbol)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open iterator: %w", err)
	}
	defer iter.Close()

	var trades []Trade
	for iter.Last(); iter.Valid() && len(trades) < limit; iter.Prev() {
		var trade Trade
		if err := json.Unmarshal(iter.Value(), &trade); err != nil {
			continue // Skip invalid entries
		}
		trades = append(trades, trade)
	}

	return trades, nil
}

// LastSeq returns the sequence of the newest trade for symbol.
func (s *PebbleTradeStore) LastSeq(symbol string) (uint64, error) {
	trades, err := s.LoadRecentTrades(symbol, 1)
	if err != nil {
		return 0, err
	}
	if len(trades) == 0 {
		return 0, nil
	}
	return trades[0].Seq, nil
}

func (s *PebbleTradeStore) GetTrade(symbol string, seq uint64) (Trade, bool, error) {
	data, closer, err := s.db.Get(tradeKey(symbol, seq))
	if errors.Is(err, pebble.ErrNotFound) {
		return Trade{}, false, nil
	}
	if err != nil {
		return Trade{}, false, fmt.Errorf("failed to get trade: %w", err)
	}
	defer closer.Close()

	var trade Trade
	if err := json.Unmarshal(data, &trade); err != nil {
		return Trade{}, false, fmt.Errorf("failed to unmarshal trade: %w", err)
	}
	return trade, true, nil
}

var _ TradeStore = (*PebbleTradeStore)(nil)

// MemTradeStore keeps trades in memory. Used in tests and when no data dir is configured.
type MemTradeStore struct {
	mu     sync.Mutex
	trades map[string][]Trade // symbol -> trades in seq order
	closed bool
}

func NewMemTradeStore() *MemTradeStore {
	return &MemTradeStore{trades: make(map[string][]Trade)}
}

var errClosed = errors.New("store closed")

func (s *MemTradeStore) SaveTrades(trades []Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errClosed
	}
	for _, t := range trades {
		s.trades[t.Symbol] = append(s.trades[t.Symbol], t)
	}
	return nil
}

func (s *MemTradeStore) LoadRecentTrades(symbol string, limit int) ([]Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := s.trades[symbol]
	var out []Trade
	for i := len(all) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, all[i])
	}
	return out, nil
}

func (s *MemTradeStore) LastSeq(symbol string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := s.trades[symbol]
	if len(all) == 0 {
		return 0, nil
	}
	return all[len(all)-1].Seq, nil
}

func (s *MemTradeStore) GetTrade(symbol string, seq uint64) (Trade, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.trades[symbol] {
		if t.Seq == seq {
			return t, true, nil
		}
	}
	return Trade{}, false, nil
}

func (s *MemTradeStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

var _ TradeStore = (*MemTradeStore)(nil)
