package market

import (
	"fmt"
	"sort"
	"sync"
)

// transitions lists the status changes a market may make. Settled is terminal.
var transitions = map[MarketStatus][]MarketStatus{
	Active: {Paused, Settled},
	Paused: {Active, Settled},
}

func canTransition(from, to MarketStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// MarketRegistry hosts one market, and so one book, per symbol. Symbols are kept
// sorted so every walk over the books (batch settlement, app hash, listings)
// visits them in the same order. The registry is guarded; the books are not,
// callers serialize them.
type MarketRegistry struct {
	mu      sync.RWMutex
	markets map[string]*Market
	symbols []string // sorted
}

func NewMarketRegistry() *MarketRegistry {
	return &MarketRegistry{markets: make(map[string]*Market)}
}

// RegisterMarket adds m. Symbols are unique.
func (mr *MarketRegistry) RegisterMarket(m *Market) error {
	if m == nil {
		return fmt.Errorf("cannot register nil market")
	}
	if err := ValidSymbol(m.Symbol); err != nil {
		return err
	}

	mr.mu.Lock()
	defer mr.mu.Unlock()

	if _, exists := mr.markets[m.Symbol]; exists {
		return fmt.Errorf("market %s already registered", m.Symbol)
	}
	i := sort.SearchStrings(mr.symbols, m.Symbol)
	mr.symbols = append(mr.symbols, "")
	copy(mr.symbols[i+1:], mr.symbols[i:])
	mr.symbols[i] = m.Symbol
	mr.markets[m.Symbol] = m
	return nil
}

func (mr *MarketRegistry) GetMarket(symbol string) (*Market, error) {
	mr.mu.RLock()
	defer mr.mu.RUnlock()

	if m, ok := mr.markets[symbol]; ok {
		return m, nil
	}
	return nil, fmt.Errorf("market %s not found", symbol)
}

// ListMarkets returns the markets in symbol order.
func (mr *MarketRegistry) ListMarkets() []*Market {
	mr.mu.RLock()
	defer mr.mu.RUnlock()

	out := make([]*Market, len(mr.symbols))
	for i, sym := range mr.symbols {
		out[i] = mr.markets[sym]
	}
	return out
}

// Symbols returns the registered symbols in order.
func (mr *MarketRegistry) Symbols() []string {
	mr.mu.RLock()
	defer mr.mu.RUnlock()
	return append([]string(nil), mr.symbols...)
}

// SetStatus moves a market to status. Setting the current status is a no-op;
// anything outside the transition table is rejected.
func (mr *MarketRegistry) SetStatus(symbol string, status MarketStatus) error {
	mr.mu.Lock()
	defer mr.mu.Unlock()

	m, ok := mr.markets[symbol]
	if !ok {
		return fmt.Errorf("market %s not found", symbol)
	}
	from := m.Status()
	if from == status {
		return nil
	}
	if !canTransition(from, status) {
		return fmt.Errorf("market %s: cannot move from %s to %s", symbol, from, status)
	}
	m.setStatus(status)
	return nil
}

// RemoveMarket drops a settled market and its book.
func (mr *MarketRegistry) RemoveMarket(symbol string) error {
	mr.mu.Lock()
	defer mr.mu.Unlock()

	m, ok := mr.markets[symbol]
	if !ok {
		return fmt.Errorf("market %s not found", symbol)
	}
	if st := m.Status(); st != Settled {
		return fmt.Errorf("market %s is %s, only settled markets can be removed", symbol, st)
	}
	i := sort.SearchStrings(mr.symbols, symbol)
	mr.symbols = append(mr.symbols[:i], mr.symbols[i+1:]...)
	delete(mr.markets, symbol)
	return nil
}

func (mr *MarketRegistry) Count() int {
	mr.mu.RLock()
	defer mr.mu.RUnlock()
	return len(mr.markets)
}
