package exchange

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"github.com/uhyunpark/matchbook/pkg/app/core/market"
	"github.com/uhyunpark/matchbook/pkg/app/core/mempool"
	"github.com/uhyunpark/matchbook/pkg/app/core/orderbook"
	"github.com/uhyunpark/matchbook/pkg/app/core/transaction"
	"github.com/uhyunpark/matchbook/pkg/storage"
)

// Config bounds the work done per batch.
type Config struct {
	MaxBatchBytes       int64 // <= 0 drains the whole mempool
	MaxActivationRounds int   // stop activation phases per book per batch
}

func DefaultConfig() Config {
	return Config{
		MaxBatchBytes:       1 << 24,
		MaxActivationRounds: 16,
	}
}

// App hosts the books. It is the only writer: intake goes through the mempool
// and FinalizeBatch applies it, so each book sees one serialized stream.
type App struct {
	mu sync.Mutex

	registry *market.MarketRegistry
	mempool  *mempool.Mempool
	store    storage.TradeStore
	log      *zap.SugaredLogger
	cfg      Config

	seq    map[string]uint64 // symbol -> last trade sequence
	height int64             // last finalized batch

	// OnTrade is called for every persisted trade, in execution order.
	OnTrade func(storage.Trade)
	// OnBatch is called by Run after each batch.
	OnBatch func(BatchResult)
}

// BatchResult summarizes one FinalizeBatch call.
type BatchResult struct {
	Height    int64
	Txs       int
	Rejected  int
	Expired   int
	Activated int
	Trades    []storage.Trade
	AppHash   common.Hash
}

// NewApp wires the registry to a trade store, resuming trade sequences from it.
func NewApp(registry *market.MarketRegistry, store storage.TradeStore, log *zap.SugaredLogger, cfg Config) (*App, error) {
	if cfg.MaxActivationRounds <= 0 {
		cfg.MaxActivationRounds = DefaultConfig().MaxActivationRounds
	}
	a := &App{
		registry: registry,
		mempool:  mempool.NewMempool(),
		store:    store,
		log:      log,
		cfg:      cfg,
		seq:      make(map[string]uint64),
	}
	for _, m := range registry.ListMarkets() {
		last, err := store.LastSeq(m.Symbol)
		if err != nil {
			return nil, fmt.Errorf("load trade sequence for %s: %w", m.Symbol, err)
		}
		a.seq[m.Symbol] = last
	}
	return a, nil
}

// PushTx queues a raw transaction for the next batch.
func (a *App) PushTx(b []byte) mempool.TxType { return a.mempool.PushRaw(b) }

// Pending returns the number of queued transactions.
func (a *App) Pending() int { return a.mempool.Len() }

// Registry exposes the hosted markets for inspection.
func (a *App) Registry() *market.MarketRegistry { return a.registry }

// SetMarketStatus changes a market's status between batches, so one batch
// never sees two statuses for the same market.
func (a *App) SetMarketStatus(symbol string, status market.MarketStatus) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.registry.SetStatus(symbol, status); err != nil {
		return err
	}
	a.log.Infow("market_status_changed", "symbol", symbol, "status", status.String())
	return nil
}

// FinalizeBatch applies one batch: queued txs in sequencer order, the expiry
// sweep at timestamp, then matching and stop activation on every active book.
// Trades are persisted before OnTrade is called. A store failure is returned
// after the books have advanced; the trades are still in the result.
func (a *App) FinalizeBatch(height, timestamp int64) (BatchResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	txs := a.mempool.Drain(a.cfg.MaxBatchBytes)
	res := BatchResult{Height: height, Txs: len(txs)}

	for _, raw := range txs {
		if err := a.applyTx(raw); err != nil {
			res.Rejected++
			a.log.Debugw("tx_rejected", "height", height, "err", err)
		}
	}

	markets := a.registry.ListMarkets()
	for _, m := range markets {
		res.Expired += a.expire(m, timestamp)
	}
	for _, m := range markets {
		if m.Status() != market.Active {
			continue
		}
		var activated int
		res.Trades, activated = a.settle(m, height, timestamp, res.Trades)
		res.Activated += activated
	}

	res.AppHash = computeAppHash(height, timestamp, markets)
	a.height = height

	var err error
	if len(res.Trades) > 0 {
		if err = a.store.SaveTrades(res.Trades); err != nil {
			err = fmt.Errorf("persist trades at height %d: %w", height, err)
			a.log.Errorw("trades_persist_failed", "height", height, "trades", len(res.Trades), "err", err)
		} else if a.OnTrade != nil {
			for _, t := range res.Trades {
				a.OnTrade(t)
			}
		}
	}

	// Quiet logging: only log non-empty batches
	if res.Txs > 0 || len(res.Trades) > 0 || res.Expired > 0 {
		a.log.Infow("batch_finalized",
			"height", height,
			"txs", res.Txs,
			"rejected", res.Rejected,
			"trades", len(res.Trades),
			"expired", res.Expired,
			"activated", res.Activated,
			"apphash", res.AppHash.Hex())
	}
	return res, err
}

var errUnknownTx = errors.New("unknown transaction")

func (a *App) applyTx(raw []byte) error {
	tx, err := transaction.ParseTransaction(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", errUnknownTx, err)
	}

	switch tx.Type {
	case transaction.TxTypeCancel:
		m, err := a.registry.GetMarket(tx.Cancel.Symbol)
		if err != nil {
			return err
		}
		owner, nonce, err := tx.Cancel.Key()
		if err != nil {
			return err
		}
		if _, ok := m.Book.Remove(owner, nonce); !ok {
			return fmt.Errorf("cancel miss: %s/%s/%s", m.Symbol, owner, nonce.Dec())
		}
		return nil

	case transaction.TxTypeOrder:
		m, err := a.registry.GetMarket(tx.Order.Symbol)
		if err != nil {
			return err
		}
		o, err := tx.Order.ToOrder()
		if err != nil {
			return err
		}
		if err := m.ValidateOrder(&o); err != nil {
			return err
		}
		if err := m.Book.Submit(o); err != nil {
			return fmt.Errorf("submit to %s: %w", m.Symbol, err)
		}
		return nil
	}
	return errUnknownTx
}

func (a *App) expire(m *market.Market, timestamp int64) int {
	if timestamp <= 0 {
		return 0
	}
	expired := m.Book.Expired(uint64(timestamp))
	for _, o := range expired {
		m.Book.Remove(o.Owner, o.Nonce)
		a.log.Debugw("order_expired", "symbol", m.Symbol, "order", o.String())
	}
	return len(expired)
}

// settle runs the book to quiescence: both market queues until MatchNext
// reports nothing to do, then stop activation, repeated while stops fire.
func (a *App) settle(m *market.Market, height, timestamp int64, trades []storage.Trade) ([]storage.Trade, int) {
	activated := 0
	for round := 1; ; round++ {
		trades = a.matchSide(m, orderbook.Bid, height, timestamp, trades)
		trades = a.matchSide(m, orderbook.Ask, height, timestamp, trades)

		promoted := m.Book.ActivateStops()
		if len(promoted) == 0 {
			return trades, activated
		}
		activated += len(promoted)
		if round >= a.cfg.MaxActivationRounds {
			// promoted orders stay queued and match next batch
			a.log.Warnw("activation_rounds_exhausted", "symbol", m.Symbol, "height", height, "rounds", round)
			return trades, activated
		}
	}
}

func (a *App) matchSide(m *market.Market, side orderbook.Side, height, timestamp int64, trades []storage.Trade) []storage.Trade {
	for {
		match := m.Book.MatchNext(side)
		if match == nil {
			return trades
		}
		for _, f := range match.Fills {
			a.seq[m.Symbol]++
			trades = append(trades, storage.Trade{
				Symbol:     m.Symbol,
				Seq:        a.seq[m.Symbol],
				Height:     height,
				Timestamp:  timestamp,
				TakerSide:  side.String(),
				TakerOwner: match.Taker.Owner,
				TakerNonce: match.Taker.Nonce.Dec(),
				MakerOwner: f.Maker.Owner,
				MakerNonce: f.Maker.Nonce.Dec(),
				Price:      f.Price.Dec(),
				Quantity:   f.Quantity.Dec(),
			})
		}
	}
}

// computeAppHash digests the batch position and every book's state, symbols
// in sorted order: keccak256(height || timestamp || (len(sym) || sym || bookHash)*).
func computeAppHash(height, timestamp int64, markets []*market.Market) common.Hash {
	buf := make([]byte, 0, 16+len(markets)*(4+16+common.HashLength))
	buf = binary.BigEndian.AppendUint64(buf, uint64(height))
	buf = binary.BigEndian.AppendUint64(buf, uint64(timestamp))
	for _, m := range markets {
		buf = binary.BigEndian.AppendUint32(buf, uint32(len(m.Symbol)))
		buf = append(buf, m.Symbol...)
		h := m.Book.StateHash()
		buf = append(buf, h[:]...)
	}
	return crypto.Keccak256Hash(buf)
}

// RecentTrades returns up to limit persisted trades for symbol, newest first.
func (a *App) RecentTrades(symbol string, limit int) ([]storage.Trade, error) {
	return a.store.LoadRecentTrades(symbol, limit)
}
