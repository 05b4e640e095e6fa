package exchange

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/uhyunpark/matchbook/pkg/app/core/mempool"
)

const maxFeedLine = 1 << 20

// TxSink accepts raw intake transactions. *App is one.
type TxSink interface {
	PushTx(b []byte) mempool.TxType
}

// ReadFeed pushes newline-delimited JSON transactions from r into sink until
// EOF or ctx is done. Blank lines and lines starting with '#' are skipped.
// It returns the number of transactions pushed.
func ReadFeed(ctx context.Context, r io.Reader, sink TxSink, log *zap.SugaredLogger) (int, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxFeedLine)

	n := 0
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 || line[0] == '#' {
			continue
		}
		sink.PushTx(line)
		n++
	}
	if err := sc.Err(); err != nil {
		return n, fmt.Errorf("read order feed: %w", err)
	}
	log.Infow("order_feed_eof", "txs", n)
	return n, nil
}

// MaxFeederMid bounds the generator's mid price so the price band fits in 63 bits.
const MaxFeederMid = 1 << 60

// FeederMid converts a market reference price into a generator mid price.
// clamped reports that ref did not fit and MaxFeederMid was used instead.
func FeederMid(ref uint256.Int) (mid uint64, clamped bool) {
	if !ref.IsUint64() || ref.Uint64() > MaxFeederMid {
		return MaxFeederMid, true
	}
	return ref.Uint64(), false
}

// TxFeederConfig controls synthetic transaction generation rate
type TxFeederConfig struct {
	BatchSize   int           // Number of txs to generate per tick
	Interval    time.Duration // How often to generate batches
	NumAccounts int           // Number of simulated traders
	Symbols     []string      // Markets to trade
	MidPrice    uint64        // Center of the generated price band
}

// DefaultFeederConfig returns reasonable defaults for local runs
func DefaultFeederConfig() TxFeederConfig {
	return TxFeederConfig{
		BatchSize:   10,
		Interval:    100 * time.Millisecond,
		NumAccounts: 50,
		Symbols:     []string{"BTC-USDT"},
		MidPrice:    100,
	}
}

// HighLoadConfig returns config for stress testing
func HighLoadConfig() TxFeederConfig {
	cfg := DefaultFeederConfig()
	cfg.BatchSize = 150
	cfg.Interval = 10 * time.Millisecond
	cfg.NumAccounts = 500
	return cfg
}

// StartTxFeeder starts a background goroutine that continuously feeds generated
// transactions to sink. Returns a cancel function to stop the feeder.
func StartTxFeeder(ctx context.Context, sink TxSink, cfg TxFeederConfig, log *zap.SugaredLogger) context.CancelFunc {
	if len(cfg.Symbols) == 0 {
		cfg.Symbols = DefaultFeederConfig().Symbols
	}
	gen := NewTxGenerator(cfg.NumAccounts, cfg.Symbols, cfg.MidPrice, time.Now().UnixNano())

	feedCtx, cancel := context.WithCancel(ctx)

	go func() {
		ticker := time.NewTicker(cfg.Interval)
		defer ticker.Stop()

		startTime := time.Now()
		totalTxs := 0

		log.Infow("txfeeder_started", "batch", cfg.BatchSize, "interval", cfg.Interval, "accounts", cfg.NumAccounts)

		for {
			select {
			case <-feedCtx.Done():
				elapsed := time.Since(startTime)
				log.Infow("txfeeder_stopped",
					"txs", totalTxs,
					"elapsed", elapsed.Round(time.Second),
					"tx_per_sec", float64(totalTxs)/elapsed.Seconds())
				return

			case <-ticker.C:
				for _, tx := range gen.GenerateBatch(cfg.BatchSize) {
					sink.PushTx(tx)
				}
				totalTxs += cfg.BatchSize
			}
		}
	}()

	return cancel
}
