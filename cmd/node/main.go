package main

import (
	"context"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/cockroachdb/pebble"

	"github.com/uhyunpark/matchbook/params"
	"github.com/uhyunpark/matchbook/pkg/api"
	"github.com/uhyunpark/matchbook/pkg/app/core/market"
	"github.com/uhyunpark/matchbook/pkg/app/exchange"
	"github.com/uhyunpark/matchbook/pkg/p2p"
	"github.com/uhyunpark/matchbook/pkg/publish"
	"github.com/uhyunpark/matchbook/pkg/storage"
	"github.com/uhyunpark/matchbook/pkg/util"
)

func main() {
	// Load config from .env file and environment variables
	cfg := params.LoadFromEnv("") // "" means load from .env in current directory

	// Setup logging (write to both console and file)
	level, err := util.ParseLevel(cfg.Node.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	logger, err := util.NewLoggerWithFile(cfg.Node.LogFile, level)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()
	sugar.Infow("logger_initialized", "log_file", cfg.Node.LogFile, "level", level.String())

	// ---- Trade journal ----
	tradePath := filepath.Join(cfg.Node.DataDir, "trades")
	store, err := storage.NewPebbleTradeStore(tradePath, &pebble.Options{})
	if err != nil {
		sugar.Fatalw("trade_store_open_failed", "path", tradePath, "err", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			sugar.Errorw("trade_store_close_failed", "err", err)
		}
	}()

	// ---- Markets ----
	registry := market.NewMarketRegistry()
	symbols := make([]string, 0, len(cfg.Markets))
	for _, ms := range cfg.Markets {
		m, err := market.NewMarket(ms.Symbol, market.Params{ReferencePrice: ms.ReferencePrice})
		if err != nil {
			sugar.Fatalw("market_init_failed", "symbol", ms.Symbol, "err", err)
		}
		if err := registry.RegisterMarket(m); err != nil {
			sugar.Fatalw("market_register_failed", "symbol", ms.Symbol, "err", err)
		}
		symbols = append(symbols, ms.Symbol)
		sugar.Infow("market_registered", "symbol", ms.Symbol, "reference_price", ms.ReferencePrice.Dec())
	}

	app, err := exchange.NewApp(registry, store, sugar, exchange.Config{
		MaxBatchBytes:       cfg.Engine.MaxBatchBytes,
		MaxActivationRounds: cfg.Engine.MaxActivationRounds,
	})
	if err != nil {
		sugar.Fatalw("app_init_failed", "err", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---- Operator API (optional) ----
	var apiServer *api.Server
	if cfg.Node.APIAddr != "" {
		apiServer = api.NewServer(app, sugar, cfg.Node.APIOrigins)
		go func() {
			if err := apiServer.Start(ctx, cfg.Node.APIAddr); err != nil {
				sugar.Fatalw("api_server_failed", "err", err)
			}
		}()
	}

	// ---- Trade publishing (optional) ----
	// Runs on its own context so trades from the final batch are flushed too.
	var publisher *publish.TradePublisher
	if len(cfg.Node.KafkaBrokers) > 0 {
		publisher = publish.NewKafkaTradePublisher(cfg.Node.KafkaBrokers, cfg.Node.KafkaTradeTopic, sugar)
		pubCtx, pubCancel := context.WithCancel(context.Background())
		pubDone := make(chan struct{})
		go func() {
			publisher.Run(pubCtx)
			close(pubDone)
		}()
		defer func() {
			pubCancel()
			<-pubDone
			if err := publisher.Close(); err != nil {
				sugar.Warnw("trade_publisher_close_failed", "err", err)
			}
		}()
		sugar.Infow("trade_publisher_enabled", "brokers", cfg.Node.KafkaBrokers, "topic", cfg.Node.KafkaTradeTopic)
	}

	// Hook app to API server and publisher: trades are fanned out once persisted
	app.OnTrade = func(t storage.Trade) {
		sugar.Debugw("trade",
			"symbol", t.Symbol,
			"seq", t.Seq,
			"taker_side", t.TakerSide,
			"price", t.Price,
			"qty", t.Quantity)
		if apiServer != nil {
			apiServer.BroadcastTrade(t)
		}
		if publisher != nil {
			publisher.Publish(t)
		}
	}

	// ---- Intake ----
	var sink exchange.TxSink = app
	if cfg.Node.P2PListen != "" {
		gossip, err := p2p.NewTxGossip(ctx, p2p.Config{
			ListenAddr: cfg.Node.P2PListen,
			Bootstrap:  cfg.Node.P2PBootstrap,
			Logger:     sugar,
		}, app)
		if err != nil {
			sugar.Fatalw("libp2p_init_failed", "err", err)
		}
		defer gossip.Close()
		sugar.Infow("tx_gossip_enabled", "addrs", gossip.Addrs())
		sink = gossip.Relay(ctx, app)
	}

	// Enable with: ENABLE_TXGEN=true TXGEN_MODE=default|high
	if cfg.Node.EnableTxGen {
		txCfg := exchange.DefaultFeederConfig()
		if cfg.Node.TxGenMode == "high" {
			txCfg = exchange.HighLoadConfig()
		}
		txCfg.Symbols = symbols
		if len(cfg.Markets) > 0 {
			ref := cfg.Markets[0].ReferencePrice
			mid, clamped := exchange.FeederMid(ref)
			if clamped {
				sugar.Warnw("txgen_mid_price_clamped", "reference_price", ref.Dec(), "mid", mid)
			}
			txCfg.MidPrice = mid
		}
		sugar.Infow("txgen_enabled", "mode", cfg.Node.TxGenMode, "batch", txCfg.BatchSize, "interval", txCfg.Interval)

		cancelFeeder := exchange.StartTxFeeder(ctx, sink, txCfg, sugar)
		defer cancelFeeder()
	} else {
		go func() {
			var in io.Reader = os.Stdin
			src := "stdin"
			if cfg.Node.OrderFeed != "" {
				f, err := os.Open(cfg.Node.OrderFeed)
				if err != nil {
					sugar.Errorw("order_feed_open_failed", "path", cfg.Node.OrderFeed, "err", err)
					return
				}
				defer f.Close()
				in, src = f, cfg.Node.OrderFeed
			}
			sugar.Infow("order_feed_reading", "source", src)
			if _, err := exchange.ReadFeed(ctx, in, sink, sugar); err != nil && ctx.Err() == nil {
				sugar.Errorw("order_feed_failed", "source", src, "err", err)
			}
		}()
	}

	// Progress logging: every N batches to reduce noise
	const logInterval = 100
	var totalTrades int
	app.OnBatch = func(res exchange.BatchResult) {
		totalTrades += len(res.Trades)
		if apiServer != nil {
			apiServer.BroadcastBatch(res)
		}
		if res.Height%logInterval == 0 || res.Height <= 5 {
			sugar.Infow("batch_progress",
				"height", res.Height,
				"pending", app.Pending(),
				"total_trades", totalTrades)
		}
	}

	sugar.Infow("node_starting",
		"markets", len(symbols),
		"batch_interval_ms", cfg.Node.BatchInterval.Milliseconds(),
		"max_batch_bytes", cfg.Engine.MaxBatchBytes,
		"max_activation_rounds", cfg.Engine.MaxActivationRounds)

	height, err := app.Run(ctx, util.RealClock{}, cfg.Node.BatchInterval, 0)
	if err != nil {
		sugar.Errorw("batch_loop_failed", "height", height, "err", err)
		return
	}

	// Apply whatever arrived before shutdown
	if app.Pending() > 0 {
		if _, err := app.FinalizeBatch(height+1, time.Now().Unix()); err != nil {
			sugar.Errorw("final_batch_failed", "err", err)
		}
	}
	sugar.Infow("node_stopped", "height", height, "total_trades", totalTrades)
}
