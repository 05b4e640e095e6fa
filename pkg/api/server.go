package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/uhyunpark/matchbook/pkg/app/core/orderbook"
	"github.com/uhyunpark/matchbook/pkg/app/exchange"
	"github.com/uhyunpark/matchbook/pkg/storage"
)

const (
	defaultTradeLimit = 50
	maxTradeLimit     = 1000
)

// Server is the read-only operator surface: book depth, trade history, node
// status, and a WebSocket tap of trades and batches. Orders are not accepted here.
type Server struct {
	app    *exchange.App
	router *mux.Router
	hub    *Hub
	log    *zap.SugaredLogger
	cors   *cors.Cors
}

// NewServer creates a new API server. allowedOrigins feeds CORS; empty allows none.
func NewServer(app *exchange.App, log *zap.SugaredLogger, allowedOrigins []string) *Server {
	s := &Server{
		app:    app,
		router: mux.NewRouter(),
		hub:    NewHub(log),
		log:    log,
		cors: cors.New(cors.Options{
			AllowedOrigins: allowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type"},
		}),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/markets", s.handleGetMarkets).Methods(http.MethodGet)
	api.HandleFunc("/markets/{symbol}", s.handleGetMarket).Methods(http.MethodGet)
	api.HandleFunc("/markets/{symbol}/orderbook", s.handleGetOrderbook).Methods(http.MethodGet)
	api.HandleFunc("/markets/{symbol}/trades", s.handleGetTrades).Methods(http.MethodGet)
	api.HandleFunc("/status", s.handleGetStatus).Methods(http.MethodGet)

	s.router.HandleFunc("/ws", s.handleWebSocket)
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
}

// Handler returns the CORS-wrapped router.
func (s *Server) Handler() http.Handler { return s.cors.Handler(s.router) }

// Hub returns the WebSocket hub; callers run it before serving.
func (s *Server) Hub() *Hub { return s.hub }

// Start serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, addr string) error {
	go s.hub.Run(ctx)

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.log.Infow("api_server_starting", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ==============================
// REST Handlers
// ==============================

func (s *Server) handleGetMarkets(w http.ResponseWriter, r *http.Request) {
	markets := s.app.Registry().ListMarkets()

	response := make([]MarketInfo, len(markets))
	for i, m := range markets {
		response[i] = MarketInfo{
			Symbol:         m.Symbol,
			Status:         m.Status().String(),
			ReferencePrice: m.Params.ReferencePrice.Dec(),
			MinOrderSize:   m.Params.MinOrderSize.Dec(),
			MaxOrderSize:   m.Params.MaxOrderSize.Dec(),
		}
	}

	respondJSON(w, response)
}

func (s *Server) handleGetMarket(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]

	m, err := s.app.Registry().GetMarket(symbol)
	if err != nil {
		respondError(w, http.StatusNotFound, "market not found", err.Error())
		return
	}

	respondJSON(w, MarketInfo{
		Symbol:         m.Symbol,
		Status:         m.Status().String(),
		ReferencePrice: m.Params.ReferencePrice.Dec(),
		MinOrderSize:   m.Params.MinOrderSize.Dec(),
		MaxOrderSize:   m.Params.MaxOrderSize.Dec(),
	})
}

func (s *Server) handleGetOrderbook(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]

	snap, err := s.app.Snapshot(symbol)
	if err != nil {
		respondError(w, http.StatusNotFound, "orderbook not found", err.Error())
		return
	}

	respondJSON(w, OrderbookSnapshot{
		Symbol:     snap.Symbol,
		Height:     snap.Height,
		LastPrice:  snap.LastPrice.Dec(),
		Orders:     snap.Orders,
		Bids:       toLevels(snap.Bids),
		Asks:       toLevels(snap.Asks),
		StopBids:   toLevels(snap.StopBids),
		StopAsks:   toLevels(snap.StopAsks),
		MarketBids: snap.MarketBids,
		MarketAsks: snap.MarketAsks,
		StateHash:  snap.StateHash.Hex(),
	})
}

func (s *Server) handleGetTrades(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]
	if _, err := s.app.Registry().GetMarket(symbol); err != nil {
		respondError(w, http.StatusNotFound, "market not found", err.Error())
		return
	}

	limit := defaultTradeLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "invalid limit", v)
			return
		}
		limit = min(n, maxTradeLimit)
	}

	trades, err := s.app.RecentTrades(symbol, limit)
	if err != nil {
		s.log.Errorw("trade_history_failed", "symbol", symbol, "err", err)
		respondError(w, http.StatusInternalServerError, "trade history unavailable", "")
		return
	}

	response := make([]TradeInfo, len(trades))
	for i, t := range trades {
		response[i] = toTradeInfo(t)
	}
	respondJSON(w, response)
}

func (s *Server) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, NodeStatus{
		Height:      s.app.Height(),
		MempoolSize: s.app.Pending(),
		Markets:     s.app.Registry().Count(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

// ==============================
// Broadcast Methods (called from the batch loop)
// ==============================

// BroadcastTrade pushes a trade to "trades:{symbol}" subscribers
func (s *Server) BroadcastTrade(t storage.Trade) {
	s.hub.BroadcastToChannel("trades:"+t.Symbol, TradeUpdate{Type: "trade", Trade: toTradeInfo(t)})
}

// BroadcastBatch pushes a batch summary to "batches" subscribers
func (s *Server) BroadcastBatch(res exchange.BatchResult) {
	s.hub.BroadcastToChannel("batches", BatchUpdate{
		Type:     "batch",
		Height:   res.Height,
		Txs:      res.Txs,
		Rejected: res.Rejected,
		Trades:   len(res.Trades),
		AppHash:  res.AppHash.Hex(),
	})
}

// ==============================
// Helper Functions
// ==============================

func toLevels(levels []orderbook.PriceLevel) []PriceLevel {
	out := make([]PriceLevel, len(levels))
	for i, l := range levels {
		out[i] = PriceLevel{Price: l.Price.Dec(), Size: l.Quantity.Dec(), Orders: l.Orders}
	}
	return out
}

func toTradeInfo(t storage.Trade) TradeInfo {
	return TradeInfo{
		Symbol:     t.Symbol,
		Seq:        t.Seq,
		Height:     t.Height,
		Price:      t.Price,
		Size:       t.Quantity,
		Side:       t.TakerSide,
		TakerOwner: t.TakerOwner,
		MakerOwner: t.MakerOwner,
		Timestamp:  t.Timestamp,
	}
}

func respondJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, error string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   error,
		Message: message,
	})
}
