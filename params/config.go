package params

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/holiman/uint256"
	"github.com/joho/godotenv"
)

// MarketSpec is one hosted instrument and the price its book starts from.
type MarketSpec struct {
	Symbol         string
	ReferencePrice uint256.Int
}

type Node struct {
	DataDir   string // pebble trade journal lives in DataDir/trades
	LogFile   string
	LogLevel  string
	OrderFeed string // newline-delimited JSON tx file; empty reads stdin

	// BatchInterval paces FinalizeBatch. Every tick drains the mempool once.
	BatchInterval time.Duration

	// APIAddr serves the read-only operator API when set, e.g. "127.0.0.1:8080".
	APIAddr    string
	APIOrigins []string // CORS allowed origins

	// P2PListen enables transaction gossip when set, e.g. "/ip4/0.0.0.0/tcp/4001".
	P2PListen    string
	P2PBootstrap []string

	// KafkaBrokers enables trade publishing when set.
	KafkaBrokers    []string
	KafkaTradeTopic string

	// EnableTxGen starts the synthetic load generator.
	EnableTxGen bool
	TxGenMode   string // "default" or "high"
}

type Engine struct {
	MaxBatchBytes       int64
	MaxActivationRounds int
}

type Config struct {
	Markets []MarketSpec
	Node    Node
	Engine  Engine
}

func Default() Config {
	return Config{
		Markets: []MarketSpec{{Symbol: "BTC-USDT", ReferencePrice: *uint256.NewInt(100)}},
		Node: Node{
			DataDir:       "data",
			LogFile:       "data/node.log",
			LogLevel:      "info",
			BatchInterval: 200 * time.Millisecond,
			TxGenMode:     "default",
			APIOrigins:    []string{"http://localhost:3000"},

			KafkaTradeTopic: "matchbook.trades",
		},
		Engine: Engine{
			MaxBatchBytes:       1 << 24,
			MaxActivationRounds: 16,
		},
	}
}

// LoadFromEnv loads configuration from .env file (if exists) and environment variables
// Priority: ENV > .env file > defaults
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	// Try to load .env file (optional - won't fail if not exists)
	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load() // loads .env from current directory
	}

	if markets := os.Getenv("MARKETS"); markets != "" {
		if parsed, ok := ParseMarkets(markets); ok {
			cfg.Markets = parsed
		}
	}

	cfg.Node.DataDir = getEnv("DATA_DIR", cfg.Node.DataDir)
	cfg.Node.LogFile = getEnv("LOG_FILE", cfg.Node.LogFile)
	cfg.Node.LogLevel = getEnv("LOG_LEVEL", cfg.Node.LogLevel)
	cfg.Node.OrderFeed = getEnv("ORDER_FEED", cfg.Node.OrderFeed)
	cfg.Node.TxGenMode = getEnv("TXGEN_MODE", cfg.Node.TxGenMode)
	cfg.Node.EnableTxGen = os.Getenv("ENABLE_TXGEN") == "true"
	cfg.Node.APIAddr = getEnv("API_ADDR", cfg.Node.APIAddr)
	cfg.Node.P2PListen = getEnv("P2P_LISTEN", cfg.Node.P2PListen)
	if bs := os.Getenv("P2P_BOOTSTRAP"); bs != "" {
		cfg.Node.P2PBootstrap = splitList(bs)
	}

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.Node.KafkaBrokers = splitList(brokers)
	}
	cfg.Node.KafkaTradeTopic = getEnv("KAFKA_TRADE_TOPIC", cfg.Node.KafkaTradeTopic)

	// Example: "http://localhost:3000,http://localhost:3001"
	if origins := os.Getenv("API_CORS_ORIGINS"); origins != "" {
		cfg.Node.APIOrigins = splitList(origins)
	}

	if interval := os.Getenv("BATCH_INTERVAL_MS"); interval != "" {
		if ms, err := strconv.Atoi(interval); err == nil && ms > 0 {
			cfg.Node.BatchInterval = time.Duration(ms) * time.Millisecond
		}
	}

	if maxBytes := os.Getenv("MAX_BATCH_BYTES"); maxBytes != "" {
		if n, err := strconv.ParseInt(maxBytes, 10, 64); err == nil {
			cfg.Engine.MaxBatchBytes = n
		}
	}

	if rounds := os.Getenv("MAX_ACTIVATION_ROUNDS"); rounds != "" {
		if n, err := strconv.Atoi(rounds); err == nil && n > 0 {
			cfg.Engine.MaxActivationRounds = n
		}
	}

	return cfg
}

// ParseMarkets parses "BTC-USDT=100,ETH-USDT=0x64". Prices are decimal or 0x hex.
// ok is false if any entry is malformed or the list is empty.
func ParseMarkets(s string) ([]MarketSpec, bool) {
	var out []MarketSpec
	for _, entry := range strings.Split(s, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		sym, price, found := strings.Cut(entry, "=")
		sym, price = strings.TrimSpace(sym), strings.TrimSpace(price)
		if !found || sym == "" {
			return nil, false
		}

		var (
			ref *uint256.Int
			err error
		)
		if strings.HasPrefix(price, "0x") {
			ref, err = uint256.FromHex(price)
		} else {
			ref, err = uint256.FromDecimal(price)
		}
		if err != nil {
			return nil, false
		}
		out = append(out, MarketSpec{Symbol: sym, ReferencePrice: *ref})
	}
	return out, len(out) > 0
}

// splitList splits a comma-separated list, dropping empty entries
func splitList(s string) []string {
	var out []string
	for _, v := range strings.Split(s, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
