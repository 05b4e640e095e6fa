package exchange

import (
	"math/rand"

	ethCrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"github.com/uhyunpark/matchbook/pkg/app/core/orderbook"
	"github.com/uhyunpark/matchbook/pkg/app/core/transaction"
)

// TxGenerator creates random order and cancel transactions for load testing.
// Owners are fresh Ethereum addresses; nonces count up per owner.
type TxGenerator struct {
	accounts []string
	symbols  []string
	nonces   map[string]uint64
	mid      uint64
	rng      *rand.Rand
}

// NewTxGenerator creates a new transaction generator
func NewTxGenerator(numAccounts int, symbols []string, mid uint64, seed int64) *TxGenerator {
	if numAccounts <= 0 {
		numAccounts = 1
	}
	if mid < 20 {
		mid = 20
	}
	if mid > MaxFeederMid {
		mid = MaxFeederMid
	}
	accounts := make([]string, numAccounts)
	for i := range accounts {
		key, err := ethCrypto.GenerateKey()
		if err != nil {
			panic(err)
		}
		accounts[i] = ethCrypto.PubkeyToAddress(key.PublicKey).Hex()
	}

	return &TxGenerator{
		accounts: accounts,
		symbols:  symbols,
		nonces:   make(map[string]uint64),
		mid:      mid,
		rng:      rand.New(rand.NewSource(seed)),
	}
}

// GenerateOrder creates a random order transaction: 50% limit, 30% market,
// 10% stop, 10% stop-limit; one in ten is all-or-nothing.
func (g *TxGenerator) GenerateOrder() []byte {
	owner := g.accounts[g.rng.Intn(len(g.accounts))]
	symbol := g.symbols[g.rng.Intn(len(g.symbols))]

	side := orderbook.Bid
	if g.rng.Intn(2) == 1 {
		side = orderbook.Ask
	}

	g.nonces[owner]++
	o := orderbook.Order{
		Owner:        owner,
		Nonce:        *uint256.NewInt(g.nonces[owner]),
		Quantity:     *uint256.NewInt(uint64(g.rng.Intn(100) + 1)),
		LimitPrice:   orderbook.NoLimit(side),
		StopPrice:    orderbook.NoStop(side),
		Side:         side,
		OnlyFullFill: g.rng.Intn(10) == 0,
	}

	// Price band is mid ±5%
	band := g.mid / 20
	price := func() uint256.Int {
		return *uint256.NewInt(g.mid - band + uint64(g.rng.Int63n(int64(2*band+1))))
	}

	switch r := g.rng.Intn(100); {
	case r < 50:
		o.LimitPrice = price()
	case r < 80:
		// market
	case r < 90:
		o.StopPrice = price()
	default:
		o.StopPrice = price()
		o.LimitPrice = price()
	}

	tx := transaction.Transaction{Type: transaction.TxTypeOrder, Order: transaction.FromOrder(symbol, o)}
	b, _ := tx.Serialize()
	return b
}

// GenerateCancel cancels one of an owner's recent nonces. It may miss; the
// app counts that as a rejected tx.
func (g *TxGenerator) GenerateCancel() []byte {
	owner := g.accounts[g.rng.Intn(len(g.accounts))]
	symbol := g.symbols[g.rng.Intn(len(g.symbols))]

	nonce := g.nonces[owner]
	if back := uint64(g.rng.Intn(10)); back < nonce {
		nonce -= back
	}

	tx := transaction.Transaction{
		Type: transaction.TxTypeCancel,
		Cancel: &transaction.CancelPayload{
			Symbol: symbol,
			Owner:  owner,
			Nonce:  uint256.NewInt(nonce).Dec(),
		},
	}
	b, _ := tx.Serialize()
	return b
}

// GenerateMix creates a random transaction (90% orders, 10% cancels)
func (g *TxGenerator) GenerateMix() []byte {
	if g.rng.Intn(100) < 90 {
		return g.GenerateOrder()
	}
	return g.GenerateCancel()
}

// GenerateBatch creates multiple random transactions
func (g *TxGenerator) GenerateBatch(count int) [][]byte {
	batch := make([][]byte, count)
	for i := range batch {
		batch[i] = g.GenerateMix()
	}
	return batch
}
