package p2p

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/uhyunpark/matchbook/pkg/app/core/mempool"
)

type recordSink struct {
	mu  sync.Mutex
	txs [][]byte
}

func (s *recordSink) PushTx(b []byte) mempool.TxType {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txs = append(s.txs, append([]byte(nil), b...))
	return mempool.ClassifyRaw(b)
}

func (s *recordSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.txs)
}

func TestTxGossipRelay(t *testing.T) {
	if testing.Short() {
		t.Skip("opens local sockets")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	sinkA, sinkB := &recordSink{}, &recordSink{}
	a, err := NewTxGossip(ctx, Config{ListenAddr: "/ip4/127.0.0.1/tcp/0"}, sinkA)
	if err != nil {
		t.Fatalf("node a: %v", err)
	}
	defer a.Close()
	b, err := NewTxGossip(ctx, Config{ListenAddr: "/ip4/127.0.0.1/tcp/0", Bootstrap: a.Addrs()}, sinkB)
	if err != nil {
		t.Fatalf("node b: %v", err)
	}
	defer b.Close()

	tx := []byte(`{"type":"order","order":{"symbol":"BTC-USDT","owner":"a","nonce":"1","side":"bid","quantity":"1"}}`)

	local := &recordSink{}
	relay := a.Relay(ctx, local)

	// the gossip mesh forms after a heartbeat; keep publishing until it lands
	tick := time.NewTicker(200 * time.Millisecond)
	defer tick.Stop()
	for sinkB.count() == 0 {
		select {
		case <-ctx.Done():
			t.Fatal("transaction never relayed")
		case <-tick.C:
			if typ := relay.PushTx(tx); typ != mempool.TxOrder {
				t.Fatalf("relay PushTx() = %v, want order", typ)
			}
		}
	}
	if local.count() == 0 {
		t.Error("relay did not push to the local sink")
	}

	sinkB.mu.Lock()
	got := string(sinkB.txs[0])
	sinkB.mu.Unlock()
	if got != string(tx) {
		t.Errorf("relayed %q, want %q", got, tx)
	}
	if sinkA.count() != 0 {
		t.Errorf("publisher received its own tx %d times", sinkA.count())
	}
}

func TestNewTxGossipBadListenAddr(t *testing.T) {
	if _, err := NewTxGossip(context.Background(), Config{ListenAddr: "not-a-multiaddr"}, &recordSink{}); err == nil {
		t.Error("NewTxGossip() accepted a malformed listen addr")
	}
}
