package p2p

import (
	"context"
	"fmt"

	libp2p "github.com/libp2p/go-libp2p"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	ma "github.com/multiformats/go-multiaddr"
	"go.uber.org/zap"

	"github.com/uhyunpark/matchbook/pkg/app/core/mempool"
)

// DefaultTopic carries raw JSON intake transactions.
const DefaultTopic = "matchbook/txs/1"

// Sink receives gossiped transactions; exchange.App satisfies it.
type Sink interface {
	PushTx(b []byte) mempool.TxType
}

// TxGossip relays intake transactions between nodes over GossipSub. Every node
// sequences what it receives through its own mempool; there is no agreement
// on order across nodes.
type TxGossip struct {
	h     host.Host
	ps    *pubsub.PubSub
	topic *pubsub.Topic
	sub   *pubsub.Subscription
	sink  Sink
	log   *zap.SugaredLogger
}

type Config struct {
	ListenAddr string   // multiaddr, e.g. /ip4/0.0.0.0/tcp/4001
	Bootstrap  []string // full /p2p/ multiaddrs
	Topic      string
	Logger     *zap.SugaredLogger
}

func NewTxGossip(ctx context.Context, cfg Config, sink Sink) (*TxGossip, error) {
	if cfg.Topic == "" {
		cfg.Topic = DefaultTopic
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}

	var opts []libp2p.Option
	if cfg.ListenAddr != "" {
		maddr, err := ma.NewMultiaddr(cfg.ListenAddr)
		if err != nil {
			return nil, fmt.Errorf("listen addr: %w", err)
		}
		opts = append(opts, libp2p.ListenAddrs(maddr))
	}
	h, err := libp2p.New(opts...)
	if err != nil {
		return nil, err
	}
	ps, err := pubsub.NewGossipSub(ctx, h)
	if err != nil {
		h.Close()
		return nil, err
	}

	for _, bs := range cfg.Bootstrap {
		if err := connectMultiaddr(ctx, h, bs); err != nil {
			cfg.Logger.Warnw("bootstrap_connect_failed", "addr", bs, "err", err)
		}
	}

	topic, err := ps.Join(cfg.Topic)
	if err != nil {
		h.Close()
		return nil, err
	}
	sub, err := topic.Subscribe()
	if err != nil {
		h.Close()
		return nil, err
	}

	g := &TxGossip{h: h, ps: ps, topic: topic, sub: sub, sink: sink, log: cfg.Logger}
	go g.handleTxs(ctx)

	cfg.Logger.Infow("libp2p_ready", "peer", h.ID().String(), "listen", cfg.ListenAddr, "topic", cfg.Topic)
	return g, nil
}

func connectMultiaddr(ctx context.Context, h host.Host, addr string) error {
	m, err := ma.NewMultiaddr(addr)
	if err != nil {
		return err
	}
	info, err := peer.AddrInfoFromP2pAddr(m)
	if err != nil {
		return err
	}
	return h.Connect(ctx, *info)
}

// Connect dials a peer by full /p2p/ multiaddr.
func (g *TxGossip) Connect(ctx context.Context, addr string) error {
	return connectMultiaddr(ctx, g.h, addr)
}

// Addrs returns dialable /p2p/ multiaddrs of this node.
func (g *TxGossip) Addrs() []string {
	info := peer.AddrInfo{ID: g.h.ID(), Addrs: g.h.Addrs()}
	addrs, err := peer.AddrInfoToP2pAddrs(&info)
	if err != nil {
		return nil
	}
	out := make([]string, len(addrs))
	for i, a := range addrs {
		out[i] = a.String()
	}
	return out
}

// Host exposes the libp2p host.
func (g *TxGossip) Host() host.Host { return g.h }

// Publish relays a raw transaction to peers. The local node does not receive
// its own message back; push it to the local mempool separately.
func (g *TxGossip) Publish(ctx context.Context, raw []byte) error {
	return g.topic.Publish(ctx, raw)
}

// Relay returns a Sink that pushes to local and then publishes to peers.
func (g *TxGossip) Relay(ctx context.Context, local Sink) Sink {
	return relaySink{ctx: ctx, g: g, local: local}
}

type relaySink struct {
	ctx   context.Context
	g     *TxGossip
	local Sink
}

func (r relaySink) PushTx(b []byte) mempool.TxType {
	typ := r.local.PushTx(b)
	// callers may reuse b
	if err := r.g.Publish(r.ctx, append([]byte(nil), b...)); err != nil {
		r.g.log.Warnw("tx_gossip_publish_failed", "err", err)
	}
	return typ
}

// inbound

func (g *TxGossip) handleTxs(ctx context.Context) {
	self := g.h.ID()
	for {
		msg, err := g.sub.Next(ctx)
		if err != nil {
			return
		}
		if msg.ReceivedFrom == self {
			continue
		}
		typ := g.sink.PushTx(msg.Data)
		g.log.Debugw("tx_gossip_received", "from", msg.ReceivedFrom.String(), "type", typ.String(), "bytes", len(msg.Data))
	}
}

func (g *TxGossip) Close() error {
	g.sub.Cancel()
	if err := g.topic.Close(); err != nil {
		g.log.Warnw("topic_close_failed", "err", err)
	}
	return g.h.Close()
}
