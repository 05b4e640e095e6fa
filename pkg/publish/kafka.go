package publish

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/uhyunpark/matchbook/pkg/storage"
)

const (
	queueSize    = 4096
	maxBatch     = 256
	flushTimeout = 5 * time.Second
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// TradePublisher forwards journaled trades to a Kafka topic, keyed by symbol so
// each market's trades stay ordered within one partition. Publish never blocks
// the batch loop; a full queue drops the trade, which remains in the journal.
type TradePublisher struct {
	w     messageWriter
	queue chan storage.Trade
	log   *zap.SugaredLogger
}

func NewKafkaTradePublisher(brokers []string, topic string, log *zap.SugaredLogger) *TradePublisher {
	return newTradePublisher(&kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Async:        false,
		BatchTimeout: 10 * time.Millisecond,
	}, queueSize, log)
}

func newTradePublisher(w messageWriter, size int, log *zap.SugaredLogger) *TradePublisher {
	return &TradePublisher{w: w, queue: make(chan storage.Trade, size), log: log}
}

// Publish queues t. It reports false if the queue is full.
func (p *TradePublisher) Publish(t storage.Trade) bool {
	select {
	case p.queue <- t:
		return true
	default:
		p.log.Warnw("trade_publish_dropped", "symbol", t.Symbol, "seq", t.Seq)
		return false
	}
}

// Run writes queued trades until ctx is done, then flushes what is left.
func (p *TradePublisher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), flushTimeout)
			p.write(flushCtx, p.collect(nil))
			cancel()
			return
		case t := <-p.queue:
			p.write(ctx, p.collect([]storage.Trade{t}))
		}
	}
}

// collect appends whatever is queued, up to maxBatch, without waiting.
func (p *TradePublisher) collect(batch []storage.Trade) []storage.Trade {
	for len(batch) < maxBatch {
		select {
		case t := <-p.queue:
			batch = append(batch, t)
		default:
			return batch
		}
	}
	return batch
}

func (p *TradePublisher) write(ctx context.Context, trades []storage.Trade) {
	if len(trades) == 0 {
		return
	}
	msgs := make([]kafka.Message, 0, len(trades))
	for i := range trades {
		value, err := json.Marshal(&trades[i])
		if err != nil {
			p.log.Errorw("trade_marshal_failed", "symbol", trades[i].Symbol, "seq", trades[i].Seq, "err", err)
			continue
		}
		msgs = append(msgs, kafka.Message{Key: []byte(trades[i].Symbol), Value: value})
	}
	if err := p.w.WriteMessages(ctx, msgs...); err != nil {
		p.log.Warnw("trade_publish_failed",
			"count", len(msgs),
			"first_seq", trades[0].Seq,
			"err", err)
	}
}

func (p *TradePublisher) Close() error { return p.w.Close() }
