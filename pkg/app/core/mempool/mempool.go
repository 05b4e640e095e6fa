package mempool

import (
	"encoding/json"
	"sync"
)

// TxType classifies raw intake transactions into sequencing buckets.
type TxType int

const (
	TxUnknown TxType = iota
	TxCancel
	TxOrder
)

func (t TxType) String() string {
	switch t {
	case TxCancel:
		return "cancel"
	case TxOrder:
		return "order"
	default:
		return "unknown"
	}
}

// ClassifyRaw classifies a raw transaction by its JSON envelope:
//
//	{"type": "order", ...}  -> TxOrder
//	{"type": "cancel", ...} -> TxCancel
//
// Anything else is TxUnknown; it is still sequenced so the applier can reject
// and log it in arrival order.
func ClassifyRaw(b []byte) TxType {
	if len(b) == 0 || b[0] != '{' {
		return TxUnknown
	}

	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(b, &envelope); err != nil {
		return TxUnknown
	}

	switch envelope.Type {
	case "cancel":
		return TxCancel
	case "order":
		return TxOrder
	default:
		return TxUnknown
	}
}

// Mempool sequences intake into one serialized stream per batch:
// (1) unknown, (2) cancel, (3) orders. Within each bucket, FIFO by arrival.
// Cancels go first so a cancelled resting order cannot trade in the same batch.
type Mempool struct {
	mu      sync.Mutex
	unknown [][]byte
	cancel  [][]byte
	orders  [][]byte
}

func NewMempool() *Mempool {
	return &Mempool{}
}

// PushRaw classifies and enqueues a copy of b.
func (m *Mempool) PushRaw(b []byte) TxType {
	cp := append([]byte(nil), b...)
	typ := ClassifyRaw(b)

	m.mu.Lock()
	defer m.mu.Unlock()
	switch typ {
	case TxCancel:
		m.cancel = append(m.cancel, cp)
	case TxOrder:
		m.orders = append(m.orders, cp)
	default:
		m.unknown = append(m.unknown, cp)
	}
	return typ
}

// Drain returns up to maxBytes worth of txs in sequencing order and removes
// them. maxBytes <= 0 drains everything.
func (m *Mempool) Drain(maxBytes int64) [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out [][]byte
	var used int64
	full := false

	pull := func(q *[][]byte) {
		for len(*q) > 0 && !full {
			tx := (*q)[0]
			n := int64(len(tx))
			if maxBytes > 0 && used+n > maxBytes {
				full = true
				return
			}
			out = append(out, tx)
			used += n
			*q = (*q)[1:]
		}
	}

	pull(&m.unknown)
	pull(&m.cancel)
	pull(&m.orders)

	return out
}

// Len returns total pending txs.
func (m *Mempool) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.unknown) + len(m.cancel) + len(m.orders)
}
