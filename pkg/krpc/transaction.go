package krpc

import (
	"encoding/binary"
	"errors"
	"sync"
	"time"
)

// TransactionIDLen is the width of ids produced by TransactionIDs.
const TransactionIDLen = 2

// ErrTransactionTimeout is passed to a callback whose query got no answer.
var ErrTransactionTimeout = errors.New("transaction timeout")

// TransactionIDs hands out sequential 2-byte transaction ids. Each node
// owns its own generator. The zero value is ready to use.
type TransactionIDs struct {
	mu   sync.Mutex
	next uint16
}

// Next returns a new id. Ids wrap after 65535.
func (g *TransactionIDs) Next() []byte {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.next++

	return binary.BigEndian.AppendUint16(nil, g.next)
}

// Callback receives the answer to a query: the response, or an error
// that is either *Error or ErrTransactionTimeout.
type Callback func(msg *Message, err error)

// Pending tracks outstanding queries by transaction id.
type Pending struct {
	ids     *TransactionIDs
	timeout time.Duration

	mu  sync.Mutex
	cbs map[string]Callback
}

// NewPending returns a tracker drawing ids from ids. Callbacks not
// resolved within timeout fire with ErrTransactionTimeout.
func NewPending(ids *TransactionIDs, timeout time.Duration) *Pending {
	return &Pending{
		ids:     ids,
		timeout: timeout,
		cbs:     make(map[string]Callback),
	}
}

// Register allocates a transaction id for a query and remembers cb.
func (p *Pending) Register(cb Callback) []byte {
	tid := p.ids.Next()
	key := string(tid)

	p.mu.Lock()
	p.cbs[key] = cb
	p.mu.Unlock()

	time.AfterFunc(p.timeout, func() {
		if cb, ok := p.take(key); ok {
			cb(nil, ErrTransactionTimeout)
		}
	})

	return tid
}

func (p *Pending) take(key string) (Callback, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	cb, ok := p.cbs[key]
	if ok {
		delete(p.cbs, key)
	}

	return cb, ok
}

// Resolve hands a response or error message to the callback waiting on
// its transaction id. It reports false for unsolicited messages and for
// queries.
func (p *Pending) Resolve(msg *Message) bool {
	if msg.Y == TypeQuery {
		return false
	}

	cb, ok := p.take(string(msg.T))
	if !ok {
		return false
	}

	if msg.Y == TypeError {
		cb(nil, msg.Err)
	} else {
		cb(msg, nil)
	}

	return true
}

// Len returns the number of outstanding queries.
func (p *Pending) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return len(p.cbs)
}
