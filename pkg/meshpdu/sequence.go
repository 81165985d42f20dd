package meshpdu

import (
	"errors"
	"sync"
)

// SeqMax is one past the largest representable 24-bit sequence number.
const SeqMax = 1 << 24

// SeqInit is the default initial value for a fresh Counter: starting
// at 0x010000 avoids trivial replay rejection against a network that
// has seen low sequence numbers before.
const SeqInit = 0x010000

// ErrCounterExhausted is returned once the sequence counter would wrap.
// Wrapping is treated as fatal: recovering from it requires a key
// refresh procedure, which is out of scope here, so the caller must stop
// issuing outbound traffic on this MeshProtocol instance.
var ErrCounterExhausted = errors.New("meshpdu: sequence counter exhausted, key refresh required")

// Counter hands out strictly increasing 24-bit sequence numbers for
// outbound network PDUs. It is the sole owner of sequence state for a
// MeshProtocol instance, which normally runs single-threaded with no
// locks required, but the mutex makes it safe to share across a host
// that nonetheless calls it from more than one goroutine.
//
// A monotonic counter that latches into an exhausted state on overflow
// instead of silently wrapping, scaled to the 24-bit range a network
// sequence number actually occupies. Unlike a session's reception-window
// tracking, this protocol never needs replay detection for outbound
// state, so only the issuing half of that bookkeeping applies here.
type Counter struct {
	mu        sync.Mutex
	next      uint32
	exhausted bool
}

// NewCounter creates a sequence counter starting at SeqInit.
func NewCounter() *Counter {
	return NewCounterWithValue(SeqInit)
}

// NewCounterWithValue creates a sequence counter starting at the given
// value, for restoring a persisted counter or for tests that need a
// specific starting point.
func NewCounterWithValue(initial uint32) *Counter {
	return &Counter{next: initial & (SeqMax - 1)}
}

// Next reserves and returns a single sequence number.
func (c *Counter) Next() (uint32, error) {
	seqs, err := c.Reserve(1)
	if err != nil {
		return 0, err
	}
	return seqs[0], nil
}

// Reserve atomically reserves n consecutive sequence numbers, used by
// the segmentation path: a segmented device-key message uses
// seq..seq+N-1 inclusive for its N segments, committed to the counter
// atomically relative to any other outbound message. Returns the n
// values in order.
func (c *Counter) Reserve(n int) ([]uint32, error) {
	if n <= 0 {
		return nil, nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.exhausted {
		return nil, ErrCounterExhausted
	}
	if uint64(c.next)+uint64(n) > SeqMax {
		c.exhausted = true
		return nil, ErrCounterExhausted
	}

	out := make([]uint32, n)
	for i := 0; i < n; i++ {
		out[i] = c.next
		c.next++
	}
	if c.next >= SeqMax {
		c.exhausted = true
	}
	return out, nil
}

// Peek returns the next value that would be issued, without consuming
// it. Used by tests that assert strict ordering across pipeline calls.
func (c *Counter) Peek() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.next
}

// Exhausted reports whether the counter has latched after overflow.
func (c *Counter) Exhausted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.exhausted
}
