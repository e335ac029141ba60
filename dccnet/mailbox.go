package dccnet

// mailbox is a single-slot holder for a parsed frame awaiting consumption.
// It is implemented as a capacity-1 channel: a non-blocking send realises
// the "store only if the slot is currently empty, otherwise drop silently"
// rule directly, and a receive blocks the consumer until a frame (or a
// close) arrives.
type mailbox struct {
	ch chan *Frame
}

func newMailbox() *mailbox {
	return &mailbox{ch: make(chan *Frame, 1)}
}

// put stores f if the slot is empty. It reports whether f was stored; a
// false return means a frame was already pending and f was dropped, which
// is the expected outcome for a stale duplicate ACK or DATA frame.
func (m *mailbox) put(f *Frame) bool {
	select {
	case m.ch <- f:
		return true
	default:
		return false
	}
}

// take removes and returns the pending frame, blocking until one is
// available or done is closed.
func (m *mailbox) take(done <-chan struct{}) (*Frame, bool) {
	select {
	case f := <-m.ch:
		return f, true
	case <-done:
		return nil, false
	}
}

// rstSignal is a broadcast, fire-once notification that an RST frame has
// been observed, used so a sender blocked waiting for an ACK can notice a
// concurrent RST without consuming the dataMbx slot that ReceiveFrame
// also needs to observe the same RST on (§4.3 requires both: the waiting
// sender aborts immediately, and ReceiveFrame still returns RstReceived
// to a concurrently blocked receive loop).
type rstSignal struct {
	ch         chan struct{}
	diagnostic string
	fired      bool
}

func newRstSignal() *rstSignal {
	return &rstSignal{ch: make(chan struct{})}
}

func (r *rstSignal) fire(diagnostic string) {
	if r.fired {
		return
	}
	r.fired = true
	r.diagnostic = diagnostic
	close(r.ch)
}
