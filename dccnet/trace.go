package dccnet

import (
	"context"
	"log"
	"reflect"
	"time"
)

// unique type to prevent context key collisions.
type traceContextKey struct{}

// ContextTrace returns the Trace associated with ctx, or nil if none.
func ContextTrace(ctx context.Context) *Trace {
	trace, _ := ctx.Value(traceContextKey{}).(*Trace)
	return trace
}

// WithTrace returns a new context based on ctx carrying trace. If ctx
// already carries a Trace, trace's hooks run first and the previous
// hooks run after, so an inner caller never silences an outer one.
func WithTrace(ctx context.Context, trace *Trace) context.Context {
	if trace == nil {
		panic("dccnet: nil trace")
	}
	old := ContextTrace(ctx)
	trace.compose(old)
	return context.WithValue(ctx, traceContextKey{}, trace)
}

// Trace defines optional hooks invoked at points of interest in the
// connection lifecycle. Any field left nil is simply not called; Trace
// values are safe to use partially populated.
type Trace struct {
	// ConnectStart is called before dialing or accepting target.
	ConnectStart func(connID string, target string)
	// ConnectDone is called once the connection is established (or fails).
	ConnectDone func(connID string, target string, err error, d time.Duration)
	// ConnectionClosed is called once the connection is fully torn down.
	ConnectionClosed func(connID string, err error)

	// FrameSent is called after a frame has been written to the wire.
	FrameSent func(connID string, f *Frame)
	// FrameReceived is called after a frame has been parsed off the wire.
	FrameReceived func(connID string, f *Frame)
	// DecodeError is called when the demultiplexer drops unparseable bytes.
	DecodeError func(connID string, err error)

	// Retransmit is called before each retransmission of a DATA/END frame.
	Retransmit func(connID string, id uint16, attempt int)
	// AckTimeout is called when an ACK_WAIT_TIMEOUT elapses without a match.
	AckTimeout func(connID string, id uint16, attempt int)
	// RstReceived is called when a RST frame is observed.
	RstReceived func(connID string, diagnostic string)
	// DemuxShutdown is called when the demultiplexer exits and synthesizes END.
	DemuxShutdown func(connID string, cause error)

	// Error is a catch-all for errors not covered by a more specific hook.
	Error func(connID string, context string, err error)
}

// compose modifies t such that it respects the previously-registered
// hooks in old: for each non-nil field in both, t's hook runs first and
// old's hook runs after.
func (t *Trace) compose(old *Trace) {
	if old == nil {
		return
	}
	tv := reflect.ValueOf(t).Elem()
	ov := reflect.ValueOf(old).Elem()
	structType := tv.Type()
	for i := 0; i < structType.NumField(); i++ {
		tf := tv.Field(i)
		if tf.Type().Kind() != reflect.Func {
			continue
		}
		of := ov.Field(i)
		if of.IsNil() {
			continue
		}
		if tf.IsNil() {
			tf.Set(of)
			continue
		}
		tfCopy := reflect.ValueOf(tf.Interface())
		newFunc := reflect.MakeFunc(tf.Type(), func(args []reflect.Value) []reflect.Value {
			tfCopy.Call(args)
			return of.Call(args)
		})
		tv.Field(i).Set(newFunc)
	}
}

// DefaultLoggingHooks logs only error-shaped events via the standard log
// package, the same minimal default the teacher library ships.
var DefaultLoggingHooks = &Trace{
	Error: func(connID, context string, err error) {
		log.Printf("dccnet[%s]: %s: %v", connID, context, err)
	},
	RstReceived: func(connID, diagnostic string) {
		log.Printf("dccnet[%s]: RST received: %s", connID, diagnostic)
	},
}

// DiagnosticTrace logs every frame event; useful when debugging
// retransmission or duplicate-suppression behaviour.
var DiagnosticTrace = &Trace{
	ConnectStart: func(connID, target string) {
		log.Printf("dccnet[%s]: connecting to %s", connID, target)
	},
	ConnectDone: func(connID, target string, err error, d time.Duration) {
		log.Printf("dccnet[%s]: connect to %s done err=%v took=%s", connID, target, err, d)
	},
	ConnectionClosed: func(connID string, err error) {
		log.Printf("dccnet[%s]: connection closed err=%v", connID, err)
	},
	FrameSent: func(connID string, f *Frame) {
		log.Printf("dccnet[%s]: SEND id=%d flags=0x%02x len=%d", connID, f.ID, f.Flags, len(f.Payload))
	},
	FrameReceived: func(connID string, f *Frame) {
		log.Printf("dccnet[%s]: RECV id=%d flags=0x%02x len=%d", connID, f.ID, f.Flags, len(f.Payload))
	},
	DecodeError: func(connID string, err error) {
		log.Printf("dccnet[%s]: decode error (dropped): %v", connID, err)
	},
	Retransmit: func(connID string, id uint16, attempt int) {
		log.Printf("dccnet[%s]: retransmit id=%d attempt=%d", connID, id, attempt)
	},
	AckTimeout: func(connID string, id uint16, attempt int) {
		log.Printf("dccnet[%s]: ack timeout id=%d attempt=%d", connID, id, attempt)
	},
	RstReceived: func(connID, diagnostic string) {
		log.Printf("dccnet[%s]: RST received: %s", connID, diagnostic)
	},
	DemuxShutdown: func(connID string, cause error) {
		log.Printf("dccnet[%s]: demultiplexer shutdown: %v", connID, cause)
	},
	Error: func(connID, context string, err error) {
		log.Printf("dccnet[%s]: %s: %v", connID, context, err)
	},
}
