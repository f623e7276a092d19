// Package trace emits the exact-format protocol trace lines mandated by
// §4.6, and serializes outbound socket writes so a RETRIEVE payload is
// never interleaved with another worker's response header.
//
// This is deliberately separate from the operational logrus logging used
// elsewhere in this repository (see internal/dispatch and cmd/imgserver):
// trace lines are a client-observable protocol artifact with a fixed
// textual format, not a diagnostic stream, so they bypass logrus and go
// straight to an io.Writer (ordinarily os.Stdout).
package trace

import (
	"fmt"
	"io"
	"sync"

	"github.com/bu-cs350/imgserve/internal/wire"
)

// Stamp is a monotonic timestamp recorded as seconds with nanosecond
// precision, printed as decimal seconds with six fractional digits.
type Stamp struct {
	Sec  uint64
	Nsec uint64
}

func (s Stamp) seconds() float64 {
	return float64(s.Sec) + float64(s.Nsec)/1e9
}

// Emitter serializes trace lines to w under a dedicated mutex.
type Emitter struct {
	mu sync.Mutex
	w  io.Writer
}

// NewEmitter returns an Emitter writing to w.
func NewEmitter(w io.Writer) *Emitter {
	return &Emitter{w: w}
}

func (e *Emitter) writeLine(line string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	fmt.Fprint(e.w, line)
}

// Completion emits one image-op (or registration) completion line:
// T<worker_id> R<req_id>:<sent>,<op_name>,<overwrite>,<in_img_id>,<out_img_id>,<receipt>,<start>,<completion>
//
// workerID is "W" for the dispatcher's own REGISTER completions, or the
// worker's numeric index otherwise.
func (e *Emitter) Completion(workerID string, reqID uint64, sent Stamp, op wire.Op, overwrite bool, inImgID, outImgID uint64, receipt, start, completion Stamp) {
	e.writeLine(fmt.Sprintf(
		"T%s R%d:%.6f,%s,%t,%d,%d,%.6f,%.6f,%.6f\n",
		workerID, reqID, sent.seconds(), op.String(), overwrite, inImgID, outImgID,
		receipt.seconds(), start.seconds(), completion.seconds(),
	))
}

// QueueDump emits `Q:[R<id>,R<id>,...]` for the given snapshot of queued
// request IDs, in admission order.
func (e *Emitter) QueueDump(ids []uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	fmt.Fprint(e.w, "Q:[")
	for i, id := range ids {
		if i > 0 {
			fmt.Fprint(e.w, ",")
		}
		fmt.Fprintf(e.w, "R%d", id)
	}
	fmt.Fprint(e.w, "]\n")
}

// Rejection emits `X<req_id>:<sent>,<length>,<receipt>`.
func (e *Emitter) Rejection(reqID uint64, sent, length, receipt Stamp) {
	e.writeLine(fmt.Sprintf("X%d:%.6f,%.6f,%.6f\n", reqID, sent.seconds(), length.seconds(), receipt.seconds()))
}

// OutboundGate serializes the pair {send response header; optionally send
// image payload} onto a single net.Conn-like writer, so the two writes a
// RETRIEVE response requires are never split apart by another worker's
// unrelated write.
type OutboundGate struct {
	mu sync.Mutex
	w  io.Writer
}

// NewOutboundGate returns a gate writing to w.
func NewOutboundGate(w io.Writer) *OutboundGate {
	return &OutboundGate{w: w}
}

// Send runs fn while holding the gate, guaranteeing fn's writes are
// contiguous with respect to any other goroutine's Send.
func (g *OutboundGate) Send(fn func(io.Writer) error) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return fn(g.w)
}
