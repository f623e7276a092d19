// Package dispatch implements the per-connection request dispatcher
// (§4.5): it owns the socket, builds the queue and worker pool for the
// connection's lifetime, and decides registration-vs-enqueue for each
// incoming request.
package dispatch

import (
	"errors"
	"io"
	"net"
	"time"

	"github.com/bu-cs350/imgserve/internal/imgproc"
	"github.com/bu-cs350/imgserve/internal/imgstore"
	"github.com/bu-cs350/imgserve/internal/queue"
	"github.com/bu-cs350/imgserve/internal/trace"
	"github.com/bu-cs350/imgserve/internal/turnstile"
	"github.com/bu-cs350/imgserve/internal/wire"
	"github.com/cloudwego/gopkg/bufiox"
	log "github.com/sirupsen/logrus"

	"github.com/bu-cs350/imgserve/internal/worker"
)

// Config carries the per-connection tunables (§6).
type Config struct {
	QueueSize int
	Workers   int
	Policy    queue.Policy
}

// Handle runs the dispatcher loop for one accepted connection until EOF,
// a read error, or a fatal write error. It blocks until the connection is
// done being served.
func Handle(conn net.Conn, cfg Config, store *imgstore.Store, table *turnstile.Table, emitter *trace.Emitter) error {
	defer conn.Close()

	q := queue.New[*worker.Job](cfg.QueueSize, cfg.Policy)
	outbound := trace.NewOutboundGate(conn)
	pool := worker.NewPool(cfg.Workers, q, store, table, emitter, outbound)
	pool.Start()
	defer pool.Stop()

	r := bufiox.NewDefaultReader(conn)

	for {
		req, err := wire.ReadRequest(r)
		_ = r.Release(err)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return ErrNetworkFailure
		}
		receipt := stamp()

		if req.Op == wire.OpRegister {
			if err := handleRegister(r, req, receipt, conn, store, table, outbound, emitter); err != nil {
				return err
			}
			continue
		}

		if !req.Op.Valid() {
			log.WithField("op", req.Op).Warn("dropping request with unknown opcode")
			continue
		}

		sent := trace.Stamp{Sec: req.SentSec, Nsec: req.SentNsec}
		lengthStamp := trace.Stamp{Sec: req.LengthSec, Nsec: req.LengthNsec}

		if req.TargetImgID >= uint64(store.Len()) {
			// A target ID that never names a published slot is rejected
			// the same way a full queue is (§7): it must never reach the
			// turnstile or a worker.
			if err := outbound.Send(func(w io.Writer) error {
				return wire.WriteResponse(w, wire.Response{ReqID: req.ReqID, Ack: wire.AckRejected, ImageID: req.TargetImgID})
			}); err != nil {
				return ErrNetworkFailure
			}
			emitter.Rejection(req.ReqID, sent, lengthStamp, receipt)
			continue
		}

		table.Admit(req.TargetImgID, req.ReqID)
		length := time.Duration(req.LengthSec)*time.Second + time.Duration(req.LengthNsec)
		admitErr := q.Admit(&worker.Job{Req: req, Sent: trace.Stamp{Sec: req.SentSec, Nsec: req.SentNsec}, Receipt: receipt}, length)
		if admitErr == nil {
			continue
		}

		// Rejected: back the entry out of the ordering table so a
		// rejected request doesn't permanently wedge that image's gate.
		table.Cancel(req.TargetImgID, req.ReqID)

		if err := outbound.Send(func(w io.Writer) error {
			return wire.WriteResponse(w, wire.Response{ReqID: req.ReqID, Ack: wire.AckRejected, ImageID: req.TargetImgID})
		}); err != nil {
			return ErrNetworkFailure
		}
		emitter.Rejection(req.ReqID, sent, lengthStamp, receipt)
	}
}

func handleRegister(r bufiox.Reader, req wire.Request, receipt trace.Stamp, conn net.Conn, store *imgstore.Store, table *turnstile.Table, outbound *trace.OutboundGate, emitter *trace.Emitter) error {
	start := stamp()

	width, height, pixels, err := wire.ReadImage(r)
	_ = r.Release(err)
	if err != nil {
		return ErrNetworkFailure
	}

	img := &imgproc.Image{Width: width, Height: height, Pix: pixels}
	newID := store.Register(img)
	// The new image's turn gate starts empty (released): nothing has
	// admitted against it yet, so there is nothing to wait for here.

	completion := stamp()
	sent := trace.Stamp{Sec: req.SentSec, Nsec: req.SentNsec}

	if err := outbound.Send(func(w io.Writer) error {
		return wire.WriteResponse(w, wire.Response{ReqID: req.ReqID, Ack: wire.AckCompleted, ImageID: newID})
	}); err != nil {
		return ErrNetworkFailure
	}

	emitter.Completion("W", req.ReqID, sent, wire.OpRegister, req.Overwrite, newID, newID, receipt, start, completion)
	return nil
}

func stamp() trace.Stamp {
	t := time.Now()
	return trace.Stamp{Sec: uint64(t.Unix()), Nsec: uint64(t.Nanosecond())}
}
