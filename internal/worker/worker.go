// Package worker implements the pool of goroutines that pull admitted
// jobs off the request queue and run them through the per-image turn
// gate, the image store, and the response path (§4.4).
package worker

import (
	"context"
	"io"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bu-cs350/imgserve/internal/busywait"
	"github.com/bu-cs350/imgserve/internal/imgproc"
	"github.com/bu-cs350/imgserve/internal/imgstore"
	"github.com/bu-cs350/imgserve/internal/queue"
	"github.com/bu-cs350/imgserve/internal/trace"
	"github.com/bu-cs350/imgserve/internal/turnstile"
	"github.com/bu-cs350/imgserve/internal/wire"
	"github.com/cloudwego/gopkg/concurrency/gopool"
	log "github.com/sirupsen/logrus"
)

// Job is one admitted unit of work: the decoded request header plus the
// timestamps the dispatcher has already stamped on receipt.
type Job struct {
	Req     wire.Request
	Sent    trace.Stamp
	Receipt trace.Stamp
}

// Pool runs N worker goroutines against a shared queue, image store, and
// per-image turnstile, writing responses and trace lines as each job
// completes.
type Pool struct {
	count    int
	q        *queue.Queue[*Job]
	store    *imgstore.Store
	table    *turnstile.Table
	emitter  *trace.Emitter
	outbound *trace.OutboundGate

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	done   atomic.Bool
}

// NewPool builds a worker pool of the given size.
func NewPool(count int, q *queue.Queue[*Job], store *imgstore.Store, table *turnstile.Table, emitter *trace.Emitter, outbound *trace.OutboundGate) *Pool {
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		count:    count,
		q:        q,
		store:    store,
		table:    table,
		emitter:  emitter,
		outbound: outbound,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start launches the pool's worker goroutines via gopool, which recovers
// from any panic in a job instead of crashing the whole connection.
func (p *Pool) Start() {
	for i := 0; i < p.count; i++ {
		id := i
		p.wg.Add(1)
		gopool.CtxGo(p.ctx, func() {
			defer p.wg.Done()
			p.run(id)
		})
	}
}

// Stop asserts the pool's termination flag, wakes every worker blocked on
// the queue (the cancelled context and the broadcast from Close both
// serve as the "post W wake-ups" step of §4.5), and joins all of them.
func (p *Pool) Stop() {
	p.done.Store(true)
	p.q.Close()
	p.cancel()
	p.wg.Wait()
}

func (p *Pool) run(id int) {
	for {
		job, err := p.q.Extract(p.ctx)
		if err != nil {
			return
		}
		if p.done.Load() {
			// Shutdown is already asserted: discard the extracted item
			// and exit, per §4.4 step 2.
			return
		}
		p.process(id, job)
	}
}

func (p *Pool) process(id int, job *Job) {
	imageID := job.Req.TargetImgID
	reqID := job.Req.ReqID

	p.table.WaitMyTurn(imageID, reqID)
	start := now()

	var outID uint64
	var img *imgproc.Image

	if job.Req.Op == wire.OpBusyWait {
		d := time.Duration(job.Req.LengthSec)*time.Second + time.Duration(job.Req.LengthNsec)
		busywait.Elapsed(p.ctx, d)
		outID = imageID
	} else {
		// dispatch.go bounds-checks TargetImgID against the store before
		// admitting a job, so the target always names a published slot by
		// the time a worker extracts it (§7): Apply cannot fail here.
		var err error
		outID, img, err = p.store.Apply(job.Req.Op, imageID, job.Req.Overwrite)
		if err != nil {
			log.WithError(err).WithField("req_id", reqID).Error("worker observed an unadmittable target id after admission")
		}
	}

	p.table.Release(imageID, reqID)
	completion := now()

	sendErr := p.outbound.Send(func(w io.Writer) error {
		if err := wire.WriteResponse(w, wire.Response{ReqID: reqID, Ack: wire.AckCompleted, ImageID: outID}); err != nil {
			return err
		}
		if job.Req.Op == wire.OpRetrieve && img != nil {
			return wire.WriteImage(w, img.Width, img.Height, img.Pix)
		}
		return nil
	})
	if sendErr != nil {
		log.WithError(sendErr).WithField("req_id", reqID).Warn("failed to send response, aborting this worker's connection use")
		return
	}

	p.emitter.Completion(strconv.Itoa(id), reqID, job.Sent, job.Req.Op, job.Req.Overwrite, imageID, outID, job.Receipt, start, completion)
	p.emitter.QueueDump(reqIDs(p.q.Snapshot()))
}

func reqIDs(jobs []*Job) []uint64 {
	ids := make([]uint64, len(jobs))
	for i, j := range jobs {
		ids[i] = j.Req.ReqID
	}
	return ids
}

func now() trace.Stamp {
	t := time.Now()
	return trace.Stamp{Sec: uint64(t.Unix()), Nsec: uint64(t.Nanosecond())}
}
