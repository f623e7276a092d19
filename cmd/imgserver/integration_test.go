package main

import (
	"testing"
	"time"

	imgserve "github.com/bu-cs350/imgserve"
	"github.com/bu-cs350/imgserve/internal/config"
	"github.com/bu-cs350/imgserve/internal/queue"
	"github.com/bu-cs350/imgserve/internal/testutil"
	"github.com/bu-cs350/imgserve/internal/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startServer(t *testing.T, cfg config.Config) string {
	t.Helper()
	srv := imgserve.New(cfg)
	ln, err := srv.Listen()
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- srv.Serve(ln) }()
	t.Cleanup(func() {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Error("server did not exit after its connection closed")
		}
	})
	return ln.Addr().String()
}

// S1: two independent images processed under FIFO, Q=4, W=2.
func TestScenarioS1FifoTwoImagesIndependent(t *testing.T) {
	addr := startServer(t, config.Config{QueueSize: 4, Workers: 2, Policy: queue.Fifo})
	c, err := testutil.Dial(addr)
	require.NoError(t, err)
	defer c.Close()

	idA, err := c.Register(1, 2, 2, []byte{1, 2, 3, 4})
	require.NoError(t, err)
	idB, err := c.Register(2, 2, 2, []byte{5, 6, 7, 8})
	require.NoError(t, err)
	assert.EqualValues(t, 0, idA)
	assert.EqualValues(t, 1, idB)

	resp1, err := c.Submit(wire.Request{ReqID: 3, Op: wire.OpRotate90CW, TargetImgID: idA})
	require.NoError(t, err)
	resp2, err := c.Submit(wire.Request{ReqID: 4, Op: wire.OpBlur, TargetImgID: idB})
	require.NoError(t, err)

	assert.Equal(t, wire.AckCompleted, resp1.Ack)
	assert.Equal(t, wire.AckCompleted, resp2.Ack)
	ids := []uint64{resp1.ImageID, resp2.ImageID}
	assert.ElementsMatch(t, []uint64{2, 3}, ids)
}

// S2: per-image serialisation; both ops on image A must complete in order,
// and both responses overwrite the same image ID.
func TestScenarioS2PerImageSerialisation(t *testing.T) {
	addr := startServer(t, config.Config{QueueSize: 4, Workers: 4, Policy: queue.Fifo})
	c, err := testutil.Dial(addr)
	require.NoError(t, err)
	defer c.Close()

	idA, err := c.Register(1, 2, 2, []byte{1, 2, 3, 4})
	require.NoError(t, err)

	respBlur, err := c.Submit(wire.Request{ReqID: 2, Op: wire.OpBlur, TargetImgID: idA, Overwrite: true})
	require.NoError(t, err)
	respSharpen, err := c.Submit(wire.Request{ReqID: 3, Op: wire.OpSharpen, TargetImgID: idA, Overwrite: true})
	require.NoError(t, err)

	assert.Equal(t, idA, respBlur.ImageID)
	assert.Equal(t, idA, respSharpen.ImageID)
}

// S3: Q=1, W=1; admitting two requests back-to-back while the worker is
// busy on a slow BUSYWAIT rejects the second.
func TestScenarioS3Rejection(t *testing.T) {
	addr := startServer(t, config.Config{QueueSize: 1, Workers: 1, Policy: queue.Fifo})
	c, err := testutil.Dial(addr)
	require.NoError(t, err)
	defer c.Close()

	idA, err := c.Register(1, 1, 1, []byte{9})
	require.NoError(t, err)

	require.NoError(t, writeSlowRequest(c, 2, idA, 300*time.Millisecond))
	// Give the lone worker time to extract req 2 and start its busy-wait,
	// freeing the single queue slot, before req 3 tries to take it.
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, writeSlowRequest(c, 3, idA, 0))
	// req 4 arrives while req 3 still occupies the only slot and the
	// worker is still busy with req 2: it must be rejected.
	require.NoError(t, writeSlowRequest(c, 4, idA, 0))

	// The rejection is produced synchronously by the dispatcher and so
	// reaches the wire well before either busy-wait completes.
	rejected, err := c.ReadResponse()
	require.NoError(t, err)
	assert.Equal(t, wire.AckRejected, rejected.Ack)
	assert.Equal(t, uint64(4), rejected.ReqID)

	completedOne, err := c.ReadResponse()
	require.NoError(t, err)
	assert.Equal(t, wire.AckCompleted, completedOne.Ack)

	completedTwo, err := c.ReadResponse()
	require.NoError(t, err)
	assert.Equal(t, wire.AckCompleted, completedTwo.Ack)
}

// S4: SJN orders five distinct-image requests by declared length.
func TestScenarioS4SJNOrdering(t *testing.T) {
	addr := startServer(t, config.Config{QueueSize: 8, Workers: 1, Policy: queue.ShortestJobNext})
	c, err := testutil.Dial(addr)
	require.NoError(t, err)
	defer c.Close()

	ids := make([]uint64, 5)
	for i := range ids {
		id, err := c.Register(uint64(i+1), 1, 1, []byte{byte(i)})
		require.NoError(t, err)
		ids[i] = id
	}

	// The lone worker would otherwise grab the first of the five the
	// instant it is admitted, before the rest ever queue up together.
	// Occupy it first so all five are genuinely competing for SJN
	// selection when it next looks at the queue.
	blockerID, err := c.Register(100, 1, 1, []byte{0})
	require.NoError(t, err)
	require.NoError(t, writeSlowRequest(c, 1, blockerID, 200*time.Millisecond))
	time.Sleep(20 * time.Millisecond)

	lengths := []time.Duration{
		500 * time.Millisecond,
		100 * time.Millisecond,
		300 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
	}
	for i, d := range lengths {
		require.NoError(t, writeSlowRequest(c, uint64(10+i), ids[i], d))
	}

	blockerResp, err := c.ReadResponse()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), blockerResp.ReqID)

	var completionOrder []uint64
	for range lengths {
		resp, err := c.ReadResponse()
		require.NoError(t, err)
		completionOrder = append(completionOrder, resp.ReqID)
	}

	// Requested lengths 500,100,300,200,400 at reqIDs 10..14 should
	// complete shortest-first: 11 (100ms), 13 (200ms), 12 (300ms), 14
	// (400ms), 10 (500ms).
	assert.Equal(t, []uint64{11, 13, 12, 14, 10}, completionOrder)
}

// S5: retrieve consistency: a transform followed by RETRIEVE of its
// result yields the transformed payload, not the original.
func TestScenarioS5RetrieveConsistency(t *testing.T) {
	addr := startServer(t, config.Config{QueueSize: 4, Workers: 1, Policy: queue.Fifo})
	c, err := testutil.Dial(addr)
	require.NoError(t, err)
	defer c.Close()

	pixels := []byte{50, 50, 50, 50, 50, 50, 50, 50, 50}
	idA, err := c.Register(1, 3, 3, pixels)
	require.NoError(t, err)

	sharpenResp, err := c.Submit(wire.Request{ReqID: 2, Op: wire.OpSharpen, TargetImgID: idA})
	require.NoError(t, err)
	require.Equal(t, wire.AckCompleted, sharpenResp.Ack)

	retResp, err := c.Submit(wire.Request{ReqID: 3, Op: wire.OpRetrieve, TargetImgID: sharpenResp.ImageID})
	require.NoError(t, err)
	require.Equal(t, wire.AckCompleted, retResp.Ack)

	w, h, got, err := c.ReadImagePayload()
	require.NoError(t, err)
	assert.EqualValues(t, 3, w)
	assert.EqualValues(t, 3, h)
	// Sharpen is the identity transform on a flat image (see internal/imgproc).
	assert.Equal(t, pixels, got)
}

// S6: closing the connection with items still queued shuts the server
// down without a crash or hang.
func TestScenarioS6ShutdownDrains(t *testing.T) {
	addr := startServer(t, config.Config{QueueSize: 8, Workers: 2, Policy: queue.Fifo})
	c, err := testutil.Dial(addr)
	require.NoError(t, err)

	idA, err := c.Register(1, 1, 1, []byte{1})
	require.NoError(t, err)
	for i := 0; i < 4; i++ {
		require.NoError(t, writeSlowRequest(c, uint64(10+i), idA, 200*time.Millisecond))
	}

	// Close immediately; cleanup (t.Cleanup in startServer) asserts the
	// server's Serve goroutine actually returns.
	require.NoError(t, c.Close())
}

func writeSlowRequest(c *testutil.Client, reqID, targetID uint64, length time.Duration) error {
	return c.WriteRequest(wire.Request{
		ReqID:       reqID,
		Op:          wire.OpBusyWait,
		TargetImgID: targetID,
		LengthSec:   uint64(length / time.Second),
		LengthNsec:  uint64(length % time.Second),
	})
}
