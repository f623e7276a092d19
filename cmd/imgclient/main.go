// Command imgclient is a minimal reference client for exercising an
// imgserve server by hand. It is not the client-side trace-report
// generator described in spec.md §1 (out of scope); it only drives the
// wire protocol for a fixed REGISTER-then-ROTATE90CW-then-RETRIEVE
// sequence against a single image, useful for manual smoke testing.
package main

import (
	"fmt"
	"os"

	"github.com/bu-cs350/imgserve/internal/testutil"
	"github.com/bu-cs350/imgserve/internal/wire"
)

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintf(os.Stderr, "usage: %s <host:port>\n", os.Args[0])
		os.Exit(1)
	}

	c, err := testutil.Dial(os.Args[1])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer c.Close()

	pixels := []byte{10, 20, 30, 40}
	id, err := c.Register(1, 2, 2, pixels)
	if err != nil {
		fmt.Fprintln(os.Stderr, "register:", err)
		os.Exit(1)
	}
	fmt.Printf("registered image %d\n", id)

	resp, err := c.Submit(wire.Request{ReqID: 2, Op: wire.OpRotate90CW, TargetImgID: id})
	if err != nil {
		fmt.Fprintln(os.Stderr, "rotate:", err)
		os.Exit(1)
	}
	fmt.Printf("rotate ack=%v image=%d\n", resp.Ack, resp.ImageID)

	resp, err = c.Submit(wire.Request{ReqID: 3, Op: wire.OpRetrieve, TargetImgID: resp.ImageID})
	if err != nil {
		fmt.Fprintln(os.Stderr, "retrieve:", err)
		os.Exit(1)
	}
	w, h, _, err := c.ReadImagePayload()
	if err != nil {
		fmt.Fprintln(os.Stderr, "read image:", err)
		os.Exit(1)
	}
	fmt.Printf("retrieved image %d: %dx%d\n", resp.ImageID, w, h)
}
