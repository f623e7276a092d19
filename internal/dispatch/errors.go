package dispatch

import "errors"

var (
	ErrNetworkFailure = errors.New("dispatch: network read/write failed")
	ErrQueueFull      = errors.New("dispatch: queue is full, request rejected")
	ErrInvalidOp      = errors.New("dispatch: unknown opcode")
	ErrInvalidImageID = errors.New("dispatch: target image id exceeds store length")
	ErrUsage          = errors.New("dispatch: usage error")
)
