// Package wire implements the little-endian, fixed-layout request and
// response headers exchanged with the client, plus the minimal grayscale
// image payload format used by REGISTER and RETRIEVE.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/cloudwego/gopkg/bufiox"
)

// Op identifies the operation requested by a client.
type Op uint8

const (
	OpRegister Op = iota
	OpRotate90CW
	OpBlur
	OpSharpen
	OpVertEdges
	OpHorizEdges
	OpRetrieve
	OpBusyWait
)

var opNames = map[Op]string{
	OpRegister:   "REGISTER",
	OpRotate90CW: "ROTATE90CW",
	OpBlur:       "BLUR",
	OpSharpen:    "SHARPEN",
	OpVertEdges:  "VERT_EDGES",
	OpHorizEdges: "HORIZ_EDGES",
	OpRetrieve:   "RETRIEVE",
	OpBusyWait:   "BUSYWAIT",
}

// String renders the opcode the way trace lines expect it.
func (o Op) String() string {
	if name, ok := opNames[o]; ok {
		return name
	}
	return fmt.Sprintf("OP(%d)", uint8(o))
}

// Valid reports whether o is one of the known opcodes.
func (o Op) Valid() bool {
	_, ok := opNames[o]
	return ok
}

// Ack is the outcome reported in a Response.
type Ack uint8

const (
	AckCompleted Ack = iota
	AckRejected
)

// Request is the inbound header, fixed at HeaderSize bytes on the wire.
type Request struct {
	ReqID        uint64
	SentSec      uint64
	SentNsec     uint64
	LengthSec    uint64
	LengthNsec   uint64
	Op           Op
	Overwrite    bool
	TargetImgID  uint64
}

// Response is the outbound header, fixed at ResponseSize bytes on the wire.
type Response struct {
	ReqID   uint64
	Ack     Ack
	ImageID uint64
}

const (
	// HeaderSize is the byte length of an encoded Request header.
	HeaderSize = 8*5 + 1 + 1 + 8
	// ResponseSize is the byte length of an encoded Response header.
	ResponseSize = 8 + 1 + 8
)

var ErrShortRead = errors.New("wire: short read")

// ReadRequest decodes one fixed-size request header from r.
func ReadRequest(r bufiox.Reader) (Request, error) {
	var req Request
	buf, err := r.Next(HeaderSize)
	if err != nil {
		return req, err
	}
	req.ReqID = binary.LittleEndian.Uint64(buf[0:8])
	req.SentSec = binary.LittleEndian.Uint64(buf[8:16])
	req.SentNsec = binary.LittleEndian.Uint64(buf[16:24])
	req.LengthSec = binary.LittleEndian.Uint64(buf[24:32])
	req.LengthNsec = binary.LittleEndian.Uint64(buf[32:40])
	req.Op = Op(buf[40])
	req.Overwrite = buf[41] != 0
	req.TargetImgID = binary.LittleEndian.Uint64(buf[42:50])
	return req, nil
}

// WriteRequest encodes a request header, used by the reference test client.
func WriteRequest(w io.Writer, req Request) error {
	buf := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint64(buf[0:8], req.ReqID)
	binary.LittleEndian.PutUint64(buf[8:16], req.SentSec)
	binary.LittleEndian.PutUint64(buf[16:24], req.SentNsec)
	binary.LittleEndian.PutUint64(buf[24:32], req.LengthSec)
	binary.LittleEndian.PutUint64(buf[32:40], req.LengthNsec)
	buf[40] = byte(req.Op)
	if req.Overwrite {
		buf[41] = 1
	}
	binary.LittleEndian.PutUint64(buf[42:50], req.TargetImgID)
	_, err := w.Write(buf)
	return err
}

// ReadResponse decodes one fixed-size response header, used by the
// reference test client.
func ReadResponse(r io.Reader) (Response, error) {
	var resp Response
	buf := make([]byte, ResponseSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return resp, err
	}
	resp.ReqID = binary.LittleEndian.Uint64(buf[0:8])
	resp.Ack = Ack(buf[8])
	resp.ImageID = binary.LittleEndian.Uint64(buf[9:17])
	return resp, nil
}

// WriteResponse encodes a response header onto w.
func WriteResponse(w io.Writer, resp Response) error {
	buf := make([]byte, ResponseSize)
	binary.LittleEndian.PutUint64(buf[0:8], resp.ReqID)
	buf[8] = byte(resp.Ack)
	binary.LittleEndian.PutUint64(buf[9:17], resp.ImageID)
	_, err := w.Write(buf)
	return err
}

// ReadImage decodes a width/height/grayscale-bytes payload from r.
func ReadImage(r bufiox.Reader) (width, height uint32, pixels []byte, err error) {
	hdr, err := r.Next(8)
	if err != nil {
		return 0, 0, nil, err
	}
	width = binary.LittleEndian.Uint32(hdr[0:4])
	height = binary.LittleEndian.Uint32(hdr[4:8])
	n := int(width) * int(height)
	if n == 0 {
		return width, height, nil, nil
	}
	buf, err := r.Next(n)
	if err != nil {
		return 0, 0, nil, err
	}
	pixels = make([]byte, n)
	copy(pixels, buf)
	return width, height, pixels, nil
}

// WriteImage encodes a width/height/grayscale-bytes payload onto w.
func WriteImage(w io.Writer, width, height uint32, pixels []byte) error {
	hdr := make([]byte, 8)
	binary.LittleEndian.PutUint32(hdr[0:4], width)
	binary.LittleEndian.PutUint32(hdr[4:8], height)
	if _, err := w.Write(hdr); err != nil {
		return err
	}
	if len(pixels) == 0 {
		return nil
	}
	_, err := w.Write(pixels)
	return err
}
