// Package imgproc implements the image transforms dispatched by workers.
//
// These are treated as pure functions from image to image: given the same
// input they always produce the same output, and they never touch shared
// server state. The concurrency engine (internal/worker, internal/dispatch)
// is the part of this repository that matters; the transforms here exist
// so the engine has real work to schedule.
package imgproc

import (
	"fmt"

	"github.com/bu-cs350/imgserve/internal/wire"
)

// Image is a minimal single-channel (grayscale) bitmap.
type Image struct {
	Width, Height uint32
	Pix           []byte // row-major, len == Width*Height
}

// NewImage allocates a zeroed image of the given size.
func NewImage(width, height uint32) *Image {
	return &Image{Width: width, Height: height, Pix: make([]byte, int(width)*int(height))}
}

// Clone returns a deep copy of img.
func (img *Image) Clone() *Image {
	out := &Image{Width: img.Width, Height: img.Height, Pix: make([]byte, len(img.Pix))}
	copy(out.Pix, img.Pix)
	return out
}

func (img *Image) at(x, y int) byte {
	if x < 0 {
		x = 0
	}
	if x >= int(img.Width) {
		x = int(img.Width) - 1
	}
	if y < 0 {
		y = 0
	}
	if y >= int(img.Height) {
		y = int(img.Height) - 1
	}
	return img.Pix[y*int(img.Width)+x]
}

// Rotate90CW returns a new image rotated 90 degrees clockwise.
func Rotate90CW(img *Image) *Image {
	out := NewImage(img.Height, img.Width)
	w, h := int(img.Width), int(img.Height)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			// (x, y) in the source lands at (h-1-y, x) in the rotated image.
			nx := h - 1 - y
			ny := x
			out.Pix[ny*int(out.Width)+nx] = img.Pix[y*w+x]
		}
	}
	return out
}

// convolve3x3 applies a 3x3 kernel, normalizing by divisor and clamping to [0,255].
func convolve3x3(img *Image, kernel [9]int, divisor int) *Image {
	out := NewImage(img.Width, img.Height)
	w, h := int(img.Width), int(img.Height)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			sum := 0
			k := 0
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					sum += int(img.at(x+dx, y+dy)) * kernel[k]
					k++
				}
			}
			v := sum / divisor
			if v < 0 {
				v = 0
			} else if v > 255 {
				v = 255
			}
			out.Pix[y*w+x] = byte(v)
		}
	}
	return out
}

// Blur applies a uniform 3x3 box blur.
func Blur(img *Image) *Image {
	return convolve3x3(img, [9]int{1, 1, 1, 1, 1, 1, 1, 1, 1}, 9)
}

// Sharpen applies a standard 3x3 sharpening kernel.
func Sharpen(img *Image) *Image {
	return convolve3x3(img, [9]int{0, -1, 0, -1, 5, -1, 0, -1, 0}, 1)
}

// DetectVerticalEdges applies a horizontal Sobel-style kernel (detects
// vertical edges, i.e. changes along x).
func DetectVerticalEdges(img *Image) *Image {
	return convolve3x3(img, [9]int{-1, 0, 1, -2, 0, 2, -1, 0, 1}, 1)
}

// DetectHorizontalEdges applies a vertical Sobel-style kernel (detects
// horizontal edges, i.e. changes along y).
func DetectHorizontalEdges(img *Image) *Image {
	return convolve3x3(img, [9]int{-1, -2, -1, 0, 0, 0, 1, 2, 1}, 1)
}

// Apply executes the image transform for op, or returns an error if op is
// not an image transform (REGISTER, RETRIEVE and BUSYWAIT are not handled
// here; they are not pure image-to-image functions).
func Apply(op wire.Op, img *Image) (*Image, error) {
	switch op {
	case wire.OpRotate90CW:
		return Rotate90CW(img), nil
	case wire.OpBlur:
		return Blur(img), nil
	case wire.OpSharpen:
		return Sharpen(img), nil
	case wire.OpVertEdges:
		return DetectVerticalEdges(img), nil
	case wire.OpHorizEdges:
		return DetectHorizontalEdges(img), nil
	default:
		return nil, fmt.Errorf("imgproc: not a transform opcode: %v", op)
	}
}
