// Package image models the single strided, multi-channel input/output
// buffer pair the compiler operates on (spec.md §6's external
// interfaces). Everything else about image I/O — decoding, resampling,
// convolution — is an out-of-scope collaborator.
package image

import "pixc/internal/cerr"

// Buffer is one strided image: Width*Height*Frames*Channels float32
// samples addressed by (x, y, t, c) via element strides.
type Buffer struct {
	Width, Height, Frames, Channels int
	XStride, YStride, TStride, CStride int
	Data []float32
}

// NewBuffer builds a Buffer with the conventional packed layout:
// channel fastest-varying, then x, then y, then t.
func NewBuffer(width, height, frames, channels int) *Buffer {
	return &Buffer{
		Width: width, Height: height, Frames: frames, Channels: channels,
		CStride: 1,
		XStride: channels,
		YStride: channels * width,
		TStride: channels * width * height,
		Data:    make([]float32, channels*width*height*frames),
	}
}

func (b *Buffer) offset(x, y, t, c int) int {
	return x*b.XStride + y*b.YStride + t*b.TStride + c*b.CStride
}

// At reads one sample, clamping indices to the buffer's valid range
// (edge-clamped addressing, used by the statistics oracle and the
// reference interpreter's sampling).
func (b *Buffer) At(x, y, t, c int) float32 {
	x = clamp(x, 0, b.Width-1)
	y = clamp(y, 0, b.Height-1)
	t = clamp(t, 0, b.Frames-1)
	c = clamp(c, 0, b.Channels-1)
	return b.Data[b.offset(x, y, t, c)]
}

// Set writes one sample without clamping.
func (b *Buffer) Set(x, y, t, c int, v float32) {
	b.Data[b.offset(x, y, t, c)] = v
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// CheckShape enforces spec.md §6's preconditions up front, per the
// REDESIGN DECISIONS: width%4==0 and channels==3, checked before
// lowering begins rather than assumed at emission time.
func CheckShape(b *Buffer) error {
	if b.Width%4 != 0 {
		return cerr.New(cerr.ShapeError, "image width %d is not a multiple of 4", b.Width)
	}
	if b.Channels != 3 {
		return cerr.New(cerr.ShapeError, "image has %d channels, only 3 is supported", b.Channels)
	}
	return nil
}
