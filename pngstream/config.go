package pngstream

import "time"

// PixelFormat identifies the layout of one pixel. Source formats come from
// the IHDR color type and bit depth; destination formats are what callers
// may decode into.
type PixelFormat uint8

const (
	PixFmtInvalid PixelFormat = iota

	// Source formats.
	PixFmtY       // grayscale, 1/2/4/8 bits per sample
	PixFmtY16     // grayscale, 16 bits per sample
	PixFmtYA      // grayscale + alpha, 8 bits per sample
	PixFmtYA16    // grayscale + alpha, 16 bits per sample
	PixFmtIndexed // palette indices, 1/2/4/8 bits per sample
	PixFmtRGB     // truecolor, 8 bits per sample
	PixFmtRGB16   // truecolor, 16 bits per sample
	PixFmtRGBA16  // truecolor + alpha, 16 bits per sample

	// Source or destination formats.
	PixFmtRGBANonPremul // truecolor + alpha, 8 bits per sample

	// Destination-only formats.
	PixFmtBGRANonPremul
)

func (f PixelFormat) String() string {
	switch f {
	case PixFmtY:
		return "Y"
	case PixFmtY16:
		return "Y16"
	case PixFmtYA:
		return "YA"
	case PixFmtYA16:
		return "YA16"
	case PixFmtIndexed:
		return "Indexed"
	case PixFmtRGB:
		return "RGB"
	case PixFmtRGB16:
		return "RGB16"
	case PixFmtRGBA16:
		return "RGBA16"
	case PixFmtRGBANonPremul:
		return "RGBA non-premultiplied"
	case PixFmtBGRANonPremul:
		return "BGRA non-premultiplied"
	}
	return "invalid"
}

// SRGBRenderingIntent is the sRGB chunk's rendering intent.
type SRGBRenderingIntent uint8

const (
	SRGBPerceptual SRGBRenderingIntent = iota
	SRGBRelativeColorimetric
	SRGBSaturation
	SRGBAbsoluteColorimetric
)

// ImageConfig is the structural metadata of an image: dimensions, pixel
// format, animation shape and the color hints collected while parsing the
// chunks before the first frame. It is immutable once frame decoding begins.
type ImageConfig struct {
	Width     int
	Height    int
	BitDepth  int
	ColorType byte
	Interlaced bool
	PixFmt    PixelFormat

	// FirstFrameIOPosition is the absolute stream offset of the chunk that
	// starts the first frame: the first fcTL for an animated image, the
	// first IDAT otherwise. It anchors RestartFrame for frame zero.
	FirstFrameIOPosition uint64

	// Animation shape from acTL. FrameCount is zero for a static image;
	// LoopCount zero means loop forever.
	Animated   bool
	FrameCount int
	LoopCount  int

	// Color and gamma hints.
	HasGamma        bool
	Gamma           uint32 // scaled by 100000
	HasChromaticity bool
	Chromaticity    [8]uint32 // wx, wy, rx, ry, gx, gy, bx, by; scaled by 100000
	HasSRGB         bool
	SRGBIntent      SRGBRenderingIntent
}

// DisposeOp says what to do with a frame's region before rendering the next
// frame.
type DisposeOp uint8

const (
	DisposeNone DisposeOp = iota
	DisposeBackground
	DisposePrevious
)

// BlendOp says how a frame's pixels combine with the canvas.
type BlendOp uint8

const (
	BlendOpSource BlendOp = iota
	BlendOpOver
)

// Blend is the pixel blend mode a caller requests for DecodeFrame.
type Blend uint8

const (
	// BlendSrc replaces destination pixels.
	BlendSrc Blend = iota
	// BlendSrcOver composites non-premultiplied source over destination.
	BlendSrcOver
)

// FrameConfig describes one frame: its rectangle within the canvas, timing,
// disposal and blending, and the stream offset its data starts at.
type FrameConfig struct {
	Index int

	X0, Y0, X1, Y1 int

	Duration  time.Duration
	DisposeOp DisposeOp
	BlendOp   BlendOp

	// IOPosition is the absolute stream offset of the chunk that starts
	// this frame (its fcTL header, or the first IDAT header for a static
	// frame). RestartFrame needs the caller to rewind here.
	IOPosition uint64
}

func (fc *FrameConfig) Width() int  { return fc.X1 - fc.X0 }
func (fc *FrameConfig) Height() int { return fc.Y1 - fc.Y0 }

// durationFromDelay converts an fcTL delay fraction to a duration. A zero
// denominator has already been replaced with 100 by the caller.
func durationFromDelay(num, den uint16) time.Duration {
	return time.Duration(num) * time.Second / time.Duration(den)
}

// PixelBuffer is a caller-owned destination pixel plane covering the full
// canvas.
type PixelBuffer struct {
	PixFmt PixelFormat
	Width  int
	Height int
	Stride int
	Pix    []byte
}

// NewPixelBuffer allocates a pixel buffer for the given destination format
// and canvas size.
func NewPixelBuffer(pixfmt PixelFormat, width, height int) *PixelBuffer {
	stride := width * dstBytesPerPixel(pixfmt)
	return &PixelBuffer{
		PixFmt: pixfmt,
		Width:  width,
		Height: height,
		Stride: stride,
		Pix:    make([]byte, stride*height),
	}
}

// Row returns the pixel bytes of row y.
func (pb *PixelBuffer) Row(y int) []byte {
	return pb.Pix[y*pb.Stride : y*pb.Stride+pb.Width*dstBytesPerPixel(pb.PixFmt)]
}

func dstBytesPerPixel(pixfmt PixelFormat) int {
	switch pixfmt {
	case PixFmtY:
		return 1
	case PixFmtBGRANonPremul, PixFmtRGBANonPremul:
		return 4
	}
	return 0
}
