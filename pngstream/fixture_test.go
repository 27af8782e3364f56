package pngstream

import (
	"bytes"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/klauspost/compress/zlib"
)

// chunk assembles a wire-format chunk: length, type, payload, CRC-32.
func chunk(typ string, payload []byte) []byte {
	out := make([]byte, 0, len(payload)+12)
	var hdr [8]byte
	binary.BigEndian.PutUint32(hdr[0:4], uint32(len(payload)))
	copy(hdr[4:8], typ)
	out = append(out, hdr[:]...)
	out = append(out, payload...)
	crc := crc32.ChecksumIEEE(out[4:])
	var tail [4]byte
	binary.BigEndian.PutUint32(tail[:], crc)
	return append(out, tail[:]...)
}

func compress(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		t.Fatalf("compress: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("compress: %v", err)
	}
	return buf.Bytes()
}

func ihdrPayload(w, h, depth int, colorType byte, interlaced bool) []byte {
	p := make([]byte, 13)
	binary.BigEndian.PutUint32(p[0:4], uint32(w))
	binary.BigEndian.PutUint32(p[4:8], uint32(h))
	p[8] = byte(depth)
	p[9] = colorType
	if interlaced {
		p[12] = 1
	}
	return p
}

func fctlPayload(seq, w, h, x, y int, delayNum, delayDen uint16, dispose, blend byte) []byte {
	p := make([]byte, 26)
	binary.BigEndian.PutUint32(p[0:4], uint32(seq))
	binary.BigEndian.PutUint32(p[4:8], uint32(w))
	binary.BigEndian.PutUint32(p[8:12], uint32(h))
	binary.BigEndian.PutUint32(p[12:16], uint32(x))
	binary.BigEndian.PutUint32(p[16:20], uint32(y))
	binary.BigEndian.PutUint16(p[20:22], delayNum)
	binary.BigEndian.PutUint16(p[22:24], delayDen)
	p[24] = dispose
	p[25] = blend
	return p
}

func fdatChunk(seq int, data []byte) []byte {
	payload := make([]byte, 4+len(data))
	binary.BigEndian.PutUint32(payload[0:4], uint32(seq))
	copy(payload[4:], data)
	return chunk("fdAT", payload)
}

func buildPNG(chunks ...[]byte) []byte {
	out := []byte(pngSignature)
	for _, c := range chunks {
		out = append(out, c...)
	}
	return out
}

// rawScanlines prefixes each row of pix with a None filter byte.
func rawScanlines(pix []byte, bytesPerRow, rows int) []byte {
	out := make([]byte, 0, rows*(1+bytesPerRow))
	for y := 0; y < rows; y++ {
		out = append(out, 0)
		out = append(out, pix[y*bytesPerRow:(y+1)*bytesPerRow]...)
	}
	return out
}

// grayPNG builds a minimal non-interlaced 8-bit grayscale image.
func grayPNG(t *testing.T, w, h int, pix []byte) []byte {
	t.Helper()
	return buildPNG(
		chunk("IHDR", ihdrPayload(w, h, 8, 0, false)),
		chunk("IDAT", compress(t, rawScanlines(pix, w, h))),
		chunk("IEND", nil),
	)
}

// feeder drips a byte stream into a source buffer in fixed-size steps, so
// tests can exercise every suspension point.
type feeder struct {
	src  *Buffer
	rest []byte
	step int
}

func newFeeder(data []byte, step int) *feeder {
	if step <= 0 {
		step = len(data)
	}
	return &feeder{
		src:  &Buffer{Data: make([]byte, 64<<10)},
		rest: data,
		step: step,
	}
}

func (f *feeder) refill() {
	f.src.Compact()
	if len(f.rest) == 0 {
		f.src.Closed = true
		return
	}
	n := f.step
	if n > len(f.rest) {
		n = len(f.rest)
	}
	if free := len(f.src.Data) - f.src.WriteIdx; n > free {
		n = free
	}
	f.src.Write(f.rest[:n])
	f.rest = f.rest[n:]
}

// drive retries fn across ErrShortRead suspensions until it settles.
func (f *feeder) drive(fn func() error) error {
	for {
		err := fn()
		if !errors.Is(err, ErrShortRead) {
			return err
		}
		f.refill()
	}
}

// decodeAll decodes the whole stream in step-sized increments, returning
// the image config, every frame config and the final canvas in
// non-premultiplied RGBA.
func decodeAll(t *testing.T, data []byte, step int, opts Options) (ImageConfig, []FrameConfig, *PixelBuffer) {
	t.Helper()
	dec := NewDecoder(opts)
	f := newFeeder(data, step)

	var cfg ImageConfig
	if err := f.drive(func() error { return dec.DecodeImageConfig(&cfg, f.src) }); err != nil {
		t.Fatalf("DecodeImageConfig: %v", err)
	}

	dst := NewPixelBuffer(PixFmtRGBANonPremul, cfg.Width, cfg.Height)
	var frames []FrameConfig
	for {
		var fc FrameConfig
		err := f.drive(func() error { return dec.DecodeFrameConfig(&fc, f.src) })
		if errors.Is(err, ErrNoMoreFrames) {
			break
		}
		if err != nil {
			t.Fatalf("DecodeFrameConfig #%d: %v", len(frames), err)
		}
		frames = append(frames, fc)

		workbuf := make([]byte, dec.WorkbufLen())
		blend := BlendSrc
		if fc.BlendOp == BlendOpOver {
			blend = BlendSrcOver
		}
		if err := f.drive(func() error { return dec.DecodeFrame(dst, f.src, blend, workbuf, nil) }); err != nil {
			t.Fatalf("DecodeFrame #%d: %v", fc.Index, err)
		}
	}
	return cfg, frames, dst
}

// checkAgainstStdlib decodes data with image/png and compares every pixel
// with the canvas, both as non-premultiplied RGBA.
func checkAgainstStdlib(t *testing.T, data []byte, dst *PixelBuffer) {
	t.Helper()
	ref, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("image/png reference decode: %v", err)
	}
	bounds := ref.Bounds()
	if bounds.Dx() != dst.Width || bounds.Dy() != dst.Height {
		t.Fatalf("reference size %dx%d, canvas %dx%d", bounds.Dx(), bounds.Dy(), dst.Width, dst.Height)
	}
	for y := 0; y < dst.Height; y++ {
		row := dst.Row(y)
		for x := 0; x < dst.Width; x++ {
			want := color.NRGBAModel.Convert(ref.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.NRGBA)
			got := color.NRGBA{R: row[4*x], G: row[4*x+1], B: row[4*x+2], A: row[4*x+3]}
			if got != want {
				t.Fatalf("pixel (%d,%d): got %v, want %v", x, y, got, want)
			}
		}
	}
}

// refPNG encodes an image with the standard library, for fixtures whose
// exact filter choices do not matter.
func refPNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("image/png encode: %v", err)
	}
	return buf.Bytes()
}
