package pngstream

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
	"time"
)

// chunkOffsets returns the absolute stream offsets of every chunk header of
// the given type.
func chunkOffsets(data []byte, typ string) []uint64 {
	var offsets []uint64
	for i := 8; i+8 <= len(data); {
		length := int(binary.BigEndian.Uint32(data[i : i+4]))
		if string(data[i+4:i+8]) == typ {
			offsets = append(offsets, uint64(i))
		}
		i += 12 + length
	}
	return offsets
}

func TestAnimationEnumeration(t *testing.T) {
	data := richFixture(t)
	cfg, frames, _ := decodeAll(t, data, 0, Options{})

	fctls := chunkOffsets(data, "fcTL")
	if len(fctls) != 2 {
		t.Fatalf("fixture has %d fcTL chunks", len(fctls))
	}
	if cfg.FirstFrameIOPosition != fctls[0] {
		t.Fatalf("FirstFrameIOPosition = %d, fcTL header at %d", cfg.FirstFrameIOPosition, fctls[0])
	}
	for i, fc := range frames {
		if fc.Index != i {
			t.Fatalf("frame %d has index %d", i, fc.Index)
		}
		if fc.IOPosition != fctls[i] {
			t.Fatalf("frame %d io position %d, fcTL header at %d", i, fc.IOPosition, fctls[i])
		}
		if fc.Duration != 100*time.Millisecond {
			t.Fatalf("frame %d duration %v, want 100ms", i, fc.Duration)
		}
	}
}

func TestRestartFrame(t *testing.T) {
	data := richFixture(t)
	dec := NewDecoder(Options{})
	f := newFeeder(data, 32)

	var cfg ImageConfig
	if err := f.drive(func() error { return dec.DecodeImageConfig(&cfg, f.src) }); err != nil {
		t.Fatalf("config: %v", err)
	}

	dst := NewPixelBuffer(PixFmtRGBANonPremul, cfg.Width, cfg.Height)
	var frames []FrameConfig
	var snapshots [][]byte
	for {
		var fc FrameConfig
		err := f.drive(func() error { return dec.DecodeFrameConfig(&fc, f.src) })
		if errors.Is(err, ErrNoMoreFrames) {
			break
		}
		if err != nil {
			t.Fatalf("frame config: %v", err)
		}
		frames = append(frames, fc)
		err = f.drive(func() error {
			return dec.DecodeFrame(dst, f.src, BlendSrc, make([]byte, dec.WorkbufLen()), nil)
		})
		if err != nil {
			t.Fatalf("frame %d: %v", fc.Index, err)
		}
		snapshots = append(snapshots, append([]byte(nil), dst.Pix...))
	}
	if len(frames) != 2 {
		t.Fatalf("%d frames", len(frames))
	}

	// Rewind to frame 1 and decode it again on top of the frame 0 canvas.
	if err := dec.RestartFrame(1, frames[1].IOPosition); err != nil {
		t.Fatalf("RestartFrame: %v", err)
	}
	f = newFeeder(data[frames[1].IOPosition:], 8)
	f.src.Pos = frames[1].IOPosition

	var again FrameConfig
	if err := f.drive(func() error { return dec.DecodeFrameConfig(&again, f.src) }); err != nil {
		t.Fatalf("config after restart: %v", err)
	}
	if again != frames[1] {
		t.Fatalf("replayed config %+v != %+v", again, frames[1])
	}

	replay := NewPixelBuffer(PixFmtRGBANonPremul, cfg.Width, cfg.Height)
	copy(replay.Pix, snapshots[0])
	err := f.drive(func() error {
		return dec.DecodeFrame(replay, f.src, BlendSrc, make([]byte, dec.WorkbufLen()), nil)
	})
	if err != nil {
		t.Fatalf("decode after restart: %v", err)
	}
	if !bytes.Equal(replay.Pix, snapshots[1]) {
		t.Fatal("replayed frame 1 differs from the first pass")
	}
}

func TestRestartFrameZeroStatic(t *testing.T) {
	pix := []byte{10, 20, 30, 40}
	data := grayPNG(t, 2, 2, pix)
	dec := NewDecoder(Options{})
	f := newFeeder(data, 0)
	var cfg ImageConfig
	if err := f.drive(func() error { return dec.DecodeImageConfig(&cfg, f.src) }); err != nil {
		t.Fatalf("config: %v", err)
	}
	dst := NewPixelBuffer(PixFmtRGBANonPremul, 2, 2)
	if err := f.drive(func() error {
		return dec.DecodeFrame(dst, f.src, BlendSrc, make([]byte, dec.WorkbufLen()), nil)
	}); err != nil {
		t.Fatalf("first decode: %v", err)
	}
	first := append([]byte(nil), dst.Pix...)

	if err := dec.RestartFrame(0, cfg.FirstFrameIOPosition); err != nil {
		t.Fatalf("RestartFrame: %v", err)
	}
	f = newFeeder(data[cfg.FirstFrameIOPosition:], 0)
	f.src.Pos = cfg.FirstFrameIOPosition
	for i := range dst.Pix {
		dst.Pix[i] = 0
	}
	if err := f.drive(func() error {
		return dec.DecodeFrame(dst, f.src, BlendSrc, make([]byte, dec.WorkbufLen()), nil)
	}); err != nil {
		t.Fatalf("decode after restart: %v", err)
	}
	if !bytes.Equal(dst.Pix, first) {
		t.Fatal("restarted decode differs")
	}
}

func TestRestartFramePositionMismatch(t *testing.T) {
	data := richFixture(t)
	_, frames, _ := decodeAll(t, data, 0, Options{})

	dec := NewDecoder(Options{})
	f := newFeeder(data, 0)
	if err := f.drive(func() error { return dec.DecodeImageConfig(nil, f.src) }); err != nil {
		t.Fatalf("config: %v", err)
	}
	if err := dec.RestartFrame(1, frames[1].IOPosition+1); err != nil {
		t.Fatalf("RestartFrame: %v", err)
	}
	f = newFeeder(data[frames[1].IOPosition:], 0)
	f.src.Pos = frames[1].IOPosition
	err := f.drive(func() error { return dec.DecodeFrameConfig(nil, f.src) })
	if !errors.Is(err, ErrBadCallSequence) {
		t.Fatalf("err = %v, want ErrBadCallSequence", err)
	}
}

func TestRestartBeforeConfigIsRejected(t *testing.T) {
	dec := NewDecoder(Options{})
	if err := dec.RestartFrame(0, 8); !errors.Is(err, ErrBadCallSequence) {
		t.Fatalf("err = %v, want ErrBadCallSequence", err)
	}
}

func TestBadSequenceNumber(t *testing.T) {
	const w, h = 4, 2
	frame0 := make([]byte, w*h)
	idat := compress(t, rawScanlines(frame0, w, h))
	fdat := compress(t, rawScanlines([]byte{1, 2}, 2, 1))
	data := buildPNG(
		chunk("IHDR", ihdrPayload(w, h, 8, 0, false)),
		chunk("acTL", []byte{0, 0, 0, 2, 0, 0, 0, 0}),
		chunk("fcTL", fctlPayload(0, w, h, 0, 0, 1, 10, 0, 0)),
		chunk("IDAT", idat),
		chunk("fcTL", fctlPayload(1, 2, 1, 0, 0, 1, 10, 0, 0)),
		fdatChunk(3, fdat), // should be 2
		chunk("IEND", nil),
	)

	dec := NewDecoder(Options{})
	f := newFeeder(data, 0)
	dst := NewPixelBuffer(PixFmtRGBANonPremul, w, h)
	for i := 0; i < 2; i++ {
		var fc FrameConfig
		if err := f.drive(func() error { return dec.DecodeFrameConfig(&fc, f.src) }); err != nil {
			t.Fatalf("frame config %d: %v", i, err)
		}
		err := f.drive(func() error {
			return dec.DecodeFrame(dst, f.src, BlendSrc, make([]byte, dec.WorkbufLen()), nil)
		})
		if i == 0 && err != nil {
			t.Fatalf("frame 0: %v", err)
		}
		if i == 1 {
			if !errors.Is(err, ErrBadAnimation) {
				t.Fatalf("frame 1 err = %v, want ErrBadAnimation", err)
			}
			return
		}
	}
}

func TestFrameRectValidation(t *testing.T) {
	const w, h = 4, 2
	frame0 := make([]byte, w*h)
	idat := compress(t, rawScanlines(frame0, w, h))

	t.Run("outside canvas", func(t *testing.T) {
		data := buildPNG(
			chunk("IHDR", ihdrPayload(w, h, 8, 0, false)),
			chunk("acTL", []byte{0, 0, 0, 2, 0, 0, 0, 0}),
			chunk("fcTL", fctlPayload(0, w, h, 0, 0, 1, 10, 0, 0)),
			chunk("IDAT", idat),
			chunk("fcTL", fctlPayload(1, 3, 1, 2, 0, 1, 10, 0, 0)), // x+w = 5 > 4
			chunk("IEND", nil),
		)
		dec := NewDecoder(Options{})
		f := newFeeder(data, 0)
		if err := f.drive(func() error { return dec.DecodeFrameConfig(nil, f.src) }); err != nil {
			t.Fatalf("frame 0 config: %v", err)
		}
		err := f.drive(func() error { return dec.DecodeFrameConfig(nil, f.src) })
		if !errors.Is(err, ErrBadAnimation) {
			t.Fatalf("err = %v, want ErrBadAnimation", err)
		}
	})

	t.Run("first frame must cover canvas", func(t *testing.T) {
		data := buildPNG(
			chunk("IHDR", ihdrPayload(w, h, 8, 0, false)),
			chunk("acTL", []byte{0, 0, 0, 1, 0, 0, 0, 0}),
			chunk("fcTL", fctlPayload(0, 2, 1, 0, 0, 1, 10, 0, 0)),
			chunk("IDAT", idat),
			chunk("IEND", nil),
		)
		dec := NewDecoder(Options{})
		f := newFeeder(data, 0)
		err := f.drive(func() error { return dec.DecodeFrameConfig(nil, f.src) })
		if !errors.Is(err, ErrBadAnimation) {
			t.Fatalf("err = %v, want ErrBadAnimation", err)
		}
	})
}

func TestZeroDelayDenominator(t *testing.T) {
	const w, h = 2, 1
	idat := compress(t, rawScanlines([]byte{1, 2}, w, h))
	data := buildPNG(
		chunk("IHDR", ihdrPayload(w, h, 8, 0, false)),
		chunk("acTL", []byte{0, 0, 0, 1, 0, 0, 0, 0}),
		chunk("fcTL", fctlPayload(0, w, h, 0, 0, 3, 0, 0, 0)), // den 0 reads as 100
		chunk("IDAT", idat),
		chunk("IEND", nil),
	)
	_, frames, _ := decodeAll(t, data, 0, Options{})
	if frames[0].Duration != 30*time.Millisecond {
		t.Fatalf("duration %v, want 30ms", frames[0].Duration)
	}
}

// fourFrameFixture builds a 64x48 animation with four frames and text chunks
// interleaved at frame boundaries, including one between an fcTL and the
// frame's first data chunk.
func fourFrameFixture(t *testing.T) []byte {
	t.Helper()
	const w, h = 64, 48
	return buildPNG(
		chunk("IHDR", ihdrPayload(w, h, 8, 0, false)),
		chunk("acTL", []byte{0, 0, 0, 4, 0, 0, 0, 0}),
		chunk("fcTL", fctlPayload(0, w, h, 0, 0, 1, 10, 0, 0)),
		chunk("tEXt", []byte("Comment\x00first frame follows")),
		chunk("IDAT", compress(t, rawScanlines(make([]byte, w*h), w, h))),
		chunk("fcTL", fctlPayload(1, 37, 9, 10, 20, 1, 10, 0, 0)),
		fdatChunk(2, compress(t, rawScanlines(make([]byte, 37*9), 37, 9))),
		chunk("tEXt", []byte("Comment\x00between frames")),
		chunk("fcTL", fctlPayload(3, 49, 40, 15, 8, 1, 10, 0, 0)),
		chunk("tEXt", []byte("Comment\x00before frame data")),
		fdatChunk(4, compress(t, rawScanlines(make([]byte, 49*40), 49, 40))),
		chunk("fcTL", fctlPayload(5, 37, 9, 27, 39, 1, 10, 0, 0)),
		fdatChunk(6, compress(t, rawScanlines(make([]byte, 37*9), 37, 9))),
		chunk("IEND", nil),
	)
}

// TestFourFrameEnumeration walks frame configs without decoding any pixel
// data, so the skipped data runs and the interleaved text chunks all go
// through the skip path.
func TestFourFrameEnumeration(t *testing.T) {
	data := fourFrameFixture(t)
	fctls := chunkOffsets(data, "fcTL")
	if len(fctls) != 4 {
		t.Fatalf("fixture has %d fcTL chunks", len(fctls))
	}

	dec := NewDecoder(Options{})
	f := newFeeder(data, 7)
	var enumerated []FrameConfig
	for {
		var fc FrameConfig
		err := f.drive(func() error { return dec.DecodeFrameConfig(&fc, f.src) })
		if errors.Is(err, ErrNoMoreFrames) {
			break
		}
		if err != nil {
			t.Fatalf("frame config %d: %v", len(enumerated), err)
		}
		enumerated = append(enumerated, fc)
	}
	if len(enumerated) != 4 {
		t.Fatalf("%d frames, want 4", len(enumerated))
	}

	rects := [][4]int{
		{0, 0, 64, 48},
		{10, 20, 47, 29},
		{15, 8, 64, 48},
		{27, 39, 64, 48},
	}
	for i, fc := range enumerated {
		if fc.Index != i {
			t.Fatalf("frame %d has index %d", i, fc.Index)
		}
		if got := [4]int{fc.X0, fc.Y0, fc.X1, fc.Y1}; got != rects[i] {
			t.Fatalf("frame %d rect %v, want %v", i, got, rects[i])
		}
		if fc.IOPosition != fctls[i] {
			t.Fatalf("frame %d io position %d, fcTL header at %d", i, fc.IOPosition, fctls[i])
		}
	}

	// Decoding every frame must see the same configs as pure enumeration.
	_, decoded, _ := decodeAll(t, data, 0, Options{})
	if len(decoded) != len(enumerated) {
		t.Fatalf("decode path saw %d frames, enumeration saw %d", len(decoded), len(enumerated))
	}
	for i := range decoded {
		if decoded[i] != enumerated[i] {
			t.Fatalf("frame %d: decode path %+v, enumeration %+v", i, decoded[i], enumerated[i])
		}
	}
}

// TestEnumerationSkipsTextBeforeFrameData is the single-frame shape of the
// same layout: fcTL, a text chunk, then IDAT.
func TestEnumerationSkipsTextBeforeFrameData(t *testing.T) {
	const w, h = 4, 2
	data := buildPNG(
		chunk("IHDR", ihdrPayload(w, h, 8, 0, false)),
		chunk("acTL", []byte{0, 0, 0, 1, 0, 0, 0, 0}),
		chunk("fcTL", fctlPayload(0, w, h, 0, 0, 1, 10, 0, 0)),
		chunk("tEXt", []byte("Software\x00pngforge")),
		chunk("IDAT", compress(t, rawScanlines(make([]byte, w*h), w, h))),
		chunk("IEND", nil),
	)
	dec := NewDecoder(Options{})
	f := newFeeder(data, 0)
	var fc FrameConfig
	if err := f.drive(func() error { return dec.DecodeFrameConfig(&fc, f.src) }); err != nil {
		t.Fatalf("frame config: %v", err)
	}
	err := f.drive(func() error { return dec.DecodeFrameConfig(nil, f.src) })
	if !errors.Is(err, ErrNoMoreFrames) {
		t.Fatalf("err = %v, want ErrNoMoreFrames", err)
	}
}
