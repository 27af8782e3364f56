// Package pngstream decodes PNG and animated PNG streams incrementally.
//
// The decoder is a pull-based, resumable state machine: every entry point
// either completes, reports a recoverable suspension (ErrShortRead,
// ErrShortWrite, ErrMetadataReported, ErrEvenMoreInformation), or fails with
// a fatal error. Suspensions return control to the caller immediately with
// enough state preserved to resume exactly where parsing left off, so the
// input may be fragmented across calls at any byte boundary. All buffers are
// caller-owned; the decoder never retains a reference to them across calls.
package pngstream

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"

	"github.com/rs/zerolog"
)

// Decoders refuse dimensions above this ceiling.
const maxDimension = 0xFFFFFF

// Staged ancillary payloads (ICC profiles, text) are capped at this size.
const maxMetadataLen = 1 << 24

// QuirkIgnoreChecksum disables CRC-32 and Adler-32 verification, for
// performance-sensitive or partially-trusted inputs.
const QuirkIgnoreChecksum uint32 = 1

type decoderState uint8

const (
	stateSignature decoderState = iota
	stateConfigChunks
	stateMetadata
	stateFrameConfig
	stateFrameData
	stateEnd
)

// Options configure a Decoder at creation time.
type Options struct {
	// IgnoreChecksum disables CRC-32 and Adler-32 verification.
	IgnoreChecksum bool

	// LeaveInternalBuffersUninitialized skips scrubbing recycled internal
	// buffers between frames. Faster; the default scrubs them.
	LeaveInternalBuffersUninitialized bool

	// Logger receives warnings about discarded ancillary chunks and
	// skipped data. Nil disables logging.
	Logger *zerolog.Logger
}

// Decoder is a streaming PNG/APNG decoder. One instance decodes one image;
// it is not safe for concurrent use.
type Decoder struct {
	logger         zerolog.Logger
	ignoreChecksum bool
	leaveDirty     bool

	state decoderState
	err   error

	// Chunk-walking state, preserved across suspensions.
	sigFilled      int
	hdr            [8]byte
	hdrFilled      int
	hdrPos         uint64
	inChunk        bool
	chunkType      uint32
	chunkLen       uint32
	chunkRemaining uint32
	crc            uint32
	crcBuf         [4]byte
	crcFilled      int
	crcSkipVerify  bool
	scratch        []byte

	// Image config.
	cfg      ImageConfig
	seenIHDR bool
	seenPLTE bool
	seenACTL bool

	palette    [256 * 4]byte // BGRA entries
	paletteLen int

	hasColorKey bool
	keyGray     uint16
	keyR        uint16
	keyG        uint16
	keyB        uint16

	reported map[uint32]bool

	// Frame state.
	frameIndex     int
	frameCfg       FrameConfig
	haveFrameCfg   bool
	skipFrameData  bool
	skipStarted    bool
	frameStarted   bool
	frameDataDone  bool
	fdatPrefix     int
	seqBuf         [4]byte
	nextSeq        int64
	restartPending bool
	restartPos     uint64

	compressed []byte
	rowBuf     []byte
	swiz       swizzler

	meta metaState
}

// NewDecoder returns a decoder ready to consume a PNG stream.
func NewDecoder(opts Options) *Decoder {
	d := &Decoder{
		logger:         zerolog.Nop(),
		ignoreChecksum: opts.IgnoreChecksum,
		leaveDirty:     opts.LeaveInternalBuffersUninitialized,
		reported:       make(map[uint32]bool),
	}
	if opts.Logger != nil {
		d.logger = *opts.Logger
	}
	return d
}

// SetQuirk toggles a decoder quirk. Only QuirkIgnoreChecksum is defined.
func (d *Decoder) SetQuirk(quirk uint32, enabled bool) {
	if quirk == QuirkIgnoreChecksum {
		d.ignoreChecksum = enabled
	}
}

// SetReportMetadata opts in (or out) of metadata reporting for a FourCC.
// Opted-in chunks suspend DecodeImageConfig/DecodeFrameConfig with
// ErrMetadataReported; the caller then drives TellMeMore.
func (d *Decoder) SetReportMetadata(fourcc uint32, enabled bool) {
	if enabled {
		d.reported[fourcc] = true
	} else {
		delete(d.reported, fourcc)
	}
}

// NumAnimationLoops returns the acTL loop count; zero means loop forever.
// Meaningless for static images.
func (d *Decoder) NumAnimationLoops() int { return d.cfg.LoopCount }

// latch makes fatal errors sticky: after one, the decoder refuses further
// work.
func (d *Decoder) latch(err error) error {
	if err != nil && !IsSuspension(err) {
		d.err = err
	}
	return err
}

func shortRead(src *Buffer) error {
	if src.Closed {
		return ErrTruncatedInput
	}
	return ErrShortRead
}

// DecodeImageConfig parses the signature and the chunks preceding the first
// frame, filling dst. It returns nil on success, ErrShortRead when more
// input is needed, ErrMetadataReported when an opted-in ancillary chunk must
// be serviced via TellMeMore, or a fatal error.
func (d *Decoder) DecodeImageConfig(dst *ImageConfig, src *Buffer) error {
	if d.err != nil {
		return d.err
	}
	return d.latch(d.decodeImageConfig(dst, src))
}

func (d *Decoder) decodeImageConfig(dst *ImageConfig, src *Buffer) error {
	for {
		switch d.state {
		case stateSignature:
			for d.sigFilled < 8 && src.Available() > 0 {
				if src.Data[src.ReadIdx] != pngSignature[d.sigFilled] {
					return ErrBadSignature
				}
				src.ReadIdx++
				d.sigFilled++
			}
			if d.sigFilled < 8 {
				return shortRead(src)
			}
			d.state = stateConfigChunks

		case stateMetadata:
			return ErrMetadataReported

		case stateConfigChunks:
			if err := d.configChunkStep(src); err != nil {
				return err
			}

		default:
			// Config already decoded; hand back the cached copy.
			if dst != nil {
				*dst = d.cfg
			}
			return nil
		}
		if d.state == stateFrameConfig {
			if dst != nil {
				*dst = d.cfg
			}
			return nil
		}
	}
}

// configChunkStep consumes (or begins consuming) one chunk of the
// pre-frame section. It leaves d.state at stateFrameConfig once the first
// frame's chunk header has been read, or stateMetadata when reporting.
func (d *Decoder) configChunkStep(src *Buffer) error {
	if !d.inChunk {
		ok, err := d.readHeader(src)
		if err != nil {
			return err
		}
		if !ok {
			return shortRead(src)
		}
	}
	if !d.seenIHDR && d.chunkType != chunkIHDR {
		return fmt.Errorf("%w: first chunk is %s, want IHDR", ErrBadChunk, chunkTypeString(d.chunkType))
	}

	switch d.chunkType {
	case chunkIHDR:
		if d.seenIHDR {
			return fmt.Errorf("%w: duplicate IHDR", ErrBadChunk)
		}
		done, _, err := d.stageAndFinish(src, 13, true)
		if err != nil {
			return err
		}
		if !done {
			return shortRead(src)
		}
		if err := d.parseIHDR(d.scratch); err != nil {
			return err
		}
		d.seenIHDR = true

	case chunkPLTE:
		if err := d.requirePLTEAllowed(); err != nil {
			return err
		}
		done, _, err := d.stageAndFinish(src, 768, true)
		if err != nil {
			return err
		}
		if !done {
			return shortRead(src)
		}
		if err := d.parsePLTE(d.scratch); err != nil {
			return err
		}

	case chunkACTL:
		if d.seenACTL {
			return fmt.Errorf("%w: duplicate acTL", ErrBadChunk)
		}
		done, _, err := d.stageAndFinish(src, 8, true)
		if err != nil {
			return err
		}
		if !done {
			return shortRead(src)
		}
		if err := d.parseACTL(d.scratch); err != nil {
			return err
		}

	case chunkFCTL, chunkIDAT:
		if d.cfg.ColorType == 3 && !d.seenPLTE {
			return fmt.Errorf("%w: palette image without PLTE", ErrBadChunk)
		}
		if d.chunkType == chunkFCTL && !d.cfg.Animated {
			return fmt.Errorf("%w: fcTL without acTL", ErrBadChunk)
		}
		d.cfg.FirstFrameIOPosition = d.hdrPos
		d.state = stateFrameConfig

	case chunkIEND:
		return fmt.Errorf("%w: IEND before image data", ErrBadChunk)

	case chunkFDAT:
		return fmt.Errorf("%w: fdAT before image data", ErrBadChunk)

	default:
		return d.handleAncillary(src)
	}
	return nil
}

// handleAncillary deals with a non-critical chunk whose header is already
// parsed: begin metadata reporting if the caller opted in, parse the known
// color hints, skip everything else.
func (d *Decoder) handleAncillary(src *Buffer) error {
	if fourcc := reportFourCC(d.chunkType); fourcc != 0 && d.reported[fourcc] {
		d.beginMetadata()
		return ErrMetadataReported
	}

	switch d.chunkType {
	case chunkCHRM, chunkGAMA, chunkSRGB:
		if d.chunkLen > 32 {
			break
		}
		done, crcOK, err := d.stageAndFinish(src, 32, false)
		if err != nil {
			return err
		}
		if !done {
			return shortRead(src)
		}
		if crcOK {
			d.parseColorHint(d.chunkType, d.scratch)
		}
		return nil

	case chunkTRNS:
		if d.chunkLen > 768 {
			break
		}
		done, crcOK, err := d.stageAndFinish(src, 768, false)
		if err != nil {
			return err
		}
		if !done {
			return shortRead(src)
		}
		if crcOK {
			d.parseTRNS(d.scratch)
		}
		return nil
	}

	// Unknown hints, and known hints too long to be well formed, are walked
	// over without staging.
	done, _, err := d.skipAndFinish(src)
	if err != nil {
		return err
	}
	if !done {
		return shortRead(src)
	}
	d.logger.Debug().Str("chunk", chunkTypeString(d.chunkType)).Msg("skipped ancillary chunk")
	return nil
}

// DecodeFrameConfig enumerates the next frame's configuration. It returns
// ErrNoMoreFrames once every frame has been seen; a previously enumerated
// but undecoded frame's data chunks are skipped over first.
func (d *Decoder) DecodeFrameConfig(dst *FrameConfig, src *Buffer) error {
	if d.err != nil {
		return d.err
	}
	return d.latch(d.decodeFrameConfig(dst, src))
}

func (d *Decoder) decodeFrameConfig(dst *FrameConfig, src *Buffer) error {
	for {
		switch d.state {
		case stateSignature, stateConfigChunks:
			if err := d.decodeImageConfig(nil, src); err != nil {
				return err
			}

		case stateMetadata:
			return ErrMetadataReported

		case stateFrameData:
			return fmt.Errorf("%w: DecodeFrame in progress", ErrBadCallSequence)

		case stateEnd:
			return ErrNoMoreFrames

		case stateFrameConfig:
			done, err := d.frameConfigStep(dst, src)
			if err != nil {
				return err
			}
			if done {
				return nil
			}
		}
	}
}

// frameConfigStep consumes one chunk while scanning for the next frame
// boundary. done=true means dst holds the next frame's config.
func (d *Decoder) frameConfigStep(dst *FrameConfig, src *Buffer) (bool, error) {
	if d.haveFrameCfg && !d.skipFrameData {
		// The caller moved on without decoding the current frame: walk
		// over its data chunks.
		d.skipFrameData = true
	}
	if !d.inChunk {
		ok, err := d.readHeader(src)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, shortRead(src)
		}
		if err := d.checkRestartPosition(); err != nil {
			return false, err
		}
	}

	if d.skipFrameData {
		switch d.chunkType {
		case chunkIDAT, chunkFDAT:
			done, err := d.consumeDataChunk(src, false)
			if err != nil {
				return false, err
			}
			if !done {
				return false, shortRead(src)
			}
			d.skipStarted = true
			return false, nil
		default:
			if !d.skipStarted {
				// The skipped frame's data run has not begun yet;
				// ancillary chunks may sit between an fcTL and the
				// frame's first data chunk.
				if isCriticalChunk(d.chunkType) {
					return false, fmt.Errorf("%w: %s before frame data", ErrBadChunk, chunkTypeString(d.chunkType))
				}
				return false, d.handleAncillary(src)
			}
			d.skipFrameData = false
			d.skipStarted = false
			d.haveFrameCfg = false
			d.frameIndex++
		}
	}

	switch d.chunkType {
	case chunkFCTL:
		done, _, err := d.stageAndFinish(src, 26, true)
		if err != nil {
			return false, err
		}
		if !done {
			return false, shortRead(src)
		}
		fc, err := d.parseFCTL(d.scratch)
		if err != nil {
			return false, err
		}
		d.frameCfg = fc
		d.haveFrameCfg = true
		if dst != nil {
			*dst = fc
		}
		return true, nil

	case chunkIDAT:
		if d.frameIndex != 0 {
			return false, fmt.Errorf("%w: IDAT after frame data", ErrBadChunk)
		}
		d.frameCfg = FrameConfig{
			Index:      0,
			X1:         d.cfg.Width,
			Y1:         d.cfg.Height,
			IOPosition: d.hdrPos,
		}
		d.haveFrameCfg = true
		if dst != nil {
			*dst = d.frameCfg
		}
		return true, nil

	case chunkFDAT:
		return false, fmt.Errorf("%w: fdAT without fcTL", ErrBadChunk)

	case chunkIEND:
		done, _, err := d.stageAndFinish(src, 0, true)
		if err != nil {
			return false, err
		}
		if !done {
			return false, shortRead(src)
		}
		d.state = stateEnd
		return false, ErrNoMoreFrames

	case chunkIHDR, chunkPLTE, chunkACTL:
		return false, fmt.Errorf("%w: %s after image data", ErrBadChunk, chunkTypeString(d.chunkType))

	default:
		return false, d.handleAncillary(src)
	}
}

// RestartFrame resets parse state so that frame index can be decoded again
// from ioPosition (recorded in its FrameConfig). The caller must rewind its
// own input cursor to the same position; the two are kept in lockstep.
func (d *Decoder) RestartFrame(index int, ioPosition uint64) error {
	if d.err != nil {
		return d.err
	}
	if d.state < stateFrameConfig {
		return d.latch(fmt.Errorf("%w: image config not yet decoded", ErrBadCallSequence))
	}
	if index < 0 || (!d.cfg.Animated && index != 0) ||
		(d.cfg.Animated && d.cfg.FrameCount > 0 && index >= d.cfg.FrameCount) {
		return d.latch(fmt.Errorf("%w: frame index %d", ErrBadCallSequence, index))
	}
	d.state = stateFrameConfig
	d.inChunk = false
	d.hdrFilled = 0
	d.crcFilled = 0
	d.haveFrameCfg = false
	d.skipFrameData = false
	d.skipStarted = false
	d.frameStarted = false
	d.frameDataDone = false
	d.frameIndex = index
	d.nextSeq = -1
	d.restartPending = true
	d.restartPos = ioPosition
	d.meta = metaState{}
	d.resetCompressed()
	return nil
}

func (d *Decoder) checkRestartPosition() error {
	if !d.restartPending {
		return nil
	}
	d.restartPending = false
	if d.hdrPos != d.restartPos {
		return fmt.Errorf("%w: input cursor at %#x, want frame io position %#x",
			ErrBadCallSequence, d.hdrPos, d.restartPos)
	}
	return nil
}

// WorkbufLen returns the workbuf size DecodeFrame needs for the current
// frame: the full decompressed size of its filtered scanlines, summed over
// interlace passes.
func (d *Decoder) WorkbufLen() uint64 {
	w, h := d.cfg.Width, d.cfg.Height
	if d.haveFrameCfg {
		w, h = d.frameCfg.Width(), d.frameCfg.Height()
	}
	var n uint64
	for _, p := range passes(d.cfg.Interlaced) {
		pw, ph := p.extent(w, h)
		if pw == 0 || ph == 0 {
			continue
		}
		n += uint64(1+d.bytesPerRow(pw)) * uint64(ph)
	}
	return n
}

// ---- chunk-walking primitives ----

// readHeader accumulates the 8-byte chunk header across calls, recording
// the header's absolute stream offset.
func (d *Decoder) readHeader(src *Buffer) (bool, error) {
	if d.hdrFilled == 0 {
		d.hdrPos = src.ReaderPosition()
	}
	for d.hdrFilled < 8 && src.Available() > 0 {
		d.hdr[d.hdrFilled] = src.Data[src.ReadIdx]
		src.ReadIdx++
		d.hdrFilled++
	}
	if d.hdrFilled < 8 {
		return false, nil
	}
	d.chunkLen = binary.BigEndian.Uint32(d.hdr[0:4])
	d.chunkType = binary.BigEndian.Uint32(d.hdr[4:8])
	if d.chunkLen > 0x7FFFFFFF {
		return false, fmt.Errorf("%w: %s length %d overflows", ErrBadChunk, chunkTypeString(d.chunkType), d.chunkLen)
	}
	d.chunkRemaining = d.chunkLen
	d.crc = crc32.Update(0, crc32.IEEETable, d.hdr[4:8])
	d.crcFilled = 0
	d.crcSkipVerify = false
	d.fdatPrefix = 0
	d.scratch = d.scratch[:0]
	d.inChunk = true
	return true, nil
}

// stagePayload copies the remaining chunk payload into d.scratch, updating
// the running CRC. max bounds the whole payload.
func (d *Decoder) stagePayload(src *Buffer, max int) (bool, error) {
	if d.chunkLen > uint32(max) {
		return false, fmt.Errorf("%w: %s chunk length %d", ErrBadChunk, chunkTypeString(d.chunkType), d.chunkLen)
	}
	for d.chunkRemaining > 0 {
		n := src.Available()
		if n == 0 {
			return false, nil
		}
		if uint32(n) > d.chunkRemaining {
			n = int(d.chunkRemaining)
		}
		p := src.Data[src.ReadIdx : src.ReadIdx+n]
		d.scratch = append(d.scratch, p...)
		d.crc = crc32.Update(d.crc, crc32.IEEETable, p)
		src.ReadIdx += n
		d.chunkRemaining -= uint32(n)
	}
	return true, nil
}

// skipPayload discards the remaining chunk payload, still feeding the CRC.
func (d *Decoder) skipPayload(src *Buffer) bool {
	for d.chunkRemaining > 0 {
		n := src.Available()
		if n == 0 {
			return false
		}
		if uint32(n) > d.chunkRemaining {
			n = int(d.chunkRemaining)
		}
		d.crc = crc32.Update(d.crc, crc32.IEEETable, src.Data[src.ReadIdx:src.ReadIdx+n])
		src.ReadIdx += n
		d.chunkRemaining -= uint32(n)
	}
	return true
}

// finishChunk consumes and verifies the trailing CRC-32. For critical
// chunks a mismatch is fatal (unless the checksum quirk is set); for
// ancillary chunks it is logged and reported via crcOK so the caller can
// discard the payload.
func (d *Decoder) finishChunk(src *Buffer, critical bool) (done, crcOK bool, err error) {
	for d.crcFilled < 4 && src.Available() > 0 {
		d.crcBuf[d.crcFilled] = src.Data[src.ReadIdx]
		src.ReadIdx++
		d.crcFilled++
	}
	if d.crcFilled < 4 {
		return false, false, nil
	}
	crcOK = true
	if !d.crcSkipVerify && !d.ignoreChecksum {
		want := binary.BigEndian.Uint32(d.crcBuf[:])
		if want != d.crc {
			if critical {
				return false, false, fmt.Errorf("%w: crc32 mismatch in %s chunk", ErrBadChecksum, chunkTypeString(d.chunkType))
			}
			d.logger.Warn().
				Str("chunk", chunkTypeString(d.chunkType)).
				Uint32("have", d.crc).
				Uint32("want", want).
				Msg("ignoring bad checksum on ancillary chunk")
			crcOK = false
		}
	}
	d.inChunk = false
	d.hdrFilled = 0
	return true, crcOK, nil
}

func (d *Decoder) stageAndFinish(src *Buffer, max int, critical bool) (done, crcOK bool, err error) {
	ok, err := d.stagePayload(src, max)
	if err != nil {
		return false, false, err
	}
	if !ok {
		return false, false, nil
	}
	return d.finishChunk(src, critical)
}

func (d *Decoder) skipAndFinish(src *Buffer) (done, crcOK bool, err error) {
	if !d.skipPayload(src) {
		return false, false, nil
	}
	return d.finishChunk(src, false)
}

// consumeDataChunk consumes an IDAT or fdAT chunk, verifying the fdAT
// sequence number prefix. When collect is set the payload is appended to the
// staged compressed stream; otherwise it is discarded.
func (d *Decoder) consumeDataChunk(src *Buffer, collect bool) (bool, error) {
	if d.chunkType == chunkFDAT {
		for d.fdatPrefix < 4 {
			if d.chunkRemaining == 0 {
				return false, fmt.Errorf("%w: fdAT shorter than its sequence number", ErrBadChunk)
			}
			if src.Available() == 0 {
				return false, nil
			}
			b := src.Data[src.ReadIdx]
			src.ReadIdx++
			d.seqBuf[d.fdatPrefix] = b
			d.fdatPrefix++
			d.chunkRemaining--
			if d.fdatPrefix == 4 {
				d.crc = crc32.Update(d.crc, crc32.IEEETable, d.seqBuf[:])
				seq := int64(binary.BigEndian.Uint32(d.seqBuf[:]))
				if d.nextSeq >= 0 && seq != d.nextSeq {
					return false, fmt.Errorf("%w: fdAT sequence number %d, want %d", ErrBadAnimation, seq, d.nextSeq)
				}
				d.nextSeq = seq + 1
			}
		}
	}
	for d.chunkRemaining > 0 {
		n := src.Available()
		if n == 0 {
			return false, nil
		}
		if uint32(n) > d.chunkRemaining {
			n = int(d.chunkRemaining)
		}
		p := src.Data[src.ReadIdx : src.ReadIdx+n]
		d.crc = crc32.Update(d.crc, crc32.IEEETable, p)
		if collect {
			d.compressed = append(d.compressed, p...)
		}
		src.ReadIdx += n
		d.chunkRemaining -= uint32(n)
	}
	done, _, err := d.finishChunk(src, true)
	return done, err
}

func (d *Decoder) resetCompressed() {
	if !d.leaveDirty {
		for i := range d.compressed {
			d.compressed[i] = 0
		}
		for i := range d.rowBuf {
			d.rowBuf[i] = 0
		}
	}
	d.compressed = d.compressed[:0]
}

// ---- chunk payload parsers ----

func (d *Decoder) parseIHDR(p []byte) error {
	if len(p) != 13 {
		return fmt.Errorf("%w: IHDR length %d", ErrBadHeader, len(p))
	}
	width := binary.BigEndian.Uint32(p[0:4])
	height := binary.BigEndian.Uint32(p[4:8])
	depth := int(p[8])
	colorType := p[9]
	if p[10] != 0 {
		return fmt.Errorf("%w: compression method %d", ErrBadHeader, p[10])
	}
	if p[11] != 0 {
		return fmt.Errorf("%w: filter method %d", ErrBadHeader, p[11])
	}
	if p[12] > 1 {
		return fmt.Errorf("%w: interlace method %d", ErrBadHeader, p[12])
	}
	if width == 0 || height == 0 {
		return fmt.Errorf("%w: zero dimension", ErrBadHeader)
	}
	if width > maxDimension || height > maxDimension {
		return fmt.Errorf("%w: %d x %d exceeds dimension ceiling", ErrBadHeader, width, height)
	}
	if !validDepth(colorType, depth) {
		return fmt.Errorf("%w: color type %d at bit depth %d", ErrUnsupported, colorType, depth)
	}
	d.cfg.Width = int(width)
	d.cfg.Height = int(height)
	d.cfg.BitDepth = depth
	d.cfg.ColorType = colorType
	d.cfg.Interlaced = p[12] == 1
	d.cfg.PixFmt = sourcePixelFormat(colorType, depth)
	return nil
}

func validDepth(colorType byte, depth int) bool {
	switch colorType {
	case 0:
		return depth == 1 || depth == 2 || depth == 4 || depth == 8 || depth == 16
	case 2, 4, 6:
		return depth == 8 || depth == 16
	case 3:
		return depth == 1 || depth == 2 || depth == 4 || depth == 8
	}
	return false
}

func sourcePixelFormat(colorType byte, depth int) PixelFormat {
	deep := depth == 16
	switch colorType {
	case 0:
		if deep {
			return PixFmtY16
		}
		return PixFmtY
	case 2:
		if deep {
			return PixFmtRGB16
		}
		return PixFmtRGB
	case 3:
		return PixFmtIndexed
	case 4:
		if deep {
			return PixFmtYA16
		}
		return PixFmtYA
	case 6:
		if deep {
			return PixFmtRGBA16
		}
		return PixFmtRGBANonPremul
	}
	return PixFmtInvalid
}

func (d *Decoder) requirePLTEAllowed() error {
	if d.seenPLTE {
		return fmt.Errorf("%w: duplicate PLTE", ErrBadChunk)
	}
	switch d.cfg.ColorType {
	case 0, 4:
		return fmt.Errorf("%w: PLTE with grayscale color type", ErrBadChunk)
	}
	return nil
}

func (d *Decoder) parsePLTE(p []byte) error {
	if len(p) == 0 || len(p)%3 != 0 {
		return fmt.Errorf("%w: PLTE length %d", ErrBadChunk, len(p))
	}
	d.paletteLen = len(p) / 3
	for i := 0; i < d.paletteLen; i++ {
		d.palette[4*i+0] = p[3*i+2] // B
		d.palette[4*i+1] = p[3*i+1] // G
		d.palette[4*i+2] = p[3*i+0] // R
		d.palette[4*i+3] = 0xFF
	}
	d.seenPLTE = true
	return nil
}

func (d *Decoder) parseACTL(p []byte) error {
	if len(p) != 8 {
		return fmt.Errorf("%w: acTL length %d", ErrBadAnimation, len(p))
	}
	frames := binary.BigEndian.Uint32(p[0:4])
	plays := binary.BigEndian.Uint32(p[4:8])
	if frames == 0 || frames > maxDimension {
		return fmt.Errorf("%w: acTL frame count %d", ErrBadAnimation, frames)
	}
	d.cfg.Animated = true
	d.cfg.FrameCount = int(frames)
	d.cfg.LoopCount = int(plays)
	d.seenACTL = true
	return nil
}

func (d *Decoder) parseFCTL(p []byte) (FrameConfig, error) {
	if len(p) != 26 {
		return FrameConfig{}, fmt.Errorf("%w: fcTL length %d", ErrBadAnimation, len(p))
	}
	seq := int64(binary.BigEndian.Uint32(p[0:4]))
	if d.nextSeq >= 0 && seq != d.nextSeq {
		return FrameConfig{}, fmt.Errorf("%w: fcTL sequence number %d, want %d", ErrBadAnimation, seq, d.nextSeq)
	}
	d.nextSeq = seq + 1

	w := int(binary.BigEndian.Uint32(p[4:8]))
	h := int(binary.BigEndian.Uint32(p[8:12]))
	x := int(binary.BigEndian.Uint32(p[12:16]))
	y := int(binary.BigEndian.Uint32(p[16:20]))
	if w <= 0 || h <= 0 || x < 0 || y < 0 || x+w > d.cfg.Width || y+h > d.cfg.Height {
		return FrameConfig{}, fmt.Errorf("%w: frame rect %dx%d at (%d,%d) outside %dx%d canvas",
			ErrBadAnimation, w, h, x, y, d.cfg.Width, d.cfg.Height)
	}
	if d.frameIndex == 0 && (w != d.cfg.Width || h != d.cfg.Height || x != 0 || y != 0) {
		return FrameConfig{}, fmt.Errorf("%w: first frame does not cover the canvas", ErrBadAnimation)
	}

	delayNum := binary.BigEndian.Uint16(p[20:22])
	delayDen := binary.BigEndian.Uint16(p[22:24])
	if delayDen == 0 {
		delayDen = 100
	}
	dispose := p[24]
	blendOp := p[25]
	if dispose > 2 || blendOp > 1 {
		return FrameConfig{}, fmt.Errorf("%w: dispose %d / blend %d", ErrBadAnimation, dispose, blendOp)
	}

	return FrameConfig{
		Index:      d.frameIndex,
		X0:         x,
		Y0:         y,
		X1:         x + w,
		Y1:         y + h,
		Duration:   durationFromDelay(delayNum, delayDen),
		DisposeOp:  DisposeOp(dispose),
		BlendOp:    BlendOp(blendOp),
		IOPosition: d.hdrPos,
	}, nil
}

// parseColorHint records cHRM/gAMA/sRGB values on the image config. Called
// with a CRC-verified payload; malformed lengths are logged and dropped,
// matching the warn-and-discard handling of ancillary chunks.
func (d *Decoder) parseColorHint(chunkType uint32, p []byte) {
	switch chunkType {
	case chunkCHRM:
		if len(p) != 32 {
			d.logger.Warn().Int("len", len(p)).Msg("ignoring malformed cHRM chunk")
			return
		}
		for i := 0; i < 8; i++ {
			d.cfg.Chromaticity[i] = binary.BigEndian.Uint32(p[4*i : 4*i+4])
		}
		d.cfg.HasChromaticity = true
	case chunkGAMA:
		if len(p) != 4 {
			d.logger.Warn().Int("len", len(p)).Msg("ignoring malformed gAMA chunk")
			return
		}
		d.cfg.Gamma = binary.BigEndian.Uint32(p)
		d.cfg.HasGamma = true
	case chunkSRGB:
		if len(p) != 1 || p[0] > 3 {
			d.logger.Warn().Msg("ignoring malformed sRGB chunk")
			return
		}
		d.cfg.SRGBIntent = SRGBRenderingIntent(p[0])
		d.cfg.HasSRGB = true
	}
}

func (d *Decoder) parseTRNS(p []byte) {
	switch d.cfg.ColorType {
	case 0:
		if len(p) != 2 {
			d.logger.Warn().Int("len", len(p)).Msg("ignoring malformed tRNS chunk")
			return
		}
		d.keyGray = binary.BigEndian.Uint16(p)
		d.hasColorKey = true
	case 2:
		if len(p) != 6 {
			d.logger.Warn().Int("len", len(p)).Msg("ignoring malformed tRNS chunk")
			return
		}
		d.keyR = binary.BigEndian.Uint16(p[0:2])
		d.keyG = binary.BigEndian.Uint16(p[2:4])
		d.keyB = binary.BigEndian.Uint16(p[4:6])
		d.hasColorKey = true
	case 3:
		if !d.seenPLTE || len(p) > d.paletteLen {
			d.logger.Warn().Int("len", len(p)).Msg("ignoring tRNS chunk not matching palette")
			return
		}
		for i, a := range p {
			d.palette[4*i+3] = a
		}
	default:
		d.logger.Warn().Msg("ignoring tRNS chunk on alpha-carrying color type")
	}
}

// ---- geometry helpers ----

func channelCount(colorType byte) int {
	switch colorType {
	case 0, 3:
		return 1
	case 2:
		return 3
	case 4:
		return 2
	case 6:
		return 4
	}
	return 0
}

// filterDistance is the byte stride between a sample and its same-row
// predictor: the bytes per pixel, floored at one for sub-byte depths.
func (d *Decoder) filterDistance() int {
	bits := channelCount(d.cfg.ColorType) * d.cfg.BitDepth
	if bits < 8 {
		return 1
	}
	return bits / 8
}

func (d *Decoder) bytesPerRow(width int) int {
	bits := channelCount(d.cfg.ColorType) * d.cfg.BitDepth
	return (width*bits + 7) / 8
}
