package pngstream

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zlib"
)

// FrameOptions tune one DecodeFrame call.
type FrameOptions struct {
	// OnRowDecoded, if set, is called after each scanline lands in the
	// destination, with the number of rows completed and the total for
	// the frame.
	OnRowDecoded func(done, total int)
}

// DecodeFrame decodes the current frame's pixel data into dst, which must
// cover the full canvas. workbuf must be at least WorkbufLen() bytes; it
// holds the frame's decompressed filtered scanlines. If no frame config is
// pending, the next one is parsed implicitly first.
//
// The compressed stream is staged internally until the frame's data chunks
// are complete, so ErrShortRead suspensions happen at chunk granularity and
// decompression runs exactly once per frame.
func (d *Decoder) DecodeFrame(dst *PixelBuffer, src *Buffer, blend Blend, workbuf []byte, opts *FrameOptions) error {
	if d.err != nil {
		return d.err
	}
	return d.latch(d.decodeFrame(dst, src, blend, workbuf, opts))
}

func (d *Decoder) decodeFrame(dst *PixelBuffer, src *Buffer, blend Blend, workbuf []byte, opts *FrameOptions) error {
	for d.state != stateFrameData {
		switch d.state {
		case stateSignature, stateConfigChunks:
			if err := d.decodeImageConfig(nil, src); err != nil {
				return err
			}
		case stateMetadata:
			return ErrMetadataReported
		case stateEnd:
			return ErrNoMoreFrames
		case stateFrameConfig:
			if !d.haveFrameCfg {
				if err := d.decodeFrameConfig(nil, src); err != nil {
					return err
				}
			}
			d.state = stateFrameData
		}
	}

	if err := d.checkPixelBuffer(dst); err != nil {
		return err
	}

	if err := d.stageFrameData(src); err != nil {
		return err
	}

	if err := d.renderFrame(dst, blend, workbuf, opts); err != nil {
		return err
	}

	// Frame complete; set up for the next one.
	d.haveFrameCfg = false
	d.skipFrameData = false
	d.skipStarted = false
	d.frameStarted = false
	d.frameDataDone = false
	d.frameIndex++
	d.resetCompressed()
	d.state = stateFrameConfig
	return nil
}

// stageFrameData walks the frame's IDAT or fdAT run, appending compressed
// payload bytes to d.compressed. The run ends at the first chunk of another
// type, whose header is left pending for the next state.
func (d *Decoder) stageFrameData(src *Buffer) error {
	for !d.frameDataDone {
		if !d.inChunk {
			ok, err := d.readHeader(src)
			if err != nil {
				return err
			}
			if !ok {
				return shortRead(src)
			}
		}
		switch d.chunkType {
		case chunkIDAT:
			if d.frameCfg.Index != 0 {
				return fmt.Errorf("%w: IDAT inside animation frame %d", ErrBadChunk, d.frameCfg.Index)
			}
			done, err := d.consumeDataChunk(src, true)
			if err != nil {
				return err
			}
			if !done {
				return shortRead(src)
			}
			d.frameStarted = true

		case chunkFDAT:
			if d.frameCfg.Index == 0 {
				return fmt.Errorf("%w: fdAT carrying the first frame", ErrBadChunk)
			}
			done, err := d.consumeDataChunk(src, true)
			if err != nil {
				return err
			}
			if !done {
				return shortRead(src)
			}
			d.frameStarted = true

		default:
			if d.frameStarted {
				d.frameDataDone = true
				break
			}
			// Ancillary chunks may sit between an fcTL and the frame's
			// first data chunk.
			if isCriticalChunk(d.chunkType) {
				return fmt.Errorf("%w: %s before frame data", ErrBadChunk, chunkTypeString(d.chunkType))
			}
			if err := d.handleAncillary(src); err != nil {
				return err
			}
		}
	}
	if len(d.compressed) == 0 {
		return fmt.Errorf("%w: empty frame data", ErrBadData)
	}
	return nil
}

func (d *Decoder) checkPixelBuffer(dst *PixelBuffer) error {
	if dst == nil {
		return fmt.Errorf("%w: nil destination", ErrBadPixelBuffer)
	}
	bpp := dstBytesPerPixel(dst.PixFmt)
	if bpp == 0 {
		return fmt.Errorf("%w: pixel format %s", ErrBadPixelBuffer, dst.PixFmt)
	}
	if dst.Width != d.cfg.Width || dst.Height != d.cfg.Height {
		return fmt.Errorf("%w: %dx%d buffer for %dx%d canvas",
			ErrBadPixelBuffer, dst.Width, dst.Height, d.cfg.Width, d.cfg.Height)
	}
	if dst.Stride < dst.Width*bpp {
		return fmt.Errorf("%w: stride %d below row size %d", ErrBadPixelBuffer, dst.Stride, dst.Width*bpp)
	}
	if need := dst.Stride*(dst.Height-1) + dst.Width*bpp; len(dst.Pix) < need {
		return fmt.Errorf("%w: %d pixel bytes, need %d", ErrBadPixelBuffer, len(dst.Pix), need)
	}
	return nil
}

// renderFrame inflates the staged compressed stream into workbuf, then
// unfilters and swizzles each scanline into dst.
func (d *Decoder) renderFrame(dst *PixelBuffer, blend Blend, workbuf []byte, opts *FrameOptions) error {
	need := d.WorkbufLen()
	if uint64(len(workbuf)) < need {
		return fmt.Errorf("%w: have %d, need %d", ErrBadWorkbufLength, len(workbuf), need)
	}
	buf := workbuf[:need]
	if err := d.inflateInto(buf); err != nil {
		return err
	}

	if err := d.swiz.prepare(dst.PixFmt, d.cfg.PixFmt, d.cfg.BitDepth, blend); err != nil {
		return err
	}
	d.swiz.palette = d.palette[:]
	d.swiz.paletteLen = d.paletteLen
	d.swiz.hasColorKey = d.hasColorKey
	d.swiz.keyGray = d.keyGray
	d.swiz.keyR = d.keyR
	d.swiz.keyG = d.keyG
	d.swiz.keyB = d.keyB

	return d.filterAndSwizzle(dst, buf, blend, opts)
}

// inflateInto decompresses the frame's zlib stream into buf, which must be
// exactly the decompressed size. With the checksum quirk the Adler-32
// trailer is skipped by inflating the raw deflate stream instead.
func (d *Decoder) inflateInto(buf []byte) error {
	var r io.ReadCloser
	if d.ignoreChecksum {
		if len(d.compressed) < 2 {
			return fmt.Errorf("%w: missing zlib header", ErrBadData)
		}
		r = flate.NewReader(bytes.NewReader(d.compressed[2:]))
	} else {
		zr, err := zlib.NewReader(bytes.NewReader(d.compressed))
		if err != nil {
			return inflateError(err)
		}
		r = zr
	}
	defer r.Close()

	if _, err := io.ReadFull(r, buf); err != nil {
		return inflateError(err)
	}
	// One more read drives the decompressor to its end of stream, which is
	// where the zlib reader verifies the Adler-32 trailer.
	var tail [1]byte
	n, err := r.Read(tail[:])
	if n != 0 {
		return fmt.Errorf("%w: excess decompressed data", ErrBadData)
	}
	if err != nil && err != io.EOF {
		return inflateError(err)
	}
	return nil
}

func inflateError(err error) error {
	if errors.Is(err, zlib.ErrChecksum) {
		return fmt.Errorf("%w: adler32 mismatch", ErrBadChecksum)
	}
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return fmt.Errorf("%w: compressed stream ends early", ErrBadData)
	}
	return fmt.Errorf("%w: %v", ErrBadData, err)
}

// filterAndSwizzle reconstructs each pass's scanlines in place inside buf
// and swizzles them into the destination. Non-interlaced rows land directly
// in the frame's rectangle; Adam7 rows go through a staging row and are
// scattered pixel by pixel.
func (d *Decoder) filterAndSwizzle(dst *PixelBuffer, buf []byte, blend Blend, opts *FrameOptions) error {
	fw, fh := d.frameCfg.Width(), d.frameCfg.Height()
	distance := d.filterDistance()
	dstBPP := dstBytesPerPixel(dst.PixFmt)
	interlaced := d.cfg.Interlaced

	totalRows := 0
	for _, p := range passes(interlaced) {
		pw, ph := p.extent(fw, fh)
		if pw > 0 {
			totalRows += ph
		}
	}

	if interlaced && cap(d.rowBuf) < fw*dstBPP {
		d.rowBuf = make([]byte, fw*dstBPP)
	}

	rowsDone := 0
	off := 0
	for _, p := range passes(interlaced) {
		pw, ph := p.extent(fw, fh)
		if pw == 0 || ph == 0 {
			continue
		}
		bpr := d.bytesPerRow(pw)
		var prev []byte
		for y := 0; y < ph; y++ {
			row := buf[off : off+1+bpr]
			off += 1 + bpr
			cur := row[1:]
			if err := unfilterRow(row[0], cur, prev, distance); err != nil {
				return err
			}
			prev = cur

			dy := d.frameCfg.Y0 + p.yOffset + y*p.yFactor
			dstRow := dst.Pix[dy*dst.Stride:]
			if !interlaced {
				d.swiz.swizzle(dstRow[d.frameCfg.X0*dstBPP:], cur, pw)
			} else {
				rb := d.rowBuf[:pw*dstBPP]
				if blend == BlendSrcOver {
					// SRC_OVER blends against what is already on the
					// canvas, so gather those pixels first.
					for x := 0; x < pw; x++ {
						dx := d.frameCfg.X0 + p.xOffset + x*p.xFactor
						copy(rb[x*dstBPP:(x+1)*dstBPP], dstRow[dx*dstBPP:(dx+1)*dstBPP])
					}
				}
				d.swiz.swizzle(rb, cur, pw)
				for x := 0; x < pw; x++ {
					dx := d.frameCfg.X0 + p.xOffset + x*p.xFactor
					copy(dstRow[dx*dstBPP:(dx+1)*dstBPP], rb[x*dstBPP:(x+1)*dstBPP])
				}
			}

			rowsDone++
			if opts != nil && opts.OnRowDecoded != nil {
				opts.OnRowDecoded(rowsDone, totalRows)
			}
		}
	}
	return nil
}
