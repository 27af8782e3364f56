package pngstream

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zlib"
)

// MetadataFlavor says how a TellMeMore delivery carries its payload.
type MetadataFlavor uint8

const (
	// FlavorParsed delivers decoded scalars in MoreInfo.Parsed.
	FlavorParsed MetadataFlavor = iota

	// FlavorRawPassthrough reports an absolute source range; the caller
	// reads the bytes from its own stream.
	FlavorRawPassthrough

	// FlavorRawTransform writes decoded bytes into the caller's
	// destination buffer.
	FlavorRawTransform
)

// MoreInfo describes one TellMeMore delivery.
type MoreInfo struct {
	Flavor MetadataFlavor
	FourCC uint32

	// Parsed holds FlavorParsed scalars: the eight cHRM values, the gAMA
	// value in Parsed[0], or the sRGB rendering intent in Parsed[0].
	Parsed [8]uint32

	// RangeMin and RangeMax bound a FlavorRawPassthrough payload as
	// absolute stream offsets, min inclusive, max exclusive.
	RangeMin uint64
	RangeMax uint64
}

// metaState is the in-flight state of one reported chunk.
type metaState struct {
	chunkType   uint32
	returnState decoderState

	// Raw-passthrough (eXIf) handshake.
	passthrough   bool
	rangeMin      uint64
	rangeMax      uint64
	rangeReported bool

	// Staged flavors.
	staged bool
	queue  []metaDelivery
}

type metaDelivery struct {
	fourcc uint32
	flavor MetadataFlavor
	parsed [8]uint32
	data   []byte
}

// beginMetadata parks the decoder on the current chunk until TellMeMore has
// delivered everything it carries.
func (d *Decoder) beginMetadata() {
	d.meta = metaState{
		chunkType:   d.chunkType,
		returnState: d.state,
	}
	if d.chunkType == chunkEXIF {
		d.meta.passthrough = true
		d.meta.rangeMin = d.hdrPos + 8
		d.meta.rangeMax = d.hdrPos + 8 + uint64(d.chunkLen)
	}
	d.state = stateMetadata
}

// TellMeMore services a pending ErrMetadataReported. Parsed deliveries fill
// minfo alone; raw-transform deliveries also write payload bytes into dst,
// suspending with ErrShortWrite when it fills. Raw-passthrough deliveries
// report a source range, suspend with ErrEvenMoreInformation, and expect the
// caller to advance the source through that range before calling again.
// TellMeMore returns nil after the chunk's final delivery, at which point
// the suspended Decode method may be resumed.
func (d *Decoder) TellMeMore(dst *Buffer, minfo *MoreInfo, src *Buffer) error {
	if d.err != nil {
		return d.err
	}
	return d.latch(d.tellMeMore(dst, minfo, src))
}

func (d *Decoder) tellMeMore(dst *Buffer, minfo *MoreInfo, src *Buffer) error {
	if d.state != stateMetadata {
		return fmt.Errorf("%w: no metadata pending", ErrBadCallSequence)
	}
	if minfo != nil {
		*minfo = MoreInfo{}
	}
	m := &d.meta

	if m.passthrough {
		return d.tellMeMorePassthrough(minfo, src)
	}

	if !m.staged {
		// A checksum mismatch on a reported chunk is logged by
		// finishChunk; the payload is still delivered.
		done, _, err := d.stageAndFinish(src, maxMetadataLen, false)
		if err != nil {
			return err
		}
		if !done {
			return shortRead(src)
		}
		m.staged = true
		if err := d.buildDeliveries(); err != nil {
			d.logger.Warn().
				Str("chunk", chunkTypeString(m.chunkType)).
				Err(err).
				Msg("discarding malformed metadata chunk")
			d.state = m.returnState
			return nil
		}
	}

	if len(m.queue) == 0 {
		d.state = m.returnState
		return nil
	}
	del := &m.queue[0]
	if minfo != nil {
		minfo.FourCC = del.fourcc
		minfo.Flavor = del.flavor
		minfo.Parsed = del.parsed
	}
	if del.flavor == FlavorRawTransform {
		if dst == nil {
			return fmt.Errorf("%w: raw transform metadata needs a destination buffer", ErrBadCallSequence)
		}
		n := copy(dst.Data[dst.WriteIdx:], del.data)
		dst.WriteIdx += n
		del.data = del.data[n:]
		if len(del.data) > 0 {
			return ErrShortWrite
		}
	}
	m.queue = m.queue[1:]
	if len(m.queue) == 0 {
		d.state = m.returnState
	}
	return nil
}

// tellMeMorePassthrough runs the two-step eXIf handshake: first report the
// payload range and suspend, then wait for the caller's cursor to clear the
// range and close out the chunk. The trailing CRC cannot be verified, since
// the payload bytes never pass through the decoder.
func (d *Decoder) tellMeMorePassthrough(minfo *MoreInfo, src *Buffer) error {
	m := &d.meta
	if !m.rangeReported {
		m.rangeReported = true
		if minfo != nil {
			minfo.Flavor = FlavorRawPassthrough
			minfo.FourCC = FourCCEXIF
			minfo.RangeMin = m.rangeMin
			minfo.RangeMax = m.rangeMax
		}
		return ErrEvenMoreInformation
	}
	for src.ReaderPosition() < m.rangeMax {
		n := src.Available()
		if n == 0 {
			return shortRead(src)
		}
		if rem := m.rangeMax - src.ReaderPosition(); uint64(n) > rem {
			n = int(rem)
		}
		src.ReadIdx += n
	}
	d.chunkRemaining = 0
	d.crcSkipVerify = true
	done, _, err := d.finishChunk(src, false)
	if err != nil {
		return err
	}
	if !done {
		return shortRead(src)
	}
	if minfo != nil {
		minfo.Flavor = FlavorRawPassthrough
		minfo.FourCC = FourCCEXIF
	}
	d.state = m.returnState
	return nil
}

// buildDeliveries parses the staged chunk payload into the delivery queue.
// An error here means the chunk is malformed; the caller discards it.
func (d *Decoder) buildDeliveries() error {
	m := &d.meta
	p := d.scratch

	switch m.chunkType {
	case chunkCHRM:
		if len(p) != 32 {
			return fmt.Errorf("cHRM length %d", len(p))
		}
		del := metaDelivery{fourcc: FourCCCHRM, flavor: FlavorParsed}
		for i := 0; i < 8; i++ {
			del.parsed[i] = binary.BigEndian.Uint32(p[4*i : 4*i+4])
		}
		m.queue = append(m.queue, del)
		d.parseColorHint(chunkCHRM, p)

	case chunkGAMA:
		if len(p) != 4 {
			return fmt.Errorf("gAMA length %d", len(p))
		}
		del := metaDelivery{fourcc: FourCCGAMA, flavor: FlavorParsed}
		del.parsed[0] = binary.BigEndian.Uint32(p)
		m.queue = append(m.queue, del)
		d.parseColorHint(chunkGAMA, p)

	case chunkSRGB:
		if len(p) != 1 || p[0] > 3 {
			return fmt.Errorf("sRGB length %d", len(p))
		}
		del := metaDelivery{fourcc: FourCCSRGB, flavor: FlavorParsed}
		del.parsed[0] = uint32(p[0])
		m.queue = append(m.queue, del)
		d.parseColorHint(chunkSRGB, p)

	case chunkICCP:
		// profile name, NUL, compression method, compressed profile.
		i := bytes.IndexByte(p, 0)
		if i < 0 || i+2 > len(p) {
			return errors.New("iCCP missing separator")
		}
		if p[i+1] != 0 {
			return fmt.Errorf("iCCP compression method %d", p[i+1])
		}
		profile, err := d.inflateAll(p[i+2:])
		if err != nil {
			return err
		}
		m.queue = append(m.queue, metaDelivery{
			fourcc: FourCCICCP,
			flavor: FlavorRawTransform,
			data:   profile,
		})

	case chunkTEXT:
		i := bytes.IndexByte(p, 0)
		if i < 0 {
			return errors.New("tEXt missing separator")
		}
		d.queueKVP(latin1ToUTF8(p[:i]), latin1ToUTF8(p[i+1:]))

	case chunkZTXT:
		i := bytes.IndexByte(p, 0)
		if i < 0 || i+2 > len(p) {
			return errors.New("zTXt missing separator")
		}
		if p[i+1] != 0 {
			return fmt.Errorf("zTXt compression method %d", p[i+1])
		}
		text, err := d.inflateAll(p[i+2:])
		if err != nil {
			return err
		}
		d.queueKVP(latin1ToUTF8(p[:i]), latin1ToUTF8(text))

	case chunkITXT:
		// keyword NUL compression-flag compression-method language NUL
		// translated-keyword NUL text.
		i := bytes.IndexByte(p, 0)
		if i < 0 || i+3 > len(p) {
			return errors.New("iTXt missing separator")
		}
		flag, method := p[i+1], p[i+2]
		rest := p[i+3:]
		j := bytes.IndexByte(rest, 0)
		if j < 0 {
			return errors.New("iTXt missing language separator")
		}
		rest = rest[j+1:]
		k := bytes.IndexByte(rest, 0)
		if k < 0 {
			return errors.New("iTXt missing translated keyword separator")
		}
		text := rest[k+1:]
		if flag != 0 {
			if method != 0 {
				return fmt.Errorf("iTXt compression method %d", method)
			}
			inflated, err := d.inflateAll(text)
			if err != nil {
				return err
			}
			text = inflated
		}
		// The iTXt keyword is Latin-1 but its text is already UTF-8.
		d.queueKVP(latin1ToUTF8(p[:i]), append([]byte(nil), text...))

	default:
		return fmt.Errorf("chunk %s carries no metadata", chunkTypeString(m.chunkType))
	}
	return nil
}

// queueKVP queues a key/value pair as alternating KVPK and KVPV raw
// transform deliveries.
func (d *Decoder) queueKVP(key, value []byte) {
	d.meta.queue = append(d.meta.queue,
		metaDelivery{fourcc: FourCCKVPK, flavor: FlavorRawTransform, data: key},
		metaDelivery{fourcc: FourCCKVPV, flavor: FlavorRawTransform, data: value},
	)
}

// inflateAll decompresses a complete zlib stream held in memory, capped at
// maxMetadataLen.
func (d *Decoder) inflateAll(p []byte) ([]byte, error) {
	var r io.ReadCloser
	if d.ignoreChecksum {
		if len(p) < 2 {
			return nil, errors.New("zlib stream too short")
		}
		r = flate.NewReader(bytes.NewReader(p[2:]))
	} else {
		zr, err := zlib.NewReader(bytes.NewReader(p))
		if err != nil {
			return nil, err
		}
		r = zr
	}
	defer r.Close()
	out, err := io.ReadAll(io.LimitReader(r, maxMetadataLen+1))
	if err != nil {
		return nil, err
	}
	if len(out) > maxMetadataLen {
		return nil, errors.New("decompressed metadata too large")
	}
	return out, nil
}

// latin1ToUTF8 re-encodes ISO 8859-1 bytes as UTF-8. ASCII is returned as a
// plain copy; bytes 0x80..0xFF become two-byte sequences.
func latin1ToUTF8(p []byte) []byte {
	ascii := true
	for _, b := range p {
		if b >= 0x80 {
			ascii = false
			break
		}
	}
	if ascii {
		return append([]byte(nil), p...)
	}
	out := make([]byte, 0, len(p)+utf8.UTFMax)
	for _, b := range p {
		out = utf8.AppendRune(out, rune(b))
	}
	return out
}
