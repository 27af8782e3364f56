package pngstream

import "fmt"

// swizzler maps one reconstructed source row into destination pixels. Its
// source side is fixed by the image (color type, bit depth, palette, color
// key); its destination side is whatever the caller asked DecodeFrame for.
type swizzler struct {
	srcFmt   PixelFormat
	dstFmt   PixelFormat
	blend    Blend
	bitDepth int

	palette    []byte // BGRA, 4 bytes per entry
	paletteLen int

	hasColorKey bool
	keyGray     uint16
	keyR        uint16
	keyG        uint16
	keyB        uint16
}

func (s *swizzler) prepare(dstFmt, srcFmt PixelFormat, bitDepth int, blend Blend) error {
	switch dstFmt {
	case PixFmtBGRANonPremul, PixFmtRGBANonPremul:
	case PixFmtY:
		if srcFmt != PixFmtY && srcFmt != PixFmtY16 {
			return fmt.Errorf("%w: cannot swizzle %s to %s", ErrUnsupported, srcFmt, dstFmt)
		}
		if blend != BlendSrc {
			return fmt.Errorf("%w: %s destination only supports SRC blend", ErrUnsupported, dstFmt)
		}
	default:
		return fmt.Errorf("%w: destination pixel format %s", ErrUnsupported, dstFmt)
	}
	s.srcFmt = srcFmt
	s.dstFmt = dstFmt
	s.bitDepth = bitDepth
	s.blend = blend
	return nil
}

// swizzle converts width source pixels from src into dst. dst is a
// contiguous run of destination-format pixels.
func (s *swizzler) swizzle(dst, src []byte, width int) {
	if s.dstFmt == PixFmtY {
		s.swizzleGray(dst, src, width)
		return
	}
	for x := 0; x < width; x++ {
		r, g, b, a := s.sample(src, x)
		c0, c2 := r, b
		if s.dstFmt == PixFmtBGRANonPremul {
			c0, c2 = b, r
		}
		d := dst[4*x : 4*x+4]
		switch {
		case s.blend == BlendSrc || a == 0xFF:
			d[0], d[1], d[2], d[3] = c0, g, c2, a
		case a == 0:
			// Fully transparent source over: destination unchanged.
		default:
			blendNonPremulOver(d, c0, g, c2, a)
		}
	}
}

func (s *swizzler) swizzleGray(dst, src []byte, width int) {
	switch {
	case s.srcFmt == PixFmtY16:
		for x := 0; x < width; x++ {
			dst[x] = src[2*x]
		}
	case s.bitDepth == 8:
		copy(dst[:width], src)
	default:
		for x := 0; x < width; x++ {
			v, _ := grayAt(src, x, s.bitDepth)
			dst[x] = v
		}
	}
}

// sample decodes source pixel x to 8-bit non-premultiplied RGBA channels,
// applying the palette and any tRNS color key.
func (s *swizzler) sample(src []byte, x int) (r, g, b, a byte) {
	switch s.srcFmt {
	case PixFmtY:
		v, raw := grayAt(src, x, s.bitDepth)
		a = 0xFF
		if s.hasColorKey && raw == s.keyGray {
			a = 0
		}
		return v, v, v, a

	case PixFmtY16:
		raw := uint16(src[2*x])<<8 | uint16(src[2*x+1])
		v := src[2*x]
		a = 0xFF
		if s.hasColorKey && raw == s.keyGray {
			a = 0
		}
		return v, v, v, a

	case PixFmtYA:
		v := src[2*x]
		return v, v, v, src[2*x+1]

	case PixFmtYA16:
		v := src[4*x]
		return v, v, v, src[4*x+2]

	case PixFmtIndexed:
		idx := int(indexAt(src, x, s.bitDepth))
		if idx >= s.paletteLen {
			// Out-of-range index: opaque black, matching the lenient
			// behavior of mainstream decoders.
			return 0, 0, 0, 0xFF
		}
		p := s.palette[4*idx : 4*idx+4]
		return p[2], p[1], p[0], p[3]

	case PixFmtRGB:
		r, g, b = src[3*x], src[3*x+1], src[3*x+2]
		a = 0xFF
		if s.hasColorKey &&
			uint16(r) == s.keyR && uint16(g) == s.keyG && uint16(b) == s.keyB {
			a = 0
		}
		return r, g, b, a

	case PixFmtRGB16:
		p := src[6*x : 6*x+6]
		a = 0xFF
		if s.hasColorKey &&
			uint16(p[0])<<8|uint16(p[1]) == s.keyR &&
			uint16(p[2])<<8|uint16(p[3]) == s.keyG &&
			uint16(p[4])<<8|uint16(p[5]) == s.keyB {
			a = 0
		}
		return p[0], p[2], p[4], a

	case PixFmtRGBANonPremul:
		p := src[4*x : 4*x+4]
		return p[0], p[1], p[2], p[3]

	case PixFmtRGBA16:
		p := src[8*x : 8*x+8]
		return p[0], p[2], p[4], p[6]
	}
	return 0, 0, 0, 0
}

// blendNonPremulOver composites a non-premultiplied source pixel over the
// non-premultiplied destination pixel in place.
func blendNonPremulOver(d []byte, c0, c1, c2, a byte) {
	sa := uint32(a)
	da := uint32(d[3])
	// outA scaled by 255.
	oa := sa*255 + da*(255-sa)
	if oa == 0 {
		d[0], d[1], d[2], d[3] = 0, 0, 0, 0
		return
	}
	blendChannel := func(sc, dc byte) byte {
		return byte((uint32(sc)*sa*255 + uint32(dc)*da*(255-sa)) / oa)
	}
	d[0] = blendChannel(c0, d[0])
	d[1] = blendChannel(c1, d[1])
	d[2] = blendChannel(c2, d[2])
	d[3] = byte((oa + 127) / 255)
}

// grayAt extracts gray sample x from a packed row, returning both the
// full-range 8-bit value and the raw sample for color-key comparison.
func grayAt(src []byte, x, depth int) (v byte, raw uint16) {
	switch depth {
	case 8:
		return src[x], uint16(src[x])
	case 4:
		s := (src[x>>1] >> (4 * (1 - uint(x&1)))) & 0x0F
		return s * 17, uint16(s)
	case 2:
		s := (src[x>>2] >> (6 - 2*uint(x&3))) & 0x03
		return s * 85, uint16(s)
	case 1:
		s := (src[x>>3] >> (7 - uint(x&7))) & 0x01
		return s * 255, uint16(s)
	}
	return 0, 0
}

// indexAt extracts palette index x from a packed row. Indices are never
// scaled, whatever the bit depth.
func indexAt(src []byte, x, depth int) byte {
	switch depth {
	case 8:
		return src[x]
	case 4:
		return (src[x>>1] >> (4 * (1 - uint(x&1)))) & 0x0F
	case 2:
		return (src[x>>2] >> (6 - 2*uint(x&3))) & 0x03
	case 1:
		return (src[x>>3] >> (7 - uint(x&7))) & 0x01
	}
	return 0
}
