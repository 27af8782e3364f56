package pngstream

import "fmt"

// Filter types, as per the PNG spec.
const (
	filterNone    = 0
	filterSub     = 1
	filterUp      = 2
	filterAverage = 3
	filterPaeth   = 4
)

// unfilterRow reconstructs one scanline in place. cur holds the filtered
// payload bytes (the filter-type byte already stripped), prev is the
// reconstructed previous row of the same pass, or nil on the first row.
// distance is the byte stride between a sample and its same-row predictor.
// All arithmetic is unsigned 8-bit wraparound.
func unfilterRow(ftype byte, cur, prev []byte, distance int) error {
	switch ftype {
	case filterNone:

	case filterSub:
		for x := distance; x < len(cur); x++ {
			cur[x] += cur[x-distance]
		}

	case filterUp:
		if prev != nil {
			for x := range cur {
				cur[x] += prev[x]
			}
		}

	case filterAverage:
		if prev == nil {
			for x := distance; x < len(cur); x++ {
				cur[x] += cur[x-distance] / 2
			}
		} else {
			for x := 0; x < distance && x < len(cur); x++ {
				cur[x] += prev[x] / 2
			}
			for x := distance; x < len(cur); x++ {
				cur[x] += uint8((uint32(cur[x-distance]) + uint32(prev[x])) / 2)
			}
		}

	case filterPaeth:
		if prev == nil {
			// With no previous row b and c are zero, which collapses the
			// Paeth predictor to Sub.
			for x := distance; x < len(cur); x++ {
				cur[x] += cur[x-distance]
			}
		} else {
			for x := 0; x < distance && x < len(cur); x++ {
				cur[x] += prev[x]
			}
			for x := distance; x < len(cur); x++ {
				cur[x] += paethPredictor(cur[x-distance], prev[x], prev[x-distance])
			}
		}

	default:
		return fmt.Errorf("%w: filter type %d", ErrBadData, ftype)
	}
	return nil
}

// paethPredictor picks whichever of a, b, c is closest to a+b-c, breaking
// ties in the order a, then b, then c.
func paethPredictor(a, b, c byte) byte {
	p := int32(a) + int32(b) - int32(c)
	pa := abs32(p - int32(a))
	pb := abs32(p - int32(b))
	pc := abs32(p - int32(c))
	if pa <= pb && pa <= pc {
		return a
	}
	if pb <= pc {
		return b
	}
	return c
}

func abs32(x int32) int32 {
	if x < 0 {
		return -x
	}
	return x
}
