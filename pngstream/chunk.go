package pngstream

// 89 50 4E 47 0D 0A 1A 0A
const pngSignature = "\x89PNG\r\n\x1a\n"

// Chunk types as big-endian FourCC codes, as they appear on the wire.
const (
	chunkIHDR = 0x49484452 // "IHDR"
	chunkPLTE = 0x504C5445 // "PLTE"
	chunkIDAT = 0x49444154 // "IDAT"
	chunkIEND = 0x49454E44 // "IEND"

	// APNG extension chunks.
	chunkACTL = 0x6163544C // "acTL"
	chunkFCTL = 0x6663544C // "fcTL"
	chunkFDAT = 0x66644154 // "fdAT"

	// Ancillary chunks the decoder understands.
	chunkTRNS = 0x74524E53 // "tRNS"
	chunkCHRM = 0x6348524D // "cHRM"
	chunkGAMA = 0x67414D41 // "gAMA"
	chunkSRGB = 0x73524742 // "sRGB"
	chunkICCP = 0x69434350 // "iCCP"
	chunkEXIF = 0x65584966 // "eXIf"
	chunkTEXT = 0x74455874 // "tEXt"
	chunkZTXT = 0x7A545874 // "zTXt"
	chunkITXT = 0x69545874 // "iTXt"
)

// Metadata FourCC codes, matching the canonical registry values. These name
// kinds of metadata, not chunk types: KVP covers the tEXt, zTXt and iTXt
// chunks, whose contents are reported as KVPK/KVPV pairs.
const (
	FourCCCHRM uint32 = 0x4348524D // "CHRM"
	FourCCEXIF uint32 = 0x45584946 // "EXIF"
	FourCCGAMA uint32 = 0x47414D41 // "GAMA"
	FourCCICCP uint32 = 0x49434350 // "ICCP"
	FourCCKVP  uint32 = 0x4B565020 // "KVP "
	FourCCKVPK uint32 = 0x4B56504B // "KVPK"
	FourCCKVPV uint32 = 0x4B565056 // "KVPV"
	FourCCSRGB uint32 = 0x53524742 // "SRGB"
)

// reportFourCC maps a chunk type to the FourCC callers use with
// SetReportMetadata, or 0 if the chunk carries no reportable metadata.
func reportFourCC(chunkType uint32) uint32 {
	switch chunkType {
	case chunkCHRM:
		return FourCCCHRM
	case chunkGAMA:
		return FourCCGAMA
	case chunkSRGB:
		return FourCCSRGB
	case chunkEXIF:
		return FourCCEXIF
	case chunkICCP:
		return FourCCICCP
	case chunkTEXT, chunkZTXT, chunkITXT:
		return FourCCKVP
	}
	return 0
}

// chunkTypeString renders a chunk type for error messages and logs.
func chunkTypeString(chunkType uint32) string {
	return string([]byte{
		byte(chunkType >> 24),
		byte(chunkType >> 16),
		byte(chunkType >> 8),
		byte(chunkType),
	})
}

// isCriticalChunk reports whether a checksum failure on the chunk is fatal.
// The APNG control and data chunks are formally ancillary but decode depends
// on them, so they get critical treatment, same as IHDR/PLTE/IDAT.
func isCriticalChunk(chunkType uint32) bool {
	switch chunkType {
	case chunkIHDR, chunkPLTE, chunkIDAT, chunkIEND, chunkACTL, chunkFCTL, chunkFDAT:
		return true
	}
	return false
}
