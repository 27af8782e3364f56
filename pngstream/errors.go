package pngstream

import "errors"

// Suspensions and notes. These are resumable conditions, not failures: the
// caller refills a source buffer, drains a destination buffer, or services
// the reported metadata, then re-invokes the same method.
var (
	// ErrShortRead means the decoder needs more source bytes. Refill the
	// source buffer (compacting first if needed) and call again.
	ErrShortRead = errors.New("pngstream: short read")

	// ErrShortWrite means a destination buffer filled up mid-delivery.
	// Drain it and call again.
	ErrShortWrite = errors.New("pngstream: short write")

	// ErrMetadataReported means an opted-in ancillary chunk was reached.
	// Call TellMeMore before the decoder will advance past it.
	ErrMetadataReported = errors.New("pngstream: metadata reported")

	// ErrEvenMoreInformation means a raw-passthrough range was reported.
	// Consume (or skip) the range in the source stream and call
	// TellMeMore again.
	ErrEvenMoreInformation = errors.New("pngstream: even more information")

	// ErrNoMoreFrames means every frame has been enumerated. It is the
	// normal end of DecodeFrameConfig, not a failure.
	ErrNoMoreFrames = errors.New("pngstream: no more frames")
)

// Fatal errors. After returning one of these the decoder instance makes no
// further forward progress.
var (
	ErrBadSignature     = errors.New("pngstream: bad PNG signature")
	ErrBadHeader        = errors.New("pngstream: bad IHDR")
	ErrBadChunk         = errors.New("pngstream: bad chunk")
	ErrBadChecksum      = errors.New("pngstream: bad checksum")
	ErrBadAnimation     = errors.New("pngstream: bad animation data")
	ErrBadData          = errors.New("pngstream: bad compressed data")
	ErrUnsupported      = errors.New("pngstream: unsupported image")
	ErrTruncatedInput   = errors.New("pngstream: truncated input")
	ErrBadWorkbufLength = errors.New("pngstream: bad workbuf length")
	ErrBadPixelBuffer   = errors.New("pngstream: bad pixel buffer")
	ErrBadCallSequence  = errors.New("pngstream: bad call sequence")
)

// IsSuspension reports whether err is a resumable condition rather than a
// fatal decode error.
func IsSuspension(err error) bool {
	return errors.Is(err, ErrShortRead) ||
		errors.Is(err, ErrShortWrite) ||
		errors.Is(err, ErrMetadataReported) ||
		errors.Is(err, ErrEvenMoreInformation) ||
		errors.Is(err, ErrNoMoreFrames)
}
