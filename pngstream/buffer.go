package pngstream

// Buffer is a caller-owned window onto a byte stream. The decoder reads from
// Data[ReadIdx:WriteIdx] and never retains a reference to Data across calls.
//
// Pos is the absolute stream position of Data[0], so ReaderPosition is stable
// across Compact calls. Closed tells the decoder that no further bytes will
// ever arrive: a read past WriteIdx then becomes ErrTruncatedInput instead of
// the resumable ErrShortRead.
type Buffer struct {
	Data     []byte
	ReadIdx  int
	WriteIdx int
	Pos      uint64
	Closed   bool
}

// Available returns the number of unread bytes.
func (b *Buffer) Available() int {
	return b.WriteIdx - b.ReadIdx
}

// ReaderPosition returns the absolute stream position of the next unread
// byte.
func (b *Buffer) ReaderPosition() uint64 {
	return b.Pos + uint64(b.ReadIdx)
}

// WriterPosition returns the absolute stream position one past the last
// valid byte.
func (b *Buffer) WriterPosition() uint64 {
	return b.Pos + uint64(b.WriteIdx)
}

// Compact moves unread bytes to the front of Data, making room for the
// caller to append more input.
func (b *Buffer) Compact() {
	if b.ReadIdx == 0 {
		return
	}
	n := copy(b.Data, b.Data[b.ReadIdx:b.WriteIdx])
	b.Pos += uint64(b.ReadIdx)
	b.ReadIdx = 0
	b.WriteIdx = n
}

// Write appends p to the buffer's free space and returns the number of bytes
// copied. It never grows Data.
func (b *Buffer) Write(p []byte) int {
	n := copy(b.Data[b.WriteIdx:], p)
	b.WriteIdx += n
	return n
}

// Bytes returns the unread portion of the buffer.
func (b *Buffer) Bytes() []byte {
	return b.Data[b.ReadIdx:b.WriteIdx]
}
