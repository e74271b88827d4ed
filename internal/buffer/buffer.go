// Package buffer implements a bounded byte arena for the parsers: values scattered over
// several reads are collected into a single backing slice, so they can be referenced
// without copying until the buffer is cleared.
package buffer

// Buffer holds consecutive segments. Only the last segment is open for appends.
type Buffer struct {
	memory []byte
	begin  int
	limit  int
}

// New returns a buffer pre-allocating initial bytes and never growing past limit.
func New(initial, limit int) Buffer {
	return Buffer{
		memory: make([]byte, 0, min(initial, limit)),
		limit:  limit,
	}
}

// Append extends the open segment. It reports false and leaves the buffer intact if the
// data wouldn't fit into the limit.
func (b *Buffer) Append(data []byte) bool {
	if len(b.memory)+len(data) > b.limit {
		return false
	}

	b.memory = append(b.memory, data...)
	return true
}

// SegmentLength is the length of the open segment.
func (b *Buffer) SegmentLength() int {
	return len(b.memory) - b.begin
}

// Preview returns the open segment, leaving it open.
func (b *Buffer) Preview() []byte {
	return b.memory[b.begin:]
}

// Finish closes the segment and returns it. The returned slice stays valid until Clear.
func (b *Buffer) Finish() []byte {
	segment := b.memory[b.begin:len(b.memory):len(b.memory)]
	b.begin = len(b.memory)

	return segment
}

// Size is the number of bytes taken by all the segments.
func (b *Buffer) Size() int {
	return len(b.memory)
}

// Clear drops all the segments. The memory is reused, so segments returned earlier must
// not be used anymore.
func (b *Buffer) Clear() {
	b.begin = 0
	b.memory = b.memory[:0]
}
