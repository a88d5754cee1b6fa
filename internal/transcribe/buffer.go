package transcribe

import (
	"strings"
	"sync"
)

// DefaultBufferSize is how many fragments the transcript window keeps.
const DefaultBufferSize = 20

// Buffer is the bounded transcript window shared between the streaming loop
// and summary requests. Oldest fragments are evicted first.
type Buffer struct {
	mu        sync.Mutex
	fragments []string
	capacity  int
}

// NewBuffer creates a buffer holding at most capacity fragments.
func NewBuffer(capacity int) *Buffer {
	if capacity < 1 {
		capacity = DefaultBufferSize
	}
	return &Buffer{
		fragments: make([]string, 0, capacity+1),
		capacity:  capacity,
	}
}

// Append adds a fragment, evicting the oldest one if the buffer is full.
func (b *Buffer) Append(fragment string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.fragments = append(b.fragments, fragment)
	if len(b.fragments) > b.capacity {
		// Shift in place so the backing array does not grow without bound.
		n := copy(b.fragments, b.fragments[1:])
		b.fragments[n] = ""
		b.fragments = b.fragments[:n]
	}
}

// Snapshot returns the buffered fragments joined with single spaces.
func (b *Buffer) Snapshot() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.Join(b.fragments, " ")
}

// Fragments returns a copy of the buffered fragments, oldest first.
func (b *Buffer) Fragments() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.fragments))
	copy(out, b.fragments)
	return out
}

// Len returns the number of buffered fragments.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.fragments)
}

// Cap returns the buffer capacity.
func (b *Buffer) Cap() int { return b.capacity }
