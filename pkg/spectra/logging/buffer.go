package logging

import "sync"

// DefaultBufferSize is used when a non-positive size is requested.
const DefaultBufferSize = 100

// LogBuffer is a fixed-size ring of the newest entries.
type LogBuffer struct {
	mu      sync.RWMutex
	entries []Entry
	next    int
	full    bool
}

// NewLogBuffer returns a buffer holding up to size entries.
func NewLogBuffer(size int) *LogBuffer {
	if size <= 0 {
		size = DefaultBufferSize
	}
	return &LogBuffer{entries: make([]Entry, size)}
}

// Add appends e, overwriting the oldest entry when full.
func (b *LogBuffer) Add(e Entry) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries[b.next] = e
	b.next = (b.next + 1) % len(b.entries)
	if b.next == 0 {
		b.full = true
	}
}

func (b *LogBuffer) lenLocked() int {
	if b.full {
		return len(b.entries)
	}
	return b.next
}

// Len returns the number of buffered entries.
func (b *LogBuffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lenLocked()
}

// Entries returns a copy of every buffered entry, oldest first.
func (b *LogBuffer) Entries() []Entry {
	return b.Last(b.Cap())
}

// Cap returns the buffer capacity.
func (b *LogBuffer) Cap() int {
	return len(b.entries)
}

// Last returns a copy of the newest n entries, oldest first.
func (b *LogBuffer) Last(n int) []Entry {
	b.mu.RLock()
	defer b.mu.RUnlock()

	count := b.lenLocked()
	if n > count {
		n = count
	}
	if n <= 0 {
		return []Entry{}
	}
	out := make([]Entry, n)
	start := b.next - n
	if start < 0 {
		start += len(b.entries)
	}
	for i := range out {
		out[i] = b.entries[(start+i)%len(b.entries)]
	}
	return out
}

// Clear drops every entry.
func (b *LogBuffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.next = 0
	b.full = false
	clear(b.entries)
}
