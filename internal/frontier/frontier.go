// Package frontier holds the breadth-first work queue of a crawl run.
package frontier

import (
	"github.com/bits-and-blooms/bloom/v3"

	"github.com/JakeFAU/sitekb-crawler/internal/crawler"
)

const falsePositiveRate = 0.001

// Frontier is a FIFO queue plus a visited set. Every key is stored once,
// whether it is still queued or already popped. It is owned by a single
// goroutine and is not safe for concurrent use.
type Frontier struct {
	entries []crawler.FrontierEntry
	head    int

	filter *bloom.BloomFilter
	known  map[string]struct{}
}

// New sizes the visited-set filter for roughly expected keys.
func New(expected int) *Frontier {
	if expected < 64 {
		expected = 64
	}
	return &Frontier{
		filter: bloom.NewWithEstimates(uint(expected), falsePositiveRate),
		known:  make(map[string]struct{}, expected),
	}
}

// Seen reports whether key was queued or visited. The bloom filter answers
// most misses without touching the map.
func (f *Frontier) Seen(key string) bool {
	if !f.filter.TestString(key) {
		return false
	}
	_, ok := f.known[key]
	return ok
}

// MarkSeen records key without queueing it, e.g. for a page's canonical URL.
func (f *Frontier) MarkSeen(key string) {
	if key == "" {
		return
	}
	f.filter.AddString(key)
	f.known[key] = struct{}{}
}

// Push appends entry unless its key is already known.
func (f *Frontier) Push(entry crawler.FrontierEntry) bool {
	if entry.Key == "" || f.Seen(entry.Key) {
		return false
	}
	f.MarkSeen(entry.Key)
	f.entries = append(f.entries, entry)
	return true
}

// PopN removes up to n entries from the head of the queue.
func (f *Frontier) PopN(n int) []crawler.FrontierEntry {
	if n <= 0 || f.Len() == 0 {
		return nil
	}
	end := f.head + n
	if end > len(f.entries) {
		end = len(f.entries)
	}
	batch := make([]crawler.FrontierEntry, end-f.head)
	copy(batch, f.entries[f.head:end])
	f.head = end

	if f.head > 1024 && f.head*2 > len(f.entries) {
		f.entries = append(f.entries[:0:0], f.entries[f.head:]...)
		f.head = 0
	}
	return batch
}

// Len returns the number of queued entries.
func (f *Frontier) Len() int {
	return len(f.entries) - f.head
}

// Known returns how many distinct keys have been seen.
func (f *Frontier) Known() int {
	return len(f.known)
}
