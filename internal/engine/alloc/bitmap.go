// Package alloc implements the bitmapped block and inode allocators with
// staged alloc/free lists described in spec §4.1: ids move onto a staged
// list when allocated or freed, and are only durably set or cleared when
// the owning transaction calls Commit; Abort discards the staged lists
// and restores the pre-transaction bitmap.
package alloc

import (
	"fmt"
	"math/bits"

	"github.com/deploymenttheory/go-bpram/internal/interfaces"
	"github.com/deploymenttheory/go-bpram/internal/types"
)

// Bitmap is an in-memory bitmap with staged alloc/free lists. It is the
// ephemeral derived state spec §3 describes: reconstructed at mount, not
// itself persisted.
type Bitmap struct {
	words []uint64
	total uint64

	stagedAlloc []uint64
	stagedFree  []uint64

	preResizeTotal uint64
	resized        bool
}

var _ interfaces.Allocator = (*Bitmap)(nil)

// New creates a bitmap with total bits, all initially clear.
func New(total uint64) *Bitmap {
	return &Bitmap{
		words: make([]uint64, wordsFor(total)),
		total: total,
	}
}

func wordsFor(total uint64) uint64 { return (total + 63) / 64 }

func (b *Bitmap) isSet(id uint64) bool {
	return b.words[id/64]&(1<<(id%64)) != 0
}

func (b *Bitmap) setBit(id uint64) {
	b.words[id/64] |= 1 << (id % 64)
}

func (b *Bitmap) clearBit(id uint64) {
	b.words[id/64] &^= 1 << (id % 64)
}

func (b *Bitmap) inStaged(list []uint64, id uint64) bool {
	for _, x := range list {
		if x == id {
			return true
		}
	}
	return false
}

// Alloc finds the first unset bit, sets it, and stages it for commit.
func (b *Bitmap) Alloc() (uint64, bool) {
	for w := range b.words {
		if b.words[w] == ^uint64(0) {
			continue
		}
		for bit := 0; bit < 64; bit++ {
			id := uint64(w)*64 + uint64(bit)
			if id >= b.total {
				return 0, false
			}
			if !b.isSet(id) {
				b.setBit(id)
				b.stagedAlloc = append(b.stagedAlloc, id)
				return id, true
			}
		}
	}
	return 0, false
}

// Free asserts id is set (panics on double-free — an invariant violation,
// spec §7 fatal conditions) and stages it for a deferred clear at commit.
// Invariant (b): an id staged-allocated in the same transaction may not
// also be staged-freed.
func (b *Bitmap) Free(id uint64) {
	if !b.isSet(id) {
		panic(fmt.Errorf("alloc: free of unallocated id %d: %w", id, types.ErrCorrupt))
	}
	if b.inStaged(b.stagedAlloc, id) {
		panic(fmt.Errorf("alloc: free of id %d staged-allocated in the same transaction: %w", id, types.ErrCorrupt))
	}
	b.stagedFree = append(b.stagedFree, id)
}

// Set forcibly marks id allocated (used during mount discovery).
func (b *Bitmap) Set(id uint64) {
	b.setBit(id)
}

// EnsureSet forcibly marks id allocated and reports whether it was
// already set, used by mount discovery to detect a directory
// double-reference.
func (b *Bitmap) EnsureSet(id uint64) bool {
	was := b.isSet(id)
	b.setBit(id)
	return was
}

// Abort clears every staged-alloc bit, discards the staged-free list, and
// reverts any resize performed during the transaction (spec §4.1
// invariant (c)).
func (b *Bitmap) Abort() {
	for _, id := range b.stagedAlloc {
		b.clearBit(id)
	}
	b.stagedAlloc = nil
	b.stagedFree = nil
	if b.resized {
		words := make([]uint64, wordsFor(b.preResizeTotal))
		copy(words, b.words)
		b.words = words
		b.total = b.preResizeTotal
		b.resized = false
	}
}

// Commit discards the staged-alloc list and clears every staged-free bit,
// sealing the current size (spec §4.1 invariant (d)).
func (b *Bitmap) Commit() {
	for _, id := range b.stagedFree {
		b.clearBit(id)
	}
	b.stagedAlloc = nil
	b.stagedFree = nil
	b.resized = false
}

// Resize grows (zero-extends) or shrinks (requires the trailing region to
// be entirely free) the bitmap, recording the pre-resize total so Abort
// can undo it.
func (b *Bitmap) Resize(newTotal uint64) error {
	if !b.resized {
		b.preResizeTotal = b.total
	}
	if newTotal < b.total {
		for id := newTotal; id < b.total; id++ {
			if b.isSet(id) {
				return fmt.Errorf("alloc: cannot shrink to %d: bit %d still set: %w", newTotal, id, types.ErrInvalidArgument)
			}
		}
	}
	newWords := make([]uint64, wordsFor(newTotal))
	copy(newWords, b.words)
	b.words = newWords
	b.total = newTotal
	b.resized = true
	return nil
}

// Total returns the current bit count.
func (b *Bitmap) Total() uint64 { return b.total }

// IsSet reports whether id is currently allocated (read-only probe used
// by mount discovery and fsck, not part of the staged-transaction API).
func (b *Bitmap) IsSet(id uint64) bool {
	if id >= b.total {
		return false
	}
	return b.isSet(id)
}

// CountSet returns the number of currently allocated bits, used by
// statvfs-style occupancy reporting.
func (b *Bitmap) CountSet() uint64 {
	var n uint64
	for _, w := range b.words {
		n += uint64(bits.OnesCount64(w))
	}
	return n
}

// Snapshot returns a deep copy of the current bit words, used by fsck to
// compare a freshly reconstructed bitmap against the running one.
func (b *Bitmap) Snapshot() []uint64 {
	out := make([]uint64, len(b.words))
	copy(out, b.words)
	return out
}
