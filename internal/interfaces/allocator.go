package interfaces

// Allocator is a bitmapped allocator with staged alloc/free lists, the
// shape shared by the block allocator and the inode allocator (spec §4.1).
type Allocator interface {
	// Alloc finds the first unset bit, sets it, records it in the staged
	// alloc list, and returns it. It returns false if no bit is free.
	Alloc() (id uint64, ok bool)

	// Free asserts id is set and appends it to the staged free list; the
	// actual bit clear is deferred to Commit.
	Free(id uint64)

	// Set forcibly marks id allocated, used during mount discovery.
	Set(id uint64)

	// EnsureSet forcibly marks id allocated and reports whether it was
	// already set, used to detect a directory double-reference during
	// mount discovery.
	EnsureSet(id uint64) (wasSet bool)

	// Abort clears all staged-alloc bits, discards the staged-free list,
	// and reverts any resize performed in this transaction.
	Abort()

	// Commit discards the staged-alloc list and clears all staged-free
	// bits, sealing the current size.
	Commit()

	// Resize grows (zero-extends) or shrinks (requires the trailing
	// region to be entirely free) the bitmap.
	Resize(newTotal uint64) error

	// Total returns the current bit count.
	Total() uint64
}
