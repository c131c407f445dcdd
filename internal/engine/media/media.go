// Package media implements the byte-addressable, memory-mapped BPRAM
// region the persistence engine runs over: a regular file mmap'd
// read/write, with a Barrier that orders stores the way a real BPRAM
// store-fence would (spec §4.7, §5, §9).
//
// go-apfs never writes; it reads a disk image through io.ReaderAt. This
// package is the one piece of the domain stack no teacher dependency
// covers, so it reaches for golang.org/x/sys/unix — already a direct
// dependency of other repos in this retrieval pack (distr1-distri,
// jacobsa-fuse) for exactly this kind of raw OS interaction.
package media

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/deploymenttheory/go-bpram/internal/types"
)

// Region is a memory-mapped BPRAM region backed by a regular file.
type Region struct {
	file   *os.File
	data   []byte
	nblock uint64
}

// Open maps an existing file whose size is a positive multiple of
// BlockSize.
func Open(path string) (*Region, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("media: open %s: %w", path, err)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("media: stat %s: %w", path, err)
	}
	if fi.Size()%types.BlockSize != 0 || fi.Size() == 0 {
		f.Close()
		return nil, fmt.Errorf("media: %s size %d is not a positive multiple of %d: %w", path, fi.Size(), types.BlockSize, types.ErrInvalidArgument)
	}
	data, err := unix.Mmap(int(f.Fd()), 0, int(fi.Size()), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("media: mmap %s: %w", path, err)
	}
	return &Region{file: f, data: data, nblock: uint64(fi.Size()) / types.BlockSize}, nil
}

// Create truncates (or creates) path to exactly nblocks*BlockSize bytes
// and maps it, zero-filled, for use by format.
func Create(path string, nblocks uint64) (*Region, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("media: create %s: %w", path, err)
	}
	size := int64(nblocks) * types.BlockSize
	if err := f.Truncate(size); err != nil {
		f.Close()
		return nil, fmt.Errorf("media: truncate %s: %w", path, err)
	}
	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("media: mmap %s: %w", path, err)
	}
	return &Region{file: f, data: data, nblock: nblocks}, nil
}

// ReadBlock returns a copy of the block at addr. Block 0 is reserved;
// reading it is a fatal invariant violation (spec §7).
func (r *Region) ReadBlock(addr types.BlockAddr) ([]byte, error) {
	if addr == 0 {
		return nil, fmt.Errorf("media: read of reserved block 0: %w", types.ErrCorrupt)
	}
	if !r.IsValidAddress(addr) {
		return nil, fmt.Errorf("media: block %d out of range [1,%d): %w", addr, r.nblock, types.ErrInvalidArgument)
	}
	start := uint64(addr) * types.BlockSize
	out := make([]byte, types.BlockSize)
	copy(out, r.data[start:start+types.BlockSize])
	return out, nil
}

// WriteBlock overwrites the entire block at addr.
func (r *Region) WriteBlock(addr types.BlockAddr, block []byte) error {
	if addr == 0 {
		return fmt.Errorf("media: write of reserved block 0: %w", types.ErrCorrupt)
	}
	if !r.IsValidAddress(addr) {
		return fmt.Errorf("media: block %d out of range [1,%d): %w", addr, r.nblock, types.ErrInvalidArgument)
	}
	if len(block) != types.BlockSize {
		return fmt.Errorf("media: block write size %d != %d: %w", len(block), types.BlockSize, types.ErrInvalidArgument)
	}
	start := uint64(addr) * types.BlockSize
	copy(r.data[start:start+types.BlockSize], block)
	return nil
}

// WriteAt writes data at addr+offset, which must stay inside the block.
func (r *Region) WriteAt(addr types.BlockAddr, offset uint32, data []byte) error {
	if offset+uint32(len(data)) > types.BlockSize {
		return fmt.Errorf("media: write [%d,%d) exceeds block size: %w", offset, offset+uint32(len(data)), types.ErrInvalidArgument)
	}
	if !r.IsValidAddress(addr) {
		return fmt.Errorf("media: block %d out of range [1,%d): %w", addr, r.nblock, types.ErrInvalidArgument)
	}
	start := uint64(addr)*types.BlockSize + uint64(offset)
	copy(r.data[start:start+uint64(len(data))], data)
	return nil
}

// Barrier flushes all dirty pages synchronously, emulating the store
// fence the design requires between a data store and the pointer store
// that publishes it.
func (r *Region) Barrier() error {
	if err := unix.Msync(r.data, unix.MS_SYNC); err != nil {
		return fmt.Errorf("media: barrier: %w", err)
	}
	return nil
}

// BlockSize returns the fixed logical block size.
func (r *Region) BlockSize() uint32 { return types.BlockSize }

// TotalBlocks returns the current block count of the region.
func (r *Region) TotalBlocks() uint64 { return r.nblock }

// IsValidAddress reports whether addr is a usable, in-range data block.
func (r *Region) IsValidAddress(addr types.BlockAddr) bool {
	return addr > 0 && uint64(addr) < r.nblock
}

// Resize grows or shrinks the mapped region. Shrinking truncates the
// backing file; growing extends it and zero-fills the new tail.
func (r *Region) Resize(newTotal uint64) error {
	if err := unix.Munmap(r.data); err != nil {
		return fmt.Errorf("media: unmap for resize: %w", err)
	}
	size := int64(newTotal) * types.BlockSize
	if err := r.file.Truncate(size); err != nil {
		return fmt.Errorf("media: truncate for resize: %w", err)
	}
	data, err := unix.Mmap(int(r.file.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return fmt.Errorf("media: remap for resize: %w", err)
	}
	r.data = data
	r.nblock = newTotal
	return nil
}

// Close unmaps the region and closes the backing file.
func (r *Region) Close() error {
	if err := unix.Munmap(r.data); err != nil {
		return fmt.Errorf("media: unmap: %w", err)
	}
	return r.file.Close()
}

// ZeroBlock is the single page-sized, read-only zero block that serves as
// the read value for unallocated regions (holes), so read-only crawls
// need no allocation (spec §4.2, §9). It is never mutated and never
// freed; callers must treat it as immutable.
var ZeroBlock = make([]byte, types.BlockSize)
