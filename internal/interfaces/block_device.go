// Package interfaces declares the capability boundaries between the
// persistence engine's packages, the way the teacher declares one
// interface per manager under internal/interfaces.
package interfaces

import (
	"github.com/deploymenttheory/go-bpram/internal/types"
)

// BlockDeviceReader reads fixed-size blocks from the BPRAM region.
type BlockDeviceReader interface {
	// ReadBlock reads a single block at the given address.
	ReadBlock(addr types.BlockAddr) ([]byte, error)

	// BlockSize returns the fixed logical block size.
	BlockSize() uint32

	// TotalBlocks returns the total number of blocks in the region.
	TotalBlocks() uint64

	// IsValidAddress reports whether addr is a usable data block address
	// (not block 0, not beyond TotalBlocks).
	IsValidAddress(addr types.BlockAddr) bool
}

// BlockDeviceWriter writes fixed-size blocks to the BPRAM region.
type BlockDeviceWriter interface {
	// WriteBlock writes a full block at the given address.
	WriteBlock(addr types.BlockAddr, data []byte) error

	// WriteAt writes len(data) bytes at addr+offset; offset+len(data)
	// must not exceed BlockSize.
	WriteAt(addr types.BlockAddr, offset uint32, data []byte) error

	// Barrier issues a persistence barrier (store fence / epoch barrier):
	// every store issued before Barrier returns is durable before any
	// store issued after it (spec §4.7, §9).
	Barrier() error
}

// BlockDevice is a full read/write BPRAM region.
type BlockDevice interface {
	BlockDeviceReader
	BlockDeviceWriter
	Resize(newTotalBlocks uint64) error
	Close() error
}
