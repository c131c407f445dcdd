// Package testutil provides an in-memory BlockDevice fake used across the
// engine's test suites, the same role the teacher's MockBlockDeviceReader
// (internal/managers/btrees/btree_navigator_test.go) plays for read-only
// block access, generalized here to read/write.
package testutil

import (
	"fmt"

	"github.com/deploymenttheory/go-bpram/internal/types"
)

// MemDevice is an in-memory, read/write BlockDevice fake.
type MemDevice struct {
	blocks    [][]byte
	barriers  int
	writes    int
}

// NewMemDevice returns a device with n blocks, all zero-filled.
func NewMemDevice(n uint64) *MemDevice {
	d := &MemDevice{blocks: make([][]byte, n)}
	for i := range d.blocks {
		d.blocks[i] = make([]byte, types.BlockSize)
	}
	return d
}

func (d *MemDevice) ReadBlock(addr types.BlockAddr) ([]byte, error) {
	if !d.IsValidAddress(addr) {
		return nil, fmt.Errorf("testutil: invalid read address %d: %w", addr, types.ErrInvalidArgument)
	}
	out := make([]byte, types.BlockSize)
	copy(out, d.blocks[addr])
	return out, nil
}

func (d *MemDevice) WriteBlock(addr types.BlockAddr, data []byte) error {
	if !d.IsValidAddress(addr) {
		return fmt.Errorf("testutil: invalid write address %d: %w", addr, types.ErrInvalidArgument)
	}
	if len(data) != types.BlockSize {
		return fmt.Errorf("testutil: write size %d != %d: %w", len(data), types.BlockSize, types.ErrInvalidArgument)
	}
	copy(d.blocks[addr], data)
	d.writes++
	return nil
}

func (d *MemDevice) WriteAt(addr types.BlockAddr, offset uint32, data []byte) error {
	if !d.IsValidAddress(addr) {
		return fmt.Errorf("testutil: invalid write address %d: %w", addr, types.ErrInvalidArgument)
	}
	if offset+uint32(len(data)) > types.BlockSize {
		return fmt.Errorf("testutil: write [%d,%d) exceeds block size: %w", offset, offset+uint32(len(data)), types.ErrInvalidArgument)
	}
	copy(d.blocks[addr][offset:], data)
	return nil
}

func (d *MemDevice) Barrier() error {
	d.barriers++
	return nil
}

func (d *MemDevice) BlockSize() uint32   { return types.BlockSize }
func (d *MemDevice) TotalBlocks() uint64 { return uint64(len(d.blocks)) }

func (d *MemDevice) IsValidAddress(addr types.BlockAddr) bool {
	return addr > 0 && uint64(addr) < uint64(len(d.blocks))
}

func (d *MemDevice) Resize(newTotal uint64) error {
	if newTotal <= uint64(len(d.blocks)) {
		d.blocks = d.blocks[:newTotal]
		return nil
	}
	for uint64(len(d.blocks)) < newTotal {
		d.blocks = append(d.blocks, make([]byte, types.BlockSize))
	}
	return nil
}

func (d *MemDevice) Close() error { return nil }

// BarrierCount returns how many times Barrier was called, used by tests
// asserting a commit path issued a persistence barrier.
func (d *MemDevice) BarrierCount() int { return d.barriers }

// WriteCount returns how many block-level writes occurred.
func (d *MemDevice) WriteCount() int { return d.writes }
