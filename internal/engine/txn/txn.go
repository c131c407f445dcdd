// Package txn implements the SCSP commit/abort wrapper of spec §4.7: each
// externally-initiated operation opens a Txn, issues any number of
// crawls against an in-RAM scratch superblock, and either commits
// (publishing the new inode-tree root — in one atomic store when only
// one of its two words changed, otherwise through the full superblock
// pair — discarding the staged-alloc list, clearing every staged-free
// bit) or aborts
// (discarding the scratch copy, rolling back both allocators).
//
// Grounded on
// internal/managers/container/container_checkpoint_manager.go's
// checkpoint bookkeeping (a save/restore point around a batch of
// mutations, replayed or discarded as a unit), generalized from
// checkpoint indices to a full superblock snapshot.
package txn

import (
	"fmt"

	"github.com/deploymenttheory/go-bpram/internal/engine/alloc"
	"github.com/deploymenttheory/go-bpram/internal/engine/crawler"
	"github.com/deploymenttheory/go-bpram/internal/interfaces"
	"github.com/deploymenttheory/go-bpram/internal/types"
)

// state mirrors spec §4.8's per-transaction state machine:
// IDLE --begin--> STAGED --commit/abort--> IDLE.
type state int

const (
	stateIdle state = iota
	stateStaged
)

// Txn is one SCSP transaction. Callers read Root() for the current
// (possibly already-mutated) inode tree root, perform crawls, call
// SetRoot with each crawl's returned root, and finish with Commit or
// Abort.
type Txn struct {
	dev     interfaces.BlockDevice
	blocks  *alloc.Bitmap
	inodes  *alloc.Bitmap
	crawler *crawler.Crawler

	committed types.Superblock // the superblock as of the last commit
	scratch   types.Superblock // this transaction's working copy
	state     state
}

// Begin opens a transaction against the given live superblock.
func Begin(dev interfaces.BlockDevice, blocks, inodes *alloc.Bitmap, c *crawler.Crawler, sb types.Superblock) *Txn {
	return &Txn{dev: dev, blocks: blocks, inodes: inodes, crawler: c, committed: sb, scratch: sb, state: stateStaged}
}

// Crawler returns the Crawler this transaction's operations should use.
func (t *Txn) Crawler() *crawler.Crawler { return t.crawler }

// Root returns the scratch superblock's current inode tree root.
func (t *Txn) Root() types.TreeRoot { return t.scratch.TreeRoot() }

// SetRoot installs a crawl's returned root into the scratch superblock.
// Call this after every crawl that touches the inode tree; multiple
// calls within one Txn accumulate, exactly as spec §4.7's "any number of
// crawls... possibly rewrite inode_root_addr in the (in-RAM) superblock
// view" describes, and as crawl_data_2's scratch-superblock strategy
// needs for its two sub-writes.
func (t *Txn) SetRoot(r types.TreeRoot) {
	t.scratch.SetTreeRoot(r)
}

// Superblock returns the transaction's current in-RAM superblock view
// (for reading fields like NBlocks or EphemeralValid mid-transaction).
func (t *Txn) Superblock() types.Superblock { return t.scratch }

// SetSuperblock overwrites the scratch superblock wholesale (used by
// mount's ephemeral-validity writeback, which is itself framed as a
// one-shot transaction).
func (t *Txn) SetSuperblock(sb types.Superblock) { t.scratch = sb }

// Commit publishes the scratch superblock and finalizes the allocators'
// staged lists (spec §4.7 step 2): discards staged allocations, clears
// staged frees. Returns the newly-committed superblock.
func (t *Txn) Commit() (types.Superblock, error) {
	if t.state != stateStaged {
		return types.Superblock{}, fmt.Errorf("txn: commit called outside a transaction")
	}
	if err := t.publish(); err != nil {
		return types.Superblock{}, err
	}
	t.blocks.Commit()
	t.inodes.Commit()
	t.crawler.Helper.Fresh.Reset()
	t.committed = t.scratch
	t.state = stateIdle
	return t.committed, nil
}

// Abort discards the scratch superblock and rolls both allocators back
// to their pre-transaction state (spec §4.7 step 3), undoing any resize.
func (t *Txn) Abort() types.Superblock {
	t.blocks.Abort()
	t.inodes.Abort()
	t.crawler.Helper.Fresh.Reset()
	t.scratch = t.committed
	t.state = stateIdle
	return t.committed
}

// publish writes the scratch superblock's inode tree root to the live
// superblock(s), choosing the narrowest atomic write spec §4.8 allows.
func (t *Txn) publish() error {
	if t.committed.CommitMode == types.CommitModeSP {
		return t.publishSP()
	}

	change := crawler.DiffRoot(t.committed.TreeRoot(), t.scratch.TreeRoot())
	switch change {
	case crawler.RootUnchanged:
		return nil
	case crawler.RootAddrOnly:
		return t.writeWord(32, uint64(t.scratch.TreeRoot().HA))
	case crawler.RootNBytesOnly:
		return t.writeWord(40, t.scratch.TreeRoot().NBytes)
	default: // RootBoth: no single 8-byte store can carry both words.
		// Falls back to the same redundant-pair dance SP mode always
		// uses; this is the one case where SCSP can't avoid it (spec
		// §9's open question on dual-superblock disagreement covers the
		// recovery side of this path).
		return t.publishSP()
	}
}

func (t *Txn) writeWord(offset uint32, word uint64) error {
	var b [8]byte
	putUint64(b[:], word)
	// Order the transaction's data stores before the pointer store.
	if err := t.dev.Barrier(); err != nil {
		return fmt.Errorf("txn: barrier before publishing: %w", err)
	}
	if err := t.dev.WriteAt(types.PrimarySuperblockAddr, offset, b[:]); err != nil {
		return fmt.Errorf("txn: publishing to primary superblock: %w", err)
	}
	if err := t.dev.WriteAt(types.SecondarySuperblockAddr, offset, b[:]); err != nil {
		return fmt.Errorf("txn: publishing to secondary superblock: %w", err)
	}
	return t.dev.Barrier()
}

// publishSP writes the full superblock to the secondary copy, barriers,
// then to the primary, then barriers again — a crash at any point leaves
// one of the two copies unchanged and internally consistent (spec §3,
// §4.7).
func (t *Txn) publishSP() error {
	buf := make([]byte, types.SuperblockSize)
	t.scratch.Encode(buf)
	if err := t.dev.WriteBlock(types.SecondarySuperblockAddr, buf); err != nil {
		return fmt.Errorf("txn: writing secondary superblock: %w", err)
	}
	if err := t.dev.Barrier(); err != nil {
		return fmt.Errorf("txn: barrier after secondary superblock: %w", err)
	}
	if err := t.dev.WriteBlock(types.PrimarySuperblockAddr, buf); err != nil {
		return fmt.Errorf("txn: writing primary superblock: %w", err)
	}
	return t.dev.Barrier()
}

func putUint64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}
