package interfaces

import "github.com/deploymenttheory/go-bpram/internal/types"

// Step is the three-way result a LeafVisitor or crawl step returns:
// negative (wrapped as error) stops with an error, zero continues, one
// stops early without error (spec §7).
type Step int

const (
	StepContinue Step = 0
	StepStop     Step = 1
)

// LeafVisitor is the polymorphic capability the crawler descends to: a
// leaf callback that sees at most one block per invocation (spec §1, §9
// design note — "model this as a polymorphic capability set").
type LeafVisitor interface {
	// VisitLeaf is called once per leaf block touched by the crawl.
	// blockoff is the byte offset of the leaf's first byte within the
	// overall tree; block is the leaf's raw bytes (the shared zero
	// sentinel block when the leaf is a hole visited under CrawlNone); off/size
	// is the sub-range of the leaf this call covers; valid is the number
	// of bytes within the leaf that are logically part of the file.
	// commit is CrawlFree when the parent freshly allocated this leaf in
	// this call, permitting in-place mutation regardless of the crawl's
	// nominal mode.
	VisitLeaf(blockoff uint64, block []byte, off, size, valid uint32, commit types.CrawlCommit) (Step, error)
}

// LeafVisitorFunc adapts a function to a LeafVisitor.
type LeafVisitorFunc func(blockoff uint64, block []byte, off, size, valid uint32, commit types.CrawlCommit) (Step, error)

func (f LeafVisitorFunc) VisitLeaf(blockoff uint64, block []byte, off, size, valid uint32, commit types.CrawlCommit) (Step, error) {
	return f(blockoff, block, off, size, valid, commit)
}

// BlocknoVisitor is the read-only variant used by crawl_blocknos: it sees
// every blockno touched by the crawl (indirect and leaf), not block
// contents. Used by truncate_block_free and mount discovery.
type BlocknoVisitor interface {
	VisitBlockno(addr types.BlockAddr, height uint8) (Step, error)
}

type BlocknoVisitorFunc func(addr types.BlockAddr, height uint8) (Step, error)

func (f BlocknoVisitorFunc) VisitBlockno(addr types.BlockAddr, height uint8) (Step, error) {
	return f(addr, height)
}
