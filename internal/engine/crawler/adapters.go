package crawler

import (
	"github.com/deploymenttheory/go-bpram/internal/interfaces"
	"github.com/deploymenttheory/go-bpram/internal/types"
)

// copyVisitor feeds bytes from (or into) a contiguous buffer across
// however many leaf blocks a crawl touches; each VisitLeaf call sees at
// most one block's worth, per the design's single-leaf-per-callback
// constraint (spec §1 Non-goals).
type copyVisitor struct {
	buf   []byte // the caller's full-range buffer
	start uint64 // absolute offset the buffer begins at
	write bool   // true: buf -> block; false: block -> buf (zero-fill on hole)
}

func (v *copyVisitor) VisitLeaf(blockoff uint64, block []byte, off, size, valid uint32, commit types.CrawlCommit) (interfaces.Step, error) {
	bufOff := blockoff + uint64(off) - v.start
	if v.write {
		copy(block[off:off+size], v.buf[bufOff:bufOff+uint64(size)])
	} else {
		if block == nil {
			for i := uint64(0); i < uint64(size); i++ {
				v.buf[bufOff+i] = 0
			}
		} else {
			copy(v.buf[bufOff:bufOff+uint64(size)], block[off:off+size])
		}
	}
	return interfaces.StepContinue, nil
}

// ReadData reads size bytes at off from the tree rooted at root into a
// freshly allocated slice. Bytes past root.NBytes, and hole regions
// within it, read as zero (spec §4.2, the zero-block sentinel).
func (c *Crawler) ReadData(root types.TreeRoot, off, size uint64) ([]byte, error) {
	out := make([]byte, size)
	if off >= root.NBytes {
		return out, nil
	}
	readable := size
	if off+readable > root.NBytes {
		readable = root.NBytes - off
	}
	v := &copyVisitor{buf: out, start: off}
	if _, err := c.descend(root, off, readable, types.CrawlNone, v); err != nil {
		return nil, err
	}
	return out, nil
}

// WriteData writes data at off into the tree rooted at root, growing it
// (height and/or nbytes) as needed, and returns the new root descriptor.
// mode is the crawl commit mode the caller selects for this write (spec
// §4.4's ATOMIC/COPY/FREE distinction); NONE is invalid here.
func (c *Crawler) WriteData(root types.TreeRoot, off uint64, data []byte, mode types.CrawlCommit) (types.TreeRoot, error) {
	v := &copyVisitor{buf: data, start: off, write: true}
	return c.CrawlTree(root, off, uint64(len(data)), mode, v)
}

// TwoSiteWrite is one of the two writes crawl_data_2 commits together.
type TwoSiteWrite struct {
	Off  uint64
	Data []byte
}

// CrawlData2 performs two writes to a shared tree (in practice, the
// inode tree: each write installs a directory's new embedded TreeRoot or
// link-count field at its inode's byte offset) and makes them commit
// atomically (spec §4.4, §4.7, §9).
//
// Both writes run as CrawlCopy against the SAME Crawler, whose
// blockhelpers.FreshSet is shared across calls. Any ancestor block the
// first write already copied is, if the second write's path touches it
// too, detected as already-fresh and mutated in place rather than copied
// again — which is exactly "re-point at the lowest common ancestor"
// without computing that ancestor explicitly. Below the point the two
// paths diverge, each write gets its own fresh copy, untouched by the
// other.
func (c *Crawler) CrawlData2(root types.TreeRoot, w1, w2 TwoSiteWrite) (types.TreeRoot, error) {
	if overlap(w1.Off, uint64(len(w1.Data)), w2.Off, uint64(len(w2.Data))) {
		return types.TreeRoot{}, errOverlap
	}
	r1, err := c.WriteData(root, w1.Off, w1.Data, types.CrawlCopy)
	if err != nil {
		return types.TreeRoot{}, err
	}
	return c.WriteData(r1, w2.Off, w2.Data, types.CrawlCopy)
}

func overlap(off1, size1, off2, size2 uint64) bool {
	return off1 < off2+size2 && off2 < off1+size1
}

var errOverlap = overlapError{}

type overlapError struct{}

func (overlapError) Error() string { return "crawler: crawl_data_2 writes must not overlap" }
