package crawler

import (
	"github.com/deploymenttheory/go-bpram/internal/engine/tree"
	"github.com/deploymenttheory/go-bpram/internal/interfaces"
	"github.com/deploymenttheory/go-bpram/internal/types"
)

// crawlIndir visits (and, depending on mode, mutates) one indirect node
// covering height levels below it. off/size/valid are relative to this
// node's own byte window [0, tree.MaxBytes(height)).
func (c *Crawler) crawlIndir(addr types.BlockAddr, height uint8, blockoff uint64, off, size uint64, valid uint64, mode types.CrawlCommit, v interfaces.LeafVisitor) (types.BlockAddr, interfaces.Step, error) {
	span := tree.Span(height)

	if addr == types.Invalid && mode == types.CrawlNone {
		firstChild := off / span
		lastChild := (off + size - 1) / span
		var step interfaces.Step
		for i := firstChild; i <= lastChild; i++ {
			childBegin := i * span
			localOff, localSize := clampLocal(off, size, childBegin, span)
			if localSize == 0 {
				continue
			}
			childValid := clampValid(valid, childBegin, span)
			var err error
			if height == 1 {
				_, step, err = c.crawlLeaf(types.Invalid, blockoff+childBegin, uint32(localOff), uint32(localSize), uint32(childValid), types.CrawlNone, v)
			} else {
				_, step, err = c.crawlIndir(types.Invalid, height-1, blockoff+childBegin, localOff, localSize, childValid, types.CrawlNone, v)
			}
			if err != nil {
				return 0, 0, err
			}
			if step == interfaces.StepStop {
				return types.Invalid, step, nil
			}
		}
		return types.Invalid, step, nil
	}

	var buf []byte
	var err error
	fresh := false
	if addr == types.Invalid {
		addr, buf, err = c.Helper.CowBlockHole(0, 0)
		if err != nil {
			return 0, 0, err
		}
		fresh = true
	} else {
		buf, err = c.Dev.ReadBlock(addr)
		if err != nil {
			return 0, 0, err
		}
		fresh = c.Helper.Fresh.Is(addr)
	}
	ib := types.DecodeIndirectBlock(buf)

	firstChild := off / span
	lastChild := (off + size - 1) / span
	childrenSpanned := int(lastChild-firstChild) + 1
	childMode := types.ChildCommit(mode, childrenSpanned)

	changed := false
	var step interfaces.Step
	for i := firstChild; i <= lastChild; i++ {
		childBegin := i * span
		localOff, localSize := clampLocal(off, size, childBegin, span)
		if localSize == 0 {
			continue
		}
		childValid := clampValid(valid, childBegin, span)
		oldChild := ib[i]
		var newChild types.BlockAddr
		var cerr error
		if height == 1 {
			newChild, step, cerr = c.crawlLeaf(oldChild, blockoff+childBegin, uint32(localOff), uint32(localSize), uint32(childValid), childMode, v)
		} else {
			newChild, step, cerr = c.crawlIndir(oldChild, height-1, blockoff+childBegin, localOff, localSize, childValid, childMode, v)
		}
		if cerr != nil {
			return 0, 0, cerr
		}
		if newChild != oldChild {
			ib[i] = newChild
			changed = true
		}
		if step == interfaces.StepStop {
			break
		}
	}

	if !changed {
		if fresh {
			types.EncodeIndirectBlock(ib, buf)
			if err := c.Dev.WriteBlock(addr, buf); err != nil {
				return 0, 0, err
			}
		}
		return addr, step, nil
	}

	inPlace := fresh || mode == types.CrawlFree || (mode == types.CrawlAtomic && childrenSpanned == 1)
	if inPlace {
		types.EncodeIndirectBlock(ib, buf)
		if err := c.Dev.WriteBlock(addr, buf); err != nil {
			return 0, 0, err
		}
		return addr, step, nil
	}

	newAddr, buf2, err := c.Helper.CowBlockEntire(addr)
	if err != nil {
		return 0, 0, err
	}
	ib2 := types.DecodeIndirectBlock(buf2)
	*ib2 = *ib
	types.EncodeIndirectBlock(ib2, buf2)
	if err := c.Dev.WriteBlock(newAddr, buf2); err != nil {
		return 0, 0, err
	}
	return newAddr, step, nil
}
