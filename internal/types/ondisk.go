package types

import (
	"encoding/binary"

	"github.com/google/uuid"
)

// Magic identifies a BPRAM superblock. Reference: spec §6.
const Magic = uint32(0xB9F5)

// CurrentVersion is the on-media format version written by format.
const CurrentVersion = uint32(1)

// CommitMode selects how the superblock pointer update is published.
// SCSP publishes a change to just one of the tree root's two words with a
// single atomic 8-byte store to each superblock copy; a change to both
// words is published the SP way.
// SP (shadow paging proper) updates the two superblock copies sequentially
// with a persistence barrier between them, so a crash leaves at least one
// consistent (spec §3, §9).
type CommitMode uint8

const (
	CommitModeSP CommitMode = iota
	CommitModeSCSP
)

func (m CommitMode) String() string {
	switch m {
	case CommitModeSP:
		return "SP"
	case CommitModeSCSP:
		return "SCSP"
	default:
		return "unknown"
	}
}

// HeightAddr is the packed {height:3, addr:61} field that names a tree's
// root block. It is stored as one 64-bit word so that publishing a new
// (height, addr) pair is always a single atomic store — never two separate
// fields (see spec §9, design note on packed fields).
type HeightAddr uint64

// MaxHeight is the largest representable tree height (3 bits).
const MaxHeight = 7

// MaxAddr is the largest representable block address (61 bits).
const MaxAddr = 1<<61 - 1

// PackHeightAddr builds a packed field from a height and address.
func PackHeightAddr(height uint8, addr BlockAddr) HeightAddr {
	return HeightAddr(uint64(height&0x7)<<61 | uint64(addr)&MaxAddr)
}

// Height returns the packed height (0-7).
func (ha HeightAddr) Height() uint8 {
	return uint8(ha >> 61 & 0x7)
}

// Addr returns the packed block address.
func (ha HeightAddr) Addr() BlockAddr {
	return BlockAddr(ha & MaxAddr)
}

// Set performs the atomic publication the design calls the core's primary
// publication primitive: one store of a new packed (height, addr) pair.
// Callers needing true CPU-atomicity should route through
// engine/media.Barrier; this method only computes the packed value.
func (ha *HeightAddr) Set(height uint8, addr BlockAddr) {
	*ha = PackHeightAddr(height, addr)
}

// TreeRootSize is the on-media size of a TreeRoot descriptor.
const TreeRootSize = 16

// TreeRoot is the compact descriptor naming either the inode tree or a
// file's data tree (spec §3). nbytes == 0 iff addr is arbitrary; otherwise
// addr names a block, a leaf when height == 0, an indirect block otherwise.
type TreeRoot struct {
	HA     HeightAddr
	NBytes uint64
}

// IsEmpty reports whether the tree has never had bytes written to it.
func (r TreeRoot) IsEmpty() bool { return r.NBytes == 0 }

// Height returns the tree's height (0 for an empty or single-leaf tree).
func (r TreeRoot) Height() uint8 { return r.HA.Height() }

// Addr returns the tree's root block address.
func (r TreeRoot) Addr() BlockAddr { return r.HA.Addr() }

// Encode writes the 16-byte packed form.
func (r TreeRoot) Encode(b []byte) {
	binary.LittleEndian.PutUint64(b[0:8], uint64(r.HA))
	binary.LittleEndian.PutUint64(b[8:16], r.NBytes)
}

// DecodeTreeRoot reads a 16-byte packed tree root.
func DecodeTreeRoot(b []byte) TreeRoot {
	return TreeRoot{
		HA:     HeightAddr(binary.LittleEndian.Uint64(b[0:8])),
		NBytes: binary.LittleEndian.Uint64(b[8:16]),
	}
}

// IndirectFanout is the number of child pointers in one indirect block:
// 4096 bytes / 8 bytes per pointer.
const IndirectFanout = BlockSize / 8

// IndirectBlock is a tree node holding IndirectFanout child block
// addresses. A zero entry denotes a hole: a read-as-zero region that has
// not yet been allocated.
type IndirectBlock [IndirectFanout]BlockAddr

// EncodeIndirectBlock serializes an indirect block to its raw 4096-byte form.
func EncodeIndirectBlock(ib *IndirectBlock, out []byte) {
	for i, a := range ib {
		binary.LittleEndian.PutUint64(out[i*8:i*8+8], uint64(a))
	}
}

// DecodeIndirectBlock parses a raw 4096-byte block into an IndirectBlock.
func DecodeIndirectBlock(raw []byte) *IndirectBlock {
	var ib IndirectBlock
	for i := range ib {
		ib[i] = BlockAddr(binary.LittleEndian.Uint64(raw[i*8 : i*8+8]))
	}
	return &ib
}

// Mode bit layout mirrors POSIX S_IF*/permission bits, using the values
// fixed at the on-media format level (spec §6).
const (
	ModeFmt    = 0xF000
	ModeSocket = 0xC000
	ModeLink   = 0xA000
	ModeReg    = 0x8000
	ModeBlk    = 0x6000
	ModeDir    = 0x4000
	ModeChr    = 0x2000
	ModeFifo   = 0x1000
	ModePerm   = 0x01FF
)

// FileType is the directory-entry file-type byte (spec §6).
type FileType uint8

const (
	FileTypeUnknown FileType = 0
	FileTypeReg     FileType = 1
	FileTypeDir     FileType = 2
	FileTypeChr     FileType = 3
	FileTypeBlk     FileType = 4
	FileTypeFifo    FileType = 5
	FileTypeSock    FileType = 6
	FileTypeSymlink FileType = 7
)

// FileTypeFromMode derives the directory-entry file-type byte from a mode.
func FileTypeFromMode(mode uint32) FileType {
	switch mode & ModeFmt {
	case ModeReg:
		return FileTypeReg
	case ModeDir:
		return FileTypeDir
	case ModeChr:
		return FileTypeChr
	case ModeBlk:
		return FileTypeBlk
	case ModeFifo:
		return FileTypeFifo
	case ModeSocket:
		return FileTypeSock
	case ModeLink:
		return FileTypeSymlink
	default:
		return FileTypeUnknown
	}
}

// InodeSize is the fixed on-media inode size.
const InodeSize = 128

// Inode is the fixed 128-byte on-media inode record (spec §3, §6).
// generation > 0 after creation; nlinks ≥ 1 for non-directories, ≥ 2 for
// directories; for directories, only one non-".." directory entry may
// refer to the inode.
type Inode struct {
	Generation Generation
	UID        uint32
	GID        uint32
	Mode       uint32
	NLinks     uint32
	Flags      uint64
	Data       TreeRoot
	ATime      uint32
	MTime      uint32
	CTime      uint32
}

// IsDir reports whether the inode is a directory.
func (n Inode) IsDir() bool { return n.Mode&ModeFmt == ModeDir }

// Encode serializes the inode to its 128-byte on-media form.
func (n Inode) Encode(b []byte) {
	binary.LittleEndian.PutUint64(b[0:8], uint64(n.Generation))
	binary.LittleEndian.PutUint32(b[8:12], n.UID)
	binary.LittleEndian.PutUint32(b[12:16], n.GID)
	binary.LittleEndian.PutUint32(b[16:20], n.Mode)
	binary.LittleEndian.PutUint32(b[20:24], n.NLinks)
	binary.LittleEndian.PutUint64(b[24:32], n.Flags)
	n.Data.Encode(b[32:48])
	binary.LittleEndian.PutUint32(b[48:52], n.ATime)
	binary.LittleEndian.PutUint32(b[52:56], n.MTime)
	binary.LittleEndian.PutUint32(b[56:60], n.CTime)
	for i := 60; i < InodeSize; i++ {
		b[i] = 0
	}
}

// DecodeInode parses a 128-byte on-media inode record.
func DecodeInode(b []byte) Inode {
	return Inode{
		Generation: Generation(binary.LittleEndian.Uint64(b[0:8])),
		UID:        binary.LittleEndian.Uint32(b[8:12]),
		GID:        binary.LittleEndian.Uint32(b[12:16]),
		Mode:       binary.LittleEndian.Uint32(b[16:20]),
		NLinks:     binary.LittleEndian.Uint32(b[20:24]),
		Flags:      binary.LittleEndian.Uint64(b[24:32]),
		Data:       DecodeTreeRoot(b[32:48]),
		ATime:      binary.LittleEndian.Uint32(b[48:52]),
		MTime:      binary.LittleEndian.Uint32(b[52:56]),
		CTime:      binary.LittleEndian.Uint32(b[56:60]),
	}
}

// SuperblockSize is the size, in bytes, of the superblock block.
const SuperblockSize = BlockSize

// PrimarySuperblockAddr and SecondarySuperblockAddr are the fixed block
// addresses of the two superblock copies (spec §6: "Block 1: primary
// superblock; block 2: secondary").
const (
	PrimarySuperblockAddr   BlockAddr = 1
	SecondarySuperblockAddr BlockAddr = 2
	FirstDataBlockAddr      BlockAddr = 3
)

// Superblock is the single 4096-byte root of the on-media format. In SCSP
// mode the two copies are byte-identical; in SP mode they are updated
// sequentially with a persistence barrier between them.
//
// InodeRootAddr and InodeRootNBytes are, together, the inode tree's
// TreeRoot: the on-media field named inode_root_addr_2 in spec §6 is this
// tree root's nbytes word, kept as a separate field here so it reads as
// what it is rather than as a mysterious "_2" suffix.
type Superblock struct {
	Magic           uint32
	Version         uint32
	UUID            uuid.UUID
	NBlocks         uint64
	InodeRootAddr   HeightAddr
	InodeRootNBytes uint64
	CommitMode      CommitMode
	EphemeralValid  bool
}

// Encode serializes the superblock to its 4096-byte on-media form.
func (sb Superblock) Encode(b []byte) {
	binary.LittleEndian.PutUint32(b[0:4], sb.Magic)
	binary.LittleEndian.PutUint32(b[4:8], sb.Version)
	copy(b[8:24], sb.UUID[:])
	binary.LittleEndian.PutUint64(b[24:32], sb.NBlocks)
	binary.LittleEndian.PutUint64(b[32:40], uint64(sb.InodeRootAddr))
	binary.LittleEndian.PutUint64(b[40:48], sb.InodeRootNBytes)
	b[48] = byte(sb.CommitMode)
	if sb.EphemeralValid {
		b[49] = 1
	} else {
		b[49] = 0
	}
	for i := 50; i < SuperblockSize; i++ {
		b[i] = 0
	}
}

// DecodeSuperblock parses a 4096-byte on-media superblock.
func DecodeSuperblock(b []byte) Superblock {
	var sb Superblock
	sb.Magic = binary.LittleEndian.Uint32(b[0:4])
	sb.Version = binary.LittleEndian.Uint32(b[4:8])
	copy(sb.UUID[:], b[8:24])
	sb.NBlocks = binary.LittleEndian.Uint64(b[24:32])
	sb.InodeRootAddr = HeightAddr(binary.LittleEndian.Uint64(b[32:40]))
	sb.InodeRootNBytes = binary.LittleEndian.Uint64(b[40:48])
	sb.CommitMode = CommitMode(b[48])
	sb.EphemeralValid = b[49] != 0
	return sb
}

// TreeRoot reconstructs the inode tree's root descriptor from the
// superblock's packed fields.
func (sb Superblock) TreeRoot() TreeRoot {
	return TreeRoot{HA: sb.InodeRootAddr, NBytes: sb.InodeRootNBytes}
}

// SetTreeRoot installs a new inode tree root descriptor.
func (sb *Superblock) SetTreeRoot(r TreeRoot) {
	sb.InodeRootAddr = r.HA
	sb.InodeRootNBytes = r.NBytes
}
