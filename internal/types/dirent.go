package types

import "encoding/binary"

// DirEntryHeaderSize is the size of a directory entry's fixed header,
// before the variable-length name: ino(8) + rec_len(2) + file_type(1) +
// name_len(1).
const DirEntryHeaderSize = 12

// MaxNameLen is the longest name that fits in a directory entry within one
// block, after the fixed header, rounded to the 8-byte alignment spec §3
// and §8 (property 12) require.
const MaxNameLen = BlockSize - DirEntryHeaderSize

// DirEntry is one packed directory entry (spec §3, §6). A zero RecLen
// terminates entries in a block; a nonzero RecLen with Ino == Invalid is
// an empty slot reusable by plug.
type DirEntry struct {
	Ino      InoT
	RecLen   uint16
	FileType FileType
	Name     string
}

// Align8 rounds n up to the next multiple of 8.
func Align8(n int) int { return (n + 7) &^ 7 }

// RequiredRecLen is the minimum 8-byte-aligned record length for a
// directory entry with the given name length.
func RequiredRecLen(nameLen int) uint16 {
	return uint16(Align8(DirEntryHeaderSize + nameLen))
}

// Encode serializes the entry's header and name into b. b must be at
// least RequiredRecLen(len(name)) bytes; any padding between the name and
// RecLen's end is left untouched by the caller (zeroed by the allocator
// on fresh blocks).
func (e DirEntry) Encode(b []byte) {
	binary.LittleEndian.PutUint64(b[0:8], uint64(e.Ino))
	binary.LittleEndian.PutUint16(b[8:10], e.RecLen)
	b[10] = byte(e.FileType)
	b[11] = byte(len(e.Name))
	copy(b[DirEntryHeaderSize:DirEntryHeaderSize+len(e.Name)], e.Name)
}

// DecodeDirEntry parses one entry's header and name from b. b must contain
// at least the entry's RecLen bytes.
func DecodeDirEntry(b []byte) DirEntry {
	nameLen := int(b[11])
	return DirEntry{
		Ino:      InoT(binary.LittleEndian.Uint64(b[0:8])),
		RecLen:   binary.LittleEndian.Uint16(b[8:10]),
		FileType: FileType(b[10]),
		Name:     string(b[DirEntryHeaderSize : DirEntryHeaderSize+nameLen]),
	}
}
