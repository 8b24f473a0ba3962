package fat

import (
	"strings"

	"github.com/mtwaring/fatdefrag/drivers/common"
)

// DirentSize is the size of a single raw directory entry, in bytes.
const DirentSize = 32

const (
	attrDirectory = 0x10
	attrFile      = 0x20
)

// Kind discriminates the tagged-variant FileInfo the way spec.md §9
// recommends: a sum type dispatched on, not a class hierarchy.
type Kind int

const (
	KindNone Kind = iota
	KindFile
	KindDir
	KindRootDir
)

// FileInfo is the only handle the defragmentation engine accepts
// (spec.md §3).
type FileInfo struct {
	PartitionSerial uint32
	Kind            Kind
	FirstCluster    ClusterID
	Size            uint32
	EntryOffset     int64
	Name            string
}

// entryAttr classifies the attribute byte at offset 0x0B into a Kind. LFN
// (0x0F) and volume-label entries fall through to KindNone and are
// effectively ignored, matching spec.md §4.5.
func entryAttr(attr byte) Kind {
	switch {
	case attr&attrDirectory != 0:
		return KindDir
	case attr == attrFile:
		return KindFile
	default:
		return KindNone
	}
}

// shortName decodes the 11-byte 8.3 short name at the start of a directory
// entry. Directories are reported by stem alone; files join a non-empty
// extension with a dot (spec.md §4.5).
func shortName(entry []byte, kind Kind) string {
	stem := trimSpacePadded(entry[0:8])
	if kind == KindDir {
		return stem
	}
	ext := trimSpacePadded(entry[8:11])
	if ext == "" {
		return stem
	}
	return stem + "." + ext
}

func trimSpacePadded(field []byte) string {
	return strings.TrimRight(string(field), " ")
}

// firstClusterOf assembles a starting cluster from the entry's high (0x14)
// and low (0x1A) 16-bit halves. Both halves are combined on every FAT
// variant; a FAT12/16 entry yields its low half only when its high field is
// zero.
func firstClusterOf(entry []byte) ClusterID {
	high := uint32(entry[0x14]) | uint32(entry[0x15])<<8
	low := uint32(entry[0x1A]) | uint32(entry[0x1B])<<8
	return ClusterID(high<<16 | low)
}

func sizeOf(entry []byte) uint32 {
	return uint32(entry[0x1C]) | uint32(entry[0x1D])<<8 |
		uint32(entry[0x1E])<<16 | uint32(entry[0x1F])<<24
}

// entryDecision reports whether scanning should stop (terminator), skip
// (deleted/dot entries), or yield a FileInfo for a raw entry, per spec.md
// §4.5.
type entryDecision int

const (
	entryYield entryDecision = iota
	entrySkip
	entryStop
)

func classifyEntry(entry []byte) entryDecision {
	switch entry[0] {
	case 0x00:
		return entryStop
	case 0xE5:
		return entrySkip
	case '.':
		return entrySkip
	default:
		return entryYield
	}
}

// decodeEntry turns 32 raw directory-entry bytes into a FileInfo. It leaves
// EntryOffset at zero: walkDirBuffer hands the entry's offset within its
// buffer to the visitor, and callers add the buffer's absolute device offset.
func decodeEntry(entry []byte, serial uint32) FileInfo {
	kind := entryAttr(entry[0x0B])
	if kind == KindNone {
		return FileInfo{Kind: KindNone}
	}
	return FileInfo{
		PartitionSerial: serial,
		Kind:            kind,
		FirstCluster:    firstClusterOf(entry),
		Size:            sizeOf(entry),
		Name:            shortName(entry, kind),
	}
}

// walkDirBuffer iterates 32-byte entries in buf, invoking visit for each
// valid, non-deleted, non-dot entry along with its byte offset within buf.
// It stops at the 0x00 terminator.
func walkDirBuffer(buf *common.Buffer, serial uint32, visit func(offset int, info FileInfo) (stop bool)) error {
	data := buf.Bytes()
	for offset := 0; offset+DirentSize <= len(data); offset += DirentSize {
		entry := data[offset : offset+DirentSize]
		switch classifyEntry(entry) {
		case entryStop:
			return nil
		case entrySkip:
			continue
		}
		info := decodeEntry(entry, serial)
		if info.Kind == KindNone {
			continue
		}
		if visit(offset, info) {
			return nil
		}
	}
	return nil
}

// searchDirBuffer linearly scans buf for an entry whose decoded short name
// exactly matches name (case-sensitive, spec.md §4.6's Open Question).
func searchDirBuffer(buf *common.Buffer, serial uint32, name string) (FileInfo, int, bool) {
	var found FileInfo
	var foundOffset int
	ok := false
	walkDirBuffer(buf, serial, func(offset int, info FileInfo) bool {
		if info.Name == name {
			found = info
			foundOffset = offset
			ok = true
			return true
		}
		return false
	})
	return found, foundOffset, ok
}
