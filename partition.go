// Package fatdefrag opens FAT12/FAT16/FAT32 volume images and defragments
// the files on them. It is a thin public facade over the internal driver
// packages: callers never see cluster arithmetic or FAT entries directly,
// only Partition, FileInfo and the handful of operations spec.md §6 names.
package fatdefrag

import (
	"fmt"
	"io"

	"github.com/mtwaring/fatdefrag/drivers/common"
	"github.com/mtwaring/fatdefrag/drivers/fat"
)

// DriverError is the error type every operation in this package returns on
// failure; it wraps a syscall.Errno the way spec.md §7's taxonomy maps onto
// errno codes.
type DriverError = common.DriverError

// Kind discriminates what a FileInfo describes.
type Kind = fat.Kind

const (
	KindNone    = fat.KindNone
	KindFile    = fat.KindFile
	KindDir     = fat.KindDir
	KindRootDir = fat.KindRootDir
)

// FileInfo is the handle every operation below accepts or returns
// (spec.md §3).
type FileInfo = fat.FileInfo

// Partition is an opened FAT volume (spec.md §6).
type Partition struct {
	volume *fat.Volume
}

// Open parses stream's boot sector and loads its FAT into memory. The
// caller must have already unmounted the underlying device at the host
// level (spec.md §5) -- this package has no notion of mount state.
func Open(stream io.ReadWriteSeeker) (*Partition, error) {
	volume, err := fat.Open(stream)
	if err != nil {
		return nil, err
	}
	return &Partition{volume: volume}, nil
}

// GetFile resolves an absolute path to a FileInfo. A path with no match
// returns a KindNone FileInfo and a nil error (spec.md §7, NOT_FOUND).
func (p *Partition) GetFile(path string) (FileInfo, error) {
	return p.volume.GetFile(path)
}

// IsFileFragmented reports how fragmented file's cluster chain is: zero if
// it is already contiguous (spec.md §4.7).
func (p *Partition) IsFileFragmented(file FileInfo) (uint32, error) {
	return p.volume.IsFragmented(file)
}

// Defragment relocates file (and, for a directory, everything beneath it)
// into contiguous runs of free clusters, returning the number of files
// actually relocated. A FileInfo from a different partition, a NONE handle,
// or a volume with no sufficiently large free run yields zero and no writes
// (spec.md §7). Errors encountered while recursing into a directory's
// children are aggregated and returned alongside a partial count rather
// than aborting the whole subtree (SPEC_FULL.md §4.12).
func (p *Partition) Defragment(file FileInfo) (uint32, error) {
	result, err := p.volume.Defragment(file)
	if err != nil {
		return result.Relocated, err
	}
	return result.Relocated, result.Err
}

// PrintFileInfo writes a human-readable summary of file to w (spec.md §6).
func PrintFileInfo(w io.Writer, file FileInfo) {
	fmt.Fprintf(w, "%s\tkind=%s\tcluster=%d\tsize=%d\tentry_offset=0x%x\n",
		file.Name, kindString(file.Kind), file.FirstCluster, file.Size, file.EntryOffset)
}

func kindString(k Kind) string {
	switch k {
	case KindFile:
		return "FILE"
	case KindDir:
		return "DIR"
	case KindRootDir:
		return "ROOT_DIR"
	default:
		return "NONE"
	}
}
