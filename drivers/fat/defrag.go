package fat

import (
	"github.com/hashicorp/go-multierror"
	"github.com/mtwaring/fatdefrag/drivers/common"
)

// IsFragmented walks file's chain counting breaks between contiguous runs.
// It returns 0 if the chain is fully contiguous, otherwise the number of
// breaks plus one, i.e. the number of contiguous runs -- the source's own
// reported metric (spec.md §4.7).
func (v *Volume) IsFragmented(file FileInfo) (uint32, error) {
	if file.FirstCluster == 0 {
		return 0, nil
	}
	fragments := uint32(0)
	current := file.FirstCluster
	for {
		previous := current
		next, err := v.FAT.Next(current)
		if err != nil {
			return 0, err
		}
		current = next
		if current != EndOfChain && current != previous+1 {
			fragments++
		}
		if current == EndOfChain {
			break
		}
	}
	if fragments > 0 {
		return fragments + 1, nil
	}
	return 0, nil
}

// CountClusters returns the length of file's cluster chain (spec.md §4.7).
func (v *Volume) CountClusters(file FileInfo) (uint32, error) {
	return v.FAT.chainLength(file.FirstCluster)
}

// DefragResult reports how many files Defragment relocated, plus any
// per-child errors encountered while recursing into a directory
// (SPEC_FULL.md §4.12). Err is nil unless at least one child failed.
type DefragResult struct {
	Relocated uint32
	Err       error
}

// Defragment is the public entry point: it dispatches on file.Kind and
// recurses into directories (spec.md §4.7).
func (v *Volume) Defragment(file FileInfo) (DefragResult, error) {
	switch file.Kind {
	case KindFile:
		n, err := v.defragmentFile(file)
		return DefragResult{Relocated: n}, err
	case KindDir, KindRootDir:
		return v.defragmentDir(file)
	default:
		return DefragResult{}, nil
	}
}

// defragmentFile relocates file's chain into a contiguous region, following
// the exact step order spec.md §4.7 mandates: all data copies complete
// before any FAT mirror is updated on disk, and all mirrors are updated
// before the directory entry is patched.
func (v *Volume) defragmentFile(file FileInfo) (uint32, error) {
	if file.PartitionSerial != v.Geometry.SerialNumber || file.Kind == KindNone || file.Kind == KindRootDir {
		return 0, nil
	}

	fragments, err := v.IsFragmented(file)
	if err != nil {
		return 0, err
	}
	if fragments == 0 {
		return 0, nil
	}

	n, err := v.CountClusters(file)
	if err != nil {
		return 0, err
	}

	dest, err := v.FAT.FindContiguousFree(n)
	if err != nil {
		return 0, err
	}
	if dest == 0 {
		return 0, nil
	}

	srcChain, err := v.FAT.chain(file.FirstCluster)
	if err != nil {
		return 0, err
	}

	// Lay the new chain and copy data before touching the old one, so a
	// failure here leaves the original file intact (spec.md §4.7 step 6's
	// rationale).
	for i, src := range srcChain {
		data, _, err := v.readCluster(src)
		if err != nil {
			return 0, err
		}
		destCluster := dest + ClusterID(i)
		if err := v.writeCluster(destCluster, data.Bytes()); err != nil {
			return 0, err
		}

		if i+1 == len(srcChain) {
			if err := v.FAT.Set(destCluster, EndOfChain); err != nil {
				return 0, err
			}
		} else {
			if err := v.FAT.Set(destCluster, destCluster+1); err != nil {
				return 0, err
			}
		}
	}

	// Reclaim the original chain now that the new one is fully laid out.
	for _, old := range srcChain {
		if err := v.FAT.Set(old, 0); err != nil {
			return 0, err
		}
	}

	if err := v.FAT.Flush(v.Device, v.Geometry); err != nil {
		return 0, err
	}

	lowHalf := uint32(dest) & 0xFFFF
	if err := v.Device.WriteAt(file.EntryOffset+0x1A, common.Uint16LE(uint16(lowHalf))); err != nil {
		return 0, err
	}

	return 1, nil
}

// defragmentDir recurses into every entry of a directory, defragmenting
// each in turn (spec.md §4.7's directory dispatch). Per-child I/O failures
// are aggregated rather than aborting the whole subtree
// (SPEC_FULL.md §4.12); the relocated count only reflects children that
// actually succeeded.
func (v *Volume) defragmentDir(dir FileInfo) (DefragResult, error) {
	var result DefragResult
	var errs *multierror.Error

	visit := func(child FileInfo) {
		sub, err := v.Defragment(child)
		result.Relocated += sub.Relocated
		if err != nil {
			errs = multierror.Append(errs, err)
		}
		if sub.Err != nil {
			errs = multierror.Append(errs, sub.Err)
		}
	}

	if dir.Kind == KindRootDir && v.Geometry.Type != FAT32 {
		raw, err := v.Device.ReadAt(v.rootDirAbsoluteOffset(), int(v.Geometry.RootDirSize))
		if err != nil {
			return result, err
		}
		buf := common.WrapBuffer(raw)
		walkDirBuffer(buf, v.Geometry.SerialNumber, func(offset int, info FileInfo) bool {
			info.EntryOffset = v.rootDirAbsoluteOffset() + int64(offset)
			visit(info)
			return false
		})
		if errs != nil {
			result.Err = errs.ErrorOrNil()
		}
		return result, nil
	}

	start := dir.FirstCluster
	if dir.Kind == KindRootDir {
		start = v.Geometry.RootDirCluster
	}

	current := start
	for {
		raw, clusterOffset, err := v.readCluster(current)
		if err != nil {
			return result, err
		}
		walkDirBuffer(raw, v.Geometry.SerialNumber, func(offset int, info FileInfo) bool {
			info.EntryOffset = clusterOffset + int64(offset)
			visit(info)
			return false
		})

		next, err := v.FAT.Next(current)
		if err != nil {
			return result, err
		}
		if next == EndOfChain {
			break
		}
		current = next
	}

	if errs != nil {
		result.Err = errs.ErrorOrNil()
	}
	return result, nil
}
