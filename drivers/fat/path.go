package fat

import (
	"strings"

	"github.com/mtwaring/fatdefrag/drivers/common"
)

// GetFile resolves an absolute, '/'-separated path to a FileInfo, or a
// KindNone FileInfo if no such path exists (spec.md §4.6). Name comparison
// is case-sensitive against the on-disk short-name bytes, per spec.md §9's
// Open Question: callers must already supply uppercase 8.3 names.
func (v *Volume) GetFile(path string) (FileInfo, error) {
	if path == "/" {
		return v.RootFileInfo(), nil
	}

	currentCluster := v.Geometry.RootDirCluster
	dataOffset := v.Geometry.DataOffset
	dirSize := v.Geometry.RootDirSize
	shift := int64(1)
	switchAfterFirstSearch := false

	if v.Geometry.Type == FAT32 {
		// A FAT32 root has no separate fixed region: it is a normal cluster
		// chain from the start (spec.md §4.7's directory-dispatch note).
		dirSize = v.Geometry.ClusterSize
	} else {
		switchAfterFirstSearch = true
	}

	serial := v.Geometry.SerialNumber
	remaining := strings.TrimPrefix(path, "/")

	var match FileInfo

	for remaining != "" {
		name, rest := splitFirstComponent(remaining)

		match = FileInfo{Kind: KindNone}
		for {
			clusterOffset := dataOffset + (int64(currentCluster)-shift)*int64(v.Geometry.ClusterSize)
			raw, err := v.Device.ReadAt(clusterOffset, int(dirSize))
			if err != nil {
				return FileInfo{}, err
			}
			buf := common.WrapBuffer(raw)

			found, offset, ok := searchDirBuffer(buf, serial, name)

			if switchAfterFirstSearch {
				dataOffset += int64(v.Geometry.RootDirSize)
				dirSize = v.Geometry.ClusterSize
				shift = 2
				switchAfterFirstSearch = false
			}

			if ok {
				found.EntryOffset = clusterOffset + int64(offset)
				match = found
				break
			}

			next, err := v.FAT.Next(currentCluster)
			if err != nil {
				return FileInfo{}, err
			}
			if next == EndOfChain {
				break
			}
			currentCluster = next
		}

		remaining = rest

		if match.Kind != KindDir && remaining != "" {
			return FileInfo{Kind: KindNone}, nil
		}
		if match.Kind == KindDir {
			currentCluster = match.FirstCluster
		}
	}

	if match.Kind == KindNone {
		return FileInfo{Kind: KindNone}, nil
	}
	return match, nil
}

// splitFirstComponent returns the first '/'-delimited component of path and
// whatever remains after it (with the separating slash consumed).
func splitFirstComponent(path string) (name, rest string) {
	i := strings.IndexByte(path, '/')
	if i < 0 {
		return path, ""
	}
	return path[:i], path[i+1:]
}
