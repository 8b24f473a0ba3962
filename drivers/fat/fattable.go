package fat

import (
	"github.com/boljen/go-bitmap"
	"github.com/mtwaring/fatdefrag/drivers/common"
)

// Table is the in-memory copy of the first FAT mirror. Cluster c is read
// and written at byte offset c*2 as a 16-bit little-endian value, uniformly
// across FAT12/16/32 (spec.md §3, §9 -- a deliberate FAT16-centric
// simplification carried over from the source rather than corrected).
type Table struct {
	buf *common.Buffer
}

// LoadTable reads fat_size bytes starting at fat_offset into a fresh Table
// (spec.md §4.4).
func LoadTable(device *common.Device, g Geometry) (*Table, error) {
	data, err := device.ReadAt(g.FATOffset, int(g.FATSize))
	if err != nil {
		return nil, err
	}
	return &Table{buf: common.WrapBuffer(data)}, nil
}

// Next returns the successor cluster recorded for c.
func (t *Table) Next(c ClusterID) (ClusterID, error) {
	v, err := t.buf.Read(int(c)*2, common.Word)
	if err != nil {
		return 0, err
	}
	return ClusterID(v), nil
}

// Set writes v as the successor cluster for c.
func (t *Table) Set(c ClusterID, v ClusterID) error {
	return t.buf.Write(uint32(v), int(c)*2, common.Word)
}

// Flush writes the cached FAT to every mirror, fat_count times, starting at
// fat_offset (spec.md §4.4). Mirrors are written in ascending index order;
// a write failure partway through leaves the mirrors inconsistent and is
// surfaced as IO_ERROR with no rollback (spec.md §7).
func (t *Table) Flush(device *common.Device, g Geometry) error {
	for i := uint32(0); i < g.FATCount; i++ {
		offset := g.FATOffset + int64(i)*int64(g.FATSize)
		if err := device.WriteAt(offset, t.buf.Bytes()); err != nil {
			return err
		}
	}
	return nil
}

// chainLength walks the chain starting at first, returning the number of
// clusters it contains. A bitmap of visited clusters guards against a
// corrupted FAT looping back on itself, which would otherwise hang -- an
// enrichment beyond the source's bare while loop, grounded in the corpus's
// bitmap-backed allocation tracking (drivers/common/blockmanager.go in the
// reference tree).
func (t *Table) chainLength(first ClusterID) (uint32, error) {
	if first == 0 {
		return 0, nil
	}
	visited := bitmap.New(t.buf.Length()/2 + 1)
	count := uint32(0)
	current := first
	for {
		idx := int(current)
		if idx >= 0 && idx < visited.Len() {
			if visited.Get(idx) {
				return 0, common.ErrInvalidPBR("cluster chain loops back on itself")
			}
			visited.Set(idx, true)
		}
		count++
		next, err := t.Next(current)
		if err != nil {
			return 0, err
		}
		if next == EndOfChain {
			break
		}
		current = next
	}
	return count, nil
}

// chain returns the full ordered list of clusters in the chain starting at
// first.
func (t *Table) chain(first ClusterID) ([]ClusterID, error) {
	if first == 0 {
		return nil, nil
	}
	var clusters []ClusterID
	current := first
	for {
		clusters = append(clusters, current)
		next, err := t.Next(current)
		if err != nil {
			return nil, err
		}
		if next == EndOfChain {
			break
		}
		current = next
	}
	return clusters, nil
}

// FindContiguousFree scans the FAT cache for the first run of n consecutive
// free (zero) entries and returns its starting cluster, or 0 if no such run
// exists before last_data_cluster (spec.md §4.7). The scan intentionally
// begins at cluster 3, not 2: this reproduces the source's off-by-one
// behavior rather than the corrected scan spec.md's Open Questions describe.
func (t *Table) FindContiguousFree(n uint32) (ClusterID, error) {
	if n == 0 {
		return 0, nil
	}
	runStart := ClusterID(0)
	runLen := uint32(0)

	for c := uint32(3); c*2+2 <= uint32(t.buf.Length()); c++ {
		if c > LastDataCluster {
			return 0, nil
		}
		v, err := t.buf.Read(int(c)*2, common.Word)
		if err != nil {
			return 0, err
		}
		if v == 0 {
			if runLen == 0 {
				runStart = ClusterID(c)
			}
			runLen++
			if runLen == n {
				return runStart, nil
			}
		} else {
			runLen = 0
		}
	}
	return 0, nil
}
