package fat

import (
	"io"

	"github.com/mtwaring/fatdefrag/drivers/common"
)

// Volume ties together the device handle, the parsed geometry and the FAT
// cache: the open state the Path Resolver and Defragmentation Engine both
// operate against (spec.md §3's "Lifecycle").
type Volume struct {
	Device   *common.Device
	Geometry Geometry
	FAT      *Table
}

// Open reads the PBR and the first FAT mirror from stream and returns a
// ready-to-use Volume (spec.md §4.2, §4.4). The caller is responsible for
// having unmounted the underlying device first (spec.md §5) -- that step is
// an external collaborator, not the core's concern.
func Open(stream io.ReadWriteSeeker) (*Volume, error) {
	device := common.NewDevice(stream)

	sector, err := device.ReadAt(0, 512)
	if err != nil {
		return nil, err
	}
	geometry, err := ParseGeometry(sector)
	if err != nil {
		return nil, err
	}

	table, err := LoadTable(device, geometry)
	if err != nil {
		return nil, err
	}

	return &Volume{Device: device, Geometry: geometry, FAT: table}, nil
}

// clusterDataOffset returns the absolute byte offset of cluster c's data,
// branching on FAT width the way spec.md §4.7's "Cluster copy" does:
// FAT12/16 clusters are counted from 2 past the fixed root region, FAT32
// clusters are counted from 1 with no separate root region.
func (v *Volume) clusterDataOffset(c ClusterID) int64 {
	if v.Geometry.Type == FAT32 {
		return v.Geometry.DataOffset + int64(v.Geometry.ClusterSize)*(int64(c)-1)
	}
	return v.Geometry.DataOffset + int64(v.Geometry.RootDirSize) +
		int64(v.Geometry.ClusterSize)*(int64(c)-2)
}

// readCluster reads one full cluster's worth of bytes starting at c.
func (v *Volume) readCluster(c ClusterID) (*common.Buffer, int64, error) {
	offset := v.clusterDataOffset(c)
	data, err := v.Device.ReadAt(offset, int(v.Geometry.ClusterSize))
	if err != nil {
		return nil, 0, err
	}
	return common.WrapBuffer(data), offset, nil
}

// writeCluster writes a full cluster's worth of bytes to the data region at
// cluster c.
func (v *Volume) writeCluster(c ClusterID, data []byte) error {
	return v.Device.WriteAt(v.clusterDataOffset(c), data)
}

// rootDirAbsoluteOffset returns the absolute offset of the fixed root
// directory region on FAT12/16. Meaningless on FAT32, which has no such
// region (spec.md §3).
func (v *Volume) rootDirAbsoluteOffset() int64 {
	return v.Geometry.DataOffset
}

// RootFileInfo returns the synthetic handle for "/" (spec.md §4.6 step 1).
// ROOT_DIR has no describing directory entry on FAT12/16, so EntryOffset is
// left at zero there; on FAT32 it is informational only since root
// relocation is never attempted (spec.md §9).
func (v *Volume) RootFileInfo() FileInfo {
	fi := FileInfo{
		PartitionSerial: v.Geometry.SerialNumber,
		Kind:            KindRootDir,
		FirstCluster:    v.Geometry.RootDirCluster,
	}
	if v.Geometry.Type == FAT32 {
		fi.EntryOffset = v.Geometry.DataOffset +
			int64(v.Geometry.ClusterSize)*(int64(v.Geometry.RootDirCluster)-1)
	} else {
		fi.Size = v.Geometry.RootDirSize
	}
	return fi
}
