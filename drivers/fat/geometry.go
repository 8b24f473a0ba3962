// Package fat implements the on-disk layout interpretation and
// defragmentation engine for FAT12/FAT16/FAT32 volumes.
package fat

import (
	"encoding/binary"

	"github.com/mtwaring/fatdefrag/drivers/common"
)

// FATType classifies the variant of FAT a boot sector describes.
type FATType int

const (
	NoFAT FATType = iota
	FAT12
	FAT16
	FAT32
)

func (t FATType) String() string {
	switch t {
	case FAT12:
		return "FAT12"
	case FAT16:
		return "FAT16"
	case FAT32:
		return "FAT32"
	default:
		return "NONE"
	}
}

// ClusterID is a FAT cluster number. Cluster 0 means "no cluster"; clusters
// 0 and 1 are reserved, data clusters begin at 2.
type ClusterID uint32

// EndOfChain is the sentinel value, uniform across FAT widths per spec.md
// §3 and §9: the source treats every FAT entry as 16 bits regardless of the
// true on-disk entry width, so the sentinel is always 0xFFFF.
const EndOfChain = 0xFFFF

// LastDataCluster bounds the free-space scan (spec.md §4.7).
const LastDataCluster = 0xFFEF

// Geometry is the unified set of parameters derived once from the PBR,
// covering FAT12/16/32 uniformly (spec.md §3).
type Geometry struct {
	Type FATType

	BytesPerSector    uint32
	SectorsPerCluster uint32
	ClusterSize       uint32

	ReservedSectors uint32
	FATCount        uint32
	SectorsPerFAT   uint32
	FATSize         uint32 // bytes

	FATOffset    int64 // bytes to first FAT
	RootDirOffset int64
	RootDirSize   uint32 // bytes; 0 on FAT32
	DataOffset    int64  // bytes to start of data region

	RootDirCluster ClusterID
	SerialNumber   uint32

	IsFAT bool
}

// rawBootSector mirrors the first 36 bytes of the BIOS Parameter Block that
// are common to FAT12/16/32, plus the fields the source reads to tell them
// apart.
type rawBootSector struct {
	bytesPerSector    uint16
	sectorsPerCluster uint8
	reservedSectors   uint16
	numFATs           uint8
	rootEntryCount    uint16
	totalSectors16    uint16
	sectorsPerFAT16   uint16
	totalSectors32    uint32

	// FAT32-only fields.
	sectorsPerFAT32 uint32
	rootCluster     uint32

	// Volume serial number at offset 0x27 of the FAT12/16 extended BPB and
	// at 0x43 of the FAT32 one, plus the 0x55AA signature word.
	volumeSerialNumber12_16 uint32
	volumeSerialNumber32    uint32
	bootSignature           uint16 // bytes [510:512]
}

func parseRawBootSector(sector []byte) rawBootSector {
	var raw rawBootSector
	raw.bytesPerSector = binary.LittleEndian.Uint16(sector[11:13])
	raw.sectorsPerCluster = sector[13]
	raw.reservedSectors = binary.LittleEndian.Uint16(sector[14:16])
	raw.numFATs = sector[16]
	raw.rootEntryCount = binary.LittleEndian.Uint16(sector[17:19])
	raw.totalSectors16 = binary.LittleEndian.Uint16(sector[19:21])
	raw.sectorsPerFAT16 = binary.LittleEndian.Uint16(sector[22:24])
	raw.totalSectors32 = binary.LittleEndian.Uint32(sector[32:36])

	raw.sectorsPerFAT32 = binary.LittleEndian.Uint32(sector[36:40])
	raw.rootCluster = binary.LittleEndian.Uint32(sector[44:48])

	raw.volumeSerialNumber12_16 = binary.LittleEndian.Uint32(sector[39:43])
	raw.volumeSerialNumber32 = binary.LittleEndian.Uint32(sector[67:71])
	raw.bootSignature = binary.LittleEndian.Uint16(sector[510:512])
	return raw
}

// ParseGeometry classifies the FAT variant and derives a Geometry from the
// first 512 bytes of the device (spec.md §4.2).
func ParseGeometry(sector []byte) (Geometry, error) {
	if len(sector) < 512 {
		return Geometry{}, common.ErrInvalidPBR("boot sector shorter than 512 bytes")
	}
	if sector[510] != 0x55 || sector[511] != 0xAA {
		return Geometry{}, common.ErrInvalidPBR("missing 0x55AA boot signature")
	}

	raw := parseRawBootSector(sector)

	if raw.bytesPerSector == 0 || raw.sectorsPerCluster == 0 || raw.numFATs == 0 {
		return Geometry{}, common.ErrInvalidPBR("zero bytes-per-sector, sectors-per-cluster or FAT count")
	}

	g := Geometry{
		BytesPerSector:    uint32(raw.bytesPerSector),
		SectorsPerCluster: uint32(raw.sectorsPerCluster),
		ReservedSectors:   uint32(raw.reservedSectors),
		FATCount:          uint32(raw.numFATs),
		IsFAT:             true,
	}
	g.ClusterSize = g.BytesPerSector * g.SectorsPerCluster
	if g.ClusterSize == 0 {
		return Geometry{}, common.ErrInvalidPBR("computed cluster size is zero")
	}

	// FAT12/16 vs FAT32 is decided by whether the 16-bit sectors-per-FAT
	// field is zero (spec.md §4.2).
	if raw.sectorsPerFAT16 != 0 {
		g.SectorsPerFAT = uint32(raw.sectorsPerFAT16)
	} else {
		g.SectorsPerFAT = raw.sectorsPerFAT32
	}
	if g.SectorsPerFAT == 0 {
		return Geometry{}, common.ErrInvalidPBR("sectors-per-FAT is zero")
	}
	g.FATSize = g.SectorsPerFAT * g.BytesPerSector

	var totalSectors uint32
	if raw.totalSectors16 != 0 {
		totalSectors = uint32(raw.totalSectors16)
	} else {
		totalSectors = raw.totalSectors32
	}

	g.FATOffset = int64(g.ReservedSectors) * int64(g.BytesPerSector)

	if raw.sectorsPerFAT16 == 0 {
		g.Type = FAT32
		g.RootDirSize = 0
		g.DataOffset = g.FATOffset + int64(g.FATCount)*int64(g.FATSize)
		g.RootDirCluster = ClusterID(raw.rootCluster)
		g.SerialNumber = raw.volumeSerialNumber32
	} else {
		g.RootDirSize = uint32(raw.rootEntryCount) * 32
		g.RootDirOffset = g.FATOffset + int64(g.FATCount)*int64(g.FATSize)
		// data_offset does not itself include root_dir_size; the engine
		// adds it back in where needed (spec.md §4.2, §4.7).
		g.DataOffset = g.RootDirOffset
		g.SerialNumber = raw.volumeSerialNumber12_16

		totalDataSectors := totalSectors - g.ReservedSectors - g.FATCount*g.SectorsPerFAT -
			(g.RootDirSize+g.BytesPerSector-1)/g.BytesPerSector
		totalClusters := totalDataSectors / g.SectorsPerCluster
		if totalClusters < 4085 {
			g.Type = FAT12
		} else {
			g.Type = FAT16
		}
		// Sentinel: the root region isn't cluster-addressed, but GetFile's
		// shared (current_cluster - shift)*cluster_size arithmetic needs a
		// value that resolves to offset 0 when shift == 1 (spec.md §4.6).
		g.RootDirCluster = 1
	}

	return g, nil
}
