package testing

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

// FAT16ImageOptions parameterizes [NewFAT16Image]. Fields left at zero take
// defaults sized to land past the FAT12/FAT16 cluster-count boundary
// (geometry.go), so the fixture this package hands out is an actual FAT16
// volume rather than a small floppy-sized FAT12 one.
type FAT16ImageOptions struct {
	BytesPerSector    uint16
	SectorsPerCluster uint8
	ReservedSectors   uint16
	FATCount          uint8
	RootEntryCount    uint16
	TotalSectors      uint16
	SectorsPerFAT     uint16
	SerialNumber      uint32
}

func (o FAT16ImageOptions) withDefaults() FAT16ImageOptions {
	if o.BytesPerSector == 0 {
		o.BytesPerSector = 512
	}
	if o.SectorsPerCluster == 0 {
		o.SectorsPerCluster = 1
	}
	if o.ReservedSectors == 0 {
		o.ReservedSectors = 1
	}
	if o.FATCount == 0 {
		o.FATCount = 2
	}
	if o.RootEntryCount == 0 {
		o.RootEntryCount = 224
	}
	if o.TotalSectors == 0 {
		o.TotalSectors = 4249
	}
	if o.SectorsPerFAT == 0 {
		o.SectorsPerFAT = 17
	}
	if o.SerialNumber == 0 {
		o.SerialNumber = 0xDEADBEEF
	}
	return o
}

// NewFAT16Image builds a minimal, valid FAT16 boot sector plus zeroed FAT
// mirrors, root directory and data region entirely in memory -- a synthetic
// fixture for exercising the driver without a real disk image on hand.
// Clusters 0 and 1 are marked reserved in the FAT the way a freshly
// formatted volume's would be; everything past the root directory is free.
func NewFAT16Image(t *testing.T, opts FAT16ImageOptions) []byte {
	o := opts.withDefaults()

	rootDirSectors := (uint32(o.RootEntryCount)*32 + uint32(o.BytesPerSector) - 1) / uint32(o.BytesPerSector)
	dataSectors := uint32(o.TotalSectors) - uint32(o.ReservedSectors) -
		uint32(o.FATCount)*uint32(o.SectorsPerFAT) - rootDirSectors
	require.Greater(t, dataSectors, uint32(0), "geometry leaves no data region")

	totalSize := uint32(o.TotalSectors) * uint32(o.BytesPerSector)
	image := make([]byte, totalSize)

	binary.LittleEndian.PutUint16(image[11:13], o.BytesPerSector)
	image[13] = o.SectorsPerCluster
	binary.LittleEndian.PutUint16(image[14:16], o.ReservedSectors)
	image[16] = o.FATCount
	binary.LittleEndian.PutUint16(image[17:19], o.RootEntryCount)
	binary.LittleEndian.PutUint16(image[19:21], o.TotalSectors)
	image[21] = 0xF8 // media descriptor: fixed disk
	binary.LittleEndian.PutUint16(image[22:24], o.SectorsPerFAT)
	binary.LittleEndian.PutUint32(image[39:43], o.SerialNumber)
	image[510] = 0x55
	image[511] = 0xAA

	fatOffset := uint32(o.ReservedSectors) * uint32(o.BytesPerSector)
	binary.LittleEndian.PutUint16(image[fatOffset:fatOffset+2], 0xFFF8)
	binary.LittleEndian.PutUint16(image[fatOffset+2:fatOffset+4], 0xFFFF)

	return image
}
