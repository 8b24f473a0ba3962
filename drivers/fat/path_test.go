package fat_test

import (
	"encoding/binary"
	"testing"

	"github.com/mtwaring/fatdefrag/drivers/fat"
	fdtesting "github.com/mtwaring/fatdefrag/testing"
	"github.com/xaionaro-go/bytesextra"
)

// writeDirEntry pokes a single 32-byte 8.3 directory entry into image at
// offset, the same layout dirent.go decodes.
func writeDirEntry(image []byte, offset int, name, ext string, attr byte, firstCluster uint32, size uint32) {
	entry := image[offset : offset+32]
	for i := range entry {
		entry[i] = 0
	}
	copy(entry[0:8], []byte("        "))
	copy(entry[0:8], []byte(name))
	copy(entry[8:11], []byte("   "))
	copy(entry[8:11], []byte(ext))
	entry[0x0B] = attr
	binary.LittleEndian.PutUint16(entry[0x14:0x16], uint16(firstCluster>>16))
	binary.LittleEndian.PutUint16(entry[0x1A:0x1C], uint16(firstCluster))
	binary.LittleEndian.PutUint32(entry[0x1C:0x20], size)
}

// buildTestVolume lays out a root directory containing a file FOO.TXT
// (cluster 2) and a subdirectory SUB (cluster 4) containing BAZ.TXT
// (cluster 5).
func buildTestVolume(t *testing.T) *fat.Volume {
	t.Helper()
	image := fdtesting.NewFAT16Image(t, fdtesting.FAT16ImageOptions{})

	g, err := fat.ParseGeometry(image[:512])
	if err != nil {
		t.Fatalf("unexpected error: %s", err.Error())
	}

	rootOffset := int(g.DataOffset)
	writeDirEntry(image, rootOffset, "FOO", "TXT", 0x20, 2, 100)
	writeDirEntry(image, rootOffset+32, "SUB", "", 0x10, 4, 0)

	dataOffset := int(g.DataOffset) + int(g.RootDirSize)
	subClusterOffset := dataOffset + int(g.ClusterSize)*(4-2)
	writeDirEntry(image, subClusterOffset, "BAZ", "TXT", 0x20, 5, 10)

	fatOffset := int(g.FATOffset)
	binary.LittleEndian.PutUint16(image[fatOffset+2*2:fatOffset+2*2+2], fat.EndOfChain)
	binary.LittleEndian.PutUint16(image[fatOffset+4*2:fatOffset+4*2+2], fat.EndOfChain)
	binary.LittleEndian.PutUint16(image[fatOffset+5*2:fatOffset+5*2+2], fat.EndOfChain)

	volume, err := fat.Open(bytesextra.NewReadWriteSeeker(image))
	if err != nil {
		t.Fatalf("unexpected error opening volume: %s", err.Error())
	}
	return volume
}

func TestGetFile__Root(t *testing.T) {
	volume := buildTestVolume(t)
	info, err := volume.GetFile("/")
	if err != nil {
		t.Fatalf("unexpected error: %s", err.Error())
	}
	if info.Kind != fat.KindRootDir {
		t.Errorf("expected KindRootDir, got %v", info.Kind)
	}
}

func TestGetFile__TopLevelFile(t *testing.T) {
	volume := buildTestVolume(t)
	info, err := volume.GetFile("/FOO.TXT")
	if err != nil {
		t.Fatalf("unexpected error: %s", err.Error())
	}
	if info.Kind != fat.KindFile {
		t.Fatalf("expected KindFile, got %v", info.Kind)
	}
	if info.FirstCluster != 2 {
		t.Errorf("expected first cluster 2, got %d", info.FirstCluster)
	}
	if info.Size != 100 {
		t.Errorf("expected size 100, got %d", info.Size)
	}
}

func TestGetFile__NestedFile(t *testing.T) {
	volume := buildTestVolume(t)
	info, err := volume.GetFile("/SUB/BAZ.TXT")
	if err != nil {
		t.Fatalf("unexpected error: %s", err.Error())
	}
	if info.Kind != fat.KindFile {
		t.Fatalf("expected KindFile, got %v", info.Kind)
	}
	if info.FirstCluster != 5 {
		t.Errorf("expected first cluster 5, got %d", info.FirstCluster)
	}
}

// TestGetFile__NonExistentIntermediateDir covers spec.md's S5 scenario: a
// path through a directory that doesn't exist resolves to KindNone, not an
// error.
func TestGetFile__NonExistentIntermediateDir(t *testing.T) {
	volume := buildTestVolume(t)
	info, err := volume.GetFile("/NOPE/FILE.TXT")
	if err != nil {
		t.Fatalf("unexpected error: %s", err.Error())
	}
	if info.Kind != fat.KindNone {
		t.Errorf("expected KindNone, got %v", info.Kind)
	}
}

func TestGetFile__FileTreatedAsDirSegmentFails(t *testing.T) {
	volume := buildTestVolume(t)
	info, err := volume.GetFile("/FOO.TXT/BAR")
	if err != nil {
		t.Fatalf("unexpected error: %s", err.Error())
	}
	if info.Kind != fat.KindNone {
		t.Errorf("expected KindNone when a path segment names a file, got %v", info.Kind)
	}
}
