package fat_test

import (
	"encoding/binary"
	"testing"

	"github.com/mtwaring/fatdefrag/drivers/fat"
	fdtesting "github.com/mtwaring/fatdefrag/testing"
	"github.com/xaionaro-go/bytesextra"
)

// clusterByteOffset replicates the FAT12/16 data-region formula
// (spec.md §4.7's "Cluster copy") so the test can place fixture bytes
// exactly where the driver will look for them.
func clusterByteOffset(g fat.Geometry, c uint32) int {
	return int(g.DataOffset) + int(g.RootDirSize) + int(g.ClusterSize)*(int(c)-2)
}

func setFATEntry(image []byte, fatOffset int64, cluster uint32, value uint16) {
	off := int(fatOffset) + int(cluster)*2
	binary.LittleEndian.PutUint16(image[off:off+2], value)
}

// buildFragmentedVolume lays out a file FRAG.TXT whose three-cluster chain
// (10 -> 20 -> 30) is scattered, with clusters 3-5 left free as the
// destination run, and a distinct fill byte per source cluster so content
// preservation can be checked after relocation. It returns the volume, the
// resolved FileInfo, and the backing image -- bytesextra writes through to
// this slice in place, so the test can inspect it after Defragment runs.
func buildFragmentedVolume(t *testing.T) (*fat.Volume, fat.FileInfo, []byte, fat.Geometry) {
	t.Helper()
	image := fdtesting.NewFAT16Image(t, fdtesting.FAT16ImageOptions{})

	g, err := fat.ParseGeometry(image[:512])
	if err != nil {
		t.Fatalf("unexpected error: %s", err.Error())
	}

	writeDirEntry(image, int(g.DataOffset), "FRAG", "TXT", 0x20, 10, g.ClusterSize*3)

	fill := func(cluster uint32, b byte) {
		offset := clusterByteOffset(g, cluster)
		data := image[offset : offset+int(g.ClusterSize)]
		for i := range data {
			data[i] = b
		}
	}
	fill(10, 0xAA)
	fill(20, 0xBB)
	fill(30, 0xCC)

	setFATEntry(image, g.FATOffset, 10, 20)
	setFATEntry(image, g.FATOffset, 20, 30)
	setFATEntry(image, g.FATOffset, 30, fat.EndOfChain)

	volume, err := fat.Open(bytesextra.NewReadWriteSeeker(image))
	if err != nil {
		t.Fatalf("unexpected error opening volume: %s", err.Error())
	}

	file, err := volume.GetFile("/FRAG.TXT")
	if err != nil {
		t.Fatalf("unexpected error: %s", err.Error())
	}
	if file.Kind != fat.KindFile {
		t.Fatalf("fixture setup is wrong, expected KindFile, got %v", file.Kind)
	}
	return volume, file, image, g
}

func TestIsFragmented__ScatteredChain(t *testing.T) {
	volume, file, _, _ := buildFragmentedVolume(t)

	fragments, err := volume.IsFragmented(file)
	if err != nil {
		t.Fatalf("unexpected error: %s", err.Error())
	}
	if fragments == 0 {
		t.Error("expected a non-zero fragment count for a scattered chain")
	}
}

func TestCountClusters(t *testing.T) {
	volume, file, _, _ := buildFragmentedVolume(t)

	n, err := volume.CountClusters(file)
	if err != nil {
		t.Fatalf("unexpected error: %s", err.Error())
	}
	if n != 3 {
		t.Errorf("expected 3 clusters, got %d", n)
	}
}

func TestDefragment__RelocatesAndPreservesContent(t *testing.T) {
	volume, file, image, g := buildFragmentedVolume(t)

	result, err := volume.Defragment(file)
	if err != nil {
		t.Fatalf("unexpected error: %s", err.Error())
	}
	if result.Relocated != 1 {
		t.Fatalf("expected 1 file relocated, got %d", result.Relocated)
	}

	// Invariant 1: a subsequent fragmentation check reports zero.
	refetched, err := volume.GetFile("/FRAG.TXT")
	if err != nil {
		t.Fatalf("unexpected error: %s", err.Error())
	}
	if refetched.FirstCluster != 3 {
		t.Fatalf("expected relocated chain to start at cluster 3, got %d", refetched.FirstCluster)
	}

	fragments, err := volume.IsFragmented(refetched)
	if err != nil {
		t.Fatalf("unexpected error: %s", err.Error())
	}
	if fragments != 0 {
		t.Errorf("expected the relocated chain to be contiguous, got %d fragments", fragments)
	}

	// Invariant 2: content survives relocation, in chain order.
	wantFills := []byte{0xAA, 0xBB, 0xCC}
	for i, want := range wantFills {
		offset := clusterByteOffset(g, uint32(3+i))
		got := image[offset : offset+int(g.ClusterSize)]
		for _, b := range got {
			if b != want {
				t.Fatalf("cluster %d: expected fill byte %#x, found %#x", 3+i, want, b)
			}
		}
	}

	// Invariant 4: the reclaimed source chain is zeroed in the FAT.
	for _, old := range []uint32{10, 20, 30} {
		off := int(g.FATOffset) + int(old)*2
		if binary.LittleEndian.Uint16(image[off:off+2]) != 0 {
			t.Errorf("expected cluster %d's FAT entry to be reclaimed (zero)", old)
		}
	}
}

// TestDefragment__AlreadyContiguousIsNoop covers idempotence: running
// Defragment on a file that's already contiguous does nothing.
func TestDefragment__AlreadyContiguousIsNoop(t *testing.T) {
	image := fdtesting.NewFAT16Image(t, fdtesting.FAT16ImageOptions{})
	g, err := fat.ParseGeometry(image[:512])
	if err != nil {
		t.Fatalf("unexpected error: %s", err.Error())
	}
	writeDirEntry(image, int(g.DataOffset), "FLAT", "TXT", 0x20, 3, g.ClusterSize*2)
	setFATEntry(image, g.FATOffset, 3, 4)
	setFATEntry(image, g.FATOffset, 4, fat.EndOfChain)

	volume, err := fat.Open(bytesextra.NewReadWriteSeeker(image))
	if err != nil {
		t.Fatalf("unexpected error: %s", err.Error())
	}
	file, err := volume.GetFile("/FLAT.TXT")
	if err != nil {
		t.Fatalf("unexpected error: %s", err.Error())
	}

	result, err := volume.Defragment(file)
	if err != nil {
		t.Fatalf("unexpected error: %s", err.Error())
	}
	if result.Relocated != 0 {
		t.Errorf("expected no relocation for an already-contiguous file, got %d", result.Relocated)
	}
}

// TestDefragment__ForeignPartitionIsNoop covers the wrong-partition refusal:
// a FileInfo whose serial doesn't match the open volume yields zero and no
// writes.
func TestDefragment__ForeignPartitionIsNoop(t *testing.T) {
	volume, file, _, _ := buildFragmentedVolume(t)
	file.PartitionSerial ^= 0xFFFFFFFF

	result, err := volume.Defragment(file)
	if err != nil {
		t.Fatalf("unexpected error: %s", err.Error())
	}
	if result.Relocated != 0 {
		t.Errorf("expected no relocation for a foreign-partition handle, got %d", result.Relocated)
	}
}
