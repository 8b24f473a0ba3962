package common

import (
	"io"
)

// Device is a scoped read/write handle opened in binary mode, addressed by
// absolute byte offset only -- it never knows about clusters or sectors.
// It corresponds to the corpus's BlockStream, stripped of block
// quantization: the FAT driver above it already computes byte offsets from
// its own geometry.
type Device struct {
	stream io.ReadWriteSeeker
}

// NewDevice wraps an already-open stream. The caller is responsible for any
// host-level unmount step before opening it (spec.md §5).
func NewDevice(stream io.ReadWriteSeeker) *Device {
	return &Device{stream: stream}
}

// Seek positions the stream at an absolute byte offset from the start of
// the device.
func (d *Device) Seek(absOffset int64) error {
	_, err := d.stream.Seek(absOffset, io.SeekStart)
	if err != nil {
		return ErrIO(err.Error())
	}
	return nil
}

// ReadAt seeks to absOffset and reads exactly n bytes into a fresh buffer.
func (d *Device) ReadAt(absOffset int64, n int) ([]byte, error) {
	if err := d.Seek(absOffset); err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(d.stream, buf); err != nil {
		return nil, ErrIO(err.Error())
	}
	return buf, nil
}

// WriteAt seeks to absOffset and writes the entirety of data.
func (d *Device) WriteAt(absOffset int64, data []byte) error {
	if err := d.Seek(absOffset); err != nil {
		return err
	}
	n, err := d.stream.Write(data)
	if err != nil {
		return ErrIO(err.Error())
	}
	if n != len(data) {
		return ErrIO("short write")
	}
	return nil
}
