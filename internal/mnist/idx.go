package mnist

import (
	"bufio"
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"io"
)

const (
	idxMagicLabels = 0x00000801
	idxMagicImages = 0x00000803
)

// maxIDXItems guards against allocating absurd buffers from a corrupt header.
const maxIDXItems = 1 << 20

// Image is one decoded IDX image scaled to [0,1].
type Image struct {
	Rows, Cols int
	Pixels     []float32
}

// openIDX transparently unwraps gzip-compressed input.
func openIDX(r io.Reader) (io.Reader, func() error, error) {
	br := bufio.NewReader(r)
	head, err := br.Peek(2)
	if err != nil {
		return nil, nil, fmt.Errorf("idx: %w", err)
	}
	if head[0] == 0x1f && head[1] == 0x8b {
		zr, err := gzip.NewReader(br)
		if err != nil {
			return nil, nil, fmt.Errorf("idx: %w", err)
		}
		return zr, zr.Close, nil
	}
	return br, func() error { return nil }, nil
}

// ReadIDXImages decodes an idx3-ubyte image file (optionally gzipped).
func ReadIDXImages(r io.Reader) ([]Image, error) {
	src, closeFn, err := openIDX(r)
	if err != nil {
		return nil, err
	}
	defer closeFn()

	var hdr struct {
		Magic, Count, Rows, Cols uint32
	}
	if err := binary.Read(src, binary.BigEndian, &hdr); err != nil {
		return nil, fmt.Errorf("idx: read header: %w", err)
	}
	if hdr.Magic != idxMagicImages {
		return nil, fmt.Errorf("idx: bad image magic %#08x", hdr.Magic)
	}
	if hdr.Count > maxIDXItems || hdr.Rows == 0 || hdr.Cols == 0 || hdr.Rows > 1024 || hdr.Cols > 1024 {
		return nil, fmt.Errorf("idx: implausible header %d×%d×%d", hdr.Count, hdr.Rows, hdr.Cols)
	}

	size := int(hdr.Rows * hdr.Cols)
	buf := make([]byte, size)
	out := make([]Image, 0, hdr.Count)
	for i := 0; i < int(hdr.Count); i++ {
		if _, err := io.ReadFull(src, buf); err != nil {
			return nil, fmt.Errorf("idx: image %d: %w", i, err)
		}
		px := make([]float32, size)
		for j, b := range buf {
			px[j] = float32(b) / 255
		}
		out = append(out, Image{Rows: int(hdr.Rows), Cols: int(hdr.Cols), Pixels: px})
	}
	return out, nil
}

// ReadIDXLabels decodes an idx1-ubyte label file (optionally gzipped).
func ReadIDXLabels(r io.Reader) ([]int, error) {
	src, closeFn, err := openIDX(r)
	if err != nil {
		return nil, err
	}
	defer closeFn()

	var hdr struct {
		Magic, Count uint32
	}
	if err := binary.Read(src, binary.BigEndian, &hdr); err != nil {
		return nil, fmt.Errorf("idx: read header: %w", err)
	}
	if hdr.Magic != idxMagicLabels {
		return nil, fmt.Errorf("idx: bad label magic %#08x", hdr.Magic)
	}
	if hdr.Count > maxIDXItems {
		return nil, fmt.Errorf("idx: implausible label count %d", hdr.Count)
	}

	raw := make([]byte, hdr.Count)
	if _, err := io.ReadFull(src, raw); err != nil {
		return nil, fmt.Errorf("idx: labels: %w", err)
	}
	out := make([]int, len(raw))
	for i, b := range raw {
		if !ValidLabel(int(b)) {
			return nil, fmt.Errorf("idx: label %d at %d out of range", b, i)
		}
		out[i] = int(b)
	}
	return out, nil
}
