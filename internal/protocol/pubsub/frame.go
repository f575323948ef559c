package pubsub

import (
	"bufio"
	"errors"
	"fmt"
	"io"

	"github.com/multiformats/go-varint"
)

// ============================================================================
//                              长度前缀分帧
// ============================================================================

// 每帧为 uvarint(len) || payload。

// frameReader 从流中逐帧读取
type frameReader struct {
	r       *bufio.Reader
	maxSize int
}

func newFrameReader(r io.Reader, maxSize int) *frameReader {
	return &frameReader{r: bufio.NewReader(r), maxSize: maxSize}
}

// Next 读取下一帧
//
// 在帧边界遇到流结束时返回 io.EOF，帧中途结束返回 io.ErrUnexpectedEOF。
func (fr *frameReader) Next() ([]byte, error) {
	size, err := varint.ReadUvarint(fr.r)
	if err != nil {
		return nil, err
	}
	if size > uint64(fr.maxSize) {
		return nil, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, size, fr.maxSize)
	}

	frame := make([]byte, size)
	if _, err := io.ReadFull(fr.r, frame); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return frame, nil
}

// appendFrame 追加一帧
func appendFrame(dst, payload []byte) []byte {
	dst = append(dst, varint.ToUvarint(uint64(len(payload)))...)
	return append(dst, payload...)
}
