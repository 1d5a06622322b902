package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"unicode/utf8"
)

var (
	ErrTruncated   = errors.New("codec: truncated stream")
	ErrInvalidUTF8 = errors.New("codec: string is not valid UTF-8")
	ErrNegativeLen = errors.New("codec: negative length")
)

// Reader decodes big-endian values from a stream. All multi-byte reads match
// java.io.DataInput so streams written by either side are interchangeable.
type Reader struct {
	r   io.Reader
	off int64
	buf [8]byte
}

func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

// Offset returns the number of bytes consumed so far.
func (r *Reader) Offset() int64 {
	return r.off
}

func (r *Reader) fill(n int) ([]byte, error) {
	b := r.buf[:n]
	read, err := io.ReadFull(r.r, b)
	r.off += int64(read)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: need %d bytes at offset %d", ErrTruncated, n, r.off-int64(read))
		}
		return nil, err
	}
	return b, nil
}

func (r *Reader) ReadBool() (bool, error) {
	b, err := r.fill(1)
	if err != nil {
		return false, err
	}
	return b[0] != 0, nil
}

func (r *Reader) ReadInt8() (int8, error) {
	b, err := r.fill(1)
	if err != nil {
		return 0, err
	}
	return int8(b[0]), nil
}

func (r *Reader) ReadInt16() (int16, error) {
	v, err := r.ReadUint16()
	return int16(v), err
}

// ReadUint16 reads 2 bytes; it is also the wire form of a UTF-16 char.
func (r *Reader) ReadUint16() (uint16, error) {
	b, err := r.fill(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

func (r *Reader) ReadInt32() (int32, error) {
	b, err := r.fill(4)
	if err != nil {
		return 0, err
	}
	return int32(binary.BigEndian.Uint32(b)), nil
}

func (r *Reader) ReadInt64() (int64, error) {
	b, err := r.fill(8)
	if err != nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint64(b)), nil
}

func (r *Reader) ReadFloat32() (float32, error) {
	b, err := r.fill(4)
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(binary.BigEndian.Uint32(b)), nil
}

func (r *Reader) ReadFloat64() (float64, error) {
	b, err := r.fill(8)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(binary.BigEndian.Uint64(b)), nil
}

// ReadLength reads an int32 element count and rejects negative values.
func (r *Reader) ReadLength() (int, error) {
	n, err := r.ReadInt32()
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("%w: %d at offset %d", ErrNegativeLen, n, r.off-4)
	}
	return int(n), nil
}

// ReadString reads a uint16 byte length followed by that many UTF-8 bytes.
func (r *Reader) ReadString() (string, error) {
	n, err := r.ReadUint16()
	if err != nil {
		return "", err
	}
	if n == 0 {
		return "", nil
	}
	raw, err := r.ReadBytes(int(n))
	if err != nil {
		return "", err
	}
	if !utf8.Valid(raw) {
		return "", fmt.Errorf("%w at offset %d", ErrInvalidUTF8, r.off-int64(n))
	}
	return string(raw), nil
}

// ReadBytes reads exactly n raw bytes.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	if n < 0 {
		return nil, ErrNegativeLen
	}
	b := make([]byte, n)
	read, err := io.ReadFull(r.r, b)
	r.off += int64(read)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: need %d bytes at offset %d", ErrTruncated, n, r.off-int64(read))
		}
		return nil, err
	}
	return b, nil
}
