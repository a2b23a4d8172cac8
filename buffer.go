package polar

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// reader walks an in-memory archive. Every read past the end of the data
// fails with ErrTruncatedInput.
type reader struct {
	data []byte
	off  int
}

func newReader(data []byte) *reader {
	return &reader{data: data}
}

func (r *reader) remaining() int {
	return len(r.data) - r.off
}

// Read lets tag codecs consume the stream directly.
func (r *reader) Read(p []byte) (int, error) {
	if r.off >= len(r.data) {
		return 0, io.EOF
	}
	n := copy(p, r.data[r.off:])
	r.off += n
	return n, nil
}

func (r *reader) ReadByte() (byte, error) {
	if r.off >= len(r.data) {
		return 0, io.EOF
	}
	b := r.data[r.off]
	r.off++
	return b, nil
}

// next returns the following n bytes without copying them.
func (r *reader) next(n int) ([]byte, error) {
	if n < 0 || n > r.remaining() {
		return nil, ErrTruncatedInput
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b, nil
}

func (r *reader) readByte() (byte, error) {
	b, err := r.ReadByte()
	if err != nil {
		return 0, ErrTruncatedInput
	}
	return b, nil
}

func (r *reader) readBool() (bool, error) {
	b, err := r.readByte()
	return b != 0, err
}

func (r *reader) readInt8() (int8, error) {
	b, err := r.readByte()
	return int8(b), err
}

func (r *reader) readInt16() (int16, error) {
	b, err := r.next(2)
	if err != nil {
		return 0, err
	}
	return int16(binary.BigEndian.Uint16(b)), nil
}

func (r *reader) readUint32() (uint32, error) {
	b, err := r.next(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

func (r *reader) readInt32() (int32, error) {
	v, err := r.readUint32()
	return int32(v), err
}

func (r *reader) readUvarint() (uint64, error) {
	v, n := binary.Uvarint(r.data[r.off:])
	if n == 0 {
		return 0, ErrTruncatedInput
	}
	if n < 0 {
		return 0, fmt.Errorf("%w: varint overflows 64 bits", ErrTruncatedInput)
	}
	r.off += n
	return v, nil
}

// readVarint reads a zigzag encoded signed varint.
func (r *reader) readVarint() (int32, error) {
	v, n := binary.Varint(r.data[r.off:])
	if n == 0 {
		return 0, ErrTruncatedInput
	}
	if n < 0 || v < math.MinInt32 || v > math.MaxInt32 {
		return 0, fmt.Errorf("%w: varint out of range", ErrTruncatedInput)
	}
	r.off += n
	return int32(v), nil
}

// readCount reads a varint element count. Each element takes at least
// minSize bytes, so counts the remaining input cannot hold are rejected
// before anything is allocated.
func (r *reader) readCount(minSize int) (int, error) {
	v, err := r.readUvarint()
	if err != nil {
		return 0, err
	}
	if v > uint64(r.remaining()/minSize) {
		return 0, ErrTruncatedInput
	}
	return int(v), nil
}

func (r *reader) readBytes() ([]byte, error) {
	n, err := r.readCount(1)
	if err != nil {
		return nil, err
	}
	b, err := r.next(n)
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), b...), nil
}

func (r *reader) readString() (string, error) {
	n, err := r.readCount(1)
	if err != nil {
		return "", err
	}
	b, err := r.next(n)
	return string(b), err
}

func (r *reader) readOptionalString() (*string, error) {
	present, err := r.readBool()
	if err != nil || !present {
		return nil, err
	}
	s, err := r.readString()
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// readStrings reads a counted list of strings holding at most max entries.
func (r *reader) readStrings(max int) ([]string, error) {
	n, err := r.readCount(1)
	if err != nil {
		return nil, err
	}
	if n > max {
		return nil, fmt.Errorf("%w: %d entries, at most %d allowed", ErrInvalidPalette, n, max)
	}
	list := make([]string, n)
	for i := range list {
		if list[i], err = r.readString(); err != nil {
			return nil, err
		}
	}
	return list, nil
}

func (r *reader) readLongs() ([]uint64, error) {
	n, err := r.readCount(8)
	if err != nil {
		return nil, err
	}
	words := make([]uint64, n)
	for i := range words {
		b, _ := r.next(8)
		words[i] = binary.BigEndian.Uint64(b)
	}
	return words, nil
}

// writer builds archive content. Writes to a bytes.Buffer cannot fail, so
// only model validation produces errors while encoding.
type writer struct {
	buf bytes.Buffer
}

func (w *writer) Write(p []byte) (int, error) {
	return w.buf.Write(p)
}

func (w *writer) writeByte(b byte) {
	w.buf.WriteByte(b)
}

func (w *writer) writeBool(v bool) {
	if v {
		w.buf.WriteByte(1)
	} else {
		w.buf.WriteByte(0)
	}
}

func (w *writer) writeUint32(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	w.buf.Write(b[:])
}

func (w *writer) writeUvarint(v uint64) {
	var b [binary.MaxVarintLen64]byte
	w.buf.Write(b[:binary.PutUvarint(b[:], v)])
}

func (w *writer) writeVarint(v int32) {
	var b [binary.MaxVarintLen64]byte
	w.buf.Write(b[:binary.PutVarint(b[:], int64(v))])
}

func (w *writer) writeBytes(p []byte) {
	w.writeUvarint(uint64(len(p)))
	w.buf.Write(p)
}

func (w *writer) writeString(s string) {
	w.writeUvarint(uint64(len(s)))
	w.buf.WriteString(s)
}

func (w *writer) writeOptionalString(s *string) {
	w.writeBool(s != nil)
	if s != nil {
		w.writeString(*s)
	}
}

func (w *writer) writeStrings(list []string) {
	w.writeUvarint(uint64(len(list)))
	for _, s := range list {
		w.writeString(s)
	}
}

func (w *writer) writeLongs(words []uint64) {
	w.writeUvarint(uint64(len(words)))
	var b [8]byte
	for _, v := range words {
		binary.BigEndian.PutUint64(b[:], v)
		w.buf.Write(b[:])
	}
}
