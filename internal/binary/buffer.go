// Package binary holds the LEB128 byte writer shared by the core module
// encoder and the component encoder.
package binary

import (
	"encoding/binary"
	"math"
)

// Buffer accumulates an encoded wasm byte stream.
type Buffer struct {
	Bytes []byte
}

func (b *Buffer) Len() int {
	return len(b.Bytes)
}

func (b *Buffer) AppendByte(v byte) {
	b.Bytes = append(b.Bytes, v)
}

func (b *Buffer) WriteBytes(v []byte) {
	b.Bytes = append(b.Bytes, v...)
}

// WriteU32 writes unsigned LEB128 encoding.
func (b *Buffer) WriteU32(v uint32) {
	for {
		byt := byte(v & 0x7F)
		v >>= 7
		if v != 0 {
			byt |= 0x80
		}
		b.AppendByte(byt)
		if v == 0 {
			break
		}
	}
}

// WriteI32 writes signed LEB128 encoding.
func (b *Buffer) WriteI32(v int32) {
	b.WriteI64(int64(v))
}

// WriteI64 writes signed LEB128 encoding.
func (b *Buffer) WriteI64(v int64) {
	for {
		byt := byte(v & 0x7F)
		v >>= 7
		if (v == 0 && byt&0x40 == 0) || (v == -1 && byt&0x40 != 0) {
			b.AppendByte(byt)
			break
		}
		b.AppendByte(byt | 0x80)
	}
}

// WriteI33 writes a signed 33-bit LEB128, used for block types and
// component value type indices.
func (b *Buffer) WriteI33(v int64) {
	b.WriteI64(v)
}

func (b *Buffer) WriteF32(v float32) {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], math.Float32bits(v))
	b.WriteBytes(buf[:])
}

func (b *Buffer) WriteF64(v float64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
	b.WriteBytes(buf[:])
}

// WriteString writes a length-prefixed UTF-8 name.
func (b *Buffer) WriteString(s string) {
	b.WriteU32(uint32(len(s)))
	b.WriteBytes([]byte(s))
}

func (b *Buffer) WriteLimits(min uint32, max *uint32) {
	if max != nil {
		b.AppendByte(0x01)
		b.WriteU32(min)
		b.WriteU32(*max)
	} else {
		b.AppendByte(0x00)
		b.WriteU32(min)
	}
}

// WriteSection writes a section header followed by the contents of sec.
func (b *Buffer) WriteSection(id byte, sec *Buffer) {
	b.AppendByte(id)
	b.WriteU32(uint32(len(sec.Bytes)))
	b.WriteBytes(sec.Bytes)
}

// WriteVec writes a count prefix followed by the already encoded items.
func (b *Buffer) WriteVec(count int, items *Buffer) {
	b.WriteU32(uint32(count))
	b.WriteBytes(items.Bytes)
}

// ReadU32 decodes an unsigned LEB128 value from data, returning the value and
// the number of bytes consumed. n is 0 when data is truncated or overlong.
func ReadU32(data []byte) (v uint32, n int) {
	var shift uint
	for i, byt := range data {
		if i >= 5 {
			return 0, 0
		}
		v |= uint32(byt&0x7F) << shift
		if byt&0x80 == 0 {
			return v, i + 1
		}
		shift += 7
	}
	return 0, 0
}
