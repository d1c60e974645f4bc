package binary

import (
	"bytes"
	"testing"
)

func TestBuffer_WriteU32(t *testing.T) {
	tests := []struct {
		name string
		in   uint32
		want []byte
	}{
		{"zero", 0, []byte{0x00}},
		{"one byte", 127, []byte{0x7F}},
		{"two bytes", 128, []byte{0x80, 0x01}},
		{"624485", 624485, []byte{0xE5, 0x8E, 0x26}},
		{"max", 0xFFFFFFFF, []byte{0xFF, 0xFF, 0xFF, 0xFF, 0x0F}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var b Buffer
			b.WriteU32(tt.in)
			if !bytes.Equal(b.Bytes, tt.want) {
				t.Errorf("WriteU32(%d) = %x, want %x", tt.in, b.Bytes, tt.want)
			}
			got, n := ReadU32(b.Bytes)
			if got != tt.in || n != len(tt.want) {
				t.Errorf("ReadU32 = (%d, %d), want (%d, %d)", got, n, tt.in, len(tt.want))
			}
		})
	}
}

func TestBuffer_WriteSigned(t *testing.T) {
	tests := []struct {
		name string
		in   int64
		want []byte
	}{
		{"zero", 0, []byte{0x00}},
		{"minus one", -1, []byte{0x7F}},
		{"63", 63, []byte{0x3F}},
		{"64", 64, []byte{0xC0, 0x00}},
		{"-64", -64, []byte{0x40}},
		{"-65", -65, []byte{0xBF, 0x7F}},
		{"-123456", -123456, []byte{0xC0, 0xBB, 0x78}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var b Buffer
			b.WriteI64(tt.in)
			if !bytes.Equal(b.Bytes, tt.want) {
				t.Errorf("WriteI64(%d) = %x, want %x", tt.in, b.Bytes, tt.want)
			}
		})
	}
}

func TestBuffer_WriteSection(t *testing.T) {
	var sec Buffer
	sec.WriteString("abc")

	var b Buffer
	b.WriteSection(0x00, &sec)

	want := []byte{0x00, 0x04, 0x03, 'a', 'b', 'c'}
	if !bytes.Equal(b.Bytes, want) {
		t.Errorf("WriteSection = %x, want %x", b.Bytes, want)
	}
}

func TestReadU32_Truncated(t *testing.T) {
	if _, n := ReadU32([]byte{0x80, 0x80}); n != 0 {
		t.Errorf("expected truncated read to consume 0 bytes, got %d", n)
	}
	if _, n := ReadU32(nil); n != 0 {
		t.Errorf("expected empty read to consume 0 bytes, got %d", n)
	}
}
