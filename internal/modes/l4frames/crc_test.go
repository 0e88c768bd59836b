package l4frames

import (
	"testing"

	"github.com/banshee-data/modes1090/internal/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCRCTable(t *testing.T) {
	t.Parallel()

	assert.Equal(t, uint32(0x000000), crcTable[0])
	assert.Equal(t, uint32(0xFFF409), crcTable[1])
	assert.Equal(t, uint32(0x001C1B), crcTable[2])
	assert.Equal(t, uint32(0xFFE812), crcTable[3])
}

func TestChecksum(t *testing.T) {
	t.Parallel()

	tests := []struct {
		msg  string
		want uint32
	}{
		{"8D406B902015A678D4D220AA4BDA", 0},
		{"8d8960ed58bf053cf11bc5932b7d", 0},
		{"8d45cab390c39509496ca9a32912", 0},
		{"8d49d3d4e1089d00000000744c3b", 0},
		{"8d74802958c904e6ef4ba0184d5c", 0},
		{"8d4400cd9b0000b4f87000e71a10", 0},
		{"8d4065de58a1054a7ef0218e226a", 0},
		{"c80b2dca34aa21dd821a04cb64d4", 10719924},
		{"a800089d8094e33a6004e4b8a522", 4805588},
		{"a8000614a50b6d32bed000bbe0ed", 5659991},
		{"a0000410bc900010a40000f5f477", 11727682},
		{"8d4ca251204994b1c36e60a5343d", 16},
		{"b0001718c65632b0a82040715b65", 353333},
		{"5d4ca2519034d0", 0},
	}
	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			assert.Equal(t, tt.want, Checksum(testutil.MustHex(tt.msg)))
		})
	}
}

func TestAppendParity(t *testing.T) {
	t.Parallel()

	msg := AppendParity(testutil.MustHex("5d4ca251000000"), 0)
	assert.Equal(t, testutil.MustHex("5d4ca2519034d0"), msg)

	withIC := AppendParity(testutil.MustHex("5d4ca251000000"), 0x23)
	assert.Equal(t, uint32(0x23), Checksum(withIC))
}

func TestSyndromes(t *testing.T) {
	t.Parallel()

	assert.Len(t, shortSyndromes, 56-dfBits)
	assert.Len(t, longSyndromes, 112-dfBits)

	// A flipped parity bit shows up as itself.
	bit, ok := syndromeBit(112, 0x10)
	assert.True(t, ok)
	assert.Equal(t, 107, bit)

	_, ok = syndromeBit(56, 0xFF)
	assert.False(t, ok)
}
