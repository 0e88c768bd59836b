package l4frames

// generator is the Mode S parity polynomial without its x^24 term.
const generator = 0xFFF409

var crcTable = func() (t [256]uint32) {
	for i := range t {
		c := uint32(i) << 16
		for range 8 {
			if c&0x800000 != 0 {
				c = (c << 1) ^ generator
			} else {
				c <<= 1
			}
		}
		t[i] = c & 0xFFFFFF
	}
	return
}()

// Checksum returns the parity remainder of a frame: the CRC of everything
// but the last 24 bits, XORed with those bits. It is zero for an intact
// frame whose parity field is plain (DF17, DF18) and the interrogator code
// for DF11. msg must be 7 or 14 bytes.
func Checksum(msg []byte) uint32 {
	n := len(msg)
	if n < 3 {
		return 0
	}
	var rem uint32
	for _, b := range msg[:n-3] {
		rem = (rem << 8) ^ crcTable[uint32(b)^(rem>>16)&0xFF]
		rem &= 0xFFFFFF
	}
	return rem ^ (uint32(msg[n-3])<<16 | uint32(msg[n-2])<<8 | uint32(msg[n-1]))
}

// AppendParity overwrites the last three bytes of msg with the parity that
// makes Checksum(msg) equal to ic.
func AppendParity(msg []byte, ic uint32) []byte {
	n := len(msg)
	msg[n-3], msg[n-2], msg[n-1] = 0, 0, 0
	p := Checksum(msg) ^ ic
	msg[n-3], msg[n-2], msg[n-1] = byte(p>>16), byte(p>>8), byte(p)
	return msg
}

// dfBits is the width of the downlink format field. Errors there change the
// frame length and are never corrected.
const dfBits = 5

// syndromes maps the remainder produced by a single flipped bit to that
// bit's index, for each frame length.
var (
	shortSyndromes = buildSyndromes(56)
	longSyndromes  = buildSyndromes(112)
)

func buildSyndromes(bits int) map[uint32]int {
	out := make(map[uint32]int, bits-dfBits)
	msg := make([]byte, bits/8)
	for i := dfBits; i < bits; i++ {
		msg[i/8] ^= 1 << (7 - uint(i%8))
		out[Checksum(msg)] = i
		msg[i/8] ^= 1 << (7 - uint(i%8))
	}
	return out
}

func syndromeBit(bits int, rem uint32) (int, bool) {
	table := shortSyndromes
	if bits == 112 {
		table = longSyndromes
	}
	i, ok := table[rem]
	return i, ok
}
