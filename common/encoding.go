package common

import (
	"encoding/binary"
	"math"
)

// Row data is encoded in little-endian order. Key material that must compare
// correctly as raw bytes (sort key prefixes) is encoded big-endian instead,
// the same memcomparable scheme MySQL/RocksDB use for index keys.

var littleEndian = binary.LittleEndian
var bigEndian = binary.BigEndian

func AppendUint32ToBufferLE(buffer []byte, v uint32) []byte {
	return append(buffer, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
}

func AppendUint32ToBufferBE(buffer []byte, v uint32) []byte {
	return append(buffer, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

func AppendUint64ToBufferLE(buffer []byte, v uint64) []byte {
	return append(buffer, byte(v), byte(v>>8), byte(v>>16), byte(v>>24), byte(v>>32),
		byte(v>>40), byte(v>>48), byte(v>>56))
}

func AppendFloat32ToBufferLE(buffer []byte, value float32) []byte {
	return AppendUint32ToBufferLE(buffer, math.Float32bits(value))
}

func ReadUint32FromBufferLE(buffer []byte, offset int) (uint32, int) {
	return littleEndian.Uint32(buffer[offset:]), offset + 4
}

func ReadUint32FromBufferBE(buffer []byte, offset int) (uint32, int) {
	return bigEndian.Uint32(buffer[offset:]), offset + 4
}

func ReadUint64FromBufferLE(buffer []byte, offset int) (uint64, int) {
	return littleEndian.Uint64(buffer[offset:]), offset + 8
}

func ReadFloat32FromBufferLE(buffer []byte, offset int) (float32, int) {
	u, off := ReadUint32FromBufferLE(buffer, offset)
	return math.Float32frombits(u), off
}

func PutUint32LE(buffer []byte, offset int, v uint32) {
	littleEndian.PutUint32(buffer[offset:], v)
}

// KeyPrefixInt32 maps an int32 to a uint32 that compares in the same order.
// Flipping the sign bit moves negative values below positive ones.
func KeyPrefixInt32(val int32) uint32 {
	return uint32(val) ^ (1 << 31)
}

// KeyPrefixFloat32 maps a float32 to a uint32 that compares in the same order
// for all non-NaN values. Positive floats get the sign bit set; negative
// floats are bitwise complemented so larger magnitudes order lower.
func KeyPrefixFloat32(val float32) uint32 {
	u := math.Float32bits(val)
	if val >= 0 {
		u |= 1 << 31
	} else {
		u = ^u
	}
	return u
}

// KeyPrefixBytes packs the first four bytes big-endian, zero padded. The
// result is order-preserving but not order-deciding: equal prefixes require a
// full comparison.
func KeyPrefixBytes(val []byte) uint32 {
	var b [4]byte
	copy(b[:], val)
	return bigEndian.Uint32(b[:])
}
