package common

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAppendReadUint32LE(t *testing.T) {
	buf := AppendUint32ToBufferLE(nil, 0)
	buf = AppendUint32ToBufferLE(buf, 1)
	buf = AppendUint32ToBufferLE(buf, math.MaxUint32)
	v, off := ReadUint32FromBufferLE(buf, 0)
	require.Equal(t, uint32(0), v)
	v, off = ReadUint32FromBufferLE(buf, off)
	require.Equal(t, uint32(1), v)
	v, off = ReadUint32FromBufferLE(buf, off)
	require.Equal(t, uint32(math.MaxUint32), v)
	require.Equal(t, 12, off)
}

func TestAppendReadFloat32LE(t *testing.T) {
	buf := AppendFloat32ToBufferLE(nil, -1234.5678)
	buf = AppendFloat32ToBufferLE(buf, 0)
	buf = AppendFloat32ToBufferLE(buf, math.MaxFloat32)
	f, off := ReadFloat32FromBufferLE(buf, 0)
	require.Equal(t, float32(-1234.5678), f)
	f, off = ReadFloat32FromBufferLE(buf, off)
	require.Equal(t, float32(0), f)
	f, _ = ReadFloat32FromBufferLE(buf, off)
	require.Equal(t, float32(math.MaxFloat32), f)
}

func TestKeyPrefixInt32PreservesOrder(t *testing.T) {
	vals := []int32{math.MinInt32, -100000, -1, 0, 1, 3, 100000, math.MaxInt32}
	for i := 1; i < len(vals); i++ {
		require.Less(t, KeyPrefixInt32(vals[i-1]), KeyPrefixInt32(vals[i]))
	}
}

func TestKeyPrefixFloat32PreservesOrder(t *testing.T) {
	vals := []float32{float32(math.Inf(-1)), -12345.5, -1, -math.SmallestNonzeroFloat32,
		0, math.SmallestNonzeroFloat32, 0.5, 1, 99999.25, float32(math.Inf(1))}
	for i := 1; i < len(vals); i++ {
		require.Less(t, KeyPrefixFloat32(vals[i-1]), KeyPrefixFloat32(vals[i]))
	}
}

func TestKeyPrefixBytes(t *testing.T) {
	require.Less(t, KeyPrefixBytes([]byte("abc")), KeyPrefixBytes([]byte("abd")))
	require.Less(t, KeyPrefixBytes([]byte("")), KeyPrefixBytes([]byte("a")))
	require.Less(t, KeyPrefixBytes([]byte("a")), KeyPrefixBytes([]byte("ab")))
	// shared first four bytes collapse to the same prefix, ties go deep
	require.Equal(t, KeyPrefixBytes([]byte("abcde")), KeyPrefixBytes([]byte("abcdf")))
}
