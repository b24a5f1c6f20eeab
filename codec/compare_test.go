package codec

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/veildb/veil/opcode"
)

func intRow(t *testing.T, vals ...int) *Row {
	t.Helper()
	row := NewRow(256)
	for _, v := range vals {
		require.NoError(t, row.AddInt32(int32(v), false))
	}
	return row
}

func TestLessThanSortColumns(t *testing.T) {
	a := intRow(t, 1, 20)
	b := intRow(t, 2, 10)

	less, err := a.LessThan(b, opcode.SortCol1)
	require.NoError(t, err)
	require.True(t, less)

	less, err = a.LessThan(b, opcode.SortCol2)
	require.NoError(t, err)
	require.False(t, less)
}

func TestLessThanDummyOrdersLast(t *testing.T) {
	real := intRow(t, math.MaxInt32)
	dummy := intRow(t, math.MinInt32)
	dummy.MarkDummy()

	less, err := real.LessThan(dummy, opcode.SortCol1)
	require.NoError(t, err)
	require.True(t, less)

	less, err = dummy.LessThan(real, opcode.SortCol1)
	require.NoError(t, err)
	require.False(t, less)

	other := intRow(t, 0)
	other.MarkDummy()
	less, err = dummy.LessThan(other, opcode.SortCol1)
	require.NoError(t, err)
	require.False(t, less)
}

func TestKeyPrefixConsistentWithLessThan(t *testing.T) {
	vals := []int{math.MinInt32, -5, 0, 3, 17, math.MaxInt32}
	for i := 1; i < len(vals); i++ {
		a, b := intRow(t, vals[i-1]), intRow(t, vals[i])
		pa, err := a.KeyPrefix(opcode.SortCol1)
		require.NoError(t, err)
		pb, err := b.KeyPrefix(opcode.SortCol1)
		require.NoError(t, err)
		require.Less(t, pa, pb)
	}
}

func TestKeyPrefixDummyIsMax(t *testing.T) {
	row := intRow(t, 12)
	row.MarkDummy()
	p, err := row.KeyPrefix(opcode.SortCol1)
	require.NoError(t, err)
	require.Equal(t, uint32(math.MaxUint32), p)
}

func TestSortPointerDeepComparisonOnTie(t *testing.T) {
	// same first four bytes, different tails: the prefix cannot decide
	a := NewRow(256)
	require.NoError(t, a.AddString("prefixAAA", false))
	b := NewRow(256)
	require.NoError(t, b.AddString("prefixBBB", false))

	var pa, pb SortPointer
	pa.Init(a)
	require.NoError(t, pa.RefreshPrefix(opcode.SortCol1))
	pb.Init(b)
	require.NoError(t, pb.RefreshPrefix(opcode.SortCol1))

	var deep uint64
	less, err := pa.LessThan(&pb, opcode.SortCol1, &deep)
	require.NoError(t, err)
	require.True(t, less)
	require.Equal(t, uint64(1), deep)

	// distinct prefixes decide without touching row contents
	c := intRow(t, 1)
	d := intRow(t, 2)
	var pc, pd SortPointer
	pc.Init(c)
	require.NoError(t, pc.RefreshPrefix(opcode.SortCol1))
	pd.Init(d)
	require.NoError(t, pd.RefreshPrefix(opcode.SortCol1))
	deep = 0
	less, err = pc.LessThan(&pd, opcode.SortCol1, &deep)
	require.NoError(t, err)
	require.True(t, less)
	require.Equal(t, uint64(0), deep)
}

func TestJoinRecordOrdering(t *testing.T) {
	// tagged records: attr1 table id, attr2 join key
	primary := intRow(t, 0, 5, 100)
	foreign := intRow(t, 1, 5, 200)

	less, err := primary.LessThan(foreign, opcode.JoinCol1)
	require.NoError(t, err)
	require.True(t, less)

	less, err = foreign.LessThan(primary, opcode.JoinCol1)
	require.NoError(t, err)
	require.False(t, less)

	smallerKey := intRow(t, 1, 4, 300)
	less, err = smallerKey.LessThan(primary, opcode.JoinCol1)
	require.NoError(t, err)
	require.True(t, less)
}

func TestJoinNeutralizedRecordOrdersLast(t *testing.T) {
	empty := NewRow(64)
	tagged := intRow(t, 0, 1)

	less, err := tagged.LessThan(empty, opcode.JoinCol1)
	require.NoError(t, err)
	require.True(t, less)

	p, err := empty.KeyPrefix(opcode.JoinCol1)
	require.NoError(t, err)
	require.Equal(t, uint32(math.MaxUint32), p)
}

func TestFilterKeep(t *testing.T) {
	keep, err := FilterKeep(opcode.FilterCol2Gt3, intRow(t, 1, 4))
	require.NoError(t, err)
	require.True(t, keep)

	keep, err = FilterKeep(opcode.FilterCol2Gt3, intRow(t, 1, 3))
	require.NoError(t, err)
	require.False(t, keep)

	row := intRow(t, 1, 2, 3)
	keep, err = FilterKeep(opcode.FilterCol3NotDummy, row)
	require.NoError(t, err)
	require.True(t, keep)
	row.MarkDummy()
	keep, err = FilterKeep(opcode.FilterCol3NotDummy, row)
	require.NoError(t, err)
	require.False(t, keep)

	// a neutralized join output is dropped, not an error
	keep, err = FilterKeep(opcode.FilterCol4NotDummy, NewRow(64))
	require.NoError(t, err)
	require.False(t, keep)

	_, err = FilterKeep(opcode.SortCol1, intRow(t, 1))
	require.Error(t, err)
}
