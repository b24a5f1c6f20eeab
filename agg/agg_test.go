package agg

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/veildb/veil/codec"
	"github.com/veildb/veil/conf"
	"github.com/veildb/veil/errors"
	"github.com/veildb/veil/opcode"
	"github.com/veildb/veil/security"
)

func testConfig() *conf.Config {
	return &conf.Config{
		RowUpperBound:       256,
		AttributeUpperBound: 32,
		MaxBlockSize:        1024,
		AggUpperBound:       512,
		MaxEmptyBlocks:      4,
	}
}

func intRow(t *testing.T, vals ...int32) *codec.Row {
	t.Helper()
	row := codec.NewRow(256)
	for _, v := range vals {
		require.NoError(t, row.AddInt32(v, false))
	}
	return row
}

func TestGroupKeyEquals(t *testing.T) {
	key := NewGroupKey(256, []int{1})
	row := intRow(t, 5, 10)

	eq, err := key.Equals(row)
	require.NoError(t, err)
	require.False(t, eq) // unset key matches nothing

	require.NoError(t, key.Set(row))
	eq, err = key.Equals(intRow(t, 5, 99))
	require.NoError(t, err)
	require.True(t, eq)

	eq, err = key.Equals(intRow(t, 6, 10))
	require.NoError(t, err)
	require.False(t, eq)

	dummy := intRow(t, 5, 10)
	dummy.MarkDummy()
	eq, err = key.Equals(dummy)
	require.NoError(t, err)
	require.False(t, eq)
}

func TestAggregateSumSingleGroup(t *testing.T) {
	// group on col1, sum col2
	agg, err := NewAggregator(opcode.GroupByCol1SumCol2Step1, testConfig())
	require.NoError(t, err)

	for _, v := range []int32{10, 20, 30} {
		require.NoError(t, agg.Aggregate(intRow(t, 5, v)))
	}
	require.Equal(t, uint32(1), agg.NumDistinct())

	rec := codec.NewRow(256)
	require.NoError(t, agg.AppendResult(rec, false))
	require.Equal(t, 2, rec.NumAttrs())
	k, err := rec.Int32Attr(1)
	require.NoError(t, err)
	require.Equal(t, int32(5), k)
	sum, err := rec.Int32Attr(2)
	require.NoError(t, err)
	require.Equal(t, int32(60), sum)
}

func TestAggregateGroupChangeResets(t *testing.T) {
	agg, err := NewAggregator(opcode.GroupByCol1SumCol2Step1, testConfig())
	require.NoError(t, err)

	require.NoError(t, agg.Aggregate(intRow(t, 1, 100)))
	require.NoError(t, agg.Aggregate(intRow(t, 2, 7)))
	require.Equal(t, uint32(2), agg.NumDistinct())

	rec := codec.NewRow(256)
	require.NoError(t, agg.AppendResult(rec, false))
	sum, err := rec.Int32Attr(2)
	require.NoError(t, err)
	require.Equal(t, int32(7), sum)
}

func TestAggregateSkipsDummies(t *testing.T) {
	agg, err := NewAggregator(opcode.GroupByCol1SumCol2Step1, testConfig())
	require.NoError(t, err)

	require.NoError(t, agg.Aggregate(intRow(t, 1, 100)))
	dummy := intRow(t, 1, 999)
	dummy.MarkDummy()
	require.NoError(t, agg.Aggregate(dummy))

	rec := codec.NewRow(256)
	require.NoError(t, agg.AppendResult(rec, false))
	sum, err := rec.Int32Attr(2)
	require.NoError(t, err)
	require.Equal(t, int32(100), sum)
}

func TestAggregateAvgAndSum(t *testing.T) {
	// group on col1, avg col2 and sum col3
	agg, err := NewAggregator(opcode.GroupByCol1AvgCol2SumCol3Step1, testConfig())
	require.NoError(t, err)

	require.NoError(t, agg.Aggregate(intRow(t, 9, 3, 100)))
	require.NoError(t, agg.Aggregate(intRow(t, 9, 4, 200)))

	rec := codec.NewRow(256)
	require.NoError(t, agg.AppendResult(rec, false))
	require.Equal(t, 3, rec.NumAttrs())
	avg, err := rec.Int32Attr(2)
	require.NoError(t, err)
	require.Equal(t, int32(3), avg) // integer division of 7/2
	sum, err := rec.Int32Attr(3)
	require.NoError(t, err)
	require.Equal(t, int32(300), sum)
}

func TestAggregateFloatAvg(t *testing.T) {
	agg, err := NewAggregator(opcode.GroupByCol1AvgCol2SumCol3Step1, testConfig())
	require.NoError(t, err)

	mk := func(g int32, avgV float32, sumV int32) *codec.Row {
		row := codec.NewRow(256)
		require.NoError(t, row.AddInt32(g, false))
		require.NoError(t, row.AddFloat32(avgV, false))
		require.NoError(t, row.AddInt32(sumV, false))
		return row
	}
	require.NoError(t, agg.Aggregate(mk(1, 1.5, 10)))
	require.NoError(t, agg.Aggregate(mk(1, 2.5, 20)))

	rec := codec.NewRow(256)
	require.NoError(t, agg.AppendResult(rec, false))
	avg, err := rec.Float32Attr(2)
	require.NoError(t, err)
	require.Equal(t, float32(2.0), avg)
}

func TestCombinePartials(t *testing.T) {
	cfg := testConfig()
	a, err := NewAggregator(opcode.GroupByCol1SumCol2Step2, cfg)
	require.NoError(t, err)
	b, err := NewAggregator(opcode.GroupByCol1SumCol2Step2, cfg)
	require.NoError(t, err)

	require.NoError(t, a.Aggregate(intRow(t, 3, 10)))
	require.NoError(t, b.Aggregate(intRow(t, 3, 25)))
	require.NoError(t, a.Combine(b))

	rec := codec.NewRow(256)
	require.NoError(t, a.AppendResult(rec, false))
	sum, err := rec.Int32Attr(2)
	require.NoError(t, err)
	require.Equal(t, int32(35), sum)
}

func TestCombineMismatchedGroupsFatal(t *testing.T) {
	cfg := testConfig()
	a, err := NewAggregator(opcode.GroupByCol1SumCol2Step2, cfg)
	require.NoError(t, err)
	b, err := NewAggregator(opcode.GroupByCol1SumCol2Step2, cfg)
	require.NoError(t, err)

	require.NoError(t, a.Aggregate(intRow(t, 3, 10)))
	require.NoError(t, b.Aggregate(intRow(t, 4, 25)))
	err = a.Combine(b)
	require.Equal(t, errors.AggregatorGroupMismatch, errors.Code(err))
}

func TestCombineWithEmpty(t *testing.T) {
	cfg := testConfig()
	a, err := NewAggregator(opcode.GroupByCol1SumCol2Step2, cfg)
	require.NoError(t, err)
	b, err := NewAggregator(opcode.GroupByCol1SumCol2Step2, cfg)
	require.NoError(t, err)

	require.NoError(t, a.Aggregate(intRow(t, 3, 10)))
	require.NoError(t, a.Combine(b)) // empty other is a no-op

	require.NoError(t, b.Combine(a)) // empty receiver adopts the group
	rec := codec.NewRow(256)
	require.NoError(t, b.AppendResult(rec, false))
	sum, err := rec.Int32Attr(2)
	require.NoError(t, err)
	require.Equal(t, int32(10), sum)
}

func TestPartialStateEncryptedRoundTrip(t *testing.T) {
	cfg := testConfig()
	key, err := security.GenerateKey()
	require.NoError(t, err)
	enc, err := security.NewEncryptor(key)
	require.NoError(t, err)

	a, err := NewAggregator(opcode.GroupByCol1AvgCol2SumCol3Step1, cfg)
	require.NoError(t, err)
	require.NoError(t, a.Aggregate(intRow(t, 7, 4, 50)))
	require.NoError(t, a.Aggregate(intRow(t, 7, 6, 60)))
	a.SetOffset(12)

	buff, err := a.WriteEncrypted(nil, enc)
	require.NoError(t, err)

	b, err := NewAggregator(opcode.GroupByCol1AvgCol2SumCol3Step1, cfg)
	require.NoError(t, err)
	off, err := b.ReadEncrypted(buff, 0, enc)
	require.NoError(t, err)
	require.Equal(t, len(buff), off)
	require.Equal(t, a.NumDistinct(), b.NumDistinct())
	require.Equal(t, uint32(12), b.Offset())

	rec := codec.NewRow(256)
	require.NoError(t, b.AppendResult(rec, false))
	avg, err := rec.Int32Attr(2)
	require.NoError(t, err)
	require.Equal(t, int32(5), avg)
	sum, err := rec.Int32Attr(3)
	require.NoError(t, err)
	require.Equal(t, int32(110), sum)
}

func TestRestoredPartialCombines(t *testing.T) {
	cfg := testConfig()
	key, err := security.GenerateKey()
	require.NoError(t, err)
	enc, err := security.NewEncryptor(key)
	require.NoError(t, err)

	a, err := NewAggregator(opcode.GroupByCol1SumCol2Step1, cfg)
	require.NoError(t, err)
	require.NoError(t, a.Aggregate(intRow(t, 2, 40)))
	buff, err := a.WriteEncrypted(nil, enc)
	require.NoError(t, err)

	restored, err := NewAggregator(opcode.GroupByCol1SumCol2Step1, cfg)
	require.NoError(t, err)
	_, err = restored.ReadEncrypted(buff, 0, enc)
	require.NoError(t, err)

	other, err := NewAggregator(opcode.GroupByCol1SumCol2Step1, cfg)
	require.NoError(t, err)
	require.NoError(t, other.Aggregate(intRow(t, 2, 2)))
	require.NoError(t, restored.Combine(other))

	rec := codec.NewRow(256)
	require.NoError(t, restored.AppendResult(rec, false))
	sum, err := rec.Int32Attr(2)
	require.NoError(t, err)
	require.Equal(t, int32(42), sum)
}

func TestAppendResultDummyKeepsShape(t *testing.T) {
	agg, err := NewAggregator(opcode.GroupByCol1SumCol2Step1, testConfig())
	require.NoError(t, err)
	require.NoError(t, agg.Aggregate(intRow(t, 1, 5)))

	rec := codec.NewRow(256)
	require.NoError(t, agg.AppendResult(rec, true))
	require.Equal(t, 2, rec.NumAttrs())
	require.True(t, rec.IsDummy())
}

func TestNewAggregatorRejectsNonGroupBy(t *testing.T) {
	_, err := NewAggregator(opcode.SortCol1, testConfig())
	require.Equal(t, errors.UnknownOpcode, errors.Code(err))
}
