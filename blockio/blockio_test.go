package blockio

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/veildb/veil/codec"
	"github.com/veildb/veil/conf"
	"github.com/veildb/veil/errors"
	"github.com/veildb/veil/opcode"
	"github.com/veildb/veil/security"
	"github.com/veildb/veil/verify"
	"github.com/veildb/veil/wire"
)

func testConfig() *conf.Config {
	return &conf.Config{
		RowUpperBound:       64,
		AttributeUpperBound: 16,
		MaxBlockSize:        256,
		AggUpperBound:       256,
		MaxEmptyBlocks:      4,
	}
}

func newEncryptor(t *testing.T) *security.Encryptor {
	t.Helper()
	key, err := security.GenerateKey()
	require.NoError(t, err)
	enc, err := security.NewEncryptor(key)
	require.NoError(t, err)
	return enc
}

func intRow(t *testing.T, upperBound int, vals ...int32) *codec.Row {
	t.Helper()
	row := codec.NewRow(upperBound)
	for _, v := range vals {
		require.NoError(t, row.AddInt32(v, false))
	}
	return row
}

func TestTaskID(t *testing.T) {
	id, err := TaskID(opcode.SortCol1, 7)
	require.NoError(t, err)
	require.Equal(t, uint32(2)<<16|7, id)

	id2, err := TaskID(opcode.SortCol2, 7)
	require.NoError(t, err)
	require.NotEqual(t, id, id2)

	_, err = TaskID(opcode.SortCol1, -1)
	require.Error(t, err)
	_, err = TaskID(opcode.SortCol1, 1<<17)
	require.Error(t, err)
}

func TestRowWriterReaderRoundTrip(t *testing.T) {
	enc := newEncryptor(t)
	cfg := testConfig()
	taskID, err := TaskID(opcode.SortCol1, 0)
	require.NoError(t, err)

	// 10 rows with a 64 byte upper bound and 256 byte blocks spans blocks
	writer := NewRowWriter(enc, cfg, taskID)
	for i := 0; i < 10; i++ {
		require.NoError(t, writer.WriteRow(intRow(t, cfg.RowUpperBound, int32(i), int32(i*10))))
	}
	blocks, err := writer.Close()
	require.NoError(t, err)
	require.True(t, len(blocks.Blocks) > 1)
	require.Equal(t, 10, blocks.NumRows())

	rec := verify.NewRecorder()
	reader := NewRowReader(enc, blocks, cfg, rec)
	row := codec.NewRow(cfg.RowUpperBound)
	for i := 0; i < 10; i++ {
		require.True(t, reader.HasNext())
		require.NoError(t, reader.Read(row))
		v, err := row.Int32Attr(1)
		require.NoError(t, err)
		require.Equal(t, int32(i), v)
	}
	require.False(t, reader.HasNext())
	require.True(t, rec.HasNode(taskID))
	require.Equal(t, []uint32{taskID}, rec.Nodes())
}

func TestRowWriterRejectsOversizedRow(t *testing.T) {
	enc := newEncryptor(t)
	cfg := testConfig()
	writer := NewRowWriter(enc, cfg, 1)

	big := codec.NewRow(1024)
	require.NoError(t, big.AddString("this string pushes the row well past the sixty four byte bound", false))
	err := writer.WriteRow(big)
	require.Equal(t, errors.BufferOverflow, errors.Code(err))
}

func TestRowReaderDetectsTampering(t *testing.T) {
	enc := newEncryptor(t)
	cfg := testConfig()
	writer := NewRowWriter(enc, cfg, 1)
	require.NoError(t, writer.WriteRow(intRow(t, cfg.RowUpperBound, 42)))
	blocks, err := writer.Close()
	require.NoError(t, err)

	// header tampering: bump the row count field
	blocks.Blocks[0].Rows[4]++
	reader := NewRowReader(enc, blocks, cfg, nil)
	row := codec.NewRow(cfg.RowUpperBound)
	err = reader.Read(row)
	require.Equal(t, errors.IntegrityFailure, errors.Code(err))
}

func TestRowReaderDetectsAdvisoryCountMismatch(t *testing.T) {
	enc := newEncryptor(t)
	cfg := testConfig()
	writer := NewRowWriter(enc, cfg, 1)
	require.NoError(t, writer.WriteRow(intRow(t, cfg.RowUpperBound, 42)))
	blocks, err := writer.Close()
	require.NoError(t, err)

	blocks.Blocks[0].RowCount = 2
	reader := NewRowReader(enc, blocks, cfg, nil)
	row := codec.NewRow(cfg.RowUpperBound)
	err = reader.Read(row)
	require.Equal(t, errors.IntegrityFailure, errors.Code(err))
}

func emptyBlock(t *testing.T, enc *security.Encryptor, cfg *conf.Config) wire.EncryptedBlock {
	t.Helper()
	writer := NewRowWriter(enc, cfg, 1)
	blocks, err := writer.Close()
	require.NoError(t, err)
	require.Equal(t, 1, len(blocks.Blocks))
	return blocks.Blocks[0]
}

func TestRowReaderSkipsEmptyBlocks(t *testing.T) {
	enc := newEncryptor(t)
	cfg := testConfig()

	var blocks wire.EncryptedBlocks
	blocks.Blocks = append(blocks.Blocks, emptyBlock(t, enc, cfg), emptyBlock(t, enc, cfg))
	writer := NewRowWriter(enc, cfg, 1)
	require.NoError(t, writer.WriteRow(intRow(t, cfg.RowUpperBound, 7)))
	dataBlocks, err := writer.Close()
	require.NoError(t, err)
	blocks.Blocks = append(blocks.Blocks, dataBlocks.Blocks...)

	reader := NewRowReader(enc, blocks, cfg, nil)
	require.True(t, reader.HasNext())
	row := codec.NewRow(cfg.RowUpperBound)
	require.NoError(t, reader.Read(row))
	v, err := row.Int32Attr(1)
	require.NoError(t, err)
	require.Equal(t, int32(7), v)
}

func TestRowReaderBoundsEmptyBlockRun(t *testing.T) {
	enc := newEncryptor(t)
	cfg := testConfig()
	cfg.MaxEmptyBlocks = 2

	var blocks wire.EncryptedBlocks
	for i := 0; i < 4; i++ {
		blocks.Blocks = append(blocks.Blocks, emptyBlock(t, enc, cfg))
	}
	writer := NewRowWriter(enc, cfg, 1)
	require.NoError(t, writer.WriteRow(intRow(t, cfg.RowUpperBound, 7)))
	dataBlocks, err := writer.Close()
	require.NoError(t, err)
	blocks.Blocks = append(blocks.Blocks, dataBlocks.Blocks...)

	reader := NewRowReader(enc, blocks, cfg, nil)
	row := codec.NewRow(cfg.RowUpperBound)
	err = reader.Read(row)
	require.Equal(t, errors.EmptyBlockLimitExceeded, errors.Code(err))
}

func TestIndividualRowRoundTrip(t *testing.T) {
	enc := newEncryptor(t)
	writer := NewIndividualRowWriter(enc)
	require.NoError(t, writer.Write(intRow(t, 64, 1, 2)))
	require.NoError(t, writer.Write(intRow(t, 64, 3, 4)))
	buff := writer.Close()

	reader := NewIndividualRowReader(enc, buff)
	row := codec.NewRow(64)
	require.True(t, reader.HasNext())
	require.NoError(t, reader.Read(row))
	v, err := row.Int32Attr(2)
	require.NoError(t, err)
	require.Equal(t, int32(2), v)
	require.True(t, reader.HasNext())
	require.NoError(t, reader.Read(row))
	require.False(t, reader.HasNext())
}

func TestIndividualRowVCarriesTaskID(t *testing.T) {
	enc := newEncryptor(t)
	taskID, err := TaskID(opcode.GroupByCol1SumCol2Step1, 3)
	require.NoError(t, err)

	writer := NewIndividualRowWriterV(enc, taskID)
	require.NoError(t, writer.Write(intRow(t, 64, 9)))
	buff := writer.Close()

	rec := verify.NewRecorder()
	reader, err := NewIndividualRowReaderV(enc, buff, rec)
	require.NoError(t, err)
	require.Equal(t, taskID, reader.TaskID())
	require.True(t, rec.HasNode(taskID))
	row := codec.NewRow(64)
	require.True(t, reader.HasNext())
	require.NoError(t, reader.Read(row))
	require.False(t, reader.HasNext())
}

func TestStreamWriterReaderRoundTrip(t *testing.T) {
	key, err := security.GenerateKey()
	require.NoError(t, err)
	cfg := testConfig()
	taskID, err := TaskID(opcode.SortCol2, 0)
	require.NoError(t, err)

	writer, err := NewStreamRowWriter(key, cfg, taskID)
	require.NoError(t, err)
	for i := 0; i < 9; i++ {
		require.NoError(t, writer.WriteRow(intRow(t, cfg.RowUpperBound, int32(i))))
	}
	blocks, err := writer.Close()
	require.NoError(t, err)
	require.True(t, len(blocks.Blocks) > 1)
	require.Equal(t, 9, blocks.NumRows())

	rec := verify.NewRecorder()
	reader, err := NewStreamRowReader(key, blocks, cfg, rec)
	require.NoError(t, err)
	row := codec.NewRow(cfg.RowUpperBound)
	for i := 0; i < 9; i++ {
		require.True(t, reader.HasNext())
		require.NoError(t, reader.Read(row))
		v, err := row.Int32Attr(1)
		require.NoError(t, err)
		require.Equal(t, int32(i), v)
	}
	require.False(t, reader.HasNext())
	require.True(t, rec.HasNode(taskID))
}

func TestStreamReaderDetectsTampering(t *testing.T) {
	key, err := security.GenerateKey()
	require.NoError(t, err)
	cfg := testConfig()
	writer, err := NewStreamRowWriter(key, cfg, 1)
	require.NoError(t, err)
	require.NoError(t, writer.WriteRow(intRow(t, cfg.RowUpperBound, 5)))
	blocks, err := writer.Close()
	require.NoError(t, err)

	blocks.Blocks[0].Rows[len(blocks.Blocks[0].Rows)-1] ^= 1
	reader, err := NewStreamRowReader(key, blocks, cfg, nil)
	require.NoError(t, err)
	row := codec.NewRow(cfg.RowUpperBound)
	err = reader.Read(row)
	require.Equal(t, errors.IntegrityFailure, errors.Code(err))
}
