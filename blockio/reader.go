package blockio

import (
	"github.com/veildb/veil/codec"
	"github.com/veildb/veil/common"
	"github.com/veildb/veil/conf"
	"github.com/veildb/veil/errors"
	"github.com/veildb/veil/opcode"
	"github.com/veildb/veil/security"
	"github.com/veildb/veil/verify"
	"github.com/veildb/veil/wire"
)

// RowReader iterates the rows of a sequence of encrypted blocks. Each block
// is authenticated against its header before any row is parsed, and the
// opened task id is reported to the recorder so block provenance can be
// checked after the fact.
type RowReader struct {
	enc            *security.Encryptor
	blocks         []wire.EncryptedBlock
	blockIdx       int
	plain          []byte
	plainOff       int
	rowsLeft       uint32
	maxEmptyBlocks int
	recorder       *verify.Recorder
}

func NewRowReader(enc *security.Encryptor, blocks wire.EncryptedBlocks, cfg *conf.Config, rec *verify.Recorder) *RowReader {
	return &RowReader{
		enc:            enc,
		blocks:         blocks.Blocks,
		maxEmptyBlocks: cfg.MaxEmptyBlocks,
		recorder:       rec,
	}
}

// HasNext reports whether another row is available without decrypting
// anything. It trusts the advisory wire counts only for the skip decision;
// the authenticated header count is cross-checked when a block is opened.
func (r *RowReader) HasNext() bool {
	if r.rowsLeft > 0 {
		return true
	}
	for i := r.blockIdx; i < len(r.blocks); i++ {
		if r.blocks[i].RowCount > 0 {
			return true
		}
	}
	return false
}

// openNextBlock decrypts the next non-empty block. Runs of empty blocks are
// legal output of upstream filters but a run longer than the configured limit
// means the untrusted scheduler is stalling us and is rejected.
func (r *RowReader) openNextBlock() error {
	empty := 0
	for {
		if r.blockIdx >= len(r.blocks) {
			return errors.NewIntegrityFailureError("read past the last encrypted block")
		}
		block := r.blocks[r.blockIdx]
		r.blockIdx++
		if err := r.openBlock(block); err != nil {
			return err
		}
		if r.rowsLeft > 0 {
			return nil
		}
		empty++
		if empty > r.maxEmptyBlocks {
			return errors.NewEmptyBlockLimitExceededError(r.maxEmptyBlocks)
		}
	}
}

func (r *RowReader) openBlock(block wire.EncryptedBlock) error {
	if len(block.Rows) < blockHeaderSize {
		return errors.NewIntegrityFailureError("encrypted block shorter than its header")
	}
	header := block.Rows[:blockHeaderSize]
	encLen, _ := common.ReadUint32FromBufferLE(header, 0)
	numRows, _ := common.ReadUint32FromBufferLE(header, 4)
	rowUpperBound, _ := common.ReadUint32FromBufferLE(header, 8)
	taskID, _ := common.ReadUint32FromBufferLE(header, 12)
	sealed := block.Rows[blockHeaderSize:]
	if int(encLen) != len(sealed) {
		return errors.NewIntegrityFailureError("encrypted block length does not match its header")
	}
	plain, err := r.enc.OpenWithAAD(sealed, header)
	if err != nil {
		return err
	}
	if int(numRows)*int(rowUpperBound) != len(plain) {
		return errors.NewIntegrityFailureError("block padded length does not match its header")
	}
	if numRows != block.RowCount {
		return errors.NewIntegrityFailureError("advisory row count does not match the authenticated header")
	}
	if r.recorder != nil {
		r.recorder.AddNode(taskID)
	}
	r.plain = plain
	r.plainOff = 0
	r.rowsLeft = numRows
	return nil
}

// Read parses the next row into row. The row must have been sized with at
// least the writer's row upper bound.
func (r *RowReader) Read(row *codec.Row) error {
	if r.rowsLeft == 0 {
		if err := r.openNextBlock(); err != nil {
			return err
		}
	}
	n, err := row.Read(r.plain, r.plainOff)
	if err != nil {
		return err
	}
	r.plainOff = n
	r.rowsLeft--
	return nil
}

// ReadSortPointer reads the next row and refreshes the pointer's key prefix
// for op.
func (r *RowReader) ReadSortPointer(ptr *codec.SortPointer, op opcode.OpCode) error {
	if err := r.Read(ptr.Row()); err != nil {
		return err
	}
	return ptr.RefreshPrefix(op)
}
