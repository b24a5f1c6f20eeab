package blockio

import (
	"github.com/veildb/veil/codec"
	"github.com/veildb/veil/common"
	"github.com/veildb/veil/conf"
	"github.com/veildb/veil/errors"
	"github.com/veildb/veil/security"
	"github.com/veildb/veil/verify"
	"github.com/veildb/veil/wire"
)

// StreamRowWriter enciphers rows incrementally so only one row of plaintext
// is ever held alongside the growing ciphertext. Layout per block is
// [header][iv][ciphertext][tag] with the same 16-byte header as the grouped
// writer, bound as associated data. Plaintext is padded to
// row_count * row_upper_bound with zero bytes before the block closes so
// ciphertext sizes stay data independent.
type StreamRowWriter struct {
	sealer        *security.StreamSealer
	rowUpperBound int
	maxBlockSize  int
	taskID        uint32
	body          []byte
	numRows       uint32
	plainWritten  int
	out           wire.EncryptedBlocks
	open          bool
}

func NewStreamRowWriter(key []byte, cfg *conf.Config, taskID uint32) (*StreamRowWriter, error) {
	sealer, err := security.NewStreamSealer(key)
	if err != nil {
		return nil, err
	}
	return &StreamRowWriter{
		sealer:        sealer,
		rowUpperBound: cfg.RowUpperBound,
		maxBlockSize:  cfg.MaxBlockSize,
		taskID:        taskID,
	}, nil
}

// WriteBytes enciphers the next plaintext chunk into the current block.
func (w *StreamRowWriter) WriteBytes(p []byte) error {
	w.body = append(w.body, w.sealer.Encrypt(p)...)
	w.plainWritten += len(p)
	return nil
}

// WriteRow appends a row, closing the current block first if its padded slot
// would not fit.
func (w *StreamRowWriter) WriteRow(row *codec.Row) error {
	if int(w.numRows+1)*w.rowUpperBound > w.maxBlockSize {
		if err := w.finishBlock(); err != nil {
			return err
		}
	}
	if !w.open {
		if err := w.sealer.Reset(); err != nil {
			return err
		}
		w.body = append(w.body[:0], w.sealer.IV()...)
		w.plainWritten = 0
		w.open = true
	}
	if row.Size() > w.rowUpperBound {
		return errors.NewBufferOverflowError(row.Size(), w.rowUpperBound)
	}
	if _, err := row.WriteStream(w); err != nil {
		return err
	}
	w.numRows++
	return nil
}

var zeroPad [256]byte

func (w *StreamRowWriter) finishBlock() error {
	if !w.open {
		return nil
	}
	paddedLen := int(w.numRows) * w.rowUpperBound
	for w.plainWritten < paddedLen {
		n := paddedLen - w.plainWritten
		if n > len(zeroPad) {
			n = len(zeroPad)
		}
		if err := w.WriteBytes(zeroPad[:n]); err != nil {
			return err
		}
	}
	header := make([]byte, 0, blockHeaderSize)
	header = common.AppendUint32ToBufferLE(header, uint32(paddedLen+security.StreamOverhead))
	header = common.AppendUint32ToBufferLE(header, w.numRows)
	header = common.AppendUint32ToBufferLE(header, uint32(w.rowUpperBound))
	header = common.AppendUint32ToBufferLE(header, w.taskID)
	tag := w.sealer.Finish(header)
	blockBytes := make([]byte, 0, blockHeaderSize+len(w.body)+len(tag))
	blockBytes = append(blockBytes, header...)
	blockBytes = append(blockBytes, w.body...)
	blockBytes = append(blockBytes, tag...)
	w.out.Blocks = append(w.out.Blocks, wire.EncryptedBlock{RowCount: w.numRows, Rows: blockBytes})
	w.body = w.body[:0]
	w.numRows = 0
	w.plainWritten = 0
	w.open = false
	return nil
}

// Close seals the final block and returns everything written.
func (w *StreamRowWriter) Close() (wire.EncryptedBlocks, error) {
	if w.open || len(w.out.Blocks) == 0 {
		if !w.open {
			if err := w.sealer.Reset(); err != nil {
				return wire.EncryptedBlocks{}, err
			}
			w.body = append(w.body[:0], w.sealer.IV()...)
			w.open = true
		}
		if err := w.finishBlock(); err != nil {
			return wire.EncryptedBlocks{}, err
		}
	}
	return w.out, nil
}

// StreamRowReader deciphers blocks written by StreamRowWriter, verifying each
// block's tag before releasing any plaintext and then decrypting row by row.
type StreamRowReader struct {
	opener         *security.StreamOpener
	blocks         []wire.EncryptedBlock
	blockIdx       int
	rowsLeft       uint32
	padLeft        int
	maxEmptyBlocks int
	recorder       *verify.Recorder
}

func NewStreamRowReader(key []byte, blocks wire.EncryptedBlocks, cfg *conf.Config, rec *verify.Recorder) (*StreamRowReader, error) {
	opener, err := security.NewStreamOpener(key)
	if err != nil {
		return nil, err
	}
	return &StreamRowReader{
		opener:         opener,
		blocks:         blocks.Blocks,
		maxEmptyBlocks: cfg.MaxEmptyBlocks,
		recorder:       rec,
	}, nil
}

// ReadBytes deciphers the next plaintext chunk of the open block.
func (r *StreamRowReader) ReadBytes(dst []byte) error {
	return r.opener.Decrypt(dst)
}

func (r *StreamRowReader) HasNext() bool {
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

func (r *StreamRowReader) openNextBlock() error {
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

func (r *StreamRowReader) openBlock(block wire.EncryptedBlock) error {
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
	if err := r.opener.Open(sealed, header); err != nil {
		return err
	}
	if int(numRows)*int(rowUpperBound) != len(sealed)-security.StreamOverhead {
		return errors.NewIntegrityFailureError("block padded length does not match its header")
	}
	if numRows != block.RowCount {
		return errors.NewIntegrityFailureError("advisory row count does not match the authenticated header")
	}
	if r.recorder != nil {
		r.recorder.AddNode(taskID)
	}
	r.rowsLeft = numRows
	r.padLeft = int(numRows) * int(rowUpperBound)
	return nil
}

// Read deciphers the next row into row.
func (r *StreamRowReader) Read(row *codec.Row) error {
	if r.rowsLeft == 0 {
		if err := r.openNextBlock(); err != nil {
			return err
		}
	}
	n, err := row.ReadStream(r)
	if err != nil {
		return err
	}
	r.padLeft -= n
	r.rowsLeft--
	if r.rowsLeft == 0 && r.padLeft > 0 {
		// drain the zero padding so the next block starts clean
		var scratch [256]byte
		for r.padLeft > 0 {
			n := r.padLeft
			if n > len(scratch) {
				n = len(scratch)
			}
			if err := r.opener.Decrypt(scratch[:n]); err != nil {
				return err
			}
			r.padLeft -= n
		}
	}
	return nil
}
