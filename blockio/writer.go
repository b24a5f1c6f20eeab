package blockio

import (
	log "github.com/sirupsen/logrus"

	"github.com/veildb/veil/codec"
	"github.com/veildb/veil/common"
	"github.com/veildb/veil/conf"
	"github.com/veildb/veil/errors"
	"github.com/veildb/veil/security"
	"github.com/veildb/veil/wire"
)

// RowWriter accumulates rows into a fixed-capacity scratch buffer and seals
// each full block with one authenticated encryption call. The ciphertext
// always covers row_count * row_upper_bound plaintext bytes regardless of how
// much of each slot a row actually used, so block sizes reveal only counts.
//
// A writer owns its scratch buffer exclusively and is not reentrant.
type RowWriter struct {
	enc           *security.Encryptor
	scratch       []byte
	used          int
	paddedLen     int
	numRows       uint32
	rowUpperBound int
	maxBlockSize  int
	taskID        uint32
	out           wire.EncryptedBlocks
	closed        bool
}

func NewRowWriter(enc *security.Encryptor, cfg *conf.Config, taskID uint32) *RowWriter {
	return &RowWriter{
		enc:           enc,
		scratch:       make([]byte, cfg.MaxBlockSize),
		rowUpperBound: cfg.RowUpperBound,
		maxBlockSize:  cfg.MaxBlockSize,
		taskID:        taskID,
	}
}

// WriteRow appends a row to the current block, sealing and starting a new
// block first if the row's padded slot would not fit.
func (w *RowWriter) WriteRow(row *codec.Row) error {
	if w.closed {
		return errors.NewInternalError("write on closed row writer")
	}
	if w.paddedLen+w.rowUpperBound > w.maxBlockSize {
		if err := w.finishBlock(); err != nil {
			return err
		}
	}
	if row.Size() > w.rowUpperBound {
		return errors.NewBufferOverflowError(row.Size(), w.rowUpperBound)
	}
	written := row.Write(w.scratch[w.used:w.used])
	w.used += len(written)
	w.numRows++
	w.paddedLen += w.rowUpperBound
	return nil
}

// WriteSortPointer writes the row a sort pointer references.
func (w *RowWriter) WriteSortPointer(ptr *codec.SortPointer) error {
	return w.WriteRow(ptr.Row())
}

func (w *RowWriter) finishBlock() error {
	header := make([]byte, 0, blockHeaderSize)
	header = common.AppendUint32ToBufferLE(header, uint32(security.EncSize(w.paddedLen)))
	header = common.AppendUint32ToBufferLE(header, w.numRows)
	header = common.AppendUint32ToBufferLE(header, uint32(w.rowUpperBound))
	header = common.AppendUint32ToBufferLE(header, w.taskID)
	sealed, err := w.enc.SealWithAAD(w.scratch[:w.paddedLen], header)
	if err != nil {
		return err
	}
	blockBytes := make([]byte, 0, blockHeaderSize+len(sealed))
	blockBytes = append(blockBytes, header...)
	blockBytes = append(blockBytes, sealed...)
	w.out.Blocks = append(w.out.Blocks, wire.EncryptedBlock{RowCount: w.numRows, Rows: blockBytes})
	log.Debugf("sealed block: rows=%d padded_len=%d task_id=%d", w.numRows, w.paddedLen, w.taskID)
	w.used = 0
	w.paddedLen = 0
	w.numRows = 0
	return nil
}

// Close seals the final block and returns all blocks written. The writer
// cannot be reused afterwards.
func (w *RowWriter) Close() (wire.EncryptedBlocks, error) {
	if w.closed {
		return wire.EncryptedBlocks{}, errors.NewInternalError("row writer already closed")
	}
	w.closed = true
	if w.numRows > 0 || len(w.out.Blocks) == 0 {
		if err := w.finishBlock(); err != nil {
			return wire.EncryptedBlocks{}, err
		}
	}
	return w.out, nil
}
