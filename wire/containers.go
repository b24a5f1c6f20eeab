// Package wire defines the containers exchanged with untrusted storage and
// the shuffle layer. Only ciphertext and row counts cross this boundary; the
// framing is explicit length-prefixed binary so the 16-byte block header can
// stay byte-exact with the associated data the cipher authenticated.
package wire

import (
	"github.com/veildb/veil/common"
	"github.com/veildb/veil/errors"
)

// EncryptedBlock is one encrypted unit of rows. Rows holds the block header
// followed by the ciphertext; RowCount duplicates the header's row count for
// the benefit of the untrusted scheduler, which cannot decrypt.
type EncryptedBlock struct {
	RowCount uint32
	Rows     []byte
}

func (b *EncryptedBlock) Serialize(buff []byte) []byte {
	buff = common.AppendUint32ToBufferLE(buff, b.RowCount)
	buff = common.AppendUint32ToBufferLE(buff, uint32(len(b.Rows)))
	return append(buff, b.Rows...)
}

func (b *EncryptedBlock) Deserialize(buff []byte, offset int) (int, error) {
	if len(buff)-offset < 8 {
		return 0, errors.NewIntegrityFailureError("encrypted block truncated")
	}
	var l uint32
	b.RowCount, offset = common.ReadUint32FromBufferLE(buff, offset)
	l, offset = common.ReadUint32FromBufferLE(buff, offset)
	if len(buff)-offset < int(l) {
		return 0, errors.NewIntegrityFailureError("encrypted block truncated")
	}
	b.Rows = buff[offset : offset+int(l)]
	return offset + int(l), nil
}

// EncryptedBlocks is an ordered sequence of blocks, the output of one writer.
type EncryptedBlocks struct {
	Blocks []EncryptedBlock
}

// NumRows returns the total row count across all blocks.
func (b *EncryptedBlocks) NumRows() int {
	n := 0
	for i := range b.Blocks {
		n += int(b.Blocks[i].RowCount)
	}
	return n
}

func (b *EncryptedBlocks) Serialize(buff []byte) []byte {
	buff = common.AppendUint32ToBufferLE(buff, uint32(len(b.Blocks)))
	for i := range b.Blocks {
		buff = b.Blocks[i].Serialize(buff)
	}
	return buff
}

func (b *EncryptedBlocks) Deserialize(buff []byte, offset int) (int, error) {
	if len(buff)-offset < 4 {
		return 0, errors.NewIntegrityFailureError("encrypted blocks truncated")
	}
	var n uint32
	n, offset = common.ReadUint32FromBufferLE(buff, offset)
	// bound the count by the remaining bytes before allocating, every block
	// carries at least an 8 byte prefix
	if int64(n)*8 > int64(len(buff)-offset) {
		return 0, errors.NewIntegrityFailureError("encrypted blocks truncated")
	}
	b.Blocks = make([]EncryptedBlock, n)
	var err error
	for i := 0; i < int(n); i++ {
		offset, err = b.Blocks[i].Deserialize(buff, offset)
		if err != nil {
			return 0, err
		}
	}
	return offset, nil
}

// SortedRuns is a sequence of independently sorted block sequences, the unit
// a multi-partition sort exchanges through the shuffle.
type SortedRuns struct {
	Runs []EncryptedBlocks
}

// NumRows returns the total row count across all runs.
func (s *SortedRuns) NumRows() int {
	n := 0
	for i := range s.Runs {
		n += s.Runs[i].NumRows()
	}
	return n
}

func (s *SortedRuns) Serialize(buff []byte) []byte {
	buff = common.AppendUint32ToBufferLE(buff, uint32(len(s.Runs)))
	for i := range s.Runs {
		buff = s.Runs[i].Serialize(buff)
	}
	return buff
}

func (s *SortedRuns) Deserialize(buff []byte, offset int) (int, error) {
	if len(buff)-offset < 4 {
		return 0, errors.NewIntegrityFailureError("sorted runs truncated")
	}
	var n uint32
	n, offset = common.ReadUint32FromBufferLE(buff, offset)
	// every run carries at least its own 4 byte block count
	if int64(n)*4 > int64(len(buff)-offset) {
		return 0, errors.NewIntegrityFailureError("sorted runs truncated")
	}
	s.Runs = make([]EncryptedBlocks, n)
	var err error
	for i := 0; i < int(n); i++ {
		offset, err = s.Runs[i].Deserialize(buff, offset)
		if err != nil {
			return 0, err
		}
	}
	return offset, nil
}
