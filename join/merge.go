package join

import (
	log "github.com/sirupsen/logrus"

	"github.com/veildb/veil/blockio"
	"github.com/veildb/veil/codec"
	"github.com/veildb/veil/conf"
	"github.com/veildb/veil/opcode"
	"github.com/veildb/veil/security"
	"github.com/veildb/veil/verify"
	"github.com/veildb/veil/wire"
)

// TagRows tags the primary and foreign inputs with their table ids and
// returns one combined slice ready for the join's sort pass.
func TagRows(primary []*codec.Row, foreign []*codec.Row, rowUpperBound int) ([]*codec.Row, error) {
	tagged := make([]*codec.Row, 0, len(primary)+len(foreign))
	for _, row := range primary {
		rec := NewRecord(rowUpperBound)
		if err := rec.Set(true, row); err != nil {
			return nil, err
		}
		tagged = append(tagged, rec.Row())
	}
	for _, row := range foreign {
		rec := NewRecord(rowUpperBound)
		if err := rec.Set(false, row); err != nil {
			return nil, err
		}
		tagged = append(tagged, rec.Row())
	}
	return tagged, nil
}

// SortMergeJoin merges a sorted tagged stream in one pass. It carries the
// most recent primary record, emits the joined row for every foreign that
// matches it and a neutralized dummy for every foreign that does not, so the
// output holds exactly one row per foreign input row.
func SortMergeJoin(enc *security.Encryptor, blocks wire.EncryptedBlocks, cfg *conf.Config,
	op opcode.OpCode, taskID uint32, rec *verify.Recorder) (wire.EncryptedBlocks, error) {
	reader := blockio.NewRowReader(enc, blocks, cfg, rec)
	writer := blockio.NewRowWriter(enc, cfg, taskID)

	lastPrimary := NewRecord(cfg.RowUpperBound)
	cur := NewRecord(cfg.RowUpperBound)
	out := codec.NewRow(cfg.RowUpperBound)
	var foreigns, matches int

	for reader.HasNext() {
		if err := reader.Read(cur.Row()); err != nil {
			return wire.EncryptedBlocks{}, err
		}
		if err := cur.InitJoinAttr(op); err != nil {
			return wire.EncryptedBlocks{}, err
		}
		if cur.IsPrimary() {
			if err := copyRecord(lastPrimary, cur); err != nil {
				return wire.EncryptedBlocks{}, err
			}
			if err := lastPrimary.InitJoinAttr(op); err != nil {
				return wire.EncryptedBlocks{}, err
			}
			continue
		}
		if cur.IsDummy() {
			out.Clear()
			if err := writer.WriteRow(out); err != nil {
				return wire.EncryptedBlocks{}, err
			}
			foreigns++
			continue
		}
		match, err := lastPrimary.JoinAttrEquals(cur)
		if err != nil {
			return wire.EncryptedBlocks{}, err
		}
		if match {
			if err := lastPrimary.Merge(cur, out); err != nil {
				return wire.EncryptedBlocks{}, err
			}
			matches++
		} else {
			out.Clear()
		}
		if err := writer.WriteRow(out); err != nil {
			return wire.EncryptedBlocks{}, err
		}
		foreigns++
	}
	log.Debugf("sort merge join: foreigns=%d matches=%d task_id=%d", foreigns, matches, taskID)
	return writer.Close()
}

func copyRecord(dst *Record, src *Record) error {
	return dst.row.Set(src.row)
}
