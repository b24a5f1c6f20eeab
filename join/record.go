// Package join implements the sort-merge equijoin over table-tagged records.
// Both inputs are tagged with their table id, sorted together on the join
// attribute with primaries ahead of matching foreigns, and then merged in a
// single pass that emits exactly one output row per foreign input row.
package join

import (
	"github.com/veildb/veil/codec"
	"github.com/veildb/veil/errors"
	"github.com/veildb/veil/opcode"
)

const (
	primaryTableID int32 = 0
	foreignTableID int32 = 1
)

// Record is a join input row with its table id prepended as attribute 1.
// The join attribute is cached as an index into the record, never as a
// pointer into its buffer, so the cache stays valid when the record's
// contents are overwritten in place.
type Record struct {
	row      *codec.Row
	joinAttr int
}

func NewRecord(rowUpperBound int) *Record {
	return &Record{row: codec.NewRow(rowUpperBound)}
}

// Row exposes the underlying tagged row for transport.
func (r *Record) Row() *codec.Row {
	return r.row
}

// Set tags row with the table id and loads it into the record.
func (r *Record) Set(isPrimary bool, row *codec.Row) error {
	r.row.Clear()
	tid := foreignTableID
	if isPrimary {
		tid = primaryTableID
	}
	if err := r.row.AddInt32(tid, false); err != nil {
		return err
	}
	return r.row.Append(row)
}

// InitJoinAttr caches the join attribute's index for op based on the
// record's current table id. Must be called again whenever the record is
// reloaded with a row from the other table.
func (r *Record) InitJoinAttr(op opcode.OpCode) error {
	if r.IsDummy() {
		r.joinAttr = 0
		return nil
	}
	isPrimary, err := r.isPrimary()
	if err != nil {
		return err
	}
	idx := opcode.JoinAttrIdx(op, isPrimary)
	if idx == 0 {
		return errors.NewUnknownOpcodeError(int(op))
	}
	r.joinAttr = idx + 1
	return nil
}

func (r *Record) isPrimary() (bool, error) {
	tid, err := r.row.Int32Attr(1)
	if err != nil {
		return false, err
	}
	return tid == primaryTableID, nil
}

// IsPrimary reports whether the record came from the primary table. Dummies
// belong to neither table.
func (r *Record) IsPrimary() bool {
	if r.IsDummy() {
		return false
	}
	p, err := r.isPrimary()
	return err == nil && p
}

// IsDummy reports whether the record has been neutralized. A dummy carries
// no attributes at all.
func (r *Record) IsDummy() bool {
	return r.row.NumAttrs() == 0
}

// ResetToDummy neutralizes the record.
func (r *Record) ResetToDummy() {
	r.row.Clear()
	r.joinAttr = 0
}

// JoinAttrEquals reports whether the two records agree on their join
// attribute. Dummies match nothing.
func (r *Record) JoinAttrEquals(other *Record) (bool, error) {
	if r.IsDummy() || other.IsDummy() {
		return false, nil
	}
	return r.row.AttrsEqual(other.row, r.joinAttr, other.joinAttr)
}

// Merge writes the joined row into out: the primary's attributes followed by
// the foreign's, with both table ids and the foreign's join attribute
// dropped. The receiver must be the primary record.
func (r *Record) Merge(foreign *Record, out *codec.Row) error {
	out.Clear()
	for i := 2; i <= r.row.NumAttrs(); i++ {
		if err := out.AddAttrFrom(r.row, i); err != nil {
			return err
		}
	}
	for i := 2; i <= foreign.row.NumAttrs(); i++ {
		if i == foreign.joinAttr {
			continue
		}
		if err := out.AddAttrFrom(foreign.row, i); err != nil {
			return err
		}
	}
	return nil
}

// LessThan orders tagged records the way the join's sort pass does.
func (r *Record) LessThan(other *Record, op opcode.OpCode) (bool, error) {
	return r.row.LessThan(other.row, op)
}

// KeyPrefix returns the record's 4-byte sort projection for op.
func (r *Record) KeyPrefix(op opcode.OpCode) (uint32, error) {
	return r.row.KeyPrefix(op)
}
