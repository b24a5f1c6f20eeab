package codec

import (
	"bytes"
	"math"

	"github.com/veildb/veil/common"
	"github.com/veildb/veil/errors"
	"github.com/veildb/veil/opcode"
)

// LessThan orders this row before other under the comparator the opcode
// selects. Dummy rows sort after every real row so that padding introduced by
// the sort network lands in a predictable region.
func (r *Row) LessThan(other *Row, op opcode.OpCode) (bool, error) {
	if opcode.IsJoin(op) {
		return joinLess(r, other, op)
	}
	col, err := opcode.SortColumn(op)
	if err != nil {
		return false, err
	}
	return attrLess(r, other, col, col)
}

// joinLess orders table-tagged join records. Attribute 1 carries the table
// id, 0 for the primary table and 1 for the foreign one, and rows order by
// their join attribute with primaries before foreigns on ties so one sorted
// pass sees each primary ahead of its matching foreigns. A record with no
// attributes is a neutralized dummy and orders last.
func joinLess(a *Row, b *Row, op opcode.OpCode) (bool, error) {
	da, db := a.NumAttrs() == 0, b.NumAttrs() == 0
	if da || db {
		return !da && db, nil
	}
	ca, err := joinAttr(a, op)
	if err != nil {
		return false, err
	}
	cb, err := joinAttr(b, op)
	if err != nil {
		return false, err
	}
	less, err := attrLess(a, b, ca, cb)
	if err != nil || less {
		return less, err
	}
	greater, err := attrLess(b, a, cb, ca)
	if err != nil || greater {
		return false, err
	}
	ta, err := a.Int32Attr(1)
	if err != nil {
		return false, err
	}
	tb, err := b.Int32Attr(1)
	if err != nil {
		return false, err
	}
	return ta < tb, nil
}

// joinAttr returns the 1-indexed position of the join attribute inside a
// tagged record, accounting for the table id in attribute 1.
func joinAttr(r *Row, op opcode.OpCode) (int, error) {
	tid, err := r.Int32Attr(1)
	if err != nil {
		return 0, err
	}
	idx := opcode.JoinAttrIdx(op, tid == 0)
	if idx == 0 {
		return 0, errors.NewUnknownOpcodeError(int(op))
	}
	return idx + 1, nil
}

// attrLess compares the 1-indexed attribute ca of a with cb of b. A dummy
// attribute compares greater than any real one; two dummies compare equal.
func attrLess(a *Row, b *Row, ca int, cb int) (bool, error) {
	ta, err := a.AttrType(ca)
	if err != nil {
		return false, err
	}
	tb, err := b.AttrType(cb)
	if err != nil {
		return false, err
	}
	if ta.IsDummy() || tb.IsDummy() {
		return !ta.IsDummy() && tb.IsDummy(), nil
	}
	if ta.Base() != tb.Base() {
		return false, errors.NewSchemaMismatchError("cannot order attributes of different types")
	}
	va, err := a.AttrValue(ca)
	if err != nil {
		return false, err
	}
	vb, err := b.AttrValue(cb)
	if err != nil {
		return false, err
	}
	switch ta.Base() {
	case TypeInt:
		ua, _ := common.ReadUint32FromBufferLE(va, 0)
		ub, _ := common.ReadUint32FromBufferLE(vb, 0)
		return int32(ua) < int32(ub), nil
	case TypeFloat:
		fa, _ := common.ReadFloat32FromBufferLE(va, 0)
		fb, _ := common.ReadFloat32FromBufferLE(vb, 0)
		return fa < fb, nil
	case TypeString:
		return bytes.Compare(va, vb) < 0, nil
	default:
		return false, errors.NewSchemaMismatchError("unknown attribute type")
	}
}

// KeyPrefix returns a 4-byte order-preserving projection of the opcode's sort
// key: prefix(a) < prefix(b) implies a < b, and equal prefixes require a full
// comparison. Dummy rows take the maximum prefix so they sort to the top
// without inspecting their values.
func (r *Row) KeyPrefix(op opcode.OpCode) (uint32, error) {
	if opcode.IsJoin(op) {
		if r.NumAttrs() == 0 {
			return math.MaxUint32, nil
		}
		col, err := joinAttr(r, op)
		if err != nil {
			return 0, err
		}
		return attrKeyPrefix(r, col)
	}
	col, err := opcode.SortColumn(op)
	if err != nil {
		return 0, err
	}
	return attrKeyPrefix(r, col)
}

func attrKeyPrefix(r *Row, col int) (uint32, error) {
	typ, err := r.AttrType(col)
	if err != nil {
		return 0, err
	}
	if typ.IsDummy() {
		return math.MaxUint32, nil
	}
	val, err := r.AttrValue(col)
	if err != nil {
		return 0, err
	}
	switch typ.Base() {
	case TypeInt:
		u, _ := common.ReadUint32FromBufferLE(val, 0)
		return common.KeyPrefixInt32(int32(u)), nil
	case TypeFloat:
		f, _ := common.ReadFloat32FromBufferLE(val, 0)
		return common.KeyPrefixFloat32(f), nil
	case TypeString:
		return common.KeyPrefixBytes(val), nil
	default:
		return 0, errors.NewSchemaMismatchError("unknown attribute type")
	}
}
