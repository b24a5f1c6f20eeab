package codec

import (
	"github.com/veildb/veil/errors"
	"github.com/veildb/veil/opcode"
)

// FilterKeep evaluates the predicate a filter opcode selects against the row.
// Callers that need a data-independent access pattern must still touch every
// input row and pad the output; the predicate itself only decides which slots
// are emitted.
func FilterKeep(op opcode.OpCode, row *Row) (bool, error) {
	switch op {
	case opcode.FilterCol2Gt3:
		v, err := row.Int32Attr(2)
		if err != nil {
			return false, err
		}
		return v > 3, nil
	case opcode.FilterTest:
		v, err := row.Int32Attr(1)
		if err != nil {
			return false, err
		}
		return v > 0, nil
	case opcode.FilterCol3NotDummy:
		return attrNotDummy(row, 3)
	case opcode.FilterCol4NotDummy:
		return attrNotDummy(row, 4)
	default:
		return false, errors.NewUnknownOpcodeError(int(op))
	}
}

// attrNotDummy drops neutralized records, which have fewer attributes than
// the filter column, instead of treating them as malformed.
func attrNotDummy(row *Row, col int) (bool, error) {
	if row.NumAttrs() < col {
		return false, nil
	}
	typ, err := row.AttrType(col)
	if err != nil {
		return false, err
	}
	return !typ.IsDummy(), nil
}
