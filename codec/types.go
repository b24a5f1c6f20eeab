package codec

type AttrType uint8

// Attribute type tags. The high bit is reserved to mark an attribute as dummy
// padding; a dummy attribute still occupies its full processing slot but is
// excluded from real output.
const (
	TypeInt    AttrType = 1 // int32, little-endian, 4 bytes
	TypeFloat  AttrType = 2 // float32, little-endian, 4 bytes
	TypeString AttrType = 3 // variable length, bounded by the attribute upper bound

	dummyBit AttrType = 0x80
)

// IsDummy reports whether the dummy bit is set.
func (t AttrType) IsDummy() bool {
	return t&dummyBit != 0
}

// Base strips the dummy bit.
func (t AttrType) Base() AttrType {
	return t &^ dummyBit
}

// AsDummy sets the dummy bit.
func (t AttrType) AsDummy() AttrType {
	return t | dummyBit
}

// ValueUpperBound returns the largest value size of the type.
func (t AttrType) ValueUpperBound(attrUpperBound int) int {
	switch t.Base() {
	case TypeInt, TypeFloat:
		return 4
	default:
		return attrUpperBound
	}
}

// Schema is the ordered attribute types of a row family. It is only needed to
// size buffers and initialize rows; parsing is schema free.
type Schema []AttrType

// RowUpperBound returns the largest serialized size of any row matching the
// schema.
func (s Schema) RowUpperBound(attrUpperBound int) int {
	size := rowHeaderSize
	for _, t := range s {
		size += attrHeaderSize + t.ValueUpperBound(attrUpperBound)
	}
	return size
}
