// Package codec implements the self-describing binary row format the
// processing core operates on. A serialized row is laid out as
//
//	[num_attrs u32]([attr_type u8][attr_len u32][attr_value])...
//
// so no external schema is needed to parse a row, only to interpret it. A Row
// owns one fixed-capacity buffer sized to a per-schema upper bound, allocated
// once and reused for many read/write cycles; the buffer is never grown, so
// allocation behavior cannot depend on row contents.
package codec

import (
	"bytes"

	"github.com/veildb/veil/common"
	"github.com/veildb/veil/errors"
	"github.com/veildb/veil/security"
)

const (
	// attrHeaderSize is the type byte plus the length word.
	attrHeaderSize = 5
	// rowHeaderSize holds the attribute count.
	rowHeaderSize = 4
)

type Row struct {
	buf    []byte
	length int
}

// NewRow allocates a row with the given serialized upper bound.
func NewRow(upperBound int) *Row {
	r := &Row{buf: make([]byte, upperBound)}
	r.Clear()
	return r
}

// Clear deletes all attributes from the row.
func (r *Row) Clear() {
	common.PutUint32LE(r.buf, 0, 0)
	r.length = rowHeaderSize
}

// NumAttrs returns the number of attributes in the row.
func (r *Row) NumAttrs() int {
	n, _ := common.ReadUint32FromBufferLE(r.buf, 0)
	return int(n)
}

func (r *Row) setNumAttrs(n int) {
	common.PutUint32LE(r.buf, 0, uint32(n))
}

// RowUpperBound returns the maximum number of bytes Write can produce for any
// row sharing this row's buffer size.
func (r *Row) RowUpperBound() int {
	return len(r.buf)
}

// Size returns the current serialized size of the row.
func (r *Row) Size() int {
	return r.length
}

// Init creates one attribute per schema entry, sized to the type's value
// upper bound and zero filled.
func (r *Row) Init(schema Schema, attrUpperBound int) error {
	r.Clear()
	for _, typ := range schema {
		vub := typ.ValueUpperBound(attrUpperBound)
		if err := r.addAttrHeader(typ, vub); err != nil {
			return err
		}
		r.length += vub
	}
	return nil
}

// Set copies the contents of other into this row.
func (r *Row) Set(other *Row) error {
	if other.length > len(r.buf) {
		return errors.NewBufferOverflowError(other.length, len(r.buf))
	}
	copy(r.buf, other.buf[:other.length])
	r.length = other.length
	return nil
}

// Append appends all of other's attributes to this row.
func (r *Row) Append(other *Row) error {
	extra := other.length - rowHeaderSize
	if r.length+extra > len(r.buf) {
		return errors.NewBufferOverflowError(r.length+extra, len(r.buf))
	}
	copy(r.buf[r.length:], other.buf[rowHeaderSize:other.length])
	r.length += extra
	r.setNumAttrs(r.NumAttrs() + other.NumAttrs())
	return nil
}

// Read parses a plaintext row from buffer starting at offset and returns the
// offset past the row. Truncated input is an integrity failure, never a
// partial row.
func (r *Row) Read(buffer []byte, offset int) (int, error) {
	if len(buffer)-offset < rowHeaderSize {
		return 0, errors.NewIntegrityFailureError("row truncated before attribute count")
	}
	numAttrs, off := common.ReadUint32FromBufferLE(buffer, offset)
	length := rowHeaderSize
	for i := 0; i < int(numAttrs); i++ {
		if len(buffer)-off < attrHeaderSize {
			return 0, errors.NewIntegrityFailureError("row truncated mid attribute header")
		}
		attrLen, _ := common.ReadUint32FromBufferLE(buffer, off+1)
		off += attrHeaderSize
		if len(buffer)-off < int(attrLen) {
			return 0, errors.NewIntegrityFailureError("row truncated mid attribute value")
		}
		off += int(attrLen)
		length += attrHeaderSize + int(attrLen)
	}
	if length > len(r.buf) {
		return 0, errors.NewBufferOverflowError(length, len(r.buf))
	}
	copy(r.buf, buffer[offset:offset+length])
	r.length = length
	return offset + length, nil
}

// Write appends the serialized row to buff and returns the extended slice.
func (r *Row) Write(buff []byte) []byte {
	return append(buff, r.buf[:r.length]...)
}

// ReadEncrypted reads a [enc_len u32][sealed row] frame from buffer at
// offset, authenticates and decrypts it, and parses the plaintext row.
func (r *Row) ReadEncrypted(buffer []byte, offset int, enc *security.Encryptor) (int, error) {
	if len(buffer)-offset < 4 {
		return 0, errors.NewIntegrityFailureError("encrypted row truncated before length")
	}
	encLen, off := common.ReadUint32FromBufferLE(buffer, offset)
	if len(buffer)-off < int(encLen) {
		return 0, errors.NewIntegrityFailureError("encrypted row truncated")
	}
	plain, err := enc.Open(buffer[off : off+int(encLen)])
	if err != nil {
		return 0, err
	}
	if _, err := r.Read(plain, 0); err != nil {
		return 0, err
	}
	return off + int(encLen), nil
}

// WriteEncrypted encrypts the row and appends a [enc_len u32][sealed row]
// frame to buff.
func (r *Row) WriteEncrypted(buff []byte, enc *security.Encryptor) ([]byte, error) {
	sealed, err := enc.Seal(r.buf[:r.length])
	if err != nil {
		return nil, err
	}
	buff = common.AppendUint32ToBufferLE(buff, uint32(len(sealed)))
	return append(buff, sealed...), nil
}

// attrOffset returns the buffer offset of the 1-indexed attribute's header.
func (r *Row) attrOffset(idx int) (int, error) {
	if idx < 1 || idx > r.NumAttrs() {
		return 0, errors.NewSchemaMismatchError("attribute index out of range")
	}
	off := rowHeaderSize
	for i := 1; i < idx; i++ {
		attrLen, _ := common.ReadUint32FromBufferLE(r.buf, off+1)
		off += attrHeaderSize + int(attrLen)
	}
	return off, nil
}

// AttrType returns the type tag of the 1-indexed attribute, dummy bit
// included.
func (r *Row) AttrType(idx int) (AttrType, error) {
	off, err := r.attrOffset(idx)
	if err != nil {
		return 0, err
	}
	return AttrType(r.buf[off]), nil
}

// AttrLen returns the value length of the 1-indexed attribute.
func (r *Row) AttrLen(idx int) (int, error) {
	off, err := r.attrOffset(idx)
	if err != nil {
		return 0, err
	}
	attrLen, _ := common.ReadUint32FromBufferLE(r.buf, off+1)
	return int(attrLen), nil
}

// AttrValue returns a view of the 1-indexed attribute's value bytes. The view
// is invalidated by the next Read or Set on this row.
func (r *Row) AttrValue(idx int) ([]byte, error) {
	off, err := r.attrOffset(idx)
	if err != nil {
		return nil, err
	}
	attrLen, _ := common.ReadUint32FromBufferLE(r.buf, off+1)
	return r.buf[off+attrHeaderSize : off+attrHeaderSize+int(attrLen)], nil
}

// attrBytes returns the whole attribute including its header.
func (r *Row) attrBytes(idx int) ([]byte, error) {
	off, err := r.attrOffset(idx)
	if err != nil {
		return nil, err
	}
	attrLen, _ := common.ReadUint32FromBufferLE(r.buf, off+1)
	return r.buf[off : off+attrHeaderSize+int(attrLen)], nil
}

// SetAttrValue replaces the value of the 1-indexed attribute. The new value
// must occupy exactly the existing length; attributes are never grown or
// shrunk in place.
func (r *Row) SetAttrValue(idx int, value []byte) error {
	off, err := r.attrOffset(idx)
	if err != nil {
		return err
	}
	attrLen, _ := common.ReadUint32FromBufferLE(r.buf, off+1)
	if len(value) != int(attrLen) {
		return errors.NewSchemaMismatchError("replacement value length differs from attribute length")
	}
	copy(r.buf[off+attrHeaderSize:], value)
	return nil
}

func (r *Row) addAttrHeader(typ AttrType, length int) error {
	need := r.length + attrHeaderSize + length
	if need > len(r.buf) {
		return errors.NewBufferOverflowError(need, len(r.buf))
	}
	r.buf[r.length] = byte(typ)
	common.PutUint32LE(r.buf, r.length+1, uint32(length))
	r.length += attrHeaderSize
	r.setNumAttrs(r.NumAttrs() + 1)
	return nil
}

// AddAttr appends an attribute with the given type tag and value bytes.
func (r *Row) AddAttr(typ AttrType, value []byte) error {
	if err := r.addAttrHeader(typ, len(value)); err != nil {
		return err
	}
	copy(r.buf[r.length:], value)
	r.length += len(value)
	return nil
}

// AddAttrFrom appends a copy of other's 1-indexed attribute to this row.
func (r *Row) AddAttrFrom(other *Row, idx int) error {
	attr, err := other.attrBytes(idx)
	if err != nil {
		return err
	}
	return r.AddAttr(AttrType(attr[0]), attr[attrHeaderSize:])
}

// AddInt32 appends an int32 attribute, optionally marked as a dummy.
func (r *Row) AddInt32(v int32, dummy bool) error {
	typ := TypeInt
	if dummy {
		typ = typ.AsDummy()
	}
	var val [4]byte
	common.PutUint32LE(val[:], 0, uint32(v))
	return r.AddAttr(typ, val[:])
}

// AddFloat32 appends a float32 attribute, optionally marked as a dummy.
func (r *Row) AddFloat32(v float32, dummy bool) error {
	typ := TypeFloat
	if dummy {
		typ = typ.AsDummy()
	}
	val := common.AppendFloat32ToBufferLE(nil, v)
	return r.AddAttr(typ, val)
}

// AddString appends a string attribute, optionally marked as a dummy.
func (r *Row) AddString(v string, dummy bool) error {
	typ := TypeString
	if dummy {
		typ = typ.AsDummy()
	}
	return r.AddAttr(typ, []byte(v))
}

// Int32Attr reads the 1-indexed attribute as an int32.
func (r *Row) Int32Attr(idx int) (int32, error) {
	val, err := r.typedValue(idx, TypeInt)
	if err != nil {
		return 0, err
	}
	u, _ := common.ReadUint32FromBufferLE(val, 0)
	return int32(u), nil
}

// Float32Attr reads the 1-indexed attribute as a float32.
func (r *Row) Float32Attr(idx int) (float32, error) {
	val, err := r.typedValue(idx, TypeFloat)
	if err != nil {
		return 0, err
	}
	f, _ := common.ReadFloat32FromBufferLE(val, 0)
	return f, nil
}

// StringAttr reads the 1-indexed attribute as a string.
func (r *Row) StringAttr(idx int) (string, error) {
	val, err := r.typedValue(idx, TypeString)
	if err != nil {
		return "", err
	}
	return string(val), nil
}

func (r *Row) typedValue(idx int, want AttrType) ([]byte, error) {
	typ, err := r.AttrType(idx)
	if err != nil {
		return nil, err
	}
	if typ.Base() != want {
		return nil, errors.NewSchemaMismatchError("attribute type does not match requested type")
	}
	return r.AttrValue(idx)
}

// MarkDummy marks the whole row as padding by setting the dummy bit on every
// attribute's type tag. Values are preserved so the row keeps its shape.
func (r *Row) MarkDummy() {
	off := rowHeaderSize
	for i := 0; i < r.NumAttrs(); i++ {
		r.buf[off] = byte(AttrType(r.buf[off]).AsDummy())
		attrLen, _ := common.ReadUint32FromBufferLE(r.buf, off+1)
		off += attrHeaderSize + int(attrLen)
	}
}

// IsDummy reports whether any attribute carries the dummy bit. A row with no
// attributes at all is a neutralized record and also counts as a dummy.
func (r *Row) IsDummy() bool {
	if r.NumAttrs() == 0 {
		return true
	}
	off := rowHeaderSize
	for i := 0; i < r.NumAttrs(); i++ {
		if AttrType(r.buf[off]).IsDummy() {
			return true
		}
		attrLen, _ := common.ReadUint32FromBufferLE(r.buf, off+1)
		off += attrHeaderSize + int(attrLen)
	}
	return false
}

// AttrsEqual compares this row's 1-indexed attribute ia with other's ib.
// Attributes of different base types cannot be compared; that is a schema
// mismatch in the caller, not an inequality.
func (r *Row) AttrsEqual(other *Row, ia int, ib int) (bool, error) {
	ta, err := r.AttrType(ia)
	if err != nil {
		return false, err
	}
	tb, err := other.AttrType(ib)
	if err != nil {
		return false, err
	}
	if ta.Base() != tb.Base() {
		return false, errors.NewSchemaMismatchError("cannot compare attributes of different types")
	}
	va, err := r.AttrValue(ia)
	if err != nil {
		return false, err
	}
	vb, err := other.AttrValue(ib)
	if err != nil {
		return false, err
	}
	return bytes.Equal(va, vb), nil
}
