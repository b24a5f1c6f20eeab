package codec

import (
	"github.com/veildb/veil/common"
	"github.com/veildb/veil/errors"
)

// ByteReader supplies sequential plaintext bytes, typically deciphered
// incrementally from a stream-encrypted block.
type ByteReader interface {
	ReadBytes(dst []byte) error
}

// ByteWriter consumes sequential plaintext bytes, typically enciphering them
// incrementally into a stream-encrypted block.
type ByteWriter interface {
	WriteBytes(p []byte) error
}

// ReadStream reads a row through a ByteReader, one header at a time, so the
// full plaintext block never needs to be materialized. Returns the number of
// plaintext bytes consumed.
func (r *Row) ReadStream(br ByteReader) (int, error) {
	if err := br.ReadBytes(r.buf[:rowHeaderSize]); err != nil {
		return 0, err
	}
	numAttrs := r.NumAttrs()
	length := rowHeaderSize
	for i := 0; i < numAttrs; i++ {
		if length+attrHeaderSize > len(r.buf) {
			return 0, errors.NewBufferOverflowError(length+attrHeaderSize, len(r.buf))
		}
		if err := br.ReadBytes(r.buf[length : length+attrHeaderSize]); err != nil {
			return 0, err
		}
		attrLen, _ := common.ReadUint32FromBufferLE(r.buf, length+1)
		length += attrHeaderSize
		if length+int(attrLen) > len(r.buf) {
			return 0, errors.NewBufferOverflowError(length+int(attrLen), len(r.buf))
		}
		if err := br.ReadBytes(r.buf[length : length+int(attrLen)]); err != nil {
			return 0, err
		}
		length += int(attrLen)
	}
	r.length = length
	return length, nil
}

// WriteStream writes the serialized row through a ByteWriter and returns the
// number of plaintext bytes produced.
func (r *Row) WriteStream(bw ByteWriter) (int, error) {
	if err := bw.WriteBytes(r.buf[:r.length]); err != nil {
		return 0, err
	}
	return r.length, nil
}
