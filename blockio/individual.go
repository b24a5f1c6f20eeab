package blockio

import (
	"github.com/veildb/veil/common"
	"github.com/veildb/veil/errors"
	"github.com/veildb/veil/security"
	"github.com/veildb/veil/verify"
)

// EncryptedValue is any value that can frame itself as [enc_len u32][sealed
// bytes]. Both plain rows and serialized aggregator states satisfy it, so the
// same reader and writer move either kind of record.
type EncryptedValue interface {
	ReadEncrypted(buffer []byte, offset int, enc *security.Encryptor) (int, error)
	WriteEncrypted(buff []byte, enc *security.Encryptor) ([]byte, error)
}

// IndividualRowWriter encrypts each value on its own so an external shuffle
// can reorder the output without re-encryption.
type IndividualRowWriter struct {
	enc  *security.Encryptor
	buff []byte
}

func NewIndividualRowWriter(enc *security.Encryptor) *IndividualRowWriter {
	return &IndividualRowWriter{enc: enc}
}

func (w *IndividualRowWriter) Write(v EncryptedValue) error {
	buff, err := v.WriteEncrypted(w.buff, w.enc)
	if err != nil {
		return err
	}
	w.buff = buff
	return nil
}

// Close returns the concatenated encrypted values.
func (w *IndividualRowWriter) Close() []byte {
	return w.buff
}

// IndividualRowReader parses a buffer produced by IndividualRowWriter.
type IndividualRowReader struct {
	enc    *security.Encryptor
	buffer []byte
	offset int
}

func NewIndividualRowReader(enc *security.Encryptor, buffer []byte) *IndividualRowReader {
	return &IndividualRowReader{enc: enc, buffer: buffer}
}

func (r *IndividualRowReader) HasNext() bool {
	return r.offset < len(r.buffer)
}

func (r *IndividualRowReader) Read(v EncryptedValue) error {
	off, err := v.ReadEncrypted(r.buffer, r.offset, r.enc)
	if err != nil {
		return err
	}
	r.offset = off
	return nil
}

// IndividualRowWriterV prefixes the buffer with the writing task's id so a
// consumer can attribute individually encrypted values to their producer.
type IndividualRowWriterV struct {
	inner IndividualRowWriter
}

func NewIndividualRowWriterV(enc *security.Encryptor, taskID uint32) *IndividualRowWriterV {
	w := &IndividualRowWriterV{inner: IndividualRowWriter{enc: enc}}
	w.inner.buff = common.AppendUint32ToBufferLE(w.inner.buff, taskID)
	return w
}

func (w *IndividualRowWriterV) Write(v EncryptedValue) error {
	return w.inner.Write(v)
}

func (w *IndividualRowWriterV) Close() []byte {
	return w.inner.Close()
}

// IndividualRowReaderV skips the task id prefix, exposes it, and reports it
// to the recorder when one is supplied.
type IndividualRowReaderV struct {
	inner  IndividualRowReader
	taskID uint32
}

func NewIndividualRowReaderV(enc *security.Encryptor, buffer []byte, rec *verify.Recorder) (*IndividualRowReaderV, error) {
	if len(buffer) < 4 {
		return nil, errors.NewIntegrityFailureError("individual row buffer shorter than its task id")
	}
	taskID, off := common.ReadUint32FromBufferLE(buffer, 0)
	if rec != nil {
		rec.AddNode(taskID)
	}
	r := &IndividualRowReaderV{inner: IndividualRowReader{enc: enc, buffer: buffer, offset: off}, taskID: taskID}
	return r, nil
}

func (r *IndividualRowReaderV) TaskID() uint32 {
	return r.taskID
}

func (r *IndividualRowReaderV) HasNext() bool {
	return r.inner.HasNext()
}

func (r *IndividualRowReaderV) Read(v EncryptedValue) error {
	return r.inner.Read(v)
}
