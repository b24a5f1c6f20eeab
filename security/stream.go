package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"hash"
	"io"

	"github.com/veildb/veil/errors"
)

const (
	// StreamIVSize is the per-block counter IV size.
	StreamIVSize = aes.BlockSize
	// StreamTagSize is the per-block HMAC-SHA256 tag size.
	StreamTagSize = sha256.Size
	// StreamOverhead is the framing overhead of one stream-enciphered block.
	StreamOverhead = StreamIVSize + StreamTagSize
)

// StreamSealer enciphers one block incrementally, row by row, so a writer
// with a tight working set never has to hold a whole plaintext block. The
// keystream is AES-CTR; integrity comes from an HMAC tag over the IV and the
// ciphertext, emitted by Finish.
//
// A sealer processes one block at a time: Reset, any number of Encrypt calls,
// then Finish. Not safe for concurrent use.
type StreamSealer struct {
	block   cipher.Block
	macKey  []byte
	stream  cipher.Stream
	hm      hash.Hash
	iv      []byte
	written int
}

func NewStreamSealer(key []byte) (*StreamSealer, error) {
	if len(key) != KeySize {
		return nil, errors.Errorf("invalid key size: expected %d, got %d", KeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	mk := sha256.Sum256(key)
	s := &StreamSealer{block: block, macKey: mk[:]}
	if err := s.Reset(); err != nil {
		return nil, err
	}
	return s, nil
}

// Reset begins a new block with a fresh IV. The IV must be placed at the
// start of the block's ciphertext region.
func (s *StreamSealer) Reset() error {
	iv := make([]byte, StreamIVSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return errors.WithStack(err)
	}
	s.iv = iv
	s.stream = cipher.NewCTR(s.block, iv)
	s.hm = hmac.New(sha256.New, s.macKey)
	s.hm.Write(iv) //nolint:errcheck
	s.written = 0
	return nil
}

// IV returns the current block's IV.
func (s *StreamSealer) IV() []byte {
	return s.iv
}

// Encrypt enciphers the next plaintext chunk and returns its ciphertext.
func (s *StreamSealer) Encrypt(p []byte) []byte {
	ct := make([]byte, len(p))
	s.stream.XORKeyStream(ct, p)
	s.hm.Write(ct) //nolint:errcheck
	s.written += len(ct)
	return ct
}

// BytesWritten returns the ciphertext bytes produced since the last Reset.
func (s *StreamSealer) BytesWritten() int {
	return s.written
}

// Finish closes the block and returns its authentication tag. aad is bound
// into the tag the way the block cipher binds its associated data; pass the
// block header so header tampering fails verification.
func (s *StreamSealer) Finish(aad []byte) []byte {
	s.hm.Write(aad) //nolint:errcheck
	return s.hm.Sum(nil)
}

// StreamOpener verifies and deciphers stream-enciphered blocks. The whole
// block ciphertext is available up front, so the tag is checked when the
// block is opened, before any plaintext byte is released; decryption itself
// then proceeds incrementally.
type StreamOpener struct {
	block     cipher.Block
	macKey    []byte
	stream    cipher.Stream
	remaining []byte
}

func NewStreamOpener(key []byte) (*StreamOpener, error) {
	if len(key) != KeySize {
		return nil, errors.Errorf("invalid key size: expected %d, got %d", KeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	mk := sha256.Sum256(key)
	return &StreamOpener{block: block, macKey: mk[:]}, nil
}

// Open resets the opener against a block laid out as [iv][ciphertext][tag],
// verifying the tag over the IV, the ciphertext and aad before any plaintext
// byte is released.
func (o *StreamOpener) Open(data []byte, aad []byte) error {
	if len(data) < StreamOverhead {
		return errors.NewIntegrityFailureError("stream block truncated")
	}
	iv := data[:StreamIVSize]
	ct := data[StreamIVSize : len(data)-StreamTagSize]
	tag := data[len(data)-StreamTagSize:]
	hm := hmac.New(sha256.New, o.macKey)
	hm.Write(iv)  //nolint:errcheck
	hm.Write(ct)  //nolint:errcheck
	hm.Write(aad) //nolint:errcheck
	if subtle.ConstantTimeCompare(hm.Sum(nil), tag) != 1 {
		return errors.NewIntegrityFailureError("stream block authentication failed")
	}
	o.stream = cipher.NewCTR(o.block, iv)
	o.remaining = ct
	return nil
}

// Decrypt fills dst with the next len(dst) plaintext bytes of the open block.
func (o *StreamOpener) Decrypt(dst []byte) error {
	if len(dst) > len(o.remaining) {
		return errors.NewIntegrityFailureError("stream block exhausted mid row")
	}
	o.stream.XORKeyStream(dst, o.remaining[:len(dst)])
	o.remaining = o.remaining[len(dst):]
	return nil
}
