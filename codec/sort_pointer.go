package codec

import (
	"github.com/veildb/veil/opcode"
)

// SortPointer pairs a row reference with a cached 4-byte key prefix so the
// sort network can decide most comparisons without touching full attribute
// bytes. It never owns row storage; the prefix is invalidated whenever the
// underlying row is overwritten by a subsequent read.
type SortPointer struct {
	rec       *Row
	keyPrefix uint32
}

// Init points the sort pointer at a row. The prefix is not computed until the
// next Read or SetPrefix.
func (p *SortPointer) Init(rec *Row) {
	p.rec = rec
}

// IsValid reports whether the pointer references a row.
func (p *SortPointer) IsValid() bool {
	return p.rec != nil
}

// Row returns the referenced row.
func (p *SortPointer) Row() *Row {
	return p.rec
}

// Read reads the next plaintext row into the referenced row and refreshes the
// key prefix for the opcode's comparator.
func (p *SortPointer) Read(buffer []byte, offset int, op opcode.OpCode) (int, error) {
	off, err := p.rec.Read(buffer, offset)
	if err != nil {
		return 0, err
	}
	p.keyPrefix, err = p.rec.KeyPrefix(op)
	if err != nil {
		return 0, err
	}
	return off, nil
}

// RefreshPrefix recomputes the key prefix after the referenced row changed.
func (p *SortPointer) RefreshPrefix(op opcode.OpCode) error {
	prefix, err := p.rec.KeyPrefix(op)
	if err != nil {
		return err
	}
	p.keyPrefix = prefix
	return nil
}

// Set copies other's row contents and prefix into this pointer's row.
func (p *SortPointer) Set(other *SortPointer) error {
	if err := p.rec.Set(other.rec); err != nil {
		return err
	}
	p.keyPrefix = other.keyPrefix
	return nil
}

// LessThan orders two pointers, consulting the full comparator only when the
// prefixes tie. deepComparisons, when non-nil, counts those fallbacks.
func (p *SortPointer) LessThan(other *SortPointer, op opcode.OpCode, deepComparisons *uint64) (bool, error) {
	if p.keyPrefix < other.keyPrefix {
		return true, nil
	}
	if p.keyPrefix > other.keyPrefix {
		return false, nil
	}
	if deepComparisons != nil {
		*deepComparisons++
	}
	return p.rec.LessThan(other.rec, op)
}
