package agg

import (
	"github.com/veildb/veil/codec"
	"github.com/veildb/veil/conf"
	"github.com/veildb/veil/errors"
	"github.com/veildb/veil/opcode"
	"github.com/veildb/veil/security"
)

// Aggregator folds a sorted row stream into per-group state for one group-by
// opcode. numDistinct counts the groups opened so far in this partition and
// offset is assigned by the coordinator when partial results from all
// partitions are lined up for the second pass.
type Aggregator struct {
	op          opcode.OpCode
	key         *GroupKey
	specs       []opcode.AggSpec
	accs        []accumulator
	numDistinct uint32
	offset      uint32
	scratch     *codec.Row
}

// NewAggregator builds the aggregator an opcode describes. Returns
// UnknownOpcode for anything that is not a group-by opcode.
func NewAggregator(op opcode.OpCode, cfg *conf.Config) (*Aggregator, error) {
	cols, err := opcode.GroupingColumns(op)
	if err != nil {
		return nil, err
	}
	specs, err := opcode.Aggregates(op)
	if err != nil {
		return nil, err
	}
	accs := make([]accumulator, len(specs))
	for i, spec := range specs {
		switch spec.Func {
		case opcode.AggAvg:
			accs[i] = &avgAccumulator{}
		default:
			accs[i] = &sumAccumulator{}
		}
	}
	return &Aggregator{
		op:      op,
		key:     NewGroupKey(cfg.RowUpperBound, cols),
		specs:   specs,
		accs:    accs,
		scratch: codec.NewRow(cfg.AggUpperBound),
	}, nil
}

// Aggregate folds row into the open group, implicitly closing the prior
// group and starting a new one when the grouping columns change. Dummy rows
// are ignored.
func (a *Aggregator) Aggregate(row *codec.Row) error {
	if row.IsDummy() {
		return nil
	}
	same, err := a.key.Equals(row)
	if err != nil {
		return err
	}
	if !same {
		if err := a.key.Set(row); err != nil {
			return err
		}
		for _, acc := range a.accs {
			acc.Reset()
		}
		a.numDistinct++
	}
	for i, spec := range a.specs {
		if err := a.accs[i].Aggregate(row, spec.Column); err != nil {
			return err
		}
	}
	return nil
}

// Combine merges another aggregator's open group into this one. The groups
// must match; combining across different groups is a coordinator bug and is
// fatal.
func (a *Aggregator) Combine(other *Aggregator) error {
	if !other.key.IsSet() {
		return nil
	}
	if !a.key.IsSet() {
		if err := a.key.SetFrom(other.key.row, other.key.keyIdx); err != nil {
			return err
		}
		for _, acc := range a.accs {
			acc.Reset()
		}
	} else {
		same, err := a.key.equalsKey(other.key)
		if err != nil {
			return err
		}
		if !same {
			return errors.NewAggregatorGroupMismatchError()
		}
	}
	for i, acc := range a.accs {
		if err := acc.Merge(other.accs[i]); err != nil {
			return err
		}
	}
	return nil
}

// AppendResult writes the open group's key and final aggregate values into
// rec. With dummy set the record carries the same shape but is marked dummy
// throughout, so result streams keep a data independent length.
func (a *Aggregator) AppendResult(rec *codec.Row, dummy bool) error {
	rec.Clear()
	if err := a.key.AppendTo(rec); err != nil {
		return err
	}
	for _, acc := range a.accs {
		if err := acc.AppendResult(rec, dummy); err != nil {
			return err
		}
	}
	if dummy {
		rec.MarkDummy()
	}
	return nil
}

// GroupOpen reports whether any group has been started.
func (a *Aggregator) GroupOpen() bool {
	return a.key.IsSet()
}

// SameGroup reports whether row belongs to the open group. Callers that need
// the final value of every group emit the open group's result before feeding
// a row that opens a new one.
func (a *Aggregator) SameGroup(row *codec.Row) (bool, error) {
	return a.key.Equals(row)
}

func (a *Aggregator) NumDistinct() uint32 {
	return a.numDistinct
}

func (a *Aggregator) SetOffset(offset uint32) {
	a.offset = offset
}

func (a *Aggregator) Offset() uint32 {
	return a.offset
}

// serialize lays the full partial state out as one row:
// [numDistinct][offset][key attributes][accumulator partials].
func (a *Aggregator) serialize() (*codec.Row, error) {
	a.scratch.Clear()
	if err := a.scratch.AddInt32(int32(a.numDistinct), false); err != nil {
		return nil, err
	}
	if err := a.scratch.AddInt32(int32(a.offset), false); err != nil {
		return nil, err
	}
	if err := a.key.AppendTo(a.scratch); err != nil {
		return nil, err
	}
	for _, acc := range a.accs {
		if err := acc.AppendPartial(a.scratch, false); err != nil {
			return nil, err
		}
	}
	return a.scratch, nil
}

func (a *Aggregator) deserialize(row *codec.Row) error {
	cols := a.key.cols
	wantAttrs := 2 + len(cols)
	for _, acc := range a.accs {
		switch acc.(type) {
		case *avgAccumulator:
			wantAttrs += 2
		default:
			wantAttrs++
		}
	}
	if row.NumAttrs() != wantAttrs {
		return errors.NewIntegrityFailureError("aggregator partial has the wrong shape")
	}
	numDistinct, err := row.Int32Attr(1)
	if err != nil {
		return err
	}
	offset, err := row.Int32Attr(2)
	if err != nil {
		return err
	}
	a.numDistinct = uint32(numDistinct)
	a.offset = uint32(offset)
	srcIdx := make([]int, len(cols))
	for i := range srcIdx {
		srcIdx[i] = 2 + i + 1
	}
	if err := a.key.SetFrom(row, srcIdx); err != nil {
		return err
	}
	idx := 2 + len(cols) + 1
	for _, acc := range a.accs {
		next, err := acc.ReadPartial(row, idx)
		if err != nil {
			return err
		}
		idx = next
	}
	return nil
}

// WriteEncrypted frames the sealed partial state as [enc_len u32][sealed].
func (a *Aggregator) WriteEncrypted(buff []byte, enc *security.Encryptor) ([]byte, error) {
	row, err := a.serialize()
	if err != nil {
		return nil, err
	}
	return row.WriteEncrypted(buff, enc)
}

// ReadEncrypted restores the partial state from a frame written by
// WriteEncrypted and returns the offset past the frame.
func (a *Aggregator) ReadEncrypted(buffer []byte, offset int, enc *security.Encryptor) (int, error) {
	a.scratch.Clear()
	next, err := a.scratch.ReadEncrypted(buffer, offset, enc)
	if err != nil {
		return 0, err
	}
	if err := a.deserialize(a.scratch); err != nil {
		return 0, err
	}
	return next, nil
}
