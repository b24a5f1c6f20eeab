package agg

import (
	"github.com/veildb/veil/codec"
	"github.com/veildb/veil/errors"
)

// accumulator is the per-column aggregation state. Partial state serializes
// as plaintext attributes so it can ride inside an encrypted partial row and
// so accumulators from different partitions can merge.
type accumulator interface {
	// Aggregate folds the attribute at col of row into the state.
	Aggregate(row *codec.Row, col int) error
	// Merge folds another accumulator of the same kind into the state.
	Merge(other accumulator) error
	// Reset clears the state for a new group.
	Reset()
	// AppendPartial appends the serialized state to rec.
	AppendPartial(rec *codec.Row, dummy bool) error
	// ReadPartial restores the state from rec's attributes starting at idx
	// and returns the index past the consumed attributes.
	ReadPartial(rec *codec.Row, idx int) (int, error)
	// AppendResult appends the final aggregate value to rec.
	AppendResult(rec *codec.Row, dummy bool) error
}

// sumAccumulator sums in the column's native type, inheriting native
// overflow semantics.
type sumAccumulator struct {
	typ      codec.AttrType
	sumInt   int32
	sumFloat float32
}

func (a *sumAccumulator) Reset() {
	a.typ = 0
	a.sumInt = 0
	a.sumFloat = 0
}

func (a *sumAccumulator) aggregateTyped(typ codec.AttrType, i int32, f float32) error {
	base := typ.Base()
	if a.typ == 0 {
		a.typ = base
	} else if a.typ != base {
		return errors.NewSchemaMismatchError("aggregated column changed type mid stream")
	}
	switch base {
	case codec.TypeInt:
		a.sumInt += i
	case codec.TypeFloat:
		a.sumFloat += f
	default:
		return errors.NewSchemaMismatchError("sum over a non numeric column")
	}
	return nil
}

func (a *sumAccumulator) Aggregate(row *codec.Row, col int) error {
	typ, i, f, err := numericAttr(row, col)
	if err != nil {
		return err
	}
	return a.aggregateTyped(typ, i, f)
}

func (a *sumAccumulator) Merge(other accumulator) error {
	o, ok := other.(*sumAccumulator)
	if !ok {
		return errors.NewInternalError("merge of mismatched accumulator kinds")
	}
	if o.typ == 0 {
		return nil
	}
	return a.aggregateTyped(o.typ, o.sumInt, o.sumFloat)
}

func (a *sumAccumulator) AppendPartial(rec *codec.Row, dummy bool) error {
	return appendNumeric(rec, a.typ, a.sumInt, a.sumFloat, dummy)
}

func (a *sumAccumulator) ReadPartial(rec *codec.Row, idx int) (int, error) {
	typ, i, f, err := numericAttr(rec, idx)
	if err != nil {
		return 0, err
	}
	a.typ = typ.Base()
	a.sumInt = i
	a.sumFloat = f
	return idx + 1, nil
}

func (a *sumAccumulator) AppendResult(rec *codec.Row, dummy bool) error {
	return a.AppendPartial(rec, dummy)
}

// avgAccumulator carries (sum, count) and divides only at emission, keeping
// the partial state exact under merging.
type avgAccumulator struct {
	sum   sumAccumulator
	count int32
}

func (a *avgAccumulator) Reset() {
	a.sum.Reset()
	a.count = 0
}

func (a *avgAccumulator) Aggregate(row *codec.Row, col int) error {
	if err := a.sum.Aggregate(row, col); err != nil {
		return err
	}
	a.count++
	return nil
}

func (a *avgAccumulator) Merge(other accumulator) error {
	o, ok := other.(*avgAccumulator)
	if !ok {
		return errors.NewInternalError("merge of mismatched accumulator kinds")
	}
	if err := a.sum.Merge(&o.sum); err != nil {
		return err
	}
	a.count += o.count
	return nil
}

func (a *avgAccumulator) AppendPartial(rec *codec.Row, dummy bool) error {
	if err := a.sum.AppendPartial(rec, dummy); err != nil {
		return err
	}
	return rec.AddInt32(a.count, dummy)
}

func (a *avgAccumulator) ReadPartial(rec *codec.Row, idx int) (int, error) {
	next, err := a.sum.ReadPartial(rec, idx)
	if err != nil {
		return 0, err
	}
	count, err := rec.Int32Attr(next)
	if err != nil {
		return 0, err
	}
	a.count = count
	return next + 1, nil
}

// AppendResult emits the mean in the column's native type, so an integer
// column averages with integer division.
func (a *avgAccumulator) AppendResult(rec *codec.Row, dummy bool) error {
	var i int32
	var f float32
	if a.count > 0 {
		i = a.sum.sumInt / a.count
		f = a.sum.sumFloat / float32(a.count)
	}
	return appendNumeric(rec, a.sum.typ, i, f, dummy)
}

func numericAttr(row *codec.Row, col int) (codec.AttrType, int32, float32, error) {
	typ, err := row.AttrType(col)
	if err != nil {
		return 0, 0, 0, err
	}
	switch typ.Base() {
	case codec.TypeInt:
		v, err := row.Int32Attr(col)
		if err != nil {
			return 0, 0, 0, err
		}
		return typ, v, 0, nil
	case codec.TypeFloat:
		v, err := row.Float32Attr(col)
		if err != nil {
			return 0, 0, 0, err
		}
		return typ, 0, v, nil
	default:
		return 0, 0, 0, errors.NewSchemaMismatchError("aggregate over a non numeric column")
	}
}

func appendNumeric(rec *codec.Row, typ codec.AttrType, i int32, f float32, dummy bool) error {
	switch typ.Base() {
	case codec.TypeFloat:
		return rec.AddFloat32(f, dummy)
	default:
		// an accumulator that never saw a row emits an integer zero
		return rec.AddInt32(i, dummy)
	}
}
