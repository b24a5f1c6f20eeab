// Package agg implements mergeable group-by aggregation. An aggregator folds
// the rows of one sorted partition into per-group accumulator state, the
// state round trips through encrypted partial rows, and partials from
// neighbouring partitions combine without reprocessing their inputs.
package agg

import (
	"github.com/veildb/veil/codec"
)

// GroupKey snapshots the grouping columns of the most recent row so later
// rows can be compared against the open group without holding a pointer into
// the input stream. cols are the grouping positions in incoming rows, keyIdx
// the positions of the same attributes inside the snapshot. A full-row
// snapshot keeps them identical; a snapshot restored from a serialized
// partial is compact and rebases keyIdx to 1..len(cols).
type GroupKey struct {
	row    *codec.Row
	cols   []int
	keyIdx []int
	set    bool
}

func NewGroupKey(rowUpperBound int, cols []int) *GroupKey {
	return &GroupKey{row: codec.NewRow(rowUpperBound), cols: cols, keyIdx: cols}
}

func (k *GroupKey) IsSet() bool {
	return k.set
}

// Set snapshots row as the open group.
func (k *GroupKey) Set(row *codec.Row) error {
	if err := k.row.Set(row); err != nil {
		return err
	}
	k.keyIdx = k.cols
	k.set = true
	return nil
}

// SetFrom snapshots only the grouping attributes of src, reading them at the
// given positions.
func (k *GroupKey) SetFrom(src *codec.Row, srcIdx []int) error {
	k.row.Clear()
	for _, idx := range srcIdx {
		if err := k.row.AddAttrFrom(src, idx); err != nil {
			return err
		}
	}
	k.keyIdx = make([]int, len(k.cols))
	for i := range k.keyIdx {
		k.keyIdx[i] = i + 1
	}
	k.set = true
	return nil
}

// Equals reports whether row belongs to the open group. Dummy rows never
// equal anything, an unset key equals nothing.
func (k *GroupKey) Equals(row *codec.Row) (bool, error) {
	if !k.set || k.row.IsDummy() || row.IsDummy() {
		return false, nil
	}
	for i, col := range k.cols {
		eq, err := k.row.AttrsEqual(row, k.keyIdx[i], col)
		if err != nil {
			return false, err
		}
		if !eq {
			return false, nil
		}
	}
	return true, nil
}

// equalsKey compares two snapshots attribute by attribute.
func (k *GroupKey) equalsKey(other *GroupKey) (bool, error) {
	if !k.set || !other.set || k.row.IsDummy() || other.row.IsDummy() {
		return false, nil
	}
	for i := range k.cols {
		eq, err := k.row.AttrsEqual(other.row, k.keyIdx[i], other.keyIdx[i])
		if err != nil {
			return false, err
		}
		if !eq {
			return false, nil
		}
	}
	return true, nil
}

// AppendTo appends the grouping attributes to rec.
func (k *GroupKey) AppendTo(rec *codec.Row) error {
	for _, idx := range k.keyIdx {
		if err := rec.AddAttrFrom(k.row, idx); err != nil {
			return err
		}
	}
	return nil
}
