// Package sortnet sorts rows with Leighton's columnsort. Every run performs
// the same fixed sequence of column sorts and permutations for a given input
// size, so which rows compared less than which is the only data-dependent
// signal, and the 4-byte key prefixes keep most of those comparisons away
// from row contents entirely.
package sortnet

import (
	"sort"

	"github.com/cznic/mathutil"
	log "github.com/sirupsen/logrus"

	"github.com/veildb/veil/codec"
	"github.com/veildb/veil/errors"
	"github.com/veildb/veil/opcode"
)

// Shape is the r x s column grid one columnsort run operates on. Rows are
// laid out column major: column j occupies slots [j*R, (j+1)*R).
type Shape struct {
	R int
	S int
}

// Valid reports whether the shape satisfies the columnsort constraints for n
// input rows: R divisible by S, R at least 2*(S-1)^2, and R*S slots covering
// the input.
func (sh Shape) Valid(n int) bool {
	if sh.R <= 0 || sh.S <= 0 {
		return false
	}
	return sh.R%sh.S == 0 && sh.R >= 2*(sh.S-1)*(sh.S-1) && sh.R*sh.S >= n
}

// DeriveShape picks the widest valid shape for n rows, then the shortest R
// covering n with that width. Any valid shape produces identical sorted
// output, wider shapes just mean shorter column sorts.
func DeriveShape(n int) Shape {
	if n <= 1 {
		return Shape{R: mathutil.Max(n, 1), S: 1}
	}
	s := 1
	for 2*s*s*s*(s+1) <= n {
		s++
	}
	minR := mathutil.Max((n+s-1)/s, 2*(s-1)*(s-1))
	step := s
	if step%2 != 0 {
		// keep R even so the half shift splits columns exactly
		step *= 2
	}
	r := ((minR + step - 1) / step) * step
	return Shape{R: r, S: s}
}

// Sorter sorts row slices for one opcode's sort column. It is not safe for
// concurrent use; the deep comparison counter is per sorter.
type Sorter struct {
	op              opcode.OpCode
	deepComparisons uint64
}

func NewSorter(op opcode.OpCode) *Sorter {
	return &Sorter{op: op}
}

// DeepComparisons returns how many comparisons had to look past the key
// prefix since the sorter was created.
func (s *Sorter) DeepComparisons() uint64 {
	return s.deepComparisons
}

// Sort sorts rows for the sorter's opcode and returns the sorted slice.
// Dummy rows order after every real row, and the padding added to fill the
// grid is stripped again before returning.
func (s *Sorter) Sort(rows []*codec.Row) ([]*codec.Row, error) {
	return s.SortWithShape(rows, DeriveShape(len(rows)))
}

// SortWithShape sorts rows using an explicit grid shape.
func (s *Sorter) SortWithShape(rows []*codec.Row, shape Shape) ([]*codec.Row, error) {
	n := len(rows)
	if n <= 1 {
		return rows, nil
	}
	if !shape.Valid(n) {
		return nil, errors.Errorf("shape %dx%d is not valid for %d rows", shape.R, shape.S, n)
	}
	slots := shape.R * shape.S
	ptrs := make([]codec.SortPointer, slots)
	for i, row := range rows {
		ptrs[i].Init(row)
		if err := ptrs[i].RefreshPrefix(s.op); err != nil {
			return nil, err
		}
	}
	for i := n; i < slots; i++ {
		pad := codec.NewRow(rows[0].RowUpperBound())
		if err := pad.Set(rows[0]); err != nil {
			return nil, err
		}
		pad.MarkDummy()
		ptrs[i].Init(pad)
		if err := ptrs[i].RefreshPrefix(s.op); err != nil {
			return nil, err
		}
	}
	if err := s.columnsort(ptrs, shape); err != nil {
		return nil, err
	}
	out := rows[:0]
	for i := 0; i < n; i++ {
		out = append(out, ptrs[i].Row())
	}
	log.Debugf("columnsort: n=%d shape=%dx%d deep_comparisons=%d", n, shape.R, shape.S, s.deepComparisons)
	return out, nil
}

// columnsort runs the fixed round sequence: sort columns, transpose, sort,
// untranspose, sort, then sort the R/2-shifted straddle windows. The shift
// and unshift of the final round reduce to sorting each window that spans
// the bottom half of one column and the top half of the next.
func (s *Sorter) columnsort(ptrs []codec.SortPointer, shape Shape) error {
	r, cols := shape.R, shape.S
	if cols == 1 {
		return s.sortSegment(ptrs)
	}
	if err := s.sortColumns(ptrs, r); err != nil {
		return err
	}
	transpose(ptrs, r, cols)
	if err := s.sortColumns(ptrs, r); err != nil {
		return err
	}
	untranspose(ptrs, r, cols)
	if err := s.sortColumns(ptrs, r); err != nil {
		return err
	}
	half := r / 2
	for j := 0; j < cols-1; j++ {
		if err := s.sortSegment(ptrs[j*r+half : (j+1)*r+half]); err != nil {
			return err
		}
	}
	return nil
}

func (s *Sorter) sortColumns(ptrs []codec.SortPointer, r int) error {
	for off := 0; off < len(ptrs); off += r {
		if err := s.sortSegment(ptrs[off : off+r]); err != nil {
			return err
		}
	}
	return nil
}

func (s *Sorter) sortSegment(seg []codec.SortPointer) error {
	var err error
	sort.SliceStable(seg, func(i, j int) bool {
		if err != nil {
			return false
		}
		less, errCmp := seg[i].LessThan(&seg[j], s.op, &s.deepComparisons)
		if errCmp != nil {
			err = errCmp
			return false
		}
		return less
	})
	return err
}

// transpose reshapes the column major grid by reading it column by column
// and writing it row by row, so each new column holds every s-th entry of
// the old column order.
func transpose(ptrs []codec.SortPointer, r, cols int) {
	scratch := make([]codec.SortPointer, len(ptrs))
	copy(scratch, ptrs)
	for k := range scratch {
		ptrs[(k%cols)*r+k/cols] = scratch[k]
	}
}

// untranspose is the inverse permutation of transpose.
func untranspose(ptrs []codec.SortPointer, r, cols int) {
	scratch := make([]codec.SortPointer, len(ptrs))
	copy(scratch, ptrs)
	for k := range scratch {
		ptrs[k] = scratch[(k%cols)*r+k/cols]
	}
}
