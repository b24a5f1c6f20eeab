// Package opcode defines the externally stable operator enum shared with the
// untrusted query planner. The integer values are part of the wire contract
// and must never be renumbered.
package opcode

import (
	"github.com/veildb/veil/errors"
)

type OpCode int

const (
	GroupByCol2SumCol3Step1        OpCode = 1
	SortCol1                       OpCode = 2
	JoinCol2                       OpCode = 3
	BD2                            OpCode = 10
	BD1                            OpCode = 11
	FilterCol2Gt3                  OpCode = 30
	FilterCol4NotDummy             OpCode = 32
	FilterCol3NotDummy             OpCode = 33
	FilterCol1DateBetween1980Q1    OpCode = 34
	ProjectPagerankWeightRank      OpCode = 35
	ProjectPagerankApplyIncoming   OpCode = 36
	JoinPagerank                   OpCode = 37
	SortCol2                       OpCode = 50
	SortCol4IsDummyCol2            OpCode = 51
	SortCol3IsDummyCol1            OpCode = 52
	SortIntegersTest               OpCode = 90
	FilterTest                     OpCode = 91
	GroupByCol2SumCol3Step2        OpCode = 101
	GroupByCol1SumCol2Step1        OpCode = 102
	GroupByCol1SumCol2Step2        OpCode = 103
	GroupByCol1AvgCol2SumCol3Step1 OpCode = 104
	GroupByCol1AvgCol2SumCol3Step2 OpCode = 105
	JoinCol1                       OpCode = 106
)

// AggFunc selects the accumulator kind for one aggregated column.
type AggFunc int

const (
	AggSum AggFunc = iota
	AggAvg
)

// AggSpec pairs an aggregate function with the 1-indexed column it consumes.
type AggSpec struct {
	Func   AggFunc
	Column int
}

// SortColumn returns the 1-indexed column the opcode's comparator orders by.
func SortColumn(op OpCode) (int, error) {
	switch op {
	case SortCol1, SortIntegersTest:
		return 1, nil
	case SortCol2:
		return 2, nil
	case SortCol3IsDummyCol1:
		return 3, nil
	case SortCol4IsDummyCol2:
		return 4, nil
	case GroupByCol2SumCol3Step1, GroupByCol2SumCol3Step2:
		return 2, nil
	case GroupByCol1SumCol2Step1, GroupByCol1SumCol2Step2,
		GroupByCol1AvgCol2SumCol3Step1, GroupByCol1AvgCol2SumCol3Step2:
		return 1, nil
	default:
		return 0, errors.NewUnknownOpcodeError(int(op))
	}
}

// IsJoin returns true if the opcode selects a join operator.
func IsJoin(op OpCode) bool {
	return op == JoinCol1 || op == JoinCol2 || op == JoinPagerank
}

// JoinAttrIdx returns the 1-indexed primary or foreign join attribute index
// associated with the opcode, if the opcode represents a one-column equijoin.
// For any other kind of join it returns 0.
func JoinAttrIdx(op OpCode, isPrimary bool) int {
	switch op {
	case JoinCol1:
		return 1
	case JoinCol2:
		return 2
	default:
		return 0
	}
}

// GroupingColumns returns the 1-indexed grouping columns of a group-by opcode.
func GroupingColumns(op OpCode) ([]int, error) {
	switch op {
	case GroupByCol2SumCol3Step1, GroupByCol2SumCol3Step2:
		return []int{2}, nil
	case GroupByCol1SumCol2Step1, GroupByCol1SumCol2Step2,
		GroupByCol1AvgCol2SumCol3Step1, GroupByCol1AvgCol2SumCol3Step2:
		return []int{1}, nil
	default:
		return nil, errors.NewUnknownOpcodeError(int(op))
	}
}

// Aggregates returns the accumulator specs of a group-by opcode, in output
// order.
func Aggregates(op OpCode) ([]AggSpec, error) {
	switch op {
	case GroupByCol2SumCol3Step1, GroupByCol2SumCol3Step2:
		return []AggSpec{{Func: AggSum, Column: 3}}, nil
	case GroupByCol1SumCol2Step1, GroupByCol1SumCol2Step2:
		return []AggSpec{{Func: AggSum, Column: 2}}, nil
	case GroupByCol1AvgCol2SumCol3Step1, GroupByCol1AvgCol2SumCol3Step2:
		return []AggSpec{{Func: AggAvg, Column: 2}, {Func: AggSum, Column: 3}}, nil
	default:
		return nil, errors.NewUnknownOpcodeError(int(op))
	}
}

// IsFilter returns true if the opcode selects a filter operator.
func IsFilter(op OpCode) bool {
	switch op {
	case FilterCol2Gt3, FilterCol3NotDummy, FilterCol4NotDummy, FilterTest:
		return true
	}
	return false
}
