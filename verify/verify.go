// Package verify records which tasks' output blocks an invocation consumed.
// The provenance DAG that correlates these edges across invocations lives
// outside the enclave; the core only accumulates the parent task ids.
package verify

import (
	"github.com/google/btree"
)

// Recorder is an ordered set of parent task ids. Block readers report every
// task id they see to the recorder of their invocation. Not safe for
// concurrent use, matching the single-threaded execution model.
type Recorder struct {
	nodes *btree.BTree
}

func NewRecorder() *Recorder {
	return &Recorder{nodes: btree.New(8)}
}

// AddNode records a parent task id. Duplicates collapse.
func (r *Recorder) AddNode(taskID uint32) {
	r.nodes.ReplaceOrInsert(btree.Int(taskID))
}

// HasNode reports whether the task id was recorded.
func (r *Recorder) HasNode(taskID uint32) bool {
	return r.nodes.Has(btree.Int(taskID))
}

// Nodes returns the recorded task ids in ascending order.
func (r *Recorder) Nodes() []uint32 {
	out := make([]uint32, 0, r.nodes.Len())
	r.nodes.Ascend(func(item btree.Item) bool {
		out = append(out, uint32(item.(btree.Int)))
		return true
	})
	return out
}
