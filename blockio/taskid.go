// Package blockio converts between in-memory rows and the encrypted block
// containers exchanged with untrusted storage. Three framings are provided:
// grouped blocks (one cipher call per block), stream blocks (incremental
// cipher, tight working set) and individually encrypted rows (survive
// reordering by an external shuffle).
package blockio

import (
	"github.com/veildb/veil/errors"
	"github.com/veildb/veil/opcode"
)

// blockHeaderSize is the associated-data header bound to every block:
// [ciphertext_len u32][row_count u32][row_upper_bound u32][task_id u32].
const blockHeaderSize = 16

// TaskID derives the stable task identifier of one (opcode, partition)
// invocation. The composition is collision free by construction so the
// external verifier can correlate blocks to tasks across one execution DAG.
func TaskID(op opcode.OpCode, partition int) (uint32, error) {
	if op < 0 || int(op) > 0xffff {
		return 0, errors.NewUnknownOpcodeError(int(op))
	}
	if partition < 0 || partition > 0xffff {
		return 0, errors.Errorf("partition index %d out of range", partition)
	}
	return uint32(op)<<16 | uint32(partition), nil
}
