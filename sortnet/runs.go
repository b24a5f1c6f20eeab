package sortnet

import (
	"github.com/veildb/veil/blockio"
	"github.com/veildb/veil/codec"
	"github.com/veildb/veil/conf"
	"github.com/veildb/veil/security"
	"github.com/veildb/veil/verify"
	"github.com/veildb/veil/wire"
)

// SortRuns merges the sorted runs of several partitions into one globally
// sorted output. The runs are decoded in full and pushed through a single
// columnsort rather than merged pairwise, so the pass structure does not
// depend on how presorted the runs already were.
func (s *Sorter) SortRuns(enc *security.Encryptor, runs wire.SortedRuns, cfg *conf.Config,
	taskID uint32, rec *verify.Recorder) (wire.EncryptedBlocks, error) {
	var rows []*codec.Row
	for _, run := range runs.Runs {
		reader := blockio.NewRowReader(enc, run, cfg, rec)
		for reader.HasNext() {
			row := codec.NewRow(cfg.RowUpperBound)
			if err := reader.Read(row); err != nil {
				return wire.EncryptedBlocks{}, err
			}
			rows = append(rows, row)
		}
	}
	sorted, err := s.Sort(rows)
	if err != nil {
		return wire.EncryptedBlocks{}, err
	}
	writer := blockio.NewRowWriter(enc, cfg, taskID)
	for _, row := range sorted {
		if err := writer.WriteRow(row); err != nil {
			return wire.EncryptedBlocks{}, err
		}
	}
	return writer.Close()
}
