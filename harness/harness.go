// Package harness drives the record processing core from the command line
// for local testing: CSV in, one operator round trip through encrypted
// blocks with a locally generated key, CSV out.
package harness

import (
	"encoding/csv"
	"os"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/veildb/veil/agg"
	"github.com/veildb/veil/blockio"
	"github.com/veildb/veil/codec"
	"github.com/veildb/veil/conf"
	"github.com/veildb/veil/errors"
	"github.com/veildb/veil/join"
	"github.com/veildb/veil/metrics"
	"github.com/veildb/veil/opcode"
	"github.com/veildb/veil/security"
	"github.com/veildb/veil/sortnet"
	"github.com/veildb/veil/verify"
	"github.com/veildb/veil/wire"
)

// Config selects the input files, the operator and the column schema.
type Config struct {
	In        string `help:"Input CSV file" type:"existingfile" optional:""`
	ForeignIn string `help:"Foreign table CSV file, joins only" type:"existingfile" optional:""`
	Out       string `help:"Output CSV file" required:""`
	Op        int    `help:"Operator opcode" required:""`
	Schema    string `help:"Comma separated column types, e.g. int,int,float" required:""`
}

func (c *Config) Validate() error {
	if c.In == "" {
		return errors.NewInvalidConfigurationError("an input file is required")
	}
	op := opcode.OpCode(c.Op)
	if opcode.IsJoin(op) && c.ForeignIn == "" {
		return errors.NewInvalidConfigurationError("joins require a foreign input file")
	}
	if _, err := parseSchema(c.Schema); err != nil {
		return err
	}
	return nil
}

type Harness struct {
	cfg          Config
	core         *conf.Config
	enc          *security.Encryptor
	factory      metrics.Factory
	rowsIn       metrics.Counter
	rowsOut      metrics.Counter
	rowsSorted   metrics.Counter
	deepCompares metrics.Counter
	blocksSealed metrics.Counter
	blocksOpened metrics.Counter
}

func NewHarness(cfg Config, core *conf.Config, factory metrics.Factory) (*Harness, error) {
	if err := core.Validate(); err != nil {
		return nil, err
	}
	key, err := security.GenerateKey()
	if err != nil {
		return nil, err
	}
	enc, err := security.NewEncryptor(key)
	if err != nil {
		return nil, err
	}
	h := &Harness{cfg: cfg, core: core, enc: enc, factory: factory}
	if factory != nil {
		if h.rowsIn, err = factory.CreateCounter("veil_rows_in", "rows read from input files"); err != nil {
			return nil, err
		}
		if h.rowsOut, err = factory.CreateCounter("veil_rows_out", "rows written to the output file"); err != nil {
			return nil, err
		}
		if h.rowsSorted, err = factory.CreateCounter("veil_rows_sorted", "rows pushed through columnsort"); err != nil {
			return nil, err
		}
		if h.deepCompares, err = factory.CreateCounter("veil_deep_comparisons", "sort comparisons that fell through the key prefix"); err != nil {
			return nil, err
		}
		if h.blocksSealed, err = factory.CreateCounter("veil_blocks_sealed", "encrypted blocks produced"); err != nil {
			return nil, err
		}
		if h.blocksOpened, err = factory.CreateCounter("veil_blocks_opened", "encrypted blocks opened and verified"); err != nil {
			return nil, err
		}
	}
	return h, nil
}

func (h *Harness) countSealed(blocks wire.EncryptedBlocks) {
	if h.blocksSealed != nil {
		h.blocksSealed.Add(float64(len(blocks.Blocks)))
	}
}

func (h *Harness) countOpened(blocks wire.EncryptedBlocks) {
	if h.blocksOpened != nil {
		h.blocksOpened.Add(float64(len(blocks.Blocks)))
	}
}

func (h *Harness) countSort(sorter *sortnet.Sorter, n int) {
	if h.rowsSorted != nil {
		h.rowsSorted.Add(float64(n))
	}
	if h.deepCompares != nil {
		h.deepCompares.Add(float64(sorter.DeepComparisons()))
	}
}

// Run executes one operator round trip and writes the result.
func (h *Harness) Run() error {
	op := opcode.OpCode(h.cfg.Op)
	schema, err := parseSchema(h.cfg.Schema)
	if err != nil {
		return err
	}
	rows, err := h.readCSV(h.cfg.In, schema)
	if err != nil {
		return err
	}
	var out []*codec.Row
	switch {
	case opcode.IsJoin(op):
		out, err = h.runJoin(op, rows, schema)
	case opcode.IsFilter(op):
		out, err = h.runFilter(op, rows)
	case isGroupBy(op):
		out, err = h.runGroupBy(op, rows)
	default:
		out, err = h.runSort(op, rows)
	}
	if err != nil {
		return err
	}
	return h.writeCSV(h.cfg.Out, out)
}

func isGroupBy(op opcode.OpCode) bool {
	_, err := opcode.GroupingColumns(op)
	return err == nil
}

// runSort pushes the rows through encrypted blocks and a single columnsort,
// exercising the same path a distributed sort stage takes.
func (h *Harness) runSort(op opcode.OpCode, rows []*codec.Row) ([]*codec.Row, error) {
	taskIn, err := blockio.TaskID(op, 0)
	if err != nil {
		return nil, err
	}
	writer := blockio.NewRowWriter(h.enc, h.core, taskIn)
	for _, row := range rows {
		if err := writer.WriteRow(row); err != nil {
			return nil, err
		}
	}
	blocks, err := writer.Close()
	if err != nil {
		return nil, err
	}
	h.countSealed(blocks)
	taskOut, err := blockio.TaskID(op, 1)
	if err != nil {
		return nil, err
	}
	rec := verify.NewRecorder()
	sorter := sortnet.NewSorter(op)
	sorted, err := sorter.SortRuns(h.enc, wire.SortedRuns{Runs: []wire.EncryptedBlocks{blocks}},
		h.core, taskOut, rec)
	if err != nil {
		return nil, err
	}
	h.countSort(sorter, len(rows))
	h.countSealed(sorted)
	log.Debugf("sort round trip touched tasks %v", rec.Nodes())
	return h.decryptAll(sorted, rec)
}

func (h *Harness) runFilter(op opcode.OpCode, rows []*codec.Row) ([]*codec.Row, error) {
	var out []*codec.Row
	for _, row := range rows {
		keep, err := codec.FilterKeep(op, row)
		if err != nil {
			return nil, err
		}
		if keep {
			out = append(out, row)
		}
	}
	return out, nil
}

func (h *Harness) runGroupBy(op opcode.OpCode, rows []*codec.Row) ([]*codec.Row, error) {
	sorter := sortnet.NewSorter(op)
	sorted, err := sorter.Sort(rows)
	if err != nil {
		return nil, err
	}
	h.countSort(sorter, len(rows))
	aggregator, err := agg.NewAggregator(op, h.core)
	if err != nil {
		return nil, err
	}
	var out []*codec.Row
	emit := func() error {
		rec := codec.NewRow(h.core.RowUpperBound)
		if err := aggregator.AppendResult(rec, false); err != nil {
			return err
		}
		out = append(out, rec)
		return nil
	}
	for _, row := range sorted {
		if row.IsDummy() {
			continue
		}
		same, err := aggregator.SameGroup(row)
		if err != nil {
			return nil, err
		}
		if aggregator.GroupOpen() && !same {
			if err := emit(); err != nil {
				return nil, err
			}
		}
		if err := aggregator.Aggregate(row); err != nil {
			return nil, err
		}
	}
	if aggregator.GroupOpen() {
		if err := emit(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (h *Harness) runJoin(op opcode.OpCode, primary []*codec.Row, schema codec.Schema) ([]*codec.Row, error) {
	foreign, err := h.readCSV(h.cfg.ForeignIn, schema)
	if err != nil {
		return nil, err
	}
	tagged, err := join.TagRows(primary, foreign, h.core.RowUpperBound)
	if err != nil {
		return nil, err
	}
	sorter := sortnet.NewSorter(op)
	sorted, err := sorter.Sort(tagged)
	if err != nil {
		return nil, err
	}
	h.countSort(sorter, len(tagged))
	taskIn, err := blockio.TaskID(op, 0)
	if err != nil {
		return nil, err
	}
	writer := blockio.NewRowWriter(h.enc, h.core, taskIn)
	for _, row := range sorted {
		if err := writer.WriteRow(row); err != nil {
			return nil, err
		}
	}
	blocks, err := writer.Close()
	if err != nil {
		return nil, err
	}
	h.countSealed(blocks)
	taskOut, err := blockio.TaskID(op, 1)
	if err != nil {
		return nil, err
	}
	rec := verify.NewRecorder()
	joined, err := join.SortMergeJoin(h.enc, blocks, h.core, op, taskOut, rec)
	if err != nil {
		return nil, err
	}
	h.countSealed(joined)
	out, err := h.decryptAll(joined, rec)
	if err != nil {
		return nil, err
	}
	// strip the neutralized non matches before writing plaintext output
	kept := out[:0]
	for _, row := range out {
		if !row.IsDummy() {
			kept = append(kept, row)
		}
	}
	return kept, nil
}

func (h *Harness) decryptAll(blocks wire.EncryptedBlocks, rec *verify.Recorder) ([]*codec.Row, error) {
	h.countOpened(blocks)
	reader := blockio.NewRowReader(h.enc, blocks, h.core, rec)
	var rows []*codec.Row
	for reader.HasNext() {
		row := codec.NewRow(h.core.RowUpperBound)
		if err := reader.Read(row); err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func parseSchema(s string) (codec.Schema, error) {
	parts := strings.Split(s, ",")
	schema := make(codec.Schema, 0, len(parts))
	for _, part := range parts {
		switch strings.TrimSpace(part) {
		case "int":
			schema = append(schema, codec.TypeInt)
		case "float":
			schema = append(schema, codec.TypeFloat)
		case "string":
			schema = append(schema, codec.TypeString)
		default:
			return nil, errors.NewInvalidConfigurationError("unknown column type " + part)
		}
	}
	return schema, nil
}

func (h *Harness) readCSV(path string, schema codec.Schema) ([]*codec.Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, errors.WithStack(err)
	}
	rows := make([]*codec.Row, 0, len(records))
	for _, record := range records {
		if len(record) != len(schema) {
			return nil, errors.NewSchemaMismatchError("csv record width does not match the schema")
		}
		row := codec.NewRow(h.core.RowUpperBound)
		for i, field := range record {
			switch schema[i] {
			case codec.TypeInt:
				v, err := strconv.ParseInt(strings.TrimSpace(field), 10, 32)
				if err != nil {
					return nil, errors.WithStack(err)
				}
				if err := row.AddInt32(int32(v), false); err != nil {
					return nil, err
				}
			case codec.TypeFloat:
				v, err := strconv.ParseFloat(strings.TrimSpace(field), 32)
				if err != nil {
					return nil, errors.WithStack(err)
				}
				if err := row.AddFloat32(float32(v), false); err != nil {
					return nil, err
				}
			default:
				if err := row.AddString(field, false); err != nil {
					return nil, err
				}
			}
		}
		rows = append(rows, row)
		if h.rowsIn != nil {
			h.rowsIn.Inc()
		}
	}
	return rows, nil
}

func (h *Harness) writeCSV(path string, rows []*codec.Row) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.WithStack(err)
	}
	defer f.Close()
	w := csv.NewWriter(f)
	for _, row := range rows {
		record := make([]string, 0, row.NumAttrs())
		for i := 1; i <= row.NumAttrs(); i++ {
			typ, err := row.AttrType(i)
			if err != nil {
				return err
			}
			switch typ.Base() {
			case codec.TypeInt:
				v, err := row.Int32Attr(i)
				if err != nil {
					return err
				}
				record = append(record, strconv.FormatInt(int64(v), 10))
			case codec.TypeFloat:
				v, err := row.Float32Attr(i)
				if err != nil {
					return err
				}
				record = append(record, strconv.FormatFloat(float64(v), 'g', -1, 32))
			default:
				v, err := row.StringAttr(i)
				if err != nil {
					return err
				}
				record = append(record, v)
			}
		}
		if err := w.Write(record); err != nil {
			return errors.WithStack(err)
		}
		if h.rowsOut != nil {
			h.rowsOut.Inc()
		}
	}
	w.Flush()
	return errors.WithStack(w.Error())
}
