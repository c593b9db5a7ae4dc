package source

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"

	"github.com/trade-engine/market-data-server/internal/domain"
)

// BatchSource yields Arrow record batches in file order.
// NextBatch returns io.EOF after the last batch. A returned batch only has to
// stay valid until the next NextBatch or Close call.
type BatchSource interface {
	NextBatch() (arrow.Record, error)
	Close() error
}

// BatchIterator flattens the batches of a BatchSource into records.
type BatchIterator struct {
	src     BatchSource
	batch   arrow.Record
	batchNo int
	cols    columns
	row     int
	cur     RawRecord
	curErr  error
	err     error
	done    bool
	closed  bool
}

// NewBatchIterator takes ownership of src; closing the iterator closes src.
func NewBatchIterator(src BatchSource) *BatchIterator {
	return &BatchIterator{src: src}
}

func (it *BatchIterator) Next() bool {
	for !it.done {
		if it.batch != nil && it.row < int(it.batch.NumRows()) {
			it.cur, it.curErr = it.cols.read(it.row)
			if it.curErr != nil {
				it.curErr = fmt.Errorf("batch %d row %d: %w", it.batchNo, it.row, it.curErr)
			}
			it.row++
			return true
		}

		batch, err := it.src.NextBatch()
		if errors.Is(err, io.EOF) {
			it.finish(nil)
			return false
		}
		if err != nil {
			it.finish(fmt.Errorf("read batch %d: %w", it.batchNo+1, err))
			return false
		}

		cols, err := resolveColumns(batch)
		if err != nil {
			it.finish(fmt.Errorf("batch %d: %w", it.batchNo+1, err))
			return false
		}

		it.batch = batch
		it.batchNo++
		it.cols = cols
		it.row = 0
	}
	return false
}

func (it *BatchIterator) Record() (RawRecord, error) {
	return it.cur, it.curErr
}

func (it *BatchIterator) Err() error {
	return it.err
}

func (it *BatchIterator) Close() error {
	if it.closed {
		return nil
	}
	it.closed = true
	it.done = true
	it.batch = nil
	return it.src.Close()
}

func (it *BatchIterator) finish(err error) {
	it.done = true
	it.err = err
	it.batch = nil
	it.cur, it.curErr = RawRecord{}, nil
}

type int64Column func(row int) (int64, bool)
type bytesColumn func(row int) ([]byte, bool)

// columns holds typed accessors for one batch. sec and subSec are optional.
type columns struct {
	millis int64Column
	sec    int64Column
	subSec int64Column
	data   bytesColumn
}

func (c columns) read(row int) (RawRecord, error) {
	ms, ok := c.millis(row)
	if !ok {
		return RawRecord{}, fmt.Errorf("%w: null %s", domain.ErrRecordDecode, ColumnTimestampMillis)
	}
	data, ok := c.data(row)
	if !ok {
		return RawRecord{}, fmt.Errorf("%w: null %s", domain.ErrRecordDecode, ColumnData)
	}

	rec := RawRecord{TimestampMillis: ms, Data: data}
	rec.TimestampSec, rec.TimestampSubSec = domain.SplitMillis(ms)
	if c.sec != nil {
		if v, ok := c.sec(row); ok {
			rec.TimestampSec = v
		}
	}
	if c.subSec != nil {
		if v, ok := c.subSec(row); ok {
			rec.TimestampSubSec = int32(v)
		}
	}
	return rec, nil
}

func resolveColumns(rec arrow.Record) (columns, error) {
	var cols columns
	schema := rec.Schema()

	idx := fieldIndex(schema, ColumnTimestampMillis)
	if idx < 0 {
		return cols, fmt.Errorf("missing column %q", ColumnTimestampMillis)
	}
	millis, err := millisAccessor(rec.Column(idx))
	if err != nil {
		return cols, fmt.Errorf("column %q: %w", ColumnTimestampMillis, err)
	}
	cols.millis = millis

	idx = fieldIndex(schema, ColumnData)
	if idx < 0 {
		return cols, fmt.Errorf("missing column %q", ColumnData)
	}
	data, err := bytesAccessor(rec.Column(idx))
	if err != nil {
		return cols, fmt.Errorf("column %q: %w", ColumnData, err)
	}
	cols.data = data

	if idx = fieldIndex(schema, ColumnTimestampSec); idx >= 0 {
		if cols.sec, err = int64Accessor(rec.Column(idx)); err != nil {
			return cols, fmt.Errorf("column %q: %w", ColumnTimestampSec, err)
		}
	}
	if idx = fieldIndex(schema, ColumnTimestampSubSec); idx >= 0 {
		if cols.subSec, err = int64Accessor(rec.Column(idx)); err != nil {
			return cols, fmt.Errorf("column %q: %w", ColumnTimestampSubSec, err)
		}
	}

	return cols, nil
}

func fieldIndex(schema *arrow.Schema, name string) int {
	if indices := schema.FieldIndices(name); len(indices) > 0 {
		return indices[0]
	}
	return -1
}

func int64Accessor(column arrow.Array) (int64Column, error) {
	switch arr := column.(type) {
	case *array.Int64:
		return func(i int) (int64, bool) {
			if arr.IsNull(i) {
				return 0, false
			}
			return arr.Value(i), true
		}, nil
	case *array.Int32:
		return func(i int) (int64, bool) {
			if arr.IsNull(i) {
				return 0, false
			}
			return int64(arr.Value(i)), true
		}, nil
	case *array.Uint32:
		return func(i int) (int64, bool) {
			if arr.IsNull(i) {
				return 0, false
			}
			return int64(arr.Value(i)), true
		}, nil
	default:
		return nil, fmt.Errorf("unsupported type %s", column.DataType())
	}
}

func millisAccessor(column arrow.Array) (int64Column, error) {
	arr, ok := column.(*array.Timestamp)
	if !ok {
		return int64Accessor(column)
	}
	unit := arr.DataType().(*arrow.TimestampType).Unit
	return func(i int) (int64, bool) {
		if arr.IsNull(i) {
			return 0, false
		}
		return toMillis(int64(arr.Value(i)), unit), true
	}, nil
}

func toMillis(v int64, unit arrow.TimeUnit) int64 {
	switch unit {
	case arrow.Second:
		return v * 1000
	case arrow.Microsecond:
		return floorDiv(v, 1000)
	case arrow.Nanosecond:
		return floorDiv(v, 1_000_000)
	default:
		return v
	}
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}

// Payload bytes are copied: batch buffers are released once the batch is consumed.
func bytesAccessor(column arrow.Array) (bytesColumn, error) {
	switch arr := column.(type) {
	case *array.Binary:
		return func(i int) ([]byte, bool) {
			if arr.IsNull(i) {
				return nil, false
			}
			return bytes.Clone(arr.Value(i)), true
		}, nil
	case *array.LargeBinary:
		return func(i int) ([]byte, bool) {
			if arr.IsNull(i) {
				return nil, false
			}
			return bytes.Clone(arr.Value(i)), true
		}, nil
	case *array.String:
		return func(i int) ([]byte, bool) {
			if arr.IsNull(i) {
				return nil, false
			}
			return []byte(arr.Value(i)), true
		}, nil
	case *array.LargeString:
		return func(i int) ([]byte, bool) {
			if arr.IsNull(i) {
				return nil, false
			}
			return []byte(arr.Value(i)), true
		}, nil
	default:
		return nil, fmt.Errorf("unsupported type %s", column.DataType())
	}
}
