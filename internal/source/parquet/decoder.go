// Package parquet reads and writes archive files in the Parquet format.
package parquet

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/memory"
	"github.com/apache/arrow/go/v17/parquet/file"
	"github.com/apache/arrow/go/v17/parquet/pqarrow"
	"go.uber.org/zap"

	"github.com/trade-engine/market-data-server/internal/source"
)

// Extension is the file extension served by this package.
const Extension = "parquet"

type Decoder struct {
	logger *zap.Logger
	mem    memory.Allocator
}

// NewDecoder uses the default Go allocator when mem is nil.
func NewDecoder(logger *zap.Logger, mem memory.Allocator) *Decoder {
	if mem == nil {
		mem = memory.DefaultAllocator
	}
	return &Decoder{logger: logger, mem: mem}
}

func (d *Decoder) Open(ctx context.Context, path string, batchSize int) (source.Iterator, error) {
	if batchSize <= 0 {
		batchSize = source.DefaultBatchSize
	}

	pf, err := file.OpenParquetFile(path, false)
	if err != nil {
		return nil, fmt.Errorf("open parquet file: %w", err)
	}

	fr, err := pqarrow.NewFileReader(pf, pqarrow.ArrowReadProperties{BatchSize: int64(batchSize)}, d.mem)
	if err != nil {
		pf.Close()
		return nil, fmt.Errorf("create arrow reader: %w", err)
	}

	columns, err := projectColumns(fr)
	if err != nil {
		pf.Close()
		return nil, err
	}

	rr, err := fr.GetRecordReader(ctx, columns, nil)
	if err != nil {
		pf.Close()
		return nil, fmt.Errorf("create record reader: %w", err)
	}

	d.logger.Debug("Opened parquet file",
		zap.String("file", path),
		zap.Int("row_groups", pf.NumRowGroups()),
		zap.Int64("rows", pf.NumRows()),
		zap.Int("batch_size", batchSize))

	return source.NewBatchIterator(&batchReader{pf: pf, rr: rr}), nil
}

// projectColumns limits decoding to the archive columns; extra columns are never read.
func projectColumns(fr *pqarrow.FileReader) ([]int, error) {
	schema, err := fr.Schema()
	if err != nil {
		return nil, fmt.Errorf("read schema: %w", err)
	}

	var indices []int
	for _, name := range []string{
		source.ColumnTimestampMillis,
		source.ColumnTimestampSec,
		source.ColumnTimestampSubSec,
		source.ColumnData,
	} {
		indices = append(indices, schema.FieldIndices(name)...)
	}
	if len(indices) == 0 {
		return nil, fmt.Errorf("no archive columns in schema %s", schema)
	}
	return indices, nil
}

type batchReader struct {
	pf *file.Reader
	rr pqarrow.RecordReader
}

func (b *batchReader) NextBatch() (arrow.Record, error) {
	if b.rr.Next() {
		return b.rr.Record(), nil
	}
	if err := b.rr.Err(); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return nil, io.EOF
}

func (b *batchReader) Close() error {
	b.rr.Release()
	return b.pf.Close()
}
