package source

import (
	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/memory"
)

// Column names of the archive layout
const (
	ColumnTimestampMillis = "timestamp_millis"
	ColumnTimestampSec    = "timestamp_sec"
	ColumnTimestampSubSec = "timestamp_sub_sec"
	ColumnData            = "data"
)

// GetRecordSchema returns the Arrow schema archive files are written with.
// Readers also accept string payloads and timestamp-typed millis.
func GetRecordSchema() *arrow.Schema {
	return arrow.NewSchema([]arrow.Field{
		{Name: ColumnTimestampMillis, Type: arrow.PrimitiveTypes.Int64, Nullable: false},
		{Name: ColumnTimestampSec, Type: arrow.PrimitiveTypes.Int64, Nullable: false},
		{Name: ColumnTimestampSubSec, Type: arrow.PrimitiveTypes.Int32, Nullable: false},
		{Name: ColumnData, Type: arrow.BinaryTypes.Binary, Nullable: true},
	}, nil)
}

// BuildRecord converts rows into one Arrow record using GetRecordSchema.
// The caller releases the result.
func BuildRecord(mem memory.Allocator, rows []RawRecord) arrow.Record {
	b := array.NewRecordBuilder(mem, GetRecordSchema())
	defer b.Release()

	millis := b.Field(0).(*array.Int64Builder)
	secs := b.Field(1).(*array.Int64Builder)
	subSecs := b.Field(2).(*array.Int32Builder)
	data := b.Field(3).(*array.BinaryBuilder)

	for _, row := range rows {
		millis.Append(row.TimestampMillis)
		secs.Append(row.TimestampSec)
		subSecs.Append(row.TimestampSubSec)
		if row.Data == nil {
			data.AppendNull()
		} else {
			data.Append(row.Data)
		}
	}

	return b.NewRecord()
}
