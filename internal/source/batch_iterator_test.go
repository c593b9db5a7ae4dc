package source

import (
	"errors"
	"io"
	"testing"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trade-engine/market-data-server/internal/domain"
)

type sliceSource struct {
	batches []arrow.Record
	pos     int
	failAt  int
	closed  int
}

func (s *sliceSource) NextBatch() (arrow.Record, error) {
	if s.failAt > 0 && s.pos == s.failAt {
		return nil, errors.New("corrupt page")
	}
	if s.pos >= len(s.batches) {
		return nil, io.EOF
	}
	rec := s.batches[s.pos]
	s.pos++
	return rec, nil
}

func (s *sliceSource) Close() error {
	s.closed++
	for _, b := range s.batches {
		b.Release()
	}
	s.batches = nil
	return nil
}

func rows(ms ...int64) []RawRecord {
	out := make([]RawRecord, 0, len(ms))
	for _, m := range ms {
		sec, sub := domain.SplitMillis(m)
		out = append(out, RawRecord{TimestampMillis: m, TimestampSec: sec, TimestampSubSec: sub, Data: []byte("payload")})
	}
	return out
}

func drain(t *testing.T, it Iterator) ([]RawRecord, []error) {
	t.Helper()
	var recs []RawRecord
	var errs []error
	for it.Next() {
		rec, err := it.Record()
		if err != nil {
			errs = append(errs, err)
			continue
		}
		recs = append(recs, rec)
	}
	return recs, errs
}

func TestBatchIterator_FlattensBatchesInOrder(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	src := &sliceSource{batches: []arrow.Record{
		BuildRecord(mem, rows(1, 2)),
		BuildRecord(mem, nil),
		BuildRecord(mem, rows(3)),
	}}
	it := NewBatchIterator(src)

	recs, errs := drain(t, it)
	require.NoError(t, it.Err())
	require.Empty(t, errs)
	require.NoError(t, it.Close())
	require.NoError(t, it.Close())

	require.Len(t, recs, 3)
	for i, rec := range recs {
		assert.Equal(t, int64(i+1), rec.TimestampMillis)
		assert.Equal(t, "payload", string(rec.Data))
	}
	assert.Equal(t, int32(3_000_000), recs[2].TimestampSubSec)
	assert.Equal(t, 1, src.closed)
}

func TestBatchIterator_NullCellsAreRecordErrors(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	input := rows(10, 20, 30)
	input[1].Data = nil

	src := &sliceSource{batches: []arrow.Record{BuildRecord(mem, input)}}
	it := NewBatchIterator(src)
	defer it.Close()

	recs, errs := drain(t, it)
	require.NoError(t, it.Err())
	require.Len(t, recs, 2)
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], domain.ErrRecordDecode)
	assert.Equal(t, int64(30), recs[1].TimestampMillis)
}

func TestBatchIterator_SourceFailureIsFileError(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	src := &sliceSource{
		batches: []arrow.Record{BuildRecord(mem, rows(1)), BuildRecord(mem, rows(2))},
		failAt:  1,
	}
	it := NewBatchIterator(src)
	defer it.Close()

	recs, _ := drain(t, it)
	assert.Len(t, recs, 1)
	require.Error(t, it.Err())
	assert.Contains(t, it.Err().Error(), "corrupt page")
}

func TestBatchIterator_MissingColumn(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	schema := arrow.NewSchema([]arrow.Field{{Name: ColumnData, Type: arrow.BinaryTypes.Binary}}, nil)
	b := array.NewRecordBuilder(mem, schema)
	b.Field(0).(*array.BinaryBuilder).Append([]byte("x"))
	rec := b.NewRecord()
	b.Release()

	it := NewBatchIterator(&sliceSource{batches: []arrow.Record{rec}})
	defer it.Close()

	assert.False(t, it.Next())
	require.Error(t, it.Err())
	assert.Contains(t, it.Err().Error(), ColumnTimestampMillis)
}

func TestBatchIterator_DerivesOptionalColumns(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	schema := arrow.NewSchema([]arrow.Field{
		{Name: ColumnTimestampMillis, Type: &arrow.TimestampType{Unit: arrow.Microsecond}},
		{Name: ColumnData, Type: arrow.BinaryTypes.String},
	}, nil)
	b := array.NewRecordBuilder(mem, schema)
	b.Field(0).(*array.TimestampBuilder).Append(arrow.Timestamp(1554458400123456))
	b.Field(1).(*array.StringBuilder).Append(`{"p":"1.5"}`)
	rec := b.NewRecord()
	b.Release()

	it := NewBatchIterator(&sliceSource{batches: []arrow.Record{rec}})
	defer it.Close()

	recs, errs := drain(t, it)
	require.NoError(t, it.Err())
	require.Empty(t, errs)
	require.Len(t, recs, 1)
	assert.Equal(t, int64(1554458400123), recs[0].TimestampMillis)
	assert.Equal(t, int64(1554458400), recs[0].TimestampSec)
	assert.Equal(t, int32(123_000_000), recs[0].TimestampSubSec)
	assert.Equal(t, `{"p":"1.5"}`, string(recs[0].Data))
}

func TestRegistry_Lookup(t *testing.T) {
	reg := Registry{"parquet": nil, "arrow": nil}

	_, err := reg.Lookup(".parquet")
	require.NoError(t, err)

	_, err = reg.Lookup("csv")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "arrow, parquet")
}
