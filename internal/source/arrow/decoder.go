// Package arrow reads and writes archive files in the Arrow IPC formats.
package arrow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/ipc"
	"github.com/apache/arrow/go/v17/arrow/memory"
	"go.uber.org/zap"

	"github.com/trade-engine/market-data-server/internal/source"
)

const Extension = "arrow"

// Decoder accepts both the IPC file format and the IPC stream format.
// Batches are read as written, so batchSize has no effect.
type Decoder struct {
	logger *zap.Logger
	mem    memory.Allocator
}

func NewDecoder(logger *zap.Logger, mem memory.Allocator) *Decoder {
	if mem == nil {
		mem = memory.DefaultAllocator
	}
	return &Decoder{logger: logger, mem: mem}
}

func (d *Decoder) Open(ctx context.Context, path string, batchSize int) (source.Iterator, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	src, err := d.createReader(f, path)
	if err != nil {
		f.Close()
		return nil, err
	}
	return source.NewBatchIterator(src), nil
}

// createReader tries the File format first and falls back to Stream.
func (d *Decoder) createReader(f *os.File, path string) (source.BatchSource, error) {
	fileReader, err := ipc.NewFileReader(f, ipc.WithAllocator(d.mem))
	if err == nil {
		d.logger.Debug("Opened Arrow file reader", zap.String("file", path), zap.Int("batches", fileReader.NumRecords()))
		return &fileSource{f: f, r: fileReader}, nil
	}
	d.logger.Debug("Not an Arrow file, trying stream format", zap.String("file", path), zap.Error(err))

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("rewind %s: %w", path, err)
	}

	streamReader, err := ipc.NewReader(f, ipc.WithAllocator(d.mem))
	if err != nil {
		return nil, fmt.Errorf("failed to create arrow reader (tried both File and Stream formats): %w", err)
	}
	d.logger.Debug("Opened Arrow stream reader", zap.String("file", path))
	return &streamSource{f: f, r: streamReader}, nil
}

type fileSource struct {
	f    *os.File
	r    *ipc.FileReader
	next int
}

// Records returned by FileReader.Record stay owned by the reader.
func (s *fileSource) NextBatch() (arrow.Record, error) {
	if s.next >= s.r.NumRecords() {
		return nil, io.EOF
	}
	rec, err := s.r.Record(s.next)
	if err != nil {
		return nil, err
	}
	s.next++
	return rec, nil
}

func (s *fileSource) Close() error {
	return errors.Join(s.r.Close(), s.f.Close())
}

type streamSource struct {
	f *os.File
	r *ipc.Reader
}

func (s *streamSource) NextBatch() (arrow.Record, error) {
	if s.r.Next() {
		return s.r.Record(), nil
	}
	if err := s.r.Err(); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return nil, io.EOF
}

func (s *streamSource) Close() error {
	s.r.Release()
	return s.f.Close()
}
