package arrow

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"

	"github.com/apache/arrow/go/v17/arrow/ipc"
	"github.com/apache/arrow/go/v17/arrow/memory"
	"go.uber.org/zap"

	"github.com/trade-engine/market-data-server/internal/source"
)

// Format selects the IPC container written by Writer.
type Format string

const (
	FormatFile   Format = "file"
	FormatStream Format = "stream"
)

type Writer struct {
	logger    *zap.Logger
	format    Format
	batchRows int
	mem       memory.Allocator
}

// NewWriter splits output into batches of batchRows rows (one batch if <= 0).
func NewWriter(logger *zap.Logger, format Format, batchRows int) *Writer {
	return &Writer{
		logger:    logger,
		format:    format,
		batchRows: batchRows,
		mem:       memory.DefaultAllocator,
	}
}

func (w *Writer) WriteFile(path string, rows []source.RawRecord) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tempPath := path + ".tmp"
	file, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("failed to create temp file %s: %w", tempPath, err)
	}

	if err := w.write(file, rows); err != nil {
		file.Close()
		os.Remove(tempPath)
		return err
	}
	if err := file.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	w.logger.Debug("Wrote arrow file",
		zap.String("file", path),
		zap.String("format", string(w.format)),
		zap.Int("rows", len(rows)))
	return nil
}

func (w *Writer) write(f *os.File, rows []source.RawRecord) error {
	out := bufio.NewWriter(f)
	opts := []ipc.Option{ipc.WithSchema(source.GetRecordSchema()), ipc.WithAllocator(w.mem)}

	var (
		write  func(rows []source.RawRecord) error
		finish func() error
	)
	switch w.format {
	case FormatStream:
		sw := ipc.NewWriter(out, opts...)
		write = func(chunk []source.RawRecord) error {
			rec := source.BuildRecord(w.mem, chunk)
			defer rec.Release()
			return sw.Write(rec)
		}
		finish = sw.Close
	default:
		fw, err := ipc.NewFileWriter(out, opts...)
		if err != nil {
			return fmt.Errorf("failed to create arrow file writer: %w", err)
		}
		write = func(chunk []source.RawRecord) error {
			rec := source.BuildRecord(w.mem, chunk)
			defer rec.Release()
			return fw.Write(rec)
		}
		finish = fw.Close
	}

	size := w.batchRows
	if size <= 0 {
		size = len(rows)
	}
	for start := 0; start < len(rows); start += size {
		end := min(start+size, len(rows))
		if err := write(rows[start:end]); err != nil {
			finish()
			return fmt.Errorf("failed to write batch: %w", err)
		}
	}

	if err := finish(); err != nil {
		return fmt.Errorf("failed to finalize arrow file: %w", err)
	}
	return out.Flush()
}
