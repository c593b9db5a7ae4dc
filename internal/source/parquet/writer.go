package parquet

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"

	"github.com/apache/arrow/go/v17/arrow/memory"
	"github.com/apache/arrow/go/v17/parquet"
	"github.com/apache/arrow/go/v17/parquet/compress"
	"github.com/apache/arrow/go/v17/parquet/pqarrow"
	"go.uber.org/zap"

	"github.com/trade-engine/market-data-server/internal/source"
)

// Writer produces archive files. It is used by fixtures and the sample generator;
// the server itself never writes.
type Writer struct {
	logger      *zap.Logger
	compression compress.Compression
	mem         memory.Allocator
}

func NewWriter(logger *zap.Logger, compression string) *Writer {
	return &Writer{
		logger:      logger,
		compression: codecFor(compression),
		mem:         memory.DefaultAllocator,
	}
}

func codecFor(name string) compress.Compression {
	switch name {
	case "zstd":
		return compress.Codecs.Zstd
	case "gzip":
		return compress.Codecs.Gzip
	case "snappy":
		return compress.Codecs.Snappy
	case "none":
		return compress.Codecs.Uncompressed
	default:
		return compress.Codecs.Zstd
	}
}

// WriteFile writes rows to path as a single row group. The file is written to a
// temp name first and renamed into place.
func (w *Writer) WriteFile(path string, rows []source.RawRecord) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tempPath := path + ".tmp"
	f, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("failed to create temp file %s: %w", tempPath, err)
	}

	if err := w.write(f, rows); err != nil {
		f.Close()
		os.Remove(tempPath)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	w.logger.Debug("Wrote parquet file", zap.String("file", path), zap.Int("rows", len(rows)))
	return nil
}

func (w *Writer) write(f *os.File, rows []source.RawRecord) error {
	buf := bufio.NewWriter(f)
	props := parquet.NewWriterProperties(
		parquet.WithCompression(w.compression),
		parquet.WithAllocator(w.mem),
	)

	fw, err := pqarrow.NewFileWriter(source.GetRecordSchema(), buf, props, pqarrow.DefaultWriterProps())
	if err != nil {
		return fmt.Errorf("failed to create parquet writer: %w", err)
	}

	rec := source.BuildRecord(w.mem, rows)
	defer rec.Release()

	if err := fw.Write(rec); err != nil {
		fw.Close()
		return fmt.Errorf("failed to write rows: %w", err)
	}
	if err := fw.Close(); err != nil {
		return fmt.Errorf("failed to finalize parquet file: %w", err)
	}
	return buf.Flush()
}
