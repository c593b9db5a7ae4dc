// Package source defines the record decoder contract used by the query engine
// and the Arrow batch iteration shared by the concrete decoders.
package source

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// DefaultBatchSize is used when a decoder is given a non-positive batch size.
const DefaultBatchSize = 1024

// RawRecord is one decoded row. Data has not been validated as text yet.
type RawRecord struct {
	TimestampMillis int64
	TimestampSec    int64
	TimestampSubSec int32
	Data            []byte
}

// Decoder opens archive files for sequential reading.
type Decoder interface {
	// Open prepares path for reading. batchSize is a read tuning hint.
	Open(ctx context.Context, path string, batchSize int) (Iterator, error)
}

// Iterator is a lazy, finite, non-restartable sequence of records.
//
//	for it.Next() {
//		rec, err := it.Record() // err is a record-level decode error, the row can be skipped
//	}
//	if err := it.Err(); err != nil { ... } // file-level failure
type Iterator interface {
	Next() bool
	Record() (RawRecord, error)
	Err() error
	Close() error
}

// Registry maps a file extension (without the dot) to its decoder.
type Registry map[string]Decoder

// Lookup returns the decoder for ext.
func (r Registry) Lookup(ext string) (Decoder, error) {
	ext = strings.TrimPrefix(ext, ".")
	if d, ok := r[ext]; ok {
		return d, nil
	}
	return nil, fmt.Errorf("no decoder for extension %q (known: %s)", ext, strings.Join(r.Extensions(), ", "))
}

// Extensions lists the registered extensions in sorted order.
func (r Registry) Extensions() []string {
	exts := make([]string, 0, len(r))
	for ext := range r {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}
