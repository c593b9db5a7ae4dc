package arrow

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/trade-engine/market-data-server/internal/domain"
	"github.com/trade-engine/market-data-server/internal/source"
)

func sampleRows(n int) []source.RawRecord {
	rows := make([]source.RawRecord, 0, n)
	for i := 0; i < n; i++ {
		ms := int64(1554458400000 + i*1000)
		sec, sub := domain.SplitMillis(ms)
		rows = append(rows, source.RawRecord{
			TimestampMillis: ms,
			TimestampSec:    sec,
			TimestampSubSec: sub,
			Data:            []byte(`{"e":"depthUpdate"}`),
		})
	}
	return rows
}

func readAll(t *testing.T, it source.Iterator) []source.RawRecord {
	t.Helper()
	var out []source.RawRecord
	for it.Next() {
		rec, err := it.Record()
		require.NoError(t, err)
		out = append(out, rec)
	}
	require.NoError(t, it.Err())
	return out
}

func TestDecoder_FileAndStreamFormats(t *testing.T) {
	for _, format := range []Format{FormatFile, FormatStream} {
		t.Run(string(format), func(t *testing.T) {
			logger := zaptest.NewLogger(t)
			path := filepath.Join(t.TempDir(), "btcusdt.2019-04-05.arrow")
			rows := sampleRows(7)

			require.NoError(t, NewWriter(logger, format, 3).WriteFile(path, rows))

			it, err := NewDecoder(logger, nil).Open(context.Background(), path, 0)
			require.NoError(t, err)
			defer it.Close()

			assert.Equal(t, rows, readAll(t, it))
		})
	}
}

func TestDecoder_EmptyFile(t *testing.T) {
	logger := zaptest.NewLogger(t)
	path := filepath.Join(t.TempDir(), "btcusdt.2019-04-05.arrow")
	require.NoError(t, NewWriter(logger, FormatFile, 0).WriteFile(path, nil))

	it, err := NewDecoder(logger, nil).Open(context.Background(), path, 0)
	require.NoError(t, err)
	defer it.Close()

	assert.Empty(t, readAll(t, it))
}

func TestDecoder_Garbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "btcusdt.2019-04-05.arrow")
	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0o644))

	_, err := NewDecoder(zaptest.NewLogger(t), nil).Open(context.Background(), path, 0)
	require.Error(t, err)
}
