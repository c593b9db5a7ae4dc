// Command mdds-sample writes a synthetic trade archive that the server can read.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/trade-engine/market-data-server/internal/domain"
	"github.com/trade-engine/market-data-server/internal/services"
	"github.com/trade-engine/market-data-server/internal/source"
	arrowsrc "github.com/trade-engine/market-data-server/internal/source/arrow"
	parquetsrc "github.com/trade-engine/market-data-server/internal/source/parquet"
)

type fileWriter interface {
	WriteFile(path string, rows []source.RawRecord) error
}

type trade struct {
	EventType string `json:"e"`
	EventTime int64  `json:"E"`
	Symbol    string `json:"s"`
	TradeID   int64  `json:"t"`
	Price     string `json:"p"`
	Quantity  string `json:"q"`
	BuyerMM   bool   `json:"m"`
}

func main() {
	baseDir := flag.String("dir", "data/market_data", "Archive root directory")
	exchange := flag.String("exchange", "binance", "Exchange segment")
	marketType := flag.String("market-type", "spot", "Market type segment")
	stream := flag.String("stream", "trade", "Stream segment")
	symbol := flag.String("symbol", "ethusdt", "Symbol")
	from := flag.String("from", time.Now().UTC().AddDate(0, 0, -1).Format(domain.DateLayout), "First day (YYYY-MM-DD)")
	to := flag.String("to", time.Now().UTC().Format(domain.DateLayout), "Last day (YYYY-MM-DD)")
	perDay := flag.Int("per-day", 1000, "Records per day")
	format := flag.String("format", parquetsrc.Extension, "Archive format: parquet or arrow")
	compression := flag.String("compression", "zstd", "Parquet compression: zstd, gzip, snappy or none")
	flag.Parse()

	logger, err := zap.NewDevelopment()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(logger, *baseDir, domain.QueryKey{
		Exchange:   *exchange,
		MarketType: *marketType,
		Stream:     *stream,
		Symbol:     *symbol,
	}, *from, *to, *perDay, *format, *compression); err != nil {
		logger.Fatal("Sample generation failed", zap.Error(err))
	}
}

func run(logger *zap.Logger, baseDir string, key domain.QueryKey, from, to string, perDay int, format, compression string) error {
	if err := key.Validate(); err != nil {
		return err
	}
	first, err := time.Parse(domain.DateLayout, from)
	if err != nil {
		return fmt.Errorf("invalid -from: %w", err)
	}
	last, err := time.Parse(domain.DateLayout, to)
	if err != nil {
		return fmt.Errorf("invalid -to: %w", err)
	}
	if last.Before(first) {
		return fmt.Errorf("-from %s is after -to %s", from, to)
	}
	if perDay <= 0 {
		return fmt.Errorf("-per-day must be positive")
	}

	var w fileWriter
	switch format {
	case parquetsrc.Extension:
		w = parquetsrc.NewWriter(logger, compression)
	case arrowsrc.Extension:
		w = arrowsrc.NewWriter(logger, arrowsrc.FormatFile, source.DefaultBatchSize)
	default:
		return fmt.Errorf("unsupported format %q", format)
	}

	dir := services.ResolveDirectory(baseDir, key)
	rng := rand.New(rand.NewPCG(uint64(first.Unix()), uint64(perDay)))
	tradeID := int64(1)
	price := 3000.0

	for date := first; !date.After(last); date = date.AddDate(0, 0, 1) {
		rows := make([]source.RawRecord, 0, perDay)
		step := (24 * time.Hour).Milliseconds() / int64(perDay)
		for i := 0; i < perDay; i++ {
			ms := date.UnixMilli() + int64(i)*step + rng.Int64N(max(step, 1))
			price += (rng.Float64() - 0.5) * 2
			payload, err := json.Marshal(trade{
				EventType: key.Stream,
				EventTime: ms,
				Symbol:    key.Symbol,
				TradeID:   tradeID,
				Price:     fmt.Sprintf("%.2f", price),
				Quantity:  fmt.Sprintf("%.4f", rng.Float64()*5),
				BuyerMM:   rng.IntN(2) == 0,
			})
			if err != nil {
				return err
			}
			sec, sub := domain.SplitMillis(ms)
			rows = append(rows, source.RawRecord{
				TimestampMillis: ms,
				TimestampSec:    sec,
				TimestampSubSec: sub,
				Data:            payload,
			})
			tradeID++
		}

		path := filepath.Join(dir, services.FileName(key.Symbol, date, format))
		if err := w.WriteFile(path, rows); err != nil {
			return err
		}
		logger.Info("Wrote sample file", zap.String("file", path), zap.Int("records", len(rows)))
	}
	return nil
}
