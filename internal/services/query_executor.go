package services

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/trade-engine/market-data-server/internal/domain"
	"github.com/trade-engine/market-data-server/internal/metrics"
	"github.com/trade-engine/market-data-server/internal/source"
)

// Query states, logged at debug level.
const (
	stateValidating = "validating"
	stateResolving  = "resolving"
	stateNoFiles    = "no_files"
	stateStreaming  = "streaming"
	stateDone       = "done"
	stateFailed     = "failed"
)

// ctxCheckInterval is how many records are decoded between context checks.
const ctxCheckInterval = 1024

type ExecutorConfig struct {
	BasePath      string
	FileExtension string
	BatchSize     int
}

// QueryExecutor answers time-range queries against the daily archive.
// It holds no per-query state and is safe for concurrent use.
type QueryExecutor struct {
	logger  *zap.Logger
	finder  *FileFinder
	decoder source.Decoder
	cfg     ExecutorConfig
	metrics *metrics.Metrics
}

func NewQueryExecutor(logger *zap.Logger, finder *FileFinder, decoder source.Decoder, cfg ExecutorConfig, m *metrics.Metrics) *QueryExecutor {
	return &QueryExecutor{
		logger:  logger,
		finder:  finder,
		decoder: decoder,
		cfg:     cfg,
		metrics: m,
	}
}

// Execute returns every record of key inside interval, files in date order and
// records in file order. An empty result is a non-nil empty slice.
func (e *QueryExecutor) Execute(ctx context.Context, key domain.QueryKey, interval domain.TimeInterval) ([]domain.Record, error) {
	const mode = metrics.ModeMaterialized
	start := time.Now()
	log := e.queryLogger(ctx, key, interval, mode)

	files, err := e.plan(ctx, log, key, interval)
	if err != nil {
		e.finish(log, mode, start, err)
		return nil, err
	}

	records := make([]domain.Record, 0)
	for _, file := range files {
		_, err := e.decodeFile(ctx, log, file, interval, mode, func(rec domain.Record) bool {
			records = append(records, rec)
			return true
		})
		if err != nil {
			e.finish(log, mode, start, err)
			return nil, err
		}
	}

	e.observe(log, mode, start, outcomeFor(len(files)), len(records))
	return records, nil
}

// ExecuteStream returns the same records as Execute lazily. Files are opened
// one at a time when the consumer reaches them. A failure is yielded once as
// the last element. Breaking out of the loop closes the current file and no
// further file is opened.
func (e *QueryExecutor) ExecuteStream(ctx context.Context, key domain.QueryKey, interval domain.TimeInterval) iter.Seq2[domain.Record, error] {
	return func(yield func(domain.Record, error) bool) {
		const mode = metrics.ModeIncremental
		start := time.Now()
		log := e.queryLogger(ctx, key, interval, mode)

		files, err := e.plan(ctx, log, key, interval)
		if err != nil {
			e.finish(log, mode, start, err)
			yield(domain.Record{}, err)
			return
		}

		emitted := 0
		for _, file := range files {
			stopped, err := e.decodeFile(ctx, log, file, interval, mode, func(rec domain.Record) bool {
				emitted++
				return yield(rec, nil)
			})
			if err != nil {
				e.finish(log, mode, start, err)
				yield(domain.Record{}, err)
				return
			}
			if stopped {
				log.Debug("Consumer stopped", zap.String("file", file.Path), zap.Int("records", emitted))
				e.observe(log, mode, start, metrics.OutcomeCancelled, emitted)
				return
			}
		}

		e.observe(log, mode, start, outcomeFor(len(files)), emitted)
	}
}

// Files returns the candidate files of a query without decoding them.
func (e *QueryExecutor) Files(ctx context.Context, key domain.QueryKey, interval domain.TimeInterval) ([]domain.CandidateFile, error) {
	return e.plan(ctx, e.queryLogger(ctx, key, interval, "files"), key, interval)
}

func (e *QueryExecutor) queryLogger(ctx context.Context, key domain.QueryKey, interval domain.TimeInterval, mode string) *zap.Logger {
	return loggerFor(ctx, e.logger).With(
		zap.String("key", key.String()),
		zap.Time("from", interval.From),
		zap.Time("to", interval.To),
		zap.String("mode", mode))
}

// plan validates the query and resolves it to candidate files. Nothing touches
// the filesystem before validation succeeds.
func (e *QueryExecutor) plan(ctx context.Context, log *zap.Logger, key domain.QueryKey, interval domain.TimeInterval) ([]domain.CandidateFile, error) {
	log.Debug("Query state", zap.String("state", stateValidating))
	if err := key.Validate(); err != nil {
		return nil, err
	}
	if err := interval.Validate(); err != nil {
		return nil, err
	}

	log.Debug("Query state", zap.String("state", stateResolving))
	dir := ResolveDirectory(e.cfg.BasePath, key)
	files, err := e.finder.Find(ctx, dir, key.Symbol, e.cfg.FileExtension, interval.Days())
	if err != nil {
		return nil, err
	}

	if len(files) == 0 {
		log.Debug("Query state", zap.String("state", stateNoFiles), zap.String("dir", dir))
	} else {
		log.Debug("Query state", zap.String("state", stateStreaming), zap.Int("files", len(files)))
	}
	return files, nil
}

// decodeFile emits the records of one file that fall inside interval.
// stopped is true when emit asked to stop; the file is closed either way.
func (e *QueryExecutor) decodeFile(ctx context.Context, log *zap.Logger, file domain.CandidateFile, interval domain.TimeInterval, mode string, emit func(domain.Record) bool) (stopped bool, err error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	it, err := e.decoder.Open(ctx, file.Path, e.cfg.BatchSize)
	if err != nil {
		log.Error("Failed to open file", zap.String("file", file.Path), zap.Error(err))
		return false, fmt.Errorf("%w: %w: %s: %w", domain.ErrDecodeFailed, domain.ErrOpenFailed, file.Path, err)
	}
	defer func() {
		if cerr := it.Close(); cerr != nil {
			log.Debug("Failed to close file", zap.String("file", file.Path), zap.Error(cerr))
		}
	}()
	e.metrics.FileOpened()

	var read, kept int
	for it.Next() {
		read++
		if read%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return false, err
			}
		}

		raw, err := it.Record()
		if err != nil {
			e.skip(log, file, metrics.SkipRecordDecode, err)
			continue
		}

		ts, ok := domain.InstantFromMillis(raw.TimestampMillis)
		if !ok {
			e.skip(log, file, metrics.SkipInvalidTimestamp,
				fmt.Errorf("%w: %d", domain.ErrInvalidTimestamp, raw.TimestampMillis))
			continue
		}
		if !interval.Contains(ts) {
			continue
		}

		if !utf8.Valid(raw.Data) {
			e.skip(log, file, metrics.SkipInvalidUTF8,
				fmt.Errorf("%w: payload at %d is not valid UTF-8", domain.ErrRecordDecode, raw.TimestampMillis))
			continue
		}

		kept++
		e.metrics.RecordEmitted(mode)
		if !emit(domain.Record{
			TimestampMillis: raw.TimestampMillis,
			TimestampSec:    raw.TimestampSec,
			TimestampSubSec: raw.TimestampSubSec,
			Data:            string(raw.Data),
		}) {
			return true, nil
		}
	}

	if err := it.Err(); err != nil {
		log.Error("Failed to decode file", zap.String("file", file.Path), zap.Error(err))
		return false, fmt.Errorf("%w: %s: %w", domain.ErrDecodeFailed, file.Path, err)
	}

	log.Debug("Decoded file",
		zap.String("file", file.Path),
		zap.Int("read", read),
		zap.Int("kept", kept))
	return false, nil
}

func (e *QueryExecutor) skip(log *zap.Logger, file domain.CandidateFile, reason string, err error) {
	e.metrics.RecordSkipped(reason)
	log.Warn("Skipping record",
		zap.String("file", file.Path),
		zap.String("reason", reason),
		zap.Error(err))
}

func (e *QueryExecutor) finish(log *zap.Logger, mode string, start time.Time, err error) {
	outcome := metrics.OutcomeFailed
	switch {
	case errors.Is(err, domain.ErrInvalidQuery):
		outcome = metrics.OutcomeInvalid
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		outcome = metrics.OutcomeCancelled
	}
	log.Debug("Query state", zap.String("state", stateFailed), zap.String("outcome", outcome), zap.Error(err))
	e.metrics.ObserveQuery(mode, outcome, time.Since(start))
}

func (e *QueryExecutor) observe(log *zap.Logger, mode string, start time.Time, outcome string, records int) {
	elapsed := time.Since(start)
	log.Debug("Query state",
		zap.String("state", stateDone),
		zap.String("outcome", outcome),
		zap.Int("records", records),
		zap.Duration("elapsed", elapsed))
	e.metrics.ObserveQuery(mode, outcome, elapsed)
}

func outcomeFor(files int) string {
	if files == 0 {
		return metrics.OutcomeNoFiles
	}
	return metrics.OutcomeOK
}
