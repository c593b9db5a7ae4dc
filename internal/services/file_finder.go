package services

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/trade-engine/market-data-server/internal/domain"
)

// FileFinder selects the daily files of a symbol that overlap a day range
type FileFinder struct {
	logger *zap.Logger
	lister DirectoryLister
}

func NewFileFinder(logger *zap.Logger, lister DirectoryLister) *FileFinder {
	if lister == nil {
		lister = OSLister{}
	}
	return &FileFinder{
		logger: logger,
		lister: lister,
	}
}

// Find lists dir once and returns the matching files in ascending date order.
// A directory that cannot be listed is an error, never an empty result.
func (ff *FileFinder) Find(ctx context.Context, dir, symbol, ext string, days domain.DayRange) ([]domain.CandidateFile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	names, err := ff.lister.List(ctx, dir)
	if err != nil {
		ff.logger.Debug("Failed to list directory", zap.String("dir", dir), zap.Error(err))
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrDirectoryUnavailable, dir, err)
	}

	var files []domain.CandidateFile
	for _, name := range names {
		date, ok := ParseFileName(name, symbol, ext)
		if !ok || !days.Contains(date) {
			continue
		}
		files = append(files, domain.CandidateFile{
			Path: filepath.Join(dir, name),
			Date: date,
		})
	}

	sort.SliceStable(files, func(i, j int) bool {
		return files[i].Date.Before(files[j].Date)
	})

	ff.logger.Debug("Found candidate files",
		zap.String("dir", dir),
		zap.String("symbol", symbol),
		zap.Int("entries", len(names)),
		zap.Int("count", len(files)))

	return files, nil
}

// ParseFileName extracts the date from "<symbol>.<YYYY-MM-DD>.<ext>".
// Anything else, including longer symbols sharing the prefix, does not match.
func ParseFileName(name, symbol, ext string) (time.Time, bool) {
	prefix := symbol + "."
	suffix := "." + strings.TrimPrefix(ext, ".")

	if len(name) < len(prefix)+len(suffix) ||
		!strings.HasPrefix(name, prefix) ||
		!strings.HasSuffix(name, suffix) {
		return time.Time{}, false
	}

	date, err := time.Parse(domain.DateLayout, name[len(prefix):len(name)-len(suffix)])
	if err != nil {
		return time.Time{}, false
	}
	return date, true
}

// FileName is the inverse of ParseFileName.
func FileName(symbol string, date time.Time, ext string) string {
	return symbol + "." + date.Format(domain.DateLayout) + "." + strings.TrimPrefix(ext, ".")
}
