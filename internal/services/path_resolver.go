package services

import (
	"path/filepath"

	"github.com/trade-engine/market-data-server/internal/domain"
)

// ResolveDirectory maps a query key to the directory holding its daily files:
// <base>/<exchange>/<market_type>/<stream>. The symbol is part of the file name,
// not the path. Existence is not checked here.
func ResolveDirectory(baseDir string, key domain.QueryKey) string {
	return filepath.Join(baseDir, key.Exchange, key.MarketType, key.Stream)
}
