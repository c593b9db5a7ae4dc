package api

import (
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/trade-engine/market-data-server/internal/domain"
)

// parseQuery reads the key from the path and the interval from ?from=&to=.
func parseQuery(c *gin.Context) (domain.QueryKey, domain.TimeInterval, error) {
	key := domain.QueryKey{
		Exchange:   c.Param("exchange"),
		MarketType: c.Param("market_type"),
		Stream:     c.Param("stream"),
		Symbol:     c.Param("symbol"),
	}
	for _, seg := range [...]struct{ name, value string }{
		{"exchange", key.Exchange},
		{"market_type", key.MarketType},
		{"stream", key.Stream},
		{"symbol", key.Symbol},
	} {
		if err := checkSegment(seg.name, seg.value); err != nil {
			return domain.QueryKey{}, domain.TimeInterval{}, err
		}
	}
	if err := key.Validate(); err != nil {
		return domain.QueryKey{}, domain.TimeInterval{}, err
	}

	from, err := parseTime(c, "from")
	if err != nil {
		return domain.QueryKey{}, domain.TimeInterval{}, err
	}
	to, err := parseTime(c, "to")
	if err != nil {
		return domain.QueryKey{}, domain.TimeInterval{}, err
	}

	interval, err := domain.NewTimeInterval(from, to)
	if err != nil {
		return domain.QueryKey{}, domain.TimeInterval{}, err
	}
	return key, interval, nil
}

// checkSegment keeps every resolved path under the archive root.
func checkSegment(name, value string) error {
	if value == "." || value == ".." || strings.ContainsAny(value, `/\`) {
		return fmt.Errorf("%w: invalid %s %q", domain.ErrInvalidQuery, name, value)
	}
	return nil
}

// parseTime returns nil when the parameter is absent. A '+' offset decoded as
// a space by form decoding is restored.
func parseTime(c *gin.Context, name string) (*time.Time, error) {
	raw, ok := c.GetQuery(name)
	if !ok || raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, strings.ReplaceAll(raw, " ", "+"))
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be an RFC 3339 timestamp, got %q", domain.ErrInvalidQuery, name, raw)
	}
	return &t, nil
}
