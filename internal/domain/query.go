package domain

import (
	"fmt"
	"time"
)

// QueryKey identifies one logical time series. Segments are used verbatim as path segments.
type QueryKey struct {
	Exchange   string `json:"exchange"`    // "binance"
	MarketType string `json:"market_type"` // "spot" | "futures"
	Stream     string `json:"stream"`      // "trade" | "depth" ...
	Symbol     string `json:"symbol"`      // "ethusdt"
}

// Validate rejects keys with empty segments.
func (k QueryKey) Validate() error {
	switch {
	case k.Exchange == "":
		return fmt.Errorf("%w: exchange is required", ErrInvalidQuery)
	case k.MarketType == "":
		return fmt.Errorf("%w: market type is required", ErrInvalidQuery)
	case k.Stream == "":
		return fmt.Errorf("%w: stream is required", ErrInvalidQuery)
	case k.Symbol == "":
		return fmt.Errorf("%w: symbol is required", ErrInvalidQuery)
	}
	return nil
}

func (k QueryKey) String() string {
	return k.Exchange + "/" + k.MarketType + "/" + k.Stream + "/" + k.Symbol
}

// TimeInterval is inclusive on both ends.
type TimeInterval struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// NewTimeInterval builds a validated interval. Both bounds are mandatory.
func NewTimeInterval(from, to *time.Time) (TimeInterval, error) {
	if from == nil {
		return TimeInterval{}, fmt.Errorf("%w: from is required", ErrInvalidQuery)
	}
	if to == nil {
		return TimeInterval{}, fmt.Errorf("%w: to is required", ErrInvalidQuery)
	}
	interval := TimeInterval{From: *from, To: *to}
	if err := interval.Validate(); err != nil {
		return TimeInterval{}, err
	}
	return interval, nil
}

// Validate checks that both bounds are set and From <= To.
func (i TimeInterval) Validate() error {
	if i.From.IsZero() {
		return fmt.Errorf("%w: from is required", ErrInvalidQuery)
	}
	if i.To.IsZero() {
		return fmt.Errorf("%w: to is required", ErrInvalidQuery)
	}
	if i.From.After(i.To) {
		return fmt.Errorf("%w: from %s is after to %s", ErrInvalidQuery,
			i.From.Format(time.RFC3339Nano), i.To.Format(time.RFC3339Nano))
	}
	return nil
}

// Days projects the interval onto UTC calendar dates.
func (i TimeInterval) Days() DayRange {
	return DayRange{
		From: TruncateToDate(i.From),
		To:   TruncateToDate(i.To),
	}
}

// Contains reports whether t lies in [From, To] at millisecond precision.
// Sub-millisecond digits of the bounds are truncated, like record timestamps.
func (i TimeInterval) Contains(t time.Time) bool {
	ms := t.UnixMilli()
	return ms >= i.From.UnixMilli() && ms <= i.To.UnixMilli()
}
