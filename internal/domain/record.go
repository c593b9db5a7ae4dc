package domain

import "time"

// Record is one archived message. The same shape is served by every transport.
// TimestampMillis is the only field used for filtering; Sec/SubSec are display values.
type Record struct {
	TimestampMillis int64  `json:"timestamp_millis"`
	TimestampSec    int64  `json:"timestamp_sec"`
	TimestampSubSec int32  `json:"timestamp_sub_sec"` // nanoseconds within the second
	Data            string `json:"data"`
}

// MarketDataResponse is the materialized response body.
type MarketDataResponse struct {
	Messages []Record `json:"messages"`
}

// NewMarketDataResponse never serializes messages as null.
func NewMarketDataResponse(records []Record) MarketDataResponse {
	if records == nil {
		records = []Record{}
	}
	return MarketDataResponse{Messages: records}
}

// Instants must be representable in RFC 3339 (years 0000-9999).
var (
	minInstantMillis = time.Date(0, time.January, 1, 0, 0, 0, 0, time.UTC).UnixMilli()
	maxInstantMillis = time.Date(9999, time.December, 31, 23, 59, 59, 999_000_000, time.UTC).UnixMilli()
)

// InstantFromMillis reconstructs the instant of a millisecond timestamp.
// The boolean is false when the timestamp is out of range.
func InstantFromMillis(ms int64) (time.Time, bool) {
	if ms < minInstantMillis || ms > maxInstantMillis {
		return time.Time{}, false
	}
	return time.UnixMilli(ms).UTC(), true
}

// SplitMillis decomposes a millisecond timestamp into whole seconds and
// nanoseconds within the second (floored, so negative timestamps stay consistent).
func SplitMillis(ms int64) (sec int64, subSecNanos int32) {
	sec = ms / 1000
	rem := ms % 1000
	if rem < 0 {
		sec--
		rem += 1000
	}
	return sec, int32(rem * int64(time.Millisecond))
}
