package domain

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTimeInterval_MissingBounds(t *testing.T) {
	now := time.Now()

	_, err := NewTimeInterval(nil, &now)
	require.ErrorIs(t, err, ErrInvalidQuery)

	_, err = NewTimeInterval(&now, nil)
	require.ErrorIs(t, err, ErrInvalidQuery)
}

func TestTimeInterval_FromAfterTo(t *testing.T) {
	from := time.Date(2019, 4, 6, 0, 0, 0, 0, time.UTC)
	to := time.Date(2019, 4, 5, 0, 0, 0, 0, time.UTC)

	_, err := NewTimeInterval(&from, &to)
	require.True(t, errors.Is(err, ErrInvalidQuery))
}

func TestTimeInterval_EqualBoundsAreValid(t *testing.T) {
	at := time.Date(2019, 4, 5, 12, 0, 0, 0, time.UTC)

	interval, err := NewTimeInterval(&at, &at)
	require.NoError(t, err)
	assert.True(t, interval.Contains(at))
	assert.False(t, interval.Contains(at.Add(time.Millisecond)))
	assert.False(t, interval.Contains(at.Add(-time.Millisecond)))
}

func TestTimeInterval_Days(t *testing.T) {
	cet := time.FixedZone("CET", 3600)
	interval := TimeInterval{
		// 2019-04-05T00:30+01:00 is still 2019-04-04 in UTC
		From: time.Date(2019, 4, 5, 0, 30, 0, 0, cet),
		To:   time.Date(2019, 4, 6, 23, 59, 59, 0, time.UTC),
	}

	days := interval.Days()
	assert.Equal(t, time.Date(2019, 4, 4, 0, 0, 0, 0, time.UTC), days.From)
	assert.Equal(t, time.Date(2019, 4, 6, 0, 0, 0, 0, time.UTC), days.To)

	assert.True(t, days.Contains(time.Date(2019, 4, 4, 0, 0, 0, 0, time.UTC)))
	assert.True(t, days.Contains(time.Date(2019, 4, 6, 18, 0, 0, 0, time.UTC)))
	assert.False(t, days.Contains(time.Date(2019, 4, 7, 0, 0, 0, 0, time.UTC)))
	assert.False(t, days.Contains(time.Date(2019, 4, 3, 23, 59, 59, 0, time.UTC)))
}

func TestQueryKey_Validate(t *testing.T) {
	key := QueryKey{Exchange: "binance", MarketType: "spot", Stream: "trade", Symbol: "ethusdt"}
	require.NoError(t, key.Validate())
	assert.Equal(t, "binance/spot/trade/ethusdt", key.String())

	key.Symbol = ""
	require.ErrorIs(t, key.Validate(), ErrInvalidQuery)
}

func TestInstantFromMillis(t *testing.T) {
	ts, ok := InstantFromMillis(1554458400000)
	require.True(t, ok)
	assert.Equal(t, time.Date(2019, 4, 5, 10, 0, 0, 0, time.UTC), ts)

	_, ok = InstantFromMillis(1 << 62)
	assert.False(t, ok)

	_, ok = InstantFromMillis(-(1 << 62))
	assert.False(t, ok)
}

func TestSplitMillis(t *testing.T) {
	sec, sub := SplitMillis(1554458400123)
	assert.Equal(t, int64(1554458400), sec)
	assert.Equal(t, int32(123_000_000), sub)

	sec, sub = SplitMillis(-1)
	assert.Equal(t, int64(-1), sec)
	assert.Equal(t, int32(999_000_000), sub)
}

func TestMarketDataResponse_EmptyIsArray(t *testing.T) {
	body, err := json.Marshal(NewMarketDataResponse(nil))
	require.NoError(t, err)
	assert.JSONEq(t, `{"messages":[]}`, string(body))
}

func TestTimeInterval_ContainsTruncatesToMillis(t *testing.T) {
	at := time.Date(2019, 4, 5, 10, 0, 0, 100_000_000, time.UTC)
	interval := TimeInterval{From: at.Add(500 * time.Microsecond), To: at.Add(500 * time.Microsecond)}

	assert.True(t, interval.Contains(at))
	assert.False(t, interval.Contains(at.Add(time.Millisecond)))
}
