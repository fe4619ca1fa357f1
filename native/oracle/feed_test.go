package oracle

import (
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestManualFeedReportsLatest(t *testing.T) {
	feed := NewManualFeed("chainlink", 8)

	_, err := feed.LatestAnswer()
	require.ErrorIs(t, err, ErrNoQuote)

	ts := time.Now().UTC()
	feed.Set(big.NewInt(2000_00000000), ts)
	answer, err := feed.LatestAnswer()
	require.NoError(t, err)
	require.Equal(t, "200000000000", answer.Price.String())
	require.Equal(t, uint8(8), answer.Decimals)
	require.Equal(t, ts, answer.UpdatedAt)
	require.Equal(t, "chainlink", answer.Source)

	// Mutating the returned answer must not leak into the feed.
	answer.Price.SetInt64(1)
	again, err := feed.LatestAnswer()
	require.NoError(t, err)
	require.Equal(t, "200000000000", again.Price.String())
}

func TestManualFeedSetDecimal(t *testing.T) {
	feed := NewManualFeed("manual", 8)
	require.NoError(t, feed.SetDecimal("1234.56", time.Now()))

	answer, err := feed.LatestAnswer()
	require.NoError(t, err)
	require.Equal(t, "123456000000", answer.Price.String())

	require.Error(t, feed.SetDecimal("", time.Now()))
	require.Error(t, feed.SetDecimal("not-a-number", time.Now()))
}

type staticFeed struct {
	answer Answer
	err    error
}

func (f staticFeed) LatestAnswer() (Answer, error) {
	if f.err != nil {
		return Answer{}, f.err
	}
	return f.answer.Clone(), nil
}

func TestAggregatorPrefersEarlierFeeds(t *testing.T) {
	now := time.Now().UTC()
	primary := staticFeed{answer: Answer{Price: big.NewInt(100), Decimals: 8, UpdatedAt: now, Source: "primary"}}
	secondary := staticFeed{answer: Answer{Price: big.NewInt(200), Decimals: 8, UpdatedAt: now, Source: "secondary"}}

	agg := NewAggregator([]PriceFeed{primary, secondary}, time.Minute)
	answer, err := agg.LatestAnswer()
	require.NoError(t, err)
	require.Equal(t, "primary", answer.Source)
}

func TestAggregatorFallsBackOnErrorAndStaleness(t *testing.T) {
	now := time.Now().UTC()
	failing := staticFeed{err: ErrNoQuote}
	stale := staticFeed{answer: Answer{Price: big.NewInt(100), Decimals: 8, UpdatedAt: now.Add(-time.Hour), Source: "stale"}}
	fresh := staticFeed{answer: Answer{Price: big.NewInt(200), Decimals: 8, UpdatedAt: now, Source: "fresh"}}

	agg := NewAggregator([]PriceFeed{failing, stale, fresh}, time.Minute)
	answer, err := agg.LatestAnswer()
	require.NoError(t, err)
	require.Equal(t, "fresh", answer.Source)
}

func TestAggregatorReturnsStaleWhenNothingFresh(t *testing.T) {
	now := time.Now().UTC()
	older := staticFeed{answer: Answer{Price: big.NewInt(100), Decimals: 8, UpdatedAt: now.Add(-2 * time.Hour), Source: "older"}}
	newer := staticFeed{answer: Answer{Price: big.NewInt(200), Decimals: 8, UpdatedAt: now.Add(-time.Hour), Source: "newer"}}

	// Both exceed the freshness window; the first stale answer wins.
	agg := NewAggregator([]PriceFeed{older, newer}, time.Minute)
	answer, err := agg.LatestAnswer()
	require.NoError(t, err)
	require.Equal(t, "older", answer.Source)
}

func TestAggregatorSurfacesLastError(t *testing.T) {
	agg := NewAggregator([]PriceFeed{staticFeed{err: ErrNoQuote}}, 0)
	_, err := agg.LatestAnswer()
	require.ErrorIs(t, err, ErrNoQuote)

	empty := NewAggregator(nil, 0)
	_, err = empty.LatestAnswer()
	require.ErrorIs(t, err, ErrNoQuote)
}
