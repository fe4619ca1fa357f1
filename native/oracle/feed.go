package oracle

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"
)

// Answer captures the latest observation reported by a price feed. Price is an
// integer scaled by 10^Decimals, mirroring on-chain aggregator payloads. The
// engine does not validate sign or freshness; UpdatedAt is surfaced so callers
// can apply their own policies.
type Answer struct {
	Price     *big.Int
	Decimals  uint8
	UpdatedAt time.Time
	Source    string
}

// Clone returns a deep copy of the answer to prevent accidental mutations.
func (a Answer) Clone() Answer {
	clone := Answer{Decimals: a.Decimals, UpdatedAt: a.UpdatedAt, Source: a.Source}
	if a.Price != nil {
		clone.Price = new(big.Int).Set(a.Price)
	}
	return clone
}

// PriceFeed resolves the latest reference-unit price for a single asset.
type PriceFeed interface {
	LatestAnswer() (Answer, error)
}

// ErrNoQuote indicates that a feed has no observation to report.
var ErrNoQuote = errors.New("oracle: no quote available")

// ManualFeed provides an in-memory feed implementation used for tests and
// manual overrides during incident response.
type ManualFeed struct {
	mu       sync.RWMutex
	source   string
	decimals uint8
	answer   Answer
	set      bool
}

// NewManualFeed constructs an empty manual feed reporting prices with the
// supplied decimal precision.
func NewManualFeed(source string, decimals uint8) *ManualFeed {
	trimmed := strings.TrimSpace(source)
	if trimmed == "" {
		trimmed = "manual"
	}
	return &ManualFeed{source: trimmed, decimals: decimals}
}

// Set stores the supplied raw price (already scaled by 10^decimals).
func (f *ManualFeed) Set(price *big.Int, ts time.Time) {
	if f == nil || price == nil {
		return
	}
	f.mu.Lock()
	f.answer = Answer{
		Price:     new(big.Int).Set(price),
		Decimals:  f.decimals,
		UpdatedAt: ts,
		Source:    f.source,
	}
	f.set = true
	f.mu.Unlock()
}

// SetDecimal records a human-readable decimal price, e.g. "2000.00",
// scaling it to the feed's configured precision.
func (f *ManualFeed) SetDecimal(value string, ts time.Time) error {
	if f == nil {
		return fmt.Errorf("oracle: manual feed not configured")
	}
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fmt.Errorf("oracle: price required")
	}
	rat, ok := new(big.Rat).SetString(trimmed)
	if !ok {
		return fmt.Errorf("oracle: invalid price %q", value)
	}
	f.Set(ratToScaled(rat, f.decimals), ts)
	return nil
}

// LatestAnswer returns the stored observation.
func (f *ManualFeed) LatestAnswer() (Answer, error) {
	if f == nil {
		return Answer{}, fmt.Errorf("oracle: manual feed not configured")
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	if !f.set {
		return Answer{}, ErrNoQuote
	}
	return f.answer.Clone(), nil
}

// Aggregator consults a list of feeds in priority order until a fresh answer
// is obtained. Freshness gates only the fallback selection; the answer that is
// ultimately returned still carries its own UpdatedAt for the caller to judge.
type Aggregator struct {
	mu     sync.RWMutex
	feeds  []PriceFeed
	maxAge time.Duration
}

// NewAggregator constructs an aggregator over the provided feeds. A zero
// maxAge disables the freshness fallback and the first answering feed wins.
func NewAggregator(feeds []PriceFeed, maxAge time.Duration) *Aggregator {
	return &Aggregator{feeds: append([]PriceFeed{}, feeds...), maxAge: maxAge}
}

// SetMaxAge updates the freshness window used when falling back between feeds.
func (a *Aggregator) SetMaxAge(maxAge time.Duration) {
	if a == nil {
		return
	}
	a.mu.Lock()
	a.maxAge = maxAge
	a.mu.Unlock()
}

// LatestAnswer returns the first answer from the configured feeds, preferring
// earlier feeds and skipping ones whose observation exceeds the freshness
// window when a later feed can still be consulted.
func (a *Aggregator) LatestAnswer() (Answer, error) {
	if a == nil {
		return Answer{}, fmt.Errorf("oracle: aggregator not configured")
	}
	a.mu.RLock()
	feeds := append([]PriceFeed{}, a.feeds...)
	maxAge := a.maxAge
	a.mu.RUnlock()

	cutoff := time.Time{}
	if maxAge > 0 {
		cutoff = time.Now().Add(-maxAge)
	}

	var lastErr error
	var stale *Answer
	for _, feed := range feeds {
		if feed == nil {
			continue
		}
		answer, err := feed.LatestAnswer()
		if err != nil {
			lastErr = err
			continue
		}
		if maxAge > 0 && answer.UpdatedAt.Before(cutoff) {
			if stale == nil {
				clone := answer.Clone()
				stale = &clone
			}
			continue
		}
		return answer.Clone(), nil
	}
	// Every feed was stale or failing; surface the freshest stale answer so
	// the caller can still price against it, consistent with the engine not
	// enforcing staleness.
	if stale != nil {
		return *stale, nil
	}
	if lastErr == nil {
		lastErr = ErrNoQuote
	}
	return Answer{}, lastErr
}

func ratToScaled(rat *big.Rat, decimals uint8) *big.Int {
	if rat == nil {
		return big.NewInt(0)
	}
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	scaled := new(big.Rat).Mul(rat, new(big.Rat).SetInt(scale))
	return new(big.Int).Quo(scaled.Num(), scaled.Denom())
}
