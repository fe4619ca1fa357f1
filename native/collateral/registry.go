package collateral

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"stablecore/native/oracle"
)

// Registry is the immutable mapping of approved collateral assets to their
// price feeds. Asset eligibility and feed bindings are trust-critical, so the
// registry is fixed at construction and never mutated afterwards.
type Registry struct {
	assets []common.Address
	feeds  map[common.Address]oracle.PriceFeed
}

// NewRegistry builds a registry from two equal-length ordered lists. The
// iteration order of CollateralAssets follows the construction order; it
// drives aggregate valuation and must stay deterministic.
func NewRegistry(assets []common.Address, feeds []oracle.PriceFeed) (*Registry, error) {
	if len(assets) != len(feeds) {
		return nil, fmt.Errorf("%w: %d assets, %d feeds", ErrConfigurationMismatch, len(assets), len(feeds))
	}
	registry := &Registry{
		assets: make([]common.Address, 0, len(assets)),
		feeds:  make(map[common.Address]oracle.PriceFeed, len(assets)),
	}
	for i, asset := range assets {
		if asset == (common.Address{}) {
			return nil, fmt.Errorf("%w: zero asset address at index %d", ErrConfigurationMismatch, i)
		}
		if feeds[i] == nil {
			return nil, fmt.Errorf("%w: nil price feed for asset %s", ErrConfigurationMismatch, asset)
		}
		if _, exists := registry.feeds[asset]; exists {
			return nil, fmt.Errorf("%w: duplicate asset %s", ErrConfigurationMismatch, asset)
		}
		registry.assets = append(registry.assets, asset)
		registry.feeds[asset] = feeds[i]
	}
	return registry, nil
}

// IsApproved reports whether the asset may be used as collateral.
func (r *Registry) IsApproved(asset common.Address) bool {
	if r == nil {
		return false
	}
	_, ok := r.feeds[asset]
	return ok
}

// FeedOf returns the price feed bound to the asset.
func (r *Registry) FeedOf(asset common.Address) (oracle.PriceFeed, bool) {
	if r == nil {
		return nil, false
	}
	feed, ok := r.feeds[asset]
	return feed, ok
}

// CollateralAssets returns the approved assets in construction order.
func (r *Registry) CollateralAssets() []common.Address {
	if r == nil {
		return nil
	}
	return append([]common.Address{}, r.assets...)
}
