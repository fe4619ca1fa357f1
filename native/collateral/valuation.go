package collateral

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"stablecore/crypto"
	"stablecore/native/oracle"
)

// UsdValue converts an asset amount into reference-unit value using the
// asset's registered price feed. The feed price is scaled from its external
// precision to the engine's 18-decimal fixed point before use. A non-positive
// price is not rejected here; callers own that risk.
func (e *Engine) UsdValue(asset common.Address, amount *big.Int) (*big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.usdValue(asset, amount)
}

// TokenAmountFromUsd converts a reference-unit value into the equivalent
// asset quantity at the current feed price. It is the inverse of UsdValue and
// feeds the liquidation seizure computation.
func (e *Engine) TokenAmountFromUsd(asset common.Address, usdAmount *big.Int) (*big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tokenAmountFromUsd(asset, usdAmount)
}

// AccountCollateralValue sums the reference-unit value of the user's deposits
// across every approved asset in registry order. The loop visits all approved
// assets regardless of holdings; see the registry docs for why the ordering
// is fixed.
func (e *Engine) AccountCollateralValue(user crypto.Address) (*big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.collateralValue(e.ledger.view(user))
}

// AccountInformation returns the user's outstanding debt alongside the total
// collateral value backing it.
func (e *Engine) AccountInformation(user crypto.Address) (debt, collateralValue *big.Int, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	pos := e.ledger.view(user)
	value, err := e.collateralValue(pos)
	if err != nil {
		return nil, nil, err
	}
	return new(big.Int).Set(pos.Debt), value, nil
}

// HealthFactor derives the user's current health factor from the ledger and
// the live feed prices. Debt-free users report MaxHealthFactor.
func (e *Engine) HealthFactor(user crypto.Address) (*big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.positionHealthFactor(e.ledger.view(user))
}

// CalculateHealthFactor is the stateless variant taking hypothetical inputs;
// it mutates nothing and reads no ledger state.
func (e *Engine) CalculateHealthFactor(debt, collateralValue *big.Int) *big.Int {
	return e.healthFactor(debt, collateralValue)
}

// CollateralBalanceOf returns the deposited amount for the (user, asset)
// pair, defaulting to zero.
func (e *Engine) CollateralBalanceOf(user crypto.Address, asset common.Address) *big.Int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.view(user).CollateralOf(asset)
}

func (e *Engine) usdValue(asset common.Address, amount *big.Int) (*big.Int, error) {
	price, err := e.scaledPrice(asset)
	if err != nil {
		return nil, err
	}
	if amount == nil {
		amount = big.NewInt(0)
	}
	value := new(big.Int).Mul(price, amount)
	return value.Quo(value, Precision), nil
}

func (e *Engine) tokenAmountFromUsd(asset common.Address, usdAmount *big.Int) (*big.Int, error) {
	price, err := e.scaledPrice(asset)
	if err != nil {
		return nil, err
	}
	if price.Sign() == 0 {
		return nil, fmt.Errorf("collateral engine: feed price for %s is zero", asset)
	}
	if usdAmount == nil {
		usdAmount = big.NewInt(0)
	}
	amount := new(big.Int).Mul(usdAmount, Precision)
	return amount.Quo(amount, price), nil
}

// scaledPrice resolves the latest feed price scaled to the internal
// fixed-point precision.
func (e *Engine) scaledPrice(asset common.Address) (*big.Int, error) {
	feed, ok := e.registry.FeedOf(asset)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAssetNotApproved, asset)
	}
	answer, err := feed.LatestAnswer()
	if err != nil {
		return nil, fmt.Errorf("collateral engine: price feed for %s: %w", asset, err)
	}
	return scaleAnswer(answer), nil
}

func scaleAnswer(answer oracle.Answer) *big.Int {
	price := answer.Price
	if price == nil {
		price = big.NewInt(0)
	}
	scaled := new(big.Int).Set(price)
	if answer.Decimals < 18 {
		factor := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(18-answer.Decimals)), nil)
		scaled.Mul(scaled, factor)
	} else if answer.Decimals > 18 {
		factor := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(answer.Decimals-18)), nil)
		scaled.Quo(scaled, factor)
	}
	return scaled
}

func (e *Engine) collateralValue(pos *Position) (*big.Int, error) {
	total := big.NewInt(0)
	for _, asset := range e.registry.CollateralAssets() {
		value, err := e.usdValue(asset, pos.CollateralOf(asset))
		if err != nil {
			return nil, err
		}
		total.Add(total, value)
	}
	return total, nil
}

// healthFactor implements the core solvency ratio: threshold-adjusted
// collateral value over debt, scaled by Precision. Zero debt short-circuits
// to the max sentinel so a debt-free user is never rejected by the division.
func (e *Engine) healthFactor(debt, collateralValue *big.Int) *big.Int {
	if debt == nil || debt.Sign() == 0 {
		return new(big.Int).Set(MaxHealthFactor)
	}
	if collateralValue == nil {
		collateralValue = big.NewInt(0)
	}
	adjusted := new(big.Int).Mul(collateralValue, new(big.Int).SetUint64(e.params.LiquidationThreshold))
	adjusted.Quo(adjusted, liquidationPrecision)
	factor := new(big.Int).Mul(adjusted, Precision)
	return factor.Quo(factor, debt)
}

func (e *Engine) positionHealthFactor(pos *Position) (*big.Int, error) {
	value, err := e.collateralValue(pos)
	if err != nil {
		return nil, err
	}
	return e.healthFactor(pos.Debt, value), nil
}
