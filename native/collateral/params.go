package collateral

import "math/big"

const (
	// DefaultLiquidationThreshold expresses the overcollateralization ratio
	// over LiquidationPrecision: 50/100 means positions must hold twice
	// their debt in collateral value.
	DefaultLiquidationThreshold uint64 = 50
	// DefaultLiquidationBonus is the extra collateral share awarded to
	// liquidators, over LiquidationPrecision.
	DefaultLiquidationBonus uint64 = 10
	// LiquidationPrecision is the denominator for threshold and bonus.
	LiquidationPrecision uint64 = 100
)

var (
	// Precision is the engine's internal fixed-point scale (18 decimals).
	Precision = mustBigInt("1000000000000000000")
	// MinHealthFactor is 1.0 in fixed-point; positions below it are
	// eligible for liquidation.
	MinHealthFactor = mustBigInt("1000000000000000000")
	// MaxHealthFactor is the sentinel returned for debt-free users.
	MaxHealthFactor = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

	liquidationPrecision = new(big.Int).SetUint64(LiquidationPrecision)
)

// RiskParameters groups the protocol safety settings applied by the engine.
type RiskParameters struct {
	// LiquidationThreshold over LiquidationPrecision.
	LiquidationThreshold uint64
	// LiquidationBonus over LiquidationPrecision.
	LiquidationBonus uint64
}

// DefaultRiskParameters returns the canonical protocol constants.
func DefaultRiskParameters() RiskParameters {
	return RiskParameters{
		LiquidationThreshold: DefaultLiquidationThreshold,
		LiquidationBonus:     DefaultLiquidationBonus,
	}
}

func mustBigInt(value string) *big.Int {
	v, ok := new(big.Int).SetString(value, 10)
	if !ok {
		panic("invalid big integer constant")
	}
	return v
}
