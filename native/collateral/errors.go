package collateral

import (
	"errors"
	"fmt"
	"math/big"
)

var (
	// ErrNotConfigured signals the engine was used before its token
	// collaborators were wired.
	ErrNotConfigured = errors.New("collateral engine: token collaborators not configured")
	// ErrInvalidAmount rejects zero or negative amounts where a positive
	// amount is required.
	ErrInvalidAmount = errors.New("collateral engine: amount must be positive")
	// ErrAssetNotApproved rejects operations referencing assets absent from
	// the registry.
	ErrAssetNotApproved = errors.New("collateral engine: asset not approved")
	// ErrInsufficientCollateral rejects debits exceeding the deposited
	// balance for the (user, asset) pair.
	ErrInsufficientCollateral = errors.New("collateral engine: insufficient collateral balance")
	// ErrInsufficientDebt rejects repayments exceeding the outstanding
	// minted debt.
	ErrInsufficientDebt = errors.New("collateral engine: insufficient minted debt")
	// ErrTransferFailed wraps a failed external asset transfer; the
	// enclosing operation rolls back in full.
	ErrTransferFailed = errors.New("collateral engine: collateral transfer failed")
	// ErrMintOrBurnFailed wraps a debt token issuer failure on mint, burn,
	// or the preceding pull-transfer.
	ErrMintOrBurnFailed = errors.New("collateral engine: debt token mint or burn failed")
	// ErrHealthFactorBroken marks operations that would leave the acting
	// user's health factor below the minimum. Returned errors carry the
	// actual factor via HealthFactorError.
	ErrHealthFactorBroken = errors.New("collateral engine: health factor below minimum")
	// ErrHealthFactorOk rejects liquidation attempts against healthy users.
	ErrHealthFactorOk = errors.New("collateral engine: health factor not below minimum")
	// ErrHealthFactorNotImproved rejects liquidations that do not strictly
	// raise the debtor's health factor.
	ErrHealthFactorNotImproved = errors.New("collateral engine: health factor not improved")
	// ErrConfigurationMismatch rejects registry construction with
	// inconsistent asset and feed lists.
	ErrConfigurationMismatch = errors.New("collateral engine: asset and price feed lists mismatch")
)

// HealthFactorError reports the actual health factor that violated the
// minimum. errors.Is matches it against ErrHealthFactorBroken.
type HealthFactorError struct {
	Actual *big.Int
}

func (e *HealthFactorError) Error() string {
	return fmt.Sprintf("collateral engine: health factor %s below minimum", e.Actual)
}

// Is reports a match for the ErrHealthFactorBroken sentinel.
func (e *HealthFactorError) Is(target error) bool {
	return target == ErrHealthFactorBroken
}

func breaksHealthFactor(actual *big.Int) error {
	return &HealthFactorError{Actual: new(big.Int).Set(actual)}
}
