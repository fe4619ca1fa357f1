package collateral

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"stablecore/core/events"
	"stablecore/crypto"
)

// DebtToken is the issuer contract the engine requires of the unit-pegged
// debt token. Any failure is fatal to the enclosing operation.
type DebtToken interface {
	Mint(to crypto.Address, amount *big.Int) error
	// Burn destroys tokens already held by the engine's module account.
	Burn(amount *big.Int) error
	TransferFrom(from, to crypto.Address, amount *big.Int) error
}

// CollateralBank moves collateral assets between accounts. Transfer sends
// from the engine's module account; any failure is fatal to the enclosing
// operation.
type CollateralBank interface {
	Transfer(asset common.Address, to crypto.Address, amount *big.Int) error
	TransferFrom(asset common.Address, from, to crypto.Address, amount *big.Int) error
}

// Engine is the collateralized-debt accounting core. It owns the ledger and
// the registry, serializes every operation behind one non-reentrant lock, and
// stages all mutations so that a failed external call leaves no partial
// state behind.
type Engine struct {
	mu sync.Mutex

	registry      *Registry
	ledger        *Ledger
	params        RiskParameters
	moduleAddress crypto.Address

	debt    DebtToken
	bank    CollateralBank
	emitter events.Emitter
}

// NewEngine constructs an engine over the given registry. Collateral pulled
// in by deposits is held at moduleAddr.
func NewEngine(registry *Registry, moduleAddr crypto.Address, params RiskParameters) *Engine {
	if params.LiquidationThreshold == 0 {
		params.LiquidationThreshold = DefaultLiquidationThreshold
	}
	if params.LiquidationBonus == 0 {
		params.LiquidationBonus = DefaultLiquidationBonus
	}
	return &Engine{
		registry:      registry,
		ledger:        NewLedger(),
		params:        params,
		moduleAddress: moduleAddr,
		emitter:       events.NoopEmitter{},
	}
}

// SetDebtToken wires the debt token issuer.
func (e *Engine) SetDebtToken(token DebtToken) {
	if e == nil {
		return
	}
	e.debt = token
}

// SetCollateralBank wires the collateral transfer collaborator.
func (e *Engine) SetCollateralBank(bank CollateralBank) {
	if e == nil {
		return
	}
	e.bank = bank
}

// SetEmitter wires the event sink used after committed operations.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if e == nil {
		return
	}
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	e.emitter = emitter
}

// Registry exposes the immutable asset registry.
func (e *Engine) Registry() *Registry { return e.registry }

// RiskParameters returns the configured protocol parameters.
func (e *Engine) RiskParameters() RiskParameters { return e.params }

// ModuleAddress returns the account holding engine-owned balances.
func (e *Engine) ModuleAddress() crypto.Address { return e.moduleAddress }

func (e *Engine) ready() error {
	if e == nil || e.registry == nil || e.ledger == nil {
		return ErrNotConfigured
	}
	if e.debt == nil || e.bank == nil {
		return ErrNotConfigured
	}
	return nil
}

func validAmount(amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

// DepositCollateral credits the user's balance for an approved asset and
// pulls the asset in. Deposits can only improve a position, so no health
// check runs.
func (e *Engine) DepositCollateral(user crypto.Address, asset common.Address, amount *big.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.ready(); err != nil {
		return err
	}
	if err := validAmount(amount); err != nil {
		return err
	}
	if !e.registry.IsApproved(asset) {
		return fmt.Errorf("%w: %s", ErrAssetNotApproved, asset)
	}

	pos := e.ledger.staged(user)
	pos.Collateral[asset] = new(big.Int).Add(pos.CollateralOf(asset), amount)

	if err := e.bank.TransferFrom(asset, user, e.moduleAddress, amount); err != nil {
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}

	e.ledger.commit(pos)
	e.emitter.Emit(newCollateralDeposited(user, asset, amount))
	return nil
}

// MintDebt credits the user's minted-debt balance and issues the tokens,
// provided the resulting health factor stays at or above the minimum.
func (e *Engine) MintDebt(user crypto.Address, amount *big.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.ready(); err != nil {
		return err
	}
	if err := validAmount(amount); err != nil {
		return err
	}

	pos := e.ledger.staged(user)
	pos.Debt = new(big.Int).Add(pos.Debt, amount)

	if err := e.checkHealth(pos); err != nil {
		return err
	}
	if err := e.debt.Mint(user, amount); err != nil {
		return fmt.Errorf("%w: %v", ErrMintOrBurnFailed, err)
	}

	e.ledger.commit(pos)
	e.emitter.Emit(newDebtMinted(user, amount))
	return nil
}

// RedeemCollateral debits the user's balance and transfers the asset out,
// provided the reduced position stays healthy.
func (e *Engine) RedeemCollateral(user crypto.Address, asset common.Address, amount *big.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.ready(); err != nil {
		return err
	}
	pos, err := e.stageRedeem(user, asset, amount)
	if err != nil {
		return err
	}
	if err := e.checkHealth(pos); err != nil {
		return err
	}
	if err := e.bank.Transfer(asset, user, amount); err != nil {
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}

	e.ledger.commit(pos)
	e.emitter.Emit(newCollateralRedeemed(user, user, asset, amount))
	return nil
}

// BurnDebt debits the user's minted-debt balance, pulls the tokens from the
// user, and destroys them. Burning strictly reduces debt so the health factor
// cannot worsen; the test suite asserts that property instead of a runtime
// branch.
func (e *Engine) BurnDebt(user crypto.Address, amount *big.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.ready(); err != nil {
		return err
	}
	pos, err := e.stageBurn(user, amount)
	if err != nil {
		return err
	}
	if err := e.pullAndBurn(user, amount); err != nil {
		return err
	}

	e.ledger.commit(pos)
	e.emitter.Emit(newDebtBurned(user, amount))
	return nil
}

// DepositAndMint composes deposit and mint into one atomic operation.
func (e *Engine) DepositAndMint(user crypto.Address, asset common.Address, collateralAmount, debtAmount *big.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.ready(); err != nil {
		return err
	}
	if err := validAmount(collateralAmount); err != nil {
		return err
	}
	if err := validAmount(debtAmount); err != nil {
		return err
	}
	if !e.registry.IsApproved(asset) {
		return fmt.Errorf("%w: %s", ErrAssetNotApproved, asset)
	}

	pos := e.ledger.staged(user)
	pos.Collateral[asset] = new(big.Int).Add(pos.CollateralOf(asset), collateralAmount)
	pos.Debt = new(big.Int).Add(pos.Debt, debtAmount)

	if err := e.checkHealth(pos); err != nil {
		return err
	}
	if err := e.bank.TransferFrom(asset, user, e.moduleAddress, collateralAmount); err != nil {
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	if err := e.debt.Mint(user, debtAmount); err != nil {
		// Undo the collateral pull so neither step is observable.
		if undoErr := e.bank.Transfer(asset, user, collateralAmount); undoErr != nil {
			return errors.Join(fmt.Errorf("%w: %v", ErrMintOrBurnFailed, err), undoErr)
		}
		return fmt.Errorf("%w: %v", ErrMintOrBurnFailed, err)
	}

	e.ledger.commit(pos)
	e.emitter.Emit(newCollateralDeposited(user, asset, collateralAmount))
	e.emitter.Emit(newDebtMinted(user, debtAmount))
	return nil
}

// RedeemForRepay composes burn and redeem: the debt reduction happens first
// so the redemption's health check reflects the lower debt.
func (e *Engine) RedeemForRepay(user crypto.Address, asset common.Address, collateralAmount, debtAmount *big.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.ready(); err != nil {
		return err
	}
	pos, err := e.stageBurn(user, debtAmount)
	if err != nil {
		return err
	}
	current := pos.CollateralOf(asset)
	if err := validAmount(collateralAmount); err != nil {
		return err
	}
	if current.Cmp(collateralAmount) < 0 {
		return ErrInsufficientCollateral
	}
	pos.Collateral[asset] = current.Sub(current, collateralAmount)

	if err := e.checkHealth(pos); err != nil {
		return err
	}
	if err := e.pullAndBurn(user, debtAmount); err != nil {
		return err
	}
	if err := e.bank.Transfer(asset, user, collateralAmount); err != nil {
		// Re-issue the burned debt so the user is made whole.
		if undoErr := e.debt.Mint(user, debtAmount); undoErr != nil {
			return errors.Join(fmt.Errorf("%w: %v", ErrTransferFailed, err), undoErr)
		}
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}

	e.ledger.commit(pos)
	e.emitter.Emit(newDebtBurned(user, debtAmount))
	e.emitter.Emit(newCollateralRedeemed(user, user, asset, collateralAmount))
	return nil
}

// Liquidate lets a third party repay part of an unhealthy debtor's debt in
// exchange for a bonus-weighted share of the debtor's collateral. The debtor
// must end up strictly healthier than before, and the liquidator's own
// position must remain healthy. Returns the seized collateral amount.
//
// Known limitation carried from the protocol design: when the system sits at
// or below 100% collateralization there may be no collateral left to fund the
// bonus, and such positions can stay under-collateralized indefinitely; the
// engine rejects those liquidations rather than inventing recapitalization.
func (e *Engine) Liquidate(liquidator, debtor crypto.Address, asset common.Address, debtToCover *big.Int) (*big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := validAmount(debtToCover); err != nil {
		return nil, err
	}
	if !e.registry.IsApproved(asset) {
		return nil, fmt.Errorf("%w: %s", ErrAssetNotApproved, asset)
	}

	pos := e.ledger.staged(debtor)
	startingFactor, err := e.positionHealthFactor(pos)
	if err != nil {
		return nil, err
	}
	if startingFactor.Cmp(MinHealthFactor) >= 0 {
		return nil, ErrHealthFactorOk
	}
	if pos.Debt.Cmp(debtToCover) < 0 {
		return nil, ErrInsufficientDebt
	}

	seizableBase, err := e.tokenAmountFromUsd(asset, debtToCover)
	if err != nil {
		return nil, err
	}
	bonus := new(big.Int).Mul(seizableBase, new(big.Int).SetUint64(e.params.LiquidationBonus))
	bonus.Quo(bonus, liquidationPrecision)
	totalSeized := new(big.Int).Add(seizableBase, bonus)

	held := pos.CollateralOf(asset)
	if held.Cmp(totalSeized) < 0 {
		return nil, ErrInsufficientCollateral
	}
	pos.Collateral[asset] = held.Sub(held, totalSeized)
	pos.Debt = new(big.Int).Sub(pos.Debt, debtToCover)

	endingFactor, err := e.positionHealthFactor(pos)
	if err != nil {
		return nil, err
	}
	if endingFactor.Cmp(startingFactor) <= 0 {
		return nil, ErrHealthFactorNotImproved
	}

	// The liquidator's own position must not dip below the minimum; their
	// ledger entry is untouched by this operation unless they liquidate
	// themselves.
	liquidatorPos := e.ledger.view(liquidator)
	if liquidator.Equal(debtor) {
		liquidatorPos = pos
	}
	liquidatorFactor, err := e.positionHealthFactor(liquidatorPos)
	if err != nil {
		return nil, err
	}
	if liquidatorFactor.Cmp(MinHealthFactor) < 0 {
		return nil, breaksHealthFactor(liquidatorFactor)
	}

	if err := e.pullAndBurn(liquidator, debtToCover); err != nil {
		return nil, err
	}
	if err := e.bank.Transfer(asset, liquidator, totalSeized); err != nil {
		// Re-issue the repaid debt so the liquidator is made whole.
		if undoErr := e.debt.Mint(liquidator, debtToCover); undoErr != nil {
			return nil, errors.Join(fmt.Errorf("%w: %v", ErrTransferFailed, err), undoErr)
		}
		return nil, fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}

	e.ledger.commit(pos)
	e.emitter.Emit(newCollateralRedeemed(debtor, liquidator, asset, totalSeized))
	e.emitter.Emit(newPositionLiquidated(liquidator, debtor, asset, debtToCover, totalSeized))
	return totalSeized, nil
}

// ImportPosition loads a persisted position into the ledger. It is intended
// for startup restoration, before the engine serves traffic.
func (e *Engine) ImportPosition(user crypto.Address, deposits map[common.Address]*big.Int, debt *big.Int) error {
	if e == nil || e.ledger == nil {
		return ErrNotConfigured
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	pos := newPosition(user)
	for asset, amount := range deposits {
		if amount == nil || amount.Sign() < 0 {
			return fmt.Errorf("collateral engine: invalid imported balance for %s", asset)
		}
		if !e.registry.IsApproved(asset) {
			return fmt.Errorf("%w: %s", ErrAssetNotApproved, asset)
		}
		pos.Collateral[asset] = new(big.Int).Set(amount)
	}
	if debt != nil {
		if debt.Sign() < 0 {
			return fmt.Errorf("collateral engine: invalid imported debt for %s", user)
		}
		pos.Debt = new(big.Int).Set(debt)
	}
	e.ledger.commit(pos)
	return nil
}

// PositionSnapshot returns a deep copy of the user's current position for
// persistence.
func (e *Engine) PositionSnapshot(user crypto.Address) *Position {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.view(user).Clone()
}

// checkHealth rejects staged positions whose prospective health factor would
// fall below the minimum, before any external call is made.
func (e *Engine) checkHealth(pos *Position) error {
	factor, err := e.positionHealthFactor(pos)
	if err != nil {
		return err
	}
	if factor.Cmp(MinHealthFactor) < 0 {
		return breaksHealthFactor(factor)
	}
	return nil
}

// pullAndBurn moves debt tokens from the payer to the module account and
// destroys them, undoing the pull if the burn fails.
func (e *Engine) pullAndBurn(payer crypto.Address, amount *big.Int) error {
	if err := e.debt.TransferFrom(payer, e.moduleAddress, amount); err != nil {
		return fmt.Errorf("%w: %v", ErrMintOrBurnFailed, err)
	}
	if err := e.debt.Burn(amount); err != nil {
		if undoErr := e.debt.TransferFrom(e.moduleAddress, payer, amount); undoErr != nil {
			return errors.Join(fmt.Errorf("%w: %v", ErrMintOrBurnFailed, err), undoErr)
		}
		return fmt.Errorf("%w: %v", ErrMintOrBurnFailed, err)
	}
	return nil
}

func (e *Engine) stageRedeem(user crypto.Address, asset common.Address, amount *big.Int) (*Position, error) {
	if err := validAmount(amount); err != nil {
		return nil, err
	}
	pos := e.ledger.staged(user)
	current := pos.CollateralOf(asset)
	if current.Cmp(amount) < 0 {
		return nil, ErrInsufficientCollateral
	}
	pos.Collateral[asset] = current.Sub(current, amount)
	return pos, nil
}

func (e *Engine) stageBurn(user crypto.Address, amount *big.Int) (*Position, error) {
	if err := validAmount(amount); err != nil {
		return nil, err
	}
	pos := e.ledger.staged(user)
	if pos.Debt.Cmp(amount) < 0 {
		return nil, ErrInsufficientDebt
	}
	pos.Debt = new(big.Int).Sub(pos.Debt, amount)
	return pos, nil
}
