package collateral

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"stablecore/crypto"
)

const (
	// EventTypeCollateralDeposited marks a committed collateral credit.
	EventTypeCollateralDeposited = "collateral.deposited"
	// EventTypeDebtMinted marks committed debt issuance.
	EventTypeDebtMinted = "collateral.debt_minted"
	// EventTypeCollateralRedeemed marks a committed collateral debit.
	EventTypeCollateralRedeemed = "collateral.redeemed"
	// EventTypeDebtBurned marks committed debt repayment.
	EventTypeDebtBurned = "collateral.debt_burned"
	// EventTypePositionLiquidated marks a committed liquidation.
	EventTypePositionLiquidated = "collateral.liquidated"
)

// CollateralDeposited is emitted after a deposit commits.
type CollateralDeposited struct {
	ID     uuid.UUID
	User   crypto.Address
	Asset  common.Address
	Amount *big.Int
}

func (CollateralDeposited) EventType() string { return EventTypeCollateralDeposited }

// DebtMinted is emitted after debt issuance commits.
type DebtMinted struct {
	ID     uuid.UUID
	User   crypto.Address
	Amount *big.Int
}

func (DebtMinted) EventType() string { return EventTypeDebtMinted }

// CollateralRedeemed is emitted after a redemption commits. From and To
// differ during liquidations, where the debited account and the recipient
// are distinct.
type CollateralRedeemed struct {
	ID     uuid.UUID
	From   crypto.Address
	To     crypto.Address
	Asset  common.Address
	Amount *big.Int
}

func (CollateralRedeemed) EventType() string { return EventTypeCollateralRedeemed }

// DebtBurned is emitted after debt repayment commits.
type DebtBurned struct {
	ID     uuid.UUID
	User   crypto.Address
	Amount *big.Int
}

func (DebtBurned) EventType() string { return EventTypeDebtBurned }

// PositionLiquidated is emitted after a liquidation commits.
type PositionLiquidated struct {
	ID          uuid.UUID
	Liquidator  crypto.Address
	Debtor      crypto.Address
	Asset       common.Address
	DebtCovered *big.Int
	Seized      *big.Int
}

func (PositionLiquidated) EventType() string { return EventTypePositionLiquidated }

func newCollateralDeposited(user crypto.Address, asset common.Address, amount *big.Int) CollateralDeposited {
	return CollateralDeposited{ID: uuid.New(), User: user, Asset: asset, Amount: new(big.Int).Set(amount)}
}

func newDebtMinted(user crypto.Address, amount *big.Int) DebtMinted {
	return DebtMinted{ID: uuid.New(), User: user, Amount: new(big.Int).Set(amount)}
}

func newCollateralRedeemed(from, to crypto.Address, asset common.Address, amount *big.Int) CollateralRedeemed {
	return CollateralRedeemed{ID: uuid.New(), From: from, To: to, Asset: asset, Amount: new(big.Int).Set(amount)}
}

func newDebtBurned(user crypto.Address, amount *big.Int) DebtBurned {
	return DebtBurned{ID: uuid.New(), User: user, Amount: new(big.Int).Set(amount)}
}

func newPositionLiquidated(liquidator, debtor crypto.Address, asset common.Address, covered, seized *big.Int) PositionLiquidated {
	return PositionLiquidated{
		ID:          uuid.New(),
		Liquidator:  liquidator,
		Debtor:      debtor,
		Asset:       asset,
		DebtCovered: new(big.Int).Set(covered),
		Seized:      new(big.Int).Set(seized),
	}
}
