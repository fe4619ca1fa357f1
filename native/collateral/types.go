package collateral

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"stablecore/crypto"
)

// Position maintains the collateral and debt balances for a single account.
// Amounts are asset-native integers; debt is denominated in debt-token units.
type Position struct {
	// Address is the account the position belongs to.
	Address crypto.Address
	// Collateral records the deposited amount per approved asset.
	Collateral map[common.Address]*big.Int
	// Debt stores the outstanding minted debt.
	Debt *big.Int
}

func newPosition(addr crypto.Address) *Position {
	return &Position{
		Address:    addr,
		Collateral: make(map[common.Address]*big.Int),
		Debt:       big.NewInt(0),
	}
}

// Clone returns a deep copy of the position.
func (p *Position) Clone() *Position {
	if p == nil {
		return nil
	}
	clone := newPosition(p.Address)
	for asset, amount := range p.Collateral {
		if amount != nil {
			clone.Collateral[asset] = new(big.Int).Set(amount)
		}
	}
	if p.Debt != nil {
		clone.Debt = new(big.Int).Set(p.Debt)
	}
	return clone
}

// CollateralOf returns the deposited amount for the asset, defaulting to zero.
func (p *Position) CollateralOf(asset common.Address) *big.Int {
	if p == nil {
		return big.NewInt(0)
	}
	if amount, ok := p.Collateral[asset]; ok && amount != nil {
		return new(big.Int).Set(amount)
	}
	return big.NewInt(0)
}

// Ledger holds every account position. Entries are created lazily on first
// use and persist at zero; a zero-balance user is indistinguishable from a
// never-seen one. The ledger is owned by a single engine instance and must
// only be touched while the engine's operation lock is held.
type Ledger struct {
	positions map[string]*Position
}

// NewLedger constructs an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{positions: make(map[string]*Position)}
}

func ledgerKey(user crypto.Address) string {
	return string(user.Bytes())
}

// staged returns a deep copy of the user's position for mutation. The copy is
// only made visible through commit, giving operations all-or-nothing
// semantics.
func (l *Ledger) staged(user crypto.Address) *Position {
	if existing, ok := l.positions[ledgerKey(user)]; ok {
		return existing.Clone()
	}
	return newPosition(user)
}

// view returns the live position for reads, defaulting to an empty one.
func (l *Ledger) view(user crypto.Address) *Position {
	if existing, ok := l.positions[ledgerKey(user)]; ok {
		return existing
	}
	return newPosition(user)
}

// commit publishes a staged position.
func (l *Ledger) commit(pos *Position) {
	if pos == nil {
		return
	}
	l.positions[ledgerKey(pos.Address)] = pos
}
