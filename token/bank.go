package token

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"stablecore/crypto"
)

var (
	// ErrInsufficientFunds is returned when a transfer or burn exceeds the
	// source account balance.
	ErrInsufficientFunds = errors.New("token: insufficient funds")
	// ErrInvalidAmount rejects nil or negative movement amounts.
	ErrInvalidAmount = errors.New("token: amount must be non-negative")
)

// Bank is an in-memory balance book for collateral assets and the debt token.
// It backs the engine's external collaborator interfaces in standalone
// deployments and tests; a production deployment would substitute real token
// adapters.
type Bank struct {
	mu     sync.RWMutex
	module crypto.Address

	collateral map[common.Address]map[string]*big.Int
	debt       map[string]*big.Int
	debtSupply *big.Int
}

// NewBank constructs an empty bank. Burned debt tokens are destroyed from the
// module account, matching the issuer contract the engine expects.
func NewBank(module crypto.Address) *Bank {
	return &Bank{
		module:     module,
		collateral: make(map[common.Address]map[string]*big.Int),
		debt:       make(map[string]*big.Int),
		debtSupply: big.NewInt(0),
	}
}

func accountKey(addr crypto.Address) string {
	return string(addr.Bytes())
}

// Credit funds an account with collateral. Intended for genesis funding and
// tests.
func (b *Bank) Credit(asset common.Address, account crypto.Address, amount *big.Int) {
	if b == nil || amount == nil || amount.Sign() <= 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	book := b.collateral[asset]
	if book == nil {
		book = make(map[string]*big.Int)
		b.collateral[asset] = book
	}
	key := accountKey(account)
	if book[key] == nil {
		book[key] = big.NewInt(0)
	}
	book[key] = new(big.Int).Add(book[key], amount)
}

// CollateralBalance reports the account's balance for the asset.
func (b *Bank) CollateralBalance(asset common.Address, account crypto.Address) *big.Int {
	if b == nil {
		return big.NewInt(0)
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if book := b.collateral[asset]; book != nil {
		if balance := book[accountKey(account)]; balance != nil {
			return new(big.Int).Set(balance)
		}
	}
	return big.NewInt(0)
}

// DebtBalance reports the account's debt token balance.
func (b *Bank) DebtBalance(account crypto.Address) *big.Int {
	if b == nil {
		return big.NewInt(0)
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if balance := b.debt[accountKey(account)]; balance != nil {
		return new(big.Int).Set(balance)
	}
	return big.NewInt(0)
}

// DebtSupply reports the circulating debt token supply.
func (b *Bank) DebtSupply() *big.Int {
	if b == nil {
		return big.NewInt(0)
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return new(big.Int).Set(b.debtSupply)
}

// Collateral returns the collateral transfer facade wired into the engine.
func (b *Bank) Collateral() *CollateralVault { return &CollateralVault{bank: b} }

// Debt returns the debt token facade wired into the engine.
func (b *Bank) Debt() *DebtLedger { return &DebtLedger{bank: b} }

func (b *Bank) moveCollateral(asset common.Address, from, to crypto.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	book := b.collateral[asset]
	if book == nil {
		book = make(map[string]*big.Int)
		b.collateral[asset] = book
	}
	fromKey := accountKey(from)
	balance := book[fromKey]
	if balance == nil {
		balance = big.NewInt(0)
	}
	if balance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: asset %s", ErrInsufficientFunds, asset)
	}
	book[fromKey] = new(big.Int).Sub(balance, amount)
	toKey := accountKey(to)
	if book[toKey] == nil {
		book[toKey] = big.NewInt(0)
	}
	book[toKey] = new(big.Int).Add(book[toKey], amount)
	return nil
}

// CollateralVault implements the engine's collateral transfer contract over
// the bank's balance book.
type CollateralVault struct {
	bank *Bank
}

// Transfer sends collateral from the module account.
func (v *CollateralVault) Transfer(asset common.Address, to crypto.Address, amount *big.Int) error {
	if v == nil || v.bank == nil {
		return errors.New("token: vault not configured")
	}
	return v.bank.moveCollateral(asset, v.bank.module, to, amount)
}

// TransferFrom sends collateral between arbitrary accounts.
func (v *CollateralVault) TransferFrom(asset common.Address, from, to crypto.Address, amount *big.Int) error {
	if v == nil || v.bank == nil {
		return errors.New("token: vault not configured")
	}
	return v.bank.moveCollateral(asset, from, to, amount)
}

// DebtLedger implements the engine's debt token issuer contract.
type DebtLedger struct {
	bank *Bank
}

// Mint issues new debt tokens to the account.
func (d *DebtLedger) Mint(to crypto.Address, amount *big.Int) error {
	if d == nil || d.bank == nil {
		return errors.New("token: debt ledger not configured")
	}
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	d.bank.mu.Lock()
	defer d.bank.mu.Unlock()
	key := accountKey(to)
	if d.bank.debt[key] == nil {
		d.bank.debt[key] = big.NewInt(0)
	}
	d.bank.debt[key] = new(big.Int).Add(d.bank.debt[key], amount)
	d.bank.debtSupply = new(big.Int).Add(d.bank.debtSupply, amount)
	return nil
}

// Burn destroys debt tokens held by the module account.
func (d *DebtLedger) Burn(amount *big.Int) error {
	if d == nil || d.bank == nil {
		return errors.New("token: debt ledger not configured")
	}
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	d.bank.mu.Lock()
	defer d.bank.mu.Unlock()
	key := accountKey(d.bank.module)
	balance := d.bank.debt[key]
	if balance == nil {
		balance = big.NewInt(0)
	}
	if balance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: debt token", ErrInsufficientFunds)
	}
	d.bank.debt[key] = new(big.Int).Sub(balance, amount)
	d.bank.debtSupply = new(big.Int).Sub(d.bank.debtSupply, amount)
	return nil
}

// TransferFrom moves debt tokens between accounts.
func (d *DebtLedger) TransferFrom(from, to crypto.Address, amount *big.Int) error {
	if d == nil || d.bank == nil {
		return errors.New("token: debt ledger not configured")
	}
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	d.bank.mu.Lock()
	defer d.bank.mu.Unlock()
	fromKey := accountKey(from)
	balance := d.bank.debt[fromKey]
	if balance == nil {
		balance = big.NewInt(0)
	}
	if balance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: debt token", ErrInsufficientFunds)
	}
	d.bank.debt[fromKey] = new(big.Int).Sub(balance, amount)
	toKey := accountKey(to)
	if d.bank.debt[toKey] == nil {
		d.bank.debt[toKey] = big.NewInt(0)
	}
	d.bank.debt[toKey] = new(big.Int).Add(d.bank.debt[toKey], amount)
	return nil
}
