package collateral

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"stablecore/crypto"
	"stablecore/native/oracle"
	"stablecore/token"
)

func makeAddress(seed byte) crypto.Address {
	raw := make([]byte, 20)
	for i := range raw {
		raw[i] = seed
	}
	return crypto.NewAddress(crypto.AccountPrefix, raw)
}

func makeAsset(seed byte) common.Address {
	var raw [20]byte
	for i := range raw {
		raw[i] = seed
	}
	return common.BytesToAddress(raw[:])
}

// units scales a whole-number quantity to 18 decimals.
func units(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), Precision)
}

type testHarness struct {
	engine *Engine
	bank   *token.Bank
	feed   *oracle.ManualFeed
	asset  common.Address
	module crypto.Address
}

// newTestHarness wires an engine over a single approved asset with an
// 8-decimal manual feed, matching production feed precision.
func newTestHarness(t *testing.T, priceUsd string) *testHarness {
	t.Helper()
	asset := makeAsset(0xaa)
	feed := oracle.NewManualFeed("test", 8)
	if err := feed.SetDecimal(priceUsd, time.Now()); err != nil {
		t.Fatalf("seed feed: %v", err)
	}
	registry, err := NewRegistry([]common.Address{asset}, []oracle.PriceFeed{feed})
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	module := makeAddress(0x01)
	bank := token.NewBank(module)
	engine := NewEngine(registry, module, DefaultRiskParameters())
	engine.SetDebtToken(bank.Debt())
	engine.SetCollateralBank(bank.Collateral())
	return &testHarness{engine: engine, bank: bank, feed: feed, asset: asset, module: module}
}

// fund credits the user with collateral so deposits can be pulled in.
func (h *testHarness) fund(user crypto.Address, amount *big.Int) {
	h.bank.Credit(h.asset, user, amount)
}

// setPrice updates the manual feed to a new decimal quote.
func (h *testHarness) setPrice(t *testing.T, priceUsd string) {
	t.Helper()
	if err := h.feed.SetDecimal(priceUsd, time.Now()); err != nil {
		t.Fatalf("set price: %v", err)
	}
}

func requireEqualBig(t *testing.T, want, got *big.Int, label string) {
	t.Helper()
	if want.Cmp(got) != 0 {
		t.Fatalf("unexpected %s: want %s, got %s", label, want, got)
	}
}
