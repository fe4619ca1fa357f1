package storage

import (
	"math/big"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"stablecore/crypto"
	"stablecore/native/collateral"
)

func makeAddress(seed byte) crypto.Address {
	raw := make([]byte, 20)
	for i := range raw {
		raw[i] = seed
	}
	return crypto.NewAddress(crypto.AccountPrefix, raw)
}

func openTestStore(t *testing.T) *PositionStore {
	t.Helper()
	store, err := NewPositionStore(filepath.Join(t.TempDir(), "positions.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestPositionStoreRoundTrip(t *testing.T) {
	store := openTestStore(t)

	user := makeAddress(0x20)
	asset := common.BytesToAddress([]byte{0xaa})
	pos := &collateral.Position{
		Address: user,
		Collateral: map[common.Address]*big.Int{
			asset: big.NewInt(123456789),
		},
		Debt: big.NewInt(5000),
	}
	require.NoError(t, store.Put(pos))

	seen := 0
	err := store.ForEach(func(got crypto.Address, deposits map[common.Address]*big.Int, debt *big.Int) error {
		seen++
		require.True(t, got.Equal(user))
		require.Len(t, deposits, 1)
		require.Equal(t, "123456789", deposits[asset].String())
		require.Equal(t, "5000", debt.String())
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 1, seen)
}

func TestPositionStoreOverwritesLatestSnapshot(t *testing.T) {
	store := openTestStore(t)

	user := makeAddress(0x20)
	asset := common.BytesToAddress([]byte{0xaa})
	require.NoError(t, store.Put(&collateral.Position{
		Address:    user,
		Collateral: map[common.Address]*big.Int{asset: big.NewInt(10)},
		Debt:       big.NewInt(100),
	}))
	require.NoError(t, store.Put(&collateral.Position{
		Address:    user,
		Collateral: map[common.Address]*big.Int{asset: big.NewInt(7)},
		Debt:       big.NewInt(50),
	}))

	err := store.ForEach(func(_ crypto.Address, deposits map[common.Address]*big.Int, debt *big.Int) error {
		require.Equal(t, "7", deposits[asset].String())
		require.Equal(t, "50", debt.String())
		return nil
	})
	require.NoError(t, err)
}

func TestPositionStoreSkipsZeroBalances(t *testing.T) {
	store := openTestStore(t)

	user := makeAddress(0x20)
	asset := common.BytesToAddress([]byte{0xaa})
	require.NoError(t, store.Put(&collateral.Position{
		Address:    user,
		Collateral: map[common.Address]*big.Int{asset: big.NewInt(0)},
		Debt:       big.NewInt(0),
	}))

	err := store.ForEach(func(_ crypto.Address, deposits map[common.Address]*big.Int, debt *big.Int) error {
		require.Empty(t, deposits)
		require.Equal(t, "0", debt.String())
		return nil
	})
	require.NoError(t, err)
}

func TestPositionStoreRejectsNilPosition(t *testing.T) {
	store := openTestStore(t)
	require.Error(t, store.Put(nil))
}
