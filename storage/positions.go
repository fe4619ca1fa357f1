package storage

import (
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	bolt "go.etcd.io/bbolt"

	"stablecore/crypto"
	"stablecore/native/collateral"
)

var bucketPositions = []byte("positions")

// PositionRecord is the JSON-serialised form of a ledger position. Amounts
// are decimal strings to keep arbitrary-precision integers intact.
type PositionRecord struct {
	Collateral map[string]string `json:"collateral,omitempty"`
	Debt       string            `json:"debt"`
}

// PositionStore persists ledger positions across restarts. The in-memory
// ledger stays authoritative; the store is written after each committed
// mutation and read back once at startup.
type PositionStore struct {
	db *bolt.DB
}

// NewPositionStore opens (and migrates) the BoltDB-backed store.
func NewPositionStore(path string, options *bolt.Options) (*PositionStore, error) {
	if options == nil {
		options = &bolt.Options{Timeout: time.Second}
	} else if options.Timeout == 0 {
		options.Timeout = time.Second
	}
	db, err := bolt.Open(path, 0o600, options)
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketPositions)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &PositionStore{db: db}, nil
}

// Close releases the underlying database handle.
func (s *PositionStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Put persists the position snapshot for a user.
func (s *PositionStore) Put(pos *collateral.Position) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("storage: position store not configured")
	}
	if pos == nil {
		return fmt.Errorf("storage: nil position")
	}
	record := encodePosition(pos)
	payload, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketPositions).Put([]byte(pos.Address.String()), payload)
	})
}

// ForEach streams every persisted position to the callback; the ledger is
// rebuilt from these at startup.
func (s *PositionStore) ForEach(fn func(user crypto.Address, deposits map[common.Address]*big.Int, debt *big.Int) error) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("storage: position store not configured")
	}
	return s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketPositions).ForEach(func(key, value []byte) error {
			user, err := crypto.DecodeAddress(string(key))
			if err != nil {
				return fmt.Errorf("storage: corrupt position key %q: %w", key, err)
			}
			var record PositionRecord
			if err := json.Unmarshal(value, &record); err != nil {
				return fmt.Errorf("storage: corrupt position for %s: %w", key, err)
			}
			deposits, debt, err := decodeRecord(record)
			if err != nil {
				return fmt.Errorf("storage: corrupt position for %s: %w", key, err)
			}
			return fn(user, deposits, debt)
		})
	})
}

func encodePosition(pos *collateral.Position) PositionRecord {
	record := PositionRecord{Debt: "0"}
	if pos.Debt != nil {
		record.Debt = pos.Debt.String()
	}
	for asset, amount := range pos.Collateral {
		if amount == nil || amount.Sign() == 0 {
			continue
		}
		if record.Collateral == nil {
			record.Collateral = make(map[string]string)
		}
		record.Collateral[asset.Hex()] = amount.String()
	}
	return record
}

func decodeRecord(record PositionRecord) (map[common.Address]*big.Int, *big.Int, error) {
	debt := big.NewInt(0)
	if record.Debt != "" {
		parsed, ok := new(big.Int).SetString(record.Debt, 10)
		if !ok {
			return nil, nil, fmt.Errorf("invalid debt %q", record.Debt)
		}
		debt = parsed
	}
	deposits := make(map[common.Address]*big.Int, len(record.Collateral))
	for asset, amount := range record.Collateral {
		if !common.IsHexAddress(asset) {
			return nil, nil, fmt.Errorf("invalid asset %q", asset)
		}
		parsed, ok := new(big.Int).SetString(amount, 10)
		if !ok {
			return nil, nil, fmt.Errorf("invalid amount %q", amount)
		}
		deposits[common.HexToAddress(asset)] = parsed
	}
	return deposits, debt, nil
}
