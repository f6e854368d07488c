package pool

import (
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"peerlend/native/lending"
)

// ErrReserveNotConfigured is returned for assets the adapter knows nothing
// about.
var ErrReserveNotConfigured = errors.New("pool: reserve not configured")

// StaticAdapter is an in-process pool adapter backed by operator-supplied
// reserve configuration and aggregate totals. The daemon uses it when no live
// pool integration is wired; tests use it to script cap and eligibility
// scenarios.
type StaticAdapter struct {
	mu       sync.RWMutex
	reserves map[common.Address]lending.ReserveConfig
	supplied map[common.Address]*big.Int
	borrowed map[common.Address]*big.Int
}

func NewStaticAdapter() *StaticAdapter {
	return &StaticAdapter{
		reserves: make(map[common.Address]lending.ReserveConfig),
		supplied: make(map[common.Address]*big.Int),
		borrowed: make(map[common.Address]*big.Int),
	}
}

// Configure installs or replaces the reserve configuration for an asset.
func (a *StaticAdapter) Configure(asset common.Address, cfg lending.ReserveConfig) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if cfg.SupplyCap == nil {
		cfg.SupplyCap = big.NewInt(0)
	}
	if cfg.BorrowCap == nil {
		cfg.BorrowCap = big.NewInt(0)
	}
	a.reserves[asset] = cfg
}

// SetTotals replaces the mirrored aggregate totals for an asset. Nil amounts
// are treated as zero.
func (a *StaticAdapter) SetTotals(asset common.Address, supplied, borrowed *big.Int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.supplied[asset] = copyOrZero(supplied)
	a.borrowed[asset] = copyOrZero(borrowed)
}

func (a *StaticAdapter) ReserveConfig(asset common.Address) (lending.ReserveConfig, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	cfg, ok := a.reserves[asset]
	if !ok {
		return lending.ReserveConfig{}, ErrReserveNotConfigured
	}
	return lending.ReserveConfig{
		SupplyCap:        new(big.Int).Set(cfg.SupplyCap),
		BorrowCap:        new(big.Int).Set(cfg.BorrowCap),
		Decimals:         cfg.Decimals,
		BorrowingEnabled: cfg.BorrowingEnabled,
		RiskCategory:     cfg.RiskCategory,
	}, nil
}

func (a *StaticAdapter) TotalSupplied(asset common.Address) (*big.Int, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if _, ok := a.reserves[asset]; !ok {
		return nil, ErrReserveNotConfigured
	}
	return copyOrZero(a.supplied[asset]), nil
}

func (a *StaticAdapter) TotalBorrowed(asset common.Address) (*big.Int, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if _, ok := a.reserves[asset]; !ok {
		return nil, ErrReserveNotConfigured
	}
	return copyOrZero(a.borrowed[asset]), nil
}

func copyOrZero(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
