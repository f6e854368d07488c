package pool

import (
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"peerlend/native/lending"
)

var ray = new(big.Int).Exp(big.NewInt(10), big.NewInt(27), nil)

// AccrualRisk is an in-process risk provider. Indexes start at ray and grow
// linearly at per-second rates configured per asset, which keeps them
// monotonically non-decreasing without an external oracle. Liquidity and
// health answers come from operator- or test-installed overrides and default
// to fully permissive.
type AccrualRisk struct {
	mu      sync.RWMutex
	now     func() time.Time
	started map[common.Address]time.Time
	rates   map[common.Address]SideRates

	liquidity map[common.Address]lending.LiquidityData
	health    map[common.Address]*big.Int
}

// SideRates holds linear per-second index growth, in ray per second.
type SideRates struct {
	SupplyPool *big.Int
	SupplyP2P  *big.Int
	BorrowPool *big.Int
	BorrowP2P  *big.Int
}

func NewAccrualRisk() *AccrualRisk {
	return &AccrualRisk{
		now:       time.Now,
		started:   make(map[common.Address]time.Time),
		rates:     make(map[common.Address]SideRates),
		liquidity: make(map[common.Address]lending.LiquidityData),
		health:    make(map[common.Address]*big.Int),
	}
}

// SetRates installs the asset's accrual rates and restarts its clock.
func (r *AccrualRisk) SetRates(asset common.Address, rates SideRates) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rates[asset] = rates
	r.started[asset] = r.now()
}

// SetLiquidity overrides the liquidity answer for a user.
func (r *AccrualRisk) SetLiquidity(user common.Address, data lending.LiquidityData) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.liquidity[user] = data
}

// SetHealthFactor overrides the health factor for a user, in wad.
func (r *AccrualRisk) SetHealthFactor(user common.Address, hf *big.Int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.health[user] = new(big.Int).Set(hf)
}

func (r *AccrualRisk) UpdatedIndexes(asset common.Address) (lending.Indexes, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rates, ok := r.rates[asset]
	if !ok {
		return lending.Indexes{
			Supply: lending.SideIndexes{PoolIndex: new(big.Int).Set(ray), P2PIndex: new(big.Int).Set(ray)},
			Borrow: lending.SideIndexes{PoolIndex: new(big.Int).Set(ray), P2PIndex: new(big.Int).Set(ray)},
		}, nil
	}
	elapsed := big.NewInt(int64(r.now().Sub(r.started[asset]) / time.Second))
	grow := func(rate *big.Int) *big.Int {
		idx := new(big.Int).Set(ray)
		if rate != nil {
			idx.Add(idx, new(big.Int).Mul(rate, elapsed))
		}
		return idx
	}
	return lending.Indexes{
		Supply: lending.SideIndexes{PoolIndex: grow(rates.SupplyPool), P2PIndex: grow(rates.SupplyP2P)},
		Borrow: lending.SideIndexes{PoolIndex: grow(rates.BorrowPool), P2PIndex: grow(rates.BorrowP2P)},
	}, nil
}

func (r *AccrualRisk) LiquidityData(asset, user common.Address, withdrawAmount, borrowAmount *big.Int) (lending.LiquidityData, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if data, ok := r.liquidity[user]; ok {
		return data, nil
	}
	// Permissive default: zero debt against an unbounded ceiling.
	unbounded := new(big.Int).Lsh(big.NewInt(1), 255)
	return lending.LiquidityData{
		Debt:       copyOrZero(borrowAmount),
		Borrowable: unbounded,
		MaxDebt:    new(big.Int).Set(unbounded),
	}, nil
}

func (r *AccrualRisk) HealthFactor(user common.Address) (*big.Int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if hf, ok := r.health[user]; ok {
		return new(big.Int).Set(hf), nil
	}
	// No recorded position reads as maximally healthy.
	return new(big.Int).Lsh(big.NewInt(1), 255), nil
}
