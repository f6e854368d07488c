package lending

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// ReserveConfig mirrors the external pool's per-asset configuration.
type ReserveConfig struct {
	// SupplyCap bounds the aggregate supplied amount, underlying units.
	// Zero means uncapped.
	SupplyCap *big.Int
	// BorrowCap bounds the aggregate borrowed amount, underlying units.
	// Zero means uncapped.
	BorrowCap *big.Int
	// Decimals is the underlying token precision.
	Decimals uint8
	// BorrowingEnabled reports whether the pool accepts new borrows.
	BorrowingEnabled bool
	// RiskCategory is the pool's risk-category id for the asset.
	RiskCategory uint8
}

// PoolAdapter exposes the external pooled market the overlay falls back to.
// The adapter owns token movement and the pool-side legs of delta-backed
// positions; the engine only reads configuration and aggregate totals.
type PoolAdapter interface {
	ReserveConfig(asset common.Address) (ReserveConfig, error)
	TotalSupplied(asset common.Address) (*big.Int, error)
	TotalBorrowed(asset common.Address) (*big.Int, error)
}

// LiquidityData is the risk provider's view of a user's borrowing headroom
// after a hypothetical withdrawal and borrow.
type LiquidityData struct {
	// Debt is the user's projected total debt, in base currency.
	Debt *big.Int
	// Borrowable is the debt ceiling usable for new borrows.
	Borrowable *big.Int
	// MaxDebt is the ceiling above which the position becomes liquidatable.
	MaxDebt *big.Int
}

// RiskProvider computes accrual indexes and position health for the engine.
type RiskProvider interface {
	// UpdatedIndexes returns the accrual factors for the asset at the
	// current moment. Indexes are non-decreasing between calls.
	UpdatedIndexes(asset common.Address) (Indexes, error)
	// LiquidityData projects the user's debt and capacity assuming
	// withdrawAmount leaves their collateral and borrowAmount is added to
	// their debt. Either amount may be nil.
	LiquidityData(asset common.Address, user common.Address, withdrawAmount, borrowAmount *big.Int) (LiquidityData, error)
	// HealthFactor returns the user's current health factor in wad.
	HealthFactor(user common.Address) (*big.Int, error)
}

// PriceSentinel gates liquidations in the soft health-factor band. A nil
// sentinel permits them.
type PriceSentinel interface {
	LiquidationAllowed() bool
}
