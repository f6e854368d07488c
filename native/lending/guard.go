package lending

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// validatePermission admits the position owner and any approved manager.
func (e *Engine) validatePermission(caller, onBehalf common.Address) error {
	if caller == onBehalf {
		return nil
	}
	approved, err := e.state.IsManagerApproved(onBehalf, caller)
	if err != nil {
		return err
	}
	if !approved {
		return ErrPermissionDenied
	}
	return nil
}

func (e *Engine) authorizeSupply(market *Market, indexes Indexes, amount *big.Int) error {
	if market.Pauses.Supply {
		return ErrSupplyPaused
	}
	cfg, err := e.pool.ReserveConfig(market.Asset)
	if err != nil {
		return err
	}
	if cfg.SupplyCap == nil || cfg.SupplyCap.Sign() == 0 {
		return nil
	}
	poolSupplied, err := e.pool.TotalSupplied(market.Asset)
	if err != nil {
		return err
	}
	// The overlay's P2P supply counts toward the cap: it is backed by
	// borrowers today but falls back to the pool on demotion.
	projected := new(big.Int).Add(bigOrZero(poolSupplied), amount)
	projected.Add(projected, rayMulUp(market.Deltas.Supply.ScaledTotalP2P, indexes.Supply.P2PIndex))
	if projected.Cmp(cfg.SupplyCap) > 0 {
		return ErrSupplyCapExceeded
	}
	return nil
}

func (e *Engine) authorizeBorrow(market *Market, indexes Indexes, onBehalf common.Address, amount *big.Int) error {
	if market.Pauses.Borrow {
		return ErrBorrowPaused
	}
	cfg, err := e.pool.ReserveConfig(market.Asset)
	if err != nil {
		return err
	}
	if !cfg.BorrowingEnabled {
		return ErrBorrowingDisabled
	}
	if cfg.RiskCategory != market.RiskCategory {
		return ErrRiskCategoryMismatch
	}
	if cfg.BorrowCap != nil && cfg.BorrowCap.Sign() > 0 {
		poolBorrowed, err := e.pool.TotalBorrowed(market.Asset)
		if err != nil {
			return err
		}
		projected := new(big.Int).Add(bigOrZero(poolBorrowed), amount)
		projected.Add(projected, rayMulUp(market.Deltas.Borrow.ScaledTotalP2P, indexes.Borrow.P2PIndex))
		if projected.Cmp(cfg.BorrowCap) > 0 {
			return ErrBorrowCapExceeded
		}
	}
	liquidity, err := e.risk.LiquidityData(market.Asset, onBehalf, nil, amount)
	if err != nil {
		return err
	}
	if bigOrZero(liquidity.Debt).Cmp(bigOrZero(liquidity.Borrowable)) > 0 {
		return ErrUnhealthyBorrow
	}
	return nil
}

func (e *Engine) authorizeWithdrawCollateral(market *Market, onBehalf common.Address, amount *big.Int) error {
	liquidity, err := e.risk.LiquidityData(market.Asset, onBehalf, amount, nil)
	if err != nil {
		return err
	}
	if bigOrZero(liquidity.Debt).Cmp(bigOrZero(liquidity.MaxDebt)) > 0 {
		return ErrUnhealthyWithdrawal
	}
	return nil
}

// AuthorizeLiquidate reports the close factor a liquidator may apply to the
// borrower's debt on the given market, in wad.
//
// Deprecated markets are fully liquidatable regardless of health. Otherwise a
// health factor at or above the liquidation threshold blocks liquidation, a
// factor inside the soft band permits half the debt subject to the price
// sentinel, and anything below the minimum threshold exposes the full debt.
func (e *Engine) AuthorizeLiquidate(asset, borrower common.Address) (*big.Int, error) {
	if err := e.wired(); err != nil {
		return nil, err
	}
	if asset == (common.Address{}) || borrower == (common.Address{}) {
		return nil, ErrZeroAddress
	}
	market, err := e.loadMarket(asset)
	if err != nil {
		return nil, err
	}
	if market.Pauses.Liquidate {
		return nil, ErrLiquidatePaused
	}
	if market.Deprecated {
		return new(big.Int).Set(MaxCloseFactor), nil
	}
	hf, err := e.risk.HealthFactor(borrower)
	if err != nil {
		return nil, err
	}
	hf = bigOrZero(hf)
	switch {
	case hf.Cmp(DefaultLiquidationThreshold) >= 0:
		return nil, ErrLiquidateUnauthorized
	case hf.Cmp(MinLiquidationThreshold) >= 0:
		if e.sentinel != nil && !e.sentinel.LiquidationAllowed() {
			return nil, ErrSentinelDisallows
		}
		return new(big.Int).Set(DefaultCloseFactor), nil
	default:
		return new(big.Int).Set(MaxCloseFactor), nil
	}
}
