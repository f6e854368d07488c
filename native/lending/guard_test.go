package lending

import (
	"math/big"
	"testing"
)

func TestPauseFlagsBlockActions(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.engine.Supply(userA, userA, testAsset, big.NewInt(100), 16); err != nil {
		t.Fatalf("seed supply: %v", err)
	}
	if _, err := env.engine.SupplyCollateral(userA, userA, testAsset, big.NewInt(100)); err != nil {
		t.Fatalf("seed collateral: %v", err)
	}
	if _, err := env.engine.Borrow(userA, userA, testAsset, big.NewInt(10), 0); err != nil {
		t.Fatalf("seed borrow: %v", err)
	}
	if err := env.engine.SetPauseStatuses(testAsset, PauseStatuses{
		Supply: true, Borrow: true, Repay: true, Withdraw: true,
		SupplyCollateral: true, WithdrawCollateral: true, Liquidate: true,
	}); err != nil {
		t.Fatalf("pause: %v", err)
	}

	if _, err := env.engine.Supply(userA, userA, testAsset, big.NewInt(1), 0); err != ErrSupplyPaused {
		t.Fatalf("supply: got %v, want ErrSupplyPaused", err)
	}
	if _, err := env.engine.Borrow(userA, userA, testAsset, big.NewInt(1), 0); err != ErrBorrowPaused {
		t.Fatalf("borrow: got %v, want ErrBorrowPaused", err)
	}
	if _, err := env.engine.Repay(userA, userA, testAsset, big.NewInt(1), 0); err != ErrRepayPaused {
		t.Fatalf("repay: got %v, want ErrRepayPaused", err)
	}
	if _, err := env.engine.Withdraw(userA, userA, testAsset, big.NewInt(1), 0); err != ErrWithdrawPaused {
		t.Fatalf("withdraw: got %v, want ErrWithdrawPaused", err)
	}
	if _, err := env.engine.SupplyCollateral(userA, userA, testAsset, big.NewInt(1)); err != ErrSupplyCollateralPaused {
		t.Fatalf("supply collateral: got %v, want ErrSupplyCollateralPaused", err)
	}
	if _, err := env.engine.WithdrawCollateral(userA, userA, testAsset, big.NewInt(1)); err != ErrWithdrawCollateralPaused {
		t.Fatalf("withdraw collateral: got %v, want ErrWithdrawCollateralPaused", err)
	}
	if _, err := env.engine.AuthorizeLiquidate(testAsset, userA); err != ErrLiquidatePaused {
		t.Fatalf("liquidate: got %v, want ErrLiquidatePaused", err)
	}

	// A rejected action mutates nothing.
	supplier := env.balance(t, userA)
	wantBig(t, "supplier onPool", supplier.Supply.ScaledOnPool, 100)
	wantBig(t, "borrower onPool", supplier.Borrow.ScaledOnPool, 10)
}

func TestSupplyCapExceeded(t *testing.T) {
	env := newTestEnv(t)
	env.pool.cfg.SupplyCap = big.NewInt(50)
	if _, err := env.engine.Supply(userA, userA, testAsset, big.NewInt(60), 16); err != ErrSupplyCapExceeded {
		t.Fatalf("got %v, want ErrSupplyCapExceeded", err)
	}
	if _, err := env.engine.Supply(userA, userA, testAsset, big.NewInt(50), 16); err != nil {
		t.Fatalf("supply at cap: %v", err)
	}
}

func TestSupplyCapCountsExternalPoolUsage(t *testing.T) {
	env := newTestEnv(t)
	env.pool.cfg.SupplyCap = big.NewInt(100)
	env.pool.supplied = big.NewInt(80)
	if _, err := env.engine.Supply(userA, userA, testAsset, big.NewInt(30), 16); err != ErrSupplyCapExceeded {
		t.Fatalf("got %v, want ErrSupplyCapExceeded", err)
	}
}

func TestBorrowCapExceeded(t *testing.T) {
	env := newTestEnv(t)
	env.pool.cfg.BorrowCap = big.NewInt(40)
	if _, err := env.engine.SupplyCollateral(userA, userA, testAsset, big.NewInt(1000)); err != nil {
		t.Fatalf("collateral: %v", err)
	}
	if _, err := env.engine.Borrow(userA, userA, testAsset, big.NewInt(50), 0); err != ErrBorrowCapExceeded {
		t.Fatalf("got %v, want ErrBorrowCapExceeded", err)
	}
}

func TestBorrowingDisabledOnPool(t *testing.T) {
	env := newTestEnv(t)
	env.pool.cfg.BorrowingEnabled = false
	if _, err := env.engine.Borrow(userA, userA, testAsset, big.NewInt(10), 0); err != ErrBorrowingDisabled {
		t.Fatalf("got %v, want ErrBorrowingDisabled", err)
	}
}

func TestBorrowRiskCategoryMismatch(t *testing.T) {
	env := newTestEnv(t)
	env.pool.cfg.RiskCategory = 3
	if _, err := env.engine.Borrow(userA, userA, testAsset, big.NewInt(10), 0); err != ErrRiskCategoryMismatch {
		t.Fatalf("got %v, want ErrRiskCategoryMismatch", err)
	}
}

func TestUnhealthyBorrowRejected(t *testing.T) {
	env := newTestEnv(t)
	env.risk.liquidity = &LiquidityData{
		Debt:       big.NewInt(200),
		Borrowable: big.NewInt(100),
		MaxDebt:    big.NewInt(150),
	}
	if _, err := env.engine.Borrow(userA, userA, testAsset, big.NewInt(10), 0); err != ErrUnhealthyBorrow {
		t.Fatalf("got %v, want ErrUnhealthyBorrow", err)
	}
}

func TestUnhealthyCollateralWithdrawalRejected(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.engine.SupplyCollateral(userA, userA, testAsset, big.NewInt(100)); err != nil {
		t.Fatalf("collateral: %v", err)
	}
	env.risk.liquidity = &LiquidityData{
		Debt:       big.NewInt(200),
		Borrowable: big.NewInt(100),
		MaxDebt:    big.NewInt(150),
	}
	if _, err := env.engine.WithdrawCollateral(userA, userA, testAsset, big.NewInt(50)); err != ErrUnhealthyWithdrawal {
		t.Fatalf("got %v, want ErrUnhealthyWithdrawal", err)
	}
}

func TestAuthorizeLiquidateBands(t *testing.T) {
	hf := func(v string) *big.Int { return mustBigInt(v) }

	t.Run("healthy position blocked", func(t *testing.T) {
		env := newTestEnv(t)
		env.risk.health = hf("1000000000000000000")
		if _, err := env.engine.AuthorizeLiquidate(testAsset, userB); err != ErrLiquidateUnauthorized {
			t.Fatalf("got %v, want ErrLiquidateUnauthorized", err)
		}
	})

	t.Run("soft band allows half", func(t *testing.T) {
		env := newTestEnv(t)
		env.risk.health = hf("970000000000000000")
		closeFactor, err := env.engine.AuthorizeLiquidate(testAsset, userB)
		if err != nil {
			t.Fatalf("authorize: %v", err)
		}
		if closeFactor.Cmp(DefaultCloseFactor) != 0 {
			t.Fatalf("close factor = %v, want %v", closeFactor, DefaultCloseFactor)
		}
	})

	t.Run("soft band gated by sentinel", func(t *testing.T) {
		env := newTestEnv(t)
		env.risk.health = hf("970000000000000000")
		env.engine.SetSentinel(stubSentinel{allowed: false})
		if _, err := env.engine.AuthorizeLiquidate(testAsset, userB); err != ErrSentinelDisallows {
			t.Fatalf("got %v, want ErrSentinelDisallows", err)
		}
		env.engine.SetSentinel(stubSentinel{allowed: true})
		if _, err := env.engine.AuthorizeLiquidate(testAsset, userB); err != nil {
			t.Fatalf("sentinel allowing: %v", err)
		}
	})

	t.Run("deep underwater exposes full debt", func(t *testing.T) {
		env := newTestEnv(t)
		env.risk.health = hf("900000000000000000")
		env.engine.SetSentinel(stubSentinel{allowed: false})
		closeFactor, err := env.engine.AuthorizeLiquidate(testAsset, userB)
		if err != nil {
			t.Fatalf("authorize: %v", err)
		}
		if closeFactor.Cmp(MaxCloseFactor) != 0 {
			t.Fatalf("close factor = %v, want %v", closeFactor, MaxCloseFactor)
		}
	})

	t.Run("deprecated market overrides health", func(t *testing.T) {
		env := newTestEnv(t)
		env.risk.health = hf("2000000000000000000")
		if err := env.engine.SetDeprecated(testAsset, true); err != nil {
			t.Fatalf("deprecate: %v", err)
		}
		closeFactor, err := env.engine.AuthorizeLiquidate(testAsset, userB)
		if err != nil {
			t.Fatalf("authorize: %v", err)
		}
		if closeFactor.Cmp(MaxCloseFactor) != 0 {
			t.Fatalf("close factor = %v, want %v", closeFactor, MaxCloseFactor)
		}
	})
}

func TestZeroInputsRejected(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.engine.Supply(userA, userA, testAsset, big.NewInt(0), 16); err != ErrZeroAmount {
		t.Fatalf("zero amount: got %v, want ErrZeroAmount", err)
	}
	if _, err := env.engine.Supply(userA, userA, testAsset, nil, 16); err != ErrZeroAmount {
		t.Fatalf("nil amount: got %v, want ErrZeroAmount", err)
	}
}
