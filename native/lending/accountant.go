package lending

import "math/big"

// The accountant composes delta adjustment, promotion/demotion and pool
// fallback into one atomic transition per action. Every authorization check
// has already passed when these run. All writes go through the action journal;
// a failure anywhere in a pipeline aborts before anything has been persisted.

func (e *Engine) executeSupply(market *Market, indexes Indexes, balance *UserBalance, amount *big.Int, maxIterations uint64, journal *actionJournal) (*ActionResult, error) {
	remaining, matchedDelta := market.DecreaseDelta(SideBorrow, amount, indexes.Borrow.PoolIndex, journal)

	promo, err := e.promoteRoutine(market, indexes, remaining, maxIterations, PromoteBorrowers, journal)
	if err != nil {
		return nil, err
	}
	remaining = promo.remaining

	toPeer := new(big.Int).Add(matchedDelta, promo.moved)
	if toPeer.Sign() > 0 {
		scaledP2P := rayDivDown(toPeer, indexes.Supply.P2PIndex)
		market.Deltas.Supply.ScaledTotalP2P = new(big.Int).Add(market.Deltas.Supply.ScaledTotalP2P, scaledP2P)
		market.Deltas.Borrow.ScaledTotalP2P = new(big.Int).Add(market.Deltas.Borrow.ScaledTotalP2P, promo.scaledP2P)
		balance.Supply.ScaledInP2P = new(big.Int).Add(balance.Supply.ScaledInP2P, scaledP2P)
	}
	if remaining.Sign() > 0 {
		scaled := rayDivDown(remaining, indexes.Supply.PoolIndex)
		balance.Supply.ScaledOnPool = new(big.Int).Add(balance.Supply.ScaledOnPool, scaled)
		market.ScaledPoolSupply = new(big.Int).Add(market.ScaledPoolSupply, scaled)
	}
	return &ActionResult{
		ToPool: remaining,
		ToPeer: toPeer,
		OnPool: rayMulDown(balance.Supply.ScaledOnPool, indexes.Supply.PoolIndex),
		InP2P:  rayMulDown(balance.Supply.ScaledInP2P, indexes.Supply.P2PIndex),
	}, nil
}

func (e *Engine) executeBorrow(market *Market, indexes Indexes, balance *UserBalance, amount *big.Int, maxIterations uint64, journal *actionJournal) (*ActionResult, error) {
	// Idle supply is redeployed first: it is cash already promised P2P,
	// waiting for exactly this demand.
	remaining, idleUsed := market.borrowIdle(amount, journal)
	remaining, matchedDelta := market.DecreaseDelta(SideSupply, remaining, indexes.Supply.PoolIndex, journal)

	promo, err := e.promoteRoutine(market, indexes, remaining, maxIterations, PromoteSuppliers, journal)
	if err != nil {
		return nil, err
	}
	remaining = promo.remaining

	toPeer := new(big.Int).Add(idleUsed, matchedDelta)
	toPeer.Add(toPeer, promo.moved)
	if toPeer.Sign() > 0 {
		scaledP2P := rayDivUp(toPeer, indexes.Borrow.P2PIndex)
		market.Deltas.Borrow.ScaledTotalP2P = new(big.Int).Add(market.Deltas.Borrow.ScaledTotalP2P, scaledP2P)
		market.Deltas.Supply.ScaledTotalP2P = new(big.Int).Add(market.Deltas.Supply.ScaledTotalP2P, promo.scaledP2P)
		balance.Borrow.ScaledInP2P = new(big.Int).Add(balance.Borrow.ScaledInP2P, scaledP2P)
	}
	if remaining.Sign() > 0 {
		scaled := rayDivUp(remaining, indexes.Borrow.PoolIndex)
		balance.Borrow.ScaledOnPool = new(big.Int).Add(balance.Borrow.ScaledOnPool, scaled)
		market.ScaledPoolBorrow = new(big.Int).Add(market.ScaledPoolBorrow, scaled)
	}
	return &ActionResult{
		ToPool: remaining,
		ToPeer: toPeer,
		OnPool: rayMulUp(balance.Borrow.ScaledOnPool, indexes.Borrow.PoolIndex),
		InP2P:  rayMulUp(balance.Borrow.ScaledInP2P, indexes.Borrow.P2PIndex),
	}, nil
}

// executeWithdraw handles the breaking case for the supply side. amount has
// already been capped at the position total.
func (e *Engine) executeWithdraw(market *Market, indexes Indexes, balance *UserBalance, amount *big.Int, maxIterations uint64, journal *actionJournal) (*ActionResult, error) {
	idx := indexes.Supply
	remaining := new(big.Int).Set(amount)

	// Own pool balance first.
	poolValue := rayMulDown(balance.Supply.ScaledOnPool, idx.PoolIndex)
	fromPool := minBig(poolValue, remaining)
	if fromPool.Sign() > 0 {
		dec := scaledReduction(balance.Supply.ScaledOnPool, fromPool, poolValue, idx.PoolIndex)
		balance.Supply.ScaledOnPool = zeroFloorSub(balance.Supply.ScaledOnPool, dec)
		market.ScaledPoolSupply = zeroFloorSub(market.ScaledPoolSupply, dec)
		remaining.Sub(remaining, fromPool)
	}

	// Then the own P2P balance.
	p2pValue := rayMulDown(balance.Supply.ScaledInP2P, idx.P2PIndex)
	fromP2P := minBig(p2pValue, remaining)
	if fromP2P.Sign() > 0 {
		dec := scaledReduction(balance.Supply.ScaledInP2P, fromP2P, p2pValue, idx.P2PIndex)
		balance.Supply.ScaledInP2P = zeroFloorSub(balance.Supply.ScaledInP2P, dec)
		market.Deltas.Supply.ScaledTotalP2P = zeroFloorSub(market.Deltas.Supply.ScaledTotalP2P, dec)
		remaining.Sub(remaining, fromP2P)
	}

	// The withdrawn P2P volume leaves matched borrowers without backing;
	// restore it from the supply delta, replacement suppliers, and finally
	// by demoting borrowers.
	shortfall := new(big.Int).Set(fromP2P)
	if shortfall.Sign() > 0 {
		shortfall, _ = market.DecreaseDelta(SideSupply, shortfall, idx.PoolIndex, journal)

		promo, err := e.promoteRoutine(market, indexes, shortfall, maxIterations, PromoteSuppliers, journal)
		if err != nil {
			return nil, err
		}
		market.Deltas.Supply.ScaledTotalP2P = new(big.Int).Add(market.Deltas.Supply.ScaledTotalP2P, promo.scaledP2P)
		shortfall = promo.remaining

		if shortfall.Sign() > 0 {
			demo, err := e.demoteRoutine(market, indexes, shortfall, promo.iterationsLeft, SideBorrow, journal)
			if err != nil {
				return nil, err
			}
			market.Deltas.Borrow.ScaledTotalP2P = zeroFloorSub(market.Deltas.Borrow.ScaledTotalP2P, demo.scaledP2P)
			// Pairs the iteration budget could not break stay in the
			// P2P books, now pool-backed through the borrow delta.
			market.IncreaseDelta(SideBorrow, demo.remaining, indexes.Borrow.PoolIndex, journal)
		}
	}

	return &ActionResult{
		ToPool: fromPool,
		ToPeer: fromP2P,
		OnPool: rayMulDown(balance.Supply.ScaledOnPool, idx.PoolIndex),
		InP2P:  rayMulDown(balance.Supply.ScaledInP2P, idx.P2PIndex),
	}, nil
}

// executeRepay handles the breaking case for the borrow side. amount has
// already been capped at the debt total.
func (e *Engine) executeRepay(market *Market, indexes Indexes, balance *UserBalance, amount *big.Int, maxIterations uint64, journal *actionJournal) (*ActionResult, error) {
	idx := indexes.Borrow
	remaining := new(big.Int).Set(amount)

	// Collaborator reads happen before any mutation so a pool outage can
	// only abort a still-clean transition.
	cfg, err := e.pool.ReserveConfig(market.Asset)
	if err != nil {
		return nil, err
	}
	poolSupplied, err := e.pool.TotalSupplied(market.Asset)
	if err != nil {
		return nil, err
	}

	// Own pool debt first. Debt is valued rounding up and reduced rounding
	// up so the payer is never under-credited.
	poolDebt := rayMulUp(balance.Borrow.ScaledOnPool, idx.PoolIndex)
	fromPool := minBig(poolDebt, remaining)
	if fromPool.Sign() > 0 {
		dec := scaledReduction(balance.Borrow.ScaledOnPool, fromPool, poolDebt, idx.PoolIndex)
		balance.Borrow.ScaledOnPool = zeroFloorSub(balance.Borrow.ScaledOnPool, dec)
		market.ScaledPoolBorrow = zeroFloorSub(market.ScaledPoolBorrow, dec)
		remaining.Sub(remaining, fromPool)
	}

	// Then the own P2P debt.
	p2pDebt := rayMulUp(balance.Borrow.ScaledInP2P, idx.P2PIndex)
	fromP2P := minBig(p2pDebt, remaining)
	if fromP2P.Sign() > 0 {
		dec := scaledReduction(balance.Borrow.ScaledInP2P, fromP2P, p2pDebt, idx.P2PIndex)
		balance.Borrow.ScaledInP2P = zeroFloorSub(balance.Borrow.ScaledInP2P, dec)
		market.Deltas.Borrow.ScaledTotalP2P = zeroFloorSub(market.Deltas.Borrow.ScaledTotalP2P, dec)
		remaining.Sub(remaining, fromP2P)
	}

	// The repaid P2P volume leaves matched suppliers without a borrower;
	// work through the borrow delta, the spread fee, replacement
	// borrowers, idle supply, and finally demotion of suppliers.
	shortfall := new(big.Int).Set(fromP2P)
	if shortfall.Sign() > 0 {
		shortfall, _ = market.DecreaseDelta(SideBorrow, shortfall, idx.PoolIndex, journal)

		if shortfall.Sign() > 0 {
			feePaid := minBig(market.p2pFee(indexes), shortfall)
			shortfall.Sub(shortfall, feePaid)
		}

		promo, err := e.promoteRoutine(market, indexes, shortfall, maxIterations, PromoteBorrowers, journal)
		if err != nil {
			return nil, err
		}
		market.Deltas.Borrow.ScaledTotalP2P = new(big.Int).Add(market.Deltas.Borrow.ScaledTotalP2P, promo.scaledP2P)
		shortfall = promo.remaining

		if shortfall.Sign() > 0 {
			// Repaid cash above the pool's supply cap cannot be
			// deposited; park it as idle supply backing the still
			// matched suppliers.
			shortfall, _ = market.increaseIdle(shortfall, cfg.SupplyCap, poolSupplied, journal)
		}

		if shortfall.Sign() > 0 {
			demo, err := e.demoteRoutine(market, indexes, shortfall, promo.iterationsLeft, SideSupply, journal)
			if err != nil {
				return nil, err
			}
			market.Deltas.Supply.ScaledTotalP2P = zeroFloorSub(market.Deltas.Supply.ScaledTotalP2P, demo.scaledP2P)
			market.IncreaseDelta(SideSupply, demo.remaining, indexes.Supply.PoolIndex, journal)
		}
	}

	return &ActionResult{
		ToPool: fromPool,
		ToPeer: fromP2P,
		OnPool: rayMulUp(balance.Borrow.ScaledOnPool, idx.PoolIndex),
		InP2P:  rayMulUp(balance.Borrow.ScaledInP2P, idx.P2PIndex),
	}, nil
}

func (e *Engine) executeSupplyCollateral(market *Market, indexes Indexes, balance *UserBalance, amount *big.Int, journal *actionJournal) *big.Int {
	wasZero := balance.Collateral.Sign() == 0
	scaled := rayDivDown(amount, indexes.Supply.PoolIndex)
	balance.Collateral = new(big.Int).Add(balance.Collateral, scaled)
	market.ScaledCollateral = new(big.Int).Add(market.ScaledCollateral, scaled)
	if wasZero && balance.Collateral.Sign() > 0 {
		journal.setMembership(balance.User, true)
	}
	return rayMulDown(balance.Collateral, indexes.Supply.PoolIndex)
}

func (e *Engine) executeWithdrawCollateral(market *Market, indexes Indexes, balance *UserBalance, amount *big.Int, journal *actionJournal) *big.Int {
	value := rayMulDown(balance.Collateral, indexes.Supply.PoolIndex)
	dec := scaledReduction(balance.Collateral, amount, value, indexes.Supply.PoolIndex)
	balance.Collateral = zeroFloorSub(balance.Collateral, dec)
	market.ScaledCollateral = zeroFloorSub(market.ScaledCollateral, dec)
	if balance.Collateral.Sign() == 0 {
		journal.setMembership(balance.User, false)
	}
	return rayMulDown(balance.Collateral, indexes.Supply.PoolIndex)
}

// scaledReduction converts an underlying reduction into scaled units. A full
// reduction zeroes the scaled balance exactly; partial reductions round up so
// the ledger never over-credits the position.
func scaledReduction(scaled, amount, value, index *big.Int) *big.Int {
	if amount.Cmp(value) >= 0 {
		return new(big.Int).Set(scaled)
	}
	return rayDivUp(amount, index)
}

// p2pFee is the spread accrued to the protocol: borrow-side P2P notional in
// excess of the supplier-funded backing. The supply delta is excluded from
// the backing because its cash leg sits on the pool, not with borrowers.
func (m *Market) p2pFee(indexes Indexes) *big.Int {
	borrowNotional := rayMulDown(m.Deltas.Borrow.ScaledTotalP2P, indexes.Borrow.P2PIndex)
	supplyBacked := zeroFloorSub(
		rayMulDown(m.Deltas.Supply.ScaledTotalP2P, indexes.Supply.P2PIndex),
		rayMulDown(m.Deltas.Supply.ScaledDelta, indexes.Supply.PoolIndex),
	)
	return zeroFloorSub(borrowNotional, supplyBacked)
}
