package lending

import (
	"math/big"

	"peerlend/core/events"
)

// The delta tracker keeps each market side solvent under partial matching: any
// P2P notional whose real counterpart could not be promoted or demoted within
// the iteration budget is recorded here, backed by an equivalent pool
// position.
//
// Rounding keeps the tracked delta at or below its nominal P2P backing:
// increases round the scaled value down, decreases round the scaled
// subtraction up.

// IncreaseDelta adds amount, converted to pool-index-scaled units, to the
// side's delta. A zero amount is a no-op and emits nothing.
func (m *Market) IncreaseDelta(side MarketSide, amount *big.Int, poolIndex *big.Int, em events.Emitter) {
	if m == nil || amount == nil || amount.Sign() == 0 {
		return
	}
	delta := m.Deltas.side(side)
	delta.ScaledDelta = new(big.Int).Add(bigOrZero(delta.ScaledDelta), rayDivDown(amount, poolIndex))
	if em != nil {
		em.Emit(newDeltaEvent(m.Asset, side, delta.ScaledDelta))
	}
}

// DecreaseDelta absorbs up to min(delta value in underlying units, amount)
// from the side's delta and returns the unabsorbed remainder together with
// the absorbed amount. The subtraction saturates at zero. A zero amount or an
// empty delta leaves the side untouched and emits nothing.
func (m *Market) DecreaseDelta(side MarketSide, amount *big.Int, poolIndex *big.Int, em events.Emitter) (remaining, matched *big.Int) {
	if m == nil || amount == nil || amount.Sign() == 0 {
		return bigOrZero(amount), big.NewInt(0)
	}
	delta := m.Deltas.side(side)
	scaled := bigOrZero(delta.ScaledDelta)
	if scaled.Sign() == 0 {
		return new(big.Int).Set(amount), big.NewInt(0)
	}
	matched = minBig(rayMulDown(scaled, poolIndex), amount)
	if matched.Sign() == 0 {
		return new(big.Int).Set(amount), big.NewInt(0)
	}
	delta.ScaledDelta = zeroFloorSub(scaled, rayDivUp(matched, poolIndex))
	if em != nil {
		em.Emit(newDeltaEvent(m.Asset, side, delta.ScaledDelta))
	}
	return new(big.Int).Sub(amount, matched), matched
}

// borrowIdle redeploys idle supply against new borrow demand. Returns the
// unfilled remainder and the idle amount consumed.
func (m *Market) borrowIdle(amount *big.Int, em events.Emitter) (remaining, idleUsed *big.Int) {
	idle := bigOrZero(m.Idle)
	if idle.Sign() == 0 || amount == nil || amount.Sign() == 0 {
		return bigOrZero(amount), big.NewInt(0)
	}
	idleUsed = minBig(idle, amount)
	m.Idle = new(big.Int).Sub(idle, idleUsed)
	if em != nil {
		em.Emit(newIdleSupplyEvent(m.Asset, m.Idle))
	}
	return new(big.Int).Sub(amount, idleUsed), idleUsed
}

// increaseIdle withholds from a pool deposit whatever would breach the pool's
// supply cap and parks it as idle supply. Returns the amount that may still be
// deposited and the amount parked.
func (m *Market) increaseIdle(amount, supplyCap, poolSupplyTotal *big.Int, em events.Emitter) (depositable, parked *big.Int) {
	if amount == nil || amount.Sign() == 0 || supplyCap == nil || supplyCap.Sign() == 0 {
		return bigOrZero(amount), big.NewInt(0)
	}
	projected := new(big.Int).Add(bigOrZero(poolSupplyTotal), amount)
	parked = minBig(zeroFloorSub(projected, supplyCap), amount)
	if parked.Sign() == 0 {
		return new(big.Int).Set(amount), big.NewInt(0)
	}
	m.Idle = new(big.Int).Add(bigOrZero(m.Idle), parked)
	if em != nil {
		em.Emit(newIdleSupplyEvent(m.Asset, m.Idle))
	}
	return new(big.Int).Sub(amount, parked), parked
}
