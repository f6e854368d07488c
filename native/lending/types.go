package lending

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// MarketSide selects the supply or borrow half of a market's books.
type MarketSide uint8

const (
	SideSupply MarketSide = iota
	SideBorrow
)

func (s MarketSide) String() string {
	if s == SideBorrow {
		return "borrow"
	}
	return "supply"
}

// Opposite returns the other side of the market.
func (s MarketSide) Opposite() MarketSide {
	if s == SideSupply {
		return SideBorrow
	}
	return SideSupply
}

// SideIndexes carries the two accrual factors for one side of a market,
// expressed in ray. Both are monotonically non-decreasing and supplied by the
// risk provider for the current moment.
type SideIndexes struct {
	PoolIndex *big.Int
	P2PIndex  *big.Int
}

// Indexes groups the refreshed accrual factors for both sides.
type Indexes struct {
	Supply SideIndexes
	Borrow SideIndexes
}

// Side returns the indexes for the requested market side.
func (i Indexes) Side(side MarketSide) SideIndexes {
	if side == SideBorrow {
		return i.Borrow
	}
	return i.Supply
}

// MarketSideDelta records the gap between promised P2P notional and its real
// matched counterpart on one side of a market.
type MarketSideDelta struct {
	// ScaledDelta is the notional currently lacking a matched counterpart,
	// backed instead by an equivalent pool position. Pool-index units.
	ScaledDelta *big.Int
	// ScaledTotalP2P is the total P2P notional on this side, delta-backed
	// and idle-backed portions included. P2P-index units.
	ScaledTotalP2P *big.Int
}

// Deltas groups the side deltas of a market.
type Deltas struct {
	Supply MarketSideDelta
	Borrow MarketSideDelta
}

func (d *Deltas) side(side MarketSide) *MarketSideDelta {
	if side == SideBorrow {
		return &d.Borrow
	}
	return &d.Supply
}

// PauseStatuses gates each action type independently.
type PauseStatuses struct {
	Supply             bool
	Borrow             bool
	Repay              bool
	Withdraw           bool
	SupplyCollateral   bool
	WithdrawCollateral bool
	Liquidate          bool
}

// Market is the per-asset ledger state. Amounts are wei-denominated big
// integers; scaled values recover their underlying amount by multiplication
// with the current index.
type Market struct {
	// Asset identifies the underlying token of this market.
	Asset common.Address
	// Pauses holds the per-action-type pause flags.
	Pauses PauseStatuses
	// Deltas tracks the unmatched P2P notional per side.
	Deltas Deltas
	// Idle is the supply amount withheld from the pool because depositing
	// would breach the pool's supply cap. Underlying units.
	Idle *big.Int
	// P2PDisabled forces pure pool fallback for new volume when set.
	P2PDisabled bool
	// RiskCategory is the pool risk-category id this market must stay
	// consistent with when borrowing.
	RiskCategory uint8
	// Deprecated marks the market for wind-down; liquidations may then close
	// the full debt.
	Deprecated bool
	// ScaledPoolSupply mirrors the sum of all users' supply-side scaled
	// on-pool balances.
	ScaledPoolSupply *big.Int
	// ScaledPoolBorrow mirrors the sum of all users' borrow-side scaled
	// on-pool balances.
	ScaledPoolBorrow *big.Int
	// ScaledCollateral mirrors the sum of all users' scaled collateral.
	ScaledCollateral *big.Int
}

func (m *Market) ensureDefaults() {
	if m == nil {
		return
	}
	m.Idle = bigOrZero(m.Idle)
	m.ScaledPoolSupply = bigOrZero(m.ScaledPoolSupply)
	m.ScaledPoolBorrow = bigOrZero(m.ScaledPoolBorrow)
	m.ScaledCollateral = bigOrZero(m.ScaledCollateral)
	m.Deltas.Supply.ScaledDelta = bigOrZero(m.Deltas.Supply.ScaledDelta)
	m.Deltas.Supply.ScaledTotalP2P = bigOrZero(m.Deltas.Supply.ScaledTotalP2P)
	m.Deltas.Borrow.ScaledDelta = bigOrZero(m.Deltas.Borrow.ScaledDelta)
	m.Deltas.Borrow.ScaledTotalP2P = bigOrZero(m.Deltas.Borrow.ScaledTotalP2P)
}

// Clone returns a deep copy so callers cannot mutate ledger state in place.
func (m *Market) Clone() *Market {
	if m == nil {
		return nil
	}
	clone := &Market{
		Asset:        m.Asset,
		Pauses:       m.Pauses,
		P2PDisabled:  m.P2PDisabled,
		RiskCategory: m.RiskCategory,
		Deprecated:   m.Deprecated,
	}
	clone.Idle = new(big.Int).Set(bigOrZero(m.Idle))
	clone.ScaledPoolSupply = new(big.Int).Set(bigOrZero(m.ScaledPoolSupply))
	clone.ScaledPoolBorrow = new(big.Int).Set(bigOrZero(m.ScaledPoolBorrow))
	clone.ScaledCollateral = new(big.Int).Set(bigOrZero(m.ScaledCollateral))
	clone.Deltas.Supply.ScaledDelta = new(big.Int).Set(bigOrZero(m.Deltas.Supply.ScaledDelta))
	clone.Deltas.Supply.ScaledTotalP2P = new(big.Int).Set(bigOrZero(m.Deltas.Supply.ScaledTotalP2P))
	clone.Deltas.Borrow.ScaledDelta = new(big.Int).Set(bigOrZero(m.Deltas.Borrow.ScaledDelta))
	clone.Deltas.Borrow.ScaledTotalP2P = new(big.Int).Set(bigOrZero(m.Deltas.Borrow.ScaledTotalP2P))
	return clone
}

// SideBalance is one side of a user's position in a market.
type SideBalance struct {
	// ScaledOnPool is the pool-backed portion, pool-index units.
	ScaledOnPool *big.Int
	// ScaledInP2P is the peer-matched portion, P2P-index units.
	ScaledInP2P *big.Int
}

// UserBalance is a user's full position in one market. Records are created on
// first interaction and zeroed, never destroyed.
type UserBalance struct {
	User   common.Address
	Supply SideBalance
	Borrow SideBalance
	// Collateral is pool-index scaled only; collateral has no P2P component.
	Collateral *big.Int
}

func (b *UserBalance) ensureDefaults() {
	if b == nil {
		return
	}
	b.Supply.ScaledOnPool = bigOrZero(b.Supply.ScaledOnPool)
	b.Supply.ScaledInP2P = bigOrZero(b.Supply.ScaledInP2P)
	b.Borrow.ScaledOnPool = bigOrZero(b.Borrow.ScaledOnPool)
	b.Borrow.ScaledInP2P = bigOrZero(b.Borrow.ScaledInP2P)
	b.Collateral = bigOrZero(b.Collateral)
}

func (b *UserBalance) side(side MarketSide) *SideBalance {
	if side == SideBorrow {
		return &b.Borrow
	}
	return &b.Supply
}

// Clone returns a deep copy of the balance record.
func (b *UserBalance) Clone() *UserBalance {
	if b == nil {
		return nil
	}
	clone := &UserBalance{User: b.User}
	clone.Supply.ScaledOnPool = new(big.Int).Set(bigOrZero(b.Supply.ScaledOnPool))
	clone.Supply.ScaledInP2P = new(big.Int).Set(bigOrZero(b.Supply.ScaledInP2P))
	clone.Borrow.ScaledOnPool = new(big.Int).Set(bigOrZero(b.Borrow.ScaledOnPool))
	clone.Borrow.ScaledInP2P = new(big.Int).Set(bigOrZero(b.Borrow.ScaledInP2P))
	clone.Collateral = new(big.Int).Set(bigOrZero(b.Collateral))
	return clone
}

// Position is an underlying-unit view of one side of a user's balance.
type Position struct {
	OnPool *big.Int
	InP2P  *big.Int
	Total  *big.Int
}

func positionFromBalance(b SideBalance, idx SideIndexes, side MarketSide) Position {
	var onPool, inP2P *big.Int
	if side == SideBorrow {
		// Amounts owed round up.
		onPool = rayMulUp(b.ScaledOnPool, idx.PoolIndex)
		inP2P = rayMulUp(b.ScaledInP2P, idx.P2PIndex)
	} else {
		onPool = rayMulDown(b.ScaledOnPool, idx.PoolIndex)
		inP2P = rayMulDown(b.ScaledInP2P, idx.P2PIndex)
	}
	return Position{OnPool: onPool, InP2P: inP2P, Total: new(big.Int).Add(onPool, inP2P)}
}

// ActionResult reports how an accounting operation was satisfied, in
// underlying units.
type ActionResult struct {
	// ToPool is the portion routed to or from the external pool.
	ToPool *big.Int
	// ToPeer is the portion satisfied by direct peer matching.
	ToPeer *big.Int
	// OnPool is the user's resulting pool-backed amount on the acted side.
	OnPool *big.Int
	// InP2P is the user's resulting peer-matched amount on the acted side.
	InP2P *big.Int
}
