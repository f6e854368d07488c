package lending

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// PromotionKind selects the matching strategy: which side's pool users get
// promoted into P2P matches.
type PromotionKind uint8

const (
	PromoteSuppliers PromotionKind = iota
	PromoteBorrowers
)

func (k PromotionKind) side() MarketSide {
	if k == PromoteBorrowers {
		return SideBorrow
	}
	return SideSupply
}

// matchResult accumulates the outcome of one promotion or demotion walk.
// scaledP2P is the exact sum of the per-user ScaledInP2P adjustments, so the
// aggregate ScaledTotalP2P can be moved by the very same number and never
// drift from the per-user books.
type matchResult struct {
	moved          *big.Int
	scaledP2P      *big.Int
	remaining      *big.Int
	iterationsLeft uint64
}

// promoteRoutine converts pool positions on the strategy's side into P2P
// matches, bounded by maxIterations. A disabled market or a zero amount is a
// pure pool fallback: nothing is promoted and the budget is untouched.
// Counterparty balances move through the journal; the queues advance in memory
// as the walk proceeds and are reset if the action fails.
func (e *Engine) promoteRoutine(market *Market, indexes Indexes, amount *big.Int, maxIterations uint64, kind PromotionKind, journal *actionJournal) (matchResult, error) {
	res := matchResult{
		moved:          big.NewInt(0),
		scaledP2P:      big.NewInt(0),
		remaining:      new(big.Int).Set(bigOrZero(amount)),
		iterationsLeft: maxIterations,
	}
	if market.P2PDisabled || res.remaining.Sign() == 0 {
		return res, nil
	}
	side := kind.side()
	queues := e.queuesFor(market.Asset)
	q := queues.pool(side)
	idx := indexes.Side(side)

	for res.iterationsLeft > 0 && res.remaining.Sign() > 0 {
		user, ok := q.Match()
		if !ok {
			break
		}
		res.iterationsLeft--

		balance, err := e.journalBalance(market.Asset, user, journal)
		if err != nil {
			return res, err
		}
		sb := balance.side(side)
		poolValue := rayMulDown(sb.ScaledOnPool, idx.PoolIndex)
		if poolValue.Sign() == 0 {
			// Dust: the scaled balance no longer amounts to anything.
			q.Remove(user)
			continue
		}
		matched := minBig(poolValue, res.remaining)

		var poolDec *big.Int
		if matched.Cmp(poolValue) == 0 {
			poolDec = new(big.Int).Set(sb.ScaledOnPool)
			sb.ScaledOnPool = big.NewInt(0)
		} else {
			poolDec = rayDivUp(matched, idx.PoolIndex)
			sb.ScaledOnPool = zeroFloorSub(sb.ScaledOnPool, poolDec)
		}
		p2pInc := scaledP2PAmount(matched, idx.P2PIndex, side)
		sb.ScaledInP2P = new(big.Int).Add(sb.ScaledInP2P, p2pInc)

		e.subScaledPool(market, side, poolDec)
		res.moved.Add(res.moved, matched)
		res.scaledP2P.Add(res.scaledP2P, p2pInc)
		res.remaining.Sub(res.remaining, matched)

		e.journalCounterparty(market.Asset, side, balance, queues, journal)
	}
	return res, nil
}

// demoteRoutine is the inverse walk: it moves P2P-matched volume on the given
// side back to pool-only status, under the remaining iteration budget.
func (e *Engine) demoteRoutine(market *Market, indexes Indexes, amount *big.Int, maxIterations uint64, side MarketSide, journal *actionJournal) (matchResult, error) {
	res := matchResult{
		moved:          big.NewInt(0),
		scaledP2P:      big.NewInt(0),
		remaining:      new(big.Int).Set(bigOrZero(amount)),
		iterationsLeft: maxIterations,
	}
	if res.remaining.Sign() == 0 {
		return res, nil
	}
	queues := e.queuesFor(market.Asset)
	q := queues.p2p(side)
	idx := indexes.Side(side)

	for res.iterationsLeft > 0 && res.remaining.Sign() > 0 {
		user, ok := q.Match()
		if !ok {
			break
		}
		res.iterationsLeft--

		balance, err := e.journalBalance(market.Asset, user, journal)
		if err != nil {
			return res, err
		}
		sb := balance.side(side)
		p2pValue := rayMulDown(sb.ScaledInP2P, idx.P2PIndex)
		if p2pValue.Sign() == 0 {
			q.Remove(user)
			continue
		}
		matched := minBig(p2pValue, res.remaining)

		var p2pDec *big.Int
		if matched.Cmp(p2pValue) == 0 {
			p2pDec = new(big.Int).Set(sb.ScaledInP2P)
			sb.ScaledInP2P = big.NewInt(0)
		} else {
			p2pDec = rayDivUp(matched, idx.P2PIndex)
			sb.ScaledInP2P = zeroFloorSub(sb.ScaledInP2P, p2pDec)
		}
		poolInc := scaledPoolAmount(matched, idx.PoolIndex, side)
		sb.ScaledOnPool = new(big.Int).Add(sb.ScaledOnPool, poolInc)

		e.addScaledPool(market, side, poolInc)
		res.moved.Add(res.moved, matched)
		res.scaledP2P.Add(res.scaledP2P, p2pDec)
		res.remaining.Sub(res.remaining, matched)

		e.journalCounterparty(market.Asset, side, balance, queues, journal)
	}
	return res, nil
}

// scaledP2PAmount converts an underlying amount into the side's P2P-index
// units: debt rounds up, assets round down.
func scaledP2PAmount(amount *big.Int, p2pIndex *big.Int, side MarketSide) *big.Int {
	if side == SideBorrow {
		return rayDivUp(amount, p2pIndex)
	}
	return rayDivDown(amount, p2pIndex)
}

// scaledPoolAmount converts an underlying amount into the side's pool-index
// units with the same rounding rule.
func scaledPoolAmount(amount *big.Int, poolIndex *big.Int, side MarketSide) *big.Int {
	if side == SideBorrow {
		return rayDivUp(amount, poolIndex)
	}
	return rayDivDown(amount, poolIndex)
}

func (e *Engine) addScaledPool(market *Market, side MarketSide, scaled *big.Int) {
	if side == SideBorrow {
		market.ScaledPoolBorrow = new(big.Int).Add(market.ScaledPoolBorrow, scaled)
	} else {
		market.ScaledPoolSupply = new(big.Int).Add(market.ScaledPoolSupply, scaled)
	}
}

func (e *Engine) subScaledPool(market *Market, side MarketSide, scaled *big.Int) {
	if side == SideBorrow {
		market.ScaledPoolBorrow = zeroFloorSub(market.ScaledPoolBorrow, scaled)
	} else {
		market.ScaledPoolSupply = zeroFloorSub(market.ScaledPoolSupply, scaled)
	}
}

// journalCounterparty advances the walk's queue view and buffers the position
// observation. The balance itself is already in the journal; it reaches the
// store only at commit.
func (e *Engine) journalCounterparty(asset common.Address, side MarketSide, balance *UserBalance, queues *marketQueues, journal *actionJournal) {
	queues.update(side, balance)
	journal.Emit(newPositionMovedEvent(asset, side, balance.User, *balance.side(side)))
}
