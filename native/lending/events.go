package lending

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"peerlend/core/types"
)

const (
	EventTypeSupplied            = "lending.supplied"
	EventTypeBorrowed            = "lending.borrowed"
	EventTypeRepaid              = "lending.repaid"
	EventTypeWithdrawn           = "lending.withdrawn"
	EventTypeCollateralSupplied  = "lending.collateral.supplied"
	EventTypeCollateralWithdrawn = "lending.collateral.withdrawn"
	EventTypeSupplyDeltaUpdated  = "lending.supply_delta.updated"
	EventTypeBorrowDeltaUpdated  = "lending.borrow_delta.updated"
	EventTypeSupplyPositionMoved = "lending.supply_position.moved"
	EventTypeBorrowPositionMoved = "lending.borrow_position.moved"
	EventTypeIdleSupplyUpdated   = "lending.idle_supply.updated"
)

func bigAttr(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// newActionEvent returns the canonical payload for a supply, borrow, repay or
// withdraw observation.
func newActionEvent(eventType string, caller, onBehalf, asset common.Address, amount *big.Int, res *ActionResult) *types.Event {
	attrs := map[string]string{
		"actor":    caller.Hex(),
		"onBehalf": onBehalf.Hex(),
		"asset":    asset.Hex(),
		"amount":   bigAttr(amount),
	}
	if res != nil {
		attrs["onPool"] = bigAttr(res.OnPool)
		attrs["inP2P"] = bigAttr(res.InP2P)
	}
	return &types.Event{Type: eventType, Attributes: attrs}
}

// newCollateralEvent returns the payload for collateral observations; the
// resulting balance is reported in underlying units.
func newCollateralEvent(eventType string, caller, asset common.Address, amount, balance *big.Int) *types.Event {
	return &types.Event{Type: eventType, Attributes: map[string]string{
		"actor":   caller.Hex(),
		"asset":   asset.Hex(),
		"amount":  bigAttr(amount),
		"balance": bigAttr(balance),
	}}
}

// newDeltaEvent reports the new scaled delta value for one market side.
func newDeltaEvent(asset common.Address, side MarketSide, scaledDelta *big.Int) *types.Event {
	eventType := EventTypeSupplyDeltaUpdated
	if side == SideBorrow {
		eventType = EventTypeBorrowDeltaUpdated
	}
	return &types.Event{Type: eventType, Attributes: map[string]string{
		"asset":       asset.Hex(),
		"side":        side.String(),
		"scaledDelta": bigAttr(scaledDelta),
	}}
}

// newPositionMovedEvent reports a counterparty position updated by promotion
// or demotion.
func newPositionMovedEvent(asset common.Address, side MarketSide, user common.Address, b SideBalance) *types.Event {
	eventType := EventTypeSupplyPositionMoved
	if side == SideBorrow {
		eventType = EventTypeBorrowPositionMoved
	}
	return &types.Event{Type: eventType, Attributes: map[string]string{
		"asset":        asset.Hex(),
		"user":         user.Hex(),
		"scaledOnPool": bigAttr(b.ScaledOnPool),
		"scaledInP2P":  bigAttr(b.ScaledInP2P),
	}}
}

func newIdleSupplyEvent(asset common.Address, idle *big.Int) *types.Event {
	return &types.Event{Type: EventTypeIdleSupplyUpdated, Attributes: map[string]string{
		"asset": asset.Hex(),
		"idle":  bigAttr(idle),
	}}
}
