package lending

import (
	"math/big"
	"testing"
)

func newDeltaMarket() *Market {
	m := &Market{Asset: testAsset}
	m.ensureDefaults()
	return m
}

func TestIncreaseDeltaZeroAmountIsSilentNoop(t *testing.T) {
	m := newDeltaMarket()
	em := &recordingEmitter{}
	m.IncreaseDelta(SideSupply, big.NewInt(0), ray, em)
	m.IncreaseDelta(SideSupply, nil, ray, em)
	wantBig(t, "scaledDelta", m.Deltas.Supply.ScaledDelta, 0)
	if len(em.events) != 0 {
		t.Fatalf("events = %d, want 0", len(em.events))
	}
}

func TestIncreaseDeltaAccumulatesAndEmits(t *testing.T) {
	m := newDeltaMarket()
	em := &recordingEmitter{}
	m.IncreaseDelta(SideBorrow, big.NewInt(40), ray, em)
	m.IncreaseDelta(SideBorrow, big.NewInt(10), ray, em)
	wantBig(t, "scaledDelta", m.Deltas.Borrow.ScaledDelta, 50)
	if got := em.countType(EventTypeBorrowDeltaUpdated); got != 2 {
		t.Fatalf("delta events = %d, want 2", got)
	}
}

func TestDecreaseDeltaSaturatesAtZero(t *testing.T) {
	m := newDeltaMarket()
	em := &recordingEmitter{}
	m.IncreaseDelta(SideSupply, big.NewInt(30), ray, em)

	remaining, matched := m.DecreaseDelta(SideSupply, big.NewInt(100), ray, em)
	wantBig(t, "remaining", remaining, 70)
	wantBig(t, "matched", matched, 30)
	wantBig(t, "scaledDelta", m.Deltas.Supply.ScaledDelta, 0)

	remaining, matched = m.DecreaseDelta(SideSupply, big.NewInt(5), ray, em)
	wantBig(t, "remaining", remaining, 5)
	wantBig(t, "matched", matched, 0)
}

func TestDecreaseDeltaPartial(t *testing.T) {
	m := newDeltaMarket()
	m.IncreaseDelta(SideBorrow, big.NewInt(50), ray, nil)
	remaining, matched := m.DecreaseDelta(SideBorrow, big.NewInt(20), ray, nil)
	wantBig(t, "remaining", remaining, 0)
	wantBig(t, "matched", matched, 20)
	wantBig(t, "scaledDelta", m.Deltas.Borrow.ScaledDelta, 30)
}

func TestBorrowIdleConsumesThenStops(t *testing.T) {
	m := newDeltaMarket()
	m.Idle = big.NewInt(25)
	remaining, used := m.borrowIdle(big.NewInt(40), nil)
	wantBig(t, "remaining", remaining, 15)
	wantBig(t, "used", used, 25)
	wantBig(t, "idle", m.Idle, 0)

	remaining, used = m.borrowIdle(big.NewInt(10), nil)
	wantBig(t, "remaining", remaining, 10)
	wantBig(t, "used", used, 0)
}

func TestIncreaseIdleParksOnlyCapExcess(t *testing.T) {
	m := newDeltaMarket()
	em := &recordingEmitter{}
	depositable, parked := m.increaseIdle(big.NewInt(100), big.NewInt(60), big.NewInt(0), em)
	wantBig(t, "depositable", depositable, 60)
	wantBig(t, "parked", parked, 40)
	wantBig(t, "idle", m.Idle, 40)
	if got := em.countType(EventTypeIdleSupplyUpdated); got != 1 {
		t.Fatalf("idle events = %d, want 1", got)
	}
}

func TestIncreaseIdleUncappedPool(t *testing.T) {
	m := newDeltaMarket()
	depositable, parked := m.increaseIdle(big.NewInt(100), big.NewInt(0), big.NewInt(0), nil)
	wantBig(t, "depositable", depositable, 100)
	wantBig(t, "parked", parked, 0)
	wantBig(t, "idle", m.Idle, 0)
}

func TestRoundingDirections(t *testing.T) {
	idx := new(big.Int).Mul(big.NewInt(3), ray) // 3.0
	if got := rayDivDown(big.NewInt(10), idx); got.Cmp(big.NewInt(3)) != 0 {
		t.Fatalf("rayDivDown = %v, want 3", got)
	}
	if got := rayDivUp(big.NewInt(10), idx); got.Cmp(big.NewInt(4)) != 0 {
		t.Fatalf("rayDivUp = %v, want 4", got)
	}
	half := new(big.Int).Quo(ray, big.NewInt(2))
	if got := rayMulDown(big.NewInt(5), half); got.Cmp(big.NewInt(2)) != 0 {
		t.Fatalf("rayMulDown = %v, want 2", got)
	}
	if got := rayMulUp(big.NewInt(5), half); got.Cmp(big.NewInt(3)) != 0 {
		t.Fatalf("rayMulUp = %v, want 3", got)
	}
	if got := zeroFloorSub(big.NewInt(3), big.NewInt(10)); got.Sign() != 0 {
		t.Fatalf("zeroFloorSub = %v, want 0", got)
	}
}
