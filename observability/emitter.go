package observability

import (
	"math/big"

	"peerlend/core/events"
	"peerlend/core/types"
	"peerlend/native/lending"
)

// MetricsEmitter publishes ledger observations as prometheus gauges and
// forwards every event to the wrapped emitter. Wrap the engine's emitter with
// it so the delta and idle-supply gauges track the books without polling.
type MetricsEmitter struct {
	next events.Emitter
}

// NewMetricsEmitter wraps next; a nil next makes the metrics the only sink.
func NewMetricsEmitter(next events.Emitter) *MetricsEmitter {
	if next == nil {
		next = events.NoopEmitter{}
	}
	return &MetricsEmitter{next: next}
}

func (m *MetricsEmitter) Emit(event *types.Event) {
	if event != nil {
		switch event.Type {
		case lending.EventTypeSupplyDeltaUpdated, lending.EventTypeBorrowDeltaUpdated:
			SetScaledDelta(event.Attributes["asset"], event.Attributes["side"], attrFloat(event.Attributes["scaledDelta"]))
		case lending.EventTypeIdleSupplyUpdated:
			SetIdleSupply(event.Attributes["asset"], attrFloat(event.Attributes["idle"]))
		}
	}
	m.next.Emit(event)
}

func attrFloat(raw string) float64 {
	v, ok := new(big.Float).SetString(raw)
	if !ok {
		return 0
	}
	f, _ := v.Float64()
	return f
}
