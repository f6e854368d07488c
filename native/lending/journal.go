package lending

import (
	"github.com/ethereum/go-ethereum/common"

	"peerlend/core/types"
)

// actionJournal buffers every write of one accounting action: balance records,
// collateral membership changes and observations. Nothing reaches the store or
// the emitter until the whole transition has succeeded, so a failed action
// persists nothing and emits nothing.
//
// The journal also serves as the action's balance cache: a user touched twice
// in one action (the actor matched as their own counterparty, or a
// counterparty hit by both a promotion and a demotion) resolves to the same
// record.
type actionJournal struct {
	balances    map[common.Address]*UserBalance
	order       []common.Address
	memberships []membershipChange
	events      []*types.Event
}

type membershipChange struct {
	user   common.Address
	member bool
}

func newActionJournal() *actionJournal {
	return &actionJournal{balances: make(map[common.Address]*UserBalance)}
}

// Emit queues an observation for flush at commit. The journal satisfies
// events.Emitter so the delta and idle helpers write through it.
func (j *actionJournal) Emit(event *types.Event) {
	j.events = append(j.events, event)
}

func (j *actionJournal) record(balance *UserBalance) {
	if _, ok := j.balances[balance.User]; !ok {
		j.order = append(j.order, balance.User)
	}
	j.balances[balance.User] = balance
}

func (j *actionJournal) balance(user common.Address) (*UserBalance, bool) {
	b, ok := j.balances[user]
	return b, ok
}

func (j *actionJournal) setMembership(user common.Address, member bool) {
	j.memberships = append(j.memberships, membershipChange{user: user, member: member})
}
