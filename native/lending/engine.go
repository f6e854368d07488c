package lending

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"peerlend/core/events"
)

// Close-factor and health-factor bands used by liquidation authorization, in
// wad.
var (
	// MaxCloseFactor allows the full debt to be liquidated.
	MaxCloseFactor = new(big.Int).Set(wad)
	// DefaultCloseFactor allows half the debt to be liquidated.
	DefaultCloseFactor = mustBigInt("500000000000000000")
	// DefaultLiquidationThreshold is the health factor at or above which
	// liquidation is never authorized.
	DefaultLiquidationThreshold = new(big.Int).Set(wad)
	// MinLiquidationThreshold is the health factor below which the full
	// debt becomes liquidatable.
	MinLiquidationThreshold = mustBigInt("950000000000000000")
)

type engineState interface {
	GetMarket(asset common.Address) (*Market, error)
	PutMarket(market *Market) error
	GetUserBalance(asset, user common.Address) (*UserBalance, error)
	PutUserBalance(asset common.Address, balance *UserBalance) error
	UserList(asset common.Address) ([]common.Address, error)
	IsManagerApproved(owner, manager common.Address) (bool, error)
	SetManagerApproval(owner, manager common.Address, approved bool) error
	IsCollateralMember(asset, user common.Address) (bool, error)
	SetCollateralMembership(asset, user common.Address, member bool) error
}

// marketQueues holds the four in-memory matching queues of one market. They
// are rebuilt from persisted balances on first use and kept in lockstep with
// every balance mutation afterwards.
type marketQueues struct {
	poolSupply *MatchingQueue
	p2pSupply  *MatchingQueue
	poolBorrow *MatchingQueue
	p2pBorrow  *MatchingQueue
}

func newMarketQueues() *marketQueues {
	return &marketQueues{
		poolSupply: NewMatchingQueue(),
		p2pSupply:  NewMatchingQueue(),
		poolBorrow: NewMatchingQueue(),
		p2pBorrow:  NewMatchingQueue(),
	}
}

func (mq *marketQueues) pool(side MarketSide) *MatchingQueue {
	if side == SideBorrow {
		return mq.poolBorrow
	}
	return mq.poolSupply
}

func (mq *marketQueues) p2p(side MarketSide) *MatchingQueue {
	if side == SideBorrow {
		return mq.p2pBorrow
	}
	return mq.p2pSupply
}

func (mq *marketQueues) update(side MarketSide, balance *UserBalance) {
	sb := balance.side(side)
	mq.pool(side).Update(balance.User, sb.ScaledOnPool)
	mq.p2p(side).Update(balance.User, sb.ScaledInP2P)
}

// Engine orchestrates the overlay's accounting: for every supply, borrow,
// repay and withdraw it decides how much is satisfied by a direct peer match
// versus the external pool, and keeps the delta ledger solvent. The host
// serializes actions, so the engine holds no locks of its own.
type Engine struct {
	state    engineState
	pool     PoolAdapter
	risk     RiskProvider
	sentinel PriceSentinel
	emitter  events.Emitter
	queues   map[common.Address]*marketQueues
}

// NewEngine constructs an engine without collaborators; wire them with the
// setters before use.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		queues:  make(map[common.Address]*marketQueues),
	}
}

// SetState wires the engine to the persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetPoolAdapter wires the external pool adapter.
func (e *Engine) SetPoolAdapter(pool PoolAdapter) { e.pool = pool }

// SetRiskProvider wires the index and health collaborator.
func (e *Engine) SetRiskProvider(risk RiskProvider) { e.risk = risk }

// SetSentinel wires the price-oracle sentinel. A nil sentinel permits
// liquidations in the soft band.
func (e *Engine) SetSentinel(sentinel PriceSentinel) { e.sentinel = sentinel }

// SetEmitter configures the event emitter. Passing nil resets to a noop.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) wired() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.risk == nil {
		return errNilRisk
	}
	if e.pool == nil {
		return errNilPool
	}
	return nil
}

// CreateMarket registers a new per-asset ledger. Markets persist for the
// system's lifetime; creating one twice is an error.
func (e *Engine) CreateMarket(asset common.Address, riskCategory uint8, p2pEnabled bool) (*Market, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if asset == (common.Address{}) {
		return nil, ErrZeroAddress
	}
	existing, err := e.state.GetMarket(asset)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrMarketExists
	}
	market := &Market{Asset: asset, RiskCategory: riskCategory, P2PDisabled: !p2pEnabled}
	market.ensureDefaults()
	if err := e.state.PutMarket(market); err != nil {
		return nil, err
	}
	e.queues[asset] = newMarketQueues()
	return market.Clone(), nil
}

// SetPauseStatuses replaces the per-action pause flags of a market.
func (e *Engine) SetPauseStatuses(asset common.Address, pauses PauseStatuses) error {
	return e.updateMarket(asset, func(m *Market) { m.Pauses = pauses })
}

// SetP2PDisabled toggles peer matching for new volume.
func (e *Engine) SetP2PDisabled(asset common.Address, disabled bool) error {
	return e.updateMarket(asset, func(m *Market) { m.P2PDisabled = disabled })
}

// SetDeprecated marks a market for wind-down.
func (e *Engine) SetDeprecated(asset common.Address, deprecated bool) error {
	return e.updateMarket(asset, func(m *Market) { m.Deprecated = deprecated })
}

func (e *Engine) updateMarket(asset common.Address, mutate func(*Market)) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	market, err := e.loadMarket(asset)
	if err != nil {
		return err
	}
	mutate(market)
	return e.state.PutMarket(market)
}

// ApproveManager grants or revokes the manager's right to act on behalf of
// the owner.
func (e *Engine) ApproveManager(owner, manager common.Address, approved bool) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if owner == (common.Address{}) || manager == (common.Address{}) {
		return ErrZeroAddress
	}
	return e.state.SetManagerApproval(owner, manager, approved)
}

// Market returns a snapshot of the per-asset ledger state.
func (e *Engine) Market(asset common.Address) (*Market, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	market, err := e.loadMarket(asset)
	if err != nil {
		return nil, err
	}
	return market.Clone(), nil
}

// UserPosition reports the user's supply and borrow positions plus collateral
// in underlying units under the current indexes.
func (e *Engine) UserPosition(asset, user common.Address) (supply, borrow Position, collateral *big.Int, err error) {
	if err = e.wired(); err != nil {
		return Position{}, Position{}, nil, err
	}
	if _, err = e.loadMarket(asset); err != nil {
		return Position{}, Position{}, nil, err
	}
	indexes, err := e.risk.UpdatedIndexes(asset)
	if err != nil {
		return Position{}, Position{}, nil, err
	}
	balance, err := e.loadUserBalance(asset, user)
	if err != nil {
		return Position{}, Position{}, nil, err
	}
	supply = positionFromBalance(balance.Supply, indexes.Supply, SideSupply)
	borrow = positionFromBalance(balance.Borrow, indexes.Borrow, SideBorrow)
	collateral = rayMulDown(balance.Collateral, indexes.Supply.PoolIndex)
	return supply, borrow, collateral, nil
}

// Supply routes new liquidity: opposite-side delta absorption first, then
// promotion of pool borrowers, then pool fallback for the rest.
func (e *Engine) Supply(caller, onBehalf, asset common.Address, amount *big.Int, maxIterations uint64) (*ActionResult, error) {
	market, indexes, balance, journal, err := e.beginAction(caller, onBehalf, asset, amount)
	if err != nil {
		return nil, err
	}
	if err := e.authorizeSupply(market, indexes, amount); err != nil {
		return nil, err
	}
	res, err := e.executeSupply(market, indexes, balance, amount, maxIterations, journal)
	if err != nil {
		e.resetQueues(asset)
		return nil, err
	}
	if err := e.commitAction(market, journal); err != nil {
		e.resetQueues(asset)
		return nil, err
	}
	e.emitter.Emit(newActionEvent(EventTypeSupplied, caller, onBehalf, asset, amount, res))
	return res, nil
}

// Borrow routes new debt: idle supply first, then supply-side delta
// absorption, then promotion of pool suppliers, then pool fallback.
func (e *Engine) Borrow(caller, onBehalf, asset common.Address, amount *big.Int, maxIterations uint64) (*ActionResult, error) {
	market, indexes, balance, journal, err := e.beginAction(caller, onBehalf, asset, amount)
	if err != nil {
		return nil, err
	}
	if err := e.authorizeBorrow(market, indexes, onBehalf, amount); err != nil {
		return nil, err
	}
	res, err := e.executeBorrow(market, indexes, balance, amount, maxIterations, journal)
	if err != nil {
		e.resetQueues(asset)
		return nil, err
	}
	if err := e.commitAction(market, journal); err != nil {
		e.resetQueues(asset)
		return nil, err
	}
	e.emitter.Emit(newActionEvent(EventTypeBorrowed, caller, onBehalf, asset, amount, res))
	return res, nil
}

// Repay unwinds debt: the user's own pool debt first, then their P2P debt,
// then delta absorption, fee paydown, promotion of replacement borrowers and,
// as a last resort, demotion of matched suppliers.
func (e *Engine) Repay(caller, onBehalf, asset common.Address, amount *big.Int, maxIterations uint64) (*ActionResult, error) {
	market, indexes, balance, journal, err := e.beginAction(caller, onBehalf, asset, amount)
	if err != nil {
		return nil, err
	}
	if market.Pauses.Repay {
		return nil, ErrRepayPaused
	}
	capped := minBig(amount, positionFromBalance(balance.Borrow, indexes.Borrow, SideBorrow).Total)
	if capped.Sign() == 0 {
		return nil, ErrZeroAmount
	}
	res, err := e.executeRepay(market, indexes, balance, capped, maxIterations, journal)
	if err != nil {
		e.resetQueues(asset)
		return nil, err
	}
	if err := e.commitAction(market, journal); err != nil {
		e.resetQueues(asset)
		return nil, err
	}
	e.emitter.Emit(newActionEvent(EventTypeRepaid, caller, onBehalf, asset, capped, res))
	return res, nil
}

// Withdraw unwinds supplied liquidity: the user's own pool balance first,
// then their P2P balance, then delta absorption, promotion of replacement
// suppliers and, as a last resort, demotion of matched borrowers.
func (e *Engine) Withdraw(caller, onBehalf, asset common.Address, amount *big.Int, maxIterations uint64) (*ActionResult, error) {
	market, indexes, balance, journal, err := e.beginAction(caller, onBehalf, asset, amount)
	if err != nil {
		return nil, err
	}
	if market.Pauses.Withdraw {
		return nil, ErrWithdrawPaused
	}
	capped := minBig(amount, positionFromBalance(balance.Supply, indexes.Supply, SideSupply).Total)
	if capped.Sign() == 0 {
		return nil, ErrZeroAmount
	}
	res, err := e.executeWithdraw(market, indexes, balance, capped, maxIterations, journal)
	if err != nil {
		e.resetQueues(asset)
		return nil, err
	}
	if err := e.commitAction(market, journal); err != nil {
		e.resetQueues(asset)
		return nil, err
	}
	e.emitter.Emit(newActionEvent(EventTypeWithdrawn, caller, onBehalf, asset, capped, res))
	return res, nil
}

// SupplyCollateral locks collateral; collateral never enters P2P matching.
func (e *Engine) SupplyCollateral(caller, onBehalf, asset common.Address, amount *big.Int) (*big.Int, error) {
	market, indexes, balance, journal, err := e.beginAction(caller, onBehalf, asset, amount)
	if err != nil {
		return nil, err
	}
	if market.Pauses.SupplyCollateral {
		return nil, ErrSupplyCollateralPaused
	}
	newBalance := e.executeSupplyCollateral(market, indexes, balance, amount, journal)
	if err := e.commitAction(market, journal); err != nil {
		return nil, err
	}
	e.emitter.Emit(newCollateralEvent(EventTypeCollateralSupplied, caller, asset, amount, newBalance))
	return newBalance, nil
}

// WithdrawCollateral releases collateral, provided the position stays at or
// above the liquidation threshold.
func (e *Engine) WithdrawCollateral(caller, onBehalf, asset common.Address, amount *big.Int) (*big.Int, error) {
	market, indexes, balance, journal, err := e.beginAction(caller, onBehalf, asset, amount)
	if err != nil {
		return nil, err
	}
	if market.Pauses.WithdrawCollateral {
		return nil, ErrWithdrawCollateralPaused
	}
	capped := minBig(amount, rayMulDown(balance.Collateral, indexes.Supply.PoolIndex))
	if capped.Sign() == 0 {
		return nil, ErrZeroAmount
	}
	if err := e.authorizeWithdrawCollateral(market, onBehalf, capped); err != nil {
		return nil, err
	}
	newBalance := e.executeWithdrawCollateral(market, indexes, balance, capped, journal)
	if err := e.commitAction(market, journal); err != nil {
		return nil, err
	}
	e.emitter.Emit(newCollateralEvent(EventTypeCollateralWithdrawn, caller, asset, capped, newBalance))
	return newBalance, nil
}

// beginAction performs the input validation and loading shared by every
// accounting operation and opens the action's write journal. No mutation
// happens before it returns.
func (e *Engine) beginAction(caller, onBehalf, asset common.Address, amount *big.Int) (*Market, Indexes, *UserBalance, *actionJournal, error) {
	if err := e.wired(); err != nil {
		return nil, Indexes{}, nil, nil, err
	}
	if caller == (common.Address{}) || onBehalf == (common.Address{}) || asset == (common.Address{}) {
		return nil, Indexes{}, nil, nil, ErrZeroAddress
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, Indexes{}, nil, nil, ErrZeroAmount
	}
	market, err := e.loadMarket(asset)
	if err != nil {
		return nil, Indexes{}, nil, nil, err
	}
	if err := e.validatePermission(caller, onBehalf); err != nil {
		return nil, Indexes{}, nil, nil, err
	}
	indexes, err := e.risk.UpdatedIndexes(asset)
	if err != nil {
		return nil, Indexes{}, nil, nil, err
	}
	if err := e.ensureQueues(asset); err != nil {
		return nil, Indexes{}, nil, nil, err
	}
	balance, err := e.loadUserBalance(asset, onBehalf)
	if err != nil {
		return nil, Indexes{}, nil, nil, err
	}
	journal := newActionJournal()
	journal.record(balance)
	return market, indexes, balance, journal, nil
}

// commitAction flushes the journal: every touched balance, the market, the
// collateral membership changes, the queue positions and finally the buffered
// observations. Nothing was persisted before this point, so an action that
// failed mid-transition left the store untouched.
func (e *Engine) commitAction(market *Market, journal *actionJournal) error {
	for _, user := range journal.order {
		if err := e.state.PutUserBalance(market.Asset, journal.balances[user]); err != nil {
			return err
		}
	}
	if err := e.state.PutMarket(market); err != nil {
		return err
	}
	for _, change := range journal.memberships {
		if err := e.state.SetCollateralMembership(market.Asset, change.user, change.member); err != nil {
			return err
		}
	}
	queues := e.queuesFor(market.Asset)
	for _, user := range journal.order {
		balance := journal.balances[user]
		queues.update(SideSupply, balance)
		queues.update(SideBorrow, balance)
	}
	for _, event := range journal.events {
		e.emitter.Emit(event)
	}
	return nil
}

// resetQueues drops a market's in-memory queues after a failed action; any
// walk-time queue movement is rebuilt from persisted state on the next touch.
func (e *Engine) resetQueues(asset common.Address) {
	delete(e.queues, asset)
}

func (e *Engine) loadMarket(asset common.Address) (*Market, error) {
	market, err := e.state.GetMarket(asset)
	if err != nil {
		return nil, err
	}
	if market == nil {
		return nil, ErrMarketNotCreated
	}
	market.ensureDefaults()
	return market, nil
}

// journalBalance resolves a user's balance through the action journal so
// repeated touches within one action share one record.
func (e *Engine) journalBalance(asset, user common.Address, journal *actionJournal) (*UserBalance, error) {
	if balance, ok := journal.balance(user); ok {
		return balance, nil
	}
	balance, err := e.loadUserBalance(asset, user)
	if err != nil {
		return nil, err
	}
	journal.record(balance)
	return balance, nil
}

func (e *Engine) loadUserBalance(asset, user common.Address) (*UserBalance, error) {
	balance, err := e.state.GetUserBalance(asset, user)
	if err != nil {
		return nil, err
	}
	if balance == nil {
		balance = &UserBalance{User: user}
	}
	balance.ensureDefaults()
	return balance, nil
}

// ensureQueues rebuilds the market's matching queues from persisted balances
// on first touch after startup.
func (e *Engine) ensureQueues(asset common.Address) error {
	if _, ok := e.queues[asset]; ok {
		return nil
	}
	queues := newMarketQueues()
	users, err := e.state.UserList(asset)
	if err != nil {
		return err
	}
	for _, user := range users {
		balance, err := e.loadUserBalance(asset, user)
		if err != nil {
			return err
		}
		queues.update(SideSupply, balance)
		queues.update(SideBorrow, balance)
	}
	e.queues[asset] = queues
	return nil
}

func (e *Engine) queuesFor(asset common.Address) *marketQueues {
	queues, ok := e.queues[asset]
	if !ok {
		queues = newMarketQueues()
		e.queues[asset] = queues
	}
	return queues
}
