package state

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"

	"peerlend/native/lending"
	"peerlend/storage"
)

// Key prefixes for the overlay ledger. Matching queues are deliberately not
// persisted; the engine rebuilds them from the user index on first touch.
const (
	marketPrefix     = "lending/market/"
	userPrefix       = "lending/user/"
	userIndexPrefix  = "lending/users/"
	approvalPrefix   = "lending/approval/"
	collateralPrefix = "lending/collateral/"
)

// ErrValueOverflow is returned when a balance no longer fits a 256-bit word.
var ErrValueOverflow = errors.New("state: value overflows 256 bits")

// Manager persists markets and user balances as RLP records over a key-value
// store and implements the engine's state interface.
type Manager struct {
	mu sync.Mutex
	db storage.Database

	// userIndex caches the per-market user list so balance writes do not
	// re-read it on every action.
	userIndex map[common.Address]map[common.Address]struct{}
}

func NewManager(db storage.Database) *Manager {
	return &Manager{
		db:        db,
		userIndex: make(map[common.Address]map[common.Address]struct{}),
	}
}

type storedSideDelta struct {
	ScaledDelta    *uint256.Int
	ScaledTotalP2P *uint256.Int
}

type storedMarket struct {
	Asset            common.Address
	PauseBits        uint16
	SupplyDelta      storedSideDelta
	BorrowDelta      storedSideDelta
	Idle             *uint256.Int
	P2PDisabled      bool
	RiskCategory     uint8
	Deprecated       bool
	ScaledPoolSupply *uint256.Int
	ScaledPoolBorrow *uint256.Int
	ScaledCollateral *uint256.Int
}

type storedSideBalance struct {
	ScaledOnPool *uint256.Int
	ScaledInP2P  *uint256.Int
}

type storedUserBalance struct {
	User       common.Address
	Supply     storedSideBalance
	Borrow     storedSideBalance
	Collateral *uint256.Int
}

const (
	pauseSupplyBit = 1 << iota
	pauseBorrowBit
	pauseRepayBit
	pauseWithdrawBit
	pauseSupplyCollateralBit
	pauseWithdrawCollateralBit
	pauseLiquidateBit
)

func packPauses(p lending.PauseStatuses) uint16 {
	var bits uint16
	set := func(on bool, bit uint16) {
		if on {
			bits |= bit
		}
	}
	set(p.Supply, pauseSupplyBit)
	set(p.Borrow, pauseBorrowBit)
	set(p.Repay, pauseRepayBit)
	set(p.Withdraw, pauseWithdrawBit)
	set(p.SupplyCollateral, pauseSupplyCollateralBit)
	set(p.WithdrawCollateral, pauseWithdrawCollateralBit)
	set(p.Liquidate, pauseLiquidateBit)
	return bits
}

func unpackPauses(bits uint16) lending.PauseStatuses {
	return lending.PauseStatuses{
		Supply:             bits&pauseSupplyBit != 0,
		Borrow:             bits&pauseBorrowBit != 0,
		Repay:              bits&pauseRepayBit != 0,
		Withdraw:           bits&pauseWithdrawBit != 0,
		SupplyCollateral:   bits&pauseSupplyCollateralBit != 0,
		WithdrawCollateral: bits&pauseWithdrawCollateralBit != 0,
		Liquidate:          bits&pauseLiquidateBit != 0,
	}
}

// GetMarket loads the market record for the asset; a missing record returns
// (nil, nil).
func (m *Manager) GetMarket(asset common.Address) (*lending.Market, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, err := m.db.Get(marketKey(asset))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("state: load market: %w", err)
	}
	var stored storedMarket
	if err := rlp.DecodeBytes(raw, &stored); err != nil {
		return nil, fmt.Errorf("state: decode market: %w", err)
	}
	market := &lending.Market{
		Asset:        stored.Asset,
		Pauses:       unpackPauses(stored.PauseBits),
		Idle:         stored.Idle.ToBig(),
		P2PDisabled:  stored.P2PDisabled,
		RiskCategory: stored.RiskCategory,
		Deprecated:   stored.Deprecated,
		ScaledPoolSupply: stored.ScaledPoolSupply.ToBig(),
		ScaledPoolBorrow: stored.ScaledPoolBorrow.ToBig(),
		ScaledCollateral: stored.ScaledCollateral.ToBig(),
	}
	market.Deltas.Supply.ScaledDelta = stored.SupplyDelta.ScaledDelta.ToBig()
	market.Deltas.Supply.ScaledTotalP2P = stored.SupplyDelta.ScaledTotalP2P.ToBig()
	market.Deltas.Borrow.ScaledDelta = stored.BorrowDelta.ScaledDelta.ToBig()
	market.Deltas.Borrow.ScaledTotalP2P = stored.BorrowDelta.ScaledTotalP2P.ToBig()
	return market, nil
}

// PutMarket writes the market record.
func (m *Manager) PutMarket(market *lending.Market) error {
	if market == nil {
		return errors.New("state: nil market")
	}
	stored := storedMarket{
		Asset:        market.Asset,
		PauseBits:    packPauses(market.Pauses),
		P2PDisabled:  market.P2PDisabled,
		RiskCategory: market.RiskCategory,
		Deprecated:   market.Deprecated,
	}
	var err error
	if stored.Idle, err = toWord(market.Idle); err != nil {
		return err
	}
	if stored.ScaledPoolSupply, err = toWord(market.ScaledPoolSupply); err != nil {
		return err
	}
	if stored.ScaledPoolBorrow, err = toWord(market.ScaledPoolBorrow); err != nil {
		return err
	}
	if stored.ScaledCollateral, err = toWord(market.ScaledCollateral); err != nil {
		return err
	}
	if stored.SupplyDelta.ScaledDelta, err = toWord(market.Deltas.Supply.ScaledDelta); err != nil {
		return err
	}
	if stored.SupplyDelta.ScaledTotalP2P, err = toWord(market.Deltas.Supply.ScaledTotalP2P); err != nil {
		return err
	}
	if stored.BorrowDelta.ScaledDelta, err = toWord(market.Deltas.Borrow.ScaledDelta); err != nil {
		return err
	}
	if stored.BorrowDelta.ScaledTotalP2P, err = toWord(market.Deltas.Borrow.ScaledTotalP2P); err != nil {
		return err
	}
	raw, err := rlp.EncodeToBytes(&stored)
	if err != nil {
		return fmt.Errorf("state: encode market: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.db.Put(marketKey(market.Asset), raw); err != nil {
		return fmt.Errorf("state: store market: %w", err)
	}
	return nil
}

// GetUserBalance loads the user's balance record in the asset's market; a
// missing record returns (nil, nil).
func (m *Manager) GetUserBalance(asset, user common.Address) (*lending.UserBalance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, err := m.db.Get(userKey(asset, user))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("state: load balance: %w", err)
	}
	var stored storedUserBalance
	if err := rlp.DecodeBytes(raw, &stored); err != nil {
		return nil, fmt.Errorf("state: decode balance: %w", err)
	}
	balance := &lending.UserBalance{User: stored.User}
	balance.Supply.ScaledOnPool = stored.Supply.ScaledOnPool.ToBig()
	balance.Supply.ScaledInP2P = stored.Supply.ScaledInP2P.ToBig()
	balance.Borrow.ScaledOnPool = stored.Borrow.ScaledOnPool.ToBig()
	balance.Borrow.ScaledInP2P = stored.Borrow.ScaledInP2P.ToBig()
	balance.Collateral = stored.Collateral.ToBig()
	return balance, nil
}

// PutUserBalance writes the balance record and keeps the per-market user index
// current. Records are zeroed, never removed, so the index only ever grows.
func (m *Manager) PutUserBalance(asset common.Address, balance *lending.UserBalance) error {
	if balance == nil {
		return errors.New("state: nil balance")
	}
	stored := storedUserBalance{User: balance.User}
	var err error
	if stored.Supply.ScaledOnPool, err = toWord(balance.Supply.ScaledOnPool); err != nil {
		return err
	}
	if stored.Supply.ScaledInP2P, err = toWord(balance.Supply.ScaledInP2P); err != nil {
		return err
	}
	if stored.Borrow.ScaledOnPool, err = toWord(balance.Borrow.ScaledOnPool); err != nil {
		return err
	}
	if stored.Borrow.ScaledInP2P, err = toWord(balance.Borrow.ScaledInP2P); err != nil {
		return err
	}
	if stored.Collateral, err = toWord(balance.Collateral); err != nil {
		return err
	}
	raw, err := rlp.EncodeToBytes(&stored)
	if err != nil {
		return fmt.Errorf("state: encode balance: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.db.Put(userKey(asset, balance.User), raw); err != nil {
		return fmt.Errorf("state: store balance: %w", err)
	}
	return m.indexUser(asset, balance.User)
}

// UserList returns every user that ever held a balance in the asset's market.
func (m *Manager) UserList(asset common.Address) ([]common.Address, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loadUserIndex(asset)
}

// IsManagerApproved reports whether the manager may act on the owner's
// positions.
func (m *Manager) IsManagerApproved(owner, manager common.Address) (bool, error) {
	return m.getFlag(approvalKey(owner, manager))
}

// SetManagerApproval grants or revokes the manager's approval.
func (m *Manager) SetManagerApproval(owner, manager common.Address, approved bool) error {
	return m.putFlag(approvalKey(owner, manager), approved)
}

// IsCollateralMember reports whether the user is in the asset's collateral
// membership set.
func (m *Manager) IsCollateralMember(asset, user common.Address) (bool, error) {
	return m.getFlag(collateralKey(asset, user))
}

// SetCollateralMembership adds or removes the user from the asset's collateral
// membership set.
func (m *Manager) SetCollateralMembership(asset, user common.Address, member bool) error {
	return m.putFlag(collateralKey(asset, user), member)
}

func (m *Manager) getFlag(key []byte) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, err := m.db.Get(key)
	if errors.Is(err, storage.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("state: load flag: %w", err)
	}
	return len(raw) == 1 && raw[0] == 1, nil
}

func (m *Manager) putFlag(key []byte, on bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	value := []byte{0}
	if on {
		value[0] = 1
	}
	if err := m.db.Put(key, value); err != nil {
		return fmt.Errorf("state: store flag: %w", err)
	}
	return nil
}

// indexUser appends the user to the market's index if absent. Caller holds the
// lock.
func (m *Manager) indexUser(asset, user common.Address) error {
	users, err := m.loadUserIndex(asset)
	if err != nil {
		return err
	}
	if _, ok := m.userIndex[asset][user]; ok {
		return nil
	}
	users = append(users, user)
	raw, err := rlp.EncodeToBytes(users)
	if err != nil {
		return fmt.Errorf("state: encode user index: %w", err)
	}
	if err := m.db.Put(userIndexKey(asset), raw); err != nil {
		return fmt.Errorf("state: store user index: %w", err)
	}
	m.userIndex[asset][user] = struct{}{}
	return nil
}

// loadUserIndex returns the persisted user list, priming the membership cache.
// Caller holds the lock.
func (m *Manager) loadUserIndex(asset common.Address) ([]common.Address, error) {
	raw, err := m.db.Get(userIndexKey(asset))
	if errors.Is(err, storage.ErrKeyNotFound) {
		if m.userIndex[asset] == nil {
			m.userIndex[asset] = make(map[common.Address]struct{})
		}
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("state: load user index: %w", err)
	}
	var users []common.Address
	if err := rlp.DecodeBytes(raw, &users); err != nil {
		return nil, fmt.Errorf("state: decode user index: %w", err)
	}
	if m.userIndex[asset] == nil {
		members := make(map[common.Address]struct{}, len(users))
		for _, user := range users {
			members[user] = struct{}{}
		}
		m.userIndex[asset] = members
	}
	return users, nil
}

func toWord(v *big.Int) (*uint256.Int, error) {
	if v == nil {
		return uint256.NewInt(0), nil
	}
	word, overflow := uint256.FromBig(v)
	if overflow || v.Sign() < 0 {
		return nil, ErrValueOverflow
	}
	return word, nil
}

func marketKey(asset common.Address) []byte {
	return []byte(marketPrefix + asset.Hex())
}

func userKey(asset, user common.Address) []byte {
	return []byte(userPrefix + asset.Hex() + "/" + user.Hex())
}

func userIndexKey(asset common.Address) []byte {
	return []byte(userIndexPrefix + asset.Hex())
}

func approvalKey(owner, manager common.Address) []byte {
	return []byte(approvalPrefix + owner.Hex() + "/" + manager.Hex())
}

func collateralKey(asset, user common.Address) []byte {
	return []byte(collateralPrefix + asset.Hex() + "/" + user.Hex())
}
