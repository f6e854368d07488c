package state

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"peerlend/native/lending"
	"peerlend/storage"
)

func testManager(t *testing.T) *Manager {
	t.Helper()
	return NewManager(storage.NewMemDB())
}

func TestMarketRoundTrip(t *testing.T) {
	mgr := testManager(t)
	asset := common.BytesToAddress([]byte{0xaa})

	missing, err := mgr.GetMarket(asset)
	require.NoError(t, err)
	require.Nil(t, missing)

	market := &lending.Market{
		Asset:        asset,
		Pauses:       lending.PauseStatuses{Borrow: true, Liquidate: true},
		Idle:         big.NewInt(42),
		P2PDisabled:  true,
		RiskCategory: 3,
		Deprecated:   true,
	}
	market.Deltas.Supply.ScaledDelta = big.NewInt(7)
	market.Deltas.Supply.ScaledTotalP2P = big.NewInt(70)
	market.Deltas.Borrow.ScaledDelta = big.NewInt(9)
	market.Deltas.Borrow.ScaledTotalP2P = big.NewInt(90)
	market.ScaledPoolSupply = big.NewInt(100)
	market.ScaledPoolBorrow = big.NewInt(50)
	market.ScaledCollateral = big.NewInt(25)
	require.NoError(t, mgr.PutMarket(market))

	loaded, err := mgr.GetMarket(asset)
	require.NoError(t, err)
	require.Equal(t, asset, loaded.Asset)
	require.True(t, loaded.Pauses.Borrow)
	require.True(t, loaded.Pauses.Liquidate)
	require.False(t, loaded.Pauses.Supply)
	require.True(t, loaded.P2PDisabled)
	require.True(t, loaded.Deprecated)
	require.EqualValues(t, 3, loaded.RiskCategory)
	require.Zero(t, loaded.Idle.Cmp(big.NewInt(42)))
	require.Zero(t, loaded.Deltas.Supply.ScaledDelta.Cmp(big.NewInt(7)))
	require.Zero(t, loaded.Deltas.Borrow.ScaledTotalP2P.Cmp(big.NewInt(90)))
	require.Zero(t, loaded.ScaledPoolSupply.Cmp(big.NewInt(100)))
	require.Zero(t, loaded.ScaledCollateral.Cmp(big.NewInt(25)))
}

func TestUserBalanceRoundTripAndIndex(t *testing.T) {
	mgr := testManager(t)
	asset := common.BytesToAddress([]byte{0xaa})
	user := common.BytesToAddress([]byte{0x01})

	missing, err := mgr.GetUserBalance(asset, user)
	require.NoError(t, err)
	require.Nil(t, missing)

	balance := &lending.UserBalance{User: user}
	balance.Supply.ScaledOnPool = big.NewInt(11)
	balance.Supply.ScaledInP2P = big.NewInt(22)
	balance.Borrow.ScaledOnPool = big.NewInt(33)
	balance.Borrow.ScaledInP2P = big.NewInt(44)
	balance.Collateral = big.NewInt(55)
	require.NoError(t, mgr.PutUserBalance(asset, balance))

	loaded, err := mgr.GetUserBalance(asset, user)
	require.NoError(t, err)
	require.Equal(t, user, loaded.User)
	require.Zero(t, loaded.Supply.ScaledOnPool.Cmp(big.NewInt(11)))
	require.Zero(t, loaded.Borrow.ScaledInP2P.Cmp(big.NewInt(44)))
	require.Zero(t, loaded.Collateral.Cmp(big.NewInt(55)))

	users, err := mgr.UserList(asset)
	require.NoError(t, err)
	require.Equal(t, []common.Address{user}, users)

	// Re-writing the same user must not duplicate the index entry.
	require.NoError(t, mgr.PutUserBalance(asset, balance))
	users, err = mgr.UserList(asset)
	require.NoError(t, err)
	require.Len(t, users, 1)
}

func TestUserIndexSurvivesRestart(t *testing.T) {
	db := storage.NewMemDB()
	asset := common.BytesToAddress([]byte{0xaa})
	first := NewManager(db)
	for _, b := range []byte{1, 2, 3} {
		balance := &lending.UserBalance{User: common.BytesToAddress([]byte{b})}
		balance.Collateral = big.NewInt(int64(b))
		require.NoError(t, first.PutUserBalance(asset, balance))
	}

	second := NewManager(db)
	users, err := second.UserList(asset)
	require.NoError(t, err)
	require.Len(t, users, 3)
}

func TestApprovalAndCollateralFlags(t *testing.T) {
	mgr := testManager(t)
	owner := common.BytesToAddress([]byte{0x01})
	manager := common.BytesToAddress([]byte{0x02})
	asset := common.BytesToAddress([]byte{0xaa})

	approved, err := mgr.IsManagerApproved(owner, manager)
	require.NoError(t, err)
	require.False(t, approved)

	require.NoError(t, mgr.SetManagerApproval(owner, manager, true))
	approved, err = mgr.IsManagerApproved(owner, manager)
	require.NoError(t, err)
	require.True(t, approved)

	require.NoError(t, mgr.SetManagerApproval(owner, manager, false))
	approved, err = mgr.IsManagerApproved(owner, manager)
	require.NoError(t, err)
	require.False(t, approved)

	member, err := mgr.IsCollateralMember(asset, owner)
	require.NoError(t, err)
	require.False(t, member)
	require.NoError(t, mgr.SetCollateralMembership(asset, owner, true))
	member, err = mgr.IsCollateralMember(asset, owner)
	require.NoError(t, err)
	require.True(t, member)
}

func TestNegativeValueRejected(t *testing.T) {
	mgr := testManager(t)
	asset := common.BytesToAddress([]byte{0xaa})
	balance := &lending.UserBalance{User: common.BytesToAddress([]byte{0x01})}
	balance.Collateral = big.NewInt(-1)
	err := mgr.PutUserBalance(asset, balance)
	require.ErrorIs(t, err, ErrValueOverflow)
}
