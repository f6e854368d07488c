package pool

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"peerlend/native/lending"
)

func TestStaticAdapterUnknownReserve(t *testing.T) {
	adapter := NewStaticAdapter()
	asset := common.BytesToAddress([]byte{0x01})
	if _, err := adapter.ReserveConfig(asset); !errors.Is(err, ErrReserveNotConfigured) {
		t.Fatalf("got %v, want ErrReserveNotConfigured", err)
	}
	if _, err := adapter.TotalSupplied(asset); !errors.Is(err, ErrReserveNotConfigured) {
		t.Fatalf("got %v, want ErrReserveNotConfigured", err)
	}
}

func TestStaticAdapterReturnsCopies(t *testing.T) {
	adapter := NewStaticAdapter()
	asset := common.BytesToAddress([]byte{0x01})
	adapter.Configure(asset, lending.ReserveConfig{SupplyCap: big.NewInt(100)})
	adapter.SetTotals(asset, big.NewInt(40), nil)

	cfg, err := adapter.ReserveConfig(asset)
	if err != nil {
		t.Fatalf("reserve config: %v", err)
	}
	cfg.SupplyCap.SetInt64(0)
	again, _ := adapter.ReserveConfig(asset)
	if again.SupplyCap.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("cap mutated through returned copy")
	}

	supplied, err := adapter.TotalSupplied(asset)
	if err != nil {
		t.Fatalf("total supplied: %v", err)
	}
	if supplied.Cmp(big.NewInt(40)) != 0 {
		t.Fatalf("supplied = %v", supplied)
	}
	borrowed, err := adapter.TotalBorrowed(asset)
	if err != nil {
		t.Fatalf("total borrowed: %v", err)
	}
	if borrowed.Sign() != 0 {
		t.Fatalf("borrowed = %v", borrowed)
	}
}

func TestAccrualRiskDefaultsToUnitIndexes(t *testing.T) {
	risk := NewAccrualRisk()
	asset := common.BytesToAddress([]byte{0x01})
	indexes, err := risk.UpdatedIndexes(asset)
	if err != nil {
		t.Fatalf("indexes: %v", err)
	}
	if indexes.Supply.PoolIndex.Cmp(ray) != 0 || indexes.Borrow.P2PIndex.Cmp(ray) != 0 {
		t.Fatalf("expected unit indexes, got %+v", indexes)
	}
}

func TestAccrualRiskIndexesNonDecreasing(t *testing.T) {
	risk := NewAccrualRisk()
	asset := common.BytesToAddress([]byte{0x01})
	risk.SetRates(asset, SideRates{
		SupplyPool: big.NewInt(1),
		SupplyP2P:  big.NewInt(2),
		BorrowPool: big.NewInt(3),
		BorrowP2P:  big.NewInt(4),
	})
	first, err := risk.UpdatedIndexes(asset)
	if err != nil {
		t.Fatalf("indexes: %v", err)
	}
	second, err := risk.UpdatedIndexes(asset)
	if err != nil {
		t.Fatalf("indexes: %v", err)
	}
	if second.Supply.PoolIndex.Cmp(first.Supply.PoolIndex) < 0 {
		t.Fatalf("supply pool index decreased")
	}
	if second.Borrow.P2PIndex.Cmp(first.Borrow.P2PIndex) < 0 {
		t.Fatalf("borrow p2p index decreased")
	}
}
