package lending

import "math/big"

var (
	// ray is the 1e27 fixed-point unit used for accrual indexes and all
	// scaled-balance conversions.
	ray = mustBigInt("1000000000000000000000000000")
	// wad is the 1e18 fixed-point unit used for health factors and close
	// factors.
	wad = mustBigInt("1000000000000000000")
)

func mustBigInt(value string) *big.Int {
	v, ok := new(big.Int).SetString(value, 10)
	if !ok {
		panic("invalid big integer constant")
	}
	return v
}

// Rounding direction is chosen per call-site: amounts owed round up, amounts
// held round down. None of these helpers mutate their arguments and all treat
// nil as zero.

func rayMulDown(a, b *big.Int) *big.Int {
	if a == nil || b == nil || a.Sign() == 0 || b.Sign() == 0 {
		return big.NewInt(0)
	}
	product := new(big.Int).Mul(a, b)
	return product.Quo(product, ray)
}

func rayMulUp(a, b *big.Int) *big.Int {
	if a == nil || b == nil || a.Sign() == 0 || b.Sign() == 0 {
		return big.NewInt(0)
	}
	product := new(big.Int).Mul(a, b)
	product.Add(product, new(big.Int).Sub(ray, big.NewInt(1)))
	return product.Quo(product, ray)
}

func rayDivDown(a, b *big.Int) *big.Int {
	if a == nil || a.Sign() == 0 || b == nil || b.Sign() == 0 {
		return big.NewInt(0)
	}
	numerator := new(big.Int).Mul(a, ray)
	return numerator.Quo(numerator, b)
}

func rayDivUp(a, b *big.Int) *big.Int {
	if a == nil || a.Sign() == 0 || b == nil || b.Sign() == 0 {
		return big.NewInt(0)
	}
	numerator := new(big.Int).Mul(a, ray)
	numerator.Add(numerator, new(big.Int).Sub(b, big.NewInt(1)))
	return numerator.Quo(numerator, b)
}

// zeroFloorSub returns max(a-b, 0). Every delta and balance subtraction in the
// ledger goes through this primitive so scaled values can never underflow.
func zeroFloorSub(a, b *big.Int) *big.Int {
	if a == nil {
		return big.NewInt(0)
	}
	if b == nil {
		return new(big.Int).Set(a)
	}
	if a.Cmp(b) <= 0 {
		return big.NewInt(0)
	}
	return new(big.Int).Sub(a, b)
}

func minBig(a, b *big.Int) *big.Int {
	if a == nil {
		return big.NewInt(0)
	}
	if b == nil {
		return big.NewInt(0)
	}
	if a.Cmp(b) <= 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}

func bigOrZero(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return v
}
