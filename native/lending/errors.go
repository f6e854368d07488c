package lending

import "errors"

// Input errors: the request itself is malformed.
var (
	ErrZeroAddress      = errors.New("lending engine: zero address")
	ErrZeroAmount       = errors.New("lending engine: amount must be positive")
	ErrMarketNotCreated = errors.New("lending engine: market not created")
	ErrMarketExists     = errors.New("lending engine: market already created")
)

// Permission and pause errors.
var (
	ErrPermissionDenied         = errors.New("lending engine: caller is not owner or approved manager")
	ErrSupplyPaused             = errors.New("lending engine: supply is paused")
	ErrBorrowPaused             = errors.New("lending engine: borrow is paused")
	ErrRepayPaused              = errors.New("lending engine: repay is paused")
	ErrWithdrawPaused           = errors.New("lending engine: withdraw is paused")
	ErrSupplyCollateralPaused   = errors.New("lending engine: supply collateral is paused")
	ErrWithdrawCollateralPaused = errors.New("lending engine: withdraw collateral is paused")
	ErrLiquidatePaused          = errors.New("lending engine: liquidate is paused")
)

// Cap errors.
var (
	ErrSupplyCapExceeded = errors.New("lending engine: supply cap exceeded")
	ErrBorrowCapExceeded = errors.New("lending engine: borrow cap exceeded")
)

// Authorization errors: the request is well-formed but the position or market
// state forbids it.
var (
	ErrBorrowingDisabled     = errors.New("lending engine: borrowing disabled on pool")
	ErrRiskCategoryMismatch  = errors.New("lending engine: pool risk category mismatch")
	ErrUnhealthyBorrow       = errors.New("lending engine: projected debt exceeds borrowable capacity")
	ErrUnhealthyWithdrawal   = errors.New("lending engine: health factor below liquidation threshold")
	ErrLiquidateUnauthorized = errors.New("lending engine: liquidation not authorized")
	ErrSentinelDisallows     = errors.New("lending engine: price sentinel disallows liquidation")
)

// Wiring errors.
var (
	errNilState = errors.New("lending engine: state not configured")
	errNilRisk  = errors.New("lending engine: risk provider not configured")
	errNilPool  = errors.New("lending engine: pool adapter not configured")
)
