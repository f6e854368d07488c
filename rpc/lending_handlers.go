package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"peerlend/native/lending"
	"peerlend/observability"
)

// JSON-RPC error codes. Parse and method errors use the standard codes;
// domain failures map into the -320xx range so clients can branch on kind.
const (
	codeParse          = -32700
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternal       = -32000
	codeNotFound       = -32010
	codeUnauthorized   = -32011
	codePaused         = -32012
	codeCapExceeded    = -32013
	codeUnhealthy      = -32014
	codeNotEligible    = -32015
)

func (s *Server) dispatch(method string, params json.RawMessage) (interface{}, *rpcError) {
	switch method {
	case "lending_supply":
		return s.handleAction(method, params, s.engine.Supply)
	case "lending_borrow":
		return s.handleAction(method, params, s.engine.Borrow)
	case "lending_repay":
		return s.handleAction(method, params, s.engine.Repay)
	case "lending_withdraw":
		return s.handleAction(method, params, s.engine.Withdraw)
	case "lending_supplyCollateral":
		return s.handleCollateral(params, s.engine.SupplyCollateral)
	case "lending_withdrawCollateral":
		return s.handleCollateral(params, s.engine.WithdrawCollateral)
	case "lending_getMarket":
		return s.handleGetMarket(params)
	case "lending_getPosition":
		return s.handleGetPosition(params)
	case "lending_approveManager":
		return s.handleApproveManager(params)
	case "lending_authorizeLiquidate":
		return s.handleAuthorizeLiquidate(params)
	default:
		return nil, &rpcError{Code: codeMethodNotFound, Message: fmt.Sprintf("unknown method %q", method)}
	}
}

type actionParams struct {
	Caller        string  `json:"caller"`
	OnBehalf      string  `json:"onBehalf"`
	Asset         string  `json:"asset"`
	Amount        string  `json:"amount"`
	MaxIterations *uint64 `json:"maxIterations"`
}

type actionResult struct {
	ToPool string `json:"toPool"`
	ToPeer string `json:"toPeer"`
	OnPool string `json:"onPool"`
	InP2P  string `json:"inP2P"`
}

type actionFunc func(caller, onBehalf, asset common.Address, amount *big.Int, maxIterations uint64) (*lending.ActionResult, error)

func (s *Server) handleAction(method string, params json.RawMessage, action actionFunc) (interface{}, *rpcError) {
	var p actionParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, &rpcError{Code: codeInvalidParams, Message: "malformed params"}
	}
	caller, err := parseAddress(p.Caller, "caller")
	if err != nil {
		return nil, &rpcError{Code: codeInvalidParams, Message: err.Error()}
	}
	onBehalf := caller
	if p.OnBehalf != "" {
		if onBehalf, err = parseAddress(p.OnBehalf, "onBehalf"); err != nil {
			return nil, &rpcError{Code: codeInvalidParams, Message: err.Error()}
		}
	}
	asset, err := parseAddress(p.Asset, "asset")
	if err != nil {
		return nil, &rpcError{Code: codeInvalidParams, Message: err.Error()}
	}
	amount, err := parseAmount(p.Amount)
	if err != nil {
		return nil, &rpcError{Code: codeInvalidParams, Message: err.Error()}
	}
	maxIterations := s.defaultMaxIterations
	if p.MaxIterations != nil {
		maxIterations = *p.MaxIterations
	}
	res, err := action(caller, onBehalf, asset, amount, maxIterations)
	if err != nil {
		return nil, domainError(err)
	}
	observability.ObserveRouting(method, bigFloat(res.ToPeer), bigFloat(res.ToPool))
	return actionResult{
		ToPool: res.ToPool.String(),
		ToPeer: res.ToPeer.String(),
		OnPool: res.OnPool.String(),
		InP2P:  res.InP2P.String(),
	}, nil
}

type collateralFunc func(caller, onBehalf, asset common.Address, amount *big.Int) (*big.Int, error)

func (s *Server) handleCollateral(params json.RawMessage, action collateralFunc) (interface{}, *rpcError) {
	var p actionParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, &rpcError{Code: codeInvalidParams, Message: "malformed params"}
	}
	caller, err := parseAddress(p.Caller, "caller")
	if err != nil {
		return nil, &rpcError{Code: codeInvalidParams, Message: err.Error()}
	}
	onBehalf := caller
	if p.OnBehalf != "" {
		if onBehalf, err = parseAddress(p.OnBehalf, "onBehalf"); err != nil {
			return nil, &rpcError{Code: codeInvalidParams, Message: err.Error()}
		}
	}
	asset, err := parseAddress(p.Asset, "asset")
	if err != nil {
		return nil, &rpcError{Code: codeInvalidParams, Message: err.Error()}
	}
	amount, err := parseAmount(p.Amount)
	if err != nil {
		return nil, &rpcError{Code: codeInvalidParams, Message: err.Error()}
	}
	balance, err := action(caller, onBehalf, asset, amount)
	if err != nil {
		return nil, domainError(err)
	}
	return map[string]string{"collateral": balance.String()}, nil
}

type marketParams struct {
	Asset string `json:"asset"`
}

func (s *Server) handleGetMarket(params json.RawMessage) (interface{}, *rpcError) {
	var p marketParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, &rpcError{Code: codeInvalidParams, Message: "malformed params"}
	}
	asset, err := parseAddress(p.Asset, "asset")
	if err != nil {
		return nil, &rpcError{Code: codeInvalidParams, Message: err.Error()}
	}
	market, err := s.engine.Market(asset)
	if err != nil {
		return nil, domainError(err)
	}
	return map[string]interface{}{
		"asset":        market.Asset.Hex(),
		"p2pDisabled":  market.P2PDisabled,
		"deprecated":   market.Deprecated,
		"riskCategory": market.RiskCategory,
		"idle":         market.Idle.String(),
		"supplyDelta": map[string]string{
			"scaledDelta":    market.Deltas.Supply.ScaledDelta.String(),
			"scaledTotalP2P": market.Deltas.Supply.ScaledTotalP2P.String(),
		},
		"borrowDelta": map[string]string{
			"scaledDelta":    market.Deltas.Borrow.ScaledDelta.String(),
			"scaledTotalP2P": market.Deltas.Borrow.ScaledTotalP2P.String(),
		},
		"scaledPoolSupply": market.ScaledPoolSupply.String(),
		"scaledPoolBorrow": market.ScaledPoolBorrow.String(),
		"scaledCollateral": market.ScaledCollateral.String(),
	}, nil
}

type positionParams struct {
	Asset string `json:"asset"`
	User  string `json:"user"`
}

func (s *Server) handleGetPosition(params json.RawMessage) (interface{}, *rpcError) {
	var p positionParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, &rpcError{Code: codeInvalidParams, Message: "malformed params"}
	}
	asset, err := parseAddress(p.Asset, "asset")
	if err != nil {
		return nil, &rpcError{Code: codeInvalidParams, Message: err.Error()}
	}
	user, err := parseAddress(p.User, "user")
	if err != nil {
		return nil, &rpcError{Code: codeInvalidParams, Message: err.Error()}
	}
	supply, borrow, collateral, err := s.engine.UserPosition(asset, user)
	if err != nil {
		return nil, domainError(err)
	}
	position := func(p lending.Position) map[string]string {
		return map[string]string{
			"onPool": p.OnPool.String(),
			"inP2P":  p.InP2P.String(),
			"total":  p.Total.String(),
		}
	}
	return map[string]interface{}{
		"supply":     position(supply),
		"borrow":     position(borrow),
		"collateral": collateral.String(),
	}, nil
}

type approveParams struct {
	Owner    string `json:"owner"`
	Manager  string `json:"manager"`
	Approved bool   `json:"approved"`
}

func (s *Server) handleApproveManager(params json.RawMessage) (interface{}, *rpcError) {
	var p approveParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, &rpcError{Code: codeInvalidParams, Message: "malformed params"}
	}
	owner, err := parseAddress(p.Owner, "owner")
	if err != nil {
		return nil, &rpcError{Code: codeInvalidParams, Message: err.Error()}
	}
	manager, err := parseAddress(p.Manager, "manager")
	if err != nil {
		return nil, &rpcError{Code: codeInvalidParams, Message: err.Error()}
	}
	if err := s.engine.ApproveManager(owner, manager, p.Approved); err != nil {
		return nil, domainError(err)
	}
	return map[string]bool{"approved": p.Approved}, nil
}

type liquidateParams struct {
	Asset    string `json:"asset"`
	Borrower string `json:"borrower"`
}

func (s *Server) handleAuthorizeLiquidate(params json.RawMessage) (interface{}, *rpcError) {
	var p liquidateParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, &rpcError{Code: codeInvalidParams, Message: "malformed params"}
	}
	asset, err := parseAddress(p.Asset, "asset")
	if err != nil {
		return nil, &rpcError{Code: codeInvalidParams, Message: err.Error()}
	}
	borrower, err := parseAddress(p.Borrower, "borrower")
	if err != nil {
		return nil, &rpcError{Code: codeInvalidParams, Message: err.Error()}
	}
	closeFactor, err := s.engine.AuthorizeLiquidate(asset, borrower)
	if err != nil {
		return nil, domainError(err)
	}
	return map[string]string{"closeFactor": closeFactor.String()}, nil
}

func parseAddress(raw, field string) (common.Address, error) {
	if !common.IsHexAddress(raw) {
		return common.Address{}, fmt.Errorf("%s is not a hex address", field)
	}
	return common.HexToAddress(raw), nil
}

// bigFloat renders an underlying amount for metrics; precision loss past
// float64 is acceptable there.
func bigFloat(v *big.Int) float64 {
	if v == nil {
		return 0
	}
	f, _ := new(big.Float).SetInt(v).Float64()
	return f
}

func parseAmount(raw string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(raw, 10)
	if !ok || v.Sign() <= 0 {
		return nil, fmt.Errorf("amount must be a positive decimal string")
	}
	return v, nil
}

// domainError maps engine errors onto JSON-RPC codes, keeping the engine's
// message intact.
func domainError(err error) *rpcError {
	code := codeInternal
	switch {
	case errors.Is(err, lending.ErrZeroAddress),
		errors.Is(err, lending.ErrZeroAmount):
		code = codeInvalidParams
	case errors.Is(err, lending.ErrMarketNotCreated):
		code = codeNotFound
	case errors.Is(err, lending.ErrPermissionDenied):
		code = codeUnauthorized
	case errors.Is(err, lending.ErrSupplyPaused),
		errors.Is(err, lending.ErrBorrowPaused),
		errors.Is(err, lending.ErrRepayPaused),
		errors.Is(err, lending.ErrWithdrawPaused),
		errors.Is(err, lending.ErrSupplyCollateralPaused),
		errors.Is(err, lending.ErrWithdrawCollateralPaused),
		errors.Is(err, lending.ErrLiquidatePaused):
		code = codePaused
	case errors.Is(err, lending.ErrSupplyCapExceeded),
		errors.Is(err, lending.ErrBorrowCapExceeded):
		code = codeCapExceeded
	case errors.Is(err, lending.ErrUnhealthyBorrow),
		errors.Is(err, lending.ErrUnhealthyWithdrawal):
		code = codeUnhealthy
	case errors.Is(err, lending.ErrBorrowingDisabled),
		errors.Is(err, lending.ErrRiskCategoryMismatch),
		errors.Is(err, lending.ErrLiquidateUnauthorized),
		errors.Is(err, lending.ErrSentinelDisallows):
		code = codeNotEligible
	}
	return &rpcError{Code: code, Message: err.Error()}
}
