package rpc

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"stablecore/crypto"
	"stablecore/native/collateral"
	"stablecore/observability"
)

// Wire types for the collateral method family. All token amounts travel as
// decimal strings so precision survives JSON.

type depositParams struct {
	User   string `json:"user"`
	Asset  string `json:"asset"`
	Amount string `json:"amount"`
}

type mintParams struct {
	User   string `json:"user"`
	Amount string `json:"amount"`
}

type redeemParams struct {
	User   string `json:"user"`
	Asset  string `json:"asset"`
	Amount string `json:"amount"`
}

type burnParams struct {
	User   string `json:"user"`
	Amount string `json:"amount"`
}

type depositAndMintParams struct {
	User             string `json:"user"`
	Asset            string `json:"asset"`
	CollateralAmount string `json:"collateralAmount"`
	DebtAmount       string `json:"debtAmount"`
}

type redeemForRepayParams struct {
	User             string `json:"user"`
	Asset            string `json:"asset"`
	CollateralAmount string `json:"collateralAmount"`
	DebtAmount       string `json:"debtAmount"`
}

type liquidateParams struct {
	Liquidator  string `json:"liquidator"`
	Debtor      string `json:"debtor"`
	Asset       string `json:"asset"`
	DebtToCover string `json:"debtToCover"`
}

type userParams struct {
	User string `json:"user"`
}

type userAssetParams struct {
	User  string `json:"user"`
	Asset string `json:"asset"`
}

type assetAmountParams struct {
	Asset  string `json:"asset"`
	Amount string `json:"amount"`
}

type accountInformationResult struct {
	Debt            string `json:"debt"`
	CollateralValue string `json:"collateralValue"`
	HealthFactor    string `json:"healthFactor"`
}

type liquidateResult struct {
	Seized string `json:"seized"`
}

type protocolParamsResult struct {
	LiquidationThreshold uint64 `json:"liquidationThreshold"`
	LiquidationBonus     uint64 `json:"liquidationBonus"`
	LiquidationPrecision uint64 `json:"liquidationPrecision"`
	MinHealthFactor      string `json:"minHealthFactor"`
	Precision            string `json:"precision"`
	ModuleAddress        string `json:"moduleAddress"`
}

func (s *Server) methods() map[string]methodHandler {
	return map[string]methodHandler{
		"collateral_deposit":               {fn: s.handleDeposit, mutating: true},
		"collateral_mint":                  {fn: s.handleMint, mutating: true},
		"collateral_redeem":                {fn: s.handleRedeem, mutating: true},
		"collateral_burn":                  {fn: s.handleBurn, mutating: true},
		"collateral_depositAndMint":        {fn: s.handleDepositAndMint, mutating: true},
		"collateral_redeemForRepay":        {fn: s.handleRedeemForRepay, mutating: true},
		"collateral_liquidate":             {fn: s.handleLiquidate, mutating: true},
		"collateral_getAccountInformation": {fn: s.handleGetAccountInformation},
		"collateral_getCollateralValue":    {fn: s.handleGetCollateralValue},
		"collateral_getCollateralBalance":  {fn: s.handleGetCollateralBalance},
		"collateral_getHealthFactor":       {fn: s.handleGetHealthFactor},
		"collateral_getUsdValue":           {fn: s.handleGetUsdValue},
		"collateral_getTokenAmountFromUsd": {fn: s.handleGetTokenAmountFromUsd},
		"collateral_getAssetPrice":         {fn: s.handleGetAssetPrice},
		"collateral_listAssets":            {fn: s.handleListAssets},
		"collateral_getProtocolParams":     {fn: s.handleGetProtocolParams},
	}
}

func decodeParams(req *RPCRequest, out interface{}) error {
	if len(req.Params) != 1 {
		return fmt.Errorf("%w: expected a single params object", collateral.ErrInvalidAmount)
	}
	if err := json.Unmarshal(req.Params[0], out); err != nil {
		return fmt.Errorf("%w: %v", collateral.ErrInvalidAmount, err)
	}
	return nil
}

func parseUser(raw string) (crypto.Address, error) {
	addr, err := crypto.DecodeAddress(raw)
	if err != nil {
		return crypto.Address{}, fmt.Errorf("%w: user %q: %v", collateral.ErrInvalidAmount, raw, err)
	}
	return addr, nil
}

func parseAsset(raw string) (common.Address, error) {
	if !common.IsHexAddress(raw) {
		return common.Address{}, fmt.Errorf("%w: %q is not a hex address", collateral.ErrAssetNotApproved, raw)
	}
	return common.HexToAddress(raw), nil
}

func parseAmount(raw string) (*big.Int, error) {
	amount, ok := new(big.Int).SetString(raw, 10)
	if !ok || amount.Sign() <= 0 {
		return nil, fmt.Errorf("%w: %q", collateral.ErrInvalidAmount, raw)
	}
	return amount, nil
}

// persist writes the user's committed position to the store. A write failure
// is logged but never surfaced; the in-memory ledger stays authoritative.
func (s *Server) persist(user crypto.Address) {
	if s.store == nil {
		return
	}
	if err := s.store.Put(s.engine.PositionSnapshot(user)); err != nil {
		s.logger.Error("failed to persist position",
			slog.String("user", user.String()),
			slog.String("error", err.Error()))
	}
}

func (s *Server) handleDeposit(req *RPCRequest) (interface{}, error) {
	var params depositParams
	if err := decodeParams(req, &params); err != nil {
		return nil, err
	}
	user, err := parseUser(params.User)
	if err != nil {
		return nil, err
	}
	asset, err := parseAsset(params.Asset)
	if err != nil {
		return nil, err
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		return nil, err
	}
	if err := s.engine.DepositCollateral(user, asset, amount); err != nil {
		return nil, err
	}
	s.persist(user)
	return "ok", nil
}

func (s *Server) handleMint(req *RPCRequest) (interface{}, error) {
	var params mintParams
	if err := decodeParams(req, &params); err != nil {
		return nil, err
	}
	user, err := parseUser(params.User)
	if err != nil {
		return nil, err
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		return nil, err
	}
	if err := s.engine.MintDebt(user, amount); err != nil {
		return nil, err
	}
	s.persist(user)
	return "ok", nil
}

func (s *Server) handleRedeem(req *RPCRequest) (interface{}, error) {
	var params redeemParams
	if err := decodeParams(req, &params); err != nil {
		return nil, err
	}
	user, err := parseUser(params.User)
	if err != nil {
		return nil, err
	}
	asset, err := parseAsset(params.Asset)
	if err != nil {
		return nil, err
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		return nil, err
	}
	if err := s.engine.RedeemCollateral(user, asset, amount); err != nil {
		return nil, err
	}
	s.persist(user)
	return "ok", nil
}

func (s *Server) handleBurn(req *RPCRequest) (interface{}, error) {
	var params burnParams
	if err := decodeParams(req, &params); err != nil {
		return nil, err
	}
	user, err := parseUser(params.User)
	if err != nil {
		return nil, err
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		return nil, err
	}
	if err := s.engine.BurnDebt(user, amount); err != nil {
		return nil, err
	}
	s.persist(user)
	return "ok", nil
}

func (s *Server) handleDepositAndMint(req *RPCRequest) (interface{}, error) {
	var params depositAndMintParams
	if err := decodeParams(req, &params); err != nil {
		return nil, err
	}
	user, err := parseUser(params.User)
	if err != nil {
		return nil, err
	}
	asset, err := parseAsset(params.Asset)
	if err != nil {
		return nil, err
	}
	collateralAmount, err := parseAmount(params.CollateralAmount)
	if err != nil {
		return nil, err
	}
	debtAmount, err := parseAmount(params.DebtAmount)
	if err != nil {
		return nil, err
	}
	if err := s.engine.DepositAndMint(user, asset, collateralAmount, debtAmount); err != nil {
		return nil, err
	}
	s.persist(user)
	return "ok", nil
}

func (s *Server) handleRedeemForRepay(req *RPCRequest) (interface{}, error) {
	var params redeemForRepayParams
	if err := decodeParams(req, &params); err != nil {
		return nil, err
	}
	user, err := parseUser(params.User)
	if err != nil {
		return nil, err
	}
	asset, err := parseAsset(params.Asset)
	if err != nil {
		return nil, err
	}
	collateralAmount, err := parseAmount(params.CollateralAmount)
	if err != nil {
		return nil, err
	}
	debtAmount, err := parseAmount(params.DebtAmount)
	if err != nil {
		return nil, err
	}
	if err := s.engine.RedeemForRepay(user, asset, collateralAmount, debtAmount); err != nil {
		return nil, err
	}
	s.persist(user)
	return "ok", nil
}

func (s *Server) handleLiquidate(req *RPCRequest) (interface{}, error) {
	var params liquidateParams
	if err := decodeParams(req, &params); err != nil {
		return nil, err
	}
	liquidator, err := parseUser(params.Liquidator)
	if err != nil {
		return nil, err
	}
	debtor, err := parseUser(params.Debtor)
	if err != nil {
		return nil, err
	}
	asset, err := parseAsset(params.Asset)
	if err != nil {
		return nil, err
	}
	debtToCover, err := parseAmount(params.DebtToCover)
	if err != nil {
		return nil, err
	}
	seized, err := s.engine.Liquidate(liquidator, debtor, asset, debtToCover)
	if err != nil {
		return nil, err
	}
	observability.EngineMetrics().ObserveLiquidation()
	s.persist(debtor)
	return liquidateResult{Seized: seized.String()}, nil
}

func (s *Server) handleGetAccountInformation(req *RPCRequest) (interface{}, error) {
	var params userParams
	if err := decodeParams(req, &params); err != nil {
		return nil, err
	}
	user, err := parseUser(params.User)
	if err != nil {
		return nil, err
	}
	debt, value, err := s.engine.AccountInformation(user)
	if err != nil {
		return nil, err
	}
	factor := s.engine.CalculateHealthFactor(debt, value)
	return accountInformationResult{
		Debt:            debt.String(),
		CollateralValue: value.String(),
		HealthFactor:    factor.String(),
	}, nil
}

func (s *Server) handleGetCollateralValue(req *RPCRequest) (interface{}, error) {
	var params userParams
	if err := decodeParams(req, &params); err != nil {
		return nil, err
	}
	user, err := parseUser(params.User)
	if err != nil {
		return nil, err
	}
	value, err := s.engine.AccountCollateralValue(user)
	if err != nil {
		return nil, err
	}
	return value.String(), nil
}

func (s *Server) handleGetCollateralBalance(req *RPCRequest) (interface{}, error) {
	var params userAssetParams
	if err := decodeParams(req, &params); err != nil {
		return nil, err
	}
	user, err := parseUser(params.User)
	if err != nil {
		return nil, err
	}
	asset, err := parseAsset(params.Asset)
	if err != nil {
		return nil, err
	}
	return s.engine.CollateralBalanceOf(user, asset).String(), nil
}

func (s *Server) handleGetHealthFactor(req *RPCRequest) (interface{}, error) {
	var params userParams
	if err := decodeParams(req, &params); err != nil {
		return nil, err
	}
	user, err := parseUser(params.User)
	if err != nil {
		return nil, err
	}
	factor, err := s.engine.HealthFactor(user)
	if err != nil {
		return nil, err
	}
	return factor.String(), nil
}

func (s *Server) handleGetUsdValue(req *RPCRequest) (interface{}, error) {
	var params assetAmountParams
	if err := decodeParams(req, &params); err != nil {
		return nil, err
	}
	asset, err := parseAsset(params.Asset)
	if err != nil {
		return nil, err
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		return nil, err
	}
	value, err := s.engine.UsdValue(asset, amount)
	if err != nil {
		return nil, err
	}
	return value.String(), nil
}

func (s *Server) handleGetTokenAmountFromUsd(req *RPCRequest) (interface{}, error) {
	var params assetAmountParams
	if err := decodeParams(req, &params); err != nil {
		return nil, err
	}
	asset, err := parseAsset(params.Asset)
	if err != nil {
		return nil, err
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		return nil, err
	}
	tokens, err := s.engine.TokenAmountFromUsd(asset, amount)
	if err != nil {
		return nil, err
	}
	return tokens.String(), nil
}

type assetParams struct {
	Asset string `json:"asset"`
}

// handleGetAssetPrice reports the asset's current feed price scaled to the
// engine's 18-decimal fixed point, i.e. the value of one whole unit.
func (s *Server) handleGetAssetPrice(req *RPCRequest) (interface{}, error) {
	var params assetParams
	if err := decodeParams(req, &params); err != nil {
		return nil, err
	}
	asset, err := parseAsset(params.Asset)
	if err != nil {
		return nil, err
	}
	price, err := s.engine.UsdValue(asset, collateral.Precision)
	if err != nil {
		return nil, err
	}
	return price.String(), nil
}

func (s *Server) handleListAssets(req *RPCRequest) (interface{}, error) {
	assets := s.engine.Registry().CollateralAssets()
	out := make([]string, 0, len(assets))
	for _, asset := range assets {
		out = append(out, asset.Hex())
	}
	return out, nil
}

func (s *Server) handleGetProtocolParams(req *RPCRequest) (interface{}, error) {
	params := s.engine.RiskParameters()
	return protocolParamsResult{
		LiquidationThreshold: params.LiquidationThreshold,
		LiquidationBonus:     params.LiquidationBonus,
		LiquidationPrecision: collateral.LiquidationPrecision,
		MinHealthFactor:      collateral.MinHealthFactor.String(),
		Precision:            collateral.Precision.String(),
		ModuleAddress:        s.engine.ModuleAddress().String(),
	}, nil
}
