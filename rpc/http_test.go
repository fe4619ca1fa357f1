package rpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"stablecore/crypto"
	"stablecore/native/collateral"
	"stablecore/native/oracle"
	"stablecore/token"
)

type rpcHarness struct {
	server *httptest.Server
	engine *collateral.Engine
	bank   *token.Bank
	asset  common.Address
	user   crypto.Address
}

func newRPCHarness(t *testing.T) *rpcHarness {
	t.Helper()
	asset := common.BytesToAddress([]byte{0xaa})
	feed := oracle.NewManualFeed("test", 8)
	require.NoError(t, feed.SetDecimal("2000", time.Now()))
	registry, err := collateral.NewRegistry([]common.Address{asset}, []oracle.PriceFeed{feed})
	require.NoError(t, err)

	module := crypto.ModuleAddress("collateral")
	bank := token.NewBank(module)
	engine := collateral.NewEngine(registry, module, collateral.DefaultRiskParameters())
	engine.SetDebtToken(bank.Debt())
	engine.SetCollateralBank(bank.Collateral())

	raw := make([]byte, 20)
	for i := range raw {
		raw[i] = 0x20
	}
	user := crypto.NewAddress(crypto.AccountPrefix, raw)
	bank.Credit(asset, user, new(big.Int).Mul(big.NewInt(10), collateral.Precision))

	server := httptest.NewServer(NewServer(engine, nil).Handler())
	t.Cleanup(server.Close)
	return &rpcHarness{server: server, engine: engine, bank: bank, asset: asset, user: user}
}

func (h *rpcHarness) call(t *testing.T, method string, params interface{}) (*http.Response, RPCResponse) {
	t.Helper()
	payload, err := json.Marshal(map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
		"params":  []interface{}{params},
	})
	require.NoError(t, err)
	resp, err := http.Post(h.server.URL, "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	defer resp.Body.Close()
	var decoded RPCResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp, decoded
}

func units(n int64) string {
	return new(big.Int).Mul(big.NewInt(n), collateral.Precision).String()
}

func TestRPCDepositAndReads(t *testing.T) {
	h := newRPCHarness(t)

	resp, decoded := h.call(t, "collateral_deposit", depositParams{
		User:   h.user.String(),
		Asset:  h.asset.Hex(),
		Amount: units(10),
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Nil(t, decoded.Error)

	resp, decoded = h.call(t, "collateral_getCollateralBalance", userAssetParams{
		User:  h.user.String(),
		Asset: h.asset.Hex(),
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, units(10), decoded.Result)

	resp, decoded = h.call(t, "collateral_getAccountInformation", userParams{User: h.user.String()})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	info, err := json.Marshal(decoded.Result)
	require.NoError(t, err)
	var account accountInformationResult
	require.NoError(t, json.Unmarshal(info, &account))
	require.Equal(t, "0", account.Debt)
	require.Equal(t, units(20000), account.CollateralValue)
	require.Equal(t, collateral.MaxHealthFactor.String(), account.HealthFactor)
}

func TestRPCMintAndHealthFactorRejection(t *testing.T) {
	h := newRPCHarness(t)

	_, decoded := h.call(t, "collateral_deposit", depositParams{
		User:   h.user.String(),
		Asset:  h.asset.Hex(),
		Amount: units(10),
	})
	require.Nil(t, decoded.Error)

	resp, decoded := h.call(t, "collateral_mint", mintParams{User: h.user.String(), Amount: units(10000)})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Nil(t, decoded.Error)
	require.Equal(t, units(10000), h.bank.DebtBalance(h.user).String())

	// One token over the limit maps to the health-factor error code.
	resp, decoded = h.call(t, "collateral_mint", mintParams{User: h.user.String(), Amount: "1"})
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	require.NotNil(t, decoded.Error)
	require.Equal(t, codeHealthFactor, decoded.Error.Code)
}

func TestRPCRejectsBadParams(t *testing.T) {
	h := newRPCHarness(t)

	resp, decoded := h.call(t, "collateral_deposit", depositParams{
		User:   "not-bech32",
		Asset:  h.asset.Hex(),
		Amount: units(1),
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, codeInvalidParams, decoded.Error.Code)

	resp, decoded = h.call(t, "collateral_deposit", depositParams{
		User:   h.user.String(),
		Asset:  h.asset.Hex(),
		Amount: "-5",
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, codeInvalidParams, decoded.Error.Code)
}

func TestRPCUnknownMethod(t *testing.T) {
	h := newRPCHarness(t)
	resp, decoded := h.call(t, "collateral_unknown", userParams{User: h.user.String()})
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.Equal(t, codeMethodNotFound, decoded.Error.Code)
}

func TestRPCRequiresPost(t *testing.T) {
	h := newRPCHarness(t)
	resp, err := http.Get(h.server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestRPCProtocolParams(t *testing.T) {
	h := newRPCHarness(t)
	resp, decoded := h.call(t, "collateral_getProtocolParams", struct{}{})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	payload, err := json.Marshal(decoded.Result)
	require.NoError(t, err)
	var params protocolParamsResult
	require.NoError(t, json.Unmarshal(payload, &params))
	require.Equal(t, uint64(50), params.LiquidationThreshold)
	require.Equal(t, uint64(10), params.LiquidationBonus)
	require.Equal(t, collateral.MinHealthFactor.String(), params.MinHealthFactor)
	require.Equal(t, h.engine.ModuleAddress().String(), params.ModuleAddress)
}

func TestRPCAssetPrice(t *testing.T) {
	h := newRPCHarness(t)
	resp, decoded := h.call(t, "collateral_getAssetPrice", assetParams{Asset: h.asset.Hex()})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, units(2000), decoded.Result)

	resp, decoded = h.call(t, "collateral_getAssetPrice", assetParams{Asset: common.Address{}.Hex()})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, codeInvalidParams, decoded.Error.Code)
}

func TestRPCListAssets(t *testing.T) {
	h := newRPCHarness(t)
	resp, decoded := h.call(t, "collateral_listAssets", struct{}{})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assets, ok := decoded.Result.([]interface{})
	require.True(t, ok)
	require.Len(t, assets, 1)
	require.Equal(t, h.asset.Hex(), assets[0])
}

func TestRPCBearerAuth(t *testing.T) {
	t.Setenv("STABLECORE_RPC_TOKEN", "secret-token")
	h := newRPCHarness(t)

	payload, err := json.Marshal(map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "collateral_deposit",
		"params": []interface{}{depositParams{
			User:   h.user.String(),
			Asset:  h.asset.Hex(),
			Amount: units(1),
		}},
	})
	require.NoError(t, err)

	// Missing token on a mutating method.
	resp, err := http.Post(h.server.URL, "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Correct token passes.
	req, err := http.NewRequest(http.MethodPost, h.server.URL, bytes.NewReader(payload))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer secret-token")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Reads stay open.
	readPayload := fmt.Sprintf(`{"jsonrpc":"2.0","id":1,"method":"collateral_getHealthFactor","params":[{"user":%q}]}`, h.user.String())
	resp, err = http.Post(h.server.URL, "application/json", bytes.NewReader([]byte(readPayload)))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRPCHealthEndpoint(t *testing.T) {
	h := newRPCHarness(t)
	resp, err := http.Get(h.server.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}
