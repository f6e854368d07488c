package rpc

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"peerlend/native/lending"
	"peerlend/pool"
	"peerlend/state"
	"peerlend/storage"
)

const (
	testAssetHex = "0x00000000000000000000000000000000000000aa"
	testUserHex  = "0x0000000000000000000000000000000000000001"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	adapter := pool.NewStaticAdapter()
	asset := common.HexToAddress(testAssetHex)
	adapter.Configure(asset, lending.ReserveConfig{BorrowingEnabled: true})

	engine := lending.NewEngine()
	engine.SetState(state.NewManager(storage.NewMemDB()))
	engine.SetPoolAdapter(adapter)
	engine.SetRiskProvider(pool.NewAccrualRisk())
	if _, err := engine.CreateMarket(asset, 0, true); err != nil {
		t.Fatalf("create market: %v", err)
	}

	server := NewServer(engine, Options{DefaultMaxIterations: 16})
	ts := httptest.NewServer(server.Router())
	t.Cleanup(ts.Close)
	return ts
}

func call(t *testing.T, ts *httptest.Server, method string, params interface{}) rpcResponse {
	t.Helper()
	rawParams, err := json.Marshal(params)
	if err != nil {
		t.Fatalf("marshal params: %v", err)
	}
	body, err := json.Marshal(map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
		"params":  json.RawMessage(rawParams),
	})
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	resp, err := http.Post(ts.URL, "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	var decoded rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return decoded
}

func TestSupplyAndPositionOverRPC(t *testing.T) {
	ts := newTestServer(t)
	resp := call(t, ts, "lending_supply", map[string]string{
		"caller": testUserHex,
		"asset":  testAssetHex,
		"amount": "100",
	})
	if resp.Error != nil {
		t.Fatalf("supply error: %+v", resp.Error)
	}
	result, err := json.Marshal(resp.Result)
	if err != nil {
		t.Fatalf("re-marshal result: %v", err)
	}
	var action actionResult
	if err := json.Unmarshal(result, &action); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if action.ToPool != "100" || action.OnPool != "100" {
		t.Fatalf("unexpected result %+v", action)
	}

	resp = call(t, ts, "lending_getPosition", map[string]string{
		"asset": testAssetHex,
		"user":  testUserHex,
	})
	if resp.Error != nil {
		t.Fatalf("position error: %+v", resp.Error)
	}
}

func TestUnknownMethod(t *testing.T) {
	ts := newTestServer(t)
	resp := call(t, ts, "lending_mint", map[string]string{})
	if resp.Error == nil || resp.Error.Code != codeMethodNotFound {
		t.Fatalf("error = %+v, want method not found", resp.Error)
	}
}

func TestInvalidParamsRejected(t *testing.T) {
	ts := newTestServer(t)
	resp := call(t, ts, "lending_supply", map[string]string{
		"caller": "nope",
		"asset":  testAssetHex,
		"amount": "100",
	})
	if resp.Error == nil || resp.Error.Code != codeInvalidParams {
		t.Fatalf("error = %+v, want invalid params", resp.Error)
	}
	resp = call(t, ts, "lending_supply", map[string]string{
		"caller": testUserHex,
		"asset":  testAssetHex,
		"amount": "-5",
	})
	if resp.Error == nil || resp.Error.Code != codeInvalidParams {
		t.Fatalf("error = %+v, want invalid params", resp.Error)
	}
}

func TestDomainErrorMapping(t *testing.T) {
	ts := newTestServer(t)
	resp := call(t, ts, "lending_getMarket", map[string]string{
		"asset": "0x00000000000000000000000000000000000000bb",
	})
	if resp.Error == nil || resp.Error.Code != codeNotFound {
		t.Fatalf("error = %+v, want market not found", resp.Error)
	}
}

func TestRoutingMetricExported(t *testing.T) {
	ts := newTestServer(t)
	resp := call(t, ts, "lending_supply", map[string]string{
		"caller": testUserHex,
		"asset":  testAssetHex,
		"amount": "100",
	})
	if resp.Error != nil {
		t.Fatalf("supply error: %+v", resp.Error)
	}
	metricsResp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("get metrics: %v", err)
	}
	defer metricsResp.Body.Close()
	body, err := io.ReadAll(metricsResp.Body)
	if err != nil {
		t.Fatalf("read metrics: %v", err)
	}
	series := `peerlend_matched_volume_total{action="lending_supply",route="pool"}`
	if !strings.Contains(string(body), series) {
		t.Fatalf("metrics output missing %s", series)
	}
}

func TestHealthEndpoint(t *testing.T) {
	ts := newTestServer(t)
	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if got := resp.Header.Get("X-Request-ID"); got == "" {
		t.Fatalf("missing request id header")
	}
}
