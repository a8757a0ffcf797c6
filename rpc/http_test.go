package rpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"tokenswap/crypto"
	"tokenswap/native/escrow"
	"tokenswap/native/registry"
	"tokenswap/state"
	"tokenswap/storage"
)

func newTestServer(t *testing.T, auth AuthConfig) *httptest.Server {
	t.Helper()
	store := state.NewStore(storage.NewMemDB())
	ledger := registry.NewLedger(store)
	engine := escrow.NewEngine()
	engine.SetState(escrow.NewStateStore(store))
	engine.SetRegistry(ledger)
	server := NewServer(engine, ledger, nil, auth)
	ts := httptest.NewServer(server.Router())
	t.Cleanup(ts.Close)
	return ts
}

func call(t *testing.T, ts *httptest.Server, token, method string, params interface{}) (*http.Response, RPCResponse) {
	t.Helper()
	encoded, err := json.Marshal(params)
	require.NoError(t, err)
	body := fmt.Sprintf(`{"jsonrpc":"2.0","id":1,"method":%q,"params":[%s]}`, method, encoded)
	req, err := http.NewRequest(http.MethodPost, ts.URL+"/", bytes.NewBufferString(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var decoded RPCResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp, decoded
}

func bech32Addr(fill byte) string {
	raw := make([]byte, 20)
	for i := range raw {
		raw[i] = fill
	}
	return crypto.NewAddress(crypto.SwapPrefix, raw).String()
}

func mintAsset(t *testing.T, ts *httptest.Server, token, creator, collection, name string) string {
	t.Helper()
	resp, rpcResp := call(t, ts, token, "registry_mint", map[string]string{
		"creator":    creator,
		"collection": collection,
		"name":       name,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Nil(t, rpcResp.Error)
	result, ok := rpcResp.Result.(map[string]interface{})
	require.True(t, ok)
	id, ok := result["id"].(string)
	require.True(t, ok)
	return id
}

func TestEndToEndSwapFlow(t *testing.T) {
	ts := newTestServer(t, AuthConfig{})
	seller := bech32Addr(0x01)
	buyer := bech32Addr(0x02)

	targetID := mintAsset(t, ts, "", seller, "Heroes", "Sword")
	offeredID := mintAsset(t, ts, "", buyer, "Villains", "Axe")

	resp, rpcResp := call(t, ts, "", "escrow_initialize", map[string]string{
		"caller": seller, "asset": targetID, "collection": "Heroes", "name": "Sword",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Nil(t, rpcResp.Error)

	resp, rpcResp = call(t, ts, "", "escrow_start", map[string]interface{}{
		"caller": seller, "asset": targetID,
		"collections": []string{"Villains"}, "tokens": []string{"Axe"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Nil(t, rpcResp.Error)

	_, rpcResp = call(t, ts, "", "escrow_get", map[string]string{"asset": targetID})
	require.Nil(t, rpcResp.Error)
	record := rpcResp.Result.(map[string]interface{})
	require.Equal(t, "armed_open", record["status"])
	require.Equal(t, seller, record["lister"])

	_, rpcResp = call(t, ts, "", "escrow_isTradable", map[string]string{"asset": targetID})
	require.Nil(t, rpcResp.Error)
	require.Equal(t, true, rpcResp.Result)

	resp, rpcResp = call(t, ts, "", "escrow_flashOffer", map[string]string{
		"offerer": buyer, "offered": offeredID, "target": targetID,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Nil(t, rpcResp.Error)

	// Ownership swapped, listing consumed.
	_, rpcResp = call(t, ts, "", "registry_get", map[string]string{"asset": targetID})
	require.Nil(t, rpcResp.Error)
	require.Equal(t, buyer, rpcResp.Result.(map[string]interface{})["owner"])

	_, rpcResp = call(t, ts, "", "registry_get", map[string]string{"asset": offeredID})
	require.Nil(t, rpcResp.Error)
	require.Equal(t, seller, rpcResp.Result.(map[string]interface{})["owner"])

	_, rpcResp = call(t, ts, "", "escrow_get", map[string]string{"asset": targetID})
	require.Nil(t, rpcResp.Error)
	require.Equal(t, "armed_closed", rpcResp.Result.(map[string]interface{})["status"])
}

func TestEngineErrorsMapToStableCodes(t *testing.T) {
	ts := newTestServer(t, AuthConfig{})
	seller := bech32Addr(0x01)
	stranger := bech32Addr(0x03)
	assetID := mintAsset(t, ts, "", seller, "Heroes", "Sword")

	resp, rpcResp := call(t, ts, "", "escrow_initialize", map[string]string{
		"caller": stranger, "asset": assetID, "collection": "Heroes", "name": "Sword",
	})
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	require.NotNil(t, rpcResp.Error)
	require.Equal(t, codeNotOwner, rpcResp.Error.Code)

	_, rpcResp = call(t, ts, "", "escrow_initialize", map[string]string{
		"caller": seller, "asset": assetID, "collection": "Heroes", "name": "Wrong",
	})
	require.NotNil(t, rpcResp.Error)
	require.Equal(t, codeAssetMismatch, rpcResp.Error.Code)

	_, rpcResp = call(t, ts, "", "escrow_get", map[string]string{"asset": assetID})
	require.NotNil(t, rpcResp.Error)
	require.Equal(t, codeTradingDisabled, rpcResp.Error.Code)

	missing := fmt.Sprintf("%064x", 0xEE)
	_, rpcResp = call(t, ts, "", "registry_get", map[string]string{"asset": missing})
	require.NotNil(t, rpcResp.Error)
	require.Equal(t, codeAssetNotFound, rpcResp.Error.Code)

	_, rpcResp = call(t, ts, "", "registry_mint", map[string]string{
		"creator": seller, "collection": "Heroes", "name": "Sword",
	})
	require.NotNil(t, rpcResp.Error)
	require.Equal(t, codeAssetExists, rpcResp.Error.Code)
}

func TestMethodNotFound(t *testing.T) {
	ts := newTestServer(t, AuthConfig{})
	resp, rpcResp := call(t, ts, "", "escrow_unknown", map[string]string{})
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.NotNil(t, rpcResp.Error)
	require.Equal(t, codeMethodNotFound, rpcResp.Error.Code)
}

func TestStaticTokenGatesMutatingMethods(t *testing.T) {
	ts := newTestServer(t, AuthConfig{Token: "static-secret"})
	creator := bech32Addr(0x01)

	resp, rpcResp := call(t, ts, "", "registry_mint", map[string]string{
		"creator": creator, "collection": "Heroes", "name": "Sword",
	})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.NotNil(t, rpcResp.Error)
	require.Equal(t, codeUnauthorized, rpcResp.Error.Code)

	// Read-only methods stay open.
	resp, rpcResp = call(t, ts, "", "escrow_isTradable", map[string]string{
		"asset": fmt.Sprintf("%064x", 1),
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Nil(t, rpcResp.Error)
	require.Equal(t, false, rpcResp.Result)

	resp, rpcResp = call(t, ts, "static-secret", "registry_mint", map[string]string{
		"creator": creator, "collection": "Heroes", "name": "Sword",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Nil(t, rpcResp.Error)
}

func TestJWTAuth(t *testing.T) {
	secret := "hmac-secret"
	ts := newTestServer(t, AuthConfig{HMACSecret: secret, Issuer: "swapd-test"})
	creator := bech32Addr(0x01)

	claims := jwt.MapClaims{
		"iss": "swapd-test",
		"exp": time.Now().Add(time.Hour).Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)

	resp, rpcResp := call(t, ts, signed, "registry_mint", map[string]string{
		"creator": creator, "collection": "Heroes", "name": "Sword",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Nil(t, rpcResp.Error)

	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("wrong-secret"))
	require.NoError(t, err)
	resp, rpcResp = call(t, ts, forged, "registry_mint", map[string]string{
		"creator": creator, "collection": "Heroes", "name": "Axe",
	})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.NotNil(t, rpcResp.Error)
}

func TestInvalidParamsRejected(t *testing.T) {
	ts := newTestServer(t, AuthConfig{})
	resp, rpcResp := call(t, ts, "", "escrow_get", map[string]string{"asset": "not-hex"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.NotNil(t, rpcResp.Error)
	require.Equal(t, codeInvalidParams, rpcResp.Error.Code)
}

func postRaw(t *testing.T, ts *httptest.Server, body string) (*http.Response, RPCResponse) {
	t.Helper()
	resp, err := ts.Client().Post(ts.URL+"/", "application/json", bytes.NewBufferString(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	var decoded RPCResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp, decoded
}

func TestErrorResponsesCarryJSONContentType(t *testing.T) {
	ts := newTestServer(t, AuthConfig{})
	resp, rpcResp := postRaw(t, ts, "{not json")
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	require.NotNil(t, rpcResp.Error)
	require.Equal(t, codeParseError, rpcResp.Error.Code)

	gated := newTestServer(t, AuthConfig{Token: "static-secret"})
	resp, rpcResp = postRaw(t, gated, `{"jsonrpc":"2.0","id":1,"method":"registry_mint","params":[{}]}`)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	require.NotNil(t, rpcResp.Error)
}

func TestRequestIDEchoedForStringAndNull(t *testing.T) {
	ts := newTestServer(t, AuthConfig{})
	asset := fmt.Sprintf("%064x", 1)

	_, rpcResp := postRaw(t, ts,
		`{"jsonrpc":"2.0","id":"req-42","method":"escrow_isTradable","params":[{"asset":"`+asset+`"}]}`)
	require.Nil(t, rpcResp.Error)
	require.Equal(t, "req-42", rpcResp.ID)

	_, rpcResp = postRaw(t, ts,
		`{"jsonrpc":"2.0","id":null,"method":"escrow_isTradable","params":[{"asset":"`+asset+`"}]}`)
	require.Nil(t, rpcResp.Error)
	require.Nil(t, rpcResp.ID)

	// Errors echo the id too.
	_, rpcResp = postRaw(t, ts,
		`{"jsonrpc":"2.0","id":"req-43","method":"no_such_method","params":[]}`)
	require.NotNil(t, rpcResp.Error)
	require.Equal(t, "req-43", rpcResp.ID)
}

func TestHealthAndMetricsEndpoints(t *testing.T) {
	ts := newTestServer(t, AuthConfig{})
	resp, err := ts.Client().Get(ts.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = ts.Client().Get(ts.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRateLimiterRejectsBursts(t *testing.T) {
	store := state.NewStore(storage.NewMemDB())
	ledger := registry.NewLedger(store)
	engine := escrow.NewEngine()
	engine.SetState(escrow.NewStateStore(store))
	engine.SetRegistry(ledger)
	server := NewServer(engine, ledger, nil, AuthConfig{})
	server.SetRateLimit(60, 2)
	ts := httptest.NewServer(server.Router())
	t.Cleanup(ts.Close)

	var limited bool
	for i := 0; i < 5; i++ {
		resp, err := ts.Client().Get(ts.URL + "/healthz")
		require.NoError(t, err)
		resp.Body.Close()
		if resp.StatusCode == http.StatusTooManyRequests {
			limited = true
		}
	}
	require.True(t, limited)
}
