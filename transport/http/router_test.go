package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/layer-3/dripper/adapters/store"
	"github.com/layer-3/dripper/core"
	"github.com/layer-3/dripper/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticSource struct {
	wallet common.Address
	state  core.WatchState
}

func (s staticSource) Wallet() common.Address { return s.wallet }
func (s staticSource) State() core.WatchState { return s.state }

var walletA = common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")

func setup(t *testing.T, token string) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	st := store.NewMemoryStore()
	raw, err := json.Marshal(core.Summary{RunID: "run-1", Requested: 3, Success: 2, Failed: 1})
	require.NoError(t, err)
	require.NoError(t, st.Set(context.Background(), service.LastRunKey(walletA), string(raw), 0))

	return SetupRouter(RouterConfig{
		Sources: []StatusSource{
			staticSource{wallet: walletA, state: core.WatchState{LastObservedBlock: 42, Runs: 1}},
			staticSource{wallet: common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")},
		},
		Store:   st,
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("metrics")) }),
		Token:   token,
	})
}

func do(router *gin.Engine, path, auth string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	rec := do(setup(t, "secret"), "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestStatus(t *testing.T) {
	rec := do(setup(t, ""), "/status", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Wallets []WalletStatus `json:"wallets"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Wallets, 2)

	assert.Equal(t, walletA.Hex(), body.Wallets[0].Address)
	assert.Equal(t, uint64(42), body.Wallets[0].Watch.LastObservedBlock)
	require.NotNil(t, body.Wallets[0].LastRun)
	assert.Equal(t, 2, body.Wallets[0].LastRun.Success)
	assert.Nil(t, body.Wallets[1].LastRun)
}

func TestWalletStatus(t *testing.T) {
	router := setup(t, "")

	rec := do(router, "/status/0xAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var status WalletStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "run-1", status.LastRun.RunID)

	assert.Equal(t, http.StatusNotFound, do(router, "/status/0x0000000000000000000000000000000000000001", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(router, "/status/nope", "").Code)
}

func TestBearerGuard(t *testing.T) {
	router := setup(t, "secret")

	assert.Equal(t, http.StatusUnauthorized, do(router, "/status", "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(router, "/status", "Bearer wrong").Code)
	assert.Equal(t, http.StatusUnauthorized, do(router, "/metrics", "Basic c2VjcmV0").Code)

	assert.Equal(t, http.StatusOK, do(router, "/status", "Bearer secret").Code)
	rec := do(router, "/metrics", "Bearer secret")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "metrics", rec.Body.String())
}
