package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/layer-3/dripper/core"
	"github.com/layer-3/dripper/ports"
	"github.com/layer-3/dripper/service"
)

// StatusSource reports the state of one wallet pipeline
type StatusSource interface {
	Wallet() common.Address
	State() core.WatchState
}

// WalletStatus is the status document of one wallet
type WalletStatus struct {
	Address string          `json:"address"`
	Watch   core.WatchState `json:"watch"`
	LastRun *core.Summary   `json:"last_run"`
}

// StatusHandlers contains HTTP handlers for the status endpoints
type StatusHandlers struct {
	sources []StatusSource
	store   ports.Store
}

// NewStatusHandlers creates new status handlers
func NewStatusHandlers(sources []StatusSource, store ports.Store) *StatusHandlers {
	return &StatusHandlers{
		sources: sources,
		store:   store,
	}
}

// Healthz reports liveness
func (h *StatusHandlers) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Status lists every wallet pipeline
func (h *StatusHandlers) Status(c *gin.Context) {
	wallets := make([]WalletStatus, 0, len(h.sources))
	for _, src := range h.sources {
		status, err := h.walletStatus(c, src)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read status"})
			return
		}
		wallets = append(wallets, status)
	}

	c.JSON(http.StatusOK, gin.H{"wallets": wallets})
}

// Wallet reports a single wallet pipeline
func (h *StatusHandlers) Wallet(c *gin.Context) {
	address := c.Param("address")
	if !common.IsHexAddress(address) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid address"})
		return
	}

	for _, src := range h.sources {
		if !strings.EqualFold(src.Wallet().Hex(), address) {
			continue
		}
		status, err := h.walletStatus(c, src)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read status"})
			return
		}
		c.JSON(http.StatusOK, status)
		return
	}

	c.JSON(http.StatusNotFound, gin.H{"error": "Unknown wallet"})
}

func (h *StatusHandlers) walletStatus(c *gin.Context, src StatusSource) (WalletStatus, error) {
	status := WalletStatus{
		Address: src.Wallet().Hex(),
		Watch:   src.State(),
	}
	if h.store == nil {
		return status, nil
	}

	raw, err := h.store.Get(c.Request.Context(), service.LastRunKey(src.Wallet()))
	if errors.Is(err, core.ErrNotFound) {
		return status, nil
	}
	if err != nil {
		return status, err
	}

	var summary core.Summary
	if err := json.Unmarshal([]byte(raw), &summary); err != nil {
		return status, err
	}
	status.LastRun = &summary
	return status, nil
}
