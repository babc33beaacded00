package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sanosuguru/go-txguard/internal/infrastructure/postgres"
)

// PoolStatter はプールの状態を返す
type PoolStatter interface {
	Stats() postgres.PoolStats
}

// PoolHandler はコネクションプールの状態を返すハンドラー
type PoolHandler struct {
	pool PoolStatter
}

func NewPoolHandler(p PoolStatter) *PoolHandler {
	return &PoolHandler{pool: p}
}

// PoolResponse はプール状態のレスポンス
type PoolResponse struct {
	CheckedOut      int   `json:"checked_out"`
	OpenConnections int   `json:"open_connections"`
	InUse           int   `json:"in_use"`
	Idle            int   `json:"idle"`
	WaitCount       int64 `json:"wait_count"`
}

// Stats はプールの状態を返す
func (h *PoolHandler) Stats(c echo.Context) error {
	s := h.pool.Stats()
	return c.JSON(http.StatusOK, PoolResponse{
		CheckedOut:      s.CheckedOut,
		OpenConnections: s.DB.OpenConnections,
		InUse:           s.DB.InUse,
		Idle:            s.DB.Idle,
		WaitCount:       s.DB.WaitCount,
	})
}
