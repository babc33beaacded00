package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// Prober はガード付きのプローブトランザクションを実行する
type Prober interface {
	Probe(ctx context.Context) (int, error)
}

// HealthHandler はヘルスチェックハンドラー
type HealthHandler struct {
	prober  Prober
	timeout time.Duration
}

// NewHealthHandler はHealthHandlerを作成する
func NewHealthHandler(p Prober, timeout time.Duration) *HealthHandler {
	return &HealthHandler{prober: p, timeout: timeout}
}

// HealthResponse はヘルスチェックのレスポンス
type HealthResponse struct {
	Status     string `json:"status"`
	Timestamp  string `json:"timestamp"`
	DatabaseID *int   `json:"database_id,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Check はプロセスの生存を確認する
func (h *HealthHandler) Check(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().Format(time.RFC3339),
	})
}

// Ready はガード付きトランザクションを1回実行してDBの準備状態を確認する
func (h *HealthHandler) Ready(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), h.timeout)
	defer cancel()

	id, err := h.prober.Probe(ctx)
	resp := HealthResponse{
		Status:     "ok",
		Timestamp:  time.Now().Format(time.RFC3339),
		DatabaseID: &id,
	}
	if err != nil {
		resp.Status = "unavailable"
		resp.Error = err.Error()
		return c.JSON(http.StatusServiceUnavailable, resp)
	}
	return c.JSON(http.StatusOK, resp)
}
