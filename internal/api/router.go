package api

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/sanosuguru/go-txguard/internal/api/handler"
	"github.com/sanosuguru/go-txguard/internal/api/middleware"
	"github.com/sanosuguru/go-txguard/internal/config"
	"github.com/sanosuguru/go-txguard/internal/pkg/metrics"
)

// RouterConfig はルーターの依存関係
type RouterConfig struct {
	Logger       *zap.Logger
	Metrics      *metrics.Metrics
	Gatherer     prometheus.Gatherer
	MetricsAuth  config.MetricsConfig
	Prober       handler.Prober
	Pool         handler.PoolStatter
	ProbeTimeout time.Duration
}

// NewRouter はルーティングとミドルウェアを設定した Echo を作成する
func NewRouter(cfg RouterConfig) *echo.Echo {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = NewHTTPErrorHandler(log)
	middleware.SetupMiddleware(e, log, cfg.Metrics)

	healthHandler := handler.NewHealthHandler(cfg.Prober, cfg.ProbeTimeout)
	e.GET("/health", healthHandler.Check)
	e.GET("/health/ready", healthHandler.Ready)

	e.GET("/metrics",
		echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})),
		middleware.MetricsBasicAuth(cfg.MetricsAuth),
	)

	v1 := e.Group("/api/v1")
	v1.GET("/pool", handler.NewPoolHandler(cfg.Pool).Stats)

	return e
}
