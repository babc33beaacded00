package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/sanosuguru/go-txguard/internal/api"
	"github.com/sanosuguru/go-txguard/internal/application"
	"github.com/sanosuguru/go-txguard/internal/config"
	"github.com/sanosuguru/go-txguard/internal/domain/transaction"
	"github.com/sanosuguru/go-txguard/internal/infrastructure/postgres"
	redisinfra "github.com/sanosuguru/go-txguard/internal/infrastructure/redis"
	"github.com/sanosuguru/go-txguard/internal/pkg/logger"
	"github.com/sanosuguru/go-txguard/internal/pkg/metrics"
	"github.com/sanosuguru/go-txguard/internal/pkg/querylog"
	"github.com/sanosuguru/go-txguard/internal/worker"
)

func main() {
	cfg := config.Load()

	log := logger.NewLogger(cfg.Log.Env, cfg.Log.Level)
	logger.Set(log)
	defer func() { _ = logger.Sync() }()

	if err := cfg.Validate(); err != nil {
		logger.Fatal("設定エラー", zap.Error(err))
	}

	m := metrics.Init()

	// DB接続
	db, err := postgres.NewConnection(&cfg.Database)
	if err != nil {
		logger.Fatal("DB接続エラー", zap.Error(err))
	}
	defer db.Close()
	logger.Info("DBに接続しました", zap.String("host", cfg.Database.Host), zap.String("dbname", cfg.Database.DBName))

	pool := postgres.NewPool(db,
		postgres.WithPoolLogger(logger.Named("pool")),
		postgres.WithPoolMetrics(m),
	)

	// 接続IDはRedisが使えればプロセス間で共有し、使えなければプール内で採番する
	var resolver transaction.IDResolver = pool
	if cfg.Redis.Enabled {
		rc := redisinfra.NewClient(&cfg.Redis)
		defer rc.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := redisinfra.Ping(ctx, rc)
		cancel()
		if err != nil {
			logger.Warn("Redisに接続できません。接続IDはプロセス内で採番します", zap.Error(err))
		} else {
			resolver = redisinfra.NewIDRegistry(rc,
				redisinfra.WithTimeout(cfg.Redis.Timeout),
				redisinfra.WithFallback(pool),
				redisinfra.WithRegistryLogger(logger.Named("id_registry")),
			)
			logger.Info("Redisに接続しました", zap.String("addr", cfg.Redis.Addr()))
		}
	}

	sink := querylog.NewSink(logger.Named("sql.query"), m)
	svc := application.NewTransactionService(
		application.NewPostgresSessionPool(pool),
		resolver,
		sink,
		application.TransactionServiceConfig{
			Enabled: cfg.Transaction.Enabled,
			Logger:  logger.Named("transaction"),
			Metrics: m,
		},
	)

	// プローブワーカー
	workerCtx, workerCancel := context.WithCancel(context.Background())
	probe := worker.NewTransactionProbe(svc, cfg.Transaction.ProbeInterval, cfg.Transaction.ProbeTimeout)
	go probe.Start(workerCtx)

	e := api.NewRouter(api.RouterConfig{
		Logger:       logger.Named("http"),
		Metrics:      m,
		Gatherer:     prometheus.DefaultGatherer,
		MetricsAuth:  cfg.Metrics,
		Prober:       svc,
		Pool:         pool,
		ProbeTimeout: cfg.Transaction.ProbeTimeout,
	})
	e.Server.ReadTimeout = cfg.Server.ReadTimeout
	e.Server.WriteTimeout = cfg.Server.WriteTimeout

	// Graceful shutdown
	go func() {
		logger.Info("サーバーを起動します", zap.String("port", cfg.Server.Port))
		if err := e.Start(fmt.Sprintf(":%s", cfg.Server.Port)); err != nil && err != http.ErrServerClosed {
			logger.Fatal("サーバー起動エラー", zap.Error(err))
		}
	}()

	// シグナル待機
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("サーバーをシャットダウンしています...")

	probe.Stop()
	workerCancel()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(ctx); err != nil {
		logger.Error("サーバーシャットダウンエラー", zap.Error(err))
	}

	logger.Info("サーバーが正常にシャットダウンしました")
}
