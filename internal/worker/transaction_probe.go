package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sanosuguru/go-txguard/internal/pkg/logger"
)

// Prober はガード付きのプローブトランザクションを実行するインターフェース
type Prober interface {
	Probe(ctx context.Context) (int, error)
}

// TransactionProbe は定期的にプローブトランザクションを実行するワーカー
type TransactionProbe struct {
	prober   Prober
	interval time.Duration
	timeout  time.Duration
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewTransactionProbe は新しいプローブを作成
func NewTransactionProbe(p Prober, interval, timeout time.Duration) *TransactionProbe {
	return &TransactionProbe{
		prober:   p,
		interval: interval,
		timeout:  timeout,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start はプローブを開始
func (w *TransactionProbe) Start(ctx context.Context) {
	logger.Info("トランザクションプローブ開始",
		zap.Duration("interval", w.interval),
		zap.Duration("timeout", w.timeout),
	)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	defer close(w.doneCh)

	for {
		select {
		case <-ctx.Done():
			logger.Info("トランザクションプローブ停止（コンテキストキャンセル）")
			return
		case <-w.stopCh:
			logger.Info("トランザクションプローブ停止（シグナル受信）")
			return
		case <-ticker.C:
			w.probe(ctx)
		}
	}
}

// Stop はプローブを停止
func (w *TransactionProbe) Stop() {
	close(w.stopCh)
	<-w.doneCh
}

// probe はタイムアウト付きでプローブを1回実行
func (w *TransactionProbe) probe(ctx context.Context) {
	log := logger.Get()

	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	start := time.Now()
	id, err := w.prober.Probe(ctx)
	if err != nil {
		log.Error("プローブトランザクション失敗", zap.Int("database_id", id), zap.Error(err))
		return
	}
	log.Debug("プローブトランザクション成功",
		zap.Int("database_id", id),
		zap.Duration("latency", time.Since(start)),
	)
}
