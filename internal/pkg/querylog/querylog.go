package querylog

import (
	"strings"

	"go.uber.org/zap"

	"github.com/sanosuguru/go-txguard/internal/domain/transaction"
	"github.com/sanosuguru/go-txguard/internal/pkg/metrics"
)

// Sink はトランザクションのトレースログを出力する transaction.QueryLogger 実装
// m が nil の場合はメトリクスを記録しない
type Sink struct {
	log *zap.Logger
	m   *metrics.Metrics
}

// NewSink は新しい Sink を作成する
func NewSink(log *zap.Logger, m *metrics.Metrics) *Sink {
	if log == nil {
		log = zap.NewNop()
	}
	return &Sink{log: log, m: m}
}

// LogQuery はイベントを1行のトレースログとして出力する
func (s *Sink) LogQuery(e transaction.Event) {
	s.log.Info(e.String(),
		zap.String("op", string(e.Op)),
		zap.Bool("failed", e.Failed),
		zap.Int("database_id", e.ConnectionID),
	)

	if s.m == nil {
		return
	}
	result := metrics.Result(!e.Failed)
	s.m.TransactionsTotal.WithLabelValues(strings.ToLower(string(e.Op)), result).Inc()
	if e.Op == transaction.OpBegin && e.Attempts > 0 {
		s.m.BeginAttemptsTotal.WithLabelValues(result).Add(float64(e.Attempts))
	}
}

var _ transaction.QueryLogger = (*Sink)(nil)
