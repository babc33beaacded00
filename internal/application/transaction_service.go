package application

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sanosuguru/go-txguard/internal/domain/transaction"
	"github.com/sanosuguru/go-txguard/internal/infrastructure/postgres"
	"github.com/sanosuguru/go-txguard/internal/pkg/metrics"
)

// Session はプールから貸し出された接続
type Session interface {
	transaction.Connection
	Querier() postgres.Querier
}

// SessionPool は Session を貸し出すプール
type SessionPool interface {
	Acquire(ctx context.Context) (Session, error)
	Release(s Session) error
}

// WorkFunc はガード付きトランザクション内で実行される処理
// q はトランザクション中であれば sqlx.Tx を指す
type WorkFunc func(ctx context.Context, q postgres.Querier) error

// TransactionServiceConfig は TransactionService の設定
type TransactionServiceConfig struct {
	Enabled bool
	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

// TransactionService は接続を借りて、作業単位をガード付きトランザクションで実行する
type TransactionService struct {
	pool     SessionPool
	resolver transaction.IDResolver
	sink     transaction.QueryLogger
	enabled  bool
	log      *zap.Logger
	m        *metrics.Metrics
}

func NewTransactionService(pool SessionPool, resolver transaction.IDResolver, sink transaction.QueryLogger, cfg TransactionServiceConfig) *TransactionService {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &TransactionService{
		pool:     pool,
		resolver: resolver,
		sink:     sink,
		enabled:  cfg.Enabled,
		log:      log,
		m:        cfg.Metrics,
	}
}

// Run は fn をガード付きトランザクションで実行する
// fn が成功すればコミットし、エラー・パニック時はロールバックする
func (s *TransactionService) Run(ctx context.Context, fn WorkFunc) error {
	_, err := s.run(ctx, fn)
	return err
}

// Probe は SELECT 1 をガード付きトランザクションで実行し、使用した接続のIDを返す
func (s *TransactionService) Probe(ctx context.Context) (int, error) {
	start := time.Now()
	id, err := s.run(ctx, func(ctx context.Context, q postgres.Querier) error {
		_, err := q.ExecContext(ctx, "SELECT 1")
		return err
	})
	if s.m != nil {
		s.m.ProbeDuration.WithLabelValues(metrics.Result(err == nil)).Observe(time.Since(start).Seconds())
	}
	if err != nil {
		return id, fmt.Errorf("プローブに失敗: %w", err)
	}
	return id, nil
}

func (s *TransactionService) run(ctx context.Context, fn WorkFunc) (int, error) {
	sess, err := s.pool.Acquire(ctx)
	if err != nil {
		return transaction.UnknownConnectionID, fmt.Errorf("接続の取得に失敗: %w", err)
	}
	id := transaction.UnknownConnectionID
	if s.resolver != nil {
		id = s.resolver.ResolveID(sess)
	}
	defer s.release(sess)

	g := transaction.NewGuard(s.resolver, s.sink,
		transaction.WithEnabled(s.enabled),
		transaction.WithLogger(s.log),
	)
	err = transaction.RunInTransaction(g, sess, func() error {
		return fn(ctx, sess.Querier())
	})
	return id, err
}

// forgetter は接続名のキャッシュを破棄できる resolver
type forgetter interface {
	Forget(name string)
}

func (s *TransactionService) release(sess Session) {
	if f, ok := s.resolver.(forgetter); ok {
		f.Forget(sess.ConnectionName())
	}
	if err := s.pool.Release(sess); err != nil {
		s.log.Error("接続の返却に失敗",
			zap.String("connection", sess.ConnectionName()),
			zap.Error(err))
	}
}

// PostgresSessionPool は postgres.Pool を SessionPool として扱うアダプタ
type PostgresSessionPool struct {
	pool *postgres.Pool
}

func NewPostgresSessionPool(pool *postgres.Pool) *PostgresSessionPool {
	return &PostgresSessionPool{pool: pool}
}

func (p *PostgresSessionPool) Acquire(ctx context.Context) (Session, error) {
	c, err := p.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (p *PostgresSessionPool) Release(s Session) error {
	c, ok := s.(*postgres.Conn)
	if !ok {
		return postgres.ErrUnknownConnection
	}
	return p.pool.Release(c)
}

var _ SessionPool = (*PostgresSessionPool)(nil)
