package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/sanosuguru/go-txguard/internal/domain/transaction"
	"github.com/sanosuguru/go-txguard/internal/pkg/metrics"
)

var ErrUnknownConnection = errors.New("このプールから貸し出された接続ではありません")

// Pool は sqlx.DB からセッションを貸し出し、接続ごとに数値IDを採番する
// ResolveID により transaction.IDResolver としても使える
type Pool struct {
	db     *sqlx.DB
	prefix string
	log    *zap.Logger
	m      *metrics.Metrics

	mu     sync.Mutex
	nextID int
	ids    map[string]int
}

// PoolOption は Pool の設定を変更する
type PoolOption func(*Pool)

// WithNamePrefix は接続名の接頭辞を設定する
func WithNamePrefix(prefix string) PoolOption {
	return func(p *Pool) { p.prefix = prefix }
}

// WithPoolLogger はロガーを設定する
func WithPoolLogger(log *zap.Logger) PoolOption {
	return func(p *Pool) { p.log = log }
}

// WithPoolMetrics はメトリクスを設定する
func WithPoolMetrics(m *metrics.Metrics) PoolOption {
	return func(p *Pool) { p.m = m }
}

// NewPool は新しい Pool を作成する
func NewPool(db *sqlx.DB, opts ...PoolOption) *Pool {
	p := &Pool{
		db:     db,
		prefix: "pg",
		log:    zap.NewNop(),
		ids:    make(map[string]int),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Acquire はセッションを1つ貸し出す
// ctx は返された Conn のトランザクション操作にも使われる
func (p *Pool) Acquire(ctx context.Context) (*Conn, error) {
	c, err := p.db.Connx(ctx)
	if err != nil {
		return nil, fmt.Errorf("接続の取得に失敗: %w", err)
	}

	name := p.prefix + "-" + uuid.NewString()

	p.mu.Lock()
	p.nextID++
	id := p.nextID
	p.ids[name] = id
	p.mu.Unlock()

	if p.m != nil {
		p.m.CheckedOutConnections.Inc()
	}
	p.log.Debug("接続を貸し出しました", zap.String("connection", name), zap.Int("database_id", id))

	return newConn(ctx, name, c, p.log), nil
}

// Release は接続を閉じてプールへ返す
func (p *Pool) Release(c *Conn) error {
	if c == nil {
		return nil
	}

	p.mu.Lock()
	_, ok := p.ids[c.name]
	delete(p.ids, c.name)
	p.mu.Unlock()

	if !ok {
		return ErrUnknownConnection
	}
	if p.m != nil {
		p.m.CheckedOutConnections.Dec()
	}
	if err := c.Close(); err != nil && !errors.Is(err, sql.ErrConnDone) {
		return fmt.Errorf("接続の返却に失敗: %w", err)
	}
	return nil
}

// ResolveID は貸し出し中の接続のIDを返す
// 不明な接続には transaction.UnknownConnectionID を返す
func (p *Pool) ResolveID(conn transaction.Connection) int {
	if conn == nil {
		return transaction.UnknownConnectionID
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if id, ok := p.ids[conn.ConnectionName()]; ok {
		return id
	}
	return transaction.UnknownConnectionID
}

// PoolStats はプールの状態
type PoolStats struct {
	CheckedOut int         `json:"checked_out"`
	DB         sql.DBStats `json:"db"`
}

// Stats はプールの状態を返す
func (p *Pool) Stats() PoolStats {
	p.mu.Lock()
	n := len(p.ids)
	p.mu.Unlock()
	return PoolStats{CheckedOut: n, DB: p.db.Stats()}
}

// DB は元の sqlx.DB を返す
func (p *Pool) DB() *sqlx.DB {
	return p.db
}

var _ transaction.IDResolver = (*Pool)(nil)
