package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/sanosuguru/go-txguard/internal/domain/transaction"
)

// Conn はプールから貸し出された1つのセッションを transaction.Connection として扱う
// 同じ物理接続を使い続けるため、Tx() 経由のクエリはガードのトランザクション内で実行される
// 複数のゴルーチンから同時に使ってはならない
type Conn struct {
	ctx    context.Context
	name   string
	conn   *sqlx.Conn
	tx     *sqlx.Tx
	closed bool
	log    *zap.Logger
}

func newConn(ctx context.Context, name string, c *sqlx.Conn, log *zap.Logger) *Conn {
	return &Conn{ctx: ctx, name: name, conn: c, log: log.With(zap.String("connection", name))}
}

// IsValid は接続が利用可能かどうかを返す
func (c *Conn) IsValid() bool {
	return c != nil && c.conn != nil && !c.closed
}

// ConnectionName は接続名を返す
func (c *Conn) ConnectionName() string {
	if c == nil {
		return ""
	}
	return c.name
}

// HasTransactionSupport は常に true を返す
func (c *Conn) HasTransactionSupport() bool {
	return true
}

// BeginTransaction はトランザクションを開始する
func (c *Conn) BeginTransaction() bool {
	if !c.IsValid() {
		return false
	}
	if c.tx != nil {
		c.log.Warn("トランザクションが既に開いています")
		return false
	}
	tx, err := c.conn.BeginTxx(c.ctx, nil)
	if err != nil {
		c.log.Warn("トランザクション開始に失敗", driverFields(err)...)
		return false
	}
	c.tx = tx
	return true
}

// Commit はトランザクションをコミットする
func (c *Conn) Commit() bool {
	if !c.IsValid() || c.tx == nil {
		return false
	}
	err := c.tx.Commit()
	c.tx = nil
	if err != nil {
		c.log.Warn("コミットに失敗", driverFields(err)...)
		return false
	}
	return true
}

// Rollback はトランザクションをロールバックする
// トランザクションを保持していない場合もサーバー側の状態を消すため ROLLBACK を発行する
func (c *Conn) Rollback() bool {
	if !c.IsValid() {
		return false
	}
	if c.tx == nil {
		if _, err := c.conn.ExecContext(c.ctx, "ROLLBACK"); err != nil {
			c.log.Warn("ロールバックに失敗", driverFields(err)...)
			return false
		}
		return true
	}
	err := c.tx.Rollback()
	c.tx = nil
	// コンテキストのキャンセルで既にロールバックされている
	if err != nil && !errors.Is(err, sql.ErrTxDone) {
		c.log.Warn("ロールバックに失敗", driverFields(err)...)
		return false
	}
	return true
}

// Tx は開いているトランザクションを返す（開いていなければ nil）
// リポジトリ実装で使用する
func (c *Conn) Tx() *sqlx.Tx {
	return c.tx
}

// Querier は Conn と sqlx.Tx の両方で使えるクエリ実行インターフェース
type Querier interface {
	sqlx.QueryerContext
	sqlx.ExecerContext
}

// Querier はトランザクション中なら Tx を、そうでなければ接続そのものを返す
func (c *Conn) Querier() Querier {
	if c.tx != nil {
		return c.tx
	}
	return c.conn
}

// Close は開いているトランザクションを破棄して接続をプールへ返す
func (c *Conn) Close() error {
	if !c.IsValid() {
		return nil
	}
	if c.tx != nil {
		_ = c.tx.Rollback()
		c.tx = nil
	}
	c.closed = true
	return c.conn.Close()
}

func driverFields(err error) []zap.Field {
	fields := []zap.Field{zap.Error(err)}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		fields = append(fields,
			zap.String("pq_code", string(pqErr.Code)),
			zap.String("pq_class", pqErr.Code.Class().Name()),
		)
	}
	return fields
}

var _ transaction.Connection = (*Conn)(nil)
