package transaction

import (
	"go.uber.org/zap"
)

// beginAttempts はトランザクション開始の試行回数
const beginAttempts = 2

// Guard は1つの接続上のトランザクションの開始・コミット・ロールバックを調整する
//
// 1つの Guard は1つの作業単位に対応し、同時に1つの接続にしか束縛されない。
// 内部でロックを取らないため、同じ Guard を複数のゴルーチンから呼んではならない。
// スコープを抜ける前に必ず Close を呼ぶこと（通常は defer g.Close()）。
// アクティブなまま Close されるとロールバックされる。
type Guard struct {
	enabled  bool
	conn     Connection
	active   bool
	resolver IDResolver
	sink     QueryLogger
	log      *zap.Logger
}

// Option は Guard の設定を変更する
type Option func(*Guard)

// WithEnabled はトランザクションを実際に開くかどうかを設定する
func WithEnabled(enabled bool) Option {
	return func(g *Guard) { g.enabled = enabled }
}

// WithLogger はシステムログの出力先を設定する
func WithLogger(l *zap.Logger) Option {
	return func(g *Guard) {
		if l != nil {
			g.log = l
		}
	}
}

// NewGuard は未束縛・非アクティブな Guard を作成する
// resolver や sink が nil の場合は何もしない実装が使われる
func NewGuard(resolver IDResolver, sink QueryLogger, opts ...Option) *Guard {
	if resolver == nil {
		resolver = nopResolver{}
	}
	if sink == nil {
		sink = nopQueryLogger{}
	}
	g := &Guard{
		enabled:  true,
		resolver: resolver,
		sink:     sink,
		log:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Enabled はトランザクションが有効かどうかを返す
func (g *Guard) Enabled() bool { return g.enabled }

// SetEnabled はトランザクションの有効・無効を切り替える
func (g *Guard) SetEnabled(enabled bool) { g.enabled = enabled }

// Active はトランザクションが開いているかどうかを返す
func (g *Guard) Active() bool { return g.active }

// Connection は束縛されている接続を返す（未束縛なら nil）
func (g *Guard) Connection() Connection { return g.conn }

// Clone は現在の状態のスナップショットを返す
//
// 接続は共有され、トランザクションは複製されない。アクティブな Guard を複製すると
// 同じトランザクションの所有者が2つになり、どちらからでもコミット・ロールバックできてしまう。
// 複製側では Close を呼ばないか、元の Guard を先にコミットすること。
func (g *Guard) Clone() *Guard {
	c := *g
	return &c
}

// Begin は conn 上でトランザクションを開始し、アクティブかどうかを返す
func (g *Guard) Begin(conn Connection) bool {
	if conn == nil || !conn.IsValid() {
		g.log.Error("トランザクションを開始できません。無効な接続です",
			zap.String("connection", connectionName(conn)))
		return false
	}

	if g.conn != nil && g.conn.IsValid() && g.conn.ConnectionName() != conn.ConnectionName() {
		g.log.Error("別の接続が既に設定されています",
			zap.String("connection", conn.ConnectionName()),
			zap.String("bound", g.conn.ConnectionName()))
		return false
	}

	if !g.enabled {
		g.conn = conn
		return true
	}

	if g.active {
		g.log.Debug("トランザクションは既に開始されています",
			zap.String("connection", conn.ConnectionName()))
		return true
	}

	if conn.HasTransactionSupport() {
		attempts := 0
		for attempts < beginAttempts {
			attempts++
			g.active = conn.BeginTransaction()
			if g.active {
				break
			}
			// 中途半端な状態を消してから再試行する
			conn.Rollback()
		}

		g.sink.LogQuery(Event{
			Op:             OpBegin,
			Failed:         !g.active,
			ConnectionID:   g.resolver.ResolveID(conn),
			ConnectionName: conn.ConnectionName(),
			Attempts:       attempts,
		})
	}

	g.conn = conn
	return g.active
}

// Rebegin は保持している接続で Begin をやり直す
func (g *Guard) Rebegin() bool {
	return g.Begin(g.conn)
}

// Commit はトランザクションをコミットする
// 結果にかかわらず、呼び出し後は非アクティブになる
func (g *Guard) Commit() bool {
	return g.finish(OpCommit, Connection.Commit)
}

// Rollback はトランザクションをロールバックする
// 結果にかかわらず、呼び出し後は非アクティブになる
func (g *Guard) Rollback() bool {
	return g.finish(OpRollback, Connection.Rollback)
}

// Close はアクティブなトランザクションが残っていればロールバックする
// 何度呼んでもよい
func (g *Guard) Close() bool {
	if !g.active {
		return false
	}
	return g.Rollback()
}

func (g *Guard) finish(op Op, do func(Connection) bool) bool {
	res := false
	if g.active && g.conn != nil && g.conn.IsValid() {
		res = do(g.conn)
		g.sink.LogQuery(Event{
			Op:             op,
			Failed:         !res,
			ConnectionID:   g.resolver.ResolveID(g.conn),
			ConnectionName: g.conn.ConnectionName(),
		})
	}
	g.active = false
	return res
}

func connectionName(conn Connection) string {
	if conn == nil {
		return ""
	}
	return conn.ConnectionName()
}
