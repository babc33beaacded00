package transaction

import "errors"

var (
	ErrBeginFailed  = errors.New("トランザクションの開始に失敗しました")
	ErrCommitFailed = errors.New("トランザクションのコミットに失敗しました")
)

// RunInTransaction は conn 上でトランザクションを開始して fn を実行する
// fn が成功すればコミットし、失敗・パニックで抜けた場合はロールバックする
//
// Guard が無効、またはドライバがトランザクション非対応の場合は
// トランザクションなしで fn を実行する。
func RunInTransaction(g *Guard, conn Connection, fn func() error) error {
	defer g.Close()

	if !g.Begin(conn) && !boundWithoutTransactions(g, conn) {
		return ErrBeginFailed
	}

	if err := fn(); err != nil {
		return err
	}

	if !g.Active() {
		return nil
	}
	if !g.Commit() {
		return ErrCommitFailed
	}
	return nil
}

// boundWithoutTransactions はトランザクション非対応の接続に束縛されただけの状態かを返す
func boundWithoutTransactions(g *Guard, conn Connection) bool {
	bound := g.Connection()
	return conn != nil && bound != nil &&
		conn.IsValid() && !conn.HasTransactionSupport() &&
		bound.ConnectionName() == conn.ConnectionName()
}
