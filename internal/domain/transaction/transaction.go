package transaction

import "fmt"

// UnknownConnectionID は接続IDを解決できなかった場合の番兵値
const UnknownConnectionID = -1

// Connection はガードが操作するデータベース接続のインターフェース
// ドメイン層がインフラ層（sqlx等）に依存しないようにするための抽象化
type Connection interface {
	// IsValid は接続が利用可能かどうかを返す
	IsValid() bool
	// ConnectionName は接続の識別名を返す
	ConnectionName() string
	// HasTransactionSupport はドライバがトランザクションに対応しているかを返す
	HasTransactionSupport() bool
	// BeginTransaction はトランザクションを開始する
	BeginTransaction() bool
	// Commit はトランザクションをコミットする
	Commit() bool
	// Rollback はトランザクションをロールバックする
	Rollback() bool
}

// IDResolver は接続をログ相関用の数値IDに変換する
// 失敗してはならない。不明な接続には UnknownConnectionID を返す
type IDResolver interface {
	ResolveID(conn Connection) int
}

// QueryLogger はトランザクションイベントのトレースログ出力先
// 呼び出し元の制御フローをブロックしてはならない
type QueryLogger interface {
	LogQuery(e Event)
}

// Op はトレースイベントの種別
type Op string

const (
	OpBegin    Op = "BEGIN"
	OpCommit   Op = "COMMIT"
	OpRollback Op = "ROLLBACK"
)

// Event はトレースログ1行分のイベント
type Event struct {
	Op             Op
	Failed         bool
	ConnectionID   int
	ConnectionName string
	// Attempts は BEGIN で試行した回数（COMMIT/ROLLBACK では 0）
	Attempts int
}

// Tag は "[BEGIN]" や "[COMMIT Failed]" のようなタグを返す
func (e Event) Tag() string {
	if e.Failed {
		return "[" + string(e.Op) + " Failed]"
	}
	return "[" + string(e.Op) + "]"
}

// String はトレースログの整形済み行を返す
func (e Event) String() string {
	if e.Op == OpBegin {
		return fmt.Sprintf("%s [databaseId:%d] %s", e.Tag(), e.ConnectionID, e.ConnectionName)
	}
	return fmt.Sprintf("%s [databaseId:%d]", e.Tag(), e.ConnectionID)
}

type nopResolver struct{}

func (nopResolver) ResolveID(Connection) int { return UnknownConnectionID }

type nopQueryLogger struct{}

func (nopQueryLogger) LogQuery(Event) {}
