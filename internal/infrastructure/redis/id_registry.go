package redis

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/sanosuguru/go-txguard/internal/domain/transaction"
)

const (
	defaultKeyPrefix = "txguard:conn"
	defaultTTL       = 24 * time.Hour
	defaultTimeout   = 200 * time.Millisecond
)

// 接続名に対応するIDを取得し、なければ採番して保存する
const resolveScript = `
	local id = redis.call("GET", KEYS[1])
	if id then
		return tonumber(id)
	end
	id = redis.call("INCR", KEYS[2])
	redis.call("SET", KEYS[1], id, "PX", ARGV[1])
	return id
`

// IDRegistry は接続名からプロセス横断で一意な数値IDを採番する transaction.IDResolver
// Redis に到達できない場合は fallback（未設定なら番兵値）を返し、失敗はしない
type IDRegistry struct {
	client   *redis.Client
	prefix   string
	ttl      time.Duration
	timeout  time.Duration
	fallback transaction.IDResolver
	log      *zap.Logger

	mu    sync.Mutex
	cache map[string]int
}

// RegistryOption は IDRegistry の設定を変更する
type RegistryOption func(*IDRegistry)

// WithKeyPrefix はキーの接頭辞を設定する
func WithKeyPrefix(prefix string) RegistryOption {
	return func(r *IDRegistry) { r.prefix = prefix }
}

// WithTTL は採番したIDの保持期間を設定する
func WithTTL(ttl time.Duration) RegistryOption {
	return func(r *IDRegistry) { r.ttl = ttl }
}

// WithTimeout は1回の問い合わせのタイムアウトを設定する
func WithTimeout(timeout time.Duration) RegistryOption {
	return func(r *IDRegistry) { r.timeout = timeout }
}

// WithFallback は Redis に到達できない場合に使う resolver を設定する
func WithFallback(resolver transaction.IDResolver) RegistryOption {
	return func(r *IDRegistry) { r.fallback = resolver }
}

// WithRegistryLogger はロガーを設定する
func WithRegistryLogger(log *zap.Logger) RegistryOption {
	return func(r *IDRegistry) { r.log = log }
}

// NewIDRegistry は新しい IDRegistry を作成する
func NewIDRegistry(client *redis.Client, opts ...RegistryOption) *IDRegistry {
	r := &IDRegistry{
		client:  client,
		prefix:  defaultKeyPrefix,
		ttl:     defaultTTL,
		timeout: defaultTimeout,
		log:     zap.NewNop(),
		cache:   make(map[string]int),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ResolveID は接続のIDを返す
func (r *IDRegistry) ResolveID(conn transaction.Connection) int {
	if conn == nil {
		return transaction.UnknownConnectionID
	}
	name := conn.ConnectionName()

	r.mu.Lock()
	id, ok := r.cache[name]
	r.mu.Unlock()
	if ok {
		return id
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	id, err := r.client.Eval(ctx, resolveScript,
		[]string{r.nameKey(name), r.seqKey()},
		r.ttl.Milliseconds(),
	).Int()
	if err != nil {
		r.log.Warn("接続IDの採番に失敗", zap.String("connection", name), zap.Error(err))
		if r.fallback != nil {
			return r.fallback.ResolveID(conn)
		}
		return transaction.UnknownConnectionID
	}

	r.mu.Lock()
	r.cache[name] = id
	r.mu.Unlock()
	return id
}

// Forget はローカルキャッシュから接続を削除する
func (r *IDRegistry) Forget(name string) {
	r.mu.Lock()
	delete(r.cache, name)
	r.mu.Unlock()
}

func (r *IDRegistry) nameKey(name string) string {
	return r.prefix + ":name:" + name
}

func (r *IDRegistry) seqKey() string {
	return r.prefix + ":seq"
}

var _ transaction.IDResolver = (*IDRegistry)(nil)
