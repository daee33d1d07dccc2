package changefeed

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hitoshi/coachnotify/internal/model"
)

type registryKey struct {
	collection string
	changeType model.ChangeType
}

// Registry はコレクションと変更種別ごとのハンドラ一覧を保持する。
type Registry struct {
	mu       sync.RWMutex
	handlers map[registryKey][]Handler
	logger   *slog.Logger
}

// NewRegistry はRegistryを生成する。
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		handlers: make(map[registryKey][]Handler),
		logger:   logger,
	}
}

// Register はハンドラを登録する。
func (r *Registry) Register(collection string, changeType model.ChangeType, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := registryKey{collection: collection, changeType: changeType}
	r.handlers[key] = append(r.handlers[key], h)
}

// Deliver は変更に対応する全ハンドラを順に呼び出す。
// ハンドラがpanicしても他のハンドラの実行は継続する。
func (r *Registry) Deliver(ctx context.Context, change *model.Change) int {
	r.mu.RLock()
	handlers := r.handlers[registryKey{collection: change.Collection, changeType: change.Type}]
	r.mu.RUnlock()

	for _, h := range handlers {
		r.invoke(ctx, h, change)
	}
	return len(handlers)
}

func (r *Registry) invoke(ctx context.Context, h Handler, change *model.Change) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("ハンドラでpanicが発生しました",
				slog.String("collection", change.Collection),
				slog.String("change_type", string(change.Type)),
				slog.String("document_id", change.DocumentID),
				slog.String("panic", fmt.Sprintf("%v", rec)),
			)
		}
	}()
	h(ctx, change)
}
