// Package dispatch はユーザー単位のプッシュ通知配信と無効トークンの整理を行う。
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/hitoshi/coachnotify/internal/metrics"
	"github.com/hitoshi/coachnotify/internal/model"
)

// TokenResolver はユーザーの配信トークンを解決するインターフェース。
type TokenResolver interface {
	Tokens(ctx context.Context, userID string) ([]string, error)
}

// TokenStore はトークン整理のためのユーザー読み書きインターフェース。
type TokenStore interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
	UpdateTokens(ctx context.Context, id string, tokens []string) error
}

// Sender は1トークンへの送信インターフェース。
type Sender interface {
	Send(ctx context.Context, token string, n model.Notification) error
}

// Dispatcher はユーザーの全トークンへ通知を並行送信し、失敗したトークンを削除する。
// エラーは呼び出し元へ返さず、すべてログに記録する。
type Dispatcher struct {
	resolver TokenResolver
	store    TokenStore
	sender   Sender
	logger   *slog.Logger
	metrics  metrics.MetricsCollector
}

// NewDispatcher はDispatcherを生成する。mcはnilでもよい。
func NewDispatcher(resolver TokenResolver, store TokenStore, sender Sender, logger *slog.Logger, mc metrics.MetricsCollector) *Dispatcher {
	return &Dispatcher{
		resolver: resolver,
		store:    store,
		sender:   sender,
		logger:   logger,
		metrics:  mc,
	}
}

// Dispatch はuserIDの全トークンへnを送信する。
//
// 送信に失敗したトークンは無効とみなし、送信完了後にユーザーを読み直して
// 現在のトークン一覧から取り除いて書き戻す。読み直しから書き込みまでは
// トランザクションを使わないため、同一ユーザーへの並行Dispatchでは後勝ちになる。
func (d *Dispatcher) Dispatch(ctx context.Context, userID string, n model.Notification) {
	kind := string(n.Kind())

	tokens, err := d.resolver.Tokens(ctx, userID)
	if err != nil {
		d.logger.Error("配信トークンの解決に失敗しました",
			slog.String("user_id", userID),
			slog.String("kind", kind),
			slog.String("error", err.Error()),
		)
		return
	}
	if len(tokens) == 0 {
		d.logger.Debug("配信トークンがないため送信しません",
			slog.String("user_id", userID),
			slog.String("kind", kind),
		)
		return
	}

	invalid := d.sendAll(ctx, userID, tokens, n)
	if len(invalid) == 0 {
		return
	}
	d.prune(ctx, userID, invalid)
}

// sendAll は全トークンへ並行送信し、失敗したトークンを返す。
func (d *Dispatcher) sendAll(ctx context.Context, userID string, tokens []string, n model.Notification) []string {
	kind := string(n.Kind())

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		invalid []string
	)

	for _, token := range tokens {
		wg.Add(1)
		go func(tok string) {
			defer wg.Done()

			if err := d.send(ctx, tok, n); err != nil {
				d.logger.Warn("プッシュ通知の送信に失敗しました",
					slog.String("user_id", userID),
					slog.String("kind", kind),
					slog.String("error", err.Error()),
				)
				if d.metrics != nil {
					d.metrics.RecordSendFailure(kind)
				}
				mu.Lock()
				invalid = append(invalid, tok)
				mu.Unlock()
				return
			}
			if d.metrics != nil {
				d.metrics.RecordNotificationSent(kind)
			}
		}(token)
	}

	wg.Wait()

	d.logger.Info("プッシュ通知を送信しました",
		slog.String("user_id", userID),
		slog.String("kind", kind),
		slog.Int("token_count", len(tokens)),
		slog.Int("failed_count", len(invalid)),
	)
	return invalid
}

// send はSenderを呼び出す。Senderのpanicは送信失敗として扱う。
func (d *Dispatcher) send(ctx context.Context, token string, n model.Notification) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sender panicked: %v", r)
		}
	}()
	return d.sender.Send(ctx, token, n)
}

// prune はユーザーを読み直し、現在のトークン一覧からinvalidを除いて書き戻す。
func (d *Dispatcher) prune(ctx context.Context, userID string, invalid []string) {
	user, err := d.store.FindByID(ctx, userID)
	if err != nil {
		d.logger.Error("トークン整理のためのユーザー再取得に失敗しました",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return
	}
	if user == nil {
		d.logger.Info("ユーザーが削除済みのためトークン整理をスキップします",
			slog.String("user_id", userID),
		)
		return
	}

	remaining := make([]string, 0, len(user.FCMTokens))
	for _, t := range user.FCMTokens {
		if !slices.Contains(invalid, t) {
			remaining = append(remaining, t)
		}
	}
	removed := len(user.FCMTokens) - len(remaining)
	if removed == 0 {
		return
	}

	if err := d.store.UpdateTokens(ctx, userID, remaining); err != nil {
		d.logger.Error("無効トークンの削除に失敗しました",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return
	}

	if d.metrics != nil {
		d.metrics.RecordTokensPruned(removed)
	}
	d.logger.Info("無効トークンを削除しました",
		slog.String("user_id", userID),
		slog.Int("removed", removed),
		slog.Int("remaining", len(remaining)),
	)
}
