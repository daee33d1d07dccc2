// Package recipient は通知の宛先ユーザーの表示名と配信トークンを解決する。
package recipient

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/coachnotify/internal/model"
)

// UnknownName はユーザーが存在しない、または名前が未設定の場合の表示名。
const UnknownName = "Someone"

// UserFinder はユーザー取得のインターフェース。
type UserFinder interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
}

// Resolver はユーザーIDから表示名とFCMトークンを引く。
type Resolver struct {
	users  UserFinder
	logger *slog.Logger
}

// NewResolver はResolverを生成する。
func NewResolver(users UserFinder, logger *slog.Logger) *Resolver {
	return &Resolver{users: users, logger: logger}
}

// DisplayName はユーザーの表示名を返す。失敗することはなく、
// 取得エラー時やユーザー不在時はUnknownNameを返す。
func (r *Resolver) DisplayName(ctx context.Context, userID string) string {
	if userID == "" {
		return UnknownName
	}
	user, err := r.users.FindByID(ctx, userID)
	if err != nil {
		r.logger.Warn("表示名の取得に失敗しました",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return UnknownName
	}
	if user == nil {
		return UnknownName
	}
	if name := user.FullName(); name != "" {
		return name
	}
	return UnknownName
}

// Tokens はユーザーのFCMトークンを返す。ユーザーが存在しない場合は空スライスを返す。
func (r *Resolver) Tokens(ctx context.Context, userID string) ([]string, error) {
	user, err := r.users.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("配信トークンの取得に失敗しました: %w", err)
	}
	if user == nil {
		return []string{}, nil
	}
	tokens := make([]string, 0, len(user.FCMTokens))
	for _, t := range user.FCMTokens {
		if t != "" {
			tokens = append(tokens, t)
		}
	}
	return tokens, nil
}
