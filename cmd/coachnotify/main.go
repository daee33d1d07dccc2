// Command coachnotify はコーチングアプリの通知・決済バックエンドを起動する。
//
//	coachnotify serve        Webhook / Callable API サーバー
//	coachnotify worker       変更フィードとスケジュールジョブ
//	coachnotify migrate      マイグレーション
//	coachnotify healthcheck  ヘルスチェック
package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/coachnotify/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
