package changefeed

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lib/pq"

	"github.com/hitoshi/coachnotify/internal/metrics"
	"github.com/hitoshi/coachnotify/internal/model"
)

// ChangeClaimer は未処理の変更を排他的に取得するインターフェース。
type ChangeClaimer interface {
	ClaimPending(ctx context.Context, limit int) ([]*model.Change, error)
}

// Deliverer は変更をハンドラへ配信するインターフェース。
type Deliverer interface {
	Deliver(ctx context.Context, change *model.Change) int
}

// Listener はLISTEN/NOTIFYの通知とポーリングでdocument_changesを監視し、
// 取得した変更をsemaphoreで並列数を制御しながら配信する。
// 変更は取得時点で処理済みになるため、配信は高々1回となる。
type Listener struct {
	changes        ChangeClaimer
	deliverer      Deliverer
	logger         *slog.Logger
	metrics        metrics.MetricsCollector
	maxConcurrency int
	batchSize      int
	pollInterval   time.Duration
}

// NewListener はListenerを生成する。
// maxConcurrencyが0以下の場合は10、batchSizeが0以下の場合は100、
// pollIntervalが0以下の場合は1分を使用する。
func NewListener(
	changes ChangeClaimer,
	deliverer Deliverer,
	logger *slog.Logger,
	mc metrics.MetricsCollector,
	maxConcurrency, batchSize int,
	pollInterval time.Duration,
) *Listener {
	if maxConcurrency <= 0 {
		maxConcurrency = 10
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	if pollInterval <= 0 {
		pollInterval = time.Minute
	}
	return &Listener{
		changes:        changes,
		deliverer:      deliverer,
		logger:         logger,
		metrics:        mc,
		maxConcurrency: maxConcurrency,
		batchSize:      batchSize,
		pollInterval:   pollInterval,
	}
}

// NewPQListener はchannelをLISTENするpq.Listenerを生成する。
func NewPQListener(databaseURL, channel string, logger *slog.Logger) (*pq.Listener, error) {
	l := pq.NewListener(databaseURL, 10*time.Second, time.Minute,
		func(ev pq.ListenerEventType, err error) {
			switch ev {
			case pq.ListenerEventConnected:
				logger.Info("変更フィードに接続しました", slog.String("channel", channel))
			case pq.ListenerEventDisconnected:
				logger.Warn("変更フィードから切断されました", slog.String("error", errString(err)))
			case pq.ListenerEventReconnected:
				logger.Info("変更フィードに再接続しました", slog.String("channel", channel))
			case pq.ListenerEventConnectionAttemptFailed:
				logger.Warn("変更フィードへの接続に失敗しました", slog.String("error", errString(err)))
			}
		},
	)
	if err := l.Listen(channel); err != nil {
		l.Close()
		return nil, fmt.Errorf("failed to listen on %s: %w", channel, err)
	}
	return l, nil
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// Run は通知チャネルとポーリングティッカーで変更を取得し続ける。
// 起動直後に1回取得し、以降はnotifyの受信、再接続（nil通知）、ティッカーのたびに取得する。
// コンテキストがキャンセルされるまで実行を継続する。
func (l *Listener) Run(ctx context.Context, notifications <-chan *pq.Notification) {
	ticker := time.NewTicker(l.pollInterval)
	defer ticker.Stop()

	l.logger.Info("変更フィードの監視を開始しました",
		slog.Duration("poll_interval", l.pollInterval),
		slog.Int("max_concurrency", l.maxConcurrency),
	)

	l.drainAndLog(ctx)

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("変更フィードの監視を停止しました")
			return
		case _, ok := <-notifications:
			if !ok {
				l.logger.Warn("通知チャネルが閉じられたためポーリングのみで継続します")
				notifications = nil
				continue
			}
			l.drainAndLog(ctx)
		case <-ticker.C:
			l.drainAndLog(ctx)
		}
	}
}

func (l *Listener) drainAndLog(ctx context.Context) {
	if _, err := l.Drain(ctx); err != nil {
		l.logger.Error("変更の取得に失敗しました",
			slog.String("error", err.Error()),
		)
	}
}

// Drain は未処理の変更がなくなるまで取得と配信を繰り返し、配信した件数を返す。
func (l *Listener) Drain(ctx context.Context) (int, error) {
	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		batch, err := l.changes.ClaimPending(ctx, l.batchSize)
		if err != nil {
			return total, err
		}
		if len(batch) == 0 {
			return total, nil
		}

		l.deliverBatch(ctx, batch)
		total += len(batch)

		if len(batch) < l.batchSize {
			return total, nil
		}
	}
}

// deliverBatch は各変更を個別のgoroutineで配信し、全件の完了を待つ。
func (l *Listener) deliverBatch(ctx context.Context, batch []*model.Change) {
	sem := make(chan struct{}, l.maxConcurrency)
	var wg sync.WaitGroup

	for _, change := range batch {
		wg.Add(1)
		sem <- struct{}{}

		go func(c *model.Change) {
			defer wg.Done()
			defer func() { <-sem }()

			if l.metrics != nil && !c.CreatedAt.IsZero() {
				l.metrics.RecordChangeLag(time.Since(c.CreatedAt))
			}
			n := l.deliverer.Deliver(ctx, c)
			l.logger.Debug("変更を配信しました",
				slog.Int64("change_id", c.ID),
				slog.String("collection", c.Collection),
				slog.String("change_type", string(c.Type)),
				slog.Int("handler_count", n),
			)
		}(change)
	}

	wg.Wait()
}
