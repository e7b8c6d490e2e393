// Package cleanup はobsoleteになった通知の自動削除ジョブを提供する。
// 保持期間（デフォルト365日）より前に公開されたobsoleteなFeedを
// 日次バッチで削除する。有効なFeedは削除しないためウォーターマークには影響しない。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// DefaultRetentionDays はobsoleteなFeedの保持日数のデフォルト値。
const DefaultRetentionDays = 365

// runInterval はジョブの実行間隔。
const runInterval = 24 * time.Hour

// FeedDeleter はobsoleteなFeedの削除を抽象化するインターフェース。
type FeedDeleter interface {
	DeleteObsoleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// CleanupJob は保持期間を超過したobsoleteなFeedの自動削除ジョブ。
// 日次実行のバッチジョブとして設計されており、冪等な削除処理を保証する。
type CleanupJob struct {
	feeds         FeedDeleter
	logger        *slog.Logger
	RetentionDays int // Feedの保持日数（デフォルト: 365）
	now           func() time.Time
}

// NewCleanupJob は新しいCleanupJobを生成する。
// retentionDays が0以下の場合はデフォルトの365日を使う。
func NewCleanupJob(feeds FeedDeleter, retentionDays int, logger *slog.Logger) *CleanupJob {
	if retentionDays <= 0 {
		retentionDays = DefaultRetentionDays
	}
	return &CleanupJob{
		feeds:         feeds,
		logger:        logger,
		RetentionDays: retentionDays,
		now:           time.Now,
	}
}

// String はsupervisorのログに使われるサービス名を返す。
func (j *CleanupJob) String() string {
	return "feed-cleanup"
}

// Serve は起動直後に1回、以後24時間ごとに Run を実行する。
func (j *CleanupJob) Serve(ctx context.Context) error {
	ticker := time.NewTicker(runInterval)
	defer ticker.Stop()

	j.runAndLog(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			j.runAndLog(ctx)
		}
	}
}

func (j *CleanupJob) runAndLog(ctx context.Context) {
	// Run 内でログ済み
	_ = j.Run(ctx)
}

// Run はRetentionDays日より前に公開されたobsoleteなFeedを削除する。
// 冪等: 削除対象がない場合でもエラーにならない。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()
	cutoff := j.now().AddDate(0, 0, -j.RetentionDays)

	deletedCount, err := j.feeds.DeleteObsoleteBefore(ctx, cutoff)
	if err != nil {
		j.logger.Error("通知クリーンアップジョブの実行に失敗しました",
			slog.String("error", err.Error()),
			slog.Int("retention_days", j.RetentionDays),
		)
		return fmt.Errorf("通知クリーンアップの実行に失敗: %w", err)
	}

	duration := time.Since(start)
	j.logger.Info("通知クリーンアップジョブが完了しました",
		slog.Int64("deleted_count", deletedCount),
		slog.Int("retention_days", j.RetentionDays),
		slog.Time("cutoff", cutoff),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}
