// Package refresh は作品サムネイルの定期再検証ジョブを提供する。
// 登録済みのMyAnimeList作品のサムネイルが空または取得不能になっていれば
// 作品ページから再取得してキャッシュを更新する。1回の実行で確認するのは
// MaxPerCycle 件までで、続きは次回の実行でURL順のカーソルから再開する。
package refresh

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/myanimebot/internal/model"
)

// MediaStore は再検証対象の作品の取得と更新を行う。
type MediaStore interface {
	ListAfter(ctx context.Context, svc model.Service, afterURL string, limit int) ([]*model.Media, error)
	UpdateThumbnail(ctx context.Context, svc model.Service, url, thumbnail string) error
}

// ThumbnailSource はサムネイルの疎通確認と再取得を行う。
// テスト時にモックに差し替え可能。
type ThumbnailSource interface {
	Check(ctx context.Context, thumbnailURL string) bool
	Resolve(ctx context.Context, svc model.Service, mediaURL string) (string, error)
}

// Config は再検証ジョブの設定パラメータ。
type Config struct {
	// Interval はジョブの実行間隔（デフォルト: 12時間）。
	Interval time.Duration
	// CheckInterval は作品1件ごとの確認間隔（デフォルト: 3秒）。
	CheckInterval time.Duration
	// MaxPerCycle は1サイクルあたりの最大確認件数（デフォルト: 500）。
	// 超過分は次のサイクルで続きから確認する。
	MaxPerCycle int
}

// DefaultConfig はデフォルトの設定を返す。
func DefaultConfig() Config {
	return Config{
		Interval:      12 * time.Hour,
		CheckInterval: 3 * time.Second,
		MaxPerCycle:   500,
	}
}

// Result は1サイクルの実行結果。
type Result struct {
	Checked int
	Updated int
	Failed  int
}

// Job はサムネイルの再検証ジョブ。
type Job struct {
	media  MediaStore
	source ThumbnailSource
	logger *slog.Logger
	config Config

	// cursor は前回のサイクルで最後に確認した作品のURL。空なら先頭から。
	cursor string
}

// NewJob はJobの新しいインスタンスを生成する。
func NewJob(media MediaStore, source ThumbnailSource, logger *slog.Logger, config Config) *Job {
	defaults := DefaultConfig()
	if config.Interval <= 0 {
		config.Interval = defaults.Interval
	}
	if config.CheckInterval < 0 {
		config.CheckInterval = 0
	}
	if config.MaxPerCycle <= 0 {
		config.MaxPerCycle = defaults.MaxPerCycle
	}
	return &Job{
		media:  media,
		source: source,
		logger: logger,
		config: config,
	}
}

// String はsupervisorのログに使われるサービス名を返す。
func (j *Job) String() string {
	return "thumbnail-refresh"
}

// Serve は Interval ごとに RunOnce を実行する。
// 起動直後は実行せず、最初の実行は Interval 経過後となる。
func (j *Job) Serve(ctx context.Context) error {
	ticker := time.NewTicker(j.config.Interval)
	defer ticker.Stop()

	j.logger.Info("サムネイル再検証ジョブを開始しました",
		slog.Duration("interval", j.config.Interval),
		slog.Duration("check_interval", j.config.CheckInterval),
		slog.Int("max_per_cycle", j.config.MaxPerCycle),
	)

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("サムネイル再検証ジョブを停止しました")
			return ctx.Err()
		case <-ticker.C:
			if _, err := j.RunOnce(ctx); err != nil && ctx.Err() == nil {
				j.logger.Error("サムネイル再検証サイクルの実行に失敗しました",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// RunOnce は1回の再検証サイクルを実行する。
// 個々の作品の再取得失敗はログに記録して次の作品へ進む。
func (j *Job) RunOnce(ctx context.Context) (Result, error) {
	start := time.Now()
	var result Result

	items, err := j.media.ListAfter(ctx, model.ServiceMAL, j.cursor, j.config.MaxPerCycle)
	if err != nil {
		return result, fmt.Errorf("再検証対象の作品の取得に失敗しました: %w", err)
	}
	if len(items) < j.config.MaxPerCycle {
		// 末尾まで到達したので次回は先頭から
		j.cursor = ""
	} else {
		j.cursor = items[len(items)-1].URL
	}
	if len(items) == 0 {
		j.logger.Info("再検証対象の作品はありません")
		return result, nil
	}

	j.logger.Info("サムネイル再検証サイクルを開始します",
		slog.Int("target_media", len(items)),
		slog.String("from_url", items[0].URL),
	)

	for i, media := range items {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		// 確認間隔（初回は待たない）
		if i > 0 && j.config.CheckInterval > 0 {
			select {
			case <-ctx.Done():
				return result, ctx.Err()
			case <-time.After(j.config.CheckInterval):
			}
		}

		result.Checked++
		if media.Thumbnail != "" && j.source.Check(ctx, media.Thumbnail) {
			continue
		}

		thumbnail, err := j.source.Resolve(ctx, media.Service, media.URL)
		if err != nil {
			result.Failed++
			j.logger.Warn("サムネイルの再取得に失敗しました",
				slog.String("title", media.Name),
				slog.String("url", media.URL),
				slog.String("error", err.Error()),
			)
			continue
		}
		if thumbnail == media.Thumbnail {
			continue
		}
		if err := j.media.UpdateThumbnail(ctx, media.Service, media.URL, thumbnail); err != nil {
			result.Failed++
			j.logger.Error("サムネイルの更新に失敗しました",
				slog.String("url", media.URL),
				slog.String("error", err.Error()),
			)
			continue
		}
		result.Updated++
		j.logger.Info("サムネイルを更新しました",
			slog.String("title", media.Name),
			slog.String("thumbnail", thumbnail),
		)
	}

	j.logger.Info("サムネイル再検証サイクルが完了しました",
		slog.Int("checked", result.Checked),
		slog.Int("updated", result.Updated),
		slog.Int("failed", result.Failed),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return result, nil
}
