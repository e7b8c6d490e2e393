package discord

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// TitleSource は登録済み作品名を無作為に1つ返す。
type TitleSource interface {
	RandomTitle(ctx context.Context) (string, error)
}

// StatusUpdater はBotのプレゼンスを "Watching <name>" に更新する。*discordgo.Session が満たす。
type StatusUpdater interface {
	UpdateWatchStatus(idle int, name string) error
}

// Presence は一定間隔でBotのプレゼンスを無作為な作品名に切り替える。
type Presence struct {
	titles   TitleSource
	status   StatusUpdater
	interval time.Duration
	logger   *slog.Logger
}

// NewPresence はPresenceを生成する。
func NewPresence(titles TitleSource, status StatusUpdater, interval time.Duration, logger *slog.Logger) *Presence {
	return &Presence{
		titles:   titles,
		status:   status,
		interval: interval,
		logger:   logger,
	}
}

// String はsupervisorのログに使われるサービス名を返す。
func (p *Presence) String() string {
	return "presence"
}

// Serve は interval ごとにプレゼンスを更新する。初回はゲートウェイ接続を待つため1間隔後。
func (p *Presence) Serve(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := p.RunOnce(ctx); err != nil {
				p.logger.Warn("プレゼンスの更新に失敗しました", slog.String("error", err.Error()))
			}
		}
	}
}

// RunOnce はプレゼンスを1回更新する。作品が未登録の場合は何もしない。
func (p *Presence) RunOnce(ctx context.Context) error {
	title, err := p.titles.RandomTitle(ctx)
	if err != nil {
		return fmt.Errorf("作品名の取得に失敗しました: %w", err)
	}
	if title == "" {
		return nil
	}
	if err := p.status.UpdateWatchStatus(0, TruncateEndShow(title)); err != nil {
		return fmt.Errorf("プレゼンスの送信に失敗しました: %w", err)
	}
	return nil
}
