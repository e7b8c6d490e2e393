package reconcile

import (
	"context"
	"log/slog"
	"time"
)

// Cycler は照合サイクルを1回実行する。
type Cycler interface {
	RunCycle(ctx context.Context) (CycleResult, error)
}

// Poller は一定間隔で照合サイクルを実行する。
// 1つのサービスにつき1つだけ起動し、サイクルが重ならないことを保証する。
// supervisor のサービスとして Serve / String を実装する。
type Poller struct {
	name     string
	cycler   Cycler
	interval time.Duration
	logger   *slog.Logger

	consecutiveFailures int
	backoffUntil        time.Time
	now                 func() time.Time
}

// NewPoller はPollerを生成する。
func NewPoller(name string, cycler Cycler, interval time.Duration, logger *slog.Logger) *Poller {
	return &Poller{
		name:     name,
		cycler:   cycler,
		interval: interval,
		logger:   logger,
		now:      time.Now,
	}
}

// String はsupervisorのログに使われるサービス名を返す。
func (p *Poller) String() string {
	return p.name
}

// Serve は起動直後に1回、その後 interval ごとにサイクルを実行する。
// コンテキストがキャンセルされるまで戻らない。
func (p *Poller) Serve(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.logger.Info("照合ポーラーを開始しました",
		slog.String("poller", p.name),
		slog.Duration("interval", p.interval),
	)

	p.runAndLog(ctx)

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("照合ポーラーを停止しました", slog.String("poller", p.name))
			return ctx.Err()
		case <-ticker.C:
			p.runAndLog(ctx)
		}
	}
}

func (p *Poller) runAndLog(ctx context.Context) {
	if err := p.RunOnce(ctx); err != nil {
		p.logger.Error("照合サイクルの実行に失敗しました",
			slog.String("poller", p.name),
			slog.Int("consecutive_failures", p.consecutiveFailures),
			slog.Time("backoff_until", p.backoffUntil),
			slog.String("error", err.Error()),
		)
	}
}

// RunOnce は照合サイクルを1回実行する。
// 直前のサイクルが失敗してバックオフ中の場合は何もしない。
func (p *Poller) RunOnce(ctx context.Context) error {
	now := p.now()
	if now.Before(p.backoffUntil) {
		p.logger.Debug("バックオフ中のため照合サイクルをスキップしました",
			slog.String("poller", p.name),
			slog.Time("backoff_until", p.backoffUntil),
		)
		return nil
	}

	start := time.Now()
	res, err := p.cycler.RunCycle(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		p.consecutiveFailures++
		p.backoffUntil = now.Add(CalculateBackoff(p.interval, p.consecutiveFailures))
		return err
	}

	p.consecutiveFailures = 0
	p.backoffUntil = time.Time{}

	p.logger.Info("照合サイクルが完了しました",
		slog.String("poller", p.name),
		slog.Int("subscribers", res.Subscribers),
		slog.Int("published", res.Published),
		slog.Int("failed", res.Failed),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return nil
}
