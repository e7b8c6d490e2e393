// Package upstream は上流サービス（MyAnimeList / AniList）へのHTTPアクセスで共通の処理を提供する。
package upstream

import (
	"context"
	"errors"
	"log/slog"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/hitoshi/myanimebot/internal/model"
)

// BreakerObserver はサーキットブレーカーの状態変化を受け取る。
type BreakerObserver interface {
	SetBreakerState(name string, state float64)
}

// BreakerSettings はサーキットブレーカーの設定。
type BreakerSettings struct {
	// ConsecutiveFailures はOpenに遷移する連続失敗回数。
	ConsecutiveFailures uint32
	// OpenTimeout はOpenからHalf-Openに遷移するまでの待機時間。
	OpenTimeout time.Duration
	// Interval はClosed状態でカウントをリセットする周期。
	Interval time.Duration
}

// DefaultBreakerSettings はデフォルトのブレーカー設定を返す。
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		ConsecutiveFailures: 5,
		OpenTimeout:         2 * time.Minute,
		Interval:            5 * time.Minute,
	}
}

// NewBreaker は上流1つ分のサーキットブレーカーを生成する。
// 4xx（429を除く）は上流の障害ではないため失敗として数えない。
func NewBreaker(name string, settings BreakerSettings, observer BreakerObserver, logger *slog.Logger) *gobreaker.CircuitBreaker[[]byte] {
	if observer != nil {
		observer.SetBreakerState(name, stateValue(gobreaker.StateClosed))
	}

	return gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    settings.Interval,
		Timeout:     settings.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= settings.ConsecutiveFailures
		},
		IsSuccessful: countsAsSuccess,
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("サーキットブレーカーの状態が変化しました",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
			if observer != nil {
				observer.SetBreakerState(name, stateValue(to))
			}
		},
	})
}

func countsAsSuccess(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return true
	}
	var fe *model.FetchError
	if errors.As(err, &fe) && fe.Kind == model.FetchErrorHTTP {
		return fe.StatusCode >= 400 && fe.StatusCode < 500 && fe.StatusCode != 429
	}
	return false
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
