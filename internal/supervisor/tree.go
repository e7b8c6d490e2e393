// Package supervisor はバックグラウンドサービスを監視・再起動するsupervisorツリーを提供する。
package supervisor

import (
	"context"
	"log/slog"
	"time"

	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"
)

// TreeConfig はsupervisorツリーの設定。
type TreeConfig struct {
	// FailureThreshold はバックオフに入るまでの失敗回数（デフォルト: 5）。
	FailureThreshold float64
	// FailureDecay は失敗回数が減衰する秒数（デフォルト: 30）。
	FailureDecay float64
	// FailureBackoff は閾値超過時の待機時間（デフォルト: 15秒）。
	FailureBackoff time.Duration
	// ShutdownTimeout はサービス停止の最大待ち時間（デフォルト: 10秒）。
	ShutdownTimeout time.Duration
}

// DefaultTreeConfig はデフォルトの設定を返す。
func DefaultTreeConfig() TreeConfig {
	return TreeConfig{
		FailureThreshold: 5.0,
		FailureDecay:     30.0,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  10 * time.Second,
	}
}

// Tree はプロセス全体のsupervisorツリー。
//
// ツリーは3つの層で構成される:
//   - workers: 購読ポーラー、サムネイル再検証、クリーンアップ
//   - gateway: Discordゲートウェイとプレゼンス
//   - api: ヘルスチェック・メトリクスのHTTPサーバー
type Tree struct {
	root    *suture.Supervisor
	workers *suture.Supervisor
	gateway *suture.Supervisor
	api     *suture.Supervisor
	config  TreeConfig
}

// NewTree はsupervisorツリーを生成する。ゼロ値の設定にはデフォルトを適用する。
func NewTree(logger *slog.Logger, config TreeConfig) *Tree {
	defaults := DefaultTreeConfig()
	if config.FailureThreshold == 0 {
		config.FailureThreshold = defaults.FailureThreshold
	}
	if config.FailureDecay == 0 {
		config.FailureDecay = defaults.FailureDecay
	}
	if config.FailureBackoff == 0 {
		config.FailureBackoff = defaults.FailureBackoff
	}
	if config.ShutdownTimeout == 0 {
		config.ShutdownTimeout = defaults.ShutdownTimeout
	}

	// MustHook はポインタレシーバ
	hook := (&sutureslog.Handler{Logger: logger}).MustHook()

	rootSpec := suture.Spec{
		EventHook:        hook,
		FailureThreshold: config.FailureThreshold,
		FailureDecay:     config.FailureDecay,
		FailureBackoff:   config.FailureBackoff,
		Timeout:          config.ShutdownTimeout,
	}
	// 子supervisorはルートに追加された時点でEventHookを引き継ぐ
	childSpec := suture.Spec{
		FailureThreshold: config.FailureThreshold,
		FailureDecay:     config.FailureDecay,
		FailureBackoff:   config.FailureBackoff,
		Timeout:          config.ShutdownTimeout,
	}

	root := suture.New("myanimebot", rootSpec)
	workers := suture.New("workers", childSpec)
	gateway := suture.New("gateway", childSpec)
	api := suture.New("api", childSpec)

	root.Add(workers)
	root.Add(gateway)
	root.Add(api)

	return &Tree{
		root:    root,
		workers: workers,
		gateway: gateway,
		api:     api,
		config:  config,
	}
}

// AddWorker はポーラーや定期ジョブを workers 層に追加する。
func (t *Tree) AddWorker(svc suture.Service) suture.ServiceToken {
	return t.workers.Add(svc)
}

// AddGateway はDiscordゲートウェイ関連のサービスを gateway 層に追加する。
func (t *Tree) AddGateway(svc suture.Service) suture.ServiceToken {
	return t.gateway.Add(svc)
}

// AddAPI はHTTPサーバーを api 層に追加する。
func (t *Tree) AddAPI(svc suture.Service) suture.ServiceToken {
	return t.api.Add(svc)
}

// Serve はコンテキストがキャンセルされるまでツリーを実行する。
func (t *Tree) Serve(ctx context.Context) error {
	return t.root.Serve(ctx)
}

// ServeBackground はツリーをバックグラウンドで実行し、終了時のエラーを返すチャネルを返す。
func (t *Tree) ServeBackground(ctx context.Context) <-chan error {
	return t.root.ServeBackground(ctx)
}

// UnstoppedServiceReport は停止タイムアウト内に終了しなかったサービスを返す。
func (t *Tree) UnstoppedServiceReport() ([]suture.UnstoppedService, error) {
	return t.root.UnstoppedServiceReport()
}
