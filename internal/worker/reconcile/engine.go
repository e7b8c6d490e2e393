// Package reconcile は上流サービスのアクティビティを取得し、未通知のものだけを
// 永続化して配信する照合処理を提供する。
package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/myanimebot/internal/model"
)

// Page は上流から取得した1ページ分のアイテム。
type Page[T any] struct {
	// Items は新しい順に並んでいなければならない。
	Items []T
	// HasMore は次のページが存在する場合に true。
	HasMore bool
	// NextStartsStream は次のページが独立した新しい順の列として始まる場合に true。
	// MyAnimeListのマンガ一覧とアニメ一覧のように、ページ同士で順序が連続しない場合に使う。
	NextStartsStream bool
}

// Fetcher は購読者ごとに上流のアクティビティをページ単位で取得する。
type Fetcher[T any] interface {
	Service() model.Service
	// FetchPage は page（1始まり）のアイテムを取得する。失敗時は *model.FetchError を返す。
	FetchPage(ctx context.Context, sub *model.Subscriber, page int) (*Page[T], error)
}

// Builder は上流のアイテムを正規化されたFeedに変換する。
type Builder[T any] interface {
	// Build は失敗時に *model.ParseError を返す。
	Build(item T, sub *model.Subscriber) (*model.Feed, error)
}

// FeedStore はFeedの永続化操作。
type FeedStore interface {
	// MaxPublishedAt はサービスの非obsoleteなFeedの最大公開日時を返す。無い場合はゼロ値。
	MaxPublishedAt(ctx context.Context, svc model.Service) (time.Time, error)
	// FindFeed は同一識別子の非obsoleteなFeedを返す。存在しない場合は nil, nil。
	FindFeed(ctx context.Context, svc model.Service, subscriber, title string, status model.Status, publishedAt time.Time) (*model.Feed, error)
	// InsertSuperseding は同じ (service, subscriber, title) の既存Feedをobsoleteにしてから挿入する。
	InsertSuperseding(ctx context.Context, feed *model.Feed) error
}

// MediaStore は作品参照とサムネイルのキャッシュ。
type MediaStore interface {
	FindMedia(ctx context.Context, svc model.Service, url string) (*model.Media, error)
	CreateMedia(ctx context.Context, media *model.Media) error
}

// SubscriberLister はサービスごとの購読者一覧を返す。
type SubscriberLister interface {
	ListByService(ctx context.Context, svc model.Service) ([]*model.Subscriber, error)
}

// ThumbnailResolver は作品ページからサムネイルURLを解決する。
type ThumbnailResolver interface {
	Resolve(ctx context.Context, svc model.Service, mediaURL string) (string, error)
}

// Publisher は永続化済みのFeedを配信する。配信失敗は Publisher 側で処理する。
type Publisher interface {
	Publish(ctx context.Context, feed *model.Feed)
}

// Pacer は上流へのリクエスト間隔を制御する。*rate.Limiter が満たす。
type Pacer interface {
	Wait(ctx context.Context) error
}

// Metrics は照合処理のメトリクス記録先。
type Metrics interface {
	RecordFetch(svc model.Service, result string, d time.Duration)
	RecordParseFailure(svc model.Service)
	RecordFeedsPublished(svc model.Service, count int)
	RecordCycle(svc model.Service, d time.Duration)
}

// Deps はEngineの依存関係。
type Deps[T any] struct {
	Fetcher     Fetcher[T]
	Builder     Builder[T]
	Feeds       FeedStore
	Media       MediaStore
	Subscribers SubscriberLister
	Thumbnails  ThumbnailResolver
	Publisher   Publisher
	Pacer       Pacer
	Metrics     Metrics
	Logger      *slog.Logger
}

// Config はEngineの動作設定。
type Config struct {
	// FreshnessWindow より古いアイテムは通知しない。
	FreshnessWindow time.Duration
	// Clock は現在時刻の取得元。nil の場合は time.Now。
	Clock func() time.Time
}

// DefaultFreshnessWindow は通知対象とする最大経過時間のデフォルト値。
const DefaultFreshnessWindow = 7200 * time.Second

// CycleResult は1サイクルの処理結果。
type CycleResult struct {
	Subscribers int
	Failed      int
	Published   int
}

// Engine は1つの上流サービスの照合処理を行う。
// 同一サービスに対して同時に複数のサイクルを実行してはならない。
type Engine[T any] struct {
	deps   Deps[T]
	window time.Duration
	now    func() time.Time
}

// NewEngine はEngineを生成する。FreshnessWindow が0以下の場合はデフォルト値を使用する。
func NewEngine[T any](deps Deps[T], cfg Config) *Engine[T] {
	if cfg.FreshnessWindow <= 0 {
		cfg.FreshnessWindow = DefaultFreshnessWindow
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Engine[T]{
		deps:   deps,
		window: cfg.FreshnessWindow,
		now:    cfg.Clock,
	}
}

// Service は対象サービスを返す。
func (e *Engine[T]) Service() model.Service {
	return e.deps.Fetcher.Service()
}

// RunCycle は全購読者に対して1回照合を行う。
//
// ウォーターマークはサイクル開始時に1回だけ読む。取得・解析エラーはその購読者の
// 処理だけを中断し、永続化エラーはサイクル全体を中断して返す。
func (e *Engine[T]) RunCycle(ctx context.Context) (CycleResult, error) {
	start := time.Now()
	svc := e.deps.Fetcher.Service()
	var res CycleResult
	defer func() {
		e.deps.Metrics.RecordFeedsPublished(svc, res.Published)
		e.deps.Metrics.RecordCycle(svc, time.Since(start))
	}()

	watermark, err := e.deps.Feeds.MaxPublishedAt(ctx, svc)
	if err != nil {
		return res, &model.PersistenceError{Op: "max_published_at", Err: err}
	}

	subs, err := e.deps.Subscribers.ListByService(ctx, svc)
	if err != nil {
		return res, &model.PersistenceError{Op: "list_subscribers", Err: err}
	}

	for _, sub := range subs {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Subscribers++

		n, err := e.reconcileSubscriber(ctx, sub, watermark)
		res.Published += n
		if err == nil {
			continue
		}

		var pe *model.PersistenceError
		if errors.As(err, &pe) {
			return res, err
		}
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		res.Failed++
		e.logSubscriberFailure(sub, err)
	}

	return res, nil
}

// reconcileSubscriber は1購読者のページを新しい順に辿り、未通知のFeedを永続化・配信する。
func (e *Engine[T]) reconcileSubscriber(ctx context.Context, sub *model.Subscriber, watermark time.Time) (int, error) {
	svc := e.deps.Fetcher.Service()
	published := 0

	for page := 1; ; page++ {
		if err := ctx.Err(); err != nil {
			return published, err
		}
		if err := e.deps.Pacer.Wait(ctx); err != nil {
			return published, err
		}

		fetchStart := time.Now()
		p, err := e.deps.Fetcher.FetchPage(ctx, sub, page)
		if err != nil {
			e.deps.Metrics.RecordFetch(svc, "failure", time.Since(fetchStart))
			return published, err
		}
		e.deps.Metrics.RecordFetch(svc, "success", time.Since(fetchStart))

		caughtUp := false
		for _, item := range p.Items {
			feed, err := e.deps.Builder.Build(item, sub)
			if err != nil {
				e.deps.Metrics.RecordParseFailure(svc)
				return published, err
			}

			if e.isCaughtUp(feed, watermark) {
				caughtUp = true
				break
			}

			stored, err := e.persist(ctx, sub, feed)
			if err != nil {
				return published, err
			}
			if !stored {
				continue
			}

			e.deps.Publisher.Publish(ctx, feed)
			published++
		}

		if !p.HasMore {
			return published, nil
		}
		if caughtUp && !p.NextStartsStream {
			return published, nil
		}
	}
}

// isCaughtUp はウォーターマーク以前、または通知期限を過ぎたアイテムかどうかを返す。
func (e *Engine[T]) isCaughtUp(feed *model.Feed, watermark time.Time) bool {
	if !feed.PublishedAt.After(watermark) {
		return true
	}
	return e.now().Sub(feed.PublishedAt) > e.window
}

// persist は重複を確認してからFeedを保存する。重複の場合は false を返す。
func (e *Engine[T]) persist(ctx context.Context, sub *model.Subscriber, feed *model.Feed) (bool, error) {
	dup, err := e.deps.Feeds.FindFeed(ctx, feed.Service, sub.Name, feed.Media.Name, feed.Status, feed.PublishedAt)
	if err != nil {
		return false, &model.PersistenceError{Op: "find_feed", Err: err}
	}
	if dup != nil {
		e.deps.Logger.Debug("通知済みのアクティビティをスキップしました",
			slog.String("service", string(feed.Service)),
			slog.String("subscriber", sub.Name),
			slog.String("title", feed.Media.Name),
		)
		return false, nil
	}

	if err := e.attachMedia(ctx, sub, feed); err != nil {
		return false, err
	}

	feed.ID = uuid.New().String()
	feed.FoundAt = e.now()
	if err := e.deps.Feeds.InsertSuperseding(ctx, feed); err != nil {
		return false, &model.PersistenceError{Op: "insert_feed", Err: err}
	}
	return true, nil
}

// attachMedia は作品参照をキャッシュから補完し、初見の場合はサムネイルを解決して保存する。
func (e *Engine[T]) attachMedia(ctx context.Context, sub *model.Subscriber, feed *model.Feed) error {
	cached, err := e.deps.Media.FindMedia(ctx, feed.Service, feed.Media.URL)
	if err != nil {
		return &model.PersistenceError{Op: "find_media", Err: err}
	}
	if cached != nil {
		if feed.Media.Thumbnail == "" {
			feed.Media.Thumbnail = cached.Thumbnail
		}
		return nil
	}

	if feed.Media.Thumbnail == "" {
		thumb, err := e.deps.Thumbnails.Resolve(ctx, feed.Service, feed.Media.URL)
		if err != nil {
			e.deps.Logger.Warn("サムネイルの取得に失敗しました",
				slog.String("service", string(feed.Service)),
				slog.String("url", feed.Media.URL),
				slog.String("error", err.Error()),
			)
		} else {
			feed.Media.Thumbnail = thumb
		}
	}

	media := feed.Media
	media.Service = feed.Service
	media.Discoverer = sub.Name
	media.FoundAt = e.now()
	if err := e.deps.Media.CreateMedia(ctx, &media); err != nil {
		return &model.PersistenceError{Op: "create_media", Err: err}
	}
	return nil
}

func (e *Engine[T]) logSubscriberFailure(sub *model.Subscriber, err error) {
	attrs := []any{
		slog.String("service", string(sub.Service)),
		slog.String("subscriber", sub.Name),
		slog.String("error", err.Error()),
	}

	var fe *model.FetchError
	var pe *model.ParseError
	switch {
	case errors.As(err, &fe):
		attrs = append(attrs, slog.String("kind", fe.Kind.String()))
		if fe.Kind == model.FetchErrorHTTP {
			attrs = append(attrs, slog.Int("status_code", fe.StatusCode))
		}
		e.deps.Logger.Warn("アクティビティの取得に失敗しました", attrs...)
	case errors.As(err, &pe):
		attrs = append(attrs, slog.String("raw", snippet(pe.Raw)))
		e.deps.Logger.Warn("アクティビティの解析に失敗しました", attrs...)
	default:
		e.deps.Logger.Warn("購読者の照合に失敗しました", attrs...)
	}
}

// snippet はログに載せる生データを短く切り詰める。
func snippet(s string) string {
	const limit = 200
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit]) + "..."
}
