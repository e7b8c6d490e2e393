// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/myanimebot/internal/model"
)

// FeedRepository は通知済みFeedの永続化インターフェース。
type FeedRepository interface {
	// MaxPublishedAt はサービスの非obsoleteなFeedの最大公開日時を返す。無い場合はゼロ値。
	MaxPublishedAt(ctx context.Context, svc model.Service) (time.Time, error)

	// FindFeed は同一識別子の非obsoleteなFeedを検索する。見つからない場合はnilを返す。
	FindFeed(ctx context.Context, svc model.Service, subscriber, title string, status model.Status, publishedAt time.Time) (*model.Feed, error)

	// InsertSuperseding は同じ (service, subscriber, title) の有効なFeedをobsoleteにしてから
	// 同一トランザクションで挿入する。
	InsertSuperseding(ctx context.Context, feed *model.Feed) error

	// DeleteObsoleteBefore は cutoff より前に公開されたobsoleteなFeedを削除し、削除件数を返す。
	DeleteObsoleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// MediaRepository は作品参照とサムネイルキャッシュの永続化インターフェース。
type MediaRepository interface {
	// FindMedia はサービスとURLで作品を検索する。見つからない場合はnilを返す。
	FindMedia(ctx context.Context, svc model.Service, url string) (*model.Media, error)

	// CreateMedia は作品を登録する。既に存在する場合は何もしない。
	CreateMedia(ctx context.Context, media *model.Media) error

	// UpdateThumbnail はサムネイルURLを更新する。
	UpdateThumbnail(ctx context.Context, svc model.Service, url, thumbnail string) error

	// ListAfter はサービスの作品をURL順に afterURL より後から最大limit件返す。
	ListAfter(ctx context.Context, svc model.Service, afterURL string, limit int) ([]*model.Media, error)

	// RandomTitle は登録済み作品名を1つ無作為に返す。作品が無い場合は空文字。
	RandomTitle(ctx context.Context) (string, error)
}

// SubscriberRepository は購読者とサーバー紐付けの永続化インターフェース。
type SubscriberRepository interface {
	// ListByService はサービスの全購読者を紐付くサーバー付きで返す。
	ListByService(ctx context.Context, svc model.Service) ([]*model.Subscriber, error)

	// ListByServer はサーバーに紐付く購読者を返す。
	ListByServer(ctx context.Context, serverID string) ([]*model.Subscriber, error)

	// FindByName はユーザー名（大文字小文字を区別しない）で購読者を検索する。
	// 見つからない場合はnilを返す。
	FindByName(ctx context.Context, svc model.Service, name string) (*model.Subscriber, error)

	// Subscribe は購読者をサーバーに紐付ける。購読者が未登録なら作成する。
	// 既に紐付いていた場合は false を返す。
	Subscribe(ctx context.Context, sub *model.Subscriber, serverID string) (bool, error)

	// Unsubscribe はサーバーとの紐付けを解除し、紐付くサーバーが無くなった購読者を削除する。
	// 紐付いていなかった場合は false を返す。
	Unsubscribe(ctx context.Context, svc model.Service, name, serverID string) (bool, error)
}

// ServerRepository はDiscordサーバー設定の永続化インターフェース。
type ServerRepository interface {
	// Find は指定IDのサーバーを取得する。見つからない場合はnilを返す。
	Find(ctx context.Context, id string) (*model.Server, error)

	// Create はサーバーを登録する。
	Create(ctx context.Context, server *model.Server) error

	// UpdateChannel は通知先チャンネルを更新する。
	UpdateChannel(ctx context.Context, id, channelID string) error

	// SetAdminRole はコマンドを利用できるロールを設定する。空文字で全員に開放する。
	SetAdminRole(ctx context.Context, id, roleID string) error

	// Delete はサーバーを削除する。存在しなかった場合は false を返す。
	Delete(ctx context.Context, id string) (bool, error)

	// ChannelsForSubscriber は購読者が紐付く全サーバーの通知先チャンネルを返す。
	ChannelsForSubscriber(ctx context.Context, svc model.Service, username string) ([]string, error)
}

// StatsRepository は統計情報の取得インターフェース。
type StatsRepository interface {
	// Top は通知件数の多い購読者を最大limit件返す。
	Top(ctx context.Context, limit int) ([]model.TopEntry, error)

	// TopByKeyword はタイトルにkeywordを含む通知件数の多い購読者を最大limit件返す。
	TopByKeyword(ctx context.Context, keyword string, limit int) ([]model.TopEntry, error)

	// Totals は通知件数と作品数の合計を返す。
	Totals(ctx context.Context) (feeds int, media int, err error)
}
