// Package model はドメインモデルを定義する。
package model

import (
	"fmt"
	"time"
)

// Subscriber は上流サービス上で追跡しているユーザーを表す。
type Subscriber struct {
	ID      int64
	Service Service
	Name    string
	// ServiceUserID は上流サービス側の数値ID。RSS系サービスでは0。
	ServiceUserID int64
	// Servers は通知先となるサーバーIDの一覧。
	Servers   []string
	CreatedAt time.Time
}

// HasServer はサーバーが登録済みかどうかを返す。
func (s *Subscriber) HasServer(serverID string) bool {
	for _, id := range s.Servers {
		if id == serverID {
			return true
		}
	}
	return false
}

// Feed は正規化された1件のアクティビティ通知を表す。
type Feed struct {
	ID          string
	Service     Service
	Subscriber  *Subscriber
	Media       Media
	Status      Status
	Progress    string
	Description string // 上流から受け取った生の説明文
	PublishedAt time.Time
	FoundAt     time.Time
	Obsolete    bool
}

// StatusLabel はメディア種別に応じた状態ラベルを返す。
func (f *Feed) StatusLabel() string {
	return f.Status.Label(f.Media.Type)
}

// Summary は "Watching | 3 of 12 episodes" 形式の進捗行を返す。
func (f *Feed) Summary() string {
	return fmt.Sprintf("%s | %s of %s %s", f.StatusLabel(), f.Progress, f.Media.Episodes, f.Media.Type.CountUnit())
}

// SubscriberName は購読者名を返す。購読者が未設定の場合は空文字。
func (f *Feed) SubscriberName() string {
	if f.Subscriber == nil {
		return ""
	}
	return f.Subscriber.Name
}

// Server はコマンドで登録されたDiscordサーバーの設定を表す。
type Server struct {
	ID          string
	ChannelID   string
	AdminRoleID string // 空の場合は全員がコマンドを利用できる
	CreatedAt   time.Time
}

// TopEntry は統計の1行を表す。
type TopEntry struct {
	Name  string
	Count int
}

// Stats は全体統計を表す。
type Stats struct {
	Top        []TopEntry
	TotalFeeds int
	TotalMedia int
}
