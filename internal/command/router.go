// Package command はチャットコマンド（!mab ...）の解釈と実行を提供する。
// Discordへの依存はなく、送信者やサーバーの情報は Request として受け取る。
package command

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/hitoshi/myanimebot/internal/model"
	"github.com/hitoshi/myanimebot/internal/repository"
)

// DefaultPrefix はコマンドの接頭辞のデフォルト値。
const DefaultPrefix = "!mab"

// MaxUsernameLength は登録できるユーザー名の最大長。
const MaxUsernameLength = 32

// Role はメッセージ中でメンションされたロール。
type Role struct {
	ID   string
	Name string
}

// Request は1件のコマンドメッセージ。
type Request struct {
	ServerID    string
	ServerName  string
	ChannelID   string
	ChannelName string
	AuthorID    string
	// IsAdmin は送信者がサーバー管理者権限を持つ場合に true。
	IsAdmin     bool
	AuthorRoles []string
	// RoleMentions はメッセージ中でメンションされたロール。
	RoleMentions []Role
	// Args は接頭辞を除いた単語列。Args[0] がコマンド名。
	Args   []string
	SentAt time.Time
}

// Field は Card の1項目。
type Field struct {
	Name  string
	Value string
}

// Card は埋め込み形式の返信。
type Card struct {
	Title       string
	Description string
	Colour      int
	Thumbnail   string
	Fields      []Field
}

// Reply はコマンドへの返信。Text と Card のどちらか一方が設定される。
type Reply struct {
	Text string
	Card *Card
}

func textReply(text string) *Reply {
	return &Reply{Text: text}
}

// MALUserChecker はMyAnimeListのユーザー存在確認。
type MALUserChecker interface {
	UserExists(ctx context.Context, username string) (bool, error)
}

// AniListUserChecker はAniListのユーザー存在確認。存在する場合は数値IDも返す。
type AniListUserChecker interface {
	UserExists(ctx context.Context, username string) (bool, int64, error)
}

// Directory はチャットプラットフォーム上の名前解決を行う。
type Directory interface {
	ChannelName(ctx context.Context, channelID string) string
	RoleName(ctx context.Context, serverID, roleID string) string
}

// Limiter は送信者ごとのレート制限。
type Limiter interface {
	Allow(key string) bool
}

// Metrics はコマンド処理のメトリクス記録先。
type Metrics interface {
	RecordCommand(command string)
}

// Deps はRouterの依存関係。
type Deps struct {
	Servers     repository.ServerRepository
	Subscribers repository.SubscriberRepository
	Stats       repository.StatsRepository
	MAL         MALUserChecker
	AniList     AniListUserChecker
	Directory   Directory
	Limiter     Limiter
	Metrics     Metrics
	Logger      *slog.Logger
}

// Config はRouterの設定。
type Config struct {
	Prefix  string
	Version string
	BotIcon string
}

type handlerFunc func(ctx context.Context, req *Request) (*Reply, error)

// Router はコマンド名をハンドラーに振り分ける。
type Router struct {
	deps     Deps
	cfg      Config
	now      func() time.Time
	handlers map[string]handlerFunc
}

// NewRouter はRouterを生成する。
func NewRouter(deps Deps, cfg Config) *Router {
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultPrefix
	}
	r := &Router{deps: deps, cfg: cfg, now: time.Now}
	r.handlers = map[string]handlerFunc{
		"ping":   r.ping,
		"here":   r.here,
		"stop":   r.stop,
		"add":    r.addUser,
		"delete": r.deleteUser,
		"info":   r.info,
		"top":    r.top,
		"role":   r.role,
		"about":  r.about,
		"help":   r.help,
	}
	return r
}

// Prefix はコマンドの接頭辞を返す。
func (r *Router) Prefix() string {
	return r.cfg.Prefix
}

// Match はメッセージ本文が接頭辞で始まるコマンドなら、接頭辞を除いた単語列を返す。
func (r *Router) Match(content string) ([]string, bool) {
	words := strings.Fields(content)
	if len(words) == 0 || words[0] != r.cfg.Prefix {
		return nil, false
	}
	return words[1:], true
}

// Handle はコマンドを実行して返信を返す。返信が不要な場合は nil を返す。
func (r *Router) Handle(ctx context.Context, req *Request) *Reply {
	if len(req.Args) == 0 {
		return nil
	}
	name := strings.ToLower(req.Args[0])
	h, ok := r.handlers[name]
	if !ok {
		return nil
	}

	if r.deps.Limiter != nil && !r.deps.Limiter.Allow(req.AuthorID) {
		return textReply(model.NewRateLimitedError().Message)
	}
	r.deps.Metrics.RecordCommand(name)

	reply, err := h(ctx, req)
	if err != nil {
		var ce *model.CommandError
		if errors.As(err, &ce) {
			return textReply(ce.Message)
		}
		r.deps.Logger.Error("コマンドの実行に失敗しました",
			slog.String("command", name),
			slog.String("server_id", req.ServerID),
			slog.String("author_id", req.AuthorID),
			slog.String("error", err.Error()),
		)
		return textReply(model.NewInternalError().Message)
	}
	return reply
}

// checkAllowed はサーバー設定のロールに基づいてコマンドの利用可否を判定する。
// 管理者は常に許可され、ロール未設定のサーバーでは全員が許可される。
func (r *Router) checkAllowed(ctx context.Context, req *Request) error {
	if req.IsAdmin {
		return nil
	}
	server, err := r.deps.Servers.Find(ctx, req.ServerID)
	if err != nil {
		return err
	}
	if server == nil || server.AdminRoleID == "" {
		return nil
	}
	for _, roleID := range req.AuthorRoles {
		if roleID == server.AdminRoleID {
			return nil
		}
	}
	return model.NewPermissionDeniedError()
}
