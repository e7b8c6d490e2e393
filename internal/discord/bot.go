package discord

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/hitoshi/myanimebot/internal/command"
)

// commandTimeout は1件のコマンド処理に許す最大時間。
const commandTimeout = 30 * time.Second

// API はBotが利用するDiscordのREST操作。*discordgo.Session が満たす。
type API interface {
	ChannelSender
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	UserChannelPermissions(userID, channelID string, fetchOptions ...discordgo.RequestOption) (int64, error)
	Guild(guildID string, options ...discordgo.RequestOption) (*discordgo.Guild, error)
	Channel(channelID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	GuildRoles(guildID string, options ...discordgo.RequestOption) ([]*discordgo.Role, error)
}

// CommandHandler はチャットコマンドを解釈して実行する。*command.Router が満たす。
type CommandHandler interface {
	Match(content string) ([]string, bool)
	Handle(ctx context.Context, req *command.Request) *command.Reply
}

// NewSession はBotトークンでセッションを生成する。ゲートウェイにはまだ接続しない。
func NewSession(token string) (*discordgo.Session, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("Discordセッションの生成に失敗しました: %w", err)
	}
	s.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMessages | discordgo.IntentMessageContent
	return s, nil
}

// Bot はゲートウェイに接続してコマンドメッセージを処理する。
type Bot struct {
	session  *discordgo.Session
	api      API
	commands CommandHandler
	logger   *slog.Logger

	mu     sync.RWMutex
	selfID string
	ctx    context.Context
}

// NewBot はBotを生成し、ゲートウェイのイベントハンドラーを登録する。
func NewBot(session *discordgo.Session, commands CommandHandler, logger *slog.Logger) *Bot {
	b := newBot(session, commands, logger)
	b.session = session
	session.AddHandler(b.onReady)
	session.AddHandler(b.onMessageCreate)
	return b
}

func newBot(api API, commands CommandHandler, logger *slog.Logger) *Bot {
	return &Bot{
		api:      api,
		commands: commands,
		logger:   logger,
		ctx:      context.Background(),
	}
}

// String はsupervisorのログに使われるサービス名を返す。
func (b *Bot) String() string {
	return "discord-gateway"
}

// Serve はゲートウェイに接続し、コンテキストがキャンセルされるまで待機する。
func (b *Bot) Serve(ctx context.Context) error {
	b.mu.Lock()
	b.ctx = ctx
	b.mu.Unlock()

	if err := b.session.Open(); err != nil {
		return fmt.Errorf("ゲートウェイへの接続に失敗しました: %w", err)
	}
	b.logger.Info("ゲートウェイに接続しました")

	<-ctx.Done()

	if err := b.session.Close(); err != nil {
		b.logger.Warn("ゲートウェイの切断に失敗しました", slog.String("error", err.Error()))
	}
	b.logger.Info("ゲートウェイから切断しました")
	return ctx.Err()
}

func (b *Bot) onReady(s *discordgo.Session, r *discordgo.Ready) {
	b.mu.Lock()
	b.selfID = r.User.ID
	b.mu.Unlock()

	b.logger.Info("ログインしました",
		slog.String("user", r.User.Username),
		slog.String("user_id", r.User.ID),
		slog.Int("guilds", len(r.Guilds)),
	)
}

func (b *Bot) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	b.mu.RLock()
	base := b.ctx
	b.mu.RUnlock()

	ctx, cancel := context.WithTimeout(base, commandTimeout)
	defer cancel()
	b.handleMessage(ctx, m.Message)
}

func (b *Bot) currentUserID() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.selfID
}

// handleMessage は1件のメッセージを処理する。
// 接頭辞付きのメッセージはコマンドとして実行し、Botへのメンションには :heart: を返す。
func (b *Bot) handleMessage(ctx context.Context, m *discordgo.Message) {
	if m.Author == nil || m.Author.Bot || m.Author.ID == b.currentUserID() {
		return
	}

	args, ok := b.commands.Match(m.Content)
	if !ok {
		if b.mentionsSelf(m) {
			b.sendText(ctx, m.ChannelID, ":heart:")
		}
		return
	}
	// DMではサーバー単位の設定が無いため無視する
	if m.GuildID == "" {
		return
	}

	reply := b.commands.Handle(ctx, b.buildRequest(ctx, m, args))
	if reply == nil {
		return
	}
	if reply.Card != nil {
		b.sendEmbed(ctx, m.ChannelID, cardToEmbed(reply.Card))
		return
	}
	b.sendText(ctx, m.ChannelID, reply.Text)
}

func (b *Bot) mentionsSelf(m *discordgo.Message) bool {
	self := b.currentUserID()
	if self == "" {
		return false
	}
	for _, u := range m.Mentions {
		if u.ID == self {
			return true
		}
	}
	return false
}

// buildRequest はメッセージとサーバー情報からコマンドリクエストを組み立てる。
func (b *Bot) buildRequest(ctx context.Context, m *discordgo.Message, args []string) *command.Request {
	dir := NewDirectory(b.api)
	req := &command.Request{
		ServerID:    m.GuildID,
		ServerName:  dir.ServerName(ctx, m.GuildID),
		ChannelID:   m.ChannelID,
		ChannelName: dir.ChannelName(ctx, m.ChannelID),
		AuthorID:    m.Author.ID,
		IsAdmin:     b.isAdmin(ctx, m),
		Args:        args,
		SentAt:      m.Timestamp,
	}
	if m.Member != nil {
		req.AuthorRoles = m.Member.Roles
	}
	for _, roleID := range m.MentionRoles {
		req.RoleMentions = append(req.RoleMentions, command.Role{
			ID:   roleID,
			Name: dir.RoleName(ctx, m.GuildID, roleID),
		})
	}
	return req
}

func (b *Bot) isAdmin(ctx context.Context, m *discordgo.Message) bool {
	perms, err := b.api.UserChannelPermissions(m.Author.ID, m.ChannelID, discordgo.WithContext(ctx))
	if err != nil {
		b.logger.Warn("権限の取得に失敗しました",
			slog.String("author_id", m.Author.ID),
			slog.String("channel_id", m.ChannelID),
			slog.String("error", err.Error()),
		)
		return false
	}
	return perms&discordgo.PermissionAdministrator != 0
}

func (b *Bot) sendText(ctx context.Context, channelID, text string) {
	if _, err := b.api.ChannelMessageSend(channelID, text, discordgo.WithContext(ctx)); err != nil {
		b.logger.Warn("返信の送信に失敗しました",
			slog.String("channel_id", channelID),
			slog.String("error", err.Error()),
		)
	}
}

func (b *Bot) sendEmbed(ctx context.Context, channelID string, embed *discordgo.MessageEmbed) {
	if _, err := b.api.ChannelMessageSendEmbed(channelID, embed, discordgo.WithContext(ctx)); err != nil {
		b.logger.Warn("返信の送信に失敗しました",
			slog.String("channel_id", channelID),
			slog.String("error", err.Error()),
		)
	}
}

func cardToEmbed(c *command.Card) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title:       c.Title,
		Description: c.Description,
		Color:       c.Colour,
	}
	if c.Thumbnail != "" {
		embed.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: c.Thumbnail}
	}
	for _, f := range c.Fields {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{Name: f.Name, Value: f.Value, Inline: true})
	}
	return embed
}
