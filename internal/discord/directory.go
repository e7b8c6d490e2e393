package discord

import (
	"context"

	"github.com/bwmarrin/discordgo"
)

// NameResolver はサーバー・チャンネル・ロールの名前解決に使うREST操作。
type NameResolver interface {
	Guild(guildID string, options ...discordgo.RequestOption) (*discordgo.Guild, error)
	Channel(channelID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	GuildRoles(guildID string, options ...discordgo.RequestOption) ([]*discordgo.Role, error)
}

// Directory はIDを表示名に変換する。解決できない場合はIDをそのまま返す。
type Directory struct {
	api NameResolver
}

// NewDirectory はDirectoryを生成する。
func NewDirectory(api NameResolver) *Directory {
	return &Directory{api: api}
}

// ServerName はサーバー名を返す。
func (d *Directory) ServerName(ctx context.Context, guildID string) string {
	g, err := d.api.Guild(guildID, discordgo.WithContext(ctx))
	if err != nil || g.Name == "" {
		return guildID
	}
	return g.Name
}

// ChannelName はチャンネル名を返す。
func (d *Directory) ChannelName(ctx context.Context, channelID string) string {
	c, err := d.api.Channel(channelID, discordgo.WithContext(ctx))
	if err != nil || c.Name == "" {
		return channelID
	}
	return c.Name
}

// RoleName はロール名を返す。
func (d *Directory) RoleName(ctx context.Context, guildID, roleID string) string {
	roles, err := d.api.GuildRoles(guildID, discordgo.WithContext(ctx))
	if err != nil {
		return roleID
	}
	for _, r := range roles {
		if r.ID == roleID {
			return r.Name
		}
	}
	return roleID
}
