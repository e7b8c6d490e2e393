package discord

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/hitoshi/myanimebot/internal/model"
)

// ChannelSender はDiscordのチャンネルへ埋め込みを送信する。*discordgo.Session が満たす。
type ChannelSender interface {
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Deliverer はFeedを埋め込みに描画してチャンネルへ送信する。
type Deliverer struct {
	sender ChannelSender
	icons  Icons
}

// NewDeliverer はDelivererを生成する。
func NewDeliverer(sender ChannelSender, icons Icons) *Deliverer {
	return &Deliverer{sender: sender, icons: icons}
}

// Deliver はFeedを1チャンネルへ送信する。
func (d *Deliverer) Deliver(ctx context.Context, channelID string, feed *model.Feed) error {
	embed, err := BuildEmbed(feed, d.icons)
	if err != nil {
		return fmt.Errorf("埋め込みの生成に失敗しました: %w", err)
	}
	if _, err := d.sender.ChannelMessageSendEmbed(channelID, embed, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("チャンネル %s への送信に失敗しました: %w", channelID, err)
	}
	return nil
}
