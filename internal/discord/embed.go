// Package discord はFeedのDiscord向け描画、チャンネルへの送信、
// ゲートウェイ接続（コマンド受付とプレゼンス更新）を提供する。
package discord

import (
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/hitoshi/myanimebot/internal/model"
)

// 埋め込みに使うアイコンのデフォルトURL。
const (
	DefaultBotIcon     = "http://myanimebot.pentou.eu/rsc/bot_avatar.jpg"
	DefaultMALIcon     = "https://cdn.myanimelist.net/img/sp/icon/apple-touch-icon-256.png"
	DefaultAniListIcon = "https://anilist.co/img/icons/android-chrome-512x512.png"
)

const footerText = "MyAnimeBot"

// Icons は埋め込みに表示するアイコンURL。
type Icons struct {
	Bot     string
	MAL     string
	AniList string
}

// DefaultIcons はデフォルトのアイコン一式を返す。
func DefaultIcons() Icons {
	return Icons{Bot: DefaultBotIcon, MAL: DefaultMALIcon, AniList: DefaultAniListIcon}
}

func (i Icons) service(svc model.Service) string {
	switch svc {
	case model.ServiceMAL:
		return i.MAL
	case model.ServiceAniList:
		return i.AniList
	default:
		return ""
	}
}

// BuildEmbed はFeedから通知用の埋め込みを生成する。
func BuildEmbed(feed *model.Feed, icons Icons) (*discordgo.MessageEmbed, error) {
	svcName := feed.Service.DisplayName()
	profileURL := feed.Service.ProfileURL(feed.SubscriberName())
	if profileURL == "" {
		return nil, fmt.Errorf("未知のサービスです: %s", feed.Service)
	}

	description := fmt.Sprintf("[%s](%s)\n```%s```", FilterName(feed.Media.Name), feed.Media.URL, feed.Summary())

	embed := &discordgo.MessageEmbed{
		URL:         feed.Media.URL,
		Description: description,
		Color:       feed.Status.Colour(),
		Timestamp:   feed.PublishedAt.UTC().Format(time.RFC3339),
		Author: &discordgo.MessageEmbedAuthor{
			Name:    fmt.Sprintf("%s's %s", feed.SubscriberName(), svcName),
			URL:     profileURL,
			IconURL: icons.service(feed.Service),
		},
		Footer: &discordgo.MessageEmbedFooter{
			Text:    footerText,
			IconURL: icons.Bot,
		},
	}
	if feed.Media.Thumbnail != "" {
		embed.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: feed.Media.Thumbnail}
	}
	return embed, nil
}

// nameEscaper はDiscordのMarkdownで崩れる記号の前にバックスラッシュを付ける。
var nameEscaper = strings.NewReplacer(
	"♥", `\♥`,
	"♀", `\♀`,
	"♂", `\♂`,
	"♪", `\♪`,
	"☆", `\☆`,
)

// FilterName は作品名の記号をエスケープする。
func FilterName(name string) string {
	return nameEscaper.Replace(name)
}

// showSuffixes はMyAnimeListの作品名末尾に付く種別表記。
var showSuffixes = []string{
	"- TV",
	"- Movie",
	"- Special",
	"- OVA",
	"- ONA",
	"- Manga",
	"- Manhua",
	"- Manhwa",
	"- Light Novel",
	"- Novel",
	"- One-Shot",
	"- Doujinshi",
	"- Music",
	"- OEL",
	"- Unknown",
}

// TruncateEndShow は作品名末尾の種別表記（"- TV" など）を取り除く。
func TruncateEndShow(title string) string {
	for _, suffix := range showSuffixes {
		if strings.HasSuffix(title, suffix) {
			title = strings.TrimSuffix(title, suffix)
			return strings.TrimSuffix(title, " ")
		}
	}
	return title
}
