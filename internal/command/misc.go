package command

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// 統計の表示件数。
const (
	topLimit        = 10
	keywordTopLimit = 20
)

const cardColour = 0xEED000

func (r *Router) ping(ctx context.Context, req *Request) (*Reply, error) {
	delta := r.now().Sub(req.SentAt).Milliseconds()
	return textReply(fmt.Sprintf("pong (%dms)", delta)), nil
}

// top は購読者ごとの通知件数の統計を表示する。
// キーワードを指定した場合はタイトルにそのキーワードを含む通知だけを数える。
func (r *Router) top(ctx context.Context, req *Request) (*Reply, error) {
	if len(req.Args) > 1 {
		return r.topByKeyword(ctx, strings.Join(req.Args[1:], " "))
	}

	entries, err := r.deps.Stats.Top(ctx, topLimit)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return textReply("It seems that there is no statistics... (what happened?!)"), nil
	}
	feeds, media, err := r.deps.Stats.Totals(ctx)
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	b.WriteString("**__Here is the global statistics of this bot:__**\n\n")
	for _, e := range entries {
		fmt.Fprintf(&b, " - %s: %d\n", e.Name, e.Count)
	}
	fmt.Fprintf(&b, "\n***Total user entry***: %d", feeds)
	fmt.Fprintf(&b, "\n***Total unique manga/anime***: %d", media)
	return textReply(b.String()), nil
}

func (r *Router) topByKeyword(ctx context.Context, keyword string) (*Reply, error) {
	r.deps.Logger.Info("キーワード別の統計を表示します", slog.String("keyword", keyword))

	entries, err := r.deps.Stats.TopByKeyword(ctx, keyword, keywordTopLimit)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return textReply(fmt.Sprintf("It seems that there is no statistics for the keyword **%s**.", keyword)), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "**__Here is the statistics for the keyword %s:__**\n\n", keyword)
	for _, e := range entries {
		fmt.Fprintf(&b, " - %s: %d\n", e.Name, e.Count)
	}
	return textReply(b.String()), nil
}

func (r *Router) about(ctx context.Context, req *Request) (*Reply, error) {
	return &Reply{Card: &Card{
		Title:  fmt.Sprintf("MyAnimeBot version %s by Penta & lulu", r.cfg.Version),
		Colour: cardColour,
		Description: "MyAnimeBot checks MyAnimeList and Anilist profiles for specified users, and send a message for every new activities found.\n" +
			fmt.Sprintf("More help with the **%s help** command.\n\n", r.cfg.Prefix) +
			"Check our GitHub page for more informations: https://github.com/Penta/MyAnimeBot",
		Thumbnail: r.cfg.BotIcon,
	}}, nil
}

// helpFields はhelpコマンドで表示するコマンド一覧。
var helpFields = []Field{
	{"`here`", "Register this channel. The bot will send new activities on registered channels."},
	{"`stop`", "Un-register this channel. The bot will now stop sending new activities for this channel."},
	{"`info [mal|ani]`", "Get the registered users for this server. Users can be filtered by specifying a service."},
	{"`add {mal|ani} <user>`", "Register a user for a specific service.\nEx: `add mal MyUser`"},
	{"`delete {mal|ani} <user>`", "Remove a user for a specific service.\nEx: `delete ani MyUser`"},
	{"`role <@discord_role>`", "Specify a role that is able to manage the bot.\nEx: `role @Moderator`, `role @everyone`"},
	{"`top [keyword]`", "Show statistics for this server."},
	{"`ping`", "Ping the bot."},
	{"`about`", "Get some information about this bot"},
}

func (r *Router) help(ctx context.Context, req *Request) (*Reply, error) {
	return &Reply{Card: &Card{
		Title:  "***MyAnimeBot Commands***",
		Colour: cardColour,
		Fields: helpFields,
	}}, nil
}
