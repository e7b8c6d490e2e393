package command

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hitoshi/myanimebot/internal/model"
)

// here はメッセージを受けたチャンネルを通知先として登録する。
func (r *Router) here(ctx context.Context, req *Request) (*Reply, error) {
	if err := r.checkAllowed(ctx, req); err != nil {
		return nil, err
	}

	server, err := r.deps.Servers.Find(ctx, req.ServerID)
	if err != nil {
		return nil, err
	}

	if server == nil {
		err := r.deps.Servers.Create(ctx, &model.Server{
			ID:        req.ServerID,
			ChannelID: req.ChannelID,
			CreatedAt: r.now(),
		})
		if err != nil {
			return nil, err
		}
		r.deps.Logger.Info("サーバーを登録しました",
			slog.String("server_id", req.ServerID),
			slog.String("channel_id", req.ChannelID),
		)
		return textReply(fmt.Sprintf("Channel **%s** configured for **%s**.", req.ChannelName, req.ServerName)), nil
	}

	if server.ChannelID == req.ChannelID {
		return textReply(fmt.Sprintf("Channel **%s** already in use for this server.", req.ChannelName)), nil
	}

	if err := r.deps.Servers.UpdateChannel(ctx, req.ServerID, req.ChannelID); err != nil {
		return nil, err
	}
	r.deps.Logger.Info("通知先チャンネルを更新しました",
		slog.String("server_id", req.ServerID),
		slog.String("channel_id", req.ChannelID),
	)
	return textReply(fmt.Sprintf("Channel updated to: **%s**.", req.ChannelName)), nil
}

// stop はサーバーの登録を解除する。以後このサーバーには通知しない。
func (r *Router) stop(ctx context.Context, req *Request) (*Reply, error) {
	if err := r.checkAllowed(ctx, req); err != nil {
		return nil, err
	}
	if len(req.Args) > 1 {
		return textReply(fmt.Sprintf("Too many arguments! Only type *stop* if you want to stop this bot on **%s**", req.ServerName)), nil
	}

	deleted, err := r.deps.Servers.Delete(ctx, req.ServerID)
	if err != nil {
		return nil, err
	}
	if !deleted {
		return textReply(fmt.Sprintf("Server **%s** was already not registered.", req.ServerName)), nil
	}

	r.deps.Logger.Info("サーバーの登録を解除しました", slog.String("server_id", req.ServerID))
	return textReply(fmt.Sprintf("Server **%s** is now unregistered from our database.", req.ServerName)), nil
}

// role はコマンドを利用できるロールを設定する。管理者専用。
func (r *Router) role(ctx context.Context, req *Request) (*Reply, error) {
	if !req.IsAdmin {
		return nil, model.NewAdminOnlyError()
	}
	if len(req.Args) < 2 {
		return textReply("You have to specify a role!"), nil
	}

	server, err := r.deps.Servers.Find(ctx, req.ServerID)
	if err != nil {
		return nil, err
	}
	if server == nil {
		return nil, model.NewServerNotFoundError(req.ServerName)
	}

	if req.Args[1] == "everyone" || req.Args[1] == "@everyone" {
		if err := r.deps.Servers.SetAdminRole(ctx, req.ServerID, ""); err != nil {
			return nil, err
		}
		return textReply("Everyone is now allowed to use the bot."), nil
	}

	switch len(req.RoleMentions) {
	case 0:
		return textReply("Please specify a correct role."), nil
	case 1:
	default:
		return textReply("Please specify only 1 role."), nil
	}

	role := req.RoleMentions[0]
	if err := r.deps.Servers.SetAdminRole(ctx, req.ServerID, role.ID); err != nil {
		return nil, err
	}
	r.deps.Logger.Info("許可ロールを設定しました",
		slog.String("server_id", req.ServerID),
		slog.String("role_id", role.ID),
	)
	return textReply(fmt.Sprintf("The role **%s** is now allowed to use this bot!", role.Name)), nil
}

// info はサーバーに登録された購読者と通知先を表示する。
// "info mal,ani" のようにカンマ区切りでサービスを絞り込める。
func (r *Router) info(ctx context.Context, req *Request) (*Reply, error) {
	var filters []model.Service
	if len(req.Args) > 1 {
		filters = parseServiceFilters(req.Args[1])
	}

	server, err := r.deps.Servers.Find(ctx, req.ServerID)
	if err != nil {
		return nil, err
	}
	if server == nil {
		return nil, model.NewServerNotFoundError(req.ServerName)
	}
	if server.ChannelID == "" {
		return textReply("No channel assigned for this bot on this server."), nil
	}

	subs, err := r.deps.Subscribers.ListByServer(ctx, req.ServerID)
	if err != nil {
		return nil, err
	}
	if len(subs) == 0 {
		return textReply("No users registered on this server. Try to add one."), nil
	}

	names := map[model.Service][]string{}
	for _, s := range subs {
		names[s.Service] = append(names[s.Service], s.Name)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Registered user(s) on **%s**\n\n", req.ServerName)
	for _, svc := range []model.Service{model.ServiceMAL, model.ServiceAniList} {
		if len(names[svc]) == 0 || !serviceSelected(filters, svc) {
			continue
		}
		fmt.Fprintf(&b, "**%s** users:\n", svc.DisplayName())
		fmt.Fprintf(&b, "```%s```\n", strings.Join(names[svc], ", "))
	}
	fmt.Fprintf(&b, "Assigned channel : **%s**", r.deps.Directory.ChannelName(ctx, server.ChannelID))
	if server.AdminRoleID != "" {
		fmt.Fprintf(&b, "\nAllowed role: **%s**", r.deps.Directory.RoleName(ctx, req.ServerID, server.AdminRoleID))
	}
	return textReply(b.String()), nil
}

// parseServiceFilters はカンマ区切りのサービス名を解析する。不明な名前は無視する。
func parseServiceFilters(raw string) []model.Service {
	var filters []model.Service
	for _, part := range strings.Split(raw, ",") {
		if svc, err := model.ParseService(part); err == nil {
			filters = append(filters, svc)
		}
	}
	return filters
}

func serviceSelected(filters []model.Service, svc model.Service) bool {
	if len(filters) == 0 {
		return true
	}
	for _, f := range filters {
		if f == svc {
			return true
		}
	}
	return false
}
