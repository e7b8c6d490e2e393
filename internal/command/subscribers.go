package command

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/myanimebot/internal/model"
)

const tooManyUsernames = "Too many arguments! You have to specify only one username."

// subscriberArgs は add / delete の引数（サービスとユーザー名）を検証する。
func (r *Router) subscriberArgs(req *Request) (model.Service, string, error) {
	if len(req.Args) < 3 {
		return "", "", model.NewUsageError(fmt.Sprintf("%s %s **%s**/**%s** **username**",
			r.cfg.Prefix, req.Args[0], model.ServiceMAL, model.ServiceAniList))
	}
	if len(req.Args) > 3 {
		return "", "", &model.CommandError{Code: model.ErrCodeUsage, Message: tooManyUsernames}
	}
	svc, err := model.ParseService(req.Args[1])
	if err != nil {
		return "", "", model.NewInvalidServiceError(req.Args[1])
	}
	return svc, req.Args[2], nil
}

// addUser は購読者をこのサーバーに登録する。
func (r *Router) addUser(ctx context.Context, req *Request) (*Reply, error) {
	if err := r.checkAllowed(ctx, req); err != nil {
		return nil, err
	}
	svc, name, err := r.subscriberArgs(req)
	if err != nil {
		return nil, err
	}
	if len(name) > MaxUsernameLength {
		return nil, model.NewUsernameTooLongError()
	}

	serviceUserID, err := r.lookupUser(ctx, svc, name)
	if err != nil {
		return nil, err
	}

	sub := &model.Subscriber{Service: svc, Name: name, ServiceUserID: serviceUserID}
	added, err := r.deps.Subscribers.Subscribe(ctx, sub, req.ServerID)
	if err != nil {
		r.deps.Logger.Warn("ユーザーの登録に失敗しました",
			slog.String("service", string(svc)),
			slog.String("subscriber", name),
			slog.String("server_id", req.ServerID),
			slog.String("error", err.Error()),
		)
		return textReply("An unknown error occured while adding this user, the error has been logged."), nil
	}
	if !added {
		return textReply(fmt.Sprintf("User **%s** is already registered in our database for this server!", name)), nil
	}

	r.deps.Logger.Info("ユーザーを登録しました",
		slog.String("service", string(svc)),
		slog.String("subscriber", name),
		slog.String("server_id", req.ServerID),
	)
	return textReply(fmt.Sprintf("**%s** added to the database for the server **%s**.", name, req.ServerName)), nil
}

// lookupUser は上流サービスにユーザーが存在するか確認し、数値IDを返す。
// MyAnimeListには数値IDが無いため常に0を返す。
func (r *Router) lookupUser(ctx context.Context, svc model.Service, name string) (int64, error) {
	var (
		exists bool
		id     int64
		err    error
	)
	switch svc {
	case model.ServiceMAL:
		exists, err = r.deps.MAL.UserExists(ctx, name)
	case model.ServiceAniList:
		exists, id, err = r.deps.AniList.UserExists(ctx, name)
	default:
		return 0, model.NewInvalidServiceError(string(svc))
	}
	if err != nil {
		r.deps.Logger.Warn("ユーザーの存在確認に失敗しました",
			slog.String("service", string(svc)),
			slog.String("subscriber", name),
			slog.String("error", err.Error()),
		)
		return 0, model.NewUpstreamFailedError(svc)
	}
	if !exists {
		return 0, model.NewUserNotFoundError(svc, name)
	}
	return id, nil
}

// deleteUser は購読者とこのサーバーの紐付けを解除する。
func (r *Router) deleteUser(ctx context.Context, req *Request) (*Reply, error) {
	if err := r.checkAllowed(ctx, req); err != nil {
		return nil, err
	}
	svc, name, err := r.subscriberArgs(req)
	if err != nil {
		return nil, err
	}

	removed, err := r.deps.Subscribers.Unsubscribe(ctx, svc, name, req.ServerID)
	if err != nil {
		return nil, err
	}
	if !removed {
		return textReply(fmt.Sprintf("The user **%s** is not in our database for this server!", name)), nil
	}

	r.deps.Logger.Info("ユーザーの登録を解除しました",
		slog.String("service", string(svc)),
		slog.String("subscriber", name),
		slog.String("server_id", req.ServerID),
	)
	return textReply(fmt.Sprintf("**%s** deleted from the database for this server.", name)), nil
}
