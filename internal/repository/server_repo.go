package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/hitoshi/myanimebot/internal/model"
)

// SQLServerRepo はsqlxを使用したサーバー設定リポジトリ。
type SQLServerRepo struct {
	db *sqlx.DB
}

// NewSQLServerRepo はSQLServerRepoを生成する。
func NewSQLServerRepo(db *sqlx.DB) *SQLServerRepo {
	return &SQLServerRepo{db: db}
}

// Find は指定IDのサーバーを取得する。見つからない場合はnilを返す。
func (r *SQLServerRepo) Find(ctx context.Context, id string) (*model.Server, error) {
	var row serverRow
	err := r.db.GetContext(ctx, &row, r.db.Rebind(
		`SELECT id, channel_id, admin_role_id, created_at FROM servers WHERE id = ?`),
		id,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("サーバーの取得に失敗しました: %w", err)
	}
	return row.toModel(), nil
}

// Create はサーバーを登録する。
func (r *SQLServerRepo) Create(ctx context.Context, server *model.Server) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(
		`INSERT INTO servers (id, channel_id, admin_role_id, created_at) VALUES (?, ?, ?, ?)`),
		server.ID, server.ChannelID, server.AdminRoleID, toUnix(server.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("サーバーの登録に失敗しました: %w", err)
	}
	return nil
}

// UpdateChannel は通知先チャンネルを更新する。
func (r *SQLServerRepo) UpdateChannel(ctx context.Context, id, channelID string) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(
		`UPDATE servers SET channel_id = ? WHERE id = ?`),
		channelID, id,
	)
	if err != nil {
		return fmt.Errorf("チャンネルの更新に失敗しました: %w", err)
	}
	return nil
}

// SetAdminRole はコマンドを利用できるロールを設定する。
func (r *SQLServerRepo) SetAdminRole(ctx context.Context, id, roleID string) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(
		`UPDATE servers SET admin_role_id = ? WHERE id = ?`),
		roleID, id,
	)
	if err != nil {
		return fmt.Errorf("ロールの更新に失敗しました: %w", err)
	}
	return nil
}

// Delete はサーバーを削除する。存在しなかった場合は false を返す。
func (r *SQLServerRepo) Delete(ctx context.Context, id string) (bool, error) {
	result, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM servers WHERE id = ?`), id)
	if err != nil {
		return false, fmt.Errorf("サーバーの削除に失敗しました: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("削除件数の取得に失敗しました: %w", err)
	}
	return n > 0, nil
}

// ChannelsForSubscriber は購読者が紐付く全サーバーの通知先チャンネルを返す。
// チャンネル未設定のサーバーは含めない。
func (r *SQLServerRepo) ChannelsForSubscriber(ctx context.Context, svc model.Service, username string) ([]string, error) {
	var channels []string
	err := r.db.SelectContext(ctx, &channels, r.db.Rebind(
		`SELECT sv.channel_id
		 FROM servers sv
		 JOIN subscriber_servers ss ON ss.server_id = sv.id
		 JOIN subscribers s ON s.id = ss.subscriber_id
		 WHERE s.service = ? AND LOWER(s.username) = LOWER(?) AND sv.channel_id <> ''
		 ORDER BY sv.id`),
		string(svc), username,
	)
	if err != nil {
		return nil, fmt.Errorf("通知先チャンネルの取得に失敗しました: %w", err)
	}
	return channels, nil
}

// compile-time interface check
var _ ServerRepository = (*SQLServerRepo)(nil)
