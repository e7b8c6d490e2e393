package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/hitoshi/myanimebot/internal/model"
)

// subscriberServerRow は購読者とサーバー紐付けのJOIN結果の1行。
type subscriberServerRow struct {
	ID            int64          `db:"id"`
	Service       string         `db:"service"`
	Username      string         `db:"username"`
	ServiceUserID int64          `db:"service_user_id"`
	CreatedAt     int64          `db:"created_at"`
	ServerID      sql.NullString `db:"server_id"`
}

const subscriberSelect = `SELECT s.id, s.service, s.username, s.service_user_id, s.created_at, ss.server_id
	FROM subscribers s
	LEFT JOIN subscriber_servers ss ON ss.subscriber_id = s.id`

// SQLSubscriberRepo はsqlxを使用した購読者リポジトリ。
type SQLSubscriberRepo struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewSQLSubscriberRepo はSQLSubscriberRepoを生成する。
func NewSQLSubscriberRepo(db *sqlx.DB) *SQLSubscriberRepo {
	return &SQLSubscriberRepo{db: db, now: time.Now}
}

// ListByService はサービスの全購読者を返す。
func (r *SQLSubscriberRepo) ListByService(ctx context.Context, svc model.Service) ([]*model.Subscriber, error) {
	var rows []subscriberServerRow
	err := r.db.SelectContext(ctx, &rows, r.db.Rebind(
		subscriberSelect+` WHERE s.service = ? ORDER BY s.id, ss.server_id`),
		string(svc),
	)
	if err != nil {
		return nil, fmt.Errorf("購読者一覧の取得に失敗しました: %w", err)
	}
	return groupSubscribers(rows), nil
}

// ListByServer はサーバーに紐付く購読者を返す。Servers には当該サーバーを含む全紐付けが入る。
func (r *SQLSubscriberRepo) ListByServer(ctx context.Context, serverID string) ([]*model.Subscriber, error) {
	var rows []subscriberServerRow
	err := r.db.SelectContext(ctx, &rows, r.db.Rebind(
		subscriberSelect+`
		 WHERE s.id IN (SELECT subscriber_id FROM subscriber_servers WHERE server_id = ?)
		 ORDER BY s.service, LOWER(s.username), s.id, ss.server_id`),
		serverID,
	)
	if err != nil {
		return nil, fmt.Errorf("サーバーの購読者一覧の取得に失敗しました: %w", err)
	}
	return groupSubscribers(rows), nil
}

// FindByName はユーザー名で購読者を検索する。見つからない場合はnilを返す。
func (r *SQLSubscriberRepo) FindByName(ctx context.Context, svc model.Service, name string) (*model.Subscriber, error) {
	return findSubscriber(ctx, r.db, svc, name)
}

// Subscribe は購読者をサーバーに紐付ける。既に紐付いていた場合は false を返す。
// 新規作成した場合は sub.ID と sub.CreatedAt を設定する。
func (r *SQLSubscriberRepo) Subscribe(ctx context.Context, sub *model.Subscriber, serverID string) (bool, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	existing, err := findSubscriber(ctx, tx, sub.Service, sub.Name)
	if err != nil {
		return false, err
	}

	if existing == nil {
		sub.CreatedAt = r.now().UTC().Truncate(time.Second)
		err = tx.GetContext(ctx, &sub.ID, tx.Rebind(
			`INSERT INTO subscribers (service, username, service_user_id, created_at)
			 VALUES (?, ?, ?, ?) RETURNING id`),
			string(sub.Service), sub.Name, sub.ServiceUserID, toUnix(sub.CreatedAt),
		)
		if err != nil {
			return false, fmt.Errorf("購読者の作成に失敗しました: %w", err)
		}
	} else {
		if existing.HasServer(serverID) {
			return false, nil
		}
		sub.ID = existing.ID
		sub.CreatedAt = existing.CreatedAt
		if sub.ServiceUserID != 0 && sub.ServiceUserID != existing.ServiceUserID {
			_, err = tx.ExecContext(ctx, tx.Rebind(
				`UPDATE subscribers SET service_user_id = ? WHERE id = ?`),
				sub.ServiceUserID, sub.ID,
			)
			if err != nil {
				return false, fmt.Errorf("購読者IDの更新に失敗しました: %w", err)
			}
		}
	}

	_, err = tx.ExecContext(ctx, tx.Rebind(
		`INSERT INTO subscriber_servers (subscriber_id, server_id) VALUES (?, ?)`),
		sub.ID, serverID,
	)
	if err != nil {
		return false, fmt.Errorf("サーバーの紐付けに失敗しました: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return true, nil
}

// Unsubscribe はサーバーとの紐付けを解除する。紐付くサーバーが無くなった購読者は削除する。
func (r *SQLSubscriberRepo) Unsubscribe(ctx context.Context, svc model.Service, name, serverID string) (bool, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	existing, err := findSubscriber(ctx, tx, svc, name)
	if err != nil {
		return false, err
	}
	if existing == nil || !existing.HasServer(serverID) {
		return false, nil
	}

	_, err = tx.ExecContext(ctx, tx.Rebind(
		`DELETE FROM subscriber_servers WHERE subscriber_id = ? AND server_id = ?`),
		existing.ID, serverID,
	)
	if err != nil {
		return false, fmt.Errorf("サーバーの紐付け解除に失敗しました: %w", err)
	}

	if len(existing.Servers) == 1 {
		_, err = tx.ExecContext(ctx, tx.Rebind(`DELETE FROM subscribers WHERE id = ?`), existing.ID)
		if err != nil {
			return false, fmt.Errorf("購読者の削除に失敗しました: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return true, nil
}

// queryer は *sqlx.DB と *sqlx.Tx の共通部分。
type queryer interface {
	sqlx.QueryerContext
	Rebind(query string) string
}

func findSubscriber(ctx context.Context, q queryer, svc model.Service, name string) (*model.Subscriber, error) {
	var rows []subscriberServerRow
	err := sqlx.SelectContext(ctx, q, &rows, q.Rebind(
		subscriberSelect+` WHERE s.service = ? AND LOWER(s.username) = LOWER(?) ORDER BY ss.server_id`),
		string(svc), name,
	)
	if err != nil {
		return nil, fmt.Errorf("購読者の検索に失敗しました: %w", err)
	}
	subs := groupSubscribers(rows)
	if len(subs) == 0 {
		return nil, nil
	}
	return subs[0], nil
}

// groupSubscribers はJOIN結果を購読者ごとにまとめる。行は購読者ごとに連続している必要がある。
func groupSubscribers(rows []subscriberServerRow) []*model.Subscriber {
	var subs []*model.Subscriber
	var current *model.Subscriber
	for _, row := range rows {
		if current == nil || current.ID != row.ID {
			current = &model.Subscriber{
				ID:            row.ID,
				Service:       model.Service(row.Service),
				Name:          row.Username,
				ServiceUserID: row.ServiceUserID,
				CreatedAt:     fromUnix(row.CreatedAt),
			}
			subs = append(subs, current)
		}
		if row.ServerID.Valid {
			current.Servers = append(current.Servers, row.ServerID.String)
		}
	}
	return subs
}

// compile-time interface check
var _ SubscriberRepository = (*SQLSubscriberRepo)(nil)
