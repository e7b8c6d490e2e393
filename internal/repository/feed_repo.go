package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/hitoshi/myanimebot/internal/model"
)

const feedColumns = `id, service, username, title, url, media_type, status, progress, episodes,
	description, published_at, found_at, obsolete`

// SQLFeedRepo はsqlxを使用したFeedリポジトリ。PostgreSQLとSQLiteの両方で動作する。
type SQLFeedRepo struct {
	db *sqlx.DB
}

// NewSQLFeedRepo はSQLFeedRepoを生成する。
func NewSQLFeedRepo(db *sqlx.DB) *SQLFeedRepo {
	return &SQLFeedRepo{db: db}
}

// MaxPublishedAt はサービスの非obsoleteなFeedの最大公開日時を返す。
func (r *SQLFeedRepo) MaxPublishedAt(ctx context.Context, svc model.Service) (time.Time, error) {
	var latest int64
	err := r.db.GetContext(ctx, &latest, r.db.Rebind(
		`SELECT COALESCE(MAX(published_at), 0) FROM feeds WHERE service = ? AND obsolete = ?`),
		string(svc), false,
	)
	if err != nil {
		return time.Time{}, fmt.Errorf("最終公開日時の取得に失敗しました: %w", err)
	}
	return fromUnix(latest), nil
}

// FindFeed は同一識別子の非obsoleteなFeedを検索する。見つからない場合はnilを返す。
func (r *SQLFeedRepo) FindFeed(ctx context.Context, svc model.Service, subscriber, title string, status model.Status, publishedAt time.Time) (*model.Feed, error) {
	var row feedRow
	err := r.db.GetContext(ctx, &row, r.db.Rebind(
		`SELECT `+feedColumns+`
		 FROM feeds
		 WHERE service = ? AND username = ? AND title = ? AND status = ? AND published_at = ? AND obsolete = ?
		 LIMIT 1`),
		string(svc), subscriber, title, string(status), toUnix(publishedAt), false,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("Feedの検索に失敗しました: %w", err)
	}
	return row.toModel(), nil
}

// InsertSuperseding は同じ (service, subscriber, title) の有効なFeedをobsoleteにしてから挿入する。
// 挿入するFeedより新しい有効なFeedが残る場合は、挿入するFeed自体をobsoleteとして保存する。
func (r *SQLFeedRepo) InsertSuperseding(ctx context.Context, feed *model.Feed) error {
	row := newFeedRow(feed)

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, tx.Rebind(
		`UPDATE feeds SET obsolete = ?
		 WHERE service = ? AND username = ? AND title = ? AND obsolete = ? AND published_at <= ?`),
		true, row.Service, row.Username, row.Title, false, row.PublishedAt,
	)
	if err != nil {
		return fmt.Errorf("旧Feedのobsolete化に失敗しました: %w", err)
	}

	var newer int
	err = tx.GetContext(ctx, &newer, tx.Rebind(
		`SELECT COUNT(*) FROM feeds WHERE service = ? AND username = ? AND title = ? AND obsolete = ?`),
		row.Service, row.Username, row.Title, false,
	)
	if err != nil {
		return fmt.Errorf("有効なFeedの確認に失敗しました: %w", err)
	}
	if newer > 0 {
		row.Obsolete = true
	}

	_, err = tx.NamedExecContext(ctx,
		`INSERT INTO feeds (`+feedColumns+`)
		 VALUES (:id, :service, :username, :title, :url, :media_type, :status, :progress, :episodes,
		         :description, :published_at, :found_at, :obsolete)`,
		row,
	)
	if err != nil {
		return fmt.Errorf("Feedの挿入に失敗しました: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	feed.Obsolete = row.Obsolete
	return nil
}

// DeleteObsoleteBefore は cutoff より前に公開されたobsoleteなFeedを削除する。
func (r *SQLFeedRepo) DeleteObsoleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, r.db.Rebind(
		`DELETE FROM feeds WHERE obsolete = ? AND published_at < ?`),
		true, toUnix(cutoff),
	)
	if err != nil {
		return 0, fmt.Errorf("obsoleteなFeedの削除に失敗しました: %w", err)
	}
	return result.RowsAffected()
}

// compile-time interface check
var _ FeedRepository = (*SQLFeedRepo)(nil)
