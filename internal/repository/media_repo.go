package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/hitoshi/myanimebot/internal/model"
)

const mediaColumns = `service, url, name, media_type, episodes, thumbnail, discoverer, found_at`

// SQLMediaRepo はsqlxを使用した作品リポジトリ。
type SQLMediaRepo struct {
	db *sqlx.DB
}

// NewSQLMediaRepo はSQLMediaRepoを生成する。
func NewSQLMediaRepo(db *sqlx.DB) *SQLMediaRepo {
	return &SQLMediaRepo{db: db}
}

// FindMedia はサービスとURLで作品を検索する。見つからない場合はnilを返す。
func (r *SQLMediaRepo) FindMedia(ctx context.Context, svc model.Service, url string) (*model.Media, error) {
	var row mediaRow
	err := r.db.GetContext(ctx, &row, r.db.Rebind(
		`SELECT `+mediaColumns+` FROM media WHERE service = ? AND url = ?`),
		string(svc), url,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("作品の取得に失敗しました: %w", err)
	}
	return row.toModel(), nil
}

// CreateMedia は作品を登録する。既に存在する場合は何もしない。
func (r *SQLMediaRepo) CreateMedia(ctx context.Context, media *model.Media) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(
		`INSERT INTO media (`+mediaColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (service, url) DO NOTHING`),
		string(media.Service), media.URL, media.Name, string(media.Type),
		media.Episodes, media.Thumbnail, media.Discoverer, toUnix(media.FoundAt),
	)
	if err != nil {
		return fmt.Errorf("作品の登録に失敗しました: %w", err)
	}
	return nil
}

// UpdateThumbnail はサムネイルURLを更新する。
func (r *SQLMediaRepo) UpdateThumbnail(ctx context.Context, svc model.Service, url, thumbnail string) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(
		`UPDATE media SET thumbnail = ? WHERE service = ? AND url = ?`),
		thumbnail, string(svc), url,
	)
	if err != nil {
		return fmt.Errorf("サムネイルの更新に失敗しました: %w", err)
	}
	return nil
}

// ListAfter はサービスの作品をURL順に afterURL より後から最大limit件返す。
// afterURL が空の場合は先頭から返す。
func (r *SQLMediaRepo) ListAfter(ctx context.Context, svc model.Service, afterURL string, limit int) ([]*model.Media, error) {
	var rows []mediaRow
	err := r.db.SelectContext(ctx, &rows, r.db.Rebind(
		`SELECT `+mediaColumns+` FROM media WHERE service = ? AND url > ? ORDER BY url LIMIT ?`),
		string(svc), afterURL, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("作品一覧の取得に失敗しました: %w", err)
	}

	media := make([]*model.Media, 0, len(rows))
	for _, row := range rows {
		media = append(media, row.toModel())
	}
	return media, nil
}

// RandomTitle は登録済み作品名を1つ無作為に返す。
func (r *SQLMediaRepo) RandomTitle(ctx context.Context) (string, error) {
	var name string
	err := r.db.GetContext(ctx, &name, `SELECT name FROM media ORDER BY RANDOM() LIMIT 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("作品名の取得に失敗しました: %w", err)
	}
	return name, nil
}

// compile-time interface check
var _ MediaRepository = (*SQLMediaRepo)(nil)
