package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/hitoshi/myanimebot/internal/model"
)

// SQLStatsRepo はsqlxを使用した統計リポジトリ。
type SQLStatsRepo struct {
	db *sqlx.DB
}

// NewSQLStatsRepo はSQLStatsRepoを生成する。
func NewSQLStatsRepo(db *sqlx.DB) *SQLStatsRepo {
	return &SQLStatsRepo{db: db}
}

type topRow struct {
	Name  string `db:"name"`
	Count int    `db:"count"`
}

// Top は通知件数の多い購読者を返す。
func (r *SQLStatsRepo) Top(ctx context.Context, limit int) ([]model.TopEntry, error) {
	var rows []topRow
	err := r.db.SelectContext(ctx, &rows, r.db.Rebind(
		`SELECT username AS name, COUNT(*) AS count
		 FROM feeds
		 GROUP BY username
		 ORDER BY count DESC, name
		 LIMIT ?`),
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("統計の取得に失敗しました: %w", err)
	}
	return toTopEntries(rows), nil
}

// TopByKeyword はタイトルにkeywordを含む通知件数の多い購読者を返す。大文字小文字は区別しない。
func (r *SQLStatsRepo) TopByKeyword(ctx context.Context, keyword string, limit int) ([]model.TopEntry, error) {
	var rows []topRow
	err := r.db.SelectContext(ctx, &rows, r.db.Rebind(
		`SELECT username AS name, COUNT(*) AS count
		 FROM feeds
		 WHERE LOWER(title) LIKE ?
		 GROUP BY username
		 ORDER BY count DESC, name
		 LIMIT ?`),
		"%"+strings.ToLower(keyword)+"%", limit,
	)
	if err != nil {
		return nil, fmt.Errorf("キーワード別統計の取得に失敗しました: %w", err)
	}
	return toTopEntries(rows), nil
}

// Totals は通知件数と作品数の合計を返す。
func (r *SQLStatsRepo) Totals(ctx context.Context) (int, int, error) {
	var totals struct {
		Feeds int `db:"feeds"`
		Media int `db:"media"`
	}
	err := r.db.GetContext(ctx, &totals,
		`SELECT (SELECT COUNT(*) FROM feeds) AS feeds, (SELECT COUNT(*) FROM media) AS media`)
	if err != nil {
		return 0, 0, fmt.Errorf("合計件数の取得に失敗しました: %w", err)
	}
	return totals.Feeds, totals.Media, nil
}

func toTopEntries(rows []topRow) []model.TopEntry {
	entries := make([]model.TopEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, model.TopEntry{Name: row.Name, Count: row.Count})
	}
	return entries
}

// compile-time interface check
var _ StatsRepository = (*SQLStatsRepo)(nil)
