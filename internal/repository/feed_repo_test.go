package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hitoshi/myanimebot/internal/model"
)

func newFeed(id, title string, st model.Status, published time.Time) *model.Feed {
	return &model.Feed{
		ID:         id,
		Service:    model.ServiceAniList,
		Subscriber: &model.Subscriber{Service: model.ServiceAniList, Name: "Pentou"},
		Media: model.Media{
			Service:  model.ServiceAniList,
			URL:      "https://anilist.co/anime/20",
			Name:     title,
			Type:     model.MediaTypeAnime,
			Episodes: "220",
		},
		Status:      st,
		Progress:    "4",
		Description: "watched episode",
		PublishedAt: published,
		FoundAt:     published.Add(time.Minute),
	}
}

func TestSQLFeedRepo_ImplementsInterface(t *testing.T) {
	var _ FeedRepository = (*SQLFeedRepo)(nil)
}

func TestSQLFeedRepo_MaxPublishedAt_Empty(t *testing.T) {
	repo := NewSQLFeedRepo(newSQLiteDB(t))

	got, err := repo.MaxPublishedAt(context.Background(), model.ServiceAniList)
	require.NoError(t, err)
	assert.True(t, got.IsZero(), "Feedが無い場合はゼロ値を返すべき: %v", got)
}

func TestSQLFeedRepo_InsertAndFind(t *testing.T) {
	ctx := context.Background()
	repo := NewSQLFeedRepo(newSQLiteDB(t))
	published := time.Unix(1608340500, 0).UTC()

	require.NoError(t, repo.InsertSuperseding(ctx, newFeed("f1", "Naruto", model.StatusCurrent, published)))

	found, err := repo.FindFeed(ctx, model.ServiceAniList, "Pentou", "Naruto", model.StatusCurrent, published)
	require.NoError(t, err)
	require.NotNil(t, found, "挿入したFeedが見つかるべき")
	assert.Equal(t, "f1", found.ID)
	assert.Equal(t, "Pentou", found.SubscriberName())
	assert.Equal(t, model.MediaTypeAnime, found.Media.Type)
	assert.True(t, found.PublishedAt.Equal(published))
	assert.False(t, found.Obsolete)

	missing, err := repo.FindFeed(ctx, model.ServiceAniList, "Pentou", "Naruto", model.StatusCompleted, published)
	require.NoError(t, err)
	assert.Nil(t, missing, "状態が異なるFeedは見つからないべき")

	latest, err := repo.MaxPublishedAt(ctx, model.ServiceAniList)
	require.NoError(t, err)
	assert.True(t, latest.Equal(published), "MaxPublishedAt = %v", latest)

	other, err := repo.MaxPublishedAt(ctx, model.ServiceMAL)
	require.NoError(t, err)
	assert.True(t, other.IsZero(), "他サービスのFeedは含めない")
}

func TestSQLFeedRepo_InsertSuperseding_MarksPriorObsolete(t *testing.T) {
	ctx := context.Background()
	repo := NewSQLFeedRepo(newSQLiteDB(t))
	t0 := time.Unix(1608340203, 0).UTC()
	t1 := t0.Add(5 * time.Minute)

	require.NoError(t, repo.InsertSuperseding(ctx, newFeed("old", "Naruto", model.StatusCurrent, t0)))
	require.NoError(t, repo.InsertSuperseding(ctx, newFeed("new", "Naruto", model.StatusCompleted, t1)))

	old, err := repo.FindFeed(ctx, model.ServiceAniList, "Pentou", "Naruto", model.StatusCurrent, t0)
	require.NoError(t, err)
	assert.Nil(t, old, "旧Feedはobsoleteになり検索対象外になるべき")

	current, err := repo.FindFeed(ctx, model.ServiceAniList, "Pentou", "Naruto", model.StatusCompleted, t1)
	require.NoError(t, err)
	require.NotNil(t, current)
	assert.Equal(t, "new", current.ID)
}

func TestSQLFeedRepo_InsertSuperseding_OlderItemStaysObsolete(t *testing.T) {
	ctx := context.Background()
	repo := NewSQLFeedRepo(newSQLiteDB(t))
	t0 := time.Unix(1608340203, 0).UTC()
	t1 := t0.Add(5 * time.Minute)

	// 同一ページ内で新しい順に処理されるため、後から古いアイテムが届く
	require.NoError(t, repo.InsertSuperseding(ctx, newFeed("new", "Naruto", model.StatusCompleted, t1)))
	older := newFeed("old", "Naruto", model.StatusCurrent, t0)
	require.NoError(t, repo.InsertSuperseding(ctx, older))

	assert.True(t, older.Obsolete, "より新しい有効なFeedがある場合はobsoleteとして保存されるべき")

	current, err := repo.FindFeed(ctx, model.ServiceAniList, "Pentou", "Naruto", model.StatusCompleted, t1)
	require.NoError(t, err)
	require.NotNil(t, current, "新しいFeedは有効なまま残るべき")

	latest, err := repo.MaxPublishedAt(ctx, model.ServiceAniList)
	require.NoError(t, err)
	assert.True(t, latest.Equal(t1))
}

func TestSQLFeedRepo_DeleteObsoleteBefore(t *testing.T) {
	ctx := context.Background()
	repo := NewSQLFeedRepo(newSQLiteDB(t))
	t0 := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, repo.InsertSuperseding(ctx, newFeed("a", "Naruto", model.StatusCurrent, t0)))
	require.NoError(t, repo.InsertSuperseding(ctx, newFeed("b", "Naruto", model.StatusCompleted, t0.Add(time.Hour))))

	n, err := repo.DeleteObsoleteBefore(ctx, t0.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "obsoleteなFeedのみ削除されるべき")

	current, err := repo.FindFeed(ctx, model.ServiceAniList, "Pentou", "Naruto", model.StatusCompleted, t0.Add(time.Hour))
	require.NoError(t, err)
	assert.NotNil(t, current, "有効なFeedは削除されてはならない")
}

func TestSQLFeedRepo_FindFeed_QueryError(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSQLFeedRepo(db)

	mock.ExpectQuery(`SELECT .+ FROM feeds\s+WHERE service = \$1 AND username = \$2`).
		WillReturnError(errors.New("connection reset"))

	_, err := repo.FindFeed(context.Background(), model.ServiceMAL, "Penta", "Cowboy Bebop", model.StatusCurrent, time.Unix(100, 0))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLFeedRepo_InsertSuperseding_RollsBackOnInsertError(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSQLFeedRepo(db)
	feed := newFeed("f1", "Naruto", model.StatusCurrent, time.Unix(1608340500, 0))

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE feeds SET obsolete = \$1`).
		WithArgs(true, "ani", "Pentou", "Naruto", false, int64(1608340500)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM feeds`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec(`INSERT INTO feeds`).
		WillReturnError(errors.New("unique violation"))
	mock.ExpectRollback()

	err := repo.InsertSuperseding(context.Background(), feed)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unique violation")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLFeedRepo_MaxPublishedAt_Mock(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSQLFeedRepo(db)

	mock.ExpectQuery(`SELECT COALESCE\(MAX\(published_at\), 0\) FROM feeds WHERE service = \$1 AND obsolete = \$2`).
		WithArgs("mal", false).
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(int64(1714557600)))

	got, err := repo.MaxPublishedAt(context.Background(), model.ServiceMAL)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), got)
	assert.NoError(t, mock.ExpectationsWereMet())
}
