package repository

import (
	"time"

	"github.com/hitoshi/myanimebot/internal/model"
)

// 日時は全てUnix秒で保存する。

func toUnix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func fromUnix(sec int64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}

type feedRow struct {
	ID          string `db:"id"`
	Service     string `db:"service"`
	Username    string `db:"username"`
	Title       string `db:"title"`
	URL         string `db:"url"`
	MediaType   string `db:"media_type"`
	Status      string `db:"status"`
	Progress    string `db:"progress"`
	Episodes    string `db:"episodes"`
	Description string `db:"description"`
	PublishedAt int64  `db:"published_at"`
	FoundAt     int64  `db:"found_at"`
	Obsolete    bool   `db:"obsolete"`
}

func newFeedRow(f *model.Feed) feedRow {
	return feedRow{
		ID:          f.ID,
		Service:     string(f.Service),
		Username:    f.SubscriberName(),
		Title:       f.Media.Name,
		URL:         f.Media.URL,
		MediaType:   string(f.Media.Type),
		Status:      string(f.Status),
		Progress:    f.Progress,
		Episodes:    f.Media.Episodes,
		Description: f.Description,
		PublishedAt: toUnix(f.PublishedAt),
		FoundAt:     toUnix(f.FoundAt),
		Obsolete:    f.Obsolete,
	}
}

func (r feedRow) toModel() *model.Feed {
	svc := model.Service(r.Service)
	return &model.Feed{
		ID:         r.ID,
		Service:    svc,
		Subscriber: &model.Subscriber{Service: svc, Name: r.Username},
		Media: model.Media{
			Service:  svc,
			URL:      r.URL,
			Name:     r.Title,
			Type:     model.MediaType(r.MediaType),
			Episodes: r.Episodes,
		},
		Status:      model.Status(r.Status),
		Progress:    r.Progress,
		Description: r.Description,
		PublishedAt: fromUnix(r.PublishedAt),
		FoundAt:     fromUnix(r.FoundAt),
		Obsolete:    r.Obsolete,
	}
}

type mediaRow struct {
	Service    string `db:"service"`
	URL        string `db:"url"`
	Name       string `db:"name"`
	MediaType  string `db:"media_type"`
	Episodes   string `db:"episodes"`
	Thumbnail  string `db:"thumbnail"`
	Discoverer string `db:"discoverer"`
	FoundAt    int64  `db:"found_at"`
}

func (r mediaRow) toModel() *model.Media {
	return &model.Media{
		Service:    model.Service(r.Service),
		URL:        r.URL,
		Name:       r.Name,
		Type:       model.MediaType(r.MediaType),
		Episodes:   r.Episodes,
		Thumbnail:  r.Thumbnail,
		Discoverer: r.Discoverer,
		FoundAt:    fromUnix(r.FoundAt),
	}
}

type serverRow struct {
	ID          string `db:"id"`
	ChannelID   string `db:"channel_id"`
	AdminRoleID string `db:"admin_role_id"`
	CreatedAt   int64  `db:"created_at"`
}

func (r serverRow) toModel() *model.Server {
	return &model.Server{
		ID:          r.ID,
		ChannelID:   r.ChannelID,
		AdminRoleID: r.AdminRoleID,
		CreatedAt:   fromUnix(r.CreatedAt),
	}
}
