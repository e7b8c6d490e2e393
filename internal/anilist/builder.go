package anilist

import (
	"strconv"
	"strings"
	"time"

	"github.com/hitoshi/myanimebot/internal/model"
	"github.com/hitoshi/myanimebot/internal/security"
	"github.com/hitoshi/myanimebot/internal/status"
)

// Builder はAniListのアクティビティをFeedに変換する。
type Builder struct {
	sanitizer security.TextSanitizer
}

// NewBuilder はBuilderを生成する。
func NewBuilder(sanitizer security.TextSanitizer) *Builder {
	return &Builder{sanitizer: sanitizer}
}

// Build はアクティビティをFeedに変換する。
func (b *Builder) Build(a Activity, sub *model.Subscriber) (*model.Feed, error) {
	st, err := status.ParseActivity(a.Status)
	if err != nil {
		if pe, ok := err.(*model.ParseError); ok {
			pe.Raw = a.Status
		}
		return nil, err
	}

	mediaType, err := model.ParseMediaType(a.Media.Type)
	if err != nil {
		// media.type が欠けている場合はアクティビティ種別（ANIME_LIST など）から判定する
		if mediaType, err = model.ParseMediaType(a.Type); err != nil {
			return nil, &model.ParseError{Kind: model.ParseErrorUnknownLabel, Label: a.Type, Raw: a.Type}
		}
	}

	count := a.Media.Episodes
	if mediaType == model.MediaTypeManga {
		count = a.Media.Chapters
	}

	progress := model.UnknownCount
	if a.Progress != nil && strings.TrimSpace(*a.Progress) != "" {
		progress = strings.TrimSpace(*a.Progress)
	}

	return &model.Feed{
		Service:    model.ServiceAniList,
		Subscriber: sub,
		Media: model.Media{
			Service:   model.ServiceAniList,
			URL:       a.Media.SiteURL,
			Name:      b.sanitizer.Clean(ResolveTitle(a.Media.Title)),
			Type:      mediaType,
			Episodes:  countString(count),
			Thumbnail: a.Media.CoverImage.Large,
		},
		Status:      st,
		Progress:    progress,
		Description: a.Status,
		PublishedAt: time.Unix(a.CreatedAt, 0).UTC(),
	}, nil
}

// ResolveTitle は英語、ローマ字、ネイティブの順に空でないタイトルを返す。
func ResolveTitle(t Title) string {
	for _, candidate := range []*string{t.English, t.Romaji, t.Native} {
		if candidate != nil && strings.TrimSpace(*candidate) != "" {
			return *candidate
		}
	}
	return ""
}

func countString(n *int) string {
	if n == nil {
		return model.UnknownCount
	}
	return strconv.Itoa(*n)
}
