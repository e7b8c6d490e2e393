package mal

import (
	"strings"
	"time"

	"github.com/hitoshi/myanimebot/internal/model"
	"github.com/hitoshi/myanimebot/internal/security"
	"github.com/hitoshi/myanimebot/internal/status"
)

// Builder はRSSアイテムをFeedに変換する。
type Builder struct {
	sanitizer security.TextSanitizer
}

// NewBuilder はBuilderを生成する。
func NewBuilder(sanitizer security.TextSanitizer) *Builder {
	return &Builder{sanitizer: sanitizer}
}

// Build はRSSアイテムをFeedに変換する。
//
// 再視聴・再読中のアイテムは説明文がラベル無しの "- 3 of 12 episodes" になるため、
// 先頭が "-" の場合はラベルを補ってから解析する。
func (b *Builder) Build(e Entry, sub *model.Subscriber) (*model.Feed, error) {
	item := e.Item

	desc := b.sanitizer.Clean(item.Description)
	if strings.HasPrefix(desc, "-") {
		desc = repeatLabel(e.MediaType) + " " + desc
	}

	st, progress, total, err := status.Parse(desc)
	if err != nil {
		return nil, err
	}

	published, err := parsePublished(item.Published, item.PublishedParsed)
	if err != nil {
		return nil, err
	}

	if total == "" {
		total = model.UnknownCount
	}
	if progress == "" {
		progress = model.UnknownCount
	}

	return &model.Feed{
		Service:    model.ServiceMAL,
		Subscriber: sub,
		Media: model.Media{
			Service:  model.ServiceMAL,
			URL:      strings.TrimSpace(item.Link),
			Name:     b.sanitizer.Clean(item.Title),
			Type:     e.MediaType,
			Episodes: total,
		},
		Status:      st,
		Progress:    progress,
		Description: desc,
		PublishedAt: published,
	}, nil
}

func repeatLabel(mt model.MediaType) string {
	if mt == model.MediaTypeManga {
		return "Re-Reading"
	}
	return "Re-Watching"
}

// parsePublished はRSSのpubDate（RFC 1123、数値タイムゾーン付き）を解析する。
// 形式が異なる場合はgofeedの解析結果を使う。
func parsePublished(raw string, parsed *time.Time) (time.Time, error) {
	if t, err := time.Parse(time.RFC1123Z, strings.TrimSpace(raw)); err == nil {
		return t, nil
	}
	if parsed != nil {
		return *parsed, nil
	}
	return time.Time{}, &model.ParseError{Kind: model.ParseErrorInvalidTimestamp, Raw: raw}
}
