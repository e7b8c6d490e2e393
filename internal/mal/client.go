// Package mal はMyAnimeListのRSSからリスト更新を取得する。
package mal

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sort"

	"github.com/mmcdole/gofeed"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/hitoshi/myanimebot/internal/model"
	"github.com/hitoshi/myanimebot/internal/upstream"
	"github.com/hitoshi/myanimebot/internal/worker/reconcile"
)

const defaultBaseURL = "https://myanimelist.net"

// Entry はRSSの1アイテムと、それが属するリストの種別。
type Entry struct {
	Item      *gofeed.Item
	MediaType model.MediaType
}

// rssLists は1購読者あたりに取得するリストの順序。マンガ一覧、アニメ一覧の順。
var rssLists = []struct {
	rssType   string
	mediaType model.MediaType
}{
	{"rm", model.MediaTypeManga},
	{"rw", model.MediaTypeAnime},
}

// Client はMyAnimeListへのアクセスを行う。
type Client struct {
	requester *upstream.Requester
	logger    *slog.Logger
	baseURL   string // テスト用に差し替え可能
}

// NewClient はClientを生成する。
func NewClient(httpClient *http.Client, userAgent string, breaker *gobreaker.CircuitBreaker[[]byte], logger *slog.Logger) *Client {
	return &Client{
		requester: &upstream.Requester{
			HTTPClient: httpClient,
			Breaker:    breaker,
			Service:    model.ServiceMAL,
			UserAgent:  userAgent,
		},
		logger:  logger,
		baseURL: defaultBaseURL,
	}
}

// Service はmodel.ServiceMALを返す。
func (c *Client) Service() model.Service {
	return model.ServiceMAL
}

// FetchPage はpage番目のリストのRSSを取得する。
// 1ページ目がマンガ、2ページ目がアニメで、各ページは独立した新しい順の列になる。
func (c *Client) FetchPage(ctx context.Context, sub *model.Subscriber, page int) (*reconcile.Page[Entry], error) {
	if page < 1 || page > len(rssLists) {
		return &reconcile.Page[Entry]{}, nil
	}
	list := rssLists[page-1]

	feedURL := fmt.Sprintf("%s/rss.php?type=%s&u=%s", c.baseURL, list.rssType, url.QueryEscape(sub.Name))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("リクエスト作成に失敗: %w", err)
	}
	req.Header.Set("Accept", "application/rss+xml, application/xml, text/xml, */*")

	body, err := c.requester.Do(req)
	if err != nil {
		return nil, err
	}

	feed, err := gofeed.NewParser().ParseString(string(body))
	if err != nil {
		return nil, &model.FetchError{Kind: model.FetchErrorMalformed, Service: model.ServiceMAL, URL: feedURL, Err: err}
	}

	entries := make([]Entry, 0, len(feed.Items))
	for _, item := range feed.Items {
		entries = append(entries, Entry{Item: item, MediaType: list.mediaType})
	}
	sortNewestFirst(entries)

	c.logger.Debug("RSSを取得しました",
		slog.String("subscriber", sub.Name),
		slog.String("list", string(list.mediaType)),
		slog.Int("item_count", len(entries)),
	)

	return &reconcile.Page[Entry]{
		Items:            entries,
		HasMore:          page < len(rssLists),
		NextStartsStream: true,
	}, nil
}

// sortNewestFirst は公開日時の新しい順に安定ソートする。日時の無いアイテムは末尾に並べる。
func sortNewestFirst(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i].Item.PublishedParsed, entries[j].Item.PublishedParsed
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		}
		return a.After(*b)
	})
}

// UserExists はプロフィールページの有無でユーザーの存在を確認する。
func (c *Client) UserExists(ctx context.Context, username string) (bool, error) {
	profileURL := c.baseURL + "/profile/" + url.PathEscape(username)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, profileURL, nil)
	if err != nil {
		return false, fmt.Errorf("リクエスト作成に失敗: %w", err)
	}

	if _, err := c.requester.Do(req); err != nil {
		if upstream.IsNotFound(err) {
			return false, nil
		}
		c.logger.Warn("プロフィールの確認に失敗しました",
			slog.String("username", username),
			slog.String("error", err.Error()),
		)
		return false, err
	}
	return true, nil
}
