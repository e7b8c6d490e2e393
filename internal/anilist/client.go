// Package anilist はAniListのGraphQL APIからリスト更新を取得する。
package anilist

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/hitoshi/myanimebot/internal/model"
	"github.com/hitoshi/myanimebot/internal/upstream"
	"github.com/hitoshi/myanimebot/internal/worker/reconcile"
)

const (
	defaultEndpoint = "https://graphql.anilist.co"
	// DefaultPageSize は1ページあたりのアクティビティ数。
	DefaultPageSize = 5
	// listActivityType はリスト更新を表す __typename。これ以外は無視する。
	listActivityType = "ListActivity"
)

const activitiesQuery = `query ($userIds: [Int], $page: Int, $perPage: Int) {
  Page(page: $page, perPage: $perPage) {
    pageInfo { hasNextPage }
    activities(userId_in: $userIds, sort: ID_DESC) {
      __typename
      ... on ListActivity {
        id
        type
        status
        progress
        isLocked
        createdAt
        user { id name }
        media {
          id
          siteUrl
          episodes
          chapters
          type
          title { romaji english native }
          coverImage { large }
        }
      }
    }
  }
}`

const userQuery = `query ($name: String) {
  User(name: $name) { id name }
}`

// Activity はAniListのListActivity。
type Activity struct {
	Typename  string  `json:"__typename"`
	ID        int64   `json:"id"`
	Type      string  `json:"type"`
	Status    string  `json:"status"`
	Progress  *string `json:"progress"`
	IsLocked  bool    `json:"isLocked"`
	CreatedAt int64   `json:"createdAt"`
	User      struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
	} `json:"user"`
	Media ActivityMedia `json:"media"`
}

// ActivityMedia はアクティビティに含まれる作品情報。
type ActivityMedia struct {
	ID         int64  `json:"id"`
	SiteURL    string `json:"siteUrl"`
	Episodes   *int   `json:"episodes"`
	Chapters   *int   `json:"chapters"`
	Type       string `json:"type"`
	Title      Title  `json:"title"`
	CoverImage struct {
		Large string `json:"large"`
	} `json:"coverImage"`
}

// Title は多言語のタイトル。
type Title struct {
	Romaji  *string `json:"romaji"`
	English *string `json:"english"`
	Native  *string `json:"native"`
}

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type graphQLError struct {
	Message string `json:"message"`
	Status  int    `json:"status"`
}

type activitiesResponse struct {
	Data struct {
		Page *struct {
			PageInfo struct {
				HasNextPage bool `json:"hasNextPage"`
			} `json:"pageInfo"`
			Activities []Activity `json:"activities"`
		} `json:"Page"`
	} `json:"data"`
	Errors []graphQLError `json:"errors"`
}

type userResponse struct {
	Data struct {
		User *struct {
			ID   int64  `json:"id"`
			Name string `json:"name"`
		} `json:"User"`
	} `json:"data"`
	Errors []graphQLError `json:"errors"`
}

// Client はAniList GraphQL APIのクライアント。
type Client struct {
	requester *upstream.Requester
	logger    *slog.Logger
	endpoint  string // テスト用にエンドポイントを差し替え可能
	pageSize  int
}

// NewClient はClientを生成する。pageSize が0以下の場合は DefaultPageSize を使用する。
func NewClient(httpClient *http.Client, userAgent string, breaker *gobreaker.CircuitBreaker[[]byte], logger *slog.Logger, pageSize int) *Client {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Client{
		requester: &upstream.Requester{
			HTTPClient: httpClient,
			Breaker:    breaker,
			Service:    model.ServiceAniList,
			UserAgent:  userAgent,
		},
		logger:   logger,
		endpoint: defaultEndpoint,
		pageSize: pageSize,
	}
}

// Service はmodel.ServiceAniListを返す。
func (c *Client) Service() model.Service {
	return model.ServiceAniList
}

// FetchPage は購読者のアクティビティを新しい順に1ページ取得する。
// ListActivity 以外のアクティビティは結果に含めない。
func (c *Client) FetchPage(ctx context.Context, sub *model.Subscriber, page int) (*reconcile.Page[Activity], error) {
	userID := sub.ServiceUserID
	if userID == 0 {
		id, err := c.UserID(ctx, sub.Name)
		if err != nil {
			return nil, err
		}
		userID = id
	}

	var resp activitiesResponse
	err := c.post(ctx, activitiesQuery, map[string]any{
		"userIds": []int64{userID},
		"page":    page,
		"perPage": c.pageSize,
	}, &resp)
	if err != nil {
		return nil, err
	}
	if resp.Data.Page == nil {
		return nil, c.malformed(fmt.Errorf("Page が含まれていません: %s", joinErrors(resp.Errors)))
	}

	activities := make([]Activity, 0, len(resp.Data.Page.Activities))
	for _, a := range resp.Data.Page.Activities {
		if a.Typename != listActivityType {
			continue
		}
		activities = append(activities, a)
	}

	return &reconcile.Page[Activity]{
		Items:   activities,
		HasMore: resp.Data.Page.PageInfo.HasNextPage,
	}, nil
}

// UserID はユーザー名から数値IDを取得する。
func (c *Client) UserID(ctx context.Context, username string) (int64, error) {
	user, err := c.lookupUser(ctx, username)
	if err != nil {
		return 0, err
	}
	if user == nil {
		return 0, &model.FetchError{Kind: model.FetchErrorHTTP, StatusCode: http.StatusNotFound, Service: model.ServiceAniList, URL: c.endpoint}
	}
	return user.ID, nil
}

// UserExists はユーザーの存在を確認し、存在する場合は数値IDも返す。
func (c *Client) UserExists(ctx context.Context, username string) (bool, int64, error) {
	user, err := c.lookupUser(ctx, username)
	if err != nil {
		return false, 0, err
	}
	if user == nil || !strings.EqualFold(user.Name, username) {
		return false, 0, nil
	}
	return true, user.ID, nil
}

type anilistUser struct {
	ID   int64
	Name string
}

// lookupUser はユーザーを検索する。存在しない場合は nil, nil を返す。
func (c *Client) lookupUser(ctx context.Context, username string) (*anilistUser, error) {
	var resp userResponse
	err := c.post(ctx, userQuery, map[string]any{"name": username}, &resp)
	if err != nil {
		if upstream.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	if resp.Data.User == nil {
		return nil, nil
	}
	return &anilistUser{ID: resp.Data.User.ID, Name: resp.Data.User.Name}, nil
}

func (c *Client) post(ctx context.Context, query string, variables map[string]any, out any) error {
	payload, err := json.Marshal(graphQLRequest{Query: query, Variables: variables})
	if err != nil {
		return fmt.Errorf("リクエストのエンコードに失敗しました: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("リクエスト作成に失敗: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	body, err := c.requester.Do(req)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(body, out); err != nil {
		return c.malformed(fmt.Errorf("レスポンスのデコードに失敗しました: %w", err))
	}
	return nil
}

func (c *Client) malformed(err error) error {
	return &model.FetchError{Kind: model.FetchErrorMalformed, Service: model.ServiceAniList, URL: c.endpoint, Err: err}
}

func joinErrors(errs []graphQLError) string {
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		msgs = append(msgs, e.Message)
	}
	return strings.Join(msgs, "; ")
}
