// Package thumbnail は作品ページからサムネイル画像のURLを解決する。
package thumbnail

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html/charset"

	"github.com/hitoshi/myanimebot/internal/model"
	"github.com/hitoshi/myanimebot/internal/security"
)

// maxPageSize は作品ページの最大読み取りサイズ（2MB）。
const maxPageSize = 2 * 1024 * 1024

// DefaultTimeout はサムネイル解決のタイムアウト。
const DefaultTimeout = 5 * time.Second

// imageSelector はMyAnimeListの作品ページでメイン画像を指すセレクタ。
const imageSelector = "img[itemprop=image]"

// Resolver は作品ページのHTMLからサムネイルURLを取り出す。
// AniListはGraphQL応答にカバー画像を含むため、MyAnimeListのみが対象。
type Resolver struct {
	guard     security.URLGuard
	timeout   time.Duration
	userAgent string
	logger    *slog.Logger
}

// NewResolver はResolverを生成する。
func NewResolver(guard security.URLGuard, timeout time.Duration, userAgent string, logger *slog.Logger) *Resolver {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Resolver{
		guard:     guard,
		timeout:   timeout,
		userAgent: userAgent,
		logger:    logger,
	}
}

// Resolve は作品ページのURLからサムネイルURLを返す。見つからない場合は空文字。
func (r *Resolver) Resolve(ctx context.Context, svc model.Service, mediaURL string) (string, error) {
	if svc != model.ServiceMAL || mediaURL == "" {
		return "", nil
	}
	if err := r.guard.ValidateURL(mediaURL); err != nil {
		return "", fmt.Errorf("作品URLの検証に失敗しました: %w", err)
	}

	resp, err := r.get(ctx, http.MethodGet, mediaURL)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &model.FetchError{Kind: model.FetchErrorHTTP, StatusCode: resp.StatusCode, Service: svc, URL: mediaURL}
	}

	body, err := charset.NewReader(io.LimitReader(resp.Body, maxPageSize), resp.Header.Get("Content-Type"))
	if err != nil {
		return "", &model.FetchError{Kind: model.FetchErrorMalformed, Service: svc, URL: mediaURL, Err: err}
	}
	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return "", &model.FetchError{Kind: model.FetchErrorMalformed, Service: svc, URL: mediaURL, Err: err}
	}

	img := doc.Find(imageSelector).First()
	// 遅延読み込みの場合は data-src に実URLが入る
	for _, attr := range []string{"data-src", "src"} {
		if v, ok := img.Attr(attr); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v), nil
		}
	}

	r.logger.Debug("サムネイルが見つかりませんでした", slog.String("url", mediaURL))
	return "", nil
}

// Check はサムネイルURLが現在も取得可能かどうかを返す。
func (r *Resolver) Check(ctx context.Context, thumbnailURL string) bool {
	if thumbnailURL == "" {
		return false
	}
	if err := r.guard.ValidateURL(thumbnailURL); err != nil {
		return false
	}

	resp, err := r.get(ctx, http.MethodHead, thumbnailURL)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

func (r *Resolver) get(ctx context.Context, method, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("リクエスト作成に失敗: %w", err)
	}
	if r.userAgent != "" {
		req.Header.Set("User-Agent", r.userAgent)
	}

	resp, err := r.guard.NewSafeClient(r.timeout).Do(req)
	if err != nil {
		return nil, &model.FetchError{Kind: model.FetchErrorTransport, Service: model.ServiceMAL, URL: rawURL, Err: err}
	}
	return resp, nil
}
