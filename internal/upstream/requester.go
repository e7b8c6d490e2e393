package upstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/hitoshi/myanimebot/internal/model"
)

// DefaultMaxBodySize はレスポンスボディの最大読み取りサイズ（5MB）。
const DefaultMaxBodySize int64 = 5 * 1024 * 1024

// Requester は上流へのリクエストをサーキットブレーカー越しに実行し、
// 失敗を model.FetchError に正規化する。
type Requester struct {
	HTTPClient  *http.Client
	Breaker     *gobreaker.CircuitBreaker[[]byte]
	Service     model.Service
	UserAgent   string
	MaxBodySize int64
}

// Do はリクエストを送信し、2xxの場合のみボディを返す。
func (r *Requester) Do(req *http.Request) ([]byte, error) {
	if r.UserAgent != "" {
		req.Header.Set("User-Agent", r.UserAgent)
	}

	body, err := r.Breaker.Execute(func() ([]byte, error) {
		return r.send(req)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, &model.FetchError{Kind: model.FetchErrorTransport, Service: r.Service, URL: req.URL.String(), Err: err}
		}
		return nil, err
	}
	return body, nil
}

func (r *Requester) send(req *http.Request) ([]byte, error) {
	resp, err := r.HTTPClient.Do(req)
	if err != nil {
		return nil, ClassifyTransportError(r.Service, req.URL.String(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// 接続を再利用できるよう読み捨てる
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))
		return nil, &model.FetchError{
			Kind:       model.FetchErrorHTTP,
			StatusCode: resp.StatusCode,
			Service:    r.Service,
			URL:        req.URL.String(),
		}
	}

	limit := r.MaxBodySize
	if limit <= 0 {
		limit = DefaultMaxBodySize
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		return nil, ClassifyTransportError(r.Service, req.URL.String(), fmt.Errorf("レスポンスの読み取りに失敗しました: %w", err))
	}
	return body, nil
}

// ClassifyTransportError は通信エラーをTimeoutとTransportに分類する。
func ClassifyTransportError(svc model.Service, url string, err error) *model.FetchError {
	kind := model.FetchErrorTransport
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		kind = model.FetchErrorTimeout
	}
	return &model.FetchError{Kind: kind, Service: svc, URL: url, Err: err}
}

// IsNotFound はエラーがHTTP 404のFetchErrorかどうかを返す。
func IsNotFound(err error) bool {
	var fe *model.FetchError
	return errors.As(err, &fe) && fe.Kind == model.FetchErrorHTTP && fe.StatusCode == http.StatusNotFound
}
