package model

import "fmt"

// FetchErrorKind は上流取得エラーの分類。
type FetchErrorKind int

const (
	FetchErrorTransport FetchErrorKind = iota
	FetchErrorTimeout
	FetchErrorHTTP
	FetchErrorMalformed
)

// String はメトリクスラベル用の名前を返す。
func (k FetchErrorKind) String() string {
	switch k {
	case FetchErrorTransport:
		return "transport"
	case FetchErrorTimeout:
		return "timeout"
	case FetchErrorHTTP:
		return "http"
	case FetchErrorMalformed:
		return "malformed"
	default:
		return "unknown"
	}
}

// FetchError は上流サービスからの取得失敗を表す。
type FetchError struct {
	Kind       FetchErrorKind
	StatusCode int // Kind が FetchErrorHTTP の場合のみ
	Service    Service
	URL        string
	Err        error
}

// Error はerrorインターフェースを実装する。
func (e *FetchError) Error() string {
	switch e.Kind {
	case FetchErrorHTTP:
		return fmt.Sprintf("%s の取得に失敗しました (%s): HTTP %d", e.Service, e.URL, e.StatusCode)
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s の取得に失敗しました (%s, %s): %v", e.Service, e.URL, e.Kind, e.Err)
		}
		return fmt.Sprintf("%s の取得に失敗しました (%s, %s)", e.Service, e.URL, e.Kind)
	}
}

func (e *FetchError) Unwrap() error { return e.Err }

// ParseErrorKind は状態文字列の解析エラーの分類。
type ParseErrorKind int

const (
	ParseErrorNoDelimiter ParseErrorKind = iota
	ParseErrorNoUnit
	ParseErrorUnknownLabel
	ParseErrorInvalidTimestamp
)

// ParseError は上流ペイロードの解析失敗を表す。
type ParseError struct {
	Kind  ParseErrorKind
	Label string // UnknownLabel の場合の不明なラベル
	Raw   string
}

// Error はerrorインターフェースを実装する。
func (e *ParseError) Error() string {
	switch e.Kind {
	case ParseErrorNoDelimiter:
		return fmt.Sprintf("区切り文字が見つかりません: %q", e.Raw)
	case ParseErrorNoUnit:
		return fmt.Sprintf("単位が見つかりません: %q", e.Raw)
	case ParseErrorUnknownLabel:
		return fmt.Sprintf("未知の状態ラベルです: %q", e.Label)
	case ParseErrorInvalidTimestamp:
		return fmt.Sprintf("日時を解析できません: %q", e.Raw)
	default:
		return fmt.Sprintf("解析に失敗しました: %q", e.Raw)
	}
}

// PersistenceError はストレージ操作の失敗を表す。
// 照合サイクル中に発生した場合はそのサイクル全体を中断する。
type PersistenceError struct {
	Op  string
	Err error
}

// Error はerrorインターフェースを実装する。
func (e *PersistenceError) Error() string {
	return fmt.Sprintf("永続化に失敗しました (%s): %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// CommandError はチャットコマンドの利用者に返すエラーを表す。
// Message はそのまま返信として送信される。
type CommandError struct {
	Code    string
	Message string
}

// Error はerrorインターフェースを実装する。
func (e *CommandError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUsage            = "USAGE"
	ErrCodeInvalidService   = "INVALID_SERVICE"
	ErrCodeUsernameTooLong  = "USERNAME_TOO_LONG"
	ErrCodeUserNotFound     = "USER_NOT_FOUND"
	ErrCodeUpstreamFailed   = "UPSTREAM_FAILED"
	ErrCodePermissionDenied = "PERMISSION_DENIED"
	ErrCodeServerNotFound   = "SERVER_NOT_FOUND"
	ErrCodeRateLimited      = "RATE_LIMITED"
	ErrCodeInternal         = "INTERNAL"
)

// NewUsageError は引数不足エラーを生成する。
func NewUsageError(usage string) *CommandError {
	return &CommandError{Code: ErrCodeUsage, Message: "Usage: " + usage}
}

// NewInvalidServiceError は不明なサービス指定エラーを生成する。
func NewInvalidServiceError(given string) *CommandError {
	return &CommandError{
		Code:    ErrCodeInvalidService,
		Message: fmt.Sprintf("Incorrect service %s. Use **\"%s\"** or **\"%s\"** for example", given, ServiceMAL, ServiceAniList),
	}
}

// NewUsernameTooLongError はユーザー名が長すぎる場合のエラーを生成する。
func NewUsernameTooLongError() *CommandError {
	return &CommandError{Code: ErrCodeUsernameTooLong, Message: "Username too long!"}
}

// NewUserNotFoundError は上流サービスにユーザーが存在しない場合のエラーを生成する。
func NewUserNotFoundError(svc Service, username string) *CommandError {
	return &CommandError{
		Code:    ErrCodeUserNotFound,
		Message: fmt.Sprintf("User **%s** doesn't exist on %s!", username, svc.DisplayName()),
	}
}

// NewUpstreamFailedError は上流サービスへの確認が失敗した場合のエラーを生成する。
func NewUpstreamFailedError(svc Service) *CommandError {
	return &CommandError{
		Code:    ErrCodeUpstreamFailed,
		Message: fmt.Sprintf("An error occured when we checked this username on %s, maybe the website is down?", svc.DisplayName()),
	}
}

// NewPermissionDeniedError は許可ロールを持たない場合のエラーを生成する。
func NewPermissionDeniedError() *CommandError {
	return &CommandError{Code: ErrCodePermissionDenied, Message: "Only allowed users can use this command!"}
}

// NewAdminOnlyError は管理者専用コマンドのエラーを生成する。
func NewAdminOnlyError() *CommandError {
	return &CommandError{Code: ErrCodePermissionDenied, Message: "Only server's admins can use this command."}
}

// NewServerNotFoundError はサーバー未登録エラーを生成する。
func NewServerNotFoundError(serverName string) *CommandError {
	return &CommandError{
		Code:    ErrCodeServerNotFound,
		Message: fmt.Sprintf("The server **%s** is not in our database.", serverName),
	}
}

// NewRateLimitedError はコマンドのレート制限超過エラーを生成する。
func NewRateLimitedError() *CommandError {
	return &CommandError{Code: ErrCodeRateLimited, Message: "Too many commands, please slow down."}
}

// NewInternalError は内部エラーを生成する。詳細はログにのみ記録する。
func NewInternalError() *CommandError {
	return &CommandError{Code: ErrCodeInternal, Message: "Unable to reply to your request at the moment..."}
}
