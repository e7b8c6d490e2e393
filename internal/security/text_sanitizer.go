package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizer は上流から受け取った自由文からマークアップを取り除く。
// 作品名や説明文はそのままDiscordの埋め込みに載るため、タグを残さない。
type TextSanitizer interface {
	Clean(s string) string
}

type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はbluemondayのStrictPolicyでTextSanitizerを生成する。
func NewTextSanitizer() *textSanitizer {
	return &textSanitizer{policy: bluemonday.StrictPolicy()}
}

// Clean は全てのタグを除去し、エスケープされた実体参照を元に戻して返す。
func (s *textSanitizer) Clean(raw string) string {
	if raw == "" {
		return ""
	}
	return strings.TrimSpace(html.UnescapeString(s.policy.Sanitize(raw)))
}
