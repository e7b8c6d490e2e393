// Package status は上流サービスの進捗文字列を解析する。
package status

import (
	"strings"

	"github.com/hitoshi/myanimebot/internal/model"
)

// Parse は "<Label> - <progress> of <total> <unit>" 形式の文字列を解析し、
// 状態・進捗・総数を返す。
//
// ラベルと残りは最後の "-" で分割する。ラベル自体にハイフンを含む
// "On-Hold" や "Re-Watching" も、数値部分との区切りが最後の "-" になる。
func Parse(raw string) (model.Status, string, string, error) {
	idx := strings.LastIndex(raw, "-")
	if idx < 0 {
		return "", "", "", &model.ParseError{Kind: model.ParseErrorNoDelimiter, Raw: raw}
	}
	label := strings.TrimSpace(raw[:idx])
	rest := strings.TrimSpace(raw[idx+1:])

	ofIdx := strings.Index(rest, "of")
	if ofIdx < 0 {
		return "", "", "", &model.ParseError{Kind: model.ParseErrorNoDelimiter, Raw: raw}
	}
	progress := strings.TrimSpace(rest[:ofIdx])
	remainder := strings.TrimSpace(rest[ofIdx+len("of"):])

	sp := strings.Index(remainder, " ")
	if sp < 0 {
		return "", "", "", &model.ParseError{Kind: model.ParseErrorNoUnit, Raw: raw}
	}
	total := remainder[:sp]

	st, err := model.ParseStatusLabel(label)
	if err != nil {
		if pe, ok := err.(*model.ParseError); ok {
			pe.Raw = raw
		}
		return "", "", "", err
	}
	return st, progress, total, nil
}

// activityPrefixes はAniListのアクティビティ状態（"watched episode" など）の前方一致表。
var activityPrefixes = []struct {
	prefix string
	status model.Status
}{
	{"REREAD", model.StatusRepeating},
	{"REWATCHED", model.StatusRepeating},
	{"READ", model.StatusCurrent},
	{"WATCHED", model.StatusCurrent},
	{"PLANS", model.StatusPlanning},
	{"COMPLETED", model.StatusCompleted},
	{"DROPPED", model.StatusDropped},
	{"PAUSED", model.StatusPaused},
}

// ParseActivity はAniListのアクティビティ状態キーワードをStatusに変換する。
// 前方一致表に無い場合はラベル語彙表で判定する。
func ParseActivity(keyword string) (model.Status, error) {
	upper := strings.ToUpper(strings.TrimSpace(keyword))
	for _, p := range activityPrefixes {
		if strings.HasPrefix(upper, p.prefix) {
			return p.status, nil
		}
	}
	return model.ParseStatusLabel(keyword)
}
