package model

import "strings"

// Status はリスト上の進捗状態を表す。
type Status string

const (
	StatusCurrent   Status = "CURRENT"
	StatusPlanning  Status = "PLANNING"
	StatusCompleted Status = "COMPLETED"
	StatusDropped   Status = "DROPPED"
	StatusPaused    Status = "PAUSED"
	StatusRepeating Status = "REPEATING"
)

// statusVocabulary はラベルの先頭語（大文字化済み）からStatusへの対応表。
var statusVocabulary = map[string]Status{
	"READ":        StatusCurrent,
	"READING":     StatusCurrent,
	"WATCHED":     StatusCurrent,
	"WATCHING":    StatusCurrent,
	"PLANS":       StatusPlanning,
	"PLAN":        StatusPlanning,
	"COMPLETED":   StatusCompleted,
	"DROPPED":     StatusDropped,
	"PAUSED":      StatusPaused,
	"ON-HOLD":     StatusPaused,
	"REREAD":      StatusRepeating,
	"REREADING":   StatusRepeating,
	"REWATCHED":   StatusRepeating,
	"REWATCHING":  StatusRepeating,
	"RE-READ":     StatusRepeating,
	"RE-READING":  StatusRepeating,
	"RE-WATCHED":  StatusRepeating,
	"RE-WATCHING": StatusRepeating,
}

// ParseStatusLabel はラベルの先頭語からStatusを判定する。
// 未知のラベルは UnknownLabel の ParseError を返す。
func ParseStatusLabel(label string) (Status, error) {
	words := strings.Fields(label)
	if len(words) == 0 {
		return "", &ParseError{Kind: ParseErrorUnknownLabel, Label: label}
	}
	st, ok := statusVocabulary[strings.ToUpper(words[0])]
	if !ok {
		return "", &ParseError{Kind: ParseErrorUnknownLabel, Label: label}
	}
	return st, nil
}

// Colour は通知の埋め込みに使う色を返す。
func (s Status) Colour() int {
	switch s {
	case StatusCurrent:
		return 0x00FF00
	case StatusPlanning:
		return 0xBFBFBF
	case StatusCompleted:
		return 0x0000FF
	case StatusDropped:
		return 0xFF0000
	case StatusPaused:
		return 0xFFFF00
	case StatusRepeating:
		return 0x008000
	default:
		return 0
	}
}

// Label はメディア種別に応じた表示ラベルを返す。
// 永続化時の重複判定にもこの値を用いる。
func (s Status) Label(mt MediaType) string {
	manga := mt == MediaTypeManga
	switch s {
	case StatusCurrent:
		if manga {
			return "Reading"
		}
		return "Watching"
	case StatusRepeating:
		if manga {
			return "Re-reading"
		}
		return "Re-watching"
	case StatusCompleted:
		return "Completed"
	case StatusPaused:
		return "Paused"
	case StatusDropped:
		return "Dropped"
	case StatusPlanning:
		if manga {
			return "Plans to read"
		}
		return "Plans to watch"
	default:
		return string(s)
	}
}
