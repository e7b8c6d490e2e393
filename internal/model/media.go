package model

import (
	"fmt"
	"strings"
	"time"
)

// MediaType はアニメ・マンガの区別を表す。
type MediaType string

const (
	MediaTypeAnime MediaType = "ANIME"
	MediaTypeManga MediaType = "MANGA"
)

var mediaTypeVocabulary = map[string]MediaType{
	"ANIME":      MediaTypeAnime,
	"ANIME_LIST": MediaTypeAnime,
	"MANGA":      MediaTypeManga,
	"MANGA_LIST": MediaTypeManga,
}

// ParseMediaType は文字列をMediaTypeに変換する。大文字小文字は区別しない。
func ParseMediaType(s string) (MediaType, error) {
	mt, ok := mediaTypeVocabulary[strings.ToUpper(strings.TrimSpace(s))]
	if !ok {
		return "", fmt.Errorf("未知のメディア種別です: %s", s)
	}
	return mt, nil
}

// CountUnit は進捗の単位（episodes / chapters）を返す。
func (m MediaType) CountUnit() string {
	if m == MediaTypeManga {
		return "chapters"
	}
	return "episodes"
}

// UnknownCount は話数・章数が不明な場合の値。
const UnknownCount = "?"

// Media は作品の参照を表す。URLがサービス内で一意なキーとなる。
type Media struct {
	Service    Service
	URL        string
	Name       string
	Type       MediaType
	Episodes   string
	Thumbnail  string
	Discoverer string
	FoundAt    time.Time
}
