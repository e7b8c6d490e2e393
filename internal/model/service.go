package model

import (
	"fmt"
	"strings"
)

// Service は監視対象の上流サービスを表す。
type Service string

const (
	// ServiceMAL はMyAnimeList（RSS）。
	ServiceMAL Service = "mal"
	// ServiceAniList はAniList（GraphQL）。
	ServiceAniList Service = "ani"
)

// serviceVocabulary はコマンド引数やDB値として受け付ける表記の一覧。
// キーは小文字化済み。
var serviceVocabulary = map[string]Service{
	"mal":         ServiceMAL,
	"myanimelist": ServiceMAL,
	"ani":         ServiceAniList,
	"al":          ServiceAniList,
	"anilist":     ServiceAniList,
}

// ParseService は文字列をServiceに変換する。大文字小文字は区別しない。
func ParseService(s string) (Service, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	if key == "" {
		return "", fmt.Errorf("サービス名が空です")
	}
	svc, ok := serviceVocabulary[key]
	if !ok {
		return "", fmt.Errorf("未知のサービスです: %s", s)
	}
	return svc, nil
}

// DisplayName は表示用のサービス名を返す。
func (s Service) DisplayName() string {
	switch s {
	case ServiceMAL:
		return "MyAnimeList"
	case ServiceAniList:
		return "AniList"
	default:
		return string(s)
	}
}

// ProfileURL はユーザーのプロフィールページURLを返す。
func (s Service) ProfileURL(username string) string {
	switch s {
	case ServiceMAL:
		return "https://myanimelist.net/profile/" + username
	case ServiceAniList:
		return "https://anilist.co/user/" + username
	default:
		return ""
	}
}
