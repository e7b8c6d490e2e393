package command

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/myanimebot/internal/model"
)

func TestRouter_Match(t *testing.T) {
	env := newTestEnv()

	args, ok := env.router.Match("  !mab add mal Pentou ")
	if !ok {
		t.Fatal("接頭辞で始まるメッセージはコマンドとして扱うべき")
	}
	if strings.Join(args, "|") != "add|mal|Pentou" {
		t.Errorf("args = %v", args)
	}

	for _, content := range []string{"", "hello", "!mabadd", "add !mab"} {
		if _, ok := env.router.Match(content); ok {
			t.Errorf("Match(%q) はコマンドとして扱うべきではない", content)
		}
	}
}

func TestRouter_Handle_UnknownCommand(t *testing.T) {
	env := newTestEnv()

	if reply := env.router.Handle(context.Background(), request()); reply != nil {
		t.Errorf("コマンド名が無い場合は返信しないべき: %+v", reply)
	}
	if reply := env.router.Handle(context.Background(), request("dance")); reply != nil {
		t.Errorf("未知のコマンドには返信しないべき: %+v", reply)
	}
	if len(env.metrics.commands) != 0 {
		t.Errorf("未知のコマンドはメトリクスに記録しないべき: %v", env.metrics.commands)
	}
}

func TestRouter_Handle_RateLimited(t *testing.T) {
	env := newTestEnv()
	env.limiter.allow = false

	reply := env.router.Handle(context.Background(), request("ping"))
	if reply == nil || reply.Text != "Too many commands, please slow down." {
		t.Fatalf("レート制限時の返信が不正: %+v", reply)
	}
	if env.limiter.keys[0] != "author-1" {
		t.Errorf("送信者IDでレート制限すべき: %v", env.limiter.keys)
	}
	if len(env.metrics.commands) != 0 {
		t.Error("拒否したコマンドはメトリクスに記録しないべき")
	}
}

func TestRouter_Handle_InternalError(t *testing.T) {
	env := newTestEnv()
	env.servers.findErr = errors.New("connection refused")

	reply := env.router.Handle(context.Background(), request("here"))
	if reply == nil || reply.Text != "Unable to reply to your request at the moment..." {
		t.Fatalf("内部エラー時の返信が不正: %+v", reply)
	}
	if !strings.Contains(env.logs.String(), "connection refused") {
		t.Errorf("内部エラーはログに記録すべき: %s", env.logs.String())
	}
}

func TestRouter_Ping(t *testing.T) {
	env := newTestEnv()
	req := request("ping")
	req.SentAt = fixedNow.Add(-42 * time.Millisecond)

	reply := env.router.Handle(context.Background(), req)
	if reply.Text != "pong (42ms)" {
		t.Errorf("Text = %q", reply.Text)
	}
	if env.metrics.commands[0] != "ping" {
		t.Errorf("コマンドがメトリクスに記録されていません: %v", env.metrics.commands)
	}
}

func TestRouter_Permissions(t *testing.T) {
	restricted := &model.Server{ID: "srv-1", ChannelID: "ch-9", AdminRoleID: "role-mod"}

	t.Run("ロール未所持は拒否", func(t *testing.T) {
		env := newTestEnv(restricted)
		reply := env.router.Handle(context.Background(), request("here"))
		if reply.Text != "Only allowed users can use this command!" {
			t.Errorf("Text = %q", reply.Text)
		}
		if len(env.servers.updated) != 0 {
			t.Error("拒否時は更新しないべき")
		}
	})

	t.Run("ロール所持者は許可", func(t *testing.T) {
		env := newTestEnv(restricted)
		req := request("here")
		req.AuthorRoles = []string{"role-other", "role-mod"}
		reply := env.router.Handle(context.Background(), req)
		if reply.Text != "Channel updated to: **feeds**." {
			t.Errorf("Text = %q", reply.Text)
		}
	})

	t.Run("管理者は常に許可", func(t *testing.T) {
		env := newTestEnv(restricted)
		req := request("stop")
		req.IsAdmin = true
		reply := env.router.Handle(context.Background(), req)
		if reply.Text != "Server **Anime Club** is now unregistered from our database." {
			t.Errorf("Text = %q", reply.Text)
		}
	})
}

func TestRouter_Here(t *testing.T) {
	t.Run("未登録サーバーを登録", func(t *testing.T) {
		env := newTestEnv()
		reply := env.router.Handle(context.Background(), request("here"))
		if reply.Text != "Channel **feeds** configured for **Anime Club**." {
			t.Errorf("Text = %q", reply.Text)
		}
		if len(env.servers.created) != 1 || env.servers.created[0].ChannelID != "ch-1" {
			t.Errorf("サーバーが登録されていません: %+v", env.servers.created)
		}
		if !env.servers.created[0].CreatedAt.Equal(fixedNow) {
			t.Errorf("CreatedAt = %v", env.servers.created[0].CreatedAt)
		}
	})

	t.Run("同じチャンネル", func(t *testing.T) {
		env := newTestEnv(&model.Server{ID: "srv-1", ChannelID: "ch-1"})
		reply := env.router.Handle(context.Background(), request("here"))
		if reply.Text != "Channel **feeds** already in use for this server." {
			t.Errorf("Text = %q", reply.Text)
		}
	})

	t.Run("別のチャンネルに変更", func(t *testing.T) {
		env := newTestEnv(&model.Server{ID: "srv-1", ChannelID: "ch-0"})
		env.router.Handle(context.Background(), request("here"))
		if env.servers.updated["srv-1"] != "ch-1" {
			t.Errorf("チャンネルが更新されていません: %v", env.servers.updated)
		}
	})
}

func TestRouter_Stop(t *testing.T) {
	env := newTestEnv()

	reply := env.router.Handle(context.Background(), request("stop"))
	if reply.Text != "Server **Anime Club** was already not registered." {
		t.Errorf("Text = %q", reply.Text)
	}

	reply = env.router.Handle(context.Background(), request("stop", "now"))
	if !strings.HasPrefix(reply.Text, "Too many arguments!") {
		t.Errorf("Text = %q", reply.Text)
	}
}

func TestRouter_Add(t *testing.T) {
	t.Run("AniListユーザーを数値ID付きで登録", func(t *testing.T) {
		env := newTestEnv()
		var got *model.Subscriber
		env.subs.subscribeFn = func(ctx context.Context, sub *model.Subscriber, serverID string) (bool, error) {
			got = sub
			if serverID != "srv-1" {
				t.Errorf("serverID = %q", serverID)
			}
			return true, nil
		}

		reply := env.router.Handle(context.Background(), request("add", "ani", "Pentou"))
		if reply.Text != "**Pentou** added to the database for the server **Anime Club**." {
			t.Errorf("Text = %q", reply.Text)
		}
		if got == nil || got.Service != model.ServiceAniList || got.ServiceUserID != 42 {
			t.Errorf("登録内容が不正: %+v", got)
		}
	})

	t.Run("登録済み", func(t *testing.T) {
		env := newTestEnv()
		env.subs.subscribeFn = func(ctx context.Context, sub *model.Subscriber, serverID string) (bool, error) {
			return false, nil
		}
		reply := env.router.Handle(context.Background(), request("add", "MAL", "Pentou"))
		if reply.Text != "User **Pentou** is already registered in our database for this server!" {
			t.Errorf("Text = %q", reply.Text)
		}
	})

	tests := []struct {
		name  string
		args  []string
		setup func(env *testEnv)
		want  string
	}{
		{
			name: "引数不足",
			args: []string{"add", "mal"},
			want: "Usage: !mab add **mal**/**ani** **username**",
		},
		{
			name: "引数過多",
			args: []string{"add", "mal", "a", "b"},
			want: "Too many arguments! You have to specify only one username.",
		},
		{
			name: "不明なサービス",
			args: []string{"add", "kitsu", "Pentou"},
			want: `Incorrect service kitsu. Use **"mal"** or **"ani"** for example`,
		},
		{
			name: "長すぎるユーザー名",
			args: []string{"add", "mal", strings.Repeat("a", MaxUsernameLength+1)},
			want: "Username too long!",
		},
		{
			name:  "MALに存在しない",
			args:  []string{"add", "mal", "Ghost"},
			setup: func(env *testEnv) { env.mal.exists = false },
			want:  "User **Ghost** doesn't exist on MyAnimeList!",
		},
		{
			name:  "AniListの確認に失敗",
			args:  []string{"add", "ani", "Pentou"},
			setup: func(env *testEnv) { env.anilist.err = errors.New("HTTP 500") },
			want:  "An error occured when we checked this username on AniList, maybe the website is down?",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv()
			env.subs.subscribeFn = func(ctx context.Context, sub *model.Subscriber, serverID string) (bool, error) {
				t.Error("検証に失敗した場合は登録しないべき")
				return false, nil
			}
			if tt.setup != nil {
				tt.setup(env)
			}
			reply := env.router.Handle(context.Background(), request(tt.args...))
			if reply.Text != tt.want {
				t.Errorf("Text = %q, want %q", reply.Text, tt.want)
			}
		})
	}

	t.Run("登録に失敗", func(t *testing.T) {
		env := newTestEnv()
		env.subs.subscribeFn = func(ctx context.Context, sub *model.Subscriber, serverID string) (bool, error) {
			return false, errors.New("disk full")
		}
		reply := env.router.Handle(context.Background(), request("add", "mal", "Pentou"))
		if reply.Text != "An unknown error occured while adding this user, the error has been logged." {
			t.Errorf("Text = %q", reply.Text)
		}
	})
}

func TestRouter_Delete(t *testing.T) {
	env := newTestEnv()
	registered := map[string]bool{"Pentou": true}
	env.subs.unsubscribeFn = func(ctx context.Context, svc model.Service, name, serverID string) (bool, error) {
		if svc != model.ServiceMAL {
			t.Errorf("svc = %q", svc)
		}
		ok := registered[name]
		delete(registered, name)
		return ok, nil
	}

	reply := env.router.Handle(context.Background(), request("delete", "mal", "Pentou"))
	if reply.Text != "**Pentou** deleted from the database for this server." {
		t.Errorf("Text = %q", reply.Text)
	}
	reply = env.router.Handle(context.Background(), request("delete", "mal", "Pentou"))
	if reply.Text != "The user **Pentou** is not in our database for this server!" {
		t.Errorf("Text = %q", reply.Text)
	}
}

func TestRouter_Role(t *testing.T) {
	admin := func(args ...string) *Request {
		req := request(args...)
		req.IsAdmin = true
		return req
	}

	t.Run("管理者以外は拒否", func(t *testing.T) {
		env := newTestEnv(&model.Server{ID: "srv-1"})
		reply := env.router.Handle(context.Background(), request("role", "everyone"))
		if reply.Text != "Only server's admins can use this command." {
			t.Errorf("Text = %q", reply.Text)
		}
	})

	t.Run("everyoneで解除", func(t *testing.T) {
		env := newTestEnv(&model.Server{ID: "srv-1", AdminRoleID: "role-mod"})
		reply := env.router.Handle(context.Background(), admin("role", "@everyone"))
		if reply.Text != "Everyone is now allowed to use the bot." {
			t.Errorf("Text = %q", reply.Text)
		}
		if role, ok := env.servers.roles["srv-1"]; !ok || role != "" {
			t.Errorf("ロールが解除されていません: %v", env.servers.roles)
		}
	})

	t.Run("ロールを設定", func(t *testing.T) {
		env := newTestEnv(&model.Server{ID: "srv-1"})
		req := admin("role", "<@&123>")
		req.RoleMentions = []Role{{ID: "123", Name: "Moderator"}}
		reply := env.router.Handle(context.Background(), req)
		if reply.Text != "The role **Moderator** is now allowed to use this bot!" {
			t.Errorf("Text = %q", reply.Text)
		}
		if env.servers.roles["srv-1"] != "123" {
			t.Errorf("roles = %v", env.servers.roles)
		}
	})

	t.Run("メンション数が不正", func(t *testing.T) {
		env := newTestEnv(&model.Server{ID: "srv-1"})
		reply := env.router.Handle(context.Background(), admin("role", "mods"))
		if reply.Text != "Please specify a correct role." {
			t.Errorf("Text = %q", reply.Text)
		}

		req := admin("role", "<@&1>", "<@&2>")
		req.RoleMentions = []Role{{ID: "1"}, {ID: "2"}}
		reply = env.router.Handle(context.Background(), req)
		if reply.Text != "Please specify only 1 role." {
			t.Errorf("Text = %q", reply.Text)
		}
	})

	t.Run("未登録サーバー", func(t *testing.T) {
		env := newTestEnv()
		reply := env.router.Handle(context.Background(), admin("role", "everyone"))
		if reply.Text != "The server **Anime Club** is not in our database." {
			t.Errorf("Text = %q", reply.Text)
		}
	})
}

func TestRouter_Info(t *testing.T) {
	server := &model.Server{ID: "srv-1", ChannelID: "ch-7", AdminRoleID: "55"}
	subs := []*model.Subscriber{
		{Service: model.ServiceMAL, Name: "Pentou"},
		{Service: model.ServiceAniList, Name: "lulu"},
		{Service: model.ServiceMAL, Name: "Penta"},
	}

	t.Run("全サービス", func(t *testing.T) {
		env := newTestEnv(server)
		env.subs.listByServer = subs
		reply := env.router.Handle(context.Background(), request("info"))
		want := "Registered user(s) on **Anime Club**\n\n" +
			"**MyAnimeList** users:\n```Pentou, Penta```\n" +
			"**AniList** users:\n```lulu```\n" +
			"Assigned channel : **chan-ch-7**\n" +
			"Allowed role: **role-55**"
		if reply.Text != want {
			t.Errorf("Text = %q, want %q", reply.Text, want)
		}
	})

	t.Run("サービスで絞り込み", func(t *testing.T) {
		env := newTestEnv(server)
		env.subs.listByServer = subs
		reply := env.router.Handle(context.Background(), request("info", "ani,bogus"))
		if strings.Contains(reply.Text, "MyAnimeList") || !strings.Contains(reply.Text, "```lulu```") {
			t.Errorf("絞り込みが効いていません: %q", reply.Text)
		}
	})

	t.Run("未登録サーバー", func(t *testing.T) {
		env := newTestEnv()
		reply := env.router.Handle(context.Background(), request("info"))
		if reply.Text != "The server **Anime Club** is not in our database." {
			t.Errorf("Text = %q", reply.Text)
		}
	})

	t.Run("チャンネル未設定", func(t *testing.T) {
		env := newTestEnv(&model.Server{ID: "srv-1"})
		reply := env.router.Handle(context.Background(), request("info"))
		if reply.Text != "No channel assigned for this bot on this server." {
			t.Errorf("Text = %q", reply.Text)
		}
	})

	t.Run("購読者なし", func(t *testing.T) {
		env := newTestEnv(server)
		reply := env.router.Handle(context.Background(), request("info"))
		if reply.Text != "No users registered on this server. Try to add one." {
			t.Errorf("Text = %q", reply.Text)
		}
	})
}

func TestRouter_Top(t *testing.T) {
	t.Run("全体統計", func(t *testing.T) {
		env := newTestEnv()
		env.stats.top = []model.TopEntry{{Name: "Pentou", Count: 12}, {Name: "lulu", Count: 3}}
		env.stats.feeds = 15
		env.stats.media = 9

		reply := env.router.Handle(context.Background(), request("top"))
		want := "**__Here is the global statistics of this bot:__**\n\n" +
			" - Pentou: 12\n - lulu: 3\n" +
			"\n***Total user entry***: 15" +
			"\n***Total unique manga/anime***: 9"
		if reply.Text != want {
			t.Errorf("Text = %q, want %q", reply.Text, want)
		}
		if env.stats.lastLimit != topLimit {
			t.Errorf("limit = %d, want %d", env.stats.lastLimit, topLimit)
		}
	})

	t.Run("統計なし", func(t *testing.T) {
		env := newTestEnv()
		reply := env.router.Handle(context.Background(), request("top"))
		if reply.Text != "It seems that there is no statistics... (what happened?!)" {
			t.Errorf("Text = %q", reply.Text)
		}
	})

	t.Run("キーワード", func(t *testing.T) {
		env := newTestEnv()
		env.stats.byKeyword = []model.TopEntry{{Name: "Pentou", Count: 2}}
		reply := env.router.Handle(context.Background(), request("top", "one", "piece"))
		if env.stats.keyword != "one piece" {
			t.Errorf("keyword = %q", env.stats.keyword)
		}
		if reply.Text != "**__Here is the statistics for the keyword one piece:__**\n\n - Pentou: 2\n" {
			t.Errorf("Text = %q", reply.Text)
		}
	})

	t.Run("キーワードの統計なし", func(t *testing.T) {
		env := newTestEnv()
		reply := env.router.Handle(context.Background(), request("top", "zzz"))
		if reply.Text != "It seems that there is no statistics for the keyword **zzz**." {
			t.Errorf("Text = %q", reply.Text)
		}
	})

	t.Run("取得失敗", func(t *testing.T) {
		env := newTestEnv()
		env.stats.err = errors.New("timeout")
		reply := env.router.Handle(context.Background(), request("top"))
		if reply.Text != "Unable to reply to your request at the moment..." {
			t.Errorf("Text = %q", reply.Text)
		}
	})
}

func TestRouter_AboutAndHelp(t *testing.T) {
	env := newTestEnv()

	about := env.router.Handle(context.Background(), request("about"))
	if about.Card == nil {
		t.Fatal("about は埋め込みで返信すべき")
	}
	if about.Card.Title != "MyAnimeBot version 2.0.0 by Penta & lulu" {
		t.Errorf("Title = %q", about.Card.Title)
	}
	if !strings.Contains(about.Card.Description, "**!mab help**") {
		t.Errorf("Description に help の案内が含まれていません: %q", about.Card.Description)
	}
	if about.Card.Thumbnail != "https://example.com/bot.png" {
		t.Errorf("Thumbnail = %q", about.Card.Thumbnail)
	}

	help := env.router.Handle(context.Background(), request("HELP"))
	if help.Card == nil || len(help.Card.Fields) != len(helpFields) {
		t.Fatalf("help の返信が不正: %+v", help)
	}
	if help.Card.Colour != cardColour {
		t.Errorf("Colour = %#x", help.Card.Colour)
	}
}
