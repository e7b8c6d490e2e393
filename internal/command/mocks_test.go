package command

import (
	"bytes"
	"context"
	"log/slog"
	"time"

	"github.com/hitoshi/myanimebot/internal/model"
)

// mockServerRepo はServerRepositoryのテスト用モック。
type mockServerRepo struct {
	servers map[string]*model.Server

	findErr    error
	created    []*model.Server
	updated    map[string]string
	roles      map[string]string
	deletedIDs []string
}

func newMockServerRepo(servers ...*model.Server) *mockServerRepo {
	m := &mockServerRepo{
		servers: map[string]*model.Server{},
		updated: map[string]string{},
		roles:   map[string]string{},
	}
	for _, s := range servers {
		m.servers[s.ID] = s
	}
	return m
}

func (m *mockServerRepo) Find(ctx context.Context, id string) (*model.Server, error) {
	if m.findErr != nil {
		return nil, m.findErr
	}
	return m.servers[id], nil
}

func (m *mockServerRepo) Create(ctx context.Context, server *model.Server) error {
	m.created = append(m.created, server)
	m.servers[server.ID] = server
	return nil
}

func (m *mockServerRepo) UpdateChannel(ctx context.Context, id, channelID string) error {
	m.updated[id] = channelID
	return nil
}

func (m *mockServerRepo) SetAdminRole(ctx context.Context, id, roleID string) error {
	m.roles[id] = roleID
	return nil
}

func (m *mockServerRepo) Delete(ctx context.Context, id string) (bool, error) {
	if _, ok := m.servers[id]; !ok {
		return false, nil
	}
	delete(m.servers, id)
	m.deletedIDs = append(m.deletedIDs, id)
	return true, nil
}

func (m *mockServerRepo) ChannelsForSubscriber(ctx context.Context, svc model.Service, username string) ([]string, error) {
	return nil, nil
}

// mockSubscriberRepo はSubscriberRepositoryのテスト用モック。
type mockSubscriberRepo struct {
	subscribeFn   func(ctx context.Context, sub *model.Subscriber, serverID string) (bool, error)
	unsubscribeFn func(ctx context.Context, svc model.Service, name, serverID string) (bool, error)
	listByServer  []*model.Subscriber
}

func (m *mockSubscriberRepo) ListByService(ctx context.Context, svc model.Service) ([]*model.Subscriber, error) {
	return nil, nil
}

func (m *mockSubscriberRepo) ListByServer(ctx context.Context, serverID string) ([]*model.Subscriber, error) {
	return m.listByServer, nil
}

func (m *mockSubscriberRepo) FindByName(ctx context.Context, svc model.Service, name string) (*model.Subscriber, error) {
	return nil, nil
}

func (m *mockSubscriberRepo) Subscribe(ctx context.Context, sub *model.Subscriber, serverID string) (bool, error) {
	return m.subscribeFn(ctx, sub, serverID)
}

func (m *mockSubscriberRepo) Unsubscribe(ctx context.Context, svc model.Service, name, serverID string) (bool, error) {
	return m.unsubscribeFn(ctx, svc, name, serverID)
}

// mockStatsRepo はStatsRepositoryのテスト用モック。
type mockStatsRepo struct {
	top       []model.TopEntry
	byKeyword []model.TopEntry
	keyword   string
	feeds     int
	media     int
	err       error
	lastLimit int
}

func (m *mockStatsRepo) Top(ctx context.Context, limit int) ([]model.TopEntry, error) {
	m.lastLimit = limit
	return m.top, m.err
}

func (m *mockStatsRepo) TopByKeyword(ctx context.Context, keyword string, limit int) ([]model.TopEntry, error) {
	m.keyword = keyword
	m.lastLimit = limit
	return m.byKeyword, m.err
}

func (m *mockStatsRepo) Totals(ctx context.Context) (int, int, error) {
	return m.feeds, m.media, m.err
}

type mockMAL struct {
	exists bool
	err    error
}

func (m *mockMAL) UserExists(ctx context.Context, username string) (bool, error) {
	return m.exists, m.err
}

type mockAniList struct {
	exists bool
	id     int64
	err    error
}

func (m *mockAniList) UserExists(ctx context.Context, username string) (bool, int64, error) {
	return m.exists, m.id, m.err
}

type mockDirectory struct{}

func (mockDirectory) ChannelName(ctx context.Context, channelID string) string {
	return "chan-" + channelID
}

func (mockDirectory) RoleName(ctx context.Context, serverID, roleID string) string {
	return "role-" + roleID
}

type mockLimiter struct {
	allow bool
	keys  []string
}

func (m *mockLimiter) Allow(key string) bool {
	m.keys = append(m.keys, key)
	return m.allow
}

type mockMetrics struct {
	commands []string
}

func (m *mockMetrics) RecordCommand(command string) {
	m.commands = append(m.commands, command)
}

// testEnv はRouterとモック一式。
type testEnv struct {
	router  *Router
	servers *mockServerRepo
	subs    *mockSubscriberRepo
	stats   *mockStatsRepo
	mal     *mockMAL
	anilist *mockAniList
	limiter *mockLimiter
	metrics *mockMetrics
	logs    *bytes.Buffer
}

var fixedNow = time.Date(2020, 12, 19, 1, 15, 0, 0, time.UTC)

func newTestEnv(servers ...*model.Server) *testEnv {
	env := &testEnv{
		servers: newMockServerRepo(servers...),
		subs:    &mockSubscriberRepo{},
		stats:   &mockStatsRepo{},
		mal:     &mockMAL{exists: true},
		anilist: &mockAniList{exists: true, id: 42},
		limiter: &mockLimiter{allow: true},
		metrics: &mockMetrics{},
		logs:    &bytes.Buffer{},
	}
	env.router = NewRouter(Deps{
		Servers:     env.servers,
		Subscribers: env.subs,
		Stats:       env.stats,
		MAL:         env.mal,
		AniList:     env.anilist,
		Directory:   mockDirectory{},
		Limiter:     env.limiter,
		Metrics:     env.metrics,
		Logger:      slog.New(slog.NewJSONHandler(env.logs, nil)),
	}, Config{Prefix: "!mab", Version: "2.0.0", BotIcon: "https://example.com/bot.png"})
	env.router.now = func() time.Time { return fixedNow }
	return env
}

// request は一般ユーザーからのコマンドメッセージを生成する。
func request(args ...string) *Request {
	return &Request{
		ServerID:    "srv-1",
		ServerName:  "Anime Club",
		ChannelID:   "ch-1",
		ChannelName: "feeds",
		AuthorID:    "author-1",
		Args:        args,
		SentAt:      fixedNow,
	}
}
