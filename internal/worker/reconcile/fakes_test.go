package reconcile_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/hitoshi/myanimebot/internal/model"
	"github.com/hitoshi/myanimebot/internal/worker/reconcile"
)

// --- テスト用の上流アイテムとモック定義 ---

type testItem struct {
	title    string
	url      string
	status   model.Status
	progress string
	at       time.Time
	bad      bool
}

type fakeFetcher struct {
	mu    sync.Mutex
	svc   model.Service
	pages map[string][]*reconcile.Page[testItem]
	errs  map[string]error
	calls map[string][]int
}

func newFakeFetcher(svc model.Service) *fakeFetcher {
	return &fakeFetcher{
		svc:   svc,
		pages: make(map[string][]*reconcile.Page[testItem]),
		errs:  make(map[string]error),
		calls: make(map[string][]int),
	}
}

func (f *fakeFetcher) Service() model.Service { return f.svc }

func (f *fakeFetcher) FetchPage(ctx context.Context, sub *model.Subscriber, page int) (*reconcile.Page[testItem], error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[sub.Name] = append(f.calls[sub.Name], page)
	if err := f.errs[sub.Name]; err != nil {
		return nil, err
	}
	pages := f.pages[sub.Name]
	if page-1 >= len(pages) {
		return &reconcile.Page[testItem]{}, nil
	}
	return pages[page-1], nil
}

func (f *fakeFetcher) pagesFetched(name string) []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.calls[name]...)
}

type fakeBuilder struct{ svc model.Service }

func (b fakeBuilder) Build(it testItem, sub *model.Subscriber) (*model.Feed, error) {
	if it.bad {
		return nil, &model.ParseError{Kind: model.ParseErrorInvalidTimestamp, Raw: "not a date"}
	}
	return &model.Feed{
		Service:    b.svc,
		Subscriber: sub,
		Media: model.Media{
			Service:  b.svc,
			Name:     it.title,
			URL:      it.url,
			Type:     model.MediaTypeAnime,
			Episodes: "12",
		},
		Status:      it.status,
		Progress:    it.progress,
		PublishedAt: it.at,
	}, nil
}

// memFeedStore は供給停止（supersession）を含めてFeedテーブルを模倣する。
type memFeedStore struct {
	mu         sync.Mutex
	feeds      []*model.Feed
	findErr    error
	insertErr  error
	maxErr     error
	failTitle  string
	insertions int
}

func (s *memFeedStore) MaxPublishedAt(ctx context.Context, svc model.Service) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.maxErr != nil {
		return time.Time{}, s.maxErr
	}
	var latest time.Time
	for _, f := range s.feeds {
		if f.Service == svc && !f.Obsolete && f.PublishedAt.After(latest) {
			latest = f.PublishedAt
		}
	}
	return latest, nil
}

func (s *memFeedStore) FindFeed(ctx context.Context, svc model.Service, subscriber, title string, st model.Status, publishedAt time.Time) (*model.Feed, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findErr != nil {
		return nil, s.findErr
	}
	for _, f := range s.feeds {
		if !f.Obsolete && f.Service == svc && f.SubscriberName() == subscriber &&
			f.Media.Name == title && f.Status == st && f.PublishedAt.Equal(publishedAt) {
			return f, nil
		}
	}
	return nil, nil
}

func (s *memFeedStore) InsertSuperseding(ctx context.Context, feed *model.Feed) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return s.insertErr
	}
	if s.failTitle != "" && feed.Media.Name == s.failTitle {
		return errors.New("disk full")
	}
	for _, f := range s.feeds {
		if f.Service == feed.Service && f.SubscriberName() == feed.SubscriberName() && f.Media.Name == feed.Media.Name {
			f.Obsolete = true
		}
	}
	cp := *feed
	s.feeds = append(s.feeds, &cp)
	s.insertions++
	return nil
}

func (s *memFeedStore) active() []*model.Feed {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.Feed
	for _, f := range s.feeds {
		if !f.Obsolete {
			out = append(out, f)
		}
	}
	return out
}

type memMediaStore struct {
	mu    sync.Mutex
	media map[string]*model.Media
}

func newMemMediaStore() *memMediaStore {
	return &memMediaStore{media: make(map[string]*model.Media)}
}

func (s *memMediaStore) FindMedia(ctx context.Context, svc model.Service, url string) (*model.Media, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.media[string(svc)+"|"+url], nil
}

func (s *memMediaStore) CreateMedia(ctx context.Context, m *model.Media) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *m
	s.media[string(m.Service)+"|"+m.URL] = &cp
	return nil
}

type staticSubscribers []*model.Subscriber

func (s staticSubscribers) ListByService(ctx context.Context, svc model.Service) ([]*model.Subscriber, error) {
	var out []*model.Subscriber
	for _, sub := range s {
		if sub.Service == svc {
			out = append(out, sub)
		}
	}
	return out, nil
}

type countingThumbnails struct {
	mu    sync.Mutex
	calls int
}

func (c *countingThumbnails) Resolve(ctx context.Context, svc model.Service, mediaURL string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return mediaURL + "/thumb.jpg", nil
}

type recordingPublisher struct {
	mu    sync.Mutex
	feeds []*model.Feed
}

func (p *recordingPublisher) Publish(ctx context.Context, feed *model.Feed) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.feeds = append(p.feeds, feed)
}

func (p *recordingPublisher) titles() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.feeds))
	for _, f := range p.feeds {
		out = append(out, f.Media.Name)
	}
	return out
}

type noWaitPacer struct {
	mu    sync.Mutex
	waits int
}

func (p *noWaitPacer) Wait(ctx context.Context) error {
	p.mu.Lock()
	p.waits++
	p.mu.Unlock()
	return ctx.Err()
}

type nopMetrics struct{}

func (nopMetrics) RecordFetch(model.Service, string, time.Duration) {}
func (nopMetrics) RecordParseFailure(model.Service)                 {}
func (nopMetrics) RecordFeedsPublished(model.Service, int)          {}
func (nopMetrics) RecordCycle(model.Service, time.Duration)         {}

type recordingMetrics struct {
	mu        sync.Mutex
	published int
	cycles    int
}

func (*recordingMetrics) RecordFetch(model.Service, string, time.Duration) {}
func (*recordingMetrics) RecordParseFailure(model.Service)                 {}

func (m *recordingMetrics) RecordFeedsPublished(svc model.Service, count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published += count
}

func (m *recordingMetrics) RecordCycle(svc model.Service, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cycles++
}
