package publish

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/hitoshi/myanimebot/internal/model"
)

// mockChannelLister はChannelListerのテスト用モック。
type mockChannelLister struct {
	fn func(ctx context.Context, svc model.Service, username string) ([]string, error)
}

func (m *mockChannelLister) ChannelsForSubscriber(ctx context.Context, svc model.Service, username string) ([]string, error) {
	return m.fn(ctx, svc, username)
}

// mockDeliverer は送信先を記録し、failOn のチャンネルで失敗する。
type mockDeliverer struct {
	delivered []string
	failOn    map[string]bool
}

func (m *mockDeliverer) Deliver(ctx context.Context, channelID string, feed *model.Feed) error {
	if m.failOn[channelID] {
		return errors.New("Unknown Channel")
	}
	m.delivered = append(m.delivered, channelID)
	return nil
}

type countingMetrics struct {
	results map[string]int
}

func (m *countingMetrics) RecordDelivery(result string) {
	if m.results == nil {
		m.results = map[string]int{}
	}
	m.results[result]++
}

func testFeed() *model.Feed {
	return &model.Feed{
		ID:         "feed-1",
		Service:    model.ServiceAniList,
		Subscriber: &model.Subscriber{Service: model.ServiceAniList, Name: "Pentou"},
		Media:      model.Media{Name: "Naruto", Type: model.MediaTypeAnime, Episodes: "220"},
		Status:     model.StatusCurrent,
		Progress:   "4",
	}
}

func TestSink_Publish_FansOutToEveryChannel(t *testing.T) {
	var buf bytes.Buffer
	lister := &mockChannelLister{fn: func(ctx context.Context, svc model.Service, username string) ([]string, error) {
		if svc != model.ServiceAniList || username != "Pentou" {
			t.Errorf("ChannelsForSubscriber(%q, %q)", svc, username)
		}
		return []string{"chan-1", "chan-2", "chan-1"}, nil
	}}
	deliverer := &mockDeliverer{}
	metrics := &countingMetrics{}

	NewSink(lister, deliverer, metrics, slog.New(slog.NewJSONHandler(&buf, nil))).Publish(context.Background(), testFeed())

	if len(deliverer.delivered) != 2 || deliverer.delivered[0] != "chan-1" || deliverer.delivered[1] != "chan-2" {
		t.Errorf("配信先 = %v, want [chan-1 chan-2]（重複は1回のみ）", deliverer.delivered)
	}
	if metrics.results["success"] != 2 {
		t.Errorf("success = %d, want 2", metrics.results["success"])
	}
}

func TestSink_Publish_FailureDoesNotStopOtherChannels(t *testing.T) {
	var buf bytes.Buffer
	lister := &mockChannelLister{fn: func(ctx context.Context, svc model.Service, username string) ([]string, error) {
		return []string{"deleted", "chan-2"}, nil
	}}
	deliverer := &mockDeliverer{failOn: map[string]bool{"deleted": true}}
	metrics := &countingMetrics{}

	NewSink(lister, deliverer, metrics, slog.New(slog.NewJSONHandler(&buf, nil))).Publish(context.Background(), testFeed())

	if len(deliverer.delivered) != 1 || deliverer.delivered[0] != "chan-2" {
		t.Errorf("残りのチャンネルへは配信されるべき: %v", deliverer.delivered)
	}
	if metrics.results["failure"] != 1 || metrics.results["success"] != 1 {
		t.Errorf("results = %v", metrics.results)
	}
	if !strings.Contains(buf.String(), `"channel_id":"deleted"`) {
		t.Errorf("失敗したチャンネルがログに記録されるべき: %s", buf.String())
	}
}

func TestSink_Publish_ChannelLookupFailure(t *testing.T) {
	var buf bytes.Buffer
	lister := &mockChannelLister{fn: func(ctx context.Context, svc model.Service, username string) ([]string, error) {
		return nil, errors.New("database is locked")
	}}
	deliverer := &mockDeliverer{}
	metrics := &countingMetrics{}

	NewSink(lister, deliverer, metrics, slog.New(slog.NewJSONHandler(&buf, nil))).Publish(context.Background(), testFeed())

	if len(deliverer.delivered) != 0 {
		t.Error("チャンネル取得に失敗した場合は配信しない")
	}
	if !strings.Contains(buf.String(), "database is locked") {
		t.Errorf("エラーがログに記録されるべき: %s", buf.String())
	}
}
