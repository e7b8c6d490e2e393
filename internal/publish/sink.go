// Package publish は永続化済みのFeedを購読者の通知先チャンネルへ配信する。
package publish

import (
	"context"
	"log/slog"

	"github.com/hitoshi/myanimebot/internal/model"
)

// ChannelLister は購読者の通知先チャンネルを返す。
type ChannelLister interface {
	ChannelsForSubscriber(ctx context.Context, svc model.Service, username string) ([]string, error)
}

// Deliverer はFeedを描画して1チャンネルへ送信する。
type Deliverer interface {
	Deliver(ctx context.Context, channelID string, feed *model.Feed) error
}

// DeliveryMetrics は配信結果の記録先。
type DeliveryMetrics interface {
	RecordDelivery(result string)
}

// Sink は1件のFeedを全通知先チャンネルへ配信する。
// 配信はチャンネルごとに独立しており、失敗は記録するだけで再送しない。
type Sink struct {
	channels  ChannelLister
	deliverer Deliverer
	metrics   DeliveryMetrics
	logger    *slog.Logger
}

// NewSink はSinkを生成する。
func NewSink(channels ChannelLister, deliverer Deliverer, metrics DeliveryMetrics, logger *slog.Logger) *Sink {
	return &Sink{
		channels:  channels,
		deliverer: deliverer,
		metrics:   metrics,
		logger:    logger,
	}
}

// Publish はFeedを購読者の全通知先チャンネルへ配信する。
func (s *Sink) Publish(ctx context.Context, feed *model.Feed) {
	channels, err := s.channels.ChannelsForSubscriber(ctx, feed.Service, feed.SubscriberName())
	if err != nil {
		s.logger.Error("通知先チャンネルの取得に失敗しました",
			slog.String("service", string(feed.Service)),
			slog.String("subscriber", feed.SubscriberName()),
			slog.String("feed_id", feed.ID),
			slog.String("error", err.Error()),
		)
		s.metrics.RecordDelivery("failure")
		return
	}

	seen := make(map[string]struct{}, len(channels))
	for _, channelID := range channels {
		if _, ok := seen[channelID]; ok {
			continue
		}
		seen[channelID] = struct{}{}

		if err := s.deliverer.Deliver(ctx, channelID, feed); err != nil {
			s.logger.Warn("チャンネルへの配信に失敗しました",
				slog.String("service", string(feed.Service)),
				slog.String("subscriber", feed.SubscriberName()),
				slog.String("channel_id", channelID),
				slog.String("title", feed.Media.Name),
				slog.String("error", err.Error()),
			)
			s.metrics.RecordDelivery("failure")
			continue
		}
		s.metrics.RecordDelivery("success")
	}

	s.logger.Info("Feedを配信しました",
		slog.String("service", string(feed.Service)),
		slog.String("subscriber", feed.SubscriberName()),
		slog.String("title", feed.Media.Name),
		slog.String("status", string(feed.Status)),
		slog.Int("channels", len(seen)),
	)
}
