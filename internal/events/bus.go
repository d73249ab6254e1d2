// Package events moves interaction and article-change events off the
// request path. Publishing returns as soon as the event is queued; a
// background consumer applies the cache invalidations each event implies.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/hoanghai1803/lumen/internal/models"
)

// Topics.
const (
	TopicInteractions = "lumen.interactions"
	TopicArticles     = "lumen.articles"
)

const defaultBuffer = 256

// Invalidator removes cache entries. *cache.Cache implements it.
type Invalidator interface {
	Invalidate(ctx context.Context, scope models.InvalidationScope) (int, error)
}

// Bus is an in-process event bus.
type Bus struct {
	pubsub *gochannel.GoChannel
	cache  Invalidator
	wg     sync.WaitGroup
}

// NewBus creates a Bus that applies invalidations to c. buffer bounds how
// many events may queue per topic before publishers block; zero selects a
// default.
func NewBus(c Invalidator, buffer int) *Bus {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	logger := watermill.NewSlogLogger(slog.Default())
	return &Bus{
		pubsub: gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: int64(buffer)}, logger),
		cache:  c,
	}
}

// PublishInteraction queues an interaction event.
func (b *Bus) PublishInteraction(_ context.Context, ev models.InteractionEvent) error {
	return b.publish(TopicInteractions, ev)
}

// PublishArticleChanged queues an article-change event.
func (b *Bus) PublishArticleChanged(_ context.Context, ev models.ArticleEvent) error {
	return b.publish(TopicArticles, ev)
}

func (b *Bus) publish(topic string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s event: %w", topic, err)
	}
	if err := b.pubsub.Publish(topic, message.NewMessage(watermill.NewUUID(), payload)); err != nil {
		return fmt.Errorf("publishing to %s: %w", topic, err)
	}
	return nil
}

// Start subscribes to both topics and applies events in the background
// until ctx is done or the bus is closed. Events published before Start
// are dropped.
func (b *Bus) Start(ctx context.Context) error {
	interactions, err := b.pubsub.Subscribe(ctx, TopicInteractions)
	if err != nil {
		return fmt.Errorf("subscribing to %s: %w", TopicInteractions, err)
	}
	articles, err := b.pubsub.Subscribe(ctx, TopicArticles)
	if err != nil {
		return fmt.Errorf("subscribing to %s: %w", TopicArticles, err)
	}

	b.wg.Add(2)
	go b.consume(interactions, func(payload []byte) ([]models.InvalidationScope, error) {
		var ev models.InteractionEvent
		if err := json.Unmarshal(payload, &ev); err != nil {
			return nil, err
		}
		return ev.Invalidations(), nil
	})
	go b.consume(articles, func(payload []byte) ([]models.InvalidationScope, error) {
		var ev models.ArticleEvent
		if err := json.Unmarshal(payload, &ev); err != nil {
			return nil, err
		}
		return ev.Invalidations(), nil
	})
	return nil
}

func (b *Bus) consume(msgs <-chan *message.Message, decode func([]byte) ([]models.InvalidationScope, error)) {
	defer b.wg.Done()
	for msg := range msgs {
		scopes, err := decode(msg.Payload)
		if err != nil {
			slog.Error("dropping undecodable event", "uuid", msg.UUID, "error", err)
			msg.Ack()
			continue
		}
		for _, s := range scopes {
			if _, err := b.cache.Invalidate(context.Background(), s); err != nil {
				slog.Warn("event invalidation failed",
					"uuid", msg.UUID, "user_id", s.UserID, "article_id", s.ArticleID, "type", s.Kind, "error", err)
			}
		}
		msg.Ack()
	}
}

// Close stops the bus and waits for in-flight events to be applied.
func (b *Bus) Close() error {
	err := b.pubsub.Close()
	b.wg.Wait()
	return err
}
