package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mmcdole/gofeed"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"newsmarket/internal/config"
	"newsmarket/internal/db"
	"newsmarket/internal/models"
	"newsmarket/internal/repository"
)

// maxSeenKeys bounds the persisted dedup state per feed; oldest keys are
// dropped first.
const maxSeenKeys = 2000

// NewsSink receives each newly ingested article.
type NewsSink func(ctx context.Context, item models.NewsItem)

type feedParser interface {
	ParseURLWithContext(url string, ctx context.Context) (*gofeed.Feed, error)
}

// Poller reads the configured RSS feeds on an interval, deduplicates
// entries against persisted per-feed state, and hands new articles to the
// sink. A failing feed is logged and retried next tick.
type Poller struct {
	Repo   repository.Repository
	Logger *zap.Logger
	Sink   NewsSink

	parser       feedParser
	feeds        []config.FeedSource
	pollInterval time.Duration
	maxItems     int
}

func NewPoller(repo repository.Repository, cfg config.NewsFeedConfig, sink NewsSink, logger *zap.Logger) *Poller {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Poller{
		Repo:         repo,
		Logger:       logger,
		Sink:         sink,
		parser:       gofeed.NewParser(),
		feeds:        cfg.Feeds,
		pollInterval: cfg.PollInterval,
		maxItems:     cfg.MaxItemsPerFeed,
	}
	if p.pollInterval <= 0 {
		p.pollInterval = 5 * time.Minute
	}
	if p.maxItems <= 0 {
		p.maxItems = 10
	}
	return p
}

func (p *Poller) Run(ctx context.Context) error {
	// First poll immediately; restarts should not wait a full interval.
	p.PollOnce(ctx)
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.PollOnce(ctx)
		}
	}
}

func (p *Poller) PollOnce(ctx context.Context) {
	for _, feed := range p.feeds {
		if ctx.Err() != nil {
			return
		}
		if err := p.pollFeed(ctx, feed); err != nil {
			p.Logger.Warn("feed poll failed",
				zap.String("source", feed.Name),
				zap.String("url", feed.URL),
				zap.Error(err),
			)
		}
	}
}

func (p *Poller) pollFeed(ctx context.Context, source config.FeedSource) error {
	feed, err := p.parser.ParseURLWithContext(source.URL, ctx)
	if err != nil {
		return fmt.Errorf("parse feed: %w", err)
	}

	seen, err := p.loadSeenKeys(ctx, source.Name)
	if err != nil {
		return err
	}
	seenSet := make(map[string]struct{}, len(seen))
	for _, k := range seen {
		seenSet[k] = struct{}{}
	}

	fresh := 0
	for i, entry := range feed.Items {
		if i >= p.maxItems {
			break
		}
		key := articleKey(entry)
		if _, ok := seenSet[key]; ok {
			continue
		}
		seenSet[key] = struct{}{}
		seen = append(seen, key)

		item := newsItemFrom(source.Name, key, entry)
		if err := p.Repo.InsertNewsItem(ctx, &item); err != nil {
			p.Logger.Error("failed to persist news item",
				zap.String("source", source.Name),
				zap.String("news_id", item.ID),
				zap.Error(err),
			)
			continue
		}
		fresh++
		if p.Sink != nil {
			p.Sink(ctx, item)
		}
	}

	if fresh > 0 {
		if err := p.saveSeenKeys(ctx, source.Name, seen); err != nil {
			return err
		}
		p.Logger.Info("feed polled",
			zap.String("source", source.Name),
			zap.Int("new_articles", fresh),
		)
	}
	return nil
}

// articleKey builds the stable dedup fingerprint of an entry.
// Priority: guid > link > title|published.
func articleKey(entry *gofeed.Item) string {
	if entry.GUID != "" {
		return "id::" + entry.GUID
	}
	if entry.Link != "" {
		return "link::" + entry.Link
	}
	return "tp::" + entry.Title + "|" + entry.Published
}

func newsItemFrom(source, key string, entry *gofeed.Item) models.NewsItem {
	publishedAt := db.NowUTC()
	if entry.PublishedParsed != nil {
		publishedAt = entry.PublishedParsed.UTC()
	}
	return models.NewsItem{
		ID:          uuid.NewSHA1(uuid.NameSpaceURL, []byte(key)).String(),
		Source:      source,
		Title:       entry.Title,
		Summary:     entry.Description,
		Link:        entry.Link,
		PublishedAt: publishedAt,
	}
}

func (p *Poller) loadSeenKeys(ctx context.Context, source string) ([]string, error) {
	state, err := p.Repo.GetFeedState(ctx, source)
	if err != nil {
		return nil, fmt.Errorf("load feed state: %w", err)
	}
	if state == nil || len(state.SeenKeys) == 0 {
		return nil, nil
	}
	var keys []string
	if err := json.Unmarshal(state.SeenKeys, &keys); err != nil {
		p.Logger.Warn("resetting corrupt feed state", zap.String("source", source), zap.Error(err))
		return nil, nil
	}
	return keys, nil
}

func (p *Poller) saveSeenKeys(ctx context.Context, source string, keys []string) error {
	if len(keys) > maxSeenKeys {
		keys = keys[len(keys)-maxSeenKeys:]
	}
	encoded, err := json.Marshal(keys)
	if err != nil {
		return fmt.Errorf("encode seen keys: %w", err)
	}
	err = p.Repo.UpsertFeedState(ctx, &models.FeedState{
		Source:   source,
		SeenKeys: datatypes.JSON(encoded),
	})
	if err != nil {
		return fmt.Errorf("save feed state: %w", err)
	}
	return nil
}
