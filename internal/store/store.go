// Package store persists saved scene exports behind an explicit port. The
// orchestration core only sees Load and Save; storage-quota recovery lives
// inside the port implementation, never in the core.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/reelsmith/storyboard/internal/models"
)

// Port is the persistence boundary for saved items.
type Port interface {
	Load(ctx context.Context) ([]models.SavedItem, error)
	Save(ctx context.Context, items []models.SavedItem) error
}

// ---------------------------------------------------------------------------
// Redis-backed port
// ---------------------------------------------------------------------------

const savedItemsKey = "storyboard:saved_items"

// RedisStore keeps the whole saved-item sequence as one JSON value. When the
// server rejects a write for memory quota, the store evicts the oldest item
// and retries, down to zero remaining items — quota exhaustion is recovered
// here, never surfaced as a blocking error.
type RedisStore struct {
	client *redis.Client
}

var _ Port = (*RedisStore)(nil)

func NewRedisStore(redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisStore{client: client}, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) Load(ctx context.Context) ([]models.SavedItem, error) {
	data, err := s.client.Get(ctx, savedItemsKey).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load saved items: %w", err)
	}

	var items []models.SavedItem
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("failed to decode saved items: %w", err)
	}
	return items, nil
}

func (s *RedisStore) Save(ctx context.Context, items []models.SavedItem) error {
	// Oldest first so eviction can drop from the front.
	sorted := append([]models.SavedItem(nil), items...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].SavedAt.Before(sorted[j].SavedAt) })

	for {
		data, err := json.Marshal(sorted)
		if err != nil {
			return fmt.Errorf("failed to encode saved items: %w", err)
		}

		err = s.client.Set(ctx, savedItemsKey, data, 0).Err()
		if err == nil {
			return nil
		}
		if !isQuotaErr(err) {
			return fmt.Errorf("failed to save items: %w", err)
		}
		if len(sorted) == 0 {
			log.Printf("[Store] quota exhausted even with zero items, giving up quietly: %v", err)
			return nil
		}

		log.Printf("[Store] storage quota hit, evicting oldest of %d items (%s)", len(sorted), sorted[0].Key)
		sorted = sorted[1:]
	}
}

func isQuotaErr(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "oom") || strings.Contains(msg, "maxmemory")
}

// ---------------------------------------------------------------------------
// Library — the core-facing saved-items API
// ---------------------------------------------------------------------------

// Library layers the studio semantics over a Port: expiry purging on every
// load and keyed upsert on save.
type Library struct {
	port Port
	now  func() time.Time
}

func NewLibrary(port Port) *Library {
	return &Library{port: port, now: time.Now}
}

// WithNow overrides the clock for tests.
func (l *Library) WithNow(now func() time.Time) *Library {
	l.now = now
	return l
}

// Load returns the live saved items. Expired items are purged and the purge
// is persisted before returning.
func (l *Library) Load(ctx context.Context) ([]models.SavedItem, error) {
	items, err := l.port.Load(ctx)
	if err != nil {
		return nil, err
	}

	now := l.now()
	live := items[:0]
	for _, it := range items {
		if !it.Expired(now) {
			live = append(live, it)
		}
	}

	if len(live) != len(items) {
		log.Printf("[Store] purged %d expired saved items", len(items)-len(live))
		if err := l.port.Save(ctx, live); err != nil {
			return nil, err
		}
	}
	return live, nil
}

// SaveScene exports one scene + its video state + the settings snapshot
// needed to rebuild its prompt context, upserting by key.
func (l *Library) SaveScene(ctx context.Context, key string, scene models.Scene, state models.VideoState, settings models.Settings) (models.SavedItem, error) {
	items, err := l.Load(ctx)
	if err != nil {
		return models.SavedItem{}, err
	}

	now := l.now()
	item := models.SavedItem{
		Key:        key,
		Scene:      scene,
		VideoState: state,
		Settings:   settings.Clone(),
		SavedAt:    now,
		ExpiresAt:  now.Add(models.SavedItemTTL),
	}

	replaced := false
	for i := range items {
		if items[i].Key == item.Key {
			items[i] = item
			replaced = true
			break
		}
	}
	if !replaced {
		items = append(items, item)
	}

	if err := l.port.Save(ctx, items); err != nil {
		return models.SavedItem{}, err
	}
	return item, nil
}

// Delete removes one item by key. Unknown keys are a no-op.
func (l *Library) Delete(ctx context.Context, key string) error {
	items, err := l.Load(ctx)
	if err != nil {
		return err
	}
	kept := items[:0]
	for _, it := range items {
		if it.Key != key {
			kept = append(kept, it)
		}
	}
	return l.port.Save(ctx, kept)
}
