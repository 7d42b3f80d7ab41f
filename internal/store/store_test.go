package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reelsmith/storyboard/internal/models"
)

// fakePort records everything the library asks it to persist.
type fakePort struct {
	items   []models.SavedItem
	saves   int
	loadErr error
	saveErr error
}

func (p *fakePort) Load(ctx context.Context) ([]models.SavedItem, error) {
	if p.loadErr != nil {
		return nil, p.loadErr
	}
	return append([]models.SavedItem(nil), p.items...), nil
}

func (p *fakePort) Save(ctx context.Context, items []models.SavedItem) error {
	if p.saveErr != nil {
		return p.saveErr
	}
	p.saves++
	p.items = append([]models.SavedItem(nil), items...)
	return nil
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func savedItem(key string, savedAt time.Time) models.SavedItem {
	return models.SavedItem{
		Key:       key,
		SavedAt:   savedAt,
		ExpiresAt: savedAt.Add(models.SavedItemTTL),
	}
}

func TestLoadPurgesExpiredItems(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	port := &fakePort{items: []models.SavedItem{
		savedItem("old", now.Add(-models.SavedItemTTL-time.Hour)),
		savedItem("fresh", now.Add(-time.Hour)),
	}}
	lib := NewLibrary(port).WithNow(fixedClock(now))

	items, err := lib.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "fresh", items[0].Key)

	// The purge is written back so the expired item never resurfaces.
	assert.Equal(t, 1, port.saves)
	require.Len(t, port.items, 1)
	assert.Equal(t, "fresh", port.items[0].Key)
}

func TestLoadSkipsSaveWhenNothingExpired(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	port := &fakePort{items: []models.SavedItem{savedItem("fresh", now)}}
	lib := NewLibrary(port).WithNow(fixedClock(now))

	items, err := lib.Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, items, 1)
	assert.Zero(t, port.saves)
}

func TestSaveSceneUpsertsByKey(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	port := &fakePort{}
	lib := NewLibrary(port).WithNow(fixedClock(now))

	scene := models.Scene{Prompt: "first take"}
	item, err := lib.SaveScene(context.Background(), "gen-0", scene, models.NewVideoState(), models.Settings{})
	require.NoError(t, err)
	assert.Equal(t, "gen-0", item.Key)
	assert.Equal(t, now.Add(models.SavedItemTTL), item.ExpiresAt)
	require.Len(t, port.items, 1)

	// Saving the same key again replaces the entry instead of duplicating it.
	scene.Prompt = "second take"
	_, err = lib.SaveScene(context.Background(), "gen-0", scene, models.NewVideoState(), models.Settings{})
	require.NoError(t, err)
	require.Len(t, port.items, 1)
	assert.Equal(t, "second take", port.items[0].Scene.Prompt)

	_, err = lib.SaveScene(context.Background(), "gen-1", scene, models.NewVideoState(), models.Settings{})
	require.NoError(t, err)
	assert.Len(t, port.items, 2)
}

func TestSaveSceneSnapshotsSettings(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	port := &fakePort{}
	lib := NewLibrary(port).WithNow(fixedClock(now))

	settings := models.Settings{Characters: []models.Character{{Name: "Ada", Description: "short hair"}}}
	item, err := lib.SaveScene(context.Background(), "gen-0", models.Scene{}, models.NewVideoState(), settings)
	require.NoError(t, err)

	// Mutating the caller's roster must not reach the stored snapshot.
	settings.Characters[0].Description = "changed"
	assert.Equal(t, "short hair", item.Settings.Characters[0].Description)
}

func TestDeleteRemovesByKey(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	port := &fakePort{items: []models.SavedItem{
		savedItem("keep", now),
		savedItem("drop", now),
	}}
	lib := NewLibrary(port).WithNow(fixedClock(now))

	require.NoError(t, lib.Delete(context.Background(), "drop"))
	require.Len(t, port.items, 1)
	assert.Equal(t, "keep", port.items[0].Key)

	// Unknown keys are a quiet no-op.
	require.NoError(t, lib.Delete(context.Background(), "missing"))
	assert.Len(t, port.items, 1)
}

func TestLoadPropagatesPortErrors(t *testing.T) {
	portErr := errors.New("connection refused")
	lib := NewLibrary(&fakePort{loadErr: portErr})

	_, err := lib.Load(context.Background())
	assert.ErrorIs(t, err, portErr)
}

func TestIsQuotaErr(t *testing.T) {
	assert.True(t, isQuotaErr(errors.New("OOM command not allowed when used memory > 'maxmemory'")))
	assert.True(t, isQuotaErr(errors.New("write rejected: maxmemory reached")))
	assert.False(t, isQuotaErr(errors.New("connection reset by peer")))
}
