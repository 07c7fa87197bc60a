package forward

import (
	"context"
	"sync"
	"testing"
	"time"

	"go_bridge/internal/bridge/media"
	"go_bridge/internal/bridge/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMediaGroupBatcherSortsAndFlushesOnce(t *testing.T) {
	var (
		mu      sync.Mutex
		flushes [][]*models.UnifiedMessage
	)
	batcher := NewMediaGroupBatcher(30*time.Millisecond, func(messages []*models.UnifiedMessage, pair *models.ForwardPair) {
		mu.Lock()
		flushes = append(flushes, messages)
		mu.Unlock()
	})
	pair := &models.ForwardPair{SideARoomID: 100, SideBChatID: 200}

	for _, id := range []int64{12, 10, 11} {
		batcher.Add(photoFromB(200, id, "g1"), pair)
		time.Sleep(5 * time.Millisecond)
	}
	batcher.Add(photoFromB(200, 20, "g2"), pair)
	assert.Equal(t, 2, batcher.Pending())

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(flushes) == 2
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	var g1 []*models.UnifiedMessage
	for _, f := range flushes {
		if f[0].Metadata.MediaGroupID == "g1" {
			g1 = f
		}
	}
	require.Len(t, g1, 3)
	assert.Equal(t, []int64{10, 11, 12}, []int64{g1[0].ID, g1[1].ID, g1[2].ID})
	assert.Equal(t, 0, batcher.Pending())
}

func TestMediaGroupBatcherDestroyStopsTimers(t *testing.T) {
	flushed := make(chan struct{}, 1)
	batcher := NewMediaGroupBatcher(20*time.Millisecond, func([]*models.UnifiedMessage, *models.ForwardPair) {
		flushed <- struct{}{}
	})

	batcher.Add(photoFromB(200, 1, "g1"), &models.ForwardPair{})
	batcher.Destroy()
	batcher.Add(photoFromB(200, 2, "g1"), &models.ForwardPair{})

	select {
	case <-flushed:
		t.Fatalf("destroyed batcher must not flush")
	case <-time.After(80 * time.Millisecond):
	}
	assert.Equal(t, 0, batcher.Pending())
}

func TestPipelineMediaGroupSingleDispatch(t *testing.T) {
	ctx := context.Background()
	cfg := defaultConfig()
	cfg.MediaGroupDebounce = 50 * time.Millisecond
	h, err := newHarness(cfg, nil)
	require.NoError(t, err)
	defer h.pipeline.Destroy()

	_, err = h.registry.Bind(ctx, 100, 200, nil)
	require.NoError(t, err)

	first := photoFromB(200, 3, "g1")
	first.Content = append(first.Content, &models.Text{Text: "trip"})

	// 到达顺序与原生 ID 顺序不同，全部在 200ms 内到达
	for _, msg := range []*models.UnifiedMessage{first, photoFromB(200, 1, "g1"), photoFromB(200, 2, "g1")} {
		assert.Equal(t, OutcomeBatched, h.pipeline.Process(ctx, msg))
		time.Sleep(10 * time.Millisecond)
	}

	require.Eventually(t, func() bool { return len(h.sideA.snapshot()) == 1 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(100 * time.Millisecond)

	calls := h.sideA.snapshot()
	require.Len(t, calls, 1, "exactly one destination dispatch")
	require.Len(t, calls[0].Album, 3)
	for i, item := range calls[0].Album {
		assert.Equal(t, []byte{byte(i + 1)}, item.MediaRef().Data, "album item %d out of order", i)
	}
	assert.Equal(t, "trip", calls[0].Opts.Caption)
	assert.Equal(t, int64(100), calls[0].Dest.ChatID)

	require.Equal(t, 1, h.correlations.count())
	src := h.store.FindSourceOfDestination(ctx, 1, 200, 3)
	require.NotNil(t, src, "correlation anchored to the last message of the group")
	assert.Equal(t, int64(5000), src.Seq)
}

func TestNormalizeGroupKeepsDegradedPlaceholders(t *testing.T) {
	ctx := context.Background()
	h, err := newHarness(defaultConfig(), nil)
	require.NoError(t, err)

	expired := func(id int64) *models.UnifiedMessage {
		msg := photoFromB(200, id, "g1")
		msg.Content = []models.Segment{&models.Image{Media: models.Media{Handle: "expired"}}}
		return msg
	}

	tests := []struct {
		name     string
		messages func() []*models.UnifiedMessage
		caption  string
		items    int
	}{
		{
			name: "failed item after caption",
			messages: func() []*models.UnifiedMessage {
				first := photoFromB(200, 1, "g1")
				first.Content = append(first.Content, &models.Text{Text: "trip"})
				return []*models.UnifiedMessage{first, expired(2), photoFromB(200, 3, "g1")}
			},
			caption: "trip [Image]",
			items:   2,
		},
		{
			name: "caption from a later message",
			messages: func() []*models.UnifiedMessage {
				second := photoFromB(200, 2, "g1")
				second.Content = append(second.Content, &models.Text{Text: "real caption"})
				return []*models.UnifiedMessage{expired(1), second}
			},
			caption: "real caption [Image]",
			items:   1,
		},
		{
			name: "every item failed",
			messages: func() []*models.UnifiedMessage {
				return []*models.UnifiedMessage{expired(1), expired(2)}
			},
			caption: "[Image] [Image]",
			items:   0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scope := media.NewScope(t.TempDir())
			defer scope.Cleanup()

			caption, items := h.pipeline.normalizeAll(ctx, tt.messages(), models.DirectionBToA, scope)
			assert.Equal(t, tt.caption, caption)
			assert.Len(t, items, tt.items)
		})
	}
}
