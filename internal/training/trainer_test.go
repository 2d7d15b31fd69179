package training

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tourist-safety-engine/internal/anomaly"
	"tourist-safety-engine/internal/domain"
	"tourist-safety-engine/internal/engine"
	"tourist-safety-engine/internal/sequence"
	"tourist-safety-engine/internal/storage/memory"
)

type holder struct {
	mu    sync.Mutex
	m     engine.Models
	swaps int
}

func (h *holder) Models() engine.Models {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.m
}

func (h *holder) SetModels(m engine.Models) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.m = m
	h.swaps++
}

func newHolder() *holder {
	return &holder{m: engine.Models{
		Point:    anomaly.NewIsolationForest(anomaly.IsolationForestParams{}),
		Sequence: sequence.NewPCAAutoencoder(sequence.AutoencoderParams{}),
	}}
}

// walkHistory simulates entities strolling at 60-90 m/min.
func walkHistory(entities, perEntity int, startMs int64) []domain.FeatureRecord {
	rng := rand.New(rand.NewSource(7))
	var out []domain.FeatureRecord
	for e := 0; e < entities; e++ {
		id := string(rune('a' + e))
		for i := 0; i < perEntity; i++ {
			out = append(out, domain.FeatureRecord{
				EntityID: id,
				FeatureVector: domain.FeatureVector{
					TimestampMs:        startMs + int64(i)*60_000,
					DistancePerMinute:  60 + rng.Float64()*30,
					InactivityDuration: rng.Float64(),
					RouteDeviation:     rng.Float64() * 20,
					Speed:              1 + rng.Float64()*0.5,
				},
			})
		}
	}
	return out
}

func TestTrainer_TrainSwapsFittedModels(t *testing.T) {
	ctx := context.Background()
	now := time.UnixMilli(1_700_000_000_000)

	store := memory.NewFeatureStore()
	require.NoError(t, store.InsertBulk(ctx, walkHistory(4, 40, now.Add(-time.Hour).UnixMilli())))

	h := newHolder()
	tr := NewTrainer(DefaultConfig(), store, h, nil)
	tr.now = func() time.Time { return now }

	rep, err := tr.Train(ctx)
	require.NoError(t, err)

	assert.Equal(t, 160, rep.Records)
	assert.Equal(t, 4*(40-10+1), rep.Windows)
	assert.ElementsMatch(t, []string{anomaly.TypeIsolationForest, sequence.TypePCAAutoencoder}, rep.Swapped)
	assert.True(t, rep.Point.Ready)
	assert.True(t, rep.Sequence.Ready)
	assert.Equal(t, 1, h.swaps)
	assert.True(t, h.Models().Point.Ready())
	assert.True(t, h.Models().Sequence.Ready())
}

func TestTrainer_LookbackExcludesOldHistory(t *testing.T) {
	ctx := context.Background()
	now := time.UnixMilli(1_700_000_000_000)

	store := memory.NewFeatureStore()
	require.NoError(t, store.InsertBulk(ctx, walkHistory(2, 20, now.Add(-48*time.Hour).UnixMilli())))

	h := newHolder()
	cfg := DefaultConfig()
	cfg.Lookback = 24 * time.Hour
	tr := NewTrainer(cfg, store, h, nil)
	tr.now = func() time.Time { return now }

	_, err := tr.Train(ctx)
	assert.ErrorIs(t, err, ErrNoData)
	assert.Zero(t, h.swaps)
}

func TestTrainer_PartialFitKeepsPreviousModel(t *testing.T) {
	h := newHolder()
	prevSeq := h.Models().Sequence
	tr := NewTrainer(DefaultConfig(), memory.NewFeatureStore(), h, nil)

	// Too short for any 10-sample window
	rep, err := tr.Fit(context.Background(), walkHistory(3, 5, 1_700_000_000_000))
	require.NoError(t, err)

	assert.Equal(t, []string{anomaly.TypeIsolationForest}, rep.Swapped)
	assert.True(t, h.Models().Point.Ready())
	assert.Same(t, prevSeq, h.Models().Sequence)
}

func TestTrainer_NothingFitted(t *testing.T) {
	h := newHolder()
	tr := NewTrainer(DefaultConfig(), memory.NewFeatureStore(), h, nil)

	_, err := tr.Fit(context.Background(), walkHistory(1, 1, 1_700_000_000_000))
	require.Error(t, err)
	assert.True(t, errors.Is(err, anomaly.ErrInsufficientData))
	assert.Zero(t, h.swaps)
}

func TestTrainer_UnknownModelType(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Point.Type = "neural_net"
	tr := NewTrainer(cfg, memory.NewFeatureStore(), newHolder(), nil)

	_, err := tr.Fit(context.Background(), walkHistory(1, 3, 1_700_000_000_000))
	assert.ErrorIs(t, err, anomaly.ErrUnknownModel)
}
