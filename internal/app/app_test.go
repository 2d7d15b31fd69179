package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tourist-safety-engine/internal/config"
	"tourist-safety-engine/internal/domain"
)

func fortZone() *domain.ZoneDefinition {
	return &domain.ZoneDefinition{
		ZoneID: "cantonment",
		Name:   "Cantonment",
		Kind:   domain.ZoneKindRestricted,
		Polygon: []domain.Vertex{
			{Latitude: 10.0, Longitude: 10.0},
			{Latitude: 10.0, Longitude: 10.01},
			{Latitude: 10.01, Longitude: 10.01},
			{Latitude: 10.01, Longitude: 10.0},
		},
		Rating: 5,
		Active: true,
	}
}

func build(t *testing.T, cfg *config.Config) *Service {
	t.Helper()
	ctx := context.Background()
	stores, cleanup, err := OpenStores(ctx, cfg.Storage, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(cleanup)

	svc, err := New(ctx, cfg, stores, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(svc.Close)
	return svc
}

func TestOpenStores_UnknownBackend(t *testing.T) {
	_, _, err := OpenStores(context.Background(), config.StorageConfig{Backend: "cassandra"}, nil)
	require.Error(t, err)
}

func TestService_RestrictedZoneRaisesStoredAlert(t *testing.T) {
	for _, backend := range []string{config.BackendMemory, config.BackendSQLite} {
		t.Run(backend, func(t *testing.T) {
			cfg := config.Default()
			cfg.Storage.Backend = backend
			cfg.Storage.SQLitePath = filepath.Join(t.TempDir(), "safety.db")
			svc := build(t, cfg)
			ctx := context.Background()

			require.NoError(t, svc.Stores.Zones.Upsert(ctx, fortZone()))
			snap, err := svc.Reloader.Reload(ctx)
			require.NoError(t, err)
			assert.Equal(t, 1, snap.Len())

			res, err := svc.Engine.Assess(ctx, &domain.MovementSample{
				EntityID:    "tourist-7",
				Latitude:    10.005,
				Longitude:   10.005,
				TimestampMs: 1700000000000,
			})
			require.NoError(t, err)
			assert.Equal(t, domain.VerdictRestricted, res.Assessment.SubScores.Geofence.Kind)
			require.NotEmpty(t, res.Intents)

			open, err := svc.Stores.Alerts.ListOpen(ctx, "tourist-7")
			require.NoError(t, err)
			require.Len(t, open, len(res.Intents))

			latest, err := svc.Stores.Assessments.GetLatest(ctx, "tourist-7")
			require.NoError(t, err)
			assert.Equal(t, res.Assessment.AssessmentID, latest.AssessmentID)
		})
	}
}

func TestService_RedisRegistryDeduplicates(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := config.Default()
	cfg.Redis.Addr = mr.Addr()
	svc := build(t, cfg)
	ctx := context.Background()

	require.NoError(t, svc.Stores.Zones.Upsert(ctx, fortZone()))
	_, err := svc.Reloader.Reload(ctx)
	require.NoError(t, err)

	var geofence int
	for i := 0; i < 3; i++ {
		res, err := svc.Engine.Assess(ctx, &domain.MovementSample{
			EntityID:    "tourist-8",
			Latitude:    10.005,
			Longitude:   10.005,
			TimestampMs: 1700000000000 + int64(i)*60_000,
		})
		require.NoError(t, err)
		for _, in := range res.Intents {
			if in.Type == domain.AlertGeofence {
				geofence++
			}
		}
	}
	assert.Equal(t, 1, geofence)
	assert.NotEmpty(t, mr.Keys())
}

func TestService_RedisUnreachable(t *testing.T) {
	cfg := config.Default()
	cfg.Redis.Addr = "127.0.0.1:1"
	stores, cleanup, err := OpenStores(context.Background(), cfg.Storage, nil)
	require.NoError(t, err)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err = New(ctx, cfg, stores, nil)
	require.Error(t, err)
}

func TestService_RouterServesHealth(t *testing.T) {
	svc := build(t, config.Default())
	_, err := svc.Reloader.Reload(context.Background())
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	svc.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestService_Sources(t *testing.T) {
	cfg := config.Default()
	svc := build(t, cfg)
	assert.Empty(t, svc.Sources())

	cfg.Ingestion.WSURL = "ws://localhost:9/feed"
	cfg.Ingestion.MQTTBroker = "tcp://localhost:1883"
	names := map[string]bool{}
	for _, src := range svc.Sources() {
		names[src.Name()] = true
	}
	assert.Equal(t, map[string]bool{"ws": true, "mqtt": true}, names)
}

func TestService_EvictIdlePrunesHistory(t *testing.T) {
	svc := build(t, config.Default())
	ctx := context.Background()

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	_, err := svc.Engine.Assess(ctx, &domain.MovementSample{
		EntityID: "old", Latitude: 1, Longitude: 1, TimestampMs: base.UnixMilli(),
	})
	require.NoError(t, err)

	svc.EvictIdle(base.Add(30 * 24 * time.Hour))

	recs, err := svc.Stores.Features.GetSince(ctx, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, recs)
}
