package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"tourist-safety-engine/internal/alerting"
	"tourist-safety-engine/internal/anomaly"
	"tourist-safety-engine/internal/api"
	"tourist-safety-engine/internal/config"
	"tourist-safety-engine/internal/domain"
	"tourist-safety-engine/internal/engine"
	"tourist-safety-engine/internal/features"
	"tourist-safety-engine/internal/ingestion"
	"tourist-safety-engine/internal/publish"
	"tourist-safety-engine/internal/scoring"
	"tourist-safety-engine/internal/sequence"
	"tourist-safety-engine/internal/training"
	"tourist-safety-engine/internal/zones"
)

// Service is the assembled engine with its reload, training and publishing
// collaborators.
type Service struct {
	Config    *config.Config
	Stores    *Stores
	Engine    *engine.Engine
	Index     *zones.Index
	Reloader  *zones.Reloader
	Trainer   *training.Trainer
	Lifecycle *alerting.Lifecycle
	Sink      *publish.Fanout

	redis   *redis.Client
	closers []func()
	logger  *zap.Logger
}

// New builds a service over stores. Redis, Kafka and the webhook are
// enabled by their configuration sections.
func New(ctx context.Context, cfg *config.Config, stores *Stores, logger *zap.Logger) (*Service, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{Config: cfg, Stores: stores, logger: logger}

	var (
		registry alerting.Registry = alerting.NewMemoryRegistry()
		ledger   scoring.BonusLedger
	)
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		s.redis = client
		s.closers = append(s.closers, func() { client.Close() })
		registry = alerting.NewRedisRegistry(client, "", cfg.Alerting.RegistryTTL)
		ledger = scoring.NewRedisBonusLedger(client, "", cfg.Scoring.BonusPeriod)
		logger.Info("redis registry and bonus ledger enabled", zap.String("addr", cfg.Redis.Addr))
	}

	s.Lifecycle = alerting.NewLifecycle(stores.Alerts, registry, logger.Named("alerts"))
	sinks := []publish.Named{publish.AsRecord(publish.WithName("alert_store", s.Lifecycle))}
	if len(cfg.Publish.KafkaBrokers) > 0 {
		k, err := publish.NewKafkaSink(cfg.Publish.KafkaBrokers, cfg.Publish.KafkaTopic, logger)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.closers = append(s.closers, func() {
			if err := k.Close(); err != nil {
				logger.Warn("kafka writer close", zap.Error(err))
			}
		})
		sinks = append(sinks, k)
	}
	if cfg.Publish.WebhookURL != "" {
		w, err := publish.NewWebhookSink(publish.WebhookConfig{
			URL:      cfg.Publish.WebhookURL,
			Token:    cfg.Publish.WebhookToken,
			Timeout:  cfg.Publish.WebhookTimeout,
			MinLevel: domain.AlertSeverity(cfg.Publish.WebhookMinLevel),
		}, logger)
		if err != nil {
			s.Close()
			return nil, err
		}
		sinks = append(sinks, w)
	}
	s.Sink = publish.NewFanout(logger, sinks...)

	point, err := anomaly.FromConfig(cfg.Training.Point)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("point model: %w", err)
	}
	seq, err := sequence.FromConfig(cfg.Training.Sequence)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("sequence model: %w", err)
	}

	s.Index = zones.NewIndex()
	eng, err := engine.New(cfg.Engine, engine.Deps{
		Extractor:   features.NewExtractor(cfg.Features),
		Zones:       s.Index,
		Scorer:      scoring.NewScorer(cfg.Scoring),
		Ledger:      ledger,
		Dispatcher:  alerting.NewDispatcher(cfg.Alerting.Config, registry, logger.Named("dispatcher")),
		Assessments: stores.Assessments,
		Features:    stores.Features,
		Sink:        s.Sink,
		Logger:      logger.Named("engine"),
	}, engine.Models{Point: point, Sequence: seq})
	if err != nil {
		s.Close()
		return nil, err
	}
	s.Engine = eng

	s.Reloader = zones.NewReloader(s.Index, stores.Zones, zones.ReloaderOptions{
		Interval: cfg.Zones.ReloadInterval,
		Logger:   logger.Named("zones"),
	})
	s.Trainer = training.NewTrainer(cfg.Training, stores.Features, eng, logger.Named("training"))
	return s, nil
}

// Router returns the HTTP API.
func (s *Service) Router() http.Handler {
	return api.NewRouter(api.Options{
		Assessor: s.Engine,
		Alerts:   s.Lifecycle,
		Reloader: s.Reloader,
		Zones:    s.Index,
		Logger:   s.logger,
	})
}

// Sources returns the live feeds enabled in the ingestion config.
func (s *Service) Sources() []ingestion.Source {
	ic := s.Config.Ingestion
	var out []ingestion.Source
	if ic.WSURL != "" {
		out = append(out, ingestion.NewWSSource(ic.WSURL, nil, s.logger))
	}
	if ic.MQTTBroker != "" {
		out = append(out, ingestion.NewMQTTSource(ingestion.MQTTConfig{
			Broker:   ic.MQTTBroker,
			ClientID: ic.MQTTClientID,
			Topic:    ic.MQTTTopic,
		}, s.logger))
	}
	return out
}

// Runner returns an ingestion runner over sources feeding the engine.
func (s *Service) Runner(sources []ingestion.Source) *ingestion.Runner {
	return ingestion.NewRunner(ingestion.RunnerOptions{
		Sources:     sources,
		Assessor:    s.Engine,
		Checkpoints: s.Stores.Checkpoints,
		ReorderLag:  s.Config.Ingestion.ReorderLag,
		MaxBuffered: s.Config.Ingestion.MaxBufferedPerEntity,
		Logger:      s.logger.Named("ingestion"),
	})
}

// EvictIdle drops in-memory state of entities idle longer than the
// configured TTL, along with in-memory feature history older than the
// training lookback.
func (s *Service) EvictIdle(now time.Time) {
	entities := s.Engine.EvictIdle(now.Add(-s.Config.Server.EntityIdleTTL).UnixMilli())
	pruned := 0
	if s.Stores.MemFeatures != nil && s.Config.Training.Lookback > 0 {
		pruned = s.Stores.MemFeatures.Prune(now.Add(-s.Config.Training.Lookback).UnixMilli())
	}
	if entities > 0 || pruned > 0 {
		s.logger.Info("idle state evicted", zap.Int("entities", entities), zap.Int("feature_records", pruned))
	}
}

// RunEviction calls EvictIdle periodically until ctx is done.
func (s *Service) RunEviction(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.EvictIdle(now)
		}
	}
}

// Close releases connections opened by New. Stores are closed by the
// cleanup returned from OpenStores.
func (s *Service) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}
