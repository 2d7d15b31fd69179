// Package api exposes the engine over HTTP.
package api

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"tourist-safety-engine/internal/anomaly"
	"tourist-safety-engine/internal/domain"
	"tourist-safety-engine/internal/engine"
	"tourist-safety-engine/internal/observability"
	"tourist-safety-engine/internal/scoring"
	"tourist-safety-engine/internal/zones"
)

// maxBodyBytes bounds a single location report.
const maxBodyBytes = 1 << 20

// Assessor is the engine surface served over HTTP. *engine.Engine implements it.
type Assessor interface {
	Assess(ctx context.Context, s *domain.MovementSample) (*engine.Result, error)
	Latest(ctx context.Context, entityID string) (*domain.SafetyAssessment, error)
	Explain(ctx context.Context, entityID string) (scoring.Explanation, error)
	ModelStatus() []anomaly.Status
}

// Alerts changes alert status. *alerting.Lifecycle implements it.
type Alerts interface {
	Acknowledge(ctx context.Context, intentID string) (*domain.AlertRecord, error)
	Resolve(ctx context.Context, intentID string) (*domain.AlertRecord, error)
	MarkFalseAlarm(ctx context.Context, intentID string) (*domain.AlertRecord, error)
}

// ZoneReloader refreshes the zone index. *zones.Reloader implements it.
type ZoneReloader interface {
	Reload(ctx context.Context) (*zones.Snapshot, error)
}

// Options wires the handlers. Assessor is required; routes whose
// dependency is nil answer 503.
type Options struct {
	Assessor Assessor
	Alerts   Alerts
	Reloader ZoneReloader
	Zones    *zones.Index // reported by /health
	Metrics  http.Handler // default: observability.Handler()
	Logger   *zap.Logger
}

// Server holds handler dependencies.
type Server struct {
	assessor Assessor
	alerts   Alerts
	reloader ZoneReloader
	zones    *zones.Index
	logger   *zap.Logger
}

// NewRouter builds the HTTP routes.
func NewRouter(opts Options) *mux.Router {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Metrics == nil {
		opts.Metrics = observability.Handler()
	}
	s := &Server{
		assessor: opts.Assessor,
		alerts:   opts.Alerts,
		reloader: opts.Reloader,
		zones:    opts.Zones,
		logger:   opts.Logger.With(zap.String("component", "api")),
	}

	r := mux.NewRouter()
	r.HandleFunc("/health", s.health).Methods(http.MethodGet)
	r.Handle("/metrics", opts.Metrics).Methods(http.MethodGet)

	v1 := r.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/locations", s.postLocation).Methods(http.MethodPost)
	v1.HandleFunc("/entities/{id}/assessment", s.getAssessment).Methods(http.MethodGet)
	v1.HandleFunc("/entities/{id}/explain", s.getExplanation).Methods(http.MethodGet)
	v1.HandleFunc("/alerts/{id}/acknowledge", s.alertAction(actionAcknowledge)).Methods(http.MethodPost)
	v1.HandleFunc("/alerts/{id}/resolve", s.alertAction(actionResolve)).Methods(http.MethodPost)
	v1.HandleFunc("/alerts/{id}/false-alarm", s.alertAction(actionFalseAlarm)).Methods(http.MethodPost)
	v1.HandleFunc("/models", s.getModels).Methods(http.MethodGet)
	v1.HandleFunc("/zones/reload", s.reloadZones).Methods(http.MethodPost)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	return r
}
