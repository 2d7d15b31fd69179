package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"tourist-safety-engine/internal/domain"
	"tourist-safety-engine/internal/features"
	"tourist-safety-engine/internal/storage"
)

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{"status": "ok"}
	if snap := s.zones.Snapshot(); snap != nil {
		resp["zones"] = map[string]any{
			"version":      snap.Version(),
			"count":        snap.Len(),
			"loaded_at_ms": snap.LoadedAtMs(),
		}
	} else {
		resp["status"] = "degraded"
		resp["zones"] = nil
	}
	if s.assessor != nil {
		ready := map[string]bool{}
		for _, st := range s.assessor.ModelStatus() {
			ready[st.Name] = st.Ready
		}
		resp["models_ready"] = ready
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) postLocation(w http.ResponseWriter, r *http.Request) {
	if s.assessor == nil {
		writeError(w, http.StatusServiceUnavailable, "assessor not configured")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer r.Body.Close()

	var sample domain.MovementSample
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(&sample); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid json: %v", err))
		return
	}

	res, err := s.assessor.Assess(r.Context(), &sample)
	if err != nil {
		s.writeErr(w, "assess", err, zap.String("entity_id", sample.EntityID))
		return
	}
	if res.Intents == nil {
		res.Intents = []domain.AlertIntent{}
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) getAssessment(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	a, err := s.assessor.Latest(r.Context(), id)
	if err != nil {
		s.writeErr(w, "latest assessment", err, zap.String("entity_id", id))
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) getExplanation(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	ex, err := s.assessor.Explain(r.Context(), id)
	if err != nil {
		s.writeErr(w, "explain", err, zap.String("entity_id", id))
		return
	}
	writeJSON(w, http.StatusOK, ex)
}

type alertAction int

const (
	actionAcknowledge alertAction = iota
	actionResolve
	actionFalseAlarm
)

func (s *Server) alertAction(action alertAction) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.alerts == nil {
			writeError(w, http.StatusServiceUnavailable, "alert store not configured")
			return
		}
		id := mux.Vars(r)["id"]
		var (
			rec *domain.AlertRecord
			err error
		)
		switch action {
		case actionAcknowledge:
			rec, err = s.alerts.Acknowledge(r.Context(), id)
		case actionResolve:
			rec, err = s.alerts.Resolve(r.Context(), id)
		case actionFalseAlarm:
			rec, err = s.alerts.MarkFalseAlarm(r.Context(), id)
		}
		if err != nil && rec == nil {
			s.writeErr(w, "alert transition", err, zap.String("intent_id", id))
			return
		}
		if err != nil {
			// Status changed but the registry slot was not released.
			s.logger.Warn("alert registry release failed", zap.String("intent_id", id), zap.Error(err))
		}
		writeJSON(w, http.StatusOK, rec)
	}
}

func (s *Server) getModels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"models": s.assessor.ModelStatus()})
}

func (s *Server) reloadZones(w http.ResponseWriter, r *http.Request) {
	if s.reloader == nil {
		writeError(w, http.StatusServiceUnavailable, "zone reloader not configured")
		return
	}
	snap, err := s.reloader.Reload(r.Context())
	if err != nil {
		s.writeErr(w, "zone reload", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"version": snap.Version(),
		"zones":   snap.Len(),
		"skipped": snap.Skipped(),
	})
}

// statusFor maps domain and storage errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidSample), errors.Is(err, storage.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, features.ErrOutOfOrder), errors.Is(err, storage.ErrInvalidTransition):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func (s *Server) writeErr(w http.ResponseWriter, op string, err error, fields ...zap.Field) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		s.logger.Error(op+" failed", append(fields, zap.Error(err))...)
		writeError(w, code, "internal error")
		return
	}
	writeError(w, code, err.Error())
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
