package observability

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewMetrics_CustomRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics("test", reg)

	m.AssessmentsTotal.WithLabelValues("CRITICAL").Inc()
	m.AssessmentsTotal.WithLabelValues("CRITICAL").Inc()
	m.AlertIntentsTotal.WithLabelValues("sos", "CRITICAL").Inc()

	if got := testutil.ToFloat64(m.AssessmentsTotal.WithLabelValues("CRITICAL")); got != 2 {
		t.Errorf("assessments_total{CRITICAL} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.AlertIntentsTotal.WithLabelValues("sos", "CRITICAL")); got != 1 {
		t.Errorf("intents_total{sos,CRITICAL} = %v, want 1", got)
	}
}

func TestRecordZoneReload(t *testing.T) {
	before := testutil.ToFloat64(DefaultMetrics.ZoneReloadErrors)

	RecordZoneReload(12, 3, nil)
	if got := testutil.ToFloat64(DefaultMetrics.ZonesLoaded); got != 12 {
		t.Errorf("zones loaded = %v, want 12", got)
	}

	RecordZoneReload(0, 0, errors.New("db down"))
	if got := testutil.ToFloat64(DefaultMetrics.ZoneReloadErrors); got != before+1 {
		t.Errorf("reload errors = %v, want %v", got, before+1)
	}
	// A failed reload leaves the loaded gauge alone
	if got := testutil.ToFloat64(DefaultMetrics.ZonesLoaded); got != 12 {
		t.Errorf("zones loaded = %v after failure, want 12", got)
	}
}

func TestRecordAssessment_DegradedFlags(t *testing.T) {
	flag := "point_model_timeout"
	before := testutil.ToFloat64(DefaultMetrics.DegradedInputs.WithLabelValues(flag))

	RecordAssessment("WARNING", 70, 0.004, []string{flag}, false)

	if got := testutil.ToFloat64(DefaultMetrics.DegradedInputs.WithLabelValues(flag)); got != before+1 {
		t.Errorf("degraded_inputs_total = %v, want %v", got, before+1)
	}
}

func TestHandler_ServesMetrics(t *testing.T) {
	UpdateModelReady("isolation_forest", true)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	if rec.Code != 200 {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "tourist_safety_models_ready") {
		t.Errorf("metrics output missing tourist_safety_models_ready")
	}
}
