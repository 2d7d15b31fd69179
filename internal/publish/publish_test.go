package publish

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tourist-safety-engine/internal/alerting"
	"tourist-safety-engine/internal/domain"
)

func intent(id, entity string, sev domain.AlertSeverity) domain.AlertIntent {
	return domain.AlertIntent{
		IntentID:    id,
		EntityID:    entity,
		Type:        domain.AlertGeofence,
		Severity:    sev,
		Message:     "entered restricted zone",
		CreatedAtMs: 1700000000000,
	}
}

type fakeWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaSink_KeysByEntity(t *testing.T) {
	w := &fakeWriter{}
	sink := newKafkaSink(w, "safety.intents", zap.NewNop())

	err := sink.Publish(context.Background(), []domain.AlertIntent{
		intent("i1", "tourist-1", domain.AlertSeverityHigh),
		intent("i2", "tourist-2", domain.AlertSeverityCritical),
	})
	require.NoError(t, err)
	require.Len(t, w.msgs, 2)

	assert.Equal(t, "tourist-1", string(w.msgs[0].Key))
	assert.Equal(t, "tourist-2", string(w.msgs[1].Key))
	assert.Equal(t, time.UnixMilli(1700000000000), w.msgs[0].Time)

	var got domain.AlertIntent
	require.NoError(t, json.Unmarshal(w.msgs[1].Value, &got))
	assert.Equal(t, "i2", got.IntentID)
	assert.Equal(t, domain.AlertSeverityCritical, got.Severity)

	require.NoError(t, sink.Close())
	assert.True(t, w.closed)
}

func TestKafkaSink_EmptyBatch(t *testing.T) {
	w := &fakeWriter{err: errors.New("must not be called")}
	sink := newKafkaSink(w, "t", nil)
	require.NoError(t, sink.Publish(context.Background(), nil))
}

func TestKafkaSink_WriteError(t *testing.T) {
	w := &fakeWriter{err: errors.New("leader not available")}
	sink := newKafkaSink(w, "t", nil)
	err := sink.Publish(context.Background(), []domain.AlertIntent{intent("i1", "e", domain.AlertSeverityLow)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "leader not available")
}

func TestNewKafkaSink_Validation(t *testing.T) {
	_, err := NewKafkaSink(nil, "t", nil)
	assert.Error(t, err)
	_, err = NewKafkaSink([]string{"localhost:9092"}, "", nil)
	assert.Error(t, err)

	sink, err := NewKafkaSink([]string{"localhost:9092"}, "t", nil)
	require.NoError(t, err)
	assert.Equal(t, "kafka", sink.Name())
}

func TestWebhookSink_FiltersBySeverity(t *testing.T) {
	var (
		mu    sync.Mutex
		calls int32
		body  webhookPayload
		auth  string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		mu.Lock()
		auth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&body)
		mu.Unlock()
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	sink, err := NewWebhookSink(WebhookConfig{URL: srv.URL, Token: "secret"}, zap.NewNop())
	require.NoError(t, err)

	err = sink.Publish(context.Background(), []domain.AlertIntent{
		intent("low", "e1", domain.AlertSeverityLow),
		intent("high", "e1", domain.AlertSeverityHigh),
		intent("crit", "e1", domain.AlertSeverityCritical),
	})
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Equal(t, "Bearer secret", auth)
	require.Len(t, body.Intents, 2)
	assert.Equal(t, "high", body.Intents[0].IntentID)
	assert.Equal(t, "crit", body.Intents[1].IntentID)
}

func TestWebhookSink_NothingQualifies(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer srv.Close()

	sink, err := NewWebhookSink(WebhookConfig{URL: srv.URL, MinLevel: domain.AlertSeverityCritical}, nil)
	require.NoError(t, err)

	err = sink.Publish(context.Background(), []domain.AlertIntent{intent("i", "e", domain.AlertSeverityHigh)})
	require.NoError(t, err)
	assert.Zero(t, atomic.LoadInt32(&calls))
}

func TestWebhookSink_RetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sink, err := NewWebhookSink(WebhookConfig{URL: srv.URL, Retries: 3}, nil)
	require.NoError(t, err)

	err = sink.Publish(context.Background(), []domain.AlertIntent{intent("i", "e", domain.AlertSeverityCritical)})
	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestWebhookSink_ClientError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad token", http.StatusUnauthorized)
	}))
	defer srv.Close()

	sink, err := NewWebhookSink(WebhookConfig{URL: srv.URL, Retries: -1}, nil)
	require.NoError(t, err)

	err = sink.Publish(context.Background(), []domain.AlertIntent{intent("i", "e", domain.AlertSeverityCritical)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestNewWebhookSink_Validation(t *testing.T) {
	_, err := NewWebhookSink(WebhookConfig{}, nil)
	assert.Error(t, err)
	_, err = NewWebhookSink(WebhookConfig{URL: "http://x", MinLevel: "URGENT"}, nil)
	assert.Error(t, err)
}

func TestSeverityRank(t *testing.T) {
	tests := []struct {
		sev  domain.AlertSeverity
		want int
	}{
		{domain.AlertSeverityLow, 1},
		{domain.AlertSeverityMedium, 2},
		{domain.AlertSeverityHigh, 3},
		{domain.AlertSeverityCritical, 4},
		{"", 0},
	}
	for _, tt := range tests {
		if got := SeverityRank(tt.sev); got != tt.want {
			t.Errorf("SeverityRank(%q) = %d, want %d", tt.sev, got, tt.want)
		}
	}
}

type recordingSink struct {
	got [][]domain.AlertIntent
	err error
}

func (r *recordingSink) Publish(_ context.Context, intents []domain.AlertIntent) error {
	r.got = append(r.got, intents)
	return r.err
}

func TestFanout_DeliversToAllDespiteFailure(t *testing.T) {
	first := &recordingSink{err: errors.New("store down")}
	second := &recordingSink{}
	f := NewFanout(zap.NewNop(), WithName("store", first), nil, WithName("kafka", second))
	assert.Equal(t, 2, f.Len())

	batch := []domain.AlertIntent{intent("i1", "e", domain.AlertSeverityHigh)}
	err := f.Publish(context.Background(), batch)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store: store down")

	assert.Len(t, first.got, 1)
	require.Len(t, second.got, 1)
	assert.Equal(t, "i1", second.got[0][0].IntentID)
}

func TestFanout_EmptyBatchSkipsSinks(t *testing.T) {
	s := &recordingSink{}
	f := NewFanout(nil, WithName("s", s))
	require.NoError(t, f.Publish(context.Background(), nil))
	assert.Empty(t, s.got)
}

func TestFanout_DownstreamFailureAfterRecordIsIncomplete(t *testing.T) {
	store := &recordingSink{}
	kafka := &recordingSink{err: errors.New("broker unreachable")}
	f := NewFanout(nil, AsRecord(WithName("alert_store", store)), WithName("kafka", kafka))

	err := f.Publish(context.Background(), []domain.AlertIntent{intent("i1", "e", domain.AlertSeverityHigh)})
	require.Error(t, err)
	assert.ErrorIs(t, err, alerting.ErrDeliveryIncomplete)
	assert.Len(t, store.got, 1)
}

func TestFanout_RecordFailureIsNotIncomplete(t *testing.T) {
	store := &recordingSink{err: errors.New("store down")}
	kafka := &recordingSink{}
	f := NewFanout(nil, AsRecord(WithName("alert_store", store)), WithName("kafka", kafka))

	err := f.Publish(context.Background(), []domain.AlertIntent{intent("i1", "e", domain.AlertSeverityHigh)})
	require.Error(t, err)
	assert.NotErrorIs(t, err, alerting.ErrDeliveryIncomplete)
	assert.Len(t, kafka.got, 1)
}
