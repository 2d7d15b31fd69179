package ingestion

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"tourist-safety-engine/internal/domain"
)

// WSConfig configures the websocket feed client.
type WSConfig struct {
	ReconnectDelay    time.Duration // initial delay before a reconnect attempt
	MaxReconnectDelay time.Duration // cap for exponential backoff
	ReadTimeout       time.Duration // a silent connection is dropped after this
	PingInterval      time.Duration
	WriteTimeout      time.Duration
	Header            http.Header // extra handshake headers, e.g. Authorization
}

// DefaultWSConfig returns default websocket configuration.
func DefaultWSConfig() WSConfig {
	return WSConfig{
		ReconnectDelay:    time.Second,
		MaxReconnectDelay: 30 * time.Second,
		ReadTimeout:       60 * time.Second,
		PingInterval:      20 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
}

// WSSource reads JSON samples from a websocket feed. Each text message holds
// one sample or an array of samples. The connection is re-dialled with
// exponential backoff until ctx is cancelled.
type WSSource struct {
	endpoint string
	config   WSConfig
	logger   *zap.Logger
	dialer   websocket.Dialer

	connected atomic.Bool
}

// NewWSSource creates a websocket source. The first dial happens in Subscribe.
func NewWSSource(endpoint string, cfg *WSConfig, logger *zap.Logger) *WSSource {
	c := DefaultWSConfig()
	if cfg != nil {
		c = *cfg
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WSSource{
		endpoint: endpoint,
		config:   c,
		logger:   logger.With(zap.String("source", "ws")),
		dialer:   websocket.Dialer{HandshakeTimeout: 10 * time.Second},
	}
}

// Name implements Source.
func (s *WSSource) Name() string { return "ws" }

// Connected reports whether a connection is currently open.
func (s *WSSource) Connected() bool { return s.connected.Load() }

// Subscribe dials the feed and streams decoded samples. The initial dial
// must succeed; later failures are retried.
func (s *WSSource) Subscribe(ctx context.Context) (<-chan *domain.MovementSample, error) {
	conn, err := s.dial(ctx)
	if err != nil {
		return nil, err
	}

	out := make(chan *domain.MovementSample, 256)
	go func() {
		defer close(out)

		delay := s.config.ReconnectDelay
		for {
			if conn != nil {
				s.read(ctx, conn, out)
				conn = nil
				if ctx.Err() != nil {
					return
				}
				delay = s.config.ReconnectDelay
			}

			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}

			c, err := s.dial(ctx)
			if err != nil {
				s.logger.Warn("reconnect failed", zap.Duration("retry_in", delay), zap.Error(err))
				delay *= 2
				if delay > s.config.MaxReconnectDelay {
					delay = s.config.MaxReconnectDelay
				}
				continue
			}
			s.logger.Info("reconnected")
			conn = c
		}
	}()

	return out, nil
}

func (s *WSSource) dial(ctx context.Context) (*websocket.Conn, error) {
	conn, _, err := s.dialer.DialContext(ctx, s.endpoint, s.config.Header)
	if err != nil {
		return nil, fmt.Errorf("websocket dial: %w", err)
	}
	s.connected.Store(true)
	return conn, nil
}

// read pumps messages until the connection fails or ctx is cancelled.
func (s *WSSource) read(ctx context.Context, conn *websocket.Conn, out chan<- *domain.MovementSample) {
	defer func() {
		s.connected.Store(false)
		conn.Close()
	}()

	// Unblock ReadMessage on cancellation and keep the link alive.
	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(s.config.PingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(s.config.WriteTimeout))
				conn.Close()
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.config.WriteTimeout)); err != nil {
					s.logger.Debug("ping failed", zap.Error(err))
				}
			}
		}
	}()

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
	})

	for {
		conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
		msgType, payload, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				s.logger.Warn("read failed", zap.Error(err))
			}
			return
		}
		if msgType != websocket.TextMessage && msgType != websocket.BinaryMessage {
			continue
		}

		samples, err := DecodeSamples(payload)
		if err != nil {
			s.logger.Warn("undecodable message", zap.Error(err))
			continue
		}
		for _, sample := range samples {
			select {
			case out <- sample:
			case <-ctx.Done():
				return
			}
		}
	}
}
