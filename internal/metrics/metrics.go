// Package metrics exposes Prometheus counters for the sync core.
package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var (
	MessagesIngested = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "console_messages_ingested_total",
			Help: "Messages applied to the cache, by source.",
		},
		[]string{"source"},
	)
	SendsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "console_sends_total",
			Help: "Optimistic send attempts, by outcome.",
		},
		[]string{"result"},
	)
	ReconnectsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "console_reconnects_total",
			Help: "Live-channel reconnect attempts.",
		},
	)
	TypingEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "console_typing_events_total",
			Help: "Typing intents and remote typing events, by direction.",
		},
		[]string{"direction"},
	)
	NotificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "console_notifications_total",
			Help: "Notification cue deliveries, by mode.",
		},
		[]string{"mode"},
	)
)

func init() {
	prometheus.MustRegister(
		MessagesIngested,
		SendsTotal,
		ReconnectsTotal,
		TypingEventsTotal,
		NotificationsTotal,
	)
}

// Server serves /metrics on a dedicated listener.
type Server struct {
	srv    *http.Server
	logger *zap.Logger
}

// NewServer creates a metrics server bound to addr. A nil server (for
// an empty addr) is valid and all its methods are no-ops.
func NewServer(addr string, logger *zap.Logger) *Server {
	if addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return &Server{
		srv:    &http.Server{Addr: addr, Handler: mux},
		logger: logger,
	}
}

// Start begins serving in a background goroutine.
func (s *Server) Start() {
	if s == nil {
		return
	}
	go func() {
		ln, err := net.Listen("tcp", s.srv.Addr)
		if err != nil {
			s.logger.Warn("metrics listener failed", zap.Error(err))
			return
		}
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Warn("metrics server error", zap.Error(err))
		}
	}()
}

// Stop shuts the listener down.
func (s *Server) Stop(ctx context.Context) {
	if s == nil {
		return
	}
	_ = s.srv.Shutdown(ctx)
}
