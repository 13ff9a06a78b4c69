// Package natspub publishes conditioned samples to a NATS subject so other
// lab tooling can tap the live stream. The publisher is optional; the
// pipeline runs unchanged without it.
package natspub

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/emgstream/errors"
	"github.com/c360/emgstream/metric"
	"github.com/c360/emgstream/pkg/retry"
	"github.com/c360/emgstream/trigno"
)

// Metrics holds Prometheus metrics for the publisher
type Metrics struct {
	published     prometheus.Counter
	publishErrors prometheus.Counter
}

func newMetrics(registry *metric.Registry) *Metrics {
	if registry == nil {
		return nil
	}

	m := &Metrics{
		published: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "emgstream",
			Subsystem: "natspub",
			Name:      "samples_published_total",
			Help:      "Samples published to NATS",
		}),
		publishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "emgstream",
			Subsystem: "natspub",
			Name:      "publish_errors_total",
			Help:      "Publish attempts that failed",
		}),
	}

	_ = registry.RegisterCounter("natspub", "samples_published", m.published)
	_ = registry.RegisterCounter("natspub", "publish_errors", m.publishErrors)

	return m
}

// wireSample is the published message shape
type wireSample struct {
	Channel   int       `json:"channel"`
	Value     float64   `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher implements stream.Publisher over a NATS connection
type Publisher struct {
	url     string
	subject string
	logger  *slog.Logger

	mu   sync.RWMutex
	conn *nats.Conn

	metrics *Metrics
}

// NewPublisher creates a publisher for the given server and subject
func NewPublisher(url, subject string, logger *slog.Logger, registry *metric.Registry) (*Publisher, error) {
	if url == "" || subject == "" {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig,
			"Publisher", "NewPublisher", "url and subject validation")
	}
	if logger == nil {
		logger = slog.Default().With("component", "natspub")
	}
	return &Publisher{
		url:     url,
		subject: subject,
		logger:  logger,
		metrics: newMetrics(registry),
	}, nil
}

// Connect dials the NATS server with backoff. The connection reconnects
// indefinitely on its own once established.
func (p *Publisher) Connect(ctx context.Context) error {
	return retry.Do(ctx, retry.Connect(), func() error {
		conn, err := nats.Connect(p.url,
			nats.Name("emgstream"),
			nats.Timeout(5*time.Second),
			nats.MaxReconnects(-1),
			nats.ReconnectWait(time.Second),
			nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
				p.logger.Warn("NATS disconnected", "error", err)
			}),
			nats.ReconnectHandler(func(nc *nats.Conn) {
				p.logger.Info("NATS reconnected", "url", nc.ConnectedUrl())
			}),
		)
		if err != nil {
			return fmt.Errorf("nats connect %s: %w", p.url, err)
		}

		p.mu.Lock()
		p.conn = conn
		p.mu.Unlock()

		p.logger.Info("NATS publisher connected", "url", p.url, "subject", p.subject)
		return nil
	})
}

// Publish sends one sample. Implements stream.Publisher; called from the
// dispatch loop, so it never blocks on the broker.
func (p *Publisher) Publish(s trigno.Sample) error {
	p.mu.RLock()
	conn := p.conn
	p.mu.RUnlock()

	if conn == nil {
		return errors.WrapTransient(errors.ErrNotStarted, "Publisher", "Publish", "connection check")
	}

	data, err := json.Marshal(wireSample{
		Channel:   s.Channel,
		Value:     s.Value,
		Timestamp: s.Timestamp,
	})
	if err != nil {
		return errors.Wrap(err, "Publisher", "Publish", "sample marshal")
	}

	if err := conn.Publish(p.subject, data); err != nil {
		if p.metrics != nil {
			p.metrics.publishErrors.Inc()
		}
		return errors.WrapTransient(err, "Publisher", "Publish", "nats publish")
	}
	if p.metrics != nil {
		p.metrics.published.Inc()
	}
	return nil
}

// Stop drains and closes the connection
func (p *Publisher) Stop(timeout time.Duration) error {
	p.mu.Lock()
	conn := p.conn
	p.conn = nil
	p.mu.Unlock()

	if conn == nil {
		return nil
	}

	done := make(chan error, 1)
	go func() {
		done <- conn.Drain()
	}()

	select {
	case err := <-done:
		if err != nil {
			conn.Close()
			return errors.WrapTransient(err, "Publisher", "Stop", "drain")
		}
	case <-time.After(timeout):
		conn.Close()
		return errors.WrapTransient(fmt.Errorf("drain timeout after %v", timeout),
			"Publisher", "Stop", "drain")
	}
	return nil
}
