// Package notify publishes terminal outcomes of tracked operations.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Event is the terminal outcome of one tracked operation.
type Event struct {
	ID        string        `json:"id"`
	Operation string        `json:"operation"`
	Label     string        `json:"label"`
	Success   bool          `json:"success"`
	Error     string        `json:"error,omitempty"`
	Machine   string        `json:"machine,omitempty"`
	VM        string        `json:"vm,omitempty"`
	Attempts  int           `json:"attempts,omitempty"`
	Duration  time.Duration `json:"duration"`
	Time      time.Time     `json:"time"`
}

// Publisher delivers events. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close()
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close()                               {}

// conn is the subset of *nats.Conn used by NATS.
type conn interface {
	Publish(subject string, data []byte) error
	Drain() error
	IsClosed() bool
}

// NATS publishes events as JSON to a NATS subject.
type NATS struct {
	nc      conn
	subject string
}

// Connect dials the NATS server at url.
func Connect(url, subject string, logger *zap.Logger) (*NATS, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts := []nats.Option{
		nats.Name("pbctl"),
		nats.Timeout(5 * time.Second),
		nats.MaxReconnects(3),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	}
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to nats at %s: %w", url, err)
	}
	return &NATS{nc: nc, subject: subject}, nil
}

// Publish sends ev to the configured subject.
func (p *NATS) Publish(_ context.Context, ev Event) error {
	if p.nc == nil || p.nc.IsClosed() {
		return fmt.Errorf("nats not connected")
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return p.nc.Publish(p.subject, payload)
}

// Close flushes pending messages and closes the connection.
func (p *NATS) Close() {
	if p.nc != nil {
		_ = p.nc.Drain()
	}
}
