// Package ingest feeds projection updates from NATS into the scheduler.
package ingest

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Publisher accepts projection updates; *service.ProjectionService
// satisfies it.
type Publisher interface {
	PublishFrom(ctx context.Context, source, id string, data json.RawMessage) error
}

type reply struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// Subscriber maps every message on <prefix>> to a projection update whose
// id is the subject with the prefix removed. Requests get a JSON reply.
type Subscriber struct {
	nc      *nats.Conn
	sub     *nats.Subscription
	pub     Publisher
	prefix  string
	timeout time.Duration
	logger  *zap.Logger
}

// Connect dials url and returns a Subscriber that has not subscribed yet.
func Connect(url, prefix string, pub Publisher, timeout time.Duration, logger *zap.Logger) (*Subscriber, error) {
	s := &Subscriber{pub: pub, prefix: prefix, timeout: timeout, logger: logger}

	nc, err := nats.Connect(url,
		nats.Name("gyre"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, errors.Wrapf(err, "connect to nats at %s", url)
	}
	s.nc = nc
	return s, nil
}

// Start subscribes to the projection subject tree.
func (s *Subscriber) Start() error {
	subject := s.prefix + ">"
	sub, err := s.nc.Subscribe(subject, s.handle)
	if err != nil {
		return errors.Wrapf(err, "subscribe to %s", subject)
	}
	s.sub = sub
	s.logger.Info("nats ingest subscribed", zap.String("subject", subject))
	return nil
}

// Ping reports whether the connection is up, for the health probe.
func (s *Subscriber) Ping(context.Context) error {
	if !s.nc.IsConnected() {
		return errors.Errorf("nats connection %s", s.nc.Status())
	}
	return nil
}

// Close drains in-flight messages and closes the connection.
func (s *Subscriber) Close() error {
	if err := s.nc.Drain(); err != nil {
		return errors.Wrap(err, "drain nats connection")
	}
	return nil
}

func (s *Subscriber) handle(msg *nats.Msg) {
	id := strings.TrimPrefix(msg.Subject, s.prefix)
	log := s.logger.With(zap.String("subject", msg.Subject), zap.String("projection", id))

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	err := s.pub.PublishFrom(ctx, "nats", id, msg.Data)
	if err != nil {
		err = errors.Wrap(err, "publish projection update")
		log.Warn("nats update rejected", zap.Error(err))
	}
	s.respond(msg, err, log)
}

func (s *Subscriber) respond(msg *nats.Msg, err error, log *zap.Logger) {
	if msg.Reply == "" {
		return
	}
	r := reply{OK: err == nil}
	if err != nil {
		r.Error = err.Error()
	}
	b, _ := json.Marshal(r)
	if rerr := msg.Respond(b); rerr != nil {
		log.Warn("nats reply failed", zap.Error(rerr))
	}
}
