package hermes

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// SubjectRegistered announces a running concierge instance.
const SubjectRegistered = "swarm.agent.concierge.registered"

// QueueGroup load-balances inbound events across concierge instances so each
// Slack message is answered once.
const QueueGroup = "concierge"

// Registration is the payload published on SubjectRegistered.
type Registration struct {
	Timestamp string   `json:"timestamp"`
	Port      int      `json:"port"`
	Actions   []string `json:"actions"`
	Slack     bool     `json:"slack"`
}

// Handler receives the subject and raw JSON body of an inbound event.
type Handler func(subject string, data []byte)

// Client is the concierge's connection to the Hermes NATS bus.
type Client struct {
	conn   *nats.Conn
	logger *slog.Logger

	mu   sync.Mutex
	subs []*nats.Subscription
}

// NewClient connects to NATS. The connection keeps retrying in the background
// if the server is not reachable yet; ctx bounds only the initial dial.
func NewClient(ctx context.Context, url, token string, logger *slog.Logger) (*Client, error) {
	opts := []nats.Option{
		nats.Name("concierge"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("hermes connection lost", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("hermes reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			logger.Debug("hermes connection closed")
		}),
	}
	if token != "" {
		opts = append(opts, nats.Token(token))
	}
	if deadline, ok := ctx.Deadline(); ok {
		opts = append(opts, nats.Timeout(time.Until(deadline)))
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to hermes at %s: %w", url, err)
	}
	return &Client{conn: nc, logger: logger}, nil
}

// Publish sends v as JSON on subject.
func (c *Client) Publish(subject string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", subject, err)
	}
	if err := c.conn.Publish(subject, body); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

// Subscribe delivers events on subject to h. Subscriptions join QueueGroup.
// A panicking handler is logged and the subscription keeps running.
func (c *Client) Subscribe(subject string, h Handler) error {
	sub, err := c.conn.QueueSubscribe(subject, QueueGroup, func(msg *nats.Msg) {
		c.dispatch(h, msg.Subject, msg.Data)
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", subject, err)
	}

	c.mu.Lock()
	c.subs = append(c.subs, sub)
	c.mu.Unlock()

	c.logger.Info("subscribed", "subject", subject, "queue", QueueGroup)
	return nil
}

func (c *Client) dispatch(h Handler, subject string, data []byte) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("event handler panicked", "subject", subject, "panic", r)
		}
	}()
	h(subject, data)
}

// Connected reports whether the underlying connection is currently up.
func (c *Client) Connected() bool {
	return c.conn != nil && c.conn.IsConnected()
}

// Close drains subscriptions so in-flight handlers finish, then closes the
// connection.
func (c *Client) Close() {
	c.mu.Lock()
	subs := c.subs
	c.subs = nil
	c.mu.Unlock()

	for _, sub := range subs {
		if err := sub.Drain(); err != nil {
			c.logger.Warn("failed to drain subscription", "subject", sub.Subject, "error", err)
		}
	}
	if err := c.conn.Drain(); err != nil {
		c.conn.Close()
	}
}
