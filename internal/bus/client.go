package bus

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/loqalabs/pesu/internal/config"
	"github.com/loqalabs/pesu/internal/protocol"
	"github.com/nats-io/nats.go"
)

// Client wraps a NATS connection and publishes session events.
type Client struct {
	conn   *nats.Conn
	prefix string
	log    *slog.Logger
}

func Connect(ctx context.Context, cfg config.BusConfig, log *slog.Logger) (*Client, error) {
	if len(cfg.Servers) == 0 {
		return nil, errors.New("no NATS servers configured")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	options := []nats.Option{
		nats.Name("pesu-runtime"),
		nats.Timeout(time.Duration(cfg.ConnectTimeout) * time.Millisecond),
	}

	if cfg.Username != "" || cfg.Password != "" {
		options = append(options, nats.UserInfo(cfg.Username, cfg.Password))
	}
	if cfg.Token != "" {
		options = append(options, nats.Token(cfg.Token))
	}
	if cfg.TLSInsecure {
		options = append(options, nats.Secure(&tls.Config{InsecureSkipVerify: true}))
	}

	url := strings.Join(cfg.Servers, ",")
	conn, err := nats.Connect(url, options...)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	log = log.With(slog.String("component", "bus"))
	log.Info("connected to NATS", slog.String("servers", url))

	return &Client{
		conn:   conn,
		prefix: cfg.SubjectPrefix,
		log:    log,
	}, nil
}

// Publish sends evt on <prefix>.<type>. Failures are logged, never returned,
// so a broken bus cannot stall the session.
func (c *Client) Publish(evt protocol.Event) {
	data, err := json.Marshal(evt)
	if err != nil {
		c.log.Warn("failed to encode event", slog.String("type", string(evt.Type)), slogError(err))
		return
	}
	subject := protocol.Subject(c.prefix, evt.Type)
	if err := c.conn.Publish(subject, data); err != nil {
		c.log.Warn("failed to publish event", slog.String("subject", subject), slogError(err))
	}
}

func (c *Client) Close() {
	if c == nil {
		return
	}
	c.log.Info("closing NATS connection")
	_ = c.conn.Drain()
	c.conn.Close()
}

func (c *Client) Healthy() bool {
	return c != nil && c.conn != nil && c.conn.Status() == nats.CONNECTED
}

func (c *Client) Conn() *nats.Conn {
	return c.conn
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
