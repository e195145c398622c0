package pubsub

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// NATSBroker maps each room to the subject "<prefix>.<room>" and receives
// every room through the "<prefix>.>" wildcard.
type NATSBroker struct {
	conn   *nats.Conn
	prefix string
}

// DialNATS connects with unlimited reconnects; connection state changes are logged.
func DialNATS(url string, logger *zap.Logger) (*nats.Conn, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect %s: %w", url, err)
	}
	return nc, nil
}

func NewNATSBroker(conn *nats.Conn, prefix string) *NATSBroker {
	return &NATSBroker{conn: conn, prefix: strings.TrimSuffix(prefix, ".")}
}

func (n *NATSBroker) Publish(ctx context.Context, room string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return n.conn.Publish(n.prefix+"."+room, data)
}

func (n *NATSBroker) Subscribe(_ context.Context, handler func(room string, data []byte)) (func() error, error) {
	root := n.prefix + "."
	sub, err := n.conn.Subscribe(root+">", func(m *nats.Msg) {
		handler(strings.TrimPrefix(m.Subject, root), m.Data)
	})
	if err != nil {
		return nil, fmt.Errorf("nats subscribe: %w", err)
	}
	return sub.Unsubscribe, nil
}

func (n *NATSBroker) Close() error {
	n.conn.Close()
	return nil
}
