package bus

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// NATS is a Bus backed by github.com/nats-io/nats.go, the client the
// teacher's modules/eventbus NATS engine wraps. It targets either a
// host:port broker or, for the manager's default filesystem-socket
// deployment (spec.md §4.6), the unix:// URL cmd/manager builds from the
// configured socket path.
type NATS struct {
	url  string
	opts []nats.Option
	conn *nats.Conn
	subs map[Token]*nats.Subscription
}

// NewNATS creates a client targeting url (e.g. "nats://127.0.0.1:4222"
// or a unix-socket broker address), unconnected until Connect is called.
func NewNATS(url string, opts ...nats.Option) *NATS {
	return &NATS{url: url, opts: opts, subs: make(map[Token]*nats.Subscription)}
}

func (n *NATS) Connect(ctx context.Context) error {
	conn, err := nats.Connect(n.url, n.opts...)
	if err != nil {
		return fmt.Errorf("bus: connect to %s: %w", n.url, err)
	}
	n.conn = conn
	return nil
}

func (n *NATS) Publish(topic string, payload []byte) error {
	if n.conn == nil {
		return fmt.Errorf("bus: publish %s: not connected", topic)
	}
	return n.conn.Publish(topic, payload)
}

func (n *NATS) Subscribe(topic string, handler Handler) (Token, error) {
	if n.conn == nil {
		return "", fmt.Errorf("bus: subscribe %s: not connected", topic)
	}
	sub, err := n.conn.Subscribe(topic, func(msg *nats.Msg) {
		handler(msg.Data)
	})
	if err != nil {
		return "", fmt.Errorf("bus: subscribe %s: %w", topic, err)
	}
	token := Token(uuid.NewString())
	n.subs[token] = sub
	return token, nil
}

func (n *NATS) Unsubscribe(token Token) error {
	sub, ok := n.subs[token]
	if !ok {
		return nil
	}
	delete(n.subs, token)
	return sub.Unsubscribe()
}

func (n *NATS) SpawnLoop(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func (n *NATS) Close() error {
	if n.conn != nil {
		n.conn.Close()
	}
	return nil
}
