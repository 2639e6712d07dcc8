// Package bus defines the pub/sub surface the manager depends on —
// connect/publish/subscribe/register_handler/spawn_loop — and provides
// two implementations: a github.com/nats-io/nats.go-backed client for
// real deployments, and an in-memory bus (grounded on the teacher's
// modules/eventbus/memory.go) for tests and single-process demos. The
// pub/sub client's wire protocol itself stays out of scope per spec.md
// §1; only this narrow surface is exercised by the manager core.
package bus

import "context"

// Handler receives a decoded payload for a subscribed topic.
type Handler func(payload []byte)

// Token identifies a registered subscription so it can be torn down
// later, mirroring the "subscription token" field on WorkerHandle in
// spec.md §3.
type Token string

// Bus is the narrow pub/sub surface the readiness coordinator and
// supervisor depend on.
type Bus interface {
	// Connect establishes the underlying transport connection.
	Connect(ctx context.Context) error

	// Publish sends payload on topic.
	Publish(topic string, payload []byte) error

	// Subscribe registers handler for topic and returns a token that
	// Unsubscribe accepts. Delivery is at-least-once-plus per spec.md
	// §4.8: a handler may observe more than one delivery of the same
	// logical message, which is why readiness handling must be
	// idempotent.
	Subscribe(topic string, handler Handler) (Token, error)

	// Unsubscribe tears down a previously registered subscription.
	Unsubscribe(token Token) error

	// SpawnLoop starts the bus client's background delivery loop (for
	// implementations that need one) and blocks until ctx is done.
	SpawnLoop(ctx context.Context) error

	// Close disconnects the transport.
	Close() error
}
