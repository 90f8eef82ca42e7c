// Package bus relays room updates and awareness deltas between hub
// instances over NATS, so a horizontally-scaled deployment converges
// even when two collaborators land on different processes. It is
// entirely optional — when BUS_URL is unset the hub runs single-
// instance and Bus becomes a no-op, following the disabled-subscriber
// fallback the reference event package uses when NATS is unreachable.
package bus

import (
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"collabhub/internal/logging"
)

var log = logging.Named("bus")

// Bus fans a room's updates and awareness deltas out to every other
// hub instance subscribed to the same room.
type Bus interface {
	PublishUpdate(room string, payload []byte) error
	PublishAwareness(room string, payload []byte) error
	SubscribeRoom(room string, onUpdate, onAwareness func(payload []byte)) (unsubscribe func(), err error)
	Enabled() bool
	Close()
}

func updateSubject(room string) string {
	return fmt.Sprintf("hub.room.%s.update", room)
}

func awarenessSubject(room string) string {
	return fmt.Sprintf("hub.room.%s.awareness", room)
}

// natsBus is the real implementation.
type natsBus struct {
	conn *nats.Conn
}

// inertBus is used when BUS_URL is empty.
type inertBus struct{}

// New connects to url, or returns an inert Bus if url is empty or the
// connection fails. A cross-instance bus is an enhancement, not a
// requirement — the hub must keep serving single-instance traffic
// even if NATS is down.
func New(url string) Bus {
	if url == "" {
		return inertBus{}
	}

	conn, err := nats.Connect(url,
		nats.Name("collabhub"),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(10),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("bus disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("bus reconnected")
		}),
	)
	if err != nil {
		log.Warn().Err(err).Str("url", url).Msg("bus connect failed, running single-instance")
		return inertBus{}
	}

	log.Info().Str("url", conn.ConnectedUrl()).Msg("bus connected")
	return &natsBus{conn: conn}
}

func (b *natsBus) Enabled() bool { return true }

func (b *natsBus) PublishUpdate(room string, payload []byte) error {
	return b.conn.Publish(updateSubject(room), payload)
}

func (b *natsBus) PublishAwareness(room string, payload []byte) error {
	return b.conn.Publish(awarenessSubject(room), payload)
}

func (b *natsBus) SubscribeRoom(room string, onUpdate, onAwareness func([]byte)) (func(), error) {
	updateSub, err := b.conn.Subscribe(updateSubject(room), func(msg *nats.Msg) {
		onUpdate(msg.Data)
	})
	if err != nil {
		return nil, fmt.Errorf("bus: subscribe update %s: %w", room, err)
	}

	awarenessSub, err := b.conn.Subscribe(awarenessSubject(room), func(msg *nats.Msg) {
		onAwareness(msg.Data)
	})
	if err != nil {
		updateSub.Unsubscribe()
		return nil, fmt.Errorf("bus: subscribe awareness %s: %w", room, err)
	}

	return func() {
		updateSub.Unsubscribe()
		awarenessSub.Unsubscribe()
	}, nil
}

func (b *natsBus) Close() {
	b.conn.Drain()
	b.conn.Close()
}

func (inertBus) Enabled() bool                        { return false }
func (inertBus) PublishUpdate(string, []byte) error    { return nil }
func (inertBus) PublishAwareness(string, []byte) error { return nil }
func (inertBus) SubscribeRoom(string, func([]byte), func([]byte)) (func(), error) {
	return func() {}, nil
}
func (inertBus) Close() {}
