package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/nats-io/nats.go"
)

const natsSubject = "habitvoice.events"

// NATSBus publishes through a NATS subject; like RedisBus, local delivery
// happens when the message comes back from the server.
type NATSBus struct {
	*Hub
	conn *nats.Conn
	sub  *nats.Subscription
}

func NewNATSBus(url string, logger *log.Logger) (*NATSBus, error) {
	nc, err := nats.Connect(url, nats.Name("habitvoice"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	b := &NATSBus{Hub: NewHub(logger), conn: nc}
	b.sub, err = nc.Subscribe(natsSubject, func(msg *nats.Msg) {
		b.deliverPayload(msg.Data)
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}
	logger.Printf("eventbus: using nats subject %s at %s", natsSubject, url)
	return b, nil
}

func (b *NATSBus) Publish(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return b.conn.Publish(natsSubject, data)
}

func (b *NATSBus) Close() error {
	err := b.sub.Unsubscribe()
	b.conn.Close()
	b.Hub.Close()
	return err
}
