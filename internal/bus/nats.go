package bus

import (
	"context"
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/nats-io/nats.go"
)

// ForwarderConfig configures the NATS bridge.
type ForwarderConfig struct {
	ServersURL    string
	Username      string
	Password      string
	SubjectPrefix string
}

// publisher is the slice of the NATS connection the forwarder needs.
type publisher interface {
	Publish(subject string, data []byte) error
	Close()
}

// Forwarder republishes bus events onto NATS subjects so listeners outside
// the process can react to them. Subjects are <prefix>.<event name>.
type Forwarder struct {
	conn   publisher
	prefix string
	subs   []Subscription
	bus    *Bus
}

// NewForwarder connects to NATS. The connection is owned by the forwarder
// and released by Close.
func NewForwarder(cfg ForwarderConfig) (*Forwarder, error) {
	var opts []nats.Option
	if cfg.Username != "" {
		opts = append(opts, nats.UserInfo(cfg.Username, cfg.Password))
	}
	conn, err := nats.Connect(cfg.ServersURL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connecting to nats: %w", err)
	}
	return newForwarder(conn, cfg.SubjectPrefix), nil
}

func newForwarder(conn publisher, prefix string) *Forwarder {
	if prefix == "" {
		prefix = "hookhost.events"
	}
	return &Forwarder{conn: conn, prefix: prefix}
}

// Attach subscribes the forwarder to the given events on b. Payloads are
// serialized to JSON; events whose payload cannot be serialized are dropped.
func (f *Forwarder) Attach(b *Bus, events []string) {
	f.bus = b
	for _, event := range events {
		sub := b.Subscribe(event, f.publish)
		f.subs = append(f.subs, sub)
	}
}

func (f *Forwarder) publish(_ context.Context, evt Event) {
	data, err := sonic.Marshal(evt.Payload)
	if err != nil {
		return
	}
	_ = f.conn.Publish(f.prefix+"."+evt.Name, data)
}

// Close unsubscribes from the bus and drops the NATS connection.
func (f *Forwarder) Close() {
	if f.bus != nil {
		for _, sub := range f.subs {
			f.bus.Unsubscribe(sub)
		}
		f.subs = nil
	}
	if f.conn != nil {
		f.conn.Close()
	}
}
