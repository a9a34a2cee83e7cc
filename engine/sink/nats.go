package sink

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/rentscout/rentscout/pkg/natsutil"
)

// DefaultSubject is the subject listing events are published on.
const DefaultSubject = "rentscout.listings"

// NATS publishes events as JSON.
type NATS struct {
	pub     natsutil.MsgPublisher
	subject string
	conn    *nats.Conn
}

// NewNATS publishes through pub. The caller owns the connection.
func NewNATS(pub natsutil.MsgPublisher, subject string) *NATS {
	if subject == "" {
		subject = DefaultSubject
	}
	return &NATS{pub: pub, subject: subject}
}

// DialNATS connects to url; Close drains the connection.
func DialNATS(url, subject string) (*NATS, error) {
	nc, err := nats.Connect(url, nats.Name("rentscout-crawler"))
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	n := NewNATS(nc, subject)
	n.conn = nc
	return n, nil
}

func (n *NATS) Emit(ctx context.Context, ev Event) error {
	if err := natsutil.Publish(ctx, n.pub, n.subject, ev); err != nil {
		return fmt.Errorf("nats publish %s: %w", ev.URL, err)
	}
	return nil
}

func (n *NATS) Close(ctx context.Context) error {
	if n.conn == nil {
		return nil
	}
	if err := n.conn.FlushWithContext(ctx); err != nil {
		n.conn.Close()
		return fmt.Errorf("nats flush: %w", err)
	}
	return n.conn.Drain()
}
