package destination

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"aeroport/internal/payload"
)

const defaultSubjectPrefix = "aeroport.payload_sent"

type natsConn interface {
	Publish(subject string, data []byte) error
	Drain() error
}

// NATS publishes each payload's JSON to "<prefix>.<kind>".
type NATS struct {
	name    string
	url     string
	prefix  string
	connect func(url string, opts ...nats.Option) (natsConn, error)
	conn    natsConn
	log     *slog.Logger
}

func newNATSFromSettings(name string, settings map[string]string, deps Deps) (Destination, error) {
	return &NATS{
		name:    name,
		url:     setting(settings, "url", nats.DefaultURL),
		prefix:  setting(settings, "subject_prefix", defaultSubjectPrefix),
		connect: dialNATS,
		log:     deps.Log.With("destination", name),
	}, nil
}

func dialNATS(url string, opts ...nats.Option) (natsConn, error) {
	return nats.Connect(url, opts...)
}

func (n *NATS) Name() string { return n.name }

func (n *NATS) Prepare(context.Context) error {
	conn, err := n.connect(n.url,
		nats.Name("aeroport"),
		nats.MaxReconnects(10),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				n.log.Warn("nats disconnected", "error", err)
			}
		}),
	)
	if err != nil {
		return fmt.Errorf("connect nats %s: %w", n.url, err)
	}
	n.conn = conn
	return nil
}

func (n *NATS) Release(context.Context) error {
	if n.conn == nil {
		return nil
	}
	err := n.conn.Drain()
	n.conn = nil
	if err != nil {
		return fmt.Errorf("drain nats: %w", err)
	}
	return nil
}

// Subject returns the subject used for payloads of kind.
func (n *NATS) Subject(kind string) string {
	return n.prefix + "." + kind
}

func (n *NATS) ProcessPayload(_ context.Context, p *payload.Payload) error {
	if n.conn == nil {
		return errors.New("nats destination not prepared")
	}
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	if err := n.conn.Publish(n.Subject(p.Kind()), data); err != nil {
		return fmt.Errorf("publish %s: %w", p.Kind(), err)
	}
	return nil
}
