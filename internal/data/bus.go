package data

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// LivenessSubject carries inbound group-message observations between processes
const LivenessSubject = "ravena.liveness"

// Observation is one inbound group message seen by some session
type Observation struct {
	ChatID   string    `json:"chat_id"`
	AuthorID string    `json:"author_id"`
	SeenBy   string    `json:"seen_by"`
	SeenAt   time.Time `json:"seen_at"`
}

// LivenessBus shares observations across processes so each monitor sees
// traffic received by sessions hosted elsewhere
type LivenessBus struct {
	conn *nats.Conn
	sub  *nats.Subscription
	log  zerolog.Logger
}

// NewLivenessBus connects to NATS
func NewLivenessBus(url string, log zerolog.Logger) (*LivenessBus, error) {
	log = log.With().Str("component", "bus").Logger()
	opts := []nats.Option{
		nats.Name("ravena"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	}

	conn, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}
	return &LivenessBus{conn: conn, log: log}, nil
}

// Publish announces an observation
func (b *LivenessBus) Publish(o Observation) error {
	data, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("failed to encode observation: %w", err)
	}
	return b.conn.Publish(LivenessSubject, data)
}

// Subscribe delivers observations published by other processes
func (b *LivenessBus) Subscribe(self string, handler func(Observation)) error {
	sub, err := b.conn.Subscribe(LivenessSubject, func(msg *nats.Msg) {
		var o Observation
		if err := json.Unmarshal(msg.Data, &o); err != nil {
			b.log.Warn().Err(err).Msg("Dropping malformed observation")
			return
		}
		if o.SeenBy == self {
			return
		}
		handler(o)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	b.sub = sub
	return nil
}

// Close drains the subscription and closes the connection
func (b *LivenessBus) Close() {
	if b.sub != nil {
		_ = b.sub.Unsubscribe()
	}
	b.conn.Close()
}
