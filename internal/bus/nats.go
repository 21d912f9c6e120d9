package bus

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/opensource-finance/harrier/internal/domain"
)

// Message envelope fields travel as NATS headers; the payload is sent as is.
const (
	headerMessageID  = nats.MsgIdHdr
	headerPublished  = "Harrier-Published"
	headerMetaPrefix = "Harrier-Meta-"
)

// NATSBus carries messages between processes over NATS subjects. Batch
// workers on several nodes share requests through a queue group.
type NATSBus struct {
	conn       *nats.Conn
	queueGroup string

	mu   sync.Mutex
	subs map[*natsSubscription]struct{}
}

type natsSubscription struct {
	bus   *NATSBus
	topic string
	sub   *nats.Subscription
}

// NewNATSBus connects to NATS. The initial connect is attempted
// NATSMaxReconnects times, NATSReconnectWait seconds apart.
func NewNATSBus(cfg domain.EventBusConfig) (*NATSBus, error) {
	url := cfg.NATSUrl
	if url == "" {
		url = nats.DefaultURL
	}
	attempts := cfg.NATSMaxReconnects
	if attempts <= 0 {
		attempts = 10
	}
	wait := time.Duration(cfg.NATSReconnectWait) * time.Second
	if wait <= 0 {
		wait = 5 * time.Second
	}

	opts := []nats.Option{
		nats.Name("harrier"),
		nats.MaxReconnects(attempts),
		nats.ReconnectWait(wait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			slog.Warn("nats disconnected", "error", err, "will_reconnect", !nc.IsClosed())
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ErrorHandler(func(_ *nats.Conn, sub *nats.Subscription, err error) {
			var subject string
			if sub != nil {
				subject = sub.Subject
			}
			slog.Error("nats async error", "subject", subject, "error", err)
		}),
	}
	if cfg.NATSToken != "" {
		opts = append(opts, nats.Token(cfg.NATSToken))
	}

	var conn *nats.Conn
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if conn, err = nats.Connect(url, opts...); err == nil {
			break
		}
		slog.Warn("nats connect failed", "attempt", attempt, "max_attempts", attempts, "error", err)
		if attempt < attempts {
			time.Sleep(wait)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("connect to nats at %s: %w", url, err)
	}

	slog.Info("nats connected", "url", conn.ConnectedUrl(), "queue_group", cfg.NATSQueueGroup)
	return &NATSBus{
		conn:       conn,
		queueGroup: cfg.NATSQueueGroup,
		subs:       make(map[*natsSubscription]struct{}),
	}, nil
}

// Publish sends payload on the subject named by topic.
func (b *NATSBus) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if b.conn.IsClosed() {
		return ErrClosed
	}
	return b.conn.PublishMsg(toNATS(newMessage(topic, payload)))
}

// Subscribe registers a handler for a subject. With a queue group
// configured, each message goes to one member of the group.
func (b *NATSBus) Subscribe(ctx context.Context, topic string, handler domain.MessageHandler) (domain.Subscription, error) {
	cb := func(m *nats.Msg) {
		msg := fromNATS(m)
		if err := handler(ctx, msg); err != nil {
			slog.Error("bus handler failed", "topic", m.Subject, "message_id", msg.ID, "error", err)
		}
	}

	var sub *nats.Subscription
	var err error
	if b.queueGroup != "" {
		sub, err = b.conn.QueueSubscribe(topic, b.queueGroup, cb)
	} else {
		sub, err = b.conn.Subscribe(topic, cb)
	}
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", topic, err)
	}

	s := &natsSubscription{bus: b, topic: topic, sub: sub}
	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()
	return s, nil
}

// Ping flushes the connection to the server.
func (b *NATSBus) Ping(ctx context.Context) error {
	if !b.conn.IsConnected() {
		return fmt.Errorf("nats not connected: %s", b.conn.Status())
	}
	return b.conn.FlushWithContext(ctx)
}

// Close drains subscriptions so handlers already running can finish, then
// closes the connection.
func (b *NATSBus) Close() error {
	b.mu.Lock()
	b.subs = make(map[*natsSubscription]struct{})
	b.mu.Unlock()

	if b.conn.IsClosed() {
		return nil
	}
	if err := b.conn.Drain(); err != nil {
		b.conn.Close()
		return fmt.Errorf("drain nats connection: %w", err)
	}
	return nil
}

func (s *natsSubscription) Unsubscribe() error {
	s.bus.mu.Lock()
	delete(s.bus.subs, s)
	s.bus.mu.Unlock()
	return s.sub.Unsubscribe()
}

func (s *natsSubscription) Topic() string {
	return s.topic
}

func toNATS(msg *domain.Message) *nats.Msg {
	m := nats.NewMsg(msg.Topic)
	m.Data = msg.Payload
	m.Header.Set(headerMessageID, msg.ID)
	m.Header.Set(headerPublished, strconv.FormatInt(msg.Timestamp, 10))
	for k, v := range msg.Metadata {
		m.Header.Set(headerMetaPrefix+k, v)
	}
	return m
}

func fromNATS(m *nats.Msg) *domain.Message {
	msg := &domain.Message{
		Topic:    m.Subject,
		Payload:  m.Data,
		Metadata: make(map[string]string),
	}
	if m.Header == nil {
		return msg
	}
	msg.ID = m.Header.Get(headerMessageID)
	msg.Timestamp, _ = strconv.ParseInt(m.Header.Get(headerPublished), 10, 64)
	for k, vs := range m.Header {
		if name, ok := strings.CutPrefix(k, headerMetaPrefix); ok && len(vs) > 0 {
			msg.Metadata[name] = vs[0]
		}
	}
	return msg
}
