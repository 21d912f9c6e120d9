package domain

import (
	"context"
	"time"
)

// EventBus carries batch requests and alert events between components.
// Implemented with Go channels in process or with NATS.
type EventBus interface {
	// Publish sends a message to a topic.
	Publish(ctx context.Context, topic string, payload []byte) error

	// Subscribe registers a handler for a topic.
	// Returns a subscription that can be used to unsubscribe.
	Subscribe(ctx context.Context, topic string, handler MessageHandler) (Subscription, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// MessageHandler processes incoming messages.
type MessageHandler func(ctx context.Context, msg *Message) error

// Message represents an event message.
type Message struct {
	ID        string            `json:"id"`
	Topic     string            `json:"topic"`
	Payload   []byte            `json:"payload"`
	Metadata  map[string]string `json:"metadata"`
	Timestamp int64             `json:"timestamp"`
}

// Subscription represents an active subscription.
type Subscription interface {
	// Unsubscribe stops receiving messages.
	Unsubscribe() error

	// Topic returns the subscribed topic.
	Topic() string
}

// EventBusConfig holds configuration for event bus initialization.
type EventBusConfig struct {
	// Type is the bus type: "channel" or "nats"
	Type string `json:"type" mapstructure:"type"`

	// In-process channel settings
	ChannelBufferSize int `json:"channelBufferSize" mapstructure:"channelBufferSize"`

	// NATS settings
	NATSUrl           string `json:"natsUrl" mapstructure:"natsUrl"`
	NATSToken         string `json:"natsToken" mapstructure:"natsToken"`
	NATSMaxReconnects int    `json:"natsMaxReconnects" mapstructure:"natsMaxReconnects"`
	NATSReconnectWait int    `json:"natsReconnectWait" mapstructure:"natsReconnectWait"` // seconds
	NATSQueueGroup    string `json:"natsQueueGroup" mapstructure:"natsQueueGroup"`
}

// Standard topic names for the batch pipeline.
const (
	TopicBatchRequested     = "harrier.batch.requested"
	TopicBatchCompleted     = "harrier.batch.completed"
	TopicAlertCreated       = "harrier.alert.created"
	TopicAlertStatusChanged = "harrier.alert.status_changed"
)

// BatchRequest is the payload of a TopicBatchRequested message.
type BatchRequest struct {
	BatchID     string `json:"batchId"`
	RequestedBy string `json:"requestedBy,omitempty"`
}

// AlertStatusChange is the payload of a TopicAlertStatusChanged message.
type AlertStatusChange struct {
	AlertID string      `json:"alertId"`
	From    AlertStatus `json:"from"`
	To      AlertStatus `json:"to"`
	At      time.Time   `json:"at"`
}
