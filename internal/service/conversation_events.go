package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/storefront-api/internal/observability"
)

const conversationEventBufferSize = 16

// ConversationEvent signals that a conversation changed and views should be re-rendered.
type ConversationEvent struct {
	Source         string    `json:"source"`
	ConversationID string    `json:"conversation_id"`
	UserID         string    `json:"user_id"`
	Kind           string    `json:"kind"`
	SentAt         time.Time `json:"sent_at"`
}

// ConversationEvents fans conversation changes out to local subscribers and, when
// configured, to other nodes through Redis pub/sub and NATS.
type ConversationEvents struct {
	redis       *redis.Client
	redisStream string
	nats        *nats.Conn
	natsSubject string
	logger      zerolog.Logger
	nodeID      string

	mu sync.RWMutex
	subscribers map[string]map[chan ConversationEvent]struct{}
}

// NewConversationEvents constructs the event hub. redisClient and natsConn may be nil.
func NewConversationEvents(redisClient *redis.Client, channelBase string, natsConn *nats.Conn, logger zerolog.Logger) *ConversationEvents {
	stream := ""
	subject := ""
	if channelBase != "" {
		stream = channelBase + ":conversation"
		subject = strings.ReplaceAll(channelBase, ":", ".") + ".conversation"
	}

	return &ConversationEvents{
		redis:       redisClient,
		redisStream: stream,
		nats:        natsConn,
		natsSubject: subject,
		logger:      logger.With().Str("component", "conversation_events").Logger(),
		nodeID:      uuid.NewString(),
		subscribers: make(map[string]map[chan ConversationEvent]struct{}),
	}
}

// Start consumes remote events until ctx is cancelled.
func (e *ConversationEvents) Start(ctx context.Context) {
	if e.redis != nil && e.redisStream != "" {
		go e.consumeRedis(ctx)
	}
	if e.nats != nil && e.natsSubject != "" {
		go e.consumeNATS(ctx)
	}
}

// Subscribe registers a listener for a single conversation.
func (e *ConversationEvents) Subscribe(conversationID string) (<-chan ConversationEvent, func()) {
	ch := make(chan ConversationEvent, conversationEventBufferSize)

	e.mu.Lock()
	if _, ok := e.subscribers[conversationID]; !ok {
		e.subscribers[conversationID] = make(map[chan ConversationEvent]struct{})
	}
	e.subscribers[conversationID][ch] = struct{}{}
	e.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			e.mu.Lock()
			if subs, ok := e.subscribers[conversationID]; ok {
				delete(subs, ch)
				if len(subs) == 0 {
					delete(e.subscribers, conversationID)
				}
			}
			e.mu.Unlock()
			close(ch)
		})
	}

	return ch, cancel
}

// Publish delivers the event locally and forwards it to the configured transports.
func (e *ConversationEvents) Publish(ctx context.Context, event ConversationEvent) {
	event.Source = e.nodeID
	if event.SentAt.IsZero() {
		event.SentAt = time.Now().UTC()
	}

	e.broadcast(event)

	payload, err := json.Marshal(event)
	if err != nil {
		e.logger.Warn().Err(err).Msg("failed to marshal conversation event")
		return
	}

	if e.redis != nil && e.redisStream != "" {
		if err := e.redis.Publish(ctx, e.redisStream, payload).Err(); err != nil {
			e.logger.Warn().Err(err).Str("conversation_id", event.ConversationID).Msg("failed to publish conversation event to redis")
		} else {
			observability.ConversationEventsPublished().WithLabelValues("redis").Inc()
		}
	}

	if e.nats != nil && e.natsSubject != "" {
		if err := e.nats.Publish(e.natsSubject, payload); err != nil {
			e.logger.Warn().Err(err).Str("conversation_id", event.ConversationID).Msg("failed to publish conversation event to nats")
		} else {
			observability.ConversationEventsPublished().WithLabelValues("nats").Inc()
		}
	}
}

func (e *ConversationEvents) broadcast(event ConversationEvent) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	for ch := range e.subscribers[event.ConversationID] {
		select {
		case ch <- event:
		default:
			e.logger.Debug().Str("conversation_id", event.ConversationID).Msg("dropping conversation event for slow subscriber")
		}
	}
	observability.ConversationEventsPublished().WithLabelValues("local").Inc()
}

func (e *ConversationEvents) handleRemote(data []byte) {
	var event ConversationEvent
	if err := json.Unmarshal(data, &event); err != nil {
		e.logger.Warn().Err(err).Msg("invalid conversation event")
		return
	}

	if event.Source == e.nodeID {
		return
	}

	e.broadcast(event)
}

func (e *ConversationEvents) consumeRedis(ctx context.Context) {
	pubsub := e.redis.Subscribe(ctx, e.redisStream)
	defer func() {
		_ = pubsub.Close()
	}()
	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, redis.ErrClosed) {
				return
			}
			e.logger.Error().Err(err).Msg("conversation redis subscription closed")
			return
		}
		e.handleRemote([]byte(msg.Payload))
	}
}

func (e *ConversationEvents) consumeNATS(ctx context.Context) {
	// Every node must receive every event; no queue group.
	sub, err := e.nats.Subscribe(e.natsSubject, func(msg *nats.Msg) {
		e.handleRemote(msg.Data)
	})
	if err != nil {
		e.logger.Error().Err(err).Msg("failed to subscribe to nats conversation subject")
		return
	}
	go func() {
		<-ctx.Done()
		if err := sub.Drain(); err != nil {
			e.logger.Warn().Err(err).Msg("failed to drain conversation nats subscription")
		}
	}()
}
