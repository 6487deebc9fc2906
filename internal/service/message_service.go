package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/noah-isme/erms-api/internal/dto"
	"github.com/noah-isme/erms-api/internal/middleware"
	"github.com/noah-isme/erms-api/internal/models"
	"github.com/noah-isme/erms-api/internal/observability"
	"github.com/noah-isme/erms-api/internal/repository"
)

const (
	realtimeSendBufferSize = 32
	realtimePingInterval   = 30 * time.Second

	// EventMessage is pushed when a direct message is created.
	EventMessage = "message"
	// EventRead is pushed to the sender when the recipient reads a message.
	EventRead = "message.read"
	// EventError is pushed when a frame sent over the socket is rejected.
	EventError = "error"
)

// RealtimeConn is the subset of a websocket connection the message hub needs.
type RealtimeConn interface {
	ReadJSON(v interface{}) error
	WriteJSON(v interface{}) error
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// RealtimeOptions carries what the HTTP upgrade learned about the client.
type RealtimeOptions struct {
	UserID        uint
	Role          string
	CorrelationID string
	Context       context.Context
}

// MessageService stores direct messages and delivers them live.
type MessageService interface {
	Send(ctx context.Context, actor Actor, req dto.SendMessageRequest) (dto.MessageResponse, error)
	Conversations(ctx context.Context, actor Actor) ([]dto.ConversationResponse, error)
	Thread(ctx context.Context, actor Actor, counterpartID uint, req dto.ThreadRequest) ([]dto.MessageResponse, error)
	MarkRead(ctx context.Context, actor Actor, messageID uint) (dto.MessageResponse, error)
	MarkThreadRead(ctx context.Context, actor Actor, counterpartID uint) (int64, error)
	UnreadCount(ctx context.Context, actor Actor) (int64, error)
	ServeConnection(conn RealtimeConn, opts RealtimeOptions)
	Start(ctx context.Context)
}

// MessageBroker selects how events reach the other API nodes. NATS wins when
// both are configured so remote nodes never see an event twice.
type MessageBroker struct {
	Redis   *redis.Client
	NATS    *nats.Conn
	Channel string
}

type messageService struct {
	messages    repository.MessageRepository
	users       repository.UserRepository
	redis       *redis.Client
	redisTopic  string
	nats        *nats.Conn
	natsSubject string
	validator   *validator.Validate
	logger      zerolog.Logger
	tracer      trace.Tracer
	sanitizer   *bluemonday.Policy
	hub         *messageHub
	nodeID      string
	now         func() time.Time
}

type messageHub struct {
	mu      sync.RWMutex
	clients map[uint]map[*realtimeClient]struct{}
	log     zerolog.Logger
}

type realtimeClient struct {
	conn    RealtimeConn
	send    chan interface{}
	options RealtimeOptions
	service *messageService
	closed  chan struct{}
	once    sync.Once
}

type messageEvent struct {
	Source  string              `json:"source"`
	Type    string              `json:"type"`
	Message dto.MessageResponse `json:"message"`
	SentAt  time.Time           `json:"sent_at"`
}

// NewMessageService creates the messaging service. Both brokers are optional;
// without them delivery is limited to sockets on this node.
func NewMessageService(messages repository.MessageRepository, users repository.UserRepository, broker MessageBroker, validate *validator.Validate, logger zerolog.Logger) MessageService {
	hub := &messageHub{
		clients: make(map[uint]map[*realtimeClient]struct{}),
		log:     logger.With().Str("component", "message_hub").Logger(),
	}

	svc := &messageService{
		messages:  messages,
		users:     users,
		validator: validate,
		logger:    logger.With().Str("component", "message_service").Logger(),
		tracer:    otel.Tracer("github.com/noah-isme/erms-api/internal/service/message"),
		sanitizer: bluemonday.StrictPolicy(),
		hub:       hub,
		nodeID:    uuid.NewString(),
		now:       time.Now,
	}

	channel := strings.TrimSpace(broker.Channel)
	if channel == "" {
		return svc
	}
	switch {
	case broker.NATS != nil:
		svc.nats = broker.NATS
		svc.natsSubject = strings.ReplaceAll(channel, ":", ".") + ".messages"
	case broker.Redis != nil:
		svc.redis = broker.Redis
		svc.redisTopic = channel + ":messages"
	}
	return svc
}

func (s *messageService) Start(ctx context.Context) {
	// publish prefers NATS, so only one transport is consumed.
	if s.nats != nil {
		s.consumeNATS(ctx)
		return
	}
	if s.redis != nil {
		go s.consumeRedis(ctx)
	}
}

func (s *messageService) Send(ctx context.Context, actor Actor, req dto.SendMessageRequest) (dto.MessageResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.MessageResponse{}, err
	}

	ctx, span := s.tracer.Start(ctx, "message.send", trace.WithAttributes(
		attribute.Int64("message.sender_id", int64(actor.ID)),
		attribute.Int64("message.recipient_id", int64(req.RecipientID)),
	))
	defer span.End()
	if correlation := middleware.CorrelationIDFromContext(ctx); correlation != "" {
		span.SetAttributes(attribute.String("correlation_id", correlation))
	}

	clean := strings.TrimSpace(s.sanitizer.Sanitize(req.Content))
	if clean == "" {
		span.SetStatus(codes.Error, "empty_content")
		return dto.MessageResponse{}, fmt.Errorf("%w: message content is empty", ErrInvalidInput)
	}
	if req.RecipientID == actor.ID {
		return dto.MessageResponse{}, fmt.Errorf("%w: cannot message yourself", ErrInvalidInput)
	}

	recipient, err := s.users.GetByID(ctx, req.RecipientID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.MessageResponse{}, ErrUserNotFound
		}
		span.RecordError(err)
		return dto.MessageResponse{}, err
	}
	if !recipient.Active {
		return dto.MessageResponse{}, fmt.Errorf("%w: recipient account is inactive", ErrInvalidInput)
	}
	if actor.IsStudent() && recipient.Role == models.RoleStudent {
		span.SetStatus(codes.Error, "forbidden")
		return dto.MessageResponse{}, ErrForbidden
	}

	model := models.Message{
		SenderID:    actor.ID,
		RecipientID: recipient.ID,
		Content:     clean,
	}
	if err := s.messages.Save(ctx, &model); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist_failed")
		return dto.MessageResponse{}, err
	}

	response := dto.NewMessageResponse(model)
	s.deliver(EventMessage, response)
	if err := s.publish(ctx, EventMessage, response); err != nil {
		span.RecordError(err)
		s.logger.Warn().Err(err).Msg("failed to publish message event")
	}

	observability.MessagesSent().Inc()
	return response, nil
}

func (s *messageService) Conversations(ctx context.Context, actor Actor) ([]dto.ConversationResponse, error) {
	summaries, err := s.messages.Conversations(ctx, actor.ID)
	if err != nil {
		return nil, err
	}
	if len(summaries) == 0 {
		return []dto.ConversationResponse{}, nil
	}

	messageIDs := make([]uint, 0, len(summaries))
	userIDs := make([]uint, 0, len(summaries))
	for _, summary := range summaries {
		messageIDs = append(messageIDs, summary.LastMessageID)
		userIDs = append(userIDs, summary.CounterpartID)
	}

	messages, err := s.messages.GetByIDs(ctx, messageIDs)
	if err != nil {
		return nil, err
	}
	users, err := s.users.GetByIDs(ctx, userIDs)
	if err != nil {
		return nil, err
	}

	messageByID := make(map[uint]models.Message, len(messages))
	for _, message := range messages {
		messageByID[message.ID] = message
	}
	userByID := make(map[uint]models.User, len(users))
	for _, user := range users {
		userByID[user.ID] = user
	}

	conversations := make([]dto.ConversationResponse, 0, len(summaries))
	for _, summary := range summaries {
		counterpart, ok := userByID[summary.CounterpartID]
		if !ok {
			// Counterpart was deleted.
			continue
		}
		conversations = append(conversations, dto.ConversationResponse{
			Counterpart: dto.NewUserSummary(counterpart),
			LastMessage: dto.NewMessageResponse(messageByID[summary.LastMessageID]),
			Unread:      summary.Unread,
		})
	}
	return conversations, nil
}

func (s *messageService) Thread(ctx context.Context, actor Actor, counterpartID uint, req dto.ThreadRequest) ([]dto.MessageResponse, error) {
	if counterpartID == 0 || counterpartID == actor.ID {
		return nil, fmt.Errorf("%w: invalid counterpart", ErrInvalidInput)
	}
	messages, err := s.messages.Thread(ctx, actor.ID, counterpartID, req.Before, req.Limit)
	if err != nil {
		return nil, err
	}
	responses := make([]dto.MessageResponse, 0, len(messages))
	for _, message := range messages {
		responses = append(responses, dto.NewMessageResponse(message))
	}
	return responses, nil
}

func (s *messageService) MarkRead(ctx context.Context, actor Actor, messageID uint) (dto.MessageResponse, error) {
	message, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.MessageResponse{}, ErrMessageNotFound
		}
		return dto.MessageResponse{}, err
	}
	if message.RecipientID != actor.ID {
		return dto.MessageResponse{}, ErrForbidden
	}
	if message.ReadAt != nil {
		return dto.NewMessageResponse(message), nil
	}

	now := s.now()
	if err := s.messages.MarkRead(ctx, message.ID, now); err != nil {
		return dto.MessageResponse{}, err
	}
	message.ReadAt = &now

	response := dto.NewMessageResponse(message)
	s.deliver(EventRead, response)
	if err := s.publish(ctx, EventRead, response); err != nil {
		s.logger.Warn().Err(err).Msg("failed to publish read event")
	}
	return response, nil
}

func (s *messageService) MarkThreadRead(ctx context.Context, actor Actor, counterpartID uint) (int64, error) {
	return s.messages.MarkThreadRead(ctx, actor.ID, counterpartID, s.now())
}

func (s *messageService) UnreadCount(ctx context.Context, actor Actor) (int64, error) {
	return s.messages.CountUnread(ctx, actor.ID)
}

func (s *messageService) ServeConnection(conn RealtimeConn, opts RealtimeOptions) {
	if opts.Context == nil {
		opts.Context = context.Background()
	}

	client := &realtimeClient{
		conn:    conn,
		send:    make(chan interface{}, realtimeSendBufferSize),
		options: opts,
		service: s,
		closed:  make(chan struct{}),
	}

	s.hub.register(client)
	observability.RealtimeConnections().Inc()
	defer observability.RealtimeConnections().Dec()

	go client.writer()
	client.reader()
}

// deliver pushes an event to the open sockets of both participants on this node.
func (s *messageService) deliver(eventType string, message dto.MessageResponse) {
	event := dto.MessageEvent{Type: eventType, Message: message}
	s.hub.push(message.RecipientID, event)
	if message.SenderID != message.RecipientID {
		s.hub.push(message.SenderID, event)
	}
}

func (s *messageService) publish(ctx context.Context, eventType string, message dto.MessageResponse) error {
	if s.redis == nil && s.nats == nil {
		return nil
	}

	payload, err := json.Marshal(messageEvent{
		Source:  s.nodeID,
		Type:    eventType,
		Message: message,
		SentAt:  s.now().UTC(),
	})
	if err != nil {
		return err
	}

	if s.nats != nil {
		return s.nats.Publish(s.natsSubject, payload)
	}
	return s.redis.Publish(ctx, s.redisTopic, payload).Err()
}

func (s *messageService) consumeRedis(ctx context.Context) {
	pubsub := s.redis.Subscribe(ctx, s.redisTopic)
	defer func() {
		_ = pubsub.Close()
	}()
	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, redis.ErrClosed) {
				return
			}
			s.logger.Error().Err(err).Msg("message redis subscription closed")
			return
		}
		s.handleEvent([]byte(msg.Payload))
	}
}

func (s *messageService) consumeNATS(ctx context.Context) {
	sub, err := s.nats.Subscribe(s.natsSubject, func(msg *nats.Msg) {
		s.handleEvent(msg.Data)
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to subscribe to nats message subject")
		return
	}
	go func() {
		<-ctx.Done()
		if err := sub.Drain(); err != nil {
			s.logger.Warn().Err(err).Msg("failed to drain message nats subscription")
		}
	}()
}

func (s *messageService) handleEvent(data []byte) {
	var event messageEvent
	if err := json.Unmarshal(data, &event); err != nil {
		s.logger.Warn().Err(err).Msg("invalid message event")
		return
	}
	if event.Source == s.nodeID {
		return
	}
	s.deliver(event.Type, event.Message)
}

func (h *messageHub) register(client *realtimeClient) {
	h.mu.Lock()
	defer h.mu.Unlock()

	userID := client.options.UserID
	if _, exists := h.clients[userID]; !exists {
		h.clients[userID] = make(map[*realtimeClient]struct{})
	}
	h.clients[userID][client] = struct{}{}
	h.log.Debug().Uint("user_id", userID).Msg("realtime client connected")
}

func (h *messageHub) unregister(client *realtimeClient) {
	h.mu.Lock()
	defer h.mu.Unlock()

	userID := client.options.UserID
	if clients, ok := h.clients[userID]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.clients, userID)
		}
	}
	h.log.Debug().Uint("user_id", userID).Msg("realtime client disconnected")
}

func (h *messageHub) push(userID uint, event interface{}) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients[userID] {
		select {
		case client.send <- event:
		default:
			h.log.Warn().Uint("user_id", userID).Msg("dropping event for slow client")
		}
	}
}

func (c *realtimeClient) reader() {
	defer c.close()

	ctx := c.options.Context
	if c.options.CorrelationID != "" {
		ctx = middleware.ContextWithCorrelation(ctx, c.options.CorrelationID)
	}
	actor := Actor{ID: c.options.UserID, Role: c.options.Role}

	for {
		var frame dto.SendMessageRequest
		if err := c.conn.ReadJSON(&frame); err != nil {
			c.service.logger.Debug().Err(err).Msg("realtime read loop ended")
			return
		}

		// Successful sends reach this client through the hub like any other event.
		if _, err := c.service.Send(ctx, actor, frame); err != nil {
			c.service.logger.Warn().Err(err).Uint("user_id", actor.ID).Msg("failed to process realtime frame")
			c.enqueue(dto.ErrorEvent{Type: EventError, Error: frameError(err)})
		}
	}
}

func (c *realtimeClient) enqueue(event interface{}) {
	select {
	case <-c.closed:
	case c.send <- event:
	default:
		c.service.logger.Warn().Msg("client queue full, dropping event")
	}
}

func (c *realtimeClient) writer() {
	defer c.close()

	ticker := time.NewTicker(realtimePingInterval)
	defer ticker.Stop()

	for {
		select {
		case event := <-c.send:
			if err := c.conn.WriteJSON(event); err != nil {
				c.service.logger.Debug().Err(err).Msg("realtime write loop terminated")
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteMessage(websocket.PingMessage, []byte("keepalive")); err != nil {
				c.service.logger.Debug().Err(err).Msg("realtime ping failed")
				return
			}
		case <-c.closed:
			return
		}
	}
}

func (c *realtimeClient) close() {
	c.once.Do(func() {
		close(c.closed)
		c.service.hub.unregister(c)
		_ = c.conn.Close()
	})
}

// frameError hides internal failures from socket clients.
func frameError(err error) string {
	var validationErrs validator.ValidationErrors
	switch {
	case errors.As(err, &validationErrs):
		return "invalid message payload"
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrForbidden), errors.Is(err, ErrUserNotFound):
		return err.Error()
	default:
		return "internal server error"
	}
}
