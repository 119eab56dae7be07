package service

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/noah-isme/storefront-api/internal/dto"
	"github.com/noah-isme/storefront-api/internal/models"
	"github.com/noah-isme/storefront-api/internal/observability"
	"github.com/noah-isme/storefront-api/internal/repository"
)

const (
	maxTextRunes  = 4000
	maxEmojiRunes = 32
)

var (
	// ErrConversationNotFound indicates no conversation matched the lookup.
	ErrConversationNotFound = errors.New("conversation not found")
	// ErrMessageNotFound indicates the message id is not part of the conversation.
	ErrMessageNotFound = errors.New("message not found")
	// ErrMessageForbidden indicates the actor tried to change the other participant's message.
	ErrMessageForbidden = errors.New("message belongs to the other participant")
	// ErrEditWindowExpired indicates the edit came after the allowed window.
	ErrEditWindowExpired = errors.New("message can no longer be edited")
	// ErrChatValidation is wrapped by every input validation failure.
	ErrChatValidation = errors.New("invalid conversation request")
	// ErrEmptyMessage indicates a blank body.
	ErrEmptyMessage = fmt.Errorf("%w: message body must not be empty", ErrChatValidation)
)

// DeleteScope selects who a deletion applies to.
type DeleteScope string

const (
	DeleteScopeMe       DeleteScope = "me"
	DeleteScopeEveryone DeleteScope = "everyone"
)

// ChatActor is the authenticated participant performing an operation.
type ChatActor struct {
	ID          string
	Role        models.ChatRole
	DisplayName string
	Email       string
}

// ConversationOptions tunes the conversation service.
type ConversationOptions struct {
	EditWindow time.Duration
	TypingRPS  float64
}

// ConversationService exposes the conversation store operations.
// End-user actors always address their own conversation; admin actors pass a conversation id.
type ConversationService interface {
	GetOrCreate(ctx context.Context, actor ChatActor) (dto.ConversationResponse, error)
	View(ctx context.Context, actor ChatActor, conversationID string) (dto.ConversationResponse, error)
	ListForAdmin(ctx context.Context, query dto.ConversationListQuery) ([]dto.ConversationResponse, error)
	AppendUserMessage(ctx context.Context, actor ChatActor, kind models.MessageKind, body string) (dto.ConversationResponse, error)
	AppendAdminReply(ctx context.Context, actor ChatActor, conversationID, body string) (dto.ConversationResponse, error)
	EditMessage(ctx context.Context, actor ChatActor, conversationID, messageID, body string) (dto.ConversationResponse, error)
	DeleteMessage(ctx context.Context, actor ChatActor, conversationID, messageID string, scope DeleteScope) (dto.ConversationResponse, error)
	HardDeleteAdminMessage(ctx context.Context, actor ChatActor, conversationID, messageID string) (dto.ConversationResponse, error)
	MarkRead(ctx context.Context, actor ChatActor, conversationID string) (dto.ConversationResponse, error)
	SetStatus(ctx context.Context, actor ChatActor, conversationID, status string) (dto.ConversationResponse, error)
	SetClearPoint(ctx context.Context, actor ChatActor, conversationID string) (dto.ConversationResponse, error)
	SetTyping(ctx context.Context, actor ChatActor, conversationID string, isTyping bool) (dto.ConversationResponse, error)
	Subscribe(conversationID string) (<-chan ConversationEvent, func())
}

type conversationService struct {
	repo       repository.ConversationRepository
	events     *ConversationEvents
	voice      *VoiceEncoder
	validator  *validator.Validate
	logger     zerolog.Logger
	tracer     trace.Tracer
	sanitizer  *bluemonday.Policy
	typing     *typingLimiter
	editWindow time.Duration
	now        func() time.Time
}

// NewConversationService constructs the conversation service.
func NewConversationService(repo repository.ConversationRepository, events *ConversationEvents, voice *VoiceEncoder, validate *validator.Validate, opts ConversationOptions, logger zerolog.Logger) ConversationService {
	window := opts.EditWindow
	if window <= 0 {
		window = time.Minute
	}

	return &conversationService{
		repo:       repo,
		events:     events,
		voice:      voice,
		validator:  validate,
		logger:     logger.With().Str("component", "conversation_service").Logger(),
		tracer:     otel.Tracer("github.com/noah-isme/storefront-api/internal/service/conversation"),
		sanitizer:  bluemonday.StrictPolicy(),
		typing:     newTypingLimiter(opts.TypingRPS, 2),
		editWindow: window,
		now:        time.Now,
	}
}

func (s *conversationService) GetOrCreate(ctx context.Context, actor ChatActor) (dto.ConversationResponse, error) {
	if err := s.ensure(ctx, actor); err != nil {
		return dto.ConversationResponse{}, err
	}
	return s.View(ctx, actor, "")
}

// View renders the conversation for the actor and records delivery of the counterpart's messages.
func (s *conversationService) View(ctx context.Context, actor ChatActor, conversationID string) (dto.ConversationResponse, error) {
	return s.mutate(ctx, "mark_delivered", actor, conversationID, func(conversation *models.Conversation, _ time.Time) (string, error) {
		if markDelivered(conversation, actor.Role) {
			return EventMessageDelivered, nil
		}
		return "", nil
	})
}

func (s *conversationService) ListForAdmin(ctx context.Context, query dto.ConversationListQuery) ([]dto.ConversationResponse, error) {
	if err := s.validator.Struct(query); err != nil {
		return nil, err
	}

	ctx, span := s.tracer.Start(ctx, "conversation.list", trace.WithAttributes(attribute.String("conversation.status", query.Status)))
	defer span.End()

	conversations, err := s.repo.List(ctx, repository.ConversationFilter{
		Status: models.ConversationStatus(query.Status),
		Limit:  query.Limit,
		Offset: query.Offset,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list failed")
		return nil, err
	}

	admin := ChatActor{Role: models.ChatRoleAdmin}
	out := make([]dto.ConversationResponse, 0, len(conversations))
	for _, conversation := range conversations {
		if !needsDelivery(conversation, models.ChatRoleAdmin) {
			out = append(out, s.render(conversation, models.ChatRoleAdmin))
			continue
		}

		view, err := s.View(ctx, admin, conversation.ID)
		if err != nil {
			if errors.Is(err, ErrConversationNotFound) {
				continue
			}
			span.RecordError(err)
			return nil, err
		}
		out = append(out, view)
	}

	return out, nil
}

func (s *conversationService) AppendUserMessage(ctx context.Context, actor ChatActor, kind models.MessageKind, body string) (dto.ConversationResponse, error) {
	if actor.Role != models.ChatRoleUser {
		return dto.ConversationResponse{}, ErrMessageForbidden
	}

	clean, err := s.prepareBody(ctx, kind, body)
	if err != nil {
		observability.ConversationOperations().WithLabelValues("append_user", "invalid").Inc()
		return dto.ConversationResponse{}, err
	}

	if err := s.ensure(ctx, actor); err != nil {
		return dto.ConversationResponse{}, err
	}

	response, err := s.mutate(ctx, "append_user", actor, "", func(conversation *models.Conversation, now time.Time) (string, error) {
		appendUserMessage(conversation, newMessage(uuid.NewString(), models.ChatRoleUser, actor.ID, kind, clean, now))
		return EventMessageCreated, nil
	})
	if err != nil {
		return dto.ConversationResponse{}, err
	}

	observability.ConversationMessages().WithLabelValues(string(models.ChatRoleUser), string(kind)).Inc()
	return response, nil
}

func (s *conversationService) AppendAdminReply(ctx context.Context, actor ChatActor, conversationID, body string) (dto.ConversationResponse, error) {
	if actor.Role != models.ChatRoleAdmin {
		return dto.ConversationResponse{}, ErrMessageForbidden
	}

	clean, err := s.prepareBody(ctx, models.MessageKindText, body)
	if err != nil {
		observability.ConversationOperations().WithLabelValues("append_admin", "invalid").Inc()
		return dto.ConversationResponse{}, err
	}

	response, err := s.mutate(ctx, "append_admin", actor, conversationID, func(conversation *models.Conversation, now time.Time) (string, error) {
		appendAdminReply(conversation, newMessage(uuid.NewString(), models.ChatRoleAdmin, actor.ID, models.MessageKindText, clean, now))
		return EventMessageCreated, nil
	})
	if err != nil {
		return dto.ConversationResponse{}, err
	}

	observability.ConversationMessages().WithLabelValues(string(models.ChatRoleAdmin), string(models.MessageKindText)).Inc()
	return response, nil
}

func (s *conversationService) EditMessage(ctx context.Context, actor ChatActor, conversationID, messageID, body string) (dto.ConversationResponse, error) {
	return s.mutate(ctx, "edit", actor, conversationID, func(conversation *models.Conversation, now time.Time) (string, error) {
		err := editMessage(conversation, actor.Role, messageID, now, s.editWindow, func() (string, error) {
			return s.sanitizeText(body)
		})
		if err != nil {
			return "", err
		}
		return EventMessageUpdated, nil
	})
}

func (s *conversationService) DeleteMessage(ctx context.Context, actor ChatActor, conversationID, messageID string, scope DeleteScope) (dto.ConversationResponse, error) {
	if scope != DeleteScopeMe && scope != DeleteScopeEveryone {
		return dto.ConversationResponse{}, fmt.Errorf("%w: scope must be \"me\" or \"everyone\"", ErrChatValidation)
	}

	return s.mutate(ctx, "delete_"+string(scope), actor, conversationID, func(conversation *models.Conversation, _ time.Time) (string, error) {
		changed, err := deleteMessage(conversation, actor.Role, messageID, scope)
		if err != nil || !changed {
			return "", err
		}
		return EventMessageUpdated, nil
	})
}

func (s *conversationService) HardDeleteAdminMessage(ctx context.Context, actor ChatActor, conversationID, messageID string) (dto.ConversationResponse, error) {
	if actor.Role != models.ChatRoleAdmin {
		return dto.ConversationResponse{}, ErrMessageForbidden
	}

	return s.mutate(ctx, "hard_delete", actor, conversationID, func(conversation *models.Conversation, _ time.Time) (string, error) {
		if err := hardDeleteAdminMessage(conversation, messageID); err != nil {
			return "", err
		}
		return EventMessageRemoved, nil
	})
}

func (s *conversationService) MarkRead(ctx context.Context, actor ChatActor, conversationID string) (dto.ConversationResponse, error) {
	return s.mutate(ctx, "mark_read", actor, conversationID, func(conversation *models.Conversation, _ time.Time) (string, error) {
		if markRead(conversation, actor.Role) {
			return EventMessageRead, nil
		}
		return "", nil
	})
}

func (s *conversationService) SetStatus(ctx context.Context, actor ChatActor, conversationID, status string) (dto.ConversationResponse, error) {
	if actor.Role != models.ChatRoleAdmin {
		return dto.ConversationResponse{}, ErrMessageForbidden
	}

	next := models.ConversationStatus(strings.ToLower(strings.TrimSpace(status)))
	if !next.Valid() {
		return dto.ConversationResponse{}, fmt.Errorf("%w: unknown status %q", ErrChatValidation, status)
	}

	return s.mutate(ctx, "set_status", actor, conversationID, func(conversation *models.Conversation, _ time.Time) (string, error) {
		if conversation.Status == next {
			return "", nil
		}
		conversation.Status = next
		return EventStatusChanged, nil
	})
}

func (s *conversationService) SetClearPoint(ctx context.Context, actor ChatActor, conversationID string) (dto.ConversationResponse, error) {
	return s.mutate(ctx, "clear", actor, conversationID, func(conversation *models.Conversation, now time.Time) (string, error) {
		setClearPoint(conversation, actor.Role, now)
		return EventCleared, nil
	})
}

func (s *conversationService) SetTyping(ctx context.Context, actor ChatActor, conversationID string, isTyping bool) (dto.ConversationResponse, error) {
	if isTyping {
		current, err := s.find(ctx, actor, conversationID)
		if err != nil {
			return dto.ConversationResponse{}, err
		}
		key := typingKey(current.ID, actor.Role)
		if typingSetBy(current, actor) && !s.typing.Allow(key, s.now()) {
			observability.ConversationOperations().WithLabelValues("typing", "coalesced").Inc()
			return s.render(current, actor.Role), nil
		}
	}

	response, err := s.mutate(ctx, "typing", actor, conversationID, func(conversation *models.Conversation, _ time.Time) (string, error) {
		if setTyping(conversation, actor.Role, actor.ID, isTyping) {
			return EventTyping, nil
		}
		return "", nil
	})
	if err == nil && !isTyping {
		s.typing.Forget(typingKey(response.ID, actor.Role))
	}
	return response, err
}

func typingKey(conversationID string, role models.ChatRole) string {
	return conversationID + ":" + string(role)
}

// typingSetBy reports whether actor's side is already flagged as typing by actor.
func typingSetBy(conversation models.Conversation, actor ChatActor) bool {
	flag := conversation.UserIsTyping
	if actor.Role == models.ChatRoleAdmin {
		flag = conversation.AdminIsTyping
	}
	return flag && conversation.TypingBy == actor.ID
}

func (s *conversationService) Subscribe(conversationID string) (<-chan ConversationEvent, func()) {
	return s.events.Subscribe(conversationID)
}

// mutate runs fn against the locked conversation and publishes an event when fn reports a change.
func (s *conversationService) mutate(ctx context.Context, op string, actor ChatActor, conversationID string, fn func(*models.Conversation, time.Time) (string, error)) (dto.ConversationResponse, error) {
	lookup, err := lookupFor(actor, conversationID)
	if err != nil {
		return dto.ConversationResponse{}, err
	}

	ctx, span := s.tracer.Start(ctx, "conversation."+op, trace.WithAttributes(
		attribute.String("conversation.actor_role", string(actor.Role)),
		attribute.String("conversation.lookup_id", lookup.ID),
		attribute.String("conversation.lookup_user_id", lookup.UserID),
		attribute.String("correlation_id", observability.CorrelationID(ctx)),
	))
	defer span.End()

	var eventKind string
	conversation, err := s.repo.Update(ctx, lookup, func(conversation *models.Conversation) error {
		kind, err := fn(conversation, s.now().UTC().Truncate(time.Microsecond))
		if err != nil {
			return err
		}
		if kind == "" {
			return repository.ErrSkipUpdate
		}
		eventKind = kind
		return nil
	})
	if err != nil {
		err = translateRepoError(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, op+" failed")
		observability.ConversationOperations().WithLabelValues(op, outcomeLabel(err)).Inc()
		return dto.ConversationResponse{}, err
	}

	observability.ConversationOperations().WithLabelValues(op, "ok").Inc()
	if eventKind != "" && s.events != nil {
		s.events.Publish(ctx, ConversationEvent{
			ConversationID: conversation.ID,
			UserID:         conversation.UserID,
			Kind:           eventKind,
		})
		s.logger.Debug().
			Str("correlation_id", observability.CorrelationID(ctx)).
			Str("conversation_id", conversation.ID).
			Str("event", eventKind).
			Str("actor_role", string(actor.Role)).
			Msg("conversation updated")
	}

	return s.render(conversation, actor.Role), nil
}

func (s *conversationService) ensure(ctx context.Context, actor ChatActor) error {
	if actor.Role != models.ChatRoleUser || strings.TrimSpace(actor.ID) == "" {
		return ErrConversationNotFound
	}

	now := s.now().UTC().Truncate(time.Microsecond)
	seed := models.Conversation{
		ID:              uuid.NewString(),
		UserID:          actor.ID,
		UserDisplayName: strings.TrimSpace(actor.DisplayName),
		UserEmail:       strings.ToLower(strings.TrimSpace(actor.Email)),
		Messages:        datatypes.JSONSlice[models.ConversationMessage]{},
		Status:          models.ConversationStatusActive,
		LastActivityAt:  now,
	}
	conversation, err := s.repo.FindOrCreate(ctx, seed)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", actor.ID).Str("email", maskEmail(actor.Email)).Msg("failed to load conversation")
		return err
	}
	if conversation.ID == seed.ID {
		s.logger.Info().Str("conversation_id", conversation.ID).Str("email", maskEmail(conversation.UserEmail)).Msg("conversation opened")
	}
	return nil
}

func (s *conversationService) find(ctx context.Context, actor ChatActor, conversationID string) (models.Conversation, error) {
	lookup, err := lookupFor(actor, conversationID)
	if err != nil {
		return models.Conversation{}, err
	}

	var conversation models.Conversation
	if lookup.ID != "" {
		conversation, err = s.repo.FindByID(ctx, lookup.ID)
	} else {
		conversation, err = s.repo.FindByUserID(ctx, lookup.UserID)
	}
	if err != nil {
		return models.Conversation{}, translateRepoError(err)
	}
	return conversation, nil
}

func (s *conversationService) render(conversation models.Conversation, viewer models.ChatRole) dto.ConversationResponse {
	return dto.NewConversationResponse(conversation, viewer, RenderFor(conversation, viewer))
}

func (s *conversationService) prepareBody(ctx context.Context, kind models.MessageKind, body string) (string, error) {
	switch kind {
	case models.MessageKindText:
		return s.sanitizeText(body)
	case models.MessageKindEmoji:
		emoji := s.sanitize(body)
		if emoji == "" {
			return "", ErrEmptyMessage
		}
		if utf8.RuneCountInString(emoji) > maxEmojiRunes {
			return "", fmt.Errorf("%w: emoji payload too long", ErrChatValidation)
		}
		return emoji, nil
	case models.MessageKindVoice:
		if strings.TrimSpace(body) == "" {
			return "", ErrEmptyMessage
		}
		if s.voice == nil {
			return "", fmt.Errorf("%w: voice notes are disabled", ErrChatValidation)
		}
		return s.voice.Encode(ctx, body)
	default:
		return "", fmt.Errorf("%w: unknown message kind %q", ErrChatValidation, kind)
	}
}

// sanitize decodes entities before applying the policy so encoded markup is
// stripped like literal markup. The policy output is stored as is.
func (s *conversationService) sanitize(body string) string {
	return strings.TrimSpace(s.sanitizer.Sanitize(html.UnescapeString(body)))
}

func (s *conversationService) sanitizeText(body string) (string, error) {
	clean := s.sanitize(body)
	if clean == "" {
		return "", ErrEmptyMessage
	}
	if utf8.RuneCountInString(clean) > maxTextRunes {
		return "", fmt.Errorf("%w: message exceeds %d characters", ErrChatValidation, maxTextRunes)
	}
	return clean, nil
}

func lookupFor(actor ChatActor, conversationID string) (repository.ConversationLookup, error) {
	switch actor.Role {
	case models.ChatRoleUser:
		if strings.TrimSpace(actor.ID) == "" {
			return repository.ConversationLookup{}, ErrConversationNotFound
		}
		return repository.ConversationLookup{UserID: actor.ID}, nil
	case models.ChatRoleAdmin:
		if strings.TrimSpace(conversationID) == "" {
			return repository.ConversationLookup{}, ErrConversationNotFound
		}
		return repository.ConversationLookup{ID: conversationID}, nil
	default:
		return repository.ConversationLookup{}, ErrMessageForbidden
	}
}

func translateRepoError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrConversationNotFound
	}
	return err
}

func outcomeLabel(err error) string {
	switch {
	case errors.Is(err, ErrConversationNotFound), errors.Is(err, ErrMessageNotFound):
		return "not_found"
	case errors.Is(err, ErrMessageForbidden):
		return "forbidden"
	case errors.Is(err, ErrEditWindowExpired):
		return "expired"
	case errors.Is(err, ErrChatValidation):
		return "invalid"
	default:
		return "error"
	}
}
