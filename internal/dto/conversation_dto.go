package dto

import (
	"time"

	"github.com/noah-isme/storefront-api/internal/models"
)

// ConversationMessageRequest carries a new text, emoji or voice payload.
type ConversationMessageRequest struct {
	Body string `json:"body" validate:"required"`
}

// ConversationEditRequest replaces the body of an existing text message.
type ConversationEditRequest struct {
	Body string `json:"body" validate:"required,max=4000"`
}

// ConversationDeleteRequest selects who a deletion applies to.
type ConversationDeleteRequest struct {
	Scope string `json:"scope" validate:"required,oneof=me everyone"`
}

// ConversationStatusRequest changes the admin triage status.
type ConversationStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=active pending resolved"`
}

// ConversationTypingRequest toggles the typing indicator.
type ConversationTypingRequest struct {
	IsTyping *bool `json:"is_typing" validate:"required"`
}

// ConversationListQuery filters the admin inbox.
type ConversationListQuery struct {
	Status string `query:"status" validate:"omitempty,oneof=active pending resolved"`
	Limit  int    `query:"limit" validate:"omitempty,min=1,max=200"`
	Offset int    `query:"offset" validate:"omitempty,min=0"`
}

// ConversationMessageResponse is a message as rendered for one viewer.
type ConversationMessageResponse struct {
	ID             string     `json:"id"`
	SenderRole     string     `json:"sender_role"`
	Body           string     `json:"body"`
	Kind           string     `json:"kind"`
	CreatedAt      time.Time  `json:"created_at"`
	EditedAt       *time.Time `json:"edited_at,omitempty"`
	DeliveryState  string     `json:"delivery_state"`
	IsRead         bool       `json:"is_read"`
	IsEdited       bool       `json:"is_edited"`
	IsTombstoned   bool       `json:"is_tombstoned"`
	TombstoneScope string     `json:"tombstone_scope"`
	IsMine         bool       `json:"is_mine"`
}

// ConversationResponse is the conversation projected for one viewer.
type ConversationResponse struct {
	ID                 string                        `json:"id"`
	UserID             string                        `json:"user_id"`
	UserDisplayName    string                        `json:"user_display_name"`
	UserEmail          string                        `json:"user_email"`
	Status             string                        `json:"status"`
	Viewer             string                        `json:"viewer"`
	LastActivityAt     time.Time                     `json:"last_activity_at"`
	UnreadByAdminCount int                           `json:"unread_by_admin_count"`
	UserIsTyping       bool                          `json:"user_is_typing"`
	AdminIsTyping      bool                          `json:"admin_is_typing"`
	TypingBy           string                        `json:"typing_by,omitempty"`
	ClearedAt          *time.Time                    `json:"cleared_at,omitempty"`
	Messages           []ConversationMessageResponse `json:"messages"`
	CreatedAt          time.Time                     `json:"created_at"`
	UpdatedAt          time.Time                     `json:"updated_at"`
}

// NewConversationMessageResponse converts a rendered message into a DTO.
func NewConversationMessageResponse(message models.ConversationMessage, viewer models.ChatRole) ConversationMessageResponse {
	return ConversationMessageResponse{
		ID:             message.ID,
		SenderRole:     string(message.SenderRole),
		Body:           message.Body,
		Kind:           string(message.Kind),
		CreatedAt:      message.CreatedAt,
		EditedAt:       message.EditedAt,
		DeliveryState:  string(message.DeliveryState),
		IsRead:         message.IsRead,
		IsEdited:       message.IsEdited,
		IsTombstoned:   message.IsTombstoned,
		TombstoneScope: string(message.TombstoneScope),
		IsMine:         message.SenderRole == viewer,
	}
}

// NewConversationResponse builds the viewer's DTO from an already rendered message list.
func NewConversationResponse(conversation models.Conversation, viewer models.ChatRole, rendered []models.ConversationMessage) ConversationResponse {
	messages := make([]ConversationMessageResponse, 0, len(rendered))
	for _, message := range rendered {
		messages = append(messages, NewConversationMessageResponse(message, viewer))
	}

	return ConversationResponse{
		ID:                 conversation.ID,
		UserID:             conversation.UserID,
		UserDisplayName:    conversation.UserDisplayName,
		UserEmail:          conversation.UserEmail,
		Status:             string(conversation.Status),
		Viewer:             string(viewer),
		LastActivityAt:     conversation.LastActivityAt,
		UnreadByAdminCount: conversation.UnreadByAdminCount,
		UserIsTyping:       conversation.UserIsTyping,
		AdminIsTyping:      conversation.AdminIsTyping,
		TypingBy:           conversation.TypingBy,
		ClearedAt:          conversation.ClearedAtFor(viewer),
		Messages:           messages,
		CreatedAt:          conversation.CreatedAt,
		UpdatedAt:          conversation.UpdatedAt,
	}
}
