package models

import (
	"time"

	"gorm.io/datatypes"
)

// ChatRole identifies one of the two participants of a conversation.
type ChatRole string

const (
	ChatRoleUser  ChatRole = "user"
	ChatRoleAdmin ChatRole = "admin"
)

// Valid reports whether the role is one of the known participants.
func (r ChatRole) Valid() bool {
	return r == ChatRoleUser || r == ChatRoleAdmin
}

// Counterpart returns the opposite participant.
func (r ChatRole) Counterpart() ChatRole {
	if r == ChatRoleAdmin {
		return ChatRoleUser
	}
	return ChatRoleAdmin
}

// MessageKind describes the payload carried by a message body.
type MessageKind string

const (
	MessageKindText  MessageKind = "text"
	MessageKindEmoji MessageKind = "emoji"
	MessageKindVoice MessageKind = "voice"
)

// DeliveryState tracks receipt progress; it only ever moves forward.
type DeliveryState string

const (
	DeliveryStateSent      DeliveryState = "sent"
	DeliveryStateDelivered DeliveryState = "delivered"
	DeliveryStateRead      DeliveryState = "read"
)

func (s DeliveryState) rank() int {
	switch s {
	case DeliveryStateDelivered:
		return 1
	case DeliveryStateRead:
		return 2
	default:
		return 0
	}
}

// Before reports whether s precedes other in the sent -> delivered -> read order.
func (s DeliveryState) Before(other DeliveryState) bool {
	return s.rank() < other.rank()
}

// TombstoneScope records who a tombstone applies to.
type TombstoneScope string

const (
	TombstoneNone       TombstoneScope = "none"
	TombstoneSenderOnly TombstoneScope = "senderOnly"
	TombstoneEveryone   TombstoneScope = "everyone"
)

// ConversationStatus is the triage state set by the admin.
type ConversationStatus string

const (
	ConversationStatusActive   ConversationStatus = "active"
	ConversationStatusPending  ConversationStatus = "pending"
	ConversationStatusResolved ConversationStatus = "resolved"
)

// Valid reports whether the status is one of the known triage states.
func (s ConversationStatus) Valid() bool {
	switch s {
	case ConversationStatusActive, ConversationStatusPending, ConversationStatusResolved:
		return true
	default:
		return false
	}
}

// ConversationMessage is embedded in the conversation document.
type ConversationMessage struct {
	ID             string         `json:"id"`
	SenderRole     ChatRole       `json:"sender_role"`
	SenderID       string         `json:"sender_id,omitempty"`
	Body           string         `json:"body"`
	Kind           MessageKind    `json:"kind"`
	CreatedAt      time.Time      `json:"created_at"`
	EditedAt       *time.Time     `json:"edited_at,omitempty"`
	DeliveryState  DeliveryState  `json:"delivery_state"`
	IsRead         bool           `json:"is_read"`
	IsEdited       bool           `json:"is_edited"`
	IsTombstoned   bool           `json:"is_tombstoned"`
	TombstoneScope TombstoneScope `json:"tombstone_scope"`
	HiddenForUser  bool           `json:"hidden_for_user"`
	HiddenForAdmin bool           `json:"hidden_for_admin"`
}

// HiddenFor reports whether the viewer removed the message from their own view.
func (m ConversationMessage) HiddenFor(role ChatRole) bool {
	if role == ChatRoleAdmin {
		return m.HiddenForAdmin
	}
	return m.HiddenForUser
}

// Conversation is the single thread between one end-user and the shop admin.
// Messages are stored inline so every mutation is one row update.
type Conversation struct {
	ID                 string                                   `gorm:"primaryKey;size:36" json:"id"`
	UserID             string                                   `gorm:"size:64;uniqueIndex;not null" json:"user_id"`
	UserDisplayName    string                                   `gorm:"size:255" json:"user_display_name"`
	UserEmail          string                                   `gorm:"size:255" json:"user_email"`
	Messages           datatypes.JSONSlice[ConversationMessage] `json:"messages"`
	Status             ConversationStatus                       `gorm:"size:16;index;not null;default:active" json:"status"`
	LastActivityAt     time.Time                                `gorm:"index" json:"last_activity_at"`
	UnreadByAdminCount int                                      `gorm:"not null;default:0" json:"unread_by_admin_count"`
	ClearedAtForUser   *time.Time                               `json:"cleared_at_for_user,omitempty"`
	ClearedAtForAdmin  *time.Time                               `json:"cleared_at_for_admin,omitempty"`
	UserIsTyping       bool                                     `gorm:"not null;default:false" json:"user_is_typing"`
	AdminIsTyping      bool                                     `gorm:"not null;default:false" json:"admin_is_typing"`
	TypingBy           string                                   `gorm:"size:64" json:"typing_by,omitempty"`
	CreatedAt          time.Time                                `json:"created_at"`
	UpdatedAt          time.Time                                `json:"updated_at"`
}

// ClearedAtFor returns the viewer's clear point, if any.
func (c Conversation) ClearedAtFor(role ChatRole) *time.Time {
	if role == ChatRoleAdmin {
		return c.ClearedAtForAdmin
	}
	return c.ClearedAtForUser
}

// MessageIndex returns the position of the message in the sequence or -1.
func (c Conversation) MessageIndex(messageID string) int {
	for i := range c.Messages {
		if c.Messages[i].ID == messageID {
			return i
		}
	}
	return -1
}
