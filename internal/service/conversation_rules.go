package service

import (
	"fmt"
	"time"

	"github.com/noah-isme/storefront-api/internal/models"
)

// TombstoneBody replaces the body of a message deleted for everyone.
const TombstoneBody = "This message was deleted"

// Event kinds published after a conversation changes.
const (
	EventMessageCreated   = "message.created"
	EventMessageUpdated   = "message.updated"
	EventMessageRemoved   = "message.removed"
	EventMessageDelivered = "message.delivered"
	EventMessageRead      = "message.read"
	EventStatusChanged    = "conversation.status"
	EventCleared          = "conversation.cleared"
	EventTyping           = "conversation.typing"
)

// RenderFor projects the stored messages into the sequence the viewer should see.
// It never mutates the conversation.
func RenderFor(conversation models.Conversation, viewer models.ChatRole) []models.ConversationMessage {
	clearedAt := conversation.ClearedAtFor(viewer)
	out := make([]models.ConversationMessage, 0, len(conversation.Messages))
	for _, message := range conversation.Messages {
		if clearedAt != nil && !message.CreatedAt.After(*clearedAt) {
			continue
		}
		if message.HiddenFor(viewer) {
			continue
		}
		if message.TombstoneScope == models.TombstoneSenderOnly && message.SenderRole == viewer {
			continue
		}
		if message.TombstoneScope == models.TombstoneEveryone {
			message.Body = TombstoneBody
			message.IsTombstoned = true
		}
		out = append(out, message)
	}
	return out
}

func newMessage(id string, role models.ChatRole, senderID string, kind models.MessageKind, body string, now time.Time) models.ConversationMessage {
	return models.ConversationMessage{
		ID:             id,
		SenderRole:     role,
		SenderID:       senderID,
		Body:           body,
		Kind:           kind,
		CreatedAt:      now,
		DeliveryState:  models.DeliveryStateSent,
		TombstoneScope: models.TombstoneNone,
	}
}

func appendUserMessage(conversation *models.Conversation, message models.ConversationMessage) {
	conversation.Messages = append(conversation.Messages, message)
	conversation.LastActivityAt = message.CreatedAt
	conversation.UnreadByAdminCount++
	conversation.Status = models.ConversationStatusActive
}

func appendAdminReply(conversation *models.Conversation, message models.ConversationMessage) {
	conversation.Messages = append(conversation.Messages, message)
	conversation.LastActivityAt = message.CreatedAt
	conversation.UnreadByAdminCount = 0
}

// editMessage resolves the replacement body only after ownership and the window are checked.
func editMessage(conversation *models.Conversation, actor models.ChatRole, messageID string, now time.Time, window time.Duration, body func() (string, error)) error {
	idx := conversation.MessageIndex(messageID)
	if idx < 0 {
		return ErrMessageNotFound
	}

	message := &conversation.Messages[idx]
	if message.SenderRole != actor {
		return ErrMessageForbidden
	}
	if now.Sub(message.CreatedAt) > window {
		return ErrEditWindowExpired
	}
	if message.IsTombstoned || message.TombstoneScope == models.TombstoneEveryone {
		return fmt.Errorf("%w: message was deleted", ErrChatValidation)
	}
	if message.Kind != models.MessageKindText {
		return fmt.Errorf("%w: only text messages can be edited", ErrChatValidation)
	}

	replacement, err := body()
	if err != nil {
		return err
	}

	edited := now
	message.Body = replacement
	message.IsEdited = true
	message.EditedAt = &edited
	return nil
}

// deleteMessage returns false when the message was already in the requested state.
func deleteMessage(conversation *models.Conversation, actor models.ChatRole, messageID string, scope DeleteScope) (bool, error) {
	idx := conversation.MessageIndex(messageID)
	if idx < 0 {
		return false, ErrMessageNotFound
	}

	message := &conversation.Messages[idx]
	switch scope {
	case DeleteScopeEveryone:
		if message.SenderRole != actor {
			return false, ErrMessageForbidden
		}
		if message.TombstoneScope == models.TombstoneEveryone {
			return false, nil
		}
		message.IsTombstoned = true
		message.TombstoneScope = models.TombstoneEveryone
		message.Body = TombstoneBody
		message.Kind = models.MessageKindText
		return true, nil
	case DeleteScopeMe:
		if message.HiddenFor(actor) {
			return false, nil
		}
		if actor == models.ChatRoleAdmin {
			message.HiddenForAdmin = true
		} else {
			message.HiddenForUser = true
		}
		return true, nil
	default:
		return false, fmt.Errorf("%w: unknown delete scope %q", ErrChatValidation, scope)
	}
}

func hardDeleteAdminMessage(conversation *models.Conversation, messageID string) error {
	idx := conversation.MessageIndex(messageID)
	if idx < 0 {
		return ErrMessageNotFound
	}
	if conversation.Messages[idx].SenderRole != models.ChatRoleAdmin {
		return ErrMessageForbidden
	}

	conversation.Messages = append(conversation.Messages[:idx:idx], conversation.Messages[idx+1:]...)
	return nil
}

// markRead marks every message sent to the reader as read.
func markRead(conversation *models.Conversation, reader models.ChatRole) bool {
	changed := false
	sender := reader.Counterpart()
	for i := range conversation.Messages {
		message := &conversation.Messages[i]
		if message.SenderRole != sender || message.IsRead {
			continue
		}
		message.IsRead = true
		message.DeliveryState = models.DeliveryStateRead
		changed = true
	}

	if reader == models.ChatRoleAdmin && conversation.UnreadByAdminCount != 0 {
		conversation.UnreadByAdminCount = 0
		changed = true
	}
	return changed
}

// markDelivered advances the counterpart's sent messages once the viewer has loaded them.
func markDelivered(conversation *models.Conversation, viewer models.ChatRole) bool {
	changed := false
	sender := viewer.Counterpart()
	for i := range conversation.Messages {
		message := &conversation.Messages[i]
		if message.SenderRole != sender {
			continue
		}
		if message.DeliveryState.Before(models.DeliveryStateDelivered) {
			message.DeliveryState = models.DeliveryStateDelivered
			changed = true
		}
	}
	return changed
}

func needsDelivery(conversation models.Conversation, viewer models.ChatRole) bool {
	sender := viewer.Counterpart()
	for _, message := range conversation.Messages {
		if message.SenderRole == sender && message.DeliveryState.Before(models.DeliveryStateDelivered) {
			return true
		}
	}
	return false
}

func setClearPoint(conversation *models.Conversation, actor models.ChatRole, now time.Time) {
	cleared := now
	if actor == models.ChatRoleAdmin {
		conversation.ClearedAtForAdmin = &cleared
		return
	}
	conversation.ClearedAtForUser = &cleared
}

func setTyping(conversation *models.Conversation, actor models.ChatRole, actorID string, typing bool) bool {
	flag := &conversation.UserIsTyping
	if actor == models.ChatRoleAdmin {
		flag = &conversation.AdminIsTyping
	}

	if typing {
		if *flag && conversation.TypingBy == actorID {
			return false
		}
		*flag = true
		conversation.TypingBy = actorID
		return true
	}

	if !*flag {
		return false
	}
	*flag = false
	conversation.TypingBy = ""
	return true
}
