package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/storefront-api/internal/models"
)

func rulesConversation(now time.Time) models.Conversation {
	return models.Conversation{
		ID:     "conv-1",
		UserID: "user-1",
		Status: models.ConversationStatusActive,
		Messages: []models.ConversationMessage{
			newMessage("m1", models.ChatRoleUser, "user-1", models.MessageKindText, "hi", now.Add(-3*time.Minute)),
			newMessage("m2", models.ChatRoleAdmin, "admin-1", models.MessageKindText, "hello", now.Add(-2*time.Minute)),
			newMessage("m3", models.ChatRoleUser, "user-1", models.MessageKindText, "question", now.Add(-time.Minute)),
		},
	}
}

func fixedBody(body string) func() (string, error) {
	return func() (string, error) { return body, nil }
}

func TestRenderForDoesNotMutate(t *testing.T) {
	now := time.Now().UTC()
	conversation := rulesConversation(now)
	conversation.Messages[0].TombstoneScope = models.TombstoneEveryone
	conversation.Messages[1].HiddenForUser = true

	rendered := RenderFor(conversation, models.ChatRoleUser)
	require.Len(t, rendered, 2)
	require.Equal(t, TombstoneBody, rendered[0].Body)
	require.True(t, rendered[0].IsTombstoned)
	require.Equal(t, "m3", rendered[1].ID)

	require.Equal(t, "hi", conversation.Messages[0].Body, "stored body must stay untouched")
	require.False(t, conversation.Messages[0].IsTombstoned)

	again := RenderFor(conversation, models.ChatRoleUser)
	require.Equal(t, rendered, again)
}

func TestRenderForRespectsClearPointPerViewer(t *testing.T) {
	now := time.Now().UTC()
	conversation := rulesConversation(now)
	setClearPoint(&conversation, models.ChatRoleUser, now.Add(-2*time.Minute))

	user := RenderFor(conversation, models.ChatRoleUser)
	require.Len(t, user, 1)
	require.Equal(t, "m3", user[0].ID)

	admin := RenderFor(conversation, models.ChatRoleAdmin)
	require.Len(t, admin, 3)
}

func TestRenderForSenderOnlyTombstone(t *testing.T) {
	now := time.Now().UTC()
	conversation := rulesConversation(now)
	conversation.Messages[0].TombstoneScope = models.TombstoneSenderOnly

	require.Len(t, RenderFor(conversation, models.ChatRoleUser), 2)
	require.Len(t, RenderFor(conversation, models.ChatRoleAdmin), 3)
}

func TestEditMessageOrdering(t *testing.T) {
	now := time.Now().UTC()

	conversation := rulesConversation(now)
	require.ErrorIs(t, editMessage(&conversation, models.ChatRoleUser, "missing", now, time.Minute, fixedBody("x")), ErrMessageNotFound)
	require.ErrorIs(t, editMessage(&conversation, models.ChatRoleUser, "m2", now, time.Minute, fixedBody("x")), ErrMessageForbidden)
	require.ErrorIs(t, editMessage(&conversation, models.ChatRoleUser, "m1", now, time.Minute, func() (string, error) {
		return "", ErrEmptyMessage
	}), ErrEditWindowExpired)

	require.ErrorIs(t, editMessage(&conversation, models.ChatRoleUser, "m3", now, time.Minute, func() (string, error) {
		return "", ErrEmptyMessage
	}), ErrEmptyMessage)

	require.NoError(t, editMessage(&conversation, models.ChatRoleUser, "m3", now, time.Minute, fixedBody("updated")))
	edited := conversation.Messages[2]
	require.Equal(t, "updated", edited.Body)
	require.True(t, edited.IsEdited)
	require.NotNil(t, edited.EditedAt)
}

func TestEditMessageRejectsTombstonedAndNonText(t *testing.T) {
	now := time.Now().UTC()
	conversation := rulesConversation(now)
	conversation.Messages[2].Kind = models.MessageKindEmoji
	require.ErrorIs(t, editMessage(&conversation, models.ChatRoleUser, "m3", now, time.Minute, fixedBody("x")), ErrChatValidation)

	conversation = rulesConversation(now)
	changed, err := deleteMessage(&conversation, models.ChatRoleUser, "m3", DeleteScopeEveryone)
	require.NoError(t, err)
	require.True(t, changed)
	require.ErrorIs(t, editMessage(&conversation, models.ChatRoleUser, "m3", now, time.Minute, fixedBody("x")), ErrChatValidation)
}

func TestDeleteMessageScopes(t *testing.T) {
	now := time.Now().UTC()
	conversation := rulesConversation(now)

	_, err := deleteMessage(&conversation, models.ChatRoleUser, "m2", DeleteScopeEveryone)
	require.ErrorIs(t, err, ErrMessageForbidden)

	changed, err := deleteMessage(&conversation, models.ChatRoleUser, "m2", DeleteScopeMe)
	require.NoError(t, err)
	require.True(t, changed)
	require.True(t, conversation.Messages[1].HiddenForUser)
	require.False(t, conversation.Messages[1].HiddenForAdmin)

	changed, err = deleteMessage(&conversation, models.ChatRoleUser, "m2", DeleteScopeMe)
	require.NoError(t, err)
	require.False(t, changed)

	_, err = deleteMessage(&conversation, models.ChatRoleUser, "nope", DeleteScopeMe)
	require.ErrorIs(t, err, ErrMessageNotFound)
}

func TestHardDeleteAdminMessage(t *testing.T) {
	now := time.Now().UTC()
	conversation := rulesConversation(now)

	require.ErrorIs(t, hardDeleteAdminMessage(&conversation, "m1"), ErrMessageForbidden)
	require.NoError(t, hardDeleteAdminMessage(&conversation, "m2"))
	require.Len(t, conversation.Messages, 2)
	require.Equal(t, "m1", conversation.Messages[0].ID)
	require.Equal(t, "m3", conversation.Messages[1].ID)
	require.ErrorIs(t, hardDeleteAdminMessage(&conversation, "m2"), ErrMessageNotFound)
}

func TestDeliveryStateOnlyMovesForward(t *testing.T) {
	now := time.Now().UTC()
	conversation := rulesConversation(now)

	require.True(t, needsDelivery(conversation, models.ChatRoleAdmin))
	require.True(t, markDelivered(&conversation, models.ChatRoleAdmin))
	require.Equal(t, models.DeliveryStateDelivered, conversation.Messages[0].DeliveryState)
	require.Equal(t, models.DeliveryStateSent, conversation.Messages[1].DeliveryState)
	require.False(t, markDelivered(&conversation, models.ChatRoleAdmin))

	conversation.UnreadByAdminCount = 2
	require.True(t, markRead(&conversation, models.ChatRoleAdmin))
	require.Equal(t, models.DeliveryStateRead, conversation.Messages[2].DeliveryState)
	require.Zero(t, conversation.UnreadByAdminCount)

	require.False(t, markDelivered(&conversation, models.ChatRoleAdmin))
	require.Equal(t, models.DeliveryStateRead, conversation.Messages[0].DeliveryState)
	require.False(t, markRead(&conversation, models.ChatRoleAdmin))
}

func TestSetTypingTracksActor(t *testing.T) {
	conversation := models.Conversation{}

	require.True(t, setTyping(&conversation, models.ChatRoleUser, "user-1", true))
	require.True(t, conversation.UserIsTyping)
	require.Equal(t, "user-1", conversation.TypingBy)
	require.False(t, setTyping(&conversation, models.ChatRoleUser, "user-1", true))

	require.False(t, setTyping(&conversation, models.ChatRoleAdmin, "admin-1", false))
	require.Equal(t, "user-1", conversation.TypingBy)

	require.True(t, setTyping(&conversation, models.ChatRoleUser, "user-1", false))
	require.False(t, conversation.UserIsTyping)
	require.Empty(t, conversation.TypingBy)
}
