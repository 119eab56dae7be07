package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/storefront-api/internal/models"
)

// ErrSkipUpdate may be returned by a ConversationMutation to leave the row untouched.
var ErrSkipUpdate = errors.New("conversation unchanged")

// ConversationMutation edits a locked conversation in place. Returning an error
// other than ErrSkipUpdate rolls the transaction back.
type ConversationMutation func(conversation *models.Conversation) error

// ConversationFilter narrows the admin inbox listing.
type ConversationFilter struct {
	Status models.ConversationStatus
	Limit  int
	Offset int
}

// ConversationLookup selects a conversation either by id or by owning user.
type ConversationLookup struct {
	ID     string
	UserID string
}

// ConversationRepository persists conversations as single documents.
type ConversationRepository interface {
	FindOrCreate(ctx context.Context, seed models.Conversation) (models.Conversation, error)
	FindByID(ctx context.Context, id string) (models.Conversation, error)
	FindByUserID(ctx context.Context, userID string) (models.Conversation, error)
	List(ctx context.Context, filter ConversationFilter) ([]models.Conversation, error)
	Update(ctx context.Context, lookup ConversationLookup, mutate ConversationMutation) (models.Conversation, error)
}

type conversationRepository struct {
	db *gorm.DB
}

// NewConversationRepository constructs a conversation repository backed by GORM.
func NewConversationRepository(db *gorm.DB) ConversationRepository {
	return &conversationRepository{db: db}
}

func (r *conversationRepository) FindOrCreate(ctx context.Context, seed models.Conversation) (models.Conversation, error) {
	var conversation models.Conversation
	err := r.db.WithContext(ctx).
		Where(&models.Conversation{UserID: seed.UserID}).
		Attrs(seed).
		FirstOrCreate(&conversation).Error
	if err == nil {
		return conversation, nil
	}

	// A concurrent request may have inserted the row between our read and write.
	existing, findErr := r.FindByUserID(ctx, seed.UserID)
	if findErr != nil {
		return models.Conversation{}, err
	}
	return existing, nil
}

func (r *conversationRepository) FindByID(ctx context.Context, id string) (models.Conversation, error) {
	var conversation models.Conversation
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&conversation).Error; err != nil {
		return models.Conversation{}, err
	}
	return conversation, nil
}

func (r *conversationRepository) FindByUserID(ctx context.Context, userID string) (models.Conversation, error) {
	var conversation models.Conversation
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&conversation).Error; err != nil {
		return models.Conversation{}, err
	}
	return conversation, nil
}

func (r *conversationRepository) List(ctx context.Context, filter ConversationFilter) ([]models.Conversation, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 100
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := r.db.WithContext(ctx).Model(&models.Conversation{})
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}

	var conversations []models.Conversation
	if err := query.
		Order("last_activity_at DESC").
		Order("created_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&conversations).Error; err != nil {
		return nil, err
	}

	return conversations, nil
}

// Update locks the conversation row, applies mutate and writes the whole document back.
func (r *conversationRepository) Update(ctx context.Context, lookup ConversationLookup, mutate ConversationMutation) (models.Conversation, error) {
	var conversation models.Conversation

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		query := tx.Clauses(clause.Locking{Strength: "UPDATE"})
		switch {
		case lookup.ID != "":
			query = query.Where("id = ?", lookup.ID)
		case lookup.UserID != "":
			query = query.Where("user_id = ?", lookup.UserID)
		default:
			return gorm.ErrRecordNotFound
		}

		if err := query.First(&conversation).Error; err != nil {
			return err
		}

		if err := mutate(&conversation); err != nil {
			if errors.Is(err, ErrSkipUpdate) {
				return nil
			}
			return err
		}

		return tx.Save(&conversation).Error
	})
	if err != nil {
		return models.Conversation{}, err
	}

	return conversation, nil
}
