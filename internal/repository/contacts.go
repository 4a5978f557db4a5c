package repository

import (
	"context"

	"github.com/pathakanu/mealremind/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type (
	ContactRepository interface {
		Find(ctx context.Context, userID string) (*model.UserContact, error)
		Upsert(ctx context.Context, contact *model.UserContact) error
	}

	contactRepository struct {
		db *gorm.DB
	}
)

// NewContactRepository returns a gorm-backed ContactRepository.
func NewContactRepository(db *gorm.DB) ContactRepository {
	return &contactRepository{db: db}
}

func (r *contactRepository) Find(ctx context.Context, userID string) (*model.UserContact, error) {
	var contact model.UserContact
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&contact).Error; err != nil {
		return nil, notFound(err, "contact of user", userID)
	}
	return &contact, nil
}

func (r *contactRepository) Upsert(ctx context.Context, contact *model.UserContact) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"whatsapp_number", "updated_at"}),
	}).Create(contact).Error
}
