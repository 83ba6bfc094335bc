package profile

import (
	"context"

	"github.com/accountkit/account-backend/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store is the profile table boundary: point lookups by id and inserts that
// report conflicts instead of failing on them.
type Store interface {
	// Get returns gorm.ErrRecordNotFound when no row exists.
	Get(ctx context.Context, id uuid.UUID) (*models.Profile, error)
	// Insert reports created=false when a row with the same id already
	// exists; row is left untouched in that case.
	Insert(ctx context.Context, row *models.Profile) (created bool, err error)
}

type gormStore struct {
	db *gorm.DB
}

// NewStore wraps a GORM connection as the profile table boundary.
func NewStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) Get(ctx context.Context, id uuid.UUID) (*models.Profile, error) {
	var row models.Profile
	if err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

func (s *gormStore) Insert(ctx context.Context, row *models.Profile) (bool, error) {
	result := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, DoNothing: true}).
		Create(row)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
