package admin

import (
	"context"
	"errors"
	"fmt"

	"github.com/accountkit/account-backend/internal/models"
	"github.com/accountkit/account-backend/internal/roles"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var ErrUserNotFound = errors.New("user not found")

// Service backs the admin user-management panel: search, role filtering,
// stat cards and role changes.
type Service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// ListUsers returns profiles matching the free-text search (name or email)
// and role filter, newest first. roleFilter "" or "all" matches every role.
func (s *Service) ListUsers(ctx context.Context, search, roleFilter string, limit, offset int) ([]models.Profile, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.Profile{})

	if search != "" {
		like := "%" + search + "%"
		query = query.Where(
			"first_name || ' ' || last_name || ' ' || email ILIKE ?", like,
		)
	}
	if roleFilter != "" && roleFilter != "all" {
		role, err := roles.Parse(roleFilter)
		if err != nil {
			return nil, 0, err
		}
		query = query.Where("role = ?", role.String())
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count users: %w", err)
	}

	var users []models.Profile
	if err := query.Order("created_at DESC").Limit(limit).Offset(offset).Find(&users).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list users: %w", err)
	}

	return users, total, nil
}

// Stats aggregates the admin panel's stat cards. Admins and superadmins are
// counted together, matching the panel's "admin users" card.
func (s *Service) Stats(ctx context.Context) (total, admins, staff, regular int64, err error) {
	base := func() *gorm.DB { return s.db.WithContext(ctx).Model(&models.Profile{}) }

	if err = base().Count(&total).Error; err != nil {
		return
	}
	if err = base().Where("role IN ?", []string{roles.Admin.String(), roles.SuperAdmin.String()}).Count(&admins).Error; err != nil {
		return
	}
	if err = base().Where("role = ?", roles.Staff.String()).Count(&staff).Error; err != nil {
		return
	}
	err = base().Where("role = ?", roles.User.String()).Count(&regular).Error
	return
}

// UpdateRole changes a user's role. The caller validates the role value.
func (s *Service) UpdateRole(ctx context.Context, id uuid.UUID, role roles.Role) (*models.Profile, error) {
	var user models.Profile
	if err := s.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	if err := s.db.WithContext(ctx).Model(&user).Update("role", role.String()).Error; err != nil {
		return nil, fmt.Errorf("failed to update role: %w", err)
	}

	user.Role = role.String()
	return &user, nil
}
