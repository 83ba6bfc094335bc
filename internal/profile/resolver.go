package profile

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/accountkit/account-backend/internal/models"
	"github.com/accountkit/account-backend/internal/roles"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	// ErrProfileFetch wraps query failures other than "no rows".
	ErrProfileFetch = errors.New("failed to fetch profile")
	// ErrProfileCreate wraps auto-provisioning failures.
	ErrProfileCreate = errors.New("failed to create profile")
)

// AuthUser is the resolved profile projection held by the auth store.
type AuthUser struct {
	ID        uuid.UUID  `json:"id"`
	Email     string     `json:"email"`
	FirstName string     `json:"first_name"`
	LastName  string     `json:"last_name"`
	AvatarURL string     `json:"avatar_url"`
	Role      roles.Role `json:"role"`
}

// IdentitySource supplies the provider-side identity whose metadata seeds a
// newly provisioned profile.
type IdentitySource interface {
	IdentityByID(ctx context.Context, id uuid.UUID) (*models.Identity, error)
}

// Resolver fetches a subject's profile, lazily creating it from identity
// metadata on first sight. Resolution is idempotent under retry: the profile
// id is the table's primary key and an insert conflict means "already
// created, re-read".
type Resolver struct {
	store      Store
	identities IdentitySource
}

func NewResolver(db *gorm.DB, identities IdentitySource) *Resolver {
	return &Resolver{store: NewStore(db), identities: identities}
}

func newResolver(store Store, identities IdentitySource) *Resolver {
	return &Resolver{store: store, identities: identities}
}

func (r *Resolver) Resolve(ctx context.Context, subjectID uuid.UUID) (*AuthUser, error) {
	if subjectID == uuid.Nil {
		return nil, fmt.Errorf("%w: empty subject id", ErrProfileFetch)
	}

	row, err := r.store.Get(ctx, subjectID)
	if err == nil {
		return fromRow(row)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %v", ErrProfileFetch, err)
	}

	return r.provision(ctx, subjectID)
}

func (r *Resolver) provision(ctx context.Context, subjectID uuid.UUID) (*AuthUser, error) {
	ident, err := r.identities.IdentityByID(ctx, subjectID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProfileCreate, err)
	}

	row := &models.Profile{
		ID:        subjectID,
		Email:     ident.Email,
		FirstName: firstNameFrom(ident),
		LastName:  lastNameFrom(ident),
		AvatarURL: avatarFrom(ident),
		Role:      roles.Default.String(),
	}

	created, err := r.store.Insert(ctx, row)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProfileCreate, err)
	}
	if !created {
		// Lost the race to a concurrent resolution; the stored row wins.
		row, err = r.store.Get(ctx, subjectID)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrProfileFetch, err)
		}
	}

	return fromRow(row)
}

func fromRow(row *models.Profile) (*AuthUser, error) {
	role, err := roles.Parse(row.Role)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProfileFetch, err)
	}
	return &AuthUser{
		ID:        row.ID,
		Email:     row.Email,
		FirstName: row.FirstName,
		LastName:  row.LastName,
		AvatarURL: row.AvatarURL,
		Role:      role,
	}, nil
}

// Name defaults follow a fixed priority over the identity's metadata, since
// each OAuth provider spells these fields differently.

func firstNameFrom(ident *models.Identity) string {
	if v := ident.MetadataString("first_name"); v != "" {
		return v
	}
	if v := ident.MetadataString("given_name"); v != "" {
		return v
	}
	if full := ident.MetadataString("full_name"); full != "" {
		if parts := strings.Fields(full); len(parts) > 0 {
			return parts[0]
		}
	}
	return "User"
}

func lastNameFrom(ident *models.Identity) string {
	if v := ident.MetadataString("last_name"); v != "" {
		return v
	}
	if v := ident.MetadataString("family_name"); v != "" {
		return v
	}
	if full := ident.MetadataString("full_name"); full != "" {
		if parts := strings.Fields(full); len(parts) > 1 {
			return strings.Join(parts[1:], " ")
		}
	}
	return ""
}

func avatarFrom(ident *models.Identity) string {
	if v := ident.MetadataString("avatar_url"); v != "" {
		return v
	}
	return ident.MetadataString("picture")
}
