// Package users stores shopper and admin accounts. Emails are kept trimmed
// and lowercased so lookups are case-insensitive.
package users

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/repo"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
)

// UserDTO is an account as the API shows it. It never carries the hash.
type UserDTO struct {
	ID          uuid.UUID      `json:"id"`
	Email       string         `json:"email"`
	FullName    string         `json:"full_name"`
	Phone       *string        `json:"phone,omitempty"`
	Role        enums.UserRole `json:"role"`
	Deleted     bool           `json:"deleted,omitempty"`
	LastLoginAt *time.Time     `json:"last_login_at,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

func FromModel(u *models.User) *UserDTO {
	if u == nil {
		return nil
	}
	return &UserDTO{
		ID:          u.ID,
		Email:       u.Email,
		FullName:    u.FullName,
		Phone:       u.Phone,
		Role:        u.Role,
		Deleted:     u.Lifecycle == enums.LifecycleDeleted,
		LastLoginAt: u.LastLoginAt,
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   u.UpdatedAt,
	}
}

// CreateUserDTO is a new account. Role defaults to a shopper.
type CreateUserDTO struct {
	Email        string
	PasswordHash string
	FullName     string
	Phone        *string
	Role         enums.UserRole
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

type Repository struct {
	repo.Base
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db)}
}

func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{Base: r.Base.WithTx(tx)}
}

func (r *Repository) Create(ctx context.Context, in CreateUserDTO) (*models.User, error) {
	user := &models.User{
		Email:        NormalizeEmail(in.Email),
		PasswordHash: in.PasswordHash,
		FullName:     strings.TrimSpace(in.FullName),
		Phone:        in.Phone,
		Role:         in.Role,
		Lifecycle:    enums.LifecycleActive,
	}
	if user.Role == "" {
		user.Role = enums.UserRoleUser
	}
	if err := r.DB(ctx).Create(user).Error; err != nil {
		return nil, err
	}
	return user, nil
}

// FindByEmail matches deleted accounts too; callers check the lifecycle.
func (r *Repository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return repo.First[models.User](ctx, r.Base, "email = ?", NormalizeEmail(email))
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return repo.First[models.User](ctx, r.Base, "id = ?", id)
}

func (r *Repository) UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	return repo.SetColumn[models.User](ctx, r.Base, id, "last_login_at", at)
}

// UpdatePasswordHash swaps in a hash made with stronger parameters.
func (r *Repository) UpdatePasswordHash(ctx context.Context, id uuid.UUID, hash string) error {
	return repo.SetColumn[models.User](ctx, r.Base, id, "password_hash", hash)
}

// FindActiveByID skips soft-deleted accounts.
func (r *Repository) FindActiveByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := r.DB(ctx).Scopes(models.Active).Where("id = ?", id).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// Update writes the named columns and bumps updated_at. It reports
// gorm.ErrRecordNotFound when no row has the id.
func (r *Repository) Update(ctx context.Context, id uuid.UUID, columns map[string]any) error {
	res := r.DB(ctx).Model(&models.User{}).Where("id = ?", id).Updates(columns)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ListFilter narrows the admin listing. A nil Lifecycle lists every account.
type ListFilter struct {
	Search    string
	Role      *enums.UserRole
	Lifecycle *enums.Lifecycle
}

// List returns a cursor page of accounts ordered newest first. Search matches
// name, email or phone without regard to case.
func (r *Repository) List(ctx context.Context, filter ListFilter, params pagination.Params) ([]models.User, string, error) {
	query := r.DB(ctx).Model(&models.User{})
	if search := strings.ToLower(strings.TrimSpace(filter.Search)); search != "" {
		like := "%" + search + "%"
		query = query.Where("LOWER(full_name) LIKE ? OR LOWER(email) LIKE ? OR COALESCE(phone, '') LIKE ?", like, like, like)
	}
	if filter.Role != nil {
		query = query.Where("role = ?", *filter.Role)
	}
	if filter.Lifecycle != nil {
		query = query.Where("lifecycle = ?", *filter.Lifecycle)
	}

	var rows []models.User
	if err := query.Scopes(pagination.Keyset(params, "")).Find(&rows).Error; err != nil {
		return nil, "", err
	}
	rows, next := pagination.Cut(rows, params, models.User.PageCursor)
	return rows, next, nil
}
