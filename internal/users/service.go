package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
	"github.com/angelmondragon/storefront-backend/pkg/security"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

const (
	// MaxAddresses caps one user's address book.
	MaxAddresses = 10
	// MinPasswordLength applies to every password the service stores.
	MinPasswordLength = 8

	emailUniqueIndex  = "users_email_key"
	emailSQLiteColumn = "users.email"
	defaultIndex      = "addresses_user_default_key"
)

// Service covers the caller's own account, the address book and the admin
// account screens.
type Service interface {
	Profile(ctx context.Context, userID uuid.UUID) (*UserDTO, error)
	UpdateProfile(ctx context.Context, userID uuid.UUID, in ProfileUpdate) (*UserDTO, error)

	Addresses(ctx context.Context, userID uuid.UUID) ([]AddressDTO, error)
	AddAddress(ctx context.Context, userID uuid.UUID, in AddressInput) (*AddressDTO, error)
	UpdateAddress(ctx context.Context, userID, addressID uuid.UUID, in AddressPatch) (*AddressDTO, error)
	DeleteAddress(ctx context.Context, userID, addressID uuid.UUID) error
	ShippingAddress(ctx context.Context, userID, addressID uuid.UUID) (types.ShippingAddress, error)

	List(ctx context.Context, filter ListFilter, params pagination.Params) (*UserPageDTO, error)
	Get(ctx context.Context, id uuid.UUID) (*UserDTO, error)
	Create(ctx context.Context, in CreateInput) (*UserDTO, error)
	Update(ctx context.Context, actorID, id uuid.UUID, in AdminUpdate) (*UserDTO, error)
	Delete(ctx context.Context, actorID, id uuid.UUID) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type ServiceParams struct {
	Users          *Repository
	Addresses      *AddressRepository
	Tx             txRunner
	PasswordConfig config.PasswordConfig
	Logger         *logger.Logger
}

type service struct {
	users     *Repository
	addresses *AddressRepository
	tx        txRunner
	passwords *security.Hasher
	logg      *logger.Logger
}

func NewService(params ServiceParams) (Service, error) {
	if params.Users == nil || params.Addresses == nil {
		return nil, errors.New("users service needs the user and address repositories")
	}
	if params.Tx == nil {
		return nil, errors.New("tx runner required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{
		users:     params.Users,
		addresses: params.Addresses,
		tx:        params.Tx,
		passwords: security.NewHasher(params.PasswordConfig),
		logg:      logg,
	}, nil
}

// EmailTaken is the conflict raised when an address is already registered.
func EmailTaken() error {
	return pkgerrors.NewReason(pkgerrors.CodeConflict, pkgerrors.ReasonEmailTaken, "email already registered")
}

// IsDuplicateEmail reports whether err is the users email unique index firing.
func IsDuplicateEmail(err error) bool {
	return db.IsUniqueViolation(err, emailUniqueIndex) || db.IsUniqueViolation(err, emailSQLiteColumn)
}

// CheckPassword enforces the length rule shared by registration, password
// changes and admin resets.
func CheckPassword(password string) error {
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("password must be at least %d characters", MinPasswordLength))
	}
	return nil
}

func userNotFound() error {
	return pkgerrors.NewReason(pkgerrors.CodeNotFound, pkgerrors.ReasonUserNotFound, "user not found")
}

func addressNotFound() error {
	return pkgerrors.NewReason(pkgerrors.CodeNotFound, pkgerrors.ReasonAddressNotFound, "address not found")
}

func requireUser(id uuid.UUID) error {
	if id == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	return nil
}

func (s *service) load(ctx context.Context, find func(context.Context, uuid.UUID) (*models.User, error), id uuid.UUID) (*models.User, error) {
	user, err := find(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, userNotFound()
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load user")
	}
	return user, nil
}

func (s *service) Profile(ctx context.Context, userID uuid.UUID) (*UserDTO, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	user, err := s.load(ctx, s.users.FindActiveByID, userID)
	if err != nil {
		return nil, err
	}
	return FromModel(user), nil
}

func (s *service) UpdateProfile(ctx context.Context, userID uuid.UUID, in ProfileUpdate) (*UserDTO, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	if _, err := s.load(ctx, s.users.FindActiveByID, userID); err != nil {
		return nil, err
	}
	columns, err := contactColumns(in.FullName, in.Phone)
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, userID, columns)
}

// contactColumns validates the name and phone edits shared by the profile and
// admin screens.
func contactColumns(fullName, phone *string) (map[string]any, error) {
	columns := map[string]any{}
	if fullName != nil {
		name := strings.TrimSpace(*fullName)
		if name == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "full_name cannot be blank")
		}
		columns["full_name"] = name
	}
	if phone != nil {
		if p := strings.TrimSpace(*phone); p != "" {
			columns["phone"] = p
		} else {
			columns["phone"] = nil
		}
	}
	return columns, nil
}

func (s *service) apply(ctx context.Context, id uuid.UUID, columns map[string]any) (*UserDTO, error) {
	if len(columns) > 0 {
		if err := s.users.Update(ctx, id, columns); errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, userNotFound()
		} else if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update user")
		}
	}
	user, err := s.load(ctx, s.users.FindByID, id)
	if err != nil {
		return nil, err
	}
	return FromModel(user), nil
}

func (s *service) Addresses(ctx context.Context, userID uuid.UUID) ([]AddressDTO, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	rows, err := s.addresses.List(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list addresses")
	}
	out := make([]AddressDTO, 0, len(rows))
	for _, row := range rows {
		out = append(out, addressDTO(row))
	}
	return out, nil
}

func checkShipping(a types.ShippingAddress) (types.ShippingAddress, error) {
	a = a.Normalize()
	if missing := a.Missing(); len(missing) > 0 {
		return a, pkgerrors.NewReason(pkgerrors.CodeValidation, pkgerrors.ReasonInvalidAddress, "address is incomplete").
			WithDetails(map[string]any{"missing": missing})
	}
	return a, nil
}

func label(v *string) *string {
	if v == nil {
		return nil
	}
	l := strings.TrimSpace(*v)
	if l == "" {
		return nil
	}
	return &l
}

// AddAddress appends an entry. Marking it default moves the default flag in
// the same transaction.
func (s *service) AddAddress(ctx context.Context, userID uuid.UUID, in AddressInput) (*AddressDTO, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	shipping, err := checkShipping(in.Shipping)
	if err != nil {
		return nil, err
	}

	addr := models.Address{UserID: userID, Label: label(in.Label)}
	addr.SetShipping(shipping)
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		book := s.addresses.WithTx(tx)
		if _, err := s.users.WithTx(tx).FindActiveByID(ctx, userID); errors.Is(err, gorm.ErrRecordNotFound) {
			return userNotFound()
		} else if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load user")
		}
		n, err := book.Count(ctx, userID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count addresses")
		}
		if n >= MaxAddresses {
			return pkgerrors.NewReason(pkgerrors.CodeConflict, pkgerrors.ReasonAddressLimit, "address book is full").
				WithDetails(map[string]any{"max": MaxAddresses})
		}
		addr.IsDefault = in.Default || n == 0
		if addr.IsDefault && n > 0 {
			if err := book.ClearDefault(ctx, userID); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear default address")
			}
		}
		return s.storeAddress(ctx, book.Create, &addr)
	})
	if err != nil {
		return nil, err
	}
	dto := addressDTO(addr)
	return &dto, nil
}

// storeAddress maps a lost race on the single-default index to a conflict the
// client can retry.
func (s *service) storeAddress(ctx context.Context, write func(context.Context, *models.Address) error, addr *models.Address) error {
	err := write(ctx, addr)
	switch {
	case err == nil:
		return nil
	case db.IsUniqueViolation(err, defaultIndex), db.IsUniqueViolation(err, "addresses.user_id"):
		return pkgerrors.New(pkgerrors.CodeConflict, "default address changed concurrently")
	default:
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save address")
	}
}

func (s *service) UpdateAddress(ctx context.Context, userID, addressID uuid.UUID, in AddressPatch) (*AddressDTO, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}

	var addr *models.Address
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		book := s.addresses.WithTx(tx)
		var err error
		addr, err = book.Find(ctx, userID, addressID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return addressNotFound()
		}
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load address")
		}

		shipping := addr.Shipping()
		for _, edit := range []struct {
			src *string
			dst *string
		}{
			{in.FullName, &shipping.FullName},
			{in.Phone, &shipping.Phone},
			{in.Province, &shipping.Province},
			{in.District, &shipping.District},
			{in.Ward, &shipping.Ward},
			{in.Street, &shipping.Street},
		} {
			if edit.src != nil {
				*edit.dst = *edit.src
			}
		}
		if shipping, err = checkShipping(shipping); err != nil {
			return err
		}
		addr.SetShipping(shipping)
		if in.Label != nil {
			addr.Label = label(in.Label)
		}

		if in.Default != nil {
			switch {
			case *in.Default && !addr.IsDefault:
				if err := book.ClearDefault(ctx, userID); err != nil {
					return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear default address")
				}
				addr.IsDefault = true
			case !*in.Default && addr.IsDefault:
				return pkgerrors.New(pkgerrors.CodeValidation, "mark another address as default instead")
			}
		}
		return s.storeAddress(ctx, book.Save, addr)
	})
	if err != nil {
		return nil, err
	}
	dto := addressDTO(*addr)
	return &dto, nil
}

// DeleteAddress removes an entry. Removing the default hands the flag to the
// oldest remaining entry.
func (s *service) DeleteAddress(ctx context.Context, userID, addressID uuid.UUID) error {
	if err := requireUser(userID); err != nil {
		return err
	}
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		book := s.addresses.WithTx(tx)
		addr, err := book.Find(ctx, userID, addressID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return addressNotFound()
		}
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load address")
		}
		if _, err := book.Delete(ctx, userID, addressID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete address")
		}
		if addr.IsDefault {
			if err := book.PromoteOldest(ctx, userID); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "promote default address")
			}
		}
		return nil
	})
}

// ShippingAddress resolves a saved entry for checkout.
func (s *service) ShippingAddress(ctx context.Context, userID, addressID uuid.UUID) (types.ShippingAddress, error) {
	addr, err := s.addresses.Find(ctx, userID, addressID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return types.ShippingAddress{}, addressNotFound()
	}
	if err != nil {
		return types.ShippingAddress{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load address")
	}
	return addr.Shipping(), nil
}

func (s *service) List(ctx context.Context, filter ListFilter, params pagination.Params) (*UserPageDTO, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	rows, next, err := s.users.List(ctx, filter, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list users")
	}
	page := &UserPageDTO{Items: make([]UserDTO, 0, len(rows)), NextCursor: next}
	for i := range rows {
		page.Items = append(page.Items, *FromModel(&rows[i]))
	}
	return page, nil
}

// Get returns any account, deleted ones included.
func (s *service) Get(ctx context.Context, id uuid.UUID) (*UserDTO, error) {
	user, err := s.load(ctx, s.users.FindByID, id)
	if err != nil {
		return nil, err
	}
	return FromModel(user), nil
}

func (s *service) Create(ctx context.Context, in CreateInput) (*UserDTO, error) {
	email := NormalizeEmail(in.Email)
	if email == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "email is required")
	}
	fullName := strings.TrimSpace(in.FullName)
	if fullName == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "full_name is required")
	}
	if err := CheckPassword(in.Password); err != nil {
		return nil, err
	}
	role := in.Role
	if role == "" {
		role = enums.UserRoleUser
	}
	if !role.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "role must be user or admin")
	}

	hash, err := s.passwords.Hash(in.Password)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hash password")
	}
	columns, err := contactColumns(nil, in.Phone)
	if err != nil {
		return nil, err
	}
	var phone *string
	if p, ok := columns["phone"].(string); ok {
		phone = &p
	}

	user, err := s.users.Create(ctx, CreateUserDTO{
		Email:        email,
		PasswordHash: hash,
		FullName:     fullName,
		Phone:        phone,
		Role:         role,
	})
	if IsDuplicateEmail(err) {
		return nil, EmailTaken()
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create user")
	}
	s.logg.Info(s.logg.WithField(ctx, "user_id", user.ID.String()), "user.created")
	return FromModel(user), nil
}

// Update lets an admin edit another account. Admins cannot change their own
// role or lifecycle, so the last admin cannot lock everyone out.
func (s *service) Update(ctx context.Context, actorID, id uuid.UUID, in AdminUpdate) (*UserDTO, error) {
	if _, err := s.load(ctx, s.users.FindByID, id); err != nil {
		return nil, err
	}
	if actorID == id && (in.Role != nil || in.Lifecycle != nil) {
		return nil, pkgerrors.NewReason(pkgerrors.CodeConflict, pkgerrors.ReasonSelfModification, "admins cannot change their own role or status")
	}

	columns, err := contactColumns(in.FullName, in.Phone)
	if err != nil {
		return nil, err
	}
	if in.Role != nil {
		if !in.Role.IsValid() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "role must be user or admin")
		}
		columns["role"] = *in.Role
	}
	if in.Lifecycle != nil {
		if !in.Lifecycle.IsValid() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "lifecycle must be active or deleted")
		}
		columns["lifecycle"] = *in.Lifecycle
	}
	if in.Password != nil {
		if err := CheckPassword(*in.Password); err != nil {
			return nil, err
		}
		hash, err := s.passwords.Hash(*in.Password)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hash password")
		}
		columns["password_hash"] = hash
	}
	return s.apply(ctx, id, columns)
}

// Delete soft deletes the account. Login and refresh refuse deleted accounts,
// and orders keep pointing at the row.
func (s *service) Delete(ctx context.Context, actorID, id uuid.UUID) error {
	if actorID == id {
		return pkgerrors.NewReason(pkgerrors.CodeConflict, pkgerrors.ReasonSelfModification, "admins cannot delete their own account")
	}
	if _, err := s.load(ctx, s.users.FindByID, id); err != nil {
		return err
	}
	if err := s.users.Update(ctx, id, map[string]any{"lifecycle": enums.LifecycleDeleted}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete user")
	}
	s.logg.Info(s.logg.WithField(ctx, "user_id", id.String()), "user.deleted")
	return nil
}
