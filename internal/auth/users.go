package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"tallybook.io/internal/obs"
)

// UserStore persists users.
type UserStore interface {
	UserReader
	GetUserByEmail(ctx context.Context, email string) (User, error)
	ListUsers(ctx context.Context, orgID string) ([]User, error)
	CreateUser(ctx context.Context, u User) (User, error)
	UpdateUser(ctx context.Context, u User) (User, error)
	DeleteUser(ctx context.Context, id string) error
	OrganizationExists(ctx context.Context, orgID string) (bool, error)
}

// Credentials are the login inputs. Exactly one of Password or APIToken is used.
type Credentials struct {
	Email    string
	Password string
	APIToken string
}

// SignUpInput describes a user created by an administrator.
type SignUpInput struct {
	OrgID     string
	Email     string
	Password  string
	Name      string
	Phone     string
	Gender    string
	SuperUser bool
	StaffUser bool
}

// ProfileUpdate is a self-service change; nil fields are left untouched.
type ProfileUpdate struct {
	Name   *string
	Phone  *string
	Gender *string
}

// AdminUpdate is an administrative change to another user.
type AdminUpdate struct {
	ProfileUpdate
	OrgID     *string
	Active    *bool
	SuperUser *bool
	StaffUser *bool
}

// UserService implements sign-in, sign-up and user management.
type UserService struct {
	store UserStore
	codec *Codec
	cache RoleCache
}

// NewUserService wires the service. cache may be nil.
func NewUserService(store UserStore, codec *Codec, cache RoleCache) (*UserService, error) {
	if store == nil {
		return nil, errors.New("auth: user store is required")
	}
	if codec == nil {
		return nil, errors.New("auth: token codec is required")
	}
	return &UserService{store: store, codec: codec, cache: cache}, nil
}

// Login checks credentials and mints a token pair for the user.
func (s *UserService) Login(ctx context.Context, c Credentials) (User, TokenPair, error) {
	email := normalizeEmail(c.Email)
	if email == "" || (c.Password == "" && c.APIToken == "") {
		return User{}, TokenPair{}, fmt.Errorf("%w: Email and password or api_token are required", ErrInvalidInput)
	}
	u, err := s.store.GetUserByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		return User{}, TokenPair{}, ErrUnknownEmail
	}
	if err != nil {
		return User{}, TokenPair{}, err
	}

	var matched bool
	if c.Password != "" {
		matched = ValidatePassword(c.Password, u.PasswordHash)
	} else {
		matched = u.APIToken != "" && subtle.ConstantTimeCompare([]byte(u.APIToken), []byte(c.APIToken)) == 1
	}
	if !matched {
		return User{}, TokenPair{}, ErrInvalidCredentials
	}
	if !u.Active {
		return User{}, TokenPair{}, ErrInactiveUser
	}

	pair, err := s.codec.IssuePair(Payload{Subject: u.ID, Role: RoleOf(u)})
	if err != nil {
		return User{}, TokenPair{}, err
	}
	return u, pair, nil
}

// SignUp creates a new active user with a hashed password.
func (s *UserService) SignUp(ctx context.Context, in SignUpInput) (User, error) {
	in.Email = normalizeEmail(in.Email)
	in.Name = strings.TrimSpace(in.Name)
	in.Phone = strings.TrimSpace(in.Phone)
	in.OrgID = strings.TrimSpace(in.OrgID)
	if _, err := mail.ParseAddress(in.Email); err != nil {
		return User{}, fmt.Errorf("%w: Invalid email", ErrInvalidInput)
	}
	if len(in.Password) < 8 {
		return User{}, fmt.Errorf("%w: Password must be at least 8 characters", ErrInvalidInput)
	}
	if in.Name == "" {
		return User{}, fmt.Errorf("%w: Name is required", ErrInvalidInput)
	}
	if in.OrgID != "" {
		ok, err := s.store.OrganizationExists(ctx, in.OrgID)
		if err != nil {
			return User{}, err
		}
		if !ok {
			return User{}, fmt.Errorf("%w: Invalid organization id", ErrInvalidInput)
		}
	}
	if _, err := s.store.GetUserByEmail(ctx, in.Email); err == nil {
		return User{}, fmt.Errorf("%w: Email already registered", ErrConflict)
	} else if !errors.Is(err, ErrNotFound) {
		return User{}, err
	}

	hash, err := HashPassword(in.Password)
	if err != nil {
		return User{}, err
	}
	return s.store.CreateUser(ctx, User{
		OrgID:        in.OrgID,
		Email:        in.Email,
		PasswordHash: hash,
		Name:         in.Name,
		Phone:        in.Phone,
		Gender:       strings.TrimSpace(in.Gender),
		Active:       true,
		SuperUser:    in.SuperUser,
		StaffUser:    in.StaffUser,
	})
}

// ChangePassword verifies the current password before storing the new hash.
func (s *UserService) ChangePassword(ctx context.Context, userID, current, next string) error {
	u, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if !ValidatePassword(current, u.PasswordHash) {
		return ErrInvalidCredentials
	}
	if len(next) < 8 {
		return fmt.Errorf("%w: Password must be at least 8 characters", ErrInvalidInput)
	}
	hash, err := HashPassword(next)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	_, err = s.store.UpdateUser(ctx, u)
	return err
}

func (s *UserService) Get(ctx context.Context, id string) (User, error) {
	return s.store.GetUser(ctx, id)
}

// List returns the users of an organization, or every user when orgID is empty.
func (s *UserService) List(ctx context.Context, orgID string) ([]User, error) {
	return s.store.ListUsers(ctx, orgID)
}

// UpdateProfile applies a self-service change.
func (s *UserService) UpdateProfile(ctx context.Context, userID string, in ProfileUpdate) (User, error) {
	u, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return User{}, err
	}
	if err := applyProfile(&u, in); err != nil {
		return User{}, err
	}
	return s.store.UpdateUser(ctx, u)
}

// Update applies an administrative change. Administrators cannot target themselves.
func (s *UserService) Update(ctx context.Context, actorID, targetID string, in AdminUpdate) (User, error) {
	if actorID == targetID {
		return User{}, fmt.Errorf("%w: Cannot update yourself", ErrSelfTarget)
	}
	u, err := s.store.GetUser(ctx, targetID)
	if err != nil {
		return User{}, err
	}
	if err := applyProfile(&u, in.ProfileUpdate); err != nil {
		return User{}, err
	}
	if in.OrgID != nil {
		if err := s.checkOrganization(ctx, *in.OrgID); err != nil {
			return User{}, err
		}
		u.OrgID = strings.TrimSpace(*in.OrgID)
	}
	if in.Active != nil {
		u.Active = *in.Active
	}
	if in.SuperUser != nil {
		u.SuperUser = *in.SuperUser
	}
	if in.StaffUser != nil {
		u.StaffUser = *in.StaffUser
	}
	updated, err := s.store.UpdateUser(ctx, u)
	if err != nil {
		return User{}, err
	}
	s.invalidate(ctx, targetID)
	return updated, nil
}

// AssignOrganization moves a user into an organization.
func (s *UserService) AssignOrganization(ctx context.Context, userID, orgID string) (User, error) {
	if err := s.checkOrganization(ctx, orgID); err != nil {
		return User{}, err
	}
	u, err := s.store.GetUser(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return User{}, fmt.Errorf("%w: Invalid user id", ErrInvalidInput)
	}
	if err != nil {
		return User{}, err
	}
	u.OrgID = orgID
	return s.store.UpdateUser(ctx, u)
}

// Delete removes another user. Self deletion is rejected.
func (s *UserService) Delete(ctx context.Context, actorID, targetID string) error {
	if actorID == targetID {
		return fmt.Errorf("%w: Cannot delete yourself", ErrSelfTarget)
	}
	if err := s.store.DeleteUser(ctx, targetID); err != nil {
		return err
	}
	s.invalidate(ctx, targetID)
	return nil
}

func (s *UserService) checkOrganization(ctx context.Context, orgID string) error {
	orgID = strings.TrimSpace(orgID)
	if orgID == "" {
		return fmt.Errorf("%w: Organization id is required", ErrInvalidInput)
	}
	ok, err := s.store.OrganizationExists(ctx, orgID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: Invalid organization id", ErrInvalidInput)
	}
	return nil
}

func (s *UserService) invalidate(ctx context.Context, userID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, userID); err != nil {
		obs.FromContext(ctx).WithError(err).WithField("user_id", userID).Warn("role cache invalidation failed")
	}
}

func applyProfile(u *User, in ProfileUpdate) error {
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return fmt.Errorf("%w: Name cannot be empty", ErrInvalidInput)
		}
		u.Name = name
	}
	if in.Phone != nil {
		u.Phone = strings.TrimSpace(*in.Phone)
	}
	if in.Gender != nil {
		u.Gender = strings.TrimSpace(*in.Gender)
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
