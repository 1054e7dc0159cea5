package exam

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/mind-engage/mindengage-exams/internal/apperr"
	"github.com/mind-engage/mindengage-exams/internal/docstore"
	"github.com/mind-engage/mindengage-exams/internal/rbac"
)

const MinPasswordLen = 8

type UserService struct {
	*Service[User, *User]
	creds docstore.Collection[Credential]
	cost  int
}

func NewUserService(store docstore.Store, log logrus.FieldLogger) *UserService {
	return &UserService{
		Service: NewService[User](store, CollUsers, Options{
			Kind:     "user",
			Resource: "users",
			Scoped:   true,
			Private:  true,
			Filters:  []string{"role", "email", "batchIds"},
		}, log),
		creds: docstore.NewCollection[Credential](store, CollCredentials),
		cost:  12,
	}
}

// WithCost overrides the bcrypt cost.
func (s *UserService) WithCost(cost int) *UserService {
	s.cost = cost
	return s
}

// Create stores the user and its credential. The password is hashed before
// anything is written, and the user is removed again when the credential
// cannot be stored.
func (s *UserService) Create(ctx context.Context, p rbac.Principal, u User) (User, error) {
	if !rbac.CanAssign(p, u.Role) {
		return User{}, apperr.Forbidden("not allowed to create a " + string(u.Role))
	}
	pw := u.Password
	u.Password = ""
	if len(pw) < MinPasswordLen {
		return User{}, apperr.Validation("validation failed",
			apperr.FieldError{Field: "password", Message: "must be at least 8 characters"})
	}
	hash, err := s.hash(pw)
	if err != nil {
		return User{}, err
	}
	created, err := s.Service.Create(ctx, p, u)
	if err != nil {
		return User{}, err
	}
	cred := Credential{UserID: created.ID, PasswordHash: hash, UpdatedAt: s.now()}
	if err := s.creds.Insert(ctx, created.ID, cred, nil); err != nil {
		if derr := s.coll.Delete(ctx, created.ID); derr != nil {
			s.log.WithError(derr).WithField("id", created.ID).Error("user left without credential")
		}
		return User{}, StoreError("user", created.ID, err)
	}
	return created, nil
}

// Update changes profile fields and, when Password is set, the password.
// Only users whose current role the caller may assign can be edited.
func (s *UserService) Update(ctx context.Context, p rbac.Principal, id string, u User) (User, error) {
	current, err := s.manageable(ctx, p, id)
	if err != nil {
		return User{}, err
	}
	if u.Role != current.Role && !rbac.CanAssign(p, u.Role) {
		return User{}, apperr.Forbidden("not allowed to assign role " + string(u.Role))
	}
	pw := u.Password
	u.Password = ""
	if pw != "" && len(pw) < MinPasswordLen {
		return User{}, apperr.Validation("validation failed",
			apperr.FieldError{Field: "password", Message: "must be at least 8 characters"})
	}
	updated, err := s.Service.Update(ctx, p, id, u)
	if err != nil {
		return User{}, err
	}
	if pw != "" {
		if err := s.setPassword(ctx, id, pw); err != nil {
			return User{}, err
		}
	}
	return updated, nil
}

func (s *UserService) Deactivate(ctx context.Context, p rbac.Principal, id string) (User, error) {
	if _, err := s.manageable(ctx, p, id); err != nil {
		return User{}, err
	}
	return s.Service.Deactivate(ctx, p, id)
}

func (s *UserService) Activate(ctx context.Context, p rbac.Principal, id string) (User, error) {
	if _, err := s.manageable(ctx, p, id); err != nil {
		return User{}, err
	}
	return s.Service.Activate(ctx, p, id)
}

func (s *UserService) manageable(ctx context.Context, p rbac.Principal, id string) (User, error) {
	current, err := s.Get(ctx, p, id)
	if err != nil {
		return User{}, err
	}
	if !rbac.CanAssign(p, current.Role) {
		return User{}, apperr.Forbidden("not allowed to manage a " + string(current.Role))
	}
	return current, nil
}

// ChangePassword lets a user replace their own password.
func (s *UserService) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	if len(newPassword) < MinPasswordLen {
		return apperr.Validation("validation failed",
			apperr.FieldError{Field: "newPassword", Message: "must be at least 8 characters"})
	}
	cred, err := s.creds.Get(ctx, userID)
	if err != nil {
		return StoreError("user", userID, err)
	}
	if bcrypt.CompareHashAndPassword([]byte(cred.PasswordHash), []byte(oldPassword)) != nil {
		return apperr.Forbidden("incorrect old password")
	}
	return s.setPassword(ctx, userID, newPassword)
}

// Authenticate returns the active user with the given email and password.
func (s *UserService) Authenticate(ctx context.Context, email, password string) (User, error) {
	lookup := User{Email: email}
	lookup.ApplyDefaults()
	found, err := s.coll.Find(ctx, docstore.Query{Filter: docstore.Filter{"email": lookup.Email}, Limit: 1})
	if err != nil {
		return User{}, apperr.Server(err)
	}
	invalid := apperr.Unauthenticated("invalid credentials")
	if len(found) == 0 || !found[0].Active() {
		return User{}, invalid
	}
	u := found[0]
	cred, err := s.creds.Get(ctx, u.ID)
	if errors.Is(err, docstore.ErrNotFound) {
		return User{}, invalid
	}
	if err != nil {
		return User{}, apperr.Server(err)
	}
	if bcrypt.CompareHashAndPassword([]byte(cred.PasswordHash), []byte(password)) != nil {
		return User{}, invalid
	}
	return u, nil
}

func (s *UserService) hash(pw string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(pw), s.cost)
	if err != nil {
		return "", apperr.Server(err)
	}
	return string(h), nil
}

// setPassword replaces the stored hash, creating the credential when the
// user has none yet.
func (s *UserService) setPassword(ctx context.Context, userID, pw string) error {
	hash, err := s.hash(pw)
	if err != nil {
		return err
	}
	cred := Credential{UserID: userID, PasswordHash: hash, UpdatedAt: s.now()}
	err = s.creds.Replace(ctx, userID, cred, nil, nil)
	if errors.Is(err, docstore.ErrNotFound) {
		err = s.creds.Insert(ctx, userID, cred, nil)
	}
	return StoreError("user", userID, err)
}
